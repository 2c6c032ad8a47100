// Package tracing implements the Observability core's tracer (spec.md
// §4.J), grounded on the teacher's pkg/tracing OTelTracer/StartSpan
// pattern. It adds the instrument(name, attrs, fn) helper, attribute
// truncation, and the error/named-span-biased sampler the spec requires.
package tracing

import (
	"context"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	oteltrace "go.opentelemetry.io/otel/trace"
)

// maxAttrBytes is the §4.J truncation threshold: "attribute values longer
// than 10 kB (or serialized > 10 kB) MUST be truncated".
const maxAttrBytes = 10 * 1024

const truncationMarker = "… [truncated]"

// alwaysSampledSpans are sampled regardless of the configured sample rate
// (§4.J: "any span named among {event.emit, action.execute,
// trigger.match}").
var alwaysSampledSpans = map[string]struct{}{
	"event.emit":    {},
	"action.execute": {},
	"trigger.match":  {},
}

// Tracer wraps an OTel tracer with the span-lifecycle helper the rest of
// the codebase uses instead of calling the OTel API directly.
type Tracer struct {
	tracer oteltrace.Tracer
}

// New wraps the tracer registered under name on provider (or the global
// provider if nil).
func New(provider oteltrace.TracerProvider, name string) *Tracer {
	if provider == nil {
		provider = otel.GetTracerProvider()
	}
	if strings.TrimSpace(name) == "" {
		name = "automation-core"
	}
	return &Tracer{tracer: provider.Tracer(name)}
}

// StartSpan begins a span, sets attrs (truncating oversized values), and
// returns a context carrying the span plus a finish function that records
// an error (if any) and always ends the span — the single entry/exit point
// every call site uses so spans are never leaked half-closed.
func (t *Tracer) StartSpan(ctx context.Context, name string, attrs map[string]string) (context.Context, func(error)) {
	spanCtx, span := t.tracer.Start(ctx, name, oteltrace.WithAttributes(convertAttrs(attrs)...))

	return spanCtx, func(err error) {
		defer span.End()
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return
		}
		span.SetStatus(codes.Ok, "")
	}
}

// Instrument is the instrument(name, attrs, fn) helper from spec.md §4.J:
// start a span, set attrs, invoke fn, set ok/error status, always end.
func (t *Tracer) Instrument(ctx context.Context, name string, attrs map[string]string, fn func(ctx context.Context) error) error {
	spanCtx, finish := t.StartSpan(ctx, name, attrs)
	err := fn(spanCtx)
	finish(err)
	return err
}

func convertAttrs(attrs map[string]string) []attribute.KeyValue {
	if len(attrs) == 0 {
		return nil
	}
	kvs := make([]attribute.KeyValue, 0, len(attrs))
	for k, v := range attrs {
		key := strings.TrimSpace(k)
		if key == "" {
			continue
		}
		kvs = append(kvs, attribute.String(key, truncate(v)))
	}
	return kvs
}

func truncate(v string) string {
	if len(v) <= maxAttrBytes {
		return v
	}
	cut := maxAttrBytes - len(truncationMarker)
	if cut < 0 {
		cut = 0
	}
	return v[:cut] + truncationMarker
}

// ShouldAlwaysSample reports whether a span name is in the always-sampled
// set, used by the custom Sampler in otlp.go.
func ShouldAlwaysSample(name string) bool {
	_, ok := alwaysSampledSpans[name]
	return ok
}

// HasErrorAttribute reports whether attrs marks this span as carrying an
// error, the other always-sample condition in §4.J.
func HasErrorAttribute(attrs map[string]string) bool {
	v, ok := attrs["error"]
	return ok && strings.ToLower(v) != "false" && v != ""
}
