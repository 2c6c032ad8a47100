package tracing

import (
	"context"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
	"google.golang.org/grpc/credentials"

	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
)

// OTLPConfig configures the OTLP tracing exporter.
type OTLPConfig struct {
	Endpoint           string
	Insecure           bool
	ServiceName        string
	ResourceAttributes map[string]string
	// SampleRatio is the base sampling rate applied to spans not covered by
	// the always-sample rule below. Defaults to 0.1 (spec.md §4.J: "others
	// sampled at 10% (configurable)").
	SampleRatio float64
}

// NewOTLPTracerProvider builds an OTLP gRPC tracer provider, wired with the
// prioritySampler below, and returns it along with a shutdown function that
// should be invoked during application shutdown.
func NewOTLPTracerProvider(ctx context.Context, cfg OTLPConfig) (trace.TracerProvider, func(context.Context) error, error) {
	endpoint := strings.TrimSpace(cfg.Endpoint)
	if endpoint == "" {
		return nil, nil, fmt.Errorf("otlp endpoint required")
	}

	clientOpts := []otlptracegrpc.Option{
		otlptracegrpc.WithEndpoint(endpoint),
	}
	if cfg.Insecure {
		clientOpts = append(clientOpts, otlptracegrpc.WithInsecure())
	} else {
		clientOpts = append(clientOpts, otlptracegrpc.WithTLSCredentials(credentials.NewClientTLSFromCert(nil, "")))
	}

	exporter, err := otlptrace.New(ctx, otlptracegrpc.NewClient(clientOpts...))
	if err != nil {
		return nil, nil, fmt.Errorf("create otlp exporter: %w", err)
	}

	resAttrs := []attribute.KeyValue{}
	serviceName := strings.TrimSpace(cfg.ServiceName)
	if serviceName == "" {
		serviceName = "automation-core"
	}
	resAttrs = append(resAttrs, semconv.ServiceName(serviceName))
	for k, v := range cfg.ResourceAttributes {
		if key := strings.TrimSpace(k); key != "" {
			resAttrs = append(resAttrs, attribute.String(key, v))
		}
	}

	res, err := resource.New(ctx, resource.WithAttributes(resAttrs...))
	if err != nil {
		return nil, nil, fmt.Errorf("create resource: %w", err)
	}

	ratio := cfg.SampleRatio
	if ratio <= 0 {
		ratio = 0.1
	}

	provider := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(prioritySampler{base: sdktrace.TraceIDRatioBased(ratio)}),
	)

	shutdown := func(ctx context.Context) error {
		return provider.Shutdown(ctx)
	}
	return provider, shutdown, nil
}

// prioritySampler implements spec.md §4.J's custom sampling rule: always
// sample spans named among {event.emit, action.execute, trigger.match} or
// carrying an error attribute; otherwise defer to base (the configured
// ratio sampler).
type prioritySampler struct {
	base sdktrace.Sampler
}

func (s prioritySampler) ShouldSample(p sdktrace.SamplingParameters) sdktrace.SamplingResult {
	if ShouldAlwaysSample(p.Name) || hasErrorInitAttr(p.Attributes) {
		return sdktrace.SamplingResult{
			Decision:   sdktrace.RecordAndSample,
			Tracestate: trace.SpanContextFromContext(p.ParentContext).TraceState(),
		}
	}
	return s.base.ShouldSample(p)
}

func (s prioritySampler) Description() string {
	return "automation-core priority sampler (always-sample on name/error, else ratio-based)"
}

func hasErrorInitAttr(attrs []attribute.KeyValue) bool {
	for _, kv := range attrs {
		if string(kv.Key) == "error" && kv.Value.AsString() != "" && strings.ToLower(kv.Value.AsString()) != "false" {
			return true
		}
	}
	return false
}

// ConfigureGlobalTracer installs provider globally and returns a Tracer
// bound to it under instrumentation's name.
func ConfigureGlobalTracer(provider trace.TracerProvider, instrumentation string) *Tracer {
	if provider == nil {
		return New(nil, instrumentation)
	}
	otel.SetTracerProvider(provider)
	return New(provider, instrumentation)
}
