package tracing

import (
	"context"
	"errors"
	"testing"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/sdk/trace"
)

func TestTracer_StartSpan(t *testing.T) {
	provider := trace.NewTracerProvider()
	otel.SetTracerProvider(provider)

	tracer := New(provider, "test")
	ctx, finish := tracer.StartSpan(context.Background(), "operation", map[string]string{
		"key": "value",
	})
	if ctx == nil {
		t.Fatal("expected context from StartSpan")
	}
	finish(nil)
}

func TestTracer_Instrument(t *testing.T) {
	provider := trace.NewTracerProvider()
	tracer := New(provider, "test")

	want := errors.New("boom")
	err := tracer.Instrument(context.Background(), "action.execute", nil, func(ctx context.Context) error {
		return want
	})
	if !errors.Is(err, want) {
		t.Fatalf("expected Instrument to propagate fn's error, got %v", err)
	}
}

func TestConvertAttrs(t *testing.T) {
	attrs := convertAttrs(map[string]string{" foo ": "bar"})
	if len(attrs) != 1 || attrs[0] != attribute.String("foo", "bar") {
		t.Fatalf("unexpected attrs: %#v", attrs)
	}
}

func TestTruncate(t *testing.T) {
	long := make([]byte, maxAttrBytes+100)
	for i := range long {
		long[i] = 'a'
	}
	got := truncate(string(long))
	if len(got) > maxAttrBytes {
		t.Fatalf("expected truncated value within %d bytes, got %d", maxAttrBytes, len(got))
	}
}

func TestShouldAlwaysSample(t *testing.T) {
	for _, name := range []string{"event.emit", "action.execute", "trigger.match"} {
		if !ShouldAlwaysSample(name) {
			t.Errorf("expected %q to always sample", name)
		}
	}
	if ShouldAlwaysSample("some.other.span") {
		t.Error("expected unlisted span name to not always sample")
	}
}

func TestHasErrorAttribute(t *testing.T) {
	if !HasErrorAttribute(map[string]string{"error": "true"}) {
		t.Error("expected error=true to be detected")
	}
	if HasErrorAttribute(map[string]string{"error": "false"}) {
		t.Error("expected error=false to not be detected")
	}
	if HasErrorAttribute(nil) {
		t.Error("expected nil attrs to not be detected as error")
	}
}
