package observe

import (
	"context"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

func TestInitProvider(t *testing.T) {
	origMP, origTP, origProp := otel.GetMeterProvider(), otel.GetTracerProvider(), otel.GetTextMapPropagator()
	t.Cleanup(func() {
		otel.SetMeterProvider(origMP)
		otel.SetTracerProvider(origTP)
		otel.SetTextMapPropagator(origProp)
	})

	reg := prometheus.NewRegistry()
	shutdown, err := InitProvider(context.Background(), ProviderConfig{
		ServiceVersion: "test",
		Registerer:     reg,
	})
	if err != nil {
		t.Fatalf("InitProvider: %v", err)
	}

	m, err := NewMetrics(otel.GetMeterProvider())
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	m.RecordCommand(context.Background(), "fast_path", "productivity", true)

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather: %v", err)
	}
	var found bool
	for _, f := range families {
		if strings.HasPrefix(f.GetName(), "jarvis_commands") {
			found = true
		}
	}
	if !found {
		t.Error("command counter not exported to the registry")
	}

	ctx, span := StartSpan(context.Background(), "orchestrator.handle")
	if !span.SpanContext().IsSampled() {
		t.Error("spans are not sampled by default")
	}
	carrier := propagation.MapCarrier{}
	otel.GetTextMapPropagator().Inject(ctx, carrier)
	if carrier.Get("traceparent") == "" {
		t.Error("trace context propagator not installed")
	}
	span.End()

	if err := shutdown(context.Background()); err != nil {
		t.Errorf("shutdown: %v", err)
	}
}

func TestInitProvider_RejectsSampleRatio(t *testing.T) {
	if _, err := InitProvider(context.Background(), ProviderConfig{SampleRatio: 1.5}); err == nil {
		t.Error("InitProvider accepted a sample ratio above 1")
	}
}

func TestNewResource(t *testing.T) {
	t.Parallel()
	res, err := newResource(ProviderConfig{ServiceName: "jarvis", ServiceVersion: "dev"})
	if err != nil {
		t.Fatalf("newResource: %v", err)
	}
	attrs := res.Set()
	if v, ok := attrs.Value(semconv.ServiceNameKey); !ok || v.AsString() != "jarvis" {
		t.Errorf("service.name = %v", v)
	}
	if v, ok := attrs.Value(semconv.ServiceVersionKey); !ok || v.AsString() != "dev" {
		t.Errorf("service.version = %v", v)
	}
	if _, ok := attrs.Value("telemetry.sdk.version"); !ok {
		t.Error("SDK default attributes missing")
	}
}
