package observe

import (
	"context"
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	promexporter "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

// ProviderConfig configures the process-wide telemetry providers.
type ProviderConfig struct {
	// ServiceName defaults to "jarvis".
	ServiceName    string
	ServiceVersion string

	// Registerer receives the Prometheus collectors. Nil means the default
	// registry, which is what promhttp.Handler serves on /metrics.
	Registerer prometheus.Registerer

	// TraceExporter receives finished spans. Nil records spans in-process
	// only, so trace IDs still show up in logs and X-Correlation-ID headers.
	TraceExporter sdktrace.SpanExporter

	// SampleRatio is the fraction of new traces sampled, in (0, 1].
	// Zero samples everything.
	SampleRatio float64
}

// newResource describes the service on top of the SDK defaults. The service
// attributes carry no schema URL so the merge never conflicts with the one
// the SDK version ships.
func newResource(cfg ProviderConfig) (*resource.Resource, error) {
	res, err := resource.Merge(resource.Default(), resource.NewSchemaless(
		semconv.ServiceName(cfg.ServiceName),
		semconv.ServiceVersion(cfg.ServiceVersion),
	))
	if err != nil {
		return nil, fmt.Errorf("observe: build resource: %w", err)
	}
	return res, nil
}

// Shutdown flushes and stops the providers installed by [InitProvider].
type Shutdown func(context.Context) error

// InitProvider installs a Prometheus-backed meter provider and a tracer
// provider as the OTel globals, and the W3C trace context propagator.
// [DefaultMetrics] created after this call records into the new provider.
func InitProvider(ctx context.Context, cfg ProviderConfig) (Shutdown, error) {
	if cfg.ServiceName == "" {
		cfg.ServiceName = "jarvis"
	}
	if cfg.SampleRatio < 0 || cfg.SampleRatio > 1 {
		return nil, fmt.Errorf("observe: sample ratio %.2f out of range (0, 1]", cfg.SampleRatio)
	}

	res, err := newResource(cfg)
	if err != nil {
		return nil, err
	}

	// ── Metrics ──
	var expOpts []promexporter.Option
	if cfg.Registerer != nil {
		expOpts = append(expOpts, promexporter.WithRegisterer(cfg.Registerer))
	}
	exp, err := promexporter.New(expOpts...)
	if err != nil {
		return nil, fmt.Errorf("observe: prometheus exporter: %w", err)
	}
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithResource(res), sdkmetric.WithReader(exp))

	// ── Traces ──
	sampler := sdktrace.AlwaysSample()
	if cfg.SampleRatio > 0 && cfg.SampleRatio < 1 {
		sampler = sdktrace.ParentBased(sdktrace.TraceIDRatioBased(cfg.SampleRatio))
	}
	tpOpts := []sdktrace.TracerProviderOption{sdktrace.WithResource(res), sdktrace.WithSampler(sampler)}
	if cfg.TraceExporter != nil {
		tpOpts = append(tpOpts, sdktrace.WithBatcher(cfg.TraceExporter))
	}
	tp := sdktrace.NewTracerProvider(tpOpts...)

	otel.SetMeterProvider(mp)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.TraceContext{})

	// Spans flush before the meter provider stops so span-derived metrics land.
	return func(ctx context.Context) error {
		return errors.Join(tp.Shutdown(ctx), mp.Shutdown(ctx))
	}, nil
}
