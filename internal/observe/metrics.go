// Package observe wires jarvis into OpenTelemetry: metric instruments,
// tracing helpers, trace-aware logging and the HTTP middleware that ties the
// three together.
//
// Metrics go through the OTel API. [InitProvider] installs a Prometheus
// exporter so the server's /metrics endpoint can be scraped. Production code
// uses the shared [DefaultMetrics]; tests build their own with [NewMetrics]
// over a private meter provider.
package observe

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "github.com/MrWong99/jarvis"

// Provider call outcomes for [Metrics.RecordProviderCall].
const (
	OutcomeOK       = "ok"
	OutcomeEmpty    = "empty"
	OutcomeError    = "error"
	OutcomeNoSpeech = "no_speech"
)

// Metrics holds the application's instruments. Safe for concurrent use.
type Metrics struct {
	// ProviderDuration is the latency of one llm, stt or tts call, labelled
	// kind, purpose and outcome. Recorded through RecordProviderCall.
	ProviderDuration metric.Float64Histogram
	// ProviderErrors counts failed provider calls by kind and purpose.
	ProviderErrors metric.Int64Counter

	// CommandDuration is utterance-to-response latency by source.
	CommandDuration metric.Float64Histogram
	// HandlerDuration is capability handler latency by handler.
	HandlerDuration metric.Float64Histogram
	// Commands counts resolved commands by source, intent and status.
	Commands metric.Int64Counter

	CacheLookups     metric.Int64Counter
	AuthAttempts     metric.Int64Counter
	TimerEvents      metric.Int64Counter
	StateTransitions metric.Int64Counter

	ActiveTimers     metric.Int64UpDownCounter
	EventSubscribers metric.Int64UpDownCounter

	// HTTPRequestDuration is labelled with the matched route pattern and the
	// status code by [Middleware].
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets (seconds) span a cache hit to a slow cloud completion.
var latencyBuckets = []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10}

// instruments collects creation errors so NewMetrics can report them all.
type instruments struct {
	meter metric.Meter
	errs  []error
}

func (in *instruments) latency(name, desc string) metric.Float64Histogram {
	h, err := in.meter.Float64Histogram(name,
		metric.WithDescription(desc),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	)
	in.errs = append(in.errs, err)
	return h
}

func (in *instruments) counter(name, desc string) metric.Int64Counter {
	c, err := in.meter.Int64Counter(name, metric.WithDescription(desc))
	in.errs = append(in.errs, err)
	return c
}

func (in *instruments) gauge(name, desc string) metric.Int64UpDownCounter {
	g, err := in.meter.Int64UpDownCounter(name, metric.WithDescription(desc))
	in.errs = append(in.errs, err)
	return g
}

// NewMetrics creates every instrument on mp.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	in := &instruments{meter: mp.Meter(meterName)}
	m := &Metrics{
		ProviderDuration: in.latency("jarvis.provider.duration", "Latency of llm, stt and tts calls."),
		ProviderErrors:   in.counter("jarvis.provider.errors", "Failed provider calls by kind and purpose."),

		CommandDuration: in.latency("jarvis.command.duration", "Utterance to response latency."),
		HandlerDuration: in.latency("jarvis.handler.duration", "Capability handler latency."),
		Commands:        in.counter("jarvis.commands", "Resolved commands by source, intent and status."),

		CacheLookups:     in.counter("jarvis.intent_cache.lookups", "Intent cache lookups by result."),
		AuthAttempts:     in.counter("jarvis.auth.attempts", "Voice enrollment and authentication outcomes."),
		TimerEvents:      in.counter("jarvis.timer.events", "Timer lifecycle events."),
		StateTransitions: in.counter("jarvis.wakeloop.transitions", "Wake loop state entries by state."),

		ActiveTimers:     in.gauge("jarvis.active_timers", "Pending timers."),
		EventSubscribers: in.gauge("jarvis.event_subscribers", "Connected event stream clients."),

		HTTPRequestDuration: in.latency("jarvis.http.request.duration", "HTTP request latency by route and status code."),
	}
	if err := errors.Join(in.errs...); err != nil {
		return nil, err
	}
	return m, nil
}

var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the process-wide instance built on the global meter
// provider. It panics if an instrument cannot be created.
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		m, err := NewMetrics(otel.GetMeterProvider())
		if err != nil {
			panic("observe: create default metrics: " + err.Error())
		}
		defaultMetrics = m
	})
	return defaultMetrics
}

// ── Recording helpers ───────────────────────────────────────────────────────

// RecordProviderCall records the latency of one provider call started at
// start. kind is "llm", "stt" or "tts"; purpose distinguishes callers of the
// same kind, e.g. "classify" and "chat". An OutcomeError also increments
// ProviderErrors.
func (m *Metrics) RecordProviderCall(ctx context.Context, kind, purpose, outcome string, start time.Time) {
	m.ProviderDuration.Record(ctx, time.Since(start).Seconds(), metric.WithAttributes(
		attribute.String("kind", kind),
		attribute.String("purpose", purpose),
		attribute.String("outcome", outcome),
	))
	if outcome == OutcomeError {
		m.ProviderErrors.Add(ctx, 1, metric.WithAttributes(
			attribute.String("kind", kind),
			attribute.String("purpose", purpose),
		))
	}
}

// RecordCommand records one resolved command.
func (m *Metrics) RecordCommand(ctx context.Context, source, intent string, success bool) {
	status := "ok"
	if !success {
		status = "failed"
	}
	m.Commands.Add(ctx, 1, metric.WithAttributes(
		attribute.String("source", source),
		attribute.String("intent", intent),
		attribute.String("status", status),
	))
}

// RecordCacheLookup records an intent cache hit or miss.
func (m *Metrics) RecordCacheLookup(ctx context.Context, hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	m.CacheLookups.Add(ctx, 1, metric.WithAttributes(attribute.String("result", result)))
}

func (m *Metrics) RecordAuthAttempt(ctx context.Context, op, result string) {
	m.AuthAttempts.Add(ctx, 1, metric.WithAttributes(
		attribute.String("op", op),
		attribute.String("result", result),
	))
}

// RecordTimerEvent records "set", "fired" or "cancelled".
func (m *Metrics) RecordTimerEvent(ctx context.Context, event string) {
	m.TimerEvents.Add(ctx, 1, metric.WithAttributes(attribute.String("event", event)))
}

func (m *Metrics) RecordStateTransition(ctx context.Context, state string) {
	m.StateTransitions.Add(ctx, 1, metric.WithAttributes(attribute.String("state", state)))
}
