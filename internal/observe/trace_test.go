package observe

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

// useRecorder installs an in-memory span recorder as the global tracer
// provider for the duration of the test.
func useRecorder(t *testing.T) *tracetest.InMemoryExporter {
	t.Helper()
	exp := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exp))
	orig := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() {
		otel.SetTracerProvider(orig)
		_ = tp.Shutdown(context.Background())
	})
	return exp
}

// captureLogs redirects the default logger into a buffer.
func captureLogs(t *testing.T, level slog.Level) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	orig := slog.Default()
	slog.SetDefault(slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: level})))
	t.Cleanup(func() { slog.SetDefault(orig) })
	return &buf
}

func TestStartSpan_StageAttributes(t *testing.T) {
	exp := useRecorder(t)

	ctx, span := StartSpan(context.Background(), "orchestrator.classify", attribute.Int("text_len", 12))
	if CorrelationID(ctx) == "" {
		t.Error("span context carries no trace ID")
	}
	EndSpan(span, nil)

	spans := exp.GetSpans()
	if len(spans) != 1 {
		t.Fatalf("spans = %d, want 1", len(spans))
	}
	got := spans[0]
	if got.Name != "orchestrator.classify" {
		t.Errorf("name = %q", got.Name)
	}
	if len(got.Attributes) != 1 || got.Attributes[0].Value.AsInt64() != 12 {
		t.Errorf("attributes = %v", got.Attributes)
	}
	if got.Status.Code == codes.Error {
		t.Error("successful stage marked as error")
	}
}

func TestEndSpan_RecordsError(t *testing.T) {
	exp := useRecorder(t)

	_, span := StartSpan(context.Background(), "auth.authenticate")
	EndSpan(span, errors.New("auth: voice did not match"))

	spans := exp.GetSpans()
	if len(spans) != 1 {
		t.Fatalf("spans = %d, want 1", len(spans))
	}
	if spans[0].Status.Code != codes.Error || spans[0].Status.Description != "auth: voice did not match" {
		t.Errorf("status = %+v", spans[0].Status)
	}
	if len(spans[0].Events) == 0 || spans[0].Events[0].Name != "exception" {
		t.Errorf("events = %v, want a recorded exception", spans[0].Events)
	}
}

func TestCorrelationID(t *testing.T) {
	if got := CorrelationID(context.Background()); got != "" {
		t.Errorf("CorrelationID outside a trace = %q", got)
	}

	useRecorder(t)
	seen := make(map[string]bool)
	for range 50 {
		ctx, span := StartSpan(context.Background(), "orchestrator.handle")
		cid := CorrelationID(ctx)
		span.End()
		if len(cid) != 32 || strings.Trim(cid, "0123456789abcdef") != "" {
			t.Fatalf("correlation ID %q is not 32 hex characters", cid)
		}
		if seen[cid] {
			t.Fatalf("duplicate correlation ID %s", cid)
		}
		seen[cid] = true
	}
}

func TestLogger(t *testing.T) {
	useRecorder(t)
	buf := captureLogs(t, slog.LevelInfo)

	Logger(context.Background()).Info("idle")
	ctx, span := StartSpan(context.Background(), "wakeloop.command")
	defer span.End()
	Logger(ctx).Info("command heard")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("log lines = %d, want 2:\n%s", len(lines), buf)
	}
	if strings.Contains(lines[0], "trace_id") {
		t.Errorf("untraced line has trace_id: %s", lines[0])
	}
	if !strings.Contains(lines[1], "trace_id="+CorrelationID(ctx)) || !strings.Contains(lines[1], "span_id=") {
		t.Errorf("traced line = %s", lines[1])
	}
}
