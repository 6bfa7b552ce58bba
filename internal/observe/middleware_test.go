package observe

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

// apiHarness wraps a ServeMux shaped like the jarvis API in the middleware.
func apiHarness(t *testing.T) (http.Handler, *sdkmetric.ManualReader, *tracetest.InMemoryExporter) {
	t.Helper()

	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })
	m, err := NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	exp := useRecorder(t)

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/command", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("DELETE /api/timers/{id}", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("GET /boom", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})
	mux.HandleFunc("GET /ws/events", func(w http.ResponseWriter, _ *http.Request) {
		if _, ok := w.(interface{ Unwrap() http.ResponseWriter }); !ok {
			t.Error("wrapped writer does not implement Unwrap")
		}
	})
	return Middleware(m)(mux), reader, exp
}

func durationPoints(t *testing.T, reader *sdkmetric.ManualReader) []metricdata.HistogramDataPoint[float64] {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	met := findMetric(rm, "jarvis.http.request.duration")
	if met == nil {
		t.Fatal("jarvis.http.request.duration not recorded")
	}
	return met.Data.(metricdata.Histogram[float64]).DataPoints
}

func TestMiddleware_RouteLabel(t *testing.T) {
	h, reader, exp := apiHarness(t)

	for _, id := range []string{"1", "2", "3"} {
		h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodDelete, "/api/timers/"+id, nil))
	}
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/nope", nil))

	points := durationPoints(t, reader)
	counts := make(map[string]uint64)
	for _, dp := range points {
		route, _ := dp.Attributes.Value("route")
		code, _ := dp.Attributes.Value("code")
		counts[route.AsString()+" "+code.AsString()] += dp.Count
	}
	if counts["DELETE /api/timers/{id} 404"] != 3 {
		t.Errorf("timer route series = %v, want three requests under one pattern", counts)
	}
	if counts["unmatched 404"] != 1 {
		t.Errorf("unmatched series = %v", counts)
	}

	spans := exp.GetSpans()
	if len(spans) != 4 || spans[0].Name != "DELETE /api/timers/{id}" {
		t.Errorf("span names = %v", spans)
	}
}

func TestMiddleware_CorrelationID(t *testing.T) {
	h, _, _ := apiHarness(t)

	t.Run("new trace", func(t *testing.T) {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/command", strings.NewReader(`{}`)))
		if cid := rec.Header().Get("X-Correlation-ID"); len(cid) != 32 {
			t.Errorf("X-Correlation-ID = %q", cid)
		}
	})

	t.Run("caller trace continues", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/command", strings.NewReader(`{}`))
		req.Header.Set("traceparent", "00-4bf92f3577b34da6a3ce929d0e0e4736-00f067aa0ba902b7-01")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		if got := rec.Header().Get("X-Correlation-ID"); got != "4bf92f3577b34da6a3ce929d0e0e4736" {
			t.Errorf("X-Correlation-ID = %q", got)
		}
	})
}

func TestMiddleware_StatusOnSpan(t *testing.T) {
	h, _, exp := apiHarness(t)

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodDelete, "/api/timers/9", nil))

	spans := exp.GetSpans()
	if len(spans) != 1 {
		t.Fatalf("spans = %d", len(spans))
	}
	attrs := map[string]int64{}
	for _, a := range spans[0].Attributes {
		if a.Key == "http.response.status_code" {
			attrs[string(a.Key)] = a.Value.AsInt64()
		}
	}
	if attrs["http.response.status_code"] != http.StatusNotFound {
		t.Errorf("attributes = %v", spans[0].Attributes)
	}
}

func TestMiddleware_LogLevels(t *testing.T) {
	h, _, _ := apiHarness(t)
	buf := captureLogs(t, slog.LevelInfo)

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if buf.Len() != 0 {
		t.Errorf("probe logged at info: %s", buf)
	}

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/boom", nil))
	if !strings.Contains(buf.String(), "level=ERROR") || !strings.Contains(buf.String(), "status=500") {
		t.Errorf("server error log = %s", buf)
	}
}

func TestMiddleware_Unwrap(t *testing.T) {
	h, _, _ := apiHarness(t)
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/ws/events", nil))
}
