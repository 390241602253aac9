package observe

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

// statusServer mimics the app's status mux: a health check, a control route that
// answers 409, and nothing else.
func statusServer(t *testing.T) (http.Handler, func() metricdata.ResourceMetrics, *tracetest.InMemoryExporter) {
	t.Helper()
	m, reader := newTestMetrics(t)

	exp := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exp))
	orig := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() {
		otel.SetTracerProvider(orig)
		_ = tp.Shutdown(context.Background())
	})

	mux := http.NewServeMux()
	mux.HandleFunc("GET /readyz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})
	mux.HandleFunc("POST /session/start", func(w http.ResponseWriter, r *http.Request) {
		if CorrelationID(r.Context()) == "" {
			t.Error("handler context has no correlation id")
		}
		w.WriteHeader(http.StatusConflict)
	})
	return Middleware(m)(mux), func() metricdata.ResourceMetrics { return collect(t, reader) }, exp
}

func serve(h http.Handler, method, path string, header http.Header) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestMiddleware_RouteAndStatus(t *testing.T) {
	h, metrics, exp := statusServer(t)

	tests := []struct {
		method, path string
		wantRoute    string
		wantStatus   int
	}{
		{"GET", "/readyz", "GET /readyz", http.StatusServiceUnavailable},
		{"POST", "/session/start", "POST /session/start", http.StatusConflict},
		{"GET", "/session/abc123", unmatchedRoute, http.StatusNotFound},
	}
	for _, tt := range tests {
		exp.Reset()
		rec := serve(h, tt.method, tt.path, nil)
		if rec.Code != tt.wantStatus {
			t.Errorf("%s %s = %d, want %d", tt.method, tt.path, rec.Code, tt.wantStatus)
		}
		if cid := rec.Header().Get("X-Correlation-ID"); len(cid) != 32 {
			t.Errorf("%s %s: X-Correlation-ID = %q", tt.method, tt.path, cid)
		}

		spans := exp.GetSpans()
		if len(spans) != 1 {
			t.Fatalf("%s %s: %d spans", tt.method, tt.path, len(spans))
		}
		if want := "status " + tt.wantRoute; spans[0].Name != want {
			t.Errorf("span name = %q, want %q", spans[0].Name, want)
		}
		var gotStatus int64
		for _, a := range spans[0].Attributes {
			if a.Key == "http.response.status_code" {
				gotStatus = a.Value.AsInt64()
			}
		}
		if gotStatus != int64(tt.wantStatus) {
			t.Errorf("span status attribute = %d, want %d", gotStatus, tt.wantStatus)
		}
	}

	met := findMetric(metrics(), "parley.http.request.duration")
	if met == nil {
		t.Fatal("request duration not recorded")
	}
	hist, ok := met.Data.(metricdata.Histogram[float64])
	if !ok {
		t.Fatalf("metric data %T, want histogram", met.Data)
	}
	routes := map[string]uint64{}
	for _, dp := range hist.DataPoints {
		route, _ := dp.Attributes.Value(attribute.Key("route"))
		routes[route.AsString()] += dp.Count
	}
	for _, tt := range tests {
		if routes[tt.wantRoute] != 1 {
			t.Errorf("route %q count = %d, want 1", tt.wantRoute, routes[tt.wantRoute])
		}
	}
	if _, leaked := routes["/session/abc123"]; leaked {
		t.Error("raw path used as metric attribute")
	}
}

func TestMiddleware_ContinuesIncomingTrace(t *testing.T) {
	h, _, exp := statusServer(t)

	const traceID = "4bf92f3577b34da6a3ce929d0e0e4736"
	rec := serve(h, "POST", "/session/start", http.Header{
		"Traceparent": {"00-" + traceID + "-00f067aa0ba902b7-01"},
	})

	if got := rec.Header().Get("X-Correlation-ID"); got != traceID {
		t.Errorf("X-Correlation-ID = %q, want %q", got, traceID)
	}
	spans := exp.GetSpans()
	if len(spans) != 1 || spans[0].SpanContext.TraceID().String() != traceID {
		t.Fatalf("span did not join the incoming trace: %+v", spans)
	}
	if !spans[0].Parent.IsValid() || spans[0].Parent.SpanID().String() != "00f067aa0ba902b7" {
		t.Errorf("parent = %v", spans[0].Parent)
	}
}

func TestLogLevelFor(t *testing.T) {
	tests := []struct {
		route string
		want  slog.Level
	}{
		{"GET /metrics", slog.LevelDebug},
		{"GET /healthz", slog.LevelDebug},
		{"GET /readyz", slog.LevelDebug},
		{"POST /session/start", slog.LevelInfo},
		{unmatchedRoute, slog.LevelInfo},
	}
	for _, tt := range tests {
		if got := logLevelFor(tt.route); got != tt.want {
			t.Errorf("logLevelFor(%q) = %v, want %v", tt.route, got, tt.want)
		}
	}
}
