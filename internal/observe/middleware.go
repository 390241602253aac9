package observe

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
)

// unmatchedRoute labels requests that no mux pattern matched, so arbitrary
// paths never become metric attributes.
const unmatchedRoute = "unmatched"

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

// pollRoutes are hit continuously by scrapers and orchestrators.
var pollRoutes = []string{"GET /metrics", "GET /healthz", "GET /readyz"}

func logLevelFor(route string) slog.Level {
	for _, p := range pollRoutes {
		if route == p {
			return slog.LevelDebug
		}
	}
	return slog.LevelInfo
}

// routeOf returns the ServeMux pattern that served r, falling back to
// [unmatchedRoute].
func routeOf(r *http.Request) string {
	if p := strings.TrimSpace(r.Pattern); p != "" {
		return p
	}
	return unmatchedRoute
}

// Middleware instruments the status server. Each request continues the
// caller's W3C trace (or starts one) and runs inside a server span. The trace
// id is echoed as X-Correlation-ID, and latency is recorded in
// [Metrics.HTTPRequestDuration] labelled by route and status.
//
// The route label is the mux pattern, which is only known after the inner
// mux has run; the span is renamed once it is.
func Middleware(m *Metrics) func(http.Handler) http.Handler {
	prop := propagation.TraceContext{}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			ctx := prop.Extract(r.Context(), propagation.HeaderCarrier(r.Header))
			ctx, span := StartSpan(ctx, "status "+r.Method,
				trace.WithSpanKind(trace.SpanKindServer),
				trace.WithAttributes(
					semconv.HTTPRequestMethodKey.String(r.Method),
					semconv.URLPath(r.URL.Path),
				),
			)
			defer span.End()

			if cid := CorrelationID(ctx); cid != "" {
				w.Header().Set("X-Correlation-ID", cid)
			}
			prop.Inject(ctx, propagation.HeaderCarrier(w.Header()))

			sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
			req := r.WithContext(ctx)
			next.ServeHTTP(sw, req)

			route := routeOf(req)
			elapsed := time.Since(start)
			span.SetName("status " + route)
			span.SetAttributes(
				semconv.HTTPRoute(route),
				semconv.HTTPResponseStatusCode(sw.status),
			)
			m.HTTPRequestDuration.Record(ctx, elapsed.Seconds(),
				metric.WithAttributes(
					attribute.String("route", route),
					attribute.Int("status", sw.status),
				),
			)

			Logger(ctx).LogAttrs(ctx, logLevelFor(route), "status server: request",
				slog.String("route", route),
				slog.Int("status", sw.status),
				slog.Duration("elapsed", elapsed),
			)
		})
	}
}
