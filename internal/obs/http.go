package obs

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/trace"
)

// recorder captures the status and size of a response.
type recorder struct {
	http.ResponseWriter
	status int
	bytes  int64
}

func (r *recorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *recorder) Write(p []byte) (int, error) {
	n, err := r.ResponseWriter.Write(p)
	r.bytes += int64(n)
	return n, err
}

// observe serves the request and reports what was written. The chi route pattern is
// only known once routing ran, so it is read afterwards.
func observe(next http.Handler, w http.ResponseWriter, r *http.Request, done func(rec *recorder, route string, took time.Duration)) {
	rec := &recorder{ResponseWriter: w, status: http.StatusOK}
	start := time.Now()
	next.ServeHTTP(rec, r)

	route := ""
	if rc := chi.RouteContext(r.Context()); rc != nil {
		route = rc.RoutePattern()
	}
	done(rec, route, time.Since(start))
}

// HTTPObs records ops request counts and latency per route pattern.
type HTTPObs struct {
	Metrics *HTTPMetrics
}

func (o HTTPObs) Middleware(next http.Handler) http.Handler {
	if o.Metrics == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		observe(next, w, r, func(rec *recorder, route string, took time.Duration) {
			if route == "" {
				route = "unmatched"
			}
			o.Metrics.ReqTotal.WithLabelValues(r.Method, route, strconv.Itoa(rec.status)).Inc()
			o.Metrics.ReqDur.WithLabelValues(r.Method, route).Observe(DurationMillis(took))
		})
	})
}

// RequestLogger writes one http_request line per request. Probe and scrape traffic is
// logged at debug.
type RequestLogger struct {
	Logger zerolog.Logger
}

func (l RequestLogger) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		observe(next, w, r, func(rec *recorder, route string, took time.Duration) {
			level := zerolog.InfoLevel
			if route == "/metrics" || route == "/health/live" || route == "/health/ready" {
				level = zerolog.DebugLevel
			}
			evt := l.Logger.WithLevel(level).
				Str("method", r.Method).
				Str("route", route).
				Str("path", r.URL.Path).
				Int("status", rec.status).
				Int64("duration_ms", took.Milliseconds()).
				Int64("bytes", rec.bytes).
				Str("remote_addr", r.RemoteAddr)
			if id := middleware.GetReqID(r.Context()); id != "" {
				evt = evt.Str("request_id", id)
			}
			if span := trace.SpanContextFromContext(r.Context()); span.IsValid() {
				evt = evt.Str("trace_id", span.TraceID().String())
			}
			evt.Msg("http_request")
		})
	})
}
