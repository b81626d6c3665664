package observability

import (
	"crypto/rand"
	"encoding/hex"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const traceHeader = "X-Trace-ID"

var httpRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
	Name: "askdb_http_requests_total",
	Help: "HTTP requests served, labeled by method, route and status code.",
}, []string{"method", "path", "status"})

var httpRequestDurationSeconds = prometheus.NewHistogramVec(prometheus.HistogramOpts{
	Name:    "askdb_http_request_duration_seconds",
	Help:    "HTTP request latency in seconds.",
	Buckets: prometheus.DefBuckets,
}, []string{"method", "path", "status"})

var httpInFlight = prometheus.NewGauge(prometheus.GaugeOpts{
	Name: "askdb_http_in_flight_requests",
	Help: "Requests currently being served.",
})

func init() {
	prometheus.MustRegister(httpRequestsTotal, httpRequestDurationSeconds, httpInFlight)
}

// TraceMiddleware assigns every request a trace id, honoring one supplied by
// the caller, and echoes it back in the response header.
func TraceMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		traceID := strings.TrimSpace(r.Header.Get(traceHeader))
		if traceID == "" {
			traceID = newTraceID()
		}
		w.Header().Set(traceHeader, traceID)
		next.ServeHTTP(w, r.WithContext(ContextWithTraceID(r.Context(), traceID)))
	})
}

// MetricsMiddleware records request totals, latency, and the in-flight gauge.
func MetricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		httpInFlight.Inc()
		defer httpInFlight.Dec()

		meter := newResponseMeter(w)
		start := time.Now()
		next.ServeHTTP(meter, r)

		route := metricsPath(r.URL.Path)
		code := strconv.Itoa(meter.code)
		httpRequestsTotal.WithLabelValues(r.Method, route, code).Inc()
		httpRequestDurationSeconds.WithLabelValues(r.Method, route, code).Observe(time.Since(start).Seconds())
	})
}

// LoggingMiddleware writes one structured line per request.
func LoggingMiddleware(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			meter := newResponseMeter(w)
			start := time.Now()
			next.ServeHTTP(meter, r)
			logger.InfoContext(r.Context(), "http_request",
				slog.String("trace_id", TraceIDFromContext(r.Context())),
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Int("status", meter.code),
				slog.Int("bytes", meter.written),
				slog.Int64("duration_ms", time.Since(start).Milliseconds()),
				slog.String("remote_addr", r.RemoteAddr),
			)
		})
	}
}

// metricsPath collapses dynamic route segments so table names do not blow up
// label cardinality.
func metricsPath(path string) string {
	for _, prefix := range []string{"/v1/tables/", "/v1/ingest/"} {
		if strings.HasPrefix(path, prefix) && len(path) > len(prefix) {
			return prefix + ":table"
		}
	}
	return path
}

// responseMeter captures the status code and body size. It forwards Flush so
// SSE responses keep streaming through the middleware chain.
type responseMeter struct {
	http.ResponseWriter
	code    int
	written int
}

func newResponseMeter(w http.ResponseWriter) *responseMeter {
	return &responseMeter{ResponseWriter: w, code: http.StatusOK}
}

func (m *responseMeter) WriteHeader(code int) {
	m.code = code
	m.ResponseWriter.WriteHeader(code)
}

func (m *responseMeter) Write(p []byte) (int, error) {
	n, err := m.ResponseWriter.Write(p)
	m.written += n
	return n, err
}

func (m *responseMeter) Flush() {
	if f, ok := m.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (m *responseMeter) Unwrap() http.ResponseWriter { return m.ResponseWriter }

func newTraceID() string {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return strconv.FormatInt(time.Now().UnixNano(), 16)
	}
	return hex.EncodeToString(buf)
}
