package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "rag"

// HTTPServerMetrics owns the registry served on /metrics by the API process.
// Query and index metrics register into the same registry.
type HTTPServerMetrics struct {
	registry *prometheus.Registry

	requests    *prometheus.CounterVec
	latency     *prometheus.HistogramVec
	inFlight    prometheus.Gauge
	rateLimited *prometheus.CounterVec
}

func NewHTTPServerMetrics(service string) *HTTPServerMetrics {
	m := &HTTPServerMetrics{
		registry: prometheus.NewRegistry(),
		requests: prometheus.NewCounterVec(httpCounter("requests_total", "Total HTTP requests processed."),
			[]string{"service", "method", "path", "status"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds. Answers include the LLM call.",
			Buckets:   []float64{0.005, 0.025, 0.1, 0.5, 1, 2.5, 5, 15, 30, 60, 120, 300},
		}, []string{"service", "method", "path"}),
		inFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   namespace,
			Subsystem:   "http",
			Name:        "in_flight_requests",
			Help:        "Number of in-flight HTTP requests.",
			ConstLabels: prometheus.Labels{"service": service},
		}),
		rateLimited: prometheus.NewCounterVec(httpCounter("rate_limited_total", "Total HTTP requests rejected by the rate limiter."),
			[]string{"service", "path"}),
	}
	m.registry.MustRegister(m.requests, m.latency, m.inFlight, m.rateLimited)
	return m
}

func httpCounter(name, help string) prometheus.CounterOpts {
	return prometheus.CounterOpts{Namespace: namespace, Subsystem: "http", Name: name, Help: help}
}

// Registry lets the query and index metrics share the /metrics endpoint.
func (m *HTTPServerMetrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *HTTPServerMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *HTTPServerMetrics) Middleware(service string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		m.inFlight.Inc()
		defer m.inFlight.Dec()

		path := normalizePath(r.URL.Path)
		codeWriter := &codeRecorder{ResponseWriter: w, code: http.StatusOK}
		started := time.Now()
		next.ServeHTTP(codeWriter, r)

		m.latency.WithLabelValues(service, r.Method, path).Observe(time.Since(started).Seconds())
		m.requests.WithLabelValues(service, r.Method, path, strconv.Itoa(codeWriter.code)).Inc()
	})
}

func (m *HTTPServerMetrics) RecordRateLimited(service, path string) {
	m.rateLimited.WithLabelValues(service, normalizePath(path)).Inc()
}

var knownPaths = map[string]struct{}{
	"/healthz":          {},
	"/readyz":           {},
	"/metrics":          {},
	"/v1/answer":        {},
	"/v1/retrieve":      {},
	"/v1/index":         {},
	"/v1/index/rebuild": {},
}

// normalizePath keeps label cardinality bounded.
func normalizePath(path string) string {
	path = strings.TrimSuffix(path, "/")
	if _, ok := knownPaths[path]; ok {
		return path
	}
	return "other"
}

type codeRecorder struct {
	http.ResponseWriter
	code int
}

func (w *codeRecorder) WriteHeader(code int) {
	w.code = code
	w.ResponseWriter.WriteHeader(code)
}

func (w *codeRecorder) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}
