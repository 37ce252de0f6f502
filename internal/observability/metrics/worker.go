package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// WorkerMetrics covers the rebuild worker's request handling.
type WorkerMetrics struct {
	registry *prometheus.Registry

	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	inFlight        prometheus.Gauge
}

func NewWorkerMetrics(service string) *WorkerMetrics {
	registry := prometheus.NewRegistry()

	requestsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "worker",
			Name:      "rebuild_requests_total",
			Help:      "Total handled rebuild requests by status.",
		},
		[]string{"service", "status"},
	)
	requestDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "worker",
			Name:      "rebuild_request_duration_seconds",
			Help:      "Rebuild request handling duration in seconds by status.",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800},
		},
		[]string{"service", "status"},
	)
	inFlight := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "worker",
			Name:      "rebuild_in_flight",
			Help:      "Number of rebuild requests being handled.",
			ConstLabels: prometheus.Labels{
				"service": service,
			},
		},
	)

	registry.MustRegister(requestsTotal, requestDuration, inFlight)

	return &WorkerMetrics{
		registry:        registry,
		requestsTotal:   requestsTotal,
		requestDuration: requestDuration,
		inFlight:        inFlight,
	}
}

func (m *WorkerMetrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *WorkerMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *WorkerMetrics) StartRebuild() {
	m.inFlight.Inc()
}

func (m *WorkerMetrics) FinishRebuild(service string, duration time.Duration, err error) {
	m.inFlight.Dec()

	status := statusLabel(err == nil)
	m.requestsTotal.WithLabelValues(service, status).Inc()
	m.requestDuration.WithLabelValues(service, status).Observe(duration.Seconds())
}
