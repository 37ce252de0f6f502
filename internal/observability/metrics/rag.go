package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/kirillkom/complaints-rag/internal/core/domain"
)

// RAGMetrics records answer, retrieval and index lifecycle measurements.
// It satisfies usecase.Observer.
type RAGMetrics struct {
	service string

	answersTotal      *prometheus.CounterVec
	answerDuration    *prometheus.HistogramVec
	retrievedChunks   *prometheus.HistogramVec
	retrievalDuration *prometheus.HistogramVec
	rebuildsTotal     *prometheus.CounterVec
	rebuildDuration   *prometheus.HistogramVec
	indexEntries      prometheus.Gauge
	indexDimension    prometheus.Gauge
	indexSwapsTotal   prometheus.Counter
	backendRetries    *prometheus.CounterVec
}

func NewRAGMetrics(service string, registerer prometheus.Registerer) *RAGMetrics {
	serviceLabel := prometheus.Labels{"service": service}

	answersTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "query",
			Name:      "answers_total",
			Help:      "Total answers by outcome and failure kind.",
		},
		[]string{"service", "status", "failure"},
	)
	answerDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "query",
			Name:      "answer_duration_seconds",
			Help:      "Answer duration in seconds, including queueing.",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30, 60, 120},
		},
		[]string{"service", "status"},
	)
	retrievedChunks := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "query",
			Name:      "retrieved_chunks",
			Help:      "Distribution of retrieved chunks per retrieval.",
			Buckets:   []float64{0, 1, 2, 3, 5, 8, 13, 21},
		},
		[]string{"service"},
	)
	retrievalDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "query",
			Name:      "retrieval_duration_seconds",
			Help:      "Question embedding plus index lookup duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service"},
	)
	rebuildsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "index",
			Name:      "rebuilds_total",
			Help:      "Total index rebuilds by status.",
		},
		[]string{"service", "status"},
	)
	rebuildDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "index",
			Name:      "rebuild_duration_seconds",
			Help:      "Index rebuild duration in seconds by status.",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800},
		},
		[]string{"service", "status"},
	)
	indexEntries := prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace:   namespace,
		Subsystem:   "index",
		Name:        "entries",
		Help:        "Entries in the serving index.",
		ConstLabels: serviceLabel,
	})
	indexDimension := prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace:   namespace,
		Subsystem:   "index",
		Name:        "dimension",
		Help:        "Embedding dimension of the serving index.",
		ConstLabels: serviceLabel,
	})
	indexSwapsTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace:   namespace,
		Subsystem:   "index",
		Name:        "swaps_total",
		Help:        "Total serving index swaps.",
		ConstLabels: serviceLabel,
	})
	backendRetries := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "backend",
			Name:      "retries_total",
			Help:      "Total retried backend calls by operation.",
		},
		[]string{"service", "operation"},
	)

	registerer.MustRegister(
		answersTotal,
		answerDuration,
		retrievedChunks,
		retrievalDuration,
		rebuildsTotal,
		rebuildDuration,
		indexEntries,
		indexDimension,
		indexSwapsTotal,
		backendRetries,
	)

	return &RAGMetrics{
		service:           service,
		answersTotal:      answersTotal,
		answerDuration:    answerDuration,
		retrievedChunks:   retrievedChunks,
		retrievalDuration: retrievalDuration,
		rebuildsTotal:     rebuildsTotal,
		rebuildDuration:   rebuildDuration,
		indexEntries:      indexEntries,
		indexDimension:    indexDimension,
		indexSwapsTotal:   indexSwapsTotal,
		backendRetries:    backendRetries,
	}
}

func (m *RAGMetrics) AnswerCompleted(ok bool, failure domain.FailureKind, elapsed time.Duration) {
	status := statusLabel(ok)
	kind := string(failure)
	if kind == "" {
		kind = "none"
	}
	m.answersTotal.WithLabelValues(m.service, status, kind).Inc()
	m.answerDuration.WithLabelValues(m.service, status).Observe(elapsed.Seconds())
}

func (m *RAGMetrics) RetrievalCompleted(results int, elapsed time.Duration) {
	m.retrievedChunks.WithLabelValues(m.service).Observe(float64(results))
	m.retrievalDuration.WithLabelValues(m.service).Observe(elapsed.Seconds())
}

func (m *RAGMetrics) RebuildCompleted(_ domain.IndexInfo, elapsed time.Duration, err error) {
	status := statusLabel(err == nil)
	m.rebuildsTotal.WithLabelValues(m.service, status).Inc()
	m.rebuildDuration.WithLabelValues(m.service, status).Observe(elapsed.Seconds())
}

func (m *RAGMetrics) IndexSwapped(info domain.IndexInfo) {
	m.indexSwapsTotal.Inc()
	m.indexEntries.Set(float64(info.Entries))
	m.indexDimension.Set(float64(info.Dimension))
}

// RecordRetry is meant for resilience.Executor.OnRetry.
func (m *RAGMetrics) RecordRetry(operation string) {
	if operation == "" {
		operation = "unknown"
	}
	m.backendRetries.WithLabelValues(m.service, operation).Inc()
}

func statusLabel(ok bool) string {
	if ok {
		return "success"
	}
	return "error"
}
