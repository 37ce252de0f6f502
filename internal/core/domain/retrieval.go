package domain

import "time"

type SimilarityMetric string

const (
	MetricCosine SimilarityMetric = "cosine"
	MetricDot    SimilarityMetric = "dot"
)

func ParseSimilarityMetric(raw string) (SimilarityMetric, bool) {
	switch SimilarityMetric(raw) {
	case MetricCosine:
		return MetricCosine, true
	case MetricDot, "inner_product", "ip":
		return MetricDot, true
	default:
		return "", false
	}
}

type RetrievalResult struct {
	ChunkID string  `json:"chunk_id"`
	Score   float64 `json:"score"`
}

// IndexInfo describes a persisted build.
type IndexInfo struct {
	BuildID          string           `json:"build_id"`
	EmbeddingModelID string           `json:"embedding_model_id"`
	Metric           SimilarityMetric `json:"metric"`
	Dimension        int              `json:"dimension"`
	Entries          int              `json:"entries"`
	CreatedAt        time.Time        `json:"created_at"`
}
