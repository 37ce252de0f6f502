package vector

import (
	"cmp"
	"context"
	"fmt"
	"math"
	"slices"

	"github.com/kirillkom/complaints-rag/internal/core/domain"
	"github.com/kirillkom/complaints-rag/internal/core/ports"
)

// Score returns the similarity of a and b. Cosine similarity of a zero vector is 0.
func Score(metric domain.SimilarityMetric, a, b []float32) float64 {
	var dot, normA, normB float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		normA += x * x
		normB += y * y
	}
	if metric == domain.MetricDot {
		return dot
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

// SortResults orders by descending score, then ascending chunk id.
func SortResults(results []domain.RetrievalResult) {
	slices.SortFunc(results, func(a, b domain.RetrievalResult) int {
		if c := cmp.Compare(b.Score, a.Score); c != 0 {
			return c
		}
		return cmp.Compare(a.ChunkID, b.ChunkID)
	})
}

// TopK scores every entry against query and returns at most k results in
// ranked order. k <= 0 or no entries yields an empty slice.
func TopK(metric domain.SimilarityMetric, query []float32, entries []domain.IndexEntry, k int) []domain.RetrievalResult {
	if k <= 0 || len(entries) == 0 {
		return []domain.RetrievalResult{}
	}
	results := make([]domain.RetrievalResult, len(entries))
	for i, entry := range entries {
		results[i] = domain.RetrievalResult{ChunkID: entry.Chunk.ID, Score: Score(metric, query, entry.Vector)}
	}
	SortResults(results)
	if len(results) > k {
		results = results[:k]
	}
	return results
}

// CheckQueryDimension rejects query vectors that cannot be compared with the index.
func CheckQueryDimension(op string, indexDim int, query []float32) error {
	if indexDim > 0 && len(query) != indexDim {
		return domain.NewBackendError(domain.BackendDimensionMismatch, op,
			fmt.Errorf("query dimension %d does not match index dimension %d", len(query), indexDim))
	}
	return nil
}

// EmbedChunks embeds chunk contents in order through the embedder's batching
// and checks that every vector has the same dimension.
func EmbedChunks(ctx context.Context, embedder ports.Embedder, chunks []domain.Chunk) ([]domain.IndexEntry, int, error) {
	if len(chunks) == 0 {
		return []domain.IndexEntry{}, embedder.Dimension(), nil
	}
	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Content
	}
	vectors, err := embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return nil, 0, err
	}
	if len(vectors) != len(chunks) {
		return nil, 0, domain.NewBackendError(domain.BackendUnreachable, "embed_chunks",
			fmt.Errorf("expected %d vectors, got %d", len(chunks), len(vectors)))
	}

	dim := len(vectors[0])
	entries := make([]domain.IndexEntry, len(chunks))
	for i, c := range chunks {
		if len(vectors[i]) != dim {
			return nil, 0, domain.NewBackendError(domain.BackendDimensionMismatch, "embed_chunks",
				fmt.Errorf("chunk %s has dimension %d, expected %d", c.ID, len(vectors[i]), dim))
		}
		c.Embedding = vectors[i]
		entries[i] = domain.IndexEntry{Chunk: c, Vector: vectors[i]}
	}
	return entries, dim, nil
}
