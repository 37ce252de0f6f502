package sqlite

import (
	"context"
	"fmt"

	"github.com/kirillkom/complaints-rag/internal/core/domain"
	"github.com/kirillkom/complaints-rag/internal/infrastructure/vector"
)

// handle serves one build from memory. It never changes after construction.
type handle struct {
	info    domain.IndexInfo
	entries []domain.IndexEntry
	byID    map[string]int
}

func newHandle(info domain.IndexInfo, entries []domain.IndexEntry) *handle {
	byID := make(map[string]int, len(entries))
	for i, e := range entries {
		byID[e.Chunk.ID] = i
	}
	info.Entries = len(entries)
	return &handle{info: info, entries: entries, byID: byID}
}

func (h *handle) Info() domain.IndexInfo {
	return h.info
}

func (h *handle) Query(ctx context.Context, query []float32, k int) ([]domain.RetrievalResult, error) {
	if k <= 0 || len(h.entries) == 0 {
		return []domain.RetrievalResult{}, nil
	}
	if err := vector.CheckQueryDimension("sqlite query", h.info.Dimension, query); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return vector.TopK(h.info.Metric, query, h.entries, k), nil
}

func (h *handle) Chunks(_ context.Context, ids []string) ([]domain.Chunk, error) {
	out := make([]domain.Chunk, 0, len(ids))
	for _, id := range ids {
		i, ok := h.byID[id]
		if !ok {
			return nil, domain.WrapError(domain.ErrIndex, "sqlite chunks", fmt.Errorf("unknown chunk %q", id))
		}
		out = append(out, h.entries[i].Chunk)
	}
	return out, nil
}

// Close is a no-op: the build is held in memory and in-flight queries that
// still reference the handle must be able to finish after a swap.
func (h *handle) Close() error {
	return nil
}
