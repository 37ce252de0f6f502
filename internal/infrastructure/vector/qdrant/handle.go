package qdrant

import (
	"context"
	"fmt"

	"github.com/kirillkom/complaints-rag/internal/core/domain"
	"github.com/kirillkom/complaints-rag/internal/infrastructure/vector"
)

// tieSlack extra candidates are fetched so that equal scores straddling the
// k-th position can be re-ordered by chunk id. When the last candidate still
// ties the k-th score the fetch grows until it does not or the collection is
// exhausted.
const tieSlack = 8

// handle is pinned to one concrete collection, not the alias, so a later
// alias switch never changes what an existing handle serves.
type handle struct {
	client     *Client
	collection string
	info       domain.IndexInfo
}

var excludeMeta = map[string]any{
	"must_not": []map[string]any{
		{"key": payloadKind, "match": map[string]any{"value": kindMeta}},
	},
}

func (h *handle) Info() domain.IndexInfo {
	return h.info
}

func (h *handle) Query(ctx context.Context, query []float32, k int) ([]domain.RetrievalResult, error) {
	if k <= 0 || h.info.Entries == 0 {
		return []domain.RetrievalResult{}, nil
	}
	if err := vector.CheckQueryDimension("qdrant query", h.info.Dimension, query); err != nil {
		return nil, err
	}

	limit := k + tieSlack
	for {
		results, err := h.search(ctx, query, limit)
		if err != nil {
			return nil, err
		}
		vector.SortResults(results)
		if len(results) < limit || limit >= h.info.Entries || !tiesPastWindow(results, k) {
			if len(results) > k {
				results = results[:k]
			}
			return results, nil
		}
		limit *= 2
	}
}

// tiesPastWindow reports whether the lowest fetched score still equals the
// k-th score, in which case unfetched points may tie too.
func tiesPastWindow(sorted []domain.RetrievalResult, k int) bool {
	if len(sorted) <= k {
		return false
	}
	return sorted[len(sorted)-1].Score >= sorted[k-1].Score
}

func (h *handle) search(ctx context.Context, query []float32, limit int) ([]domain.RetrievalResult, error) {
	points, err := h.client.Search(ctx, h.collection, query, limit, excludeMeta)
	if err != nil {
		return nil, domain.WrapError(domain.ErrIndex, "qdrant query", err)
	}
	results := make([]domain.RetrievalResult, 0, len(points))
	for _, p := range points {
		id := stringPayload(p.Payload, payloadChunkID)
		if id == "" {
			return nil, domain.WrapError(domain.ErrIndex, "qdrant query", fmt.Errorf("point %v has no chunk id", p.ID))
		}
		results = append(results, domain.RetrievalResult{ChunkID: id, Score: p.Score})
	}
	return results, nil
}

func (h *handle) Chunks(ctx context.Context, ids []string) ([]domain.Chunk, error) {
	if len(ids) == 0 {
		return []domain.Chunk{}, nil
	}
	pointIDs := make([]string, len(ids))
	for i, id := range ids {
		pointIDs[i] = PointID(id)
	}
	points, err := h.client.Retrieve(ctx, h.collection, pointIDs)
	if err != nil {
		return nil, domain.WrapError(domain.ErrIndex, "qdrant chunks", err)
	}

	byID := make(map[string]domain.Chunk, len(points))
	for _, p := range points {
		c := domain.Chunk{
			ID:         stringPayload(p.Payload, payloadChunkID),
			DocumentID: stringPayload(p.Payload, "document_id"),
			Content:    stringPayload(p.Payload, "content"),
		}
		c.StartOffset, _ = intPayload(p.Payload, "start_offset")
		if md, ok := p.Payload["metadata"].(map[string]any); ok {
			c.Metadata = md
		}
		byID[c.ID] = c
	}

	out := make([]domain.Chunk, 0, len(ids))
	for _, id := range ids {
		c, ok := byID[id]
		if !ok {
			return nil, domain.WrapError(domain.ErrIndex, "qdrant chunks", fmt.Errorf("unknown chunk %q", id))
		}
		out = append(out, c)
	}
	return out, nil
}

func (h *handle) Close() error {
	return nil
}
