package ollama

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/kirillkom/complaints-rag/internal/core/domain"
)

const DefaultEmbedBatchSize = 32

// Embedder calls /api/embed. The first successful response fixes the vector
// dimension for the lifetime of the instance.
type Embedder struct {
	client    *Client
	model     string
	batchSize int
	dimension atomic.Int64
}

func NewEmbedder(client *Client, model string, batchSize int) *Embedder {
	if batchSize <= 0 {
		batchSize = DefaultEmbedBatchSize
	}
	return &Embedder{client: client, model: model, batchSize: batchSize}
}

func (e *Embedder) ModelID() string {
	return e.model
}

func (e *Embedder) Dimension() int {
	return int(e.dimension.Load())
}

func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vectors, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// EmbedBatch returns one vector per input, in input order.
func (e *Embedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += e.batchSize {
		end := min(start+e.batchSize, len(texts))
		vectors, err := e.embedOnce(ctx, texts[start:end])
		if err != nil {
			return nil, err
		}
		out = append(out, vectors...)
	}
	return out, nil
}

func (e *Embedder) embedOnce(ctx context.Context, batch []string) ([][]float32, error) {
	request := map[string]any{
		"model": e.model,
		"input": batch,
	}
	var response struct {
		Embeddings [][]float32 `json:"embeddings"`
	}
	if err := e.client.postJSON(ctx, "embed", "/api/embed", request, &response); err != nil {
		return nil, err
	}
	if len(response.Embeddings) != len(batch) {
		return nil, domain.NewBackendError(domain.BackendUnreachable, "embed",
			fmt.Errorf("expected %d embeddings, got %d", len(batch), len(response.Embeddings)))
	}
	for _, vector := range response.Embeddings {
		if err := e.checkDimension(len(vector)); err != nil {
			return nil, err
		}
	}
	return response.Embeddings, nil
}

func (e *Embedder) checkDimension(n int) error {
	if n == 0 {
		return domain.NewBackendError(domain.BackendDimensionMismatch, "embed", fmt.Errorf("empty embedding vector"))
	}
	if e.dimension.CompareAndSwap(0, int64(n)) {
		return nil
	}
	if want := e.dimension.Load(); want != int64(n) {
		return domain.NewBackendError(domain.BackendDimensionMismatch, "embed",
			fmt.Errorf("expected dimension %d, got %d", want, n))
	}
	return nil
}
