package ports

import (
	"context"
	"encoding/json"

	"github.com/kirillkom/complaints-rag/internal/core/domain"
)

// RecordSource reads normalized records from the external dataset.
type RecordSource interface {
	Name() string
	Records(ctx context.Context) ([]domain.Record, error)
}

// DocumentSource yields the documents that feed one index build.
type DocumentSource interface {
	LoadDocuments(ctx context.Context) ([]domain.Document, error)
}

// Chunker splits documents into overlapping chunks.
type Chunker interface {
	Split(docs []domain.Document) ([]domain.Chunk, error)
}

// Embedder maps text to vectors. Dimension is zero until the first call.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Dimension() int
	ModelID() string
}

// Generator sends a rendered prompt to the LLM and returns its raw response body.
type Generator interface {
	Generate(ctx context.Context, prompt string) (json.RawMessage, error)
	ModelID() string
}

// VectorIndex builds and opens persisted indexes.
type VectorIndex interface {
	Rebuild(ctx context.Context, chunks []domain.Chunk) (IndexHandle, error)
	Open(ctx context.Context) (IndexHandle, error)
}

// IndexHandle is a read-only view of one complete build. Safe for concurrent use.
type IndexHandle interface {
	Query(ctx context.Context, vector []float32, k int) ([]domain.RetrievalResult, error)
	Chunks(ctx context.Context, ids []string) ([]domain.Chunk, error)
	Info() domain.IndexInfo
	Close() error
}

// IndexEvents distributes rebuild requests and swap notifications between processes.
type IndexEvents interface {
	PublishRebuildRequested(ctx context.Context, reason string) error
	SubscribeRebuildRequested(ctx context.Context, handler func(context.Context, string) error) error
	PublishIndexSwapped(ctx context.Context, buildID string) error
	SubscribeIndexSwapped(ctx context.Context, handler func(context.Context, string) error) error
}
