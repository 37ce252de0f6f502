package ports

import (
	"context"

	"github.com/kirillkom/complaints-rag/internal/core/domain"
)

// Answerer is the inbound contract of the query/answer boundary.
type Answerer interface {
	Answer(ctx context.Context, question string) domain.Answer
	AnswerWithLimit(ctx context.Context, question string, limit int) domain.Answer
}

// ChunkRetriever returns ranked chunks for a question.
type ChunkRetriever interface {
	Retrieve(ctx context.Context, question string, k int) ([]domain.Chunk, error)
}

// IndexManager is the inbound contract for index lifecycle operations.
type IndexManager interface {
	Rebuild(ctx context.Context) (domain.IndexInfo, error)
	Reload(ctx context.Context) (domain.IndexInfo, error)
	Status() (domain.IndexInfo, bool)
}
