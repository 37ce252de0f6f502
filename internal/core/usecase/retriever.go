package usecase

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/kirillkom/complaints-rag/internal/core/domain"
	"github.com/kirillkom/complaints-rag/internal/core/ports"
)

// RankedChunk is a retrieved chunk with its similarity score.
type RankedChunk struct {
	Chunk domain.Chunk `json:"chunk"`
	Score float64      `json:"score"`
}

// Retriever embeds the question with the same embedder that built the index
// and returns the top chunks from the serving handle.
type Retriever struct {
	embedder ports.Embedder
	holder   *IndexHolder
	observer Observer
}

func NewRetriever(embedder ports.Embedder, holder *IndexHolder, observer Observer) *Retriever {
	if observer == nil {
		observer = noopObserver{}
	}
	return &Retriever{embedder: embedder, holder: holder, observer: observer}
}

func (r *Retriever) Retrieve(ctx context.Context, question string, k int) ([]domain.Chunk, error) {
	ranked, err := r.Rank(ctx, question, k)
	if err != nil {
		return nil, err
	}
	chunks := make([]domain.Chunk, len(ranked))
	for i, rc := range ranked {
		chunks[i] = rc.Chunk
	}
	return chunks, nil
}

// Rank returns chunks in ranked order. An empty question, k <= 0 or an empty
// index yields an empty slice without calling the embedder.
func (r *Retriever) Rank(ctx context.Context, question string, k int) ([]RankedChunk, error) {
	handle := r.holder.Load()
	if handle == nil {
		return nil, domain.WrapError(domain.ErrIndex, "retrieve", errors.New("no index loaded"))
	}
	if strings.TrimSpace(question) == "" || k <= 0 || handle.Info().Entries == 0 {
		return []RankedChunk{}, nil
	}

	started := time.Now()
	vec, err := r.embedder.Embed(ctx, question)
	if err != nil {
		return nil, err
	}
	results, err := handle.Query(ctx, vec, k)
	if err != nil {
		return nil, err
	}

	ids := make([]string, len(results))
	for i, res := range results {
		ids[i] = res.ChunkID
	}
	chunks, err := handle.Chunks(ctx, ids)
	if err != nil {
		return nil, err
	}

	ranked := make([]RankedChunk, len(chunks))
	for i, c := range chunks {
		ranked[i] = RankedChunk{Chunk: c, Score: results[i].Score}
	}
	r.observer.RetrievalCompleted(len(ranked), time.Since(started))
	return ranked, nil
}
