package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/kirillkom/complaints-rag/internal/core/domain"
)

func newQueryService(t *testing.T, holder *IndexHolder, emb *embedderFake, gen *generatorFake, cfg QueryConfig, obs Observer) *QueryService {
	t.Helper()
	return NewQueryService(NewRetriever(emb, holder, obs), newComposer(t, gen, ComposerConfig{}), cfg, obs, nil)
}

func TestRetrieveWithoutIndexFails(t *testing.T) {
	r := NewRetriever(&embedderFake{}, NewIndexHolder(), nil)
	_, err := r.Retrieve(context.Background(), "q", 3)
	if !errors.Is(err, domain.ErrIndex) {
		t.Fatalf("expected ErrIndex, got %v", err)
	}
}

func TestRetrieveShortCircuits(t *testing.T) {
	cases := []struct {
		name     string
		handle   *handleFake
		question string
		k        int
	}{
		{"empty question", newHandleFake("b1", "x"), "   ", 3},
		{"zero k", newHandleFake("b1", "x"), "q", 0},
		{"empty index", newHandleFake("b1"), "q", 3},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			emb := &embedderFake{}
			chunks, err := NewRetriever(emb, holderWith(tc.handle), nil).Retrieve(context.Background(), tc.question, tc.k)
			if err != nil {
				t.Fatalf("Retrieve() error = %v", err)
			}
			if chunks == nil || len(chunks) != 0 {
				t.Fatalf("expected empty non-nil result, got %#v", chunks)
			}
			if emb.calls.Load() != 0 {
				t.Fatalf("embedder must not be called, got %d calls", emb.calls.Load())
			}
		})
	}
}

func TestRankKeepsOrderAndScores(t *testing.T) {
	r := NewRetriever(&embedderFake{}, holderWith(newHandleFake("b1", "one", "two", "three")), nil)
	ranked, err := r.Rank(context.Background(), "q", 2)
	if err != nil {
		t.Fatalf("Rank() error = %v", err)
	}
	if len(ranked) != 2 || ranked[0].Chunk.Content != "one" || ranked[1].Chunk.Content != "two" {
		t.Fatalf("unexpected ranking: %+v", ranked)
	}
	if ranked[0].Score < ranked[1].Score {
		t.Fatalf("scores must be non-increasing: %+v", ranked)
	}
}

func TestAnswerUsesTopK(t *testing.T) {
	gen := &generatorFake{body: `{"response":"ok"}`}
	holder := holderWith(newHandleFake("b1", "one", "two", "three", "four"))
	svc := newQueryService(t, holder, &embedderFake{}, gen, QueryConfig{TopK: 2}, nil)

	answer := svc.Answer(context.Background(), "q")
	if !answer.OK || len(answer.SourceChunks) != 2 {
		t.Fatalf("expected ok answer with 2 sources, got %+v", answer)
	}
	limited := svc.AnswerWithLimit(context.Background(), "q", 4)
	if len(limited.SourceChunks) != 4 {
		t.Fatalf("expected 4 sources, got %d", len(limited.SourceChunks))
	}
}

func TestAnswerNoContextFallback(t *testing.T) {
	gen := &generatorFake{body: `{"response":"should not be used"}`}
	obs := &observerFake{}
	svc := newQueryService(t, holderWith(newHandleFake("b1")), &embedderFake{}, gen, QueryConfig{TopK: 3}, obs)

	answer := svc.Answer(context.Background(), "q")
	if answer.OK || answer.Failure == nil || answer.Failure.Kind != domain.FailureNoContext {
		t.Fatalf("expected no_context failure, got %+v", answer)
	}
	if answer.Text != domain.FallbackAnswerText {
		t.Fatalf("text = %q", answer.Text)
	}
	if len(gen.prompts) != 0 {
		t.Fatalf("generator must not be called without context")
	}
	if len(obs.oks) != 1 || obs.oks[0] || obs.answers[0] != domain.FailureNoContext {
		t.Fatalf("observer not notified correctly: %+v", obs)
	}
}

func TestZeroTopKSkipsRetrieval(t *testing.T) {
	gen := &generatorFake{body: `{"response":"ok"}`}
	emb := &embedderFake{err: errors.New("must not embed")}
	svc := newQueryService(t, holderWith(newHandleFake("b1", "x")), emb, gen, QueryConfig{}, nil)

	if svc.TopK() != 0 {
		t.Fatalf("TopK() = %d, want 0", svc.TopK())
	}
	answer := svc.Answer(context.Background(), "q")
	if answer.OK || answer.Failure.Kind != domain.FailureNoContext {
		t.Fatalf("expected no_context for top_k=0, got %+v", answer)
	}
	if len(gen.prompts) != 0 {
		t.Fatalf("generator must not be called for top_k=0")
	}
}

func TestAnswerBackendFailuresBecomeFailedAnswers(t *testing.T) {
	embErr := domain.NewBackendError(domain.BackendDimensionMismatch, "embed", errors.New("got 4, want 3"))
	svc := newQueryService(t, holderWith(newHandleFake("b1", "x")), &embedderFake{err: embErr}, &generatorFake{}, QueryConfig{TopK: 3}, nil)
	answer := svc.Answer(context.Background(), "q")
	if answer.OK || answer.Failure.Kind != domain.FailureDimensionMismatch {
		t.Fatalf("expected dimension_mismatch, got %+v", answer)
	}

	svc = newQueryService(t, NewIndexHolder(), &embedderFake{}, &generatorFake{}, QueryConfig{TopK: 3}, nil)
	answer = svc.Answer(context.Background(), "q")
	if answer.OK || answer.Failure.Kind != domain.FailureIndexUnavailable {
		t.Fatalf("expected index_unavailable, got %+v", answer)
	}
}

func TestAnswerOverloadedWhenPoolIsFull(t *testing.T) {
	gen := &generatorFake{body: `{"response":"ok"}`, block: make(chan struct{})}
	svc := newQueryService(t, holderWith(newHandleFake("b1", "x")), &embedderFake{}, gen,
		QueryConfig{TopK: 3, MaxConcurrent: 1, QueueTimeout: 20 * time.Millisecond}, nil)

	done := make(chan struct{})
	go func() {
		defer close(done)
		svc.Answer(context.Background(), "first")
	}()
	deadline := time.Now().Add(2 * time.Second)
	for gen.lastPrompt() == "" && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}

	answer := svc.Answer(context.Background(), "second")
	if answer.OK || answer.Failure.Kind != domain.FailureOverloaded {
		t.Fatalf("expected overloaded, got %+v", answer)
	}
	if _, err := svc.Retrieve(context.Background(), "third", 1); !errors.Is(err, ErrOverloaded) {
		t.Fatalf("expected ErrOverloaded, got %v", err)
	}

	close(gen.block)
	<-done
}

func TestAnswerCanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	gen := &generatorFake{body: `{"response":"ok"}`, block: make(chan struct{})}
	svc := newQueryService(t, holderWith(newHandleFake("b1", "x")), &embedderFake{}, gen, QueryConfig{TopK: 3, MaxConcurrent: 1}, nil)

	answer := svc.Answer(ctx, "q")
	if answer.OK || answer.Failure.Kind != domain.FailureCanceled {
		t.Fatalf("expected canceled, got %+v", answer)
	}
}

func TestRetrieveUsesSwappedHandle(t *testing.T) {
	old := newHandleFake("b1", "old")
	holder := holderWith(old)
	r := NewRetriever(&embedderFake{}, holder, nil)

	if prev := holder.Swap(newHandleFake("b2", "new")); prev != old {
		t.Fatalf("Swap() must return the replaced handle")
	}
	chunks, err := r.Retrieve(context.Background(), "q", 1)
	if err != nil {
		t.Fatalf("Retrieve() error = %v", err)
	}
	if chunks[0].Content != "new" {
		t.Fatalf("expected new build after swap, got %q", chunks[0].Content)
	}
}
