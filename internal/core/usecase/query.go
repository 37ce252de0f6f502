package usecase

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/kirillkom/complaints-rag/internal/core/domain"
	"github.com/kirillkom/complaints-rag/internal/core/ports"
)

var (
	_ ports.Answerer       = (*QueryService)(nil)
	_ ports.ChunkRetriever = (*QueryService)(nil)
	_ ports.ChunkRetriever = (*Retriever)(nil)
)

const (
	DefaultTopK                 = 3
	DefaultMaxConcurrentQueries = 8
	DefaultQueueTimeout         = 30 * time.Second
)

type QueryConfig struct {
	TopK          int
	MaxConcurrent int
	QueueTimeout  time.Duration
}

// QueryService answers questions against the serving index. Concurrent
// queries beyond MaxConcurrent wait up to QueueTimeout for a slot.
type QueryService struct {
	retriever    *Retriever
	composer     *AnswerComposer
	sem          *semaphore.Weighted
	topK         int
	queueTimeout time.Duration
	observer     Observer
	logger       *slog.Logger
}

func NewQueryService(
	retriever *Retriever,
	composer *AnswerComposer,
	cfg QueryConfig,
	observer Observer,
	logger *slog.Logger,
) *QueryService {
	if cfg.TopK < 0 {
		cfg.TopK = DefaultTopK
	}
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = DefaultMaxConcurrentQueries
	}
	if cfg.QueueTimeout <= 0 {
		cfg.QueueTimeout = DefaultQueueTimeout
	}
	if observer == nil {
		observer = noopObserver{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &QueryService{
		retriever:    retriever,
		composer:     composer,
		sem:          semaphore.NewWeighted(int64(cfg.MaxConcurrent)),
		topK:         cfg.TopK,
		queueTimeout: cfg.QueueTimeout,
		observer:     observer,
		logger:       logger,
	}
}

func (s *QueryService) TopK() int {
	return s.topK
}

func (s *QueryService) Answer(ctx context.Context, question string) domain.Answer {
	return s.AnswerWithLimit(ctx, question, s.topK)
}

// AnswerWithLimit never returns an error; every failure is reported through
// the failure variant of the answer.
func (s *QueryService) AnswerWithLimit(ctx context.Context, question string, limit int) domain.Answer {
	started := time.Now()
	answer := s.answer(ctx, question, limit)
	var kind domain.FailureKind
	if answer.Failure != nil {
		kind = answer.Failure.Kind
	}
	s.observer.AnswerCompleted(answer.OK, kind, time.Since(started))
	return answer
}

func (s *QueryService) answer(ctx context.Context, question string, limit int) domain.Answer {
	release, err := s.acquire(ctx)
	if err != nil {
		return s.fail(err)
	}
	defer release()

	chunks, err := s.retriever.Retrieve(ctx, question, limit)
	if err != nil {
		return s.fail(err)
	}
	if len(chunks) == 0 {
		return domain.FailedAnswer(domain.FailureNoContext, "no chunks retrieved for question")
	}
	return s.composer.Compose(ctx, question, chunks)
}

// Retrieve runs retrieval through the same worker pool as answers.
func (s *QueryService) Retrieve(ctx context.Context, question string, k int) ([]domain.Chunk, error) {
	release, err := s.acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer release()
	return s.retriever.Retrieve(ctx, question, k)
}

func (s *QueryService) Rank(ctx context.Context, question string, k int) ([]RankedChunk, error) {
	release, err := s.acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer release()
	return s.retriever.Rank(ctx, question, k)
}

var errOverloaded = errors.New("query pool is full")

// ErrOverloaded is returned by Retrieve and Rank when no worker slot frees up
// within the queue timeout.
var ErrOverloaded = domain.WrapError(domain.ErrTemporary, "acquire query slot", errOverloaded)

func (s *QueryService) acquire(ctx context.Context) (func(), error) {
	waitCtx, cancel := context.WithTimeout(ctx, s.queueTimeout)
	defer cancel()
	if err := s.sem.Acquire(waitCtx, 1); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, ErrOverloaded
	}
	return func() { s.sem.Release(1) }, nil
}

func (s *QueryService) fail(err error) domain.Answer {
	kind := failureKind(err)
	if errors.Is(err, errOverloaded) {
		kind = domain.FailureOverloaded
	}
	s.logger.Warn("answer_failed", "kind", string(kind), "error", err)
	return domain.FailedAnswer(kind, err.Error())
}
