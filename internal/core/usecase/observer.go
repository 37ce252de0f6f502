package usecase

import (
	"time"

	"github.com/kirillkom/complaints-rag/internal/core/domain"
)

// Observer receives query and index lifecycle measurements. The Prometheus
// implementation lives in observability/metrics.
type Observer interface {
	AnswerCompleted(ok bool, failure domain.FailureKind, elapsed time.Duration)
	RetrievalCompleted(results int, elapsed time.Duration)
	RebuildCompleted(info domain.IndexInfo, elapsed time.Duration, err error)
	IndexSwapped(info domain.IndexInfo)
}

type noopObserver struct{}

func (noopObserver) AnswerCompleted(bool, domain.FailureKind, time.Duration) {}
func (noopObserver) RetrievalCompleted(int, time.Duration)                   {}
func (noopObserver) RebuildCompleted(domain.IndexInfo, time.Duration, error) {}
func (noopObserver) IndexSwapped(domain.IndexInfo)                           {}
