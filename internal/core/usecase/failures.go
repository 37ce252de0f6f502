package usecase

import (
	"context"
	"errors"

	"github.com/kirillkom/complaints-rag/internal/core/domain"
)

// failureKind maps an error from the query path onto the answer failure taxonomy.
func failureKind(err error) domain.FailureKind {
	if kind, ok := domain.BackendKind(err); ok {
		switch kind {
		case domain.BackendTimeout:
			return domain.FailureBackendTimeout
		case domain.BackendUnreachable:
			return domain.FailureBackendUnreachable
		case domain.BackendDimensionMismatch:
			return domain.FailureDimensionMismatch
		case domain.BackendInvalidModel:
			return domain.FailureInvalidModel
		}
	}
	switch {
	case errors.Is(err, context.Canceled):
		return domain.FailureCanceled
	case errors.Is(err, context.DeadlineExceeded):
		return domain.FailureBackendTimeout
	case errors.Is(err, domain.ErrAnswerExtraction):
		return domain.FailureAnswerExtraction
	case errors.Is(err, domain.ErrIndex):
		return domain.FailureIndexUnavailable
	default:
		return domain.FailureInternal
	}
}
