package httpadapter

import (
	"context"
	"errors"
	"net/http"

	"github.com/kirillkom/complaints-rag/internal/core/domain"
	"github.com/kirillkom/complaints-rag/internal/core/usecase"
)

func mapErrorToHTTPStatus(err error) int {
	switch {
	case domain.IsKind(err, domain.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case domain.IsKind(err, domain.ErrTemporary), domain.IsKind(err, domain.ErrIndex):
		return http.StatusServiceUnavailable
	case domain.IsKind(err, domain.ErrBackend):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// errorKind is the machine-readable kind reported next to the message.
func errorKind(err error) string {
	if kind, ok := domain.BackendKind(err); ok {
		return string(kind)
	}
	switch {
	case errors.Is(err, usecase.ErrOverloaded):
		return string(domain.FailureOverloaded)
	case domain.IsKind(err, domain.ErrInvalidInput):
		return "invalid_input"
	case domain.IsKind(err, domain.ErrIndex):
		return string(domain.FailureIndexUnavailable)
	case domain.IsKind(err, domain.ErrTemporary):
		return "temporary"
	case domain.IsKind(err, domain.ErrConfig):
		return "config"
	case domain.IsKind(err, domain.ErrIO):
		return "io"
	case errors.Is(err, context.Canceled):
		return "canceled"
	default:
		return "internal"
	}
}
