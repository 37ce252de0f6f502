package ollama

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"

	"github.com/kirillkom/complaints-rag/internal/core/domain"
	"github.com/kirillkom/complaints-rag/internal/infrastructure/resilience"
)

type HTTPStatusError struct {
	Operation  string
	StatusCode int
	Status     string
	Body       string
}

func (e *HTTPStatusError) Error() string {
	if e == nil {
		return "ollama status error"
	}
	body := strings.TrimSpace(e.Body)
	if body == "" {
		return fmt.Sprintf("ollama %s status: %s", e.Operation, e.Status)
	}
	return fmt.Sprintf("ollama %s status: %s: %s", e.Operation, e.Status, body)
}

// classifyError maps a failed attempt onto the backend error taxonomy. parent is
// the caller context, used to tell caller cancellation apart from our own deadline.
func classifyError(parent context.Context, operation string, err error) error {
	if errors.Is(parent.Err(), context.Canceled) {
		return parent.Err()
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return domain.NewBackendError(domain.BackendTimeout, operation, err)
	}

	var statusErr *HTTPStatusError
	if errors.As(err, &statusErr) {
		switch {
		case isModelMissing(statusErr):
			return domain.NewBackendError(domain.BackendInvalidModel, operation, err)
		case isRetryableHTTPStatus(statusErr.StatusCode), statusErr.StatusCode >= 500:
			return domain.NewBackendError(domain.BackendUnreachable, operation, err)
		default:
			return domain.NewBackendError(domain.BackendInvalidModel, operation, err)
		}
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return domain.NewBackendError(domain.BackendTimeout, operation, err)
		}
		return domain.NewBackendError(domain.BackendUnreachable, operation, err)
	}
	return domain.NewBackendError(domain.BackendUnreachable, operation, err)
}

// finalizeError turns breaker rejections into unreachable errors; everything
// else was already classified per attempt.
func finalizeError(operation string, err error) error {
	if resilience.IsCircuitOpen(err) {
		return domain.NewBackendError(domain.BackendUnreachable, operation, err)
	}
	return err
}

func isModelMissing(err *HTTPStatusError) bool {
	if err.StatusCode == http.StatusNotFound {
		return true
	}
	body := strings.ToLower(err.Body)
	return strings.Contains(body, "model") && strings.Contains(body, "not found")
}

func isRetryableHTTPStatus(statusCode int) bool {
	switch statusCode {
	case http.StatusRequestTimeout, http.StatusTooManyRequests:
		return true
	default:
		return false
	}
}
