package resilience

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/sony/gobreaker/v2"

	"github.com/kirillkom/complaints-rag/internal/core/domain"
)

// Outcome tells the executor how to treat a failed attempt.
type Outcome struct {
	Retry bool
	Trip  bool
}

type Classifier func(err error) Outcome

// ClassifyBackend retries transient backend failures and counts them against
// the breaker. Permanent failures and caller cancellation do neither.
func ClassifyBackend(err error) Outcome {
	if errors.Is(err, context.Canceled) {
		return Outcome{}
	}
	if kind, ok := domain.BackendKind(err); ok {
		switch kind {
		case domain.BackendUnreachable:
			return Outcome{Retry: true, Trip: true}
		case domain.BackendTimeout:
			return Outcome{Trip: true}
		default:
			return Outcome{}
		}
	}
	if errors.Is(err, domain.ErrTemporary) {
		return Outcome{Retry: true, Trip: true}
	}
	return Outcome{Trip: true}
}

// Executor runs backend calls with retry and one circuit breaker per operation.
type Executor struct {
	policy Policy

	mu       sync.Mutex
	breakers map[string]*gobreaker.CircuitBreaker[struct{}]

	onRetry func(operation string)
}

func NewExecutor(policy Policy) *Executor {
	return &Executor{
		policy:   policy.withDefaults(),
		breakers: make(map[string]*gobreaker.CircuitBreaker[struct{}]),
	}
}

// OnRetry registers a hook invoked before every retry, used for metrics.
func (e *Executor) OnRetry(hook func(operation string)) {
	e.onRetry = hook
}

func (e *Executor) Run(ctx context.Context, operation string, fn func(context.Context) error, classify Classifier) error {
	if fn == nil {
		return fmt.Errorf("resilience: nil callback for %q", operation)
	}
	if operation == "" {
		operation = "unnamed"
	}
	if classify == nil {
		classify = ClassifyBackend
	}

	if !e.policy.Breaker.Enabled {
		return e.retry(ctx, operation, fn, classify)
	}
	_, err := e.breaker(operation, classify).Execute(func() (struct{}, error) {
		return struct{}{}, e.retry(ctx, operation, fn, classify)
	})
	return err
}

func (e *Executor) retry(ctx context.Context, operation string, fn func(context.Context) error, classify Classifier) error {
	var err error
	for attempt := 1; attempt <= e.policy.Retry.MaxAttempts; attempt++ {
		if ctxErr := ctx.Err(); ctxErr != nil {
			if err != nil {
				return err
			}
			return ctxErr
		}

		err = fn(ctx)
		if err == nil {
			return nil
		}
		if !classify(err).Retry || attempt == e.policy.Retry.MaxAttempts {
			return err
		}

		wait := e.policy.Retry.delay(attempt)
		slog.Warn("retry_attempt",
			"operation", operation,
			"attempt", attempt,
			"max_attempts", e.policy.Retry.MaxAttempts,
			"backoff_ms", wait.Milliseconds(),
			"error", err,
		)
		if e.onRetry != nil {
			e.onRetry(operation)
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return err
		case <-timer.C:
		}
	}
	return err
}

func (e *Executor) breaker(operation string, classify Classifier) *gobreaker.CircuitBreaker[struct{}] {
	e.mu.Lock()
	defer e.mu.Unlock()

	if cb, ok := e.breakers[operation]; ok {
		return cb
	}
	bp := e.policy.Breaker
	cb := gobreaker.NewCircuitBreaker[struct{}](gobreaker.Settings{
		Name:        operation,
		MaxRequests: bp.HalfOpenMaxCalls,
		Timeout:     bp.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < bp.MinRequests {
				return false
			}
			return float64(counts.TotalFailures)/float64(counts.Requests) >= bp.FailureRatio
		},
		IsSuccessful: func(err error) bool {
			return err == nil || !classify(err).Trip
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			slog.Warn("circuit_breaker_state_change", "operation", name, "from", from.String(), "to", to.String())
		},
	})
	e.breakers[operation] = cb
	return cb
}

// IsCircuitOpen reports whether err was produced by a rejecting breaker.
func IsCircuitOpen(err error) bool {
	return errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests)
}
