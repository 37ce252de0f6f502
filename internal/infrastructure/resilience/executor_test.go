package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/kirillkom/complaints-rag/internal/core/domain"
)

func fastPolicy(breaker bool) Policy {
	return Policy{
		Retry: RetryPolicy{
			MaxAttempts:    3,
			InitialBackoff: time.Millisecond,
			MaxBackoff:     2 * time.Millisecond,
			Multiplier:     2,
		},
		Breaker: BreakerPolicy{
			Enabled:          breaker,
			MinRequests:      2,
			FailureRatio:     0.5,
			OpenTimeout:      time.Minute,
			HalfOpenMaxCalls: 1,
		},
	}
}

func TestRunRetriesUnreachableBackend(t *testing.T) {
	exec := NewExecutor(fastPolicy(false))
	retried := 0
	exec.OnRetry(func(string) { retried++ })

	attempts := 0
	err := exec.Run(context.Background(), "embed", func(context.Context) error {
		attempts++
		if attempts < 3 {
			return domain.NewBackendError(domain.BackendUnreachable, "embed", errors.New("connection refused"))
		}
		return nil
	}, nil)
	if err != nil {
		t.Fatalf("expected success after retries, got %v", err)
	}
	if attempts != 3 || retried != 2 {
		t.Fatalf("attempts=%d retried=%d", attempts, retried)
	}
}

func TestRunDoesNotRetryPermanentOrTimeout(t *testing.T) {
	for _, kind := range []domain.BackendErrorKind{domain.BackendInvalidModel, domain.BackendTimeout, domain.BackendDimensionMismatch} {
		exec := NewExecutor(fastPolicy(false))
		attempts := 0
		err := exec.Run(context.Background(), "generate", func(context.Context) error {
			attempts++
			return domain.NewBackendError(kind, "generate", nil)
		}, nil)
		if got, _ := domain.BackendKind(err); got != kind {
			t.Fatalf("expected %s, got %v", kind, err)
		}
		if attempts != 1 {
			t.Fatalf("%s: expected 1 attempt, got %d", kind, attempts)
		}
	}
}

func TestRunOpensCircuitAfterFailures(t *testing.T) {
	exec := NewExecutor(fastPolicy(true))
	fail := domain.NewBackendError(domain.BackendTimeout, "embed", nil)

	for i := 0; i < 2; i++ {
		if err := exec.Run(context.Background(), "embed", func(context.Context) error { return fail }, nil); !errors.Is(err, fail) {
			t.Fatalf("iteration %d: expected backend failure, got %v", i, err)
		}
	}

	err := exec.Run(context.Background(), "embed", func(context.Context) error {
		t.Fatalf("operation must not run while the circuit is open")
		return nil
	}, nil)
	if !IsCircuitOpen(err) {
		t.Fatalf("expected open circuit, got %v", err)
	}
}

func TestRunPermanentFailuresDoNotTrip(t *testing.T) {
	exec := NewExecutor(fastPolicy(true))
	fail := domain.NewBackendError(domain.BackendInvalidModel, "generate", nil)
	for i := 0; i < 5; i++ {
		err := exec.Run(context.Background(), "generate", func(context.Context) error { return fail }, nil)
		if IsCircuitOpen(err) {
			t.Fatalf("permanent failures must not open the circuit")
		}
	}
}

func TestRunStopsOnCancelledContext(t *testing.T) {
	exec := NewExecutor(fastPolicy(false))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	called := false
	err := exec.Run(ctx, "embed", func(context.Context) error {
		called = true
		return nil
	}, nil)
	if called {
		t.Fatalf("callback must not run on a cancelled context")
	}
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestRetryDelayIsCapped(t *testing.T) {
	r := RetryPolicy{InitialBackoff: 100 * time.Millisecond, MaxBackoff: 250 * time.Millisecond, Multiplier: 2}
	want := []time.Duration{100 * time.Millisecond, 200 * time.Millisecond, 250 * time.Millisecond, 250 * time.Millisecond}
	for i, w := range want {
		if got := r.delay(i + 1); got != w {
			t.Fatalf("retry %d: expected %s, got %s", i+1, w, got)
		}
	}
}
