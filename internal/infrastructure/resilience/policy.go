package resilience

import "time"

type RetryPolicy struct {
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	Multiplier     float64
}

type BreakerPolicy struct {
	Enabled          bool
	MinRequests      uint32
	FailureRatio     float64
	OpenTimeout      time.Duration
	HalfOpenMaxCalls uint32
}

type Policy struct {
	Retry   RetryPolicy
	Breaker BreakerPolicy
}

func DefaultPolicy() Policy {
	return Policy{
		Retry: RetryPolicy{
			MaxAttempts:    3,
			InitialBackoff: 200 * time.Millisecond,
			MaxBackoff:     2 * time.Second,
			Multiplier:     2.0,
		},
		Breaker: BreakerPolicy{
			Enabled:          true,
			MinRequests:      5,
			FailureRatio:     0.6,
			OpenTimeout:      30 * time.Second,
			HalfOpenMaxCalls: 1,
		},
	}
}

func (p Policy) withDefaults() Policy {
	def := DefaultPolicy()
	out := p

	if out.Retry.MaxAttempts <= 0 {
		out.Retry.MaxAttempts = def.Retry.MaxAttempts
	}
	if out.Retry.InitialBackoff <= 0 {
		out.Retry.InitialBackoff = def.Retry.InitialBackoff
	}
	if out.Retry.MaxBackoff < out.Retry.InitialBackoff {
		out.Retry.MaxBackoff = max(def.Retry.MaxBackoff, out.Retry.InitialBackoff)
	}
	if out.Retry.Multiplier < 1 {
		out.Retry.Multiplier = def.Retry.Multiplier
	}

	if out.Breaker.MinRequests == 0 {
		out.Breaker.MinRequests = def.Breaker.MinRequests
	}
	if out.Breaker.FailureRatio <= 0 || out.Breaker.FailureRatio > 1 {
		out.Breaker.FailureRatio = def.Breaker.FailureRatio
	}
	if out.Breaker.OpenTimeout <= 0 {
		out.Breaker.OpenTimeout = def.Breaker.OpenTimeout
	}
	if out.Breaker.HalfOpenMaxCalls == 0 {
		out.Breaker.HalfOpenMaxCalls = def.Breaker.HalfOpenMaxCalls
	}
	return out
}

// delay returns the wait before the given retry (1-based).
func (r RetryPolicy) delay(retry int) time.Duration {
	wait := r.InitialBackoff
	for i := 1; i < retry; i++ {
		wait = time.Duration(float64(wait) * r.Multiplier)
		if wait >= r.MaxBackoff {
			return r.MaxBackoff
		}
	}
	return min(wait, r.MaxBackoff)
}
