package pipeline

import (
	"math"
	"math/rand"
	"time"
)

// RetryPolicy configures the pipeline's retry/backoff behavior (spec §4.F).
type RetryPolicy struct {
	MaxAttempts   int
	BaseDelayMs   int
	MaxDelayMs    int
	BackoffFactor float64
	Jitter        bool
}

// DefaultRetryPolicy returns spec §4.F's stated defaults:
// max_attempts=3, base_delay_ms=100, max_delay_ms=5000, backoff_factor=2.0.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:   3,
		BaseDelayMs:   100,
		MaxDelayMs:    5000,
		BackoffFactor: 2.0,
		Jitter:        true,
	}
}

// delayForAttempt returns the sleep duration after the n'th failed attempt
// (1-indexed): min(base*factor^(n-1), max), optionally multiplied by a
// uniform jitter factor in [0.75, 1.25] (spec §4.F).
func (p RetryPolicy) delayForAttempt(n int, rnd *rand.Rand) time.Duration {
	raw := float64(p.BaseDelayMs) * math.Pow(p.BackoffFactor, float64(n-1))
	if raw > float64(p.MaxDelayMs) {
		raw = float64(p.MaxDelayMs)
	}
	if p.Jitter {
		jitter := 0.75 + rnd.Float64()*0.5
		raw *= jitter
	}
	return time.Duration(raw * float64(time.Millisecond))
}
