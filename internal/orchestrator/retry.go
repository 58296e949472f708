package orchestrator

import (
	"math"
	"math/rand"
	"time"
)

// RetryPolicy holds the retry budget and backoff settings.
type RetryPolicy struct {
	// MaxRetries bounds how many retry attempts a job gets after its
	// first failure. 0 disables retries.
	MaxRetries int

	// BaseDelay is the backoff unit (production: 1s).
	BaseDelay time.Duration

	// MaxJitter is the upper bound of the random jitter added to every
	// backoff delay. Zero disables jitter.
	MaxJitter time.Duration
}

// DefaultRetryPolicy returns the production retry defaults.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries: 5,
		BaseDelay:  time.Second,
		MaxJitter:  200 * time.Millisecond,
	}
}

// Backoff computes the delay before retry attempt n (1-indexed).
//
// Formula: BaseDelay * 2^n + jitter in [0, MaxJitter).
//
// The exponent is deliberately uncapped; MaxRetries bounds it in
// practice (at the default ceiling of 5 the last wait is ~32s). The
// jitter spreads retries so a struggling dependency is not hit by a
// synchronized herd.
func (p RetryPolicy) Backoff(attempt int) time.Duration {
	delay := time.Duration(float64(p.BaseDelay) * math.Pow(2, float64(attempt)))

	var jitter time.Duration
	if p.MaxJitter > 0 {
		jitter = time.Duration(rand.Int63n(int64(p.MaxJitter)))
	}

	return delay + jitter
}
