package agent

import (
	"context"
	"math/rand"
	"time"
)

// RetryPolicy bounds the internal retries API-backed agents apply to
// retryable provider failures (rate limits, timeouts, overload).
//
// The orchestrator itself never retries or times out a phase; retry lives
// entirely inside the agent implementations, where provider errors carry
// retryability information.
type RetryPolicy struct {
	// MaxAttempts is the total number of tries including the first.
	// 1 means no retries.
	MaxAttempts int

	// BaseDelay seeds the exponential backoff between attempts.
	BaseDelay time.Duration

	// MaxDelay caps the exponential growth. Zero means no cap.
	MaxDelay time.Duration
}

// DefaultRetryPolicy is the policy the provider subpackages use unless
// configured otherwise: three attempts, 500ms base, 8s cap.
var DefaultRetryPolicy = RetryPolicy{
	MaxAttempts: 3,
	BaseDelay:   500 * time.Millisecond,
	MaxDelay:    8 * time.Second,
}

// Backoff returns the delay to sleep before the given retry (attempt is
// 0-indexed: attempt 0 is the delay before the first retry). The delay grows
// exponentially from BaseDelay, is capped at MaxDelay, and carries jitter in
// [0, BaseDelay) to spread synchronized retries.
func (p RetryPolicy) Backoff(attempt int) time.Duration {
	base := p.BaseDelay
	if base <= 0 {
		base = DefaultRetryPolicy.BaseDelay
	}

	delay := base * (1 << attempt)
	if p.MaxDelay > 0 && delay > p.MaxDelay {
		delay = p.MaxDelay
	}

	jitter := time.Duration(rand.Int63n(int64(base))) // #nosec G404 -- jitter for retry timing, not security
	return delay + jitter
}

// Do runs fn, retrying retryable failures per the policy. Between attempts
// it sleeps for Backoff(attempt) and honors context cancellation. The last
// error is returned when attempts are exhausted; non-retryable errors return
// immediately.
func (p RetryPolicy) Do(ctx context.Context, fn func() error) error {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	var err error
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			timer := time.NewTimer(p.Backoff(attempt - 1))
			select {
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			case <-timer.C:
			}
		}

		err = fn()
		if err == nil {
			return nil
		}
		if !IsRetryable(err) {
			return err
		}
	}
	return err
}
