package agent

import (
	"context"
	"errors"
	"testing"
	"time"
)

// TestRetryPolicy_Backoff verifies exponential growth, capping, and jitter bounds.
func TestRetryPolicy_Backoff(t *testing.T) {
	policy := RetryPolicy{
		MaxAttempts: 5,
		BaseDelay:   100 * time.Millisecond,
		MaxDelay:    400 * time.Millisecond,
	}

	tests := []struct {
		name    string
		attempt int
		minWant time.Duration // exponential delay without jitter
		maxWant time.Duration // delay plus maximum jitter
	}{
		{name: "first retry", attempt: 0, minWant: 100 * time.Millisecond, maxWant: 200 * time.Millisecond},
		{name: "second retry", attempt: 1, minWant: 200 * time.Millisecond, maxWant: 300 * time.Millisecond},
		{name: "third retry capped", attempt: 2, minWant: 400 * time.Millisecond, maxWant: 500 * time.Millisecond},
		{name: "fourth retry stays capped", attempt: 3, minWant: 400 * time.Millisecond, maxWant: 500 * time.Millisecond},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Jitter is random; sample repeatedly to catch bound violations.
			for i := 0; i < 20; i++ {
				delay := policy.Backoff(tt.attempt)
				if delay < tt.minWant {
					t.Fatalf("Backoff(%d) = %v, want >= %v", tt.attempt, delay, tt.minWant)
				}
				if delay >= tt.maxWant {
					t.Fatalf("Backoff(%d) = %v, want < %v", tt.attempt, delay, tt.maxWant)
				}
			}
		})
	}
}

// TestRetryPolicy_BackoffZeroBase verifies the default base is substituted.
func TestRetryPolicy_BackoffZeroBase(t *testing.T) {
	policy := RetryPolicy{MaxAttempts: 3}

	delay := policy.Backoff(0)
	if delay < DefaultRetryPolicy.BaseDelay {
		t.Errorf("Backoff(0) = %v, want >= default base %v", delay, DefaultRetryPolicy.BaseDelay)
	}
}

// TestRetryPolicy_Do verifies the retry loop behavior.
func TestRetryPolicy_Do(t *testing.T) {
	// Small delays keep the test fast.
	fast := RetryPolicy{MaxAttempts: 3, BaseDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond}

	t.Run("success on first attempt", func(t *testing.T) {
		calls := 0
		err := fast.Do(context.Background(), func() error {
			calls++
			return nil
		})
		if err != nil {
			t.Fatalf("Do failed: %v", err)
		}
		if calls != 1 {
			t.Errorf("expected 1 call, got %d", calls)
		}
	})

	t.Run("retryable error retried until success", func(t *testing.T) {
		calls := 0
		err := fast.Do(context.Background(), func() error {
			calls++
			if calls < 3 {
				return ErrRateLimited
			}
			return nil
		})
		if err != nil {
			t.Fatalf("Do failed: %v", err)
		}
		if calls != 3 {
			t.Errorf("expected 3 calls, got %d", calls)
		}
	})

	t.Run("non-retryable error returns immediately", func(t *testing.T) {
		calls := 0
		err := fast.Do(context.Background(), func() error {
			calls++
			return ErrInvalidAPIKey
		})
		if !errors.Is(err, ErrInvalidAPIKey) {
			t.Fatalf("expected ErrInvalidAPIKey, got %v", err)
		}
		if calls != 1 {
			t.Errorf("expected 1 call, got %d", calls)
		}
	})

	t.Run("exhausted attempts return last error", func(t *testing.T) {
		calls := 0
		err := fast.Do(context.Background(), func() error {
			calls++
			return ErrOverloaded
		})
		if !errors.Is(err, ErrOverloaded) {
			t.Fatalf("expected ErrOverloaded, got %v", err)
		}
		if calls != 3 {
			t.Errorf("expected 3 calls, got %d", calls)
		}
	})

	t.Run("context cancellation stops retries", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())

		calls := 0
		slow := RetryPolicy{MaxAttempts: 5, BaseDelay: time.Hour}
		err := slow.Do(ctx, func() error {
			calls++
			cancel() // Cancel while the backoff sleep is pending.
			return ErrRateLimited
		})
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("expected context.Canceled, got %v", err)
		}
		if calls != 1 {
			t.Errorf("expected 1 call before cancellation, got %d", calls)
		}
	})

	t.Run("zero attempts treated as one", func(t *testing.T) {
		calls := 0
		policy := RetryPolicy{}
		err := policy.Do(context.Background(), func() error {
			calls++
			return ErrRateLimited
		})
		if !errors.Is(err, ErrRateLimited) {
			t.Fatalf("expected ErrRateLimited, got %v", err)
		}
		if calls != 1 {
			t.Errorf("expected 1 call, got %d", calls)
		}
	})
}
