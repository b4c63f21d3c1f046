package pointvalue

import (
	"context"
	"fmt"
	"time"
)

// RetryPolicy controls how often a transient failure is retried.
type RetryPolicy struct {
	// MaxAttempts is the total number of tries, including the first.
	MaxAttempts int

	// Backoff returns the pause before try number attempt+1, where attempt
	// counts from 1. Nil means retry immediately.
	Backoff func(attempt int) time.Duration
}

// ImmediateRetry retries up to attempts times without pausing.
func ImmediateRetry(attempts int) RetryPolicy {
	return RetryPolicy{MaxAttempts: attempts}
}

// LinearRetry pauses attempt×step between tries.
func LinearRetry(attempts int, step time.Duration) RetryPolicy {
	return RetryPolicy{
		MaxAttempts: attempts,
		Backoff: func(attempt int) time.Duration {
			return time.Duration(attempt) * step
		},
	}
}

// withRetry runs op until it succeeds, fails with a non-transient error,
// or exhausts the policy. Exhaustion wraps the last error in
// ErrTransientConflict; any other failure is returned unchanged.
func withRetry[T any](ctx context.Context, p RetryPolicy, isTransient func(error) bool, op func(ctx context.Context) (T, error)) (T, error) {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	var zero T
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		result, err := op(ctx)
		if err == nil {
			return result, nil
		}
		if !isTransient(err) {
			return zero, err
		}
		lastErr = err

		if attempt == attempts {
			break
		}
		if p.Backoff != nil {
			if err := sleepContext(ctx, p.Backoff(attempt)); err != nil {
				return zero, err
			}
		} else if err := ctx.Err(); err != nil {
			return zero, err
		}
	}

	return zero, fmt.Errorf("%w after %d attempts: %w", ErrTransientConflict, attempts, lastErr)
}

// sleepContext pauses for d or until ctx is done.
func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
