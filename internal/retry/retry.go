// Package retry provides the bounded retry policy shared by the external
// adapters. Each call site configures its own attempt budget and backoff
// curve.
package retry

import (
	"context"
	"time"
)

// BackoffFunc returns how long to wait after the given failed attempt.
// Attempts are numbered from 1.
type BackoffFunc func(attempt int) time.Duration

// Linear waits step × attempt between attempts (step=2s gives 2s, 4s, ...).
func Linear(step time.Duration) BackoffFunc {
	return func(attempt int) time.Duration {
		return step * time.Duration(attempt)
	}
}

// Exponential waits unit × 2^attempt between attempts (unit=1s gives 2s, 4s,
// 8s, ...).
func Exponential(unit time.Duration) BackoffFunc {
	return func(attempt int) time.Duration {
		return unit * time.Duration(1<<attempt)
	}
}

// Policy bounds an operation to MaxAttempts tries separated by Backoff waits.
type Policy struct {
	MaxAttempts int
	Backoff     BackoffFunc

	// Sleep is injectable for tests; nil means a context-aware timer sleep.
	Sleep func(ctx context.Context, d time.Duration) error
}

// Do runs op until it succeeds, the attempt budget is exhausted, or the
// context is done. The last error from op is returned on exhaustion.
func (p Policy) Do(ctx context.Context, op func(ctx context.Context) error) error {
	attempts := p.MaxAttempts
	if attempts <= 0 {
		attempts = 1
	}
	sleep := p.Sleep
	if sleep == nil {
		sleep = sleepContext
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		lastErr = op(ctx)
		if lastErr == nil {
			return nil
		}
		if attempt == attempts || p.Backoff == nil {
			continue
		}
		if err := sleep(ctx, p.Backoff(attempt)); err != nil {
			return err
		}
	}
	return lastErr
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
