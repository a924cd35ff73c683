// Package retry runs backend calls with bounded exponential backoff.
package retry

import (
	"context"
	"errors"
	"time"

	"energyrag/internal/domain"
	"energyrag/internal/logger"
)

// Policy bounds the number of attempts and the delay between them.
type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

// DefaultPolicy allows three attempts starting at 200ms, capped at 5s.
func DefaultPolicy() Policy {
	return Policy{MaxAttempts: 3, BaseDelay: 200 * time.Millisecond, MaxDelay: 5 * time.Second}
}

// Delay returns the backoff before the attempt following attempt (0-based).
func (p Policy) Delay(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	base := p.BaseDelay
	if base <= 0 {
		base = 200 * time.Millisecond
	}
	limit := p.MaxDelay
	if limit <= 0 {
		limit = 5 * time.Second
	}
	if attempt > 30 {
		return limit
	}
	d := base << attempt
	if d > limit || d <= 0 {
		d = limit
	}
	return d
}

// Do calls fn until it succeeds, returns a non-retryable error, or the
// attempt budget is spent. Only errors classified by domain.IsRetryable are retried.
func Do(ctx context.Context, p Policy, op string, fn func(ctx context.Context) error) error {
	_, err := DoValue(ctx, p, op, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}

// DoValue is Do for calls that return a value.
func DoValue[T any](ctx context.Context, p Policy, op string, fn func(ctx context.Context) (T, error)) (T, error) {
	attempts := p.MaxAttempts
	if attempts <= 0 {
		attempts = 1
	}
	var zero T
	for attempt := 0; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return zero, err
		}
		v, err := fn(ctx)
		if err == nil {
			return v, nil
		}
		if ctx.Err() != nil {
			return zero, ctx.Err()
		}
		if attempt+1 >= attempts || !domain.IsRetryable(err) {
			return zero, err
		}
		wait := p.Delay(attempt)
		var pe *domain.ProviderError
		if errors.As(err, &pe) && pe.RetryAfter > wait {
			wait = min(pe.RetryAfter, p.Delay(attempts))
		}
		logger.Debug("%s: attempt %d/%d failed (%v), retrying in %s", op, attempt+1, attempts, err, wait)
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return zero, ctx.Err()
		case <-timer.C:
		}
	}
}
