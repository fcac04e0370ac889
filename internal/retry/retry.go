// Package retry runs an operation until it succeeds, the attempts run out, or the context ends.
package retry

import (
	"context"
	"time"
)

// Policy describes how an operation is retried.
//
// MaxAttempts of zero retries forever. When EscalateEvery is positive, every
// EscalateEvery-th consecutive failure calls Escalate instead of sleeping.
type Policy struct {
	MaxAttempts   int
	Backoff       func(attempt int) time.Duration
	EscalateEvery int
	Escalate      func(ctx context.Context) error
	Sleep         func(ctx context.Context, d time.Duration) error
}

// Exponential doubles base each attempt up to max.
func Exponential(base, max time.Duration) func(int) time.Duration {
	if base <= 0 {
		base = 100 * time.Millisecond
	}
	return func(attempt int) time.Duration {
		delay := base
		for i := 1; i < attempt; i++ {
			delay *= 2
			if max > 0 && delay >= max {
				return max
			}
		}
		return delay
	}
}

// Constant waits d between attempts.
func Constant(d time.Duration) func(int) time.Duration {
	return func(int) time.Duration { return d }
}

// SleepContext waits for d or until ctx is done.
func SleepContext(ctx context.Context, d time.Duration) error {
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

// Do calls fn until it returns nil. onErr, when set, sees every failure with its 1-based attempt.
// The last error is returned once MaxAttempts is reached; ctx.Err() is returned when ctx ends.
func (p Policy) Do(ctx context.Context, fn func(context.Context) error, onErr func(attempt int, err error)) error {
	sleep := p.Sleep
	if sleep == nil {
		sleep = SleepContext
	}
	backoff := p.Backoff
	if backoff == nil {
		backoff = Exponential(100*time.Millisecond, 0)
	}

	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		err := fn(ctx)
		if err == nil {
			return nil
		}
		if onErr != nil {
			onErr(attempt, err)
		}
		if p.MaxAttempts > 0 && attempt >= p.MaxAttempts {
			return err
		}

		if p.EscalateEvery > 0 && p.Escalate != nil && attempt%p.EscalateEvery == 0 {
			if escErr := p.Escalate(ctx); escErr != nil && ctx.Err() != nil {
				return ctx.Err()
			}
			continue
		}
		if err := sleep(ctx, backoff(attempt)); err != nil {
			return err
		}
	}
}
