package filler

import (
	"context"
	"time"

	"gitlab.com/distributed_lab/logan/v3"
	"gitlab.com/distributed_lab/logan/v3/errors"
)

// Policy decides how many times an operation runs and how long to wait in between.
type Policy struct {
	MaxAttempts int
	// Delay returns the pause after the given failed attempt (1-based).
	Delay     func(attempt int) time.Duration
	Retryable func(err error) bool
}

// Linear waits base*attempt after each failure.
func Linear(base time.Duration) func(int) time.Duration {
	return func(attempt int) time.Duration {
		return base * time.Duration(attempt)
	}
}

// Exponential doubles the pause after each failure starting from base.
func Exponential(base time.Duration) func(int) time.Duration {
	return func(attempt int) time.Duration {
		return base << uint(attempt-1)
	}
}

func retryAll(error) bool { return true }

// Do runs fn until it succeeds, returns a non-retryable error or the attempts run out.
// The last error is returned on exhaustion.
func (p Policy) Do(ctx context.Context, fn func(attempt int) error) error {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	retryable := p.Retryable
	if retryable == nil {
		retryable = retryAll
	}

	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err = fn(attempt); err == nil {
			return nil
		}
		if !retryable(err) || attempt == attempts {
			return err
		}

		var delay time.Duration
		if p.Delay != nil {
			delay = p.Delay(attempt)
		}
		if serr := sleep(ctx, delay); serr != nil {
			return errors.Wrap(serr, "retry interrupted", logan.F{
				"attempt":    attempt,
				"last_error": err.Error(),
			})
		}
	}
	return err
}

func sleep(ctx context.Context, d time.Duration) error {
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
