// Package retry implements a small reusable backoff policy for external calls.
//
// Every outbound dependency (the generative text service in particular) wraps
// its calls in a Policy rather than inlining its own retry loop, so attempt
// caps and delays are tuned in one place per call site.
package retry

import (
	"context"
	"errors"
	"time"
)

// Policy describes an exponential backoff schedule.
type Policy struct {
	MaxAttempts int           // total attempts including the first (default: 3)
	BaseDelay   time.Duration // delay before the second attempt (default: 1s)
	MaxDelay    time.Duration // backoff cap (default: 5s)
}

// DefaultPolicy matches the generative-service contract: 3 attempts,
// exponential backoff starting at 1s, capped at 5s.
func DefaultPolicy() Policy {
	return Policy{MaxAttempts: 3, BaseDelay: time.Second, MaxDelay: 5 * time.Second}
}

// delayError carries a server-requested delay (e.g. Retry-After) through
// the error chain so Do can honor it instead of the computed backoff.
type delayError struct {
	err   error
	delay time.Duration
}

func (e *delayError) Error() string { return e.err.Error() }
func (e *delayError) Unwrap() error { return e.err }

// After wraps err with an explicit delay before the next attempt.
func After(delay time.Duration, err error) error {
	if err == nil {
		return nil
	}
	return &delayError{err: err, delay: delay}
}

// Do runs fn until it succeeds, the attempt cap is reached, or ctx is done.
// The last error is returned after exhaustion. A timed-out attempt counts as
// a failed attempt, not a partial success.
func (p Policy) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	attempts := p.MaxAttempts
	if attempts <= 0 {
		attempts = 3
	}
	base := p.BaseDelay
	if base <= 0 {
		base = time.Second
	}
	cap := p.MaxDelay
	if cap <= 0 {
		cap = 5 * time.Second
	}

	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			if lastErr != nil {
				return lastErr
			}
			return err
		}

		err := fn(ctx)
		if err == nil {
			return nil
		}
		lastErr = err

		if attempt == attempts-1 {
			break
		}

		delay := base << attempt
		if delay > cap {
			delay = cap
		}
		var de *delayError
		if errors.As(err, &de) && de.delay > 0 {
			delay = de.delay
			if delay > cap {
				delay = cap
			}
		}

		select {
		case <-ctx.Done():
			return lastErr
		case <-time.After(delay):
		}
	}
	return lastErr
}
