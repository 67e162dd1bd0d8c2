// Package retry holds the bounded retry policy shared by seed polling, result
// submission and other idempotent calls. A policy never loops forever: once
// MaxAttempts is reached the caller gets an *ExhaustedError.
package retry

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Backoff returns the wait before attempt n+1, given n attempts so far (n >= 1).
type Backoff func(attempt int) time.Duration

// Policy is a fixed attempt ceiling plus a backoff function.
type Policy struct {
	MaxAttempts int
	Backoff     Backoff
}

// Constant waits the same interval between attempts.
func Constant(maxAttempts int, interval time.Duration) Policy {
	return Policy{
		MaxAttempts: maxAttempts,
		Backoff:     func(int) time.Duration { return interval },
	}
}

// Exponential doubles the wait from base, capped at ceiling.
func Exponential(maxAttempts int, base, ceiling time.Duration) Policy {
	return Policy{
		MaxAttempts: maxAttempts,
		Backoff: func(attempt int) time.Duration {
			d := base
			for i := 1; i < attempt; i++ {
				d *= 2
				if d >= ceiling {
					return ceiling
				}
			}
			return d
		},
	}
}

// ExhaustedError is returned when every attempt failed.
type ExhaustedError struct {
	Attempts int
	Last     error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("gave up after %d attempts: %v", e.Attempts, e.Last)
}

func (e *ExhaustedError) Unwrap() error { return e.Last }

type permanentError struct{ err error }

func (p *permanentError) Error() string { return p.err.Error() }
func (p *permanentError) Unwrap() error { return p.err }

// Permanent marks err as not worth retrying; Do returns the wrapped error as is.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// Do calls fn until it succeeds, returns a Permanent error, ctx is done, or
// MaxAttempts is reached. fn receives the 1-based attempt number.
func (p Policy) Do(ctx context.Context, fn func(ctx context.Context, attempt int) error) error {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	var last error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		last = fn(ctx, attempt)
		if last == nil {
			return nil
		}
		var perm *permanentError
		if errors.As(last, &perm) {
			return perm.err
		}
		if attempt == attempts {
			break
		}

		wait := time.Duration(0)
		if p.Backoff != nil {
			wait = p.Backoff(attempt)
		}
		if wait <= 0 {
			continue
		}
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}

	return &ExhaustedError{Attempts: attempts, Last: last}
}

// Total is the longest time Do can spend waiting between attempts.
func (p Policy) Total() time.Duration {
	var total time.Duration
	if p.Backoff == nil {
		return 0
	}
	for attempt := 1; attempt < p.MaxAttempts; attempt++ {
		total += p.Backoff(attempt)
	}
	return total
}
