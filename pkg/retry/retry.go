// Package retry re-runs operations that fail transiently.
//
// Only errors marked with [Mark] are retried; anything else is returned
// immediately. The index backends use this around network writes. The
// simulator client never retries: a lost simulator call leaves the scene in
// an unknown state.
package retry

import (
	"context"
	"errors"
	"time"

	"github.com/benbjohnson/clock"
)

// Retryable wraps an error to indicate it should trigger a retry.
// Wrap transient failures (timeouts, connection resets) with this type
// so that [Policy.Do] knows to attempt the operation again.
type Retryable struct{ Err error }

func (e *Retryable) Error() string { return e.Err.Error() }
func (e *Retryable) Unwrap() error { return e.Err }

// Mark wraps err as retryable. Mark(nil) is nil.
func Mark(err error) error {
	if err == nil {
		return nil
	}
	return &Retryable{Err: err}
}

// Policy controls how often and how patiently an operation is retried.
type Policy struct {
	Attempts int
	// Delay before the second attempt; doubles after every failure.
	Delay time.Duration
	Clock clock.Clock
}

// Default retries 3 times starting at 200ms.
func Default() Policy {
	return Policy{Attempts: 3, Delay: 200 * time.Millisecond, Clock: clock.New()}
}

// Do executes fn up to p.Attempts times with exponential backoff.
// Returns the last error if all attempts fail, or ctx.Err() if cancelled.
func (p Policy) Do(ctx context.Context, fn func() error) error {
	attempts := max(p.Attempts, 1)
	clk := p.Clock
	if clk == nil {
		clk = clock.New()
	}
	delay := p.Delay
	var lastErr error

	for i := range attempts {
		if err := fn(); err == nil {
			return nil
		} else if lastErr = err; !isRetryable(err) {
			return err
		}

		if i < attempts-1 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-clk.After(delay):
				delay *= 2
			}
		}
	}
	return lastErr
}

func isRetryable(err error) bool {
	return errors.As(err, new(*Retryable))
}
