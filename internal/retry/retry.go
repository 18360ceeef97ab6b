// Package retry provides the single retry policy helper applied at
// every external call site.
package retry

import (
	"context"
	"time"
)

// Policy bounds an exponential backoff loop.
type Policy struct {
	MaxAttempts int
	Base        time.Duration
	Cap         time.Duration
	// Retriable decides whether an error is worth another attempt. A
	// nil classifier retries everything.
	Retriable func(error) bool
}

// Default is the quote/HTTP policy from the design: 3 attempts,
// 500 ms base, 4 s cap.
var Default = Policy{
	MaxAttempts: 3,
	Base:        500 * time.Millisecond,
	Cap:         4 * time.Second,
}

// Do runs fn until it succeeds, the attempts are exhausted, the error
// is classified non-retriable, or the context ends. The last error is
// returned.
func (p Policy) Do(ctx context.Context, fn func() error) error {
	attempts := p.MaxAttempts
	if attempts <= 0 {
		attempts = 1
	}
	delay := p.Base

	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
			delay *= 2
			if p.Cap > 0 && delay > p.Cap {
				delay = p.Cap
			}
		}

		lastErr = fn()
		if lastErr == nil {
			return nil
		}
		if p.Retriable != nil && !p.Retriable(lastErr) {
			return lastErr
		}
	}
	return lastErr
}

// BackoffDelay computes the capped exponential delay for a zero-based
// attempt counter. Used where the wait happens outside Do, e.g. the
// scheduler's exit re-queue.
func BackoffDelay(attempt int, base, cap time.Duration) time.Duration {
	d := base
	for i := 0; i < attempt; i++ {
		d *= 2
		if cap > 0 && d >= cap {
			return cap
		}
	}
	if cap > 0 && d > cap {
		return cap
	}
	return d
}
