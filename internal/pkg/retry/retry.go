// Package retry provides a bounded retry helper with exponential backoff and
// jitter. Both the enrichment and mailer call sites share the same policy:
// a fixed attempt cap, backoff between attempts, and a terminal error tagged
// with the attempt count once the cap is exhausted.
package retry

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"time"
)

// Permanent wraps an error to stop retrying immediately. The wrapped error
// is returned to the caller as-is.
type Permanent struct {
	Err error
}

func (p *Permanent) Error() string { return p.Err.Error() }
func (p *Permanent) Unwrap() error { return p.Err }

// Stop marks err as non-retryable.
func Stop(err error) error {
	return &Permanent{Err: err}
}

// ExhaustedError is returned when every attempt failed. It carries the
// attempt count and wraps the last error.
type ExhaustedError struct {
	Attempts int
	Last     error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("failed after %d attempts: %v", e.Attempts, e.Last)
}

func (e *ExhaustedError) Unwrap() error { return e.Last }

// Policy holds the retry cap and backoff schedule.
type Policy struct {
	MaxAttempts int           // total attempts including the first
	BaseDelay   time.Duration // delay before the first retry
	MaxDelay    time.Duration // backoff ceiling
	Jitter      bool          // full jitter on each delay
}

// DefaultPolicy matches the workflow's stated cap: 3 attempts with
// exponential backoff starting at one second.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts: 3,
		BaseDelay:   1 * time.Second,
		MaxDelay:    30 * time.Second,
		Jitter:      true,
	}
}

// Do runs op until it succeeds, returns a Permanent error, the context is
// cancelled, or the attempt cap is reached. On exhaustion it returns an
// ExhaustedError wrapping the last failure.
func Do(ctx context.Context, p Policy, op func(ctx context.Context) error) error {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = 3
	}
	if p.BaseDelay <= 0 {
		p.BaseDelay = 1 * time.Second
	}

	var lastErr error
	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			if lastErr != nil {
				return &ExhaustedError{Attempts: attempt - 1, Last: lastErr}
			}
			return err
		}

		err := op(ctx)
		if err == nil {
			return nil
		}

		var perm *Permanent
		if errors.As(err, &perm) {
			return perm.Err
		}
		lastErr = err

		if attempt == p.MaxAttempts {
			break
		}

		timer := time.NewTimer(p.delay(attempt))
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return &ExhaustedError{Attempts: attempt, Last: lastErr}
		}
	}

	return &ExhaustedError{Attempts: p.MaxAttempts, Last: lastErr}
}

// delay returns the backoff before the retry following the given attempt.
// Exponential: base * 2^(attempt-1), capped at MaxDelay, with optional full
// jitter.
func (p Policy) delay(attempt int) time.Duration {
	d := float64(p.BaseDelay) * math.Pow(2, float64(attempt-1))
	if p.MaxDelay > 0 && d > float64(p.MaxDelay) {
		d = float64(p.MaxDelay)
	}
	if p.Jitter {
		d = rand.Float64() * d
		if d < float64(10*time.Millisecond) {
			d = float64(10 * time.Millisecond)
		}
	}
	return time.Duration(d)
}
