// Package retry runs an operation in a bounded loop with exponential
// backoff between attempts.  The delay sequence is computed up front so
// the number of attempts and total wait are always bounded.
package retry

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/iliyamo/seat-booking/internal/model"
)

// Strategy describes a bounded retry policy.  Attempts counts the first
// call, so Attempts=3 means one call plus two retries.  The wait before
// retry n (1-based) is Delay*Backoff^(n-1), capped at MaxDelay when set.
type Strategy struct {
	Attempts int
	Delay    time.Duration
	Backoff  float64
	MaxDelay time.Duration
}

// Wait returns the wait before retry n (1-based).  It ignores Attempts,
// so unbounded loops such as reconnects can share the same schedule.
func (s Strategy) Wait(n int) time.Duration {
	if n < 1 {
		n = 1
	}
	factor := s.Backoff
	if factor < 1 {
		factor = 1
	}
	d := float64(s.Delay) * math.Pow(factor, float64(n-1))
	if s.MaxDelay > 0 && d > float64(s.MaxDelay) {
		return s.MaxDelay
	}
	if d >= math.MaxInt64 {
		return time.Duration(math.MaxInt64)
	}
	return time.Duration(d)
}

// Delays returns the waits between consecutive attempts.  The slice has
// Attempts-1 elements.
func (s Strategy) Delays() []time.Duration {
	attempts := s.Attempts
	if attempts < 1 {
		attempts = 1
	}
	out := make([]time.Duration, 0, attempts-1)
	for n := 1; n < attempts; n++ {
		out = append(out, s.Wait(n))
	}
	return out
}

// permanent marks an error that must not be retried.
type permanent struct{ err error }

func (p permanent) Error() string { return p.err.Error() }
func (p permanent) Unwrap() error { return p.err }

// Permanent wraps err so Do returns it immediately without further
// attempts.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return permanent{err: err}
}

// Do calls fn until it succeeds, returns a Permanent error, the attempts
// run out or ctx is cancelled.  fn receives the 1-based attempt number.
// When attempts run out the last error is returned wrapped with
// model.ErrExhaustedRetries.  Cancellation during a wait returns
// ctx.Err() wrapped together with the last error.
func (s Strategy) Do(ctx context.Context, fn func(ctx context.Context, attempt int) error) error {
	delays := s.Delays()
	var last error
	for attempt := 1; ; attempt++ {
		last = fn(ctx, attempt)
		if last == nil {
			return nil
		}
		var p permanent
		if errors.As(last, &p) {
			return p.err
		}
		if attempt > len(delays) {
			return fmt.Errorf("%w after %d attempts: %w", model.ErrExhaustedRetries, attempt, last)
		}
		if err := Sleep(ctx, delays[attempt-1]); err != nil {
			return fmt.Errorf("%w: %w", err, last)
		}
	}
}

// Sleep waits for d or until ctx is done.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
