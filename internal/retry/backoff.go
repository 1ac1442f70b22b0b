// ABOUTME: Exponential backoff for reconnecting the control channel
// ABOUTME: Configurable delays with jitter, permanent errors and failure reporting
package retry

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"time"
)

// PermanentError wraps an error to signal that retrying will not help
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string { return e.Err.Error() }
func (e *PermanentError) Unwrap() error { return e.Err }

// Permanent marks err as non-retryable
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &PermanentError{Err: err}
}

// IsPermanent reports whether err has been marked as permanent
func IsPermanent(err error) bool {
	var pe *PermanentError
	return errors.As(err, &pe)
}

// Backoff implements exponential backoff with optional jitter
type Backoff struct {
	// InitialDelay is the delay before the first retry (default 500ms)
	InitialDelay time.Duration
	// MaxDelay caps the delay (default 30s)
	MaxDelay time.Duration
	// Multiplier grows the delay each attempt (default 2.0)
	Multiplier float64
	// MaxAttempts is the total number of tries; 0 retries until ctx ends
	MaxAttempts int
	// Jitter adds ±25% randomisation
	Jitter bool
	// ReportAfter calls OnFailure once this many consecutive attempts failed,
	// and on every failure after that
	ReportAfter int
	// OnFailure observes failed attempts past ReportAfter
	OnFailure func(attempt int, err error)
}

// DefaultBackoff returns the control-channel reconnect policy
func DefaultBackoff() *Backoff {
	return &Backoff{
		InitialDelay: 500 * time.Millisecond,
		MaxDelay:     30 * time.Second,
		Multiplier:   2.0,
		MaxAttempts:  0,
		Jitter:       true,
		ReportAfter:  10,
	}
}

// Delay returns the wait after the given failed attempt (1-based), before jitter
func (b *Backoff) Delay(attempt int) time.Duration {
	initial := b.InitialDelay
	if initial <= 0 {
		initial = 500 * time.Millisecond
	}
	multiplier := b.Multiplier
	if multiplier <= 0 {
		multiplier = 2.0
	}
	maxDelay := b.MaxDelay
	if maxDelay <= 0 {
		maxDelay = 30 * time.Second
	}
	if attempt < 1 {
		attempt = 1
	}

	d := float64(initial) * math.Pow(multiplier, float64(attempt-1))
	if d > float64(maxDelay) {
		return maxDelay
	}
	return time.Duration(d)
}

// Wait sleeps for the delay after attempt, or until ctx is done
func (b *Backoff) Wait(ctx context.Context, attempt int) error {
	wait := b.Delay(attempt)
	if b.Jitter {
		wait = addJitter(wait)
	}

	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Do executes fn until it succeeds, returns a permanent error, or the
// attempt budget or ctx runs out. attempt is 1-based.
func (b *Backoff) Do(ctx context.Context, fn func(attempt int) error) error {
	for attempt := 1; ; attempt++ {
		err := fn(attempt)
		if err == nil {
			return nil
		}

		if IsPermanent(err) {
			return errors.Unwrap(err)
		}

		if b.ReportAfter > 0 && attempt >= b.ReportAfter && b.OnFailure != nil {
			b.OnFailure(attempt, err)
		}

		if b.MaxAttempts > 0 && attempt >= b.MaxAttempts {
			return fmt.Errorf("max retries (%d) exceeded: %w", b.MaxAttempts, err)
		}

		if werr := b.Wait(ctx, attempt); werr != nil {
			return fmt.Errorf("retry cancelled: %w", werr)
		}
	}
}

// addJitter adds ±25% randomisation to a duration
func addJitter(d time.Duration) time.Duration {
	quarter := float64(d) * 0.25
	delta := (rand.Float64() * 2 * quarter) - quarter
	return time.Duration(math.Max(float64(d)+delta, float64(time.Millisecond)))
}
