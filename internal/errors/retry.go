package errors

import (
	"context"
	"errors"
	"math"
	"time"
)

const (
	MaxRetries        = 3
	InitialBackoff    = 100 * time.Millisecond
	MaxBackoff        = 5 * time.Second
	BackoffMultiplier = 2.0
)

// WithRetry runs fn until it succeeds, returns a non-retryable error, or MaxRetries is exhausted.
func WithRetry(ctx context.Context, fn func() error) error {
	if fn == nil {
		return nil
	}

	if ctx == nil {
		ctx = context.Background()
	}

	var err error
	for attempt := 0; attempt <= MaxRetries; attempt++ {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}

		err = fn()
		if err == nil {
			return nil
		}

		if !IsRetryable(err) || attempt == MaxRetries {
			return err
		}

		if sleepErr := Sleep(ctx, calculateBackoffDuration(attempt+1, InitialBackoff, MaxBackoff)); sleepErr != nil {
			return sleepErr
		}
	}

	return err
}

func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	var appErr *AppError
	if errors.As(err, &appErr) && appErr != nil {
		return appErr.Retryable
	}

	return false
}

// Sleep waits for d or until ctx is done.
func Sleep(ctx context.Context, d time.Duration) error {
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

// Backoff produces a bounded exponential delay sequence. The zero value is not usable; see NewBackoff.
type Backoff struct {
	initial time.Duration
	max     time.Duration
	attempt int
}

func NewBackoff(initial, max time.Duration) *Backoff {
	if initial <= 0 {
		initial = InitialBackoff
	}
	if max < initial {
		max = initial
	}
	return &Backoff{initial: initial, max: max}
}

// Next returns the next delay and advances the sequence.
func (b *Backoff) Next() time.Duration {
	d := calculateBackoffDuration(b.attempt, b.initial, b.max)
	if d < b.max {
		b.attempt++
	}
	return d
}

// Reset starts the sequence over.
func (b *Backoff) Reset() {
	b.attempt = 0
}

func calculateBackoffDuration(attempt int, initial, max time.Duration) time.Duration {
	delay := float64(initial) * math.Pow(BackoffMultiplier, float64(attempt))
	if delay > float64(max) {
		return max
	}

	return time.Duration(delay)
}
