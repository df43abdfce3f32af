package common

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Veraticus/the-trades-must-flow/internal/service"
)

var (
	// ErrRateLimit indicates that the store rate limit has been exceeded.
	ErrRateLimit = errors.New("rate limit exceeded")
	// ErrMaxRetries indicates that all retry attempts have been exhausted.
	ErrMaxRetries = errors.New("max retries exceeded")
)

// RetryableError lets a caller force the retry decision for an error.
type RetryableError struct {
	Err       error
	Retryable bool
}

func (e *RetryableError) Error() string {
	return e.Err.Error()
}

func (e *RetryableError) Unwrap() error {
	return e.Err
}

// IsRetryable reports whether err is worth another attempt. A RetryableError
// overrides the classification of what it wraps.
func IsRetryable(err error) bool {
	var forced *RetryableError
	if errors.As(err, &forced) {
		return forced.Retryable
	}
	return errors.Is(err, ErrRateLimit) ||
		errors.Is(err, ErrTransient) ||
		errors.Is(err, context.DeadlineExceeded)
}

// DefaultRetryOptions fills every unset field of opts.
func DefaultRetryOptions(opts service.RetryOptions) service.RetryOptions {
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 3
	}
	if opts.InitialDelay <= 0 {
		opts.InitialDelay = 100 * time.Millisecond
	}
	if opts.MaxDelay <= 0 {
		opts.MaxDelay = 30 * time.Second
	}
	if opts.Multiplier <= 0 {
		opts.Multiplier = 2.0
	}
	return opts
}

// Backoff yields exponentially growing delays capped at MaxDelay.
type Backoff struct {
	opts service.RetryOptions
	next time.Duration
}

// NewBackoff starts a backoff at opts.InitialDelay.
func NewBackoff(opts service.RetryOptions) *Backoff {
	opts = DefaultRetryOptions(opts)
	return &Backoff{opts: opts, next: opts.InitialDelay}
}

// Next returns the delay before the following attempt. Rate limits wait out
// the longest delay.
func (b *Backoff) Next(err error) time.Duration {
	if errors.Is(err, ErrRateLimit) {
		return b.opts.MaxDelay
	}
	d := b.next
	b.next = min(time.Duration(float64(b.next)*b.opts.Multiplier), b.opts.MaxDelay)
	return d
}

// WithRetry executes an operation, retrying only errors IsRetryable accepts.
// Any other error is returned immediately.
func WithRetry(ctx context.Context, operation func() error, opts service.RetryOptions) error {
	opts = DefaultRetryOptions(opts)
	backoff := NewBackoff(opts)

	for attempt := 1; ; attempt++ {
		err := operation()
		switch {
		case err == nil:
			return nil
		case !IsRetryable(err):
			return err
		case attempt >= opts.MaxAttempts:
			return fmt.Errorf("%w after %d attempts: %w", ErrMaxRetries, opts.MaxAttempts, err)
		}

		delay := backoff.Next(err)
		slog.Warn("Store call failed, retrying",
			"attempt", attempt,
			"max_attempts", opts.MaxAttempts,
			"delay", delay,
			"error", err)

		if err := sleep(ctx, delay); err != nil {
			return err
		}
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
