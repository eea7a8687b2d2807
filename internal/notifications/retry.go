package notifications

import (
	"context"
	"errors"
	"time"
)

// Retry defaults.
const (
	DefaultMaxAttempts = 3
	DefaultBaseDelay   = 1 * time.Second
	DefaultMaxDelay    = 30 * time.Second
)

// RetryScheduler holds the backoff policy shared by channel adapters.
// The zero value is not useful; use NewRetryScheduler or DefaultRetryScheduler.
type RetryScheduler struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

// NewRetryScheduler creates a retry scheduler, filling missing values with defaults.
func NewRetryScheduler(maxAttempts int, baseDelay, maxDelay time.Duration) RetryScheduler {
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	if baseDelay <= 0 {
		baseDelay = DefaultBaseDelay
	}
	if maxDelay <= 0 {
		maxDelay = DefaultMaxDelay
	}
	if maxDelay < baseDelay {
		maxDelay = baseDelay
	}
	return RetryScheduler{
		MaxAttempts: maxAttempts,
		BaseDelay:   baseDelay,
		MaxDelay:    maxDelay,
	}
}

// DefaultRetryScheduler returns the default retry policy.
func DefaultRetryScheduler() RetryScheduler {
	return NewRetryScheduler(DefaultMaxAttempts, DefaultBaseDelay, DefaultMaxDelay)
}

// NextDelay returns the wait after the failed attempt with zero-based index attempt:
// BaseDelay * 2^attempt, capped at MaxDelay.
func (s RetryScheduler) NextDelay(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}

	delay := s.BaseDelay
	for i := 0; i < attempt; i++ {
		delay *= 2
		if delay >= s.MaxDelay || delay <= 0 {
			return s.MaxDelay
		}
	}

	if delay > s.MaxDelay {
		return s.MaxDelay
	}
	return delay
}

// SleepFunc waits between attempts. Tests replace it to observe delays.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Run calls fn until it succeeds, returns a non-retryable error, or MaxAttempts
// is reached, sleeping NextDelay between attempts. Each call gets its own
// attemptTimeout when positive. It returns the number of calls made and the
// last error.
func (s RetryScheduler) Run(ctx context.Context, attemptTimeout time.Duration, sleep SleepFunc, fn func(ctx context.Context) error) (int, error) {
	if sleep == nil {
		sleep = Sleep
	}

	maxAttempts := max(s.MaxAttempts, 1)

	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if attempt > 0 {
			if err := sleep(ctx, s.NextDelay(attempt-1)); err != nil {
				return attempt, errors.Join(lastErr, err)
			}
		}

		lastErr = runAttempt(ctx, attemptTimeout, fn)
		if lastErr == nil {
			return attempt + 1, nil
		}
		if !IsRetryable(lastErr) {
			return attempt + 1, lastErr
		}
	}

	return maxAttempts, lastErr
}

func runAttempt(ctx context.Context, timeout time.Duration, fn func(ctx context.Context) error) error {
	if timeout <= 0 {
		return fn(ctx)
	}

	attemptCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	return fn(attemptCtx)
}

// Sleep waits for d or until ctx is done.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// IsRetryable checks if an error is retryable.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	type retryable interface {
		IsRetryable() bool
	}
	var r retryable
	if errors.As(err, &r) {
		return r.IsRetryable()
	}

	// Default: retry unknown errors
	return true
}

// RetryableError wraps an error and marks it as retryable or not.
type RetryableError struct {
	Err       error
	Retryable bool
}

func (e *RetryableError) Error() string {
	return e.Err.Error()
}

// IsRetryable returns whether the error is retryable.
func (e *RetryableError) IsRetryable() bool {
	return e.Retryable
}

func (e *RetryableError) Unwrap() error {
	return e.Err
}

// NewRetryableError creates a retryable error.
func NewRetryableError(err error) *RetryableError {
	return &RetryableError{Err: err, Retryable: true}
}

// NewNonRetryableError creates a non-retryable error.
func NewNonRetryableError(err error) *RetryableError {
	return &RetryableError{Err: err, Retryable: false}
}
