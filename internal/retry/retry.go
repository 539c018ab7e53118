// Package retry provides retry logic with exponential backoff for broker and store connections
package retry

import (
	"context"
	"errors"
	"math"
	"time"

	"github.com/Sheliakhin-Golang-portfolio/EventProcessor/internal/config"
)

// Errors
var (
	// ErrMaxRetriesExceeded is returned when all retry attempts have been exhausted
	ErrMaxRetriesExceeded = errors.New("maximum retry attempts exceeded")
)

// permanentError marks an error that must not be retried
type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }

func (e *permanentError) Unwrap() error { return e.err }

// Permanent wraps err so DoWithRetry returns it immediately instead of retrying
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// DoWithRetry executes fn with retry logic according to the provided configuration.
// It returns ErrMaxRetriesExceeded wrapped with the last error if all retries fail.
func DoWithRetry(ctx context.Context, cfg *config.RetryConfig, fn func() error) error {
	return DoWithNotify(ctx, cfg, fn, nil)
}

// DoWithNotify is DoWithRetry with a callback invoked before every retry.
// attempt starts at 1 for the first retry.
func DoWithNotify(ctx context.Context, cfg *config.RetryConfig, fn func() error, notify func(attempt int, err error)) error {
	var err error

	for i := range cfg.MaxAttempts + 1 {
		// Check context before attempting
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		err = fn()
		if err == nil {
			return nil
		}

		var perm *permanentError
		if errors.As(err, &perm) {
			return perm.err
		}

		if i == cfg.MaxAttempts {
			break
		}

		if notify != nil {
			notify(i+1, err)
		}

		delay := calculateBackoff(cfg, i)

		// Wait with context cancellation support
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}

	return errors.Join(ErrMaxRetriesExceeded, err)
}

// calculateBackoff computes the backoff delay for a given attempt
func calculateBackoff(cfg *config.RetryConfig, attempt int) time.Duration {
	// Exponential backoff: baseDelayMs * (multiplier ^ attempt)
	delay := cfg.BaseDelayMs * time.Duration(math.Pow(cfg.Multiplier, float64(attempt)))

	// Cap at MaxDelay
	return min(delay, cfg.MaxDelayMs)
}
