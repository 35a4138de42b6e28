// Package retry implements bounded exponential backoff for calls to
// external providers and other transient-failure-prone operations.
package retry

import (
	"context"
	"errors"
	"math/rand"
	"time"
)

// ErrMaxAttemptsExceeded is returned when the operation kept failing after
// the final attempt. The last underlying error is wrapped.
var ErrMaxAttemptsExceeded = errors.New("max retry attempts exceeded")

// Config controls the backoff schedule.
type Config struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	Multiplier  float64
}

// DefaultConfig returns the schedule used for provider calls: 3 attempts,
// 500ms base, capped at 5s.
func DefaultConfig() Config {
	return Config{
		MaxAttempts: 3,
		BaseDelay:   500 * time.Millisecond,
		MaxDelay:    5 * time.Second,
		Multiplier:  2.0,
	}
}

// RetryableFunc reports whether an error is worth retrying.
type RetryableFunc func(error) bool

// WithExponentialBackoff runs op until it succeeds, the retryable classifier
// rejects the error, attempts run out, or the context is done. Delays carry
// up to 10% jitter to avoid thundering-herd retries against a recovering
// provider.
func WithExponentialBackoff(ctx context.Context, cfg Config, op func() error, retryable RetryableFunc) error {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 1
	}
	if cfg.Multiplier <= 1 {
		cfg.Multiplier = 2.0
	}

	var lastErr error
	delay := cfg.BaseDelay

	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		lastErr = op()
		if lastErr == nil {
			return nil
		}

		if retryable != nil && !retryable(lastErr) {
			return lastErr
		}

		if attempt == cfg.MaxAttempts {
			break
		}

		sleep := jitter(delay)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(sleep):
		}

		delay = time.Duration(float64(delay) * cfg.Multiplier)
		if cfg.MaxDelay > 0 && delay > cfg.MaxDelay {
			delay = cfg.MaxDelay
		}
	}

	return errors.Join(ErrMaxAttemptsExceeded, lastErr)
}

func jitter(d time.Duration) time.Duration {
	if d <= 0 {
		return 0
	}
	spread := int64(float64(d) * 0.1)
	if spread == 0 {
		return d
	}
	return d + time.Duration(rand.Int63n(2*spread)-spread)
}
