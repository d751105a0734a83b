package repository

import (
	"context"
	"errors"
	"math/rand"
	"strings"
	"time"
)

// RetryConfig controls a repository decorator's attempt loop: how many
// times to retry, the backoff schedule between attempts, and whether
// to jitter that schedule.
type RetryConfig struct {
	// MaxAttempts is the total number of attempts, including the first.
	// A value of 1 disables retrying.
	MaxAttempts int

	// InitialDelay is the delay before the first retry.
	InitialDelay time.Duration

	// MaxDelay caps the delay between attempts regardless of backoff growth.
	MaxDelay time.Duration

	// BackoffMultiplier grows the delay after each failed attempt.
	BackoffMultiplier float64

	// Jitter randomizes each delay within [0.5x, 1.5x) of its computed
	// value, spreading retries from concurrently-contending callers.
	Jitter bool
}

// DefaultReadRetryConfig is for lookups: transient contention on a read
// should clear quickly, so few attempts with short delays.
func DefaultReadRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:       3,
		InitialDelay:      50 * time.Millisecond,
		MaxDelay:          500 * time.Millisecond,
		BackoffMultiplier: 1.5,
		Jitter:            true,
	}
}

// DefaultWriteRetryConfig is for mutations: sqlite's single-writer lock
// means a write is more likely to collide with a concurrent write, so
// more attempts with longer delays than the read config.
func DefaultWriteRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:       5,
		InitialDelay:      100 * time.Millisecond,
		MaxDelay:          3 * time.Second,
		BackoffMultiplier: 2.0,
		Jitter:            true,
	}
}

// DefaultCriticalRetryConfig is for operations that must not be abandoned
// early (e.g. a transaction spanning several writes). No jitter: the
// caller's own backoff schedule is deterministic and reproducible in logs.
func DefaultCriticalRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:       7,
		InitialDelay:      200 * time.Millisecond,
		MaxDelay:          5 * time.Second,
		BackoffMultiplier: 2.0,
		Jitter:            false,
	}
}

// retryableSubstrings matches the driver-level error text that indicates
// a transient condition rather than a real failure: sqlite's locked/busy
// errors, and the connection-pool exhaustion/reset messages gorm and its
// dialects surface for postgres/mysql under load.
var retryableSubstrings = []string{
	"database is locked",
	"database is busy",
	"sqlite_busy",
	"sqlite_locked",
	"connection reset",
	"connection refused",
	"pool timeout",
	"too many connections",
}

// IsRetryable is the default retry predicate: true if err (or anything it
// wraps) looks like a transient database condition rather than a
// programming error or a genuine constraint violation.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, substr := range retryableSubstrings {
		if strings.Contains(msg, substr) {
			return true
		}
	}
	return false
}

// Retry runs fn, retrying on errors that isRetryable accepts, following
// cfg's backoff schedule. It gives up and returns fn's last error once
// cfg.MaxAttempts is reached, isRetryable rejects the error, or ctx is
// done. A nil isRetryable defaults to IsRetryable.
func Retry(ctx context.Context, cfg RetryConfig, isRetryable func(error) bool, fn func() error) error {
	if isRetryable == nil {
		isRetryable = IsRetryable
	}
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}

	delay := cfg.InitialDelay
	var lastErr error

	for attempt := 0; attempt < cfg.MaxAttempts; attempt++ {
		if attempt > 0 {
			wait := delay
			if cfg.Jitter && wait > 0 {
				wait = time.Duration(float64(wait) * (0.5 + rand.Float64()))
			}
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(wait):
			}

			delay = time.Duration(float64(delay) * cfg.BackoffMultiplier)
			if delay > cfg.MaxDelay {
				delay = cfg.MaxDelay
			}
		}

		lastErr = fn()
		if lastErr == nil {
			return nil
		}
		if !isRetryable(lastErr) {
			return lastErr
		}
	}

	return lastErr
}
