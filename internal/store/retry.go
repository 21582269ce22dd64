package store

import (
	"fmt"
	"math/rand"
	"strings"
	"time"

	"github.com/charmbracelet/log"
)

// RetryConfig holds lock-retry configuration for database operations.
type RetryConfig struct {
	MaxAttempts int           // Maximum number of attempts (including the first)
	InitialWait time.Duration // Initial wait duration (doubled each retry)
	MaxWait     time.Duration // Maximum wait duration between retries
}

// DefaultRetryConfig returns the retry configuration used by the typed
// analysis stores and the pruner.
func DefaultRetryConfig() *RetryConfig {
	return &RetryConfig{
		MaxAttempts: 4,
		InitialWait: 20 * time.Millisecond,
		MaxWait:     250 * time.Millisecond,
	}
}

var lockedTokens = []string{
	"database is locked",
	"database is busy",
	"locked",
	"busy",
}

// IsLockError reports whether an error is a transient SQLite writer-lock
// condition worth retrying. Anything else must propagate immediately.
func IsLockError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, token := range lockedTokens {
		if strings.Contains(msg, token) {
			return true
		}
	}
	return false
}

// WithLockRetry executes a database operation with bounded exponential
// backoff on transient lock contention. Non-lock errors are returned
// immediately; exhausting attempts surfaces the last lock error wrapped,
// never silently swallowed.
func WithLockRetry[T any](cfg *RetryConfig, operationName string, operation func() (T, error)) (T, error) {
	var result T
	var err error

	if cfg == nil {
		cfg = DefaultRetryConfig()
	}

	wait := cfg.InitialWait

	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		result, err = operation()
		if err == nil {
			if attempt > 1 {
				log.Debug("lock retry succeeded", "op", operationName, "attempt", attempt)
			}
			return result, nil
		}

		if !IsLockError(err) {
			return result, err
		}

		if attempt == cfg.MaxAttempts {
			log.Warn("lock retry exhausted", "op", operationName, "attempts", cfg.MaxAttempts, "err", err)
			return result, fmt.Errorf("max retries exceeded (%d attempts): %w", cfg.MaxAttempts, err)
		}

		// Up to 50% random jitter keeps competing writers from
		// re-colliding on the same schedule.
		sleep := wait + time.Duration(rand.Int63n(int64(wait)/2+1))
		if sleep > cfg.MaxWait {
			sleep = cfg.MaxWait
		}
		log.Debug("lock retry", "op", operationName, "attempt", attempt, "wait", sleep, "err", err)
		time.Sleep(sleep)

		wait *= 2
		if wait > cfg.MaxWait {
			wait = cfg.MaxWait
		}
	}

	return result, err
}

// LockRetry is a convenience wrapper for operations without a result.
func LockRetry(cfg *RetryConfig, operationName string, operation func() error) error {
	_, err := WithLockRetry(cfg, operationName, func() (struct{}, error) {
		return struct{}{}, operation()
	})
	return err
}
