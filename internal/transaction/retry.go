package transaction

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrDeadlock is returned when retries on deadlock are exhausted
var ErrDeadlock = errors.New("deadlock detected")

const (
	// DefaultMaxRetries is the default number of retry attempts for deadlocks
	DefaultMaxRetries = 3
	// DefaultBaseBackoff is the default base backoff duration
	DefaultBaseBackoff = 100 * time.Millisecond
)

// RetryConfig configures retry behavior for transactions
type RetryConfig struct {
	MaxRetries  int
	BaseBackoff time.Duration
}

// DefaultRetryConfig returns the default retry configuration
func DefaultRetryConfig() *RetryConfig {
	return &RetryConfig{
		MaxRetries:  DefaultMaxRetries,
		BaseBackoff: DefaultBaseBackoff,
	}
}

// RunWithRetry runs fn in a fresh unit of work per attempt, retrying on
// deadlock and serialization failures with exponential backoff.
func (m *Manager) RunWithRetry(ctx context.Context, config *RetryConfig, fn func(ctx context.Context, tx *sql.Tx) error) error {
	if config == nil {
		config = DefaultRetryConfig()
	}

	var lastErr error
	for attempt := 0; attempt < config.MaxRetries; attempt++ {
		if ctx.Err() != nil {
			return fmt.Errorf("transaction cancelled before retry %d: %w", attempt, ctx.Err())
		}

		err := m.Run(ctx, fn)
		if err == nil {
			return nil
		}
		if !IsRetryableError(err) {
			return err
		}
		lastErr = err

		backoff := config.BaseBackoff * time.Duration(1<<uint(attempt))
		select {
		case <-ctx.Done():
			return fmt.Errorf("transaction cancelled during retry: %w", ctx.Err())
		case <-time.After(backoff):
		}
	}

	return fmt.Errorf("%w: transaction failed after %d retries: %v", ErrDeadlock, config.MaxRetries, lastErr)
}

// isDeadlockError checks for PostgreSQL and MySQL deadlock messages
func isDeadlockError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, s := range []string{
		"40p01",
		"deadlock detected",
		"deadlock found",
		"lock wait timeout exceeded",
	} {
		if strings.Contains(msg, s) {
			return true
		}
	}
	return false
}

// isSerializationError checks for serialization failures (SQLSTATE 40001)
func isSerializationError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "40001") || strings.Contains(msg, "could not serialize access")
}

// IsRetryableError reports whether err is worth retrying in a new transaction
func IsRetryableError(err error) bool {
	return isDeadlockError(err) || isSerializationError(err)
}
