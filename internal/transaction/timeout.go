package transaction

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// ErrTransactionTimeout is returned when a transaction times out
var ErrTransactionTimeout = errors.New("transaction timeout")

// RunWithTimeout runs fn in an autocommit unit of work bounded by timeout.
// If the deadline passes the unit of work is rolled back.
func (m *Manager) RunWithTimeout(ctx context.Context, timeout time.Duration, fn func(ctx context.Context, tx *sql.Tx) error) error {
	timeoutCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	err := m.Run(timeoutCtx, fn)
	if err != nil {
		if errors.Is(timeoutCtx.Err(), context.DeadlineExceeded) {
			return fmt.Errorf("%w: transaction exceeded %v", ErrTransactionTimeout, timeout)
		}
		return err
	}
	return nil
}
