package transaction

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync/atomic"
)

// ErrNoTransaction is returned when a statement is issued outside an active SQL unit of work
var ErrNoTransaction = errors.New("no active sql transaction")

// savepointCounter provides unique savepoint names across all units of work
var savepointCounter atomic.Uint64

// IsolationLevel represents the transaction isolation level
type IsolationLevel int

const (
	// ReadUncommitted allows dirty reads
	ReadUncommitted IsolationLevel = iota
	// ReadCommitted prevents dirty reads (PostgreSQL default)
	ReadCommitted
	// RepeatableRead prevents non-repeatable reads
	RepeatableRead
	// Serializable provides full isolation
	Serializable
)

// String returns the string representation of the isolation level
func (l IsolationLevel) String() string {
	switch l {
	case ReadUncommitted:
		return "READ UNCOMMITTED"
	case ReadCommitted:
		return "READ COMMITTED"
	case RepeatableRead:
		return "REPEATABLE READ"
	case Serializable:
		return "SERIALIZABLE"
	default:
		return "READ COMMITTED"
	}
}

// ToSQLOptions converts IsolationLevel to sql.TxOptions
func (l IsolationLevel) ToSQLOptions() *sql.TxOptions {
	var level sql.IsolationLevel
	switch l {
	case ReadUncommitted:
		level = sql.LevelReadUncommitted
	case ReadCommitted:
		level = sql.LevelReadCommitted
	case RepeatableRead:
		level = sql.LevelRepeatableRead
	case Serializable:
		level = sql.LevelSerializable
	default:
		level = sql.LevelReadCommitted
	}
	return &sql.TxOptions{Isolation: level}
}

// SQLDriver runs a unit of work as a database/sql transaction.
//
// Release rolls back a transaction that was neither committed nor rolled
// back, which is how pending work of a non-autocommit unit is discarded.
type SQLDriver struct {
	db    *sql.DB
	level IsolationLevel
	tx    *sql.Tx
}

// NewSQLDriver creates a driver over db
func NewSQLDriver(db *sql.DB, level IsolationLevel) *SQLDriver {
	return &SQLDriver{db: db, level: level}
}

// Tx returns the open transaction, or nil before Begin
func (d *SQLDriver) Tx() *sql.Tx {
	return d.tx
}

// IsolationLevel returns the isolation level the driver begins with
func (d *SQLDriver) IsolationLevel() IsolationLevel {
	return d.level
}

func (d *SQLDriver) Begin(ctx context.Context) error {
	tx, err := d.db.BeginTx(ctx, d.level.ToSQLOptions())
	if err != nil {
		return err
	}
	d.tx = tx
	return nil
}

func (d *SQLDriver) Commit(ctx context.Context) error {
	return d.tx.Commit()
}

func (d *SQLDriver) Rollback(ctx context.Context) error {
	return d.tx.Rollback()
}

func (d *SQLDriver) Release(ctx context.Context) error {
	if d.tx == nil {
		return nil
	}
	if err := d.tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		return err
	}
	return nil
}

// SavepointDriver nests a unit of work inside an open transaction
type SavepointDriver struct {
	tx       *sql.Tx
	name     string
	finished bool
}

// NewSavepointDriver creates a driver that works on a savepoint of tx
func NewSavepointDriver(tx *sql.Tx) *SavepointDriver {
	return &SavepointDriver{tx: tx}
}

// Tx returns the enclosing transaction
func (d *SavepointDriver) Tx() *sql.Tx {
	return d.tx
}

// Name returns the savepoint name, empty before Begin
func (d *SavepointDriver) Name() string {
	return d.name
}

func (d *SavepointDriver) Begin(ctx context.Context) error {
	if d.tx == nil {
		return ErrNoTransaction
	}
	name := fmt.Sprintf("sp_%d", savepointCounter.Add(1))
	if _, err := d.tx.ExecContext(ctx, fmt.Sprintf("SAVEPOINT %s", name)); err != nil {
		return fmt.Errorf("failed to create savepoint: %w", err)
	}
	d.name = name
	return nil
}

func (d *SavepointDriver) Commit(ctx context.Context) error {
	if _, err := d.tx.ExecContext(ctx, fmt.Sprintf("RELEASE SAVEPOINT %s", d.name)); err != nil {
		return fmt.Errorf("failed to release savepoint: %w", err)
	}
	d.finished = true
	return nil
}

func (d *SavepointDriver) Rollback(ctx context.Context) error {
	if _, err := d.tx.ExecContext(ctx, fmt.Sprintf("ROLLBACK TO SAVEPOINT %s", d.name)); err != nil {
		return fmt.Errorf("failed to rollback to savepoint: %w", err)
	}
	d.finished = true
	return nil
}

// Release discards the savepoint's work if it was left open
func (d *SavepointDriver) Release(ctx context.Context) error {
	if d.finished {
		return nil
	}
	d.finished = true
	return d.Rollback(ctx)
}

// Tx returns the *sql.Tx behind u, if its driver has one
func Tx(u *UnitOfWork) (*sql.Tx, bool) {
	type txer interface{ Tx() *sql.Tx }
	if d, ok := u.Driver().(txer); ok && d.Tx() != nil {
		return d.Tx(), true
	}
	return nil, false
}
