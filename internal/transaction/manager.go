package transaction

import (
	"context"
	"database/sql"

	"go.uber.org/zap"

	"github.com/conduit-lang/stereotype/internal/lifecycle"
)

// Run scopes fn to u: u is initialized, embedded in ctx, and exited with
// fn's outcome before being disposed.
func Run(ctx context.Context, u *UnitOfWork, fn func(ctx context.Context) error, opts ...lifecycle.Option) error {
	return lifecycle.Use(ctx, u, func(ctx context.Context, u *UnitOfWork) error {
		return fn(WithContext(ctx, u))
	}, opts...)
}

// Manager creates SQL-backed units of work
type Manager struct {
	db     *sql.DB
	level  IsolationLevel
	logger *zap.Logger
}

// NewManager creates a new transaction manager
func NewManager(db *sql.DB, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{db: db, level: ReadCommitted, logger: logger}
}

// WithIsolation returns a copy of m that begins at level
func (m *Manager) WithIsolation(level IsolationLevel) *Manager {
	c := *m
	c.level = level
	return &c
}

// DB returns the underlying database connection
func (m *Manager) DB() *sql.DB {
	return m.db
}

// New creates a unit of work. When ctx already carries an SQL unit of
// work, the new one is nested on a savepoint of its transaction.
func (m *Manager) New(ctx context.Context, autocommit bool) *UnitOfWork {
	if tx, ok := TxFromContext(ctx); ok {
		return New(NewSavepointDriver(tx), autocommit)
	}
	return New(NewSQLDriver(m.db, m.level), autocommit)
}

// Factory returns a Factory producing units of work from m
func (m *Manager) Factory(autocommit bool) Factory {
	return func(ctx context.Context) *UnitOfWork {
		return m.New(ctx, autocommit)
	}
}

// Run executes fn in an autocommit unit of work.
// Commits on success, rolls back on error or panic.
func (m *Manager) Run(ctx context.Context, fn func(ctx context.Context, tx *sql.Tx) error) error {
	u := m.New(ctx, true)
	return Run(ctx, u, func(ctx context.Context) error {
		tx, _ := Tx(u)
		return fn(ctx, tx)
	}, lifecycle.WithLogger(m.logger))
}
