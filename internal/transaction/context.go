package transaction

import (
	"context"
	"database/sql"
)

// contextKey is a type for context keys to avoid collisions
type contextKey string

const (
	// contextKeyUnitOfWork is the key for storing a unit of work in context
	contextKeyUnitOfWork contextKey = "stereotype:unit-of-work"
)

// FromContext retrieves a unit of work from the context
func FromContext(ctx context.Context) (*UnitOfWork, bool) {
	u, ok := ctx.Value(contextKeyUnitOfWork).(*UnitOfWork)
	return u, ok
}

// WithContext returns a new context with the unit of work embedded
func WithContext(ctx context.Context, u *UnitOfWork) context.Context {
	return context.WithValue(ctx, contextKeyUnitOfWork, u)
}

// MustFromContext retrieves a unit of work from the context
// Panics if none is found (use only when one is guaranteed)
func MustFromContext(ctx context.Context) *UnitOfWork {
	u, ok := FromContext(ctx)
	if !ok {
		panic("no unit of work found in context")
	}
	return u
}

// TxFromContext returns the *sql.Tx of the unit of work in ctx, if any
func TxFromContext(ctx context.Context) (*sql.Tx, bool) {
	u, ok := FromContext(ctx)
	if !ok {
		return nil, false
	}
	return Tx(u)
}
