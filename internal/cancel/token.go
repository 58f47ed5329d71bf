// Package cancel provides a cooperative cancellation flag.
package cancel

import (
	"context"
	"errors"
	"sync/atomic"
)

// ErrCancelled is returned by Err once the token is set
var ErrCancelled = errors.New("cancelled")

// Token is a cooperative cancellation signal. Work that accepts a token
// polls it at its own check points; setting it never interrupts anything.
// The zero Token is unset and ready to use.
type Token struct {
	set atomic.Bool
}

// New returns an unset token
func New() *Token {
	return &Token{}
}

// IsSet reports whether the token has been set
func (t *Token) IsSet() bool {
	return t.set.Load()
}

// Set raises the token
func (t *Token) Set() {
	t.set.Store(true)
}

// Clear lowers the token
func (t *Token) Clear() {
	t.set.Store(false)
}

// Err returns ErrCancelled if the token is set, nil otherwise
func (t *Token) Err() error {
	if t.IsSet() {
		return ErrCancelled
	}
	return nil
}

// Bind sets the token when ctx is done. Call stop to detach; it reports
// whether the binding was still in place.
func (t *Token) Bind(ctx context.Context) (stop func() bool) {
	return context.AfterFunc(ctx, t.Set)
}
