// Package transaction provides units of work: lifecycle resources that add
// commit/rollback and an autocommit policy on top of a storage driver.
package transaction

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
)

var (
	// ErrAlreadyCommitted is returned when committing or rolling back a committed unit of work
	ErrAlreadyCommitted = errors.New("transaction already committed")
	// ErrAlreadyRolledBack is returned when committing a rolled back unit of work
	ErrAlreadyRolledBack = errors.New("transaction already rolled back")
	// ErrNotActive is returned when commit or rollback is called outside the active state
	ErrNotActive = errors.New("transaction not active")
	// ErrInvalidState is returned for lifecycle calls made out of order
	ErrInvalidState = errors.New("invalid transaction state")
)

// State is the unit of work lifecycle state
type State int32

const (
	StateCreated State = iota
	StateActive
	StateClosed
	StateDisposed
)

// String returns the state name
func (s State) String() string {
	switch s {
	case StateCreated:
		return "CREATED"
	case StateActive:
		return "ACTIVE"
	case StateClosed:
		return "CLOSED"
	case StateDisposed:
		return "DISPOSED"
	default:
		return fmt.Sprintf("State(%d)", int32(s))
	}
}

// Driver performs the storage side of a unit of work
type Driver interface {
	Begin(ctx context.Context) error
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
	// Release frees whatever Begin acquired. It runs once, on dispose, for
	// every unit of work that began, whether or not it committed.
	Release(ctx context.Context) error
}

// NopDriver is a driver with no storage behind it
type NopDriver struct{}

func (NopDriver) Begin(ctx context.Context) error    { return nil }
func (NopDriver) Commit(ctx context.Context) error   { return nil }
func (NopDriver) Rollback(ctx context.Context) error { return nil }
func (NopDriver) Release(ctx context.Context) error  { return nil }

// UnitOfWork moves CREATED → ACTIVE → CLOSED → DISPOSED.
//
// With autocommit, a clean scope exit commits. Without it, a clean exit
// leaves the outcome to the caller: nothing is committed or rolled back and
// the driver is simply released. A faulting exit always rolls back.
//
// A unit of work serves one scope at a time.
type UnitOfWork struct {
	driver     Driver
	autocommit bool

	mu         sync.Mutex
	state      atomic.Int32
	began      bool
	committed  atomic.Bool
	rolledBack atomic.Bool
}

// New creates a unit of work over driver (a NopDriver if nil)
func New(driver Driver, autocommit bool) *UnitOfWork {
	if driver == nil {
		driver = NopDriver{}
	}
	return &UnitOfWork{
		driver:     driver,
		autocommit: autocommit,
	}
}

// Driver returns the storage driver
func (u *UnitOfWork) Driver() Driver {
	return u.driver
}

// Autocommit reports the policy fixed at construction
func (u *UnitOfWork) Autocommit() bool {
	return u.autocommit
}

// State returns the current lifecycle state
func (u *UnitOfWork) State() State {
	return State(u.state.Load())
}

// IsCommitted returns true if the unit of work has been committed
func (u *UnitOfWork) IsCommitted() bool {
	return u.committed.Load()
}

// IsRolledBack returns true if the unit of work has been rolled back
func (u *UnitOfWork) IsRolledBack() bool {
	return u.rolledBack.Load()
}

// Initialize begins the unit of work
func (u *UnitOfWork) Initialize(ctx context.Context) error {
	u.mu.Lock()
	defer u.mu.Unlock()

	if s := u.State(); s != StateCreated {
		return fmt.Errorf("%w: initialize from %s", ErrInvalidState, s)
	}
	if err := u.driver.Begin(ctx); err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	u.began = true
	u.state.Store(int32(StateActive))
	return nil
}

// Commit commits the unit of work
func (u *UnitOfWork) Commit(ctx context.Context) error {
	u.mu.Lock()
	defer u.mu.Unlock()

	return u.commitLocked(ctx)
}

// Rollback rolls back the unit of work. Rolling back twice is a no-op.
func (u *UnitOfWork) Rollback(ctx context.Context) error {
	u.mu.Lock()
	defer u.mu.Unlock()

	return u.rollbackLocked(ctx)
}

// Exit applies the autocommit policy for a scope that ended with fault
func (u *UnitOfWork) Exit(ctx context.Context, fault error) error {
	u.mu.Lock()
	defer u.mu.Unlock()

	if u.State() != StateActive {
		return nil
	}
	if fault != nil {
		return u.rollbackLocked(ctx)
	}
	if u.autocommit {
		return u.commitLocked(ctx)
	}
	return nil
}

// Dispose releases the driver. Disposing twice is a no-op.
func (u *UnitOfWork) Dispose(ctx context.Context) error {
	u.mu.Lock()
	defer u.mu.Unlock()

	if u.State() == StateDisposed {
		return nil
	}
	u.state.Store(int32(StateDisposed))

	if !u.began {
		return nil
	}
	if err := u.driver.Release(ctx); err != nil {
		return fmt.Errorf("failed to release transaction: %w", err)
	}
	return nil
}

func (u *UnitOfWork) commitLocked(ctx context.Context) error {
	if u.committed.Load() {
		return ErrAlreadyCommitted
	}
	if u.rolledBack.Load() {
		return ErrAlreadyRolledBack
	}
	if s := u.State(); s != StateActive {
		return fmt.Errorf("%w: commit from %s", ErrNotActive, s)
	}

	if err := u.driver.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	u.committed.Store(true)
	u.state.Store(int32(StateClosed))
	return nil
}

func (u *UnitOfWork) rollbackLocked(ctx context.Context) error {
	if u.committed.Load() {
		return ErrAlreadyCommitted
	}
	if u.rolledBack.Load() {
		return nil // Already rolled back, no-op
	}
	if s := u.State(); s != StateActive {
		return fmt.Errorf("%w: rollback from %s", ErrNotActive, s)
	}

	if err := u.driver.Rollback(ctx); err != nil {
		return fmt.Errorf("failed to rollback transaction: %w", err)
	}

	u.rolledBack.Store(true)
	u.state.Store(int32(StateClosed))
	return nil
}

// Factory creates a fresh unit of work for one logical operation
type Factory func(ctx context.Context) *UnitOfWork

// NewFactory returns a Factory of driverless units of work
func NewFactory(autocommit bool) Factory {
	return func(ctx context.Context) *UnitOfWork {
		return New(nil, autocommit)
	}
}
