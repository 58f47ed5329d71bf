// Package lifecycle scopes the use of a resource between a paired
// Initialize and Dispose, however the scope exits.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"

	"go.uber.org/zap"

	"github.com/conduit-lang/stereotype/internal/async"
)

// Resource is anything with a paired initialize/dispose
type Resource interface {
	Initialize(ctx context.Context) error
	Dispose(ctx context.Context) error
}

// ExitHandler is implemented by resources that react to how a scope ended.
// Exit runs after the scope body and before Dispose; fault is nil on a
// clean exit.
type ExitHandler interface {
	Exit(ctx context.Context, fault error) error
}

// Option configures a scope
type Option func(*options)

type options struct {
	logger    *zap.Logger
	scheduler async.Scheduler
}

// WithLogger reports cleanup errors that cannot be returned because the
// scope is already exiting with a fault
func WithLogger(logger *zap.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithScheduler sets where UseAsync runs its scope
func WithScheduler(s async.Scheduler) Option {
	return func(o *options) {
		if s != nil {
			o.scheduler = s
		}
	}
}

func newOptions(opts []Option) *options {
	o := &options{
		logger:    zap.NewNop(),
		scheduler: async.Goroutines,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Use initializes r, runs fn, and disposes r exactly once.
//
// If Initialize fails nothing else runs. The error returned by fn comes back
// unchanged; cleanup errors on that path are logged rather than joined.
// After a clean body, Exit and Dispose errors are returned. A panic in fn
// is re-raised once r has been released.
func Use[R Resource](ctx context.Context, r R, fn func(ctx context.Context, r R) error, opts ...Option) error {
	o := newOptions(opts)

	if err := r.Initialize(ctx); err != nil {
		return fmt.Errorf("initialize: %w", err)
	}

	fault, recovered, panicked := invoke(ctx, r, fn)
	cleanupErr := release(ctx, r, fault)

	if fault != nil {
		if cleanupErr != nil {
			o.logger.Error("resource cleanup failed while exiting with a fault",
				zap.NamedError("fault", fault),
				zap.Error(cleanupErr),
			)
		}
		if panicked {
			panic(recovered)
		}
		return fault
	}
	return cleanupErr
}

// UseAsync runs Use on a scheduler and returns the body's result as a
// future. A panic in fn completes the future with *async.PanicError.
func UseAsync[R Resource, T any](ctx context.Context, r R, fn func(ctx context.Context, r R) (T, error), opts ...Option) *async.Future[T] {
	o := newOptions(opts)

	return async.Submit(ctx, o.scheduler, "lifecycle.use", func(ctx context.Context) (T, error) {
		var out T
		err := Use(ctx, r, func(ctx context.Context, r R) error {
			v, err := fn(ctx, r)
			out = v
			return err
		}, opts...)
		return out, err
	})
}

func invoke[R Resource](ctx context.Context, r R, fn func(ctx context.Context, r R) error) (fault error, recovered any, panicked bool) {
	defer func() {
		if p := recover(); p != nil {
			fault = &async.PanicError{Value: p, Stack: debug.Stack()}
			recovered = p
			panicked = true
		}
	}()
	return fn(ctx, r), nil, false
}

// release runs Exit (if implemented) then Dispose; Dispose runs even if Exit fails
func release(ctx context.Context, r Resource, fault error) error {
	var errs []error
	if h, ok := r.(ExitHandler); ok {
		if err := h.Exit(ctx, fault); err != nil {
			errs = append(errs, fmt.Errorf("exit: %w", err))
		}
	}
	if err := r.Dispose(ctx); err != nil {
		errs = append(errs, fmt.Errorf("dispose: %w", err))
	}
	return errors.Join(errs...)
}

// Funcs adapts a pair of functions to Resource. Nil functions are no-ops.
type Funcs struct {
	OnInitialize func(ctx context.Context) error
	OnDispose    func(ctx context.Context) error
}

func (f Funcs) Initialize(ctx context.Context) error {
	if f.OnInitialize == nil {
		return nil
	}
	return f.OnInitialize(ctx)
}

func (f Funcs) Dispose(ctx context.Context) error {
	if f.OnDispose == nil {
		return nil
	}
	return f.OnDispose(ctx)
}
