// Package async runs work off the calling goroutine and hands back futures.
package async

import (
	"context"
	"fmt"
	"runtime/debug"
)

// PanicError carries a panic recovered from asynchronous work
type PanicError struct {
	Value any
	Stack []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("panic: %v", e.Value)
}

// Future is the eventual result of asynchronous work. It completes exactly once.
type Future[T any] struct {
	done  chan struct{}
	value T
	err   error
}

// NewFuture creates an incomplete future. Complete it with Resolve.
func NewFuture[T any]() *Future[T] {
	return &Future[T]{done: make(chan struct{})}
}

// Resolved returns a future that is already complete
func Resolved[T any](value T, err error) *Future[T] {
	f := NewFuture[T]()
	f.Resolve(value, err)
	return f
}

// Resolve completes the future. It must be called exactly once.
func (f *Future[T]) Resolve(value T, err error) {
	f.value = value
	f.err = err
	close(f.done)
}

// Done is closed when the future completes
func (f *Future[T]) Done() <-chan struct{} {
	return f.done
}

// Await blocks until the future completes or ctx is done. Abandoning the
// wait does not stop the underlying work.
func (f *Future[T]) Await(ctx context.Context) (T, error) {
	select {
	case <-f.done:
		return f.value, f.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// Wait blocks until the future completes
func (f *Future[T]) Wait() (T, error) {
	<-f.done
	return f.value, f.err
}

// Scheduler runs submitted functions asynchronously
type Scheduler interface {
	Submit(ctx context.Context, name string, fn func(ctx context.Context)) error
}

// AbortScheduler is a Scheduler that may drop accepted work. For a task it
// will never run it calls abort instead of fn.
type AbortScheduler interface {
	Scheduler
	SubmitAbortable(ctx context.Context, name string, fn func(ctx context.Context), abort func(err error)) error
}

// goroutineScheduler starts one goroutine per submission
type goroutineScheduler struct{}

func (goroutineScheduler) Submit(ctx context.Context, name string, fn func(ctx context.Context)) error {
	go fn(ctx)
	return nil
}

// Goroutines is the default scheduler: one goroutine per task
var Goroutines Scheduler = goroutineScheduler{}

// Go runs fn on a new goroutine and returns its future
func Go[T any](ctx context.Context, fn func(ctx context.Context) (T, error)) *Future[T] {
	return Submit(ctx, Goroutines, "", fn)
}

// Submit runs fn on sched and returns its future. A panic in fn completes
// the future with a *PanicError. If sched refuses the task the future
// completes with that error, as it does when an AbortScheduler drops the
// task.
func Submit[T any](ctx context.Context, sched Scheduler, name string, fn func(ctx context.Context) (T, error)) *Future[T] {
	if sched == nil {
		sched = Goroutines
	}

	f := NewFuture[T]()
	refuse := func(err error) {
		var zero T
		f.Resolve(zero, fmt.Errorf("submit %s: %w", name, err))
	}
	run := func(ctx context.Context) {
		var (
			value T
			err   error
		)
		defer func() {
			if r := recover(); r != nil {
				var zero T
				f.Resolve(zero, &PanicError{Value: r, Stack: debug.Stack()})
				return
			}
			f.Resolve(value, err)
		}()
		value, err = fn(ctx)
	}

	var err error
	if as, ok := sched.(AbortScheduler); ok {
		err = as.SubmitAbortable(ctx, name, run, refuse)
	} else {
		err = sched.Submit(ctx, name, run)
	}
	if err != nil {
		refuse(err)
	}
	return f
}
