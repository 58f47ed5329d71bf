package aspect

import (
	"context"

	"github.com/conduit-lang/stereotype/internal/async"
)

// Invoke runs fn through adv on the caller's goroutine. A panic in fn is
// re-raised after the exit hooks have run.
func Invoke[R any](ctx context.Context, adv Advice, name string, fn func(ctx context.Context) (R, error), opts ...Option) (R, error) {
	o := newOptions(name, opts)
	return invokeSync(ctx, adv, o, nil, fn)
}

// Func1 wraps a one-argument function
func Func1[A, R any](adv Advice, name string, fn func(ctx context.Context, a A) (R, error), opts ...Option) func(ctx context.Context, a A) (R, error) {
	o := newOptions(name, opts)
	return func(ctx context.Context, a A) (R, error) {
		return invokeSync(ctx, adv, o, []any{a}, func(ctx context.Context) (R, error) {
			return fn(ctx, a)
		})
	}
}

// Func2 wraps a two-argument function
func Func2[A, B, R any](adv Advice, name string, fn func(ctx context.Context, a A, b B) (R, error), opts ...Option) func(ctx context.Context, a A, b B) (R, error) {
	o := newOptions(name, opts)
	return func(ctx context.Context, a A, b B) (R, error) {
		return invokeSync(ctx, adv, o, []any{a, b}, func(ctx context.Context) (R, error) {
			return fn(ctx, a, b)
		})
	}
}

func invokeSync[R any](ctx context.Context, adv Advice, o *options, args []any, fn func(ctx context.Context) (R, error)) (R, error) {
	var out R
	jp := newJoinPoint(ctx, o.name, args)

	err := execute(adv, jp, func(jp *JoinPoint) {
		defer recoverTarget(jp)
		r, err := fn(jp.ctx)
		if err != nil {
			jp.fault = err
			return
		}
		out = r
		jp.result = r
	}, o)

	rethrow(jp, err)
	if err != nil {
		var zero R
		return zero, err
	}
	return out, nil
}

// InvokeAsync runs fn through adv on the configured scheduler and returns
// its outcome as a future. The chain runs on a single goroutine and
// suspends while awaiting the target; a panic in fn completes the future
// with *async.PanicError.
func InvokeAsync[R any](ctx context.Context, adv Advice, name string, fn func(ctx context.Context) (R, error), opts ...Option) *async.Future[R] {
	o := newOptions(name, opts)
	return invokeAsync(ctx, adv, o, nil, fn)
}

// Async1 wraps a one-argument function as an async invocation
func Async1[A, R any](adv Advice, name string, fn func(ctx context.Context, a A) (R, error), opts ...Option) func(ctx context.Context, a A) *async.Future[R] {
	o := newOptions(name, opts)
	return func(ctx context.Context, a A) *async.Future[R] {
		return invokeAsync(ctx, adv, o, []any{a}, func(ctx context.Context) (R, error) {
			return fn(ctx, a)
		})
	}
}

// Async2 wraps a two-argument function as an async invocation
func Async2[A, B, R any](adv Advice, name string, fn func(ctx context.Context, a A, b B) (R, error), opts ...Option) func(ctx context.Context, a A, b B) *async.Future[R] {
	o := newOptions(name, opts)
	return func(ctx context.Context, a A, b B) *async.Future[R] {
		return invokeAsync(ctx, adv, o, []any{a, b}, func(ctx context.Context) (R, error) {
			return fn(ctx, a, b)
		})
	}
}

func invokeAsync[R any](ctx context.Context, adv Advice, o *options, args []any, fn func(ctx context.Context) (R, error)) *async.Future[R] {
	return async.Submit(ctx, o.scheduler, o.name, func(ctx context.Context) (R, error) {
		var out R
		jp := newJoinPoint(ctx, o.name, args)

		err := execute(adv, jp, func(jp *JoinPoint) {
			// The target gets its own goroutine so a pool scheduler is never
			// asked to run it from one of its own workers. Exit hooks must not
			// run while the target is still going, hence Wait over Await.
			r, err := async.Go(jp.ctx, fn).Wait()
			if err != nil {
				jp.fault = err
				return
			}
			out = r
			jp.result = r
		}, o)

		if err != nil {
			var zero R
			return zero, err
		}
		return out, nil
	})
}
