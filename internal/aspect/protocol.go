package aspect

import (
	"context"
	"runtime/debug"

	"github.com/conduit-lang/stereotype/internal/async"
)

type step int

const (
	stepAroundEnter step = iota
	stepBefore
	stepInvoke
	stepAfterReturn
	stepAfterException
	stepAfter
	stepAroundExit
)

func (s step) String() string {
	switch s {
	case stepAroundEnter:
		return "around(enter)"
	case stepBefore:
		return "before"
	case stepInvoke:
		return "invoke"
	case stepAfterReturn:
		return "after_return"
	case stepAfterException:
		return "after_exception"
	case stepAfter:
		return "after"
	case stepAroundExit:
		return "around(exit)"
	default:
		return "unknown"
	}
}

// protocol is the step order shared by the sync and async executors
var protocol = [...]step{
	stepAroundEnter,
	stepBefore,
	stepInvoke,
	stepAfterReturn,
	stepAfterException,
	stepAfter,
	stepAroundExit,
}

// invoker runs the target for jp and records its result, fault, or panic.
// The sync invoker calls inline; the async invoker awaits a future.
type invoker func(jp *JoinPoint)

// execute walks protocol for one invocation. It returns the target's fault
// if there was one, otherwise the first hook failure.
func execute(adv Advice, jp *JoinPoint, invoke invoker, o *options) error {
	var (
		hookErrs []error
		invoked  bool
	)

	fail := func(s step, err error) {
		hookErrs = append(hookErrs, &HookError{Step: s.String(), Name: jp.name, Err: err})
	}

	for _, s := range protocol {
		switch s {
		case stepAroundEnter:
			if err := hook(func() error { return adv.Around(jp.ctx, jp, PhaseEnter) }); err != nil {
				return &HookError{Step: s.String(), Name: jp.name, Err: err}
			}
		case stepBefore:
			if err := hook(func() error { return adv.Before(jp.ctx, jp) }); err != nil {
				fail(s, err)
			}
		case stepInvoke:
			if len(hookErrs) == 0 {
				invoke(jp)
				invoked = true
			}
		case stepAfterReturn:
			if invoked && jp.fault == nil {
				if err := hook(func() error { return adv.AfterReturn(jp.ctx, jp) }); err != nil {
					fail(s, err)
				}
			}
		case stepAfterException:
			if invoked && jp.fault != nil {
				if err := hook(func() error { return adv.AfterException(jp.ctx, jp, jp.fault) }); err != nil {
					fail(s, err)
				}
			}
		case stepAfter:
			if err := hook(func() error { return adv.After(jp.ctx, jp) }); err != nil {
				fail(s, err)
			}
		case stepAroundExit:
			if err := hook(func() error { return adv.Around(jp.ctx, jp, PhaseExit) }); err != nil {
				fail(s, err)
			}
		}
	}

	if jp.fault != nil {
		for _, err := range hookErrs {
			o.handler(jp.ctx, jp, err)
		}
		return jp.fault
	}
	if len(hookErrs) == 0 {
		return nil
	}
	for _, err := range hookErrs[1:] {
		o.handler(jp.ctx, jp, err)
	}
	return hookErrs[0]
}

// hook runs one advice hook, turning a panic into an error so the
// remaining exit hooks still run
func hook(fn func() error) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = &async.PanicError{Value: p, Stack: debug.Stack()}
		}
	}()
	return fn()
}

// recoverTarget records a target panic as jp's fault
func recoverTarget(jp *JoinPoint) {
	if p := recover(); p != nil {
		jp.fault = &async.PanicError{Value: p, Stack: debug.Stack()}
		jp.panicked = true
		jp.panicValue = p
	}
}

// rethrow re-raises a recovered target panic once the chain has finished
func rethrow(jp *JoinPoint, err error) {
	if jp.panicked && err == jp.fault {
		panic(jp.panicValue)
	}
}

// ErrorHandler receives hook failures that cannot be returned because the
// invocation already carries a fault or an earlier hook failure
type ErrorHandler func(ctx context.Context, jp *JoinPoint, err error)
