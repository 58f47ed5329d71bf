// Package aspect wraps callables in an interception chain.
//
// Every invocation of a wrapped callable runs the same ordered protocol:
//
//	Around(enter), Before, target, AfterReturn | AfterException, After, Around(exit)
//
// AfterReturn runs only on success and AfterException only on a fault. After
// and the exit half of Around always run once the enter half has succeeded.
// The target's fault is returned (or re-panicked) unchanged.
package aspect

import (
	"context"
	"fmt"
)

// Phase tells Around which half of the invocation it is wrapping
type Phase int

const (
	PhaseEnter Phase = iota
	PhaseExit
)

func (p Phase) String() string {
	switch p {
	case PhaseEnter:
		return "enter"
	case PhaseExit:
		return "exit"
	default:
		return fmt.Sprintf("Phase(%d)", int(p))
	}
}

// Advice is the behavior run around a target. Hooks run on the invocation's
// own goroutine, one at a time.
type Advice interface {
	Around(ctx context.Context, jp *JoinPoint, phase Phase) error
	Before(ctx context.Context, jp *JoinPoint) error
	AfterReturn(ctx context.Context, jp *JoinPoint) error
	AfterException(ctx context.Context, jp *JoinPoint, fault error) error
	After(ctx context.Context, jp *JoinPoint) error
}

// Base implements every hook as a no-op. Embed it and override what you need.
type Base struct{}

func (Base) Around(ctx context.Context, jp *JoinPoint, phase Phase) error { return nil }
func (Base) Before(ctx context.Context, jp *JoinPoint) error              { return nil }
func (Base) AfterReturn(ctx context.Context, jp *JoinPoint) error         { return nil }
func (Base) AfterException(ctx context.Context, jp *JoinPoint, fault error) error {
	return nil
}
func (Base) After(ctx context.Context, jp *JoinPoint) error { return nil }

// Funcs adapts optional functions to Advice. Nil functions are no-ops.
type Funcs struct {
	OnAround         func(ctx context.Context, jp *JoinPoint, phase Phase) error
	OnBefore         func(ctx context.Context, jp *JoinPoint) error
	OnAfterReturn    func(ctx context.Context, jp *JoinPoint) error
	OnAfterException func(ctx context.Context, jp *JoinPoint, fault error) error
	OnAfter          func(ctx context.Context, jp *JoinPoint) error
}

func (f Funcs) Around(ctx context.Context, jp *JoinPoint, phase Phase) error {
	if f.OnAround == nil {
		return nil
	}
	return f.OnAround(ctx, jp, phase)
}

func (f Funcs) Before(ctx context.Context, jp *JoinPoint) error {
	if f.OnBefore == nil {
		return nil
	}
	return f.OnBefore(ctx, jp)
}

func (f Funcs) AfterReturn(ctx context.Context, jp *JoinPoint) error {
	if f.OnAfterReturn == nil {
		return nil
	}
	return f.OnAfterReturn(ctx, jp)
}

func (f Funcs) AfterException(ctx context.Context, jp *JoinPoint, fault error) error {
	if f.OnAfterException == nil {
		return nil
	}
	return f.OnAfterException(ctx, jp, fault)
}

func (f Funcs) After(ctx context.Context, jp *JoinPoint) error {
	if f.OnAfter == nil {
		return nil
	}
	return f.OnAfter(ctx, jp)
}

// HookError is a failure raised by an advice hook rather than by the target
type HookError struct {
	Step string
	Name string
	Err  error
}

func (e *HookError) Error() string {
	return fmt.Sprintf("advice %s failed for %s: %v", e.Step, e.Name, e.Err)
}

func (e *HookError) Unwrap() error {
	return e.Err
}
