package aspect

import (
	"context"
	"errors"
)

// chain composes advices. Enter-side hooks run in order; exit-side hooks
// run in reverse, so the first advice wraps all the others.
type chain []Advice

// Chain composes advices into one. An empty chain is a no-op advice.
func Chain(advices ...Advice) Advice {
	c := make(chain, 0, len(advices))
	for _, a := range advices {
		if nested, ok := a.(chain); ok {
			c = append(c, nested...)
			continue
		}
		if a != nil {
			c = append(c, a)
		}
	}
	return c
}

func (c chain) Around(ctx context.Context, jp *JoinPoint, phase Phase) error {
	if phase == PhaseExit {
		var errs []error
		for i := len(c) - 1; i >= 0; i-- {
			if err := c[i].Around(jp.ctx, jp, PhaseExit); err != nil {
				errs = append(errs, err)
			}
		}
		return errors.Join(errs...)
	}

	for i, a := range c {
		if err := a.Around(jp.ctx, jp, PhaseEnter); err != nil {
			// Unwind the advices that already entered
			for j := i - 1; j >= 0; j-- {
				_ = c[j].Around(jp.ctx, jp, PhaseExit)
			}
			return err
		}
	}
	return nil
}

// Before stops at the first failure; the target will not run
func (c chain) Before(ctx context.Context, jp *JoinPoint) error {
	for _, a := range c {
		if err := a.Before(jp.ctx, jp); err != nil {
			return err
		}
	}
	return nil
}

func (c chain) AfterReturn(ctx context.Context, jp *JoinPoint) error {
	return c.reverse(func(a Advice) error { return a.AfterReturn(jp.ctx, jp) })
}

func (c chain) AfterException(ctx context.Context, jp *JoinPoint, fault error) error {
	return c.reverse(func(a Advice) error { return a.AfterException(jp.ctx, jp, fault) })
}

func (c chain) After(ctx context.Context, jp *JoinPoint) error {
	return c.reverse(func(a Advice) error { return a.After(jp.ctx, jp) })
}

func (c chain) reverse(fn func(a Advice) error) error {
	var errs []error
	for i := len(c) - 1; i >= 0; i-- {
		if err := fn(c[i]); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
