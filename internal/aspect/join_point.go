package aspect

import "context"

// JoinPoint describes one invocation of a wrapped target. A join point is
// owned by its invocation and is never shared between calls.
type JoinPoint struct {
	name   string
	args   []any
	ctx    context.Context
	result any
	fault  error
	values map[any]any

	panicked   bool
	panicValue any
}

func newJoinPoint(ctx context.Context, name string, args []any) *JoinPoint {
	if ctx == nil {
		ctx = context.Background()
	}
	return &JoinPoint{name: name, args: args, ctx: ctx}
}

// Name returns the target's name
func (jp *JoinPoint) Name() string {
	return jp.name
}

// Args returns the arguments the target is invoked with, excluding a
// leading context
func (jp *JoinPoint) Args() []any {
	return jp.args
}

// Context returns the context the target will be invoked with
func (jp *JoinPoint) Context() context.Context {
	return jp.ctx
}

// SetContext replaces the context handed to the target and later hooks
func (jp *JoinPoint) SetContext(ctx context.Context) {
	if ctx != nil {
		jp.ctx = ctx
	}
}

// Result returns the target's result once it has returned
func (jp *JoinPoint) Result() any {
	return jp.result
}

// Fault returns the target's fault, nil on success
func (jp *JoinPoint) Fault() error {
	return jp.fault
}

// Set stores per-invocation state for advice
func (jp *JoinPoint) Set(key, value any) {
	if jp.values == nil {
		jp.values = make(map[any]any)
	}
	jp.values[key] = value
}

// Value returns state stored with Set, or nil
func (jp *JoinPoint) Value(key any) any {
	return jp.values[key]
}
