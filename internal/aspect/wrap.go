package aspect

import (
	"context"
	"fmt"
	"reflect"
	"runtime"
	"strings"
)

var (
	contextType = reflect.TypeFor[context.Context]()
	errorType   = reflect.TypeFor[error]()
)

// Wrap returns a function of exactly fn's type that runs every call
// through adv. A leading context.Context parameter becomes the join
// point's context; a trailing error result carries the fault.
//
// Hook failures of a function with no error result cannot be returned and
// are raised as panics.
func Wrap[F any](adv Advice, fn F, opts ...Option) F {
	v := reflect.ValueOf(fn)
	t := v.Type()
	if t.Kind() != reflect.Func || v.IsNil() {
		panic(fmt.Sprintf("aspect: Wrap requires a non-nil function, got %T", fn))
	}

	o := newOptions(funcName(v), opts)
	hasCtx := t.NumIn() > 0 && t.In(0) == contextType
	errIdx := -1
	if n := t.NumOut(); n > 0 && t.Out(n-1) == errorType {
		errIdx = n - 1
	}

	wrapped := reflect.MakeFunc(t, func(in []reflect.Value) []reflect.Value {
		ctx := context.Background()
		params := in
		if hasCtx {
			if c, ok := in[0].Interface().(context.Context); ok && c != nil {
				ctx = c
			}
			params = in[1:]
		}
		args := make([]any, len(params))
		for i, p := range params {
			args[i] = p.Interface()
		}

		var out []reflect.Value
		jp := newJoinPoint(ctx, o.name, args)

		err := execute(adv, jp, func(jp *JoinPoint) {
			defer recoverTarget(jp)

			call := in
			if hasCtx {
				call = append([]reflect.Value{reflect.ValueOf(&jp.ctx).Elem()}, params...)
			}
			if t.IsVariadic() {
				out = v.CallSlice(call)
			} else {
				out = v.Call(call)
			}

			if errIdx >= 0 && !out[errIdx].IsNil() {
				jp.fault = out[errIdx].Interface().(error)
				return
			}
			if len(out) > 0 && errIdx != 0 {
				jp.result = out[0].Interface()
			}
		}, o)

		rethrow(jp, err)
		if err != nil {
			if errIdx < 0 {
				panic(err)
			}
			out = zeroResults(t)
			out[errIdx] = reflect.ValueOf(&err).Elem()
			return out
		}
		if out == nil {
			out = zeroResults(t)
		}
		return out
	})

	return wrapped.Interface().(F)
}

func zeroResults(t reflect.Type) []reflect.Value {
	out := make([]reflect.Value, t.NumOut())
	for i := range out {
		out[i] = reflect.Zero(t.Out(i))
	}
	return out
}

// funcName returns the short package-qualified name of a function value
func funcName(v reflect.Value) string {
	f := runtime.FuncForPC(v.Pointer())
	if f == nil {
		return "func"
	}
	name := f.Name()
	if i := strings.LastIndex(name, "/"); i >= 0 {
		name = name[i+1:]
	}
	return name
}
