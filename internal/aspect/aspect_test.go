package aspect

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/conduit-lang/stereotype/internal/async"
)

// recorder records hook calls in order
type recorder struct {
	Base
	mu    sync.Mutex
	calls []string
	fail  map[string]error
}

func newRecorder() *recorder {
	return &recorder{fail: map[string]error{}}
}

func (r *recorder) record(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, name)
	return r.fail[name]
}

func (r *recorder) Around(ctx context.Context, jp *JoinPoint, phase Phase) error {
	return r.record("around:" + phase.String())
}

func (r *recorder) Before(ctx context.Context, jp *JoinPoint) error {
	return r.record("before")
}

func (r *recorder) AfterReturn(ctx context.Context, jp *JoinPoint) error {
	return r.record("after_return")
}

func (r *recorder) AfterException(ctx context.Context, jp *JoinPoint, fault error) error {
	return r.record("after_exception")
}

func (r *recorder) After(ctx context.Context, jp *JoinPoint) error {
	return r.record("after")
}

func (r *recorder) Calls() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.calls...)
}

var (
	successOrder = []string{"around:enter", "before", "after_return", "after", "around:exit"}
	faultOrder   = []string{"around:enter", "before", "after_exception", "after", "around:exit"}
)

func TestInvoke_SuccessOrder(t *testing.T) {
	r := newRecorder()

	v, err := Invoke(context.Background(), r, "answer", func(ctx context.Context) (int, error) {
		return 42, nil
	})

	require.NoError(t, err)
	assert.Equal(t, 42, v)
	assert.Equal(t, successOrder, r.Calls())
}

func TestInvoke_FaultOrderAndIdentity(t *testing.T) {
	r := newRecorder()
	boom := errors.New("Mike?")

	_, err := Invoke(context.Background(), r, "fails", func(ctx context.Context) (bool, error) {
		return false, boom
	})

	assert.Same(t, boom, err)
	assert.Equal(t, faultOrder, r.Calls())
	assert.NotContains(t, r.Calls(), "after_return")
}

func TestInvoke_PanicRethrownAfterExitHooks(t *testing.T) {
	r := newRecorder()

	assert.PanicsWithValue(t, "kaboom", func() {
		_, _ = Invoke(context.Background(), r, "panics", func(ctx context.Context) (int, error) {
			panic("kaboom")
		})
	})
	assert.Equal(t, faultOrder, r.Calls())
}

func TestInvoke_HookFaults(t *testing.T) {
	t.Run("around enter aborts the call", func(t *testing.T) {
		r := newRecorder()
		r.fail["around:enter"] = errors.New("denied")
		called := false

		_, err := Invoke(context.Background(), r, "guarded", func(ctx context.Context) (int, error) {
			called = true
			return 1, nil
		})

		var he *HookError
		require.ErrorAs(t, err, &he)
		assert.Equal(t, "around(enter)", he.Step)
		assert.ErrorIs(t, err, r.fail["around:enter"])
		assert.False(t, called)
		assert.Equal(t, []string{"around:enter"}, r.Calls())
	})

	t.Run("before failure skips the target but releases", func(t *testing.T) {
		r := newRecorder()
		r.fail["before"] = errors.New("no connection")
		called := false

		_, err := Invoke(context.Background(), r, "guarded", func(ctx context.Context) (int, error) {
			called = true
			return 1, nil
		})

		assert.ErrorIs(t, err, r.fail["before"])
		assert.False(t, called)
		assert.Equal(t, []string{"around:enter", "before", "after", "around:exit"}, r.Calls())
	})

	t.Run("after_return failure surfaces on success", func(t *testing.T) {
		r := newRecorder()
		r.fail["after_return"] = errors.New("commit failed")
		r.fail["after"] = errors.New("close failed")

		core, logs := observer.New(zap.ErrorLevel)
		v, err := Invoke(context.Background(), r, "commits", func(ctx context.Context) (int, error) {
			return 1, nil
		}, WithLogger(zap.New(core)))

		assert.ErrorIs(t, err, r.fail["after_return"])
		assert.Zero(t, v)
		assert.Equal(t, successOrder, r.Calls())
		assert.Equal(t, 1, logs.Len(), "later hook failures go to the handler")
	})

	t.Run("original fault wins over hook faults", func(t *testing.T) {
		r := newRecorder()
		r.fail["after_exception"] = errors.New("rollback failed")
		boom := errors.New("boom")

		var handled []error
		_, err := Invoke(context.Background(), r, "fails", func(ctx context.Context) (int, error) {
			return 0, boom
		}, WithErrorHandler(func(ctx context.Context, jp *JoinPoint, err error) {
			handled = append(handled, err)
		}))

		assert.Same(t, boom, err)
		assert.Equal(t, faultOrder, r.Calls())
		require.Len(t, handled, 1)
		assert.ErrorIs(t, handled[0], r.fail["after_exception"])
	})

	t.Run("hook panic still releases", func(t *testing.T) {
		r := newRecorder()
		adv := Chain(Funcs{OnBefore: func(ctx context.Context, jp *JoinPoint) error {
			panic("hook exploded")
		}}, r)

		_, err := Invoke(context.Background(), adv, "target", func(ctx context.Context) (int, error) {
			return 1, nil
		})

		var pe *async.PanicError
		require.ErrorAs(t, err, &pe)
		assert.Equal(t, "hook exploded", pe.Value)
		assert.Equal(t, []string{"around:enter", "after", "around:exit"}, r.Calls())
	})
}

func TestJoinPoint_ContextReachesTarget(t *testing.T) {
	type key struct{}
	adv := Funcs{
		OnBefore: func(ctx context.Context, jp *JoinPoint) error {
			jp.SetContext(context.WithValue(ctx, key{}, "from advice"))
			jp.Set("started", true)
			return nil
		},
		OnAfter: func(ctx context.Context, jp *JoinPoint) error {
			if jp.Value("started") != true {
				return errors.New("lost per-invocation state")
			}
			return nil
		},
	}

	v, err := Invoke(context.Background(), adv, "reads", func(ctx context.Context) (string, error) {
		return ctx.Value(key{}).(string), nil
	})

	require.NoError(t, err)
	assert.Equal(t, "from advice", v)
}

func TestFunc2_ArgsAndResult(t *testing.T) {
	var seen *JoinPoint
	adv := Funcs{OnAfter: func(ctx context.Context, jp *JoinPoint) error {
		seen = jp
		return nil
	}}

	authenticate := Func2(adv, "authenticate", func(ctx context.Context, user, password string) (bool, error) {
		return user == "John" && password == "1234", nil
	})

	ok, err := authenticate(context.Background(), "John", "1234")
	require.NoError(t, err)
	assert.True(t, ok)
	require.NotNil(t, seen)
	assert.Equal(t, "authenticate", seen.Name())
	assert.Equal(t, []any{"John", "1234"}, seen.Args())
	assert.Equal(t, true, seen.Result())
	assert.NoError(t, seen.Fault())
}

func TestFunc1_IndependentInvocations(t *testing.T) {
	r := newRecorder()
	double := Func1(r, "double", func(ctx context.Context, n int) (int, error) {
		return n * 2, nil
	})

	var wg sync.WaitGroup
	for i := range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			v, err := double(context.Background(), i)
			assert.NoError(t, err)
			assert.Equal(t, i*2, v)
		}()
	}
	wg.Wait()
	assert.Len(t, r.Calls(), 8*len(successOrder))
}

func TestChain_NestsInOrder(t *testing.T) {
	var events []string
	named := func(name string) Advice {
		return Funcs{
			OnAround: func(ctx context.Context, jp *JoinPoint, phase Phase) error {
				events = append(events, name+":"+phase.String())
				return nil
			},
			OnBefore: func(ctx context.Context, jp *JoinPoint) error {
				events = append(events, name+":before")
				return nil
			},
			OnAfter: func(ctx context.Context, jp *JoinPoint) error {
				events = append(events, name+":after")
				return nil
			},
		}
	}

	_, err := Invoke(context.Background(), Chain(named("outer"), Chain(named("inner"))), "t", func(ctx context.Context) (int, error) {
		events = append(events, "target")
		return 0, nil
	})

	require.NoError(t, err)
	assert.Equal(t, []string{
		"outer:enter", "inner:enter",
		"outer:before", "inner:before",
		"target",
		"inner:after", "outer:after",
		"inner:exit", "outer:exit",
	}, events)
}

func TestChain_EnterFailureUnwinds(t *testing.T) {
	first := newRecorder()
	second := newRecorder()
	second.fail["around:enter"] = errors.New("closed")

	_, err := Invoke(context.Background(), Chain(first, second), "t", func(ctx context.Context) (int, error) {
		return 0, nil
	})

	assert.ErrorIs(t, err, second.fail["around:enter"])
	assert.Equal(t, []string{"around:enter", "around:exit"}, first.Calls())
	assert.Equal(t, []string{"around:enter"}, second.Calls())
}

func TestInvokeAsync_Order(t *testing.T) {
	r := newRecorder()

	f := InvokeAsync(context.Background(), r, "async", func(ctx context.Context) (string, error) {
		return "done", nil
	})
	v, err := f.Wait()
	require.NoError(t, err)
	assert.Equal(t, "done", v)
	assert.Equal(t, successOrder, r.Calls())

	r = newRecorder()
	boom := errors.New("async boom")
	_, err = InvokeAsync(context.Background(), r, "async", func(ctx context.Context) (string, error) {
		return "", boom
	}).Wait()
	assert.Same(t, boom, err)
	assert.Equal(t, faultOrder, r.Calls())
}

func TestInvokeAsync_PanicSurfacesAsError(t *testing.T) {
	r := newRecorder()

	_, err := InvokeAsync(context.Background(), r, "async", func(ctx context.Context) (int, error) {
		panic("async kaboom")
	}).Wait()

	var pe *async.PanicError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, "async kaboom", pe.Value)
	assert.Equal(t, faultOrder, r.Calls())
}

func TestAsync2_OnPool(t *testing.T) {
	pool := async.NewPool(1, nil)
	pool.Start()
	defer pool.Shutdown()

	r := newRecorder()
	add := Async2(r, "add", func(ctx context.Context, a, b int) (int, error) {
		return a + b, nil
	}, WithScheduler(pool))

	futures := make([]*async.Future[int], 5)
	for i := range futures {
		futures[i] = add(context.Background(), i, i)
	}
	for i, f := range futures {
		v, err := f.Wait()
		require.NoError(t, err)
		assert.Equal(t, 2*i, v)
	}

	single := Async1(r, "neg", func(ctx context.Context, a int) (int, error) { return -a, nil }, WithScheduler(pool))
	v, err := single(context.Background(), 3).Wait()
	require.NoError(t, err)
	assert.Equal(t, -3, v)
}

func authenticate(ctx context.Context, user string, password string) (bool, error) {
	if user == "Mike?" {
		return false, fmt.Errorf("unknown user %q", user)
	}
	return user == "John" && password == "1234", nil
}

func TestWrap_KeepsSignature(t *testing.T) {
	r := newRecorder()
	wrapped := Wrap(r, authenticate)

	assert.Equal(t, reflect.TypeOf(authenticate), reflect.TypeOf(wrapped))

	ok, err := wrapped(context.Background(), "John", "1234")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, successOrder, r.Calls())

	r = newRecorder()
	_, err = Wrap(r, authenticate)(context.Background(), "Mike?", "")
	assert.EqualError(t, err, `unknown user "Mike?"`)
	assert.Equal(t, faultOrder, r.Calls())
}

func TestWrap_NameAndContext(t *testing.T) {
	type key struct{}
	var name string
	adv := Funcs{OnBefore: func(ctx context.Context, jp *JoinPoint) error {
		name = jp.Name()
		jp.SetContext(context.WithValue(ctx, key{}, 7))
		return nil
	}}

	read := Wrap(adv, func(ctx context.Context) (int, error) {
		return ctx.Value(key{}).(int), nil
	}, WithName("read"))

	v, err := read(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 7, v)
	assert.Equal(t, "read", name)

	assert.Contains(t, funcName(reflect.ValueOf(authenticate)), "aspect.authenticate")
}

func TestWrap_NoErrorResult(t *testing.T) {
	r := newRecorder()
	sum := Wrap(r, func(nums ...int) int {
		total := 0
		for _, n := range nums {
			total += n
		}
		return total
	})

	assert.Equal(t, 6, sum(1, 2, 3))
	assert.Equal(t, successOrder, r.Calls())

	failing := newRecorder()
	failing.fail["before"] = errors.New("refused")
	noop := Wrap(failing, func() {})
	assert.Panics(t, func() { noop() }, "hook failures without an error result are raised")
}

func TestWrap_PanicRethrown(t *testing.T) {
	r := newRecorder()
	explode := Wrap(r, func(ctx context.Context) error {
		panic("wrapped kaboom")
	})

	assert.PanicsWithValue(t, "wrapped kaboom", func() { _ = explode(context.Background()) })
	assert.Equal(t, faultOrder, r.Calls())
}

func TestWrap_RejectsNonFunc(t *testing.T) {
	assert.Panics(t, func() { Wrap(Base{}, 42) })
}
