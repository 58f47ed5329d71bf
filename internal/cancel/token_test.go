package cancel

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToken_SetAndClear(t *testing.T) {
	var zero Token
	assert.False(t, zero.IsSet(), "zero token is unset")
	assert.False(t, New().IsSet(), "new token is unset")

	tok := New()
	tok.Set()
	assert.True(t, tok.IsSet())
	assert.ErrorIs(t, tok.Err(), ErrCancelled)

	tok.Clear()
	assert.False(t, tok.IsSet())
	assert.NoError(t, tok.Err())
}

func TestToken_PolledByWorker(t *testing.T) {
	tok := New()
	steps := make(chan int)
	done := make(chan int)

	go func() {
		n := 0
		for tok.Err() == nil {
			n++
			steps <- n
		}
		done <- n
	}()

	<-steps
	<-steps
	tok.Set()

	// Drain the step that may be in flight when the token was set
	for {
		select {
		case <-steps:
			continue
		case n := <-done:
			assert.GreaterOrEqual(t, n, 2)
			return
		case <-time.After(time.Second):
			t.Fatal("worker never observed the token")
		}
	}
}

func TestToken_ConcurrentAccess(t *testing.T) {
	tok := New()
	var wg sync.WaitGroup
	for i := range 50 {
		wg.Add(2)
		go func() {
			defer wg.Done()
			if i%2 == 0 {
				tok.Set()
			} else {
				tok.Clear()
			}
		}()
		go func() {
			defer wg.Done()
			_ = tok.IsSet()
		}()
	}
	wg.Wait()

	tok.Set()
	assert.True(t, tok.IsSet())
}

func TestToken_Bind(t *testing.T) {
	tok := New()
	ctx, cancel := context.WithCancel(context.Background())
	tok.Bind(ctx)

	assert.False(t, tok.IsSet())
	cancel()
	require.Eventually(t, tok.IsSet, time.Second, time.Millisecond)

	other := New()
	ctx2, cancel2 := context.WithCancel(context.Background())
	stop := other.Bind(ctx2)
	assert.True(t, stop())
	cancel2()
	time.Sleep(10 * time.Millisecond)
	assert.False(t, other.IsSet(), "stopped binding must not set the token")
}
