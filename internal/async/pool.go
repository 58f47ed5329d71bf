package async

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"
)

var (
	// ErrPoolNotStarted is returned when submitting to a pool before Start
	ErrPoolNotStarted = errors.New("pool not started")
	// ErrPoolShutdown is returned when submitting to a pool after Shutdown
	ErrPoolShutdown = errors.New("pool shutdown")
)

type task struct {
	name  string
	ctx   context.Context
	fn    func(ctx context.Context)
	abort func(err error)
}

// Pool is a bounded worker pool implementing Scheduler. Tasks still queued
// when the pool stops are aborted with ErrPoolShutdown.
type Pool struct {
	tasks       chan task
	workerCount int
	wg          sync.WaitGroup
	ctx         context.Context
	cancel      context.CancelFunc
	started     bool
	shutdown    bool
	mu          sync.RWMutex
	logger      *zap.Logger
}

// NewPool creates a pool with workerCount workers (4 if not positive)
func NewPool(workerCount int, logger *zap.Logger) *Pool {
	if workerCount <= 0 {
		workerCount = 4
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Pool{
		tasks:       make(chan task, 100),
		workerCount: workerCount,
		ctx:         ctx,
		cancel:      cancel,
		logger:      logger,
	}
}

// Start starts the workers
func (p *Pool) Start() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.started {
		return
	}

	for i := 0; i < p.workerCount; i++ {
		p.wg.Add(1)
		go p.worker(i)
	}

	p.started = true
}

func (p *Pool) worker(id int) {
	defer p.wg.Done()

	for {
		select {
		case <-p.ctx.Done():
			return
		case t, ok := <-p.tasks:
			if !ok {
				return
			}
			p.run(id, t)
		}
	}
}

func (p *Pool) run(id int, t task) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("panic in pool task",
				zap.Int("worker", id),
				zap.String("task", t.name),
				zap.Any("panic", r),
			)
		}
	}()
	t.fn(t.ctx)
}

// Submit queues fn. It blocks while the queue is full.
func (p *Pool) Submit(ctx context.Context, name string, fn func(ctx context.Context)) error {
	return p.SubmitAbortable(ctx, name, fn, nil)
}

// SubmitAbortable queues fn like Submit. If the pool stops before fn runs,
// abort is called with ErrPoolShutdown instead.
func (p *Pool) SubmitAbortable(ctx context.Context, name string, fn func(ctx context.Context), abort func(err error)) error {
	// The read lock is held across the send so Shutdown cannot close the
	// queue underneath it.
	p.mu.RLock()
	defer p.mu.RUnlock()

	if !p.started {
		return ErrPoolNotStarted
	}
	if p.shutdown {
		return ErrPoolShutdown
	}

	select {
	case p.tasks <- task{name: name, ctx: ctx, fn: fn, abort: abort}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-p.ctx.Done():
		return ErrPoolShutdown
	}
}

// Shutdown stops accepting tasks and waits for queued tasks to finish
func (p *Pool) Shutdown() {
	p.mu.Lock()
	if !p.started || p.shutdown {
		p.mu.Unlock()
		return
	}
	p.shutdown = true
	close(p.tasks)
	p.mu.Unlock()

	p.wg.Wait()
	p.drain()
}

// Stop stops the workers without running the queue. Queued tasks are aborted.
func (p *Pool) Stop() {
	p.cancel()

	p.mu.Lock()
	p.shutdown = true
	p.mu.Unlock()

	p.wg.Wait()
	p.drain()
}

// drain aborts every task left in the queue. Workers must have exited.
func (p *Pool) drain() {
	for {
		select {
		case t, ok := <-p.tasks:
			if !ok {
				return
			}
			if t.abort == nil {
				p.logger.Warn("dropped queued task", zap.String("task", t.name))
				continue
			}
			t.abort(ErrPoolShutdown)
		default:
			return
		}
	}
}
