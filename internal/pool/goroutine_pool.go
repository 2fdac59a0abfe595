// Package pool provides a bounded goroutine pool for event fan-out.
package pool

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"
)

var (
	// ErrPoolClosed reports a submission after Close.
	ErrPoolClosed = errors.New("pool is closed")

	// ErrPoolFull reports that the queue and the worker budget are both
	// exhausted, so the task was not accepted.
	ErrPoolFull = errors.New("pool is full")
)

// Task is a unit of work executed on a pool worker.
type Task func(ctx context.Context) error

// GoroutinePoolConfig configures worker and queue limits.
type GoroutinePoolConfig struct {
	MaxWorkers   int           `json:"max_workers"`
	QueueSize    int           `json:"queue_size"`
	IdleTimeout  time.Duration `json:"idle_timeout"`
	PanicHandler func(any)     `json:"-"`
}

// DefaultGoroutinePoolConfig returns sensible defaults.
func DefaultGoroutinePoolConfig() GoroutinePoolConfig {
	return GoroutinePoolConfig{MaxWorkers: 100, QueueSize: 1000, IdleTimeout: 60 * time.Second}
}

func (c GoroutinePoolConfig) withDefaults() GoroutinePoolConfig {
	d := DefaultGoroutinePoolConfig()
	if c.MaxWorkers <= 0 {
		c.MaxWorkers = d.MaxWorkers
	}
	if c.QueueSize <= 0 {
		c.QueueSize = d.QueueSize
	}
	if c.IdleTimeout <= 0 {
		c.IdleTimeout = d.IdleTimeout
	}
	return c
}

// GoroutinePool runs tasks on a bounded set of worker goroutines. The
// handoff orchestrator pushes subscriber notifications through one so a
// burst of lifecycle events cannot fan out into unbounded goroutines.
//
// Workers spawn on demand up to MaxWorkers and retire after IdleTimeout,
// except the last one, which stays resident to drain late arrivals.
type GoroutinePool struct {
	queue       chan job
	maxWorkers  int
	idleTimeout time.Duration
	onPanic     func(any)

	workers atomic.Int32
	active  atomic.Int32

	submitted atomic.Int64
	completed atomic.Int64
	failed    atomic.Int64
	rejected  atomic.Int64

	closed  atomic.Bool
	closeMu sync.RWMutex
	wg      sync.WaitGroup
}

// job pairs a task with its context. done is nil for fire-and-forget
// submissions.
type job struct {
	fn   Task
	ctx  context.Context
	done chan error
}

// NewGoroutinePool creates a pool. Zero or negative config values fall
// back to DefaultGoroutinePoolConfig.
func NewGoroutinePool(config GoroutinePoolConfig) *GoroutinePool {
	config = config.withDefaults()
	return &GoroutinePool{
		queue:       make(chan job, config.QueueSize),
		maxWorkers:  config.MaxWorkers,
		idleTimeout: config.IdleTimeout,
		onPanic:     config.PanicHandler,
	}
}

// Submit queues a task without waiting for it to run. When the queue is
// full and no worker can be added, the task is dropped with ErrPoolFull.
func (p *GoroutinePool) Submit(ctx context.Context, task Task) error {
	// The read lock orders submissions against Close so the queue is
	// never written after it is closed.
	p.closeMu.RLock()
	defer p.closeMu.RUnlock()

	if p.closed.Load() {
		return ErrPoolClosed
	}
	p.submitted.Add(1)

	j := job{fn: task, ctx: ctx}
	select {
	case p.queue <- j:
		p.grow()
		return nil
	default:
	}

	// Queue full. A fresh worker frees a slot almost immediately, so
	// retry once after growing before dropping the task.
	if p.grow() {
		select {
		case p.queue <- j:
			return nil
		default:
		}
	}
	p.rejected.Add(1)
	return ErrPoolFull
}

// SubmitWait queues a task and blocks until it finishes or ctx expires.
// It returns the task's own error, if any.
func (p *GoroutinePool) SubmitWait(ctx context.Context, task Task) error {
	j := job{fn: task, ctx: ctx, done: make(chan error, 1)}
	if err := p.enqueue(ctx, j); err != nil {
		return err
	}

	select {
	case err := <-j.done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// enqueue blocks until the job is queued or ctx expires. The read lock
// covers only the handoff to the queue, never the wait for the result,
// so a slow task cannot stall Close.
func (p *GoroutinePool) enqueue(ctx context.Context, j job) error {
	p.closeMu.RLock()
	defer p.closeMu.RUnlock()

	if p.closed.Load() {
		return ErrPoolClosed
	}
	p.submitted.Add(1)

	select {
	case p.queue <- j:
		p.grow()
		return nil
	case <-ctx.Done():
		p.rejected.Add(1)
		return ctx.Err()
	}
}

// grow starts another worker if the budget allows and reports whether
// one was started.
func (p *GoroutinePool) grow() bool {
	for {
		n := p.workers.Load()
		if n >= int32(p.maxWorkers) {
			return false
		}
		if p.workers.CompareAndSwap(n, n+1) {
			p.wg.Add(1)
			go p.work()
			return true
		}
	}
}

func (p *GoroutinePool) work() {
	defer p.wg.Done()
	defer p.workers.Add(-1)

	idle := time.NewTimer(p.idleTimeout)
	defer idle.Stop()

	for {
		select {
		case j, ok := <-p.queue:
			if !ok {
				return
			}
			p.handle(j)
			idle.Reset(p.idleTimeout)
		case <-idle.C:
			// The last worker stays resident so a task enqueued while
			// workers retire is always picked up.
			if p.workers.Load() > 1 {
				return
			}
			idle.Reset(p.idleTimeout)
		}
	}
}

func (p *GoroutinePool) handle(j job) {
	p.active.Add(1)
	err := p.invoke(j)
	p.active.Add(-1)

	if j.done != nil {
		j.done <- err
		close(j.done)
	}
	if err != nil {
		p.failed.Add(1)
		return
	}
	p.completed.Add(1)
}

// invoke runs the task and converts a panic into an error after handing
// the recovered value to the configured panic handler.
func (p *GoroutinePool) invoke(j job) (err error) {
	defer func() {
		r := recover()
		if r == nil {
			return
		}
		if p.onPanic != nil {
			p.onPanic(r)
		}
		err = errors.New("task panicked")
	}()
	return j.fn(j.ctx)
}

// Close rejects further submissions and waits for the workers to drain
// the queue. It is safe to call more than once.
func (p *GoroutinePool) Close() {
	p.closeMu.Lock()
	if p.closed.Swap(true) {
		p.closeMu.Unlock()
		return
	}
	close(p.queue)
	p.closeMu.Unlock()

	p.wg.Wait()
}

// GoroutinePoolStats is a point-in-time snapshot of pool activity.
type GoroutinePoolStats struct {
	Workers int `json:"workers"`
	Active  int `json:"active"`
	Queued  int `json:"queued"`

	Submitted int64 `json:"submitted"`
	Completed int64 `json:"completed"`
	Failed    int64 `json:"failed"`
	Rejected  int64 `json:"rejected"`
}

// Stats returns current counters. Each counter is read on its own, so a
// snapshot taken under load may be slightly inconsistent.
func (p *GoroutinePool) Stats() GoroutinePoolStats {
	return GoroutinePoolStats{
		Workers:   int(p.workers.Load()),
		Active:    int(p.active.Load()),
		Queued:    len(p.queue),
		Submitted: p.submitted.Load(),
		Completed: p.completed.Load(),
		Failed:    p.failed.Load(),
		Rejected:  p.rejected.Load(),
	}
}
