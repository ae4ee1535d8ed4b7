// Package pipeline runs the per-symbol signal computations over a bounded
// pool of workers and persists each symbol's results as a unit.
package pipeline

import (
	"context"
	"errors"
	"runtime"
	"sync"
	"sync/atomic"
)

// ErrPoolStopped is returned when submitting to a pool that is not running.
var ErrPoolStopped = errors.New("pipeline: pool is not running")

// Pool runs submitted tasks on a fixed number of goroutines. Submissions block
// while the queue is full. A panicking task is recovered, counted and reported
// to the panic handler; the worker keeps running.
type Pool struct {
	workers   int
	taskQueue chan func()
	wg        sync.WaitGroup
	mu        sync.RWMutex
	running   atomic.Bool

	handlerMu sync.RWMutex
	onPanic   func(recovered any)

	tasksTotal atomic.Uint64
	tasksDone  atomic.Uint64
	panics     atomic.Uint64
}

// PoolStats contains worker pool statistics.
type PoolStats struct {
	Workers    int
	Running    bool
	TasksTotal uint64
	TasksDone  uint64
	Panics     uint64
	QueueLen   int
}

// NewPool creates a pool with the given number of workers.
// If workers is 0, it defaults to runtime.NumCPU().
func NewPool(workers int) *Pool {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	return &Pool{
		workers:   workers,
		taskQueue: make(chan func(), workers*4),
	}
}

// SetPanicHandler sets the function called with the value of a recovered panic.
func (p *Pool) SetPanicHandler(fn func(recovered any)) {
	p.handlerMu.Lock()
	defer p.handlerMu.Unlock()
	p.onPanic = fn
}

// Start starts the workers.
func (p *Pool) Start() {
	if p.running.Swap(true) {
		return
	}
	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.worker()
	}
}

func (p *Pool) worker() {
	defer p.wg.Done()
	for task := range p.taskQueue {
		p.run(task)
	}
}

func (p *Pool) run(task func()) {
	defer func() {
		if r := recover(); r != nil {
			p.panics.Add(1)
			p.handlerMu.RLock()
			handler := p.onPanic
			p.handlerMu.RUnlock()
			if handler != nil {
				handler(r)
			}
		}
		p.tasksDone.Add(1)
	}()
	task()
}

// Submit queues a task, blocking until there is room or ctx is done.
func (p *Pool) Submit(ctx context.Context, task func()) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if !p.running.Load() {
		return ErrPoolStopped
	}

	select {
	case p.taskQueue <- task:
		p.tasksTotal.Add(1)
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stop waits for queued tasks to finish and stops the workers.
func (p *Pool) Stop() {
	p.mu.Lock()
	if !p.running.Swap(false) {
		p.mu.Unlock()
		return
	}
	close(p.taskQueue)
	p.mu.Unlock()
	p.wg.Wait()
}

// Stats returns pool statistics.
func (p *Pool) Stats() PoolStats {
	return PoolStats{
		Workers:    p.workers,
		Running:    p.running.Load(),
		TasksTotal: p.tasksTotal.Load(),
		TasksDone:  p.tasksDone.Load(),
		Panics:     p.panics.Load(),
		QueueLen:   len(p.taskQueue),
	}
}
