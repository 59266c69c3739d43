// File: internal/concurrency/threadpool.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// ThreadPool runs a fixed set of worker goroutines draining one bounded FIFO.
// The queue is guarded by a single mutex held only for push/pop; a weighted
// semaphore counts queued items so idle workers block instead of spinning.

package concurrency

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/eapache/queue"
	"github.com/momentics/hioload-httpd/api"
	"golang.org/x/sync/semaphore"
)

// Handler processes one work item. It runs on a worker goroutine.
type Handler[T any] func(item T)

type poolOptions struct {
	pin bool
}

// PoolOption customizes a ThreadPool.
type PoolOption func(*poolOptions)

// WithCPUPinning binds worker i to the i-th CPU of the process affinity
// mask, wrapping around when there are more workers than CPUs.
func WithCPUPinning() PoolOption {
	return func(o *poolOptions) { o.pin = true }
}

// ThreadPool dispatches items of type T to a fixed number of workers.
type ThreadPool[T any] struct {
	mu          sync.Mutex
	queue       *queue.Queue
	maxRequests int

	// items counts queued items: the full weight is acquired up front,
	// Submit releases one unit and a worker acquires one before popping.
	items *semaphore.Weighted

	handle Handler[T]
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	closed atomic.Bool

	// statistics
	submitted atomic.Int64
	completed atomic.Int64
	rejected  atomic.Int64
	panics    atomic.Int64
	pinFails  atomic.Int64
}

// NewThreadPool starts workers goroutines that feed items to handle.
// At most maxRequests items may wait in the queue.
func NewThreadPool[T any](workers, maxRequests int, handle Handler[T], opts ...PoolOption) (*ThreadPool[T], error) {
	if workers <= 0 || maxRequests <= 0 {
		return nil, api.NewError(api.ErrCodeInvalidArgument, "thread pool needs positive workers and queue depth").
			WithContext("workers", workers).
			WithContext("max_requests", maxRequests)
	}
	if handle == nil {
		return nil, fmt.Errorf("thread pool: nil handler: %w", api.ErrInvalidArgument)
	}
	items := semaphore.NewWeighted(int64(maxRequests))
	if !items.TryAcquire(int64(maxRequests)) {
		return nil, fmt.Errorf("thread pool: semaphore init: %w", api.ErrInvalidArgument)
	}
	ctx, cancel := context.WithCancel(context.Background())
	tp := &ThreadPool[T]{
		queue:       queue.New(),
		maxRequests: maxRequests,
		items:       items,
		handle:      handle,
		ctx:         ctx,
		cancel:      cancel,
	}
	var o poolOptions
	for _, opt := range opts {
		opt(&o)
	}
	var cpus []int
	if o.pin {
		if cpus, _ = CurrentCPUs(); len(cpus) == 0 {
			tp.pinFails.Add(int64(workers))
		}
	}

	tp.wg.Add(workers)
	for i := 0; i < workers; i++ {
		cpu := -1
		if len(cpus) > 0 {
			cpu = cpus[i%len(cpus)]
		}
		go tp.run(cpu)
	}
	return tp, nil
}

// Submit enqueues item without blocking. It returns false when the queue
// holds maxRequests items or the pool is closed; the caller decides the fallback.
func (tp *ThreadPool[T]) Submit(item T) bool {
	if tp.closed.Load() {
		tp.rejected.Add(1)
		return false
	}
	tp.mu.Lock()
	if tp.queue.Length() >= tp.maxRequests {
		tp.mu.Unlock()
		tp.rejected.Add(1)
		return false
	}
	tp.queue.Add(item)
	tp.mu.Unlock()

	tp.submitted.Add(1)
	tp.items.Release(1)
	return true
}

// Pending returns the number of queued items not yet picked by a worker.
func (tp *ThreadPool[T]) Pending() int {
	tp.mu.Lock()
	defer tp.mu.Unlock()
	return tp.queue.Length()
}

// Close stops the workers and waits for running handlers to return.
// Items still queued are discarded.
func (tp *ThreadPool[T]) Close() {
	if !tp.closed.CompareAndSwap(false, true) {
		return
	}
	tp.cancel()
	tp.wg.Wait()
}

// Stats returns basic pool metrics.
func (tp *ThreadPool[T]) Stats() map[string]int64 {
	return map[string]int64{
		"submitted_tasks": tp.submitted.Load(),
		"completed_tasks": tp.completed.Load(),
		"rejected_tasks":  tp.rejected.Load(),
		"panicked_tasks":  tp.panics.Load(),
		"pending_tasks":   int64(tp.Pending()),
		"pin_failures":    tp.pinFails.Load(),
	}
}

// run is the main loop for a worker. cpu < 0 leaves the worker unpinned.
func (tp *ThreadPool[T]) run(cpu int) {
	defer tp.wg.Done()
	if cpu >= 0 {
		if err := PinCurrentThread(cpu); err != nil {
			tp.pinFails.Add(1)
		}
	}
	for {
		if err := tp.items.Acquire(tp.ctx, 1); err != nil || tp.closed.Load() {
			return
		}
		tp.mu.Lock()
		if tp.queue.Length() == 0 {
			tp.mu.Unlock()
			continue
		}
		item := tp.queue.Remove().(T)
		tp.mu.Unlock()

		tp.execute(item)
	}
}

// execute runs the handler, recovering from panics to keep the worker alive.
func (tp *ThreadPool[T]) execute(item T) {
	defer func() {
		if r := recover(); r != nil {
			tp.panics.Add(1)
		}
		tp.completed.Add(1)
	}()
	tp.handle(item)
}
