/**
 * Copyright (c) 2019, The Artemis Authors.
 *
 * Permission to use, copy, modify, and/or distribute this software for any
 * purpose with or without fee is hereby granted, provided that the above
 * copyright notice and this permission notice appear in all copies.
 *
 * THE SOFTWARE IS PROVIDED "AS IS" AND THE AUTHOR DISCLAIMS ALL WARRANTIES
 * WITH REGARD TO THIS SOFTWARE INCLUDING ALL IMPLIED WARRANTIES OF
 * MERCHANTABILITY AND FITNESS. IN NO EVENT SHALL THE AUTHOR BE LIABLE FOR
 * ANY SPECIAL, DIRECT, INDIRECT, OR CONSEQUENTIAL DAMAGES OR ANY DAMAGES
 * WHATSOEVER RESULTING FROM LOSS OF USE, DATA OR PROFITS, WHETHER IN AN
 * ACTION OF CONTRACT, NEGLIGENCE OR OTHER TORTIOUS ACTION, ARISING OUT OF
 * OR IN CONNECTION WITH THE USE OR PERFORMANCE OF THIS SOFTWARE.
 */

// Package singleworker implements a dedicated single-goroutine executor: one
// FIFO local queue drained by exactly one goroutine for the executor's
// lifetime: a worker pool run loop generalized down to a single worker
// with no stealing and no pool bookkeeping.
package singleworker

import (
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/fenwick-labs/concur"
	"github.com/fenwick-labs/concur/ringdeque"
)

// item is either a task to run or the shutdown sentinel. A sentinel variant
// in the queue replaces exception-based loop termination with an explicit
// value the run loop can switch on.
type item struct {
	task     concur.Task
	sentinel bool
}

// Config configures a SingleWorkerThread.
type Config struct {
	// CancellationMessage is included in the error delivered to tasks still
	// queued when Shutdown runs.
	CancellationMessage string

	// Logger receives lifecycle diagnostics. Defaults to a no-op logger.
	Logger *zap.Logger

	// OnThreadStart, if set, runs on the worker goroutine right after it
	// starts.
	OnThreadStart func(name string)

	// OnThreadStop, if set, runs on the worker goroutine right before it
	// exits.
	OnThreadStop func(name string)
}

// SingleWorkerThread owns one goroutine and a FIFO local queue; it runs
// tasks in submission order until shut down.
type SingleWorkerThread struct {
	name string

	mu    sync.Mutex
	cond  *sync.Cond
	queue *ringdeque.Deque[item]

	shutdownRequested bool
	shutdownOnce      sync.Once
	cancelMsg         string
	logger            *zap.Logger

	onThreadStart func(string)
	onThreadStop  func(string)

	done chan struct{}
}

var _ concur.Executor = (*SingleWorkerThread)(nil)

// New creates a SingleWorkerThread and starts its goroutine.
func New(name string, config Config) *SingleWorkerThread {
	logger := config.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	w := &SingleWorkerThread{
		name:          name,
		queue:         ringdeque.New[item](16),
		cancelMsg:     config.CancellationMessage,
		logger:        logger,
		onThreadStart: config.OnThreadStart,
		onThreadStop:  config.OnThreadStop,
		done:          make(chan struct{}),
	}
	w.cond = sync.NewCond(&w.mu)
	go w.run()
	return w
}

// Name implements concur.Executor.
func (w *SingleWorkerThread) Name() string { return w.name }

// MaxConcurrencyLevel implements concur.Executor: a single worker only ever
// runs one task at a time.
func (w *SingleWorkerThread) MaxConcurrencyLevel() int { return 1 }

// ShutdownRequested implements concur.Executor.
func (w *SingleWorkerThread) ShutdownRequested() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.shutdownRequested
}

// shutdownError wraps concur.ErrExecutorShutdown with this worker's
// configured cancellation message.
type shutdownError struct {
	message string
}

func (e *shutdownError) Error() string {
	if e.message == "" {
		return concur.ErrExecutorShutdown.Error()
	}
	return fmt.Sprintf("%s: %s", concur.ErrExecutorShutdown.Error(), e.message)
}

func (e *shutdownError) Unwrap() error { return concur.ErrExecutorShutdown }

// Enqueue appends task to the tail of the local queue and signals the
// worker. It never blocks beyond lock acquisition.
func (w *SingleWorkerThread) Enqueue(task concur.Task) error {
	w.mu.Lock()
	if w.shutdownRequested {
		w.mu.Unlock()
		err := &shutdownError{message: w.cancelMsg}
		task.Cancel(err)
		return err
	}
	w.queue.PushBack(item{task: task})
	w.cond.Signal()
	w.mu.Unlock()
	return nil
}

// Post implements concur.Executor.
func (w *SingleWorkerThread) Post(fn func()) error {
	return w.Enqueue(concur.NewTask(fn))
}

// BulkPost implements concur.Executor, preserving submission order.
func (w *SingleWorkerThread) BulkPost(fns []func()) error {
	for _, fn := range fns {
		if err := w.Post(fn); err != nil {
			return err
		}
	}
	return nil
}

// Shutdown enqueues a sentinel at the front of the queue so it is the next
// thing the worker goroutine sees, waits for the worker to exit, then
// cancels every task left behind. Shutdown is idempotent.
func (w *SingleWorkerThread) Shutdown() {
	w.shutdownOnce.Do(func() {
		w.mu.Lock()
		w.shutdownRequested = true
		w.queue.PushFront(item{sentinel: true})
		w.cond.Signal()
		w.mu.Unlock()

		<-w.done

		w.mu.Lock()
		reason := &shutdownError{message: w.cancelMsg}
		for {
			it, ok := w.queue.PopFront()
			if !ok {
				break
			}
			it.task.Cancel(reason)
		}
		w.mu.Unlock()
		w.logger.Debug("single worker thread shut down", zap.String("worker", w.name))
	})
}

// run is the worker's only goroutine: pop front, wait if empty, execute.
// A panicking user task crashes the process — the single worker has no
// owner to propagate the failure to.
func (w *SingleWorkerThread) run() {
	if w.onThreadStart != nil {
		w.onThreadStart(w.name)
	}
	defer func() {
		if w.onThreadStop != nil {
			w.onThreadStop(w.name)
		}
		close(w.done)
	}()

	for {
		w.mu.Lock()
		for w.queue.Empty() {
			w.cond.Wait()
		}
		it, _ := w.queue.PopFront()
		w.mu.Unlock()

		if it.sentinel {
			return
		}
		it.task.Invoke()
	}
}
