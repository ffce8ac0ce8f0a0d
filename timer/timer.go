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

// Package timer implements a single dedicated-goroutine deadline queue:
// periodic timers, one-shot timers, and delay objects all share one
// container/heap-ordered min-heap keyed on deadline, so a single goroutine
// (not one per timer) drives every wakeup.
package timer

import (
	"container/heap"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/fenwick-labs/concur"
	"github.com/fenwick-labs/concur/result"
)

// ErrTimerQueueShutdown is wrapped by the error any scheduling call made
// after Shutdown returns.
var ErrTimerQueueShutdown = errors.New("concur/timer: timer queue shut down")

// ErrInvalidExecutor is returned by MakeTimer/MakeOneShotTimer when called
// with a nil executor.
var ErrInvalidExecutor = errors.New("concur/timer: invalid executor")

type shutdownError struct {
	message string
}

func (e *shutdownError) Error() string {
	if e.message == "" {
		return ErrTimerQueueShutdown.Error()
	}
	return fmt.Sprintf("%s: %s", ErrTimerQueueShutdown.Error(), e.message)
}

func (e *shutdownError) Unwrap() error { return ErrTimerQueueShutdown }

// Config configures a Queue.
type Config struct {
	// CancellationMessage is included in the error returned by scheduling
	// calls made after Shutdown. Timers still pending when Shutdown runs are
	// dropped without being run or notified.
	CancellationMessage string

	// Logger receives lifecycle diagnostics. Defaults to a no-op logger.
	Logger *zap.Logger
}

// entry is one scheduled wakeup in the heap.
type entry struct {
	deadline time.Time
	period   time.Duration // zero means one-shot
	seq      uint64        // tiebreaker for equal deadlines, also heap identity
	index    int           // position in the heap, maintained by container/heap
	executor concur.Executor
	fn       func()
	cancelled bool
}

type entryHeap []*entry

func (h entryHeap) Len() int { return len(h) }
func (h entryHeap) Less(i, j int) bool {
	if h[i].deadline.Equal(h[j].deadline) {
		return h[i].seq < h[j].seq
	}
	return h[i].deadline.Before(h[j].deadline)
}
func (h entryHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index, h[j].index = i, j
}
func (h *entryHeap) Push(x interface{}) {
	e := x.(*entry)
	e.index = len(*h)
	*h = append(*h, e)
}
func (h *entryHeap) Pop() interface{} {
	old := *h
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	e.index = -1
	*h = old[:n-1]
	return e
}

// Queue is a single dedicated-goroutine deadline scheduler.
type Queue struct {
	mu   sync.Mutex
	cond *sync.Cond
	heap entryHeap
	seq  uint64

	shutdownRequested atomic.Bool
	shutdownOnce       sync.Once
	done               chan struct{}
	cancelMsg          string
	logger             *zap.Logger
}

// New creates a Queue and starts its dedicated goroutine.
func New(config Config) *Queue {
	logger := config.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	q := &Queue{
		cancelMsg: config.CancellationMessage,
		logger:    logger,
		done:      make(chan struct{}),
	}
	q.cond = sync.NewCond(&q.mu)
	go q.run()
	return q
}

// ShutdownRequested reports whether Shutdown has been called.
func (q *Queue) ShutdownRequested() bool { return q.shutdownRequested.Load() }

// Handle cancels a scheduled timer. Cancelling an already-fired one-shot
// timer, or one already cancelled, is a no-op.
type Handle struct {
	q *Queue
	e *entry
}

// Cancel prevents e from firing again. A periodic timer already mid-fire
// on its executor still completes that invocation; only future wakeups
// are suppressed.
func (h *Handle) Cancel() {
	h.q.mu.Lock()
	defer h.q.mu.Unlock()
	if h.e.cancelled {
		return
	}
	h.e.cancelled = true
	if h.e.index >= 0 {
		heap.Remove(&h.q.heap, h.e.index)
	}
}

func (q *Queue) schedule(deadline time.Time, period time.Duration, executor concur.Executor, fn func()) (*Handle, error) {
	if executor == nil {
		return nil, ErrInvalidExecutor
	}
	if q.shutdownRequested.Load() {
		return nil, &shutdownError{message: q.cancelMsg}
	}

	q.mu.Lock()
	q.seq++
	e := &entry{deadline: deadline, period: period, seq: q.seq, executor: executor, fn: fn}
	heap.Push(&q.heap, e)
	wakeEarlier := q.heap[0] == e
	q.mu.Unlock()

	if wakeEarlier {
		q.cond.Broadcast()
	}
	return &Handle{q: q, e: e}, nil
}

// MakeTimer schedules fn to run on executor periodically: first after due
// elapses, then every frequency thereafter, until the returned Handle is
// cancelled or the queue shuts down. due and frequency are independent —
// a timer can fire soon after creation and then settle into a longer
// steady-state period.
func (q *Queue) MakeTimer(executor concur.Executor, due, frequency time.Duration, fn func()) (*Handle, error) {
	return q.schedule(time.Now().Add(due), frequency, executor, fn)
}

// MakeOneShotTimer schedules fn to run on executor once, after delay.
func (q *Queue) MakeOneShotTimer(executor concur.Executor, delay time.Duration, fn func()) (*Handle, error) {
	return q.schedule(time.Now().Add(delay), 0, executor, fn)
}

// MakeDelayObject returns a Result that publishes once delay elapses. It
// resolves inline on the queue's own goroutine rather than via a caller
// executor, since there is nothing to run beyond marking completion.
func (q *Queue) MakeDelayObject(delay time.Duration) *result.Result[struct{}] {
	p, r := result.New[struct{}]()
	_, err := q.schedule(time.Now().Add(delay), 0, inlineExecutor{}, func() {
		_ = p.SetValue(struct{}{})
	})
	if err != nil {
		_ = p.SetException(err)
	}
	return r
}

// inlineExecutor runs fn synchronously on whoever calls Post — the timer
// goroutine itself — since a delay object's completion is just a state
// publish, not work worth handing to a pool.
type inlineExecutor struct{}

func (inlineExecutor) Name() string            { return "timer-inline" }
func (inlineExecutor) MaxConcurrencyLevel() int { return 1 }
func (inlineExecutor) ShutdownRequested() bool  { return false }
func (inlineExecutor) Post(fn func()) error     { fn(); return nil }
func (inlineExecutor) BulkPost(fns []func()) error {
	for _, fn := range fns {
		fn()
	}
	return nil
}
func (inlineExecutor) Shutdown() {}

var _ concur.Executor = inlineExecutor{}

// run is the queue's single dedicated goroutine: pop due entries, post
// them to their executor, reschedule periodic ones, and otherwise sleep
// until the earliest remaining deadline or a new, earlier entry arrives.
func (q *Queue) run() {
	defer close(q.done)
	for {
		q.mu.Lock()
		if q.shutdownRequested.Load() {
			q.drainLocked()
			q.mu.Unlock()
			return
		}
		if len(q.heap) == 0 {
			q.cond.Wait()
			q.mu.Unlock()
			continue
		}

		next := q.heap[0]
		now := time.Now()
		if next.deadline.After(now) {
			remaining := next.deadline.Sub(now)
			timer := time.AfterFunc(remaining, func() {
				q.mu.Lock()
				q.cond.Broadcast()
				q.mu.Unlock()
			})
			q.cond.Wait()
			timer.Stop()
			q.mu.Unlock()
			continue
		}

		heap.Pop(&q.heap)
		cancelled := next.cancelled
		q.mu.Unlock()

		if cancelled {
			continue
		}

		executor, fn := next.executor, next.fn
		if err := executor.Post(fn); err != nil {
			q.logger.Debug("timer queue: executor rejected scheduled task", zap.Error(err))
		}

		if next.period > 0 {
			q.mu.Lock()
			if !next.cancelled && !q.shutdownRequested.Load() {
				next.deadline = next.deadline.Add(next.period)
				heap.Push(&q.heap, next)
			}
			q.mu.Unlock()
		}
	}
}

// drainLocked cancels every remaining entry, called with q.mu held during
// shutdown.
func (q *Queue) drainLocked() {
	for q.heap.Len() > 0 {
		heap.Pop(&q.heap)
	}
}

// Shutdown stops the queue from accepting new timers, cancels everything
// pending, and waits for its goroutine to exit. Shutdown is idempotent.
func (q *Queue) Shutdown() {
	q.shutdownOnce.Do(func() {
		q.shutdownRequested.Store(true)
		q.mu.Lock()
		q.cond.Broadcast()
		q.mu.Unlock()
		<-q.done
		q.logger.Debug("timer queue shut down")
	})
}
