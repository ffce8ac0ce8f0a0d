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

// Package pool implements the work-stealing, dynamically sized thread pool:
// a fixed-size vector of workers, each with its own local queue, a
// lock-free idle stack for the "hand to an idle worker" fast path, and
// round-robin dispatch as the fallback. A single shared intrusive queue
// becomes per-worker local queues with cross-worker stealing.
package pool

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	uatomic "go.uber.org/atomic"
	"go.uber.org/zap"

	"github.com/fenwick-labs/concur"
	"github.com/fenwick-labs/concur/ringdeque"
)

// Error values returned by Pool.
var (
	// ErrInvalidConfig is returned by New when Config.Size is not positive.
	ErrInvalidConfig = errors.New("pool: Size must be a positive number of workers")
)

// Config configures a Pool.
type Config struct {
	// Size is the fixed number of worker slots in the pool (required, > 0).
	Size int

	// MaxIdleTime is how long an idle worker's goroutine waits for new work
	// before exiting; its slot can host a fresh goroutine on the next
	// enqueue. Zero means "never time out".
	MaxIdleTime time.Duration

	// CancellationMessage is included in the error delivered to tasks that
	// are cancelled because the pool shut down with them still queued.
	CancellationMessage string

	// Logger receives worker lifecycle and shutdown diagnostics. Defaults to
	// a no-op logger.
	Logger *zap.Logger

	// OnThreadStart, if set, is invoked from a worker's goroutine right
	// after it starts running.
	OnThreadStart func(name string)

	// OnThreadStop, if set, is invoked from a worker's goroutine right
	// before it exits.
	OnThreadStop func(name string)
}

func (c *Config) validate() error {
	if c.Size <= 0 {
		return ErrInvalidConfig
	}
	return nil
}

// ShutdownError is returned from Enqueue/Submit after shutdown, and is the
// reason passed to Task.Cancel for tasks abandoned by a shutting-down pool.
type ShutdownError struct {
	Message string
}

func (e *ShutdownError) Error() string {
	if e.Message == "" {
		return concur.ErrExecutorShutdown.Error()
	}
	return fmt.Sprintf("%s: %s", concur.ErrExecutorShutdown.Error(), e.Message)
}

func (e *ShutdownError) Unwrap() error { return concur.ErrExecutorShutdown }

//===----------------------------------------------------------------------------------------====//
// idle stack — a Treiber stack of stable per-worker nodes
//===----------------------------------------------------------------------------------------====//

type idleNode struct {
	worker *Worker
	next   *idleNode
}

type idleStack struct {
	head atomic.Pointer[idleNode]
}

func (s *idleStack) push(n *idleNode) {
	for {
		old := s.head.Load()
		n.next = old
		if s.head.CompareAndSwap(old, n) {
			return
		}
	}
}

func (s *idleStack) pop() *Worker {
	for {
		old := s.head.Load()
		if old == nil {
			return nil
		}
		if s.head.CompareAndSwap(old, old.next) {
			old.next = nil
			return old.worker
		}
	}
}

//===----------------------------------------------------------------------------------------====//
// Worker
//===----------------------------------------------------------------------------------------====//

// Worker owns one local task queue, an idle/running state, and (while it has
// a live goroutine) a condvar to park on. While Running, only the worker's
// own goroutine pushes/pops its local queue without contention; other
// workers try to steal under TryLock; while Idle, the local queue is empty
// and the worker sits on the pool's idle stack.
type Worker struct {
	id    int
	uuid  uuid.UUID
	pool  *Pool
	mu    sync.Mutex
	cond  *sync.Cond
	queue *ringdeque.Deque[concur.Task]

	alive *uatomic.Bool // true while a goroutine is running this worker's loop
	idle  *uatomic.Bool // true while parked on the idle stack

	node *idleNode // stable node used only while on the idle stack
}

func newWorker(pool *Pool, id int) *Worker {
	w := &Worker{
		id:    id,
		uuid:  uuid.New(),
		pool:  pool,
		queue: ringdeque.New[concur.Task](16),
		alive: uatomic.NewBool(false),
		idle:  uatomic.NewBool(false),
	}
	w.cond = sync.NewCond(&w.mu)
	w.node = &idleNode{worker: w}
	return w
}

// name identifies this worker for logging and thread-start/stop callbacks.
// The uuid suffix gives each slot a globally unique log-correlation token:
// pool names and slot ids are only unique within one process, so two pools
// with the same name (or a restarted process logging to the same sink)
// would otherwise produce indistinguishable worker identifiers.
func (w *Worker) name() string {
	return fmt.Sprintf("%s-worker-%d-%s", w.pool.name, w.id, w.uuid)
}

// enqueue appends task to the worker's local queue, starting its goroutine
// if it isn't already running.
func (w *Worker) enqueue(task concur.Task) {
	w.mu.Lock()
	w.queue.PushBack(task)
	needStart := !w.alive.Load()
	if needStart {
		w.alive.Store(true)
	}
	w.cond.Signal()
	w.mu.Unlock()

	if needStart {
		w.pool.wg.Add(1)
		go w.run()
	}
}

// tryStealFrom attempts to pop one task from the front of w's local queue
// without blocking. ok is false if the lock couldn't be acquired or the
// queue was empty.
func (w *Worker) tryStealFrom() (task concur.Task, ok bool) {
	if !w.mu.TryLock() {
		return task, false
	}
	defer w.mu.Unlock()
	return w.queue.PopFront()
}

// cancelQueued drains whatever is left in the local queue, canceling each
// task instead of invoking it. Called when a worker notices shutdown has
// been requested while work is still queued.
func (w *Worker) cancelQueued() {
	reason := &ShutdownError{Message: w.pool.cancelMsg}
	for {
		w.mu.Lock()
		task, ok := w.queue.PopFront()
		w.mu.Unlock()
		if !ok {
			return
		}
		task.Cancel(reason)
	}
}

// run is the worker's goroutine loop: drain the local queue, try to steal,
// or park as idle until woken or timed out.
func (w *Worker) run() {
	pool := w.pool
	selfRegister(w)
	if pool.onThreadStart != nil {
		pool.onThreadStart(w.name())
	}

	defer func() {
		selfUnregister(w)
		pool.wg.Done()
		if pool.onThreadStop != nil {
			pool.onThreadStop(w.name())
		}
	}()

	for {
		// 1. Drain the local queue front-to-back. Once shutdown has been
		// requested, stop executing and cancel whatever is left instead, so
		// a burst of queued work can't delay shutdown indefinitely.
		for {
			if pool.shutdownRequested.Load() {
				w.cancelQueued()
				return
			}
			w.mu.Lock()
			task, ok := w.queue.PopFront()
			w.mu.Unlock()
			if !ok {
				break
			}
			task.Invoke()
		}

		if pool.shutdownRequested.Load() {
			return
		}

		// 2. Try to steal a task from another worker.
		if task, ok := pool.stealTask(w); ok {
			task.Invoke()
			continue
		}

		// 3. Mark idle and park on the idle stack.
		w.idle.Store(true)
		pool.idleStack.push(w.node)

		if w.parkUntilWorkOrTimeout() {
			w.idle.Store(false)
			continue
		}

		// Timed out (or shut down) with nothing to do: exit. The pool may
		// start a fresh goroutine for this slot on the next enqueue.
		w.idle.Store(false)
		w.alive.Store(false)
		pool.logger.Debug("worker exiting idle timeout", zap.String("worker", w.name()))
		return
	}
}

// parkUntilWorkOrTimeout blocks until the local queue becomes non-empty
// (returns true: "go look for work again"), or until the pool's shutdown is
// requested or MaxIdleTime elapses with nothing to do (returns false:
// "exit").
func (w *Worker) parkUntilWorkOrTimeout() bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	deadline := time.Time{}
	if w.pool.maxIdleTime > 0 {
		deadline = time.Now().Add(w.pool.maxIdleTime)
	}

	for w.queue.Empty() {
		if w.pool.shutdownRequested.Load() {
			return false
		}
		if deadline.IsZero() {
			w.cond.Wait()
			continue
		}
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return false
		}
		woken := make(chan struct{})
		timer := time.AfterFunc(remaining, func() {
			w.mu.Lock()
			w.cond.Broadcast()
			w.mu.Unlock()
			close(woken)
		})
		w.cond.Wait()
		timer.Stop()
		select {
		case <-woken:
		default:
		}
	}
	return true
}

//===----------------------------------------------------------------------------------------====//
// Pool
//===----------------------------------------------------------------------------------------====//

// Pool is the work-stealing, fixed-size thread pool. Worker count never
// changes after New; individual worker goroutines come and go as load
// demands, recycling the same fixed slots.
type Pool struct {
	name        string
	workers     []*Worker
	idleStack   idleStack
	roundRobin  *uatomic.Uint64
	maxIdleTime time.Duration
	cancelMsg   string
	logger      *zap.Logger

	onThreadStart func(string)
	onThreadStop  func(string)

	shutdownRequested *uatomic.Bool
	wg                sync.WaitGroup
	shutdownOnce      sync.Once
}

var _ concur.Executor = (*Pool)(nil)

// New creates a Pool with the given name and configuration.
func New(name string, config Config) (*Pool, error) {
	if err := config.validate(); err != nil {
		return nil, err
	}

	logger := config.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	p := &Pool{
		name:              name,
		workers:           make([]*Worker, config.Size),
		roundRobin:        uatomic.NewUint64(0),
		maxIdleTime:       config.MaxIdleTime,
		cancelMsg:         config.CancellationMessage,
		logger:            logger,
		onThreadStart:     config.OnThreadStart,
		onThreadStop:      config.OnThreadStop,
		shutdownRequested: uatomic.NewBool(false),
	}
	for i := range p.workers {
		p.workers[i] = newWorker(p, i)
	}
	return p, nil
}

// Name implements concur.Executor.
func (p *Pool) Name() string { return p.name }

// MaxConcurrencyLevel implements concur.Executor.
func (p *Pool) MaxConcurrencyLevel() int { return len(p.workers) }

// ShutdownRequested implements concur.Executor.
func (p *Pool) ShutdownRequested() bool { return p.shutdownRequested.Load() }

// Enqueue submits task for execution, choosing a worker by priority order:
// hand to an idle worker, else self-enqueue if the caller is already one of
// this pool's workers, else round-robin.
func (p *Pool) Enqueue(task concur.Task) error {
	if p.shutdownRequested.Load() {
		task.Cancel(&ShutdownError{Message: p.cancelMsg})
		return &ShutdownError{Message: p.cancelMsg}
	}

	if idleWorker := p.idleStack.pop(); idleWorker != nil {
		idleWorker.enqueue(task)
		return nil
	}

	if self := lookupSelf(p); self != nil {
		self.enqueue(task)
		return nil
	}

	idx := p.roundRobin.Inc() % uint64(len(p.workers))
	p.workers[idx].enqueue(task)
	return nil
}

// stealTask is called by worker w's run loop; it searches the other workers
// starting at the pool's round-robin cursor and returns the first task it
// can steal.
func (p *Pool) stealTask(w *Worker) (concur.Task, bool) {
	n := len(p.workers)
	start := int(p.roundRobin.Inc() % uint64(n))
	for i := 0; i < n; i++ {
		victim := p.workers[(start+i)%n]
		if victim == w {
			continue
		}
		if task, ok := victim.tryStealFrom(); ok {
			return task, true
		}
	}
	return concur.Task{}, false
}

// Submit wraps fn in a Task and enqueues it, returning any enqueue error.
// It is fire-and-forget, like Post/BulkPost, which are implemented in terms
// of it; for a submission that returns a Result[T] of fn's outcome, see
// result.Submit.
func (p *Pool) Submit(fn func()) error {
	task := concur.NewTask(fn)
	return p.Enqueue(task)
}

// Post implements concur.Executor.
func (p *Pool) Post(fn func()) error {
	return p.Submit(fn)
}

// BulkPost implements concur.Executor.
func (p *Pool) BulkPost(fns []func()) error {
	for _, fn := range fns {
		if err := p.Submit(fn); err != nil {
			return err
		}
	}
	return nil
}

// Shutdown implements concur.Executor: it wakes every worker regardless of
// idle/running state. A worker still draining its local queue notices the
// shutdown request and cancels whatever is left instead of running it;
// Shutdown then waits for all worker goroutines to exit and sweeps any
// queues left non-empty by a race as a final safety net.
func (p *Pool) Shutdown() {
	p.shutdownOnce.Do(func() {
		p.shutdownRequested.Store(true)
		for _, w := range p.workers {
			w.mu.Lock()
			w.cond.Broadcast()
			w.mu.Unlock()
		}
		p.wg.Wait()

		for _, w := range p.workers {
			w.mu.Lock()
			for {
				task, ok := w.queue.PopFront()
				if !ok {
					break
				}
				task.Cancel(&ShutdownError{Message: p.cancelMsg})
			}
			w.mu.Unlock()
		}
		p.logger.Debug("pool shut down", zap.String("pool", p.name))
	})
}
