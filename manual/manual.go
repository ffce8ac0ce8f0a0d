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

// Package manual implements the externally pumped FIFO executor: callers
// drive execution themselves by calling LoopOnce/Loop/LoopFor (or the
// WaitForTask*/WaitForTasks* family to block until work shows up), rather
// than the executor owning a goroutine of its own.
package manual

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/modern-go/concurrent"
	"go.uber.org/zap"

	"github.com/fenwick-labs/concur"
	"github.com/fenwick-labs/concur/ringdeque"
)

// shutdownError wraps concur.ErrExecutorShutdown with a configured message.
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

// Config configures a ManualExecutor.
type Config struct {
	// CancellationMessage is included in the error delivered to tasks
	// discarded by Clear or by Shutdown.
	CancellationMessage string

	// Logger receives lifecycle diagnostics. Defaults to a no-op logger.
	Logger *zap.Logger
}

// ManualExecutor is a FIFO queue of tasks pumped by the caller. Multiple
// goroutines may concurrently enqueue and pump; FIFO order across the
// combined operations is guaranteed under a single internal lock.
type ManualExecutor struct {
	name string

	mu    sync.Mutex
	cond  *sync.Cond
	queue *ringdeque.Deque[concur.Task]

	shutdownRequested atomic.Bool
	shutdownOnce      sync.Once
	cancelMsg         string
	logger            *zap.Logger

	// waiters tracks in-flight WaitForTask*/WaitForTasks* callers, purely
	// for diagnostics (ActiveWaiters); blocking itself is done with cond.
	waiters      *concurrent.Map
	nextWaiterID uint64
}

var _ concur.Executor = (*ManualExecutor)(nil)

// New creates a ManualExecutor.
func New(name string, config Config) *ManualExecutor {
	logger := config.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	m := &ManualExecutor{
		name:      name,
		queue:     ringdeque.New[concur.Task](16),
		cancelMsg: config.CancellationMessage,
		logger:    logger,
		waiters:   concurrent.NewMap(),
	}
	m.cond = sync.NewCond(&m.mu)
	return m
}

// Name implements concur.Executor.
func (m *ManualExecutor) Name() string { return m.name }

// MaxConcurrencyLevel implements concur.Executor: exactly one task runs at a
// time, on whichever goroutine is currently pumping.
func (m *ManualExecutor) MaxConcurrencyLevel() int { return 1 }

// ShutdownRequested implements concur.Executor.
func (m *ManualExecutor) ShutdownRequested() bool { return m.shutdownRequested.Load() }

// ActiveWaiters reports how many goroutines are currently blocked in
// WaitForTask/WaitForTaskFor/WaitForTasks/WaitForTasksFor.
func (m *ManualExecutor) ActiveWaiters() int {
	count := 0
	m.waiters.Range(func(key, value interface{}) bool {
		count++
		return true
	})
	return count
}

func (m *ManualExecutor) trackWaiter() uint64 {
	id := atomic.AddUint64(&m.nextWaiterID, 1)
	m.waiters.Store(id, struct{}{})
	return id
}

func (m *ManualExecutor) untrackWaiter(id uint64) {
	m.waiters.Delete(id)
}

// Enqueue appends task and wakes any pumping/waiting goroutines.
func (m *ManualExecutor) Enqueue(task concur.Task) error {
	if m.shutdownRequested.Load() {
		err := &shutdownError{message: m.cancelMsg}
		task.Cancel(err)
		return err
	}
	m.mu.Lock()
	m.queue.PushBack(task)
	m.cond.Broadcast()
	m.mu.Unlock()
	return nil
}

// Post implements concur.Executor.
func (m *ManualExecutor) Post(fn func()) error {
	return m.Enqueue(concur.NewTask(fn))
}

// BulkPost implements concur.Executor, preserving submission order.
func (m *ManualExecutor) BulkPost(fns []func()) error {
	for _, fn := range fns {
		if err := m.Post(fn); err != nil {
			return err
		}
	}
	return nil
}

// Size returns the number of tasks currently queued.
func (m *ManualExecutor) Size() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.queue.Len()
}

// Empty reports whether the queue currently holds no tasks.
func (m *ManualExecutor) Empty() bool {
	return m.Size() == 0
}

// LoopOnce pops and runs one task. It returns false without running
// anything if the queue was empty.
func (m *ManualExecutor) LoopOnce() bool {
	task, ok := m.popOne()
	if !ok {
		return false
	}
	task.Invoke()
	return true
}

func (m *ManualExecutor) popOne() (concur.Task, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.queue.PopFront()
}

// Loop runs up to n queued tasks, stopping early if the queue empties. It
// returns how many tasks actually ran.
func (m *ManualExecutor) Loop(n int) int {
	ran := 0
	for ran < n {
		if !m.LoopOnce() {
			break
		}
		ran++
	}
	return ran
}

// LoopOnceFor blocks, waiting for at least one task to be queued until d
// elapses, then pops and runs one. It returns false if d elapsed with
// nothing queued.
func (m *ManualExecutor) LoopOnceFor(d time.Duration) bool {
	deadline := time.Now().Add(d)
	id := m.trackWaiter()
	defer m.untrackWaiter(id)

	task, ok := m.popWithDeadline(deadline, 1)
	if !ok {
		return false
	}
	task.Invoke()
	return true
}

// LoopFor runs up to n tasks, blocking between them to wait for more to
// arrive until d elapses overall. It returns how many tasks actually ran.
func (m *ManualExecutor) LoopFor(n int, d time.Duration) int {
	deadline := time.Now().Add(d)
	id := m.trackWaiter()
	defer m.untrackWaiter(id)

	ran := 0
	for ran < n {
		task, ok := m.popWithDeadline(deadline, 1)
		if !ok {
			break
		}
		task.Invoke()
		ran++
	}
	return ran
}

// popWithDeadline blocks until the queue holds at least minLen elements or
// deadline passes, then pops and returns the front task.
func (m *ManualExecutor) popWithDeadline(deadline time.Time, minLen int) (concur.Task, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.waitLocked(deadline, func() bool { return m.queue.Len() >= minLen }) {
		var zero concur.Task
		return zero, false
	}
	return m.queue.PopFront()
}

// WaitForTask blocks until at least one task is queued.
func (m *ManualExecutor) WaitForTask() {
	id := m.trackWaiter()
	defer m.untrackWaiter(id)

	m.mu.Lock()
	defer m.mu.Unlock()
	m.waitLocked(time.Time{}, func() bool { return m.queue.Len() >= 1 })
}

// WaitForTaskFor blocks until at least one task is queued or d elapses,
// reporting which happened first.
func (m *ManualExecutor) WaitForTaskFor(d time.Duration) bool {
	return m.WaitForTasksFor(1, d) >= 1
}

// WaitForTasks blocks until at least n tasks are queued.
func (m *ManualExecutor) WaitForTasks(n int) {
	id := m.trackWaiter()
	defer m.untrackWaiter(id)

	m.mu.Lock()
	defer m.mu.Unlock()
	m.waitLocked(time.Time{}, func() bool { return m.queue.Len() >= n })
}

// WaitForTasksFor blocks until at least n tasks are queued or d elapses,
// returning the number actually queued when it returns.
func (m *ManualExecutor) WaitForTasksFor(n int, d time.Duration) int {
	id := m.trackWaiter()
	defer m.untrackWaiter(id)

	deadline := time.Now().Add(d)
	m.mu.Lock()
	defer m.mu.Unlock()
	m.waitLocked(deadline, func() bool { return m.queue.Len() >= n })
	return m.queue.Len()
}

// waitLocked blocks on m.cond, called with m.mu held, until done() reports
// true or deadline passes (a zero deadline means wait forever). It returns
// done()'s final value.
func (m *ManualExecutor) waitLocked(deadline time.Time, done func() bool) bool {
	for !done() {
		if deadline.IsZero() {
			m.cond.Wait()
			continue
		}
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return done()
		}
		timer := time.AfterFunc(remaining, func() {
			m.mu.Lock()
			m.cond.Broadcast()
			m.mu.Unlock()
		})
		m.cond.Wait()
		timer.Stop()
	}
	return true
}

// Clear cancels and discards every queued task, returning the count
// removed.
func (m *ManualExecutor) Clear() int {
	reason := &shutdownError{message: m.cancelMsg}
	m.mu.Lock()
	defer m.mu.Unlock()

	count := 0
	for {
		task, ok := m.queue.PopFront()
		if !ok {
			break
		}
		task.Cancel(reason)
		count++
	}
	return count
}

// Shutdown stops the executor from accepting new work and cancels every
// task still queued. Shutdown is idempotent.
func (m *ManualExecutor) Shutdown() {
	m.shutdownOnce.Do(func() {
		m.shutdownRequested.Store(true)
		removed := m.Clear()
		m.mu.Lock()
		m.cond.Broadcast()
		m.mu.Unlock()
		m.logger.Debug("manual executor shut down",
			zap.String("executor", m.name), zap.Int("cancelled", removed))
	})
}
