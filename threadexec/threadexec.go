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

// Package threadexec implements the thread-per-task executor: every
// submission gets a fresh goroutine that runs the task and retires. For
// tasks that may block a long time (file I/O, third-party blocking calls),
// this trades per-submission allocation for never starving a shared pool.
package threadexec

import (
	"fmt"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/fenwick-labs/concur"
)

// Config configures a ThreadExecutor.
type Config struct {
	// CancellationMessage is included in the error delivered to a task that
	// is submitted after shutdown; tasks already running when Shutdown is
	// called run to completion.
	CancellationMessage string

	// Logger receives lifecycle diagnostics. Defaults to a no-op logger.
	Logger *zap.Logger
}

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

// ThreadExecutor spawns one goroutine per submitted task. Retired
// goroutines are held in a single "last retired" slot: rather than a
// submission waiting for the previous goroutine to fully retire, the
// *newly spawned* goroutine does that waiting itself, after running its own
// task, keeping the join off the submission path entirely.
type ThreadExecutor struct {
	name string

	mu       sync.Mutex
	lastDone chan struct{} // done-channel of the most recently spawned goroutine

	outstanding sync.WaitGroup

	shutdownRequested atomic.Bool
	shutdownOnce      sync.Once
	cancelMsg         string
	logger            *zap.Logger
}

var _ concur.Executor = (*ThreadExecutor)(nil)

// New creates a ThreadExecutor.
func New(name string, config Config) *ThreadExecutor {
	logger := config.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ThreadExecutor{
		name:      name,
		cancelMsg: config.CancellationMessage,
		logger:    logger,
	}
}

// Name implements concur.Executor.
func (e *ThreadExecutor) Name() string { return e.name }

// MaxConcurrencyLevel implements concur.Executor: zero signals "no fixed
// bound" since a fresh goroutine backs every outstanding task.
func (e *ThreadExecutor) MaxConcurrencyLevel() int { return 0 }

// ShutdownRequested implements concur.Executor.
func (e *ThreadExecutor) ShutdownRequested() bool { return e.shutdownRequested.Load() }

// Enqueue spawns a fresh goroutine to run task.
func (e *ThreadExecutor) Enqueue(task concur.Task) error {
	if e.shutdownRequested.Load() {
		err := &shutdownError{message: e.cancelMsg}
		task.Cancel(err)
		return err
	}

	e.outstanding.Add(1)

	e.mu.Lock()
	predecessor := e.lastDone
	myDone := make(chan struct{})
	e.lastDone = myDone
	e.mu.Unlock()

	go func() {
		defer e.outstanding.Done()
		task.Invoke()
		if predecessor != nil {
			<-predecessor
		}
		close(myDone)
	}()

	return nil
}

// Post implements concur.Executor.
func (e *ThreadExecutor) Post(fn func()) error {
	return e.Enqueue(concur.NewTask(fn))
}

// BulkPost implements concur.Executor.
func (e *ThreadExecutor) BulkPost(fns []func()) error {
	for _, fn := range fns {
		if err := e.Post(fn); err != nil {
			return err
		}
	}
	return nil
}

// Shutdown waits until every outstanding goroutine has retired, then joins
// the last one explicitly (a no-op by that point, kept for parity with the
// original's destructor). Shutdown is idempotent.
func (e *ThreadExecutor) Shutdown() {
	e.shutdownOnce.Do(func() {
		e.shutdownRequested.Store(true)
		e.outstanding.Wait()

		e.mu.Lock()
		last := e.lastDone
		e.mu.Unlock()
		if last != nil {
			<-last
		}
		e.logger.Debug("thread executor shut down", zap.String("executor", e.name))
	})
}
