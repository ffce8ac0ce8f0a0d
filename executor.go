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

// Package concur is a general-purpose concurrency runtime: executors, an
// asynchronous result/promise type, timers, and the synchronization
// primitives built on top of them.
package concur

import "errors"

// ErrExecutorShutdown is returned by Enqueue/Submit/Post once an executor
// has received a shutdown request and will no longer accept work.
var ErrExecutorShutdown = errors.New("concur: executor has shut down")

// Executor accepts Tasks and arranges for their execution on some set of
// goroutines. All implementations in this module (the work-stealing pool,
// the single worker thread, the thread-per-task executor, and the manual
// executor) satisfy this interface identically so that user code can submit
// work without depending on which concrete executor it ends up running on.
type Executor interface {
	// Name identifies the executor for diagnostics and logging.
	Name() string

	// MaxConcurrencyLevel returns the maximum number of tasks this executor
	// may run concurrently. Single-threaded executors (manual, single
	// worker) return 1; thread-per-task executors return 0 to indicate "no
	// fixed bound".
	MaxConcurrencyLevel() int

	// Post schedules fn to run with no way to observe its result; errors
	// returned by fn are discarded, matching the "post is fire-and-forget"
	// policy from the error handling design.
	Post(fn func()) error

	// BulkPost is equivalent to calling Post for every function in fns, but
	// implementations may enqueue them as one batch while preserving order.
	BulkPost(fns []func()) error

	// Shutdown requests the executor to stop accepting new work. Tasks
	// already running finish; queued tasks that will never run are
	// cancelled with ErrExecutorShutdown (or a more specific wrapper of it).
	// Shutdown is idempotent.
	Shutdown()

	// ShutdownRequested reports whether Shutdown has been called.
	ShutdownRequested() bool
}

// Cancellable is the interface a task's underlying callable may
// structurally implement to receive a no-fail cancellation notice when the
// task is discarded without running. See Task and NewTask.
type Cancellable interface {
	// Cancel is invoked at most once, and only if Run/Invoke never ran. It
	// must not panic.
	Cancel(reason error)
}
