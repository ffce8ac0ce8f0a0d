package result

import (
	"sync"

	"github.com/fenwick-labs/concur"
)

// LazyResult wraps a computation that does not run until Run is called (or
// never, if the handle is discarded) — the Go analogue of a coroutine body
// that does not execute until first co_await/run(). Run is idempotent: the
// second and later calls return the same underlying Result without
// re-invoking fn.
type LazyResult[T any] struct {
	mu      sync.Mutex
	started bool
	fn      func() (T, error)
	// executor, if non-nil, runs fn asynchronously via Post; if nil, Run
	// executes fn synchronously on the calling goroutine, matching a
	// coroutine resumed inline by its first awaiter.
	executor concur.Executor
	result   *Result[T]
}

// NewLazy creates a LazyResult that will run fn inline on whichever
// goroutine first calls Run.
func NewLazy[T any](fn func() (T, error)) *LazyResult[T] {
	return &LazyResult[T]{fn: fn}
}

// NewLazyOn creates a LazyResult that runs fn on executor once started.
func NewLazyOn[T any](executor concur.Executor, fn func() (T, error)) *LazyResult[T] {
	return &LazyResult[T]{fn: fn, executor: executor}
}

// Status reports StatusIdle if Run has not yet been called, regardless of
// whether fn would complete immediately; otherwise it delegates to the
// underlying Result.
func (l *LazyResult[T]) Status() Status {
	l.mu.Lock()
	started := l.started
	r := l.result
	l.mu.Unlock()
	if !started {
		return StatusIdle
	}
	return r.Status()
}

// Run starts fn if it has not already started, and returns the Result that
// will observe its completion. Calling Run multiple times is safe and
// always returns the same Result.
func (l *LazyResult[T]) Run() *Result[T] {
	l.mu.Lock()
	if l.started {
		r := l.result
		l.mu.Unlock()
		return r
	}
	l.started = true
	p, r := New[T]()
	l.result = r
	executor := l.executor
	fn := l.fn
	l.mu.Unlock()

	if executor == nil {
		_ = p.SetFromFunc(fn)
		return r
	}
	if err := executor.Post(func() { _ = p.SetFromFunc(fn) }); err != nil {
		_ = p.SetException(err)
	}
	return r
}
