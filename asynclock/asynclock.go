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

// Package asynclock implements a FIFO mutex and condition variable built on
// result promises. A contended Lock queues its caller, and the goroutine
// that runs the returned LazyResult blocks until the lock is granted to it;
// ConditionVariable.Await instead returns at once with a Result that
// publishes after the notification arrives and the lock is re-acquired.
package asynclock

import (
	"errors"
	"fmt"
	"reflect"
	"sync"

	"github.com/fenwick-labs/concur"
	"github.com/fenwick-labs/concur/result"
	"github.com/fenwick-labs/concur/ringdeque"
)

// ErrDeadlock is returned by ScopedAsyncLock.Lock when the guard already
// owns its lock.
var ErrDeadlock = errors.New("concur/asynclock: guard already owns the lock")

// ErrNoMutex is returned by ScopedAsyncLock.Lock/Unlock when the guard is
// not currently associated with a lock (empty, or already released).
var ErrNoMutex = errors.New("concur/asynclock: guard owns no mutex")

// waiter is one pending Lock call, queued FIFO.
type waiter struct {
	resumeOn concur.Executor
	promise  *result.Promise[struct{}]
}

// AsyncLock is a mutex whose contended callers are queued and granted the
// lock in the order they arrived, each grant published via the caller's
// chosen executor.
type AsyncLock struct {
	mu      sync.Mutex
	locked  bool
	waiters *ringdeque.Deque[waiter]
}

// New creates an unlocked AsyncLock.
func New() *AsyncLock {
	return &AsyncLock{waiters: ringdeque.New[waiter](16)}
}

// acquire is the raw, guard-less acquisition path shared by Lock and
// ScopedAsyncLock.Lock (the re-lock method): it publishes once this caller
// reaches the front of the FIFO and the lock is free.
func (l *AsyncLock) acquire(resumeOn concur.Executor) *result.Result[struct{}] {
	l.mu.Lock()
	if !l.locked {
		l.locked = true
		l.mu.Unlock()
		return result.Ready(struct{}{})
	}
	p, r := result.New[struct{}]()
	l.waiters.PushBack(waiter{resumeOn: resumeOn, promise: p})
	l.mu.Unlock()
	return r
}

// release hands the lock to the next FIFO waiter, or marks it free if none
// are queued. A waiter whose resume executor rejects enqueue observes
// result.ErrBrokenTask instead of being silently dropped, and the lock
// passes on to the waiter behind it.
func (l *AsyncLock) release() {
	for {
		l.mu.Lock()
		w, ok := l.waiters.PopFront()
		if !ok {
			l.locked = false
			l.mu.Unlock()
			return
		}
		l.mu.Unlock()

		if w.resumeOn == nil {
			_ = w.promise.SetValue(struct{}{})
			return
		}
		err := w.resumeOn.Post(func() { _ = w.promise.SetValue(struct{}{}) })
		if err == nil {
			return
		}
		_ = w.promise.SetException(fmt.Errorf("%w: %v", result.ErrBrokenTask, err))
	}
}

// Lock returns a LazyResult that, once Run, publishes a ScopedAsyncLock
// guard once acquired; the lock is not touched until Run is called, and
// Run blocks the calling goroutine until the lock is granted. resumeOn is
// the executor on which release publishes the grant to a contended caller;
// nil publishes it inline on whichever goroutine called release.
func (l *AsyncLock) Lock(resumeOn concur.Executor) *result.LazyResult[*ScopedAsyncLock] {
	return result.NewLazy(func() (*ScopedAsyncLock, error) {
		if _, err := l.acquire(resumeOn).Get(); err != nil {
			return nil, err
		}
		return &ScopedAsyncLock{mutex: l, owns: true}, nil
	})
}

// TryLock attempts to acquire the lock without queuing, publishing true on
// success and false if it was already held, once Run is called. A
// successful TryLock must be paired with a later Unlock call (there is no
// guard to carry that obligation, matching the non-guard-returning
// try_lock signature).
func (l *AsyncLock) TryLock() *result.LazyResult[bool] {
	return result.NewLazy(func() (bool, error) {
		l.mu.Lock()
		if l.locked {
			l.mu.Unlock()
			return false, nil
		}
		l.locked = true
		l.mu.Unlock()
		return true, nil
	})
}

// Unlock releases a lock acquired via a successful TryLock.
func (l *AsyncLock) Unlock() { l.release() }

// ScopedAsyncLock is an RAII-style guard over an AsyncLock. The zero value
// owns no mutex: Lock, TryLock and Unlock report ErrNoMutex on it, and
// Release returns nil.
type ScopedAsyncLock struct {
	mu    sync.Mutex
	mutex *AsyncLock
	owns  bool
}

// OwnsLock reports whether this guard currently holds its mutex locked.
func (g *ScopedAsyncLock) OwnsLock() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.owns
}

// Lock re-acquires the guard's mutex after a prior Unlock, once Run is
// called on the returned LazyResult; the lock is not touched before then.
// Calling it on a guard that already owns the lock returns ErrDeadlock;
// calling it on an empty guard (no mutex, e.g. after Release) returns
// ErrNoMutex.
func (g *ScopedAsyncLock) Lock(resumeOn concur.Executor) *result.LazyResult[struct{}] {
	return result.NewLazy(func() (struct{}, error) {
		g.mu.Lock()
		switch {
		case g.mutex == nil:
			g.mu.Unlock()
			return struct{}{}, ErrNoMutex
		case g.owns:
			g.mu.Unlock()
			return struct{}{}, ErrDeadlock
		}
		m := g.mutex
		g.mu.Unlock()

		if _, err := m.acquire(resumeOn).Get(); err != nil {
			return struct{}{}, err
		}
		g.mu.Lock()
		g.owns = true
		g.mu.Unlock()
		return struct{}{}, nil
	})
}

// TryLock attempts to re-acquire the guard's mutex without queuing, once
// Run is called on the returned LazyResult.
func (g *ScopedAsyncLock) TryLock() *result.LazyResult[bool] {
	return result.NewLazy(func() (bool, error) {
		g.mu.Lock()
		if g.mutex == nil {
			g.mu.Unlock()
			return false, ErrNoMutex
		}
		if g.owns {
			g.mu.Unlock()
			return false, ErrDeadlock
		}
		m := g.mutex
		g.mu.Unlock()

		ok, err := m.TryLock().Run().Get()
		if err != nil {
			return false, err
		}
		if ok {
			g.mu.Lock()
			g.owns = true
			g.mu.Unlock()
		}
		return ok, nil
	})
}

// Unlock releases the guard's mutex, leaving the guard still associated
// with it (a later Lock call can re-acquire). ErrNoMutex covers both an
// empty guard and one that does not currently own its lock.
func (g *ScopedAsyncLock) Unlock() error {
	g.mu.Lock()
	if g.mutex == nil || !g.owns {
		g.mu.Unlock()
		return ErrNoMutex
	}
	m := g.mutex
	g.owns = false
	g.mu.Unlock()
	m.release()
	return nil
}

// Release detaches the guard from its mutex without unlocking it, handing
// the unlock obligation to the caller, and returns the mutex (nil if the
// guard was already empty).
func (g *ScopedAsyncLock) Release() *AsyncLock {
	g.mu.Lock()
	defer g.mu.Unlock()
	m := g.mutex
	g.mutex = nil
	g.owns = false
	return m
}

// Swap exchanges the mutex/ownership state of g and other. The two guards'
// internal locks are always taken in address order, so concurrent Swap
// calls that share a guard never deadlock against each other.
func (g *ScopedAsyncLock) Swap(other *ScopedAsyncLock) {
	if g == other {
		return
	}
	first, second := g, other
	if reflect.ValueOf(first).Pointer() > reflect.ValueOf(second).Pointer() {
		first, second = second, first
	}
	first.mu.Lock()
	defer first.mu.Unlock()
	second.mu.Lock()
	defer second.mu.Unlock()
	g.mutex, other.mutex = other.mutex, g.mutex
	g.owns, other.owns = other.owns, g.owns
}
