package asynclock

import (
	"fmt"
	"sync"

	"github.com/fenwick-labs/concur"
	"github.com/fenwick-labs/concur/result"
	"github.com/fenwick-labs/concur/ringdeque"
)

// cvWaiter is one pending Await call, queued FIFO.
type cvWaiter struct {
	resumeOn concur.Executor
	promise  *result.Promise[struct{}]
}

// ConditionVariable lets a caller suspend while holding a ScopedAsyncLock,
// atomically releasing it, and resume (on a caller-chosen executor) with
// the lock re-acquired once notified.
type ConditionVariable struct {
	mu      sync.Mutex
	waiters *ringdeque.Deque[cvWaiter]
}

// NewConditionVariable creates an empty ConditionVariable.
func NewConditionVariable() *ConditionVariable {
	return &ConditionVariable{waiters: ringdeque.New[cvWaiter](16)}
}

// Await atomically unlocks guard and suspends the caller, queuing it for
// notification; once woken, it re-acquires guard's mutex (resumed via
// resumeOn) before the returned Result publishes.
func (cv *ConditionVariable) Await(resumeOn concur.Executor, guard *ScopedAsyncLock) *result.Result[struct{}] {
	p, out := result.New[struct{}]()

	m := guard.mutex
	if m == nil || !guard.OwnsLock() {
		_ = p.SetException(ErrNoMutex)
		return out
	}

	waitP, waitR := result.New[struct{}]()
	cv.mu.Lock()
	cv.waiters.PushBack(cvWaiter{resumeOn: resumeOn, promise: waitP})
	cv.mu.Unlock()

	if err := guard.Unlock(); err != nil {
		_ = p.SetException(err)
		return out
	}

	_ = waitR.OnReady(nil, func(_ struct{}, err error) {
		if err != nil {
			_ = p.SetException(err)
			return
		}
		relock := m.acquire(resumeOn)
		_ = relock.OnReady(nil, func(_ struct{}, rerr error) {
			if rerr != nil {
				_ = p.SetException(rerr)
				return
			}
			guard.mu.Lock()
			guard.mutex = m
			guard.owns = true
			guard.mu.Unlock()
			_ = p.SetValue(struct{}{})
		})
	})
	return out
}

// AwaitWhile repeatedly Awaits until predicate returns true, re-checking it
// each time guard's lock is re-acquired. predicate is called with guard
// locked, both before the first suspension and after every wakeup.
func (cv *ConditionVariable) AwaitWhile(resumeOn concur.Executor, guard *ScopedAsyncLock, predicate func() bool) *result.Result[struct{}] {
	p, out := result.New[struct{}]()

	var loop func()
	loop = func() {
		if predicate() {
			_ = p.SetValue(struct{}{})
			return
		}
		inner := cv.Await(resumeOn, guard)
		_ = inner.OnReady(nil, func(_ struct{}, err error) {
			if err != nil {
				_ = p.SetException(err)
				return
			}
			loop()
		})
	}
	loop()
	return out
}

// NotifyOne wakes the single longest-waiting Await, if any.
func (cv *ConditionVariable) NotifyOne() {
	cv.mu.Lock()
	w, ok := cv.waiters.PopFront()
	cv.mu.Unlock()
	if !ok {
		return
	}
	cv.wake(w)
}

// NotifyAll wakes every currently waiting Await.
func (cv *ConditionVariable) NotifyAll() {
	cv.mu.Lock()
	var woken []cvWaiter
	for {
		w, ok := cv.waiters.PopFront()
		if !ok {
			break
		}
		woken = append(woken, w)
	}
	cv.mu.Unlock()
	for _, w := range woken {
		cv.wake(w)
	}
}

func (cv *ConditionVariable) wake(w cvWaiter) {
	if w.resumeOn == nil {
		_ = w.promise.SetValue(struct{}{})
		return
	}
	if err := w.resumeOn.Post(func() { _ = w.promise.SetValue(struct{}{}) }); err != nil {
		_ = w.promise.SetException(fmt.Errorf("%w: %v", result.ErrBrokenTask, err))
	}
}
