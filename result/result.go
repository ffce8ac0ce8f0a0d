package result

import (
	"sync/atomic"
	"time"

	"github.com/fenwick-labs/concur"
)

// Result is the consumer side of a Result/Promise pair. A non-shared
// Result's value may be retrieved via Get exactly once; a second call
// reports ErrResultAlreadyRetrieved. Use SharedResult for a handle whose
// Get is safely repeatable.
type Result[T any] struct {
	state     *sharedState[T]
	retrieved atomic.Bool
}

// Ready returns a Result already completed with v.
func Ready[T any](v T) *Result[T] {
	p, r := New[T]()
	_ = p.SetValue(v)
	return r
}

// Errored returns a Result already completed with err.
func Errored[T any](err error) *Result[T] {
	p, r := New[T]()
	_ = p.SetException(err)
	return r
}

// Empty reports whether r is the zero value (never produced by New).
func (r *Result[T]) Empty() bool { return r == nil || r.state == nil }

// Status reports whether the value is still pending.
func (r *Result[T]) Status() Status {
	if r.Empty() {
		return StatusIdle
	}
	_, err, done := r.state.snapshot()
	if !done {
		return StatusIdle
	}
	if err != nil {
		return StatusException
	}
	return StatusValue
}

// Status is the externally observable phase of a Result.
type Status int

const (
	StatusIdle Status = iota
	StatusValue
	StatusException
)

// Wait blocks until the result is published.
func (r *Result[T]) Wait() error {
	if r.Empty() {
		return ErrEmptyResult
	}
	r.state.wait()
	return nil
}

// WaitFor blocks until the result is published or d elapses, reporting
// which happened.
func (r *Result[T]) WaitFor(d time.Duration) (bool, error) {
	if r.Empty() {
		return false, ErrEmptyResult
	}
	return r.state.waitFor(d), nil
}

// WaitUntil blocks until the result is published or deadline passes.
func (r *Result[T]) WaitUntil(deadline time.Time) (bool, error) {
	if r.Empty() {
		return false, ErrEmptyResult
	}
	return r.state.waitUntil(deadline), nil
}

// Get blocks until the result is published, then returns its value/error
// and marks it retrieved. A second call returns ErrResultAlreadyRetrieved.
func (r *Result[T]) Get() (T, error) {
	var zero T
	if r.Empty() {
		return zero, ErrEmptyResult
	}
	if !r.retrieved.CompareAndSwap(false, true) {
		return zero, ErrResultAlreadyRetrieved
	}
	r.state.wait()
	v, err, _ := r.state.snapshot()
	return v, err
}

// OnReady arms fn to run with the unwrapped (value, error) once the result
// publishes, on executor (nil runs inline on the producing goroutine). If
// the result is already published, fn is dispatched before OnReady returns:
// run synchronously when executor is nil, posted to executor otherwise.
func (r *Result[T]) OnReady(executor concur.Executor, fn func(value T, err error)) error {
	if r.Empty() {
		return ErrEmptyResult
	}
	cont := &armedContinuation[T]{executor: executor, kind: kindOnReady, onReadyFn: fn}
	if r.state.arm(cont) {
		return nil
	}
	v, err, _ := r.state.snapshot()
	dispatch(cont, v, err)
	return nil
}

// Resolve arms fn to run with this Result handle itself once the result
// publishes, on executor (nil runs inline). Unlike OnReady, fn always sees
// the real completed value via r even when the executor Post fails — the
// fallback-to-inline substitution only affects OnReady's unwrapped error.
func (r *Result[T]) Resolve(executor concur.Executor, fn func(r *Result[T])) error {
	if r.Empty() {
		return ErrEmptyResult
	}
	cont := &armedContinuation[T]{executor: executor, kind: kindResolve, resolveFn: fn, owner: r}
	if r.state.arm(cont) {
		return nil
	}
	dispatch(cont, *new(T), nil)
	return nil
}

// tryRewindConsumer clears an armed OnReady/Resolve continuation iff the
// result has not yet published. Used by WhenAny to disarm losing inputs.
func (r *Result[T]) tryRewindConsumer() bool {
	if r.Empty() {
		return false
	}
	return r.state.tryRewindConsumer()
}

// Poll implements the Future[T] interface: Ready with the published value
// once done, Pending (arming waker to be woken on completion) otherwise.
func (r *Result[T]) Poll(waker Waker) (PollResult, T, error) {
	var zero T
	if r.Empty() {
		return PollReady, zero, ErrEmptyResult
	}
	if v, err, done := r.state.snapshot(); done {
		return PollReady, v, err
	}
	armed := r.state.arm(&armedContinuation[T]{kind: kindOnReady, onReadyFn: func(T, error) {
		_ = waker.Wake()
	}})
	if !armed {
		v, err, _ := r.state.snapshot()
		return PollReady, v, err
	}
	return PollPending, zero, nil
}
