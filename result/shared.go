package result

import (
	"time"

	"github.com/fenwick-labs/concur"
)

// SharedResult is a repeatable, multi-consumer view over a Result's state:
// Get/Wait/OnReady/Resolve may each be called any number of times and from
// any number of goroutines, always observing the same published value or
// the same exception object. Share converts a Result into a SharedResult;
// the original Result should not be used for Get afterwards (the value
// belongs to the shared handle from that point on).
type SharedResult[T any] struct {
	state *sharedState[T]
}

// Share wraps r's state in a SharedResult. r itself remains valid for
// Wait/Status but its single-shot Get/OnReady/Resolve slot should not be
// used concurrently with the returned handle.
func Share[T any](r *Result[T]) *SharedResult[T] {
	if r.Empty() {
		return &SharedResult[T]{}
	}
	return &SharedResult[T]{state: r.state}
}

// ReadyShared returns a SharedResult already completed with v.
func ReadyShared[T any](v T) *SharedResult[T] {
	return Share(Ready(v))
}

// ErroredShared returns a SharedResult already completed with err.
func ErroredShared[T any](err error) *SharedResult[T] {
	return Share(Errored[T](err))
}

// Empty reports whether r is the zero value.
func (r *SharedResult[T]) Empty() bool { return r == nil || r.state == nil }

// Status reports whether the value is still pending.
func (r *SharedResult[T]) Status() Status {
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

// Wait blocks until the result is published.
func (r *SharedResult[T]) Wait() error {
	if r.Empty() {
		return ErrEmptyResult
	}
	r.state.wait()
	return nil
}

// WaitFor blocks until the result is published or d elapses.
func (r *SharedResult[T]) WaitFor(d time.Duration) (bool, error) {
	if r.Empty() {
		return false, ErrEmptyResult
	}
	return r.state.waitFor(d), nil
}

// WaitUntil blocks until the result is published or deadline passes.
func (r *SharedResult[T]) WaitUntil(deadline time.Time) (bool, error) {
	if r.Empty() {
		return false, ErrEmptyResult
	}
	return r.state.waitUntil(deadline), nil
}

// Get blocks until the result is published and returns its value/error.
// Unlike Result.Get, this may be called any number of times, always
// returning the same value or the same exception.
func (r *SharedResult[T]) Get() (T, error) {
	var zero T
	if r.Empty() {
		return zero, ErrEmptyResult
	}
	r.state.wait()
	v, err, _ := r.state.snapshot()
	return v, err
}

// OnReady arms fn to run with the unwrapped (value, error) on every call,
// on executor (nil runs inline). Multiple OnReady/Resolve registrations on
// the same SharedResult all fire independently once the value publishes.
func (r *SharedResult[T]) OnReady(executor concur.Executor, fn func(value T, err error)) error {
	if r.Empty() {
		return ErrEmptyResult
	}
	cont := &armedContinuation[T]{executor: executor, kind: kindOnReady, onReadyFn: fn}
	if r.state.subscribe(cont) {
		return nil
	}
	v, err, _ := r.state.snapshot()
	dispatch(cont, v, err)
	return nil
}

// Resolve arms fn to run with this SharedResult handle itself on every
// call, on executor (nil runs inline). Like OnReady, any number of
// Resolve/OnReady registrations on the same SharedResult all fire
// independently once the value publishes.
func (r *SharedResult[T]) Resolve(executor concur.Executor, fn func(r *SharedResult[T])) error {
	if r.Empty() {
		return ErrEmptyResult
	}
	cont := &armedContinuation[T]{executor: executor, kind: kindResolveShared, resolveSharedFn: fn, sharedOwner: r}
	if r.state.subscribe(cont) {
		return nil
	}
	dispatch(cont, *new(T), nil)
	return nil
}
