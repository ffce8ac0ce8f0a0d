package result

import (
	"runtime"
	"sync/atomic"
)

// Promise is the producer side of a Result/Promise pair. It is not safe to
// call SetValue/SetException/SetFromFunc more than once; the second
// call is a no-op reported via ErrInvalidArgument. Its associated Result is
// obtained via GetResult, which may itself only be called once.
type Promise[T any] struct {
	state     *sharedState[T]
	settled   atomic.Bool
	collected atomic.Bool
}

// NewPromise creates a fresh, unsettled Promise. Call GetResult to obtain
// its associated Result handle.
func NewPromise[T any]() *Promise[T] {
	state := newSharedState[T]()
	p := &Promise[T]{state: state}

	// A Promise abandoned without ever publishing completes its Result with
	// ErrBrokenTask, mirroring a broken_task destructor: runtime.SetFinalizer
	// is this package's stand-in for "notice the producer went away".
	runtime.SetFinalizer(p, func(p *Promise[T]) {
		if p.settled.CompareAndSwap(false, true) {
			var zero T
			state.publish(zero, ErrBrokenTask)
		}
	})
	return p
}

// New creates a fresh Result/Promise pair sharing one state machine. It is
// a convenience wrapper around NewPromise+GetResult for the common case
// where the caller wants both handles immediately and has no need to defer
// or guard the GetResult call.
func New[T any]() (*Promise[T], *Result[T]) {
	p := NewPromise[T]()
	r, _ := p.GetResult()
	return p, r
}

// GetResult returns the Result associated with p. It may be called exactly
// once; a second call reports ErrResultAlreadyObtained.
func (p *Promise[T]) GetResult() (*Result[T], error) {
	if p.Empty() {
		return nil, ErrEmptyPromise
	}
	if !p.collected.CompareAndSwap(false, true) {
		return nil, ErrResultAlreadyObtained
	}
	return &Result[T]{state: p.state}, nil
}

// Empty reports whether p is the zero value (never produced by NewPromise).
func (p *Promise[T]) Empty() bool { return p == nil || p.state == nil }

// SetValue publishes v as the completed value. It returns
// ErrInvalidArgument if the promise was already settled.
func (p *Promise[T]) SetValue(v T) error {
	if p.Empty() {
		return ErrEmptyPromise
	}
	if !p.settled.CompareAndSwap(false, true) {
		return ErrInvalidArgument
	}
	p.state.publish(v, nil)
	return nil
}

// SetException publishes err as the completed error. err must be non-nil.
func (p *Promise[T]) SetException(err error) error {
	if p.Empty() {
		return ErrEmptyPromise
	}
	if err == nil {
		return ErrInvalidArgument
	}
	if !p.settled.CompareAndSwap(false, true) {
		return ErrInvalidArgument
	}
	p.state.publish(*new(T), err)
	return nil
}

// SetFromFunc runs fn and publishes whichever of its two return values
// applies: the value on a nil error, the error otherwise.
func (p *Promise[T]) SetFromFunc(fn func() (T, error)) error {
	v, err := fn()
	if err != nil {
		return p.SetException(err)
	}
	return p.SetValue(v)
}
