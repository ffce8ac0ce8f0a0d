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

package concur

import (
	"reflect"
	"sync"

	"github.com/modern-go/reflect2"
)

// runner is what every Task wraps: a zero-argument callable. It is kept
// here as an unexported function type so Task stays a single concrete
// struct rather than an interface, which is what lets it carry a separate
// cancel hook alongside the call.
type runner func()

// Callable is anything invokable with no arguments and no return value.
// NewCallableTask wraps one of these directly (rather than a bound method
// value derived from it) specifically so the duck-typed Cancel(error)
// lookup below has the callable's real dynamic type to work with — a bound
// method value's reflected type is just "func()", which has erased the
// receiver and so could never expose a Cancel method.
type Callable interface {
	Run()
}

// cancelHookCache remembers, per concrete type of the functor passed to
// NewCallableTask, whether that type has a structural "Cancel(error)" method and,
// if so, a reflect2-built invoker for it. Computing this once per type
// (instead of per task) is what makes duck-typed cancel-hook detection
// affordable on the task construction hot path.
var cancelHookCache sync.Map // map[reflect2.Type]func(interface{}, error)

// cancelHookFor returns a function that invokes fn's Cancel(error) method,
// or nil if fn has no such method. Any type whose method set includes
// Cancel(error) satisfies Cancellable, so the interface assertion finds
// every such hook; the reflect2-keyed lookup after it only runs for types
// that fail the assertion, and caches their nil result.
func cancelHookFor(fn interface{}) func(error) {
	if c, ok := fn.(Cancellable); ok {
		return c.Cancel
	}

	rtype := reflect.TypeOf(fn)
	if rtype == nil {
		return nil
	}

	t2 := reflect2.Type2(rtype)
	if cached, ok := cancelHookCache.Load(t2); ok {
		hook := cached.(func(interface{}, error))
		if hook == nil {
			return nil
		}
		return func(reason error) { hook(fn, reason) }
	}

	method, ok := rtype.MethodByName("Cancel")
	var hook func(interface{}, error)
	if ok && method.Func.IsValid() {
		sig := method.Type
		// Expect func(receiver, error); reject anything that doesn't match
		// the Cancellable shape so we never call an unrelated "Cancel" method.
		if sig.NumIn() == 2 && sig.NumOut() == 0 && sig.In(1) == reflect.TypeOf((*error)(nil)).Elem() {
			fnVal := method.Func
			hook = func(recv interface{}, reason error) {
				fnVal.Call([]reflect.Value{reflect.ValueOf(recv), reflect.ValueOf(reason)})
			}
		}
	}

	cancelHookCache.Store(t2, hook)
	if hook == nil {
		return nil
	}
	return func(reason error) { hook(fn, reason) }
}

// Task is a value-typed, move-by-convention, type-erased zero-argument
// callable, carrying an optional no-fail cancel hook. Some task runtimes
// distinguish an inline (small-buffer-optimized) representation from a
// heap-allocated one to avoid an allocation per submitted closure; in Go,
// the closure captured by NewTask is already allocated however the Go
// compiler's escape analysis decides (often inlined into the surrounding
// frame for a task that never outlives its constructing call), so Task
// itself only tracks whether its callable is "present", not where it lives.
// UsesInlineStorage is kept as a diagnostic for API parity; it always
// reports true in this implementation since Go gives callers no way to
// force heap placement independent of escape analysis, and is not meant to
// be load-bearing.
type Task struct {
	fn     runner
	cancel func(error)
}

// NewTask wraps a plain closure as a Task. A closure has no methods of its
// own, so it never carries a cancel hook; use NewCallableTask for a functor
// object that should be cancellable.
func NewTask(fn func()) Task {
	return Task{fn: fn}
}

// NewCallableTask wraps a Callable object as a Task. If c implements
// Cancellable, or merely has a method matching "Cancel(error)", that method
// becomes the task's cancel hook and runs if the task is discarded instead
// of invoked (Clear is the one exception — see Clear).
func NewCallableTask(c Callable) Task {
	return Task{fn: c.Run, cancel: cancelHookFor(c)}
}

// NewTaskFunc adapts an ordinary value-returning function into a Task whose
// result and error are delivered through the returned closure's own
// capture — callers that need the result should instead use a Promise (see
// package concur/result) and call NewTask(func() { promise.SetFromFunc(fn) }).
// This helper exists for the common case of fire-and-forget work that still
// wants the (value, error) ergonomics of a plain function.
func NewTaskFunc(fn func() (interface{}, error), onResult func(interface{}, error)) Task {
	return NewTask(func() {
		v, err := fn()
		if onResult != nil {
			onResult(v, err)
		}
	})
}

// Invoke calls the wrapped callable exactly once, then clears it. Invoking
// an empty task (zero value, or already invoked/cleared) is a no-op.
func (t *Task) Invoke() {
	fn := t.fn
	if fn == nil {
		return
	}
	t.fn = nil
	t.cancel = nil
	fn()
}

// Cancel notifies the task's cancel hook, if any, that it will never run,
// then clears the task. It is a no-op for an empty task or one with no
// cancel hook beyond clearing it. Cancel must not be called after Invoke
// has already run (Invoke clears the task, so a second Cancel is already a
// no-op by construction).
func (t *Task) Cancel(reason error) {
	cancel := t.cancel
	t.fn = nil
	t.cancel = nil
	if cancel != nil {
		cancel(reason)
	}
}

// Clear discards the wrapped callable without invoking it or its cancel
// hook, leaving the task empty.
func (t *Task) Clear() {
	t.fn = nil
	t.cancel = nil
}

// Empty reports whether the task currently wraps no callable.
func (t *Task) Empty() bool {
	return t.fn == nil
}

// UsesInlineStorage is a diagnostic placeholder kept for API surface parity
// (see the Task doc comment); it always returns true.
func (t *Task) UsesInlineStorage() bool {
	return true
}
