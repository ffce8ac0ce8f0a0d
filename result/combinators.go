package result

import (
	"sync/atomic"

	"github.com/fenwick-labs/concur"
)

// WhenAll returns a Result that publishes once every input has published.
// The aggregate value is the slice of inputs themselves, in their original
// order, each still carrying its own value/exception — exactly like the
// spec's "aggregate[i] observes the same status as results[i]". An empty
// input list produces an already-ready Result holding an empty slice.
func WhenAll[T any](results ...*Result[T]) *Result[[]*Result[T]] {
	if len(results) == 0 {
		return Ready[[]*Result[T]](nil)
	}

	p, out := New[[]*Result[T]]()
	var remaining int64 = int64(len(results))

	for _, r := range results {
		r := r
		onOneDone := func(T, error) {
			if atomic.AddInt64(&remaining, -1) == 0 {
				_ = p.SetValue(results)
			}
		}
		if err := r.OnReady(nil, onOneDone); err != nil {
			_ = p.SetException(err)
		}
	}
	return out
}

// WhenAnyResult is WhenAny's published value: Index names which input won
// the race, Inputs is the full original slice (losers rewound, not
// completed by WhenAny itself — they remain independently awaitable).
type WhenAnyResult[T any] struct {
	Index  int
	Inputs []*Result[T]
}

// WhenAny returns a Result that publishes as soon as the first of results
// completes. The losing inputs have their WhenAny-installed continuation
// rewound (disarmed) so they remain free to be awaited independently
// afterward; WhenAny itself never blocks on them. Calling WhenAny with no
// inputs is a programming error reported via ErrInvalidArgument instead of
// returning a Result, since there is no sensible "ready" value to produce.
func WhenAny[T any](results ...*Result[T]) (*Result[WhenAnyResult[T]], error) {
	if len(results) == 0 {
		return nil, ErrInvalidArgument
	}

	p, out := New[WhenAnyResult[T]]()
	var fulfilled atomic.Bool

	for i, r := range results {
		i, r := i, r
		err := r.OnReady(nil, func(T, error) {
			if !fulfilled.CompareAndSwap(false, true) {
				return
			}
			for j, other := range results {
				if j != i {
					other.tryRewindConsumer()
				}
			}
			_ = p.SetValue(WhenAnyResult[T]{Index: i, Inputs: results})
		})
		if err != nil {
			_ = p.SetException(err)
		}
	}
	return out, nil
}

// ResumeOn returns a Result that completes with r's value or error,
// delivered through executor's Post: the underlying task keeps running
// wherever it already is, but continuations chained off the returned Result
// observe it via executor's Post rather than inline. It is the async analogue of
// result::resolve(executor, ...) applied uniformly to every consumer.
func ResumeOn[T any](r *Result[T], executor concur.Executor) *Result[T] {
	p, out := New[T]()
	_ = r.OnReady(executor, func(v T, err error) {
		if err != nil {
			_ = p.SetException(err)
			return
		}
		_ = p.SetValue(v)
	})
	return out
}
