package result

import "github.com/fenwick-labs/concur"

// Submit schedules fn to run on executor and returns a Result that
// completes with fn's return value once it finishes. This is the
// executor::submit(...) -> result<T> operation: unlike Post/BulkPost
// (fire-and-forget, returning only an error), Submit gives the caller a
// handle to observe fn's eventual value or error.
//
// If executor rejects the enqueue (for example because it has already shut
// down), the returned Result completes immediately with that error.
func Submit[T any](executor concur.Executor, fn func() (T, error)) *Result[T] {
	p := NewPromise[T]()
	r, _ := p.GetResult()
	if err := executor.Post(func() {
		_ = p.SetFromFunc(fn)
	}); err != nil {
		_ = p.SetException(err)
	}
	return r
}

// BulkSubmit is equivalent to calling Submit for every function in fns, but
// enqueues them as one batch via executor.BulkPost.
func BulkSubmit[T any](executor concur.Executor, fns []func() (T, error)) []*Result[T] {
	results := make([]*Result[T], len(fns))
	promises := make([]*Promise[T], len(fns))
	posted := make([]func(), len(fns))
	for i, fn := range fns {
		fn := fn
		p := NewPromise[T]()
		r, _ := p.GetResult()
		promises[i] = p
		results[i] = r
		posted[i] = func() { _ = p.SetFromFunc(fn) }
	}
	if err := executor.BulkPost(posted); err != nil {
		for _, p := range promises {
			_ = p.SetException(err)
		}
	}
	return results
}
