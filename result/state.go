package result

import (
	"sync"
	"time"

	"github.com/fenwick-labs/concur"
)

// continuationKind distinguishes the two consumer-arming shapes a state can
// hold: OnReady delivers the unwrapped value/error pair, Resolve delivers
// the Result handle itself so the callback can inspect it without the
// unwrap (and without a second retrieval race on a non-shared handle).
type continuationKind int

const (
	kindOnReady continuationKind = iota
	kindResolve
	kindResolveShared
)

// armedContinuation is the single consumer slot a sharedState may hold at
// once. Arming it a second time before it fires is a programming error the
// callers in this package never trigger; result_promise/result only ever
// let one of Get/Wait/OnReady/Resolve own the slot at a time.
type armedContinuation[T any] struct {
	executor        concur.Executor
	kind            continuationKind
	onReadyFn       func(value T, err error)
	resolveFn       func(r *Result[T])
	owner           *Result[T]       // only populated for kindResolve
	resolveSharedFn func(r *SharedResult[T])
	sharedOwner     *SharedResult[T] // only populated for kindResolveShared
}

// sharedState is the Result state machine from the producer/consumer model:
// Idle -> (optionally) continuation-armed -> Value(v) or Exception(e) ->
// Done. A single mutex guards every transition; publication and consumption
// never execute on two sides of a race because both go through it.
type sharedState[T any] struct {
	mu   sync.Mutex
	cond *sync.Cond

	done  bool
	value T
	err   error

	armed *armedContinuation[T]

	// subscribers holds continuations registered through a SharedResult,
	// which — unlike a plain Result — allows any number of independent
	// consumers to observe the same completion.
	subscribers []*armedContinuation[T]
}

func newSharedState[T any]() *sharedState[T] {
	s := &sharedState[T]{}
	s.cond = sync.NewCond(&s.mu)
	return s
}

// isDone reports whether the state has been published to, without blocking.
func (s *sharedState[T]) isDone() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.done
}

// publish moves the state from Idle to Done exactly once, storing the value
// or the error; a second publish is ignored (first write wins), and the
// Promise layer also reports a second Set call as ErrInvalidArgument.
func (s *sharedState[T]) publish(value T, err error) {
	s.mu.Lock()
	if s.done {
		s.mu.Unlock()
		return
	}
	s.done = true
	s.value = value
	s.err = err
	cont := s.armed
	s.armed = nil
	subs := s.subscribers
	s.subscribers = nil
	s.mu.Unlock()

	s.cond.Broadcast()
	if cont != nil {
		dispatch(cont, value, err)
	}
	for _, sub := range subs {
		dispatch(sub, value, err)
	}
}

// subscribe registers cont to run on every future completion notification
// without consuming the single-shot armed slot; used by SharedResult, whose
// Get/OnReady/Resolve are repeatable across any number of consumers. It
// reports whether registration succeeded (false if already done, in which
// case the caller dispatches immediately instead).
func (s *sharedState[T]) subscribe(cont *armedContinuation[T]) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done {
		return false
	}
	s.subscribers = append(s.subscribers, cont)
	return true
}

// dispatch resumes an armed continuation, either inline or via its resume
// executor. A rejected Post still resumes the continuation inline — "the
// continuation always eventually runs" outweighs "runs on the desired
// executor" — but an OnReady-mode callback observes an *ExecutorError in
// place of the true value/error when that fallback occurs.
func dispatch[T any](cont *armedContinuation[T], value T, err error) {
	run := func(viaFallback bool, fallbackErr error) {
		switch cont.kind {
		case kindResolve:
			cont.resolveFn(cont.owner)
		case kindResolveShared:
			cont.resolveSharedFn(cont.sharedOwner)
		default:
			if viaFallback {
				var zero T
				cont.onReadyFn(zero, &ExecutorError{Executor: cont.executor, Err: fallbackErr})
				return
			}
			cont.onReadyFn(value, err)
		}
	}

	if cont.executor == nil {
		run(false, nil)
		return
	}
	postErr := cont.executor.Post(func() { run(false, nil) })
	if postErr != nil {
		run(true, postErr)
	}
}

// arm installs a continuation if the state is not yet done, returning true.
// If the state is already done it returns false and does nothing — the
// caller is expected to dispatch immediately against the published value.
func (s *sharedState[T]) arm(cont *armedContinuation[T]) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done {
		return false
	}
	s.armed = cont
	return true
}

// tryRewindConsumer clears an armed continuation iff the state has not yet
// published, used by when_any to disarm the losing inputs' slots once a
// winner is chosen. It reports whether the rewind succeeded.
func (s *sharedState[T]) tryRewindConsumer() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done {
		return false
	}
	s.armed = nil
	return true
}

// snapshot returns the published value/error pair and whether publication
// has happened.
func (s *sharedState[T]) snapshot() (T, error, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.value, s.err, s.done
}

// wait blocks until the state is done.
func (s *sharedState[T]) wait() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for !s.done {
		s.cond.Wait()
	}
}

// waitFor blocks until the state is done or d elapses, reporting which.
func (s *sharedState[T]) waitFor(d time.Duration) bool {
	return s.waitUntil(time.Now().Add(d))
}

// waitUntil blocks until the state is done or deadline passes.
func (s *sharedState[T]) waitUntil(deadline time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for !s.done {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return s.done
		}
		timer := time.AfterFunc(remaining, func() {
			s.mu.Lock()
			s.cond.Broadcast()
			s.mu.Unlock()
		})
		s.cond.Wait()
		timer.Stop()
	}
	return true
}
