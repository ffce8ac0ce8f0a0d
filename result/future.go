package result

// PollResult reports whether a Future's Poll produced a value yet.
type PollResult int

const (
	// PollPending means no value is available yet; the waker passed to
	// Poll will be woken once one is.
	PollPending PollResult = iota
	// PollReady means Poll's (value, error) return is the final one.
	PollReady
)

func (p PollResult) IsReady() bool { return p == PollReady }

// Future is a typed, poll-based asynchronous value, generalizing the
// teacher's concurrent/future.Future (which polled into interface{}) with a
// type parameter. *Result[T] implements Future[T].
type Future[T any] interface {
	Poll(waker Waker) (PollResult, T, error)
}

// Waker is notified that a pending Future may be ready to poll again.
type Waker interface {
	Wake() error
}

// WakerFunc adapts a plain function to Waker.
type WakerFunc func() error

func (f WakerFunc) Wake() error { return f() }

type nopWaker struct{}

func (nopWaker) Wake() error { return nil }

// NopWaker discards wake notifications; useful when a Future is polled
// only after its completion is already known some other way.
var NopWaker Waker = nopWaker{}
