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

// Package result implements the asynchronous value/promise state machine:
// Result/Promise/SharedResult/LazyResult, the Future/Poll/Waker interface
// that *Result implements, and the when_all/when_any composition
// combinators.
package result

import (
	"errors"
	"fmt"

	"github.com/fenwick-labs/concur"
)

// Error values surfaced by this package's operations, naming the semantic
// kinds a caller needs to branch on rather than concrete type identities.
var (
	// ErrEmptyResult is returned by any Result operation other than a nil
	// check performed on a zero-value (empty) *Result.
	ErrEmptyResult = errors.New("concur/result: result handle is empty")

	// ErrEmptyPromise is returned by any Promise operation performed on a
	// zero-value (empty) Promise.
	ErrEmptyPromise = errors.New("concur/result: promise handle is empty")

	// ErrResultAlreadyRetrieved is returned by a second call to Get on a
	// non-shared Result whose value was already retrieved once.
	ErrResultAlreadyRetrieved = errors.New("concur/result: value already retrieved")

	// ErrResultAlreadyObtained is returned by a second call to
	// Promise.GetResult; the associated Result can only be collected once.
	ErrResultAlreadyObtained = errors.New("concur/result: result already obtained from promise")

	// ErrBrokenTask completes a state whose Promise was garbage collected
	// without ever publishing a value.
	ErrBrokenTask = errors.New("concur/result: task was never completed")

	// ErrInvalidArgument marks programming-misuse inputs: an already-set
	// Promise, a nil error passed to SetException, an empty WhenAny input
	// list.
	ErrInvalidArgument = errors.New("concur/result: invalid argument")
)

// ExecutorError pairs an enqueue failure with the executor that rejected
// it. A continuation armed via OnReady observes this in place of the
// state's real value/error when its configured resume executor rejects the
// Post — the source falls back to inline resumption so the continuation
// still runs exactly once, trading "runs on the desired executor" for
// "always eventually runs".
type ExecutorError struct {
	Executor concur.Executor
	Err      error
}

func (e *ExecutorError) Error() string {
	name := "<nil>"
	if e.Executor != nil {
		name = e.Executor.Name()
	}
	return fmt.Sprintf("concur/result: resume executor %q rejected continuation: %v", name, e.Err)
}

func (e *ExecutorError) Unwrap() error { return e.Err }
