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

package concur_test

import (
	"errors"
	"testing"

	"github.com/fenwick-labs/concur"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
)

func TestTask(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Task Suite")
}

// cancellableFunctor implements concur.Cancellable explicitly.
type cancellableFunctor struct {
	ran       bool
	cancelled error
}

func (f *cancellableFunctor) Run()             { f.ran = true }
func (f *cancellableFunctor) Cancel(err error) { f.cancelled = err }

// ducktypedFunctor has a Cancel(error) method but doesn't declare it
// implements concur.Cancellable; NewCallableTask must still find it
// structurally.
type ducktypedFunctor struct {
	ran       bool
	cancelled error
}

func (f *ducktypedFunctor) Run()           { f.ran = true }
func (f *ducktypedFunctor) Cancel(e error) { f.cancelled = e }

var _ = Describe("Task", func() {
	It("invokes the wrapped callable exactly once", func() {
		count := 0
		task := concur.NewTask(func() { count++ })

		task.Invoke()
		Expect(count).Should(Equal(1))

		// Re-invoking an empty task is a no-op.
		task.Invoke()
		Expect(count).Should(Equal(1))
	})

	It("is non-empty when constructed and empty after Invoke", func() {
		task := concur.NewTask(func() {})
		Expect(task.Empty()).Should(BeFalse())

		task.Invoke()
		Expect(task.Empty()).Should(BeTrue())
	})

	It("runs the cancel hook of a functor that explicitly implements Cancellable", func() {
		functor := &cancellableFunctor{}
		task := concur.NewCallableTask(functor)

		reason := errors.New("shutdown")
		task.Cancel(reason)

		Expect(functor.ran).Should(BeFalse())
		Expect(functor.cancelled).Should(Equal(reason))
	})

	It("runs the cancel hook of a functor that only structurally has Cancel(error)", func() {
		functor := &ducktypedFunctor{}
		task := concur.NewCallableTask(functor)

		reason := errors.New("shutdown")
		task.Cancel(reason)

		Expect(functor.cancelled).Should(Equal(reason))
	})

	It("is a no-op to cancel a functor with no cancel hook", func() {
		ran := false
		task := concur.NewTask(func() { ran = true })

		Expect(func() { task.Cancel(errors.New("x")) }).ShouldNot(Panic())
		Expect(ran).Should(BeFalse())
		Expect(task.Empty()).Should(BeTrue())
	})

	It("Clear discards the callable without firing cancel", func() {
		functor := &cancellableFunctor{}
		task := concur.NewCallableTask(functor)

		task.Clear()

		Expect(functor.cancelled).Should(BeNil())
		Expect(task.Empty()).Should(BeTrue())

		// Invoking after Clear is a no-op.
		task.Invoke()
		Expect(functor.ran).Should(BeFalse())
	})

	It("NewTaskFunc forwards the function's result and error", func() {
		var gotValue interface{}
		var gotErr error

		task := concur.NewTaskFunc(func() (interface{}, error) {
			return "hello", nil
		}, func(v interface{}, err error) {
			gotValue, gotErr = v, err
		})

		task.Invoke()
		Expect(gotValue).Should(Equal("hello"))
		Expect(gotErr).Should(BeNil())
	})
})
