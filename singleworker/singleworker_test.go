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

package singleworker_test

import (
	"testing"
	"time"

	"github.com/fenwick-labs/concur"
	"github.com/fenwick-labs/concur/singleworker"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
	"go.uber.org/goleak"
)

func TestSingleWorkerThread(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "SingleWorkerThread Suite")
}

var _ = Describe("SingleWorkerThread", func() {
	It("reports a concurrency level of exactly one", func() {
		w := singleworker.New("worker", singleworker.Config{})
		defer w.Shutdown()
		Expect(w.MaxConcurrencyLevel()).Should(Equal(1))
	})

	It("runs tasks in FIFO submission order", func() {
		w := singleworker.New("fifo", singleworker.Config{})
		defer w.Shutdown()

		var order []int
		var lock = make(chan struct{}, 1)
		lock <- struct{}{}

		const n = 50
		done := make(chan struct{})
		for i := 0; i < n; i++ {
			i := i
			Expect(w.Post(func() {
				<-lock
				order = append(order, i)
				lock <- struct{}{}
				if i == n-1 {
					close(done)
				}
			})).ShouldNot(HaveOccurred())
		}

		Eventually(done, 2*time.Second).Should(BeClosed())
		Expect(order).Should(HaveLen(n))
		for i, v := range order {
			Expect(v).Should(Equal(i))
		}
	})

	It("rejects new work and cancels queued work after Shutdown", func() {
		w := singleworker.New("shutdown", singleworker.Config{CancellationMessage: "bye"})

		block := make(chan struct{})
		Expect(w.Post(func() { <-block })).ShouldNot(HaveOccurred())

		cancelled := &recorder{done: make(chan struct{})}
		Expect(w.Enqueue(concur.NewCallableTask(cancelled))).ShouldNot(HaveOccurred())

		close(block)
		w.Shutdown()

		Eventually(cancelled.done, time.Second).Should(BeClosed())
		Expect(cancelled.reason).Should(HaveOccurred())

		Expect(func() { w.Shutdown() }).ShouldNot(Panic())

		err := w.Post(func() {})
		Expect(err).Should(HaveOccurred())
		Expect(w.ShutdownRequested()).Should(BeTrue())
	})

	It("does not leak its goroutine past Shutdown", func() {
		defer goleak.VerifyNone(GinkgoT())

		w := singleworker.New("leak-check", singleworker.Config{})
		done := make(chan struct{})
		Expect(w.Post(func() { close(done) })).ShouldNot(HaveOccurred())
		Eventually(done, time.Second).Should(BeClosed())
		w.Shutdown()
	})
})

// recorder is a Callable whose Cancel(error) records the reason instead of
// running, closing done so tests can await it.
type recorder struct {
	done   chan struct{}
	reason error
}

func (r *recorder) Run() {}

func (r *recorder) Cancel(reason error) {
	r.reason = reason
	close(r.done)
}
