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

package threadexec_test

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/fenwick-labs/concur/threadexec"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
	"go.uber.org/goleak"
)

func TestThreadExecutor(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "ThreadExecutor Suite")
}

var _ = Describe("ThreadExecutor", func() {
	It("reports no fixed concurrency bound", func() {
		e := threadexec.New("unbounded", threadexec.Config{})
		defer e.Shutdown()
		Expect(e.MaxConcurrencyLevel()).Should(Equal(0))
	})

	It("runs every submitted task exactly once, each on its own goroutine", func() {
		e := threadexec.New("fanout", threadexec.Config{})

		const n = 200
		var count int64
		var wg sync.WaitGroup
		wg.Add(n)

		for i := 0; i < n; i++ {
			Expect(e.Post(func() {
				atomic.AddInt64(&count, 1)
				wg.Done()
			})).ShouldNot(HaveOccurred())
		}

		done := make(chan struct{})
		go func() {
			wg.Wait()
			close(done)
		}()
		Eventually(done, 5*time.Second).Should(BeClosed())
		Expect(atomic.LoadInt64(&count)).Should(Equal(int64(n)))

		e.Shutdown()
	})

	It("Shutdown waits for all outstanding tasks to finish", func() {
		e := threadexec.New("wait", threadexec.Config{})

		var finished int64
		block := make(chan struct{})
		Expect(e.Post(func() {
			<-block
			atomic.AddInt64(&finished, 1)
		})).ShouldNot(HaveOccurred())

		shutdownReturned := make(chan struct{})
		go func() {
			e.Shutdown()
			close(shutdownReturned)
		}()

		Consistently(shutdownReturned, 100*time.Millisecond).ShouldNot(BeClosed())
		close(block)
		Eventually(shutdownReturned, time.Second).Should(BeClosed())
		Expect(atomic.LoadInt64(&finished)).Should(Equal(int64(1)))
	})

	It("rejects submissions and cancels them after shutdown", func() {
		e := threadexec.New("rejects", threadexec.Config{CancellationMessage: "closed"})
		e.Shutdown()

		err := e.Post(func() {})
		Expect(err).Should(HaveOccurred())
		Expect(e.ShutdownRequested()).Should(BeTrue())

		Expect(func() { e.Shutdown() }).ShouldNot(Panic())
	})

	It("does not leak goroutines past Shutdown", func() {
		defer goleak.VerifyNone(GinkgoT())

		e := threadexec.New("leak-check", threadexec.Config{})
		var wg sync.WaitGroup
		wg.Add(20)
		for i := 0; i < 20; i++ {
			Expect(e.Post(func() { wg.Done() })).ShouldNot(HaveOccurred())
		}
		wg.Wait()
		e.Shutdown()
	})
})
