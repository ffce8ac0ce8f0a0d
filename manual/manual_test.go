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

package manual_test

import (
	"testing"
	"time"

	"github.com/fenwick-labs/concur/manual"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
)

func TestManualExecutor(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "ManualExecutor Suite")
}

var _ = Describe("ManualExecutor", func() {
	It("reports empty/size correctly and runs LoopOnce in FIFO order", func() {
		m := manual.New("pump", manual.Config{})
		Expect(m.Empty()).Should(BeTrue())

		var order []int
		for i := 0; i < 3; i++ {
			i := i
			Expect(m.Post(func() { order = append(order, i) })).ShouldNot(HaveOccurred())
		}
		Expect(m.Size()).Should(Equal(3))
		Expect(m.Empty()).Should(BeFalse())

		Expect(m.LoopOnce()).Should(BeTrue())
		Expect(m.LoopOnce()).Should(BeTrue())
		Expect(m.LoopOnce()).Should(BeTrue())
		Expect(m.LoopOnce()).Should(BeFalse())

		Expect(order).Should(Equal([]int{0, 1, 2}))
	})

	It("Loop runs up to n tasks and stops early when the queue empties", func() {
		m := manual.New("loop", manual.Config{})
		ran := 0
		for i := 0; i < 2; i++ {
			Expect(m.Post(func() { ran++ })).ShouldNot(HaveOccurred())
		}

		Expect(m.Loop(5)).Should(Equal(2))
		Expect(ran).Should(Equal(2))
		Expect(m.Loop(5)).Should(Equal(0))
	})

	It("WaitForTask unblocks as soon as a task is enqueued from elsewhere", func() {
		m := manual.New("wait", manual.Config{})

		waited := make(chan struct{})
		go func() {
			m.WaitForTask()
			close(waited)
		}()

		Consistently(waited, 50*time.Millisecond).ShouldNot(BeClosed())
		Expect(m.Post(func() {})).ShouldNot(HaveOccurred())
		Eventually(waited, time.Second).Should(BeClosed())
	})

	It("WaitForTaskFor reports false on timeout with nothing queued", func() {
		m := manual.New("wait-timeout", manual.Config{})
		ok := m.WaitForTaskFor(20 * time.Millisecond)
		Expect(ok).Should(BeFalse())
	})

	It("WaitForTasks unblocks once n tasks accumulate", func() {
		m := manual.New("wait-n", manual.Config{})

		waited := make(chan struct{})
		go func() {
			m.WaitForTasks(3)
			close(waited)
		}()

		Expect(m.Post(func() {})).ShouldNot(HaveOccurred())
		Expect(m.Post(func() {})).ShouldNot(HaveOccurred())
		Consistently(waited, 50*time.Millisecond).ShouldNot(BeClosed())

		Expect(m.Post(func() {})).ShouldNot(HaveOccurred())
		Eventually(waited, time.Second).Should(BeClosed())
	})

	It("WaitForTasksFor returns the count actually queued at the deadline", func() {
		m := manual.New("wait-n-timeout", manual.Config{})
		Expect(m.Post(func() {})).ShouldNot(HaveOccurred())

		n := m.WaitForTasksFor(5, 20*time.Millisecond)
		Expect(n).Should(Equal(1))
	})

	It("Clear cancels and discards every queued task", func() {
		m := manual.New("clear", manual.Config{})
		for i := 0; i < 4; i++ {
			Expect(m.Post(func() {})).ShouldNot(HaveOccurred())
		}
		Expect(m.Clear()).Should(Equal(4))
		Expect(m.Empty()).Should(BeTrue())
	})

	It("Shutdown rejects new submissions and cancels what's queued", func() {
		m := manual.New("shutdown", manual.Config{CancellationMessage: "bye"})
		Expect(m.Post(func() {})).ShouldNot(HaveOccurred())

		m.Shutdown()
		Expect(m.Empty()).Should(BeTrue())
		Expect(m.ShutdownRequested()).Should(BeTrue())

		err := m.Post(func() {})
		Expect(err).Should(HaveOccurred())

		Expect(func() { m.Shutdown() }).ShouldNot(Panic())
	})
})
