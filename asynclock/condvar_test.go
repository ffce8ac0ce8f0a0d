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

package asynclock_test

import (
	"sync/atomic"
	"time"

	"github.com/fenwick-labs/concur/asynclock"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
)

var _ = Describe("ConditionVariable", func() {
	It("Await suspends until NotifyOne, re-acquiring the lock before resuming", func() {
		l := asynclock.New()
		cv := asynclock.NewConditionVariable()

		g, err := l.Lock(nil).Run().Get()
		Expect(err).ShouldNot(HaveOccurred())

		awaited := make(chan struct{})
		go func() {
			_, err := cv.Await(nil, g).Get()
			Expect(err).ShouldNot(HaveOccurred())
			Expect(g.OwnsLock()).Should(BeTrue())
			close(awaited)
		}()

		// Await unlocks g internally; once it has, the lock should be free.
		Eventually(func() bool {
			ok, _ := l.TryLock().Run().Get()
			if ok {
				l.Unlock()
			}
			return ok
		}, time.Second).Should(BeTrue())

		Consistently(awaited, 30*time.Millisecond).ShouldNot(BeClosed())
		cv.NotifyOne()
		Eventually(awaited, time.Second).Should(BeClosed())
		Expect(g.Unlock()).ShouldNot(HaveOccurred())
	})

	It("NotifyAll wakes every waiter", func() {
		l := asynclock.New()
		cv := asynclock.NewConditionVariable()

		const n = 4
		done := make(chan int, n)
		for i := 0; i < n; i++ {
			i := i
			g, err := l.Lock(nil).Run().Get()
			Expect(err).ShouldNot(HaveOccurred())
			go func() {
				_, _ = cv.Await(nil, g).Get()
				done <- i
				_ = g.Unlock()
			}()
			// drain this goroutine's unlock-of-g (from inside Await) before
			// the next iteration's Lock, since AsyncLock is not reentrant.
			Eventually(func() bool {
				ok, _ := l.TryLock().Run().Get()
				if ok {
					l.Unlock()
				}
				return ok
			}, time.Second).Should(BeTrue())
		}

		cv.NotifyAll()
		for i := 0; i < n; i++ {
			Eventually(done, time.Second).Should(Receive())
		}
	})

	It("AwaitWhile loops until the predicate holds", func() {
		l := asynclock.New()
		cv := asynclock.NewConditionVariable()
		var ready atomic.Bool

		g, err := l.Lock(nil).Run().Get()
		Expect(err).ShouldNot(HaveOccurred())

		done := make(chan struct{})
		go func() {
			_, err := cv.AwaitWhile(nil, g, ready.Load).Get()
			Expect(err).ShouldNot(HaveOccurred())
			close(done)
		}()

		Eventually(func() bool {
			ok, _ := l.TryLock().Run().Get()
			if ok {
				l.Unlock()
			}
			return ok
		}, time.Second).Should(BeTrue())

		cv.NotifyOne()
		Consistently(done, 30*time.Millisecond).ShouldNot(BeClosed())

		Eventually(func() bool {
			ok, _ := l.TryLock().Run().Get()
			if ok {
				l.Unlock()
			}
			return ok
		}, time.Second).Should(BeTrue())
		ready.Store(true)
		cv.NotifyOne()

		Eventually(done, time.Second).Should(BeClosed())
		Expect(g.Unlock()).ShouldNot(HaveOccurred())
	})
})
