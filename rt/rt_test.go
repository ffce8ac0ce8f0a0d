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

package rt_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/fenwick-labs/concur/rt"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
)

func TestRuntime(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Runtime Suite")
}

var _ = Describe("Options", func() {
	It("rejects negative sizes", func() {
		opts := rt.Options{MaxCPUThreads: -1}
		Expect(opts.Validate()).Should(HaveOccurred())
	})
})

var _ = Describe("Runtime", func() {
	It("runs work on the CPU pool and the background pool", func() {
		runtime, err := rt.New(rt.Options{MaxCPUThreads: 2, MaxBackgroundThreads: 2})
		Expect(err).ShouldNot(HaveOccurred())
		defer runtime.Shutdown(context.Background())

		done := make(chan struct{}, 2)
		Expect(runtime.CPUPool().Post(func() { done <- struct{}{} })).ShouldNot(HaveOccurred())
		Expect(runtime.BackgroundPool().Post(func() { done <- struct{}{} })).ShouldNot(HaveOccurred())

		Eventually(done, time.Second).Should(Receive())
		Eventually(done, time.Second).Should(Receive())
	})

	It("tracks worker threads and manual executors it constructs, and shuts them down", func() {
		runtime, err := rt.New(rt.Options{MaxCPUThreads: 1, MaxBackgroundThreads: 1})
		Expect(err).ShouldNot(HaveOccurred())

		w, err := runtime.NewWorkerThread()
		Expect(err).ShouldNot(HaveOccurred())
		m, err := runtime.NewManual()
		Expect(err).ShouldNot(HaveOccurred())

		snap := runtime.Diagnostics()
		Expect(snap.WorkerThreadCount).Should(Equal(1))
		Expect(snap.ManualCount).Should(Equal(1))

		Expect(runtime.Shutdown(context.Background())).ShouldNot(HaveOccurred())
		Expect(w.ShutdownRequested()).Should(BeTrue())
		Expect(m.ShutdownRequested()).Should(BeTrue())
	})

	It("rejects constructing new executors after Shutdown", func() {
		runtime, err := rt.New(rt.Options{})
		Expect(err).ShouldNot(HaveOccurred())
		Expect(runtime.Shutdown(context.Background())).ShouldNot(HaveOccurred())

		_, err = runtime.NewWorkerThread()
		Expect(err).Should(Equal(rt.ErrRuntimeShutdown))
		_, err = runtime.NewManual()
		Expect(err).Should(Equal(rt.ErrRuntimeShutdown))
	})

	It("reports a timed-out shutdown via an aggregated error", func() {
		runtime, err := rt.New(rt.Options{MaxCPUThreads: 1})
		Expect(err).ShouldNot(HaveOccurred())

		block := make(chan struct{})
		Expect(runtime.CPUPool().Post(func() { <-block })).ShouldNot(HaveOccurred())

		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		defer cancel()
		err = runtime.Shutdown(ctx)
		Expect(err).Should(HaveOccurred())
		close(block)
	})
})

var _ = Describe("LoadOptions", func() {
	It("loads TOML and applies CONCUR_* environment overrides", func() {
		dir, err := os.MkdirTemp("", "concur-rt-config")
		Expect(err).ShouldNot(HaveOccurred())
		defer os.RemoveAll(dir)
		path := filepath.Join(dir, "concur.toml")
		Expect(os.WriteFile(path, []byte(`
max_cpu_threads = 3
max_cpu_idle_time = "30s"
max_background_threads = 6
max_background_idle_time = "1m"
cancellation_message = "draining"
`), 0o600)).Should(Succeed())

		os.Setenv("CONCUR_MAX_CPU_THREADS", "9")
		defer os.Unsetenv("CONCUR_MAX_CPU_THREADS")

		opts, err := rt.LoadOptions(path)
		Expect(err).ShouldNot(HaveOccurred())
		Expect(opts.MaxCPUThreads).Should(Equal(9))
		Expect(opts.MaxCPUIdleTime).Should(Equal(30 * time.Second))
		Expect(opts.MaxBackgroundThreads).Should(Equal(6))
		Expect(opts.CancellationMessage).Should(Equal("draining"))
	})
})
