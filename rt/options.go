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

// Package rt is the runtime facade: it owns a CPU-bound pool, a
// background-bound pool, a thread-per-task executor, and the timer queue,
// and provides the construction points for single-worker and manually
// pumped executors.
package rt

import (
	"errors"
	"runtime"
	"time"

	"go.uber.org/zap"
)

// ErrRuntimeShutdown is returned by NewWorkerThread and NewManual once
// Shutdown has been called.
var ErrRuntimeShutdown = errors.New("concur/rt: runtime is shut down")

// Options configures a Runtime. The zero value is valid; every field has a
// sane default applied by New.
type Options struct {
	// MaxCPUThreads sizes the CPU pool. Defaults to runtime.GOMAXPROCS(-1)
	// (after automaxprocs has had a chance to adjust it for a cgroup quota).
	MaxCPUThreads int

	// MaxCPUIdleTime is how long a CPU pool worker waits for work before
	// retiring. Defaults to 2 minutes.
	MaxCPUIdleTime time.Duration

	// MaxBackgroundThreads sizes the background pool, intended for
	// blocking I/O-bound work. Defaults to 4x MaxCPUThreads.
	MaxBackgroundThreads int

	// MaxBackgroundIdleTime is the background pool's idle worker timeout.
	// Defaults to 2 minutes.
	MaxBackgroundIdleTime time.Duration

	// OnThreadStart, if set, is called with the name of each pool worker and
	// single-worker goroutine this runtime spawns, right after it starts.
	// Thread executor goroutines and the timer goroutine do not call it.
	OnThreadStart func(name string)

	// OnThreadStop, if set, is called with the name of each pool worker and
	// single-worker goroutine this runtime spawns, right before it exits.
	OnThreadStop func(name string)

	// Logger receives lifecycle diagnostics across every owned executor.
	// Defaults to a no-op logger.
	Logger *zap.Logger

	// CancellationMessage is included in the error delivered to tasks
	// cancelled by any owned executor's shutdown.
	CancellationMessage string
}

// withDefaults returns a copy of o with every zero field replaced by its
// default.
func (o Options) withDefaults() Options {
	if o.MaxCPUThreads <= 0 {
		o.MaxCPUThreads = runtime.GOMAXPROCS(-1)
	}
	if o.MaxCPUIdleTime <= 0 {
		o.MaxCPUIdleTime = 2 * time.Minute
	}
	if o.MaxBackgroundThreads <= 0 {
		o.MaxBackgroundThreads = o.MaxCPUThreads * 4
	}
	if o.MaxBackgroundIdleTime <= 0 {
		o.MaxBackgroundIdleTime = 2 * time.Minute
	}
	return o
}

// Validate reports whether o's explicitly set fields are sane: negative
// sizes are rejected, zero values are left to withDefaults.
func (o Options) Validate() error {
	if o.MaxCPUThreads < 0 {
		return errors.New("concur/rt: MaxCPUThreads must not be negative")
	}
	if o.MaxBackgroundThreads < 0 {
		return errors.New("concur/rt: MaxBackgroundThreads must not be negative")
	}
	if o.MaxCPUIdleTime < 0 {
		return errors.New("concur/rt: MaxCPUIdleTime must not be negative")
	}
	if o.MaxBackgroundIdleTime < 0 {
		return errors.New("concur/rt: MaxBackgroundIdleTime must not be negative")
	}
	return nil
}
