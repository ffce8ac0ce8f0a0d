package rt

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/hashicorp/go-multierror"
	"go.uber.org/automaxprocs/maxprocs"
	"go.uber.org/zap"

	"github.com/fenwick-labs/concur/asynclock"
	"github.com/fenwick-labs/concur/manual"
	"github.com/fenwick-labs/concur/pool"
	"github.com/fenwick-labs/concur/singleworker"
	"github.com/fenwick-labs/concur/threadexec"
	"github.com/fenwick-labs/concur/timer"
)

// Runtime is the facade a program builds once and shares across its
// lifetime: a CPU-bound pool, a background (blocking-I/O-bound) pool, a
// thread-per-task executor, and a timer queue, plus constructors for
// single-worker and manually pumped executors.
type Runtime struct {
	options Options

	cpuPool        *pool.Pool
	backgroundPool *pool.Pool
	threadExecutor *threadexec.ThreadExecutor
	timers         *timer.Queue

	manualCount atomic.Int64
	workerCount atomic.Int64

	mu               sync.Mutex
	workerThreads    []*singleworker.SingleWorkerThread
	manualExecutors  []*manual.ManualExecutor
	shutdownOnce     sync.Once
	shutdownComplete atomic.Bool
}

// New builds a Runtime. It calls automaxprocs.Set before resolving
// Options.MaxCPUThreads's default, so a cgroup CPU quota is honored
// without the caller needing to know about it.
func New(options Options) (*Runtime, error) {
	if err := options.Validate(); err != nil {
		return nil, err
	}
	logger := options.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	if _, err := maxprocs.Set(maxprocs.Logger(func(format string, args ...interface{}) {
		logger.Debug(fmt.Sprintf(format, args...))
	})); err != nil {
		logger.Warn("concur/rt: automaxprocs adjustment failed", zap.Error(err))
	}

	options = options.withDefaults()

	onStart, onStop := options.OnThreadStart, options.OnThreadStop

	cpuPool, err := pool.New("cpu-pool", pool.Config{
		Size:                options.MaxCPUThreads,
		MaxIdleTime:         options.MaxCPUIdleTime,
		CancellationMessage: options.CancellationMessage,
		Logger:              logger,
		OnThreadStart:       onStart,
		OnThreadStop:        onStop,
	})
	if err != nil {
		return nil, fmt.Errorf("concur/rt: building CPU pool: %w", err)
	}

	backgroundPool, err := pool.New("background-pool", pool.Config{
		Size:                options.MaxBackgroundThreads,
		MaxIdleTime:         options.MaxBackgroundIdleTime,
		CancellationMessage: options.CancellationMessage,
		Logger:              logger,
		OnThreadStart:       onStart,
		OnThreadStop:        onStop,
	})
	if err != nil {
		return nil, fmt.Errorf("concur/rt: building background pool: %w", err)
	}

	threadExecutor := threadexec.New("thread-executor", threadexec.Config{
		CancellationMessage: options.CancellationMessage,
		Logger:              logger,
	})

	timers := timer.New(timer.Config{
		CancellationMessage: options.CancellationMessage,
		Logger:              logger,
	})

	return &Runtime{
		options:        options,
		cpuPool:        cpuPool,
		backgroundPool: backgroundPool,
		threadExecutor: threadExecutor,
		timers:         timers,
	}, nil
}

// CPUPool returns the runtime's CPU-bound work-stealing pool.
func (rt *Runtime) CPUPool() *pool.Pool { return rt.cpuPool }

// BackgroundPool returns the runtime's background (blocking-I/O-bound)
// work-stealing pool.
func (rt *Runtime) BackgroundPool() *pool.Pool { return rt.backgroundPool }

// ThreadExecutor returns the runtime's thread-per-task executor.
func (rt *Runtime) ThreadExecutor() *threadexec.ThreadExecutor { return rt.threadExecutor }

// Timers returns the runtime's timer queue.
func (rt *Runtime) Timers() *timer.Queue { return rt.timers }

// NewWorkerThread creates and registers a dedicated single-worker FIFO
// executor, tracked so Runtime.Shutdown also shuts it down.
func (rt *Runtime) NewWorkerThread() (*singleworker.SingleWorkerThread, error) {
	if rt.shutdownComplete.Load() {
		return nil, ErrRuntimeShutdown
	}
	name := fmt.Sprintf("worker-thread-%d", rt.workerCount.Add(1))
	w := singleworker.New(name, singleworker.Config{
		CancellationMessage: rt.options.CancellationMessage,
		Logger:              rt.loggerOrNop(),
		OnThreadStart:       rt.options.OnThreadStart,
		OnThreadStop:        rt.options.OnThreadStop,
	})
	rt.mu.Lock()
	rt.workerThreads = append(rt.workerThreads, w)
	rt.mu.Unlock()
	return w, nil
}

// NewManual creates and registers a manually pumped executor, tracked so
// Runtime.Shutdown also shuts it down.
func (rt *Runtime) NewManual() (*manual.ManualExecutor, error) {
	if rt.shutdownComplete.Load() {
		return nil, ErrRuntimeShutdown
	}
	name := fmt.Sprintf("manual-%d", rt.manualCount.Add(1))
	m := manual.New(name, manual.Config{
		CancellationMessage: rt.options.CancellationMessage,
		Logger:              rt.loggerOrNop(),
	})
	rt.mu.Lock()
	rt.manualExecutors = append(rt.manualExecutors, m)
	rt.mu.Unlock()
	return m, nil
}

// NewAsyncLock creates an AsyncLock. It carries no executor goroutines of
// its own, so Runtime does not need to track it for Shutdown.
func (rt *Runtime) NewAsyncLock() *asynclock.AsyncLock { return asynclock.New() }

// NewConditionVariable creates an asynclock.ConditionVariable.
func (rt *Runtime) NewConditionVariable() *asynclock.ConditionVariable {
	return asynclock.NewConditionVariable()
}

func (rt *Runtime) loggerOrNop() *zap.Logger {
	if rt.options.Logger == nil {
		return zap.NewNop()
	}
	return rt.options.Logger
}

// Shutdown shuts down every owned executor and the timer queue
// concurrently, each in its own goroutine so one slow drain doesn't delay
// the others. Every executor whose Shutdown has not returned by the time
// ctx is done contributes a "did not shut down in time" error to the
// aggregate, combined via go-multierror; Shutdown itself still returns
// once ctx is done even if some executors are still draining in the
// background.
func (rt *Runtime) Shutdown(ctx context.Context) error {
	var result error
	rt.shutdownOnce.Do(func() {
		rt.shutdownComplete.Store(true)

		type target struct {
			name     string
			shutdown func()
		}
		targets := []target{
			{"cpu-pool", rt.cpuPool.Shutdown},
			{"background-pool", rt.backgroundPool.Shutdown},
			{"thread-executor", rt.threadExecutor.Shutdown},
			{"timer-queue", rt.timers.Shutdown},
		}
		rt.mu.Lock()
		for _, w := range rt.workerThreads {
			w := w
			targets = append(targets, target{w.Name(), w.Shutdown})
		}
		for _, m := range rt.manualExecutors {
			m := m
			targets = append(targets, target{m.Name(), m.Shutdown})
		}
		rt.mu.Unlock()

		done := make(chan string, len(targets))
		for _, t := range targets {
			t := t
			go func() {
				t.shutdown()
				done <- t.name
			}()
		}

		finished := make(map[string]bool, len(targets))
		for len(finished) < len(targets) {
			select {
			case name := <-done:
				finished[name] = true
			case <-ctx.Done():
				var merr *multierror.Error
				for _, t := range targets {
					if !finished[t.name] {
						merr = multierror.Append(merr, fmt.Errorf("concur/rt: %s did not shut down before %w", t.name, ctx.Err()))
					}
				}
				result = merr.ErrorOrNil()
				return
			}
		}
	})
	return result
}
