package rt

import (
	jsoniter "github.com/json-iterator/go"
)

var diagnosticsJSON = jsoniter.ConfigCompatibleWithStandardLibrary

// Snapshot is a point-in-time diagnostic view of a Runtime's owned
// executors, intended for a health/debug endpoint rather than hot-path use.
type Snapshot struct {
	CPUPoolSize        int `json:"cpu_pool_size"`
	BackgroundPoolSize int `json:"background_pool_size"`
	WorkerThreadCount  int `json:"worker_thread_count"`
	ManualCount        int `json:"manual_count"`
}

// Diagnostics captures a Snapshot of this runtime's current shape.
func (rt *Runtime) Diagnostics() Snapshot {
	rt.mu.Lock()
	workers := len(rt.workerThreads)
	manuals := len(rt.manualExecutors)
	rt.mu.Unlock()

	return Snapshot{
		CPUPoolSize:        rt.cpuPool.MaxConcurrencyLevel(),
		BackgroundPoolSize: rt.backgroundPool.MaxConcurrencyLevel(),
		WorkerThreadCount:  workers,
		ManualCount:        manuals,
	}
}

// MarshalJSON serializes s with jsoniter's standard-library-compatible
// configuration rather than encoding/json directly.
func (s Snapshot) MarshalJSON() ([]byte, error) {
	type alias Snapshot
	return diagnosticsJSON.Marshal(alias(s))
}
