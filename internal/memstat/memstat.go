// Package memstat samples local memory pressure for the PID
// replication controller's used_memory input (§4.6), grounded on the
// teacher's core/ledger.go pattern of tracking WAL/snapshot byte
// counts as a proxy for resource usage — here generalized to the
// process's actual heap occupancy via runtime.MemStats.
package memstat

import "runtime"

// Sampler reports the current used-memory figure fed to the PID
// controller once per tick.
type Sampler interface {
	Used() uint64
}

// RuntimeSampler reads runtime.MemStats.HeapAlloc on each call.
type RuntimeSampler struct{}

// Used returns the process's current heap allocation in bytes.
func (RuntimeSampler) Used() uint64 {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	return m.HeapAlloc
}

// Fixed is a test/deterministic-scenario Sampler returning a constant
// value, letting end-to-end scenarios drive the PID controller from
// known inputs rather than live process memory.
type Fixed uint64

// Used returns the fixed value.
func (f Fixed) Used() uint64 { return uint64(f) }
