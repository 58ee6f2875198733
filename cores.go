package chunkdispatch

import (
	"runtime"

	"github.com/klauspost/cpuid/v2"
)

// PhysicalCores returns the number of physical CPU cores. When the CPU
// does not report its topology the logical CPU count is used instead.
func PhysicalCores() int {
	if n := cpuid.CPU.PhysicalCores; n > 0 {
		return n
	}
	return runtime.NumCPU()
}
