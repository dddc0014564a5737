//go:build !linux && !darwin

package probe

import (
	"runtime"
)

// defaultTotalMemory is the fallback total memory when no platform-specific
// detection exists. 8GB is a reasonable default for modern systems.
const defaultTotalMemory = 8 * 1024 * 1024 * 1024

type systemReader struct{}

// Read returns the CPU count from the runtime and static memory defaults on
// platforms without specific detection.
func (systemReader) Read() (Snapshot, error) {
	return Snapshot{
		TotalMemory:     defaultTotalMemory,
		AvailableMemory: defaultTotalMemory / 2,
		CPUCores:        runtime.NumCPU(),
	}, nil
}
