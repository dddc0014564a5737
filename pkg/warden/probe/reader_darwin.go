//go:build darwin

package probe

import (
	"fmt"
	"runtime"

	"golang.org/x/sys/unix"
)

type systemReader struct{}

// Read detects resources on darwin using sysctl for total memory. Precise
// available memory on macOS requires parsing vm_stat or host_statistics, so a
// conservative 50% heuristic is used instead; for configuration derivation
// this underestimates, which errs on the safe side.
func (systemReader) Read() (Snapshot, error) {
	memsize, err := unix.SysctlUint64("hw.memsize")
	if err != nil {
		return Snapshot{}, fmt.Errorf("sysctl hw.memsize: %w", err)
	}

	total := int64(memsize)
	return Snapshot{
		TotalMemory:     total,
		AvailableMemory: total / 2,
		CPUCores:        runtime.NumCPU(),
	}, nil
}
