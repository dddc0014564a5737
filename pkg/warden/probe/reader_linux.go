//go:build linux

package probe

import (
	"fmt"
	"os"
	"runtime"
	"strconv"
	"strings"

	"golang.org/x/sys/unix"
)

// cgroup v2 unified hierarchy memory files. When warden runs inside a
// container, the limit there is the real ceiling, not the host's RAM.
const (
	cgroupMemoryMax     = "/sys/fs/cgroup/memory.max"
	cgroupMemoryCurrent = "/sys/fs/cgroup/memory.current"
)

type systemReader struct{}

// Read detects resources on linux using sysinfo(2), then tightens the figures
// to the cgroup v2 memory limit when one is in effect.
func (systemReader) Read() (Snapshot, error) {
	var si unix.Sysinfo_t
	if err := unix.Sysinfo(&si); err != nil {
		return Snapshot{}, fmt.Errorf("sysinfo: %w", err)
	}

	unit := int64(si.Unit)
	snap := Snapshot{
		TotalMemory:     int64(si.Totalram) * unit,
		AvailableMemory: (int64(si.Freeram) + int64(si.Bufferram)) * unit,
		CPUCores:        runtime.NumCPU(),
	}

	if limit, current, ok := readCgroupMemory(); ok && limit < snap.TotalMemory {
		snap.TotalMemory = limit
		avail := limit - current
		if avail < 0 {
			avail = 0
		}
		if avail < snap.AvailableMemory {
			snap.AvailableMemory = avail
		}
	}

	return snap, nil
}

// readCgroupMemory returns the cgroup v2 memory limit and current usage.
// ok is false when no limit applies ("max") or the files are unreadable.
func readCgroupMemory() (limit, current int64, ok bool) {
	limit, err := readCgroupValue(cgroupMemoryMax)
	if err != nil {
		return 0, 0, false
	}

	current, err = readCgroupValue(cgroupMemoryCurrent)
	if err != nil {
		current = 0
	}

	return limit, current, true
}

func readCgroupValue(path string) (int64, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}

	s := strings.TrimSpace(string(data))
	if s == "max" {
		return 0, fmt.Errorf("no limit set")
	}

	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parsing %s: %w", path, err)
	}
	return v, nil
}
