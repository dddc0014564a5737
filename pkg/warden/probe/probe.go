// Package probe provides host and container resource detection for warden.
// It reads available memory and logical CPU count, substituting conservative
// defaults when the underlying source is unreadable or implausible, so callers
// never have to handle a measurement failure.
package probe

import (
	"github.com/jamesainslie/warden/pkg/warden/logging"
)

var logger = logging.Get("probe")

// Snapshot contains detected system resources at a single point in time.
// Snapshots carry no identity and are produced fresh on each probe.
type Snapshot struct {
	// TotalMemory is the total physical (or cgroup-limited) memory in bytes.
	TotalMemory int64

	// AvailableMemory is the memory available for new work in bytes.
	// This may be an estimate based on system heuristics.
	AvailableMemory int64

	// CPUCores is the number of logical CPU cores available.
	CPUCores int

	// Degraded is true when detection failed and the conservative
	// fallback values were substituted.
	Degraded bool
}

// AvailableMB returns available memory in whole megabytes, rounding down.
// Tier comparisons use this so boundary values resolve conservatively.
func (s Snapshot) AvailableMB() int64 {
	return s.AvailableMemory / (1 << 20)
}

// TotalMB returns total memory in whole megabytes, rounding down.
func (s Snapshot) TotalMB() int64 {
	return s.TotalMemory / (1 << 20)
}

// Reader reads raw resource figures from some source. Implementations exist
// per platform; tests substitute synthetic readers.
type Reader interface {
	Read() (Snapshot, error)
}

// Fallback values used when detection fails: a single core and minimal-tier
// memory. Deliberately pessimistic so a derived configuration is always safe.
const (
	fallbackCores  = 1
	fallbackMemory = 512 * 1024 * 1024
)

// Fallback returns the conservative snapshot substituted on probe failure.
func Fallback() Snapshot {
	return Snapshot{
		TotalMemory:     fallbackMemory,
		AvailableMemory: fallbackMemory,
		CPUCores:        fallbackCores,
		Degraded:        true,
	}
}

// Probe reads a snapshot from the given reader. It never fails: read errors
// and implausible values (zero or negative figures) are logged and replaced
// by the conservative fallback, marked Degraded.
func Probe(r Reader) Snapshot {
	snap, err := r.Read()
	if err != nil {
		logger.Warn("resource detection failed, using fallback",
			"error", err, "fallback_mb", Fallback().TotalMB())
		return Fallback()
	}

	if snap.CPUCores <= 0 || snap.TotalMemory <= 0 || snap.AvailableMemory <= 0 {
		logger.Warn("implausible resource figures, using fallback",
			"cores", snap.CPUCores,
			"total", snap.TotalMemory,
			"available", snap.AvailableMemory)
		return Fallback()
	}

	if snap.AvailableMemory > snap.TotalMemory {
		snap.AvailableMemory = snap.TotalMemory
	}

	snap.Degraded = false
	return snap
}

// System returns the platform reader for the current OS.
func System() Reader {
	return systemReader{}
}
