package probe

import (
	"errors"
	"runtime"
	"testing"
)

type fakeReader struct {
	snap Snapshot
	err  error
}

func (f fakeReader) Read() (Snapshot, error) {
	return f.snap, f.err
}

func TestProbe_PassThrough(t *testing.T) {
	want := Snapshot{
		TotalMemory:     4 * 1024 * 1024 * 1024,
		AvailableMemory: 2 * 1024 * 1024 * 1024,
		CPUCores:        4,
	}

	got := Probe(fakeReader{snap: want})

	if got.Degraded {
		t.Error("Degraded = true, want false for a healthy reader")
	}
	if got.TotalMemory != want.TotalMemory {
		t.Errorf("TotalMemory = %d, want %d", got.TotalMemory, want.TotalMemory)
	}
	if got.AvailableMemory != want.AvailableMemory {
		t.Errorf("AvailableMemory = %d, want %d", got.AvailableMemory, want.AvailableMemory)
	}
	if got.CPUCores != want.CPUCores {
		t.Errorf("CPUCores = %d, want %d", got.CPUCores, want.CPUCores)
	}
}

func TestProbe_ReaderError(t *testing.T) {
	got := Probe(fakeReader{err: errors.New("sysinfo unavailable")})

	if !got.Degraded {
		t.Error("Degraded = false, want true after reader error")
	}
	if got.CPUCores != 1 {
		t.Errorf("CPUCores = %d, want 1 (conservative fallback)", got.CPUCores)
	}
	if got.AvailableMemory != fallbackMemory {
		t.Errorf("AvailableMemory = %d, want %d", got.AvailableMemory, int64(fallbackMemory))
	}
}

func TestProbe_ImplausibleValues(t *testing.T) {
	tests := []struct {
		name string
		snap Snapshot
	}{
		{"zero cores", Snapshot{TotalMemory: 1 << 30, AvailableMemory: 1 << 29, CPUCores: 0}},
		{"zero total", Snapshot{TotalMemory: 0, AvailableMemory: 1 << 29, CPUCores: 2}},
		{"negative available", Snapshot{TotalMemory: 1 << 30, AvailableMemory: -1, CPUCores: 2}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Probe(fakeReader{snap: tt.snap})
			if !got.Degraded {
				t.Error("Degraded = false, want true for implausible figures")
			}
			if got != Fallback() {
				t.Errorf("got %+v, want fallback %+v", got, Fallback())
			}
		})
	}
}

func TestProbe_ClampsAvailableToTotal(t *testing.T) {
	got := Probe(fakeReader{snap: Snapshot{
		TotalMemory:     1 << 30,
		AvailableMemory: 2 << 30,
		CPUCores:        2,
	}})

	if got.AvailableMemory != got.TotalMemory {
		t.Errorf("AvailableMemory = %d, want clamped to TotalMemory %d",
			got.AvailableMemory, got.TotalMemory)
	}
	if got.Degraded {
		t.Error("Degraded = true, want false; clamping is not a failure")
	}
}

func TestSnapshot_MegabyteConversion(t *testing.T) {
	s := Snapshot{
		TotalMemory:     2 * 1024 * 1024 * 1024,
		AvailableMemory: 767*1024*1024 + 512*1024, // just under 768MB
	}

	if got := s.TotalMB(); got != 2048 {
		t.Errorf("TotalMB() = %d, want 2048", got)
	}
	// Partial megabytes round down, so boundary values land in the lower tier.
	if got := s.AvailableMB(); got != 767 {
		t.Errorf("AvailableMB() = %d, want 767", got)
	}
}

func TestSystem_Read(t *testing.T) {
	got := Probe(System())

	if got.CPUCores <= 0 {
		t.Errorf("CPUCores = %d, want > 0", got.CPUCores)
	}
	if got.CPUCores > runtime.NumCPU() {
		t.Errorf("CPUCores = %d, want <= %d (runtime.NumCPU())", got.CPUCores, runtime.NumCPU())
	}
	if got.AvailableMemory <= 0 {
		t.Errorf("AvailableMemory = %d, want > 0", got.AvailableMemory)
	}
	if got.AvailableMemory > got.TotalMemory {
		t.Errorf("AvailableMemory (%d) > TotalMemory (%d)", got.AvailableMemory, got.TotalMemory)
	}
}
