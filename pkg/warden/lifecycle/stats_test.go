package lifecycle

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRollingStats_CountsWithinWindow(t *testing.T) {
	s := NewRollingStats(60*time.Second, 3)

	s.Record(KindSpawned)
	s.Record(KindReady)
	s.Record(KindExitedClean)
	s.Record(KindExitedClean)

	snap := s.Snapshot()
	assert.Equal(t, 1, snap.Count(KindSpawned))
	assert.Equal(t, 2, snap.Count(KindExitedClean))
	assert.Equal(t, 4, snap.Total)
	assert.False(t, snap.Alert)
}

func TestRollingStats_WindowExpiry(t *testing.T) {
	now := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	s := NewRollingStats(60*time.Second, 3)
	s.now = func() time.Time { return now }

	s.Record(KindTimedOut)
	s.Record(KindTimedOut)

	// Slide past the window; old events expire rather than archive.
	now = now.Add(61 * time.Second)
	s.Record(KindExitedClean)

	snap := s.Snapshot()
	assert.Equal(t, 0, snap.Count(KindTimedOut), "expired events must not count")
	assert.Equal(t, 1, snap.Count(KindExitedClean))
	assert.Equal(t, 1, snap.Total)
}

func TestRollingStats_TickDecays(t *testing.T) {
	now := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	s := NewRollingStats(60*time.Second, 3)
	s.now = func() time.Time { return now }

	s.Record(KindOOMKilled)
	assert.Equal(t, 1, s.Snapshot().Count(KindOOMKilled))

	now = now.Add(2 * time.Minute)
	s.Tick()

	assert.Equal(t, 0, s.Snapshot().Count(KindOOMKilled))
}

func TestRollingStats_AlertThreshold(t *testing.T) {
	s := NewRollingStats(60*time.Second, 3)

	s.Record(KindTimedOut)
	s.Record(KindTimedOut)
	assert.False(t, s.Snapshot().Alert, "below threshold")

	s.Record(KindTimedOut)
	assert.True(t, s.Snapshot().Alert, "threshold reached")
}

func TestRollingStats_AlertClearsAfterExpiry(t *testing.T) {
	now := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	s := NewRollingStats(60*time.Second, 3)
	s.now = func() time.Time { return now }

	for i := 0; i < 3; i++ {
		s.Record(KindTimedOut)
	}
	assert.True(t, s.Snapshot().Alert)

	now = now.Add(2 * time.Minute)
	s.Tick()
	assert.False(t, s.Snapshot().Alert, "alert is windowed, not sticky")
}

func TestStatsSnapshot_Terminations(t *testing.T) {
	s := NewRollingStats(60*time.Second, 3)

	s.Record(KindSpawned)
	s.Record(KindServing)
	s.Record(KindRecycled)
	s.Record(KindOOMKilled)
	s.Record(KindExitedError)

	assert.Equal(t, 3, s.Snapshot().Terminations())
}

func TestRollingStats_Defaults(t *testing.T) {
	s := NewRollingStats(0, 0)

	snap := s.Snapshot()
	assert.Equal(t, DefaultWindow, snap.Window)
}
