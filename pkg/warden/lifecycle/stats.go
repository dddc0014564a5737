package lifecycle

import (
	"sync/atomic"
	"time"
)

// Defaults for the rolling statistics window.
const (
	DefaultWindow         = 60 * time.Second
	DefaultAlertThreshold = 3
)

// StatsSnapshot is an immutable view of the rolling counters. Readers get a
// fresh copy on every call; the counters reflect only events inside the
// trailing window.
type StatsSnapshot struct {
	Window time.Duration
	Counts [numKinds]int
	Total  int

	// Alert is set when the timed-out count reached the alert threshold
	// within the window. Advisory, never fatal.
	Alert bool

	Taken time.Time
}

// Count returns the windowed count for a kind.
func (s StatsSnapshot) Count(k Kind) int {
	if k < 0 || k >= numKinds {
		return 0
	}
	return s.Counts[k]
}

// Terminations returns the windowed count of terminal events.
func (s StatsSnapshot) Terminations() int {
	n := 0
	for k := Kind(0); k < numKinds; k++ {
		if k.Terminal() {
			n += s.Counts[k]
		}
	}
	return n
}

type statEntry struct {
	kind Kind
	at   time.Time
}

// RollingStats keeps per-kind counters over a fixed sliding time window.
// Exactly one goroutine (the monitor) writes; any number of readers call
// Snapshot, which loads an atomically swapped copy. Oldest events expire as
// the window slides; they are dropped, not archived.
type RollingStats struct {
	window    time.Duration
	threshold int
	now       func() time.Time

	// Writer-owned, never touched by readers.
	entries []statEntry
	counts  [numKinds]int

	snap atomic.Pointer[StatsSnapshot]
}

// NewRollingStats creates rolling statistics over the given window. Zero
// values select the defaults.
func NewRollingStats(window time.Duration, alertThreshold int) *RollingStats {
	if window <= 0 {
		window = DefaultWindow
	}
	if alertThreshold <= 0 {
		alertThreshold = DefaultAlertThreshold
	}
	s := &RollingStats{
		window:    window,
		threshold: alertThreshold,
		now:       time.Now,
	}
	s.publish()
	return s
}

// Record adds an event occurrence. Must only be called from the single
// writer goroutine.
func (s *RollingStats) Record(kind Kind) {
	now := s.now()
	s.expire(now)
	s.entries = append(s.entries, statEntry{kind: kind, at: now})
	s.counts[kind]++
	s.publish()
}

// Tick expires old entries without recording anything, so counters decay
// even during quiet periods. Writer goroutine only.
func (s *RollingStats) Tick() {
	s.expire(s.now())
	s.publish()
}

// expire drops entries older than the window.
func (s *RollingStats) expire(now time.Time) {
	cutoff := now.Add(-s.window)
	i := 0
	for ; i < len(s.entries); i++ {
		if s.entries[i].at.After(cutoff) {
			break
		}
		s.counts[s.entries[i].kind]--
	}
	if i > 0 {
		s.entries = append(s.entries[:0], s.entries[i:]...)
	}
}

// publish swaps in a fresh snapshot for readers.
func (s *RollingStats) publish() {
	snap := &StatsSnapshot{
		Window: s.window,
		Counts: s.counts,
		Total:  len(s.entries),
		Alert:  s.counts[KindTimedOut] >= s.threshold,
		Taken:  s.now(),
	}
	s.snap.Store(snap)
}

// Snapshot returns the latest published view. Safe from any goroutine;
// eventually consistent with the writer.
func (s *RollingStats) Snapshot() StatsSnapshot {
	return *s.snap.Load()
}
