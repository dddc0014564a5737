// Package lifecycle observes the process supervisor's worker event feed and
// classifies worker terminations. Raw supervisor records enter through a
// pluggable Source adapter; the monitor runs them through a per-worker state
// machine and emits classified events to subscribers while maintaining
// rolling statistics over a fixed trailing window.
package lifecycle

import "time"

// Kind identifies a classified lifecycle event.
type Kind int

// Event kinds in state-machine order. The terminal kinds partition every
// worker termination into exactly one cause.
const (
	KindSpawned Kind = iota
	KindReady
	KindServing
	KindRecycled
	KindTimedOut
	KindOOMKilled
	KindExitedClean
	KindExitedError

	numKinds
)

// String returns the event kind name.
func (k Kind) String() string {
	switch k {
	case KindSpawned:
		return "spawned"
	case KindReady:
		return "ready"
	case KindServing:
		return "serving"
	case KindRecycled:
		return "recycled"
	case KindTimedOut:
		return "timed-out"
	case KindOOMKilled:
		return "oom-killed"
	case KindExitedClean:
		return "exited-clean"
	case KindExitedError:
		return "exited-error"
	default:
		return "unknown"
	}
}

// Terminal reports whether the kind ends a worker's life.
func (k Kind) Terminal() bool {
	switch k {
	case KindRecycled, KindTimedOut, KindOOMKilled, KindExitedClean, KindExitedError:
		return true
	default:
		return false
	}
}

// Event is a classified lifecycle event. Created and owned by the monitor;
// consumers treat it as read-only.
type Event struct {
	WorkerID string
	Kind     Kind
	Time     time.Time
}

// Record types as they appear in the supervisor feed.
const (
	RecordSpawn    = "spawn"
	RecordReady    = "ready"
	RecordServing  = "serving"
	RecordRecycle  = "recycle"
	RecordExit     = "exit"
	RecordPressure = "pressure"
)

// Record is a raw entry from the supervisor's event feed, before
// classification. Exit records carry the exit code, the delivering signal
// (zero for self-termination), and whether the supervisor itself issued the
// kill to enforce a request timeout.
type Record struct {
	Time        time.Time `json:"time"`
	Type        string    `json:"type"`
	WorkerID    string    `json:"worker_id,omitempty"`
	ExitCode    int       `json:"exit_code,omitempty"`
	Signal      int       `json:"signal,omitempty"`
	TimeoutKill bool      `json:"timeout_kill,omitempty"`
}
