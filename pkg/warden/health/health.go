// Package health aggregates the latest resource snapshot and lifecycle
// statistics into a health verdict. It is purely a read-side aggregator:
// it holds no authoritative state and is safe to restart at any time.
package health

import (
	"context"
	"time"

	"github.com/jamesainslie/warden/pkg/warden/lifecycle"
	"github.com/jamesainslie/warden/pkg/warden/logging"
	"github.com/jamesainslie/warden/pkg/warden/policy"
	"github.com/jamesainslie/warden/pkg/warden/probe"
)

// Verdict is the overall health classification.
type Verdict int

// Verdicts from best to worst.
const (
	VerdictHealthy Verdict = iota
	VerdictDegraded
	VerdictCritical
)

// String returns the verdict name.
func (v Verdict) String() string {
	switch v {
	case VerdictHealthy:
		return "healthy"
	case VerdictDegraded:
		return "degraded"
	case VerdictCritical:
		return "critical"
	default:
		return "unknown"
	}
}

// StatsSource is the read-only view of the lifecycle monitor the dashboard
// consumes. Snapshots are eventually consistent.
type StatsSource interface {
	Stats() lifecycle.StatsSnapshot
	Degraded() bool
	ActiveWorkers() int
}

// Status is one dashboard observation.
type Status struct {
	Verdict       Verdict             `json:"verdict"`
	Snapshot      probe.Snapshot      `json:"snapshot"`
	Config        policy.Config       `json:"config"`
	ActiveWorkers int                 `json:"active_workers"`
	Timeouts      int                 `json:"timeouts_in_window"`
	OOMKills      int                 `json:"oom_kills_in_window"`
	HeadroomBytes int64               `json:"headroom_bytes"`
	MonitorState  string              `json:"monitor_state"`
	Time          time.Time           `json:"time"`
	Stats         map[string]int      `json:"events_in_window"`
}

// DefaultInterval is the default dashboard refresh cadence.
const DefaultInterval = 15 * time.Second

// Dashboard periodically probes resources and combines them with monitor
// statistics into a verdict.
type Dashboard struct {
	reader   probe.Reader
	pol      policy.Policy
	stats    StatsSource
	interval time.Duration
	logger   *logging.Logger
}

// DashOption configures a Dashboard.
type DashOption func(*Dashboard)

// WithInterval sets the refresh cadence.
func WithInterval(d time.Duration) DashOption {
	return func(db *Dashboard) {
		if d > 0 {
			db.interval = d
		}
	}
}

// New creates a dashboard over the given probe reader and monitor.
func New(reader probe.Reader, pol policy.Policy, stats StatsSource, opts ...DashOption) *Dashboard {
	db := &Dashboard{
		reader:   reader,
		pol:      pol,
		stats:    stats,
		interval: DefaultInterval,
		logger:   logging.Get("health"),
	}
	for _, opt := range opts {
		opt(db)
	}
	return db
}

// Snapshot computes a fresh status from the current resource state and the
// latest monitor statistics.
func (db *Dashboard) Snapshot() Status {
	snap := probe.Probe(db.reader)
	cfg := policy.Calculate(snap, db.pol)
	stats := db.stats.Stats()

	budget := int64(float64(snap.AvailableMemory) * db.normalizedMargin())
	headroom := budget - policy.EstimatedMemory(cfg.Workers, db.pol)

	monitorState := "observing"
	if db.stats.Degraded() {
		monitorState = "unknown"
	}

	status := Status{
		Snapshot:      snap,
		Config:        cfg,
		ActiveWorkers: db.stats.ActiveWorkers(),
		Timeouts:      stats.Count(lifecycle.KindTimedOut),
		OOMKills:      stats.Count(lifecycle.KindOOMKilled),
		HeadroomBytes: headroom,
		MonitorState:  monitorState,
		Time:          time.Now(),
		Stats:         kindCounts(stats),
	}
	status.Verdict = db.verdict(snap, stats, headroom)
	return status
}

// verdict classifies: critical when the alert threshold is breached, the
// event source is unreadable, or the probe itself degraded; degraded on any
// timeouts below the threshold or exhausted memory headroom; healthy
// otherwise.
func (db *Dashboard) verdict(snap probe.Snapshot, stats lifecycle.StatsSnapshot, headroom int64) Verdict {
	if stats.Alert || db.stats.Degraded() || snap.Degraded {
		return VerdictCritical
	}
	if stats.Count(lifecycle.KindTimedOut) > 0 || headroom < 0 {
		return VerdictDegraded
	}
	return VerdictHealthy
}

func (db *Dashboard) normalizedMargin() float64 {
	if db.pol.SafetyMargin > 0 && db.pol.SafetyMargin < 1 {
		return db.pol.SafetyMargin
	}
	return policy.DefaultSafetyMargin
}

// Run refreshes the dashboard on its interval until the context is done.
func (db *Dashboard) Run(ctx context.Context) error {
	ticker := time.NewTicker(db.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			status := db.Snapshot()
			db.logger.Info("health",
				"verdict", status.Verdict.String(),
				"workers", status.ActiveWorkers,
				"timeouts", status.Timeouts,
				"headroom_mb", status.HeadroomBytes/(1<<20),
				"monitor", status.MonitorState)
		}
	}
}

func kindCounts(stats lifecycle.StatsSnapshot) map[string]int {
	counts := make(map[string]int)
	for k := lifecycle.KindSpawned; k <= lifecycle.KindExitedError; k++ {
		if n := stats.Count(k); n > 0 {
			counts[k.String()] = n
		}
	}
	return counts
}
