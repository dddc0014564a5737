package lifecycle

import (
	"context"
	"errors"
	"io"
	"sync/atomic"
	"time"

	"github.com/jamesainslie/warden/pkg/warden/logging"
)

// State tracks where a worker sits in its life.
type State int

// Worker states. Terminated workers are dropped from tracking.
const (
	StateSpawning State = iota
	StateReady
	StateServing
	StateTerminated
)

// Monitor defaults.
const (
	// DefaultPressureWindow is how close a memory-pressure indicator must
	// sit to a kill for the kill to classify as OOM.
	DefaultPressureWindow = 10 * time.Second

	defaultMaxRetries     = 5
	defaultInitialBackoff = time.Second
	defaultMaxBackoff     = 30 * time.Second
)

// Monitor consumes raw supervisor records, runs them through a per-worker
// state machine, classifies terminations, and maintains rolling statistics.
// One Run loop is the sole writer to the statistics and worker table; other
// goroutines only read published snapshots.
type Monitor struct {
	source Source
	stats  *RollingStats
	bc     *Broadcaster
	logger *logging.Logger

	pressureWindow time.Duration
	maxRetries     int
	initialBackoff time.Duration
	maxBackoff     time.Duration

	degraded atomic.Bool
	active   atomic.Int64

	// Owned by the Run goroutine.
	workers      map[string]State
	lastPressure time.Time
}

// Option configures a Monitor.
type Option func(*Monitor)

// WithWindow sets the rolling statistics window.
func WithWindow(d time.Duration) Option {
	return func(m *Monitor) { m.stats = NewRollingStats(d, m.stats.threshold) }
}

// WithAlertThreshold sets how many timeout kills within the window raise the
// advisory alert.
func WithAlertThreshold(n int) Option {
	return func(m *Monitor) { m.stats = NewRollingStats(m.stats.window, n) }
}

// WithPressureWindow sets the OOM disambiguation window.
func WithPressureWindow(d time.Duration) Option {
	return func(m *Monitor) {
		if d > 0 {
			m.pressureWindow = d
		}
	}
}

// WithRetry tunes the source retry behavior.
func WithRetry(maxRetries int, initial, maxBackoff time.Duration) Option {
	return func(m *Monitor) {
		if maxRetries > 0 {
			m.maxRetries = maxRetries
		}
		if initial > 0 {
			m.initialBackoff = initial
		}
		if maxBackoff > 0 {
			m.maxBackoff = maxBackoff
		}
	}
}

// NewMonitor creates a monitor over the given source.
func NewMonitor(source Source, opts ...Option) *Monitor {
	m := &Monitor{
		source:         source,
		stats:          NewRollingStats(DefaultWindow, DefaultAlertThreshold),
		bc:             NewBroadcaster(),
		logger:         logging.Get("monitor"),
		pressureWindow: DefaultPressureWindow,
		maxRetries:     defaultMaxRetries,
		initialBackoff: defaultInitialBackoff,
		maxBackoff:     defaultMaxBackoff,
		workers:        make(map[string]State),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Run consumes the source until the context is done or the feed ends.
// Returns nil on a clean feed end, the context error on cancellation.
func (m *Monitor) Run(ctx context.Context) error {
	recs := make(chan Record)
	done := make(chan error, 1)
	go m.read(ctx, recs, done)

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	defer m.bc.Close()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-done:
			if errors.Is(err, io.EOF) {
				m.logger.Info("event feed ended")
				return nil
			}
			return err
		case rec := <-recs:
			m.handle(rec)
		case <-ticker.C:
			// Let windowed counters decay during quiet periods.
			m.stats.Tick()
		}
	}
}

// read pulls records from the source with retry and exponential backoff.
// After maxRetries consecutive failures the monitor flips to degraded and
// keeps retrying; it recovers on the next successful read.
func (m *Monitor) read(ctx context.Context, recs chan<- Record, done chan<- error) {
	failures := 0
	backoff := m.initialBackoff

	for {
		rec, err := m.source.Next(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			if errors.Is(err, io.EOF) {
				done <- io.EOF
				return
			}

			failures++
			if failures >= m.maxRetries && !m.degraded.Load() {
				m.degraded.Store(true)
				m.logger.Error("event source unreadable, monitoring degraded",
					"failures", failures, "error", err)
			} else {
				m.logger.Warn("event source read failed", "error", err)
			}

			select {
			case <-ctx.Done():
				return
			case <-time.After(backoff):
			}
			backoff = min(backoff*2, m.maxBackoff)
			continue
		}

		if m.degraded.Swap(false) {
			m.logger.Info("event source recovered")
		}
		failures = 0
		backoff = m.initialBackoff

		select {
		case <-ctx.Done():
			return
		case recs <- rec:
		}
	}
}

// handle applies one raw record to the state machine. Run goroutine only.
func (m *Monitor) handle(rec Record) {
	switch rec.Type {
	case RecordPressure:
		m.lastPressure = rec.Time
		m.logger.Debug("memory pressure indicator", "time", rec.Time)

	case RecordSpawn:
		m.workers[rec.WorkerID] = StateSpawning
		m.active.Store(int64(len(m.workers)))
		m.emit(rec.WorkerID, KindSpawned, rec.Time)

	case RecordReady:
		m.transition(rec.WorkerID, StateReady)
		m.emit(rec.WorkerID, KindReady, rec.Time)

	case RecordServing:
		m.transition(rec.WorkerID, StateServing)
		m.emit(rec.WorkerID, KindServing, rec.Time)

	case RecordRecycle:
		m.terminate(rec.WorkerID, KindRecycled, rec.Time)

	case RecordExit:
		m.terminate(rec.WorkerID, m.classify(rec), rec.Time)

	default:
		m.logger.Warn("unknown record type", "type", rec.Type, "worker", rec.WorkerID)
	}
}

// transition moves a worker forward. Records for unknown workers create an
// entry; the feed may have been opened mid-life.
func (m *Monitor) transition(id string, to State) {
	if _, ok := m.workers[id]; !ok {
		m.logger.Debug("record for untracked worker", "worker", id)
	}
	m.workers[id] = to
	m.active.Store(int64(len(m.workers)))
}

// classify determines the termination cause for an exit record.
//
// A worker killed for memory pressure arrives on the same kill signal the
// supervisor uses to enforce request timeouts, so signal alone cannot
// distinguish the two. The memory-pressure indicator is checked first: a
// kill within the pressure window is an OOM kill even when the supervisor
// had marked the kill as its own timeout enforcement.
func (m *Monitor) classify(rec Record) Kind {
	if rec.Signal != 0 {
		if !m.lastPressure.IsZero() {
			delta := rec.Time.Sub(m.lastPressure)
			if delta < 0 {
				delta = -delta
			}
			if delta <= m.pressureWindow {
				return KindOOMKilled
			}
		}
		if rec.TimeoutKill {
			return KindTimedOut
		}
		return KindExitedError
	}

	if rec.ExitCode == 0 {
		return KindExitedClean
	}
	return KindExitedError
}

// terminate records a terminal event and drops the worker from tracking.
func (m *Monitor) terminate(id string, kind Kind, at time.Time) {
	delete(m.workers, id)
	m.active.Store(int64(len(m.workers)))
	m.emit(id, kind, at)

	if kind == KindTimedOut && m.stats.Snapshot().Alert {
		m.logger.Warn("timeout alert threshold reached",
			"timeouts", m.stats.Snapshot().Count(KindTimedOut),
			"window", m.stats.Snapshot().Window)
	}
}

// emit records the event and fans it out to subscribers.
func (m *Monitor) emit(id string, kind Kind, at time.Time) {
	if at.IsZero() {
		at = time.Now()
	}
	m.stats.Record(kind)
	m.bc.Notify(Event{WorkerID: id, Kind: kind, Time: at})
	m.logger.Debug("lifecycle event", "worker", id, "kind", kind.String())
}

// Stats returns the latest rolling statistics snapshot. Safe from any
// goroutine; eventually consistent.
func (m *Monitor) Stats() StatsSnapshot {
	return m.stats.Snapshot()
}

// Degraded reports whether the event source is currently unreadable. A
// degraded monitor reports unknown state rather than failing.
func (m *Monitor) Degraded() bool {
	return m.degraded.Load()
}

// ActiveWorkers returns the number of workers currently tracked as alive.
func (m *Monitor) ActiveWorkers() int {
	return int(m.active.Load())
}

// Subscribe returns a subscription for classified events. Pass kinds to
// filter; none subscribes to everything.
func (m *Monitor) Subscribe(kinds ...Kind) *Subscriber {
	return m.bc.Subscribe(kinds...)
}

// Unsubscribe removes a subscription.
func (m *Monitor) Unsubscribe(id string) {
	m.bc.Unsubscribe(id)
}
