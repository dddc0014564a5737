package health

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jamesainslie/warden/pkg/warden/lifecycle"
	"github.com/jamesainslie/warden/pkg/warden/policy"
	"github.com/jamesainslie/warden/pkg/warden/probe"
)

type fakeReader struct {
	snap probe.Snapshot
	err  error
}

func (f fakeReader) Read() (probe.Snapshot, error) {
	return f.snap, f.err
}

type fakeStats struct {
	stats    lifecycle.StatsSnapshot
	degraded bool
	active   int
}

func (f fakeStats) Stats() lifecycle.StatsSnapshot { return f.stats }
func (f fakeStats) Degraded() bool                 { return f.degraded }
func (f fakeStats) ActiveWorkers() int             { return f.active }

func withKinds(kinds map[lifecycle.Kind]int, alert bool) lifecycle.StatsSnapshot {
	var snap lifecycle.StatsSnapshot
	snap.Window = time.Minute
	snap.Alert = alert
	for k, n := range kinds {
		snap.Counts[k] = n
		snap.Total += n
	}
	return snap
}

func goodReader() fakeReader {
	return fakeReader{snap: probe.Snapshot{
		TotalMemory:     4096 * 1024 * 1024,
		AvailableMemory: 2048 * 1024 * 1024,
		CPUCores:        2,
	}}
}

func TestDashboard_Healthy(t *testing.T) {
	dash := New(goodReader(), policy.Default(), fakeStats{active: 5})

	status := dash.Snapshot()

	assert.Equal(t, VerdictHealthy, status.Verdict)
	assert.Equal(t, 5, status.ActiveWorkers)
	assert.Equal(t, "observing", status.MonitorState)
	assert.GreaterOrEqual(t, status.HeadroomBytes, int64(0))
}

func TestDashboard_DegradedOnTimeouts(t *testing.T) {
	stats := fakeStats{
		stats: withKinds(map[lifecycle.Kind]int{lifecycle.KindTimedOut: 1}, false),
	}
	dash := New(goodReader(), policy.Default(), stats)

	assert.Equal(t, VerdictDegraded, dash.Snapshot().Verdict)
}

func TestDashboard_CriticalOnAlert(t *testing.T) {
	stats := fakeStats{
		stats: withKinds(map[lifecycle.Kind]int{lifecycle.KindTimedOut: 3}, true),
	}
	dash := New(goodReader(), policy.Default(), stats)

	assert.Equal(t, VerdictCritical, dash.Snapshot().Verdict)
}

func TestDashboard_CriticalOnDegradedMonitor(t *testing.T) {
	dash := New(goodReader(), policy.Default(), fakeStats{degraded: true})

	status := dash.Snapshot()
	assert.Equal(t, VerdictCritical, status.Verdict)
	assert.Equal(t, "unknown", status.MonitorState)
}

func TestDashboard_CriticalOnDegradedProbe(t *testing.T) {
	reader := fakeReader{err: assert.AnError}
	dash := New(reader, policy.Default(), fakeStats{})

	assert.Equal(t, VerdictCritical, dash.Snapshot().Verdict)
}

func TestServer_Healthz(t *testing.T) {
	dash := New(goodReader(), policy.Default(), fakeStats{active: 3})
	mon := lifecycle.NewMonitor(lifecycle.NewChannelSource(1))
	srv := NewServer(dash, mon, ":0")

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var status Status
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	assert.Equal(t, VerdictHealthy, status.Verdict)
	assert.Equal(t, 3, status.ActiveWorkers)
}

func TestServer_HealthzCriticalIs503(t *testing.T) {
	stats := fakeStats{
		stats: withKinds(map[lifecycle.Kind]int{lifecycle.KindTimedOut: 5}, true),
	}
	dash := New(goodReader(), policy.Default(), stats)
	mon := lifecycle.NewMonitor(lifecycle.NewChannelSource(1))
	srv := NewServer(dash, mon, ":0")

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestServer_RunAfterMonitorStopped(t *testing.T) {
	src := lifecycle.NewChannelSource(1)
	mon := lifecycle.NewMonitor(src)
	require.NoError(t, src.Close())
	require.NoError(t, mon.Run(context.Background()), "closed source ends the feed cleanly")

	dash := New(goodReader(), policy.Default(), fakeStats{})
	srv := NewServer(dash, mon, "127.0.0.1:0")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, srv.Run(ctx), context.Canceled)
}

func TestServer_Metrics(t *testing.T) {
	dash := New(goodReader(), policy.Default(), fakeStats{})
	mon := lifecycle.NewMonitor(lifecycle.NewChannelSource(1))
	srv := NewServer(dash, mon, ":0")

	// Prime the gauges through a health request first.
	srv.Handler().ServeHTTP(httptest.NewRecorder(),
		httptest.NewRequest(http.MethodGet, "/healthz", nil))

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "warden_health_verdict")
	assert.Contains(t, rec.Body.String(), "warden_memory_headroom_bytes")
}
