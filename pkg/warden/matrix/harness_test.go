package matrix

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jamesainslie/warden/pkg/warden/policy"
)

func smallDefinition() Definition {
	def := DefaultDefinition()
	def.TiersMB = []int{256, 1024}
	def.Scenarios = []Scenario{ScenarioStartup, ScenarioOOM}
	def.Parallel = 2
	def.CellTimeoutSec = 1
	def.SafetyFactor = 1
	return def
}

func TestHarness_FullCrossProduct(t *testing.T) {
	def := DefaultDefinition()
	h := NewHarness(def, NewMockProvisioner(), policy.Default())

	cells := h.Cells()
	require.Len(t, cells, 7*7*2)

	seen := make(map[string]bool)
	for _, c := range cells {
		assert.False(t, seen[c.Key()], "duplicate cell %s", c.Key())
		seen[c.Key()] = true
	}
}

func TestHarness_ComputedCellsCarryTierConfig(t *testing.T) {
	h := NewHarness(smallDefinition(), NewMockProvisioner(), policy.Default())

	for _, c := range h.Cells() {
		switch {
		case c.Mode == ModeBaseline:
			assert.Equal(t, baselineConfig, c.Config)
		case c.TierMB == 256:
			assert.False(t, c.Config.Viable, "256MB computed cell is below minimum")
			assert.Equal(t, 1, c.Config.Workers)
		case c.TierMB == 1024:
			assert.True(t, c.Config.Viable)
			assert.Greater(t, c.Config.Workers, 1)
		}
	}
}

func TestHarness_AllCellsPass(t *testing.T) {
	h := NewHarness(smallDefinition(), NewMockProvisioner(), policy.Default())

	results, summary, err := h.Run(context.Background())
	require.NoError(t, err)
	require.Len(t, results, 8)
	assert.Equal(t, 8, summary.Passed)
	assert.Equal(t, 1.0, summary.PassRate())
}

func TestHarness_ProvisionFailureBecomesFailRow(t *testing.T) {
	prov := NewMockProvisioner()
	prov.Script("256mb/startup/baseline", MockBehavior{
		ProvisionErr: errors.New("no such image"),
	})
	h := NewHarness(smallDefinition(), prov, policy.Default())

	results, summary, err := h.Run(context.Background())
	require.ErrorIs(t, err, ErrCellFailures)
	require.Len(t, results, 8, "one bad cell must not abort the run")
	assert.Equal(t, 1, summary.Failed)
	assert.Equal(t, 7, summary.Passed)

	for _, r := range results {
		if r.Key() == "256mb/startup/baseline" {
			assert.Equal(t, OutcomeFail, r.Outcome)
			assert.Contains(t, r.Detail, "no such image")
		}
	}
}

func TestHarness_HangingCellHitsBudgetNotForever(t *testing.T) {
	prov := NewMockProvisioner()
	prov.Script("1024mb/oom/computed", MockBehavior{Hang: true})

	// CellTimeoutSec 1 and SafetyFactor 1 give a one-second budget for a
	// one-second request timeout.
	h := NewHarness(smallDefinition(), prov, policy.Default())
	cell := Cell{
		TierMB:   1024,
		Scenario: ScenarioOOM,
		Mode:     ModeComputed,
		Config:   policy.Config{Workers: 2, RequestTimeout: 1, PoolSize: 5},
	}

	start := time.Now()
	res := h.runCell(context.Background(), cell)
	assert.Less(t, time.Since(start), 5*time.Second)
	assert.Equal(t, OutcomeFail, res.Outcome)
	assert.Contains(t, res.Detail, "wall-clock budget")
}

func TestHarness_ParallelismIsBounded(t *testing.T) {
	prov := NewMockProvisioner()
	def := smallDefinition()
	def.Parallel = 2
	for _, key := range []string{
		"256mb/startup/baseline", "256mb/startup/computed",
		"256mb/oom/baseline", "256mb/oom/computed",
	} {
		prov.Script(key, MockBehavior{
			Delay:       20 * time.Millisecond,
			Measurement: Measurement{Passed: true},
		})
	}

	h := NewHarness(def, prov, policy.Default())
	_, _, err := h.Run(context.Background())
	require.NoError(t, err)

	assert.LessOrEqual(t, prov.PeakActive(), 2)
}

func TestHarness_ResultsInMatrixOrder(t *testing.T) {
	prov := NewMockProvisioner()
	// Stagger delays so completion order differs from matrix order.
	prov.Script("256mb/startup/baseline", MockBehavior{
		Delay:       40 * time.Millisecond,
		Measurement: Measurement{Passed: true},
	})
	h := NewHarness(smallDefinition(), prov, policy.Default())

	results, _, err := h.Run(context.Background())
	require.NoError(t, err)

	want := []string{
		"256mb/startup/baseline", "256mb/startup/computed",
		"256mb/oom/baseline", "256mb/oom/computed",
		"1024mb/startup/baseline", "1024mb/startup/computed",
		"1024mb/oom/baseline", "1024mb/oom/computed",
	}
	for i, r := range results {
		assert.Equal(t, want[i], r.Key())
	}
}

func TestHarness_CancelledRunSkipsRemainingCells(t *testing.T) {
	prov := NewMockProvisioner()
	def := smallDefinition()
	def.Parallel = 1
	for _, c := range NewHarness(def, prov, policy.Default()).Cells() {
		prov.Script(c.Key(), MockBehavior{
			Delay:       30 * time.Millisecond,
			Measurement: Measurement{Passed: true},
		})
	}

	ctx, cancel := context.WithTimeout(context.Background(), 45*time.Millisecond)
	defer cancel()

	h := NewHarness(def, prov, policy.Default())
	results, summary, _ := h.Run(ctx)

	require.Len(t, results, 8)
	assert.Greater(t, summary.Skipped, 0, "cells after cancellation come back skipped")
}

func TestMeasurementTimesFlowIntoResult(t *testing.T) {
	prov := NewMockProvisioner()
	prov.Script("256mb/startup/baseline", MockBehavior{
		Measurement: Measurement{
			Passed:       true,
			TimeoutCount: 2,
			StartupTime:  1500 * time.Millisecond,
			ResponseTime: 250 * time.Millisecond,
		},
	})
	h := NewHarness(smallDefinition(), prov, policy.Default())

	results, _, err := h.Run(context.Background())
	require.NoError(t, err)

	r := results[0]
	require.Equal(t, "256mb/startup/baseline", r.Key())
	assert.Equal(t, 2, r.TimeoutCount)
	assert.Equal(t, 1500*time.Millisecond, r.StartupTime)
	assert.Equal(t, 250*time.Millisecond, r.ResponseTime)
}
