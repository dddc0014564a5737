package matrix

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/jamesainslie/warden/pkg/warden/logging"
	"github.com/jamesainslie/warden/pkg/warden/policy"
	"github.com/jamesainslie/warden/pkg/warden/probe"
)

// ErrCellFailures reports that a run completed but one or more cells failed.
var ErrCellFailures = errors.New("matrix run had failing cells")

// baselineConfig is the stock configuration cells run under in baseline
// mode, deliberately blind to the environment's actual memory.
var baselineConfig = policy.Config{
	Workers:        4,
	RequestTimeout: 60,
	PoolSize:       10,
	RecycleAfter:   0,
	Tier:           policy.TierOptimal,
	Viable:         true,
}

// Harness executes a matrix definition against a provisioner.
type Harness struct {
	def    Definition
	prov   Provisioner
	pol    policy.Policy
	logger *logging.Logger
}

// NewHarness builds a harness. The policy is used to compute per-tier
// configurations for computed-mode cells.
func NewHarness(def Definition, prov Provisioner, pol policy.Policy) *Harness {
	return &Harness{
		def:    def,
		prov:   prov,
		pol:    pol,
		logger: logging.Get("matrix"),
	}
}

// Cells expands the definition into the full cross product, tiers outermost,
// in deterministic order.
func (h *Harness) Cells() []Cell {
	cells := make([]Cell, 0, h.def.Cells())
	for _, tier := range h.def.TiersMB {
		for _, sc := range h.def.Scenarios {
			for _, mode := range h.def.Modes {
				cells = append(cells, Cell{
					TierMB:   tier,
					Scenario: sc,
					Mode:     mode,
					Config:   h.configFor(tier, mode),
				})
			}
		}
	}
	return cells
}

// configFor derives the worker configuration a cell runs under.
func (h *Harness) configFor(tierMB int, mode Mode) policy.Config {
	if mode == ModeBaseline {
		return baselineConfig
	}
	snap := probe.Snapshot{
		TotalMemory:     int64(tierMB) << 20,
		AvailableMemory: int64(tierMB) << 20,
		CPUCores:        2,
	}
	return policy.Calculate(snap, h.pol)
}

// Run executes every cell, at most def.Parallel at a time, and returns all
// results sorted in matrix order. A failing cell never aborts the run; only
// context cancellation does, and then the unexecuted cells come back as
// skipped. The error is ErrCellFailures when any cell failed.
func (h *Harness) Run(ctx context.Context) ([]Result, Summary, error) {
	start := time.Now()
	cells := h.Cells()

	sem := make(chan struct{}, h.def.Parallel)
	resCh := make(chan Result, len(cells))

	skip := func(cell Cell) {
		resCh <- Result{
			TierMB:   cell.TierMB,
			Scenario: cell.Scenario,
			Mode:     cell.Mode,
			Outcome:  OutcomeSkipped,
			Detail:   "run cancelled",
		}
	}

	for _, cell := range cells {
		if ctx.Err() != nil {
			skip(cell)
			continue
		}
		select {
		case <-ctx.Done():
			skip(cell)
			continue
		case sem <- struct{}{}:
		}

		go func(cell Cell) {
			defer func() { <-sem }()
			resCh <- h.runCell(ctx, cell)
		}(cell)
	}

	results := make([]Result, 0, len(cells))
	for range cells {
		results = append(results, <-resCh)
	}

	sortResults(results, h.def)
	summary := Summarize(results, time.Since(start))

	h.logger.Info("matrix run complete",
		"total", summary.Total, "passed", summary.Passed,
		"failed", summary.Failed, "skipped", summary.Skipped,
		"duration", summary.Duration.Round(time.Second))

	if summary.Failed > 0 {
		return results, summary, ErrCellFailures
	}
	return results, summary, nil
}

// runCell provisions, runs, and tears down one cell under its wall-clock
// budget. Every failure mode folds into a fail row rather than an error.
func (h *Harness) runCell(ctx context.Context, cell Cell) Result {
	res := Result{
		TierMB:   cell.TierMB,
		Scenario: cell.Scenario,
		Mode:     cell.Mode,
	}

	cellCtx, cancel := context.WithTimeout(ctx, h.def.CellBudget(cell))
	defer cancel()

	env, err := h.prov.Provision(cellCtx, cell)
	if err != nil {
		h.logger.Warn("cell provisioning failed", "cell", cell.Key(), "error", err)
		res.Outcome = OutcomeFail
		res.Detail = "provision: " + err.Error()
		return res
	}
	defer func() {
		if cerr := env.Close(); cerr != nil {
			h.logger.Warn("cell teardown failed", "cell", cell.Key(), "error", cerr)
		}
	}()

	m, err := env.Run(cellCtx, cell.Scenario)
	if err != nil {
		res.Outcome = OutcomeFail
		if errors.Is(err, context.DeadlineExceeded) {
			res.Detail = "cell exceeded wall-clock budget"
		} else {
			res.Detail = "run: " + err.Error()
		}
		return res
	}

	res.TimeoutCount = m.TimeoutCount
	res.StartupTime = m.StartupTime
	res.ResponseTime = m.ResponseTime
	res.Detail = m.Detail
	if m.Passed {
		res.Outcome = OutcomePass
	} else {
		res.Outcome = OutcomeFail
	}

	h.logger.Debug("cell finished",
		"cell", cell.Key(), "outcome", res.Outcome, "timeouts", res.TimeoutCount)
	return res
}

// sortResults restores matrix order regardless of completion order.
func sortResults(results []Result, def Definition) {
	tierRank := rank(def.TiersMB)
	scRank := rankScenarios(def.Scenarios)
	modeRank := rankModes(def.Modes)

	sort.Slice(results, func(i, j int) bool {
		a, b := results[i], results[j]
		if tierRank[a.TierMB] != tierRank[b.TierMB] {
			return tierRank[a.TierMB] < tierRank[b.TierMB]
		}
		if scRank[a.Scenario] != scRank[b.Scenario] {
			return scRank[a.Scenario] < scRank[b.Scenario]
		}
		return modeRank[a.Mode] < modeRank[b.Mode]
	})
}

func rank(tiers []int) map[int]int {
	m := make(map[int]int, len(tiers))
	for i, t := range tiers {
		m[t] = i
	}
	return m
}

func rankScenarios(scs []Scenario) map[Scenario]int {
	m := make(map[Scenario]int, len(scs))
	for i, sc := range scs {
		m[sc] = i
	}
	return m
}

func rankModes(modes []Mode) map[Mode]int {
	m := make(map[Mode]int, len(modes))
	for i, mode := range modes {
		m[mode] = i
	}
	return m
}
