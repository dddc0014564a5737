// Package matrix runs worker-pool scenarios across constrained memory
// environments and collects per-cell results. Each cell is one
// (memory tier, scenario, config mode) combination executed in isolation.
package matrix

import (
	"fmt"
	"time"
)

// Mode selects which worker configuration a cell runs under.
type Mode string

// Config modes. Baseline ignores resource detection and uses the stock
// defaults; computed applies the tiered configuration for the cell's tier.
const (
	ModeBaseline Mode = "baseline"
	ModeComputed Mode = "computed"
)

// Modes lists both config modes in run order.
var Modes = []Mode{ModeBaseline, ModeComputed}

// Scenario names one workload pattern exercised inside a cell.
type Scenario string

// Built-in scenarios.
const (
	ScenarioStartup   Scenario = "startup"
	ScenarioHealth    Scenario = "health"
	ScenarioLifecycle Scenario = "lifecycle"
	ScenarioLoad      Scenario = "load"
	ScenarioOOM       Scenario = "oom"
	ScenarioSustained Scenario = "sustained"
	ScenarioRecycle   Scenario = "recycle"
)

// DefaultScenarios is the full scenario set, in run order.
var DefaultScenarios = []Scenario{
	ScenarioStartup,
	ScenarioHealth,
	ScenarioLifecycle,
	ScenarioLoad,
	ScenarioOOM,
	ScenarioSustained,
	ScenarioRecycle,
}

// DefaultTiersMB covers the memory range from below-minimum to comfortable.
var DefaultTiersMB = []int{256, 384, 512, 768, 1024, 2048, 4096}

// Outcome is the terminal state of one cell.
type Outcome string

// Cell outcomes. Skipped marks cells not run because the run was cut short.
const (
	OutcomePass    Outcome = "pass"
	OutcomeFail    Outcome = "fail"
	OutcomeSkipped Outcome = "skipped"
)

// Result is one row of the matrix.
type Result struct {
	TierMB       int           `json:"ram_tier_mb"`
	Scenario     Scenario      `json:"scenario"`
	Mode         Mode          `json:"config_mode"`
	Outcome      Outcome       `json:"result"`
	TimeoutCount int           `json:"timeout_count"`
	StartupTime  time.Duration `json:"startup_time"`
	ResponseTime time.Duration `json:"response_time"`
	Detail       string        `json:"detail,omitempty"`
}

// Key identifies the cell uniquely within a run.
func (r Result) Key() string {
	return fmt.Sprintf("%dmb/%s/%s", r.TierMB, r.Scenario, r.Mode)
}

// Summary aggregates a full run.
type Summary struct {
	Total    int           `json:"total"`
	Passed   int           `json:"passed"`
	Failed   int           `json:"failed"`
	Skipped  int           `json:"skipped"`
	Duration time.Duration `json:"duration"`
}

// PassRate returns the fraction of executed cells that passed.
func (s Summary) PassRate() float64 {
	executed := s.Total - s.Skipped
	if executed == 0 {
		return 0
	}
	return float64(s.Passed) / float64(executed)
}

// Summarize folds results into a summary.
func Summarize(results []Result, duration time.Duration) Summary {
	s := Summary{Total: len(results), Duration: duration}
	for _, r := range results {
		switch r.Outcome {
		case OutcomePass:
			s.Passed++
		case OutcomeSkipped:
			s.Skipped++
		default:
			s.Failed++
		}
	}
	return s
}
