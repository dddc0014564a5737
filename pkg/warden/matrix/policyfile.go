package matrix

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// ErrInvalidDefinition marks a matrix definition that fails validation.
var ErrInvalidDefinition = errors.New("invalid matrix definition")

// Definition describes a matrix run: which tiers and scenarios to cross,
// how hard to parallelize, and the floor of the per-cell wall-clock budget.
type Definition struct {
	TiersMB        []int      `yaml:"tiers_mb"`
	Scenarios      []Scenario `yaml:"scenarios"`
	Modes          []Mode     `yaml:"modes"`
	Parallel       int        `yaml:"parallel"`
	CellTimeoutSec int        `yaml:"cell_timeout_s"`
	SafetyFactor   float64    `yaml:"safety_factor"`
	Image          string     `yaml:"image"`
}

// DefaultDefinition returns the full 7x7x2 matrix with conservative budgets.
func DefaultDefinition() Definition {
	return Definition{
		TiersMB:        append([]int(nil), DefaultTiersMB...),
		Scenarios:      append([]Scenario(nil), DefaultScenarios...),
		Modes:          append([]Mode(nil), Modes...),
		Parallel:       2,
		CellTimeoutSec: 30,
		SafetyFactor:   1.5,
		Image:          "warden-worker:latest",
	}
}

// LoadDefinition reads a definition from a YAML file. Fields missing from
// the file keep their defaults; unknown fields are rejected. An unreadable
// file is as invalid as a malformed one.
func LoadDefinition(path string) (Definition, error) {
	def := DefaultDefinition()

	data, err := os.ReadFile(path)
	if err != nil {
		return def, fmt.Errorf("%w: reading %s: %v", ErrInvalidDefinition, path, err)
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&def); err != nil {
		return def, fmt.Errorf("%w: %v", ErrInvalidDefinition, err)
	}

	if err := def.Validate(); err != nil {
		return def, err
	}
	return def, nil
}

// Validate checks the definition for values the harness cannot run with.
func (d Definition) Validate() error {
	if len(d.TiersMB) == 0 {
		return fmt.Errorf("%w: no memory tiers", ErrInvalidDefinition)
	}
	for _, mb := range d.TiersMB {
		if mb < 64 {
			return fmt.Errorf("%w: tier %dMB below the 64MB container minimum", ErrInvalidDefinition, mb)
		}
	}
	if len(d.Scenarios) == 0 {
		return fmt.Errorf("%w: no scenarios", ErrInvalidDefinition)
	}
	for _, sc := range d.Scenarios {
		if !knownScenario(sc) {
			return fmt.Errorf("%w: unknown scenario %q", ErrInvalidDefinition, sc)
		}
	}
	if len(d.Modes) == 0 {
		return fmt.Errorf("%w: no config modes", ErrInvalidDefinition)
	}
	for _, m := range d.Modes {
		if m != ModeBaseline && m != ModeComputed {
			return fmt.Errorf("%w: unknown config mode %q", ErrInvalidDefinition, m)
		}
	}
	if d.Parallel < 1 {
		return fmt.Errorf("%w: parallel must be at least 1", ErrInvalidDefinition)
	}
	if d.CellTimeoutSec <= 0 {
		return fmt.Errorf("%w: cell_timeout_s must be positive", ErrInvalidDefinition)
	}
	if d.SafetyFactor < 1 {
		return fmt.Errorf("%w: safety_factor below 1 would cut cells short", ErrInvalidDefinition)
	}
	return nil
}

// Cells returns the total cell count of the matrix.
func (d Definition) Cells() int {
	return len(d.TiersMB) * len(d.Scenarios) * len(d.Modes)
}

// CellBudget is the hard wall-clock cap for one cell, scaled from the
// configuration the cell runs under. A cell gets its request timeout times
// the safety factor; cell_timeout_s is the floor so short timeouts still
// leave room for container startup and teardown.
func (d Definition) CellBudget(c Cell) time.Duration {
	secs := float64(c.Config.RequestTimeout) * d.SafetyFactor
	if floor := float64(d.CellTimeoutSec); secs < floor {
		secs = floor
	}
	return time.Duration(secs * float64(time.Second))
}

func knownScenario(sc Scenario) bool {
	for _, known := range DefaultScenarios {
		if sc == known {
			return true
		}
	}
	return false
}
