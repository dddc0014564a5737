package matrix

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jamesainslie/warden/pkg/warden/policy"
)

// Cell is one matrix combination prepared for execution. Config carries the
// worker configuration the cell runs under; for baseline cells it is the
// stock default rather than a tier-derived one.
type Cell struct {
	TierMB   int
	Scenario Scenario
	Mode     Mode
	Config   policy.Config
}

// Key matches Result.Key for the same combination.
func (c Cell) Key() string {
	return fmt.Sprintf("%dmb/%s/%s", c.TierMB, c.Scenario, c.Mode)
}

// Measurement is what a scenario run reports back.
type Measurement struct {
	Passed       bool
	TimeoutCount int
	StartupTime  time.Duration
	ResponseTime time.Duration
	Detail       string
}

// Environment is a provisioned, memory-constrained sandbox a scenario runs
// in. Close releases the sandbox; it must be safe to call after a failed Run.
type Environment interface {
	Run(ctx context.Context, sc Scenario) (Measurement, error)
	Close() error
}

// Provisioner creates environments for cells.
type Provisioner interface {
	Provision(ctx context.Context, cell Cell) (Environment, error)
}

// MockBehavior scripts a mock environment for one cell key.
type MockBehavior struct {
	ProvisionErr error
	RunErr       error
	Hang         bool
	Delay        time.Duration
	Measurement  Measurement
}

// MockProvisioner provisions in-memory environments with scripted behavior,
// keyed by Cell.Key. Unscripted cells pass immediately.
type MockProvisioner struct {
	mu        sync.Mutex
	behaviors map[string]MockBehavior
	active    int
	peak      int
}

// NewMockProvisioner returns an empty mock where every cell passes.
func NewMockProvisioner() *MockProvisioner {
	return &MockProvisioner{behaviors: make(map[string]MockBehavior)}
}

// Script sets the behavior for one cell key.
func (p *MockProvisioner) Script(key string, b MockBehavior) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.behaviors[key] = b
}

// PeakActive reports the highest number of concurrently open environments.
func (p *MockProvisioner) PeakActive() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.peak
}

// Provision implements Provisioner.
func (p *MockProvisioner) Provision(_ context.Context, cell Cell) (Environment, error) {
	p.mu.Lock()
	b, scripted := p.behaviors[cell.Key()]
	if !scripted {
		b.Measurement.Passed = true
	}
	if b.ProvisionErr != nil {
		p.mu.Unlock()
		return nil, b.ProvisionErr
	}
	p.active++
	if p.active > p.peak {
		p.peak = p.active
	}
	p.mu.Unlock()

	return &mockEnv{p: p, b: b}, nil
}

type mockEnv struct {
	p *MockProvisioner
	b MockBehavior
}

func (e *mockEnv) Run(ctx context.Context, _ Scenario) (Measurement, error) {
	if e.b.Hang {
		<-ctx.Done()
		return Measurement{}, ctx.Err()
	}
	if e.b.Delay > 0 {
		select {
		case <-time.After(e.b.Delay):
		case <-ctx.Done():
			return Measurement{}, ctx.Err()
		}
	}
	if e.b.RunErr != nil {
		return Measurement{}, e.b.RunErr
	}
	return e.b.Measurement, nil
}

func (e *mockEnv) Close() error {
	e.p.mu.Lock()
	e.p.active--
	e.p.mu.Unlock()
	return nil
}
