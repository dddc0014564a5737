// Package policy derives a safe worker configuration from a resource snapshot.
// The derivation is a pure function of the snapshot and a static Policy value:
// identical inputs always yield an identical configuration.
package policy

// Memory model constants, calibrated against the measured per-tier behavior of
// the supervised workers. BaseOverhead covers the master process and shared
// caches; PerWorker is the steady-state resident size of one worker.
const (
	DefaultBaseOverheadBytes = 64 * 1024 * 1024
	DefaultPerWorkerBytes    = 200 * 1024 * 1024

	// DefaultSafetyMargin is the fraction of available memory the
	// calculator is permitted to plan against. The remainder is headroom
	// for transient spikes.
	DefaultSafetyMargin = 0.8

	// DefaultMinRAMMB is the minimal-viable threshold. Below this the
	// system cannot be tuned to avoid timeouts, so the tier is flagged
	// rather than silently configured.
	DefaultMinRAMMB = 384
)

// Policy holds the static derivation constants plus operator overrides.
// It is an explicit immutable value passed to Calculate; components never
// consult process-wide state.
type Policy struct {
	// SafetyMargin is the fraction of available memory to plan against.
	// Must be in (0, 1).
	SafetyMargin float64

	// BaseOverheadBytes is memory consumed regardless of worker count.
	BaseOverheadBytes int64

	// PerWorkerBytes is memory consumed by each additional worker.
	PerWorkerBytes int64

	// MinRAMMB raises the minimal-viable threshold. Snapshots below it
	// are flagged not viable regardless of the tier table.
	MinRAMMB int64

	// LowMemoryMode forces the minimal tier regardless of measurement.
	LowMemoryMode bool

	// WorkerCountOverride pins the worker count when > 0. The memory
	// invariant still caps it.
	WorkerCountOverride int

	// WorkerTimeoutOverride pins the request timeout in seconds when > 0.
	WorkerTimeoutOverride int
}

// Default returns the standard policy.
func Default() Policy {
	return Policy{
		SafetyMargin:      DefaultSafetyMargin,
		BaseOverheadBytes: DefaultBaseOverheadBytes,
		PerWorkerBytes:    DefaultPerWorkerBytes,
		MinRAMMB:          DefaultMinRAMMB,
	}
}

// normalized fills zero-valued fields with defaults so a partially
// constructed Policy behaves sensibly.
func (p Policy) normalized() Policy {
	d := Default()
	if p.SafetyMargin <= 0 || p.SafetyMargin >= 1 {
		p.SafetyMargin = d.SafetyMargin
	}
	if p.BaseOverheadBytes <= 0 {
		p.BaseOverheadBytes = d.BaseOverheadBytes
	}
	if p.PerWorkerBytes <= 0 {
		p.PerWorkerBytes = d.PerWorkerBytes
	}
	if p.MinRAMMB < d.MinRAMMB {
		p.MinRAMMB = d.MinRAMMB
	}
	return p
}

// Tier is a bucket of available memory with an associated viability
// classification and derived configuration.
type Tier int

// Tiers from least to most capable.
const (
	TierNotViable Tier = iota
	TierMinimal
	TierFunctional
	TierRecommended
	TierOptimal
)

// String returns the human-readable tier name.
func (t Tier) String() string {
	switch t {
	case TierNotViable:
		return "not-viable"
	case TierMinimal:
		return "minimal"
	case TierFunctional:
		return "functional"
	case TierRecommended:
		return "recommended"
	case TierOptimal:
		return "optimal"
	default:
		return "unknown"
	}
}

// Tier boundaries in whole megabytes of available memory. Comparisons use
// floored megabytes, so a value a few bytes under a boundary lands in the
// lower, more conservative tier.
const (
	minimalFloorMB     = 384
	functionalFloorMB  = 768
	recommendedFloorMB = 1024
	optimalFloorMB     = 2048
)

// tierFor buckets available memory. minRAMMB raises the not-viable cutoff.
func tierFor(availMB, minRAMMB int64) Tier {
	if availMB < minimalFloorMB || availMB < minRAMMB {
		return TierNotViable
	}
	switch {
	case availMB < functionalFloorMB:
		return TierMinimal
	case availMB < recommendedFloorMB:
		return TierFunctional
	case availMB < optimalFloorMB:
		return TierRecommended
	default:
		return TierOptimal
	}
}

// Config is the derived worker configuration handed to the external process
// supervisor. It is an immutable value.
type Config struct {
	// Workers is the process worker count, always >= 1.
	Workers int `json:"worker_count" yaml:"worker_count"`

	// RequestTimeout is the per-request timeout in seconds.
	RequestTimeout int `json:"request_timeout_seconds" yaml:"request_timeout_seconds"`

	// PoolSize is the database connection pool size.
	PoolSize int `json:"connection_pool_size" yaml:"connection_pool_size"`

	// RecycleAfter retires a worker after serving this many requests.
	// Zero disables recycling.
	RecycleAfter int `json:"recycle_after_requests" yaml:"recycle_after_requests"`

	// Tier is the memory tier the snapshot was bucketed into.
	Tier Tier `json:"-" yaml:"-"`

	// Viable is false when the snapshot sits below the minimal-viable
	// threshold or the memory invariant had to clamp the worker count.
	// Not-viable configurations are flagged, never silently accepted.
	Viable bool `json:"-" yaml:"-"`
}
