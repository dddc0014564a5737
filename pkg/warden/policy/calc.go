package policy

import (
	"github.com/jamesainslie/warden/pkg/warden/probe"
)

// Calculate derives a worker configuration from a resource snapshot.
//
// The tier table supplies the target values:
//
//	< 384MB    1 worker, 180s, pool 2, recycle 100   (not viable, flagged)
//	384-767    1 worker, 120s, pool 3, recycle 250
//	768-1023   2 workers, 90s, pool 5, recycle 500
//	1024-2047  min(2*cores+1, affordable), 60s, pool 10, recycle 1000
//	>= 2048    min(2*cores+1, affordable), 30s, pool 20, recycling disabled
//
// The memory invariant base + workers*perWorker <= available*margin always
// wins when it would force a smaller count than the table. If it would force
// a count below 1, the count clamps to 1 and the result is flagged not
// viable regardless of the snapshot's memory figure.
func Calculate(snap probe.Snapshot, p Policy) Config {
	p = p.normalized()

	tier := tierFor(snap.AvailableMB(), p.MinRAMMB)
	if p.LowMemoryMode && tier > TierMinimal {
		tier = TierMinimal
	}

	cfg := tierTarget(tier, snap.CPUCores)
	viable := tier != TierNotViable

	// The invariant caps the table's target, never raises it.
	affordable := AffordableWorkers(snap.AvailableMemory, p)
	if cfg.Workers > affordable {
		cfg.Workers = affordable
	}

	if p.WorkerCountOverride > 0 {
		cfg.Workers = min(p.WorkerCountOverride, affordable)
	}
	if p.WorkerTimeoutOverride > 0 {
		cfg.RequestTimeout = p.WorkerTimeoutOverride
	}

	if cfg.Workers < 1 {
		cfg.Workers = 1
		viable = false
		tier = TierNotViable
	}

	cfg.Tier = tier
	cfg.Viable = viable
	return cfg
}

// tierTarget returns the tier table row before the invariant is applied.
func tierTarget(tier Tier, cores int) Config {
	switch tier {
	case TierNotViable:
		return Config{Workers: 1, RequestTimeout: 180, PoolSize: 2, RecycleAfter: 100}
	case TierMinimal:
		return Config{Workers: 1, RequestTimeout: 120, PoolSize: 3, RecycleAfter: 250}
	case TierFunctional:
		return Config{Workers: 2, RequestTimeout: 90, PoolSize: 5, RecycleAfter: 500}
	case TierRecommended:
		return Config{Workers: 2*cores + 1, RequestTimeout: 60, PoolSize: 10, RecycleAfter: 1000}
	default: // TierOptimal
		return Config{Workers: 2*cores + 1, RequestTimeout: 30, PoolSize: 20, RecycleAfter: 0}
	}
}

// AffordableWorkers returns the largest worker count satisfying the memory
// invariant for the given available memory. May be zero or negative when not
// even one worker fits the budget.
func AffordableWorkers(availableBytes int64, p Policy) int {
	p = p.normalized()
	budget := int64(float64(availableBytes) * p.SafetyMargin)
	if budget <= p.BaseOverheadBytes {
		return 0
	}
	return int((budget - p.BaseOverheadBytes) / p.PerWorkerBytes)
}

// EstimatedMemory returns the memory the configuration plans to consume.
func EstimatedMemory(workers int, p Policy) int64 {
	p = p.normalized()
	return p.BaseOverheadBytes + int64(workers)*p.PerWorkerBytes
}

// Fits reports whether the configuration's estimated memory stays within the
// snapshot's safety-margin budget.
func Fits(cfg Config, snap probe.Snapshot, p Policy) bool {
	p = p.normalized()
	budget := int64(float64(snap.AvailableMemory) * p.SafetyMargin)
	return EstimatedMemory(cfg.Workers, p) <= budget
}
