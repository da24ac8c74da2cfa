package workers

import (
	"runtime"
	"sync/atomic"
)

// override holds a configured worker count. Zero means "derive from CPUs".
var override atomic.Int64

// SetOverride pins the worker count returned by Count to n (still capped by
// each caller's limit). n <= 0 restores CPU-derived counts.
func SetOverride(n int) {
	if n < 0 {
		n = 0
	}
	override.Store(int64(n))
}

// Override reports the configured worker count, or 0 when none is set.
func Override() int {
	return int(override.Load())
}

// Count returns the number of workers for a given task type.
// It respects container CPU limits via GOMAXPROCS.
//
// The multiplier adjusts for task characteristics:
//   - 1.0 for CPU-bound tasks (thumbnail rendering, hashing)
//   - 2.0 for I/O-bound tasks (copying files, directory walks)
//   - 1.5 for mixed tasks (import: read, hash, resize, write)
//
// The limit parameter caps the worker count. Use 0 for no limit.
func Count(multiplier float64, limit int) int {
	if count := Override(); count > 0 {
		if limit > 0 && count > limit {
			return limit
		}
		return count
	}

	available := runtime.GOMAXPROCS(0)

	workers := int(float64(available) * multiplier)

	if workers < 1 {
		workers = 1
	}
	if limit > 0 && workers > limit {
		workers = limit
	}

	return workers
}

// ForCPU returns worker count for CPU-bound tasks (1 per CPU).
func ForCPU(limit int) int {
	return Count(1.0, limit)
}

// ForIO returns worker count for I/O-bound tasks (2 per CPU).
func ForIO(limit int) int {
	return Count(2.0, limit)
}

// ForMixed returns worker count for mixed tasks (1.5 per CPU).
func ForMixed(limit int) int {
	return Count(1.5, limit)
}
