package memory

import (
	"math"
	"os"
	"runtime/debug"
	"strconv"

	"lorairo/internal/logging"
)

// DefaultMemoryRatio is the share of the container limit given to the Go
// heap. The rest covers decoder buffers, SQLite caches and stacks.
const DefaultMemoryRatio = 0.85

// LimitResult describes how the Go memory limit was configured.
type LimitResult struct {
	// Source is "GOMEMLIMIT", "LORAIRO_MEMORY_LIMIT" or "none".
	Source         string
	ContainerLimit int64
	GoMemLimit     int64
	Ratio          float64
}

// Configured reports whether a memory limit is in effect.
func (r LimitResult) Configured() bool { return r.GoMemLimit > 0 }

// ConfigureFromEnv sets the Go memory limit from the environment. Call it
// early in main, before large allocations.
//
//   - GOMEMLIMIT wins when set; the runtime has already applied it.
//   - LORAIRO_MEMORY_LIMIT is the container limit in bytes.
//   - LORAIRO_MEMORY_RATIO is the share of it for the heap (default 0.85).
func ConfigureFromEnv() LimitResult {
	return configure(os.Getenv, debug.SetMemoryLimit)
}

func configure(getenv func(string) string, setLimit func(int64) int64) LimitResult {
	if v := getenv("GOMEMLIMIT"); v != "" {
		res := LimitResult{Source: "GOMEMLIMIT"}
		if limit := setLimit(-1); limit > 0 && limit < math.MaxInt64 {
			res.GoMemLimit = limit
		}
		logging.Info("GOMEMLIMIT set via environment: %s", v)
		return res
	}

	raw := getenv("LORAIRO_MEMORY_LIMIT")
	if raw == "" {
		return LimitResult{Source: "none"}
	}
	containerLimit, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || containerLimit <= 0 {
		logging.Warn("Ignoring invalid LORAIRO_MEMORY_LIMIT %q", raw)
		return LimitResult{Source: "none"}
	}

	ratio := DefaultMemoryRatio
	if v := getenv("LORAIRO_MEMORY_RATIO"); v != "" {
		r, err := strconv.ParseFloat(v, 64)
		if err != nil || r <= 0 || r > 1 {
			logging.Warn("LORAIRO_MEMORY_RATIO %q must be in (0, 1], using %.2f", v, DefaultMemoryRatio)
		} else {
			ratio = r
		}
	}

	limit := int64(float64(containerLimit) * ratio)
	setLimit(limit)
	logging.Info("Configured GOMEMLIMIT: %s (%.0f%% of %s container limit)",
		formatBytes(limit), ratio*100, formatBytes(containerLimit))

	return LimitResult{
		Source:         "LORAIRO_MEMORY_LIMIT",
		ContainerLimit: containerLimit,
		GoMemLimit:     limit,
		Ratio:          ratio,
	}
}

func formatBytes(b int64) string {
	const unit = 1024
	if b < unit {
		return strconv.FormatInt(b, 10) + " B"
	}
	div, exp := int64(unit), 0
	for n := b / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return strconv.FormatFloat(float64(b)/float64(div), 'f', 1, 64) + " " + string("KMGTPE"[exp]) + "iB"
}
