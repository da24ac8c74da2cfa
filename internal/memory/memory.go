package memory

import (
	"context"
	"runtime"
	"runtime/debug"
	"sync"
	"time"

	"lorairo/internal/logging"
	"lorairo/internal/metrics"
)

// Config holds the backpressure thresholds.
type Config struct {
	// LimitBytes is the limit usage is measured against. 0 uses the Go
	// memory limit, if any.
	LimitBytes int64
	// Decoding resumes once usage falls below HighWaterMark...
	HighWaterMark float64
	// ...after pausing at CriticalWaterMark.
	CriticalWaterMark float64
	CheckInterval     time.Duration
}

// DefaultConfig returns the thresholds used by the server and the CLI.
func DefaultConfig() Config {
	return Config{
		HighWaterMark:     0.7,
		CriticalWaterMark: 0.85,
		CheckInterval:     2 * time.Second,
	}
}

// Monitor samples heap usage and pauses image decoding while it is above
// the critical mark. Without a limit it never pauses.
type Monitor struct {
	config Config
	limit  int64
	alloc  func() uint64

	mu      sync.Mutex
	started bool
	paused  bool
	resume  chan struct{}
	current uint64

	stopOnce sync.Once
	stop     chan struct{}
	done     chan struct{}
}

// NewMonitor returns a stopped Monitor.
func NewMonitor(config Config) *Monitor {
	limit := config.LimitBytes
	if limit == 0 {
		if l := debug.SetMemoryLimit(-1); l > 0 && l < 1<<62 {
			limit = l
		}
	}
	return &Monitor{
		config: config,
		limit:  limit,
		alloc:  heapAlloc,
		resume: make(chan struct{}),
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}
}

func heapAlloc() uint64 {
	var stats runtime.MemStats
	runtime.ReadMemStats(&stats)
	return stats.Alloc
}

// Limit returns the limit usage is measured against; 0 means none.
func (m *Monitor) Limit() int64 { return m.limit }

// Start begins sampling. It does nothing when there is no limit.
func (m *Monitor) Start() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.limit == 0 || m.started {
		return
	}
	m.started = true
	logging.Debug("Memory monitor started with limit %s", formatBytes(m.limit))
	go m.loop()
}

// Stop ends sampling and releases every waiter. Safe to call more than
// once.
func (m *Monitor) Stop() {
	m.stopOnce.Do(func() {
		close(m.stop)
		m.mu.Lock()
		started := m.started
		m.mu.Unlock()
		if started {
			<-m.done
		}

		m.mu.Lock()
		if m.paused {
			m.paused = false
			close(m.resume)
			metrics.MemoryPaused.Set(0)
		}
		m.mu.Unlock()
	})
}

func (m *Monitor) loop() {
	defer close(m.done)
	ticker := time.NewTicker(m.config.CheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.observe(m.alloc())
		case <-m.stop:
			return
		}
	}
}

// observe updates the paused state for one sample.
func (m *Monitor) observe(alloc uint64) {
	usage := float64(alloc) / float64(m.limit)
	metrics.MemoryUsageRatio.Set(usage)

	m.mu.Lock()
	defer m.mu.Unlock()
	m.current = alloc

	switch {
	case !m.paused && usage >= m.config.CriticalWaterMark:
		logging.Warn("Memory critical (%.0f%% of limit), pausing image decoding", usage*100)
		m.paused = true
		metrics.MemoryPaused.Set(1)
		metrics.MemoryPausesTotal.Inc()
		go runtime.GC()
	case m.paused && usage < m.config.HighWaterMark:
		logging.Info("Memory recovered (%.0f%% of limit), resuming image decoding", usage*100)
		m.paused = false
		metrics.MemoryPaused.Set(0)
		close(m.resume)
		m.resume = make(chan struct{})
	}
}

// Wait blocks while decoding is paused. It returns ctx.Err() if ctx ends
// first and nil once decoding may proceed or the monitor is stopped.
func (m *Monitor) Wait(ctx context.Context) error {
	m.mu.Lock()
	if !m.paused {
		m.mu.Unlock()
		return ctx.Err()
	}
	resume := m.resume
	m.mu.Unlock()

	select {
	case <-resume:
		return nil
	case <-m.stop:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Paused reports whether decoding is currently paused.
func (m *Monitor) Paused() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.paused
}

// Usage returns the last sampled heap usage as a fraction of the limit.
func (m *Monitor) Usage() float64 {
	if m.limit == 0 {
		return 0
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return float64(m.current) / float64(m.limit)
}
