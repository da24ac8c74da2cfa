package metrics

import (
	"context"
	"time"

	"lorairo/internal/logging"
)

// StatsProvider interface for collecting stats
type StatsProvider interface {
	LibraryStats(ctx context.Context) (Stats, error)
}

// Stats holds the current library statistics
type Stats struct {
	TotalImages   int64 `json:"totalImages" yaml:"total_images"`
	DistinctTags  int64 `json:"distinctTags" yaml:"distinct_tags"`
	TotalModels   int64 `json:"totalModels" yaml:"total_models"`
	UnratedImages int64 `json:"unratedImages" yaml:"unrated_images"`
}

// Collector periodically collects and updates metrics
type Collector struct {
	statsProvider StatsProvider
	interval      time.Duration
	stopChan      chan struct{}
	done          chan struct{}
}

// NewCollector creates a new metrics collector
func NewCollector(provider StatsProvider, interval time.Duration) *Collector {
	return &Collector{
		statsProvider: provider,
		interval:      interval,
		stopChan:      make(chan struct{}),
		done:          make(chan struct{}),
	}
}

// Start begins the metrics collection loop
func (c *Collector) Start() {
	go c.collectLoop()
}

// Stop stops the metrics collection and waits for the loop to exit.
func (c *Collector) Stop() {
	close(c.stopChan)
	<-c.done
}

func (c *Collector) collectLoop() {
	defer close(c.done)

	c.collect()

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.collect()
		case <-c.stopChan:
			return
		}
	}
}

func (c *Collector) collect() {
	if c.statsProvider == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	stats, err := c.statsProvider.LibraryStats(ctx)
	if err != nil {
		logging.Warn("Metrics collection failed: %v", err)
		return
	}

	LibraryImagesTotal.Set(float64(stats.TotalImages))
	LibraryTagsTotal.Set(float64(stats.DistinctTags))
	LibraryModelsTotal.Set(float64(stats.TotalModels))
	LibraryUnratedTotal.Set(float64(stats.UnratedImages))

	logging.Debug("Metrics collected: images=%d, tags=%d, models=%d, unrated=%d",
		stats.TotalImages, stats.DistinctTags, stats.TotalModels, stats.UnratedImages)
}
