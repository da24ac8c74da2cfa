package metrics

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

type mockStatsProvider struct {
	mu    sync.Mutex
	stats Stats
	err   error
	calls int
}

func (m *mockStatsProvider) LibraryStats(_ context.Context) (Stats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	return m.stats, m.err
}

func (m *mockStatsProvider) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// Collector tests share the global library gauges, so none run in parallel.

func TestCollectorUpdatesGauges(t *testing.T) {
	provider := &mockStatsProvider{stats: Stats{
		TotalImages:   120,
		DistinctTags:  45,
		TotalModels:   3,
		UnratedImages: 7,
	}}

	c := NewCollector(provider, time.Hour)
	c.collect()

	assert.InDelta(t, 120, testutil.ToFloat64(LibraryImagesTotal), 0.0001)
	assert.InDelta(t, 45, testutil.ToFloat64(LibraryTagsTotal), 0.0001)
	assert.InDelta(t, 3, testutil.ToFloat64(LibraryModelsTotal), 0.0001)
	assert.InDelta(t, 7, testutil.ToFloat64(LibraryUnratedTotal), 0.0001)
}

func TestCollectorKeepsGaugesOnError(t *testing.T) {
	LibraryImagesTotal.Set(11)

	provider := &mockStatsProvider{err: errors.New("database is locked")}
	c := NewCollector(provider, time.Hour)
	c.collect()

	assert.InDelta(t, 11, testutil.ToFloat64(LibraryImagesTotal), 0.0001)
	assert.Equal(t, 1, provider.callCount())
}

func TestCollectorNilProvider(t *testing.T) {
	c := NewCollector(nil, time.Hour)
	assert.NotPanics(t, c.collect)
}

func TestCollectorStartStop(t *testing.T) {
	provider := &mockStatsProvider{stats: Stats{TotalImages: 1}}
	c := NewCollector(provider, 10*time.Millisecond)
	c.Start()

	assert.Eventually(t, func() bool { return provider.callCount() >= 2 },
		time.Second, 5*time.Millisecond)

	c.Stop()
	n := provider.callCount()
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, n, provider.callCount(), "collector kept running after Stop")
}
