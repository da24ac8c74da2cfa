// Package metrics provides Prometheus instrumentation for LoRAIro.
//
// All metrics are prefixed with "lorairo_" and registered on the default
// registry through promauto, so importing the package is enough to expose
// them on /metrics.
//
// # Metric Categories
//
// HTTP: request counts, durations and in-flight gauge, fed by the
// middleware package.
//
// Database: query counts and durations per operation, recorded by the
// database package around every public method.
//
// Search: searches by result cache outcome, validation rejections and the
// distribution of total match counts.
//
// Page cache and pagination: LRU hits, misses and evictions, cached page
// count, and page loads by status.
//
// Annotation: tag dictionary resolutions by outcome and per-model results
// written back to the project database.
//
// Library: gauges refreshed periodically by a Collector from a
// StatsProvider (normally the project database).
//
// # Usage
//
//	metrics.InitializeMetrics()
//	c := metrics.NewCollector(db, time.Minute)
//	c.Start()
//	defer c.Stop()
package metrics
