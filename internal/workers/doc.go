/*
Package workers sizes worker pools from the CPUs actually available to the
process.

Go sets GOMAXPROCS from the container CPU limit, while runtime.NumCPU still
reports the host. Every helper here reads GOMAXPROCS so that thumbnail page
rendering and the importer respect cgroup limits.

# Usage

	// Thumbnail rendering for one page, capped at 8 goroutines
	g.SetLimit(workers.ForCPU(8))

	// Importer: read, hash, resize and copy
	n := workers.ForMixed(12)

	// Arbitrary ratio
	n := workers.Count(3.0, 24)

# Override

The thumbnail_workers configuration key (LORAIRO_THUMBNAIL_WORKERS) is applied
at startup through SetOverride. A positive override replaces the CPU-derived
count for every helper but is still capped by the caller's limit.
*/
package workers
