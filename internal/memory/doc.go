// Package memory keeps image decoding inside the process memory budget.
//
// [ConfigureFromEnv] sets the Go memory limit from GOMEMLIMIT or from
// LORAIRO_MEMORY_LIMIT (the container limit in bytes, typically from the
// Kubernetes Downward API) scaled by LORAIRO_MEMORY_RATIO:
//
//	env:
//	  - name: LORAIRO_MEMORY_LIMIT
//	    valueFrom:
//	      resourceFieldRef:
//	        resource: limits.memory
//
// A [Monitor] samples the heap against that limit. Once usage reaches the
// critical mark it pauses decoding and forces a GC; it resumes when usage
// drops below the high water mark. The importer calls [Monitor.Wait]
// before decoding each file, so a large import slows down instead of
// getting OOM-killed.
//
// Without any limit the monitor never pauses and Wait returns at once.
package memory
