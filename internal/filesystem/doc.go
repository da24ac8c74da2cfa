/*
Package filesystem wraps the file operations used on dataset images with
retries for ESTALE (stale file handle).

A project directory on an NFS share can hand out stale handles when the
server side changes underneath an open client. Those errors are transient:
the same call usually succeeds a few milliseconds later. Every other error
is returned immediately.

	f, err := filesystem.Open(path)

Retries back off exponentially from InitialBackoff up to MaxBackoff. Each
stale handle is counted in lorairo_filesystem_stale_errors_total and the
final outcome of a retried call in lorairo_filesystem_retries_total.
*/
package filesystem
