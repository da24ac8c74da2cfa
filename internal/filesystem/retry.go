// Package filesystem retries dataset file access that fails with a stale
// file handle, which happens when a project lives on an NFS share.
package filesystem

import (
	"errors"
	"os"
	"syscall"
	"time"

	"lorairo/internal/logging"
	"lorairo/internal/metrics"
)

// RetryConfig configures retries of stale file handle errors.
type RetryConfig struct {
	MaxRetries     int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

// DefaultRetryConfig returns the settings used for every dataset file.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:     3,
		InitialBackoff: 50 * time.Millisecond,
		MaxBackoff:     500 * time.Millisecond,
	}
}

// IsStale reports whether err is ESTALE.
func IsStale(err error) bool {
	var errno syscall.Errno
	return errors.As(err, &errno) && errno == syscall.ESTALE
}

// Retry calls fn until it succeeds, fails with anything but a stale file
// handle, or cfg.MaxRetries retries are used up. op labels logs and
// metrics.
func Retry[T any](op, path string, cfg RetryConfig, fn func() (T, error)) (T, error) {
	backoff := cfg.InitialBackoff
	for attempt := 0; ; attempt++ {
		v, err := fn()
		if err == nil {
			if attempt > 0 {
				logging.Info("%s of %s succeeded on retry %d", op, path, attempt)
				metrics.FilesystemRetryOutcomes.WithLabelValues(op, "recovered").Inc()
			}
			return v, nil
		}
		if !IsStale(err) {
			return v, err
		}

		metrics.FilesystemStaleErrors.WithLabelValues(op).Inc()
		if attempt >= cfg.MaxRetries {
			logging.Warn("%s of %s failed after %d retries: %v", op, path, cfg.MaxRetries, err)
			metrics.FilesystemRetryOutcomes.WithLabelValues(op, "exhausted").Inc()
			return v, err
		}

		logging.Debug("Stale file handle on %s of %s, retrying in %v (attempt %d/%d)",
			op, path, backoff, attempt+1, cfg.MaxRetries)
		time.Sleep(backoff)
		backoff = min(backoff*2, cfg.MaxBackoff)
	}
}

// Open is os.Open with stale handle retries.
func Open(path string) (*os.File, error) {
	return Retry("open", path, DefaultRetryConfig(), func() (*os.File, error) {
		return os.Open(path)
	})
}

// Stat is os.Stat with stale handle retries.
func Stat(path string) (os.FileInfo, error) {
	return Retry("stat", path, DefaultRetryConfig(), func() (os.FileInfo, error) {
		return os.Stat(path)
	})
}
