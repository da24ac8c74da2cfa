// Package startup handles configuration loading and startup/shutdown logging.
//
// # Configuration
//
// [LoadConfig] reads lorairo.yaml from the working directory or
// $HOME/.config/lorairo, then applies LORAIRO_* environment overrides. Every
// key has a default, so running with neither a file nor environment works.
//
//   - project_dir: project root holding image_database.db and image_dataset/
//   - tag_db_path: shared tag dictionary SQLite file
//   - port: HTTP port (default 8080)
//   - metrics_enabled: expose /metrics (default true)
//   - log_level: debug, info, warn, error (default: from LOG_LEVEL)
//   - log_health_checks: include /health in the access log (default false)
//   - page_size: images per grid page (default 100)
//   - page_cache_max_pages: thumbnail pages kept in memory (default 5)
//   - thumbnail_size: thumbnail bounding box in pixels (default 256)
//   - processed_resolution: long edge of processed renditions (default 512)
//   - result_cache_ttl: lifetime of memoized search results (default 30s)
//   - thumbnail_workers: render goroutines, 0 derives from CPUs
//   - stats_interval: library metrics refresh period (default 1m)
//
// # Build Information
//
// Version, Commit and BuildTime are injected via -ldflags and exposed through
// [GetBuildInfo].
//
// # Lifecycle Logging
//
// [LogDatabaseInit], [LogHTTPRoutes], [LogServerStarted],
// [LogShutdownInitiated], [LogShutdownStep] and [LogShutdownComplete] print
// the banner-style sections seen on server start and stop.
package startup
