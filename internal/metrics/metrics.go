package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// HTTP metrics
var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lorairo_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "lorairo_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	HTTPRequestsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "lorairo_http_requests_in_flight",
			Help: "Number of HTTP requests currently being processed",
		},
	)
)

// Database metrics
var (
	DBQueryTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lorairo_db_queries_total",
			Help: "Total number of database queries",
		},
		[]string{"operation", "status"},
	)

	DBQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "lorairo_db_query_duration_seconds",
			Help:    "Database query duration in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		},
		[]string{"operation"},
	)

	DBConnectionsOpen = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "lorairo_db_connections_open",
			Help: "Number of open project database connections",
		},
	)
)

// Search metrics
var (
	SearchRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lorairo_search_requests_total",
			Help: "Total number of filtered image searches by result cache outcome",
		},
		[]string{"cache"}, // "hit", "miss", "disabled"
	)

	SearchValidationErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "lorairo_search_validation_errors_total",
			Help: "Total number of searches rejected before any query ran",
		},
	)

	SearchResultCount = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "lorairo_search_result_count",
			Help:    "Total matching images per executed search",
			Buckets: []float64{0, 1, 10, 50, 100, 500, 1000, 5000, 10000, 50000},
		},
	)
)

// Thumbnail page cache metrics
var (
	PageCacheHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "lorairo_page_cache_hits_total",
			Help: "Total number of thumbnail page cache hits",
		},
	)

	PageCacheMisses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "lorairo_page_cache_misses_total",
			Help: "Total number of thumbnail page cache misses",
		},
	)

	PageCacheEvictions = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "lorairo_page_cache_evictions_total",
			Help: "Total number of pages evicted as least recently used",
		},
	)

	PageCacheInvalidations = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "lorairo_page_cache_invalidations_total",
			Help: "Total number of times cached pages were dropped after a write",
		},
	)

	PageCachePages = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "lorairo_page_cache_pages",
			Help: "Number of pages currently held in the thumbnail page cache",
		},
	)
)

// Pagination metrics
var (
	PageLoadsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lorairo_page_loads_total",
			Help: "Total number of page load requests by status",
		},
		[]string{"status"}, // "loaded", "cached", "error", "rejected"
	)

	PageLoadDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "lorairo_page_load_duration_seconds",
			Help:    "Time to fetch and render a page of thumbnails",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
	)
)

// Thumbnail rendering metrics
var (
	ThumbnailRenderDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "lorairo_thumbnail_render_duration_seconds",
			Help:    "Thumbnail render duration in seconds",
			Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		},
		[]string{"source"}, // "processed", "original"
	)

	ThumbnailRenderErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "lorairo_thumbnail_render_errors_total",
			Help: "Total number of thumbnails that could not be rendered",
		},
	)
)

// Annotation metrics
var (
	TagRegistrationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lorairo_tag_registrations_total",
			Help: "Tag dictionary resolutions by outcome",
		},
		[]string{"outcome"},
	)

	AnnotationResultsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lorairo_annotation_results_total",
			Help: "Per-model annotation results written back, by status",
		},
		[]string{"status"}, // "saved", "model_error", "image_missing", "failed"
	)
)

// Import / export metrics
var (
	ImportFilesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lorairo_import_files_total",
			Help: "Files seen by the importer, by status",
		},
		[]string{"status"}, // "imported", "duplicate", "skipped", "error"
	)

	ExportFilesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lorairo_export_files_total",
			Help: "Images written by the exporter, by status",
		},
		[]string{"status"}, // "exported", "error"
	)
)

// Filesystem metrics
var (
	FilesystemStaleErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lorairo_filesystem_stale_errors_total",
			Help: "Stale file handle errors seen on dataset files",
		},
		[]string{"operation"},
	)

	FilesystemRetryOutcomes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lorairo_filesystem_retries_total",
			Help: "Filesystem operations that needed a retry, by outcome",
		},
		[]string{"operation", "outcome"}, // "recovered", "exhausted"
	)
)

// Memory metrics
var (
	MemoryUsageRatio = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "lorairo_memory_usage_ratio",
			Help: "Heap allocation as a fraction of the memory limit",
		},
	)

	MemoryPaused = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "lorairo_memory_paused",
			Help: "1 while image decoding is paused for memory pressure",
		},
	)

	MemoryPausesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "lorairo_memory_pauses_total",
			Help: "Number of times image decoding was paused for memory pressure",
		},
	)
)

// Library metrics
var (
	LibraryImagesTotal = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "lorairo_library_images_total",
			Help: "Number of non-deleted images in the open project",
		},
	)

	LibraryTagsTotal = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "lorairo_library_distinct_tags_total",
			Help: "Number of distinct tags attached to images",
		},
	)

	LibraryModelsTotal = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "lorairo_library_models_total",
			Help: "Number of registered annotation models",
		},
	)

	LibraryUnratedTotal = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "lorairo_library_unrated_images_total",
			Help: "Number of images with neither a manual nor an AI rating",
		},
	)
)

// Application info metric
var (
	AppInfo = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "lorairo_app_info",
			Help: "Application information",
		},
		[]string{"version", "commit", "go_version"},
	)
)

// SetAppInfo sets the application info metric
func SetAppInfo(version, commit, goVersion string) {
	AppInfo.WithLabelValues(version, commit, goVersion).Set(1)
}
