package metrics

// InitializeMetrics pre-populates all expected label combinations so that
// every metric is exported from the first Prometheus scrape.
// Call this once at startup after metric registration.
func InitializeMetrics() {
	for _, outcome := range []string{"hit", "miss", "disabled"} {
		SearchRequestsTotal.WithLabelValues(outcome)
	}

	for _, status := range []string{"loaded", "cached", "error", "rejected"} {
		PageLoadsTotal.WithLabelValues(status)
	}

	for _, source := range []string{"processed", "original"} {
		ThumbnailRenderDuration.WithLabelValues(source)
	}

	for _, outcome := range []string{"found", "found_ambiguous", "created",
		"raced_found", "raced_missing", "failed", "invalid"} {
		TagRegistrationsTotal.WithLabelValues(outcome)
	}

	for _, status := range []string{"saved", "model_error", "image_missing", "failed"} {
		AnnotationResultsTotal.WithLabelValues(status)
	}

	for _, status := range []string{"imported", "duplicate", "skipped", "error"} {
		ImportFilesTotal.WithLabelValues(status)
	}

	for _, status := range []string{"exported", "error"} {
		ExportFilesTotal.WithLabelValues(status)
	}

	for _, op := range []string{"open", "stat"} {
		FilesystemStaleErrors.WithLabelValues(op)
		FilesystemRetryOutcomes.WithLabelValues(op, "recovered")
		FilesystemRetryOutcomes.WithLabelValues(op, "exhausted")
	}

	for _, op := range []string{"get_images_by_filter", "register_image", "get_image",
		"set_manual_rating", "save_annotations", "replace_manual_tags", "set_manual_score",
		"add_manual_caption", "add_processed_image", "delete_image", "get_or_create_model",
		"stats"} {
		DBQueryTotal.WithLabelValues(op, "success")
		DBQueryTotal.WithLabelValues(op, "error")
		DBQueryDuration.WithLabelValues(op)
	}
}
