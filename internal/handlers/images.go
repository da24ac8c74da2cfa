package handlers

import (
	"net/http"
	"strconv"

	"lorairo/internal/database"
	"lorairo/internal/logging"
	"lorairo/internal/media"
)

// GetImage returns an image with its renditions and all annotations.
func (h *Handlers) GetImage(w http.ResponseWriter, r *http.Request) {
	id, ok := imageID(w, r)
	if !ok {
		return
	}
	img, err := h.db.GetImageAnnotations(r.Context(), id)
	if err != nil {
		writeServiceError(w, "Failed to load image", err)
		return
	}
	writeJSONResponse(w, http.StatusOK, img)
}

// DeleteImage removes an image from the library. The files stay on disk.
func (h *Handlers) DeleteImage(w http.ResponseWriter, r *http.Request) {
	id, ok := imageID(w, r)
	if !ok {
		return
	}
	if err := h.db.DeleteImage(r.Context(), id); err != nil {
		writeServiceError(w, "Failed to delete image", err)
		return
	}
	logging.Info("Deleted image %d", id)
	w.WriteHeader(http.StatusNoContent)
}

// GetThumbnail serves the JPEG thumbnail of an image. A thumbnail already on
// a cached result page is served from memory. With ?resolution=N the
// rendition of that resolution is used when one exists.
func (h *Handlers) GetThumbnail(w http.ResponseWriter, r *http.Request) {
	id, ok := imageID(w, r)
	if !ok {
		return
	}

	resolution := 0
	if v := r.URL.Query().Get("resolution"); v != "" {
		var err error
		if resolution, err = strconv.Atoi(v); err != nil || resolution < 0 {
			writeJSONError(w, "Invalid resolution", http.StatusBadRequest)
			return
		}
	}

	if resolution == 0 {
		if thumb, ok := h.navigator.Thumbnail(id); ok && len(thumb.Data) > 0 {
			w.Header().Set("X-Thumbnail-Source", "page-cache")
			writeThumbnail(w, thumb.Data)
			return
		}
	}

	img, err := h.db.GetImage(r.Context(), id)
	if err != nil {
		writeServiceError(w, "Failed to load image", err)
		return
	}

	stored, processed := img.StoredImagePath, false
	if resolution > 0 {
		p, err := h.db.GetProcessedImage(r.Context(), id, resolution)
		if err != nil {
			writeServiceError(w, "Failed to load rendition", err)
			return
		}
		if p != nil {
			stored, processed = p.StoredImagePath, true
		}
	}

	path, err := h.project.ResolveStoredPath(stored)
	if err != nil {
		writeServiceError(w, "Failed to resolve image path", err)
		return
	}
	thumb, err := h.renderer.Render(path, processed)
	if err != nil {
		logging.Warn("Thumbnail for image %d failed: %v", id, err)
		writeJSONError(w, "Thumbnail generation failed", http.StatusUnprocessableEntity)
		return
	}
	w.Header().Set("X-Thumbnail-Source", "render")
	writeThumbnail(w, thumb.Data)
}

func writeThumbnail(w http.ResponseWriter, data []byte) {
	w.Header().Set("Content-Type", media.ThumbnailContentType)
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.Header().Set("Cache-Control", "private, max-age=60")
	if _, err := w.Write(data); err != nil {
		logging.Debug("failed to write thumbnail: %v", err)
	}
}

// GetStats returns library statistics.
func (h *Handlers) GetStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.db.LibraryStats(r.Context())
	if err != nil {
		writeServiceError(w, "Failed to collect statistics", err)
		return
	}
	writeJSONResponse(w, http.StatusOK, stats)
}

// ListModels returns the registered models, optionally filtered by
// ?type=tagger|captioner|scorer|rating.
func (h *Handlers) ListModels(w http.ResponseWriter, r *http.Request) {
	models, err := h.db.ListModels(r.Context(), r.URL.Query().Get("type"))
	if err != nil {
		writeServiceError(w, "Failed to list models", err)
		return
	}
	if models == nil {
		models = []database.Model{}
	}
	writeJSONResponse(w, http.StatusOK, models)
}
