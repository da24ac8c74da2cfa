package handlers

import (
	"net/http"

	"lorairo/internal/annotation"
)

type tagsRequest struct {
	Tags []string `json:"tags"`
}

type scoreRequest struct {
	// Score is on the UI scale [0, 1000].
	Score *int `json:"score"`
}

type ratingRequest struct {
	// Rating clears the manual rating when null.
	Rating *string `json:"rating"`
}

type captionRequest struct {
	Caption string `json:"caption"`
}

// SetTags replaces the manually edited tags of an image.
func (h *Handlers) SetTags(w http.ResponseWriter, r *http.Request) {
	id, ok := imageID(w, r)
	if !ok {
		return
	}
	var req tagsRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	skipped, err := h.db.ReplaceManualTags(r.Context(), id, req.Tags, h.resolver)
	if err != nil {
		writeServiceError(w, "Failed to save tags", err)
		return
	}
	writeJSONResponse(w, http.StatusOK, map[string]int{"skipped": skipped})
}

// SetScore stores a manual score.
func (h *Handlers) SetScore(w http.ResponseWriter, r *http.Request) {
	id, ok := imageID(w, r)
	if !ok {
		return
	}
	var req scoreRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Score == nil {
		writeJSONError(w, "score is required", http.StatusBadRequest)
		return
	}
	if err := h.db.SetManualScore(r.Context(), id, *req.Score); err != nil {
		writeServiceError(w, "Failed to save score", err)
		return
	}
	writeJSONStatus(w, "ok")
}

// SetRating sets or clears the manual rating.
func (h *Handlers) SetRating(w http.ResponseWriter, r *http.Request) {
	id, ok := imageID(w, r)
	if !ok {
		return
	}
	var req ratingRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := h.db.SetManualRating(r.Context(), id, req.Rating); err != nil {
		writeServiceError(w, "Failed to save rating", err)
		return
	}
	writeJSONStatus(w, "ok")
}

// AddCaption attaches a manual caption.
func (h *Handlers) AddCaption(w http.ResponseWriter, r *http.Request) {
	id, ok := imageID(w, r)
	if !ok {
		return
	}
	var req captionRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := h.db.AddManualCaption(r.Context(), id, req.Caption); err != nil {
		writeServiceError(w, "Failed to save caption", err)
		return
	}
	writeJSONResponse(w, http.StatusCreated, map[string]string{"status": "created"})
}

// annotationReport is the JSON view of annotation.Report. Save failures
// are part of ModelErrors.
type annotationReport struct {
	Images      int                          `json:"images"`
	Missing     []string                     `json:"missing,omitempty"`
	ModelErrors map[string]map[string]string `json:"modelErrors,omitempty"`
	Tags        int                          `json:"tags"`
	TagsSkipped int                          `json:"tagsSkipped"`
	Captions    int                          `json:"captions"`
	Scores      int                          `json:"scores"`
	Ratings     int                          `json:"ratings"`
}

// ApplyAnnotations stores a posted batch of annotation results, keyed by
// phash and then model name.
func (h *Handlers) ApplyAnnotations(w http.ResponseWriter, r *http.Request) {
	var results annotation.PHashAnnotationResults
	if !decodeJSON(w, r, &results) {
		return
	}
	report, err := h.annotations.Apply(r.Context(), results)
	if err != nil {
		writeServiceError(w, "Failed to apply annotations", err)
		return
	}
	writeJSONResponse(w, http.StatusOK, toAnnotationReport(report))
}

func toAnnotationReport(r annotation.Report) annotationReport {
	return annotationReport{
		Images:      r.Images,
		Missing:     r.Missing,
		ModelErrors: r.ModelErrors,
		Tags:        r.Saved.TagsSaved,
		TagsSkipped: r.Saved.TagsSkipped,
		Captions:    r.Saved.CaptionsSaved,
		Scores:      r.Saved.ScoresSaved,
		Ratings:     r.Saved.RatingsSaved,
	}
}
