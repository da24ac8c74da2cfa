package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"lorairo/internal/tagdb"

	"github.com/gorilla/mux"
	"gorm.io/gorm"
)

// maxResolveTags limits the tags resolved by one request.
const maxResolveTags = 500

// ResolveTagsRequest is the body of POST /api/tags/resolve.
type ResolveTagsRequest struct {
	Tags []string `json:"tags"`
}

// ResolvedTag is the outcome of resolving one tag.
type ResolvedTag struct {
	Tag        string        `json:"tag"`
	Normalized string        `json:"normalized"`
	TagID      *int64        `json:"tagId,omitempty"`
	Outcome    tagdb.Outcome `json:"outcome"`
	Error      string        `json:"error,omitempty"`
}

// ResolveTags resolves free-text tags to dictionary ids, registering the
// ones the dictionary does not know yet. Individual failures are reported
// per tag; the request itself succeeds.
func (h *Handlers) ResolveTags(w http.ResponseWriter, r *http.Request) {
	var req ResolveTagsRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if len(req.Tags) == 0 {
		writeJSONError(w, "tags array is required", http.StatusBadRequest)
		return
	}
	if len(req.Tags) > maxResolveTags {
		writeJSONError(w, "too many tags", http.StatusRequestEntityTooLarge)
		return
	}

	out := make([]ResolvedTag, 0, len(req.Tags))
	for _, tag := range req.Tags {
		res := h.resolver.Resolve(r.Context(), tag)
		rt := ResolvedTag{Tag: tag, Normalized: tagdb.Normalize(tag), Outcome: res.Outcome}
		if res.OK() {
			id := res.TagID
			rt.TagID = &id
		}
		if res.Err != nil {
			rt.Error = res.Err.Error()
		}
		out = append(out, rt)
	}
	writeJSONResponse(w, http.StatusOK, out)
}

// GetTag returns one dictionary entry.
func (h *Handlers) GetTag(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil || id <= 0 {
		writeJSONError(w, "Invalid tag id", http.StatusBadRequest)
		return
	}
	rec, err := h.tags.Get(r.Context(), id)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		writeJSONError(w, "Tag not found", http.StatusNotFound)
		return
	}
	if err != nil {
		writeServiceError(w, "Failed to load tag", err)
		return
	}
	writeJSONResponse(w, http.StatusOK, rec)
}
