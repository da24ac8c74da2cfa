package handlers

import (
	"context"
	"net/http"
	"strconv"

	"lorairo/internal/pagination"
	"lorairo/internal/search"

	"github.com/gorilla/mux"
)

// pageResponse is a loaded page together with the navigation state after
// the load.
type pageResponse struct {
	pagination.Page
	State pagination.State `json:"state"`
}

// stateResponse adds the button enablement to the navigation state.
type stateResponse struct {
	pagination.State
	CanPrevious bool `json:"canPrevious"`
	CanNext     bool `json:"canNext"`
}

func newStateResponse(s pagination.State) stateResponse {
	return stateResponse{State: s, CanPrevious: s.CanPrevious(), CanNext: s.CanNext()}
}

// StartPaging replaces the active search of the shared navigator and starts
// loading page 1 in the background.
func (h *Handlers) StartPaging(w http.ResponseWriter, r *http.Request) {
	var conds search.Conditions
	if !decodeJSON(w, r, &conds) {
		return
	}
	if err := conds.Validate(); err != nil {
		writeServiceError(w, "Invalid search", err)
		return
	}
	filter := conds.ToDBFilterArgs()
	if err := filter.Validate(); err != nil {
		writeServiceError(w, "Invalid search", err)
		return
	}
	// The load outlives the request.
	if err := h.navigator.SetSearch(context.WithoutCancel(r.Context()), conds); err != nil {
		writeServiceError(w, "Failed to start search", err)
		return
	}
	writeJSONResponse(w, http.StatusAccepted, newStateResponse(h.navigator.State()))
}

// PageState returns the navigation state.
func (h *Handlers) PageState(w http.ResponseWriter, r *http.Request) {
	writeJSONResponse(w, http.StatusOK, newStateResponse(h.navigator.State()))
}

// GetPage loads a page of the active search and waits for it. Thumbnail
// bytes are fetched separately from the thumbnail endpoint.
func (h *Handlers) GetPage(w http.ResponseWriter, r *http.Request) {
	n, err := strconv.Atoi(mux.Vars(r)["page"])
	if err != nil {
		writeJSONError(w, "Invalid page number", http.StatusBadRequest)
		return
	}
	// The request context only bounds the wait; a client leaving does not
	// cancel the shared load.
	page, err := h.navigator.LoadPage(r.Context(), n)
	if err != nil {
		writeServiceError(w, "Failed to load page", err)
		return
	}
	writeJSONResponse(w, http.StatusOK, pageResponse{Page: page, State: h.navigator.State()})
}

// Navigate moves the navigator: first, previous, next or last. On a
// boundary the request is accepted and nothing changes.
func (h *Handlers) Navigate(w http.ResponseWriter, r *http.Request) {
	var move func(context.Context) error
	switch mux.Vars(r)["action"] {
	case "first":
		move = h.navigator.First
	case "previous":
		move = h.navigator.Previous
	case "next":
		move = h.navigator.Next
	case "last":
		move = h.navigator.Last
	default:
		writeJSONError(w, "Unknown navigation action", http.StatusNotFound)
		return
	}
	if err := move(context.WithoutCancel(r.Context())); err != nil {
		writeServiceError(w, "Navigation failed", err)
		return
	}
	writeJSONResponse(w, http.StatusAccepted, newStateResponse(h.navigator.State()))
}
