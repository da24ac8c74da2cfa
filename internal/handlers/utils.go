package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"lorairo/internal/database"
	"lorairo/internal/logging"
	"lorairo/internal/pagination"
	"lorairo/internal/project"
	"lorairo/internal/search"

	"github.com/gorilla/mux"
)

// maxBodyBytes caps JSON request bodies.
const maxBodyBytes = 8 << 20

// writeJSON encodes v as JSON and writes it to the response writer.
// Any encoding or write errors are logged since we typically cannot
// recover from them in an HTTP handler context.
func writeJSON(w http.ResponseWriter, v interface{}) {
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.Error("failed to encode JSON response: %v", err)
	}
}

// writeJSONError writes an error response as JSON with the given status code.
func writeJSONError(w http.ResponseWriter, message string, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	writeJSON(w, map[string]string{"error": message})
}

// writeJSONStatus writes a simple status response as JSON.
func writeJSONStatus(w http.ResponseWriter, status string) {
	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, map[string]string{"status": status})
}

// writeJSONResponse writes v with a JSON content type.
func writeJSONResponse(w http.ResponseWriter, statusCode int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	writeJSON(w, v)
}

// statusFor maps service errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case database.IsValidationError(err),
		errors.Is(err, search.ErrInvalidSearchType),
		errors.Is(err, project.ErrAbsoluteStoredPath),
		errors.Is(err, project.ErrPathOutsideProject):
		return http.StatusBadRequest
	case errors.Is(err, database.ErrImageNotFound):
		return http.StatusNotFound
	case errors.Is(err, pagination.ErrLoadInProgress),
		errors.Is(err, pagination.ErrNoSearch):
		return http.StatusConflict
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// writeServiceError reports err with the status statusFor picks. Internal
// errors are logged and their details withheld from the client.
func writeServiceError(w http.ResponseWriter, what string, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		logging.Error("%s: %v", what, err)
		writeJSONError(w, what, status)
		return
	}
	writeJSONError(w, err.Error(), status)
}

// decodeJSON decodes a size-limited request body into v.
func decodeJSON(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		writeJSONError(w, "Invalid request body: "+err.Error(), http.StatusBadRequest)
		return false
	}
	return true
}

// imageID parses the {id} route variable.
func imageID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil || id <= 0 {
		writeJSONError(w, "Invalid image id", http.StatusBadRequest)
		return 0, false
	}
	return id, true
}
