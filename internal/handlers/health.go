package handlers

import (
	"context"
	"net/http"
	"runtime"
	"time"

	"lorairo/internal/logging"
	"lorairo/internal/startup"
)

const (
	statusHealthy  = "healthy"
	statusDegraded = "degraded"
)

// healthCheckTimeout bounds the database probe of a health check.
const healthCheckTimeout = 2 * time.Second

// HealthResponse contains the health check response
type HealthResponse struct {
	Status  string `json:"status"`
	Ready   bool   `json:"ready"`
	Version string `json:"version"`
	Uptime  string `json:"uptime"`
	Project string `json:"project"`
	Error   string `json:"error,omitempty"`

	// Navigation
	CurrentPage int  `json:"currentPage"`
	TotalPages  int  `json:"totalPages"`
	Loading     bool `json:"loading"`

	// System info
	GoVersion    string `json:"goVersion"`
	NumCPU       int    `json:"numCpu"`
	NumGoroutine int    `json:"numGoroutine"`

	// Library summary
	TotalImages  int64 `json:"totalImages"`
	DistinctTags int64 `json:"distinctTags"`
}

// HealthCheck returns the health status of the service. It reports
// degraded with 503 when the project database does not answer.
func (h *Handlers) HealthCheck(w http.ResponseWriter, r *http.Request) {
	nav := h.navigator.State()
	response := HealthResponse{
		Status:       statusHealthy,
		Ready:        true,
		Version:      startup.Version,
		Uptime:       time.Since(h.startTime).Round(time.Second).String(),
		Project:      h.project.Name(),
		CurrentPage:  nav.CurrentPage,
		TotalPages:   nav.TotalPages,
		Loading:      nav.IsLoading,
		GoVersion:    runtime.Version(),
		NumCPU:       runtime.NumCPU(),
		NumGoroutine: runtime.NumGoroutine(),
	}

	ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
	defer cancel()
	stats, err := h.db.LibraryStats(ctx)
	if err != nil {
		logging.Warn("Health check database probe failed: %v", err)
		response.Status = statusDegraded
		response.Ready = false
		response.Error = "database unavailable"
	} else {
		response.TotalImages = stats.TotalImages
		response.DistinctTags = stats.DistinctTags
	}

	status := http.StatusOK
	if !response.Ready {
		status = http.StatusServiceUnavailable
	}
	writeJSONResponse(w, status, response)
}

// LivenessCheck is a simple liveness probe (always returns 200 if server is running)
func (h *Handlers) LivenessCheck(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)

	// For HEAD requests, only send headers (no body)
	if r.Method != http.MethodHead {
		writeJSON(w, map[string]string{
			"status": "alive",
		})
	}
}

// ReadinessCheck returns 200 only when the project is open and its
// database answers.
func (h *Handlers) ReadinessCheck(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
	defer cancel()

	if !h.project.IsOpen() {
		writeJSONResponse(w, http.StatusServiceUnavailable, map[string]string{"status": "not_ready"})
		return
	}
	if _, err := h.db.LibraryStats(ctx); err != nil {
		writeJSONResponse(w, http.StatusServiceUnavailable, map[string]string{"status": "not_ready"})
		return
	}
	writeJSONResponse(w, http.StatusOK, map[string]string{"status": "ready"})
}
