package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"lorairo/internal/app"
	"lorairo/internal/handlers"
	"lorairo/internal/startup"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestHandlers(t *testing.T) *handlers.Handlers {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping router test in short mode")
	}
	dir := t.TempDir()
	c, err := app.New(context.Background(), &startup.Config{
		ProjectDir:        filepath.Join(dir, "main_dataset"),
		TagDBPath:         filepath.Join(dir, "tags.db"),
		PageSize:          10,
		PageCacheMaxPages: 2,
		ThumbnailSize:     64,
		ResultCacheTTL:    time.Second,
		StatsInterval:     time.Minute,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return handlers.New(c)
}

func TestSetupRouterRoutes(t *testing.T) {
	t.Parallel()
	router := setupRouter(setupTestHandlers(t), true)

	tests := []struct {
		method string
		path   string
		match  bool
	}{
		{"GET", "/health", true},
		{"HEAD", "/livez", true},
		{"GET", "/metrics", true},
		{"GET", "/api/images", true},
		{"POST", "/api/images/search", true},
		{"GET", "/api/images/12", true},
		{"DELETE", "/api/images/12", true},
		{"GET", "/api/images/abc", false},
		{"GET", "/api/images/12/thumbnail", true},
		{"PUT", "/api/images/12/tags", true},
		{"PUT", "/api/images/12/score", true},
		{"PUT", "/api/images/12/rating", true},
		{"POST", "/api/images/12/captions", true},
		{"POST", "/api/annotations", true},
		{"POST", "/api/pages", true},
		{"GET", "/api/pages/state", true},
		{"GET", "/api/pages/3", true},
		{"POST", "/api/pages/next", true},
		{"POST", "/api/pages/sideways", false},
		{"POST", "/api/tags/resolve", true},
		{"GET", "/api/tags/7", true},
	}

	for _, tt := range tests {
		req := httptest.NewRequest(tt.method, tt.path, http.NoBody)
		var m mux.RouteMatch
		assert.Equal(t, tt.match, router.Match(req, &m) && m.MatchErr == nil, "%s %s", tt.method, tt.path)
	}
}

func TestSetupRouterWithoutMetrics(t *testing.T) {
	t.Parallel()
	router := setupRouter(setupTestHandlers(t), false)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", http.NoBody))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestRouterServesHealth(t *testing.T) {
	t.Parallel()
	router := setupRouter(setupTestHandlers(t), false)

	for _, path := range []string{"/livez", "/readyz", "/health"} {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, http.NoBody))
		assert.Equal(t, http.StatusOK, w.Code, path)
		assert.Equal(t, "application/json", w.Header().Get("Content-Type"), path)
	}
}
