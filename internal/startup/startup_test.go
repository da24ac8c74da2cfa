package startup

import (
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"lorairo/internal/workers"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// isolate points HOME and the working directory at empty temp dirs so no
// stray lorairo.yaml is picked up.
func isolate(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("HOME", dir)
	t.Chdir(dir)
	t.Cleanup(func() { workers.SetOverride(0) })
	return dir
}

func TestGetBuildInfo(t *testing.T) {
	info := GetBuildInfo()

	assert.NotEmpty(t, info.Version)
	assert.NotEmpty(t, info.OS)
	assert.NotEmpty(t, info.Arch)
	assert.Equal(t, GoVersion, info.GoVersion)
}

func TestReadConfigDefaults(t *testing.T) {
	dir := isolate(t)

	cfg, err := readConfig("")
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, 100, cfg.PageSize)
	assert.Equal(t, 5, cfg.PageCacheMaxPages)
	assert.Equal(t, 256, cfg.ThumbnailSize)
	assert.Equal(t, 512, cfg.ProcessedResolution)
	assert.Equal(t, 30*time.Second, cfg.ResultCacheTTL)
	assert.True(t, cfg.MetricsEnabled)
	assert.Empty(t, cfg.ConfigFile)

	wantProject := filepath.Join(dir, "lorairo_data", "main_dataset")
	assert.Equal(t, wantProject, cfg.ProjectDir)
	assert.Equal(t, filepath.Join(wantProject, "image_database.db"), cfg.DatabasePath)
	assert.Equal(t, filepath.Join(wantProject, "image_dataset"), cfg.DatasetDir)
}

func TestReadConfigEnvOverrides(t *testing.T) {
	dir := isolate(t)
	project := filepath.Join(dir, "proj")

	t.Setenv("LORAIRO_PROJECT_DIR", project)
	t.Setenv("LORAIRO_PAGE_SIZE", "25")
	t.Setenv("LORAIRO_RESULT_CACHE_TTL", "2m")
	t.Setenv("LORAIRO_METRICS_ENABLED", "false")
	t.Setenv("LORAIRO_THUMBNAIL_WORKERS", "3")

	cfg, err := readConfig("")
	require.NoError(t, err)

	assert.Equal(t, project, cfg.ProjectDir)
	assert.Equal(t, 25, cfg.PageSize)
	assert.Equal(t, 2*time.Minute, cfg.ResultCacheTTL)
	assert.False(t, cfg.MetricsEnabled)
	assert.Equal(t, 3, workers.Override())
}

func TestReadConfigFile(t *testing.T) {
	dir := isolate(t)

	content := "port: \"9191\"\npage_cache_max_pages: 12\nthumbnail_size: 128\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "lorairo.yaml"), []byte(content), 0o644))

	cfg, err := readConfig("")
	require.NoError(t, err)

	assert.Equal(t, "9191", cfg.Port)
	assert.Equal(t, 12, cfg.PageCacheMaxPages)
	assert.Equal(t, 128, cfg.ThumbnailSize)
	assert.Equal(t, 100, cfg.PageSize, "unset keys keep defaults")
	assert.NotEmpty(t, cfg.ConfigFile)
}

func TestReadConfigEnvBeatsFile(t *testing.T) {
	dir := isolate(t)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "lorairo.yaml"), []byte("page_size: 40\n"), 0o644))
	t.Setenv("LORAIRO_PAGE_SIZE", "60")

	cfg, err := readConfig("")
	require.NoError(t, err)
	assert.Equal(t, 60, cfg.PageSize)
}

func TestReadConfigExplicitFileMissing(t *testing.T) {
	dir := isolate(t)

	_, err := readConfig(filepath.Join(dir, "nope.yaml"))
	assert.Error(t, err)
}

func TestConfigValidate(t *testing.T) {
	valid := Config{
		ProjectDir:          "p",
		TagDBPath:           "t.db",
		Port:                "8080",
		PageSize:            100,
		PageCacheMaxPages:   5,
		ThumbnailSize:       256,
		ProcessedResolution: 512,
		ResultCacheTTL:      time.Second,
		StatsInterval:       time.Minute,
	}
	require.NoError(t, valid.Validate())

	tests := []struct {
		name   string
		mutate func(c *Config)
	}{
		{"empty project dir", func(c *Config) { c.ProjectDir = "" }},
		{"empty tag db", func(c *Config) { c.TagDBPath = "" }},
		{"zero page size", func(c *Config) { c.PageSize = 0 }},
		{"zero cache pages", func(c *Config) { c.PageCacheMaxPages = 0 }},
		{"negative thumbnail size", func(c *Config) { c.ThumbnailSize = -1 }},
		{"zero resolution", func(c *Config) { c.ProcessedResolution = 0 }},
		{"negative ttl", func(c *Config) { c.ResultCacheTTL = -time.Second }},
		{"negative workers", func(c *Config) { c.ThumbnailWorkers = -2 }},
		{"zero stats interval", func(c *Config) { c.StatsInterval = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := valid
			tt.mutate(&c)
			assert.Error(t, c.Validate())
		})
	}
}

func TestPrepareDirectoriesCreatesProject(t *testing.T) {
	dir := t.TempDir()
	cfg := &Config{
		ProjectDir: filepath.Join(dir, "a", "b"),
		TagDBPath:  filepath.Join(dir, "tags", "tags.db"),
	}

	require.NoError(t, prepareDirectories(cfg))
	assert.DirExists(t, cfg.ProjectDir)
	assert.DirExists(t, filepath.Join(dir, "tags"))
}

func TestPrepareDirectoriesRejectsFile(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "file")
	require.NoError(t, os.WriteFile(file, nil, 0o644))

	err := prepareDirectories(&Config{ProjectDir: file, TagDBPath: filepath.Join(dir, "t.db")})
	assert.Error(t, err)
}

func TestGetRouteGroup(t *testing.T) {
	t.Parallel()

	tests := []struct {
		path string
		want string
	}{
		{"/api/images", "api/images"},
		{"/api/images/{id}/rating", "api/images"},
		{"/metrics", "metrics"},
		{"/", ""},
		{"/api", "api"},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, getRouteGroup(tt.path))
		})
	}
}

func TestGetRoutes(t *testing.T) {
	t.Parallel()

	r := mux.NewRouter()
	r.HandleFunc("/api/images", func(_ http.ResponseWriter, _ *http.Request) {}).Methods("GET").Name("images")
	r.HandleFunc("/api/tags/resolve", func(_ http.ResponseWriter, _ *http.Request) {}).Methods("POST")

	routes, err := GetRoutes(r)
	require.NoError(t, err)
	require.Len(t, routes, 2)
	assert.Equal(t, RouteInfo{Method: "GET", Path: "/api/images", Name: "images"}, routes[0])
	assert.Equal(t, "POST", routes[1].Method)
}
