package app

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"lorairo/internal/annotation"
	"lorairo/internal/pagination"
	"lorairo/internal/project"
	"lorairo/internal/search"
	"lorairo/internal/startup"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig(t *testing.T) *startup.Config {
	t.Helper()
	dir := t.TempDir()
	return &startup.Config{
		ProjectDir:          filepath.Join(dir, "main_dataset"),
		TagDBPath:           filepath.Join(dir, "tags.db"),
		Port:                "0",
		PageSize:            10,
		PageCacheMaxPages:   2,
		ThumbnailSize:       64,
		ProcessedResolution: 256,
		ResultCacheTTL:      time.Second,
		StatsInterval:       time.Minute,
	}
}

func setupContainer(t *testing.T) *Container {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping container integration test in short mode")
	}

	c, err := New(context.Background(), testConfig(t))
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestNewWiresServices(t *testing.T) {
	t.Parallel()
	c := setupContainer(t)

	assert.NotNil(t, c.DB)
	assert.NotNil(t, c.TagDB)
	assert.NotNil(t, c.Resolver)
	assert.NotNil(t, c.Processor)
	assert.NotNil(t, c.Annotations)
	assert.NotNil(t, c.Importer)
	assert.NotNil(t, c.Memory)
	assert.NotNil(t, c.Exporter)
	assert.NotNil(t, c.Collector)
	assert.Equal(t, 64, c.Renderer.Size())

	dbPath, err := c.Project.DatabasePath()
	require.NoError(t, err)
	assert.Equal(t, dbPath, c.DB.Path())
	assert.FileExists(t, c.Config.TagDBPath)
}

func TestNavigatorIsLazyAndShared(t *testing.T) {
	t.Parallel()
	c := setupContainer(t)

	assert.Nil(t, c.navigator)
	nav := c.Navigator()
	assert.Same(t, nav, c.Navigator())
	assert.NotSame(t, nav, c.NewNavigator())
	assert.Equal(t, 10, nav.PageSize())

	_, err := nav.LoadPage(context.Background(), 1)
	assert.ErrorIs(t, err, pagination.ErrNoSearch)

	// An empty project still has one page.
	require.NoError(t, nav.SetSearch(context.Background(), search.Conditions{}))
	nav.Wait()
	assert.Equal(t, 1, nav.State().TotalPages)
}

func TestAnnotationsWith(t *testing.T) {
	t.Parallel()
	c := setupContainer(t)

	svc := c.AnnotationsWith(annotation.NewFileAnnotator(annotation.PHashAnnotationResults{}))
	report, err := svc.AnnotateImages(context.Background(), []int64{1}, nil)
	require.NoError(t, err)
	assert.Zero(t, report.Images)
}

func TestCloseIsIdempotent(t *testing.T) {
	t.Parallel()
	c := setupContainer(t)

	require.NoError(t, c.Close())
	require.NoError(t, c.Close())

	_, err := c.Project.Root()
	assert.ErrorIs(t, err, project.ErrNotOpen)
}

func TestNewFailures(t *testing.T) {
	t.Parallel()
	if testing.Short() {
		t.Skip("skipping container integration test in short mode")
	}

	_, err := New(context.Background(), nil)
	assert.Error(t, err)

	cfg := testConfig(t)
	cfg.TagDBPath = filepath.Join(t.TempDir(), "missing", "dir", "tags.db")
	_, err = New(context.Background(), cfg)
	assert.Error(t, err)
}
