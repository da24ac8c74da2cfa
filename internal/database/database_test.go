package database

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"lorairo/internal/tagdb"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestDB(t testing.TB) *Database {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping SQLite integration test in short mode")
	}

	db, err := New(context.Background(), filepath.Join(t.TempDir(), "image_database.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

// fakeResolver hands out sequential ids and refuses tags listed in reject.
type fakeResolver struct {
	mu     sync.Mutex
	ids    map[string]int64
	reject map[string]bool
}

func newFakeResolver(reject ...string) *fakeResolver {
	r := &fakeResolver{ids: make(map[string]int64), reject: make(map[string]bool)}
	for _, t := range reject {
		r.reject[tagdb.Normalize(t)] = true
	}
	return r
}

func (r *fakeResolver) GetOrCreateTagID(_ context.Context, tag string) *int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := tagdb.Normalize(tag)
	if r.reject[n] {
		return nil
	}
	id, ok := r.ids[n]
	if !ok {
		id = int64(len(r.ids) + 1)
		r.ids[n] = id
	}
	return &id
}

// seedImage registers a 1024x768 image and returns its id.
func seedImage(t testing.TB, db *Database, phash string) int64 {
	t.Helper()
	return seedImageSized(t, db, phash, 1024, 768)
}

func seedImageSized(t testing.TB, db *Database, phash string, w, h int) int64 {
	t.Helper()
	id, created, err := db.RegisterImage(context.Background(), ImageInfo{
		PHash:             phash,
		OriginalImagePath: "/src/" + phash + ".png",
		StoredImagePath:   fmt.Sprintf("image_dataset/original/2024/01/%s.png", phash),
		Width:             w,
		Height:            h,
		Format:            "PNG",
		Mode:              "RGB",
	})
	require.NoError(t, err)
	require.True(t, created)
	return id
}

func setCreatedAt(t testing.TB, db *Database, id int64, ts time.Time) {
	t.Helper()
	require.NoError(t, db.db.Model(&Image{}).Where("id = ?", id).UpdateColumn("created_at", ts.UTC()).Error)
}

func tagImage(t testing.TB, db *Database, id int64, model string, tags ...string) {
	t.Helper()
	anns := make([]TagAnnotation, len(tags))
	for i, tag := range tags {
		anns[i] = TagAnnotation{Tag: tag}
	}
	report, err := db.SaveAnnotations(context.Background(), id,
		map[string]ModelAnnotations{model: {Tags: anns}}, newFakeResolver())
	require.NoError(t, err)
	require.Empty(t, report.Errors)
}

func scoreImage(t testing.TB, db *Database, id int64, model string, score float64) {
	t.Helper()
	report, err := db.SaveAnnotations(context.Background(), id,
		map[string]ModelAnnotations{model: {Score: &score}}, nil)
	require.NoError(t, err)
	require.Empty(t, report.Errors)
}

func rateImage(t testing.TB, db *Database, id int64, model, rating string) {
	t.Helper()
	report, err := db.SaveAnnotations(context.Background(), id,
		map[string]ModelAnnotations{model: {Rating: &RatingAnnotation{Raw: rating, Normalized: rating}}}, nil)
	require.NoError(t, err)
	require.Empty(t, report.Errors)
}

func ids(rows []ImageRow) []int64 {
	out := make([]int64, len(rows))
	for i, r := range rows {
		out[i] = r.ID
	}
	return out
}

func ptr[T any](v T) *T { return &v }

func TestNewSeedsLookups(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	var names []string
	require.NoError(t, db.db.Model(&ModelType{}).Order("id").Pluck("name", &names).Error)
	assert.Equal(t, modelTypeNames, names)

	assert.Positive(t, db.ManualEditModelID())
	models, err := db.ListModels(ctx, "")
	require.NoError(t, err)
	require.Len(t, models, 1)
	assert.Equal(t, ManualEditModelName, models[0].Name)
}

func TestNewReopensExistingDatabase(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping SQLite integration test in short mode")
	}
	path := filepath.Join(t.TempDir(), "image_database.db")
	ctx := context.Background()

	first, err := New(ctx, path)
	require.NoError(t, err)
	manualID := first.ManualEditModelID()
	require.NoError(t, first.Close())

	second, err := New(ctx, path)
	require.NoError(t, err)
	defer second.Close()
	assert.Equal(t, manualID, second.ManualEditModelID())
}

func TestGenerationAdvancesOnWrite(t *testing.T) {
	db := setupTestDB(t)

	before := db.Generation()
	id := seedImage(t, db, "gen")
	afterInsert := db.Generation()
	assert.Greater(t, afterInsert, before)

	_, _, err := db.GetImagesByFilter(context.Background(), ImageFilter{})
	require.NoError(t, err)
	assert.Equal(t, afterInsert, db.Generation(), "reads do not advance the generation")

	require.NoError(t, db.SetManualRating(context.Background(), id, ptr(RatingPG)))
	assert.Greater(t, db.Generation(), afterInsert)
}

func TestLibraryStats(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	a := seedImage(t, db, "a")
	b := seedImage(t, db, "b")
	seedImage(t, db, "c")

	tagImage(t, db, a, "wd-tagger", "cat", "dog")
	tagImage(t, db, b, "wd-tagger", "cat")
	rateImage(t, db, b, "wd-tagger", RatingPG)
	require.NoError(t, db.SetManualRating(ctx, a, ptr(RatingR)))

	stats, err := db.LibraryStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), stats.TotalImages)
	assert.Equal(t, int64(2), stats.DistinctTags)
	assert.Equal(t, int64(2), stats.TotalModels) // manual_edit + wd-tagger
	assert.Equal(t, int64(1), stats.UnratedImages)
}

func TestIsUniqueViolation(t *testing.T) {
	db := setupTestDB(t)

	m := ModelType{Name: ModelTypeTagger}
	err := db.db.Create(&m).Error
	require.Error(t, err)
	assert.True(t, isUniqueViolation(err))
	assert.False(t, isUniqueViolation(nil))
	assert.False(t, isUniqueViolation(ErrImageNotFound))
}
