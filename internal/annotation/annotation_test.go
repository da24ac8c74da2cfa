package annotation

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"lorairo/internal/database"
	"lorairo/internal/tagdb"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestDB(t *testing.T) *database.Database {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping SQLite integration test in short mode")
	}

	db, err := database.New(context.Background(), filepath.Join(t.TempDir(), "image_database.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

type seqResolver struct {
	mu  sync.Mutex
	ids map[string]int64
}

func (r *seqResolver) GetOrCreateTagID(_ context.Context, tag string) *int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.ids == nil {
		r.ids = make(map[string]int64)
	}
	n := tagdb.Normalize(tag)
	id, ok := r.ids[n]
	if !ok {
		id = int64(len(r.ids) + 1)
		r.ids[n] = id
	}
	return &id
}

type identityPaths struct{}

func (identityPaths) ResolveStoredPath(rel string) (string, error) { return "/project/" + rel, nil }

func seed(t *testing.T, db *database.Database, phash string) int64 {
	t.Helper()
	id, _, err := db.RegisterImage(context.Background(), database.ImageInfo{
		PHash:           phash,
		StoredImagePath: "image_dataset/original/2024/01/" + phash + ".png",
		Width:           640,
		Height:          480,
	})
	require.NoError(t, err)
	return id
}

func ptr[T any](v T) *T { return &v }

func TestNormalizeRating(t *testing.T) {
	t.Parallel()

	tests := []struct {
		raw  string
		want string
		ok   bool
	}{
		{"general", database.RatingPG, true},
		{"Sensitive", database.RatingPG13, true},
		{" questionable ", database.RatingR, true},
		{"explicit", database.RatingX, true},
		{"PG-13", database.RatingPG13, true},
		{"XXX", database.RatingXXX, true},
		{"spicy", "", false},
		{"", "", false},
	}

	for _, tt := range tests {
		got, ok := NormalizeRating(tt.raw)
		assert.Equal(t, tt.want, got, tt.raw)
		assert.Equal(t, tt.ok, ok, tt.raw)
	}
}

func TestToModelAnnotations(t *testing.T) {
	t.Parallel()

	ann, ok := ToModelAnnotations(ModelResult{
		Tags: []string{"1girl", "solo"},
		FormattedOutput: &FormattedOutput{
			Captions:       []string{"a girl standing"},
			Score:          ptr(6.5),
			Rating:         "general",
			TagConfidences: map[string]float64{"solo": 0.9},
		},
	})
	require.True(t, ok)
	require.Len(t, ann.Tags, 2)
	assert.Nil(t, ann.Tags[0].Confidence)
	assert.InDelta(t, 0.9, *ann.Tags[1].Confidence, 1e-9)
	assert.Equal(t, []string{"a girl standing"}, ann.Captions)
	assert.Equal(t, 6.5, *ann.Score)
	assert.Equal(t, database.RatingPG, ann.Rating.Normalized)
	assert.Equal(t, "general", ann.Rating.Raw)

	ann, ok = ToModelAnnotations(ModelResult{FormattedOutput: &FormattedOutput{Rating: "spicy"}})
	assert.False(t, ok)
	assert.Nil(t, ann.Rating)

	ann, ok = ToModelAnnotations(ModelResult{Tags: []string{"cat"}})
	assert.True(t, ok)
	assert.Len(t, ann.Tags, 1)
}

func TestLoadResults(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()

	yamlPath := filepath.Join(dir, "results.yaml")
	require.NoError(t, os.WriteFile(yamlPath, []byte(`
abc:
  wd-v1-4:
    tags: [cat, outdoors]
    formatted_output:
      rating: general
      tag_confidences:
        cat: 0.75
  aesthetic:
    error: model crashed
`), 0o644))

	got, err := LoadResults(yamlPath)
	require.NoError(t, err)
	assert.Equal(t, []string{"cat", "outdoors"}, got["abc"]["wd-v1-4"].Tags)
	assert.InDelta(t, 0.75, got["abc"]["wd-v1-4"].FormattedOutput.TagConfidences["cat"], 1e-9)
	assert.True(t, got["abc"]["aesthetic"].Failed())

	jsonPath := filepath.Join(dir, "results.json")
	require.NoError(t, SaveResults(jsonPath, got))
	again, err := LoadResults(jsonPath)
	require.NoError(t, err)
	assert.Equal(t, got, again)

	bad := filepath.Join(dir, "bad.json")
	require.NoError(t, os.WriteFile(bad, []byte("{"), 0o644))
	_, err = LoadResults(bad)
	assert.Error(t, err)

	_, err = LoadResults(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)
}

func TestFileAnnotator(t *testing.T) {
	t.Parallel()

	f := NewFileAnnotator(PHashAnnotationResults{
		"a": {"tagger": {Tags: []string{"cat"}}, "captioner": {FormattedOutput: &FormattedOutput{Captions: []string{"x"}}}},
	})
	ctx := context.Background()

	all, err := f.Annotate(ctx, nil, nil, []string{"a", "b"})
	require.NoError(t, err)
	assert.Len(t, all, 1)
	assert.Len(t, all["a"], 2)

	some, err := f.Annotate(ctx, nil, []string{"tagger", "scorer"}, []string{"a"})
	require.NoError(t, err)
	assert.False(t, some["a"]["tagger"].Failed())
	assert.True(t, some["a"]["scorer"].Failed())
	assert.NotContains(t, some["a"], "captioner")

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	_, err = f.Annotate(cancelled, nil, nil, []string{"a"})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestServiceAnnotateImages(t *testing.T) {
	t.Parallel()
	db := setupTestDB(t)
	ctx := context.Background()

	id := seed(t, db, "aaaa")
	results := PHashAnnotationResults{
		"aaaa": {
			"wd-tagger": {
				Tags:            []string{"Cat", "outdoors"},
				FormattedOutput: &FormattedOutput{Rating: "questionable"},
			},
			"aesthetic": {FormattedOutput: &FormattedOutput{Score: ptr(7.25)}},
			"broken":    {Error: "CUDA out of memory"},
		},
	}

	svc := NewService(db, NewFileAnnotator(results), identityPaths{}, &seqResolver{})
	report, err := svc.AnnotateImages(ctx, []int64{id, 9999}, nil)
	require.NoError(t, err)

	assert.Equal(t, 1, report.Images)
	assert.Equal(t, 2, report.Saved.TagsSaved)
	assert.Equal(t, 1, report.Saved.ScoresSaved)
	assert.Equal(t, 1, report.Saved.RatingsSaved)
	assert.Equal(t, "CUDA out of memory", report.ModelErrors["aaaa"]["broken"])

	img, err := db.GetImageAnnotations(ctx, id)
	require.NoError(t, err)
	require.Len(t, img.Tags, 2)
	assert.Equal(t, "cat", img.Tags[0].Tag)
	require.Len(t, img.Ratings, 1)
	assert.Equal(t, database.RatingR, img.Ratings[0].NormalizedRating)
	require.Len(t, img.Scores, 1)
	assert.Equal(t, 7.25, img.Scores[0].Score)
}

func TestServiceApplyIsolatesModelFailures(t *testing.T) {
	t.Parallel()
	db := setupTestDB(t)
	ctx := context.Background()

	seed(t, db, "bbbb")
	svc := NewService(db, nil, identityPaths{}, &seqResolver{})

	report, err := svc.Apply(ctx, PHashAnnotationResults{
		"bbbb": {
			"scorer": {FormattedOutput: &FormattedOutput{Score: ptr(42.0)}},
			"tagger": {Tags: []string{"dog"}},
		},
		"unknown": {"tagger": {Tags: []string{"cat"}}},
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"unknown"}, report.Missing)
	assert.Contains(t, report.ModelErrors["bbbb"], "scorer", "out-of-range score fails only its model")
	assert.Equal(t, 1, report.Saved.TagsSaved)
	assert.Equal(t, 0, report.Saved.ScoresSaved)
}

func TestServiceWithoutAnnotator(t *testing.T) {
	t.Parallel()

	svc := NewService(nil, nil, identityPaths{}, nil)
	_, err := svc.AnnotateImages(context.Background(), []int64{1}, nil)
	assert.Error(t, err)
}
