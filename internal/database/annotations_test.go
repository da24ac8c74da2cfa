package database

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSaveAnnotationsPerModel(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	id := seedImage(t, db, "ann")
	conf := 0.9
	score := 6.5

	report, err := db.SaveAnnotations(ctx, id, map[string]ModelAnnotations{
		"wd-tagger": {
			Tags: []TagAnnotation{
				{Tag: "1girl", Confidence: &conf},
				{Tag: "Long_Hair"},
				{Tag: "long hair"}, // duplicate after normalization
				{Tag: "forbidden"},
			},
		},
		"captioner": {Captions: []string{"a girl", "  ", "a girl"}},
		"aesthetic": {Score: &score},
		"rater":     {Rating: &RatingAnnotation{Raw: "general", Normalized: RatingPG}},
		"broken":    {Score: ptr(11.0)},
	}, newFakeResolver("forbidden"))
	require.NoError(t, err)

	assert.Equal(t, 2, report.TagsSaved)
	assert.Equal(t, 1, report.TagsSkipped)
	assert.Equal(t, 1, report.CaptionsSaved)
	assert.Equal(t, 1, report.ScoresSaved)
	assert.Equal(t, 1, report.RatingsSaved)
	require.Len(t, report.Errors, 1)
	assert.ErrorIs(t, report.Errors["broken"], ErrScoreOutOfRange)

	img, err := db.GetImageAnnotations(ctx, id)
	require.NoError(t, err)

	require.Len(t, img.Tags, 2)
	assert.Equal(t, "1girl", img.Tags[0].Tag)
	assert.Equal(t, "long hair", img.Tags[1].Tag)
	require.NotNil(t, img.Tags[0].Model)
	assert.Equal(t, "wd-tagger", img.Tags[0].Model.Name)
	assert.NotNil(t, img.Tags[0].TagID)

	require.Len(t, img.Captions, 1)
	require.Len(t, img.Scores, 1)
	assert.InDelta(t, 6.5, img.Scores[0].Score, 1e-9)
	require.Len(t, img.Ratings, 1)
	assert.Equal(t, "general", img.Ratings[0].RawRatingValue)
	assert.Equal(t, "rater", img.Ratings[0].Model.Name)
}

func TestSaveAnnotationsIsIdempotent(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	id := seedImage(t, db, "idem")
	anns := map[string]ModelAnnotations{
		"wd-tagger": {Tags: []TagAnnotation{{Tag: "cat"}}, Score: ptr(4.0)},
	}
	resolver := newFakeResolver()

	_, err := db.SaveAnnotations(ctx, id, anns, resolver)
	require.NoError(t, err)
	anns["wd-tagger"] = ModelAnnotations{Tags: []TagAnnotation{{Tag: "cat"}}, Score: ptr(5.0)}
	_, err = db.SaveAnnotations(ctx, id, anns, resolver)
	require.NoError(t, err)

	img, err := db.GetImageAnnotations(ctx, id)
	require.NoError(t, err)
	assert.Len(t, img.Tags, 1)
	require.Len(t, img.Scores, 1)
	assert.InDelta(t, 5.0, img.Scores[0].Score, 1e-9, "score is replaced, not duplicated")
}

func TestSaveAnnotationsMissingImage(t *testing.T) {
	db := setupTestDB(t)

	_, err := db.SaveAnnotations(context.Background(), 404,
		map[string]ModelAnnotations{"m": {Score: ptr(1.0)}}, nil)
	assert.ErrorIs(t, err, ErrImageNotFound)
}

func TestSaveAnnotationsWithoutResolverSkipsTags(t *testing.T) {
	db := setupTestDB(t)

	id := seedImage(t, db, "noresolver")
	report, err := db.SaveAnnotations(context.Background(), id,
		map[string]ModelAnnotations{"m": {Tags: []TagAnnotation{{Tag: "a"}, {Tag: "b"}}}}, nil)
	require.NoError(t, err)
	assert.Zero(t, report.TagsSaved)
	assert.Equal(t, 2, report.TagsSkipped)
}

func TestReplaceManualTags(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	id := seedImage(t, db, "manual")
	tagImage(t, db, id, "wd-tagger", "cat")
	resolver := newFakeResolver("nope")

	skipped, err := db.ReplaceManualTags(ctx, id, []string{"Blue_Sky", "nope", "blue sky"}, resolver)
	require.NoError(t, err)
	assert.Equal(t, 1, skipped)

	_, err = db.ReplaceManualTags(ctx, id, []string{"clouds"}, resolver)
	require.NoError(t, err)

	tags, err := db.TagsForImages(ctx, []int64{id})
	require.NoError(t, err)
	assert.Equal(t, []string{"cat", "clouds"}, tags[id], "model tags survive, manual tags are replaced")

	img, err := db.GetImageAnnotations(ctx, id)
	require.NoError(t, err)
	for _, tag := range img.Tags {
		if tag.Tag == "clouds" {
			assert.True(t, tag.IsEditedManually)
			assert.Equal(t, db.ManualEditModelID(), tag.ModelID)
		}
	}

	_, err = db.ReplaceManualTags(ctx, 999, []string{"x"}, resolver)
	assert.ErrorIs(t, err, ErrImageNotFound)
}

func TestSetManualScore(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	id := seedImage(t, db, "score")
	require.NoError(t, db.SetManualScore(ctx, id, 750))

	img, err := db.GetImageAnnotations(ctx, id)
	require.NoError(t, err)
	require.Len(t, img.Scores, 1)
	assert.InDelta(t, 7.5, img.Scores[0].Score, 1e-9)
	assert.True(t, img.Scores[0].IsEditedManually)
	assert.Equal(t, 750, DBScoreToUI(img.Scores[0].Score))

	assert.ErrorIs(t, db.SetManualScore(ctx, id, 1001), ErrScoreOutOfRange)
	assert.ErrorIs(t, db.SetManualScore(ctx, 999, 10), ErrImageNotFound)
}

func TestLatestCaptionsPrefersManual(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	a := seedImage(t, db, "cap-a")
	b := seedImage(t, db, "cap-b")

	_, err := db.SaveAnnotations(ctx, a, map[string]ModelAnnotations{"captioner": {Captions: []string{"model text"}}}, nil)
	require.NoError(t, err)
	require.NoError(t, db.AddManualCaption(ctx, a, "my text"))
	_, err = db.SaveAnnotations(ctx, b, map[string]ModelAnnotations{"captioner": {Captions: []string{"only model"}}}, nil)
	require.NoError(t, err)

	got, err := db.LatestCaptions(ctx, []int64{a, b})
	require.NoError(t, err)
	assert.Equal(t, map[int64]string{a: "my text", b: "only model"}, got)

	assert.Error(t, db.AddManualCaption(ctx, a, "   "))
}

func TestGetOrCreateModel(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	m, err := db.GetOrCreateModel(ctx, "gpt-4o", "openai", []string{ModelTypeCaptioner})
	require.NoError(t, err)

	again, err := db.GetOrCreateModel(ctx, "gpt-4o", "", []string{ModelTypeTagger, ModelTypeCaptioner})
	require.NoError(t, err)
	assert.Equal(t, m.ID, again.ID)

	taggers, err := db.ListModels(ctx, ModelTypeTagger)
	require.NoError(t, err)
	require.Len(t, taggers, 1)
	assert.Equal(t, "gpt-4o", taggers[0].Name)
	assert.Len(t, taggers[0].Types, 2)

	_, err = db.GetOrCreateModel(ctx, "x", "", []string{"painter"})
	assert.Error(t, err)
}

func TestSaveReportMerge(t *testing.T) {
	t.Parallel()

	var r SaveReport
	r.Merge(SaveReport{TagsSaved: 2, ScoresSaved: 1})
	r.Merge(SaveReport{TagsSaved: 1, TagsSkipped: 3, Errors: map[string]error{"m": ErrInvalidRating}})

	assert.Equal(t, 3, r.TagsSaved)
	assert.Equal(t, 3, r.TagsSkipped)
	assert.Equal(t, 1, r.ScoresSaved)
	assert.ErrorIs(t, r.Errors["m"], ErrInvalidRating)
}
