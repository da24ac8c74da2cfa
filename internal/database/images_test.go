package database

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegisterImageValidation(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	valid := ImageInfo{PHash: "p", StoredImagePath: "image_dataset/original/2024/01/p.png", Width: 10, Height: 10}

	tests := []struct {
		name   string
		mutate func(*ImageInfo)
		want   error
	}{
		{"empty phash", func(i *ImageInfo) { i.PHash = "" }, ErrInvalidImage},
		{"absolute path", func(i *ImageInfo) { i.StoredImagePath = "/data/p.png" }, ErrAbsolutePath},
		{"empty path", func(i *ImageInfo) { i.StoredImagePath = "" }, ErrAbsolutePath},
		{"zero width", func(i *ImageInfo) { i.Width = 0 }, ErrInvalidImage},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			info := valid
			tt.mutate(&info)
			_, _, err := db.RegisterImage(ctx, info)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestRegisterImageDeduplicatesByPHash(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	first := seedImage(t, db, "dup")

	id, created, err := db.RegisterImage(ctx, ImageInfo{
		PHash:           "dup",
		StoredImagePath: "image_dataset/original/2024/02/other.png",
		Width:           5,
		Height:          5,
	})
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first, id)

	img, err := db.GetImage(ctx, first)
	require.NoError(t, err)
	assert.Equal(t, 1024, img.Width, "the existing row is untouched")
}

func TestRegisterImageConcurrent(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	const writers = 6
	results := make([]int64, writers)
	createdCount := 0
	var mu sync.Mutex
	var wg sync.WaitGroup

	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id, created, err := db.RegisterImage(ctx, ImageInfo{
				PHash:           "race",
				StoredImagePath: "image_dataset/original/2024/01/race.png",
				Width:           8,
				Height:          8,
			})
			assert.NoError(t, err)
			results[i] = id
			if created {
				mu.Lock()
				createdCount++
				mu.Unlock()
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 1, createdCount)
	for _, id := range results {
		assert.Equal(t, results[0], id)
	}
}

func TestDeletedPHashCanBeRegisteredAgain(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	old := seedImage(t, db, "again")
	require.NoError(t, db.DeleteImage(ctx, old))

	_, err := db.GetImage(ctx, old)
	assert.ErrorIs(t, err, ErrImageNotFound)
	assert.ErrorIs(t, db.DeleteImage(ctx, old), ErrImageNotFound)

	fresh := seedImage(t, db, "again")
	assert.NotEqual(t, old, fresh)
}

func TestImageLookups(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	a := seedImage(t, db, "aaa")
	b := seedImage(t, db, "bbb")

	byHash, err := db.GetImageByPHash(ctx, "bbb")
	require.NoError(t, err)
	assert.Equal(t, b, byHash.ID)

	_, err = db.GetImageByPHash(ctx, "zzz")
	assert.ErrorIs(t, err, ErrImageNotFound)

	m, err := db.ImageIDsByPHash(ctx, []string{"aaa", "bbb", "zzz"})
	require.NoError(t, err)
	assert.Equal(t, map[string]int64{"aaa": a, "bbb": b}, m)

	images, err := db.GetImagesByIDs(ctx, []int64{a, b, 999})
	require.NoError(t, err)
	assert.Len(t, images, 2)

	_, err = db.GetImage(ctx, 999)
	assert.ErrorIs(t, err, ErrImageNotFound)
}

func TestProcessedImageUpsert(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	id := seedImage(t, db, "proc")

	p, err := db.GetProcessedImage(ctx, id, 512)
	require.NoError(t, err)
	assert.Nil(t, p)

	require.NoError(t, db.AddProcessedImage(ctx, ProcessedImage{
		ImageID: id, Resolution: 512, StoredImagePath: "image_dataset/512/2024/01/a.webp", Width: 512, Height: 384,
	}))
	require.NoError(t, db.AddProcessedImage(ctx, ProcessedImage{
		ImageID: id, Resolution: 512, StoredImagePath: "image_dataset/512/2024/01/b.webp", Width: 512, Height: 384,
	}))

	p, err = db.GetProcessedImage(ctx, id, 512)
	require.NoError(t, err)
	require.NotNil(t, p)
	assert.Equal(t, "image_dataset/512/2024/01/b.webp", p.StoredImagePath)

	err = db.AddProcessedImage(ctx, ProcessedImage{ImageID: id, Resolution: 512, StoredImagePath: "/abs.webp"})
	assert.ErrorIs(t, err, ErrAbsolutePath)
	err = db.AddProcessedImage(ctx, ProcessedImage{ImageID: id, Resolution: 0, StoredImagePath: "x.webp"})
	assert.ErrorIs(t, err, ErrInvalidResolution)
}

func TestSetManualRating(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	id := seedImage(t, db, "rate")

	require.NoError(t, db.SetManualRating(ctx, id, ptr(RatingX)))
	img, err := db.GetImage(ctx, id)
	require.NoError(t, err)
	require.NotNil(t, img.ManualRating)
	assert.Equal(t, RatingX, *img.ManualRating)

	require.NoError(t, db.SetManualRating(ctx, id, nil))
	img, err = db.GetImage(ctx, id)
	require.NoError(t, err)
	assert.Nil(t, img.ManualRating)

	assert.ErrorIs(t, db.SetManualRating(ctx, id, ptr("G")), ErrInvalidRating)
	assert.ErrorIs(t, db.SetManualRating(ctx, 999, ptr(RatingPG)), ErrImageNotFound)
}
