package database

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"lorairo/internal/logging"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ImageInfo describes a new image to register.
type ImageInfo struct {
	PHash             string
	OriginalImagePath string
	StoredImagePath   string
	Width             int
	Height            int
	Format            string
	Mode              string
}

func isRelative(p string) bool {
	return p != "" && !filepath.IsAbs(p) && !strings.HasPrefix(p, "/")
}

// RegisterImage inserts an image unless a live image with the same phash
// exists, in which case that image's id is returned with created=false.
func (d *Database) RegisterImage(ctx context.Context, info ImageInfo) (id int64, created bool, err error) {
	start := time.Now()
	defer func() { recordQuery("register_image", start, err) }()

	switch {
	case info.PHash == "":
		return 0, false, fmt.Errorf("%w: empty phash", ErrInvalidImage)
	case !isRelative(info.StoredImagePath):
		return 0, false, fmt.Errorf("%w: %q", ErrAbsolutePath, info.StoredImagePath)
	case info.Width <= 0 || info.Height <= 0:
		return 0, false, fmt.Errorf("%w: dimensions %dx%d", ErrInvalidImage, info.Width, info.Height)
	}

	if existing, lookupErr := d.GetImageByPHash(ctx, info.PHash); lookupErr == nil {
		return existing.ID, false, nil
	} else if !errors.Is(lookupErr, ErrImageNotFound) {
		return 0, false, lookupErr
	}

	img := Image{
		PHash:             info.PHash,
		OriginalImagePath: info.OriginalImagePath,
		StoredImagePath:   info.StoredImagePath,
		Width:             info.Width,
		Height:            info.Height,
		Format:            info.Format,
		Mode:              info.Mode,
	}

	if err = d.db.WithContext(ctx).Create(&img).Error; err != nil {
		if !isUniqueViolation(err) {
			return 0, false, fmt.Errorf("failed to insert image: %w", err)
		}
		// Another writer registered the same phash first.
		existing, lookupErr := d.GetImageByPHash(ctx, info.PHash)
		if lookupErr != nil {
			return 0, false, err
		}
		logging.Debug("RegisterImage: phash %s registered concurrently as %d", info.PHash, existing.ID)
		return existing.ID, false, nil
	}

	d.bump()
	return img.ID, true, nil
}

// GetImage loads a live image by id.
func (d *Database) GetImage(ctx context.Context, id int64) (img *Image, err error) {
	start := time.Now()
	defer func() { recordQuery("get_image", start, err) }()

	img = &Image{}
	err = d.db.WithContext(ctx).First(img, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: id %d", ErrImageNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	return img, nil
}

// GetImageByPHash loads the live image with the given phash.
func (d *Database) GetImageByPHash(ctx context.Context, phash string) (*Image, error) {
	img := &Image{}
	err := d.db.WithContext(ctx).Where("phash = ?", phash).First(img).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: phash %s", ErrImageNotFound, phash)
	}
	if err != nil {
		return nil, err
	}
	return img, nil
}

// ImageIDsByPHash maps each phash to its live image id. Unknown phashes are
// absent from the result.
func (d *Database) ImageIDsByPHash(ctx context.Context, phashes []string) (map[string]int64, error) {
	out := make(map[string]int64, len(phashes))
	if len(phashes) == 0 {
		return out, nil
	}

	var images []Image
	err := d.db.WithContext(ctx).Select("id", "phash").Where("phash IN ?", phashes).Find(&images).Error
	if err != nil {
		return nil, err
	}
	for _, img := range images {
		out[img.PHash] = img.ID
	}
	return out, nil
}

// GetImagesByIDs loads live images, in no particular order.
func (d *Database) GetImagesByIDs(ctx context.Context, ids []int64) ([]Image, error) {
	var images []Image
	if len(ids) == 0 {
		return images, nil
	}
	err := d.db.WithContext(ctx).Where("id IN ?", ids).Find(&images).Error
	return images, err
}

// DeleteImage soft-deletes an image. It no longer appears in any query and
// its phash may be registered again.
func (d *Database) DeleteImage(ctx context.Context, id int64) (err error) {
	start := time.Now()
	defer func() { recordQuery("delete_image", start, err) }()

	res := d.db.WithContext(ctx).Delete(&Image{}, id)
	if err = res.Error; err != nil {
		return err
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: id %d", ErrImageNotFound, id)
	}
	d.bump()
	return nil
}

// AddProcessedImage records (or replaces) the rendition of an image at a
// resolution.
func (d *Database) AddProcessedImage(ctx context.Context, p ProcessedImage) (err error) {
	start := time.Now()
	defer func() { recordQuery("add_processed_image", start, err) }()

	if !isRelative(p.StoredImagePath) {
		return fmt.Errorf("%w: %q", ErrAbsolutePath, p.StoredImagePath)
	}
	if p.Resolution <= 0 {
		return fmt.Errorf("%w: %d", ErrInvalidResolution, p.Resolution)
	}

	err = d.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "image_id"}, {Name: "resolution"}},
		DoUpdates: clause.AssignmentColumns([]string{"stored_image_path", "width", "height", "mode", "updated_at"}),
	}).Create(&p).Error
	if err != nil {
		return fmt.Errorf("failed to save processed image: %w", err)
	}
	d.bump()
	return nil
}

// GetProcessedImage returns the rendition of an image at resolution, or
// nil when none exists.
func (d *Database) GetProcessedImage(ctx context.Context, imageID int64, resolution int) (*ProcessedImage, error) {
	var p ProcessedImage
	err := d.db.WithContext(ctx).Where("image_id = ? AND resolution = ?", imageID, resolution).First(&p).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// SetManualRating sets or, with nil, clears the manual rating of an image.
func (d *Database) SetManualRating(ctx context.Context, id int64, rating *string) (err error) {
	start := time.Now()
	defer func() { recordQuery("set_manual_rating", start, err) }()

	if rating != nil && !IsValidRating(*rating) {
		return fmt.Errorf("%w: %q", ErrInvalidRating, *rating)
	}

	res := d.db.WithContext(ctx).Model(&Image{}).Where("id = ?", id).Update("manual_rating", rating)
	if err = res.Error; err != nil {
		return err
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: id %d", ErrImageNotFound, id)
	}
	d.bump()
	return nil
}
