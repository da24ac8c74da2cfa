package database

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"lorairo/internal/logging"
	"lorairo/internal/tagdb"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// TagResolver maps a tag to its id in the shared tag dictionary. A nil
// result means the tag could not be resolved and must not be attached.
type TagResolver interface {
	GetOrCreateTagID(ctx context.Context, tag string) *int64
}

// TagAnnotation is one tag produced by a model.
type TagAnnotation struct {
	Tag        string
	Confidence *float64
}

// RatingAnnotation is a content rating produced by a model.
type RatingAnnotation struct {
	Raw        string
	Normalized string
	Confidence *float64
}

// ModelAnnotations is everything one model produced for one image.
type ModelAnnotations struct {
	Tags     []TagAnnotation
	Captions []string
	Score    *float64
	Rating   *RatingAnnotation
}

// SaveReport summarizes a SaveAnnotations call. Errors holds one entry per
// model whose annotations could not be stored; other models are unaffected.
type SaveReport struct {
	TagsSaved     int              `json:"tags" yaml:"tags"`
	TagsSkipped   int              `json:"tagsSkipped" yaml:"tags_skipped"`
	CaptionsSaved int              `json:"captions" yaml:"captions"`
	ScoresSaved   int              `json:"scores" yaml:"scores"`
	RatingsSaved  int              `json:"ratings" yaml:"ratings"`
	Errors        map[string]error `json:"-" yaml:"-"`
}

func (r *SaveReport) fail(model string, err error) {
	if r.Errors == nil {
		r.Errors = make(map[string]error)
	}
	r.Errors[model] = err
}

// Merge adds the counts and errors of other to r.
func (r *SaveReport) Merge(other SaveReport) {
	r.TagsSaved += other.TagsSaved
	r.TagsSkipped += other.TagsSkipped
	r.CaptionsSaved += other.CaptionsSaved
	r.ScoresSaved += other.ScoresSaved
	r.RatingsSaved += other.RatingsSaved
	for k, v := range other.Errors {
		r.fail(k, v)
	}
}

// SaveAnnotations stores the annotations of several models for one image.
// Each model is written in its own transaction; a failure is recorded in
// the report and the remaining models are still processed. Tags the
// resolver cannot resolve are skipped. The returned error is non-nil only
// when the image itself cannot be found.
func (d *Database) SaveAnnotations(ctx context.Context, imageID int64, byModel map[string]ModelAnnotations,
	resolver TagResolver,
) (report SaveReport, err error) {
	start := time.Now()
	defer func() { recordQuery("save_annotations", start, err) }()

	if _, err = d.GetImage(ctx, imageID); err != nil {
		return report, err
	}

	names := make([]string, 0, len(byModel))
	for name := range byModel {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		part, saveErr := d.saveModelAnnotations(ctx, imageID, name, byModel[name], resolver)
		if saveErr != nil {
			logging.Warn("Annotations of model %s for image %d not saved: %v", name, imageID, saveErr)
			report.fail(name, saveErr)
			continue
		}
		report.Merge(part)
	}

	if report.TagsSaved+report.CaptionsSaved+report.ScoresSaved+report.RatingsSaved > 0 {
		d.bump()
	}
	return report, nil
}

func (d *Database) saveModelAnnotations(ctx context.Context, imageID int64, modelName string,
	ann ModelAnnotations, resolver TagResolver,
) (SaveReport, error) {
	var report SaveReport

	if ann.Score != nil {
		if err := ValidateDBScore(*ann.Score); err != nil {
			return report, err
		}
	}
	if ann.Rating != nil && !IsValidRating(ann.Rating.Normalized) {
		return report, fmt.Errorf("%w: %q", ErrInvalidRating, ann.Rating.Normalized)
	}

	model, err := d.GetOrCreateModel(ctx, modelName, "", nil)
	if err != nil {
		return report, err
	}

	tags := make([]ImageTag, 0, len(ann.Tags))
	seen := make(map[string]bool, len(ann.Tags))
	for _, t := range ann.Tags {
		norm := tagdb.Normalize(t.Tag)
		if norm == "" || seen[norm] {
			continue
		}
		seen[norm] = true

		tagID := resolveTag(ctx, resolver, t.Tag)
		if tagID == nil {
			report.TagsSkipped++
			continue
		}
		tags = append(tags, ImageTag{
			ImageID:         imageID,
			TagID:           tagID,
			Tag:             norm,
			ModelID:         model.ID,
			ConfidenceScore: t.Confidence,
		})
	}

	err = d.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if len(tags) > 0 {
			if err := tx.Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "image_id"}, {Name: "tag"}, {Name: "model_id"}},
				DoUpdates: clause.AssignmentColumns([]string{"tag_id", "confidence_score", "updated_at"}),
			}).Create(&tags).Error; err != nil {
				return fmt.Errorf("tags: %w", err)
			}
			report.TagsSaved += len(tags)
		}

		for _, text := range ann.Captions {
			text = strings.TrimSpace(text)
			if text == "" {
				continue
			}
			created, err := insertCaption(tx, Caption{ImageID: imageID, ModelID: model.ID, Caption: text})
			if err != nil {
				return fmt.Errorf("captions: %w", err)
			}
			if created {
				report.CaptionsSaved++
			}
		}

		if ann.Score != nil {
			if err := upsertScore(tx, Score{ImageID: imageID, ModelID: model.ID, Score: *ann.Score}); err != nil {
				return fmt.Errorf("score: %w", err)
			}
			report.ScoresSaved++
		}

		if ann.Rating != nil {
			r := Rating{
				ImageID:          imageID,
				ModelID:          model.ID,
				RawRatingValue:   ann.Rating.Raw,
				NormalizedRating: ann.Rating.Normalized,
				Confidence:       ann.Rating.Confidence,
			}
			if r.RawRatingValue == "" {
				r.RawRatingValue = r.NormalizedRating
			}
			if err := tx.Clauses(clause.OnConflict{
				Columns: []clause.Column{{Name: "image_id"}, {Name: "model_id"}},
				DoUpdates: clause.AssignmentColumns([]string{"raw_rating_value", "normalized_rating",
					"confidence", "updated_at"}),
			}).Create(&r).Error; err != nil {
				return fmt.Errorf("rating: %w", err)
			}
			report.RatingsSaved++
		}
		return nil
	})
	if err != nil {
		return SaveReport{}, err
	}
	return report, nil
}

// resolveTag never panics on a nil resolver: without a dictionary no tag
// can be attached.
func resolveTag(ctx context.Context, resolver TagResolver, tag string) *int64 {
	if resolver == nil {
		return nil
	}
	return resolver.GetOrCreateTagID(ctx, tag)
}

// insertCaption adds a caption unless the same text already exists for the
// image and model.
func insertCaption(tx *gorm.DB, c Caption) (bool, error) {
	var n int64
	if err := tx.Model(&Caption{}).
		Where("image_id = ? AND model_id = ? AND caption = ?", c.ImageID, c.ModelID, c.Caption).
		Count(&n).Error; err != nil {
		return false, err
	}
	if n > 0 {
		return false, nil
	}
	return true, tx.Create(&c).Error
}

func upsertScore(tx *gorm.DB, s Score) error {
	return tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "image_id"}, {Name: "model_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"score", "is_edited_manually", "updated_at"}),
	}).Create(&s).Error
}

// ReplaceManualTags replaces the manually edited tags of an image. Tags that
// cannot be resolved are skipped and counted.
func (d *Database) ReplaceManualTags(ctx context.Context, imageID int64, tags []string,
	resolver TagResolver,
) (skipped int, err error) {
	start := time.Now()
	defer func() { recordQuery("replace_manual_tags", start, err) }()

	if _, err = d.GetImage(ctx, imageID); err != nil {
		return 0, err
	}

	rows := make([]ImageTag, 0, len(tags))
	seen := make(map[string]bool, len(tags))
	for _, t := range tags {
		norm := tagdb.Normalize(t)
		if norm == "" || seen[norm] {
			continue
		}
		seen[norm] = true
		tagID := resolveTag(ctx, resolver, t)
		if tagID == nil {
			skipped++
			continue
		}
		rows = append(rows, ImageTag{
			ImageID:          imageID,
			TagID:            tagID,
			Tag:              norm,
			ModelID:          d.manualModelID,
			IsEditedManually: true,
		})
	}

	err = d.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("image_id = ? AND model_id = ?", imageID, d.manualModelID).
			Delete(&ImageTag{}).Error; err != nil {
			return err
		}
		if len(rows) == 0 {
			return nil
		}
		return tx.Create(&rows).Error
	})
	if err != nil {
		return skipped, fmt.Errorf("failed to replace manual tags: %w", err)
	}
	d.bump()
	return skipped, nil
}

// SetManualScore stores a user score given on the UI scale [0, 1000].
func (d *Database) SetManualScore(ctx context.Context, imageID int64, uiScore int) (err error) {
	start := time.Now()
	defer func() { recordQuery("set_manual_score", start, err) }()

	score, err := UIScoreToDB(uiScore)
	if err != nil {
		return err
	}
	if _, err = d.GetImage(ctx, imageID); err != nil {
		return err
	}

	err = upsertScore(d.db.WithContext(ctx), Score{
		ImageID:          imageID,
		ModelID:          d.manualModelID,
		Score:            score,
		IsEditedManually: true,
	})
	if err != nil {
		return fmt.Errorf("failed to save manual score: %w", err)
	}
	d.bump()
	return nil
}

// AddManualCaption attaches a user-written caption.
func (d *Database) AddManualCaption(ctx context.Context, imageID int64, text string) (err error) {
	start := time.Now()
	defer func() { recordQuery("add_manual_caption", start, err) }()

	text = strings.TrimSpace(text)
	if text == "" {
		return ErrEmptyCaption
	}
	if _, err = d.GetImage(ctx, imageID); err != nil {
		return err
	}

	created, err := insertCaption(d.db.WithContext(ctx), Caption{
		ImageID:          imageID,
		ModelID:          d.manualModelID,
		Caption:          text,
		IsEditedManually: true,
	})
	if err != nil {
		return fmt.Errorf("failed to save manual caption: %w", err)
	}
	if created {
		d.bump()
	}
	return nil
}

// GetImageAnnotations loads an image with its renditions and every
// annotation, each with the producing model.
func (d *Database) GetImageAnnotations(ctx context.Context, imageID int64) (*Image, error) {
	img := &Image{}
	err := d.db.WithContext(ctx).
		Preload("ProcessedImages").
		Preload("Tags", func(db *gorm.DB) *gorm.DB { return db.Order("tags.tag ASC") }).
		Preload("Tags.Model").
		Preload("Captions.Model").
		Preload("Scores.Model").
		Preload("Ratings.Model").
		First(img, imageID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: id %d", ErrImageNotFound, imageID)
	}
	if err != nil {
		return nil, err
	}
	return img, nil
}

// TagsForImages returns the distinct tags of each image, sorted.
func (d *Database) TagsForImages(ctx context.Context, ids []int64) (map[int64][]string, error) {
	out := make(map[int64][]string, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	var rows []struct {
		ImageID int64
		Tag     string
	}
	err := d.db.WithContext(ctx).Model(&ImageTag{}).
		Distinct("image_id", "tag").
		Where("image_id IN ?", ids).
		Order("image_id ASC, tag ASC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	for _, r := range rows {
		out[r.ImageID] = append(out[r.ImageID], r.Tag)
	}
	return out, nil
}

// LatestCaptions returns the most recently written caption of each image,
// preferring manual edits.
func (d *Database) LatestCaptions(ctx context.Context, ids []int64) (map[int64]string, error) {
	out := make(map[int64]string, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	var captions []Caption
	err := d.db.WithContext(ctx).
		Where("image_id IN ?", ids).
		Order("is_edited_manually DESC, updated_at DESC, id DESC").
		Find(&captions).Error
	if err != nil {
		return nil, err
	}
	for _, c := range captions {
		if _, ok := out[c.ImageID]; !ok {
			out[c.ImageID] = c.Caption
		}
	}
	return out, nil
}
