package database

import (
	"time"

	"gorm.io/gorm"
)

// ManualEditModelName is the reserved model that owns every user edit.
const ManualEditModelName = "manual_edit"

// Rating labels, normalized.
const (
	RatingPG   = "PG"
	RatingPG13 = "PG-13"
	RatingR    = "R"
	RatingX    = "X"
	RatingXXX  = "XXX"
)

// ValidRatings lists every accepted rating label in ascending severity.
var ValidRatings = []string{RatingPG, RatingPG13, RatingR, RatingX, RatingXXX}

// NSFWRatings is the set of ratings excluded when a search sets
// IncludeNSFW=false.
var NSFWRatings = []string{RatingR, RatingX, RatingXXX}

// IsValidRating reports whether r is one of ValidRatings.
func IsValidRating(r string) bool {
	for _, v := range ValidRatings {
		if v == r {
			return true
		}
	}
	return false
}

// Model function types.
const (
	ModelTypeTagger     = "tagger"
	ModelTypeCaptioner  = "captioner"
	ModelTypeScorer     = "scorer"
	ModelTypeRating     = "rating"
	ModelTypeMultimodal = "multimodal"
	ModelTypeUpscaler   = "upscaler"
)

var modelTypeNames = []string{
	ModelTypeTagger, ModelTypeCaptioner, ModelTypeScorer,
	ModelTypeRating, ModelTypeMultimodal, ModelTypeUpscaler,
}

// Image is one distinct image file. PHash is unique among non-deleted rows
// and StoredImagePath is always relative to the project root.
type Image struct {
	ID                int64          `gorm:"primaryKey" json:"id"`
	PHash             string         `gorm:"column:phash;not null;index" json:"phash"`
	OriginalImagePath string         `gorm:"not null" json:"originalImagePath"`
	StoredImagePath   string         `gorm:"not null" json:"storedImagePath"`
	Width             int            `gorm:"not null" json:"width"`
	Height            int            `gorm:"not null" json:"height"`
	Format            string         `json:"format"`
	Mode              string         `json:"mode"`
	ManualRating      *string        `gorm:"index" json:"manualRating,omitempty"`
	CreatedAt         time.Time      `gorm:"index" json:"createdAt"`
	UpdatedAt         time.Time      `json:"updatedAt"`
	DeletedAt         gorm.DeletedAt `gorm:"index" json:"-"`

	ProcessedImages []ProcessedImage `gorm:"constraint:OnDelete:CASCADE" json:"processedImages,omitempty"`
	Tags            []ImageTag       `gorm:"constraint:OnDelete:CASCADE" json:"tags,omitempty"`
	Captions        []Caption        `gorm:"constraint:OnDelete:CASCADE" json:"captions,omitempty"`
	Scores          []Score          `gorm:"constraint:OnDelete:CASCADE" json:"scores,omitempty"`
	Ratings         []Rating         `gorm:"constraint:OnDelete:CASCADE" json:"ratings,omitempty"`
}

// ProcessedImage is a derived rendition whose long edge is Resolution.
type ProcessedImage struct {
	ID              int64     `gorm:"primaryKey" json:"id"`
	ImageID         int64     `gorm:"not null;uniqueIndex:idx_processed_image_resolution" json:"imageId"`
	Resolution      int       `gorm:"not null;uniqueIndex:idx_processed_image_resolution" json:"resolution"`
	StoredImagePath string    `gorm:"not null" json:"storedImagePath"`
	Width           int       `gorm:"not null" json:"width"`
	Height          int       `gorm:"not null" json:"height"`
	Mode            string    `json:"mode"`
	CreatedAt       time.Time `json:"createdAt"`
	UpdatedAt       time.Time `json:"updatedAt"`
}

// ImageTag attaches a normalized tag to an image on behalf of a model.
type ImageTag struct {
	ID               int64     `gorm:"primaryKey" json:"id"`
	ImageID          int64     `gorm:"not null;uniqueIndex:idx_tags_image_tag_model" json:"imageId"`
	TagID            *int64    `gorm:"index" json:"tagId,omitempty"`
	Tag              string    `gorm:"not null;index;uniqueIndex:idx_tags_image_tag_model" json:"tag"`
	ModelID          int64     `gorm:"not null;uniqueIndex:idx_tags_image_tag_model" json:"modelId"`
	Model            *Model    `gorm:"foreignKey:ModelID" json:"model,omitempty"`
	Existing         bool      `gorm:"not null;default:false" json:"existing"`
	IsEditedManually bool      `gorm:"not null;default:false" json:"isEditedManually"`
	ConfidenceScore  *float64  `json:"confidenceScore,omitempty"`
	CreatedAt        time.Time `json:"createdAt"`
	UpdatedAt        time.Time `json:"updatedAt"`
}

// TableName keeps the historical table name.
func (ImageTag) TableName() string { return "tags" }

// Caption is free text attached to an image by a model.
type Caption struct {
	ID               int64     `gorm:"primaryKey" json:"id"`
	ImageID          int64     `gorm:"not null;index" json:"imageId"`
	ModelID          int64     `gorm:"not null" json:"modelId"`
	Model            *Model    `gorm:"foreignKey:ModelID" json:"model,omitempty"`
	Caption          string    `gorm:"not null" json:"caption"`
	Existing         bool      `gorm:"not null;default:false" json:"existing"`
	IsEditedManually bool      `gorm:"not null;default:false" json:"isEditedManually"`
	CreatedAt        time.Time `json:"createdAt"`
	UpdatedAt        time.Time `json:"updatedAt"`
}

// Score is a quality score on the storage scale [0, 10].
type Score struct {
	ID               int64     `gorm:"primaryKey" json:"id"`
	ImageID          int64     `gorm:"not null;uniqueIndex:idx_scores_image_model" json:"imageId"`
	ModelID          int64     `gorm:"not null;uniqueIndex:idx_scores_image_model" json:"modelId"`
	Model            *Model    `gorm:"foreignKey:ModelID" json:"model,omitempty"`
	Score            float64   `gorm:"not null;index" json:"score"`
	IsEditedManually bool      `gorm:"not null;default:false" json:"isEditedManually"`
	CreatedAt        time.Time `json:"createdAt"`
	UpdatedAt        time.Time `json:"updatedAt"`
}

// Rating is an AI-derived content rating. Manual ratings live on
// Image.ManualRating instead.
type Rating struct {
	ID               int64     `gorm:"primaryKey" json:"id"`
	ImageID          int64     `gorm:"not null;uniqueIndex:idx_ratings_image_model" json:"imageId"`
	ModelID          int64     `gorm:"not null;uniqueIndex:idx_ratings_image_model" json:"modelId"`
	Model            *Model    `gorm:"foreignKey:ModelID" json:"model,omitempty"`
	RawRatingValue   string    `gorm:"not null" json:"rawRatingValue"`
	NormalizedRating string    `gorm:"not null;index" json:"normalizedRating"`
	Confidence       *float64  `json:"confidence,omitempty"`
	CreatedAt        time.Time `json:"createdAt"`
	UpdatedAt        time.Time `json:"updatedAt"`
}

// Model is an annotation-producing model.
type Model struct {
	ID        int64       `gorm:"primaryKey" json:"id"`
	Name      string      `gorm:"not null;uniqueIndex" json:"name"`
	Provider  string      `json:"provider,omitempty"`
	Types     []ModelType `gorm:"many2many:model_function_associations" json:"types,omitempty"`
	CreatedAt time.Time   `json:"createdAt"`
	UpdatedAt time.Time   `json:"updatedAt"`
}

// ModelType is a model function (tagger, captioner, ...).
type ModelType struct {
	ID   int64  `gorm:"primaryKey" json:"id"`
	Name string `gorm:"not null;uniqueIndex" json:"name"`
}

// ImageRow is one result row of GetImagesByFilter. When the filter asked for
// a resolution and a matching rendition exists, StoredImagePath, Width and
// Height describe the rendition instead of the original.
type ImageRow struct {
	ID              int64     `gorm:"column:id" json:"id"`
	PHash           string    `gorm:"column:phash" json:"phash"`
	StoredImagePath string    `gorm:"column:stored_image_path" json:"storedImagePath"`
	Width           int       `gorm:"column:width" json:"width"`
	Height          int       `gorm:"column:height" json:"height"`
	ManualRating    *string   `gorm:"column:manual_rating" json:"manualRating,omitempty"`
	CreatedAt       time.Time `gorm:"column:created_at" json:"createdAt"`
	UpdatedAt       time.Time `gorm:"column:updated_at" json:"updatedAt"`
	Processed       bool      `gorm:"-" json:"processed"`
}

// allModels is the AutoMigrate set.
func allModels() []interface{} {
	return []interface{}{
		&ModelType{},
		&Model{},
		&Image{},
		&ProcessedImage{},
		&ImageTag{},
		&Caption{},
		&Score{},
		&Rating{},
	}
}
