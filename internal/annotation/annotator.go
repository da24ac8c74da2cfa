package annotation

import (
	"context"
	"strings"

	"lorairo/internal/database"
)

// ImageInput is one image handed to an Annotator.
type ImageInput struct {
	ID    int64
	PHash string
	Path  string
}

// FormattedOutput carries everything a model produced besides plain tags.
type FormattedOutput struct {
	Captions         []string           `json:"captions,omitempty" yaml:"captions,omitempty"`
	Score            *float64           `json:"score,omitempty" yaml:"score,omitempty"`
	Rating           string             `json:"rating,omitempty" yaml:"rating,omitempty"`
	RatingConfidence *float64           `json:"rating_confidence,omitempty" yaml:"rating_confidence,omitempty"`
	TagConfidences   map[string]float64 `json:"tag_confidences,omitempty" yaml:"tag_confidences,omitempty"`
}

// ModelResult is the output of one model for one image. A non-empty Error
// means the model failed for that image and nothing else is meaningful.
type ModelResult struct {
	Tags            []string         `json:"tags,omitempty" yaml:"tags,omitempty"`
	FormattedOutput *FormattedOutput `json:"formatted_output,omitempty" yaml:"formatted_output,omitempty"`
	Error           string           `json:"error,omitempty" yaml:"error,omitempty"`
}

// Failed reports whether the model failed.
func (r ModelResult) Failed() bool {
	return r.Error != ""
}

// PHashAnnotationResults maps phash to model name to result.
type PHashAnnotationResults map[string]map[string]ModelResult

// Annotator runs annotation models over images. Implementations return one
// entry per phash they produced output for; per-model failures are reported
// through ModelResult.Error, not the returned error.
type Annotator interface {
	Annotate(ctx context.Context, images []ImageInput, modelNames, phashes []string) (PHashAnnotationResults, error)
}

// ratingAliases maps the labels emitted by common taggers onto the stored
// rating scale.
var ratingAliases = map[string]string{
	"general":      database.RatingPG,
	"safe":         database.RatingPG,
	"g":            database.RatingPG,
	"pg":           database.RatingPG,
	"sensitive":    database.RatingPG13,
	"pg-13":        database.RatingPG13,
	"pg13":         database.RatingPG13,
	"questionable": database.RatingR,
	"r":            database.RatingR,
	"explicit":     database.RatingX,
	"x":            database.RatingX,
	"xxx":          database.RatingXXX,
}

// NormalizeRating maps a raw model rating to one of database.ValidRatings.
func NormalizeRating(raw string) (string, bool) {
	r, ok := ratingAliases[strings.ToLower(strings.TrimSpace(raw))]
	return r, ok
}

// ToModelAnnotations converts a successful model result into the form the
// database stores. An unknown rating label is dropped; ok is false then.
func ToModelAnnotations(r ModelResult) (ann database.ModelAnnotations, ok bool) {
	ok = true
	var confidences map[string]float64
	if out := r.FormattedOutput; out != nil {
		confidences = out.TagConfidences
		ann.Captions = out.Captions
		ann.Score = out.Score
		if out.Rating != "" {
			if norm, known := NormalizeRating(out.Rating); known {
				ann.Rating = &database.RatingAnnotation{
					Raw:        out.Rating,
					Normalized: norm,
					Confidence: out.RatingConfidence,
				}
			} else {
				ok = false
			}
		}
	}

	ann.Tags = make([]database.TagAnnotation, 0, len(r.Tags))
	for _, tag := range r.Tags {
		t := database.TagAnnotation{Tag: tag}
		if c, found := confidences[tag]; found {
			t.Confidence = &c
		}
		ann.Tags = append(ann.Tags, t)
	}
	return ann, ok
}
