package annotation

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"lorairo/internal/database"
	"lorairo/internal/logging"
	"lorairo/internal/metrics"
)

// Store is the part of the project database the service writes through.
type Store interface {
	GetImagesByIDs(ctx context.Context, ids []int64) ([]database.Image, error)
	ImageIDsByPHash(ctx context.Context, phashes []string) (map[string]int64, error)
	SaveAnnotations(ctx context.Context, imageID int64, byModel map[string]database.ModelAnnotations,
		resolver database.TagResolver) (database.SaveReport, error)
}

// PathResolver turns stored relative paths into absolute ones.
type PathResolver interface {
	ResolveStoredPath(rel string) (string, error)
}

// Report summarizes one annotation write-back.
type Report struct {
	Images int `json:"images"`
	// Missing lists phashes with results but no image in the project.
	Missing []string `json:"missing,omitempty"`
	// ModelErrors maps phash to model name to the failure message, both
	// for models that failed while annotating and for models whose output
	// could not be stored.
	ModelErrors map[string]map[string]string `json:"modelErrors,omitempty"`
	Saved       database.SaveReport          `json:"saved"`
}

func (r *Report) modelError(phash, model, msg string) {
	if r.ModelErrors == nil {
		r.ModelErrors = make(map[string]map[string]string)
	}
	if r.ModelErrors[phash] == nil {
		r.ModelErrors[phash] = make(map[string]string)
	}
	r.ModelErrors[phash][model] = msg
}

// Service annotates project images and writes the results back.
type Service struct {
	store     Store
	annotator Annotator
	paths     PathResolver
	resolver  database.TagResolver
}

// NewService returns a Service. annotator may be nil when only Apply is used.
func NewService(store Store, annotator Annotator, paths PathResolver, resolver database.TagResolver) *Service {
	return &Service{store: store, annotator: annotator, paths: paths, resolver: resolver}
}

// AnnotateImages runs the annotator over the given images and stores the
// results. Unknown ids are ignored.
func (s *Service) AnnotateImages(ctx context.Context, ids []int64, modelNames []string) (Report, error) {
	if s.annotator == nil {
		return Report{}, errors.New("no annotator configured")
	}

	images, err := s.store.GetImagesByIDs(ctx, ids)
	if err != nil {
		return Report{}, fmt.Errorf("failed to load images: %w", err)
	}
	if len(images) == 0 {
		return Report{}, nil
	}

	inputs := make([]ImageInput, 0, len(images))
	phashes := make([]string, 0, len(images))
	for _, img := range images {
		path, err := s.paths.ResolveStoredPath(img.StoredImagePath)
		if err != nil {
			logging.Warn("Skipping image %d: %v", img.ID, err)
			continue
		}
		inputs = append(inputs, ImageInput{ID: img.ID, PHash: img.PHash, Path: path})
		phashes = append(phashes, img.PHash)
	}

	results, err := s.annotator.Annotate(ctx, inputs, modelNames, phashes)
	if err != nil {
		return Report{}, fmt.Errorf("annotation failed: %w", err)
	}
	return s.Apply(ctx, results)
}

// Apply writes results back to the project. A failed model only affects
// its own annotations; the returned error is reserved for failures that
// stop the whole write-back.
func (s *Service) Apply(ctx context.Context, results PHashAnnotationResults) (Report, error) {
	var report Report

	phashes := make([]string, 0, len(results))
	for ph := range results {
		phashes = append(phashes, ph)
	}
	sort.Strings(phashes)

	ids, err := s.store.ImageIDsByPHash(ctx, phashes)
	if err != nil {
		return report, fmt.Errorf("failed to look up images: %w", err)
	}

	for _, ph := range phashes {
		if err := ctx.Err(); err != nil {
			return report, err
		}

		id, ok := ids[ph]
		if !ok {
			metrics.AnnotationResultsTotal.WithLabelValues("image_missing").Add(float64(len(results[ph])))
			report.Missing = append(report.Missing, ph)
			continue
		}

		byModel := make(map[string]database.ModelAnnotations, len(results[ph]))
		for name, r := range results[ph] {
			if r.Failed() {
				metrics.AnnotationResultsTotal.WithLabelValues("model_error").Inc()
				report.modelError(ph, name, r.Error)
				continue
			}
			ann, ok := ToModelAnnotations(r)
			if !ok {
				logging.Warn("Dropping unknown rating %q from model %s for image %d",
					r.FormattedOutput.Rating, name, id)
			}
			byModel[name] = ann
		}
		if len(byModel) == 0 {
			continue
		}

		saved, err := s.store.SaveAnnotations(ctx, id, byModel, s.resolver)
		if err != nil {
			metrics.AnnotationResultsTotal.WithLabelValues("failed").Add(float64(len(byModel)))
			for name := range byModel {
				report.modelError(ph, name, err.Error())
			}
			continue
		}
		for name, saveErr := range saved.Errors {
			report.modelError(ph, name, saveErr.Error())
		}
		metrics.AnnotationResultsTotal.WithLabelValues("failed").Add(float64(len(saved.Errors)))
		metrics.AnnotationResultsTotal.WithLabelValues("saved").Add(float64(len(byModel) - len(saved.Errors)))

		saved.Errors = nil
		report.Saved.Merge(saved)
		report.Images++
	}

	logging.Info("Annotations applied: %d images, %d tags, %d captions, %d scores, %d ratings",
		report.Images, report.Saved.TagsSaved, report.Saved.CaptionsSaved,
		report.Saved.ScoresSaved, report.Saved.RatingsSaved)
	return report, nil
}
