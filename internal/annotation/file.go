package annotation

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// LoadResults reads a results file written by an external annotation run.
// Files ending in .json are decoded as JSON, everything else as YAML.
func LoadResults(path string) (PHashAnnotationResults, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read results file: %w", err)
	}

	results := PHashAnnotationResults{}
	if strings.EqualFold(filepath.Ext(path), ".json") {
		err = json.Unmarshal(data, &results)
	} else {
		err = yaml.Unmarshal(data, &results)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse results file %s: %w", path, err)
	}
	return results, nil
}

// SaveResults writes results as YAML, or JSON when path ends in .json.
func SaveResults(path string, results PHashAnnotationResults) error {
	var (
		data []byte
		err  error
	)
	if strings.EqualFold(filepath.Ext(path), ".json") {
		data, err = json.MarshalIndent(results, "", "  ")
	} else {
		data, err = yaml.Marshal(results)
	}
	if err != nil {
		return fmt.Errorf("failed to encode results: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write results file: %w", err)
	}
	return nil
}

// FileAnnotator serves precomputed results. It lets a project be annotated
// from the output of an annotation run performed elsewhere.
type FileAnnotator struct {
	results PHashAnnotationResults
}

// NewFileAnnotator returns an Annotator backed by results.
func NewFileAnnotator(results PHashAnnotationResults) *FileAnnotator {
	return &FileAnnotator{results: results}
}

// Annotate returns the stored results of the requested phashes. A phash
// with no stored results is left out; a requested model missing for a
// known phash is reported as a failed ModelResult. With no model names
// every stored model is returned.
func (f *FileAnnotator) Annotate(ctx context.Context, _ []ImageInput, modelNames, phashes []string) (PHashAnnotationResults, error) {
	out := make(PHashAnnotationResults, len(phashes))
	for _, ph := range phashes {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		stored, ok := f.results[ph]
		if !ok {
			continue
		}

		byModel := make(map[string]ModelResult)
		if len(modelNames) == 0 {
			for name, r := range stored {
				byModel[name] = r
			}
		}
		for _, name := range modelNames {
			r, ok := stored[name]
			if !ok {
				r = ModelResult{Error: "no result for model " + name}
			}
			byModel[name] = r
		}
		out[ph] = byModel
	}
	return out, nil
}
