package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
)

// GetOrCreateModel returns the model called name, creating it with the
// given provider and function types when missing. Types are added to an
// existing model but never removed.
func (d *Database) GetOrCreateModel(ctx context.Context, name, provider string, types []string) (m *Model, err error) {
	start := time.Now()
	defer func() { recordQuery("get_or_create_model", start, err) }()

	if name == "" {
		return nil, errors.New("model name must not be empty")
	}

	modelTypes, err := d.lookupModelTypes(ctx, types)
	if err != nil {
		return nil, err
	}

	db := d.db.WithContext(ctx)
	m = &Model{}

	err = db.Preload("Types").Where("name = ?", name).First(m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		m = &Model{Name: name, Provider: provider, Types: modelTypes}
		err = db.Create(m).Error
		if isUniqueViolation(err) {
			m = &Model{}
			err = db.Preload("Types").Where("name = ?", name).First(m).Error
		}
		if err != nil {
			return nil, fmt.Errorf("failed to create model %s: %w", name, err)
		}
		d.bump()
		return m, nil
	}
	if err != nil {
		return nil, err
	}

	if missing := missingTypes(m.Types, modelTypes); len(missing) > 0 {
		if err = db.Model(m).Association("Types").Append(missing); err != nil {
			return nil, fmt.Errorf("failed to add types to model %s: %w", name, err)
		}
		d.bump()
	}
	return m, nil
}

// ListModels returns every registered model, optionally only those with the
// given function type.
func (d *Database) ListModels(ctx context.Context, modelType string) ([]Model, error) {
	q := d.db.WithContext(ctx).Preload("Types").Order("models.name ASC")
	if modelType != "" {
		q = q.Where("EXISTS (SELECT 1 FROM model_function_associations a "+
			"JOIN model_types mt ON mt.id = a.model_type_id "+
			"WHERE a.model_id = models.id AND mt.name = ?)", modelType)
	}
	var models []Model
	if err := q.Find(&models).Error; err != nil {
		return nil, err
	}
	return models, nil
}

func (d *Database) lookupModelTypes(ctx context.Context, names []string) ([]ModelType, error) {
	if len(names) == 0 {
		return nil, nil
	}
	var found []ModelType
	if err := d.db.WithContext(ctx).Where("name IN ?", names).Find(&found).Error; err != nil {
		return nil, err
	}
	if len(found) != len(uniqueStrings(names)) {
		return nil, fmt.Errorf("unknown model type in %v", names)
	}
	return found, nil
}

func missingTypes(have, want []ModelType) []ModelType {
	seen := make(map[int64]bool, len(have))
	for _, t := range have {
		seen[t.ID] = true
	}
	var out []ModelType
	for _, t := range want {
		if !seen[t.ID] {
			out = append(out, t)
		}
	}
	return out
}

func uniqueStrings(in []string) []string {
	seen := make(map[string]bool, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}
