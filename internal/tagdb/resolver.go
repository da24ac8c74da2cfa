package tagdb

import (
	"context"
	"errors"
	"slices"

	"lorairo/internal/logging"
	"lorairo/internal/metrics"
)

// Outcome says how a tag was resolved.
type Outcome string

const (
	OutcomeFound          Outcome = "found"
	OutcomeFoundAmbiguous Outcome = "found_ambiguous"
	OutcomeCreated        Outcome = "created"
	OutcomeRacedFound     Outcome = "raced_found"
	OutcomeRacedMissing   Outcome = "raced_missing"
	OutcomeFailed         Outcome = "failed"
	OutcomeInvalid        Outcome = "invalid"
)

// Resolution is the result of Resolve. TagID is only meaningful when OK
// reports true.
type Resolution struct {
	TagID   int64
	Outcome Outcome
	Err     error
}

// OK reports whether the resolution produced a usable id.
func (r Resolution) OK() bool {
	switch r.Outcome {
	case OutcomeFound, OutcomeFoundAmbiguous, OutcomeCreated, OutcomeRacedFound:
		return true
	}
	return false
}

// Resolver resolves free-text tags to dictionary ids, registering unseen
// tags. It never fails a caller: problems surface as an Outcome.
type Resolver struct {
	store Store
}

// NewResolver returns a Resolver over store.
func NewResolver(store Store) *Resolver {
	return &Resolver{store: store}
}

// Resolve looks the normalized tag up, registers it under the Lorairo
// format when unseen, and recovers from a concurrent registration by
// searching again.
func (r *Resolver) Resolve(ctx context.Context, tag string) Resolution {
	res := r.resolve(ctx, tag)
	metrics.TagRegistrationsTotal.WithLabelValues(string(res.Outcome)).Inc()
	return res
}

func (r *Resolver) resolve(ctx context.Context, tag string) Resolution {
	normalized := Normalize(tag)
	if normalized == "" {
		return Resolution{Outcome: OutcomeInvalid}
	}

	if res, ok := r.search(ctx, tag, normalized); ok {
		return res
	}

	id, err := r.store.Register(ctx, Registration{
		Tag:       normalized,
		SourceTag: tag,
		Format:    FormatLorairo,
		Type:      TypeUnknown,
	})
	if err == nil {
		logging.Debug("Registered new tag %q as %d", normalized, id)
		return Resolution{TagID: id, Outcome: OutcomeCreated}
	}

	if !errors.Is(err, ErrDuplicateTag) {
		logging.Error("Failed to register tag %q: %v", normalized, err)
		return Resolution{Outcome: OutcomeFailed, Err: err}
	}

	// A concurrent writer registered it between our search and insert.
	if res, ok := r.search(ctx, tag, normalized); ok {
		if res.Outcome == OutcomeFailed {
			return res
		}
		res.Outcome = OutcomeRacedFound
		return res
	}

	logging.Warn("Tag %q conflicted on insert but is still not found", normalized)
	return Resolution{Outcome: OutcomeRacedMissing, Err: err}
}

// search returns ok=false only when nothing matched.
func (r *Resolver) search(ctx context.Context, tag, normalized string) (Resolution, bool) {
	ids, err := r.store.Search(ctx, normalized)
	if err != nil {
		logging.Error("Tag search for %q failed: %v", normalized, err)
		return Resolution{Outcome: OutcomeFailed, Err: err}, true
	}

	switch len(ids) {
	case 0:
		return Resolution{}, false
	case 1:
		return Resolution{TagID: ids[0], Outcome: OutcomeFound}, true
	default:
		lowest := slices.Min(ids)
		logging.Warn("Tag %q (from %q) has %d dictionary entries %v, using %d",
			normalized, tag, len(ids), ids, lowest)
		return Resolution{TagID: lowest, Outcome: OutcomeFoundAmbiguous}, true
	}
}

// GetOrCreateTagID returns the dictionary id of tag, or nil when it could
// not be resolved.
func (r *Resolver) GetOrCreateTagID(ctx context.Context, tag string) *int64 {
	res := r.Resolve(ctx, tag)
	if !res.OK() {
		return nil
	}
	id := res.TagID
	return &id
}
