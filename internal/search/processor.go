package search

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"time"

	"lorairo/internal/database"
	"lorairo/internal/logging"
	"lorairo/internal/metrics"

	"github.com/patrickmn/go-cache"
)

// Querier is the part of the database a Processor needs.
type Querier interface {
	GetImagesByFilter(ctx context.Context, f database.ImageFilter) ([]database.ImageRow, int64, error)
	Generation() uint64
}

// Result is one page of a search.
type Result struct {
	Rows       []database.ImageRow `json:"rows"`
	Total      int64               `json:"total"`
	Page       int                 `json:"page"`
	PageSize   int                 `json:"pageSize"`
	TotalPages int                 `json:"totalPages"`
}

type cachedResult struct {
	rows  []database.ImageRow
	total int64
}

// Processor turns search conditions into database queries. Results are
// memoized for a short TTL, keyed by the exact filter and the database
// write generation, so a write is never hidden by a stale entry.
type Processor struct {
	db    Querier
	cache *cache.Cache
}

// NewProcessor returns a Processor over db. A ttl of zero or less disables
// the result cache.
func NewProcessor(db Querier, ttl time.Duration) *Processor {
	p := &Processor{db: db}
	if ttl > 0 {
		p.cache = cache.New(ttl, 2*ttl)
	}
	return p
}

// ExecuteSearchWithFilters runs conds and returns every matching row with
// the total count.
func (p *Processor) ExecuteSearchWithFilters(ctx context.Context, conds Conditions) ([]database.ImageRow, int64, error) {
	if err := conds.Validate(); err != nil {
		metrics.SearchValidationErrors.Inc()
		return nil, 0, err
	}
	return p.run(ctx, conds.ToDBFilterArgs())
}

// ExecuteSearchPage runs conds and returns one page. page is clamped to at
// least 1; pageSize must be positive.
func (p *Processor) ExecuteSearchPage(ctx context.Context, conds Conditions, page, pageSize int) (Result, error) {
	if pageSize <= 0 {
		metrics.SearchValidationErrors.Inc()
		return Result{}, fmt.Errorf("%w: page_size=%d", database.ErrInvalidPagination, pageSize)
	}
	if err := conds.Validate(); err != nil {
		metrics.SearchValidationErrors.Inc()
		return Result{}, err
	}
	if page < 1 {
		page = 1
	}

	f := conds.ToDBFilterArgs()
	f.Page = page
	f.PageSize = pageSize

	rows, total, err := p.run(ctx, f)
	if err != nil {
		return Result{}, err
	}
	return Result{
		Rows:       rows,
		Total:      total,
		Page:       page,
		PageSize:   pageSize,
		TotalPages: database.TotalPages(total, pageSize),
	}, nil
}

// InvalidateCache drops every memoized result.
func (p *Processor) InvalidateCache() {
	if p.cache != nil {
		p.cache.Flush()
	}
}

func (p *Processor) run(ctx context.Context, f database.ImageFilter) ([]database.ImageRow, int64, error) {
	if p.cache == nil {
		metrics.SearchRequestsTotal.WithLabelValues("disabled").Inc()
		return p.query(ctx, f)
	}

	key, err := cacheKey(f, p.db.Generation())
	if err != nil {
		logging.Warn("search: uncacheable filter: %v", err)
		metrics.SearchRequestsTotal.WithLabelValues("disabled").Inc()
		return p.query(ctx, f)
	}

	if v, found := p.cache.Get(key); found {
		metrics.SearchRequestsTotal.WithLabelValues("hit").Inc()
		c := v.(cachedResult)
		return slices.Clone(c.rows), c.total, nil
	}

	metrics.SearchRequestsTotal.WithLabelValues("miss").Inc()
	rows, total, err := p.query(ctx, f)
	if err != nil {
		return nil, 0, err
	}
	p.cache.Set(key, cachedResult{rows: slices.Clone(rows), total: total}, cache.DefaultExpiration)
	return rows, total, nil
}

func (p *Processor) query(ctx context.Context, f database.ImageFilter) ([]database.ImageRow, int64, error) {
	rows, total, err := p.db.GetImagesByFilter(ctx, f)
	if err != nil {
		if database.IsValidationError(err) {
			metrics.SearchValidationErrors.Inc()
		}
		return nil, 0, err
	}
	metrics.SearchResultCount.Observe(float64(total))
	logging.Debug("search: %d rows of %d (tags=%v captions=%v logic=%s)",
		len(rows), total, f.Tags, f.CaptionKeywords, f.TagLogic)
	return rows, total, nil
}

// cacheKey is the generation followed by the JSON form of f. Pointer
// fields are encoded by value, so equal filters share a key.
func cacheKey(f database.ImageFilter, generation uint64) (string, error) {
	b, err := json.Marshal(f)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%d:%s", generation, b), nil
}
