package database

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"lorairo/internal/logging"
	"lorairo/internal/tagdb"

	"gorm.io/gorm"
)

// TagLogic combines several tag or caption keywords.
type TagLogic string

const (
	TagLogicAnd TagLogic = "and"
	TagLogicOr  TagLogic = "or"
)

// SortKey selects the primary ordering of filter results. Ties are always
// broken by image id ascending.
type SortKey string

const (
	SortCreated SortKey = "created"
	SortUpdated SortKey = "updated"
	SortID      SortKey = "id"
	SortWidth   SortKey = "width"
	SortHeight  SortKey = "height"
	SortScore   SortKey = "score"
)

var sortColumns = map[SortKey]string{
	SortCreated: "images.created_at",
	SortUpdated: "images.updated_at",
	SortID:      "images.id",
	SortWidth:   "images.width",
	SortHeight:  "images.height",
	SortScore:   "(SELECT MAX(s.score) FROM scores s WHERE s.image_id = images.id)",
}

// ImageFilter is the complete argument set of GetImagesByFilter. Every field
// is optional and the zero value matches every non-deleted image, newest
// first.
//
// Unrated and NSFW images are included by default; ExcludeUnrated and
// ExcludeNSFW opt out so that the zero value keeps that default.
type ImageFilter struct {
	Tags            []string
	CaptionKeywords []string
	// TagLogic applies to both Tags and CaptionKeywords. Empty means and.
	TagLogic TagLogic

	// Resolution > 0 keeps images whose long edge is at least Resolution and
	// reports the rendition of that resolution where one exists.
	Resolution int

	DateFrom *time.Time
	DateTo   *time.Time

	ManualRatingFilter *string
	AIRatingFilter     *string
	ExcludeUnrated     bool
	ExcludeNSFW        bool

	// Storage-scale bounds, inclusive.
	ScoreMin *float64
	ScoreMax *float64

	Sort     SortKey
	SortDesc bool

	// Page is 1-based. Page 0 or PageSize 0 returns every match.
	Page     int
	PageSize int
}

// Validate normalizes f in place and reports the first invalid field.
func (f *ImageFilter) Validate() error {
	logic := TagLogic(strings.ToLower(strings.TrimSpace(string(f.TagLogic))))
	switch logic {
	case "":
		logic = TagLogicAnd
	case TagLogicAnd, TagLogicOr:
	default:
		return fmt.Errorf("%w: %q", ErrInvalidTagLogic, f.TagLogic)
	}
	f.TagLogic = logic

	if f.Resolution < 0 {
		return fmt.Errorf("%w: %d", ErrInvalidResolution, f.Resolution)
	}

	if f.DateFrom != nil && f.DateTo != nil && f.DateFrom.After(*f.DateTo) {
		return fmt.Errorf("%w: %s > %s", ErrInvalidDateRange,
			f.DateFrom.Format(time.RFC3339), f.DateTo.Format(time.RFC3339))
	}

	for _, r := range []*string{f.ManualRatingFilter, f.AIRatingFilter} {
		if r != nil && !IsValidRating(*r) {
			return fmt.Errorf("%w: %q", ErrInvalidRating, *r)
		}
	}

	if f.ScoreMin != nil {
		if err := ValidateDBScore(*f.ScoreMin); err != nil {
			return fmt.Errorf("score_min: %w", err)
		}
	}
	if f.ScoreMax != nil {
		if err := ValidateDBScore(*f.ScoreMax); err != nil {
			return fmt.Errorf("score_max: %w", err)
		}
	}
	if f.ScoreMin != nil && f.ScoreMax != nil && *f.ScoreMin > *f.ScoreMax {
		return fmt.Errorf("%w: score_min %v > score_max %v", ErrScoreOutOfRange, *f.ScoreMin, *f.ScoreMax)
	}

	if f.Sort != "" {
		if _, ok := sortColumns[f.Sort]; !ok {
			return fmt.Errorf("%w: %q", ErrInvalidSort, f.Sort)
		}
	}

	if f.Page < 0 || f.PageSize < 0 {
		return fmt.Errorf("%w: page=%d page_size=%d", ErrInvalidPagination, f.Page, f.PageSize)
	}
	// The offset (page-1)*page_size must fit in an int.
	if f.PageSize > 0 && f.Page > math.MaxInt/f.PageSize {
		return fmt.Errorf("%w: page=%d page_size=%d", ErrInvalidPagination, f.Page, f.PageSize)
	}

	return nil
}

// GetImagesByFilter returns one page of images matching f and the total
// number of matches. No match is not an error: the result is an empty slice
// and a zero total. Invalid filters fail before any query runs.
func (d *Database) GetImagesByFilter(ctx context.Context, f ImageFilter) (rows []ImageRow, total int64, err error) {
	start := time.Now()
	defer func() { recordQuery("get_images_by_filter", start, err) }()

	if err = f.Validate(); err != nil {
		return nil, 0, err
	}

	q := d.db.WithContext(ctx).Model(&Image{})
	q = applyTagFilter(q, normalizeTags(f.Tags), f.TagLogic)
	q = applyCaptionFilter(q, trimKeywords(f.CaptionKeywords), f.TagLogic)
	q = applyResolutionFilter(q, f.Resolution)
	q = applyDateFilter(q, f.DateFrom, f.DateTo)
	q = applyRatingFilter(q, f.ManualRatingFilter, f.AIRatingFilter, !f.ExcludeUnrated)
	q = applyNSFWFilter(q, !f.ExcludeNSFW)
	q = applyScoreFilter(q, f.ScoreMin, f.ScoreMax)

	// The same conditions feed the count and the page query.
	base := q.Session(&gorm.Session{})

	if err = base.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("count query failed: %w", err)
	}

	rows = []ImageRow{}
	if total == 0 {
		return rows, 0, nil
	}

	page := base.Select("images.id, images.phash, images.stored_image_path, images.width, " +
		"images.height, images.manual_rating, images.created_at, images.updated_at")
	page = applySort(page, f.Sort, f.SortDesc)
	if f.Page > 0 && f.PageSize > 0 {
		page = page.Limit(f.PageSize).Offset((f.Page - 1) * f.PageSize)
	}

	if err = page.Find(&rows).Error; err != nil {
		return nil, 0, fmt.Errorf("filter query failed: %w", err)
	}

	if f.Resolution > 0 && len(rows) > 0 {
		if err = d.substituteRenditions(ctx, rows, f.Resolution); err != nil {
			return nil, 0, err
		}
	}

	logging.Debug("GetImagesByFilter: %d/%d rows in %v", len(rows), total, time.Since(start))
	return rows, total, nil
}

// TotalPages returns the page count for total matches, never less than 1.
func TotalPages(total int64, pageSize int) int {
	if pageSize <= 0 || total <= 0 {
		return 1
	}
	return int((total + int64(pageSize) - 1) / int64(pageSize))
}

func normalizeTags(tags []string) []string {
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		if n := tagdb.Normalize(t); n != "" {
			out = append(out, n)
		}
	}
	return out
}

func trimKeywords(keywords []string) []string {
	out := make([]string, 0, len(keywords))
	for _, k := range keywords {
		if k = strings.TrimSpace(k); k != "" {
			out = append(out, k)
		}
	}
	return out
}

// likeEscaper escapes LIKE metacharacters for use with ESCAPE '\'.
var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// tagPredicate matches one keyword against column; "*" is a wildcard.
func tagPredicate(column, keyword string) (string, interface{}) {
	if !strings.Contains(keyword, "*") {
		return column + " = ?", keyword
	}
	pattern := strings.ReplaceAll(likeEscaper.Replace(keyword), "*", "%")
	return column + ` LIKE ? ESCAPE '\'`, pattern
}

// applyTagFilter requires every tag (and) or any tag (or) to be attached to
// the image by some model.
func applyTagFilter(q *gorm.DB, tags []string, logic TagLogic) *gorm.DB {
	if len(tags) == 0 {
		return q
	}

	if logic == TagLogicOr {
		preds := make([]string, 0, len(tags))
		args := make([]interface{}, 0, len(tags))
		for _, t := range tags {
			p, a := tagPredicate("t.tag", t)
			preds = append(preds, p)
			args = append(args, a)
		}
		return q.Where("EXISTS (SELECT 1 FROM tags t WHERE t.image_id = images.id AND ("+
			strings.Join(preds, " OR ")+"))", args...)
	}

	for _, t := range tags {
		p, a := tagPredicate("t.tag", t)
		q = q.Where("EXISTS (SELECT 1 FROM tags t WHERE t.image_id = images.id AND "+p+")", a)
	}
	return q
}

// applyCaptionFilter matches caption substrings, case-insensitively for
// ASCII, combined with the same logic as tags.
func applyCaptionFilter(q *gorm.DB, keywords []string, logic TagLogic) *gorm.DB {
	if len(keywords) == 0 {
		return q
	}

	const pred = `c.caption LIKE ? ESCAPE '\'`
	pattern := func(k string) string { return "%" + likeEscaper.Replace(k) + "%" }

	if logic == TagLogicOr {
		preds := make([]string, len(keywords))
		args := make([]interface{}, len(keywords))
		for i, k := range keywords {
			preds[i] = pred
			args[i] = pattern(k)
		}
		return q.Where("EXISTS (SELECT 1 FROM captions c WHERE c.image_id = images.id AND ("+
			strings.Join(preds, " OR ")+"))", args...)
	}

	for _, k := range keywords {
		q = q.Where("EXISTS (SELECT 1 FROM captions c WHERE c.image_id = images.id AND "+pred+")", pattern(k))
	}
	return q
}

func applyResolutionFilter(q *gorm.DB, resolution int) *gorm.DB {
	if resolution <= 0 {
		return q
	}
	return q.Where("MAX(images.width, images.height) >= ?", resolution)
}

func applyDateFilter(q *gorm.DB, from, to *time.Time) *gorm.DB {
	if from != nil {
		q = q.Where("images.created_at >= ?", from.UTC())
	}
	if to != nil {
		q = q.Where("images.created_at <= ?", to.UTC())
	}
	return q
}

const unratedPredicate = "(images.manual_rating IS NULL AND " +
	"NOT EXISTS (SELECT 1 FROM ratings r WHERE r.image_id = images.id))"

// applyRatingFilter applies the manual and AI rating filters. With both set
// the manual rating takes precedence: an image with a manual rating matches
// on that alone, and the AI rating is only consulted when no manual rating
// exists. includeUnrated also admits images with no rating of either kind.
func applyRatingFilter(q *gorm.DB, manual, ai *string, includeUnrated bool) *gorm.DB {
	const aiExists = "EXISTS (SELECT 1 FROM ratings r WHERE r.image_id = images.id AND r.normalized_rating = ?)"

	var (
		pred string
		args []interface{}
	)

	switch {
	case manual != nil && ai != nil:
		pred = "(images.manual_rating = ? OR (images.manual_rating IS NULL AND " + aiExists + "))"
		args = []interface{}{*manual, *ai}
	case manual != nil:
		pred = "images.manual_rating = ?"
		args = []interface{}{*manual}
	case ai != nil:
		pred = aiExists
		args = []interface{}{*ai}
	default:
		return q
	}

	if includeUnrated {
		pred = "(" + pred + " OR " + unratedPredicate + ")"
	}
	return q.Where(pred, args...)
}

// applyNSFWFilter drops images whose effective rating (manual when present,
// otherwise any AI rating) is in NSFWRatings.
func applyNSFWFilter(q *gorm.DB, includeNSFW bool) *gorm.DB {
	if includeNSFW {
		return q
	}
	return q.Where("NOT ((images.manual_rating IS NOT NULL AND images.manual_rating IN ?) OR "+
		"(images.manual_rating IS NULL AND EXISTS (SELECT 1 FROM ratings r "+
		"WHERE r.image_id = images.id AND r.normalized_rating IN ?)))", NSFWRatings, NSFWRatings)
}

// applyScoreFilter keeps images having a score row, from any model, inside
// the inclusive bounds. With both bounds nil it returns q itself.
func applyScoreFilter(q *gorm.DB, scoreMin, scoreMax *float64) *gorm.DB {
	switch {
	case scoreMin == nil && scoreMax == nil:
		return q
	case scoreMax == nil:
		return q.Where("EXISTS (SELECT 1 FROM scores s WHERE s.image_id = images.id AND s.score >= ?)", *scoreMin)
	case scoreMin == nil:
		return q.Where("EXISTS (SELECT 1 FROM scores s WHERE s.image_id = images.id AND s.score <= ?)", *scoreMax)
	default:
		return q.Where("EXISTS (SELECT 1 FROM scores s WHERE s.image_id = images.id AND s.score >= ? AND s.score <= ?)",
			*scoreMin, *scoreMax)
	}
}

func applySort(q *gorm.DB, key SortKey, desc bool) *gorm.DB {
	if key == "" {
		key, desc = SortCreated, true
	}
	dir := "ASC"
	if desc {
		dir = "DESC"
	}
	q = q.Order(sortColumns[key] + " " + dir)
	if key != SortID {
		q = q.Order("images.id ASC")
	}
	return q
}

// substituteRenditions swaps in the rendition of the given resolution for
// every row that has one.
func (d *Database) substituteRenditions(ctx context.Context, rows []ImageRow, resolution int) error {
	ids := make([]int64, len(rows))
	for i, r := range rows {
		ids[i] = r.ID
	}

	var renditions []ProcessedImage
	err := d.db.WithContext(ctx).
		Where("resolution = ? AND image_id IN ?", resolution, ids).
		Find(&renditions).Error
	if err != nil {
		return fmt.Errorf("rendition lookup failed: %w", err)
	}

	byImage := make(map[int64]ProcessedImage, len(renditions))
	for _, p := range renditions {
		byImage[p.ImageID] = p
	}

	for i := range rows {
		if p, ok := byImage[rows[i].ID]; ok {
			rows[i].StoredImagePath = p.StoredImagePath
			rows[i].Width = p.Width
			rows[i].Height = p.Height
			rows[i].Processed = true
		}
	}
	return nil
}
