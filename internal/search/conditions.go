package search

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"lorairo/internal/database"
)

// SearchType selects what Keywords are matched against.
type SearchType string

const (
	SearchTags    SearchType = "tags"
	SearchCaption SearchType = "caption"
)

// ErrInvalidSearchType is returned for a SearchType other than tags or
// caption.
var ErrInvalidSearchType = errors.New("search type must be \"tags\" or \"caption\"")

// Conditions is what a user asked for in the search panel. The zero value
// is a valid search for every image, newest first, unrated and NSFW images
// included.
type Conditions struct {
	SearchType SearchType        `json:"searchType,omitempty" yaml:"search_type,omitempty"`
	Keywords   []string          `json:"keywords,omitempty" yaml:"keywords,omitempty"`
	TagLogic   database.TagLogic `json:"tagLogic,omitempty" yaml:"tag_logic,omitempty"`

	Resolution int        `json:"resolution,omitempty" yaml:"resolution,omitempty"`
	DateFrom   *time.Time `json:"dateFrom,omitempty" yaml:"date_from,omitempty"`
	DateTo     *time.Time `json:"dateTo,omitempty" yaml:"date_to,omitempty"`

	RatingFilter   *string `json:"ratingFilter,omitempty" yaml:"rating_filter,omitempty"`
	AIRatingFilter *string `json:"aiRatingFilter,omitempty" yaml:"ai_rating_filter,omitempty"`
	ExcludeUnrated bool    `json:"excludeUnrated,omitempty" yaml:"exclude_unrated,omitempty"`
	ExcludeNSFW    bool    `json:"excludeNsfw,omitempty" yaml:"exclude_nsfw,omitempty"`

	// Storage scale, [0, 10].
	ScoreMin *float64 `json:"scoreMin,omitempty" yaml:"score_min,omitempty"`
	ScoreMax *float64 `json:"scoreMax,omitempty" yaml:"score_max,omitempty"`

	Sort     database.SortKey `json:"sort,omitempty" yaml:"sort,omitempty"`
	SortDesc bool             `json:"sortDesc,omitempty" yaml:"sort_desc,omitempty"`
}

// IncludeUnrated reports whether unrated images pass a rating filter.
func (c Conditions) IncludeUnrated() bool { return !c.ExcludeUnrated }

// IncludeNSFW reports whether NSFW-rated images are returned.
func (c Conditions) IncludeNSFW() bool { return !c.ExcludeNSFW }

// Validate checks the fields that are not checked by the database filter.
func (c Conditions) Validate() error {
	switch c.SearchType {
	case "", SearchTags, SearchCaption:
		return nil
	default:
		return fmt.Errorf("%w: %q", ErrInvalidSearchType, c.SearchType)
	}
}

// ToDBFilterArgs maps the conditions onto a database filter. Every field
// is carried over; paging is left for the caller.
func (c Conditions) ToDBFilterArgs() database.ImageFilter {
	f := database.ImageFilter{
		TagLogic:           c.TagLogic,
		Resolution:         c.Resolution,
		DateFrom:           c.DateFrom,
		DateTo:             c.DateTo,
		ManualRatingFilter: c.RatingFilter,
		AIRatingFilter:     c.AIRatingFilter,
		ExcludeUnrated:     c.ExcludeUnrated,
		ExcludeNSFW:        c.ExcludeNSFW,
		ScoreMin:           c.ScoreMin,
		ScoreMax:           c.ScoreMax,
		Sort:               c.Sort,
		SortDesc:           c.SortDesc,
	}
	if f.TagLogic == "" {
		f.TagLogic = database.TagLogicAnd
	}

	keywords := append([]string(nil), c.Keywords...)
	if c.SearchType == SearchCaption {
		f.CaptionKeywords = keywords
	} else {
		f.Tags = keywords
	}
	return f
}

// ParseKeywords splits comma-separated input into trimmed, non-empty
// keywords.
func ParseKeywords(text string) []string {
	parts := strings.Split(text, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// ParseDate accepts RFC 3339 timestamps and plain dates. A plain date used
// as an upper bound covers the whole day. Empty input is no bound.
func ParseDate(v string, endOfDay bool) (*time.Time, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return nil, nil
	}
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return &t, nil
	}
	t, err := time.Parse(time.DateOnly, v)
	if err != nil {
		return nil, fmt.Errorf("invalid date %q: use YYYY-MM-DD or RFC 3339", v)
	}
	if endOfDay {
		t = t.Add(24*time.Hour - time.Nanosecond)
	}
	return &t, nil
}
