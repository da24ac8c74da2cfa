package thumbcache

import (
	"slices"

	"lorairo/internal/metrics"

	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultMaxPages is used when New is given a non-positive size.
const DefaultMaxPages = 5

// Thumbnail is one rendered thumbnail of a result page.
type Thumbnail struct {
	ImageID int64  `json:"imageId"`
	Width   int    `json:"width"`
	Height  int    `json:"height"`
	Data    []byte `json:"-"`
}

// Stats describes the cache contents.
type Stats struct {
	CachedPages     int   `json:"cachedPages"`
	MaxPages        int   `json:"maxPages"`
	TotalThumbnails int   `json:"totalThumbnails"`
	PageNumbers     []int `json:"pageNumbers"`
}

// PageCache holds the thumbnails of recently shown result pages. A whole
// page is the unit of caching and eviction; the least recently used page
// goes first.
//
// GetPage and SetPage count as a use of the page. HasPage does not, so
// checking for a page never keeps it alive.
type PageCache struct {
	pages    *lru.Cache[int, []Thumbnail]
	maxPages int
}

// New returns an empty cache holding at most maxPages pages.
func New(maxPages int) *PageCache {
	if maxPages <= 0 {
		maxPages = DefaultMaxPages
	}
	pages, err := lru.New[int, []Thumbnail](maxPages)
	if err != nil {
		// Only returned for a non-positive size.
		panic(err)
	}
	return &PageCache{pages: pages, maxPages: maxPages}
}

// SetPage stores the thumbnails of page and marks it most recently used,
// evicting the least recently used page when the cache is full. Replacing
// an existing page does not evict anything.
func (c *PageCache) SetPage(page int, thumbs []Thumbnail) {
	if c.pages.Add(page, slices.Clone(thumbs)) {
		metrics.PageCacheEvictions.Inc()
	}
	metrics.PageCachePages.Set(float64(c.pages.Len()))
}

// GetPage returns the thumbnails of page and marks it most recently used.
func (c *PageCache) GetPage(page int) ([]Thumbnail, bool) {
	thumbs, ok := c.pages.Get(page)
	if !ok {
		metrics.PageCacheMisses.Inc()
		return nil, false
	}
	metrics.PageCacheHits.Inc()
	return thumbs, true
}

// HasPage reports whether page is cached without changing its recency.
func (c *PageCache) HasPage(page int) bool {
	return c.pages.Contains(page)
}

// RemovePage drops page and reports whether it was cached.
func (c *PageCache) RemovePage(page int) bool {
	removed := c.pages.Remove(page)
	metrics.PageCachePages.Set(float64(c.pages.Len()))
	return removed
}

// Clear drops every page.
func (c *PageCache) Clear() {
	c.pages.Purge()
	metrics.PageCachePages.Set(0)
}

// GetThumbnailByID searches every cached page, least recently used first,
// for the thumbnail of imageID. It does not change recency.
func (c *PageCache) GetThumbnailByID(imageID int64) (Thumbnail, bool) {
	for _, page := range c.pages.Keys() {
		thumbs, ok := c.pages.Peek(page)
		if !ok {
			continue
		}
		for _, t := range thumbs {
			if t.ImageID == imageID {
				return t, true
			}
		}
	}
	return Thumbnail{}, false
}

// MaxPages returns the configured capacity.
func (c *PageCache) MaxPages() int {
	return c.maxPages
}

// Stats returns the cache contents for diagnostics. Page numbers are
// sorted ascending.
func (c *PageCache) Stats() Stats {
	keys := c.pages.Keys()
	s := Stats{
		CachedPages: len(keys),
		MaxPages:    c.maxPages,
		PageNumbers: make([]int, 0, len(keys)),
	}
	for _, page := range keys {
		if thumbs, ok := c.pages.Peek(page); ok {
			s.TotalThumbnails += len(thumbs)
			s.PageNumbers = append(s.PageNumbers, page)
		}
	}
	slices.Sort(s.PageNumbers)
	s.CachedPages = len(s.PageNumbers)
	return s
}
