package pagination

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"lorairo/internal/database"
	"lorairo/internal/logging"
	"lorairo/internal/media"
	"lorairo/internal/metrics"
	"lorairo/internal/search"
	"lorairo/internal/thumbcache"
	"lorairo/internal/workers"

	"golang.org/x/sync/errgroup"
)

var (
	// ErrLoadInProgress is returned when a page is requested while another
	// page is still loading. The request is dropped, not queued.
	ErrLoadInProgress = errors.New("a page load is already in progress")

	// ErrNoSearch is returned when navigating before SetSearch.
	ErrNoSearch = errors.New("no active search")
)

// Searcher runs one page of a search.
type Searcher interface {
	ExecuteSearchPage(ctx context.Context, conds search.Conditions, page, pageSize int) (search.Result, error)
}

// Renderer renders the thumbnail of one image file.
type Renderer interface {
	Render(path string, processed bool) (media.Thumbnail, error)
}

// PathResolver turns stored relative paths into absolute ones.
type PathResolver interface {
	ResolveStoredPath(rel string) (string, error)
}

// State is a snapshot of the navigation state.
type State struct {
	CurrentPage int   `json:"currentPage"`
	TotalPages  int   `json:"totalPages"`
	Total       int64 `json:"total"`
	IsLoading   bool  `json:"isLoading"`
}

// CanPrevious reports whether Previous and First are enabled.
func (s State) CanPrevious() bool { return s.CurrentPage > 1 && !s.IsLoading }

// CanNext reports whether Next and Last are enabled.
func (s State) CanNext() bool { return s.CurrentPage < s.TotalPages && !s.IsLoading }

// Page is a loaded result page.
type Page struct {
	Number     int                    `json:"number"`
	Thumbnails []thumbcache.Thumbnail `json:"thumbnails"`
	// Cached is set when the page came from the page cache.
	Cached bool `json:"cached"`
	// Failed counts images whose thumbnail could not be rendered. They
	// remain on the page without data.
	Failed int `json:"failed"`
}

// Callbacks receive the outcome of every page load. They run on the
// loading goroutine after the loading flag has been cleared.
type Callbacks struct {
	OnLoaded func(Page)
	OnError  func(page int, err error)
}

type load struct {
	done chan struct{}
	page Page
	err  error
}

// Controller tracks the current page of a search and loads pages in the
// background, one at a time.
type Controller struct {
	searcher Searcher
	renderer Renderer
	paths    PathResolver
	cache    *thumbcache.PageCache
	pageSize int
	workers  int
	gen      func() uint64

	mu        sync.Mutex
	conds     *search.Conditions
	state     State
	callbacks Callbacks
	// cacheGen is the data generation the cached pages were read at.
	cacheGen uint64
	wg       sync.WaitGroup
}

// Options configures a Controller.
type Options struct {
	PageSize int
	// Workers bounds concurrent thumbnail renders; 0 picks a CPU-based
	// default.
	Workers int
	// Generation reports the data generation; cached pages are dropped
	// once it moves. nil means the data never changes.
	Generation func() uint64
}

// New returns a Controller. cache is owned by the controller from now on.
func New(searcher Searcher, renderer Renderer, paths PathResolver, cache *thumbcache.PageCache, opts Options) *Controller {
	if opts.PageSize <= 0 {
		opts.PageSize = 100
	}
	if opts.Workers <= 0 {
		opts.Workers = workers.ForCPU(workers.Override())
	}
	if opts.Generation == nil {
		opts.Generation = func() uint64 { return 0 }
	}
	return &Controller{
		searcher: searcher,
		renderer: renderer,
		paths:    paths,
		cache:    cache,
		pageSize: opts.PageSize,
		workers:  opts.Workers,
		gen:      opts.Generation,
		state:    State{CurrentPage: 1, TotalPages: 1},
	}
}

// SetCallbacks replaces the load callbacks.
func (c *Controller) SetCallbacks(cb Callbacks) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.callbacks = cb
}

// State returns the current navigation state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// PageSize returns the number of images per page.
func (c *Controller) PageSize() int {
	return c.pageSize
}

// SetSearch starts a new search: the page cache is cleared and page 1 is
// loaded. It fails with ErrLoadInProgress while a page is loading.
func (c *Controller) SetSearch(ctx context.Context, conds search.Conditions) error {
	c.mu.Lock()
	if c.state.IsLoading {
		c.mu.Unlock()
		metrics.PageLoadsTotal.WithLabelValues("rejected").Inc()
		return ErrLoadInProgress
	}
	c.conds = &conds
	c.state = State{CurrentPage: 1, TotalPages: 1}
	c.cache.Clear()
	c.cacheGen = c.gen()
	c.startLocked(ctx, 1)
	c.mu.Unlock()
	return nil
}

// RequestPage starts loading page n, clamped to [1, TotalPages]. A cached
// page is served synchronously without a query or render.
func (c *Controller) RequestPage(ctx context.Context, n int) error {
	c.mu.Lock()
	if c.conds == nil {
		c.mu.Unlock()
		return ErrNoSearch
	}
	if c.state.IsLoading {
		c.mu.Unlock()
		metrics.PageLoadsTotal.WithLabelValues("rejected").Inc()
		return ErrLoadInProgress
	}

	c.refreshLocked()
	n = min(max(n, 1), c.state.TotalPages)

	if thumbs, ok := c.cache.GetPage(n); ok {
		c.state.CurrentPage = n
		cb := c.callbacks
		c.mu.Unlock()

		metrics.PageLoadsTotal.WithLabelValues("cached").Inc()
		if cb.OnLoaded != nil {
			cb.OnLoaded(Page{Number: n, Thumbnails: thumbs, Cached: true})
		}
		return nil
	}

	c.startLocked(ctx, n)
	c.mu.Unlock()
	return nil
}

// LoadPage requests page n and waits for it. ctx bounds only the wait: the
// load itself is shared state and runs to completion.
func (c *Controller) LoadPage(ctx context.Context, n int) (Page, error) {
	c.mu.Lock()
	if c.conds == nil {
		c.mu.Unlock()
		return Page{}, ErrNoSearch
	}
	if c.state.IsLoading {
		c.mu.Unlock()
		metrics.PageLoadsTotal.WithLabelValues("rejected").Inc()
		return Page{}, ErrLoadInProgress
	}

	c.refreshLocked()
	n = min(max(n, 1), c.state.TotalPages)
	if thumbs, ok := c.cache.GetPage(n); ok {
		c.state.CurrentPage = n
		c.mu.Unlock()
		metrics.PageLoadsTotal.WithLabelValues("cached").Inc()
		return Page{Number: n, Thumbnails: thumbs, Cached: true}, nil
	}

	l := c.startLocked(context.WithoutCancel(ctx), n)
	c.mu.Unlock()

	select {
	case <-l.done:
		return l.page, l.err
	case <-ctx.Done():
		return Page{}, ctx.Err()
	}
}

// Thumbnail returns a thumbnail from any cached page.
func (c *Controller) Thumbnail(imageID int64) (thumbcache.Thumbnail, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.refreshLocked()
	return c.cache.GetThumbnailByID(imageID)
}

// refreshLocked drops every cached page once the data has changed since
// the pages were read. c.mu must be held.
func (c *Controller) refreshLocked() {
	if g := c.gen(); g != c.cacheGen {
		c.cache.Clear()
		c.cacheGen = g
		metrics.PageCacheInvalidations.Inc()
	}
}

// Wait blocks until no page load is running.
func (c *Controller) Wait() {
	c.wg.Wait()
}

// First loads page 1.
func (c *Controller) First(ctx context.Context) error {
	s := c.State()
	if !s.CanPrevious() {
		return c.disabled(s)
	}
	return c.RequestPage(ctx, 1)
}

// Previous loads the page before the current one.
func (c *Controller) Previous(ctx context.Context) error {
	s := c.State()
	if !s.CanPrevious() {
		return c.disabled(s)
	}
	return c.RequestPage(ctx, s.CurrentPage-1)
}

// Next loads the page after the current one.
func (c *Controller) Next(ctx context.Context) error {
	s := c.State()
	if !s.CanNext() {
		return c.disabled(s)
	}
	return c.RequestPage(ctx, s.CurrentPage+1)
}

// Last loads the final page.
func (c *Controller) Last(ctx context.Context) error {
	s := c.State()
	if !s.CanNext() {
		return c.disabled(s)
	}
	return c.RequestPage(ctx, s.TotalPages)
}

// disabled explains why a relative navigation is not possible. Being on
// the boundary page is not an error.
func (c *Controller) disabled(s State) error {
	if s.IsLoading {
		metrics.PageLoadsTotal.WithLabelValues("rejected").Inc()
		return ErrLoadInProgress
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conds == nil {
		return ErrNoSearch
	}
	return nil
}

// startLocked marks the controller loading and loads page n on a new
// goroutine. c.mu must be held.
func (c *Controller) startLocked(ctx context.Context, n int) *load {
	l := &load{done: make(chan struct{})}
	c.state.IsLoading = true
	conds := *c.conds
	gen := c.gen()

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		defer close(l.done)
		c.run(ctx, l, conds, n, gen)
	}()
	return l
}

// run loads page n. gen is the data generation observed before the query.
func (c *Controller) run(ctx context.Context, l *load, conds search.Conditions, n int, gen uint64) {
	start := time.Now()
	res, page, err := c.fetch(ctx, conds, n)

	c.mu.Lock()
	c.state.IsLoading = false
	if err == nil {
		c.state.CurrentPage = page.Number
		c.state.TotalPages = res.TotalPages
		c.state.Total = res.Total
		c.storeLocked(gen, page)
	}
	cb := c.callbacks
	c.mu.Unlock()

	l.page, l.err = page, err
	metrics.PageLoadDuration.Observe(time.Since(start).Seconds())

	if err != nil {
		metrics.PageLoadsTotal.WithLabelValues("error").Inc()
		logging.Warn("Loading page %d failed: %v", n, err)
		if cb.OnError != nil {
			cb.OnError(n, err)
		}
		return
	}

	metrics.PageLoadsTotal.WithLabelValues("loaded").Inc()
	if cb.OnLoaded != nil {
		cb.OnLoaded(page)
	}
}

// storeLocked caches a freshly loaded page read at generation gen. Pages
// with failed renders or read before a write are not cached. c.mu must be
// held.
func (c *Controller) storeLocked(gen uint64, page Page) {
	if page.Failed > 0 {
		return
	}
	c.refreshLocked()
	if gen != c.cacheGen {
		return
	}
	c.cache.SetPage(page.Number, page.Thumbnails)
}

// fetch queries page n and renders its thumbnails.
func (c *Controller) fetch(ctx context.Context, conds search.Conditions, n int) (search.Result, Page, error) {
	res, err := c.searcher.ExecuteSearchPage(ctx, conds, n, c.pageSize)
	if err != nil {
		return search.Result{}, Page{}, fmt.Errorf("query page %d: %w", n, err)
	}

	thumbs, failed, err := c.render(ctx, res.Rows)
	if err != nil {
		return search.Result{}, Page{}, err
	}

	return res, Page{Number: res.Page, Thumbnails: thumbs, Failed: failed}, nil
}

// render renders rows concurrently, keeping row order. A failed render
// leaves an empty thumbnail; only cancellation aborts the page.
func (c *Controller) render(ctx context.Context, rows []database.ImageRow) ([]thumbcache.Thumbnail, int, error) {
	thumbs := make([]thumbcache.Thumbnail, len(rows))
	failures := make([]bool, len(rows))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.workers)

	for i, row := range rows {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			thumbs[i] = thumbcache.Thumbnail{ImageID: row.ID}

			path, err := c.paths.ResolveStoredPath(row.StoredImagePath)
			if err != nil {
				logging.Warn("Image %d has an unusable path %q: %v", row.ID, row.StoredImagePath, err)
				failures[i] = true
				return nil
			}
			t, err := c.renderer.Render(path, row.Processed)
			if err != nil {
				logging.Warn("Thumbnail of image %d failed: %v", row.ID, err)
				failures[i] = true
				return nil
			}
			thumbs[i] = thumbcache.Thumbnail{ImageID: row.ID, Width: t.Width, Height: t.Height, Data: t.Data}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, 0, err
	}

	failed := 0
	for _, f := range failures {
		if f {
			failed++
		}
	}
	return thumbs, failed, nil
}
