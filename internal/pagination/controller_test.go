package pagination

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"lorairo/internal/database"
	"lorairo/internal/media"
	"lorairo/internal/search"
	"lorairo/internal/thumbcache"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// fakeSearcher serves total rows. With gate set every call blocks until
// the gate is closed or the context ends.
type fakeSearcher struct {
	mu    sync.Mutex
	total int
	calls []int
	gate  chan struct{}
	err   error
}

func (f *fakeSearcher) ExecuteSearchPage(ctx context.Context, _ search.Conditions, page, pageSize int) (search.Result, error) {
	f.mu.Lock()
	f.calls = append(f.calls, page)
	gate, err, total := f.gate, f.err, f.total
	f.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return search.Result{}, ctx.Err()
		}
	}
	if err != nil {
		return search.Result{}, err
	}

	var rows []database.ImageRow
	for id := (page-1)*pageSize + 1; id <= min(page*pageSize, total); id++ {
		rows = append(rows, database.ImageRow{ID: int64(id), StoredImagePath: fmt.Sprintf("img/%d.png", id)})
	}
	return search.Result{
		Rows:       rows,
		Total:      int64(total),
		Page:       page,
		PageSize:   pageSize,
		TotalPages: database.TotalPages(int64(total), pageSize),
	}, nil
}

func (f *fakeSearcher) callPages() []int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]int(nil), f.calls...)
}

// fakeRenderer fails for paths containing "bad".
type fakeRenderer struct{}

func (fakeRenderer) Render(path string, _ bool) (media.Thumbnail, error) {
	if strings.Contains(path, "bad") {
		return media.Thumbnail{}, errors.New("decode failed")
	}
	return media.Thumbnail{Data: []byte(path), Width: 32, Height: 32}, nil
}

type prefixPaths struct{}

func (prefixPaths) ResolveStoredPath(rel string) (string, error) {
	return "/project/" + rel, nil
}

func newController(t *testing.T, s *fakeSearcher, pageSize int) *Controller {
	t.Helper()
	c := New(s, fakeRenderer{}, prefixPaths{}, thumbcache.New(3), Options{PageSize: pageSize, Workers: 2})
	t.Cleanup(c.Wait)
	return c
}

func TestStateEnablement(t *testing.T) {
	t.Parallel()

	tests := []struct {
		state       State
		prev, next  bool
		description string
	}{
		{State{CurrentPage: 1, TotalPages: 1}, false, false, "single page"},
		{State{CurrentPage: 1, TotalPages: 3}, false, true, "first of three"},
		{State{CurrentPage: 2, TotalPages: 3}, true, true, "middle"},
		{State{CurrentPage: 3, TotalPages: 3}, true, false, "last"},
		{State{CurrentPage: 2, TotalPages: 3, IsLoading: true}, false, false, "loading disables everything"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.prev, tt.state.CanPrevious(), tt.description)
		assert.Equal(t, tt.next, tt.state.CanNext(), tt.description)
	}
}

func TestNavigationBeforeSearch(t *testing.T) {
	t.Parallel()

	c := newController(t, &fakeSearcher{total: 5}, 2)
	ctx := context.Background()

	assert.ErrorIs(t, c.RequestPage(ctx, 1), ErrNoSearch)
	_, err := c.LoadPage(ctx, 1)
	assert.ErrorIs(t, err, ErrNoSearch)
}

func TestSetSearchLoadsFirstPage(t *testing.T) {
	t.Parallel()

	s := &fakeSearcher{total: 25}
	c := newController(t, s, 10)

	loaded := make(chan Page, 1)
	c.SetCallbacks(Callbacks{OnLoaded: func(p Page) { loaded <- p }})

	require.NoError(t, c.SetSearch(context.Background(), search.Conditions{Keywords: []string{"cat"}}))
	c.Wait()

	p := <-loaded
	assert.Equal(t, 1, p.Number)
	assert.False(t, p.Cached)
	require.Len(t, p.Thumbnails, 10)
	assert.Equal(t, int64(1), p.Thumbnails[0].ImageID)
	assert.Equal(t, []byte("/project/img/1.png"), p.Thumbnails[0].Data)

	assert.Equal(t, State{CurrentPage: 1, TotalPages: 3, Total: 25}, c.State())
}

func TestRequestWhileLoadingIsRejected(t *testing.T) {
	t.Parallel()

	s := &fakeSearcher{total: 30, gate: make(chan struct{})}
	c := newController(t, s, 10)
	ctx := context.Background()

	require.NoError(t, c.SetSearch(ctx, search.Conditions{}))

	st := c.State()
	assert.True(t, st.IsLoading)
	assert.False(t, st.CanNext())
	assert.False(t, st.CanPrevious())

	assert.ErrorIs(t, c.RequestPage(ctx, 2), ErrLoadInProgress)
	assert.ErrorIs(t, c.Next(ctx), ErrLoadInProgress)
	assert.ErrorIs(t, c.SetSearch(ctx, search.Conditions{}), ErrLoadInProgress)
	_, err := c.LoadPage(ctx, 2)
	assert.ErrorIs(t, err, ErrLoadInProgress)

	close(s.gate)
	c.Wait()

	assert.Equal(t, []int{1}, s.callPages(), "rejected requests are not queued")
	assert.False(t, c.State().IsLoading)
	assert.True(t, c.State().CanNext())
}

func TestCachedPageSkipsQueryAndRender(t *testing.T) {
	t.Parallel()

	s := &fakeSearcher{total: 30}
	c := newController(t, s, 10)
	ctx := context.Background()

	require.NoError(t, c.SetSearch(ctx, search.Conditions{}))
	c.Wait()

	p, err := c.LoadPage(ctx, 2)
	require.NoError(t, err)
	assert.False(t, p.Cached)
	assert.Equal(t, int64(11), p.Thumbnails[0].ImageID)

	var got Page
	c.SetCallbacks(Callbacks{OnLoaded: func(p Page) { got = p }})
	require.NoError(t, c.Previous(ctx))

	// Served synchronously from the cache.
	assert.True(t, got.Cached)
	assert.Equal(t, 1, got.Number)
	assert.Equal(t, 1, c.State().CurrentPage)
	assert.Equal(t, []int{1, 2}, s.callPages())
}

func TestRequestPageIsClamped(t *testing.T) {
	t.Parallel()

	s := &fakeSearcher{total: 25}
	c := newController(t, s, 10)
	ctx := context.Background()

	require.NoError(t, c.SetSearch(ctx, search.Conditions{}))
	c.Wait()

	p, err := c.LoadPage(ctx, 99)
	require.NoError(t, err)
	assert.Equal(t, 3, p.Number)
	assert.Len(t, p.Thumbnails, 5)

	p, err = c.LoadPage(ctx, -4)
	require.NoError(t, err)
	assert.Equal(t, 1, p.Number)
	assert.True(t, p.Cached)
}

func TestBoundaryNavigationIsNoOp(t *testing.T) {
	t.Parallel()

	s := &fakeSearcher{total: 15}
	c := newController(t, s, 10)
	ctx := context.Background()

	require.NoError(t, c.SetSearch(ctx, search.Conditions{}))
	c.Wait()

	assert.NoError(t, c.Previous(ctx))
	assert.NoError(t, c.First(ctx))
	assert.Equal(t, []int{1}, s.callPages())

	require.NoError(t, c.Last(ctx))
	c.Wait()
	assert.Equal(t, 2, c.State().CurrentPage)

	assert.NoError(t, c.Next(ctx))
	assert.NoError(t, c.Last(ctx))
	assert.Equal(t, []int{1, 2}, s.callPages())

	require.NoError(t, c.First(ctx))
	assert.Equal(t, 1, c.State().CurrentPage)
}

func TestLoadErrorClearsLoadingBeforeCallback(t *testing.T) {
	t.Parallel()

	s := &fakeSearcher{total: 10, err: errors.New("database is locked")}
	c := newController(t, s, 5)

	type outcome struct {
		page      int
		err       error
		isLoading bool
	}
	got := make(chan outcome, 1)
	c.SetCallbacks(Callbacks{OnError: func(page int, err error) {
		got <- outcome{page, err, c.State().IsLoading}
	}})

	require.NoError(t, c.SetSearch(context.Background(), search.Conditions{}))
	c.Wait()

	o := <-got
	assert.Equal(t, 1, o.page)
	assert.ErrorContains(t, o.err, "database is locked")
	assert.False(t, o.isLoading)

	// The controller is usable again after a failure.
	s.mu.Lock()
	s.err = nil
	s.mu.Unlock()
	_, err := c.LoadPage(context.Background(), 1)
	assert.NoError(t, err)
}

func TestRenderFailuresDoNotFailThePage(t *testing.T) {
	t.Parallel()

	s := &fakeSearcher{total: 3}
	c := New(s, failingRenderer{bad: 2}, prefixPaths{}, thumbcache.New(2), Options{PageSize: 3, Workers: 1})
	t.Cleanup(c.Wait)

	require.NoError(t, c.SetSearch(context.Background(), search.Conditions{}))
	c.Wait()

	p, err := c.LoadPage(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, p.Thumbnails, 3)
	assert.Equal(t, int64(2), p.Thumbnails[1].ImageID)
	assert.Nil(t, p.Thumbnails[1].Data)
	assert.NotNil(t, p.Thumbnails[2].Data)

	// A page with failed renders is not cached, so it is retried.
	assert.False(t, p.Cached)
	assert.Equal(t, 1, p.Failed)
	assert.Equal(t, []int{1, 1}, s.callPages())
	_, ok := c.Thumbnail(1)
	assert.False(t, ok)
}

type failingRenderer struct{ bad int64 }

func (f failingRenderer) Render(path string, processed bool) (media.Thumbnail, error) {
	if path == fmt.Sprintf("/project/img/%d.png", f.bad) {
		return media.Thumbnail{}, errors.New("corrupt")
	}
	return fakeRenderer{}.Render(path, processed)
}

func TestSetSearchClearsCache(t *testing.T) {
	t.Parallel()

	s := &fakeSearcher{total: 20}
	cache := thumbcache.New(3)
	c := New(s, fakeRenderer{}, prefixPaths{}, cache, Options{PageSize: 10, Workers: 2})
	t.Cleanup(c.Wait)
	ctx := context.Background()

	require.NoError(t, c.SetSearch(ctx, search.Conditions{}))
	c.Wait()
	_, err := c.LoadPage(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2}, cache.Stats().PageNumbers)

	require.NoError(t, c.SetSearch(ctx, search.Conditions{Keywords: []string{"dog"}}))
	c.Wait()
	assert.Equal(t, []int{1}, cache.Stats().PageNumbers)
}

func TestLoadPageOutlivesWaiter(t *testing.T) {
	t.Parallel()

	s := &fakeSearcher{total: 30}
	c := newController(t, s, 10)

	require.NoError(t, c.SetSearch(context.Background(), search.Conditions{}))
	c.Wait()

	gate := make(chan struct{})
	s.mu.Lock()
	s.gate = gate
	s.mu.Unlock()

	var failed []int
	c.SetCallbacks(Callbacks{OnError: func(page int, _ error) { failed = append(failed, page) }})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := c.LoadPage(ctx, 2)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.True(t, c.State().IsLoading, "the load keeps running without its waiter")

	close(gate)
	c.Wait()
	assert.Empty(t, failed)
	assert.False(t, c.State().IsLoading)
	assert.Equal(t, 2, c.State().CurrentPage)
}

func TestThumbnailLooksUpCachedPages(t *testing.T) {
	t.Parallel()

	c := newController(t, &fakeSearcher{total: 4}, 2)
	require.NoError(t, c.SetSearch(context.Background(), search.Conditions{}))
	c.Wait()

	thumb, ok := c.Thumbnail(2)
	require.True(t, ok)
	assert.Equal(t, []byte("/project/img/2.png"), thumb.Data)

	_, ok = c.Thumbnail(3)
	assert.False(t, ok, "page 2 was never loaded")
}

// generation is a settable data generation.
type generation struct {
	mu sync.Mutex
	n  uint64
}

func (g *generation) get() uint64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.n
}

func (g *generation) bump() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n++
}

func TestWriteInvalidatesCachedPages(t *testing.T) {
	t.Parallel()

	s := &fakeSearcher{total: 20}
	gen := &generation{}
	cache := thumbcache.New(3)
	c := New(s, fakeRenderer{}, prefixPaths{}, cache, Options{PageSize: 10, Workers: 2, Generation: gen.get})
	t.Cleanup(c.Wait)
	ctx := context.Background()

	require.NoError(t, c.SetSearch(ctx, search.Conditions{}))
	c.Wait()

	p, err := c.LoadPage(ctx, 1)
	require.NoError(t, err)
	assert.True(t, p.Cached)
	_, ok := c.Thumbnail(3)
	assert.True(t, ok)

	// Images were added or removed: the next request queries again.
	gen.bump()
	s.mu.Lock()
	s.total = 35
	s.mu.Unlock()

	_, ok = c.Thumbnail(3)
	assert.False(t, ok, "thumbnails of a stale page are not served")

	p, err = c.LoadPage(ctx, 1)
	require.NoError(t, err)
	assert.False(t, p.Cached)
	assert.Equal(t, []int{1, 1}, s.callPages())
	assert.Equal(t, 4, c.State().TotalPages)
	assert.Equal(t, int64(35), c.State().Total)

	p, err = c.LoadPage(ctx, 1)
	require.NoError(t, err)
	assert.True(t, p.Cached, "unchanged data is served from the cache again")
}

func TestPageReadBeforeWriteIsNotCached(t *testing.T) {
	t.Parallel()

	gate := make(chan struct{})
	s := &fakeSearcher{total: 10, gate: gate}
	gen := &generation{}
	cache := thumbcache.New(3)
	c := New(s, fakeRenderer{}, prefixPaths{}, cache, Options{PageSize: 10, Workers: 1, Generation: gen.get})
	t.Cleanup(c.Wait)

	require.NoError(t, c.SetSearch(context.Background(), search.Conditions{}))
	gen.bump()
	close(gate)
	c.Wait()

	assert.Equal(t, 1, c.State().CurrentPage)
	assert.Empty(t, cache.Stats().PageNumbers)
}
