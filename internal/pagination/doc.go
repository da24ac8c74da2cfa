// Package pagination drives paging through search results.
//
// A Controller holds the current page, the page count and a loading flag.
// Only one page loads at a time; requests made meanwhile are rejected with
// ErrLoadInProgress rather than queued, so a slow page can never overwrite
// a newer one. Loaded pages are kept in a thumbcache.PageCache and served
// from it without querying or rendering again.
package pagination
