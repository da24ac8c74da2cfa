// Package thumbcache provides PageCache, a page-granular LRU cache of
// rendered thumbnails used while paging through search results.
package thumbcache
