// Package tagdb is the shared tag dictionary and the race-tolerant
// registration of new tags.
//
// The dictionary lives in its own SQLite file, separate from any project
// database, so that every project resolves a tag to the same id. Entries are
// unique per (tag, format); the same normalized tag may therefore appear once
// per vocabulary, and lookups that hit several entries pick the lowest id.
//
// [Resolver.Resolve] reports how a tag was resolved as an [Outcome] instead
// of failing: a tag registered concurrently by another writer is found again
// after the insert conflicts, and any other failure yields an unresolved
// result that callers skip. [Resolver.GetOrCreateTagID] is the pointer form
// used by the project database write-back.
package tagdb
