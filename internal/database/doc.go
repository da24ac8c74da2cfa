// Package database is the image database of a LoRAIro project.
//
// It stores, through GORM on SQLite:
//   - Images, deduplicated by perceptual hash, and their processed renditions
//   - Tags, captions, scores and ratings, each attributed to a model
//   - The model registry, including the reserved manual_edit model
//
// GetImagesByFilter is the single query behind every search. Its filters
// compose as a conjunction and the count and page queries always share the
// same conditions. The database runs in WAL mode and every write advances
// Generation so callers can invalidate derived caches.
package database
