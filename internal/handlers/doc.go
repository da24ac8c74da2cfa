// Package handlers provides HTTP request handlers for the LoRAIro API.
//
// It includes handlers for:
//   - Image search by tags, captions, ratings, scores and dates
//   - Thumbnail delivery and result page navigation
//   - Manual annotation edits and annotation result write-back
//   - Tag resolution against the tag dictionary
//   - Health checks, version and library statistics
package handlers
