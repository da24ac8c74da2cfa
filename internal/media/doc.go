// Package media decodes images for the dataset.
//
// It provides:
//   - ReadInfo and LoadImageConstrained for header reads and bounded decodes
//   - DHash, the perceptual hash used to deduplicate imports
//   - Renderer, which produces the JPEG thumbnails shown on result pages
//   - CreateRendition, which writes the processed copies used for training
package media
