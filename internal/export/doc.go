// Package export writes the images selected by a search to a directory in
// the layout LoRA trainers read: each image is named after its phash and
// sits next to a .txt file of comma-separated tags and, when the image has
// one, a .caption file.
package export
