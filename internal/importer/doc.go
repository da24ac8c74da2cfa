// Package importer brings image files into a project.
//
// Each image is decoded once for its size and dHash. Images whose hash is
// already registered are skipped as duplicates. New ones are copied into
// image_dataset/original/<yyyy>/<mm>/ under a name carrying a BLAKE2b
// digest of their content, get a processed rendition, and are registered
// in the project database. Directories are walked by a pool of workers;
// a file that fails is reported and the import goes on.
package importer
