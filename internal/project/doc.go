// Package project models an open LoRAIro project.
//
// A project is a directory holding the project database
// (image_database.db) and the image dataset tree. Image rows store paths
// relative to that directory; [Context.ResolveStoredPath] turns them into
// absolute paths for the thumbnail renderer, the exporter and the HTTP
// layer. The context is created by [Open] and torn down by
// [Context.Close], after which every path operation fails with [ErrNotOpen].
package project
