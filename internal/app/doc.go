// Package app wires the long-lived services of a running LoRAIro instance.
//
// Container is built once from the loaded configuration: it opens the
// project, the project database and the shared tag dictionary, and builds
// the search processor, thumbnail renderer, annotation service, importer
// and exporter on top. Pagination controllers hold per-client state and
// are created on demand through NewNavigator; Navigator returns a shared
// one for single-client surfaces.
package app
