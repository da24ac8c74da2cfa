// Package annotation is the boundary to the annotation models.
//
// Models themselves run outside this program. An Annotator returns their
// output keyed by image phash and model name, and Service stores it in the
// project database: tags are resolved through the shared tag dictionary,
// ratings are normalized, and a model that failed or could not be stored
// is reported without affecting the others.
//
// FileAnnotator reads results from a JSON or YAML file so a batch produced
// elsewhere can be applied to a project.
package annotation
