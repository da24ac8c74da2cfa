// Package search translates search-panel conditions into database filters
// and executes them.
//
// Conditions is the user-facing model. ToDBFilterArgs maps it field for
// field onto a database.ImageFilter, and Processor runs that filter with a
// short-lived result cache invalidated by any database write.
package search
