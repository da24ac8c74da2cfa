// Package middleware provides the HTTP middleware of the API server: a W3C
// access logger and Prometheus request metrics labelled by route template.
package middleware
