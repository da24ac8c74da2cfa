package handlers

import (
	"time"

	"lorairo/internal/annotation"
	"lorairo/internal/app"
	"lorairo/internal/database"
	"lorairo/internal/media"
	"lorairo/internal/pagination"
	"lorairo/internal/project"
	"lorairo/internal/search"
	"lorairo/internal/tagdb"
)

// Handlers serves the HTTP API over the services of an app.Container.
type Handlers struct {
	db          *database.Database
	processor   *search.Processor
	navigator   *pagination.Controller
	renderer    *media.Renderer
	tags        *tagdb.DB
	resolver    *tagdb.Resolver
	annotations *annotation.Service
	project     *project.Context
	pageSize    int
	startTime   time.Time
}

// New returns handlers bound to the shared navigator of c.
func New(c *app.Container) *Handlers {
	return &Handlers{
		db:          c.DB,
		processor:   c.Processor,
		navigator:   c.Navigator(),
		renderer:    c.Renderer,
		tags:        c.TagDB,
		resolver:    c.Resolver,
		annotations: c.Annotations,
		project:     c.Project,
		pageSize:    c.Config.PageSize,
		startTime:   time.Now(),
	}
}
