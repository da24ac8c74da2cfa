package app

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"lorairo/internal/annotation"
	"lorairo/internal/database"
	"lorairo/internal/export"
	"lorairo/internal/importer"
	"lorairo/internal/logging"
	"lorairo/internal/media"
	"lorairo/internal/memory"
	"lorairo/internal/metrics"
	"lorairo/internal/pagination"
	"lorairo/internal/project"
	"lorairo/internal/search"
	"lorairo/internal/startup"
	"lorairo/internal/tagdb"
	"lorairo/internal/thumbcache"
)

// Container holds every long-lived service. It is built once at startup
// and handed to whatever needs a service; nothing is looked up globally.
type Container struct {
	Config *startup.Config

	Project  *project.Context
	DB       *database.Database
	TagDB    *tagdb.DB
	Resolver *tagdb.Resolver

	Processor   *search.Processor
	Renderer    *media.Renderer
	Annotations *annotation.Service
	Importer    *importer.Importer
	Exporter    *export.Exporter
	Collector   *metrics.Collector
	Memory      *memory.Monitor

	navOnce   sync.Once
	navigator *pagination.Controller

	closeOnce sync.Once
	closeErr  error
}

// New opens the project and both databases and wires the services on top.
// Anything opened before a failure is closed again.
func New(ctx context.Context, cfg *startup.Config) (*Container, error) {
	if cfg == nil {
		return nil, errors.New("configuration is required")
	}
	start := time.Now()
	c := &Container{Config: cfg}

	var err error
	if c.Project, err = project.Open(cfg.ProjectDir); err != nil {
		return nil, err
	}

	dbPath, err := c.Project.DatabasePath()
	if err != nil {
		_ = c.Close()
		return nil, err
	}
	if c.DB, err = database.New(ctx, dbPath); err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("failed to open project database: %w", err)
	}

	if c.TagDB, err = tagdb.Open(ctx, cfg.TagDBPath); err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("failed to open tag database: %w", err)
	}
	c.Resolver = tagdb.NewResolver(c.TagDB)

	c.Processor = search.NewProcessor(c.DB, cfg.ResultCacheTTL)
	c.Renderer = media.NewRenderer(cfg.ThumbnailSize)
	c.Annotations = annotation.NewService(c.DB, nil, c.Project, c.Resolver)

	c.Memory = memory.NewMonitor(memory.DefaultConfig())
	c.Memory.Start()

	importCfg := importer.DefaultConfig()
	importCfg.Resolution = cfg.ProcessedResolution
	importCfg.Gate = c.Memory
	c.Importer = importer.New(c.DB, c.Project, importCfg)
	c.Exporter = export.New(c.DB, c.Project, 0)

	c.Collector = metrics.NewCollector(c.DB, cfg.StatsInterval)

	startup.LogDatabaseInit(time.Since(start))
	return c, nil
}

// NewNavigator builds a pagination controller with its own page cache.
func (c *Container) NewNavigator() *pagination.Controller {
	return pagination.New(c.Processor, c.Renderer, c.Project,
		thumbcache.New(c.Config.PageCacheMaxPages),
		pagination.Options{
			PageSize:   c.Config.PageSize,
			Workers:    c.Config.ThumbnailWorkers,
			Generation: c.DB.Generation,
		})
}

// Navigator returns the shared pagination controller, building it on first
// use.
func (c *Container) Navigator() *pagination.Controller {
	c.navOnce.Do(func() {
		c.navigator = c.NewNavigator()
	})
	return c.navigator
}

// AnnotationsWith returns an annotation service that runs annotator.
func (c *Container) AnnotationsWith(annotator annotation.Annotator) *annotation.Service {
	return annotation.NewService(c.DB, annotator, c.Project, c.Resolver)
}

// Close stops background work and closes everything in reverse order of
// opening. It is safe to call more than once.
func (c *Container) Close() error {
	c.closeOnce.Do(func() {
		if c.Memory != nil {
			c.Memory.Stop()
		}
		if c.navigator != nil {
			c.navigator.Wait()
		}
		var errs []error
		if c.TagDB != nil {
			if err := c.TagDB.Close(); err != nil {
				errs = append(errs, fmt.Errorf("tag database: %w", err))
			}
		}
		if c.DB != nil {
			if err := c.DB.Close(); err != nil {
				errs = append(errs, fmt.Errorf("project database: %w", err))
			}
		}
		if c.Project != nil {
			if err := c.Project.Close(); err != nil {
				errs = append(errs, fmt.Errorf("project: %w", err))
			}
		}
		c.closeErr = errors.Join(errs...)
		if c.closeErr != nil {
			logging.Error("Errors while closing: %v", c.closeErr)
		}
	})
	return c.closeErr
}
