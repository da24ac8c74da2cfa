package export

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"lorairo/internal/database"
	"lorairo/internal/filesystem"
	"lorairo/internal/logging"
	"lorairo/internal/metrics"
	"lorairo/internal/search"
	"lorairo/internal/workers"

	"golang.org/x/sync/errgroup"
)

// Sidecar extensions written next to every exported image.
const (
	TagsExt    = ".txt"
	CaptionExt = ".caption"
)

// Store is the part of the project database the exporter reads.
type Store interface {
	GetImagesByFilter(ctx context.Context, filter database.ImageFilter) ([]database.ImageRow, int64, error)
	TagsForImages(ctx context.Context, ids []int64) (map[int64][]string, error)
	LatestCaptions(ctx context.Context, ids []int64) (map[int64]string, error)
}

// PathResolver turns stored relative paths into absolute ones.
type PathResolver interface {
	ResolveStoredPath(rel string) (string, error)
}

// Report summarizes an export. Errors maps image ids to the reason they
// were not exported.
type Report struct {
	Exported int              `json:"exported"`
	Files    []string         `json:"files"`
	Errors   map[int64]string `json:"errors,omitempty"`
}

// Exporter writes a training dataset: image files with tag and caption
// sidecars.
type Exporter struct {
	store   Store
	paths   PathResolver
	workers int
}

// New returns an Exporter. workers <= 0 picks an I/O based default.
func New(store Store, paths PathResolver, workerCount int) *Exporter {
	if workerCount <= 0 {
		workerCount = workers.ForIO(workers.Override())
	}
	return &Exporter{store: store, paths: paths, workers: workerCount}
}

// Export writes every image matching conds to dest. When conds asks for a
// resolution the matching rendition is copied instead of the original.
// An image that cannot be written is reported and the export continues.
func (e *Exporter) Export(ctx context.Context, conds search.Conditions, dest string) (Report, error) {
	if err := conds.Validate(); err != nil {
		return Report{}, err
	}
	start := time.Now()
	rows, _, err := e.store.GetImagesByFilter(ctx, conds.ToDBFilterArgs())
	if err != nil {
		return Report{}, fmt.Errorf("failed to query images: %w", err)
	}
	if err := os.MkdirAll(dest, 0o755); err != nil {
		return Report{}, fmt.Errorf("failed to create export directory: %w", err)
	}

	ids := make([]int64, len(rows))
	for i, r := range rows {
		ids[i] = r.ID
	}
	tags, err := e.store.TagsForImages(ctx, ids)
	if err != nil {
		return Report{}, fmt.Errorf("failed to load tags: %w", err)
	}
	captions, err := e.store.LatestCaptions(ctx, ids)
	if err != nil {
		return Report{}, fmt.Errorf("failed to load captions: %w", err)
	}

	var (
		mu     sync.Mutex
		report Report
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.workers)

	for _, row := range rows {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			name, err := e.exportOne(row, tags[row.ID], captions[row.ID], dest)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				metrics.ExportFilesTotal.WithLabelValues("error").Inc()
				logging.Warn("Export of image %d failed: %v", row.ID, err)
				if report.Errors == nil {
					report.Errors = make(map[int64]string)
				}
				report.Errors[row.ID] = err.Error()
				return nil
			}
			metrics.ExportFilesTotal.WithLabelValues("exported").Inc()
			report.Exported++
			report.Files = append(report.Files, name)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return report, err
	}

	sort.Strings(report.Files)
	logging.Info("Exported %d of %d images to %s in %v", report.Exported, len(rows), dest, time.Since(start))
	return report, nil
}

// exportOne writes the image and its sidecars, named after the phash so
// names never collide. It returns the image file name.
func (e *Exporter) exportOne(row database.ImageRow, tags []string, caption, dest string) (string, error) {
	src, err := e.paths.ResolveStoredPath(row.StoredImagePath)
	if err != nil {
		return "", err
	}

	base := row.PHash
	if base == "" {
		base = fmt.Sprintf("%d", row.ID)
	}
	name := base + strings.ToLower(filepath.Ext(src))

	if err := copyFile(src, filepath.Join(dest, name)); err != nil {
		return "", err
	}
	if err := os.WriteFile(filepath.Join(dest, base+TagsExt), []byte(strings.Join(tags, ", ")), 0o644); err != nil {
		return "", fmt.Errorf("failed to write tags: %w", err)
	}
	if caption != "" {
		if err := os.WriteFile(filepath.Join(dest, base+CaptionExt), []byte(caption), 0o644); err != nil {
			return "", fmt.Errorf("failed to write caption: %w", err)
		}
	}
	return name, nil
}

func copyFile(src, dst string) error {
	in, err := filesystem.Open(src)
	if err != nil {
		return err
	}
	defer func() { _ = in.Close() }()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return fmt.Errorf("failed to copy %s: %w", src, err)
	}
	return out.Close()
}
