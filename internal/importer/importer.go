package importer

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"lorairo/internal/database"
	"lorairo/internal/filesystem"
	"lorairo/internal/logging"
	"lorairo/internal/media"
	"lorairo/internal/metrics"
	"lorairo/internal/workers"

	"golang.org/x/crypto/blake2b"
	"golang.org/x/sync/errgroup"
)

// Store is the part of the project database the importer writes to.
type Store interface {
	GetImageByPHash(ctx context.Context, phash string) (*database.Image, error)
	RegisterImage(ctx context.Context, info database.ImageInfo) (int64, bool, error)
	AddProcessedImage(ctx context.Context, p database.ProcessedImage) error
}

// Layout tells the importer where files go inside the project.
type Layout interface {
	OriginalDir(t time.Time) (string, error)
	ProcessedDir(resolution int, t time.Time) (string, error)
	StoredPath(abs string) (string, error)
}

// Config configures an import.
type Config struct {
	// NumWorkers is the number of files processed in parallel (0 = auto).
	NumWorkers int
	// Resolution is the long edge of the processed rendition created for
	// every imported image; 0 disables renditions.
	Resolution int
	// SkipHidden skips files and directories starting with ".".
	SkipHidden bool
	// Now stamps the dated directories. Defaults to time.Now.
	Now func() time.Time
	// Gate, when set, is waited on before each image is decoded.
	Gate Gate
}

// Gate holds back image decoding, typically under memory pressure.
type Gate interface {
	Wait(ctx context.Context) error
}

// DefaultConfig returns the defaults used by the CLI.
func DefaultConfig() Config {
	return Config{
		NumWorkers: workers.ForIO(workers.Override()),
		Resolution: 512,
		SkipHidden: true,
	}
}

// Report summarizes an import. Errors maps source paths to the reason they
// could not be imported.
type Report struct {
	Imported   int               `json:"imported"`
	Duplicates int               `json:"duplicates"`
	Skipped    int               `json:"skipped"`
	ImageIDs   []int64           `json:"imageIds"`
	Errors     map[string]string `json:"errors,omitempty"`
}

type outcome int

const (
	outcomeImported outcome = iota
	outcomeDuplicate
	outcomeSkipped
	outcomeError
)

func (o outcome) label() string {
	switch o {
	case outcomeImported:
		return "imported"
	case outcomeDuplicate:
		return "duplicate"
	case outcomeSkipped:
		return "skipped"
	default:
		return "error"
	}
}

type fileResult struct {
	path    string
	outcome outcome
	id      int64
	err     error
}

func (r *Report) add(res fileResult) {
	metrics.ImportFilesTotal.WithLabelValues(res.outcome.label()).Inc()
	switch res.outcome {
	case outcomeImported:
		r.Imported++
		r.ImageIDs = append(r.ImageIDs, res.id)
	case outcomeDuplicate:
		r.Duplicates++
	case outcomeSkipped:
		r.Skipped++
	default:
		if r.Errors == nil {
			r.Errors = make(map[string]string)
		}
		r.Errors[res.path] = res.err.Error()
	}
}

// Importer copies image files into a project and registers them.
type Importer struct {
	store  Store
	layout Layout
	config Config

	filesSeen atomic.Int64
	// inflight holds the phashes currently being imported.
	inflight sync.Map
}

// New returns an Importer.
func New(store Store, layout Layout, config Config) *Importer {
	if config.NumWorkers <= 0 {
		config.NumWorkers = workers.ForIO(workers.Override())
	}
	if config.Now == nil {
		config.Now = time.Now
	}
	return &Importer{store: store, layout: layout, config: config}
}

// ImportDir imports every image below dir. Per-file failures are recorded
// in the report and the import continues; the returned error is non-nil
// only when the walk itself fails or ctx is cancelled.
func (im *Importer) ImportDir(ctx context.Context, dir string) (Report, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return Report{}, fmt.Errorf("cannot read import directory: %w", err)
	}
	if !info.IsDir() {
		return Report{}, fmt.Errorf("%s is not a directory", dir)
	}

	logging.Info("Importing images from %s with %d workers", dir, im.config.NumWorkers)
	start := time.Now()

	jobs := make(chan string, im.config.NumWorkers*4)
	results := make(chan fileResult, im.config.NumWorkers*4)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer close(jobs)
		return im.walk(gctx, dir, jobs)
	})

	var wg sync.WaitGroup
	for i := 0; i < im.config.NumWorkers; i++ {
		wg.Add(1)
		g.Go(func() error {
			defer wg.Done()
			for path := range jobs {
				select {
				case results <- im.importFile(gctx, path):
				case <-gctx.Done():
					return gctx.Err()
				}
			}
			return nil
		})
	}
	go func() {
		wg.Wait()
		close(results)
	}()

	var report Report
	for r := range results {
		report.add(r)
	}

	err = g.Wait()
	sort.Slice(report.ImageIDs, func(i, j int) bool { return report.ImageIDs[i] < report.ImageIDs[j] })

	logging.Info("Import complete: %d imported, %d duplicates, %d skipped, %d errors in %v",
		report.Imported, report.Duplicates, report.Skipped, len(report.Errors), time.Since(start))
	return report, err
}

// ImportFiles imports an explicit list of files sequentially.
func (im *Importer) ImportFiles(ctx context.Context, paths []string) (Report, error) {
	var report Report
	for _, p := range paths {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		report.add(im.importFile(ctx, p))
	}
	return report, nil
}

// FilesSeen returns the number of files handed to workers so far.
func (im *Importer) FilesSeen() int64 {
	return im.filesSeen.Load()
}

func (im *Importer) walk(ctx context.Context, dir string, jobs chan<- string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			logging.Warn("Error accessing path %s: %v", path, err)
			return nil
		}
		if path != dir && im.config.SkipHidden && strings.HasPrefix(d.Name(), ".") {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			return nil
		}

		im.filesSeen.Add(1)
		select {
		case jobs <- path:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	})
}

func (im *Importer) importFile(ctx context.Context, path string) fileResult {
	if !media.IsImage(path) {
		return fileResult{path: path, outcome: outcomeSkipped}
	}
	if im.config.Gate != nil {
		if err := im.config.Gate.Wait(ctx); err != nil {
			return fileResult{path: path, outcome: outcomeError, err: err}
		}
	}

	id, created, err := im.importImage(ctx, path)
	switch {
	case err != nil:
		logging.Warn("Failed to import %s: %v", path, err)
		return fileResult{path: path, outcome: outcomeError, err: err}
	case !created:
		logging.Debug("Skipping %s: already in project as image %d", path, id)
		return fileResult{path: path, outcome: outcomeDuplicate, id: id}
	default:
		return fileResult{path: path, outcome: outcomeImported, id: id}
	}
}

func (im *Importer) importImage(ctx context.Context, src string) (int64, bool, error) {
	info, err := media.ReadInfo(src)
	if err != nil {
		return 0, false, err
	}
	phash, err := media.HashFile(src)
	if err != nil {
		return 0, false, err
	}

	if existing, err := im.store.GetImageByPHash(ctx, phash); err == nil {
		return existing.ID, false, nil
	} else if !errors.Is(err, database.ErrImageNotFound) {
		return 0, false, err
	}

	// Another worker is importing the same image.
	if _, busy := im.inflight.LoadOrStore(phash, struct{}{}); busy {
		return 0, false, nil
	}
	defer im.inflight.Delete(phash)

	digest, err := contentDigest(src)
	if err != nil {
		return 0, false, err
	}

	now := im.config.Now()
	stem := strings.TrimSuffix(filepath.Base(src), filepath.Ext(src))
	name := stem + "_" + digest

	var written []string
	cleanup := func() {
		for _, p := range written {
			_ = os.Remove(p)
		}
	}

	origDir, err := im.layout.OriginalDir(now)
	if err != nil {
		return 0, false, err
	}
	dst := filepath.Join(origDir, name+strings.ToLower(filepath.Ext(src)))
	copied, err := copyFile(src, dst)
	if err != nil {
		return 0, false, err
	}
	if copied {
		written = append(written, dst)
	}
	stored, err := im.layout.StoredPath(dst)
	if err != nil {
		cleanup()
		return 0, false, err
	}

	var (
		rendition     media.Rendition
		renditionPath string
	)
	if im.config.Resolution > 0 {
		procDir, err := im.layout.ProcessedDir(im.config.Resolution, now)
		if err != nil {
			cleanup()
			return 0, false, err
		}
		renditionPath = filepath.Join(procDir, fmt.Sprintf("%s_%d%s", name, im.config.Resolution, media.RenditionExt))
		_, statErr := os.Stat(renditionPath)
		rendition, err = media.CreateRendition(dst, renditionPath, im.config.Resolution)
		if err != nil {
			cleanup()
			return 0, false, err
		}
		if statErr != nil {
			written = append(written, renditionPath)
		}
	}

	id, created, err := im.store.RegisterImage(ctx, database.ImageInfo{
		PHash:             phash,
		OriginalImagePath: src,
		StoredImagePath:   stored,
		Width:             info.Width,
		Height:            info.Height,
		Format:            info.Format,
		Mode:              rendition.Mode,
	})
	if err != nil || !created {
		// Lost a race with an identical image.
		cleanup()
		return id, created, err
	}

	if renditionPath != "" {
		rel, err := im.layout.StoredPath(renditionPath)
		if err == nil {
			err = im.store.AddProcessedImage(ctx, database.ProcessedImage{
				ImageID:         id,
				Resolution:      im.config.Resolution,
				StoredImagePath: rel,
				Width:           rendition.Width,
				Height:          rendition.Height,
				Mode:            rendition.Mode,
			})
		}
		if err != nil {
			logging.Warn("Image %d imported without its %dpx rendition: %v", id, im.config.Resolution, err)
		}
	}
	return id, true, nil
}

// contentDigest returns the first 16 hex digits of the BLAKE2b-256 digest
// of the file. Identical files get identical stored names.
func contentDigest(path string) (string, error) {
	f, err := filesystem.Open(path)
	if err != nil {
		return "", err
	}
	defer func() { _ = f.Close() }()

	h, err := blake2b.New256(nil)
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("failed to read %s: %w", path, err)
	}
	return hex.EncodeToString(h.Sum(nil))[:16], nil
}

// copyFile copies src to dst unless dst already exists. It reports whether
// a new file was written.
func copyFile(src, dst string) (bool, error) {
	if _, err := os.Stat(dst); err == nil {
		return false, nil
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return false, fmt.Errorf("failed to create %s: %w", filepath.Dir(dst), err)
	}

	in, err := filesystem.Open(src)
	if err != nil {
		return false, err
	}
	defer func() { _ = in.Close() }()

	tmp := dst + ".part"
	out, err := os.Create(tmp)
	if err != nil {
		return false, err
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		_ = os.Remove(tmp)
		return false, fmt.Errorf("failed to copy %s: %w", src, err)
	}
	if err := out.Close(); err != nil {
		_ = os.Remove(tmp)
		return false, err
	}
	if err := os.Rename(tmp, dst); err != nil {
		_ = os.Remove(tmp)
		return false, err
	}
	return true, nil
}
