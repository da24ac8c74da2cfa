package project

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"lorairo/internal/logging"
)

// Layout of a project directory.
const (
	DatabaseFileName = "image_database.db"
	DatasetDirName   = "image_dataset"
	OriginalDirName  = "original"
)

var (
	// ErrNotOpen is returned by every path operation on a closed context.
	ErrNotOpen = errors.New("project is not open")

	// ErrAbsoluteStoredPath is returned when a stored path is absolute.
	// Stored paths are always relative to the project root.
	ErrAbsoluteStoredPath = errors.New("stored path must be relative to the project root")

	// ErrPathOutsideProject is returned when a path escapes the project root.
	ErrPathOutsideProject = errors.New("path is outside the project root")
)

// Context is an open project. It replaces any notion of a process-wide
// "current project": everything that resolves a stored path takes one.
type Context struct {
	mu     sync.RWMutex
	root   string
	name   string
	closed bool
}

// Open prepares a project rooted at dir, creating dir and its dataset
// directory when missing.
func Open(dir string) (*Context, error) {
	if dir == "" {
		return nil, errors.New("project directory must not be empty")
	}

	root, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve project directory: %w", err)
	}

	if err := os.MkdirAll(filepath.Join(root, DatasetDirName), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create project directory: %w", err)
	}

	logging.Info("Opened project %q at %s", filepath.Base(root), root)

	return &Context{root: root, name: filepath.Base(root)}, nil
}

// Close tears the context down. Later path operations return ErrNotOpen.
// Close is idempotent.
func (c *Context) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		logging.Debug("Closed project %q", c.name)
	}
	c.closed = true
	return nil
}

// IsOpen reports whether Close has not been called yet.
func (c *Context) IsOpen() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return !c.closed
}

// Name is the base name of the project directory.
func (c *Context) Name() string {
	return c.name
}

// Root returns the absolute project root.
func (c *Context) Root() (string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return "", ErrNotOpen
	}
	return c.root, nil
}

// DatabasePath returns the absolute path of the project database file.
func (c *Context) DatabasePath() (string, error) {
	root, err := c.Root()
	if err != nil {
		return "", err
	}
	return filepath.Join(root, DatabaseFileName), nil
}

// ResolveStoredPath turns a stored (relative, slash-separated) path into an
// absolute path under the project root.
func (c *Context) ResolveStoredPath(rel string) (string, error) {
	root, err := c.Root()
	if err != nil {
		return "", err
	}
	if rel == "" {
		return "", errors.New("stored path is empty")
	}
	if filepath.IsAbs(rel) || strings.HasPrefix(rel, "/") {
		return "", fmt.Errorf("%w: %s", ErrAbsoluteStoredPath, rel)
	}

	abs := filepath.Join(root, filepath.FromSlash(rel))
	if !within(root, abs) {
		return "", fmt.Errorf("%w: %s", ErrPathOutsideProject, rel)
	}
	return abs, nil
}

// StoredPath converts an absolute path under the project root into the
// relative, slash-separated form persisted in the database.
func (c *Context) StoredPath(abs string) (string, error) {
	root, err := c.Root()
	if err != nil {
		return "", err
	}

	abs = filepath.Clean(abs)
	if !within(root, abs) {
		return "", fmt.Errorf("%w: %s", ErrPathOutsideProject, abs)
	}

	rel, err := filepath.Rel(root, abs)
	if err != nil {
		return "", fmt.Errorf("failed to relativize %s: %w", abs, err)
	}
	return filepath.ToSlash(rel), nil
}

// OriginalDir is where originals imported at t are copied:
// image_dataset/original/<yyyy>/<mm>.
func (c *Context) OriginalDir(t time.Time) (string, error) {
	root, err := c.Root()
	if err != nil {
		return "", err
	}
	t = t.UTC()
	return filepath.Join(root, DatasetDirName, OriginalDirName,
		fmt.Sprintf("%04d", t.Year()), fmt.Sprintf("%02d", int(t.Month()))), nil
}

// ProcessedDir is where renditions with the given long edge are written:
// image_dataset/<resolution>/<yyyy>/<mm>.
func (c *Context) ProcessedDir(resolution int, t time.Time) (string, error) {
	root, err := c.Root()
	if err != nil {
		return "", err
	}
	t = t.UTC()
	return filepath.Join(root, DatasetDirName, fmt.Sprintf("%d", resolution),
		fmt.Sprintf("%04d", t.Year()), fmt.Sprintf("%02d", int(t.Month()))), nil
}

func within(root, path string) bool {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}
