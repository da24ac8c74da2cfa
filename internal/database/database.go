package database

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"lorairo/internal/logging"
	"lorairo/internal/metrics"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// Database is the project database: images, their renditions and the
// annotations (tags, captions, scores, ratings) attached to them by models.
type Database struct {
	db     *gorm.DB
	dbPath string

	// generation increases on every successful write so that memoized
	// search results can be keyed on it.
	generation atomic.Uint64

	manualModelID int64
}

// New opens (creating if needed) the project database at dbPath, migrates
// the schema and seeds the model type lookup and the manual_edit model.
// The parent directory must already exist.
func New(ctx context.Context, dbPath string) (*Database, error) {
	logging.Info("Database path: %s", dbPath)

	if err := diagnoseDatabasePermissions(dbPath); err != nil {
		logging.Warn("Database permission diagnostics: %v", err)
	}

	dsn := fmt.Sprintf("%s?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on", dbPath)

	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         newGormLogger(),
		TranslateError: true,
		NowFunc:        func() time.Time { return time.Now().UTC() },
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database handle: %w", err)
	}
	sqlDB.SetMaxOpenConns(10)
	sqlDB.SetMaxIdleConns(5)
	sqlDB.SetConnMaxLifetime(time.Hour)

	if err := sqlDB.PingContext(ctx); err != nil {
		closeQuietly(sqlDB.Close)
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	d := &Database{db: db, dbPath: dbPath}

	if err := d.initialize(ctx); err != nil {
		closeQuietly(sqlDB.Close)
		return nil, fmt.Errorf("failed to initialize database schema: %w", err)
	}

	logging.Info("Database initialized successfully at %s", dbPath)
	return d, nil
}

func (d *Database) initialize(ctx context.Context) error {
	db := d.db.WithContext(ctx)

	if err := db.AutoMigrate(allModels()...); err != nil {
		return fmt.Errorf("auto-migrate: %w", err)
	}

	// phash is unique only among live rows; GORM tags cannot express a
	// partial index.
	if err := db.Exec(`CREATE UNIQUE INDEX IF NOT EXISTS idx_images_phash_active
		ON images(phash) WHERE deleted_at IS NULL`).Error; err != nil {
		return fmt.Errorf("create phash index: %w", err)
	}

	for _, name := range modelTypeNames {
		mt := ModelType{Name: name}
		if err := db.Where(ModelType{Name: name}).FirstOrCreate(&mt).Error; err != nil {
			return fmt.Errorf("seed model type %s: %w", name, err)
		}
	}

	manual, err := d.GetOrCreateModel(ctx, ManualEditModelName, "", nil)
	if err != nil {
		return fmt.Errorf("seed %s model: %w", ManualEditModelName, err)
	}
	d.manualModelID = manual.ID

	return nil
}

// Close closes the database connection.
func (d *Database) Close() error {
	sqlDB, err := d.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Path returns the database file path.
func (d *Database) Path() string {
	return d.dbPath
}

// Generation returns a counter that changes after every successful write.
func (d *Database) Generation() uint64 {
	return d.generation.Load()
}

func (d *Database) bump() {
	d.generation.Add(1)
}

// ManualEditModelID returns the id of the reserved manual_edit model.
func (d *Database) ManualEditModelID() int64 {
	return d.manualModelID
}

// recordQuery records database query metrics
func recordQuery(operation string, start time.Time, err error) {
	duration := time.Since(start).Seconds()
	status := "success"
	if err != nil && !errors.Is(err, ErrImageNotFound) {
		status = "error"
	}
	metrics.DBQueryTotal.WithLabelValues(operation, status).Inc()
	metrics.DBQueryDuration.WithLabelValues(operation).Observe(duration)
}

// UpdateDBMetrics updates database connection metrics
func (d *Database) UpdateDBMetrics() {
	sqlDB, err := d.db.DB()
	if err != nil {
		return
	}
	metrics.DBConnectionsOpen.Set(float64(sqlDB.Stats().OpenConnections))
}

// LibraryStats implements metrics.StatsProvider.
func (d *Database) LibraryStats(ctx context.Context) (stats metrics.Stats, err error) {
	start := time.Now()
	defer func() { recordQuery("stats", start, err) }()

	db := d.db.WithContext(ctx)

	if err = db.Model(&Image{}).Count(&stats.TotalImages).Error; err != nil {
		return stats, err
	}
	if err = db.Model(&ImageTag{}).Distinct("tag").Count(&stats.DistinctTags).Error; err != nil {
		return stats, err
	}
	if err = db.Model(&Model{}).Count(&stats.TotalModels).Error; err != nil {
		return stats, err
	}
	err = db.Model(&Image{}).
		Where("images.manual_rating IS NULL").
		Where("NOT EXISTS (SELECT 1 FROM ratings r WHERE r.image_id = images.id)").
		Count(&stats.UnratedImages).Error

	d.UpdateDBMetrics()
	return stats, err
}

func closeQuietly(closeFn func() error) {
	if err := closeFn(); err != nil {
		logging.Error("failed to close database: %v", err)
	}
}

// diagnoseDatabasePermissions checks database directory and file permissions
func diagnoseDatabasePermissions(dbPath string) error {
	dir := filepath.Dir(dbPath)

	dirInfo, err := os.Stat(dir)
	if err != nil {
		return fmt.Errorf("cannot stat database directory: %w", err)
	}

	logging.Debug("Database directory: %s (mode: %v)", dir, dirInfo.Mode())

	testFile := filepath.Join(dir, ".perm-test")
	if err := os.WriteFile(testFile, []byte("test"), 0o600); err != nil {
		return fmt.Errorf("database directory not writable: %w", err)
	}
	_ = os.Remove(testFile)

	for _, path := range []string{dbPath, dbPath + "-wal", dbPath + "-shm"} {
		info, err := os.Stat(path)
		if err != nil {
			continue
		}
		logging.Debug("Database file exists: %s (mode: %v, size: %d bytes)", path, info.Mode(), info.Size())
		if info.Mode().Perm()&0o200 == 0 {
			logging.Warn("%s is read-only (mode %v); writes will fail", filepath.Base(path), info.Mode())
		}
	}

	return nil
}
