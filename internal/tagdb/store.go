package tagdb

import (
	"context"
	"errors"
	"fmt"
	"time"

	"lorairo/internal/logging"

	"github.com/mattn/go-sqlite3"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// Registration defaults for tags first seen by LoRAIro.
const (
	FormatLorairo = "Lorairo"
	TypeUnknown   = "unknown"
)

var (
	// ErrDuplicateTag is returned by Store.Register when the tag already
	// exists for the format, typically because a concurrent writer won.
	ErrDuplicateTag = errors.New("tag already registered")

	// ErrUnknownFormat and ErrUnknownType reject registrations naming a
	// format or type missing from the lookup tables.
	ErrUnknownFormat = errors.New("unknown tag format")
	ErrUnknownType   = errors.New("unknown tag type")
)

var (
	seedFormats = []string{FormatLorairo, "danbooru", "e621"}
	seedTypes   = []string{TypeUnknown, "general", "character", "artist", "copyright", "meta"}
)

// TagRecord is one dictionary entry. Tag is unique per format.
type TagRecord struct {
	TagID     int64     `gorm:"column:tag_id;primaryKey" json:"tagId"`
	Tag       string    `gorm:"not null;uniqueIndex:idx_tag_format" json:"tag"`
	SourceTag string    `gorm:"not null" json:"sourceTag"`
	FormatID  int64     `gorm:"not null;uniqueIndex:idx_tag_format" json:"formatId"`
	TypeID    int64     `gorm:"not null" json:"typeId"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// TableName implements gorm's Tabler.
func (TagRecord) TableName() string { return "tags" }

// TagFormat is a tag vocabulary (danbooru, e621, ...).
type TagFormat struct {
	FormatID   int64  `gorm:"column:format_id;primaryKey"`
	FormatName string `gorm:"not null;uniqueIndex"`
}

// TableName implements gorm's Tabler.
func (TagFormat) TableName() string { return "tag_formats" }

// TagType classifies a tag within a format.
type TagType struct {
	TypeID   int64  `gorm:"column:type_id;primaryKey"`
	TypeName string `gorm:"not null;uniqueIndex"`
}

// TableName implements gorm's Tabler.
func (TagType) TableName() string { return "tag_types" }

// Registration is a new dictionary entry.
type Registration struct {
	Tag       string // normalized
	SourceTag string // as given by the caller
	Format    string
	Type      string
}

// Store is the dictionary seen by the Resolver.
type Store interface {
	// Search returns the ids of every entry whose tag equals normalized,
	// in ascending order.
	Search(ctx context.Context, normalized string) ([]int64, error)
	// Register inserts a new entry and returns its id. A uniqueness
	// conflict is reported as ErrDuplicateTag.
	Register(ctx context.Context, reg Registration) (int64, error)
}

// DB is the SQLite-backed shared tag dictionary.
type DB struct {
	db   *gorm.DB
	path string
}

// Open opens or creates the dictionary at path and seeds the lookup tables.
func Open(ctx context.Context, path string) (*DB, error) {
	dsn := fmt.Sprintf("%s?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on", path)

	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         gormlogger.Default.LogMode(gormlogger.Silent),
		TranslateError: true,
		NowFunc:        func() time.Time { return time.Now().UTC() },
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open tag database: %w", err)
	}

	t := &DB{db: db, path: path}
	if err := t.initialize(ctx); err != nil {
		_ = t.Close()
		return nil, err
	}

	logging.Info("Tag database ready at %s", path)
	return t, nil
}

func (t *DB) initialize(ctx context.Context) error {
	db := t.db.WithContext(ctx)
	if err := db.AutoMigrate(&TagFormat{}, &TagType{}, &TagRecord{}); err != nil {
		return fmt.Errorf("failed to migrate tag database: %w", err)
	}
	for _, name := range seedFormats {
		if err := db.Where(TagFormat{FormatName: name}).FirstOrCreate(&TagFormat{}).Error; err != nil {
			return fmt.Errorf("seed tag format %s: %w", name, err)
		}
	}
	for _, name := range seedTypes {
		if err := db.Where(TagType{TypeName: name}).FirstOrCreate(&TagType{}).Error; err != nil {
			return fmt.Errorf("seed tag type %s: %w", name, err)
		}
	}
	return nil
}

// Close closes the underlying connection pool.
func (t *DB) Close() error {
	sqlDB, err := t.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Search implements Store.
func (t *DB) Search(ctx context.Context, normalized string) ([]int64, error) {
	var ids []int64
	err := t.db.WithContext(ctx).Model(&TagRecord{}).
		Where("tag = ?", normalized).
		Order("tag_id ASC").
		Pluck("tag_id", &ids).Error
	return ids, err
}

// Register implements Store.
func (t *DB) Register(ctx context.Context, reg Registration) (int64, error) {
	db := t.db.WithContext(ctx)

	var format TagFormat
	if err := db.Where("format_name = ?", reg.Format).First(&format).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, fmt.Errorf("%w: %q", ErrUnknownFormat, reg.Format)
		}
		return 0, err
	}

	var typ TagType
	if err := db.Where("type_name = ?", reg.Type).First(&typ).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, fmt.Errorf("%w: %q", ErrUnknownType, reg.Type)
		}
		return 0, err
	}

	rec := TagRecord{
		Tag:       reg.Tag,
		SourceTag: reg.SourceTag,
		FormatID:  format.FormatID,
		TypeID:    typ.TypeID,
	}
	if err := db.Create(&rec).Error; err != nil {
		if isUniqueViolation(err) {
			return 0, fmt.Errorf("%w: %q", ErrDuplicateTag, reg.Tag)
		}
		return 0, err
	}
	return rec.TagID, nil
}

// Get loads one entry by id.
func (t *DB) Get(ctx context.Context, id int64) (*TagRecord, error) {
	var rec TagRecord
	if err := t.db.WithContext(ctx).First(&rec, id).Error; err != nil {
		return nil, err
	}
	return &rec, nil
}

// Count returns the number of dictionary entries.
func (t *DB) Count(ctx context.Context) (int64, error) {
	var n int64
	err := t.db.WithContext(ctx).Model(&TagRecord{}).Count(&n).Error
	return n, err
}

func isUniqueViolation(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var sqliteErr sqlite3.Error
	return errors.As(err, &sqliteErr) &&
		(sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey)
}
