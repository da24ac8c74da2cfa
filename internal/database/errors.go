package database

import (
	"errors"

	"github.com/mattn/go-sqlite3"
	"gorm.io/gorm"
)

// Validation errors. All of them are returned before any SQL runs.
var (
	ErrInvalidTagLogic   = errors.New("tag logic must be \"and\" or \"or\"")
	ErrInvalidDateRange  = errors.New("date_from is after date_to")
	ErrScoreOutOfRange   = errors.New("score out of range")
	ErrInvalidRating     = errors.New("invalid rating label")
	ErrInvalidPagination = errors.New("invalid page or page size")
	ErrInvalidSort       = errors.New("unknown sort key")
	ErrInvalidResolution = errors.New("resolution must not be negative")
	ErrAbsolutePath      = errors.New("stored image path must be relative")
	ErrInvalidImage      = errors.New("invalid image record")
	ErrEmptyCaption      = errors.New("caption must not be empty")
)

// ErrImageNotFound is returned by lookups of a single image.
var ErrImageNotFound = errors.New("image not found")

var validationErrors = []error{
	ErrInvalidTagLogic, ErrInvalidDateRange, ErrScoreOutOfRange, ErrInvalidRating,
	ErrInvalidPagination, ErrInvalidSort, ErrInvalidResolution, ErrAbsolutePath, ErrInvalidImage,
	ErrEmptyCaption,
}

// IsValidationError reports whether err was caused by malformed input
// rather than by the database.
func IsValidationError(err error) bool {
	for _, target := range validationErrors {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// isUniqueViolation reports whether err is a UNIQUE or PRIMARY KEY
// constraint failure, whether or not GORM translated it.
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	return false
}
