package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"lorairo/internal/logging"

	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// slowQueryThreshold marks queries worth a warning.
const slowQueryThreshold = 500 * time.Millisecond

// gormLogger routes GORM's logging into the application logger.
type gormLogger struct {
	level         gormlogger.LogLevel
	slowThreshold time.Duration
}

func newGormLogger() *gormLogger {
	level := gormlogger.Warn
	if logging.IsDebugEnabled() {
		level = gormlogger.Info
	}
	return &gormLogger{level: level, slowThreshold: slowQueryThreshold}
}

// LogMode implements gormlogger.Interface
func (l *gormLogger) LogMode(level gormlogger.LogLevel) gormlogger.Interface {
	n := *l
	n.level = level
	return &n
}

// Info implements gormlogger.Interface
func (l *gormLogger) Info(_ context.Context, msg string, data ...interface{}) {
	if l.level >= gormlogger.Info {
		logging.Debug("gorm: "+msg, data...)
	}
}

// Warn implements gormlogger.Interface
func (l *gormLogger) Warn(_ context.Context, msg string, data ...interface{}) {
	if l.level >= gormlogger.Warn {
		logging.Warn("gorm: "+msg, data...)
	}
}

// Error implements gormlogger.Interface
func (l *gormLogger) Error(_ context.Context, msg string, data ...interface{}) {
	if l.level >= gormlogger.Error {
		logging.Error("gorm: "+msg, data...)
	}
}

// Trace implements gormlogger.Interface. Not-found and unique violations are
// expected control flow for callers and are logged at debug only.
func (l *gormLogger) Trace(_ context.Context, begin time.Time, fc func() (string, int64), err error) {
	if l.level <= gormlogger.Silent {
		return
	}

	elapsed := time.Since(begin)

	switch {
	case err != nil && !errors.Is(err, gorm.ErrRecordNotFound) && !isUniqueViolation(err) &&
		!errors.Is(err, context.Canceled):
		if l.level >= gormlogger.Error {
			sql, rows := fc()
			logging.Error("Query failed after %v (rows=%d): %v: %s", elapsed, rows, err, truncateSQL(sql))
		}
	case l.slowThreshold > 0 && elapsed > l.slowThreshold:
		if l.level >= gormlogger.Warn {
			sql, rows := fc()
			logging.Warn("Slow query (%v > %v, rows=%d): %s", elapsed, l.slowThreshold, rows, truncateSQL(sql))
		}
	case l.level >= gormlogger.Info:
		sql, rows := fc()
		logging.Debug("Query (%v, rows=%d): %s", elapsed, rows, truncateSQL(sql))
	}
}

func truncateSQL(sql string) string {
	const limit = 2000
	if len(sql) <= limit {
		return sql
	}
	return fmt.Sprintf("%s... (%d bytes)", sql[:limit], len(sql))
}
