package logger

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"
	gormlogger "gorm.io/gorm/logger"
)

// GormLogger sends GORM's SQL log through zap. Statements go out at debug,
// slow ones at warn and failed ones at error. Record-not-found is a normal
// lookup miss and is not logged.
type GormLogger struct {
	log   *zap.Logger
	level gormlogger.LogLevel
	slow  time.Duration
}

// NewGormLogger returns a GORM logger. slow <= 0 disables slow statement
// warnings.
func NewGormLogger(log *zap.Logger, level gormlogger.LogLevel, slow time.Duration) *GormLogger {
	return &GormLogger{log: log, level: level, slow: slow}
}

// ParseGormLevel maps a config string to a GORM level; unknown values mean warn.
func ParseGormLevel(s string) gormlogger.LogLevel {
	switch strings.ToLower(s) {
	case "silent":
		return gormlogger.Silent
	case "error":
		return gormlogger.Error
	case "info", "debug":
		return gormlogger.Info
	default:
		return gormlogger.Warn
	}
}

// LogMode implements gormlogger.Interface.
func (l *GormLogger) LogMode(level gormlogger.LogLevel) gormlogger.Interface {
	clone := *l
	clone.level = level
	return &clone
}

func (l *GormLogger) Info(ctx context.Context, msg string, args ...any) {
	if l.level >= gormlogger.Info {
		l.withContext(ctx).Sugar().Infof(msg, args...)
	}
}

func (l *GormLogger) Warn(ctx context.Context, msg string, args ...any) {
	if l.level >= gormlogger.Warn {
		l.withContext(ctx).Sugar().Warnf(msg, args...)
	}
}

func (l *GormLogger) Error(ctx context.Context, msg string, args ...any) {
	if l.level >= gormlogger.Error {
		l.withContext(ctx).Sugar().Errorf(msg, args...)
	}
}

// Trace implements gormlogger.Interface.
func (l *GormLogger) Trace(ctx context.Context, begin time.Time, fc func() (string, int64), err error) {
	if l.level <= gormlogger.Silent {
		return
	}
	elapsed := time.Since(begin)
	failed := err != nil && !errors.Is(err, gormlogger.ErrRecordNotFound)
	slow := l.slow > 0 && elapsed > l.slow

	switch {
	case failed && l.level >= gormlogger.Error:
		l.statement(ctx, elapsed, fc).Error("SQL failed", zap.Error(err))
	case slow && l.level >= gormlogger.Warn:
		l.statement(ctx, elapsed, fc).Warn("Slow SQL", zap.Duration("threshold", l.slow))
	case l.level >= gormlogger.Info:
		l.statement(ctx, elapsed, fc).Debug("SQL")
	}
}

func (l *GormLogger) statement(ctx context.Context, elapsed time.Duration, fc func() (string, int64)) *zap.Logger {
	sql, rows := fc()
	return l.withContext(ctx).With(
		zap.String("sql", sql),
		zap.Int64("rows", rows),
		zap.Duration("elapsed", elapsed),
	)
}

// withContext tags entries with the request, operator and session that
// issued them.
func (l *GormLogger) withContext(ctx context.Context) *zap.Logger {
	log := l.log
	for _, key := range []contextKey{RequestIDKey, OperatorIDKey, SessionIDKey} {
		if v := stringValue(ctx, key); v != "" {
			log = log.With(zap.String(string(key), v))
		}
	}
	return log
}
