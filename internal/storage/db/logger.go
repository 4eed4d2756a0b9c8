package db

import (
	"context"
	"errors"
	"time"

	"zenstyle/internal/logger"

	"gorm.io/gorm"
	glog "gorm.io/gorm/logger"
)

// Logger 将 GORM 日志转发到应用日志
type Logger struct {
	log           logger.Logger
	LogLevel      glog.LogLevel
	SlowThreshold time.Duration
}

// NewLogger 创建 GORM 日志适配器，默认只输出警告和错误
func NewLogger(l logger.Logger) *Logger {
	if l == nil {
		l = logger.NewNop()
	}
	return &Logger{
		log:           l.With("component", "gorm"),
		LogLevel:      glog.Warn,
		SlowThreshold: 200 * time.Millisecond,
	}
}

// LogMode 实现 glog.Interface
func (l *Logger) LogMode(level glog.LogLevel) glog.Interface {
	nl := *l
	nl.LogLevel = level
	return &nl
}

// Info 实现 glog.Interface
func (l *Logger) Info(_ context.Context, msg string, data ...any) {
	if l.LogLevel >= glog.Info {
		l.log.Info(msg, "data", data)
	}
}

// Warn 实现 glog.Interface
func (l *Logger) Warn(_ context.Context, msg string, data ...any) {
	if l.LogLevel >= glog.Warn {
		l.log.Warn(msg, "data", data)
	}
}

// Error 实现 glog.Interface
func (l *Logger) Error(_ context.Context, msg string, data ...any) {
	if l.LogLevel >= glog.Error {
		l.log.Error(msg, "data", data)
	}
}

// Trace 记录 SQL 执行情况，记录不存在不视为错误
func (l *Logger) Trace(_ context.Context, begin time.Time, fc func() (string, int64), err error) {
	if l.LogLevel <= glog.Silent {
		return
	}

	elapsed := time.Since(begin)
	switch {
	case err != nil && !errors.Is(err, gorm.ErrRecordNotFound) && l.LogLevel >= glog.Error:
		sql, rows := fc()
		l.log.Err(err, "SQL执行错误", "sql", sql, "rows", rows, "elapsed", elapsed)
	case l.SlowThreshold > 0 && elapsed > l.SlowThreshold && l.LogLevel >= glog.Warn:
		sql, rows := fc()
		l.log.Warn("慢SQL", "sql", sql, "rows", rows, "elapsed", elapsed)
	case l.LogLevel >= glog.Info:
		sql, rows := fc()
		l.log.Debug("SQL执行", "sql", sql, "rows", rows, "elapsed", elapsed)
	}
}
