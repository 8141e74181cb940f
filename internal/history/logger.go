package history

import (
	"context"
	"errors"
	"time"

	glog "gorm.io/gorm/logger"

	"github.com/v0xg/pixellens/internal/logger"
)

const slowQuery = 500 * time.Millisecond

// Logger routes GORM logging through the application logger.
type Logger struct {
	log      logger.Logger
	LogLevel glog.LogLevel
}

func NewLogger(l logger.Logger) *Logger {
	return &Logger{log: l, LogLevel: glog.Warn}
}

func (l *Logger) LogMode(level glog.LogLevel) glog.Interface {
	out := *l
	out.LogLevel = level
	return &out
}

func (l *Logger) Info(_ context.Context, msg string, data ...any) {
	if l.LogLevel >= glog.Info {
		l.log.Info(msg, data...)
	}
}

func (l *Logger) Warn(_ context.Context, msg string, data ...any) {
	if l.LogLevel >= glog.Warn {
		l.log.Warn(msg, data...)
	}
}

func (l *Logger) Error(_ context.Context, msg string, data ...any) {
	if l.LogLevel >= glog.Error {
		l.log.Error(msg, data...)
	}
}

func (l *Logger) Trace(_ context.Context, begin time.Time, fc func() (string, int64), err error) {
	if l.LogLevel <= glog.Silent {
		return
	}

	elapsed := time.Since(begin)
	sql, rows := fc()
	fields := []any{"sql", sql, "rows", rows, "timeMs", float64(elapsed.Nanoseconds()) / 1e6}

	switch {
	case err != nil && !errors.Is(err, glog.ErrRecordNotFound) && l.LogLevel >= glog.Error:
		l.log.Error("sql failed", append(fields, "error", err.Error())...)
	case elapsed > slowQuery && l.LogLevel >= glog.Warn:
		l.log.Warn("slow sql", fields...)
	case l.LogLevel >= glog.Info:
		l.log.Debug("sql", fields...)
	}
}
