// Package logger wraps zerolog behind the small interface the rest of
// pixellens logs through.
package logger

import (
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Logger is a leveled logger taking alternating key/value fields.
type Logger interface {
	Debug(msg string, fields ...any)
	Info(msg string, fields ...any)
	Warn(msg string, fields ...any)
	Error(msg string, fields ...any)
	Err(err error, msg string, fields ...any)
	// With returns a child logger that adds fields to every entry.
	With(fields ...any) Logger
}

// Options configures where and how much to log.
type Options struct {
	Level   string    // debug, info, warn, error; empty means warn
	File    string    // rotating log file; empty disables file output
	Console io.Writer // nil means stderr
	Quiet   bool      // disable console output
}

// ZeroLogger implements Logger on top of zerolog.
type ZeroLogger struct {
	logger zerolog.Logger
}

// New builds a ZeroLogger writing to the console and, optionally, a rotated file.
func New(opts Options) *ZeroLogger {
	writers := make([]io.Writer, 0, 2)
	if !opts.Quiet {
		console := opts.Console
		if console == nil {
			console = os.Stderr
		}
		writers = append(writers, zerolog.ConsoleWriter{Out: console, TimeFormat: "15:04:05"})
	}
	if opts.File != "" {
		writers = append(writers, &lumberjack.Logger{
			Filename:   opts.File,
			MaxSize:    5,
			MaxAge:     30,
			MaxBackups: 3,
			LocalTime:  true,
		})
	}
	if len(writers) == 0 {
		return Nop()
	}

	l := zerolog.New(io.MultiWriter(writers...)).
		With().
		Timestamp().
		Logger().
		Level(ParseLevel(opts.Level))
	return &ZeroLogger{logger: l}
}

// ParseLevel maps a level name to a zerolog level, defaulting to warn.
func ParseLevel(s string) zerolog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return zerolog.DebugLevel
	case "info":
		return zerolog.InfoLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.WarnLevel
	}
}

// Nop returns a logger that discards everything.
func Nop() *ZeroLogger { return &ZeroLogger{logger: zerolog.Nop()} }

func (z *ZeroLogger) With(fields ...any) Logger {
	return &ZeroLogger{logger: z.logger.With().Fields(fields).Logger()}
}

func (z *ZeroLogger) Debug(msg string, fields ...any) {
	z.logger.Debug().Fields(fields).Msg(msg)
}

func (z *ZeroLogger) Info(msg string, fields ...any) {
	z.logger.Info().Fields(fields).Msg(msg)
}

func (z *ZeroLogger) Warn(msg string, fields ...any) {
	z.logger.Warn().Fields(fields).Msg(msg)
}

func (z *ZeroLogger) Error(msg string, fields ...any) {
	z.logger.Error().Fields(fields).Msg(msg)
}

func (z *ZeroLogger) Err(err error, msg string, fields ...any) {
	z.logger.Err(err).Fields(fields).Msg(msg)
}
