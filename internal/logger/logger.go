package logger

import (
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

var (
	defaultLogger zerolog.Logger
	once          sync.Once
)

// Options controls logger construction.
type Options struct {
	Level  string    // debug, info, warn, error
	Format string    // json or console
	Output io.Writer // defaults to os.Stderr
}

// New builds a zerolog.Logger from opts without touching the package default.
func New(opts Options) zerolog.Logger {
	out := opts.Output
	if out == nil {
		out = os.Stderr
	}
	if strings.EqualFold(opts.Format, "console") || strings.EqualFold(opts.Format, "text") {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.Kitchen}
	}

	level, err := zerolog.ParseLevel(strings.ToLower(opts.Level))
	if err != nil || opts.Level == "" {
		level = zerolog.InfoLevel
	}

	return zerolog.New(out).Level(level).With().Timestamp().Logger()
}

// Init initializes the default logger. Only the first call has any effect.
func Init(opts Options) {
	once.Do(func() {
		defaultLogger = New(opts)
		defaultLogger.Debug().Str("level", defaultLogger.GetLevel().String()).Msg("Logger initialized")
	})
}

// Get returns the default logger, initializing it with defaults if needed.
func Get() zerolog.Logger {
	Init(Options{Level: "info", Format: "console"})
	return defaultLogger
}

// Info logs an informational message using the default logger.
func Info(msg string, fields ...any) {
	l := Get()
	l.Info().Fields(fields).Msg(msg)
}

// Warn logs a warning message using the default logger.
func Warn(msg string, fields ...any) {
	l := Get()
	l.Warn().Fields(fields).Msg(msg)
}

// Error logs an error message using the default logger.
func Error(msg string, err error, fields ...any) {
	l := Get()
	l.Error().Err(err).Fields(fields).Msg(msg)
}

// Debug logs a debug message using the default logger.
func Debug(msg string, fields ...any) {
	l := Get()
	l.Debug().Fields(fields).Msg(msg)
}
