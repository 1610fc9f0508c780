package logger

import (
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/lmittmann/tint"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/neurite-lab/tractus/internal/env"
)

// Options configure the logger.
type Options struct {
	Level     slog.Level
	LogToFile bool
	LogFile   string
}

// Option mutates Options.
type Option func(*Options)

// WithLevel sets the minimum log level.
func WithLevel(level slog.Level) Option {
	return func(o *Options) { o.Level = level }
}

// WithLogToFile enables mirroring log output to a rotated file.
func WithLogToFile(enabled bool) Option {
	return func(o *Options) { o.LogToFile = enabled }
}

// WithLogFile sets the log file path.
func WithLogFile(path string) Option {
	return func(o *Options) { o.LogFile = path }
}

// New builds a slog.Logger for the given environment. Development gets a
// colorized console handler, production gets JSON. When file logging is
// enabled the output additionally goes to a size-rotated file.
func New(environment env.Environment, opts ...Option) *slog.Logger {
	options := &Options{
		Level:   slog.LevelInfo,
		LogFile: "logs/tractus.log",
	}
	for _, opt := range opts {
		opt(options)
	}

	var w io.Writer = os.Stderr
	if options.LogToFile {
		w = io.MultiWriter(os.Stderr, &lumberjack.Logger{
			Filename:   options.LogFile,
			MaxSize:    10, // megabytes
			MaxBackups: 3,
			MaxAge:     28, // days
			Compress:   true,
		})
	}

	var handler slog.Handler
	if environment == env.Production {
		handler = slog.NewJSONHandler(w, &slog.HandlerOptions{Level: options.Level})
	} else {
		handler = tint.NewHandler(w, &tint.Options{
			Level:      options.Level,
			TimeFormat: time.TimeOnly,
		})
	}

	return slog.New(handler)
}
