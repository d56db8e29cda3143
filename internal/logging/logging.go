// Package logging builds the engine's structured logger: text to
// stderr in the foreground, JSON to a rotating file in daemon/worker
// mode.
package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Options configures New.
type Options struct {
	// LogPath, if non-empty, writes rotated JSON logs there via
	// lumberjack instead of stderr. Empty means stderr only.
	LogPath    string
	Level      string // debug, info, warn, error
	JSONStderr bool
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

// ParseLevel converts a level string to slog.Level, defaulting to Info
// for anything unrecognized.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// New builds a logger per Options. The returned io.Closer, if non-nil,
// must be closed (flushing and releasing the rotating file) at process
// shutdown; it is nil when logging only to stderr.
func New(opts Options) (*slog.Logger, io.Closer) {
	level := ParseLevel(opts.Level)
	handlerOpts := &slog.HandlerOptions{Level: level}

	if opts.LogPath == "" {
		var handler slog.Handler
		if opts.JSONStderr {
			handler = slog.NewJSONHandler(os.Stderr, handlerOpts)
		} else {
			handler = slog.NewTextHandler(os.Stderr, handlerOpts)
		}
		return slog.New(handler), nil
	}

	rotating := &lumberjack.Logger{
		Filename:   opts.LogPath,
		MaxSize:    nonZero(opts.MaxSizeMB, 50),
		MaxBackups: nonZero(opts.MaxBackups, 7),
		MaxAge:     nonZero(opts.MaxAgeDays, 30),
		Compress:   opts.Compress,
	}
	handler := slog.NewJSONHandler(rotating, handlerOpts)
	return slog.New(handler), rotating
}

// Discard returns a logger that drops everything, for tests that need
// a non-nil *slog.Logger but don't care about its output.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func nonZero(v, def int) int {
	if v == 0 {
		return def
	}
	return v
}
