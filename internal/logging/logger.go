// Package logging builds the process logger.
package logging

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/natefinch/lumberjack.v2"

	"cycletrader/internal/config"
)

// ParseLevel maps a config level name to a slog level, defaulting to info.
func ParseLevel(name string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// New creates a JSON logger writing to stdout and, when a file is configured,
// to a rotated log file.
func New(cfg config.LoggingConfig) *slog.Logger {
	return slog.New(slog.NewJSONHandler(writer(cfg, os.Stdout), &slog.HandlerOptions{
		Level: ParseLevel(cfg.Level),
	}))
}

func writer(cfg config.LoggingConfig, stdout io.Writer) io.Writer {
	if cfg.File == "" {
		return stdout
	}
	if err := os.MkdirAll(filepath.Dir(cfg.File), 0o755); err != nil {
		return stdout
	}
	return io.MultiWriter(stdout, &lumberjack.Logger{
		Filename:   cfg.File,
		MaxSize:    cfg.MaxSizeMB,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAgeDays,
		Compress:   cfg.Compress,
	})
}
