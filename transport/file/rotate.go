package file

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"gopkg.in/natefinch/lumberjack.v2"
)

// RotateConfig controls size-based rotation of an export file.
type RotateConfig struct {
	// Path is the active file name (required).
	Path string

	// MaxSizeMB triggers rotation; zero uses the lumberjack default of 100.
	MaxSizeMB int

	// MaxBackups is the number of rotated files to keep; zero keeps all.
	MaxBackups int

	// MaxAgeDays removes rotated files older than this; zero keeps all.
	MaxAgeDays int

	// Compress gzips rotated files.
	Compress bool
}

// NewRotatingFile returns a rotating writer for cfg, creating the parent
// directory. The caller must Close it.
func NewRotatingFile(cfg RotateConfig) (*lumberjack.Logger, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("transport/file: rotate: Path is required")
	}
	dir := filepath.Dir(cfg.Path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("transport/file: rotate: mkdir %s: %w", dir, err)
	}
	return &lumberjack.Logger{
		Filename:   cfg.Path,
		MaxSize:    cfg.MaxSizeMB,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAgeDays,
		Compress:   cfg.Compress,
	}, nil
}

// Open returns a WriterTransport that owns a rotating file for cfg.
func Open(cfg RotateConfig, logger *slog.Logger) (*WriterTransport, error) {
	w, err := NewRotatingFile(cfg)
	if err != nil {
		return nil, err
	}
	return New(Config{Writer: w, CloseWriter: true}, logger), nil
}
