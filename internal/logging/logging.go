// Package logging builds the application logger from its configuration.
package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"cdchanger/internal/config"

	"github.com/sirupsen/logrus"
)

// New creates a logger writing to stderr, or to the configured file as
// well. The returned closer releases the file and must be called on exit.
func New(cfg config.LoggingConfig) (*logrus.Logger, io.Closer, error) {
	logger := logrus.New()
	if err := Apply(logger, cfg); err != nil {
		return nil, nil, err
	}

	if cfg.File == "" {
		return logger, nopCloser{}, nil
	}

	if err := os.MkdirAll(filepath.Dir(cfg.File), 0755); err != nil {
		return nil, nil, fmt.Errorf("failed to create log directory: %w", err)
	}
	f, err := os.OpenFile(cfg.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open log file: %w", err)
	}
	logger.SetOutput(io.MultiWriter(os.Stderr, f))
	return logger, f, nil
}

// Apply sets the level and formatter of an existing logger, so a reloaded
// configuration takes effect without a restart.
func Apply(logger *logrus.Logger, cfg config.LoggingConfig) error {
	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		return fmt.Errorf("invalid log level: %w", err)
	}
	logger.SetLevel(level)

	switch cfg.Format {
	case "json":
		logger.SetFormatter(&logrus.JSONFormatter{})
	case "text", "":
		logger.SetFormatter(&logrus.TextFormatter{
			FullTimestamp: true,
		})
	default:
		return fmt.Errorf("invalid log format: %s", cfg.Format)
	}
	return nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
