package config

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"
)

// Watch reloads the configuration file whenever it changes and passes the
// new configuration to fn. Files that fail to load are logged and skipped.
// Watching stops when ctx is cancelled.
func Watch(ctx context.Context, configPath string, logger *logrus.Logger, fn func(*Config)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create config watcher: %w", err)
	}

	// Editors usually replace the file, so watch the directory.
	configPath = filepath.Clean(configPath)
	if err := watcher.Add(filepath.Dir(configPath)); err != nil {
		watcher.Close()
		return fmt.Errorf("failed to watch config directory: %w", err)
	}

	go func() {
		defer watcher.Close()
		for {
			select {
			case <-ctx.Done():
				return

			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != configPath || !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
					continue
				}
				cfg, err := readConfig(configPath)
				if err != nil {
					logger.WithError(err).Warn("Ignoring changed configuration")
					continue
				}
				logger.WithField("path", configPath).Info("Configuration reloaded")
				fn(cfg)

			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				logger.WithError(err).Error("Config watcher error")
			}
		}
	}()

	logger.WithField("path", configPath).Debug("Watching configuration")
	return nil
}
