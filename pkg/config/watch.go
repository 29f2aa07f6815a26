package config

import (
	"context"
	"path/filepath"

	"github.com/core-tools/hsu-orchestrator/pkg/errors"
	"github.com/core-tools/hsu-orchestrator/pkg/logging"

	"github.com/fsnotify/fsnotify"
)

// Watch reloads the configuration file whenever it is written and hands every
// valid result to onChange. It blocks until ctx is done. Invalid files are
// logged and skipped so a bad edit never replaces a working configuration.
func Watch(ctx context.Context, filename string, logger logging.Logger, onChange func(*Config)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return errors.NewIOError("failed to create config watcher", err)
	}
	defer watcher.Close()

	// Editors often replace the file, so watch the directory.
	dir := filepath.Dir(filename)
	if err := watcher.Add(dir); err != nil {
		return errors.NewIOError("failed to watch config directory", err).WithContext("dir", dir)
	}

	target := filepath.Clean(filename)
	logger.Infof("Watching configuration, file: %s", target)

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			config, err := LoadConfigFromFile(target)
			if err == nil {
				err = ValidateConfig(config)
			}
			if err != nil {
				logger.Warnf("Ignoring invalid configuration reload, file: %s, error: %v", target, err)
				continue
			}
			logger.Infof("Configuration reloaded, file: %s", target)
			onChange(config)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Warnf("Config watcher error: %v", err)
		}
	}
}
