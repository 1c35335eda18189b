package presets

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/charmbracelet/log"
	"github.com/fsnotify/fsnotify"
)

// Watch calls onChange with freshly loaded presets every time the file at
// path is written, until ctx is done. The parent directory is watched so
// editors that replace the file on save are picked up too. Invalid files
// are logged and skipped.
func Watch(ctx context.Context, path string, onChange func([]Preset)) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create fsnotify watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(filepath.Dir(abs)); err != nil {
		return fmt.Errorf("watch %s: %w", filepath.Dir(abs), err)
	}

	logger := log.Default().WithPrefix("presets")
	logger.Debug("Watching presets", "path", abs)

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != abs {
				continue
			}
			if event.Op&(fsnotify.Create|fsnotify.Write) == 0 {
				continue
			}
			presets, err := Load(abs)
			if err != nil {
				logger.Warn("Hot reload failed", "path", abs, "error", err)
				continue
			}
			logger.Info("Presets reloaded", "count", len(presets))
			onChange(presets)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Warn("Watcher error", "error", err)
		}
	}
}
