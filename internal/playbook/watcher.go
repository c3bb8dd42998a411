package playbook

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/afero"
	"go.uber.org/zap"
)

// Watch reloads the library whenever a playbook file in dir is created,
// written, or removed, until ctx is canceled. A reload that fails keeps
// the previous library contents.
func Watch(ctx context.Context, lib *Library, dir string, logger *zap.Logger) error {
	if logger == nil {
		logger = zap.NewNop()
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("failed to watch %s: %w", dir, err)
	}

	fs := afero.NewOsFs()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			ext := filepath.Ext(event.Name)
			if ext != ".yaml" && ext != ".yml" {
				continue
			}
			if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			pbs, err := LoadDir(fs, dir)
			if err != nil {
				logger.Warn("playbook reload failed, keeping previous set",
					zap.String("file", event.Name),
					zap.Error(err))
				continue
			}
			lib.Replace(pbs)
			logger.Info("playbooks reloaded",
				zap.String("trigger", event.Name),
				zap.Int("playbooks", len(pbs)))
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Warn("watcher error", zap.Error(err))
		}
	}
}
