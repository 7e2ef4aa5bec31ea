package canonical

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/fsnotify/fsnotify"

	infralogger "github.com/jonesrussell/north-cloud/price-tracker/infrastructure/logger"
)

// Watch reloads the registry from path whenever the file changes, until ctx
// is done. The parent directory is watched so editor rename-on-save works.
// A file that fails to load leaves the current table in place.
func (r *Registry) Watch(ctx context.Context, path string, log infralogger.Logger) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create shops watcher: %w", err)
	}

	dir := filepath.Dir(path)
	if addErr := watcher.Add(dir); addErr != nil {
		_ = watcher.Close()
		return fmt.Errorf("watch %s: %w", dir, addErr)
	}

	target := filepath.Clean(path)
	go func() {
		defer func() { _ = watcher.Close() }()

		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != target ||
					!event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
					continue
				}
				r.reload(path, log)
			case watchErr, ok := <-watcher.Errors:
				if !ok {
					return
				}
				log.Warn("Shops watcher error", infralogger.Error(watchErr))
			}
		}
	}()

	return nil
}

func (r *Registry) reload(path string, log infralogger.Logger) {
	shops, err := LoadShopsFile(path)
	if err == nil {
		err = r.Replace(shops)
	}
	if err != nil {
		log.Error("Failed to reload shops, keeping previous table",
			infralogger.String("path", path),
			infralogger.Error(err),
		)
		return
	}
	log.Info("Reloaded shops", infralogger.Strings("shops", r.Shops()))
}
