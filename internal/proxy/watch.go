package proxy

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog/log"
)

// Watch reloads the table at path whenever the file changes and passes the new
// table to onChange. Tables that fail to load are logged and skipped so the
// previous router stays in effect. Watch blocks until ctx is cancelled.
func Watch(ctx context.Context, path string, onChange func(Table)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create proxy table watcher: %w", err)
	}
	defer watcher.Close()

	// editors commonly replace the file, so watch the directory and filter by name
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		return fmt.Errorf("failed to watch %s: %w", path, err)
	}

	name := filepath.Base(path)

	for {
		select {
		case <-ctx.Done():
			return nil
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			log.Warn().Err(err).Str("path", path).Msg("Proxy table watcher error")
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Base(event.Name) != name {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}

			table, err := Load(path)
			if err != nil {
				log.Error().Err(err).Str("path", path).Msg("Failed to reload proxy table, keeping previous")
				continue
			}

			log.Info().Str("path", path).Int("rules", len(table)).Msg("Proxy table reloaded")
			onChange(table)
		}
	}
}
