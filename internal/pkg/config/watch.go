package config

import (
	"context"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// watchDebounce coalesces editor write bursts into one reload.
const watchDebounce = 200 * time.Millisecond

// Watch reloads the config file on change and invokes onReload with the
// new configuration. It blocks until the context is cancelled. Reload
// failures are logged and the previous configuration stays in effect.
func Watch(ctx context.Context, path string, logger *slog.Logger, onReload func(*Config)) error {
	if logger == nil {
		logger = slog.Default()
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	// Watch the directory: editors replace files on save, which drops
	// a watch placed on the file itself.
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		return err
	}

	var timer *time.Timer
	reload := func() {
		cfg, err := Load(path)
		if err != nil {
			logger.Error("config reload failed",
				slog.String("path", path),
				slog.String("error", err.Error()),
			)
			return
		}
		logger.Info("config reloaded", slog.String("path", path))
		onReload(cfg)
	}

	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return ctx.Err()
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != filepath.Clean(path) {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(watchDebounce, reload)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Error("config watcher error", slog.String("error", err.Error()))
		}
	}
}
