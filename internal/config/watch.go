package config

import (
	"fmt"
	"path/filepath"

	"github.com/charmbracelet/log"
	"github.com/fsnotify/fsnotify"
)

// Watch reloads the config file on change and hands the new settings to
// onChange. Editors often replace files instead of writing in place, so
// the watch is on the parent directory. The returned stop function ends
// the watch.
func Watch(path string, onChange func(Settings)) (stop func(), err error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create config watcher: %w", err)
	}
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("watch config dir: %w", err)
	}

	target := filepath.Clean(path)
	go func() {
		for {
			select {
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != target {
					continue
				}
				if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
					continue
				}
				settings, err := Load(path)
				if err != nil {
					log.Warn("config reload failed", "path", path, "error", err)
					continue
				}
				log.Info("config reloaded", "path", path)
				onChange(settings)
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				log.Warn("config watch error", "error", err)
			}
		}
	}()

	return func() { watcher.Close() }, nil
}
