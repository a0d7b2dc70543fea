package config

import (
	"path/filepath"

	"github.com/fsnotify/fsnotify"

	"github.com/jacques-ia/relais/internal/logger"
)

// Watcher reloads the config file when it changes on disk and invokes a
// callback with the fresh configuration. Only settings that are safe to
// apply to a running broker (log level, rate-limit pools) should be
// consumed from the callback; transport settings require a restart.
type Watcher struct {
	path    string
	watcher *fsnotify.Watcher
	onLoad  func(*Config)
	done    chan struct{}
}

// Watch starts watching path for changes. The callback runs on the
// watcher goroutine; it must not block.
func Watch(path string, onLoad func(*Config)) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	// Watch the directory: editors replace files via rename, which would
	// silently drop a watch on the file itself.
	if err := fsw.Add(filepath.Dir(path)); err != nil {
		fsw.Close()
		return nil, err
	}

	w := &Watcher{
		path:    path,
		watcher: fsw,
		onLoad:  onLoad,
		done:    make(chan struct{}),
	}

	go w.run()
	return w, nil
}

func (w *Watcher) run() {
	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if event.Name != w.path {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			cfg, err := Load(w.path)
			if err != nil {
				logger.Warn("Config reload failed: %v", err)
				continue
			}
			logger.Info("Config reloaded from %s", w.path)
			w.onLoad(cfg)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			logger.Warn("Config watcher error: %v", err)

		case <-w.done:
			return
		}
	}
}

// Close stops the watcher
func (w *Watcher) Close() error {
	close(w.done)
	return w.watcher.Close()
}
