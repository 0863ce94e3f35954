package watcher

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
)

// ConfigWatcher watches a config file's parent directory non-recursively
// and raises a single dirty flag when a create/write event names the
// configured file. Parent-directory watching is required because many
// editors replace the target file atomically (write-new, rename-over)
// rather than writing it in place, which would otherwise orphan a watch on
// the file itself.
type ConfigWatcher struct {
	fsWatcher *fsnotify.Watcher
	fileName  string
	dirty     atomic.Bool
	log       *slog.Logger

	stopCh chan struct{}
	doneCh chan struct{}
}

// NewConfigWatcher starts watching configPath's parent directory.
func NewConfigWatcher(configPath string, log *slog.Logger) (*ConfigWatcher, error) {
	if log == nil {
		log = slog.Default()
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create config watcher: %w", err)
	}

	dir := filepath.Dir(configPath)
	if err := fsw.Add(dir); err != nil {
		_ = fsw.Close()

		return nil, fmt.Errorf("failed to watch config dir: %q (%w)", dir, err)
	}

	cw := &ConfigWatcher{
		fsWatcher: fsw,
		fileName:  filepath.Base(configPath),
		log:       log,
		stopCh:    make(chan struct{}),
		doneCh:    make(chan struct{}),
	}

	go cw.loop()

	return cw, nil
}

func (cw *ConfigWatcher) loop() {
	defer close(cw.doneCh)

	for {
		select {
		case <-cw.stopCh:
			return

		case event, ok := <-cw.fsWatcher.Events:
			if !ok {
				return
			}
			if filepath.Base(event.Name) != cw.fileName {
				continue
			}
			if event.Op&(fsnotify.Create|fsnotify.Write) != 0 {
				cw.dirty.Store(true)
			}

		case err, ok := <-cw.fsWatcher.Errors:
			if !ok {
				return
			}
			cw.log.Error("config watch error", "error", err)
		}
	}
}

// Dirty reports whether the configured file has changed since the last
// Clear. The Engine polls this once per main-loop tick.
func (cw *ConfigWatcher) Dirty() bool {
	return cw.dirty.Load()
}

// Clear resets the dirty flag.
func (cw *ConfigWatcher) Clear() {
	cw.dirty.Store(false)
}

// Stop cancels the watcher and releases its OS watch handle.
func (cw *ConfigWatcher) Stop() {
	close(cw.stopCh)
	<-cw.doneCh
	_ = cw.fsWatcher.Close()
}
