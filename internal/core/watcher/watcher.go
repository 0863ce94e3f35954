// Package watcher provides debounced, coalesced recursive filesystem
// watching for a source repo tree, a mirror output tree, or a config file's
// parent directory, atop github.com/fsnotify/fsnotify.
//
// fsnotify has no native recursive mode (unlike the notify crate this
// design is grounded on), so a Watcher walks its root at startup and adds
// one inotify watch per subdirectory, extending that set as directories are
// created and shrinking it as they're removed. On Linux this also means a
// rename is delivered as two independent events — a Rename op on the old
// path followed by a Create op on the new one — rather than a single
// "Both" event carrying both paths; that sequence already has the
// delete-then-create meaning the classification below assigns it, so no
// special Both-handling is needed.
package watcher

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// EventType is the internal classification of a raw OS filesystem event.
type EventType int

const (
	Created EventType = iota
	Modified
	Deleted
	DirCreated
	DirDeleted
)

func (e EventType) String() string {
	switch e {
	case Created:
		return "created"
	case Modified:
		return "modified"
	case Deleted:
		return "deleted"
	case DirCreated:
		return "dir_created"
	case DirDeleted:
		return "dir_deleted"
	default:
		return "unknown"
	}
}

// PollInterval is the coalescing task's wake cadence.
const PollInterval = 100 * time.Millisecond

// FlushFunc is invoked with one coalesced batch of {relPath: latest event}.
// It is called from the watcher's own debounce goroutine; implementations
// must not block indefinitely.
type FlushFunc func(batch map[string]EventType)

// SkipFunc, if non-nil, suppresses events for paths it reports true for
// (relative to the watch root) before they ever enter the pending map.
type SkipFunc func(relPath string) bool

// Watcher recursively watches a directory tree and delivers debounced,
// coalesced batches of classified events to a FlushFunc.
type Watcher struct {
	root      string
	debounce  time.Duration
	flush     FlushFunc
	skip      SkipFunc
	log       *slog.Logger
	fsWatcher *fsnotify.Watcher

	mu      sync.Mutex
	pending map[string]EventType
	dirs    map[string]struct{} // relative paths of directories currently watched

	stopCh chan struct{}
	doneCh chan struct{}
}

// Clamp bounds a configured debounce window to [0, 30] seconds, per
// spec.md's debounce_seconds clamp.
func Clamp(seconds float64) float64 {
	switch {
	case seconds < 0:
		return 0
	case seconds > 30:
		return 30
	default:
		return seconds
	}
}

// New starts watching root recursively and begins its debounce loop in a
// background goroutine. Callers must call Stop to release resources; Stop
// performs one final drain-and-flush before returning.
func New(root string, debounceSeconds float64, flush FlushFunc, skip SkipFunc, log *slog.Logger) (*Watcher, error) {
	if log == nil {
		log = slog.Default()
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create filesystem watcher: %w", err)
	}

	w := &Watcher{
		root:      root,
		debounce:  time.Duration(Clamp(debounceSeconds) * float64(time.Second)),
		flush:     flush,
		skip:      skip,
		log:       log,
		fsWatcher: fsw,
		pending:   make(map[string]EventType),
		dirs:      make(map[string]struct{}),
		stopCh:    make(chan struct{}),
		doneCh:    make(chan struct{}),
	}

	if err := w.addDirRecursive(root); err != nil {
		_ = fsw.Close()

		return nil, err
	}

	go w.eventLoop()
	go w.debounceLoop()

	return w, nil
}

// Stop cancels the watcher, waits for the final drain-and-flush, and
// releases the underlying OS watch handles.
func (w *Watcher) Stop() {
	close(w.stopCh)
	<-w.doneCh
	_ = w.fsWatcher.Close()
}

func (w *Watcher) addDirRecursive(root string) error {
	return filepath.Walk(root, func(p string, info os.FileInfo, err error) error {
		if err != nil {
			// A directory that vanished between listing and stat is not
			// fatal to the walk; skip it and keep going.
			return nil //nolint:nilerr
		}
		if !info.IsDir() {
			return nil
		}

		if err := w.fsWatcher.Add(p); err != nil {
			return fmt.Errorf("failed to watch: %q (%w)", p, err)
		}

		rel := w.relPath(p)
		w.mu.Lock()
		w.dirs[rel] = struct{}{}
		w.mu.Unlock()

		return nil
	})
}

func (w *Watcher) relPath(absPath string) string {
	rel, err := filepath.Rel(w.root, absPath)
	if err != nil {
		return absPath
	}
	if rel == "." {
		return ""
	}

	return filepath.ToSlash(rel)
}

func (w *Watcher) eventLoop() {
	for {
		select {
		case event, ok := <-w.fsWatcher.Events:
			if !ok {
				return
			}
			w.handleRawEvent(event)

		case err, ok := <-w.fsWatcher.Errors:
			if !ok {
				return
			}
			w.log.Error("watch error", "root", w.root, "error", err)
		}
	}
}

func (w *Watcher) handleRawEvent(event fsnotify.Event) {
	rel := w.relPath(event.Name)
	if w.skip != nil && w.skip(rel) {
		return
	}

	switch {
	case event.Op&fsnotify.Create != 0:
		info, err := os.Lstat(event.Name)
		isDir := err == nil && info.IsDir() && info.Mode()&os.ModeSymlink == 0

		if isDir {
			if err := w.addDirRecursive(event.Name); err != nil {
				w.log.Error("failed to watch new directory", "path", event.Name, "error", err)
			}
			w.setPending(rel, DirCreated)
		} else {
			w.setPending(rel, Created)
		}

	case event.Op&fsnotify.Write != 0:
		w.setPending(rel, Modified)

	case event.Op&(fsnotify.Remove|fsnotify.Rename) != 0:
		w.mu.Lock()
		_, wasDir := w.dirs[rel]
		if wasDir {
			delete(w.dirs, rel)
			w.forgetSubtreeLocked(rel)
		}
		w.mu.Unlock()

		if wasDir {
			w.setPending(rel, DirDeleted)
		} else {
			w.setPending(rel, Deleted)
		}
	}
}

// forgetSubtreeLocked drops every tracked directory under rel; callers must
// hold w.mu.
func (w *Watcher) forgetSubtreeLocked(rel string) {
	prefix := rel + "/"
	for d := range w.dirs {
		if strings.HasPrefix(d, prefix) {
			delete(w.dirs, d)
		}
	}
}

func (w *Watcher) setPending(rel string, t EventType) {
	w.mu.Lock()
	w.pending[rel] = t
	w.mu.Unlock()
}

func (w *Watcher) debounceLoop() {
	ticker := time.NewTicker(PollInterval)
	defer ticker.Stop()

	var firstNonEmpty time.Time

	for {
		select {
		case <-w.stopCh:
			w.drainAndFlush()
			close(w.doneCh)

			return

		case <-ticker.C:
			w.mu.Lock()
			empty := len(w.pending) == 0
			w.mu.Unlock()

			if empty {
				firstNonEmpty = time.Time{}

				continue
			}

			if firstNonEmpty.IsZero() {
				firstNonEmpty = time.Now()

				continue
			}

			if time.Since(firstNonEmpty) >= w.debounce {
				w.drainAndFlush()
				firstNonEmpty = time.Time{}
			}
		}
	}
}

func (w *Watcher) drainAndFlush() {
	w.mu.Lock()
	batch := w.pending
	w.pending = make(map[string]EventType)
	w.mu.Unlock()

	if len(batch) == 0 {
		return
	}

	w.flush(batch)
}
