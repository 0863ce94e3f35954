package watcher

import (
	"log/slog"
	"path"
	"strings"

	"github.com/inkbound/docmirror/internal/core/linker"
	"github.com/inkbound/docmirror/internal/core/manifest"
)

// NewMirrorWatcher watches outputDir recursively and reconciles
// mirror-side changes back onto their recorded source, serializing every
// flush behind m's lock. Events under the base-cache shadow tree are
// dropped before they ever reach the pending map.
func NewMirrorWatcher(
	outputDir string,
	m *manifest.Manifest,
	link *linker.Linker,
	debounceSeconds float64,
	log *slog.Logger,
) (*Watcher, error) {
	if log == nil {
		log = slog.Default()
	}

	skip := func(rel string) bool {
		return rel == manifest.Filename ||
			strings.HasPrefix(rel, manifest.Filename+"/") ||
			rel == linker.BaseCacheDirName ||
			strings.HasPrefix(rel, linker.BaseCacheDirName+"/")
	}

	flush := func(batch map[string]EventType) {
		m.Lock()
		defer m.Unlock()

		changed := false

		for key, evt := range batch {
			entry, known := m.Get(key)

			switch evt {
			case Modified:
				if !known {
					continue
				}

				mirrorPath := path.Join(outputDir, key)
				outcome, err := link.SyncFile(entry.Source, mirrorPath, outputDir, key, m)
				if err != nil {
					log.Error("mirror sync failed", "key", key, "error", err)

					continue
				}
				changed = changed || outcome != linker.Skipped

			case Deleted:
				if !known {
					continue
				}

				removed, err := link.PropagateMirrorDelete(key, outputDir, m)
				if err != nil {
					log.Error("propagate mirror delete failed", "key", key, "error", err)

					continue
				}
				changed = changed || removed

			case Created, DirCreated, DirDeleted:
				// Foreign mirror-side directories and untracked created
				// files are never adopted; nothing to do.
			}
		}

		if changed {
			if err := m.Save(); err != nil {
				log.Error("failed to save manifest after mirror flush", "error", err)
			}
		}
	}

	return New(outputDir, debounceSeconds, flush, skip, log)
}
