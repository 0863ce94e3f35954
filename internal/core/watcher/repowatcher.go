package watcher

import (
	"log/slog"
	"path"

	"github.com/spf13/afero"

	"github.com/inkbound/docmirror/internal/core/linker"
	"github.com/inkbound/docmirror/internal/core/manifest"
	"github.com/inkbound/docmirror/internal/core/matcher"
	"github.com/inkbound/docmirror/internal/core/scanner"
)

// NewRepoWatcher watches repoRoot recursively and reconciles source-side
// changes into the mirror under outputDir, via link and scan, serializing
// every flush behind m's lock.
func NewRepoWatcher(
	fsys afero.Fs,
	repoName, repoRoot, outputDir string,
	m *manifest.Manifest,
	mtch *matcher.Matcher,
	link *linker.Linker,
	scan *scanner.Scanner,
	debounceSeconds float64,
	log *slog.Logger,
) (*Watcher, error) {
	if log == nil {
		log = slog.Default()
	}

	repo := scanner.Repo{Name: repoName, SourceRoot: repoRoot, OutputDir: outputDir, Matcher: mtch}

	flush := func(batch map[string]EventType) {
		m.Lock()
		defer m.Unlock()

		changed := false

		for rel, evt := range batch {
			key := repoName + "/" + rel
			sourcePath := path.Join(repoRoot, rel)
			mirrorPath := path.Join(outputDir, key)

			switch evt {
			case Deleted:
				removed, err := link.PropagateDelete(key, outputDir, m)
				if err != nil {
					log.Error("propagate delete failed", "repo", repoName, "key", key, "error", err)

					continue
				}
				changed = changed || removed

			case Created, Modified:
				if !mtch.ShouldMirror(rel) {
					continue
				}

				outcome, err := link.SyncFile(sourcePath, mirrorPath, outputDir, key, m)
				if err != nil {
					log.Error("sync failed", "repo", repoName, "key", key, "error", err)

					continue
				}
				changed = changed || outcome != linker.Skipped

			case DirDeleted:
				removed, err := link.RemoveDirMirrors(repoName, rel, outputDir, m)
				if err != nil {
					log.Error("remove dir mirrors failed", "repo", repoName, "dir", rel, "error", err)

					continue
				}
				changed = changed || removed > 0

			case DirCreated:
				result, err := scan.ScanDir(repo, rel, m)
				if err != nil {
					log.Error("scan new dir failed", "repo", repoName, "dir", rel, "error", err)

					continue
				}
				changed = changed || result.Created > 0 || result.Merged > 0 || result.Conflicts > 0 || result.Claimed > 0
			}
		}

		if changed {
			if err := m.Save(); err != nil {
				log.Error("failed to save manifest after flush", "repo", repoName, "error", err)
			}
		}
	}

	return New(repoRoot, debounceSeconds, flush, nil, log)
}
