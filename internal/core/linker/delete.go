package linker

import (
	"fmt"
	"path"
	"strings"

	"github.com/inkbound/docmirror/internal/core/manifest"
)

// PropagateDelete removes the mirror counterpart and base-cache shadow of a
// source file that was deleted, then prunes any directories left empty by
// the removal. It reports false if key was not tracked.
func (l *Linker) PropagateDelete(key, outputDir string, m *manifest.Manifest) (bool, error) {
	if _, ok := m.Get(key); !ok {
		return false, nil
	}

	mirrorPath := path.Join(outputDir, key)

	if err := l.removeMirrorFile(mirrorPath); err != nil {
		return false, err
	}

	if err := l.removeBase(outputDir, key); err != nil {
		return false, err
	}

	m.Remove(key)

	repoName, _, _ := strings.Cut(key, "/")
	pruneEmptyParents(l.fsys, path.Dir(mirrorPath), path.Join(outputDir, repoName))

	return true, nil
}

// PropagateMirrorDelete removes the source file corresponding to a mirror
// file that was deleted (the mirror-writable, bidirectional case), then
// drops the base-cache shadow. The source tree itself is never pruned for
// emptiness. It reports false if key was not tracked.
func (l *Linker) PropagateMirrorDelete(key, outputDir string, m *manifest.Manifest) (bool, error) {
	entry, ok := m.Get(key)
	if !ok {
		return false, nil
	}

	ok, err := exists(l.fsys, entry.Source)
	if err != nil {
		return false, err
	}
	if ok {
		if err := l.fsys.Remove(entry.Source); err != nil {
			return false, fmt.Errorf("failed to remove source: %q (%w)", entry.Source, err)
		}
	}

	if err := l.removeBase(outputDir, key); err != nil {
		return false, err
	}

	m.Remove(key)

	return true, nil
}

// RemoveDirMirrors drops every tracked mirror under repo/dirRel (a source
// directory that was deleted), along with their base-cache shadows, and
// prunes the now-empty mirror subtree. It returns the number of keys
// removed.
func (l *Linker) RemoveDirMirrors(repo, dirRel, outputDir string, m *manifest.Manifest) (int, error) {
	prefix := repo + "/"
	if dirRel != "" {
		prefix = repo + "/" + dirRel + "/"
	}

	removed := 0
	for key := range m.EntriesForRepo(repo) {
		if !strings.HasPrefix(key, prefix) {
			continue
		}

		mirrorPath := path.Join(outputDir, key)
		if err := l.removeMirrorFile(mirrorPath); err != nil {
			return removed, err
		}
		if err := l.removeBase(outputDir, key); err != nil {
			return removed, err
		}

		m.Remove(key)
		removed++
	}

	mirrorDir := path.Join(outputDir, repo, dirRel)
	if err := pruneEmptyDirs(l.fsys, mirrorDir); err != nil {
		return removed, err
	}
	if empty, err := isDirEmpty(l.fsys, mirrorDir); err == nil && empty {
		_ = l.fsys.Remove(mirrorDir)
	}

	pruneEmptyParents(l.fsys, path.Dir(mirrorDir), path.Join(outputDir, repo))

	return removed, nil
}

// RemoveRepoMirror drops every tracked mirror and base-cache shadow for
// repo, then removes the repo's mirror and base-cache root directories if
// they end up empty. Used when a repo is removed from configuration.
func (l *Linker) RemoveRepoMirror(repo, outputDir string, m *manifest.Manifest) error {
	for key := range m.EntriesForRepo(repo) {
		mirrorPath := path.Join(outputDir, key)
		if err := l.removeMirrorFile(mirrorPath); err != nil {
			return err
		}
		if err := l.removeBase(outputDir, key); err != nil {
			return err
		}

		m.Remove(key)
	}

	mirrorRoot := path.Join(outputDir, repo)
	if err := pruneEmptyDirs(l.fsys, mirrorRoot); err != nil {
		return err
	}
	if empty, err := isDirEmpty(l.fsys, mirrorRoot); err == nil && empty {
		_ = l.fsys.Remove(mirrorRoot)
	}

	baseRoot := path.Join(baseCacheDir(outputDir), repo)
	if err := pruneEmptyDirs(l.fsys, baseRoot); err != nil {
		return err
	}
	if empty, err := isDirEmpty(l.fsys, baseRoot); err == nil && empty {
		_ = l.fsys.Remove(baseRoot)
	}

	return nil
}

func (l *Linker) removeMirrorFile(mirrorPath string) error {
	present, err := l.mirrorPresent(mirrorPath)
	if err != nil {
		return err
	}
	if !present {
		return nil
	}

	if err := l.fsys.Remove(mirrorPath); err != nil {
		return fmt.Errorf("failed to remove mirror: %q (%w)", mirrorPath, err)
	}

	return nil
}
