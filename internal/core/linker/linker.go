// Package linker implements the three-way sync primitive that reconciles a
// single source file with its mirror counterpart, deletion propagation in
// both directions, conflict-copy preservation, and the base-cache shadow
// tree that supplies the common ancestor for three-way merges. Which side
// changed since the last sync is decided from the manifest hash.
package linker

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path"
	"time"

	"github.com/spf13/afero"

	"github.com/inkbound/docmirror/internal/core/manifest"
	"github.com/inkbound/docmirror/internal/core/mergealgo"
)

// Outcome classifies what SyncFile did for one key.
type Outcome int

const (
	Skipped Outcome = iota
	Copied
	AlreadyInSync
	Claimed
	Merged
	Conflict
)

func (o Outcome) String() string {
	switch o {
	case Skipped:
		return "skipped"
	case Copied:
		return "copied"
	case AlreadyInSync:
		return "already_in_sync"
	case Claimed:
		return "claimed"
	case Merged:
		return "merged"
	case Conflict:
		return "conflict"
	default:
		return "unknown"
	}
}

// Linker performs the file-level reconciliation; the output directory is
// passed on every call, so one Linker can serve several. It is stateless
// beyond its filesystem handle and logger; callers hold the
// Manifest lock around the whole operation.
type Linker struct {
	fsys afero.Fs
	log  *slog.Logger
}

// New builds a Linker bound to fsys, using log as its diagnostic sink.
func New(fsys afero.Fs, log *slog.Logger) *Linker {
	if log == nil {
		log = slog.Default()
	}

	return &Linker{fsys: fsys, log: log}
}

// SyncFile reconciles a single source/mirror pair identified by a
// mirror-relative key, applying the three-way decision table and recording
// the result in m. Callers must hold m's lock for the duration of the call.
func (l *Linker) SyncFile(source, mirrorPath, outputDir, key string, m *manifest.Manifest) (Outcome, error) {
	sourceOK, err := exists(l.fsys, source)
	if err != nil {
		return Skipped, err
	}
	if !sourceOK {
		return Skipped, nil
	}

	mirrorOK, err := l.mirrorPresent(mirrorPath)
	if err != nil {
		return Skipped, err
	}

	if !mirrorOK {
		return l.createMirror(source, mirrorPath, outputDir, key, m)
	}

	entry, known := m.Get(key)
	if !known {
		return l.claimExisting(source, mirrorPath, outputDir, key, m)
	}

	return l.reconcile(source, mirrorPath, outputDir, key, entry, m)
}

func (l *Linker) createMirror(source, mirrorPath, outputDir, key string, m *manifest.Manifest) (Outcome, error) {
	content, err := afero.ReadFile(l.fsys, source)
	if err != nil {
		return Skipped, fmt.Errorf("failed to read source: %q (%w)", source, err)
	}

	if err := l.fsys.MkdirAll(path.Dir(mirrorPath), 0o777); err != nil {
		return Skipped, fmt.Errorf("failed to create mirror dir: %q (%w)", path.Dir(mirrorPath), err)
	}

	if err := afero.WriteFile(l.fsys, mirrorPath, content, 0o666); err != nil {
		return Skipped, fmt.Errorf("failed to write mirror: %q (%w)", mirrorPath, err)
	}

	hash := manifest.HashBytes(content)
	if err := l.writeBase(outputDir, key, content); err != nil {
		return Skipped, err
	}

	m.Insert(key, manifest.Entry{Source: source, Hash: hash})

	return Copied, nil
}

func (l *Linker) claimExisting(source, mirrorPath, outputDir, key string, m *manifest.Manifest) (Outcome, error) {
	sourceContent, err := afero.ReadFile(l.fsys, source)
	if err != nil {
		return Skipped, fmt.Errorf("failed to read source: %q (%w)", source, err)
	}

	mirrorContent, err := afero.ReadFile(l.fsys, mirrorPath)
	if err != nil {
		return Skipped, fmt.Errorf("failed to read mirror: %q (%w)", mirrorPath, err)
	}

	sourceHash := manifest.HashBytes(sourceContent)
	mirrorHash := manifest.HashBytes(mirrorContent)

	if sourceHash != mirrorHash {
		// Both sides exist, neither owned by us, and they disagree: leave
		// the pre-existing mirror content alone rather than guess a winner.
		return Skipped, nil
	}

	if err := l.writeBase(outputDir, key, sourceContent); err != nil {
		return Skipped, err
	}

	m.Insert(key, manifest.Entry{Source: source, Hash: sourceHash})

	return Claimed, nil
}

func (l *Linker) reconcile(source, mirrorPath, outputDir, key string, entry manifest.Entry, m *manifest.Manifest) (Outcome, error) {
	sourceContent, err := afero.ReadFile(l.fsys, source)
	if err != nil {
		return Skipped, fmt.Errorf("failed to read source: %q (%w)", source, err)
	}

	mirrorContent, err := afero.ReadFile(l.fsys, mirrorPath)
	if err != nil {
		return Skipped, fmt.Errorf("failed to read mirror: %q (%w)", mirrorPath, err)
	}

	sourceHash := manifest.HashBytes(sourceContent)
	mirrorHash := manifest.HashBytes(mirrorContent)

	if sourceHash == mirrorHash {
		if entry.Hash != sourceHash {
			if err := l.writeBase(outputDir, key, sourceContent); err != nil {
				return Skipped, err
			}
			m.Insert(key, manifest.Entry{Source: source, Hash: sourceHash})
		}

		return AlreadyInSync, nil
	}

	switch entry.Hash {
	case sourceHash:
		// Source unchanged since last sync, mirror edited: mirror wins.
		if err := afero.WriteFile(l.fsys, source, mirrorContent, 0o666); err != nil {
			return Skipped, fmt.Errorf("failed to write source: %q (%w)", source, err)
		}
		if err := l.writeBase(outputDir, key, mirrorContent); err != nil {
			return Skipped, err
		}
		m.Insert(key, manifest.Entry{Source: source, Hash: mirrorHash})

		return Copied, nil

	case mirrorHash:
		// Mirror unchanged since last sync, source edited: source wins.
		if err := afero.WriteFile(l.fsys, mirrorPath, sourceContent, 0o666); err != nil {
			return Skipped, fmt.Errorf("failed to write mirror: %q (%w)", mirrorPath, err)
		}
		if err := l.writeBase(outputDir, key, sourceContent); err != nil {
			return Skipped, err
		}
		m.Insert(key, manifest.Entry{Source: source, Hash: sourceHash})

		return Copied, nil
	}

	// Both sides changed since the last sync: attempt a three-way merge
	// against the cached base, falling back to a timestamp-resolved
	// conflict when there's no base or the merge itself conflicts.
	baseContent, haveBase, err := l.readBase(outputDir, key)
	if err != nil {
		return Skipped, err
	}

	if haveBase {
		merged, conflict, mergeErr := mergealgo.Merge(baseContent, sourceContent, mirrorContent)
		if mergeErr == nil && !conflict {
			if err := afero.WriteFile(l.fsys, source, merged, 0o666); err != nil {
				return Skipped, fmt.Errorf("failed to write source: %q (%w)", source, err)
			}
			if err := afero.WriteFile(l.fsys, mirrorPath, merged, 0o666); err != nil {
				return Skipped, fmt.Errorf("failed to write mirror: %q (%w)", mirrorPath, err)
			}
			if err := l.writeBase(outputDir, key, merged); err != nil {
				return Skipped, err
			}
			m.Insert(key, manifest.Entry{Source: source, Hash: manifest.HashBytes(merged)})

			return Merged, nil
		}
	}

	return l.resolveConflict(source, mirrorPath, outputDir, key, sourceContent, mirrorContent, m)
}

// resolveConflict picks a winner by mtime (newest wins, ties favor the
// source) and preserves the loser as a timestamped conflict sibling next to
// the file it displaced.
func (l *Linker) resolveConflict(source, mirrorPath, outputDir, key string, sourceContent, mirrorContent []byte, m *manifest.Manifest) (Outcome, error) {
	sourceInfo, err := l.fsys.Stat(source)
	if err != nil {
		return Skipped, fmt.Errorf("failed to stat source: %q (%w)", source, err)
	}

	mirrorInfo, err := l.fsys.Stat(mirrorPath)
	if err != nil {
		return Skipped, fmt.Errorf("failed to stat mirror: %q (%w)", mirrorPath, err)
	}

	now := time.Now()

	if !mirrorInfo.ModTime().After(sourceInfo.ModTime()) {
		if _, err := l.saveConflict(mirrorPath, mirrorContent, now); err != nil {
			return Skipped, err
		}
		if err := afero.WriteFile(l.fsys, mirrorPath, sourceContent, 0o666); err != nil {
			return Skipped, fmt.Errorf("failed to write mirror: %q (%w)", mirrorPath, err)
		}
		if err := l.writeBase(outputDir, key, sourceContent); err != nil {
			return Skipped, err
		}
		m.Insert(key, manifest.Entry{Source: source, Hash: manifest.HashBytes(sourceContent)})
	} else {
		if _, err := l.saveConflict(source, sourceContent, now); err != nil {
			return Skipped, err
		}
		if err := afero.WriteFile(l.fsys, source, mirrorContent, 0o666); err != nil {
			return Skipped, fmt.Errorf("failed to write source: %q (%w)", source, err)
		}
		if err := l.writeBase(outputDir, key, mirrorContent); err != nil {
			return Skipped, err
		}
		m.Insert(key, manifest.Entry{Source: source, Hash: manifest.HashBytes(mirrorContent)})
	}

	l.log.Warn("conflicting edits, keeping newest and saving a conflict copy", "key", key)

	return Conflict, nil
}

// saveConflict writes content to a "<path>.conflict_YYYYMMDD_HHMMSS" sibling
// of path and returns the sibling's path.
func (l *Linker) saveConflict(filePath string, content []byte, now time.Time) (string, error) {
	conflictPath := filePath + ".conflict_" + now.Format("20060102_150405")

	if err := afero.WriteFile(l.fsys, conflictPath, content, 0o666); err != nil {
		return "", fmt.Errorf("failed to save conflict copy: %q (%w)", conflictPath, err)
	}

	return conflictPath, nil
}

func (l *Linker) mirrorPresent(mirrorPath string) (bool, error) {
	info, err := l.fsys.Stat(mirrorPath)
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to stat mirror: %q (%w)", mirrorPath, err)
	}

	if isSymlink(l.fsys, mirrorPath, info) {
		// A symlink squatting on the mirror path is never ours to manage;
		// treat it as though nothing were there.
		return false, nil
	}

	return true, nil
}

func exists(fsys afero.Fs, p string) (bool, error) {
	_, err := fsys.Stat(p)
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to stat: %q (%w)", p, err)
	}

	return true, nil
}

// isSymlink reports whether info describes a symlink, consulting
// afero.Lstater when the backing filesystem supports it. In-memory test
// filesystems have no symlink concept and always report false.
func isSymlink(fsys afero.Fs, p string, info os.FileInfo) bool {
	lstater, ok := fsys.(afero.Lstater)
	if !ok {
		return false
	}

	lInfo, _, err := lstater.LstatIfPossible(p)
	if err != nil {
		return info.Mode()&os.ModeSymlink != 0
	}

	return lInfo.Mode()&os.ModeSymlink != 0
}
