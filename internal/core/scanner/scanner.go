// Package scanner walks a source repository tree, applies a Matcher to
// decide what's in scope, drives the Linker per file, and prunes manifest
// entries whose source has disappeared since the last scan.
package scanner

import (
	"fmt"
	"log/slog"
	"path"

	"github.com/spf13/afero"

	"github.com/inkbound/docmirror/internal/core/linker"
	"github.com/inkbound/docmirror/internal/core/manifest"
	"github.com/inkbound/docmirror/internal/core/matcher"
)

// Repo is the minimal description a scan needs for one configured
// repository: its mirror-key prefix, its source root, the output directory
// its mirror lives under, and its compiled Matcher.
type Repo struct {
	Name       string
	SourceRoot string
	OutputDir  string
	Matcher    *matcher.Matcher
}

// Result tallies the outcome of one scan_repo pass.
type Result struct {
	Created       int
	AlreadyInSync int
	Claimed       int
	Merged        int
	Conflicts     int
	Skipped       int
	Pruned        int
	Errors        int
}

func (r *Result) add(outcome linker.Outcome) {
	switch outcome {
	case linker.Copied:
		r.Created++
	case linker.AlreadyInSync:
		r.AlreadyInSync++
	case linker.Claimed:
		r.Claimed++
	case linker.Merged:
		r.Merged++
	case linker.Conflict:
		r.Conflicts++
	case linker.Skipped:
		r.Skipped++
	}
}

// Scanner drives full_scan/scan_repo against one filesystem.
type Scanner struct {
	fsys afero.Fs
	link *linker.Linker
	log  *slog.Logger
}

// New builds a Scanner bound to fsys, using link to reconcile each in-scope
// file and log for diagnostics.
func New(fsys afero.Fs, link *linker.Linker, log *slog.Logger) *Scanner {
	if log == nil {
		log = slog.Default()
	}

	return &Scanner{fsys: fsys, link: link, log: log}
}

// FullScan runs ScanRepo over every repo, keyed by manifests shared across
// repos that target the same output directory. It returns one Result per
// repo name.
func (s *Scanner) FullScan(repos []Repo, manifests map[string]*manifest.Manifest) (map[string]Result, error) {
	results := make(map[string]Result, len(repos))

	for _, repo := range repos {
		m, ok := manifests[repo.OutputDir]
		if !ok {
			return nil, fmt.Errorf("no manifest loaded for output dir: %q", repo.OutputDir)
		}

		result, err := s.ScanRepo(repo, m)
		if err != nil {
			return results, err
		}

		results[repo.Name] = result
	}

	return results, nil
}

// ScanRepo walks repo's source tree, reconciles every in-scope file,
// prunes stale manifest entries, and saves the manifest. Callers should
// hold m's lock around the whole call when run concurrently with watchers.
func (s *Scanner) ScanRepo(repo Repo, m *manifest.Manifest) (Result, error) {
	var result Result

	isDir, err := afero.DirExists(s.fsys, repo.SourceRoot)
	if err != nil {
		return result, fmt.Errorf("failed to stat source root: %q (%w)", repo.SourceRoot, err)
	}
	if !isDir {
		s.log.Warn("source root is not a directory, skipping scan", "repo", repo.Name, "path", repo.SourceRoot)

		return result, nil
	}

	if err := s.walk(repo, "", m, &result); err != nil {
		return result, err
	}

	pruned, err := s.pruneStale(repo.Name, repo.OutputDir, m)
	if err != nil {
		return result, err
	}
	result.Pruned = pruned

	if err := m.Save(); err != nil {
		return result, err
	}

	s.log.Info("scan complete",
		"repo", repo.Name,
		"created", result.Created,
		"already_in_sync", result.AlreadyInSync,
		"claimed", result.Claimed,
		"merged", result.Merged,
		"conflicts", result.Conflicts,
		"skipped", result.Skipped,
		"pruned", result.Pruned,
		"errors", result.Errors,
	)

	return result, nil
}

// ScanDir walks just relDir (a repo-relative subdirectory) and reconciles
// every in-scope file beneath it, without touching pruning or saving the
// manifest. Used by the Watcher to handle a DirCreated event: editors that
// create a directory and drop files inside it synchronously may emit only
// the directory-create event.
func (s *Scanner) ScanDir(repo Repo, relDir string, m *manifest.Manifest) (Result, error) {
	var result Result

	if err := s.walk(repo, relDir, m, &result); err != nil {
		return result, err
	}

	return result, nil
}

func (s *Scanner) walk(repo Repo, relDir string, m *manifest.Manifest, result *Result) error {
	fullDir := path.Join(repo.SourceRoot, relDir)

	entries, err := afero.ReadDir(s.fsys, fullDir)
	if err != nil {
		return fmt.Errorf("failed to read dir: %q (%w)", fullDir, err)
	}

	for _, entry := range entries {
		entryRel := entry.Name()
		if relDir != "" {
			entryRel = relDir + "/" + entry.Name()
		}
		entryFull := path.Join(fullDir, entry.Name())

		if isSymlink(s.fsys, entryFull, entry) {
			continue
		}

		if entry.IsDir() {
			if !repo.Matcher.ShouldDescend(entryRel) {
				continue
			}
			if err := s.walk(repo, entryRel, m, result); err != nil {
				return err
			}

			continue
		}

		if !repo.Matcher.ShouldMirror(entryRel) {
			continue
		}

		key := repo.Name + "/" + entryRel
		mirrorPath := path.Join(repo.OutputDir, key)

		outcome, err := s.link.SyncFile(entryFull, mirrorPath, repo.OutputDir, key, m)
		if err != nil {
			result.Errors++
			s.log.Error("sync failed", "repo", repo.Name, "key", key, "error", err)

			continue
		}

		result.add(outcome)
	}

	return nil
}

func (s *Scanner) pruneStale(repoName, outputDir string, m *manifest.Manifest) (int, error) {
	pruned := 0

	for key, entry := range m.EntriesForRepo(repoName) {
		present, err := afero.Exists(s.fsys, entry.Source)
		if err != nil {
			return pruned, fmt.Errorf("failed to stat: %q (%w)", entry.Source, err)
		}
		if present {
			continue
		}

		removed, err := s.link.PropagateDelete(key, outputDir, m)
		if err != nil {
			return pruned, err
		}
		if removed {
			pruned++
		}
	}

	return pruned, nil
}
