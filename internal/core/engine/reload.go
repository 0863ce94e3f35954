package engine

import (
	"github.com/inkbound/docmirror/internal/config"
)

// reloadConfig re-reads the configuration from disk and applies the diff
// against live state. A failure is logged and leaves the current state
// untouched.
func (e *Engine) reloadConfig() {
	e.mu.Lock()
	path := e.cfg.Path
	e.mu.Unlock()

	newCfg, err := config.Load(e.fsys, path)
	if err != nil {
		e.log.Error("config reload failed, keeping previous configuration", "error", err)

		return
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	e.applyReloadLocked(newCfg)
}

func (e *Engine) applyReloadLocked(newCfg config.Config) {
	oldByName := reposByName(e.cfg.Repos)
	newByName := reposByName(newCfg.Repos)

	if e.attemptGlobalSimpleMoveLocked(oldByName, newByName, newCfg) {
		e.cfg = newCfg
		e.reconcileMirrorWatchersLocked()

		return
	}

	for name, newRepo := range newByName {
		oldRepo, existed := oldByName[name]

		switch {
		case !existed:
			e.log.Info("config reload: repo added", "repo", name)
			e.addRepoLocked(newRepo)

		case oldRepo.OutputDir != newRepo.OutputDir:
			e.log.Info("config reload: repo output_dir changed", "repo", name,
				"old_output_dir", oldRepo.OutputDir, "new_output_dir", newRepo.OutputDir)
			e.stopRepoWatcherLocked(name)
			e.removeRepoMirrorLocked(oldRepo)
			e.addRepoLocked(newRepo)

		case oldRepo.Path != newRepo.Path || !patternsEqual(oldRepo, newRepo):
			e.log.Info("config reload: repo path or patterns changed", "repo", name)
			e.stopRepoWatcherLocked(name)
			e.rescanAndWatchLocked(newRepo)
		}
		// Else: unchanged; the running watcher and manifest entry survive.
	}

	for name, oldRepo := range oldByName {
		if _, stillPresent := newByName[name]; stillPresent {
			continue
		}

		e.log.Info("config reload: repo removed", "repo", name)
		e.stopRepoWatcherLocked(name)
		e.removeRepoMirrorLocked(oldRepo)
	}

	e.cfg = newCfg
	e.reconcileMirrorWatchersLocked()
}

// attemptGlobalSimpleMoveLocked handles the case where every repo, old and
// new, shares a single output_dir and that directory changed: an atomic
// directory rename replaces a per-repo rescan. It reports whether the move
// was taken (and, if so, has already performed the follow-up full scan).
func (e *Engine) attemptGlobalSimpleMoveLocked(oldByName, newByName map[string]config.Repo, newCfg config.Config) bool {
	oldDirs := dirsOf(oldByName)
	newDirs := dirsOf(newByName)

	if len(oldDirs) != 1 || len(newDirs) != 1 {
		return false
	}
	oldDir, newDir := oldDirs[0], newDirs[0]
	if oldDir == newDir {
		return false
	}
	if !sameRepoNames(oldByName, newByName) {
		return false
	}

	if err := e.fsys.Rename(oldDir, newDir); err != nil {
		e.log.Warn("global simple move failed, falling back to per-repo reconciliation",
			"old_output_dir", oldDir, "new_output_dir", newDir, "error", err)

		return false
	}

	if m, ok := e.manifests[oldDir]; ok {
		m.Relabel(newDir)
		delete(e.manifests, oldDir)
		e.manifests[newDir] = m
	}

	e.stopMirrorWatcherLocked(oldDir)
	for name := range oldByName {
		e.stopRepoWatcherLocked(name)
	}

	e.cfg = newCfg
	e.runFullScanLocked()

	for _, repo := range e.cfg.Repos {
		if err := e.startRepoWatcherLocked(repo); err != nil {
			e.log.Warn("failed to restart repo watcher after global move", "repo", repo.Name, "error", err)
		}
	}

	e.log.Info("global simple move applied", "old_output_dir", oldDir, "new_output_dir", newDir)

	return true
}

func (e *Engine) addRepoLocked(repo config.Repo) {
	if err := e.loadManifestLocked(repo.OutputDir); err != nil {
		e.log.Error("failed to load manifest for added repo", "repo", repo.Name, "error", err)

		return
	}

	e.rescanAndWatchLocked(repo)
}

func (e *Engine) rescanAndWatchLocked(repo config.Repo) {
	m, ok := e.manifests[repo.OutputDir]
	if !ok {
		e.log.Error("no manifest loaded for repo's output dir", "repo", repo.Name, "output_dir", repo.OutputDir)

		return
	}

	m.Lock()
	_, err := e.scan.ScanRepo(toScannerRepo(repo), m)
	m.Unlock()

	if err != nil {
		e.log.Error("scan failed for repo during reload", "repo", repo.Name, "error", err)
	}

	if err := e.startRepoWatcherLocked(repo); err != nil {
		e.log.Warn("failed to start repo watcher after reload", "repo", repo.Name, "error", err)
	}
}

func (e *Engine) removeRepoMirrorLocked(repo config.Repo) {
	m, ok := e.manifests[repo.OutputDir]
	if !ok {
		return
	}

	m.Lock()
	err := e.link.RemoveRepoMirror(repo.Name, repo.OutputDir, m)
	if err == nil {
		err = m.Save()
	}
	m.Unlock()

	if err != nil {
		e.log.Error("failed to remove repo mirror", "repo", repo.Name, "error", err)
	}
}

func (e *Engine) stopRepoWatcherLocked(name string) {
	w, ok := e.repoWatchers[name]
	if !ok {
		return
	}

	w.Stop()
	delete(e.repoWatchers, name)
}

func (e *Engine) stopMirrorWatcherLocked(outputDir string) {
	w, ok := e.mirrorWatchers[outputDir]
	if !ok {
		return
	}

	w.Stop()
	delete(e.mirrorWatchers, outputDir)
}

// reconcileMirrorWatchersLocked starts a MirrorWatcher for every output_dir
// newly active in e.cfg and stops+discards the manifest for every one no
// longer referenced.
func (e *Engine) reconcileMirrorWatchersLocked() {
	active := make(map[string]struct{})
	for _, dir := range e.cfg.OutputDirs() {
		active[dir] = struct{}{}

		if _, ok := e.mirrorWatchers[dir]; ok {
			continue
		}
		if err := e.loadManifestLocked(dir); err != nil {
			e.log.Error("failed to load manifest for output dir", "output_dir", dir, "error", err)

			continue
		}
		if err := e.startMirrorWatcherLocked(dir); err != nil {
			e.log.Warn("failed to start mirror watcher", "output_dir", dir, "error", err)
		}
	}

	for dir, w := range e.mirrorWatchers {
		if _, ok := active[dir]; ok {
			continue
		}

		w.Stop()
		delete(e.mirrorWatchers, dir)
		delete(e.manifests, dir)
	}
}

func reposByName(repos []config.Repo) map[string]config.Repo {
	out := make(map[string]config.Repo, len(repos))
	for _, r := range repos {
		out[r.Name] = r
	}

	return out
}

func dirsOf(byName map[string]config.Repo) []string {
	seen := make(map[string]struct{})
	var dirs []string

	for _, r := range byName {
		if _, ok := seen[r.OutputDir]; ok {
			continue
		}
		seen[r.OutputDir] = struct{}{}
		dirs = append(dirs, r.OutputDir)
	}

	return dirs
}

func sameRepoNames(a, b map[string]config.Repo) bool {
	if len(a) != len(b) {
		return false
	}
	for name := range a {
		if _, ok := b[name]; !ok {
			return false
		}
	}

	return true
}

func patternsEqual(a, b config.Repo) bool {
	return stringsEqual(a.IncludePatterns, b.IncludePatterns) && stringsEqual(a.ExcludePatterns, b.ExcludePatterns)
}

func stringsEqual(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}

	return true
}
