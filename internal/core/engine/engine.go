// Package engine composes the matcher, manifest, linker, scanner, and
// watcher packages into the running daemon: it owns every manifest and
// watcher, drives the boot sequence and main loop, and applies config
// reloads against live state.
package engine

import (
	"context"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/spf13/afero"

	"github.com/inkbound/docmirror/internal/config"
	"github.com/inkbound/docmirror/internal/core/linker"
	"github.com/inkbound/docmirror/internal/core/manifest"
	"github.com/inkbound/docmirror/internal/core/scanner"
	"github.com/inkbound/docmirror/internal/core/watcher"
)

// tickInterval is the main loop's wake cadence.
const tickInterval = 1 * time.Second

// minAutoRescan is the floor applied to the Auto rescan cadence.
const minAutoRescan = 60 * time.Second

// autoRescanFactor is the multiplier applied to the last scan's duration to
// derive the Auto rescan cadence.
const autoRescanFactor = 1000

// SelfUpgradeCheck is an optional hook invoked on every main loop tick; the
// Engine applies no schedule of its own, so the hook decides whether a
// check is due. The upgrade mechanism itself is an external collaborator;
// the Engine only owns the slot for it.
type SelfUpgradeCheck func()

// Engine owns every manifest and watcher for a running configuration and
// drives the boot sequence, main loop, and config-reload procedure.
type Engine struct {
	fsys afero.Fs
	log  *slog.Logger

	mu  sync.Mutex
	cfg config.Config

	link *linker.Linker
	scan *scanner.Scanner

	manifests      map[string]*manifest.Manifest
	repoWatchers   map[string]*watcher.Watcher
	mirrorWatchers map[string]*watcher.Watcher
	configWatcher  *watcher.ConfigWatcher

	lastScanAt       time.Time
	lastScanDuration time.Duration

	selfUpgrade SelfUpgradeCheck
}

// New constructs an Engine for cfg. Call Boot before Run.
func New(fsys afero.Fs, cfg config.Config, log *slog.Logger) *Engine {
	if log == nil {
		log = slog.Default()
	}

	link := linker.New(fsys, log)

	return &Engine{
		fsys:           fsys,
		log:            log,
		cfg:            cfg,
		link:           link,
		scan:           scanner.New(fsys, link, log),
		manifests:      make(map[string]*manifest.Manifest),
		repoWatchers:   make(map[string]*watcher.Watcher),
		mirrorWatchers: make(map[string]*watcher.Watcher),
	}
}

// SetSelfUpgradeCheck installs the optional self-upgrade hook polled once
// per main loop tick. Never called if left nil.
func (e *Engine) SetSelfUpgradeCheck(fn SelfUpgradeCheck) {
	e.selfUpgrade = fn
}

// Boot loads every manifest the config references, runs an initial full
// scan, and starts every watcher. It must be called exactly once, before
// Run.
func (e *Engine) Boot() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	for _, dir := range e.cfg.OutputDirs() {
		if err := e.loadManifestLocked(dir); err != nil {
			return err
		}
	}

	e.runFullScanLocked()

	for _, repo := range e.cfg.Repos {
		if err := e.startRepoWatcherLocked(repo); err != nil {
			e.log.Warn("failed to start repo watcher, periodic rescan remains the safety net",
				"repo", repo.Name, "error", err)
		}
	}

	for _, dir := range e.cfg.OutputDirs() {
		if err := e.startMirrorWatcherLocked(dir); err != nil {
			e.log.Warn("failed to start mirror watcher, periodic rescan remains the safety net",
				"output_dir", dir, "error", err)
		}
	}

	cw, err := watcher.NewConfigWatcher(e.cfg.Path, e.log)
	if err != nil {
		e.log.Warn("failed to start config watcher, SIGHUP remains available for reload", "error", err)
	} else {
		e.configWatcher = cw
	}

	return nil
}

// Run drives the main loop until ctx is cancelled, then stops every
// watcher and returns. SIGHUP (where the platform delivers it) triggers a
// config reload without interrupting the loop.
func (e *Engine) Run(ctx context.Context) {
	sighup := make(chan os.Signal, 1)
	notifySIGHUP(sighup)
	defer stopSIGHUP(sighup)

	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			e.shutdown()

			return

		case <-ticker.C:
			e.tick(sighup)
		}
	}
}

func (e *Engine) tick(sighup chan os.Signal) {
	select {
	case <-sighup:
		e.log.Info("SIGHUP received, reloading configuration")
		e.reloadConfig()
	default:
	}

	if e.configWatcher != nil && e.configWatcher.Dirty() {
		e.configWatcher.Clear()
		e.log.Info("configuration file changed on disk, reloading")
		e.reloadConfig()
	}

	e.mu.Lock()
	due := e.rescanDueLocked()
	e.mu.Unlock()

	if due {
		e.mu.Lock()
		e.runFullScanLocked()
		e.mu.Unlock()
	}

	if e.selfUpgrade != nil {
		e.selfUpgrade()
	}
}

func (e *Engine) shutdown() {
	e.mu.Lock()
	defer e.mu.Unlock()

	for name, w := range e.repoWatchers {
		w.Stop()
		delete(e.repoWatchers, name)
	}
	for dir, w := range e.mirrorWatchers {
		w.Stop()
		delete(e.mirrorWatchers, dir)
	}
	if e.configWatcher != nil {
		e.configWatcher.Stop()
		e.configWatcher = nil
	}
}

func (e *Engine) loadManifestLocked(outputDir string) error {
	if _, ok := e.manifests[outputDir]; ok {
		return nil
	}

	m, err := manifest.Load(e.fsys, outputDir)
	if err != nil {
		return err
	}

	e.manifests[outputDir] = m

	return nil
}

func (e *Engine) runFullScanLocked() {
	start := time.Now()

	for _, repo := range e.cfg.Repos {
		m, ok := e.manifests[repo.OutputDir]
		if !ok {
			e.log.Error("no manifest loaded for output dir, skipping repo", "repo", repo.Name, "output_dir", repo.OutputDir)

			continue
		}

		m.Lock()
		_, err := e.scan.ScanRepo(toScannerRepo(repo), m)
		m.Unlock()

		if err != nil {
			e.log.Error("full scan failed for repo", "repo", repo.Name, "error", err)
		}
	}

	e.lastScanDuration = time.Since(start)
	e.lastScanAt = time.Now()
}

// rescanDueLocked reports whether the periodic full scan is due, per the
// configured cadence.
func (e *Engine) rescanDueLocked() bool {
	switch e.cfg.Rescan.Mode {
	case config.RescanNever:
		return false

	case config.RescanFixed:
		interval := time.Duration(e.cfg.Rescan.Seconds * float64(time.Second))

		return time.Since(e.lastScanAt) >= interval

	default: // config.RescanAuto
		interval := e.lastScanDuration * autoRescanFactor
		if interval < minAutoRescan {
			interval = minAutoRescan
		}

		return time.Since(e.lastScanAt) >= interval
	}
}

func (e *Engine) startRepoWatcherLocked(repo config.Repo) error {
	m := e.manifests[repo.OutputDir]

	w, err := watcher.NewRepoWatcher(
		e.fsys, repo.Name, repo.Path, repo.OutputDir,
		m, repo.Matcher, e.link, e.scan,
		e.cfg.DebounceSeconds, e.log,
	)
	if err != nil {
		return err
	}

	e.repoWatchers[repo.Name] = w

	return nil
}

func (e *Engine) startMirrorWatcherLocked(outputDir string) error {
	m := e.manifests[outputDir]

	w, err := watcher.NewMirrorWatcher(outputDir, m, e.link, e.cfg.DebounceSeconds, e.log)
	if err != nil {
		return err
	}

	e.mirrorWatchers[outputDir] = w

	return nil
}

func toScannerRepo(r config.Repo) scanner.Repo {
	return scanner.Repo{Name: r.Name, SourceRoot: r.Path, OutputDir: r.OutputDir, Matcher: r.Matcher}
}
