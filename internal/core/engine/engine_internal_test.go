package engine

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"

	"github.com/inkbound/docmirror/internal/config"
)

func internalTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func writeReloadConfig(t *testing.T, path, body string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(body), 0o666))
}

func TestReloadConfig_AddedRepoIsScannedAndWatched(t *testing.T) {
	dir := t.TempDir()
	outputDir := filepath.Join(dir, "out")
	repoA := filepath.Join(dir, "a")
	repoB := filepath.Join(dir, "b")
	require.NoError(t, os.MkdirAll(repoA, 0o777))
	require.NoError(t, os.MkdirAll(repoB, 0o777))
	require.NoError(t, os.WriteFile(filepath.Join(repoA, "a.md"), []byte("a"), 0o666))
	require.NoError(t, os.WriteFile(filepath.Join(repoB, "b.md"), []byte("b"), 0o666))

	configPath := filepath.Join(dir, "docmirror.toml")
	writeReloadConfig(t, configPath, `
version = 1
output_dir = "`+filepath.ToSlash(outputDir)+`"

[[repos]]
path = "`+filepath.ToSlash(repoA)+`"
`)

	fsys := afero.NewOsFs()
	cfg, err := config.Load(fsys, configPath)
	require.NoError(t, err)

	e := New(fsys, cfg, internalTestLogger())
	require.NoError(t, e.Boot())
	defer e.shutdown()

	writeReloadConfig(t, configPath, `
version = 1
output_dir = "`+filepath.ToSlash(outputDir)+`"

[[repos]]
path = "`+filepath.ToSlash(repoA)+`"

[[repos]]
path = "`+filepath.ToSlash(repoB)+`"
`)

	e.reloadConfig()

	content, err := os.ReadFile(filepath.Join(outputDir, "b", "b.md"))
	require.NoError(t, err)
	require.Equal(t, "b", string(content))

	e.mu.Lock()
	_, watched := e.repoWatchers["b"]
	e.mu.Unlock()
	require.True(t, watched)
}

func TestReloadConfig_RemovedRepoCleansMirror(t *testing.T) {
	dir := t.TempDir()
	outputDir := filepath.Join(dir, "out")
	repoA := filepath.Join(dir, "a")
	require.NoError(t, os.MkdirAll(repoA, 0o777))
	require.NoError(t, os.WriteFile(filepath.Join(repoA, "a.md"), []byte("a"), 0o666))

	configPath := filepath.Join(dir, "docmirror.toml")
	writeReloadConfig(t, configPath, `
version = 1
output_dir = "`+filepath.ToSlash(outputDir)+`"

[[repos]]
path = "`+filepath.ToSlash(repoA)+`"
`)

	fsys := afero.NewOsFs()
	cfg, err := config.Load(fsys, configPath)
	require.NoError(t, err)

	e := New(fsys, cfg, internalTestLogger())
	require.NoError(t, e.Boot())
	defer e.shutdown()

	_, err = os.Stat(filepath.Join(outputDir, "a", "a.md"))
	require.NoError(t, err)

	writeReloadConfig(t, configPath, `
version = 1
output_dir = "`+filepath.ToSlash(outputDir)+`"
`)

	e.reloadConfig()

	_, err = os.Stat(filepath.Join(outputDir, "a"))
	require.True(t, os.IsNotExist(err))

	e.mu.Lock()
	_, watched := e.repoWatchers["a"]
	e.mu.Unlock()
	require.False(t, watched)
}

func TestReloadConfig_GlobalSimpleMoveRenamesOutputDir(t *testing.T) {
	dir := t.TempDir()
	oldOut := filepath.Join(dir, "out-old")
	newOut := filepath.Join(dir, "out-new")
	repoA := filepath.Join(dir, "a")
	require.NoError(t, os.MkdirAll(repoA, 0o777))
	require.NoError(t, os.WriteFile(filepath.Join(repoA, "a.md"), []byte("a"), 0o666))

	configPath := filepath.Join(dir, "docmirror.toml")
	writeReloadConfig(t, configPath, `
version = 1
output_dir = "`+filepath.ToSlash(oldOut)+`"

[[repos]]
path = "`+filepath.ToSlash(repoA)+`"
`)

	fsys := afero.NewOsFs()
	cfg, err := config.Load(fsys, configPath)
	require.NoError(t, err)

	e := New(fsys, cfg, internalTestLogger())
	require.NoError(t, e.Boot())
	defer e.shutdown()

	writeReloadConfig(t, configPath, `
version = 1
output_dir = "`+filepath.ToSlash(newOut)+`"

[[repos]]
path = "`+filepath.ToSlash(repoA)+`"
`)

	e.reloadConfig()

	content, err := os.ReadFile(filepath.Join(newOut, "a", "a.md"))
	require.NoError(t, err)
	require.Equal(t, "a", string(content))

	_, err = os.Stat(oldOut)
	require.True(t, os.IsNotExist(err))

	e.mu.Lock()
	_, hasOld := e.manifests[oldOut]
	_, hasNew := e.manifests[newOut]
	e.mu.Unlock()
	require.False(t, hasOld)
	require.True(t, hasNew)
}

func TestRescanDueLocked_AutoCadence(t *testing.T) {
	e := New(afero.NewMemMapFs(), config.Config{Rescan: config.Rescan{Mode: config.RescanAuto}}, internalTestLogger())

	e.mu.Lock()
	defer e.mu.Unlock()

	// No scan has ever run: lastScanAt is the zero time, so the elapsed
	// duration trivially exceeds any cadence and a rescan is due.
	require.True(t, e.rescanDueLocked())
}

func TestRescanDueLocked_Never(t *testing.T) {
	e := New(afero.NewMemMapFs(), config.Config{Rescan: config.Rescan{Mode: config.RescanNever}}, internalTestLogger())

	e.mu.Lock()
	defer e.mu.Unlock()

	require.False(t, e.rescanDueLocked())
}
