package config_test

import (
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"

	"github.com/inkbound/docmirror/internal/config"
)

func writeConfig(t *testing.T, fsys afero.Fs, path, content string) {
	t.Helper()
	require.NoError(t, afero.WriteFile(fsys, path, []byte(content), 0o666))
}

func TestLoad_MinimalValid(t *testing.T) {
	fsys := afero.NewMemMapFs()
	writeConfig(t, fsys, "/cfg.toml", `
version = 1
output_dir = "/out"

[[repos]]
path = "/src/repo1"
`)

	cfg, err := config.Load(fsys, "/cfg.toml")
	require.NoError(t, err)
	require.Equal(t, "/out", cfg.DefaultOutputDir)
	require.Len(t, cfg.Repos, 1)
	require.Equal(t, "repo1", cfg.Repos[0].Name)
	require.Equal(t, "/out", cfg.Repos[0].OutputDir)
	require.InDelta(t, config.DefaultDebounceSeconds, cfg.DebounceSeconds, 0.0001)
	require.Equal(t, config.RescanAuto, cfg.Rescan.Mode)
}

func TestLoad_RejectsWrongVersion(t *testing.T) {
	fsys := afero.NewMemMapFs()
	writeConfig(t, fsys, "/cfg.toml", `
version = 2
output_dir = "/out"
`)

	_, err := config.Load(fsys, "/cfg.toml")
	require.Error(t, err)
	require.ErrorIs(t, err, config.ErrInvalid)
}

func TestLoad_RejectsDebounceOutOfRange(t *testing.T) {
	fsys := afero.NewMemMapFs()
	writeConfig(t, fsys, "/cfg.toml", `
version = 1
output_dir = "/out"
debounce_seconds = 31
`)

	_, err := config.Load(fsys, "/cfg.toml")
	require.Error(t, err)
	require.ErrorIs(t, err, config.ErrInvalid)
}

func TestLoad_RejectsOutputDirInsideRepo(t *testing.T) {
	fsys := afero.NewMemMapFs()
	writeConfig(t, fsys, "/cfg.toml", `
version = 1
output_dir = "/src/repo1/mirror"

[[repos]]
path = "/src/repo1"
`)

	_, err := config.Load(fsys, "/cfg.toml")
	require.Error(t, err)
	require.ErrorIs(t, err, config.ErrInvalid)
}

func TestLoad_RepoNameCollisionGetsSuffixed(t *testing.T) {
	fsys := afero.NewMemMapFs()
	writeConfig(t, fsys, "/cfg.toml", `
version = 1
output_dir = "/out"

[[repos]]
path = "/a/project"

[[repos]]
path = "/b/project"
`)

	cfg, err := config.Load(fsys, "/cfg.toml")
	require.NoError(t, err)
	require.Len(t, cfg.Repos, 2)
	require.Equal(t, "project", cfg.Repos[0].Name)
	require.Equal(t, "project-2", cfg.Repos[1].Name)
}

func TestLoad_PerRepoOutputOverride(t *testing.T) {
	fsys := afero.NewMemMapFs()
	writeConfig(t, fsys, "/cfg.toml", `
version = 1
output_dir = "/out"

[[repos]]
path = "/src/repo1"
output = "/special-out"
`)

	cfg, err := config.Load(fsys, "/cfg.toml")
	require.NoError(t, err)
	require.Equal(t, "/special-out", cfg.Repos[0].OutputDir)
	require.ElementsMatch(t, []string{"/out", "/special-out"}, cfg.OutputDirs())
}

func TestLoad_RescanIntervalVariants(t *testing.T) {
	fsys := afero.NewMemMapFs()
	writeConfig(t, fsys, "/never.toml", `
version = 1
output_dir = "/out"
rescan_interval = "never"
`)
	cfg, err := config.Load(fsys, "/never.toml")
	require.NoError(t, err)
	require.Equal(t, config.RescanNever, cfg.Rescan.Mode)

	writeConfig(t, fsys, "/fixed.toml", `
version = 1
output_dir = "/out"
rescan_interval = 120
`)
	cfg, err = config.Load(fsys, "/fixed.toml")
	require.NoError(t, err)
	require.Equal(t, config.RescanFixed, cfg.Rescan.Mode)
	require.InDelta(t, 120.0, cfg.Rescan.Seconds, 0.0001)

	writeConfig(t, fsys, "/bad.toml", `
version = 1
output_dir = "/out"
rescan_interval = "sometimes"
`)
	_, err = config.Load(fsys, "/bad.toml")
	require.Error(t, err)
	require.ErrorIs(t, err, config.ErrInvalid)
}

func TestLoad_GlobalAndPerRepoPatternsCombine(t *testing.T) {
	fsys := afero.NewMemMapFs()
	writeConfig(t, fsys, "/cfg.toml", `
version = 1
output_dir = "/out"
global_include = ["*.md"]

[[repos]]
path = "/src/repo1"
include = ["*.tex"]
`)

	cfg, err := config.Load(fsys, "/cfg.toml")
	require.NoError(t, err)
	require.True(t, cfg.Repos[0].Matcher.ShouldMirror("paper.tex"))
	require.True(t, cfg.Repos[0].Matcher.ShouldMirror("README.md"))
}

func TestParseLogLevel(t *testing.T) {
	level, err := config.ParseLogLevel("warning")
	require.NoError(t, err)
	require.Equal(t, 4, int(level))

	level, err = config.ParseLogLevel("TRACE")
	require.NoError(t, err)
	require.Equal(t, config.LevelTrace, level)

	_, err = config.ParseLogLevel("verbose")
	require.Error(t, err)
}
