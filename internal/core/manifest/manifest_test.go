package manifest_test

import (
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"

	"github.com/inkbound/docmirror/internal/core/manifest"
)

func TestLoadSaveRoundtrip(t *testing.T) {
	fsys := afero.NewMemMapFs()

	m, err := manifest.Load(fsys, "/out")
	require.NoError(t, err)
	require.True(t, m.IsEmpty())

	m.Insert("repo/README.md", manifest.Entry{Source: "/src/repo/README.md", Hash: "abc123"})
	m.Insert("repo/docs/guide.md", manifest.Entry{Source: "/src/repo/docs/guide.md", Hash: "def456"})

	require.NoError(t, m.Save())

	loaded, err := manifest.Load(fsys, "/out")
	require.NoError(t, err)

	e, ok := loaded.Get("repo/README.md")
	require.True(t, ok)
	require.Equal(t, "abc123", e.Hash)
	require.Equal(t, "/src/repo/README.md", e.Source)

	e2, ok := loaded.Get("repo/docs/guide.md")
	require.True(t, ok)
	require.Equal(t, "def456", e2.Hash)
}

func TestGetInsertRemove(t *testing.T) {
	fsys := afero.NewMemMapFs()
	m, err := manifest.Load(fsys, "/out")
	require.NoError(t, err)

	_, ok := m.Get("foo")
	require.False(t, ok)

	m.Insert("foo", manifest.Entry{Source: "/src/foo", Hash: "aaa"})
	_, ok = m.Get("foo")
	require.True(t, ok)

	m.Remove("foo")
	_, ok = m.Get("foo")
	require.False(t, ok)
}

func TestEntriesForRepo(t *testing.T) {
	fsys := afero.NewMemMapFs()
	m, err := manifest.Load(fsys, "/out")
	require.NoError(t, err)

	m.Insert("repo1/a.md", manifest.Entry{Source: "/r1/a.md", Hash: "a"})
	m.Insert("repo1/b.md", manifest.Entry{Source: "/r1/b.md", Hash: "b"})
	m.Insert("repo2/c.md", manifest.Entry{Source: "/r2/c.md", Hash: "c"})

	entries := m.EntriesForRepo("repo1")
	require.Len(t, entries, 2)
	require.Contains(t, entries, "repo1/a.md")
	require.Contains(t, entries, "repo1/b.md")
	require.NotContains(t, entries, "repo2/c.md")
}

func TestLoadMissingFileYieldsEmpty(t *testing.T) {
	fsys := afero.NewMemMapFs()

	m, err := manifest.Load(fsys, "/nonexistent")
	require.NoError(t, err)
	require.True(t, m.IsEmpty())
}

func TestLoadCorruptManifestFails(t *testing.T) {
	fsys := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fsys, "/out/.docmirror-link", []byte("{not valid toml::"), 0o666))

	_, err := manifest.Load(fsys, "/out")
	require.Error(t, err)
	require.ErrorIs(t, err, manifest.ErrCorrupt)
}

func TestHashFile(t *testing.T) {
	fsys := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fsys, "/f.txt", []byte("hello"), 0o666))

	hash, err := manifest.HashFile(fsys, "/f.txt")
	require.NoError(t, err)
	require.Equal(t, manifest.HashBytes([]byte("hello")), hash)
	require.Len(t, hash, 64)
}
