// Package manifest implements the persistent, per-output-directory map of
// mirror-relative keys to ownership records that the Linker consults and
// mutates on every sync operation.
package manifest

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"strings"
	"sync"

	"github.com/pelletier/go-toml/v2"
	"github.com/spf13/afero"
)

const (
	// Filename is the manifest's name at the output-directory root.
	Filename = ".docmirror-link"

	schemaVersion = 1
	hashBufSize   = 8192
)

// ErrCorrupt is returned when an existing manifest file cannot be parsed.
var ErrCorrupt = errors.New("manifest file is corrupt")

// Entry is the ownership record for one mirror-relative key.
type Entry struct {
	Source string `toml:"source"`
	Hash   string `toml:"hash"`
}

type onDisk struct {
	Version int              `toml:"version"`
	Files   map[string]Entry `toml:"files"`
}

// Manifest is the persistent map for one output directory. It is wrapped in
// a mutex so that scans and watcher flushes can serialize all mutations to a
// given mirror tree; callers are expected to hold the lock (via Lock/Unlock)
// for the duration of a batch of Get/Insert/Remove calls.
type Manifest struct {
	mu sync.Mutex

	fsys      afero.Fs
	outputDir string

	files map[string]Entry
}

// Load reads the manifest at <outputDir>/Filename, or returns an empty
// Manifest if no file exists yet. A present but unparseable file is a fatal
// error (ErrCorrupt).
func Load(fsys afero.Fs, outputDir string) (*Manifest, error) {
	m := &Manifest{
		fsys:      fsys,
		outputDir: outputDir,
		files:     make(map[string]Entry),
	}

	manifestPath := path.Join(outputDir, Filename)

	f, err := fsys.Open(manifestPath)
	if errors.Is(err, os.ErrNotExist) {
		return m, nil
	} else if err != nil {
		return nil, fmt.Errorf("failed to open manifest: %q (%w)", manifestPath, err)
	}
	defer f.Close()

	var disk onDisk
	if err := toml.NewDecoder(f).Decode(&disk); err != nil {
		return nil, fmt.Errorf("%w: %q (%w)", ErrCorrupt, manifestPath, err)
	}

	if disk.Files != nil {
		m.files = disk.Files
	}

	return m, nil
}

// Save persists the manifest to <outputDir>/Filename.
func (m *Manifest) Save() error {
	manifestPath := path.Join(m.outputDir, Filename)

	if err := m.fsys.MkdirAll(m.outputDir, 0o777); err != nil {
		return fmt.Errorf("failed to create output dir: %q (%w)", m.outputDir, err)
	}

	disk := onDisk{
		Version: schemaVersion,
		Files:   m.files,
	}

	out, err := toml.Marshal(disk)
	if err != nil {
		return fmt.Errorf("failed to serialize manifest: %w", err)
	}

	if err := afero.WriteFile(m.fsys, manifestPath, out, 0o666); err != nil {
		return fmt.Errorf("failed to write manifest: %q (%w)", manifestPath, err)
	}

	return nil
}

// Relabel repoints the manifest at a new output directory, without
// touching its entries. Used when a config reload moves an output
// directory's files out from under it (a rename rather than a
// resync-from-scratch).
func (m *Manifest) Relabel(newOutputDir string) {
	m.outputDir = newOutputDir
}

// Lock serializes all mutations to this manifest for the duration of a
// batch (a scan or a watcher flush).
func (m *Manifest) Lock() { m.mu.Lock() }

// Unlock releases the batch lock taken by Lock.
func (m *Manifest) Unlock() { m.mu.Unlock() }

// Get returns the entry for key, if any. Callers performing a multi-step
// read-modify-write sequence should hold Lock for its duration.
func (m *Manifest) Get(key string) (Entry, bool) {
	e, ok := m.files[key]

	return e, ok
}

// Insert records or replaces the entry for key.
func (m *Manifest) Insert(key string, entry Entry) {
	m.files[key] = entry
}

// Remove deletes the entry for key, if present.
func (m *Manifest) Remove(key string) {
	delete(m.files, key)
}

// EntriesForRepo returns a snapshot of all entries whose key begins with
// "repoName/".
func (m *Manifest) EntriesForRepo(repoName string) map[string]Entry {
	prefix := repoName + "/"
	out := make(map[string]Entry)

	for k, v := range m.files {
		if strings.HasPrefix(k, prefix) {
			out[k] = v
		}
	}

	return out
}

// IsEmpty reports whether the manifest has no entries.
func (m *Manifest) IsEmpty() bool {
	return len(m.files) == 0
}

// HashFile computes the hex SHA-256 digest of a file's contents, streaming
// through an 8 KiB buffer.
func HashFile(fsys afero.Fs, filePath string) (string, error) {
	f, err := fsys.Open(filePath)
	if err != nil {
		return "", fmt.Errorf("failed to open for hashing: %q (%w)", filePath, err)
	}
	defer f.Close()

	h := sha256.New()
	buf := make([]byte, hashBufSize)

	if _, err := io.CopyBuffer(h, f, buf); err != nil {
		return "", fmt.Errorf("failed to read for hashing: %q (%w)", filePath, err)
	}

	return hex.EncodeToString(h.Sum(nil)), nil
}

// HashBytes computes the hex SHA-256 digest of data.
func HashBytes(data []byte) string {
	h := sha256.Sum256(data)

	return hex.EncodeToString(h[:])
}
