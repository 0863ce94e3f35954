package linker

import (
	"errors"
	"fmt"
	"os"
	"path"

	"github.com/spf13/afero"
)

// BaseCacheDirName is the hidden directory, rooted at the output directory,
// that shadows the last-known-common content for every tracked key. It is
// consulted only when both sides of a file have diverged since the previous
// sync, to drive the three-way merge.
const BaseCacheDirName = ".docmirror-link.d"

func baseCacheDir(outputDir string) string {
	return path.Join(outputDir, BaseCacheDirName)
}

func baseCachePath(outputDir, key string) string {
	return path.Join(baseCacheDir(outputDir), key)
}

func (l *Linker) writeBase(outputDir, key string, content []byte) error {
	p := baseCachePath(outputDir, key)

	if err := l.fsys.MkdirAll(path.Dir(p), 0o777); err != nil {
		return fmt.Errorf("failed to create base cache dir: %q (%w)", path.Dir(p), err)
	}

	if err := afero.WriteFile(l.fsys, p, content, 0o666); err != nil {
		return fmt.Errorf("failed to write base cache entry: %q (%w)", p, err)
	}

	return nil
}

func (l *Linker) readBase(outputDir, key string) ([]byte, bool, error) {
	p := baseCachePath(outputDir, key)

	content, err := afero.ReadFile(l.fsys, p)
	if errors.Is(err, os.ErrNotExist) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to read base cache entry: %q (%w)", p, err)
	}

	return content, true, nil
}

func (l *Linker) removeBase(outputDir, key string) error {
	p := baseCachePath(outputDir, key)

	if err := l.fsys.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to remove base cache entry: %q (%w)", p, err)
	}

	return nil
}
