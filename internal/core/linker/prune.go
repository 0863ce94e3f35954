package linker

import (
	"path"

	"github.com/spf13/afero"
)

// pruneEmptyParents walks upward from dir, removing each empty directory in
// turn, and stops once it reaches stopAt (exclusive) or hits a non-empty
// directory. stopAt is typically a repo's mirror root, which is never itself
// removed by pruning.
func pruneEmptyParents(fsys afero.Fs, dir, stopAt string) {
	for dir != stopAt && dir != "." && dir != "/" {
		empty, err := isDirEmpty(fsys, dir)
		if err != nil || !empty {
			return
		}

		if err := fsys.Remove(dir); err != nil {
			return
		}

		dir = path.Dir(dir)
	}
}

// pruneEmptyDirs removes every empty subdirectory beneath root, deepest
// first, leaving root itself in place even if it ends up empty.
func pruneEmptyDirs(fsys afero.Fs, root string) error {
	entries, err := afero.ReadDir(fsys, root)
	if err != nil {
		return nil //nolint:nilerr // a missing or unreadable root is not an error here
	}

	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}

		child := path.Join(root, entry.Name())
		if err := pruneEmptyDirs(fsys, child); err != nil {
			return err
		}

		empty, err := isDirEmpty(fsys, child)
		if err == nil && empty {
			_ = fsys.Remove(child)
		}
	}

	return nil
}

func isDirEmpty(fsys afero.Fs, dir string) (bool, error) {
	entries, err := afero.ReadDir(fsys, dir)
	if err != nil {
		return false, err
	}

	return len(entries) == 0, nil
}
