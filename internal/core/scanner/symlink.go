package scanner

import (
	"os"

	"github.com/spf13/afero"
)

// isSymlink reports whether entry (as found by a directory listing) is a
// symlink, preferring a true Lstat when the backing filesystem supports it.
// In-memory test filesystems have no symlink concept and always report
// false, matching spec.md §4.4's "without following symlinks" directive
// vacuously for those backends.
func isSymlink(fsys afero.Fs, fullPath string, entry os.FileInfo) bool {
	lstater, ok := fsys.(afero.Lstater)
	if !ok {
		return entry.Mode()&os.ModeSymlink != 0
	}

	info, _, err := lstater.LstatIfPossible(fullPath)
	if err != nil {
		return entry.Mode()&os.ModeSymlink != 0
	}

	return info.Mode()&os.ModeSymlink != 0
}
