// Package mergealgo implements the line-level three-way merge used by the
// Linker when both the source and mirror side of a file have diverged from
// their last known common base.
package mergealgo

import (
	"bytes"
	"io"

	"github.com/epiclabs-io/diff3"
)

// Merge attempts a three-way line merge of base, a (e.g. source), and b
// (e.g. mirror). On a clean merge it returns the merged content and
// conflict=false. On an overlapping-hunk conflict it returns conflict=true
// and a nil merged slice; the caller is expected to fall back to
// mtime-based conflict resolution.
func Merge(base, a, b []byte) (merged []byte, conflict bool, err error) {
	result, err := diff3.Merge(
		bytes.NewReader(a),
		bytes.NewReader(base),
		bytes.NewReader(b),
		true, "", "",
	)
	if err != nil {
		return nil, false, err
	}

	if result.Conflicts {
		return nil, true, nil
	}

	merged, err = io.ReadAll(result.Result)
	if err != nil {
		return nil, false, err
	}

	return merged, false, nil
}
