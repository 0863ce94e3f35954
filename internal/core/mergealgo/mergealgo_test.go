package mergealgo_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/inkbound/docmirror/internal/core/mergealgo"
)

func TestMerge_CleanNonOverlapping(t *testing.T) {
	base := []byte("line1\nline2\nline3\n")
	a := []byte("source-edit\nline2\nline3\n")
	b := []byte("line1\nline2\nmirror-edit\n")

	merged, conflict, err := mergealgo.Merge(base, a, b)
	require.NoError(t, err)
	require.False(t, conflict)
	require.Equal(t, "source-edit\nline2\nmirror-edit\n", string(merged))
}

func TestMerge_OverlappingIsConflict(t *testing.T) {
	base := []byte("line1\nline2\nline3\n")
	a := []byte("line1\nsource-version\nline3\n")
	b := []byte("line1\nmirror-version\nline3\n")

	_, conflict, err := mergealgo.Merge(base, a, b)
	require.NoError(t, err)
	require.True(t, conflict)
}

func TestMerge_IdenticalSidesIsNoop(t *testing.T) {
	base := []byte("line1\nline2\n")
	same := []byte("line1\nchanged\n")

	merged, conflict, err := mergealgo.Merge(base, same, same)
	require.NoError(t, err)
	require.False(t, conflict)
	require.Equal(t, string(same), string(merged))
}
