package matcher_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/inkbound/docmirror/internal/core/matcher"
)

func defaultMatcher(t *testing.T) *matcher.Matcher {
	t.Helper()

	m, err := matcher.Compile(matcher.DefaultExclude, matcher.DefaultInclude)
	require.NoError(t, err)

	return m
}

func TestShouldMirror_BasicMarkdown(t *testing.T) {
	m := defaultMatcher(t)

	require.True(t, m.ShouldMirror("README.md"))
	require.True(t, m.ShouldMirror("docs/guide.md"))
	require.True(t, m.ShouldMirror("deep/nested/path/file.mdx"))
}

func TestShouldMirror_NonMatchingExcluded(t *testing.T) {
	m := defaultMatcher(t)

	require.False(t, m.ShouldMirror("main.rs"))
	require.False(t, m.ShouldMirror("src/lib.rs"))
	require.False(t, m.ShouldMirror("go.mod"))
}

func TestShouldMirror_NodeModulesExcluded(t *testing.T) {
	m := defaultMatcher(t)

	require.False(t, m.ShouldMirror("node_modules/package/README.md"))
	require.False(t, m.ShouldMirror("node_modules/deep/nested/doc.md"))
}

func TestShouldMirror_GitDirExcluded(t *testing.T) {
	m := defaultMatcher(t)

	require.False(t, m.ShouldMirror(".git/HEAD"))
	require.False(t, m.ShouldMirror(".git/objects/abc/def"))
}

func TestShouldMirror_BuildDirsExcluded(t *testing.T) {
	m := defaultMatcher(t)

	require.False(t, m.ShouldMirror("dist/README.md"))
	require.False(t, m.ShouldMirror("build/docs/guide.md"))
	require.False(t, m.ShouldMirror("target/doc/api.md"))
}

func TestShouldMirror_ExtensionlessDocFiles(t *testing.T) {
	m := defaultMatcher(t)

	require.True(t, m.ShouldMirror("README"))
	require.True(t, m.ShouldMirror("LICENSE"))
	require.True(t, m.ShouldMirror("CHANGELOG"))
	require.True(t, m.ShouldMirror("CONTRIBUTING"))
	require.True(t, m.ShouldMirror("AUTHORS"))
	require.True(t, m.ShouldMirror("subdir/README"))
}

func TestShouldMirror_OtherMarkupFormats(t *testing.T) {
	m := defaultMatcher(t)

	require.True(t, m.ShouldMirror("doc.txt"))
	require.True(t, m.ShouldMirror("doc.rst"))
	require.True(t, m.ShouldMirror("doc.adoc"))
	require.True(t, m.ShouldMirror("notes.org"))
}

func TestShouldDescend_ExcludesDirs(t *testing.T) {
	m := defaultMatcher(t)

	require.False(t, m.ShouldDescend("node_modules"))
	require.False(t, m.ShouldDescend(".git"))
	require.False(t, m.ShouldDescend("__pycache__"))
	require.False(t, m.ShouldDescend("dist"))
	require.False(t, m.ShouldDescend(".venv"))
}

func TestShouldDescend_AllowsNormalDirs(t *testing.T) {
	m := defaultMatcher(t)

	require.True(t, m.ShouldDescend("src"))
	require.True(t, m.ShouldDescend("docs"))
	require.True(t, m.ShouldDescend("lib"))
}

func TestShouldMirror_CustomExcludePatterns(t *testing.T) {
	m, err := matcher.Compile([]string{"vendor/", "docs/generated/"}, []string{"*.md"})
	require.NoError(t, err)

	require.False(t, m.ShouldMirror("vendor/README.md"))
	require.False(t, m.ShouldMirror("docs/generated/api.md"))
	require.True(t, m.ShouldMirror("docs/guide.md"))
}

func TestShouldMirror_CustomIncludePatterns(t *testing.T) {
	m, err := matcher.Compile(nil, []string{"*.md", "*.tex"})
	require.NoError(t, err)

	require.True(t, m.ShouldMirror("paper.tex"))
	require.True(t, m.ShouldMirror("README.md"))
	require.False(t, m.ShouldMirror("main.rs"))
}

func TestNormalizePath(t *testing.T) {
	require.Equal(t, "foo/bar.md", matcher.NormalizePath("./foo/bar.md"))
	require.Equal(t, "foo/bar.md", matcher.NormalizePath("foo\\bar.md"))
	require.Equal(t, "", matcher.NormalizePath("."))
}

func TestShouldMirror_IDEFilesExcluded(t *testing.T) {
	m := defaultMatcher(t)

	require.False(t, m.ShouldMirror(".idea/workspace.xml"))
	require.False(t, m.ShouldMirror(".vscode/settings.json"))
}

func TestShouldMirror_OSFilesExcluded(t *testing.T) {
	m := defaultMatcher(t)

	require.False(t, m.ShouldMirror(".DS_Store"))
	require.False(t, m.ShouldMirror("Thumbs.db"))
}

func TestShouldMirror_EmptyPathNeverMirrored(t *testing.T) {
	m := defaultMatcher(t)

	require.False(t, m.ShouldMirror(""))
	require.False(t, m.ShouldMirror("."))
}
