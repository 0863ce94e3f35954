// Package matcher decides whether a repository-relative path is in scope for
// mirroring, using gitignore semantics for excludes and glob semantics for
// includes.
package matcher

import (
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	ignore "github.com/sabhiram/go-gitignore"
)

// DefaultExclude covers VCS directories, package manager caches, build
// output, per-language caches, and IDE/OS cruft.
var DefaultExclude = []string{
	".git/",
	".svn/",
	".hg/",
	"node_modules/",
	"bower_components/",
	"vendor/",
	".pnpm-store/",
	".venv/",
	"venv/",
	"dist/",
	"build/",
	"out/",
	"target/",
	"_build/",
	".next/",
	".nuxt/",
	".svelte-kit/",
	".docusaurus/",
	"__pycache__/",
	"*.pyc",
	"*.pyo",
	".mypy_cache/",
	".pytest_cache/",
	".ruff_cache/",
	".tox/",
	"*.egg-info/",
	".idea/",
	".vscode/",
	"*.swp",
	"*.swo",
	"*~",
	".DS_Store",
	"Thumbs.db",
}

// DefaultInclude covers common documentation extensions and well-known
// extensionless doc files.
var DefaultInclude = []string{
	"*.md",
	"*.mdx",
	"*.markdown",
	"*.txt",
	"*.rst",
	"*.adoc",
	"*.org",
	"README",
	"LICENSE",
	"LICENCE",
	"CHANGELOG",
	"CONTRIBUTING",
	"AUTHORS",
	"COPYING",
	"TODO",
}

// Matcher holds a compiled exclude/include pair for one repo.
type Matcher struct {
	exclude *ignore.GitIgnore
	include []string // raw, normalized for doublestar matching
}

// Compile builds a Matcher from raw exclude and include pattern lists. Bare
// filename include patterns (no "/") are auto-prefixed with "**/" so they
// match at any depth.
func Compile(excludePatterns, includePatterns []string) (*Matcher, error) {
	gi, err := ignore.CompileIgnoreLines(excludePatterns...)
	if err != nil {
		return nil, err
	}

	normalizedInclude := make([]string, 0, len(includePatterns))
	for _, p := range includePatterns {
		normalizedInclude = append(normalizedInclude, normalizeIncludePattern(p))
	}

	return &Matcher{
		exclude: gi,
		include: normalizedInclude,
	}, nil
}

func normalizeIncludePattern(pattern string) string {
	if !strings.Contains(pattern, "/") {
		return "**/" + pattern
	}

	return pattern
}

// ShouldMirror decides whether relPath is in scope for mirroring. Excludes
// are consulted first (including parent-directory matches), then includes.
func (m *Matcher) ShouldMirror(relPath string) bool {
	normalized := NormalizePath(relPath)
	if normalized == "" {
		return false
	}

	if m.isExcluded(normalized, false) {
		return false
	}

	for _, pattern := range m.include {
		if ok, _ := doublestar.Match(pattern, normalized); ok {
			return true
		}
	}

	return false
}

// ShouldDescend decides whether the walker should descend into dirRelPath.
func (m *Matcher) ShouldDescend(dirRelPath string) bool {
	normalized := NormalizePath(dirRelPath)
	if normalized == "" {
		return true
	}

	return !m.isExcluded(normalized, true)
}

// isExcluded checks relPath and every ancestor directory against the
// exclude set. isDir indicates relPath itself denotes a directory; ancestors
// are always tested as directories.
func (m *Matcher) isExcluded(relPath string, isDir bool) bool {
	segments := strings.Split(relPath, "/")

	// Check every ancestor directory first (parent-directory matches).
	for i := 1; i < len(segments); i++ {
		ancestor := strings.Join(segments[:i], "/")
		if m.exclude.MatchesPath(ancestor + "/") {
			return true
		}
	}

	if isDir {
		return m.exclude.MatchesPath(relPath + "/")
	}

	return m.exclude.MatchesPath(relPath)
}

// NormalizePath normalizes a path to forward slashes with a leading "./"
// stripped; "." becomes the empty string (repo root).
func NormalizePath(relPath string) string {
	normalized := strings.ReplaceAll(relPath, "\\", "/")
	normalized = strings.TrimPrefix(normalized, "./")

	if normalized == "." {
		return ""
	}

	return normalized
}
