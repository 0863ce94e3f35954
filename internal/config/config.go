// Package config loads and validates the on-disk TOML configuration that
// the core engine consumes as an already-validated value. Parsing,
// defaulting, and validation happen here so the core never sees anything
// but a well-formed Config.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"github.com/spf13/afero"

	"github.com/inkbound/docmirror/internal/core/matcher"
)

const schemaVersion = 1

// DefaultDebounceSeconds is applied when debounce_seconds is unset.
const DefaultDebounceSeconds = 0.5

// DefaultLogLevel is applied when log_level is unset.
const DefaultLogLevel = "INFO"

// ErrInvalid wraps every validation failure. The core never enters its main
// loop on a config that fails to load.
var ErrInvalid = errors.New("invalid configuration")

// RescanMode selects the periodic full-rescan cadence.
type RescanMode int

const (
	RescanAuto RescanMode = iota
	RescanNever
	RescanFixed
)

// Rescan describes the resolved rescan cadence: Mode selects the policy,
// and Seconds holds the configured interval when Mode is RescanFixed.
type Rescan struct {
	Mode    RescanMode
	Seconds float64
}

// Repo is one validated, compiled repository entry.
type Repo struct {
	Name      string
	Path      string
	OutputDir string
	Matcher   *matcher.Matcher

	// IncludePatterns is retained verbatim (global + per-repo, in order) so
	// a config reload can detect an include/exclude change by equality
	// without recompiling the Matcher just to compare it.
	IncludePatterns []string
	ExcludePatterns []string
}

// Config is the fully validated value the Engine consumes.
type Config struct {
	DefaultOutputDir string
	Repos            []Repo
	DebounceSeconds  float64
	LogLevel         slog.Level
	Rescan           Rescan
	Path             string
}

// OutputDirs returns the distinct set of output directories referenced by
// any repo, in first-seen order.
func (c Config) OutputDirs() []string {
	seen := make(map[string]struct{})
	out := make([]string, 0, len(c.Repos))

	for _, r := range c.Repos {
		if _, ok := seen[r.OutputDir]; ok {
			continue
		}
		seen[r.OutputDir] = struct{}{}
		out = append(out, r.OutputDir)
	}

	return out
}

type rawRepo struct {
	Path    string   `toml:"path"`
	Name    string   `toml:"name,omitempty"`
	Output  string   `toml:"output,omitempty"`
	Include []string `toml:"include,omitempty"`
	Exclude []string `toml:"exclude,omitempty"`
}

type rawConfig struct {
	Version         int      `toml:"version"`
	OutputDir       string   `toml:"output_dir"`
	GlobalInclude   []string `toml:"global_include,omitempty"`
	GlobalExclude   []string `toml:"global_exclude,omitempty"`
	DebounceSeconds *float64 `toml:"debounce_seconds,omitempty"`
	LogLevel        string   `toml:"log_level,omitempty"`
	RescanInterval  any      `toml:"rescan_interval,omitempty"`
	Repos           []rawRepo `toml:"repos,omitempty"`
}

// Load reads and validates the TOML configuration at path, using fsys for
// output-directory existence checks (a directory that doesn't yet exist is
// created, matching the teacher's own "ensure the target is usable" step).
func Load(fsys afero.Fs, path string) (Config, error) {
	f, err := fsys.Open(path)
	if err != nil {
		return Config{}, fmt.Errorf("%w: failed to open %q: %w", ErrInvalid, path, err)
	}
	defer f.Close()

	var raw rawConfig
	dec := toml.NewDecoder(f)
	if err := dec.Decode(&raw); err != nil {
		return Config{}, fmt.Errorf("%w: failed to parse %q: %w", ErrInvalid, path, err)
	}

	cfg, err := fromRaw(raw)
	if err != nil {
		return Config{}, err
	}
	cfg.Path = path

	if err := fsys.MkdirAll(cfg.DefaultOutputDir, 0o777); err != nil {
		return Config{}, fmt.Errorf("%w: failed to create output dir %q: %w", ErrInvalid, cfg.DefaultOutputDir, err)
	}
	for _, r := range cfg.Repos {
		if err := fsys.MkdirAll(r.OutputDir, 0o777); err != nil {
			return Config{}, fmt.Errorf("%w: failed to create output dir %q: %w", ErrInvalid, r.OutputDir, err)
		}
	}

	return cfg, nil
}

func fromRaw(raw rawConfig) (Config, error) {
	if raw.Version != schemaVersion {
		return Config{}, fmt.Errorf("%w: 'version' must be %d, got %d", ErrInvalid, schemaVersion, raw.Version)
	}

	if strings.TrimSpace(raw.OutputDir) == "" {
		return Config{}, fmt.Errorf("%w: 'output_dir' is required", ErrInvalid)
	}
	outputDir := filepath.Clean(raw.OutputDir)

	debounce := DefaultDebounceSeconds
	if raw.DebounceSeconds != nil {
		debounce = *raw.DebounceSeconds
	}
	if debounce < 0 || debounce > 30 {
		return Config{}, fmt.Errorf("%w: 'debounce_seconds' must be in [0, 30], got %v", ErrInvalid, debounce)
	}

	logLevelStr := raw.LogLevel
	if logLevelStr == "" {
		logLevelStr = DefaultLogLevel
	}
	logLevel, err := ParseLogLevel(logLevelStr)
	if err != nil {
		return Config{}, fmt.Errorf("%w: 'log_level': %w", ErrInvalid, err)
	}

	rescan, err := parseRescan(raw.RescanInterval)
	if err != nil {
		return Config{}, err
	}

	globalInclude := raw.GlobalInclude
	if len(globalInclude) == 0 {
		globalInclude = matcher.DefaultInclude
	}
	globalExclude := raw.GlobalExclude
	if len(globalExclude) == 0 {
		globalExclude = matcher.DefaultExclude
	}

	repos, err := resolveRepos(raw.Repos, outputDir, globalInclude, globalExclude)
	if err != nil {
		return Config{}, err
	}

	return Config{
		DefaultOutputDir: outputDir,
		Repos:            repos,
		DebounceSeconds:  debounce,
		LogLevel:         logLevel,
		Rescan:           rescan,
	}, nil
}

func parseRescan(v any) (Rescan, error) {
	switch val := v.(type) {
	case nil:
		return Rescan{Mode: RescanAuto}, nil

	case string:
		switch val {
		case "auto", "":
			return Rescan{Mode: RescanAuto}, nil
		case "never":
			return Rescan{Mode: RescanNever}, nil
		default:
			return Rescan{}, fmt.Errorf("%w: 'rescan_interval' must be \"auto\", \"never\", or a positive number, got %q", ErrInvalid, val)
		}

	case float64:
		if val <= 0 {
			return Rescan{}, fmt.Errorf("%w: 'rescan_interval' must be a positive number of seconds, got %v", ErrInvalid, val)
		}

		return Rescan{Mode: RescanFixed, Seconds: val}, nil

	case int64:
		return parseRescan(float64(val))

	default:
		return Rescan{}, fmt.Errorf("%w: 'rescan_interval' has an unsupported type %T", ErrInvalid, v)
	}
}

func resolveRepos(raw []rawRepo, defaultOutputDir string, globalInclude, globalExclude []string) ([]Repo, error) {
	seen := make(map[string]int)
	repos := make([]Repo, 0, len(raw))

	for _, r := range raw {
		if strings.TrimSpace(r.Path) == "" {
			return nil, fmt.Errorf("%w: repo entry missing 'path'", ErrInvalid)
		}
		path := filepath.Clean(r.Path)

		baseName := r.Name
		if baseName == "" {
			baseName = filepath.Base(path)
		}

		seen[baseName]++
		name := baseName
		if seen[baseName] > 1 {
			name = fmt.Sprintf("%s-%d", baseName, seen[baseName])
		}

		outputDir := defaultOutputDir
		if r.Output != "" {
			outputDir = filepath.Clean(r.Output)
		}

		if isDescendant(outputDir, path) {
			return nil, fmt.Errorf("%w: output_dir %q is inside repo %q; this would create an infinite loop", ErrInvalid, outputDir, path)
		}

		include := append(append([]string{}, globalInclude...), r.Include...)
		exclude := append(append([]string{}, globalExclude...), r.Exclude...)

		m, err := matcher.Compile(exclude, include)
		if err != nil {
			return nil, fmt.Errorf("%w: repo %q: failed to compile patterns: %w", ErrInvalid, name, err)
		}

		repos = append(repos, Repo{
			Name:            name,
			Path:            path,
			OutputDir:       outputDir,
			Matcher:         m,
			IncludePatterns: include,
			ExcludePatterns: exclude,
		})
	}

	return repos, nil
}

// isDescendant reports whether candidate is path itself or lies beneath it.
func isDescendant(candidate, path string) bool {
	rel, err := filepath.Rel(path, candidate)
	if err != nil {
		return false
	}

	return rel == "." || (!strings.HasPrefix(rel, "..") && rel != "")
}
