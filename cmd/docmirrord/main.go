/*
docmirrord is a bidirectional filesystem synchronization daemon. It mirrors
a set of source repositories into per-output-directory shadow trees,
keeping both sides reconciled as either side is edited: new files are
copied outward, deletions propagate in either direction, and concurrent
edits on both sides are merged line-by-line where possible and otherwise
resolved by keeping the newest side and preserving the other as a
timestamped conflict copy.

# USAGE

	docmirrord -config PATH

# CONFIGURATION

The daemon reads a TOML configuration file (default ./docmirror.toml)
describing the default output directory, the repositories to mirror and
their include/exclude patterns, the debounce window, the log level, and
the periodic full-rescan cadence. See internal/config for the schema.

# SIGNALS

SIGHUP triggers a configuration reload without interrupting the running
daemon. SIGINT and SIGTERM trigger a graceful shutdown: every watcher is
stopped and its pending events are flushed before the process exits.

# RETURN CODES

  - 0: graceful shutdown
  - 1: startup failure (invalid configuration, or a manifest failed to load),
    or a shutdown that did not finish within the 10s exit timeout
*/
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/lmittmann/tint"
	"github.com/spf13/afero"

	"github.com/inkbound/docmirror/internal/config"
	"github.com/inkbound/docmirror/internal/core/engine"
)

const (
	exitCodeSuccess = 0
	exitCodeFailure = 1

	defaultConfigPath = "docmirror.toml"

	exitTimeout = 10 * time.Second
)

// Version is the application's version (filled in during compilation).
var Version string

func main() {
	var exitCode int
	var log *slog.Logger

	defer func() {
		if log != nil {
			log.Info("docmirrord exited", "code", exitCode)
		}
		os.Exit(exitCode)
	}()

	fmt.Fprintf(os.Stdout, "docmirrord (v%s) - bidirectional filesystem mirroring daemon.\n\n", Version)

	configPath := flag.String("config", defaultConfigPath, "path to the TOML configuration file")
	jsonLogs := flag.Bool("json", false, "emit machine-readable JSON logs instead of colorized text")
	flag.Parse()

	fsys := afero.NewOsFs()

	cfg, err := config.Load(fsys, *configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "fatal: failed to load configuration: %v\n", err)
		exitCode = exitCodeFailure

		return
	}

	log = slog.New(logHandler(cfg.LogLevel, *jsonLogs))

	eng := engine.New(fsys, cfg, log)
	if err := eng.Boot(); err != nil {
		log.Error("failed to start", "error", err)
		exitCode = exitCodeFailure

		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	doneChan := make(chan struct{})

	go func() {
		eng.Run(ctx)
		close(doneChan)
	}()

	log.Info("docmirrord running", "config", *configPath)

	select {
	case <-doneChan:
		return

	case <-sigChan:
		log.Warn("received interrupt signal; shutting down (waiting up to 10s)...")
		cancel()

		select {
		case <-doneChan:
			return

		case <-time.After(exitTimeout):
			log.Error("timed out while waiting for shutdown; killing...")
			exitCode = exitCodeFailure

			return
		}
	}
}

func logHandler(level slog.Level, jsonLogs bool) slog.Handler {
	if jsonLogs {
		return slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	}

	return tint.NewHandler(os.Stderr, &tint.Options{
		Level:      level,
		TimeFormat: time.TimeOnly,
	})
}
