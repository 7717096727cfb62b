// Package cli builds the cobra command trees for the resmon and govctl
// binaries and wires the shared plumbing: config loading, logging, and the
// live host/systemd/exec dependencies.
package cli

import (
	"fmt"
	"os"
	"strings"

	"github.com/gofrs/flock"
	"github.com/rs/zerolog"

	"resgov/internal/common/fsutil"
	"resgov/internal/config"
	"resgov/internal/orchestrator"
)

func envStr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// newLogger builds the process logger. Console format on stderr, level from
// the flag (or RESGOV_LOG_LEVEL).
func newLogger(level string) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}
	return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).Level(lvl).With().Timestamp().Logger()
}

// loadConfig reads the config file when given one and falls back to the
// built-in defaults otherwise (RESGOV_CONFIG supplies the default path).
func loadConfig(path string) (config.Config, error) {
	if path == "" {
		path = os.Getenv("RESGOV_CONFIG")
	}
	if path == "" {
		return config.Default(), nil
	}
	expanded, err := fsutil.ExpandHome(path)
	if err != nil {
		return config.Config{}, err
	}
	return config.Load(expanded)
}

// withHostLock runs fn while holding the exclusive host lock. Every mutating
// entry point goes through this or through Orchestrator.Run; at most one
// writer may touch host configuration at a time.
func withHostLock(path string, fn func() error) error {
	lock := flock.New(path)
	locked, err := lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire %s: %w", path, err)
	}
	if !locked {
		return orchestrator.ErrLockBusy(path)
	}
	defer func() { _ = lock.Unlock() }()
	return fn()
}
