// Package systemd exposes the narrow service-manager surface the governance
// tooling depends on: property queries, reload, restart, and active-state
// polling. Everything goes through systemctl so the package works against
// any systemd version without a dbus dependency.
package systemd

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"resgov/internal/execx"
)

// Client is the service-manager interface consumed by the configurator,
// collector, and orchestrator. Tests substitute a fake.
type Client interface {
	DaemonReload(ctx context.Context) error
	RestartUnit(ctx context.Context, unit string) error
	EnableUnit(ctx context.Context, unit string) error
	IsActive(ctx context.Context, unit string) (bool, error)
	UnitExists(ctx context.Context, unit string) (bool, error)
	// ShowProperty returns the raw value of one unit property, e.g.
	// MemoryCurrent, MemoryMax, MainPID.
	ShowProperty(ctx context.Context, unit, property string) (string, error)
}

// Systemctl is the subprocess-backed Client.
type Systemctl struct {
	Run execx.Runner
}

func New(r execx.Runner) *Systemctl { return &Systemctl{Run: r} }

func (s *Systemctl) ctl(args ...string) execx.Cmd {
	return execx.Cmd{Path: "systemctl", Args: args}
}

func (s *Systemctl) DaemonReload(ctx context.Context) error {
	return s.Run.Run(ctx, s.ctl("daemon-reload"))
}

func (s *Systemctl) RestartUnit(ctx context.Context, unit string) error {
	return s.Run.Run(ctx, s.ctl("restart", unit))
}

func (s *Systemctl) EnableUnit(ctx context.Context, unit string) error {
	return s.Run.Run(ctx, s.ctl("enable", unit))
}

// IsActive uses `systemctl show` rather than `is-active` because show exits
// zero for inactive and unknown units alike, keeping exit-code handling out
// of the callers.
func (s *Systemctl) IsActive(ctx context.Context, unit string) (bool, error) {
	out, err := s.Run.Output(ctx, s.ctl("show", "-p", "ActiveState", "--value", unit))
	if err != nil {
		return false, fmt.Errorf("query ActiveState of %s: %w", unit, err)
	}
	return out == "active", nil
}

func (s *Systemctl) UnitExists(ctx context.Context, unit string) (bool, error) {
	out, err := s.Run.Output(ctx, s.ctl("show", "-p", "LoadState", "--value", unit))
	if err != nil {
		return false, fmt.Errorf("query LoadState of %s: %w", unit, err)
	}
	return out == "loaded", nil
}

func (s *Systemctl) ShowProperty(ctx context.Context, unit, property string) (string, error) {
	out, err := s.Run.Output(ctx, s.ctl("show", "-p", property, "--value", unit))
	if err != nil {
		return "", fmt.Errorf("query %s of %s: %w", property, unit, err)
	}
	return out, nil
}

// PropertyUint parses a numeric unit property. systemd reports unset
// values as "[not set]" or the uint64 max sentinel; both map to (0, false).
func PropertyUint(v string) (uint64, bool) {
	n, err := strconv.ParseUint(v, 10, 64)
	if err != nil || n == ^uint64(0) {
		return 0, false
	}
	return n, true
}

// WaitActive polls a unit until it reports active, up to attempts polls
// spaced by interval. Returns false when the attempts are exhausted.
func WaitActive(ctx context.Context, c Client, unit string, attempts int, interval time.Duration) (bool, error) {
	for i := 0; i < attempts; i++ {
		active, err := c.IsActive(ctx, unit)
		if err != nil {
			return false, err
		}
		if active {
			return true, nil
		}
		select {
		case <-ctx.Done():
			return false, ctx.Err()
		case <-time.After(interval):
		}
	}
	return false, nil
}
