package cgroup

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"

	"resgov/internal/common/fsutil"
	"resgov/internal/config"
	"resgov/internal/systemd"
	"resgov/pkg/types"
)

// Configurator applies resource-control profiles to managed services. It
// never reverts: a failed apply leaves the new drop-in in place and the
// previous one in the timestamped backup for operator-driven recovery.
type Configurator struct {
	cfg config.Cgroup
	sd  systemd.Client
	log zerolog.Logger
	now func() time.Time
}

func NewConfigurator(cfg config.Cgroup, sd systemd.Client, log zerolog.Logger) *Configurator {
	return &Configurator{cfg: cfg, sd: sd, log: log, now: time.Now}
}

func (c *Configurator) currentDropIn(unit string) (string, bool, error) {
	b, err := os.ReadFile(DropInPath(c.cfg.DropInDir, unit))
	if err != nil {
		if os.IsNotExist(err) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("read drop-in for %s: %w", unit, err)
	}
	return string(b), true, nil
}

// Diff returns the active and desired drop-in documents for a profile.
// Read-only; used by `govctl cgroup diff`.
func (c *Configurator) Diff(p types.ServiceResourceProfile) (current, desired string, err error) {
	desired = Render(p)
	current, _, err = c.currentDropIn(p.Unit())
	return current, desired, err
}

// ApplyProfile runs the full reconcile for one service:
// render -> diff -> (unchanged | backup -> write -> reload -> restart ->
// verify -> (applied | failed)). The service is only restarted when the
// rendered configuration actually differs from the active one.
func (c *Configurator) ApplyProfile(ctx context.Context, p types.ServiceResourceProfile) types.ApplyResult {
	unit := p.Unit()
	res := types.ApplyResult{Unit: unit}
	fail := func(reason string, err error) types.ApplyResult {
		res.Outcome = types.OutcomeFailed
		res.Reason = fmt.Sprintf("%s: %v", reason, err)
		c.log.Error().Err(err).Str("unit", unit).Str("stage", reason).Msg("profile apply failed")
		return res
	}

	exists, err := c.sd.UnitExists(ctx, unit)
	if err != nil {
		return fail("query unit", err)
	}
	if !exists {
		res.Outcome = types.OutcomeFailed
		res.Reason = "unit not installed"
		c.log.Error().Str("unit", unit).Msg("profile names a unit that is not installed")
		return res
	}

	desired := Render(p)
	current, hadDropIn, err := c.currentDropIn(unit)
	if err != nil {
		return fail("read current", err)
	}
	if hadDropIn && current == desired {
		res.Outcome = types.OutcomeUnchanged
		c.log.Info().Str("unit", unit).Msg("resource profile already correct")
		return res
	}

	path := DropInPath(c.cfg.DropInDir, unit)
	if hadDropIn {
		backup, err := fsutil.BackupCopy(path, c.cfg.BackupDir, c.now())
		if err != nil {
			return fail("backup", err)
		}
		res.Backup = backup
	}
	if err := fsutil.WriteFileAtomic(path, []byte(desired), 0o644); err != nil {
		return fail("write", err)
	}
	if err := c.sd.DaemonReload(ctx); err != nil {
		return fail("daemon-reload", err)
	}
	if err := c.sd.RestartUnit(ctx, unit); err != nil {
		return fail("restart", err)
	}
	healthy, err := systemd.WaitActive(ctx, c.sd, unit,
		c.cfg.VerifyAttempts, time.Duration(c.cfg.VerifyIntervalSeconds)*time.Second)
	if err != nil {
		return fail("verify", err)
	}
	if !healthy {
		res.Outcome = types.OutcomeFailed
		res.Reason = fmt.Sprintf("unit not active after %d checks; previous config kept at %s", c.cfg.VerifyAttempts, res.Backup)
		c.log.Error().Str("unit", unit).Str("backup", res.Backup).Msg("service unhealthy after profile apply, manual recovery required")
		return res
	}
	res.Outcome = types.OutcomeApplied
	c.log.Info().Str("unit", unit).Msg("resource profile applied")
	return res
}

// ApplyAll applies profiles strictly sequentially in dependency order:
// storage and cache backends first, inference engines next, the request
// proxy last. A failed service does not stop the remaining applies.
func (c *Configurator) ApplyAll(ctx context.Context, profiles []types.ServiceResourceProfile) []types.ApplyResult {
	ordered := types.SortProfiles(profiles)
	results := make([]types.ApplyResult, 0, len(ordered))
	for _, p := range ordered {
		results = append(results, c.ApplyProfile(ctx, p))
	}
	return results
}
