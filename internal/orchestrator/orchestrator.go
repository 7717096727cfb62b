// Package orchestrator sequences the governance run: memory tiering, cgroup
// profiles in dependency order, the OOM guard, and a final verification
// pass. The run mutates host-wide configuration under an exclusive
// host-level lock; every other mutating entry point takes the same lock.
package orchestrator

import (
	"context"
	"fmt"

	"github.com/gofrs/flock"
	"github.com/rs/zerolog"

	"resgov/internal/cgroup"
	"resgov/internal/config"
	"resgov/internal/metrics"
	"resgov/internal/systemd"
	"resgov/internal/tiering"
	"resgov/pkg/types"
)

// Summary reports the outcome counts of one orchestrator run. The run is
// idempotent: a clean host converges to all-unchanged on repeat runs.
type Summary struct {
	Applied   int                 `json:"applied"`
	Unchanged int                 `json:"unchanged"`
	Failed    int                 `json:"failed"`
	Unhealthy []string            `json:"unhealthy,omitempty"`
	Tiers     []types.SwapTier    `json:"tiers"`
	Results   []types.ApplyResult `json:"results"`
}

// Orchestrator wires the three mutating components together.
type Orchestrator struct {
	cfg     config.Config
	tiering *tiering.Manager
	cgroups *cgroup.Configurator
	sd      systemd.Client
	host    metrics.HostReader
	log     zerolog.Logger
	// Euid is overridden in tests; defaults to os.Geteuid via New.
	Euid func() int
}

func New(cfg config.Config, tm *tiering.Manager, cc *cgroup.Configurator, sd systemd.Client, host metrics.HostReader, log zerolog.Logger, euid func() int) *Orchestrator {
	return &Orchestrator{cfg: cfg, tiering: tm, cgroups: cc, sd: sd, host: host, log: log, Euid: euid}
}

// checkOvercommit warns when the sum of all memory limits exceeds physical
// memory. Advisory only: an operator may deliberately overcommit against
// the swap tiers.
func (o *Orchestrator) checkOvercommit(profiles []types.ServiceResourceProfile) {
	mem, err := o.host.Memory()
	if err != nil {
		o.log.Warn().Err(err).Msg("cannot read host memory for overcommit check")
		return
	}
	var sum uint64
	for _, p := range profiles {
		sum += p.MemoryLimit
	}
	if sum > mem.Total {
		o.log.Warn().
			Uint64("sum_of_limits", sum).
			Uint64("physical", mem.Total).
			Msg("memory limits overcommit physical memory; relying on swap tiers")
	}
}

// Run executes the full governance sequence under the host lock and returns
// the summary. Safe to re-run at any time; every sub-step is idempotent.
func (o *Orchestrator) Run(ctx context.Context) (Summary, error) {
	var sum Summary
	if o.Euid() != 0 {
		return sum, ErrPrivilege("resource governance run")
	}

	lock := flock.New(o.cfg.LockPath)
	locked, err := lock.TryLock()
	if err != nil {
		return sum, fmt.Errorf("acquire %s: %w", o.cfg.LockPath, err)
	}
	if !locked {
		return sum, ErrLockBusy(o.cfg.LockPath)
	}
	defer func() {
		if err := lock.Unlock(); err != nil {
			o.log.Error().Err(err).Msg("release host lock")
		}
	}()

	profiles, err := o.cfg.Profiles()
	if err != nil {
		return sum, err
	}
	o.checkOvercommit(profiles)

	diskBytes, err := o.cfg.DiskSwapBytes()
	if err != nil {
		return sum, err
	}
	diskTier, outcome, err := o.tiering.EnsureDiskSwap(ctx, diskBytes)
	if err != nil {
		return sum, fmt.Errorf("disk swap tier: %w", err)
	}
	sum.Tiers = append(sum.Tiers, diskTier)
	o.count(&sum, outcome)

	if o.cfg.Tiering.Zram.Enabled {
		zramBytes, err := o.cfg.ZramBytes()
		if err != nil {
			return sum, err
		}
		zramTier, outcome, err := o.tiering.EnsureCompressedSwap(ctx, zramBytes)
		if err != nil {
			return sum, fmt.Errorf("compressed swap tier: %w", err)
		}
		if zramTier.Priority <= diskTier.Priority {
			return sum, fmt.Errorf("tier priority inversion: zram %d must exceed disk %d",
				zramTier.Priority, diskTier.Priority)
		}
		sum.Tiers = append(sum.Tiers, zramTier)
		o.count(&sum, outcome)
	}

	if err := o.tiering.TuneMemoryPressure(ctx); err != nil {
		return sum, fmt.Errorf("memory pressure tunables: %w", err)
	}

	results := o.cgroups.ApplyAll(ctx, profiles)
	sum.Results = results
	for _, r := range results {
		o.count(&sum, r.Outcome)
	}

	if err := o.tiering.InstallOOMGuard(ctx); err != nil {
		return sum, fmt.Errorf("oom guard: %w", err)
	}

	sum.Unhealthy = o.verify(ctx, profiles)
	o.log.Info().
		Int("applied", sum.Applied).
		Int("unchanged", sum.Unchanged).
		Int("failed", sum.Failed).
		Strs("unhealthy", sum.Unhealthy).
		Msg("governance run complete")
	return sum, nil
}

// verify is the final read-only pass: every managed unit must be active.
func (o *Orchestrator) verify(ctx context.Context, profiles []types.ServiceResourceProfile) []string {
	var unhealthy []string
	for _, p := range types.SortProfiles(profiles) {
		active, err := o.sd.IsActive(ctx, p.Unit())
		if err != nil || !active {
			unhealthy = append(unhealthy, p.Unit())
		}
	}
	return unhealthy
}

func (o *Orchestrator) count(sum *Summary, outcome types.Outcome) {
	switch outcome {
	case types.OutcomeApplied:
		sum.Applied++
	case types.OutcomeUnchanged:
		sum.Unchanged++
	case types.OutcomeFailed:
		sum.Failed++
	}
}
