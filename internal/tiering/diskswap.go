package tiering

import (
	"context"
	"fmt"
	"os"
	"strconv"

	"resgov/pkg/types"
)

// EnsureDiskSwap provisions the file-backed swap tier. When a swap file of
// exactly the requested size already exists and is active, the call
// performs zero writes and reports unchanged; otherwise the file is
// (re)created, formatted, activated, and persisted to fstab.
func (m *Manager) EnsureDiskSwap(ctx context.Context, sizeBytes uint64) (types.SwapTier, types.Outcome, error) {
	tier := types.SwapTier{
		Device:    m.cfg.DiskSwap.Path,
		Priority:  m.cfg.DiskSwap.Priority,
		SizeBytes: sizeBytes,
	}
	if sizeBytes == 0 {
		return tier, types.OutcomeFailed, fmt.Errorf("disk swap size is zero")
	}

	active, err := m.activeSwapDevices(ctx)
	if err != nil {
		return tier, types.OutcomeFailed, err
	}

	st, statErr := os.Stat(tier.Device)
	sizeCorrect := statErr == nil && uint64(st.Size()) == sizeBytes

	if sizeCorrect && active[tier.Device] {
		if err := m.persistFstab(tier.Device, tier.Priority); err != nil {
			return tier, types.OutcomeFailed, err
		}
		m.log.Info().Str("device", tier.Device).Uint64("bytes", sizeBytes).Msg("disk swap already correct")
		return tier, types.OutcomeUnchanged, nil
	}

	if active[tier.Device] {
		// wrong size while active: deactivate before recreating
		if err := m.run.Run(ctx, cmd("swapoff", tier.Device)); err != nil {
			return tier, types.OutcomeFailed, fmt.Errorf("swapoff %s: %w", tier.Device, err)
		}
	}

	if !sizeCorrect {
		// fallocate never shrinks, so a stale file of any size is removed
		// and recreated rather than resized in place
		if statErr == nil {
			if err := os.Remove(tier.Device); err != nil {
				return tier, types.OutcomeFailed, fmt.Errorf("remove stale swap file %s: %w", tier.Device, err)
			}
		}
		f, err := os.OpenFile(tier.Device, os.O_CREATE|os.O_WRONLY, 0o600)
		if err != nil {
			return tier, types.OutcomeFailed, fmt.Errorf("create %s: %w", tier.Device, err)
		}
		if err := f.Close(); err != nil {
			return tier, types.OutcomeFailed, fmt.Errorf("close %s: %w", tier.Device, err)
		}
		if err := m.allocateSwapFile(ctx, tier.Device, sizeBytes); err != nil {
			return tier, types.OutcomeFailed, err
		}
		if err := m.run.Run(ctx, cmd("mkswap", tier.Device)); err != nil {
			return tier, types.OutcomeFailed, fmt.Errorf("mkswap %s: %w", tier.Device, err)
		}
	}

	if err := m.run.Run(ctx, cmd("swapon", "-p", strconv.Itoa(tier.Priority), tier.Device)); err != nil {
		return tier, types.OutcomeFailed, fmt.Errorf("swapon %s: %w", tier.Device, err)
	}
	if err := m.persistFstab(tier.Device, tier.Priority); err != nil {
		return tier, types.OutcomeFailed, err
	}
	m.log.Info().Str("device", tier.Device).Uint64("bytes", sizeBytes).Int("priority", tier.Priority).Msg("disk swap provisioned")
	return tier, types.OutcomeApplied, nil
}

// allocateSwapFile prefers fallocate and falls back to dd, which also
// guarantees the file has no holes (mkswap rejects sparse files).
func (m *Manager) allocateSwapFile(ctx context.Context, path string, sizeBytes uint64) error {
	if m.run.LookPath("fallocate") {
		if err := m.run.Run(ctx, cmd("fallocate", "-l", strconv.FormatUint(sizeBytes, 10), path)); err == nil {
			return nil
		}
		m.log.Warn().Str("path", path).Msg("fallocate failed, falling back to dd")
	}
	mib := (sizeBytes + (1 << 20) - 1) / (1 << 20)
	err := m.run.Run(ctx, cmd("dd", "if=/dev/zero", "of="+path, "bs=1M", "count="+strconv.FormatUint(mib, 10)))
	if err != nil {
		return fmt.Errorf("allocate %s: %w", path, err)
	}
	// dd wrote whole MiB; trim to the exact requested size so repeat runs
	// see the file as already correct
	if sizeBytes%(1<<20) != 0 {
		if err := os.Truncate(path, int64(sizeBytes)); err != nil {
			return fmt.Errorf("trim %s to %d bytes: %w", path, sizeBytes, err)
		}
	}
	return nil
}
