package tiering

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"resgov/internal/common/fsutil"
	"resgov/internal/config"
	"resgov/internal/execx"
	"resgov/internal/systemd"
	"resgov/pkg/types"
)

const (
	zramDevice    = "/dev/zram0"
	zramsetupUnit = "systemd-zram-setup@zram0.service"
	generatorConf = "/etc/systemd/zram-generator.conf"
)

// errUnitNotActive signals that the packaged zram unit did not come up, so
// the manager should fall back to the manual strategy.
var errUnitNotActive = errors.New("zram setup unit did not become active")

// zramStrategy is the capability behind compressed-swap provisioning. Two
// implementations exist: the packaged zram-generator unit and a manual
// modprobe/sysfs path. The manager picks one and sticks with it; callers
// never see the difference.
type zramStrategy interface {
	Name() string
	Ensure(ctx context.Context, cfg config.Zram, sizeBytes uint64) error
}

// EnsureCompressedSwap provisions the RAM-backed tier at a strictly higher
// priority than the disk tier. Strategy selection happens once: the
// packaged unit is preferred, and a unit that never becomes active demotes
// the manager to the manual strategy for the rest of the process.
func (m *Manager) EnsureCompressedSwap(ctx context.Context, sizeBytes uint64) (types.SwapTier, types.Outcome, error) {
	tier := types.SwapTier{
		Device:               zramDevice,
		Priority:             m.cfg.Zram.Priority,
		SizeBytes:            sizeBytes,
		CompressionAlgorithm: m.cfg.Zram.Algorithm,
	}
	if sizeBytes == 0 {
		return tier, types.OutcomeFailed, fmt.Errorf("zram size is zero")
	}

	active, err := m.activeSwapDevices(ctx)
	if err != nil {
		return tier, types.OutcomeFailed, err
	}
	if active[zramDevice] && m.zramSizeCorrect(sizeBytes) {
		m.log.Info().Str("device", zramDevice).Uint64("bytes", sizeBytes).Msg("compressed swap already correct")
		return tier, types.OutcomeUnchanged, nil
	}

	if m.zram == nil {
		m.zram = m.selectZramStrategy(ctx)
		m.log.Info().Str("strategy", m.zram.Name()).Msg("compressed swap strategy selected")
	}
	err = m.zram.Ensure(ctx, m.cfg.Zram, sizeBytes)
	if errors.Is(err, errUnitNotActive) {
		m.log.Warn().Msg("packaged zram unit unusable, falling back to manual setup")
		m.zram = &manualZram{run: m.run, sysfs: m.SysfsRoot, log: m.log}
		err = m.zram.Ensure(ctx, m.cfg.Zram, sizeBytes)
	}
	if err != nil {
		return tier, types.OutcomeFailed, err
	}
	return tier, types.OutcomeApplied, nil
}

func (m *Manager) zramSizeCorrect(sizeBytes uint64) bool {
	b, err := os.ReadFile(filepath.Join(m.SysfsRoot, "block/zram0/disksize"))
	if err != nil {
		return false
	}
	n, err := strconv.ParseUint(strings.TrimSpace(string(b)), 10, 64)
	return err == nil && n == sizeBytes
}

func (m *Manager) selectZramStrategy(ctx context.Context) zramStrategy {
	exists, err := m.sd.UnitExists(ctx, zramsetupUnit)
	if err == nil && exists {
		return &packagedZram{sd: m.sd, conf: m.GeneratorConf, log: m.log}
	}
	return &manualZram{run: m.run, sysfs: m.SysfsRoot, log: m.log}
}

// packagedZram drives the distribution's zram-generator: write its config,
// reload, restart the templated setup unit, and verify it activates.
type packagedZram struct {
	sd   systemd.Client
	conf string
	log  zerolog.Logger
}

func (p *packagedZram) Name() string { return "zram-generator" }

func (p *packagedZram) Ensure(ctx context.Context, cfg config.Zram, sizeBytes uint64) error {
	doc := fmt.Sprintf(`# managed by resgov; manual edits will be overwritten
[zram0]
zram-size = %d
compression-algorithm = %s
swap-priority = %d
`, sizeBytes, cfg.Algorithm, cfg.Priority)
	if err := fsutil.WriteFileAtomic(p.conf, []byte(doc), 0o644); err != nil {
		return fmt.Errorf("write zram-generator config: %w", err)
	}
	if err := p.sd.DaemonReload(ctx); err != nil {
		return fmt.Errorf("daemon-reload for zram: %w", err)
	}
	if err := p.sd.RestartUnit(ctx, zramsetupUnit); err != nil {
		return errUnitNotActive
	}
	ok, err := systemd.WaitActive(ctx, p.sd, zramsetupUnit, 5, 2*time.Second)
	if err != nil {
		return fmt.Errorf("verify zram unit: %w", err)
	}
	if !ok {
		return errUnitNotActive
	}
	p.log.Info().Uint64("bytes", sizeBytes).Str("algorithm", cfg.Algorithm).Msg("compressed swap via zram-generator")
	return nil
}

// manualZram loads the module and drives the device through sysfs.
type manualZram struct {
	run   execx.Runner
	sysfs string
	log   zerolog.Logger
}

func (z *manualZram) Name() string { return "manual" }

func (z *manualZram) Ensure(ctx context.Context, cfg config.Zram, sizeBytes uint64) error {
	if err := z.run.Run(ctx, cmd("modprobe", "zram")); err != nil {
		return fmt.Errorf("load zram module: %w", err)
	}
	// deactivate first; writing disksize to a configured device fails
	_ = z.run.Run(ctx, cmd("swapoff", zramDevice))

	block := filepath.Join(z.sysfs, "block/zram0")
	if err := os.WriteFile(filepath.Join(block, "reset"), []byte("1"), 0o644); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("reset zram0: %w", err)
	}
	if err := os.WriteFile(filepath.Join(block, "comp_algorithm"), []byte(cfg.Algorithm), 0o644); err != nil {
		return fmt.Errorf("set compression algorithm: %w", err)
	}
	if err := os.WriteFile(filepath.Join(block, "disksize"), []byte(strconv.FormatUint(sizeBytes, 10)), 0o644); err != nil {
		return fmt.Errorf("set disksize: %w", err)
	}
	if err := z.run.Run(ctx, cmd("mkswap", zramDevice)); err != nil {
		return fmt.Errorf("mkswap %s: %w", zramDevice, err)
	}
	if err := z.run.Run(ctx, cmd("swapon", "-p", strconv.Itoa(cfg.Priority), zramDevice)); err != nil {
		return fmt.Errorf("swapon %s: %w", zramDevice, err)
	}
	z.log.Info().Uint64("bytes", sizeBytes).Str("algorithm", cfg.Algorithm).Int("priority", cfg.Priority).Msg("compressed swap via manual setup")
	return nil
}
