// Package tiering provisions the two-tier swap setup (disk-backed file plus
// compressed RAM-backed zram) and tunes kernel memory-pressure parameters.
// Every operation is idempotent: a host that is already correct is left
// untouched. Failures here are fatal to the orchestrator run, because the
// per-service memory caps assume the tiers exist.
package tiering

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/rs/zerolog"

	"resgov/internal/common/fsutil"
	"resgov/internal/config"
	"resgov/internal/execx"
	"resgov/internal/systemd"
)

// Manager owns swap provisioning and sysctl tuning.
type Manager struct {
	cfg   config.Tiering
	guard config.OOMGuard
	run   execx.Runner
	sd    systemd.Client
	log   zerolog.Logger
	// zram strategy, selected on first use and sticky for the process.
	zram zramStrategy
	// SysfsRoot and GeneratorConf are overridden in tests; they default to
	// the real host paths.
	SysfsRoot     string
	GeneratorConf string
}

func NewManager(cfg config.Tiering, guard config.OOMGuard, run execx.Runner, sd systemd.Client, log zerolog.Logger) *Manager {
	return &Manager{cfg: cfg, guard: guard, run: run, sd: sd, log: log, SysfsRoot: "/sys", GeneratorConf: generatorConf}
}

func cmd(path string, args ...string) execx.Cmd { return execx.Cmd{Path: path, Args: args} }

// activeSwapDevices returns the device paths currently registered as swap.
func (m *Manager) activeSwapDevices(ctx context.Context) (map[string]bool, error) {
	out, err := m.run.Output(ctx, execx.Cmd{Path: "swapon", Args: []string{"--show=NAME", "--noheadings"}})
	if err != nil {
		return nil, fmt.Errorf("list active swap: %w", err)
	}
	devices := map[string]bool{}
	for _, line := range strings.Split(out, "\n") {
		if d := strings.TrimSpace(line); d != "" {
			devices[d] = true
		}
	}
	return devices, nil
}

// TuneMemoryPressure sets swappiness and vfs_cache_pressure live and
// persists them to a sysctl.d drop-in so they survive reboot. Re-running
// with the same values rewrites the same content; the live set is a no-op
// in effect.
func (m *Manager) TuneMemoryPressure(ctx context.Context) error {
	pairs := []struct{ key, value string }{
		{"vm.swappiness", fmt.Sprintf("%d", m.cfg.Swappiness)},
		{"vm.vfs_cache_pressure", fmt.Sprintf("%d", m.cfg.VFSCachePressure)},
	}
	var doc strings.Builder
	doc.WriteString("# managed by resgov; manual edits will be overwritten\n")
	for _, p := range pairs {
		if err := m.run.Run(ctx, execx.Cmd{Path: "sysctl", Args: []string{"-w", p.key + "=" + p.value}}); err != nil {
			return fmt.Errorf("set %s: %w", p.key, err)
		}
		fmt.Fprintf(&doc, "%s = %s\n", p.key, p.value)
	}
	if err := fsutil.WriteFileAtomic(m.cfg.SysctlDropIn, []byte(doc.String()), 0o644); err != nil {
		return fmt.Errorf("persist sysctl drop-in: %w", err)
	}
	m.log.Info().Int("swappiness", m.cfg.Swappiness).Int("vfs_cache_pressure", m.cfg.VFSCachePressure).Msg("memory pressure tuned")
	return nil
}

// persistFstab makes sure fstab contains exactly one entry for the swap
// device, with the requested priority.
func (m *Manager) persistFstab(device string, priority int) error {
	entry := fmt.Sprintf("%s none swap sw,pri=%d 0 0", device, priority)
	b, err := os.ReadFile(m.cfg.FstabPath)
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("read fstab: %w", err)
	}
	var kept []string
	for _, line := range strings.Split(string(b), "\n") {
		fields := strings.Fields(line)
		if len(fields) > 0 && fields[0] == device {
			if strings.TrimSpace(line) == entry {
				return nil // already persisted as requested
			}
			continue // stale entry for the same device, replace below
		}
		kept = append(kept, line)
	}
	// drop a single trailing blank line before appending
	for len(kept) > 0 && strings.TrimSpace(kept[len(kept)-1]) == "" {
		kept = kept[:len(kept)-1]
	}
	kept = append(kept, entry, "")
	return fsutil.WriteFileAtomic(m.cfg.FstabPath, []byte(strings.Join(kept, "\n")), 0o644)
}
