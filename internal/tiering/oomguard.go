package tiering

import (
	"context"
	"fmt"
	"strings"
	"time"

	"resgov/internal/common/fsutil"
	"resgov/internal/config"
	"resgov/internal/systemd"
)

const earlyoomUnit = "earlyoom.service"

// renderEarlyoomArgs builds the earlyoom command line from the guard
// config. Avoid patterns protect the managed inference services from the
// reaper; prefer patterns mark processes to sacrifice first.
func renderEarlyoomArgs(g config.OOMGuard) string {
	args := []string{
		fmt.Sprintf("-m %d", g.MinFreeMemPercent),
		fmt.Sprintf("-s %d", g.MinFreeSwapPercent),
		"-r 3600",
		"-n",
	}
	if len(g.AvoidPatterns) > 0 {
		args = append(args, fmt.Sprintf("--avoid '(%s)'", strings.Join(g.AvoidPatterns, "|")))
	}
	if len(g.PreferPatterns) > 0 {
		args = append(args, fmt.Sprintf("--prefer '(%s)'", strings.Join(g.PreferPatterns, "|")))
	}
	return strings.Join(args, " ")
}

// InstallOOMGuard configures, enables, and starts the early low-memory
// reaper. The guard is a safety net underneath the per-service limits, not
// a substitute for them; a host where it cannot be installed fails the run.
func (m *Manager) InstallOOMGuard(ctx context.Context) error {
	if !m.guard.Enabled {
		m.log.Info().Msg("oom guard disabled in config")
		return nil
	}
	exists, err := m.sd.UnitExists(ctx, earlyoomUnit)
	if err != nil {
		return fmt.Errorf("query earlyoom unit: %w", err)
	}
	if !exists {
		return fmt.Errorf("oom guard requested but %s is not installed on this host", earlyoomUnit)
	}
	doc := fmt.Sprintf("# managed by resgov; manual edits will be overwritten\nEARLYOOM_ARGS=\"%s\"\n",
		renderEarlyoomArgs(m.guard))
	if err := fsutil.WriteFileAtomic(m.guard.DefaultsPath, []byte(doc), 0o644); err != nil {
		return fmt.Errorf("write earlyoom defaults: %w", err)
	}
	if err := m.sd.EnableUnit(ctx, earlyoomUnit); err != nil {
		return fmt.Errorf("enable earlyoom: %w", err)
	}
	if err := m.sd.RestartUnit(ctx, earlyoomUnit); err != nil {
		return fmt.Errorf("restart earlyoom: %w", err)
	}
	ok, err := systemd.WaitActive(ctx, m.sd, earlyoomUnit, 5, 2*time.Second)
	if err != nil {
		return fmt.Errorf("verify earlyoom: %w", err)
	}
	if !ok {
		return fmt.Errorf("earlyoom did not become active after restart")
	}
	m.log.Info().Int("min_free_mem_pct", m.guard.MinFreeMemPercent).Int("min_free_swap_pct", m.guard.MinFreeSwapPercent).Msg("oom guard installed")
	return nil
}
