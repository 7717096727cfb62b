// Package metrics samples OS and per-service counters, evaluates alert
// thresholds, and renders the snapshot as JSON, exposition text, and a
// human-readable summary. Collection is read-only: the only writes are the
// snapshot files and the append-only alert log.
package metrics

import (
	"context"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"resgov/internal/config"
	"resgov/internal/execx"
	"resgov/internal/systemd"
	"resgov/pkg/types"
)

// Collector samples one MetricsSnapshot per call. A failed read of any
// single category degrades that category to zeros and never aborts the
// remaining categories.
type Collector struct {
	cfg   config.Metrics
	host  HostReader
	sd    systemd.Client
	run   execx.Runner
	units []string
	log   zerolog.Logger
	now   func() time.Time
}

// New builds a collector for the given managed units.
func New(cfg config.Metrics, host HostReader, sd systemd.Client, run execx.Runner, units []string, log zerolog.Logger) *Collector {
	return &Collector{
		cfg:   cfg,
		host:  host,
		sd:    sd,
		run:   run,
		units: units,
		log:   log,
		now:   time.Now,
	}
}

func roundGB(bytes uint64) float64 {
	return math.Round(float64(bytes)/(1<<30)*100) / 100
}

func round2(v float64) float64 { return math.Round(v*100) / 100 }

func pct(part, total float64) float64 {
	if total <= 0 {
		return 0
	}
	return round2(part / total * 100)
}

// Collect samples every category. It always returns a usable snapshot; the
// caller decides what to do with it.
func (c *Collector) Collect(ctx context.Context) types.MetricsSnapshot {
	snap := types.MetricsSnapshot{
		Timestamp: c.now().UTC(),
		Services:  map[string]types.ServiceStats{},
	}

	if m, err := c.host.Memory(); err != nil {
		c.log.Warn().Err(err).Msg("memory counters unavailable")
	} else {
		used := m.Total - m.Free
		snap.Memory = types.MemoryStats{
			TotalGB:     roundGB(m.Total),
			UsedGB:      roundGB(used),
			FreeGB:      roundGB(m.Free),
			AvailableGB: roundGB(m.Available),
			Percent:     pct(float64(used), float64(m.Total)),
		}
	}

	if s, err := c.host.Swap(); err != nil {
		c.log.Warn().Err(err).Msg("swap counters unavailable")
	} else {
		snap.Swap = types.SwapStats{
			TotalGB: roundGB(s.Total),
			UsedGB:  roundGB(s.Used),
			Percent: pct(float64(s.Used), float64(s.Total)),
		}
	}

	if p, err := c.host.CPUPercent(); err != nil {
		c.log.Warn().Err(err).Msg("cpu usage unavailable")
	} else {
		snap.CPU.UsagePercent = round2(p)
	}
	if l, err := c.host.LoadAvg(); err != nil {
		c.log.Warn().Err(err).Msg("load average unavailable")
	} else {
		snap.CPU.LoadAverage = round2(l)
	}

	if d, err := c.host.Disk(c.cfg.DiskMount); err != nil {
		c.log.Warn().Err(err).Str("mount", c.cfg.DiskMount).Msg("disk counters unavailable")
	} else {
		snap.Disk = types.DiskStats{
			MountPoint:  c.cfg.DiskMount,
			TotalGB:     roundGB(d.Total),
			UsedGB:      roundGB(d.Used),
			AvailableGB: roundGB(d.Free),
			Percent:     pct(float64(d.Used), float64(d.Total)),
		}
	}

	for _, unit := range c.units {
		snap.Services[unit] = c.serviceStats(ctx, unit)
	}

	snap.GPU = c.gpuStats(ctx)
	return snap
}

// serviceStats reads memory accounting from the service manager and CPU
// usage from ps against the unit's main pid. A stopped or missing service
// reports zeros rather than failing the cycle.
func (c *Collector) serviceStats(ctx context.Context, unit string) types.ServiceStats {
	var st types.ServiceStats
	active, err := c.sd.IsActive(ctx, unit)
	if err != nil || !active {
		if err != nil {
			c.log.Info().Err(err).Str("unit", unit).Msg("service state unavailable")
		}
		return st
	}
	if v, err := c.sd.ShowProperty(ctx, unit, "MemoryCurrent"); err == nil {
		if n, ok := systemd.PropertyUint(v); ok {
			st.MemoryMB = round2(float64(n) / (1 << 20))
		}
	}
	if v, err := c.sd.ShowProperty(ctx, unit, "MemoryMax"); err == nil {
		if n, ok := systemd.PropertyUint(v); ok {
			st.MemoryLimitMB = round2(float64(n) / (1 << 20))
		}
	}
	if st.MemoryLimitMB > 0 {
		st.MemoryPercent = pct(st.MemoryMB, st.MemoryLimitMB)
	}
	if v, err := c.sd.ShowProperty(ctx, unit, "MainPID"); err == nil {
		if pid, ok := systemd.PropertyUint(v); ok && pid > 0 {
			out, err := c.run.Output(ctx, execx.Cmd{
				Path: "ps",
				Args: []string{"-o", "%cpu=", "-p", strconv.FormatUint(pid, 10)},
			})
			if err == nil {
				if p, perr := strconv.ParseFloat(strings.TrimSpace(out), 64); perr == nil {
					st.CPUPercent = round2(p)
				}
			}
		}
	}
	return st
}

// gpuStats shells out to the configured query tool; a host without the tool
// degrades to Available=false with no error.
func (c *Collector) gpuStats(ctx context.Context) types.GPUStats {
	if !c.run.LookPath(c.cfg.GPUQueryTool) {
		c.log.Info().Str("tool", c.cfg.GPUQueryTool).Msg("gpu query tool not present")
		return types.GPUStats{Available: false}
	}
	out, err := c.run.Output(ctx, execx.Cmd{
		Path: c.cfg.GPUQueryTool,
		Args: []string{"--query-gpu=utilization.gpu,utilization.memory", "--format=csv,noheader,nounits"},
	})
	if err != nil {
		c.log.Info().Err(err).Msg("gpu query failed")
		return types.GPUStats{Available: false}
	}
	// first GPU only
	line := strings.SplitN(strings.TrimSpace(out), "\n", 2)[0]
	parts := strings.Split(line, ",")
	if len(parts) < 2 {
		return types.GPUStats{Available: false}
	}
	gpuUtil, err1 := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
	memUtil, err2 := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
	if err1 != nil || err2 != nil {
		return types.GPUStats{Available: false}
	}
	return types.GPUStats{Available: true, GPUUtilPercent: gpuUtil, MemUtilPercent: memUtil}
}
