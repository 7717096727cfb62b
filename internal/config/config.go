// Package config loads and validates the resgov configuration file.
// Sizes are written as humans write them ("16GiB", "512 MB") and parsed to
// bytes at load time; everything downstream works in absolute units.
package config

import (
	"fmt"

	"github.com/dustin/go-humanize"

	"resgov/pkg/types"
)

// Thresholds are alert trigger points in percent of capacity.
type Thresholds struct {
	MemoryPercent float64 `json:"memory_percent" yaml:"memory_percent" toml:"memory_percent"`
	CPUPercent    float64 `json:"cpu_percent" yaml:"cpu_percent" toml:"cpu_percent"`
	DiskPercent   float64 `json:"disk_percent" yaml:"disk_percent" toml:"disk_percent"`
	SwapPercent   float64 `json:"swap_percent" yaml:"swap_percent" toml:"swap_percent"`
}

// Metrics configures the collector: output locations, cadence, thresholds.
type Metrics struct {
	SnapshotPath    string     `json:"snapshot_path" yaml:"snapshot_path" toml:"snapshot_path"`
	PrometheusPath  string     `json:"prometheus_path" yaml:"prometheus_path" toml:"prometheus_path"`
	AlertLogPath    string     `json:"alert_log_path" yaml:"alert_log_path" toml:"alert_log_path"`
	IntervalSeconds int        `json:"interval_seconds" yaml:"interval_seconds" toml:"interval_seconds"`
	DiskMount       string     `json:"disk_mount" yaml:"disk_mount" toml:"disk_mount"`
	GPUQueryTool    string     `json:"gpu_query_tool" yaml:"gpu_query_tool" toml:"gpu_query_tool"`
	ListenAddr      string     `json:"listen_addr" yaml:"listen_addr" toml:"listen_addr"`
	Thresholds      Thresholds `json:"thresholds" yaml:"thresholds" toml:"thresholds"`
}

// DiskSwap configures the file-backed swap tier.
type DiskSwap struct {
	Path     string `json:"path" yaml:"path" toml:"path"`
	Size     string `json:"size" yaml:"size" toml:"size"`
	Priority int    `json:"priority" yaml:"priority" toml:"priority"`
}

// Zram configures the compressed RAM-backed swap tier.
type Zram struct {
	Enabled   bool   `json:"enabled" yaml:"enabled" toml:"enabled"`
	Size      string `json:"size" yaml:"size" toml:"size"`
	Algorithm string `json:"algorithm" yaml:"algorithm" toml:"algorithm"`
	Priority  int    `json:"priority" yaml:"priority" toml:"priority"`
}

// Tiering configures swap provisioning and kernel memory-pressure tunables.
type Tiering struct {
	DiskSwap         DiskSwap `json:"disk_swap" yaml:"disk_swap" toml:"disk_swap"`
	Zram             Zram     `json:"zram" yaml:"zram" toml:"zram"`
	Swappiness       int      `json:"swappiness" yaml:"swappiness" toml:"swappiness"`
	VFSCachePressure int      `json:"vfs_cache_pressure" yaml:"vfs_cache_pressure" toml:"vfs_cache_pressure"`
	SysctlDropIn     string   `json:"sysctl_drop_in" yaml:"sysctl_drop_in" toml:"sysctl_drop_in"`
	FstabPath        string   `json:"fstab_path" yaml:"fstab_path" toml:"fstab_path"`
}

// OOMGuard configures the early low-memory reaper (earlyoom). Avoid
// patterns protect the managed inference units; prefer patterns mark
// sacrificial processes killed first.
type OOMGuard struct {
	Enabled            bool     `json:"enabled" yaml:"enabled" toml:"enabled"`
	MinFreeMemPercent  int      `json:"min_free_mem_percent" yaml:"min_free_mem_percent" toml:"min_free_mem_percent"`
	MinFreeSwapPercent int      `json:"min_free_swap_percent" yaml:"min_free_swap_percent" toml:"min_free_swap_percent"`
	AvoidPatterns      []string `json:"avoid_patterns" yaml:"avoid_patterns" toml:"avoid_patterns"`
	PreferPatterns     []string `json:"prefer_patterns" yaml:"prefer_patterns" toml:"prefer_patterns"`
	DefaultsPath       string   `json:"defaults_path" yaml:"defaults_path" toml:"defaults_path"`
}

// Cgroup configures where drop-ins and their backups live and how service
// health is verified after a restart.
type Cgroup struct {
	DropInDir             string `json:"drop_in_dir" yaml:"drop_in_dir" toml:"drop_in_dir"`
	BackupDir             string `json:"backup_dir" yaml:"backup_dir" toml:"backup_dir"`
	VerifyAttempts        int    `json:"verify_attempts" yaml:"verify_attempts" toml:"verify_attempts"`
	VerifyIntervalSeconds int    `json:"verify_interval_seconds" yaml:"verify_interval_seconds" toml:"verify_interval_seconds"`
}

// Service is one declarative per-service budget as written in the config
// file; sizes are human strings converted by Profile().
type Service struct {
	Name             string `json:"name" yaml:"name" toml:"name"`
	Role             string `json:"role" yaml:"role" toml:"role"`
	MemoryLimit      string `json:"memory_limit" yaml:"memory_limit" toml:"memory_limit"`
	MemoryHigh       string `json:"memory_high" yaml:"memory_high" toml:"memory_high"`
	CPUQuotaPercent  int    `json:"cpu_quota_percent" yaml:"cpu_quota_percent" toml:"cpu_quota_percent"`
	CPUWeight        int    `json:"cpu_weight" yaml:"cpu_weight" toml:"cpu_weight"`
	IOWeight         int    `json:"io_weight" yaml:"io_weight" toml:"io_weight"`
	IOReadBandwidth  string `json:"io_read_bandwidth" yaml:"io_read_bandwidth" toml:"io_read_bandwidth"`
	IOWriteBandwidth string `json:"io_write_bandwidth" yaml:"io_write_bandwidth" toml:"io_write_bandwidth"`
	BlockDevice      string `json:"block_device" yaml:"block_device" toml:"block_device"`
	CPUAffinity      []int  `json:"cpu_affinity" yaml:"cpu_affinity" toml:"cpu_affinity"`
	TasksMax         int    `json:"tasks_max" yaml:"tasks_max" toml:"tasks_max"`
	SwapMax          string `json:"swap_max" yaml:"swap_max" toml:"swap_max"`
}

// Config is the full resgov configuration document.
type Config struct {
	LockPath string    `json:"lock_path" yaml:"lock_path" toml:"lock_path"`
	Metrics  Metrics   `json:"metrics" yaml:"metrics" toml:"metrics"`
	Tiering  Tiering   `json:"tiering" yaml:"tiering" toml:"tiering"`
	OOMGuard OOMGuard  `json:"oom_guard" yaml:"oom_guard" toml:"oom_guard"`
	Cgroup   Cgroup    `json:"cgroup" yaml:"cgroup" toml:"cgroup"`
	Services []Service `json:"services" yaml:"services" toml:"services"`
}

func parseSize(field, s string) (uint64, error) {
	if s == "" {
		return 0, nil
	}
	n, err := humanize.ParseBytes(s)
	if err != nil {
		return 0, fmt.Errorf("%s: bad size %q: %w", field, s, err)
	}
	return n, nil
}

// Profile converts the config entry into the typed profile used everywhere
// downstream.
func (s Service) Profile() (types.ServiceResourceProfile, error) {
	p := types.ServiceResourceProfile{
		Name:            s.Name,
		Role:            types.Role(s.Role),
		CPUQuotaPercent: s.CPUQuotaPercent,
		CPUWeight:       s.CPUWeight,
		IOWeight:        s.IOWeight,
		BlockDevice:     s.BlockDevice,
		CPUAffinity:     s.CPUAffinity,
		TasksMax:        s.TasksMax,
	}
	var err error
	if p.MemoryLimit, err = parseSize(s.Name+".memory_limit", s.MemoryLimit); err != nil {
		return p, err
	}
	if p.MemoryHigh, err = parseSize(s.Name+".memory_high", s.MemoryHigh); err != nil {
		return p, err
	}
	if p.IOReadBandwidth, err = parseSize(s.Name+".io_read_bandwidth", s.IOReadBandwidth); err != nil {
		return p, err
	}
	if p.IOWriteBandwidth, err = parseSize(s.Name+".io_write_bandwidth", s.IOWriteBandwidth); err != nil {
		return p, err
	}
	if p.SwapMax, err = parseSize(s.Name+".swap_max", s.SwapMax); err != nil {
		return p, err
	}
	if err := p.Validate(); err != nil {
		return p, err
	}
	return p, nil
}

// Profiles converts and validates every configured service.
func (c Config) Profiles() ([]types.ServiceResourceProfile, error) {
	out := make([]types.ServiceResourceProfile, 0, len(c.Services))
	seen := map[string]bool{}
	for _, s := range c.Services {
		p, err := s.Profile()
		if err != nil {
			return nil, err
		}
		if seen[p.Name] {
			return nil, fmt.Errorf("duplicate service profile %q", p.Name)
		}
		seen[p.Name] = true
		out = append(out, p)
	}
	return out, nil
}

// DiskSwapBytes returns the configured disk swap size in bytes.
func (c Config) DiskSwapBytes() (uint64, error) {
	return parseSize("tiering.disk_swap.size", c.Tiering.DiskSwap.Size)
}

// ZramBytes returns the configured zram size in bytes.
func (c Config) ZramBytes() (uint64, error) {
	return parseSize("tiering.zram.size", c.Tiering.Zram.Size)
}
