package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	toml "github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// Load reads a configuration file based on its extension.
// Supports: .yaml/.yml, .json, .toml
func Load(path string) (Config, error) {
	var cfg Config
	if path == "" {
		return cfg, fmt.Errorf("empty config path")
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return cfg, err
		}
	case ".json":
		if err := json.Unmarshal(b, &cfg); err != nil {
			return cfg, err
		}
	case ".toml":
		if err := toml.Unmarshal(b, &cfg); err != nil {
			return cfg, err
		}
	default:
		return cfg, fmt.Errorf("unsupported config extension: %s", ext)
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Default returns the built-in configuration, used when no file is given.
func Default() Config {
	var cfg Config
	cfg.applyDefaults()
	return cfg
}

func (c *Config) applyDefaults() {
	if c.LockPath == "" {
		c.LockPath = "/run/resgov.lock"
	}
	m := &c.Metrics
	if m.SnapshotPath == "" {
		m.SnapshotPath = "/var/lib/resgov/snapshot.json"
	}
	if m.PrometheusPath == "" {
		m.PrometheusPath = "/var/lib/resgov/metrics.prom"
	}
	if m.AlertLogPath == "" {
		m.AlertLogPath = "/var/log/resgov/alerts.log"
	}
	if m.IntervalSeconds == 0 {
		m.IntervalSeconds = 30
	}
	if m.DiskMount == "" {
		m.DiskMount = "/"
	}
	if m.GPUQueryTool == "" {
		m.GPUQueryTool = "nvidia-smi"
	}
	if m.ListenAddr == "" {
		m.ListenAddr = ":9109"
	}
	t := &m.Thresholds
	if t.MemoryPercent == 0 {
		t.MemoryPercent = 85
	}
	if t.CPUPercent == 0 {
		t.CPUPercent = 90
	}
	if t.DiskPercent == 0 {
		t.DiskPercent = 90
	}
	if t.SwapPercent == 0 {
		t.SwapPercent = 70
	}
	ti := &c.Tiering
	if ti.DiskSwap.Path == "" {
		ti.DiskSwap.Path = "/swapfile"
	}
	if ti.DiskSwap.Size == "" {
		ti.DiskSwap.Size = "16GiB"
	}
	if ti.DiskSwap.Priority == 0 {
		ti.DiskSwap.Priority = 10
	}
	if ti.Zram.Size == "" {
		ti.Zram.Size = "8GiB"
	}
	if ti.Zram.Algorithm == "" {
		ti.Zram.Algorithm = "zstd"
	}
	if ti.Zram.Priority == 0 {
		ti.Zram.Priority = 100
	}
	if ti.Swappiness == 0 {
		ti.Swappiness = 10
	}
	if ti.VFSCachePressure == 0 {
		ti.VFSCachePressure = 50
	}
	if ti.SysctlDropIn == "" {
		ti.SysctlDropIn = "/etc/sysctl.d/99-resgov.conf"
	}
	if ti.FstabPath == "" {
		ti.FstabPath = "/etc/fstab"
	}
	g := &c.OOMGuard
	if g.MinFreeMemPercent == 0 {
		g.MinFreeMemPercent = 5
	}
	if g.MinFreeSwapPercent == 0 {
		g.MinFreeSwapPercent = 10
	}
	if g.DefaultsPath == "" {
		g.DefaultsPath = "/etc/default/earlyoom"
	}
	cg := &c.Cgroup
	if cg.DropInDir == "" {
		cg.DropInDir = "/etc/systemd/system"
	}
	if cg.BackupDir == "" {
		cg.BackupDir = "/var/lib/resgov/backups"
	}
	if cg.VerifyAttempts == 0 {
		cg.VerifyAttempts = 10
	}
	if cg.VerifyIntervalSeconds == 0 {
		cg.VerifyIntervalSeconds = 3
	}
}

// Validate checks cross-field invariants the individual sections cannot see.
func (c Config) Validate() error {
	for name, v := range map[string]float64{
		"memory_percent": c.Metrics.Thresholds.MemoryPercent,
		"cpu_percent":    c.Metrics.Thresholds.CPUPercent,
		"disk_percent":   c.Metrics.Thresholds.DiskPercent,
		"swap_percent":   c.Metrics.Thresholds.SwapPercent,
	} {
		if v <= 0 || v > 100 {
			return fmt.Errorf("threshold %s out of range (0,100]: %v", name, v)
		}
	}
	if c.Tiering.Zram.Enabled && c.Tiering.Zram.Priority <= c.Tiering.DiskSwap.Priority {
		return fmt.Errorf("zram priority (%d) must exceed disk swap priority (%d): the compressed tier is the faster one",
			c.Tiering.Zram.Priority, c.Tiering.DiskSwap.Priority)
	}
	if c.Tiering.Swappiness < 0 || c.Tiering.Swappiness > 200 {
		return fmt.Errorf("swappiness out of range [0,200]: %d", c.Tiering.Swappiness)
	}
	if _, err := c.DiskSwapBytes(); err != nil {
		return err
	}
	if _, err := c.ZramBytes(); err != nil {
		return err
	}
	if _, err := c.Profiles(); err != nil {
		return err
	}
	return nil
}
