package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeTempFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return p
}

func TestLoadYAML(t *testing.T) {
	d := t.TempDir()
	p := writeTempFile(t, d, "cfg.yaml", `
metrics:
  disk_mount: /data
  thresholds:
    memory_percent: 80
services:
  - name: inference-engine
    role: engine
    memory_limit: 8GiB
    memory_high: 6GiB
    cpu_quota_percent: 400
`)
	cfg, err := Load(p)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Metrics.DiskMount != "/data" {
		t.Fatalf("disk_mount not loaded: %+v", cfg.Metrics)
	}
	if cfg.Metrics.Thresholds.MemoryPercent != 80 {
		t.Fatalf("threshold override lost: %v", cfg.Metrics.Thresholds.MemoryPercent)
	}
	// unset thresholds take defaults
	if cfg.Metrics.Thresholds.CPUPercent != 90 || cfg.Metrics.Thresholds.SwapPercent != 70 {
		t.Fatalf("threshold defaults missing: %+v", cfg.Metrics.Thresholds)
	}
	profiles, err := cfg.Profiles()
	if err != nil {
		t.Fatalf("profiles: %v", err)
	}
	if len(profiles) != 1 || profiles[0].MemoryLimit != 8<<30 || profiles[0].MemoryHigh != 6<<30 {
		t.Fatalf("unexpected profile: %+v", profiles)
	}
}

func TestLoadJSON(t *testing.T) {
	d := t.TempDir()
	p := writeTempFile(t, d, "cfg.json", `{"lock_path":"/tmp/l","tiering":{"disk_swap":{"size":"4GiB"}}}`)
	cfg, err := Load(p)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.LockPath != "/tmp/l" {
		t.Fatalf("lock_path: %q", cfg.LockPath)
	}
	n, err := cfg.DiskSwapBytes()
	if err != nil || n != 4<<30 {
		t.Fatalf("disk swap size: %d err=%v", n, err)
	}
}

func TestLoadTOML(t *testing.T) {
	d := t.TempDir()
	p := writeTempFile(t, d, "cfg.toml", "[tiering.zram]\nenabled = true\nsize = \"2GiB\"\npriority = 150\n")
	cfg, err := Load(p)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if !cfg.Tiering.Zram.Enabled || cfg.Tiering.Zram.Priority != 150 {
		t.Fatalf("zram section: %+v", cfg.Tiering.Zram)
	}
	n, err := cfg.ZramBytes()
	if err != nil || n != 2<<30 {
		t.Fatalf("zram size: %d err=%v", n, err)
	}
}

func TestLoadErrors(t *testing.T) {
	if _, err := Load(""); err == nil {
		t.Fatalf("expected error on empty path")
	}
	d := t.TempDir()
	p := writeTempFile(t, d, "cfg.txt", "not supported")
	if _, err := Load(p); err == nil {
		t.Fatalf("expected unsupported extension error")
	}
}

func TestMemoryHighMustBeBelowLimit(t *testing.T) {
	d := t.TempDir()
	p := writeTempFile(t, d, "cfg.yaml", `
services:
  - name: inference-engine
    memory_limit: 4GiB
    memory_high: 4GiB
`)
	_, err := Load(p)
	if err == nil || !strings.Contains(err.Error(), "memory_high") {
		t.Fatalf("expected memory_high validation error, got %v", err)
	}
}

func TestZramPriorityMustExceedDisk(t *testing.T) {
	d := t.TempDir()
	p := writeTempFile(t, d, "cfg.yaml", `
tiering:
  disk_swap:
    priority: 100
  zram:
    enabled: true
    priority: 50
`)
	_, err := Load(p)
	if err == nil || !strings.Contains(err.Error(), "priority") {
		t.Fatalf("expected priority validation error, got %v", err)
	}
}

func TestDuplicateServiceRejected(t *testing.T) {
	d := t.TempDir()
	p := writeTempFile(t, d, "cfg.yaml", `
services:
  - name: proxy
  - name: proxy
`)
	if _, err := Load(p); err == nil {
		t.Fatalf("expected duplicate profile error")
	}
}

func TestBandwidthCapRequiresDevice(t *testing.T) {
	s := Service{Name: "db", IOReadBandwidth: "100MiB"}
	if _, err := s.Profile(); err == nil {
		t.Fatalf("expected block_device requirement error")
	}
}

func TestDefaults(t *testing.T) {
	cfg := Default()
	if cfg.Metrics.IntervalSeconds != 30 {
		t.Fatalf("collection interval default: %d", cfg.Metrics.IntervalSeconds)
	}
	if cfg.Metrics.Thresholds.MemoryPercent != 85 || cfg.Metrics.Thresholds.DiskPercent != 90 {
		t.Fatalf("threshold defaults: %+v", cfg.Metrics.Thresholds)
	}
	if cfg.Tiering.Zram.Priority <= cfg.Tiering.DiskSwap.Priority {
		t.Fatalf("default zram priority must exceed disk priority: %+v", cfg.Tiering)
	}
}
