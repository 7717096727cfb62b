package cli

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"resgov/internal/config"
	"resgov/internal/metrics"
	"resgov/pkg/types"
)

// writeTestConfig points every output path into a temp dir and returns the
// config file path.
func writeTestConfig(t *testing.T) (string, config.Config) {
	t.Helper()
	d := t.TempDir()
	doc := fmt.Sprintf(`metrics:
  snapshot_path: %s
  prometheus_path: %s
  alert_log_path: %s
`, filepath.Join(d, "snapshot.json"), filepath.Join(d, "metrics.prom"), filepath.Join(d, "alerts.jsonl"))
	path := filepath.Join(d, "resgov.yaml")
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	return path, cfg
}

func runResmon(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := BuildResmonCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestResmonRequiresExactlyOneMode(t *testing.T) {
	cfgPath, _ := writeTestConfig(t)

	if _, err := runResmon(t, "--config", cfgPath); err == nil {
		t.Fatalf("no mode flag must be rejected")
	}
	if _, err := runResmon(t, "--config", cfgPath, "--collect", "--display"); err == nil {
		t.Fatalf("two mode flags must be rejected")
	}
}

func TestResmonDisplayWithoutSnapshot(t *testing.T) {
	cfgPath, _ := writeTestConfig(t)
	_, err := runResmon(t, "--config", cfgPath, "--display")
	if !errors.Is(err, metrics.ErrNoSnapshot) {
		t.Fatalf("display before any collection must report ErrNoSnapshot, got %v", err)
	}
}

func TestResmonDisplayAndDumps(t *testing.T) {
	cfgPath, cfg := writeTestConfig(t)
	store := metrics.NewStore(cfg.Metrics)
	snap := types.MetricsSnapshot{Timestamp: time.Now().UTC()}
	snap.Memory.TotalGB = 64
	snap.Memory.UsedGB = 32
	snap.Memory.FreeGB = 32
	snap.Memory.Percent = 50
	if err := store.WriteSnapshot(snap); err != nil {
		t.Fatalf("seed snapshot: %v", err)
	}

	out, err := runResmon(t, "--config", cfgPath, "--display")
	if err != nil {
		t.Fatalf("display: %v", err)
	}
	if !strings.Contains(out, "Memory") {
		t.Fatalf("display output: %q", out)
	}

	out, err = runResmon(t, "--config", cfgPath, "--json")
	if err != nil {
		t.Fatalf("json: %v", err)
	}
	if !strings.Contains(out, `"total_gb": 64`) {
		t.Fatalf("json output: %q", out)
	}

	out, err = runResmon(t, "--config", cfgPath, "--prometheus")
	if err != nil {
		t.Fatalf("prometheus: %v", err)
	}
	if !strings.Contains(out, "resgov_memory_percent") {
		t.Fatalf("exposition output: %q", out)
	}
}

func TestResmonAlertsEmpty(t *testing.T) {
	cfgPath, _ := writeTestConfig(t)
	out, err := runResmon(t, "--config", cfgPath, "--alerts")
	if err != nil {
		t.Fatalf("alerts: %v", err)
	}
	if !strings.Contains(strings.ToLower(out), "no alerts") {
		t.Fatalf("alerts output: %q", out)
	}
}
