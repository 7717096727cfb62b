package cgroup

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"resgov/internal/config"
	"resgov/internal/systemd"
	"resgov/pkg/types"
)

func testConfigurator(t *testing.T, sd systemd.Client) *Configurator {
	t.Helper()
	d := t.TempDir()
	cfg := config.Cgroup{
		DropInDir:             filepath.Join(d, "system"),
		BackupDir:             filepath.Join(d, "backups"),
		VerifyAttempts:        3,
		VerifyIntervalSeconds: 0,
	}
	c := NewConfigurator(cfg, sd, zerolog.Nop())
	c.now = func() time.Time { return time.Date(2026, 2, 3, 4, 5, 6, 0, time.UTC) }
	return c
}

func engineProfile() types.ServiceResourceProfile {
	return types.ServiceResourceProfile{
		Name:        "vllm",
		Role:        types.RoleEngine,
		MemoryLimit: 16 << 30,
		MemoryHigh:  14 << 30,
		CPUWeight:   200,
	}
}

func TestRenderOmitsUnsetControls(t *testing.T) {
	doc := Render(types.ServiceResourceProfile{Name: "minio", MemoryLimit: 1 << 30})
	if !strings.Contains(doc, "MemoryMax=1073741824\n") {
		t.Fatalf("missing MemoryMax:\n%s", doc)
	}
	for _, absent := range []string{"CPUQuota", "IOWeight", "TasksMax", "AllowedCPUs", "MemoryHigh"} {
		if strings.Contains(doc, absent) {
			t.Fatalf("unset control %s emitted:\n%s", absent, doc)
		}
	}
	// accounting is always on so the collector can read per-service usage
	if !strings.Contains(doc, "MemoryAccounting=yes") {
		t.Fatalf("accounting missing:\n%s", doc)
	}
}

func TestRenderBandwidthAndAffinity(t *testing.T) {
	doc := Render(types.ServiceResourceProfile{
		Name:             "minio",
		BlockDevice:      "/dev/nvme0n1",
		IOReadBandwidth:  100 << 20,
		IOWriteBandwidth: 50 << 20,
		CPUAffinity:      []int{0, 1, 2},
	})
	if !strings.Contains(doc, "IOReadBandwidthMax=/dev/nvme0n1 104857600\n") {
		t.Fatalf("read bandwidth:\n%s", doc)
	}
	if !strings.Contains(doc, "AllowedCPUs=0 1 2\n") {
		t.Fatalf("affinity:\n%s", doc)
	}
}

func TestApplyProfileThenUnchanged(t *testing.T) {
	sd := systemd.NewFake()
	sd.Active["vllm.service"] = true
	c := testConfigurator(t, sd)
	p := engineProfile()

	res := c.ApplyProfile(context.Background(), p)
	if res.Outcome != types.OutcomeApplied {
		t.Fatalf("first apply: %+v", res)
	}
	if res.Backup != "" {
		t.Fatalf("no prior drop-in, backup should be empty: %q", res.Backup)
	}
	if sd.Reloads != 1 || sd.Restarts["vllm.service"] != 1 {
		t.Fatalf("reloads=%d restarts=%v", sd.Reloads, sd.Restarts)
	}
	if _, err := os.Stat(DropInPath(c.cfg.DropInDir, "vllm.service")); err != nil {
		t.Fatalf("drop-in not written: %v", err)
	}

	// identical re-apply must not reload or restart anything
	res = c.ApplyProfile(context.Background(), p)
	if res.Outcome != types.OutcomeUnchanged {
		t.Fatalf("re-apply: %+v", res)
	}
	if sd.Reloads != 1 || sd.Restarts["vllm.service"] != 1 {
		t.Fatalf("unchanged apply touched the unit: reloads=%d restarts=%v", sd.Reloads, sd.Restarts)
	}
}

func TestApplyProfileChangeBacksUpPrevious(t *testing.T) {
	sd := systemd.NewFake()
	sd.Active["vllm.service"] = true
	c := testConfigurator(t, sd)
	p := engineProfile()

	if res := c.ApplyProfile(context.Background(), p); res.Outcome != types.OutcomeApplied {
		t.Fatalf("seed apply: %+v", res)
	}
	previous, _ := os.ReadFile(DropInPath(c.cfg.DropInDir, "vllm.service"))

	p.MemoryLimit = 20 << 30
	p.MemoryHigh = 18 << 30
	res := c.ApplyProfile(context.Background(), p)
	if res.Outcome != types.OutcomeApplied {
		t.Fatalf("second apply: %+v", res)
	}
	if res.Backup == "" {
		t.Fatalf("changed apply must record a backup")
	}
	b, err := os.ReadFile(res.Backup)
	if err != nil {
		t.Fatalf("backup unreadable: %v", err)
	}
	if string(b) != string(previous) {
		t.Fatalf("backup does not hold the previous drop-in")
	}
}

func TestApplyProfileUnhealthyKeepsNewConfig(t *testing.T) {
	sd := systemd.NewFake()
	sd.Active["vllm.service"] = true
	c := testConfigurator(t, sd)
	p := engineProfile()
	if res := c.ApplyProfile(context.Background(), p); res.Outcome != types.OutcomeApplied {
		t.Fatalf("seed apply: %+v", res)
	}

	sd.FailAfterRestart["vllm.service"] = true
	p.MemoryLimit = 20 << 30
	p.MemoryHigh = 18 << 30
	res := c.ApplyProfile(context.Background(), p)
	if res.Outcome != types.OutcomeFailed {
		t.Fatalf("unhealthy apply: %+v", res)
	}
	if res.Backup == "" || !strings.Contains(res.Reason, res.Backup) {
		t.Fatalf("failure must point the operator at the backup: %+v", res)
	}
	// no automatic rollback: the new drop-in stays on disk
	current, desired, err := c.Diff(p)
	if err != nil {
		t.Fatalf("diff: %v", err)
	}
	if current != desired {
		t.Fatalf("failed apply must leave the new config in place")
	}
}

func TestApplyProfileUnitMissing(t *testing.T) {
	sd := systemd.NewFake()
	sd.Loaded["other.service"] = true
	c := testConfigurator(t, sd)

	res := c.ApplyProfile(context.Background(), engineProfile())
	if res.Outcome != types.OutcomeFailed || res.Reason != "unit not installed" {
		t.Fatalf("missing unit: %+v", res)
	}
	if _, err := os.Stat(DropInPath(c.cfg.DropInDir, "vllm.service")); !os.IsNotExist(err) {
		t.Fatalf("missing unit must not get a drop-in")
	}
}

func TestApplyAllOrderAndContinuation(t *testing.T) {
	sd := systemd.NewFake()
	for _, u := range []string{"minio.service", "vllm.service", "nginx.service"} {
		sd.Active[u] = true
	}
	sd.FailAfterRestart["vllm.service"] = true
	c := testConfigurator(t, sd)

	profiles := []types.ServiceResourceProfile{
		{Name: "nginx", Role: types.RoleProxy, CPUWeight: 100},
		{Name: "vllm", Role: types.RoleEngine, MemoryLimit: 16 << 30},
		{Name: "minio", Role: types.RoleStorage, MemoryLimit: 4 << 30},
	}
	results := c.ApplyAll(context.Background(), profiles)
	if len(results) != 3 {
		t.Fatalf("results: %+v", results)
	}
	order := []string{results[0].Unit, results[1].Unit, results[2].Unit}
	want := []string{"minio.service", "vllm.service", "nginx.service"}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("apply order = %v, want %v", order, want)
		}
	}
	if results[1].Outcome != types.OutcomeFailed {
		t.Fatalf("engine should fail: %+v", results[1])
	}
	// the proxy is still applied after the engine failure
	if results[2].Outcome != types.OutcomeApplied {
		t.Fatalf("proxy must still be applied: %+v", results[2])
	}
}
