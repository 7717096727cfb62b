package metrics

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"resgov/internal/config"
	"resgov/internal/execx"
	"resgov/internal/systemd"
)

// fakeHost returns fixed counters, with optional per-category failures.
type fakeHost struct {
	mem     MemoryCounters
	swap    SwapCounters
	cpu     float64
	load    float64
	disk    DiskCounters
	memErr  error
	cpuErr  error
	diskErr error
}

func (f fakeHost) Memory() (MemoryCounters, error) { return f.mem, f.memErr }
func (f fakeHost) Swap() (SwapCounters, error)     { return f.swap, nil }
func (f fakeHost) CPUPercent() (float64, error)    { return f.cpu, f.cpuErr }
func (f fakeHost) LoadAvg() (float64, error)       { return f.load, nil }
func (f fakeHost) Disk(string) (DiskCounters, error) {
	return f.disk, f.diskErr
}

func testCollector(t *testing.T, host HostReader, sd systemd.Client, run execx.Runner, units []string) *Collector {
	t.Helper()
	cfg := config.Default().Metrics
	c := New(cfg, host, sd, run, units, zerolog.Nop())
	c.now = func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) }
	return c
}

const gib = 1 << 30

func TestCollectConservation(t *testing.T) {
	host := fakeHost{
		mem:  MemoryCounters{Total: 16 * gib, Free: 5 * gib, Available: 6 * gib},
		swap: SwapCounters{Total: 8 * gib, Used: 1 * gib},
		cpu:  12.5, load: 0.4,
		disk: DiskCounters{Total: 500 * gib, Used: 100 * gib, Free: 400 * gib},
	}
	c := testCollector(t, host, systemd.NewFake(), execx.NewFake(), nil)
	snap := c.Collect(context.Background())
	if diff := math.Abs(snap.Memory.UsedGB + snap.Memory.FreeGB - snap.Memory.TotalGB); diff > 0.02 {
		t.Fatalf("conservation violated: used=%v free=%v total=%v", snap.Memory.UsedGB, snap.Memory.FreeGB, snap.Memory.TotalGB)
	}
	if snap.Memory.TotalGB != 16 {
		t.Fatalf("total: %v", snap.Memory.TotalGB)
	}
	if snap.Swap.Percent != 12.5 {
		t.Fatalf("swap percent: %v", snap.Swap.Percent)
	}
	if snap.Disk.Percent != 20 {
		t.Fatalf("disk percent: %v", snap.Disk.Percent)
	}
}

func TestCollectDegradesPerCategory(t *testing.T) {
	host := fakeHost{
		mem:     MemoryCounters{Total: 16 * gib, Free: 8 * gib},
		memErr:  errors.New("meminfo unreadable"),
		cpu:     55,
		disk:    DiskCounters{Total: 100 * gib, Used: 50 * gib, Free: 50 * gib},
		diskErr: errors.New("statfs failed"),
	}
	c := testCollector(t, host, systemd.NewFake(), execx.NewFake(), nil)
	snap := c.Collect(context.Background())
	// failed categories are zero-valued, others still collected
	if snap.Memory.TotalGB != 0 || snap.Disk.TotalGB != 0 {
		t.Fatalf("failed categories should be zero-valued: %+v", snap)
	}
	if snap.CPU.UsagePercent != 55 {
		t.Fatalf("cpu should survive other failures: %v", snap.CPU.UsagePercent)
	}
}

func TestCollectDegradedGPU(t *testing.T) {
	run := execx.NewFake()
	run.Missing["nvidia-smi"] = true
	c := testCollector(t, fakeHost{}, systemd.NewFake(), run, nil)
	snap := c.Collect(context.Background())
	if snap.GPU.Available {
		t.Fatalf("expected gpu.available=false without query tool")
	}
}

func TestCollectGPUQueryFailure(t *testing.T) {
	run := execx.NewFake()
	run.Errors["nvidia-smi"] = errors.New("no devices were found")
	c := testCollector(t, fakeHost{}, systemd.NewFake(), run, nil)
	if snap := c.Collect(context.Background()); snap.GPU.Available {
		t.Fatalf("expected gpu.available=false on query failure")
	}
}

func TestCollectGPU(t *testing.T) {
	run := execx.NewFake()
	run.Outputs["nvidia-smi"] = "42, 17"
	c := testCollector(t, fakeHost{}, systemd.NewFake(), run, nil)
	snap := c.Collect(context.Background())
	if !snap.GPU.Available || snap.GPU.GPUUtilPercent != 42 || snap.GPU.MemUtilPercent != 17 {
		t.Fatalf("gpu stats: %+v", snap.GPU)
	}
}

func TestCollectServiceStats(t *testing.T) {
	sd := systemd.NewFake()
	sd.Active["inference-engine.service"] = true
	sd.Properties["inference-engine.service/MemoryCurrent"] = "1073741824" // 1 GiB
	sd.Properties["inference-engine.service/MemoryMax"] = "4294967296"    // 4 GiB
	sd.Properties["inference-engine.service/MainPID"] = "4242"
	run := execx.NewFake()
	run.Outputs["ps"] = " 37.5"
	c := testCollector(t, fakeHost{}, sd, run, []string{"inference-engine.service", "request-proxy.service"})
	snap := c.Collect(context.Background())

	svc := snap.Services["inference-engine.service"]
	if svc.MemoryMB != 1024 || svc.MemoryLimitMB != 4096 {
		t.Fatalf("service memory: %+v", svc)
	}
	if svc.MemoryPercent != 25 {
		t.Fatalf("service memory percent: %v", svc.MemoryPercent)
	}
	if svc.CPUPercent != 37.5 {
		t.Fatalf("service cpu: %v", svc.CPUPercent)
	}
	// a stopped service degrades to zeros, not an error
	if stopped := snap.Services["request-proxy.service"]; stopped.MemoryMB != 0 {
		t.Fatalf("stopped service should be zero-valued: %+v", stopped)
	}
}

func TestCollectServiceUnsetLimit(t *testing.T) {
	sd := systemd.NewFake()
	sd.Active["request-proxy.service"] = true
	sd.Properties["request-proxy.service/MemoryCurrent"] = "536870912"
	// systemd reports "no limit" as the uint64 max sentinel
	sd.Properties["request-proxy.service/MemoryMax"] = "18446744073709551615"
	c := testCollector(t, fakeHost{}, sd, execx.NewFake(), []string{"request-proxy.service"})
	snap := c.Collect(context.Background())
	svc := snap.Services["request-proxy.service"]
	if svc.MemoryLimitMB != 0 || svc.MemoryPercent != 0 {
		t.Fatalf("unset limit should report zero: %+v", svc)
	}
	if svc.MemoryMB != 512 {
		t.Fatalf("memory: %v", svc.MemoryMB)
	}
}
