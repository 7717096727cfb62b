package metrics

import (
	"bytes"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"

	"resgov/pkg/types"
)

func gauge(name, help string) prometheus.Gauge {
	return prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "resgov",
		Name:      name,
		Help:      help,
	})
}

// buildRegistry populates a fresh registry with gauges for one snapshot.
// A new registry per snapshot keeps the exposition a pure function of the
// snapshot, with no leftover series from units that disappeared.
func buildRegistry(snap types.MetricsSnapshot) (*prometheus.Registry, error) {
	reg := prometheus.NewRegistry()

	set := func(g prometheus.Gauge, v float64) error {
		g.Set(v)
		return reg.Register(g)
	}

	simple := []struct {
		name, help string
		value      float64
	}{
		{"collect_timestamp_seconds", "Unix time of the last collection", float64(snap.Timestamp.Unix())},
		{"memory_total_gb", "Host physical memory in GB", snap.Memory.TotalGB},
		{"memory_used_gb", "Host memory in use in GB", snap.Memory.UsedGB},
		{"memory_free_gb", "Host free memory in GB", snap.Memory.FreeGB},
		{"memory_available_gb", "Host available memory in GB", snap.Memory.AvailableGB},
		{"memory_percent", "Host memory usage percent", snap.Memory.Percent},
		{"swap_total_gb", "Host swap capacity in GB", snap.Swap.TotalGB},
		{"swap_used_gb", "Host swap in use in GB", snap.Swap.UsedGB},
		{"swap_percent", "Host swap usage percent", snap.Swap.Percent},
		{"cpu_usage_percent", "Host CPU usage percent", snap.CPU.UsagePercent},
		{"load_average", "1-minute load average", snap.CPU.LoadAverage},
		{"disk_total_gb", "Disk capacity in GB", snap.Disk.TotalGB},
		{"disk_used_gb", "Disk in use in GB", snap.Disk.UsedGB},
		{"disk_available_gb", "Disk available in GB", snap.Disk.AvailableGB},
		{"disk_percent", "Disk usage percent", snap.Disk.Percent},
	}
	for _, s := range simple {
		if err := set(gauge(s.name, s.help), s.value); err != nil {
			return nil, fmt.Errorf("register %s: %w", s.name, err)
		}
	}

	gpuAvail := 0.0
	if snap.GPU.Available {
		gpuAvail = 1
	}
	if err := set(gauge("gpu_available", "1 when a GPU query tool answered"), gpuAvail); err != nil {
		return nil, err
	}
	if snap.GPU.Available {
		if err := set(gauge("gpu_utilization_percent", "GPU utilization percent"), snap.GPU.GPUUtilPercent); err != nil {
			return nil, err
		}
		if err := set(gauge("gpu_memory_percent", "GPU memory utilization percent"), snap.GPU.MemUtilPercent); err != nil {
			return nil, err
		}
	}

	svcVec := func(name, help string) *prometheus.GaugeVec {
		return prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "resgov",
			Subsystem: "service",
			Name:      name,
			Help:      help,
		}, []string{"unit"})
	}
	memMB := svcVec("memory_mb", "Service memory usage in MB")
	memLimitMB := svcVec("memory_limit_mb", "Service memory limit in MB")
	memPct := svcVec("memory_percent", "Service memory usage percent of limit")
	cpuPct := svcVec("cpu_percent", "Service CPU usage percent")
	for _, v := range []*prometheus.GaugeVec{memMB, memLimitMB, memPct, cpuPct} {
		if err := reg.Register(v); err != nil {
			return nil, fmt.Errorf("register service vec: %w", err)
		}
	}
	for unit, svc := range snap.Services {
		memMB.WithLabelValues(unit).Set(svc.MemoryMB)
		memLimitMB.WithLabelValues(unit).Set(svc.MemoryLimitMB)
		memPct.WithLabelValues(unit).Set(svc.MemoryPercent)
		cpuPct.WithLabelValues(unit).Set(svc.CPUPercent)
	}
	return reg, nil
}

// RenderExposition renders the snapshot in the plain-text exposition format.
func RenderExposition(snap types.MetricsSnapshot) ([]byte, error) {
	reg, err := buildRegistry(snap)
	if err != nil {
		return nil, err
	}
	families, err := reg.Gather()
	if err != nil {
		return nil, fmt.Errorf("gather: %w", err)
	}
	var buf bytes.Buffer
	enc := expfmt.NewEncoder(&buf, expfmt.NewFormat(expfmt.TypeTextPlain))
	for _, fam := range families {
		if err := enc.Encode(fam); err != nil {
			return nil, fmt.Errorf("encode %s: %w", fam.GetName(), err)
		}
	}
	return buf.Bytes(), nil
}
