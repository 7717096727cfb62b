package types

import "time"

// MetricsSnapshot is an immutable point-in-time record of host and
// per-service resource usage. A new snapshot supersedes the previous one;
// snapshots are never merged or mutated after creation.
type MetricsSnapshot struct {
	Timestamp time.Time               `json:"timestamp"`
	Memory    MemoryStats             `json:"memory"`
	Swap      SwapStats               `json:"swap"`
	CPU       CPUStats                `json:"cpu"`
	Disk      DiskStats               `json:"disk"`
	Services  map[string]ServiceStats `json:"services"`
	GPU       GPUStats                `json:"gpu"`
}

// MemoryStats holds host memory usage in gigabytes, rounded to 2 decimals.
type MemoryStats struct {
	TotalGB     float64 `json:"total_gb"`
	UsedGB      float64 `json:"used_gb"`
	FreeGB      float64 `json:"free_gb"`
	AvailableGB float64 `json:"available_gb"`
	Percent     float64 `json:"percent"`
}

type SwapStats struct {
	TotalGB float64 `json:"total_gb"`
	UsedGB  float64 `json:"used_gb"`
	Percent float64 `json:"percent"`
}

type CPUStats struct {
	UsagePercent float64 `json:"usage_percent"`
	LoadAverage  float64 `json:"load_average"`
}

type DiskStats struct {
	MountPoint  string  `json:"mount_point"`
	TotalGB     float64 `json:"total_gb"`
	UsedGB      float64 `json:"used_gb"`
	AvailableGB float64 `json:"available_gb"`
	Percent     float64 `json:"percent"`
}

// ServiceStats is the per-service usage sample, keyed by unit name in the
// snapshot. A service that is installed but not running reports zeros.
type ServiceStats struct {
	MemoryMB      float64 `json:"memory_mb"`
	MemoryLimitMB float64 `json:"memory_limit_mb"`
	MemoryPercent float64 `json:"memory_percent"`
	CPUPercent    float64 `json:"cpu_percent"`
}

// GPUStats degrades to Available=false when no GPU query tool is present.
type GPUStats struct {
	Available      bool    `json:"available"`
	GPUUtilPercent float64 `json:"gpu_util_percent"`
	MemUtilPercent float64 `json:"mem_util_percent"`
}

// Severity of an alert. Alerts are advisory only and never abort anything.
type Severity string

const (
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// AlertEvent records one threshold breach. Events are appended to an
// append-only log and never deleted by this system.
type AlertEvent struct {
	Timestamp time.Time `json:"timestamp"`
	Severity  Severity  `json:"severity"`
	Resource  string    `json:"resource"`
	Message   string    `json:"message"`
}
