package types

import (
	"fmt"
	"sort"
)

// Role classifies a managed service for restart ordering. Storage and cache
// backends come up first, inference engines next, the request proxy last, so
// no service is restarted while a peer it depends on is still unhealthy.
type Role string

const (
	RoleStorage Role = "storage"
	RoleEngine  Role = "engine"
	RoleProxy   Role = "proxy"
)

// RestartRank returns the position of a role in the apply order. Unknown
// roles sort with the engines.
func (r Role) RestartRank() int {
	switch r {
	case RoleStorage:
		return 0
	case RoleProxy:
		return 2
	default:
		return 1
	}
}

// ServiceResourceProfile is the declarative resource budget for one managed
// systemd service. All byte values are absolute; zero means "not set" and the
// corresponding control is left at the systemd default.
type ServiceResourceProfile struct {
	// Unit name without the .service suffix, e.g. "inference-engine".
	Name string `json:"name" yaml:"name" toml:"name"`
	Role Role   `json:"role" yaml:"role" toml:"role"`
	// Hard memory ceiling (MemoryMax).
	MemoryLimit uint64 `json:"memory_limit" yaml:"memory_limit" toml:"memory_limit"`
	// Soft threshold below the hard limit (MemoryHigh); the kernel starts
	// reclaiming aggressively once the service crosses it.
	MemoryHigh uint64 `json:"memory_high" yaml:"memory_high" toml:"memory_high"`
	// CPU time cap in percent of one CPU (CPUQuota); 200 means two cores.
	CPUQuotaPercent int `json:"cpu_quota_percent" yaml:"cpu_quota_percent" toml:"cpu_quota_percent"`
	// Relative CPU share under contention (CPUWeight, 1..10000).
	CPUWeight int `json:"cpu_weight" yaml:"cpu_weight" toml:"cpu_weight"`
	// Relative I/O share under contention (IOWeight, 1..10000).
	IOWeight int `json:"io_weight" yaml:"io_weight" toml:"io_weight"`
	// Per-device bandwidth caps in bytes/second; applied to BlockDevice.
	IOReadBandwidth  uint64 `json:"io_read_bandwidth" yaml:"io_read_bandwidth" toml:"io_read_bandwidth"`
	IOWriteBandwidth uint64 `json:"io_write_bandwidth" yaml:"io_write_bandwidth" toml:"io_write_bandwidth"`
	// Block device the bandwidth caps apply to, e.g. "/dev/nvme0n1".
	BlockDevice string `json:"block_device" yaml:"block_device" toml:"block_device"`
	// Logical CPU indices the service is pinned to (AllowedCPUs).
	CPUAffinity []int `json:"cpu_affinity" yaml:"cpu_affinity" toml:"cpu_affinity"`
	// Maximum number of tasks (TasksMax).
	TasksMax int `json:"tasks_max" yaml:"tasks_max" toml:"tasks_max"`
	// Swap allowance in bytes (MemorySwapMax). Zero keeps the default.
	SwapMax uint64 `json:"swap_max" yaml:"swap_max" toml:"swap_max"`
}

// Unit returns the full systemd unit name for the profile.
func (p ServiceResourceProfile) Unit() string { return p.Name + ".service" }

// Validate checks the profile's internal invariants.
func (p ServiceResourceProfile) Validate() error {
	if p.Name == "" {
		return fmt.Errorf("profile without a name")
	}
	if p.MemoryHigh > 0 && p.MemoryLimit > 0 && p.MemoryHigh >= p.MemoryLimit {
		return fmt.Errorf("profile %s: memory_high (%d) must be below memory_limit (%d)", p.Name, p.MemoryHigh, p.MemoryLimit)
	}
	if p.CPUWeight < 0 || p.CPUWeight > 10000 {
		return fmt.Errorf("profile %s: cpu_weight out of range [0,10000]", p.Name)
	}
	if p.IOWeight < 0 || p.IOWeight > 10000 {
		return fmt.Errorf("profile %s: io_weight out of range [0,10000]", p.Name)
	}
	for _, c := range p.CPUAffinity {
		if c < 0 {
			return fmt.Errorf("profile %s: negative cpu index %d", p.Name, c)
		}
	}
	if (p.IOReadBandwidth > 0 || p.IOWriteBandwidth > 0) && p.BlockDevice == "" {
		return fmt.Errorf("profile %s: io bandwidth caps require block_device", p.Name)
	}
	return nil
}

// SortProfiles orders profiles for sequential apply: by restart rank, then
// by name inside a rank so the order is stable across runs.
func SortProfiles(profiles []ServiceResourceProfile) []ServiceResourceProfile {
	out := make([]ServiceResourceProfile, len(profiles))
	copy(out, profiles)
	sort.SliceStable(out, func(i, j int) bool {
		ri, rj := out[i].Role.RestartRank(), out[j].Role.RestartRank()
		if ri != rj {
			return ri < rj
		}
		return out[i].Name < out[j].Name
	})
	return out
}

// Outcome is the result class of one reconcile step.
type Outcome string

const (
	OutcomeApplied   Outcome = "applied"
	OutcomeUnchanged Outcome = "unchanged"
	OutcomeFailed    Outcome = "failed"
)

// ApplyResult reports what happened to one unit during an apply pass.
type ApplyResult struct {
	Unit    string  `json:"unit"`
	Outcome Outcome `json:"outcome"`
	// Reason is set when Outcome is failed; the prior configuration stays
	// in the backup location for manual recovery.
	Reason string `json:"reason,omitempty"`
	Backup string `json:"backup,omitempty"`
}
