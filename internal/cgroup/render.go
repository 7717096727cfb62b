// Package cgroup translates declarative ServiceResourceProfiles into
// systemd resource-control drop-ins and applies them one service at a time:
// render, diff, backup, write, reload, restart, verify. Unchanged services
// are never touched.
package cgroup

import (
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"resgov/pkg/types"
)

// DropInName is the drop-in file the configurator owns. Other drop-ins for
// the same unit are left alone.
const DropInName = "50-resgov.conf"

// DropInPath returns where the unit's resource-control drop-in lives.
func DropInPath(dropInDir, unit string) string {
	return filepath.Join(dropInDir, unit+".d", DropInName)
}

func cpuList(indices []int) string {
	parts := make([]string, len(indices))
	for i, c := range indices {
		parts[i] = strconv.Itoa(c)
	}
	return strings.Join(parts, " ")
}

// Render produces the drop-in document for a profile. Only controls the
// profile sets are emitted, so an unset control keeps the unit's own
// configuration. Output is deterministic: the diff step compares bytes.
func Render(p types.ServiceResourceProfile) string {
	var b strings.Builder
	b.WriteString("# managed by resgov; manual edits will be overwritten\n")
	b.WriteString("[Service]\n")
	b.WriteString("MemoryAccounting=yes\nCPUAccounting=yes\nIOAccounting=yes\nTasksAccounting=yes\n")
	if p.MemoryHigh > 0 {
		fmt.Fprintf(&b, "MemoryHigh=%d\n", p.MemoryHigh)
	}
	if p.MemoryLimit > 0 {
		fmt.Fprintf(&b, "MemoryMax=%d\n", p.MemoryLimit)
	}
	if p.SwapMax > 0 {
		fmt.Fprintf(&b, "MemorySwapMax=%d\n", p.SwapMax)
	}
	if p.CPUQuotaPercent > 0 {
		fmt.Fprintf(&b, "CPUQuota=%d%%\n", p.CPUQuotaPercent)
	}
	if p.CPUWeight > 0 {
		fmt.Fprintf(&b, "CPUWeight=%d\n", p.CPUWeight)
	}
	if len(p.CPUAffinity) > 0 {
		fmt.Fprintf(&b, "AllowedCPUs=%s\n", cpuList(p.CPUAffinity))
	}
	if p.IOWeight > 0 {
		fmt.Fprintf(&b, "IOWeight=%d\n", p.IOWeight)
	}
	if p.IOReadBandwidth > 0 {
		fmt.Fprintf(&b, "IOReadBandwidthMax=%s %d\n", p.BlockDevice, p.IOReadBandwidth)
	}
	if p.IOWriteBandwidth > 0 {
		fmt.Fprintf(&b, "IOWriteBandwidthMax=%s %d\n", p.BlockDevice, p.IOWriteBandwidth)
	}
	if p.TasksMax > 0 {
		fmt.Fprintf(&b, "TasksMax=%d\n", p.TasksMax)
	}
	return b.String()
}
