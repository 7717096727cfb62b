package metrics

import (
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/dustin/go-humanize"

	"resgov/pkg/types"
)

// Display writes a human-readable summary of the snapshot, the output of
// `resmon --display`.
func Display(w io.Writer, snap types.MetricsSnapshot) {
	fmt.Fprintf(w, "Snapshot %s (%s)\n", snap.Timestamp.Format(time.RFC3339), humanize.Time(snap.Timestamp))
	fmt.Fprintf(w, "  Memory  %6.2f / %6.2f GB (%5.1f%%)  available %.2f GB\n",
		snap.Memory.UsedGB, snap.Memory.TotalGB, snap.Memory.Percent, snap.Memory.AvailableGB)
	if snap.Swap.TotalGB > 0 {
		fmt.Fprintf(w, "  Swap    %6.2f / %6.2f GB (%5.1f%%)\n",
			snap.Swap.UsedGB, snap.Swap.TotalGB, snap.Swap.Percent)
	} else {
		fmt.Fprintf(w, "  Swap    none provisioned\n")
	}
	fmt.Fprintf(w, "  CPU     %5.1f%%  load %.2f\n", snap.CPU.UsagePercent, snap.CPU.LoadAverage)
	fmt.Fprintf(w, "  Disk    %s  %6.2f / %6.2f GB (%5.1f%%)\n",
		snap.Disk.MountPoint, snap.Disk.UsedGB, snap.Disk.TotalGB, snap.Disk.Percent)
	if snap.GPU.Available {
		fmt.Fprintf(w, "  GPU     util %5.1f%%  mem %5.1f%%\n", snap.GPU.GPUUtilPercent, snap.GPU.MemUtilPercent)
	} else {
		fmt.Fprintf(w, "  GPU     not available\n")
	}
	if len(snap.Services) == 0 {
		return
	}
	units := make([]string, 0, len(snap.Services))
	for u := range snap.Services {
		units = append(units, u)
	}
	sort.Strings(units)
	fmt.Fprintf(w, "  Services:\n")
	for _, u := range units {
		svc := snap.Services[u]
		limit := "no limit"
		if svc.MemoryLimitMB > 0 {
			limit = fmt.Sprintf("of %s (%.1f%%)", humanize.IBytes(uint64(svc.MemoryLimitMB)*1024*1024), svc.MemoryPercent)
		}
		fmt.Fprintf(w, "    %-24s mem %8.1f MB %s  cpu %5.1f%%\n", u, svc.MemoryMB, limit, svc.CPUPercent)
	}
}

// DisplayAlerts writes recent alert events, oldest first.
func DisplayAlerts(w io.Writer, events []types.AlertEvent) {
	if len(events) == 0 {
		fmt.Fprintln(w, "no alerts recorded")
		return
	}
	for _, ev := range events {
		fmt.Fprintf(w, "%s  %-8s  %-16s  %s\n",
			ev.Timestamp.Format(time.RFC3339), ev.Severity, ev.Resource, ev.Message)
	}
}
