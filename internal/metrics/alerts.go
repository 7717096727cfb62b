package metrics

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"sort"

	"resgov/internal/common/fsutil"
	"resgov/internal/config"
	"resgov/pkg/types"
)

// criticalOvershoot is how many points past a threshold a value must be
// before the alert escalates from warning to critical.
const criticalOvershoot = 10

func severityFor(value, threshold float64) types.Severity {
	if value-threshold > criticalOvershoot {
		return types.SeverityCritical
	}
	return types.SeverityWarning
}

// EvaluateThresholds compares a snapshot against the configured thresholds
// and returns the resulting advisory events. Pure function: same snapshot
// and thresholds, same events.
func EvaluateThresholds(snap types.MetricsSnapshot, t config.Thresholds) []types.AlertEvent {
	var events []types.AlertEvent
	add := func(resource, msg string, value, threshold float64) {
		events = append(events, types.AlertEvent{
			Timestamp: snap.Timestamp,
			Severity:  severityFor(value, threshold),
			Resource:  resource,
			Message:   msg,
		})
	}
	if snap.Memory.Percent > t.MemoryPercent {
		add("memory",
			fmt.Sprintf("memory usage at %.1f%% (threshold %.0f%%), %.2f of %.2f GB used",
				snap.Memory.Percent, t.MemoryPercent, snap.Memory.UsedGB, snap.Memory.TotalGB),
			snap.Memory.Percent, t.MemoryPercent)
	}
	if snap.Swap.TotalGB > 0 && snap.Swap.Percent > t.SwapPercent {
		add("swap",
			fmt.Sprintf("swap usage at %.1f%% (threshold %.0f%%)", snap.Swap.Percent, t.SwapPercent),
			snap.Swap.Percent, t.SwapPercent)
	}
	if snap.CPU.UsagePercent > t.CPUPercent {
		add("cpu",
			fmt.Sprintf("cpu usage at %.1f%% (threshold %.0f%%), load %.2f",
				snap.CPU.UsagePercent, t.CPUPercent, snap.CPU.LoadAverage),
			snap.CPU.UsagePercent, t.CPUPercent)
	}
	if snap.Disk.Percent > t.DiskPercent {
		add("disk",
			fmt.Sprintf("disk usage on %s at %.1f%% (threshold %.0f%%)",
				snap.Disk.MountPoint, snap.Disk.Percent, t.DiskPercent),
			snap.Disk.Percent, t.DiskPercent)
	}
	units := make([]string, 0, len(snap.Services))
	for u := range snap.Services {
		units = append(units, u)
	}
	sort.Strings(units)
	for _, unit := range units {
		svc := snap.Services[unit]
		if svc.MemoryLimitMB > 0 && svc.MemoryPercent > t.MemoryPercent {
			add("service:"+unit,
				fmt.Sprintf("%s memory at %.1f%% of its %.0f MB limit", unit, svc.MemoryPercent, svc.MemoryLimitMB),
				svc.MemoryPercent, t.MemoryPercent)
		}
	}
	return events
}

// AlertLog is the append-only JSONL alert history. Nothing in this system
// ever truncates it.
type AlertLog struct {
	Path string
}

// Append writes each event as one JSON line.
func (l AlertLog) Append(events []types.AlertEvent) error {
	for _, ev := range events {
		b, err := json.Marshal(ev)
		if err != nil {
			return fmt.Errorf("marshal alert: %w", err)
		}
		if err := fsutil.AppendLine(l.Path, b); err != nil {
			return err
		}
	}
	return nil
}

// Tail returns up to n most recent events, oldest first. A missing log file
// means no alerts yet, not an error.
func (l AlertLog) Tail(n int) ([]types.AlertEvent, error) {
	f, err := os.Open(l.Path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("open alert log: %w", err)
	}
	defer f.Close()
	var events []types.AlertEvent
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		line := sc.Bytes()
		if len(line) == 0 {
			continue
		}
		var ev types.AlertEvent
		if err := json.Unmarshal(line, &ev); err != nil {
			// a torn or foreign line is skipped, not fatal
			continue
		}
		events = append(events, ev)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read alert log: %w", err)
	}
	if n > 0 && len(events) > n {
		events = events[len(events)-n:]
	}
	return events, nil
}
