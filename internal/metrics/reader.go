package metrics

import (
	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/disk"
	"github.com/shirou/gopsutil/v4/load"
	"github.com/shirou/gopsutil/v4/mem"
)

// MemoryCounters are raw byte counters for host memory.
type MemoryCounters struct {
	Total     uint64
	Free      uint64
	Available uint64
}

// SwapCounters are raw byte counters for host swap.
type SwapCounters struct {
	Total uint64
	Used  uint64
}

// DiskCounters are raw byte counters for one mount point.
type DiskCounters struct {
	Total uint64
	Used  uint64
	Free  uint64
}

// HostReader abstracts the OS counters the collector samples, so collection
// logic can be exercised against fixed values instead of the live host.
type HostReader interface {
	Memory() (MemoryCounters, error)
	Swap() (SwapCounters, error)
	CPUPercent() (float64, error)
	LoadAvg() (float64, error)
	Disk(mount string) (DiskCounters, error)
}

// GopsutilReader samples the live host via gopsutil.
type GopsutilReader struct{}

func (GopsutilReader) Memory() (MemoryCounters, error) {
	v, err := mem.VirtualMemory()
	if err != nil {
		return MemoryCounters{}, err
	}
	return MemoryCounters{Total: v.Total, Free: v.Free, Available: v.Available}, nil
}

func (GopsutilReader) Swap() (SwapCounters, error) {
	s, err := mem.SwapMemory()
	if err != nil {
		return SwapCounters{}, err
	}
	return SwapCounters{Total: s.Total, Used: s.Used}, nil
}

func (GopsutilReader) CPUPercent() (float64, error) {
	pcts, err := cpu.Percent(0, false)
	if err != nil {
		return 0, err
	}
	if len(pcts) == 0 {
		return 0, nil
	}
	return pcts[0], nil
}

func (GopsutilReader) LoadAvg() (float64, error) {
	l, err := load.Avg()
	if err != nil {
		return 0, err
	}
	return l.Load1, nil
}

func (GopsutilReader) Disk(mount string) (DiskCounters, error) {
	u, err := disk.Usage(mount)
	if err != nil {
		return DiskCounters{}, err
	}
	return DiskCounters{Total: u.Total, Used: u.Used, Free: u.Free}, nil
}

var _ HostReader = GopsutilReader{}
