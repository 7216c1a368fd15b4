package metrics

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/load"
	"github.com/shirou/gopsutil/v3/mem"
	psnet "github.com/shirou/gopsutil/v3/net"
	"github.com/shirou/gopsutil/v3/process"

	"github.com/rileyhilliard/sitrep/internal/logger"
)

// InterfaceCounters is a network interface's cumulative byte counters.
type InterfaceCounters struct {
	Name    string
	RxBytes uint64
	TxBytes uint64
}

// HostSource supplies the OS snapshots the assembler merges each tick.
// Implementations degrade to empty values instead of failing.
type HostSource interface {
	Processes(ctx context.Context) []ProcessSample
	Disks(ctx context.Context) []DiskUsage
	Memory(ctx context.Context) Memory
	Load(ctx context.Context) LoadAverage
	CoreCount(ctx context.Context) int
	Interfaces(ctx context.Context) []InterfaceCounters
}

// cpuTimes is a process's cumulative user+system seconds at a point in time.
type cpuTimes struct {
	total float64
	at    time.Time
}

// GopsutilHost reads the process table, filesystems, memory, load, and
// interfaces through gopsutil.
type GopsutilHost struct {
	log logger.Logger
	now func() time.Time

	mu      sync.Mutex
	prevCPU map[int32]cpuTimes
}

// NewGopsutilHost creates a host source.
func NewGopsutilHost(log logger.Logger) *GopsutilHost {
	if log == nil {
		log = logger.Noop()
	}
	return &GopsutilHost{
		log:     log,
		now:     time.Now,
		prevCPU: make(map[int32]cpuTimes),
	}
}

// Processes returns one sample per live process. CPU is the percent of one
// core used since the previous call; a process seen for the first time
// reports 0.
func (h *GopsutilHost) Processes(ctx context.Context) []ProcessSample {
	procs, err := process.ProcessesWithContext(ctx)
	if err != nil {
		h.log.Debug("list processes: %v", err)
		return nil
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	now := h.now()
	nextCPU := make(map[int32]cpuTimes, len(procs))
	samples := make([]ProcessSample, 0, len(procs))
	for _, p := range procs {
		name, err := p.NameWithContext(ctx)
		if err != nil {
			// Exited between listing and inspection
			continue
		}
		s := ProcessSample{Pid: p.Pid, Name: name}
		if ppid, err := p.PpidWithContext(ctx); err == nil {
			s.ParentPid = ppid
		}
		if mi, err := p.MemoryInfoWithContext(ctx); err == nil && mi != nil {
			s.Memory = mi.RSS
		}
		if io, err := p.IOCountersWithContext(ctx); err == nil && io != nil {
			s.ReadBytes, s.WriteBytes = io.ReadBytes, io.WriteBytes
		}
		if t, err := p.TimesWithContext(ctx); err == nil && t != nil {
			cur := cpuTimes{total: t.User + t.System, at: now}
			s.CPU = cpuPercent(h.prevCPU[p.Pid], cur)
			nextCPU[p.Pid] = cur
		}
		samples = append(samples, s)
	}
	h.prevCPU = nextCPU
	return samples
}

func cpuPercent(prev, cur cpuTimes) float64 {
	if prev.at.IsZero() {
		return 0
	}
	elapsed := cur.at.Sub(prev.at).Seconds()
	if elapsed <= 0 || cur.total < prev.total {
		return 0
	}
	return (cur.total - prev.total) / elapsed * 100
}

// Disks returns physical filesystems with a non-zero size.
func (h *GopsutilHost) Disks(ctx context.Context) []DiskUsage {
	parts, err := disk.PartitionsWithContext(ctx, false)
	if err != nil {
		h.log.Debug("list partitions: %v", err)
		return nil
	}
	seen := make(map[string]bool, len(parts))
	var out []DiskUsage
	for _, part := range parts {
		if seen[part.Mountpoint] {
			continue
		}
		seen[part.Mountpoint] = true
		usage, err := disk.UsageWithContext(ctx, part.Mountpoint)
		if err != nil || usage.Total == 0 {
			continue
		}
		out = append(out, DiskUsage{
			MountPoint:     part.Mountpoint,
			TotalBytes:     usage.Total,
			AvailableBytes: usage.Free,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].MountPoint < out[j].MountPoint })
	return out
}

// Memory returns physical and swap totals.
func (h *GopsutilHost) Memory(ctx context.Context) Memory {
	var m Memory
	if vm, err := mem.VirtualMemoryWithContext(ctx); err == nil {
		m.Total, m.Used, m.Available = vm.Total, vm.Used, vm.Available
	} else {
		h.log.Debug("virtual memory: %v", err)
	}
	if sw, err := mem.SwapMemoryWithContext(ctx); err == nil {
		m.SwapTotal, m.SwapUsed = sw.Total, sw.Used
	}
	return m
}

// Load returns the 1, 5, and 15 minute load averages.
func (h *GopsutilHost) Load(ctx context.Context) LoadAverage {
	avg, err := load.AvgWithContext(ctx)
	if err != nil {
		h.log.Debug("load average: %v", err)
		return LoadAverage{}
	}
	return LoadAverage{One: avg.Load1, Five: avg.Load5, Fifteen: avg.Load15}
}

// CoreCount returns the number of logical CPUs.
func (h *GopsutilHost) CoreCount(ctx context.Context) int {
	n, err := cpu.CountsWithContext(ctx, true)
	if err != nil {
		return 0
	}
	return n
}

// Interfaces returns cumulative counters for every interface.
func (h *GopsutilHost) Interfaces(ctx context.Context) []InterfaceCounters {
	stats, err := psnet.IOCountersWithContext(ctx, true)
	if err != nil {
		h.log.Debug("interface counters: %v", err)
		return nil
	}
	out := make([]InterfaceCounters, 0, len(stats))
	for _, s := range stats {
		out = append(out, InterfaceCounters{Name: s.Name, RxBytes: s.BytesRecv, TxBytes: s.BytesSent})
	}
	return out
}
