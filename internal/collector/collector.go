// Package collector answers the raw OS queries the metrics engine needs that
// gopsutil doesn't cover: disk busy percentage, file-descriptor pressure, the
// TCP socket census, per-process network bytes, and context switches.
//
// # Platforms
//
// Exactly one implementation is selected at startup by New:
//
//   - Linux reads the kernel pseudo-filesystem (/proc) directly.
//   - Darwin shells out to sysctl, lsof, netstat, nettop, and ps.
//   - Anything else gets a Noop collector that returns zero values.
//
// # Failure policy
//
// Every query is best-effort diagnostics. An unreadable file, a missing
// utility, a malformed line, or a permission-denied directory degrades that
// record (or the whole query) to zero/empty. Queries never return errors;
// failures are logged at debug level only.
package collector

import (
	"context"
	"runtime"
	"sort"

	"github.com/rileyhilliard/sitrep/internal/exec"
	"github.com/rileyhilliard/sitrep/internal/logger"
)

// TopN is the length of every per-process top list a collector returns.
const TopN = 5

// Collector is the per-OS capability set.
type Collector interface {
	// DiskBusyPercent returns the busiest device's share of wall time spent
	// doing I/O since the previous call, clamped to [0,100]. The first call
	// returns 0.
	DiskBusyPercent(ctx context.Context) float64

	// FdPressure returns system-wide descriptor usage and the top processes
	// by open descriptors.
	FdPressure(ctx context.Context) FdInfo

	// SocketCensus counts TCP connections by state and ranks processes by
	// ESTABLISHED, CLOSE_WAIT, and LISTEN sockets they own.
	SocketCensus(ctx context.Context) SocketCensus

	// ProcessNetworkBytes returns cumulative-style rx/tx byte counters per pid.
	// Values for a pid never decrease between calls.
	ProcessNetworkBytes(ctx context.Context) map[int32]NetBytes

	// ContextSwitches returns the summed context switches of all processes
	// and the top processes by count.
	ContextSwitches(ctx context.Context) ContextSwitches
}

// ProcessCount pairs a process with a count (descriptors, sockets, switches).
// Pid is 0 when the platform only reports names.
type ProcessCount struct {
	Pid   int32  `json:"pid,omitempty" yaml:"pid,omitempty"`
	Name  string `json:"name" yaml:"name"`
	Count uint64 `json:"count" yaml:"count"`
}

// FdInfo summarizes file-descriptor pressure.
type FdInfo struct {
	SystemUsed   uint64         `json:"system_used" yaml:"system_used"`
	SystemMax    uint64         `json:"system_max" yaml:"system_max"`
	TopProcesses []ProcessCount `json:"top_processes" yaml:"top_processes"`
}

// SocketCensus is a per-tick count of TCP connections by state.
type SocketCensus struct {
	Established  uint32         `json:"established" yaml:"established"`
	Listen       uint32         `json:"listen" yaml:"listen"`
	TimeWait     uint32         `json:"time_wait" yaml:"time_wait"`
	CloseWait    uint32         `json:"close_wait" yaml:"close_wait"`
	FinWait      uint32         `json:"fin_wait" yaml:"fin_wait"`
	TopProcesses []ProcessCount `json:"top_processes" yaml:"top_processes"`
}

// ContextSwitches summarizes scheduler churn.
type ContextSwitches struct {
	Total        uint64         `json:"total" yaml:"total"`
	TopProcesses []ProcessCount `json:"top_processes" yaml:"top_processes"`
}

// NetBytes is a pair of cumulative byte counters.
type NetBytes struct {
	Rx uint64 `json:"rx" yaml:"rx"`
	Tx uint64 `json:"tx" yaml:"tx"`
}

// New returns the collector for the running OS. The runner is used by
// platforms that answer queries through external utilities.
func New(runner exec.Runner, log logger.Logger) Collector {
	if log == nil {
		log = logger.Noop()
	}
	switch runtime.GOOS {
	case "linux":
		return NewLinux(DefaultProcRoot, log)
	case "darwin":
		return NewDarwin(runner, log)
	default:
		log.Warn("no collector for %s, system diagnostics will be empty", runtime.GOOS)
		return Noop{}
	}
}

// Noop is the collector for unsupported platforms.
type Noop struct{}

func (Noop) DiskBusyPercent(context.Context) float64                { return 0 }
func (Noop) FdPressure(context.Context) FdInfo                      { return FdInfo{} }
func (Noop) SocketCensus(context.Context) SocketCensus              { return SocketCensus{} }
func (Noop) ProcessNetworkBytes(context.Context) map[int32]NetBytes { return map[int32]NetBytes{} }
func (Noop) ContextSwitches(context.Context) ContextSwitches        { return ContextSwitches{} }

// topCounts sorts by count descending (name, then pid, break ties so output is
// stable between ticks) and keeps the first n.
func topCounts(counts []ProcessCount, n int) []ProcessCount {
	sort.Slice(counts, func(i, j int) bool {
		if counts[i].Count != counts[j].Count {
			return counts[i].Count > counts[j].Count
		}
		if counts[i].Name != counts[j].Name {
			return counts[i].Name < counts[j].Name
		}
		return counts[i].Pid < counts[j].Pid
	})
	if len(counts) > n {
		counts = counts[:n]
	}
	return counts
}
