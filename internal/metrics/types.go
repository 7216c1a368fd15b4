package metrics

import (
	"fmt"
	"strings"
	"time"

	"github.com/rileyhilliard/sitrep/internal/collector"
	"github.com/rileyhilliard/sitrep/internal/errors"
)

// SortColumn selects the metric RankedTop is ordered by.
type SortColumn int

const (
	SortCPU SortColumn = iota
	SortMemory
	SortRead
	SortWrite
	SortNetDown
	SortNetUp
)

var sortColumnNames = []string{"cpu", "mem", "read", "write", "down", "up"}

// String returns the short flag-friendly name of the column.
func (s SortColumn) String() string {
	if s < 0 || int(s) >= len(sortColumnNames) {
		return "cpu"
	}
	return sortColumnNames[s]
}

// Next cycles to the next sort column.
func (s SortColumn) Next() SortColumn {
	return SortColumn((int(s) + 1) % len(sortColumnNames))
}

// ParseSortColumn parses names like "cpu", "mem", "memory", "down".
func ParseSortColumn(name string) (SortColumn, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "cpu", "":
		return SortCPU, nil
	case "mem", "memory":
		return SortMemory, nil
	case "read":
		return SortRead, nil
	case "write":
		return SortWrite, nil
	case "down", "netdown", "rx":
		return SortNetDown, nil
	case "up", "netup", "tx":
		return SortNetUp, nil
	}
	return SortCPU, errors.New(errors.ErrConfig,
		fmt.Sprintf("Unknown sort column %q", name),
		"Use one of: "+strings.Join(sortColumnNames, ", "))
}

// ProcessSample is one OS process at one tick. Disk and network counters are
// cumulative.
type ProcessSample struct {
	Pid        int32   `json:"pid" yaml:"pid"`
	ParentPid  int32   `json:"parent_pid" yaml:"parent_pid"`
	Name       string  `json:"name" yaml:"name"`
	CPU        float64 `json:"cpu" yaml:"cpu"`
	Memory     uint64  `json:"memory" yaml:"memory"`
	ReadBytes  uint64  `json:"read_bytes" yaml:"read_bytes"`
	WriteBytes uint64  `json:"write_bytes" yaml:"write_bytes"`
	NetRx      uint64  `json:"net_rx" yaml:"net_rx"`
	NetTx      uint64  `json:"net_tx" yaml:"net_tx"`
}

// ProcessGroup aggregates a top-level ancestor and its descendants.
type ProcessGroup struct {
	Pid        int32
	Name       string
	CPU        float64
	Memory     uint64
	ReadBytes  uint64
	WriteBytes uint64
	NetRx      uint64
	NetTx      uint64
	ChildCount int
	Children   []ProcessSample
}

// RankedGroup is one row of RankedTop: CPU and memory averaged over the
// window, disk and network as bytes per second over the window.
type RankedGroup struct {
	Pid        int32           `json:"pid" yaml:"pid"`
	Name       string          `json:"name" yaml:"name"`
	CPU        float64         `json:"cpu" yaml:"cpu"`
	Memory     uint64          `json:"memory" yaml:"memory"`
	ReadRate   float64         `json:"read_rate" yaml:"read_rate"`
	WriteRate  float64         `json:"write_rate" yaml:"write_rate"`
	NetRxRate  float64         `json:"net_rx_rate" yaml:"net_rx_rate"`
	NetTxRate  float64         `json:"net_tx_rate" yaml:"net_tx_rate"`
	ChildCount int             `json:"child_count" yaml:"child_count"`
	Children   []ProcessSample `json:"children,omitempty" yaml:"children,omitempty"`
}

// LoadAverage holds the 1, 5, and 15 minute load averages.
type LoadAverage struct {
	One     float64 `json:"one" yaml:"one"`
	Five    float64 `json:"five" yaml:"five"`
	Fifteen float64 `json:"fifteen" yaml:"fifteen"`
}

// DiskUsage is one mounted filesystem as reported by the host.
type DiskUsage struct {
	MountPoint     string `json:"mount_point" yaml:"mount_point"`
	TotalBytes     uint64 `json:"total_bytes" yaml:"total_bytes"`
	AvailableBytes uint64 `json:"available_bytes" yaml:"available_bytes"`
}

// DiskWarning flags a filesystem low on free space.
type DiskWarning struct {
	DiskUsage   `yaml:",inline"`
	PercentFree float64 `json:"percent_free" yaml:"percent_free"`
}

// Memory holds physical and swap totals in bytes.
type Memory struct {
	Total     uint64 `json:"total" yaml:"total"`
	Used      uint64 `json:"used" yaml:"used"`
	Available uint64 `json:"available" yaml:"available"`
	SwapTotal uint64 `json:"swap_total" yaml:"swap_total"`
	SwapUsed  uint64 `json:"swap_used" yaml:"swap_used"`
}

// InterfaceRate is a network interface's throughput in bytes per second.
type InterfaceRate struct {
	Name   string `json:"name" yaml:"name"`
	RxRate uint64 `json:"rx_rate" yaml:"rx_rate"`
	TxRate uint64 `json:"tx_rate" yaml:"tx_rate"`
}

// BandwidthProcess is a process group ranked by combined network rate.
type BandwidthProcess struct {
	Pid         int32   `json:"pid" yaml:"pid"`
	Name        string  `json:"name" yaml:"name"`
	BytesPerSec float64 `json:"bytes_per_sec" yaml:"bytes_per_sec"`
}

// Network summarizes interface rates and connection counts.
type Network struct {
	Interfaces   []InterfaceRate    `json:"interfaces" yaml:"interfaces"`
	TopBandwidth []BandwidthProcess `json:"top_bandwidth" yaml:"top_bandwidth"`
	Established  uint32             `json:"established" yaml:"established"`
	TimeWait     uint32             `json:"time_wait" yaml:"time_wait"`
	CloseWait    uint32             `json:"close_wait" yaml:"close_wait"`
}

// Snapshot is the immutable result of one tick. Consumers must not mutate it.
type Snapshot struct {
	Time            time.Time                 `json:"time" yaml:"time"`
	CoreCount       int                       `json:"core_count" yaml:"core_count"`
	LoadAvg         LoadAverage               `json:"load_avg" yaml:"load_avg"`
	Sort            string                    `json:"sort" yaml:"sort"`
	Frozen          bool                      `json:"frozen" yaml:"frozen"`
	Top             []RankedGroup             `json:"top" yaml:"top"`
	DiskWarnings    []DiskWarning             `json:"disk_warnings" yaml:"disk_warnings"`
	DiskBusyPercent float64                   `json:"disk_busy_percent" yaml:"disk_busy_percent"`
	Memory          Memory                    `json:"memory" yaml:"memory"`
	Network         Network                   `json:"network" yaml:"network"`
	Fd              collector.FdInfo          `json:"fd" yaml:"fd"`
	Sockets         collector.SocketCensus    `json:"sockets" yaml:"sockets"`
	ContextSwitches collector.ContextSwitches `json:"context_switches" yaml:"context_switches"`
}
