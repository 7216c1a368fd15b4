package metrics

import (
	"context"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/rileyhilliard/sitrep/internal/collector"
	"github.com/rileyhilliard/sitrep/internal/logger"
)

const (
	// DefaultDiskWarnPercent flags filesystems with less free space than this.
	DefaultDiskWarnPercent = 10.0

	// minRateInterval gates interface rate computation.
	minRateInterval = 100 * time.Millisecond

	topBandwidthN = 5
)

// Options configures a Monitor. Zero values take defaults.
type Options struct {
	HistoryWindow   time.Duration
	MaxTicks        int
	TopN            int
	DiskWarnPercent float64
	Sort            SortColumn

	Now func() time.Time
	Log logger.Logger

	// OnTick, when set, receives the wall time each Tick took.
	OnTick func(time.Duration)
}

// Monitor assembles one Snapshot per tick. It owns the history window and the
// last published snapshot. Ticks are serialized by tickMu; mu guards the
// shared state and is only held for the in-memory merge, so accessors called
// from the render loop never wait on sampling.
type Monitor struct {
	host HostSource
	coll collector.Collector
	log  logger.Logger
	now  func() time.Time

	onTick func(time.Duration)

	tickMu sync.Mutex
	coreN  int

	mu       sync.Mutex
	agg      *Aggregator
	sort     SortColumn
	diskWarn float64

	prevIfaces   map[string]InterfaceCounters
	prevIfacesAt time.Time

	last *Snapshot
}

// NewMonitor creates a snapshot assembler over a host source and collector.
func NewMonitor(host HostSource, coll collector.Collector, opts Options) *Monitor {
	if coll == nil {
		coll = collector.Noop{}
	}
	if opts.Log == nil {
		opts.Log = logger.Noop()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.DiskWarnPercent <= 0 {
		opts.DiskWarnPercent = DefaultDiskWarnPercent
	}
	if opts.HistoryWindow <= 0 && opts.MaxTicks <= 0 {
		opts.HistoryWindow = 60 * time.Second
		opts.MaxTicks = 20
	}
	return &Monitor{
		host:     host,
		coll:     coll,
		log:      opts.Log,
		now:      opts.Now,
		onTick:   opts.OnTick,
		agg:      NewAggregator(opts.HistoryWindow, opts.MaxTicks, opts.TopN),
		sort:     opts.Sort,
		diskWarn: opts.DiskWarnPercent,
	}
}

// tickSample is everything one tick reads from the OS, gathered before any
// shared state is touched.
type tickSample struct {
	at       time.Time
	procs    []ProcessSample
	netBytes map[int32]collector.NetBytes
	diskBusy float64
	fd       collector.FdInfo
	sockets  collector.SocketCensus
	switches collector.ContextSwitches
	load     LoadAverage
	disks    []DiskUsage
	mem      Memory
	ifaces   []InterfaceCounters
}

// sample runs the blocking collector and host queries. Collector queries go
// first, then the process table, so per-process network bytes line up with
// the processes they belong to.
func (m *Monitor) sample(ctx context.Context) tickSample {
	var s tickSample
	s.diskBusy = m.coll.DiskBusyPercent(ctx)
	s.fd = m.coll.FdPressure(ctx)
	s.sockets = m.coll.SocketCensus(ctx)
	s.netBytes = m.coll.ProcessNetworkBytes(ctx)
	s.switches = m.coll.ContextSwitches(ctx)

	s.at = m.now()
	s.procs = m.host.Processes(ctx)
	if m.coreN == 0 {
		m.coreN = m.host.CoreCount(ctx)
	}
	s.load = m.host.Load(ctx)
	s.disks = m.host.Disks(ctx)
	s.mem = m.host.Memory(ctx)
	s.ifaces = m.host.Interfaces(ctx)
	return s
}

// Tick runs one sampling cycle and publishes a new Snapshot. Sub-queries
// degrade to zero values; Tick itself never fails.
func (m *Monitor) Tick(ctx context.Context) *Snapshot {
	start := time.Now()

	m.tickMu.Lock()
	defer m.tickMu.Unlock()

	s := m.sample(ctx)
	groups := Ingest(s.procs, s.netBytes)

	m.mu.Lock()
	if !m.agg.PushSnapshot(s.at, groups) {
		m.log.Debug("dropped out-of-order tick at %s", s.at.Format(time.RFC3339Nano))
	}
	top, frozen := m.agg.Top(m.sort)

	snap := &Snapshot{
		Time:            s.at,
		CoreCount:       m.coreN,
		LoadAvg:         s.load,
		Sort:            m.sort.String(),
		Frozen:          frozen,
		Top:             top,
		DiskWarnings:    diskWarnings(s.disks, m.diskWarn),
		DiskBusyPercent: s.diskBusy,
		Memory:          s.mem,
		Network: Network{
			Interfaces:   m.interfaceRates(s.at, s.ifaces),
			TopBandwidth: topBandwidth(m.agg.History().Entries()),
			Established:  s.sockets.Established,
			TimeWait:     s.sockets.TimeWait,
			CloseWait:    s.sockets.CloseWait,
		},
		Fd:              s.fd,
		Sockets:         s.sockets,
		ContextSwitches: s.switches,
	}
	m.last = snap
	m.mu.Unlock()

	if m.onTick != nil {
		m.onTick(time.Since(start))
	}
	return snap
}

// interfaceRates computes per-interface bytes/sec against the stored previous
// counters. Interfaces with no traffic are omitted. When less than
// minRateInterval has passed the baseline is kept and no rates are reported.
func (m *Monitor) interfaceRates(now time.Time, current []InterfaceCounters) []InterfaceRate {
	rates := []InterfaceRate{}
	if m.prevIfaces != nil {
		elapsed := now.Sub(m.prevIfacesAt)
		if elapsed < minRateInterval {
			return rates
		}
		secs := elapsed.Seconds()
		for _, cur := range current {
			prev, ok := m.prevIfaces[cur.Name]
			if !ok {
				continue
			}
			rx := uint64(float64(saturatingSub(cur.RxBytes, prev.RxBytes)) / secs)
			tx := uint64(float64(saturatingSub(cur.TxBytes, prev.TxBytes)) / secs)
			if rx > 0 || tx > 0 {
				rates = append(rates, InterfaceRate{Name: cur.Name, RxRate: rx, TxRate: tx})
			}
		}
		sort.Slice(rates, func(i, j int) bool { return rates[i].Name < rates[j].Name })
	}

	m.prevIfaces = make(map[string]InterfaceCounters, len(current))
	for _, c := range current {
		m.prevIfaces[c.Name] = c
	}
	m.prevIfacesAt = now
	return rates
}

func saturatingSub(a, b uint64) uint64 {
	if a < b {
		return 0
	}
	return a - b
}

func diskWarnings(disks []DiskUsage, threshold float64) []DiskWarning {
	warnings := []DiskWarning{}
	for _, d := range disks {
		if d.TotalBytes == 0 {
			continue
		}
		free := float64(d.AvailableBytes) / float64(d.TotalBytes) * 100
		if free < threshold {
			warnings = append(warnings, DiskWarning{DiskUsage: d, PercentFree: free})
		}
	}
	return warnings
}

// topBandwidth ranks every group in the window by combined rx+tx rate.
func topBandwidth(entries []HistoryEntry) []BandwidthProcess {
	all := Rank(entries, SortNetDown, math.MaxInt32)
	out := make([]BandwidthProcess, 0, topBandwidthN)
	for _, r := range all {
		if total := r.NetRxRate + r.NetTxRate; total > 0 {
			out = append(out, BandwidthProcess{Pid: r.Pid, Name: r.Name, BytesPerSec: total})
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].BytesPerSec != out[j].BytesPerSec {
			return out[i].BytesPerSec > out[j].BytesPerSec
		}
		return out[i].Pid < out[j].Pid
	})
	if len(out) > topBandwidthN {
		out = out[:topBandwidthN]
	}
	return out
}

// Last returns the most recently published snapshot, or nil before the first
// tick.
func (m *Monitor) Last() *Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.last
}

// Sort returns the active sort column.
func (m *Monitor) Sort() SortColumn {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sort
}

// SetSort changes the column used from the next tick on.
func (m *Monitor) SetSort(col SortColumn) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sort = col
}

// SetDiskWarnPercent changes the free-space threshold.
func (m *Monitor) SetDiskWarnPercent(pct float64) {
	if pct <= 0 {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.diskWarn = pct
}

// ToggleExpanded pins or unpins a group's children. While any group is
// pinned, rankings are frozen.
func (m *Monitor) ToggleExpanded(pid int32) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.agg.ToggleExpanded(pid)
}

// IsExpanded reports whether a group is pinned.
func (m *Monitor) IsExpanded(pid int32) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.agg.IsExpanded(pid)
}

// CollapseAll unpins every group so rankings resume.
func (m *Monitor) CollapseAll() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.agg.SetExpanded()
}
