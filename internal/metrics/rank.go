package metrics

import (
	"sort"
	"time"
)

// DefaultTopN is how many groups RankedTop keeps.
const DefaultTopN = 10

// rankAcc accumulates one pid's appearances across the window.
type rankAcc struct {
	name       string
	cpuSum     float64
	memSum     float64
	samples    int
	first      *ProcessGroup
	firstAt    time.Time
	last       *ProcessGroup
	lastAt     time.Time
	childCount int
	children   []ProcessSample
}

// Rank derives RankedTop from a window: for each pid present anywhere in it,
// CPU and memory are averaged over the entries containing that pid, and disk
// and network are the change between its earliest and latest entries divided
// by the elapsed seconds. Ordering is descending by column with ties broken by
// ascending pid, so identical windows always rank identically.
func Rank(entries []HistoryEntry, column SortColumn, n int) []RankedGroup {
	if len(entries) == 0 || n <= 0 {
		return []RankedGroup{}
	}

	accs := make(map[int32]*rankAcc)
	for _, entry := range entries {
		for pid, g := range entry.Groups {
			acc, ok := accs[pid]
			if !ok {
				acc = &rankAcc{first: g, firstAt: entry.At}
				accs[pid] = acc
			}
			acc.cpuSum += g.CPU
			acc.memSum += float64(g.Memory)
			acc.samples++
			acc.last, acc.lastAt = g, entry.At
			acc.name = g.Name
			acc.childCount = g.ChildCount
			acc.children = g.Children
		}
	}

	ranked := make([]RankedGroup, 0, len(accs))
	for pid, acc := range accs {
		r := RankedGroup{
			Pid:        pid,
			Name:       acc.name,
			CPU:        acc.cpuSum / float64(acc.samples),
			Memory:     uint64(acc.memSum / float64(acc.samples)),
			ChildCount: acc.childCount,
			Children:   acc.children,
		}
		if secs := acc.lastAt.Sub(acc.firstAt).Seconds(); secs > 0 {
			r.ReadRate = counterRate(acc.first.ReadBytes, acc.last.ReadBytes, secs)
			r.WriteRate = counterRate(acc.first.WriteBytes, acc.last.WriteBytes, secs)
			r.NetRxRate = counterRate(acc.first.NetRx, acc.last.NetRx, secs)
			r.NetTxRate = counterRate(acc.first.NetTx, acc.last.NetTx, secs)
		}
		ranked = append(ranked, r)
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		a, b := sortValue(ranked[i], column), sortValue(ranked[j], column)
		if a != b {
			return a > b
		}
		return ranked[i].Pid < ranked[j].Pid
	})

	if len(ranked) > n {
		ranked = ranked[:n]
	}
	return ranked
}

// counterRate treats a decrease (a group losing a member) as no activity.
func counterRate(first, last uint64, secs float64) float64 {
	if last <= first {
		return 0
	}
	return float64(last-first) / secs
}

func sortValue(r RankedGroup, column SortColumn) float64 {
	switch column {
	case SortMemory:
		return float64(r.Memory)
	case SortRead:
		return r.ReadRate
	case SortWrite:
		return r.WriteRate
	case SortNetDown:
		return r.NetRxRate
	case SortNetUp:
		return r.NetTxRate
	default:
		return r.CPU
	}
}

// Aggregator owns the history window and the most recent ranking.
type Aggregator struct {
	history  *HistoryWindow
	topN     int
	lastTop  []RankedGroup
	expanded map[int32]bool
}

// NewAggregator creates an aggregator with the given history bounds.
func NewAggregator(window time.Duration, maxTicks, topN int) *Aggregator {
	if topN <= 0 {
		topN = DefaultTopN
	}
	return &Aggregator{
		history:  NewHistoryWindow(window, maxTicks),
		topN:     topN,
		expanded: make(map[int32]bool),
	}
}

// PushSnapshot appends a tick's groups to the history.
func (a *Aggregator) PushSnapshot(at time.Time, groups map[int32]*ProcessGroup) bool {
	return a.history.Push(at, groups)
}

// History exposes the window for inspection.
func (a *Aggregator) History() *HistoryWindow {
	return a.history
}

// Top returns RankedTop for the column. While any pid is expanded the previous
// ranking is returned unchanged so rows under inspection don't move; frozen
// reports whether that happened.
func (a *Aggregator) Top(column SortColumn) (top []RankedGroup, frozen bool) {
	if len(a.expanded) > 0 && a.lastTop != nil {
		return a.lastTop, true
	}
	a.lastTop = Rank(a.history.Entries(), column, a.topN)
	return a.lastTop, false
}

// ToggleExpanded pins or unpins a group and reports whether it is now expanded.
func (a *Aggregator) ToggleExpanded(pid int32) bool {
	if a.expanded[pid] {
		delete(a.expanded, pid)
		return false
	}
	a.expanded[pid] = true
	return true
}

// SetExpanded replaces the set of expanded groups.
func (a *Aggregator) SetExpanded(pids ...int32) {
	a.expanded = make(map[int32]bool, len(pids))
	for _, pid := range pids {
		a.expanded[pid] = true
	}
}

// IsExpanded reports whether pid is pinned.
func (a *Aggregator) IsExpanded(pid int32) bool {
	return a.expanded[pid]
}

// Expanded lists pinned pids in ascending order.
func (a *Aggregator) Expanded() []int32 {
	pids := make([]int32, 0, len(a.expanded))
	for pid := range a.expanded {
		pids = append(pids, pid)
	}
	sort.Slice(pids, func(i, j int) bool { return pids[i] < pids[j] })
	return pids
}
