package metrics

import (
	"sort"

	"github.com/rileyhilliard/sitrep/internal/collector"
)

// Ingest groups every process under its top-level ancestor and sums the
// group's CPU, memory, disk, and network. net supplies per-process network
// counters; processes missing from it count as zero.
//
// The top-level ancestor is found by walking parent links while the parent is
// present in the table and is not init (pid 1) or the kernel (pid 0). So each
// direct child of init roots its own group, and a process whose parent can't
// be resolved is its own root.
func Ingest(samples []ProcessSample, net map[int32]collector.NetBytes) map[int32]*ProcessGroup {
	samples = append([]ProcessSample(nil), samples...)
	byPid := make(map[int32]*ProcessSample, len(samples))
	for i := range samples {
		s := &samples[i]
		if nb, ok := net[s.Pid]; ok {
			s.NetRx, s.NetTx = nb.Rx, nb.Tx
		}
		byPid[s.Pid] = s
	}

	rootOf := make(map[int32]int32, len(samples))
	var resolve func(pid int32) int32
	resolve = func(pid int32) int32 {
		if root, ok := rootOf[pid]; ok {
			return root
		}
		// Mark before walking so a parent cycle terminates here
		rootOf[pid] = pid
		s := byPid[pid]
		parent, ok := byPid[s.ParentPid]
		if s.ParentPid <= 1 || s.ParentPid == pid || !ok {
			return pid
		}
		root := resolve(parent.Pid)
		rootOf[pid] = root
		return root
	}

	groups := make(map[int32]*ProcessGroup)
	for i := range samples {
		s := samples[i]
		root := resolve(s.Pid)

		g, ok := groups[root]
		if !ok {
			g = &ProcessGroup{Pid: root, Name: byPid[root].Name}
			groups[root] = g
		}
		g.CPU += s.CPU
		g.Memory += s.Memory
		g.ReadBytes += s.ReadBytes
		g.WriteBytes += s.WriteBytes
		g.NetRx += s.NetRx
		g.NetTx += s.NetTx
		g.Children = append(g.Children, s)
		if s.Pid != root {
			g.ChildCount++
		}
	}

	for _, g := range groups {
		sort.Slice(g.Children, func(i, j int) bool {
			if g.Children[i].CPU != g.Children[j].CPU {
				return g.Children[i].CPU > g.Children[j].CPU
			}
			return g.Children[i].Pid < g.Children[j].Pid
		})
	}
	return groups
}
