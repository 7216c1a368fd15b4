package collector

import (
	"bufio"
	"context"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rileyhilliard/sitrep/internal/logger"
)

// DefaultProcRoot is where the kernel pseudo-filesystem is mounted.
const DefaultProcRoot = "/proc"

// TCP states as encoded in the st column of /proc/net/tcp.
const (
	tcpEstablished = 0x01
	tcpFinWait1    = 0x04
	tcpFinWait2    = 0x05
	tcpTimeWait    = 0x06
	tcpCloseWait   = 0x08
	tcpListen      = 0x0A
)

// scanMaxAge is how long one fd scan is shared between queries. It sits well
// under config.MinInterval, so every tick gets exactly one fresh scan.
const scanMaxAge = 250 * time.Millisecond

// Linux answers collector queries from procfs. The root is configurable so
// tests can point it at a fake tree.
type Linux struct {
	root string
	log  logger.Logger
	now  func() time.Time
	busy *busyTracker

	netMu     sync.Mutex
	prevIface *ifaceBytes
	netTotals map[int32]*netAccum

	scanMu   sync.Mutex
	lastScan *procScan
}

// procScan is a single pass over every <pid>/fd directory and the tcp
// tables. FdPressure, SocketCensus and ProcessNetworkBytes within one tick
// all read the same pass.
type procScan struct {
	at       time.Time
	pids     []int32
	fdCounts []ProcessCount
	owners   map[uint64]socketOwner
	tcp      []tcpEntry
}

type ifaceBytes struct {
	rx, tx uint64
}

// netAccum holds fractional byte attribution so repeated small deltas are not
// lost to rounding.
type netAccum struct {
	rx, tx float64
}

type tcpEntry struct {
	state uint8
	inode uint64
}

type socketOwner struct {
	pid  int32
	name string
}

// NewLinux creates a collector reading from the procfs mounted at root.
func NewLinux(root string, log logger.Logger) *Linux {
	if log == nil {
		log = logger.Noop()
	}
	l := &Linux{
		root:      root,
		log:       log,
		now:       time.Now,
		netTotals: make(map[int32]*netAccum),
	}
	l.busy = newBusyTracker(func() time.Time { return l.now() })
	return l
}

func (l *Linux) path(parts ...string) string {
	return filepath.Join(append([]string{l.root}, parts...)...)
}

// DiskBusyPercent reads the io_ticks column (field 13) of diskstats.
func (l *Linux) DiskBusyPercent(ctx context.Context) float64 {
	lines, err := readLines(l.path("diskstats"))
	if err != nil {
		l.log.Debug("diskstats unreadable: %v", err)
		return l.busy.update(map[string]uint64{})
	}
	return l.busy.update(parseDiskstats(lines))
}

// parseDiskstats maps whole-disk device names to their io time in ms.
func parseDiskstats(lines []string) map[string]uint64 {
	out := make(map[string]uint64)
	for _, line := range lines {
		fields := strings.Fields(line)
		if len(fields) < 14 {
			continue
		}
		name := fields[2]
		if !isWholeDisk(name) {
			continue
		}
		ioMs, err := strconv.ParseUint(fields[12], 10, 64)
		if err != nil {
			continue
		}
		out[name] = ioMs
	}
	return out
}

// isWholeDisk filters out partitions and virtual devices whose io time would
// double count or is meaningless.
func isWholeDisk(name string) bool {
	for _, prefix := range []string{"loop", "ram", "zram", "sr", "fd"} {
		if strings.HasPrefix(name, prefix) {
			return false
		}
	}
	// nvme0n1 is a disk, nvme0n1p1 a partition; same for mmcblk0p1
	if strings.HasPrefix(name, "nvme") || strings.HasPrefix(name, "mmcblk") {
		idx := strings.IndexAny(name, "0123456789")
		if idx < 0 {
			return false
		}
		return !strings.Contains(name[idx:], "p")
	}
	for _, prefix := range []string{"sd", "vd", "xvd", "hd"} {
		if strings.HasPrefix(name, prefix) {
			suffix := name[len(prefix):]
			return suffix != "" && !strings.ContainsAny(suffix, "0123456789")
		}
	}
	// dm-*, md*, and anything else unrecognized count as whole devices
	return true
}

// FdPressure reads sys/fs/file-nr and counts entries under every <pid>/fd.
func (l *Linux) FdPressure(ctx context.Context) FdInfo {
	var info FdInfo

	if data, err := os.ReadFile(l.path("sys", "fs", "file-nr")); err == nil {
		info.SystemUsed, info.SystemMax = parseFileNr(string(data))
	} else {
		l.log.Debug("file-nr unreadable: %v", err)
	}

	info.TopProcesses = topCounts(l.scan().fdCounts, TopN)
	return info
}

// scan returns the current fd scan, taking a new one when the last is older
// than scanMaxAge. The cost is O(processes x fds); unreadable fd directories
// (other users' processes without privileges) are skipped.
func (l *Linux) scan() *procScan {
	l.scanMu.Lock()
	defer l.scanMu.Unlock()

	now := l.now()
	if prev := l.lastScan; prev != nil {
		if age := now.Sub(prev.at); age >= 0 && age < scanMaxAge {
			return prev
		}
	}

	s := &procScan{
		at:     now,
		pids:   l.pids(),
		owners: make(map[uint64]socketOwner),
		tcp:    l.tcpEntries(),
	}
	for _, pid := range s.pids {
		fdDir := l.path(pidDir(pid), "fd")
		entries, err := os.ReadDir(fdDir)
		if err != nil || len(entries) == 0 {
			continue
		}
		name := l.comm(pid)
		for _, entry := range entries {
			target, err := os.Readlink(filepath.Join(fdDir, entry.Name()))
			if err != nil {
				continue
			}
			if inode, ok := parseSocketLink(target); ok {
				s.owners[inode] = socketOwner{pid: pid, name: name}
			}
		}
		s.fdCounts = append(s.fdCounts, ProcessCount{Pid: pid, Name: name, Count: uint64(len(entries))})
	}
	l.lastScan = s
	return s
}

// parseFileNr parses "allocated unused max"; used is allocated minus unused.
func parseFileNr(content string) (used, limit uint64) {
	fields := strings.Fields(content)
	if len(fields) < 3 {
		return 0, 0
	}
	allocated, _ := strconv.ParseUint(fields[0], 10, 64)
	unused, _ := strconv.ParseUint(fields[1], 10, 64)
	limit, _ = strconv.ParseUint(fields[2], 10, 64)
	if unused > allocated {
		return 0, limit
	}
	return allocated - unused, limit
}

// SocketCensus parses net/tcp and net/tcp6, then resolves socket inodes to
// their owning processes through the fd scan.
func (l *Linux) SocketCensus(ctx context.Context) SocketCensus {
	var census SocketCensus
	s := l.scan()
	entries := s.tcp
	for _, e := range entries {
		switch e.state {
		case tcpEstablished:
			census.Established++
		case tcpListen:
			census.Listen++
		case tcpTimeWait:
			census.TimeWait++
		case tcpCloseWait:
			census.CloseWait++
		case tcpFinWait1, tcpFinWait2:
			census.FinWait++
		}
	}

	owners := s.owners
	perPid := make(map[int32]*ProcessCount)
	for _, e := range entries {
		if e.state != tcpEstablished && e.state != tcpCloseWait && e.state != tcpListen {
			continue
		}
		owner, ok := owners[e.inode]
		if !ok {
			continue
		}
		pc, ok := perPid[owner.pid]
		if !ok {
			pc = &ProcessCount{Pid: owner.pid, Name: owner.name}
			perPid[owner.pid] = pc
		}
		pc.Count++
	}

	counts := make([]ProcessCount, 0, len(perPid))
	for _, pc := range perPid {
		counts = append(counts, *pc)
	}
	census.TopProcesses = topCounts(counts, TopN)
	return census
}

func (l *Linux) tcpEntries() []tcpEntry {
	var entries []tcpEntry
	for _, name := range []string{"tcp", "tcp6"} {
		lines, err := readLines(l.path("net", name))
		if err != nil {
			l.log.Debug("net/%s unreadable: %v", name, err)
			continue
		}
		entries = append(entries, parseTCP(lines)...)
	}
	return entries
}

// parseTCP reads the st (hex, field 3) and inode (field 9) columns, skipping
// the header and anything malformed.
func parseTCP(lines []string) []tcpEntry {
	var entries []tcpEntry
	for i, line := range lines {
		if i == 0 {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 10 {
			continue
		}
		st, err := strconv.ParseUint(fields[3], 16, 8)
		if err != nil {
			continue
		}
		inode, err := strconv.ParseUint(fields[9], 10, 64)
		if err != nil {
			continue
		}
		entries = append(entries, tcpEntry{state: uint8(st), inode: inode})
	}
	return entries
}

func parseSocketLink(target string) (uint64, bool) {
	if !strings.HasPrefix(target, "socket:[") || !strings.HasSuffix(target, "]") {
		return 0, false
	}
	inode, err := strconv.ParseUint(target[len("socket:["):len(target)-1], 10, 64)
	if err != nil {
		return 0, false
	}
	return inode, true
}

// ProcessNetworkBytes estimates per-process traffic. Linux has no per-process
// byte accounting without eBPF or netlink, so system-wide interface deltas
// since the last call are split across processes in proportion to their share
// of ESTABLISHED connections and accumulated into running totals. Treat the
// values as a best-effort estimate, not a measurement.
func (l *Linux) ProcessNetworkBytes(ctx context.Context) map[int32]NetBytes {
	l.netMu.Lock()
	defer l.netMu.Unlock()

	s := l.scan()
	cur, err := l.interfaceTotals()
	if err != nil {
		l.log.Debug("net/dev unreadable: %v", err)
	}

	if err == nil && l.prevIface != nil && cur.rx >= l.prevIface.rx && cur.tx >= l.prevIface.tx {
		deltaRx := float64(cur.rx - l.prevIface.rx)
		deltaTx := float64(cur.tx - l.prevIface.tx)

		established := establishedPerPid(s)
		var total int
		for _, n := range established {
			total += n
		}
		if total > 0 && (deltaRx > 0 || deltaTx > 0) {
			for pid, n := range established {
				share := float64(n) / float64(total)
				acc, ok := l.netTotals[pid]
				if !ok {
					acc = &netAccum{}
					l.netTotals[pid] = acc
				}
				acc.rx += deltaRx * share
				acc.tx += deltaTx * share
			}
		}
	}
	if err == nil {
		l.prevIface = &cur
	}

	live := make(map[int32]bool, len(s.pids))
	for _, pid := range s.pids {
		live[pid] = true
	}

	out := make(map[int32]NetBytes, len(l.netTotals))
	for pid, acc := range l.netTotals {
		if !live[pid] {
			delete(l.netTotals, pid)
			continue
		}
		out[pid] = NetBytes{Rx: uint64(acc.rx), Tx: uint64(acc.tx)}
	}
	return out
}

func establishedPerPid(s *procScan) map[int32]int {
	counts := make(map[int32]int)
	for _, e := range s.tcp {
		if e.state != tcpEstablished {
			continue
		}
		if owner, ok := s.owners[e.inode]; ok {
			counts[owner.pid]++
		}
	}
	return counts
}

// interfaceTotals sums rx/tx bytes over every non-loopback interface.
func (l *Linux) interfaceTotals() (ifaceBytes, error) {
	lines, err := readLines(l.path("net", "dev"))
	if err != nil {
		return ifaceBytes{}, err
	}
	var totals ifaceBytes
	for name, nb := range parseNetDev(lines) {
		if name == "lo" {
			continue
		}
		totals.rx += nb.Rx
		totals.tx += nb.Tx
	}
	return totals, nil
}

// parseNetDev reads "iface: rx_bytes ... (8 rx cols) tx_bytes ..." lines.
func parseNetDev(lines []string) map[string]NetBytes {
	out := make(map[string]NetBytes)
	for _, line := range lines {
		name, rest, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		fields := strings.Fields(rest)
		if len(fields) < 9 {
			continue
		}
		rx, err1 := strconv.ParseUint(fields[0], 10, 64)
		tx, err2 := strconv.ParseUint(fields[8], 10, 64)
		if err1 != nil || err2 != nil {
			continue
		}
		out[strings.TrimSpace(name)] = NetBytes{Rx: rx, Tx: tx}
	}
	return out
}

// ContextSwitches sums voluntary and nonvoluntary switches from <pid>/status.
// These are lifetime counters, matching what ps reports on darwin.
func (l *Linux) ContextSwitches(ctx context.Context) ContextSwitches {
	var info ContextSwitches
	var counts []ProcessCount
	for _, pid := range l.pids() {
		lines, err := readLines(l.path(pidDir(pid), "status"))
		if err != nil {
			continue
		}
		name, total := parseStatusSwitches(lines)
		if name == "" {
			name = strconv.Itoa(int(pid))
		}
		info.Total += total
		if total > 0 {
			counts = append(counts, ProcessCount{Pid: pid, Name: name, Count: total})
		}
	}
	info.TopProcesses = topCounts(counts, TopN)
	return info
}

func parseStatusSwitches(lines []string) (name string, total uint64) {
	for _, line := range lines {
		key, value, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		value = strings.TrimSpace(value)
		switch key {
		case "Name":
			name = value
		case "voluntary_ctxt_switches", "nonvoluntary_ctxt_switches":
			n, err := strconv.ParseUint(value, 10, 64)
			if err == nil {
				total += n
			}
		}
	}
	return name, total
}

// pids lists the numeric directories under the proc root.
func (l *Linux) pids() []int32 {
	entries, err := os.ReadDir(l.root)
	if err != nil {
		l.log.Debug("cannot list %s: %v", l.root, err)
		return nil
	}
	pids := make([]int32, 0, len(entries))
	for _, entry := range entries {
		pid, err := strconv.ParseInt(entry.Name(), 10, 32)
		if err != nil || pid <= 0 {
			continue
		}
		pids = append(pids, int32(pid))
	}
	return pids
}

// comm returns the process name, falling back to the pid.
func (l *Linux) comm(pid int32) string {
	data, err := os.ReadFile(l.path(pidDir(pid), "comm"))
	if err != nil {
		return strconv.Itoa(int(pid))
	}
	if name := strings.TrimSpace(string(data)); name != "" {
		return name
	}
	return strconv.Itoa(int(pid))
}

func pidDir(pid int32) string {
	return strconv.Itoa(int(pid))
}

func readLines(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var lines []string
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	return lines, scanner.Err()
}
