package collector

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeProc builds a minimal procfs tree under a temp dir.
type fakeProc struct {
	t    *testing.T
	root string
}

func newFakeProc(t *testing.T) *fakeProc {
	return &fakeProc{t: t, root: t.TempDir()}
}

func (f *fakeProc) write(rel, content string) {
	f.t.Helper()
	path := filepath.Join(f.root, rel)
	require.NoError(f.t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(f.t, os.WriteFile(path, []byte(content), 0644))
}

// process creates <pid>/comm and an fd dir whose entries link to the given
// targets, e.g. "socket:[1001]" or "/dev/null".
func (f *fakeProc) process(pid int, name string, fdTargets ...string) {
	f.t.Helper()
	f.write(fmt.Sprintf("%d/comm", pid), name+"\n")
	fdDir := filepath.Join(f.root, fmt.Sprintf("%d", pid), "fd")
	require.NoError(f.t, os.MkdirAll(fdDir, 0755))
	for i, target := range fdTargets {
		require.NoError(f.t, os.Symlink(target, filepath.Join(fdDir, fmt.Sprintf("%d", i))))
	}
}

// clock is a manually advanced time source.
type clock struct{ t time.Time }

func (c *clock) now() time.Time          { return c.t }
func (c *clock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newClock() *clock { return &clock{t: time.Unix(1700000000, 0)} }

const tcpHeader = "  sl  local_address rem_address   st tx_queue rx_queue tr tm->when retrnsmt   uid  timeout inode\n"

func tcpLine(sl int, state string, inode int) string {
	return fmt.Sprintf("   %d: 0100007F:1F90 00000000:0000 %s 00000000:00000000 00:00000000 00000000  1000        0 %d 1 0000000000000000 100 0 0 10 0\n", sl, state, inode)
}

func diskstatsLine(name string, ioMs int) string {
	return fmt.Sprintf("   8       0 %s 100 0 800 50 200 0 1600 90 0 %d 140 0 0 0 0\n", name, ioMs)
}

func TestLinux_DiskBusyPercent(t *testing.T) {
	fp := newFakeProc(t)
	clk := newClock()
	c := NewLinux(fp.root, nil)
	c.now = clk.now

	fp.write("diskstats", diskstatsLine("sda", 1000)+diskstatsLine("sda1", 1000)+diskstatsLine("nvme0n1", 5000))

	// First call has no prior state
	assert.Equal(t, 0.0, c.DiskBusyPercent(context.Background()))

	// 1000ms elapsed; sda did 250ms of io, nvme0n1 did 400ms -> max is 40%
	clk.advance(time.Second)
	fp.write("diskstats", diskstatsLine("sda", 1250)+diskstatsLine("sda1", 9999)+diskstatsLine("nvme0n1", 5400))
	assert.InDelta(t, 40.0, c.DiskBusyPercent(context.Background()), 0.001)

	// More io time than wall time clamps to 100
	clk.advance(500 * time.Millisecond)
	fp.write("diskstats", diskstatsLine("sda", 3250)+diskstatsLine("nvme0n1", 5400))
	assert.Equal(t, 100.0, c.DiskBusyPercent(context.Background()))
}

func TestLinux_DiskBusyPercent_Unreadable(t *testing.T) {
	c := NewLinux(filepath.Join(t.TempDir(), "missing"), nil)
	assert.Equal(t, 0.0, c.DiskBusyPercent(context.Background()))
	assert.Equal(t, 0.0, c.DiskBusyPercent(context.Background()))
}

func TestBusyTracker(t *testing.T) {
	clk := newClock()
	b := newBusyTracker(clk.now)

	assert.Equal(t, 0.0, b.update(map[string]uint64{"sda": 100}))

	clk.advance(2 * time.Second)
	// 500 ticks over 2000ms = 25%
	assert.InDelta(t, 25.0, b.update(map[string]uint64{"sda": 600}), 0.001)

	clk.advance(time.Second)
	// Counter went backwards (device reset): ignored
	assert.Equal(t, 0.0, b.update(map[string]uint64{"sda": 10}))

	// No time elapsed
	assert.Equal(t, 0.0, b.update(map[string]uint64{"sda": 500}))
}

func TestIsWholeDisk(t *testing.T) {
	tests := []struct {
		name string
		want bool
	}{
		{"sda", true},
		{"sda1", false},
		{"vdb", true},
		{"xvda2", false},
		{"nvme0n1", true},
		{"nvme0n1p1", false},
		{"mmcblk0", true},
		{"mmcblk0p2", false},
		{"loop0", false},
		{"ram0", false},
		{"dm-0", true},
		{"md127", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, isWholeDisk(tt.name))
		})
	}
}

func TestParseDiskstats_SkipsMalformed(t *testing.T) {
	lines := []string{
		"   8 0 sda 1 2 3",
		"   8 0 sdb 100 0 800 50 200 0 1600 90 0 notanumber 140",
		diskstatsLine("sdc", 77),
	}
	assert.Equal(t, map[string]uint64{"sdc": 77}, parseDiskstats(lines))
}

func TestParseFileNr(t *testing.T) {
	tests := []struct {
		name     string
		content  string
		wantUsed uint64
		wantMax  uint64
	}{
		{"normal", "9344\t0\t9223372036854775807\n", 9344, 9223372036854775807},
		{"with unused", "3000 500 100000", 2500, 100000},
		{"too few fields", "3000 500", 0, 0},
		{"unused exceeds allocated", "10 20 300", 0, 300},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			used, limit := parseFileNr(tt.content)
			assert.Equal(t, tt.wantUsed, used)
			assert.Equal(t, tt.wantMax, limit)
		})
	}
}

func TestLinux_FdPressure(t *testing.T) {
	fp := newFakeProc(t)
	fp.write("sys/fs/file-nr", "4096 96 65536\n")
	fp.process(1, "init", "/dev/null")
	fp.process(42, "postgres", "/dev/null", "/dev/null", "socket:[1]", "socket:[2]")
	fp.process(77, "nginx", "/dev/null", "/dev/null")
	fp.process(90, "idle")

	info := NewLinux(fp.root, nil).FdPressure(context.Background())

	assert.Equal(t, uint64(4000), info.SystemUsed)
	assert.Equal(t, uint64(65536), info.SystemMax)
	require.Len(t, info.TopProcesses, 3, "processes with no fds are skipped")
	assert.Equal(t, ProcessCount{Pid: 42, Name: "postgres", Count: 4}, info.TopProcesses[0])
	assert.Equal(t, ProcessCount{Pid: 77, Name: "nginx", Count: 2}, info.TopProcesses[1])
	assert.Equal(t, ProcessCount{Pid: 1, Name: "init", Count: 1}, info.TopProcesses[2])
}

func TestLinux_FdPressure_TopFive(t *testing.T) {
	fp := newFakeProc(t)
	for pid := 1; pid <= 8; pid++ {
		targets := make([]string, pid)
		for i := range targets {
			targets[i] = "/dev/null"
		}
		fp.process(pid, fmt.Sprintf("p%d", pid), targets...)
	}

	info := NewLinux(fp.root, nil).FdPressure(context.Background())
	require.Len(t, info.TopProcesses, TopN)
	assert.Equal(t, int32(8), info.TopProcesses[0].Pid)
	assert.Equal(t, int32(4), info.TopProcesses[4].Pid)
}

func TestParseTCP(t *testing.T) {
	lines := []string{
		tcpHeader,
		tcpLine(0, "0A", 1001),
		tcpLine(1, "01", 1002),
		"   2: garbage",
		tcpLine(3, "ZZ", 1003),
	}
	entries := parseTCP(lines)
	assert.Equal(t, []tcpEntry{{state: tcpListen, inode: 1001}, {state: tcpEstablished, inode: 1002}}, entries)
}

func TestParseSocketLink(t *testing.T) {
	inode, ok := parseSocketLink("socket:[12345]")
	assert.True(t, ok)
	assert.Equal(t, uint64(12345), inode)

	for _, bad := range []string{"/dev/null", "pipe:[123]", "socket:[abc]", "socket:[12"} {
		_, ok := parseSocketLink(bad)
		assert.False(t, ok, bad)
	}
}

func TestLinux_SocketCensus(t *testing.T) {
	fp := newFakeProc(t)
	fp.write("net/tcp", tcpHeader+
		tcpLine(0, "0A", 1001)+ // nginx listen
		tcpLine(1, "01", 1002)+ // nginx established
		tcpLine(2, "01", 1003)+ // nginx established
		tcpLine(3, "08", 2001)+ // app close_wait
		tcpLine(4, "06", 0)+ // time_wait, no owner
		tcpLine(5, "04", 2002)+ // app fin_wait1 (not a relevant state for ranking)
		tcpLine(6, "05", 0))
	fp.write("net/tcp6", tcpHeader+tcpLine(0, "01", 2003))
	fp.process(10, "nginx", "socket:[1001]", "socket:[1002]", "socket:[1003]", "/dev/null")
	fp.process(20, "app", "socket:[2001]", "socket:[2002]", "socket:[2003]")

	census := NewLinux(fp.root, nil).SocketCensus(context.Background())

	assert.Equal(t, uint32(3), census.Established)
	assert.Equal(t, uint32(1), census.Listen)
	assert.Equal(t, uint32(1), census.TimeWait)
	assert.Equal(t, uint32(1), census.CloseWait)
	assert.Equal(t, uint32(2), census.FinWait)

	require.Len(t, census.TopProcesses, 2)
	assert.Equal(t, ProcessCount{Pid: 10, Name: "nginx", Count: 3}, census.TopProcesses[0])
	assert.Equal(t, ProcessCount{Pid: 20, Name: "app", Count: 2}, census.TopProcesses[1])
}

func TestLinux_SocketCensus_MissingFiles(t *testing.T) {
	census := NewLinux(t.TempDir(), nil).SocketCensus(context.Background())
	assert.Equal(t, SocketCensus{}, census)
}

func netDev(rx, tx uint64) string {
	return "Inter-|   Receive                                                |  Transmit\n" +
		" face |bytes    packets errs drop fifo frame compressed multicast|bytes    packets errs drop fifo colls carrier compressed\n" +
		"    lo: 999999 10 0 0 0 0 0 0 999999 10 0 0 0 0 0 0\n" +
		fmt.Sprintf("  eth0: %d 10 0 0 0 0 0 0 %d 10 0 0 0 0 0 0\n", rx, tx)
}

func TestParseNetDev(t *testing.T) {
	lines := []string{
		"Inter-|   Receive",
		" face |bytes    packets",
		"  eth0: 100 1 0 0 0 0 0 0 200 2 0 0 0 0 0 0",
		"  wlan0: 5 1 0 0 0 0 0 0 7 2 0 0 0 0 0 0",
		"  bad: 1 2 3",
	}
	assert.Equal(t, map[string]NetBytes{
		"eth0":  {Rx: 100, Tx: 200},
		"wlan0": {Rx: 5, Tx: 7},
	}, parseNetDev(lines))
}

func TestLinux_ProcessNetworkBytes(t *testing.T) {
	fp := newFakeProc(t)
	fp.write("net/tcp", tcpHeader+
		tcpLine(0, "01", 1001)+
		tcpLine(1, "01", 1002)+
		tcpLine(2, "01", 1003)+
		tcpLine(3, "0A", 2001))
	fp.process(10, "web", "socket:[1001]", "socket:[1002]", "socket:[1003]")
	fp.process(20, "db", "socket:[2001]")
	fp.write("net/dev", netDev(1000, 500))

	clk := newClock()
	c := NewLinux(fp.root, nil)
	c.now = clk.now

	// First call only records the interface baseline
	first := c.ProcessNetworkBytes(context.Background())
	assert.Empty(t, first)

	// 3000 rx / 600 tx bytes since; only web holds ESTABLISHED sockets
	clk.advance(time.Second)
	fp.write("net/dev", netDev(4000, 1100))
	second := c.ProcessNetworkBytes(context.Background())
	assert.Equal(t, NetBytes{Rx: 3000, Tx: 600}, second[10])
	_, hasDB := second[20]
	assert.False(t, hasDB, "listen-only processes get no share")

	// db picks up an established connection: 1 of 4 connections
	fp.write("net/tcp", tcpHeader+
		tcpLine(0, "01", 1001)+
		tcpLine(1, "01", 1002)+
		tcpLine(2, "01", 1003)+
		tcpLine(3, "01", 2001))
	fp.write("net/dev", netDev(8000, 1500))
	clk.advance(time.Second)
	third := c.ProcessNetworkBytes(context.Background())
	assert.Equal(t, NetBytes{Rx: 6000, Tx: 900}, third[10])
	assert.Equal(t, NetBytes{Rx: 1000, Tx: 100}, third[20])

	// Totals are monotonic
	assert.GreaterOrEqual(t, third[10].Rx, second[10].Rx)
}

func TestLinux_ProcessNetworkBytes_PrunesDeadProcesses(t *testing.T) {
	fp := newFakeProc(t)
	fp.write("net/tcp", tcpHeader+tcpLine(0, "01", 1001))
	fp.process(10, "web", "socket:[1001]")
	fp.write("net/dev", netDev(0, 0))

	clk := newClock()
	c := NewLinux(fp.root, nil)
	c.now = clk.now
	c.ProcessNetworkBytes(context.Background())

	clk.advance(time.Second)
	fp.write("net/dev", netDev(100, 100))
	require.Contains(t, c.ProcessNetworkBytes(context.Background()), int32(10))

	require.NoError(t, os.RemoveAll(filepath.Join(fp.root, "10")))
	fp.write("net/dev", netDev(200, 200))
	clk.advance(time.Second)
	assert.NotContains(t, c.ProcessNetworkBytes(context.Background()), int32(10))
	assert.Empty(t, c.netTotals)
}

func TestLinux_ProcessNetworkBytes_CounterReset(t *testing.T) {
	fp := newFakeProc(t)
	fp.write("net/tcp", tcpHeader+tcpLine(0, "01", 1001))
	fp.process(10, "web", "socket:[1001]")

	clk := newClock()
	c := NewLinux(fp.root, nil)
	c.now = clk.now
	fp.write("net/dev", netDev(5000, 5000))
	c.ProcessNetworkBytes(context.Background())

	// Interface counters went backwards: no attribution, new baseline
	clk.advance(time.Second)
	fp.write("net/dev", netDev(100, 100))
	assert.Empty(t, c.ProcessNetworkBytes(context.Background()))

	clk.advance(time.Second)
	fp.write("net/dev", netDev(300, 150))
	assert.Equal(t, NetBytes{Rx: 200, Tx: 50}, c.ProcessNetworkBytes(context.Background())[10])
}

func TestLinux_OneScanPerTick(t *testing.T) {
	fp := newFakeProc(t)
	fp.write("net/tcp", tcpHeader+tcpLine(0, "01", 1001)+tcpLine(1, "0A", 2001))
	fp.process(10, "web", "socket:[1001]")
	fp.process(20, "db", "socket:[2001]")
	fp.write("net/dev", netDev(0, 0))

	clk := newClock()
	c := NewLinux(fp.root, nil)
	c.now = clk.now
	c.ProcessNetworkBytes(context.Background())

	// One tick: the census runs, then the tables and processes change under
	// it before attribution. Every query must still see the census's view.
	clk.advance(time.Second)
	census := c.SocketCensus(context.Background())
	fp.write("net/tcp", tcpHeader+tcpLine(0, "01", 1001)+tcpLine(1, "01", 2001))
	fp.process(30, "late", "/dev/null", "/dev/null", "/dev/null")
	fp.write("net/dev", netDev(1000, 100))
	clk.advance(10 * time.Millisecond)

	net := c.ProcessNetworkBytes(context.Background())
	fd := c.FdPressure(context.Background())

	assert.Equal(t, uint32(1), census.Established)
	assert.Equal(t, NetBytes{Rx: 1000, Tx: 100}, net[10], "attribution follows the census's single established socket")
	assert.NotContains(t, net, int32(20))
	for _, pc := range fd.TopProcesses {
		assert.NotEqual(t, int32(30), pc.Pid, "fd counts come from the same scan")
	}

	// Next tick rescans and sees the new state
	clk.advance(time.Second)
	census = c.SocketCensus(context.Background())
	assert.Equal(t, uint32(2), census.Established)
	fd = c.FdPressure(context.Background())
	require.NotEmpty(t, fd.TopProcesses)
	assert.Equal(t, ProcessCount{Pid: 30, Name: "late", Count: 3}, fd.TopProcesses[0])
}

func TestLinux_ContextSwitches(t *testing.T) {
	fp := newFakeProc(t)
	fp.write("1/status", "Name:\tinit\nState:\tS (sleeping)\nvoluntary_ctxt_switches:\t100\nnonvoluntary_ctxt_switches:\t5\n")
	fp.write("2/status", "Name:\tkworker\nvoluntary_ctxt_switches:\t9000\nnonvoluntary_ctxt_switches:\t1000\n")
	fp.write("3/status", "Name:\tquiet\nvoluntary_ctxt_switches:\t0\nnonvoluntary_ctxt_switches:\t0\n")
	fp.write("4/status", "Name:\tbroken\nvoluntary_ctxt_switches:\tlots\n")

	info := NewLinux(fp.root, nil).ContextSwitches(context.Background())

	assert.Equal(t, uint64(10105), info.Total)
	require.Len(t, info.TopProcesses, 2)
	assert.Equal(t, "kworker", info.TopProcesses[0].Name)
	assert.Equal(t, uint64(10000), info.TopProcesses[0].Count)
	assert.Equal(t, "init", info.TopProcesses[1].Name)
}

func TestLinux_PidsIgnoresNonNumeric(t *testing.T) {
	fp := newFakeProc(t)
	fp.process(5, "five")
	fp.write("self/comm", "self")
	fp.write("net/dev", "")
	fp.write("0/comm", "zero")

	assert.Equal(t, []int32{5}, NewLinux(fp.root, nil).pids())
}
