package collector

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/rileyhilliard/sitrep/internal/exec"
	"github.com/rileyhilliard/sitrep/internal/logger"
	"github.com/shirou/gopsutil/v3/disk"
)

// Darwin answers collector queries through the stock macOS utilities.
type Darwin struct {
	runner exec.Runner
	log    logger.Logger
	busy   *busyTracker

	// ioTimes returns cumulative busy milliseconds per disk.
	ioTimes func(ctx context.Context) (map[string]uint64, error)
}

// NewDarwin creates a collector that runs utilities through runner.
func NewDarwin(runner exec.Runner, log logger.Logger) *Darwin {
	if runner == nil {
		runner = exec.NewLocal()
	}
	if log == nil {
		log = logger.Noop()
	}
	return &Darwin{
		runner:  runner,
		log:     log,
		busy:    newBusyTracker(time.Now),
		ioTimes: gopsutilIOTimes,
	}
}

// gopsutilIOTimes reads IOKit disk counters. Darwin exposes no io_ticks
// equivalent, so read+write service time stands in for busy time.
func gopsutilIOTimes(ctx context.Context) (map[string]uint64, error) {
	counters, err := disk.IOCountersWithContext(ctx)
	if err != nil {
		return nil, err
	}
	out := make(map[string]uint64, len(counters))
	for name, c := range counters {
		out[name] = c.ReadTime + c.WriteTime
	}
	return out, nil
}

func (d *Darwin) run(ctx context.Context, name string, args ...string) (string, bool) {
	out, err := d.runner.Run(ctx, name, args...)
	if err != nil {
		d.log.Debug("%s %s: %v", name, strings.Join(args, " "), err)
		return "", false
	}
	return string(out), true
}

// DiskBusyPercent derives busy time from per-disk service time counters.
func (d *Darwin) DiskBusyPercent(ctx context.Context) float64 {
	times, err := d.ioTimes(ctx)
	if err != nil {
		d.log.Debug("disk io counters: %v", err)
		times = map[string]uint64{}
	}
	return d.busy.update(times)
}

// FdPressure uses sysctl for system totals and lsof for per-process counts.
func (d *Darwin) FdPressure(ctx context.Context) FdInfo {
	var info FdInfo
	if out, ok := d.run(ctx, "sysctl", "kern.num_files"); ok {
		info.SystemUsed = parseSysctlValue(out)
	}
	if out, ok := d.run(ctx, "sysctl", "kern.maxfiles"); ok {
		info.SystemMax = parseSysctlValue(out)
	}
	if out, ok := d.run(ctx, "lsof", "-n", "-P"); ok {
		info.TopProcesses = topCounts(countLsofByProcess(out, nil), TopN)
	}
	return info
}

// parseSysctlValue parses "kern.maxfiles: 122880".
func parseSysctlValue(output string) uint64 {
	_, value, ok := strings.Cut(output, ":")
	if !ok {
		value = output
	}
	n, err := strconv.ParseUint(strings.TrimSpace(value), 10, 64)
	if err != nil {
		return 0
	}
	return n
}

// countLsofByProcess groups lsof rows (COMMAND PID USER ...) by pid. When
// keep is non-nil only rows it accepts are counted.
func countLsofByProcess(output string, keep func(line string) bool) []ProcessCount {
	perPid := make(map[int32]*ProcessCount)
	for i, line := range strings.Split(output, "\n") {
		if i == 0 {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 2 {
			continue
		}
		if keep != nil && !keep(line) {
			continue
		}
		pid, err := strconv.ParseInt(fields[1], 10, 32)
		if err != nil {
			continue
		}
		pc, ok := perPid[int32(pid)]
		if !ok {
			pc = &ProcessCount{Pid: int32(pid), Name: fields[0]}
			perPid[int32(pid)] = pc
		}
		pc.Count++
	}
	counts := make([]ProcessCount, 0, len(perPid))
	for _, pc := range perPid {
		counts = append(counts, *pc)
	}
	return counts
}

// SocketCensus counts states from netstat and ranks owners from lsof -i.
func (d *Darwin) SocketCensus(ctx context.Context) SocketCensus {
	var census SocketCensus
	if out, ok := d.run(ctx, "netstat", "-an", "-p", "tcp"); ok {
		census = parseNetstatStates(out)
	}
	if out, ok := d.run(ctx, "lsof", "-i", "-n", "-P"); ok {
		census.TopProcesses = topCounts(countLsofByProcess(out, isRelevantSocketLine), TopN)
	}
	return census
}

func isRelevantSocketLine(line string) bool {
	return strings.Contains(line, "ESTABLISHED") ||
		strings.Contains(line, "CLOSE_WAIT") ||
		strings.Contains(line, "LISTEN")
}

func parseNetstatStates(output string) SocketCensus {
	var census SocketCensus
	for _, line := range strings.Split(output, "\n") {
		switch {
		case strings.Contains(line, "ESTABLISHED"):
			census.Established++
		case strings.Contains(line, "LISTEN"):
			census.Listen++
		case strings.Contains(line, "TIME_WAIT"):
			census.TimeWait++
		case strings.Contains(line, "CLOSE_WAIT"):
			census.CloseWait++
		case strings.Contains(line, "FIN_WAIT"):
			census.FinWait++
		}
	}
	return census
}

// ProcessNetworkBytes reads nettop's native per-process accounting.
func (d *Darwin) ProcessNetworkBytes(ctx context.Context) map[int32]NetBytes {
	out, ok := d.run(ctx, "nettop", "-P", "-L", "1")
	if !ok {
		return map[int32]NetBytes{}
	}
	return parseNettop(out)
}

// parseNettop reads CSV rows whose second column is "name.pid" and whose
// fifth and sixth columns are bytes in and out.
func parseNettop(output string) map[int32]NetBytes {
	stats := make(map[int32]NetBytes)
	for i, line := range strings.Split(output, "\n") {
		if i == 0 {
			continue
		}
		parts := strings.Split(line, ",")
		if len(parts) < 6 {
			continue
		}
		namePid := parts[1]
		dot := strings.LastIndex(namePid, ".")
		if dot < 0 {
			continue
		}
		pid, err := strconv.ParseInt(namePid[dot+1:], 10, 32)
		if err != nil {
			continue
		}
		in, _ := strconv.ParseUint(strings.TrimSpace(parts[4]), 10, 64)
		out, _ := strconv.ParseUint(strings.TrimSpace(parts[5]), 10, 64)
		stats[int32(pid)] = NetBytes{Rx: in, Tx: out}
	}
	return stats
}

// ContextSwitches parses `ps -Acro comm,nivcsw`; names may contain spaces so
// the count is always the last column.
func (d *Darwin) ContextSwitches(ctx context.Context) ContextSwitches {
	var info ContextSwitches
	out, ok := d.run(ctx, "ps", "-Acro", "comm,nivcsw")
	if !ok {
		return info
	}
	info.Total, info.TopProcesses = parsePsSwitches(out)
	return info
}

func parsePsSwitches(output string) (uint64, []ProcessCount) {
	var total uint64
	var counts []ProcessCount
	for i, line := range strings.Split(output, "\n") {
		if i == 0 {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 2 {
			continue
		}
		n, err := strconv.ParseUint(fields[len(fields)-1], 10, 64)
		if err != nil {
			continue
		}
		total += n
		if n > 0 {
			counts = append(counts, ProcessCount{Name: strings.Join(fields[:len(fields)-1], " "), Count: n})
		}
	}
	return total, topCounts(counts, TopN)
}
