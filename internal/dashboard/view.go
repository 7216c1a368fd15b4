package dashboard

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/rileyhilliard/sitrep/internal/logstream"
	"github.com/rileyhilliard/sitrep/internal/metrics"
	"github.com/rileyhilliard/sitrep/internal/swarm"
	"github.com/rileyhilliard/sitrep/internal/util"
)

// chromeHeight is the number of lines taken by header, tabs, status, and footer.
const chromeHeight = 6

func (m Model) viewWidth() int {
	if m.width <= 0 {
		return defaultWidth
	}
	return m.width
}

func (m Model) renderDashboard() string {
	var b strings.Builder
	b.WriteString(m.renderHeader())
	b.WriteString("\n")
	b.WriteString(m.renderTabs())
	b.WriteString("\n\n")

	switch m.tab {
	case TabSystem:
		b.WriteString(m.renderSystem())
	case TabContainers:
		b.WriteString(m.renderContainers())
	case TabContainerLogs, TabSwarmServiceLogs:
		b.WriteString(m.renderLogs())
	case TabSwarm:
		b.WriteString(m.renderSwarm())
	case TabSwarmServiceTasks:
		b.WriteString(m.renderServiceTasks())
	}

	b.WriteString("\n")
	b.WriteString(m.renderStatusBar())
	b.WriteString("\n")
	b.WriteString(m.renderFooter())
	return b.String()
}

func (m Model) renderHeader() string {
	var updateText string
	switch n := m.SecondsSinceUpdate(); {
	case m.lastUpdate.IsZero():
		updateText = "sampling..."
	case n == 0:
		updateText = "just now"
	default:
		updateText = fmt.Sprintf("%ds ago", n)
	}

	title := lipgloss.NewStyle().Foreground(ColorAccent).Bold(true).Render("sitrep")
	stats := LabelStyle.Render(fmt.Sprintf(" | every %s | updated %s", m.interval, updateText))
	return HeaderStyle.Render(title + stats)
}

func (m Model) renderTabs() string {
	var parts []string
	for i, t := range m.topTabs() {
		label := fmt.Sprintf("%d %s", i+1, t)
		if t == m.tab.Parent() {
			parts = append(parts, ActiveTabStyle.Render(label))
		} else {
			parts = append(parts, TabStyle.Render(label))
		}
	}
	if m.tab != m.tab.Parent() {
		parts = append(parts, MutedStyle.Render("› "+m.tab.String()))
	}
	return lipgloss.JoinHorizontal(lipgloss.Top, parts...)
}

// renderStatusBar shows, in priority order, a pending confirmation or the
// active executor's status.
func (m Model) renderStatusBar() string {
	if prompt := m.ConfirmPrompt(); prompt != "" {
		return ConfirmStyle.Render(prompt)
	}

	var status string
	var busy bool
	switch {
	case m.tab.Parent() == TabContainers && m.containers != nil:
		status, busy = m.containers.Actions().Status(), m.containers.Actions().InFlight()
	case m.tab.Parent() == TabSwarm && m.swarm != nil:
		status, busy = m.swarm.Actions().Status(), m.swarm.Actions().InFlight()
	}
	if status == "" {
		return ""
	}
	if busy {
		status = m.spinner.View() + " " + status
	}
	if strings.HasPrefix(status, "Error:") {
		return CriticalStyle.Padding(0, 1).Render(status)
	}
	return StatusBarStyle.Render(status)
}

func (m Model) renderFooter() string {
	var hints []string
	switch m.tab {
	case TabSystem:
		hints = []string{"s sort", "enter expand", "c collapse"}
	case TabContainers:
		hints = []string{"s start", "x stop", "R restart", "l logs"}
	case TabContainerLogs, TabSwarmServiceLogs:
		if m.searching {
			return FooterStyle.Render("search: " + m.searchInput + "█  (enter apply, esc clear)")
		}
		hints = []string{"↑↓ scroll", "G follow", "e errors", "/ search", "esc back"}
	case TabSwarm:
		hints = []string{"enter open", "R rolling restart", "+/- scale", "l logs"}
	case TabSwarmServiceTasks:
		hints = []string{"R rolling restart", "+/- scale", "l logs", "esc back"}
	}
	hints = append(hints, "tab switch", "? help", "q quit")
	return FooterStyle.Render(strings.Join(hints, " | "))
}

// System tab

func (m Model) renderSystem() string {
	if m.snap == nil {
		return LabelStyle.Render("Collecting first sample...")
	}
	s := m.snap
	width := m.viewWidth()

	var sections []string
	sections = append(sections, Section("Load", fmt.Sprintf("%d cores", s.CoreCount), m.loadLines(width), width))
	sections = append(sections, Section("Memory & Disk", fmt.Sprintf("busy %.0f%%", s.DiskBusyPercent), m.memoryDiskLines(), width))
	sections = append(sections, Section("Network", fmt.Sprintf("%d established", s.Network.Established), networkLines(s), width))
	sections = append(sections, Section("Descriptors & Scheduler", fdValue(s), fdLines(s), width))

	sortLabel := s.Sort
	if s.Frozen {
		sortLabel += " (frozen)"
	}
	sections = append(sections, Section("Processes", "sort: "+sortLabel, m.processLines(width), width))
	return strings.Join(sections, "\n")
}

func (m Model) loadLines(width int) []string {
	s := m.snap
	cores := float64(max(s.CoreCount, 1))
	line := fmt.Sprintf("%s %.2f  %s %.2f  %s %.2f",
		LabelStyle.Render("1m"), s.LoadAvg.One,
		LabelStyle.Render("5m"), s.LoadAvg.Five,
		LabelStyle.Render("15m"), s.LoadAvg.Fifteen)

	pct := s.LoadAvg.One / cores * 100
	spark := RenderSparkline(m.loadHistory, max(width-50, 10))
	return []string{line + "  " + RenderBar(pct, 20) + " " + util.Percent(pct), spark}
}

func (m Model) memoryDiskLines() []string {
	mem := m.snap.Memory
	var memPct, swapPct float64
	if mem.Total > 0 {
		memPct = float64(mem.Used) / float64(mem.Total) * 100
	}
	if mem.SwapTotal > 0 {
		swapPct = float64(mem.SwapUsed) / float64(mem.SwapTotal) * 100
	}

	lines := []string{
		fmt.Sprintf("%s %s / %s  %s  %s %s / %s",
			LabelStyle.Render("RAM"), util.Bytes(mem.Used), util.Bytes(mem.Total), RenderBar(memPct, 20),
			LabelStyle.Render("Swap"), util.Bytes(mem.SwapUsed), util.Bytes(mem.SwapTotal)),
	}
	if swapPct >= WarningThreshold {
		lines = append(lines, WarningStyle.Render(fmt.Sprintf("Swap %.0f%% used", swapPct)))
	}
	if len(m.snap.DiskWarnings) == 0 {
		lines = append(lines, HealthyStyle.Render("All filesystems have enough free space"))
	}
	for _, w := range m.snap.DiskWarnings {
		lines = append(lines, WarningStyle.Render(fmt.Sprintf("LOW DISK %s: %.1f%% free (%s of %s)",
			w.MountPoint, w.PercentFree, util.Bytes(w.AvailableBytes), util.Bytes(w.TotalBytes))))
	}
	return lines
}

func networkLines(s *metrics.Snapshot) []string {
	var lines []string
	for _, iface := range s.Network.Interfaces {
		lines = append(lines, fmt.Sprintf("%-12s ↓ %-12s ↑ %s",
			iface.Name, util.Rate(float64(iface.RxRate)), util.Rate(float64(iface.TxRate))))
	}
	if len(lines) == 0 {
		lines = append(lines, MutedStyle.Render("No interface traffic"))
	}
	lines = append(lines, fmt.Sprintf("%s %d  %s %d  %s %d  %s %d",
		LabelStyle.Render("ESTAB"), s.Sockets.Established,
		LabelStyle.Render("LISTEN"), s.Sockets.Listen,
		LabelStyle.Render("TIME_WAIT"), s.Sockets.TimeWait,
		LabelStyle.Render("CLOSE_WAIT"), s.Sockets.CloseWait))
	if s.Sockets.CloseWait > 0 && len(s.Sockets.TopProcesses) > 0 {
		lines = append(lines, WarningStyle.Render("Sockets in CLOSE_WAIT usually mean a process isn't closing connections"))
	}
	for _, p := range s.Network.TopBandwidth {
		lines = append(lines, fmt.Sprintf("  %-7d %-20s %s", p.Pid, util.Truncate(p.Name, 20), util.Rate(p.BytesPerSec)))
	}
	return lines
}

func fdValue(s *metrics.Snapshot) string {
	if s.Fd.SystemMax == 0 {
		return fmt.Sprintf("%s fds", util.Count(s.Fd.SystemUsed))
	}
	return fmt.Sprintf("%s / %s fds", util.Count(s.Fd.SystemUsed), util.Count(s.Fd.SystemMax))
}

func fdLines(s *metrics.Snapshot) []string {
	var lines []string
	if s.Fd.SystemMax > 0 {
		pct := float64(s.Fd.SystemUsed) / float64(s.Fd.SystemMax) * 100
		lines = append(lines, LabelStyle.Render("descriptors ")+RenderBar(pct, 20)+" "+util.Percent(pct))
	}
	var top []string
	for _, p := range s.Fd.TopProcesses {
		top = append(top, fmt.Sprintf("%s %s", p.Name, util.Count(p.Count)))
	}
	lines = append(lines, LabelStyle.Render("top fds ")+util.JoinOrNone(top))

	var sw []string
	for _, p := range s.ContextSwitches.TopProcesses {
		sw = append(sw, fmt.Sprintf("%s %s", p.Name, util.Count(p.Count)))
	}
	lines = append(lines, LabelStyle.Render("context switches ")+util.Count(s.ContextSwitches.Total)+
		MutedStyle.Render("  "+util.JoinOrNone(sw)))
	return lines
}

type procColumn struct {
	title string
	sort  metrics.SortColumn
	width int
}

var procColumns = []procColumn{
	{"CPU%", metrics.SortCPU, 7},
	{"MEM", metrics.SortMemory, 10},
	{"READ/s", metrics.SortRead, 11},
	{"WRITE/s", metrics.SortWrite, 11},
	{"DOWN/s", metrics.SortNetDown, 11},
	{"UP/s", metrics.SortNetUp, 11},
}

func (m Model) processLines(width int) []string {
	nameWidth := max(width-4-8-8-sumColumnWidths()-len(procColumns), 10)
	sortCol := m.system.Sort()

	header := fmt.Sprintf("%-7s %s", "PID", util.PadRight("NAME", nameWidth))
	for _, c := range procColumns {
		title := c.title
		if c.sort == sortCol {
			title = "▼" + title
		}
		header += " " + fmt.Sprintf("%*s", c.width, title)
	}
	header += fmt.Sprintf(" %6s", "KIDS")
	lines := []string{LabelStyle.Render(header)}

	for i, g := range m.snap.Top {
		marker := " "
		if len(g.Children) > 0 {
			marker = "▸"
			if m.system.IsExpanded(g.Pid) {
				marker = "▾"
			}
		}
		row := fmt.Sprintf("%s%-6d %s %7.1f %10s %11s %11s %11s %11s %6d",
			marker, g.Pid, util.PadRight(g.Name, nameWidth), g.CPU,
			util.Bytes(g.Memory), util.Rate(g.ReadRate), util.Rate(g.WriteRate),
			util.Rate(g.NetRxRate), util.Rate(g.NetTxRate), g.ChildCount)
		if i == m.procCursor {
			row = SelectedRowStyle.Render(row)
		}
		lines = append(lines, row)

		if m.system.IsExpanded(g.Pid) {
			for _, c := range g.Children {
				lines = append(lines, MutedStyle.Render(fmt.Sprintf("  └ %-6d %s %7.1f %10s",
					c.Pid, util.PadRight(c.Name, nameWidth-2), c.CPU, util.Bytes(c.Memory))))
			}
		}
	}
	if len(m.snap.Top) == 0 {
		lines = append(lines, MutedStyle.Render("No processes sampled yet"))
	}
	return lines
}

func sumColumnWidths() int {
	n := 0
	for _, c := range procColumns {
		n += c.width
	}
	return n
}

// Container tabs

func (m Model) renderContainers() string {
	width := m.viewWidth()
	if m.containerErr != "" {
		return Section("Containers", "unavailable", []string{CriticalStyle.Render(m.containerErr)}, width)
	}

	header := fmt.Sprintf("%-12s %-24s %-22s %-8s %6s %-10s %s", "ID", "NAME", "IMAGE", "STATE", "CPU%", "UPTIME", "PORTS")
	lines := []string{LabelStyle.Render(header)}
	for i, c := range m.containerList {
		row := fmt.Sprintf("%-12s %-24s %-22s %-8s %6.1f %-10s %s",
			c.ID, util.Truncate(c.Name, 24), util.Truncate(c.Image, 22), c.State, c.CPUPercent, c.Uptime,
			util.Truncate(c.Ports, max(width-94, 10)))
		if i == m.containerCursor {
			row = SelectedRowStyle.Render(row)
		}
		lines = append(lines, row)
	}
	if len(m.containerList) == 0 {
		lines = append(lines, MutedStyle.Render("No running containers"))
	}

	value := fmt.Sprintf("%d running", len(m.containerList))
	return Section("Containers", value, lines, width)
}

// logHeight is how many log lines fit on screen.
func (m Model) logHeight() int {
	if m.height <= 0 {
		return 20
	}
	return max(m.height-chromeHeight-3, 1)
}

func (m Model) renderLogs() string {
	width := m.viewWidth()
	buf := m.activeLogs()

	var name string
	switch m.tab {
	case TabContainerLogs:
		_, name = m.containers.LogTarget()
	case TabSwarmServiceLogs:
		_, name = m.swarm.LogTarget()
	}
	if buf == nil {
		return Section("Logs", name, []string{MutedStyle.Render("No log stream")}, width)
	}

	var flags []string
	if buf.Following() {
		flags = append(flags, "following")
	} else {
		flags = append(flags, fmt.Sprintf("scrolled %d", buf.ScrollOffset()))
	}
	if buf.ErrorsOnly() {
		flags = append(flags, "errors only")
	}
	if q := buf.Search(); q != "" {
		flags = append(flags, fmt.Sprintf("search %q", q))
	}

	var lines []string
	for _, l := range buf.Window(m.logHeight()) {
		l = util.Truncate(l, width-4)
		if buf.ErrorsOnly() || logstream.IsErrorLine(l) {
			l = CriticalStyle.UnsetBold().Render(l)
		}
		lines = append(lines, l)
	}
	if len(lines) == 0 {
		lines = append(lines, MutedStyle.Render("Waiting for log lines..."))
	}
	return Section(name, strings.Join(flags, " · "), lines, width)
}

// Swarm tabs

// swarmRow is one selectable line: a stack header or a service in it.
type swarmRow struct {
	stack   string
	service *swarm.Service
}

func (m Model) swarmRows() []swarmRow {
	var rows []swarmRow
	for _, st := range m.swarmState.Stacks {
		rows = append(rows, swarmRow{stack: st.Name})
		for _, i := range st.Services {
			if i < len(m.swarmState.Services) {
				rows = append(rows, swarmRow{stack: st.Name, service: &m.swarmState.Services[i]})
			}
		}
	}
	return rows
}

func (m Model) renderSwarm() string {
	width := m.viewWidth()
	st := m.swarmState
	if !m.swarmFetched {
		return LabelStyle.Render("Checking swarm status...")
	}

	var sections []string
	if len(st.Warnings) > 0 || len(st.Errors) > 0 {
		var lines []string
		for _, w := range st.Warnings {
			lines = append(lines, WarningStyle.Render(w))
		}
		for _, e := range st.Errors {
			lines = append(lines, CriticalStyle.Render(e))
		}
		sections = append(sections, Section("Warnings", fmt.Sprintf("%d", len(lines)), lines, width))
	}
	if !st.IsSwarm() {
		if st.CLIAvailable {
			sections = append(sections, Section("Swarm", "standalone", []string{
				MutedStyle.Render("This docker engine is not part of a swarm"),
			}, width))
		}
		return strings.Join(sections, "\n")
	}

	c := st.Cluster
	role := "worker"
	if c.IsManager {
		role = "manager"
	}
	clusterLine := fmt.Sprintf("%s %s (%s)  %s %d  %s %d",
		LabelStyle.Render("node"), c.NodeAddr, role,
		LabelStyle.Render("managers"), c.Managers,
		LabelStyle.Render("nodes"), c.Nodes)

	nodeLines := []string{clusterLine}
	for _, n := range st.Nodes {
		style := ValueStyle
		if !strings.EqualFold(n.Status, "ready") {
			style = CriticalStyle
		}
		self := ""
		if n.Self {
			self = " *"
		}
		nodeLines = append(nodeLines, style.Render(fmt.Sprintf("%-20s %-15s %-8s %-8s %-12s%s",
			util.Truncate(n.Hostname, 20), n.IPAddress, n.Status, n.Availability, n.ManagerStatus, self)))
	}
	sections = append(sections, Section("Nodes", fmt.Sprintf("%d", len(st.Nodes)), nodeLines, width))

	var lines []string
	for i, row := range m.swarmRows() {
		var line string
		if row.service == nil {
			marker := "▸"
			if m.expandedStacks[row.stack] {
				marker = "▾"
			}
			line = lipgloss.NewStyle().Foreground(ColorAccent).Bold(true).Render(marker + " " + row.stack)
		} else {
			svc := row.service
			line = fmt.Sprintf("    %-30s %-10s %-8s %-28s %s",
				util.Truncate(svc.Name, 30), svc.Mode, svc.Replicas, util.Truncate(svc.Image, 28), svc.Ports)
			if swarm.IsDegraded(svc.Replicas) {
				line = WarningStyle.Render(line)
			}
		}
		if i == m.swarmCursor {
			line = SelectedRowStyle.Render(line)
		}
		lines = append(lines, line)

		if row.service != nil && m.expandedStacks[row.stack] {
			for _, t := range st.ServiceTasks[row.service.ID] {
				lines = append(lines, MutedStyle.Render(fmt.Sprintf("      %-28s %-16s %s", t.Name, t.Node, t.CurrentState)))
			}
		}
	}
	if len(lines) == 0 {
		lines = append(lines, MutedStyle.Render("No services"))
	}
	sections = append(sections, Section("Services", fmt.Sprintf("%d", len(st.Services)), lines, width))
	return strings.Join(sections, "\n")
}

// syncTasksView refreshes the task viewport content from the latest state.
func (m *Model) syncTasksView() {
	m.tasksView.SetContent(m.tasksContent())
}

func (m Model) tasksContent() string {
	tasks := m.swarmState.Tasks
	if len(tasks) == 0 {
		return MutedStyle.Render("No tasks")
	}
	lines := []string{LabelStyle.Render(fmt.Sprintf("%-28s %-18s %-10s %-28s %s", "NAME", "NODE", "DESIRED", "CURRENT", "ERROR"))}
	for _, t := range tasks {
		line := fmt.Sprintf("%-28s %-18s %-10s %-28s %s",
			util.Truncate(t.Name, 28), util.Truncate(t.Node, 18), t.DesiredState, util.Truncate(t.CurrentState, 28), t.Error)
		if t.Error != "" {
			line = CriticalStyle.UnsetBold().Render(line)
		}
		lines = append(lines, line)
	}
	return strings.Join(lines, "\n")
}

func (m Model) renderServiceTasks() string {
	svc := m.taskService
	value := svc.Replicas
	if swarm.IsDegraded(svc.Replicas) {
		value += " degraded"
	}
	return SectionHeader(svc.Name, value, m.viewWidth()) + "\n" + m.tasksView.View()
}
