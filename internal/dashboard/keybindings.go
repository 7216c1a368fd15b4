package dashboard

import (
	"fmt"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/rileyhilliard/sitrep/internal/logstream"
	"github.com/rileyhilliard/sitrep/internal/swarm"
)

// Tab identifies a dashboard view.
type Tab int

const (
	TabSystem Tab = iota
	TabContainers
	TabContainerLogs
	TabSwarm
	TabSwarmServiceTasks
	TabSwarmServiceLogs
)

// String returns the tab's title.
func (t Tab) String() string {
	switch t {
	case TabSystem:
		return "System"
	case TabContainers:
		return "Containers"
	case TabContainerLogs:
		return "Container Logs"
	case TabSwarm:
		return "Swarm"
	case TabSwarmServiceTasks:
		return "Service Tasks"
	case TabSwarmServiceLogs:
		return "Service Logs"
	default:
		return "System"
	}
}

// Parent returns the top-level tab a sub-view belongs to.
func (t Tab) Parent() Tab {
	switch t {
	case TabContainerLogs:
		return TabContainers
	case TabSwarmServiceTasks, TabSwarmServiceLogs:
		return TabSwarm
	default:
		return t
	}
}

// Key bindings
const (
	KeyQuit       = "q"
	KeyQuitAlt    = "ctrl+c"
	KeyRefresh    = "r"
	KeyToggleHelp = "?"
	KeyNextTab    = "tab"
	KeyPrevTab    = "shift+tab"
	KeyUp         = "up"
	KeyUpK        = "k"
	KeyDown       = "down"
	KeyDownJ      = "j"
	KeyPageUp     = "pgup"
	KeyPageDown   = "pgdown"
	KeyFirst      = "home"
	KeyLast       = "end"
	KeyEnter      = "enter"
	KeyBack       = "esc"

	KeyCycleSort   = "s"
	KeyCollapseAll = "c"

	KeyStart   = "s"
	KeyStop    = "x"
	KeyRestart = "R"
	KeyLogs    = "l"

	KeyScaleUp   = "+"
	KeyScaleDown = "-"

	KeyFollow     = "G"
	KeyErrorsOnly = "e"
	KeySearch     = "/"
)

// topTabs returns the top-level tabs that are enabled.
func (m Model) topTabs() []Tab {
	tabs := []Tab{TabSystem}
	if m.containers != nil {
		tabs = append(tabs, TabContainers)
	}
	if m.swarm != nil {
		tabs = append(tabs, TabSwarm)
	}
	return tabs
}

// HandleKeyMsg processes keyboard input.
func (m *Model) HandleKeyMsg(msg tea.KeyMsg) tea.Cmd {
	key := msg.String()

	if m.searching {
		m.handleSearchKey(msg)
		return nil
	}

	if key == KeyToggleHelp {
		m.showHelp = !m.showHelp
		return nil
	}
	if m.showHelp {
		if key == KeyBack {
			m.showHelp = false
		}
		return nil
	}

	switch key {
	case KeyQuit, KeyQuitAlt:
		m.quitting = true
		m.stopLogs()
		return tea.Quit
	case KeyRefresh:
		return m.requestRefresh()
	case KeyNextTab:
		return m.cycleTab(1)
	case KeyPrevTab:
		return m.cycleTab(-1)
	case "1", "2", "3":
		tabs := m.topTabs()
		if i := int(key[0] - '1'); i < len(tabs) {
			return m.switchTab(tabs[i])
		}
		return nil
	}

	switch m.tab {
	case TabSystem:
		return m.handleSystemKey(key)
	case TabContainers:
		return m.handleContainersKey(key)
	case TabContainerLogs, TabSwarmServiceLogs:
		return m.handleLogsKey(key)
	case TabSwarm:
		return m.handleSwarmKey(key)
	case TabSwarmServiceTasks:
		return m.handleTasksKey(msg)
	}
	return nil
}

func (m *Model) cycleTab(step int) tea.Cmd {
	tabs := m.topTabs()
	current := 0
	for i, t := range tabs {
		if t == m.tab.Parent() {
			current = i
		}
	}
	next := (current + step + len(tabs)) % len(tabs)
	return m.switchTab(tabs[next])
}

// switchTab moves to tab, stopping any log stream left behind, and refreshes
// right away so the new view isn't empty until the next tick.
func (m *Model) switchTab(tab Tab) tea.Cmd {
	if tab == m.tab {
		return nil
	}
	if m.tab == TabContainerLogs || m.tab == TabSwarmServiceLogs {
		m.stopLogs()
	}
	m.tab = tab
	m.confirm = nil
	return m.requestRefresh()
}

func (m *Model) requestRefresh() tea.Cmd {
	if m.refreshing {
		return nil
	}
	m.refreshing = true
	return m.refreshCmd()
}

func (m *Model) handleSystemKey(key string) tea.Cmd {
	var rows int
	if m.snap != nil {
		rows = len(m.snap.Top)
	}

	switch key {
	case KeyUp, KeyUpK:
		m.procCursor = clampCursor(m.procCursor-1, rows)
	case KeyDown, KeyDownJ:
		m.procCursor = clampCursor(m.procCursor+1, rows)
	case KeyFirst:
		m.procCursor = 0
	case KeyLast:
		m.procCursor = clampCursor(rows-1, rows)
	case KeyCycleSort:
		m.system.SetSort(m.system.Sort().Next())
		return m.requestRefresh()
	case KeyEnter:
		if m.snap != nil && m.procCursor < rows {
			m.system.ToggleExpanded(m.snap.Top[m.procCursor].Pid)
		}
	case KeyCollapseAll:
		m.system.CollapseAll()
	}
	return nil
}

func (m *Model) handleContainersKey(key string) tea.Cmd {
	rows := len(m.containerList)
	switch key {
	case KeyUp, KeyUpK:
		m.containerCursor = clampCursor(m.containerCursor-1, rows)
		return nil
	case KeyDown, KeyDownJ:
		m.containerCursor = clampCursor(m.containerCursor+1, rows)
		return nil
	}

	if rows == 0 {
		return nil
	}
	c := m.containerList[m.containerCursor]
	switch key {
	case KeyStart:
		m.submit(m.containers.StartContainer(c.ID))
	case KeyStop:
		if m.confirmed("stop:"+c.ID, fmt.Sprintf("Press %s again to stop %s", KeyStop, c.Name)) {
			m.submit(m.containers.StopContainer(c.ID))
		}
	case KeyRestart:
		if m.confirmed("restart:"+c.ID, fmt.Sprintf("Press %s again to restart %s", KeyRestart, c.Name)) {
			m.submit(m.containers.RestartContainer(c.ID))
		}
	case KeyLogs, KeyEnter:
		m.containers.StartLogs(c.ID, c.Name)
		m.tab = TabContainerLogs
		m.confirm = nil
	}
	return nil
}

func (m *Model) handleSwarmKey(key string) tea.Cmd {
	rows := m.swarmRows()
	switch key {
	case KeyUp, KeyUpK:
		m.swarmCursor = clampCursor(m.swarmCursor-1, len(rows))
		return nil
	case KeyDown, KeyDownJ:
		m.swarmCursor = clampCursor(m.swarmCursor+1, len(rows))
		return nil
	}

	if len(rows) == 0 {
		return nil
	}
	row := rows[m.swarmCursor]
	if row.service == nil {
		if key == KeyEnter {
			m.expandedStacks[row.stack] = !m.expandedStacks[row.stack]
			return m.requestRefresh()
		}
		return nil
	}

	svc := *row.service
	switch key {
	case KeyEnter:
		m.taskService = svc
		m.tab = TabSwarmServiceTasks
		m.confirm = nil
		m.tasksView.GotoTop()
		return m.requestRefresh()
	default:
		return m.handleServiceAction(key, svc)
	}
}

func (m *Model) handleTasksKey(msg tea.KeyMsg) tea.Cmd {
	switch msg.String() {
	case KeyBack:
		m.tab = TabSwarm
		m.confirm = nil
		return nil
	case KeyUp, KeyUpK, KeyDown, KeyDownJ, KeyPageUp, KeyPageDown:
		var cmd tea.Cmd
		m.tasksView, cmd = m.tasksView.Update(msg)
		return cmd
	}
	return m.handleServiceAction(msg.String(), m.taskService)
}

// handleServiceAction runs the actions available on a selected service.
func (m *Model) handleServiceAction(key string, svc swarm.Service) tea.Cmd {
	switch key {
	case KeyRestart:
		if m.confirmed("rolling-restart:"+svc.ID, fmt.Sprintf("Press %s again to rolling-restart %s", KeyRestart, svc.Name)) {
			m.submit(m.swarm.RollingRestart(svc.ID, svc.Name))
		}
	case KeyScaleUp:
		if _, desired, ok := swarm.ParseReplicas(svc.Replicas); ok {
			m.submit(m.swarm.Scale(svc.ID, svc.Name, desired+1))
		}
	case KeyScaleDown:
		_, desired, ok := swarm.ParseReplicas(svc.Replicas)
		if !ok || desired == 0 {
			return nil
		}
		if m.confirmed("scale:"+svc.ID, fmt.Sprintf("Press %s again to scale %s to %d", KeyScaleDown, svc.Name, desired-1)) {
			m.submit(m.swarm.Scale(svc.ID, svc.Name, desired-1))
		}
	case KeyLogs:
		m.swarm.StartLogs(svc.ID, svc.Name)
		m.tab = TabSwarmServiceLogs
		m.confirm = nil
	}
	return nil
}

func (m *Model) handleLogsKey(key string) tea.Cmd {
	buf := m.activeLogs()
	if key == KeyBack {
		m.stopLogs()
		if m.tab == TabContainerLogs {
			m.tab = TabContainers
		} else {
			m.tab = TabSwarm
		}
		return m.requestRefresh()
	}
	if buf == nil {
		return nil
	}

	page := max(m.logHeight()-1, 1)
	switch key {
	case KeyUp, KeyUpK:
		buf.ScrollUp(1)
	case KeyDown, KeyDownJ:
		buf.ScrollDown(1)
	case KeyPageUp:
		buf.ScrollUp(page)
	case KeyPageDown:
		buf.ScrollDown(page)
	case KeyFollow, KeyLast:
		buf.Follow()
	case KeyErrorsOnly:
		buf.ToggleErrorsOnly()
	case KeySearch:
		m.searching = true
		m.searchInput = buf.Search()
	}
	return nil
}

// handleSearchKey edits the log search query. Enter applies it, Esc clears it.
func (m *Model) handleSearchKey(msg tea.KeyMsg) {
	buf := m.activeLogs()
	switch msg.Type {
	case tea.KeyEnter:
		m.searching = false
		if buf != nil {
			buf.SetSearch(m.searchInput)
		}
	case tea.KeyEsc:
		m.searching = false
		m.searchInput = ""
		if buf != nil {
			buf.SetSearch("")
		}
	case tea.KeyBackspace:
		if r := []rune(m.searchInput); len(r) > 0 {
			m.searchInput = string(r[:len(r)-1])
		}
	case tea.KeySpace:
		m.searchInput += " "
	case tea.KeyRunes:
		m.searchInput += string(msg.Runes)
	}
}

// activeLogs returns the buffer of the log tab being shown.
func (m Model) activeLogs() *logstream.Buffer {
	switch {
	case m.tab == TabContainerLogs && m.containers != nil:
		return m.containers.Logs()
	case m.tab == TabSwarmServiceLogs && m.swarm != nil:
		return m.swarm.Logs()
	}
	return nil
}

func (m *Model) stopLogs() {
	if m.containers != nil {
		m.containers.StopLogs()
	}
	if m.swarm != nil {
		m.swarm.StopLogs()
	}
	m.searching = false
	m.searchInput = ""
}

// submit logs a rejected action. The executor already reports the rejection
// in its status line.
func (m *Model) submit(err error) {
	if err != nil {
		m.log.Debug("action not submitted: %v", err)
	}
}
