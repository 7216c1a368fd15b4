package dashboard

import (
	"context"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/rileyhilliard/sitrep/internal/config"
	"github.com/rileyhilliard/sitrep/internal/docker"
	"github.com/rileyhilliard/sitrep/internal/errors"
	"github.com/rileyhilliard/sitrep/internal/logger"
	"github.com/rileyhilliard/sitrep/internal/metrics"
	"github.com/rileyhilliard/sitrep/internal/swarm"
)

const (
	// pollInterval drives action outcomes, log draining, and confirmation
	// expiry.
	pollInterval = 100 * time.Millisecond

	// refreshTimeout bounds one refresh cycle.
	refreshTimeout = 15 * time.Second

	// loadHistorySize is how many load samples the sparkline keeps.
	loadHistorySize = 60

	defaultWidth = 100
)

// System is the metrics engine as the dashboard drives it.
type System interface {
	Tick(ctx context.Context) *metrics.Snapshot
	Sort() metrics.SortColumn
	SetSort(col metrics.SortColumn)
	ToggleExpanded(pid int32) bool
	IsExpanded(pid int32) bool
	CollapseAll()
	SetDiskWarnPercent(pct float64)
}

// Options configures a Model.
type Options struct {
	Interval       time.Duration
	ConfirmTimeout time.Duration

	// Containers and Swarm are optional; nil hides their tabs.
	Containers *docker.Monitor
	Swarm      *swarm.Monitor

	// ConfigUpdates delivers reloaded configuration.
	ConfigUpdates <-chan *config.Config

	Log logger.Logger
	Now func() time.Time
}

// Model is the Bubble Tea model for the dashboard.
type Model struct {
	system     System
	containers *docker.Monitor
	swarm      *swarm.Monitor
	log        logger.Logger
	now        func() time.Time
	updates    <-chan *config.Config

	interval       time.Duration
	confirmTimeout time.Duration

	tab      Tab
	width    int
	height   int
	showHelp bool
	quitting bool

	refreshing bool
	lastUpdate time.Time

	// System tab
	snap        *metrics.Snapshot
	loadHistory []float64
	procCursor  int

	// Container tabs
	containerList   []docker.Container
	containerErr    string
	containerCursor int

	// Swarm tabs
	swarmState     swarm.State
	swarmFetched   bool
	swarmCursor    int
	expandedStacks map[string]bool
	taskService    swarm.Service

	// Log tabs
	searching   bool
	searchInput string

	confirm *pendingConfirm

	tasksView viewport.Model
	spinner   spinner.Model
}

type tickMsg time.Time

type pollMsg time.Time

type configMsg struct {
	cfg *config.Config
}

// refreshMsg carries one refresh cycle's results back to the update loop.
type refreshMsg struct {
	snapshot   *metrics.Snapshot
	containers []docker.Container
	dockerErr  error
	dockerRan  bool
	swarm      *swarm.State
}

// NewModel creates a dashboard over the metrics engine and the optional
// container and swarm monitors.
func NewModel(system System, opts Options) Model {
	if opts.Interval <= 0 {
		opts.Interval = config.DefaultConfig().Interval
	}
	if opts.ConfirmTimeout <= 0 {
		opts.ConfirmTimeout = config.DefaultConfig().Confirm.Timeout
	}
	if opts.Log == nil {
		opts.Log = logger.Noop()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	return Model{
		system:         system,
		containers:     opts.Containers,
		swarm:          opts.Swarm,
		log:            opts.Log,
		now:            opts.Now,
		updates:        opts.ConfigUpdates,
		interval:       opts.Interval,
		confirmTimeout: opts.ConfirmTimeout,
		tab:            TabSystem,
		expandedStacks: make(map[string]bool),
		tasksView:      viewport.New(defaultWidth, 10),
		spinner:        spinner.New(spinner.WithSpinner(spinner.Dot)),
	}
}

// Init starts both timers, the first refresh, and the config listener.
func (m Model) Init() tea.Cmd {
	cmds := []tea.Cmd{
		m.refreshCmd(),
		m.tickCmd(),
		pollCmd(),
		m.spinner.Tick,
	}
	if m.updates != nil {
		cmds = append(cmds, waitConfig(m.updates))
	}
	return tea.Batch(cmds...)
}

// Update handles messages and updates the model state.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		cmd := m.HandleKeyMsg(msg)
		return m, cmd

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.tasksView.Width = msg.Width
		m.tasksView.Height = max(msg.Height-8, 3)
		m.syncTasksView()

	case tickMsg:
		if m.refreshing {
			return m, m.tickCmd()
		}
		m.refreshing = true
		return m, tea.Batch(m.tickCmd(), m.refreshCmd())

	case refreshMsg:
		m.applyRefresh(msg)

	case pollMsg:
		if m.pollBackground() && !m.refreshing {
			m.refreshing = true
			return m, tea.Batch(pollCmd(), m.refreshCmd())
		}
		return m, pollCmd()

	case configMsg:
		m.applyConfig(msg.cfg)
		return m, waitConfig(m.updates)

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	return m, nil
}

// View renders the dashboard.
func (m Model) View() string {
	if m.quitting {
		return ""
	}
	if m.showHelp {
		return m.renderHelpOverlay()
	}
	return m.renderDashboard()
}

func (m Model) tickCmd() tea.Cmd {
	return tea.Tick(m.interval, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func pollCmd() tea.Cmd {
	return tea.Tick(pollInterval, func(t time.Time) tea.Msg {
		return pollMsg(t)
	})
}

func waitConfig(updates <-chan *config.Config) tea.Cmd {
	return func() tea.Msg {
		cfg, ok := <-updates
		if !ok {
			return nil
		}
		return configMsg{cfg: cfg}
	}
}

// refreshCmd samples the system and fetches whatever the active tab shows.
// Everything it touches is captured up front so the command goroutine never
// reads the model.
func (m Model) refreshCmd() tea.Cmd {
	system := m.system
	var containers *docker.Monitor
	if m.tab.Parent() == TabContainers {
		containers = m.containers
	}
	var sw *swarm.Monitor
	var fetch swarm.FetchOptions
	if m.tab.Parent() == TabSwarm && m.swarm != nil {
		sw = m.swarm
		fetch.ExpandedStacks = m.expandedStackNames()
		if m.tab == TabSwarmServiceTasks {
			fetch.TasksFor = m.taskService.ID
		}
	}

	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), refreshTimeout)
		defer cancel()

		msg := refreshMsg{snapshot: system.Tick(ctx)}
		if containers != nil {
			msg.dockerRan = true
			msg.containers, msg.dockerErr = containers.Fetch(ctx)
		}
		if sw != nil {
			st := sw.Fetch(ctx, fetch)
			msg.swarm = &st
		}
		return msg
	}
}

func (m *Model) applyRefresh(msg refreshMsg) {
	m.refreshing = false
	m.lastUpdate = m.now()

	if msg.snapshot != nil {
		m.snap = msg.snapshot
		m.pushLoad(msg.snapshot)
		m.procCursor = clampCursor(m.procCursor, len(msg.snapshot.Top))
	}
	if msg.dockerRan {
		if msg.dockerErr != nil {
			m.containerErr = errors.OneLine(msg.dockerErr)
			m.containerList = nil
		} else {
			m.containerErr = ""
			m.containerList = msg.containers
		}
		m.containerCursor = clampCursor(m.containerCursor, len(m.containerList))
	}
	if msg.swarm != nil {
		m.swarmState = *msg.swarm
		m.swarmFetched = true
		m.swarmCursor = clampCursor(m.swarmCursor, len(m.swarmRows()))
		m.syncTasksView()
	}
}

// pushLoad records the one-minute load as a percentage of core capacity.
func (m *Model) pushLoad(s *metrics.Snapshot) {
	cores := s.CoreCount
	if cores <= 0 {
		cores = 1
	}
	pct := s.LoadAvg.One / float64(cores) * 100
	m.loadHistory = append(m.loadHistory, pct)
	if len(m.loadHistory) > loadHistorySize {
		m.loadHistory = m.loadHistory[len(m.loadHistory)-loadHistorySize:]
	}
}

// pollBackground collects finished actions, drains the visible log stream,
// and drops an expired confirmation. It reports whether an action finished,
// in which case the caller refreshes so the result shows up right away.
func (m *Model) pollBackground() bool {
	if m.confirm != nil && m.now().After(m.confirm.expires) {
		m.confirm = nil
	}

	finished := false
	if m.containers != nil {
		if out, ok := m.containers.PollAction(); ok {
			m.log.Debug("container action finished: %s", out.Status())
			finished = true
		}
		if m.tab == TabContainerLogs {
			m.containers.PollLogs()
		}
	}
	if m.swarm != nil {
		if out, ok := m.swarm.PollAction(); ok {
			m.log.Debug("swarm action finished: %s", out.Status())
			finished = true
		}
		if m.tab == TabSwarmServiceLogs {
			m.swarm.PollLogs()
		}
	}
	return finished
}

func (m *Model) applyConfig(cfg *config.Config) {
	if cfg == nil {
		return
	}
	if cfg.Interval >= config.MinInterval {
		m.interval = cfg.Interval
	}
	if cfg.Confirm.Timeout > 0 {
		m.confirmTimeout = cfg.Confirm.Timeout
	}
	m.system.SetDiskWarnPercent(cfg.Disk.WarnFreePercent)
	m.log.Info("config reloaded: interval %s, disk warning below %.0f%% free",
		m.interval, cfg.Disk.WarnFreePercent)
}

func (m Model) expandedStackNames() []string {
	names := make([]string, 0, len(m.expandedStacks))
	for name, open := range m.expandedStacks {
		if open {
			names = append(names, name)
		}
	}
	return names
}

// Tab returns the active tab.
func (m Model) Tab() Tab {
	return m.tab
}

// Interval returns the current sampling interval.
func (m Model) Interval() time.Duration {
	return m.interval
}

// SecondsSinceUpdate returns how many seconds have passed since the last refresh.
func (m Model) SecondsSinceUpdate() int {
	if m.lastUpdate.IsZero() {
		return 0
	}
	return int(m.now().Sub(m.lastUpdate).Seconds())
}

func clampCursor(cursor, n int) int {
	if n == 0 || cursor < 0 {
		return 0
	}
	if cursor >= n {
		return n - 1
	}
	return cursor
}
