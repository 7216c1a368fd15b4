package swarm

import (
	"context"
	"fmt"
	"sync"

	"github.com/rileyhilliard/sitrep/internal/action"
	"github.com/rileyhilliard/sitrep/internal/errors"
	"github.com/rileyhilliard/sitrep/internal/logger"
	"github.com/rileyhilliard/sitrep/internal/logstream"
)

// DefaultRecheckTicks is how many fetches pass between swarm re-detection
// while in standalone mode.
const DefaultRecheckTicks = 10

// State is one refresh of cluster data.
type State struct {
	CLIAvailable bool              `json:"cli_available" yaml:"cli_available"`
	Cluster      *ClusterInfo      `json:"cluster,omitempty" yaml:"cluster,omitempty"`
	Nodes        []Node            `json:"nodes" yaml:"nodes"`
	Services     []Service         `json:"services" yaml:"services"`
	Stacks       []Stack           `json:"stacks" yaml:"stacks"`
	ServiceTasks map[string][]Task `json:"service_tasks,omitempty" yaml:"service_tasks,omitempty"`
	Tasks        []Task            `json:"tasks,omitempty" yaml:"tasks,omitempty"`
	Warnings     []string          `json:"warnings" yaml:"warnings"`
	Errors       []string          `json:"errors,omitempty" yaml:"errors,omitempty"`
}

// IsSwarm reports whether the local node is in an active swarm.
func (s State) IsSwarm() bool {
	return s.Cluster != nil
}

// FetchOptions narrows what Fetch loads beyond nodes and services.
type FetchOptions struct {
	// ExpandedStacks loads running tasks for every service in these stacks.
	ExpandedStacks []string

	// TasksFor loads the full task list of one service.
	TasksFor string
}

// MonitorOptions configures a Monitor. Zero values take defaults.
type MonitorOptions struct {
	LogCapacity   int
	LogTail       int
	RecheckTicks  int
	Log           logger.Logger
	ActionOptions []action.Option
	OnLogLines    func(n int)
}

// Monitor pairs the CLI with one action executor and one service log tailer.
// Fetch may run on any goroutine; actions and logs belong to the consumer.
type Monitor struct {
	cli     *CLI
	log     logger.Logger
	tail    int
	recheck int

	mu           sync.Mutex
	detected     bool
	cliAvailable bool
	cluster      *ClusterInfo
	sinceCheck   int

	actions *action.Executor
	logs    *logstream.Tailer
	logName string
}

// NewMonitor creates a swarm monitor.
func NewMonitor(cli *CLI, opts MonitorOptions) (*Monitor, error) {
	if opts.Log == nil {
		opts.Log = logger.Noop()
	}
	if opts.LogCapacity <= 0 {
		opts.LogCapacity = logstream.ServiceCapacity
	}
	if opts.LogTail <= 0 {
		opts.LogTail = 200
	}
	if opts.RecheckTicks <= 0 {
		opts.RecheckTicks = DefaultRecheckTicks
	}

	execOpts := append([]action.Option{action.WithLogger(opts.Log)}, opts.ActionOptions...)
	actions, err := action.New("swarm", execOpts...)
	if err != nil {
		return nil, err
	}
	return &Monitor{
		cli:     cli,
		log:     opts.Log,
		tail:    opts.LogTail,
		recheck: opts.RecheckTicks,
		actions: actions,
		logs: logstream.NewTailer(logstream.Options{
			Capacity: opts.LogCapacity,
			Batch:    logstream.ServiceBatch,
			Log:      opts.Log,
			OnLines:  opts.OnLogLines,
		}),
	}, nil
}

// detect (re)checks swarm mode. Once a swarm is found it sticks; while
// standalone, detection reruns every recheck fetches.
func (m *Monitor) detect(ctx context.Context) (bool, *ClusterInfo) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.detected && (m.cluster != nil || m.sinceCheck < m.recheck) {
		m.sinceCheck++
		return m.cliAvailable, m.cluster
	}
	m.detected = true
	m.sinceCheck = 1

	m.cliAvailable = m.cli.Available(ctx)
	if !m.cliAvailable {
		return false, nil
	}
	cluster, err := m.cli.Detect(ctx)
	if err != nil {
		m.log.Debug("swarm detect: %v", err)
	}
	m.cluster = cluster
	return m.cliAvailable, m.cluster
}

// Fetch loads cluster state. Individual failures are collected in
// State.Errors rather than aborting the refresh.
func (m *Monitor) Fetch(ctx context.Context, opts FetchOptions) State {
	available, cluster := m.detect(ctx)
	st := State{CLIAvailable: available, Cluster: cluster}
	if !available || cluster == nil {
		st.Warnings = Warnings(available, cluster, nil, nil)
		return st
	}

	if nodes, err := m.cli.Nodes(ctx); err != nil {
		st.Errors = append(st.Errors, errors.OneLine(err))
	} else {
		st.Nodes = nodes
	}
	if services, err := m.cli.Services(ctx); err != nil {
		st.Errors = append(st.Errors, errors.OneLine(err))
	} else {
		st.Services = services
		st.Stacks = BuildStacks(services)
	}

	if opts.TasksFor != "" {
		if tasks, err := m.cli.ServiceTasks(ctx, opts.TasksFor); err != nil {
			st.Errors = append(st.Errors, errors.OneLine(err))
		} else {
			st.Tasks = tasks
		}
	}

	if ids := m.expandedServiceIDs(st, opts.ExpandedStacks); len(ids) > 0 {
		if tasks, err := m.cli.RunningTasks(ctx, ids); err != nil {
			st.Errors = append(st.Errors, "Task fetch error: "+errors.OneLine(err))
		} else {
			st.ServiceTasks = GroupTasks(tasks, st.Services)
		}
	}

	st.Warnings = Warnings(available, cluster, st.Nodes, st.Services)
	return st
}

func (m *Monitor) expandedServiceIDs(st State, expanded []string) []string {
	if len(expanded) == 0 {
		return nil
	}
	want := make(map[string]bool, len(expanded))
	for _, name := range expanded {
		want[name] = true
	}
	var ids []string
	for _, stack := range st.Stacks {
		if !want[stack.Name] {
			continue
		}
		for _, i := range stack.Services {
			ids = append(ids, st.Services[i].ID)
		}
	}
	return ids
}

// RollingRestart force-updates a service in the background.
func (m *Monitor) RollingRestart(serviceID, name string) error {
	return m.actions.Submit(action.Request{
		Kind:        "rolling-restart",
		Target:      name,
		Description: fmt.Sprintf("Rolling restart in progress for %s...", name),
		Run: func(ctx context.Context) (string, error) {
			if err := m.cli.ForceUpdate(ctx, serviceID); err != nil {
				return "", err
			}
			return "Rolling restart initiated for " + name, nil
		},
	})
}

// Scale changes a service's replica count in the background.
func (m *Monitor) Scale(serviceID, name string, replicas int) error {
	if replicas < 0 {
		return errors.New(errors.ErrSwarm,
			fmt.Sprintf("Can't scale %s to %d replicas", name, replicas),
			"Replica count must be zero or more")
	}
	return m.actions.Submit(action.Request{
		Kind:        "scale",
		Target:      name,
		Description: fmt.Sprintf("Scaling %s to %d replicas...", name, replicas),
		Run: func(ctx context.Context) (string, error) {
			if err := m.cli.Scale(ctx, serviceID, replicas); err != nil {
				return "", err
			}
			return fmt.Sprintf("Scaled %s to %d replicas", name, replicas), nil
		},
	})
}

// PollAction reports a finished action, if any.
func (m *Monitor) PollAction() (action.Outcome, bool) {
	return m.actions.Poll()
}

// Actions exposes the executor for status and in-flight checks.
func (m *Monitor) Actions() *action.Executor {
	return m.actions
}

// StartLogs begins tailing a service, replacing any running stream.
func (m *Monitor) StartLogs(serviceID, name string) {
	m.logName = name
	m.logs.Start(serviceID, m.cli.LogSource(serviceID, m.tail))
}

// PollLogs drains pending log lines into the buffer.
func (m *Monitor) PollLogs() int {
	return m.logs.Poll()
}

// StopLogs ends the log stream and kills the docker process behind it.
func (m *Monitor) StopLogs() {
	m.logs.Stop()
}

// Logs returns the log buffer, or nil if no stream was started.
func (m *Monitor) Logs() *logstream.Buffer {
	return m.logs.Buffer()
}

// LogTarget returns the id and name of the tailed service.
func (m *Monitor) LogTarget() (id, name string) {
	return m.logs.Target(), m.logName
}

// Close stops log tailing and releases the action pool.
func (m *Monitor) Close() {
	m.logs.Stop()
	_ = m.actions.Close(0)
}
