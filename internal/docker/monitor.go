package docker

import (
	"context"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/rileyhilliard/sitrep/internal/action"
	"github.com/rileyhilliard/sitrep/internal/logger"
	"github.com/rileyhilliard/sitrep/internal/logstream"
)

// defaultStatsConcurrency bounds parallel one-shot stats requests.
const defaultStatsConcurrency = 4

// MonitorOptions configures a Monitor. Zero values take defaults.
type MonitorOptions struct {
	LogCapacity      int
	LogTail          int
	StatsConcurrency int
	Log              logger.Logger
	ActionOptions    []action.Option
	OnLogLines       func(n int)
}

// Monitor pairs the daemon with one action executor and one log tailer.
// Fetch may run on any goroutine; everything else belongs to the consumer.
type Monitor struct {
	api        API
	log        logger.Logger
	tail       int
	statsLimit int

	actions *action.Executor
	logs    *logstream.Tailer
	logName string
}

// NewMonitor creates a container monitor over api.
func NewMonitor(api API, opts MonitorOptions) (*Monitor, error) {
	if opts.Log == nil {
		opts.Log = logger.Noop()
	}
	if opts.LogCapacity <= 0 {
		opts.LogCapacity = logstream.ContainerCapacity
	}
	if opts.LogTail <= 0 {
		opts.LogTail = DefaultTail
	}
	if opts.StatsConcurrency <= 0 {
		opts.StatsConcurrency = defaultStatsConcurrency
	}

	execOpts := append([]action.Option{action.WithLogger(opts.Log)}, opts.ActionOptions...)
	actions, err := action.New("containers", execOpts...)
	if err != nil {
		return nil, err
	}

	return &Monitor{
		api:        api,
		log:        opts.Log,
		tail:       opts.LogTail,
		statsLimit: opts.StatsConcurrency,
		actions:    actions,
		logs: logstream.NewTailer(logstream.Options{
			Capacity: opts.LogCapacity,
			Batch:    logstream.ContainerBatch,
			Log:      opts.Log,
			OnLines:  opts.OnLogLines,
		}),
	}, nil
}

// Available reports whether the daemon answers.
func (m *Monitor) Available(ctx context.Context) bool {
	return m.api.Ping(ctx) == nil
}

// Fetch lists running containers and fills in CPU usage, reading stats for
// several containers at once. A failed stats read leaves that container at 0.
func (m *Monitor) Fetch(ctx context.Context) ([]Container, error) {
	containers, err := m.api.List(ctx)
	if err != nil {
		return nil, err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(m.statsLimit)
	for i := range containers {
		i := i
		g.Go(func() error {
			pct, err := m.api.CPUPercent(gctx, containers[i].ID)
			if err != nil {
				m.log.Debug("stats %s: %v", containers[i].ID, err)
				return nil
			}
			containers[i].CPUPercent = pct
			return nil
		})
	}
	_ = g.Wait()
	return containers, nil
}

// Find returns the container whose id or name matches ref.
func Find(containers []Container, ref string) (Container, bool) {
	for _, c := range containers {
		if c.Name == ref || c.ID == ref || (len(ref) >= 4 && strings.HasPrefix(c.ID, ref)) {
			return c, true
		}
	}
	return Container{}, false
}

// StartContainer starts id in the background.
func (m *Monitor) StartContainer(id string) error {
	return m.actions.Submit(action.Request{
		Kind:        "start",
		Target:      id,
		Description: "Starting " + id + "...",
		Run: func(ctx context.Context) (string, error) {
			if err := m.api.Start(ctx, id); err != nil {
				return "", err
			}
			return "Started " + id, nil
		},
	})
}

// StopContainer stops id in the background.
func (m *Monitor) StopContainer(id string) error {
	return m.actions.Submit(action.Request{
		Kind:        "stop",
		Target:      id,
		Description: "Stopping " + id + "...",
		Run: func(ctx context.Context) (string, error) {
			if err := m.api.Stop(ctx, id); err != nil {
				return "", err
			}
			return "Stopped " + id, nil
		},
	})
}

// RestartContainer restarts id in the background.
func (m *Monitor) RestartContainer(id string) error {
	return m.actions.Submit(action.Request{
		Kind:        "restart",
		Target:      id,
		Description: "Restarting " + id + "...",
		Run: func(ctx context.Context) (string, error) {
			if err := m.api.Restart(ctx, id); err != nil {
				return "", err
			}
			return "Restarted " + id, nil
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

// StartLogs begins tailing id, replacing any running stream. name is kept for
// display.
func (m *Monitor) StartLogs(id, name string) {
	m.logName = name
	m.logs.Start(id, logstream.SourceFunc(func(ctx context.Context, emit logstream.Emit) error {
		rc, err := m.api.Logs(ctx, id, m.tail)
		if err != nil {
			return err
		}
		defer rc.Close()
		err = logstream.ScanLines(rc, func(line string) bool {
			return emit(strings.TrimRight(line, " \t\r"))
		})
		if ctx.Err() != nil {
			return nil
		}
		return err
	}))
}

// PollLogs drains pending log lines into the buffer.
func (m *Monitor) PollLogs() int {
	return m.logs.Poll()
}

// StopLogs ends the log stream.
func (m *Monitor) StopLogs() {
	m.logs.Stop()
}

// Logs returns the log buffer, or nil if no stream was started.
func (m *Monitor) Logs() *logstream.Buffer {
	return m.logs.Buffer()
}

// LogTarget returns the id and name of the tailed container.
func (m *Monitor) LogTarget() (id, name string) {
	return m.logs.Target(), m.logName
}

// Close stops log tailing and releases the action pool.
func (m *Monitor) Close() {
	m.logs.Stop()
	_ = m.actions.Close(0)
}
