package cli

import (
	"context"
	"io"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/rileyhilliard/sitrep/internal/action"
	"github.com/rileyhilliard/sitrep/internal/collector"
	"github.com/rileyhilliard/sitrep/internal/config"
	"github.com/rileyhilliard/sitrep/internal/dashboard"
	"github.com/rileyhilliard/sitrep/internal/docker"
	"github.com/rileyhilliard/sitrep/internal/errors"
	"github.com/rileyhilliard/sitrep/internal/metrics"
	"github.com/rileyhilliard/sitrep/internal/swarm"
	"github.com/rileyhilliard/sitrep/internal/telemetry"
)

// probeTimeout bounds the startup checks for docker and swarm.
const probeTimeout = 3 * time.Second

// dashboardOptions holds the dashboard's flags.
type dashboardOptions struct {
	Interval    string
	Sort        string
	MetricsAddr string
	NoDocker    bool
	NoSwarm     bool
}

var dashboardOpts dashboardOptions

var dashboardCmd = &cobra.Command{
	Use:     "dashboard",
	Aliases: []string{"dash", "top"},
	Short:   "Open the interactive diagnostics dashboard",
	Long: `Open a full-screen dashboard with live system, container, and swarm views.

Keyboard shortcuts:
  q / Ctrl+C   Quit
  Tab / 1-3    Switch view
  r            Refresh now
  s            Cycle process sort (System) / start container (Containers)
  Enter        Expand process group, open logs or service tasks
  x x, R R     Stop or restart (press twice to confirm)
  + / - -      Scale a swarm service up or down
  ?            Show help

Examples:
  sitrep
  sitrep dashboard --interval 5s --sort mem
  sitrep dashboard --metrics-addr 127.0.0.1:9091`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return dashboardCommand(dashboardOpts)
	},
}

func init() {
	addDashboardFlags(dashboardCmd, &dashboardOpts)
	rootCmd.AddCommand(dashboardCmd)
}

func addDashboardFlags(cmd *cobra.Command, opts *dashboardOptions) {
	cmd.Flags().StringVar(&opts.Interval, "interval", "", "sampling interval (e.g., 2s, 5s; default from config)")
	cmd.Flags().StringVar(&opts.Sort, "sort", "cpu", "process sort column: cpu, mem, read, write, down, up")
	cmd.Flags().StringVar(&opts.MetricsAddr, "metrics-addr", "", "serve sitrep's own prometheus metrics on this address")
	cmd.Flags().BoolVar(&opts.NoDocker, "no-docker", false, "hide the containers view")
	cmd.Flags().BoolVar(&opts.NoSwarm, "no-swarm", false, "hide the swarm view")
}

// dashboardCommand wires the engines together and runs the TUI until quit.
func dashboardCommand(opts dashboardOptions) error {
	s, err := openSession(true)
	if err != nil {
		return err
	}
	defer s.Close()

	interval := s.cfg.Interval
	if d, err := ParseInterval(opts.Interval); err != nil {
		return err
	} else if d > 0 {
		interval = d
	}
	sortCol, err := metrics.ParseSortColumn(opts.Sort)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	tel := telemetry.New()
	addr := s.cfg.Metrics.Addr
	if opts.MetricsAddr != "" {
		addr = opts.MetricsAddr
	}
	if addr != "" {
		bound, err := tel.Serve(ctx, addr, s.log)
		if err != nil {
			return err
		}
		s.log.Info("serving metrics on http://%s/metrics", bound)
	}

	system := newSystemMonitor(s, sortCol, tel)

	var containers *docker.Monitor
	if !opts.NoDocker {
		var closer io.Closer
		containers, closer = openContainerMonitor(ctx, s, tel)
		if containers != nil {
			defer closer.Close()
			defer containers.Close()
		}
	}

	var sw *swarm.Monitor
	if !opts.NoSwarm {
		sw = openSwarmMonitor(ctx, s, tel)
		if sw != nil {
			defer sw.Close()
		}
	}

	model := dashboard.NewModel(system, dashboard.Options{
		Interval:       interval,
		ConfirmTimeout: s.cfg.Confirm.Timeout,
		Containers:     containers,
		Swarm:          sw,
		ConfigUpdates:  watchConfig(s),
		Log:            s.log,
	})

	_, err = tea.NewProgram(model, tea.WithAltScreen()).Run()
	return err
}

// newSystemMonitor builds the snapshot assembler for the local host.
func newSystemMonitor(s *session, sortCol metrics.SortColumn, tel *telemetry.Metrics) *metrics.Monitor {
	opts := metrics.Options{
		HistoryWindow:   s.cfg.History.Window,
		MaxTicks:        s.cfg.History.MaxTicks,
		TopN:            s.cfg.History.TopN,
		DiskWarnPercent: s.cfg.Disk.WarnFreePercent,
		Sort:            sortCol,
		Log:             s.log,
	}
	if tel != nil {
		opts.OnTick = tel.ObserveTick
	}
	return metrics.NewMonitor(
		metrics.NewGopsutilHost(s.log),
		collector.New(newRunner(), s.log),
		opts,
	)
}

// openContainerMonitor connects to the daemon. An unreachable daemon hides
// the containers view rather than failing the dashboard. The closer releases
// the daemon connection after the monitor is closed.
func openContainerMonitor(ctx context.Context, s *session, tel *telemetry.Metrics) (*docker.Monitor, io.Closer) {
	api, closer, err := newDockerAPI(s.cfg)
	if err != nil {
		s.log.Warn("containers view disabled: %s", errors.OneLine(err))
		return nil, nil
	}

	pingCtx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()
	if err := api.Ping(pingCtx); err != nil {
		s.log.Warn("containers view disabled: docker daemon not reachable: %s", errors.OneLine(err))
		_ = closer.Close()
		return nil, nil
	}

	mopts := docker.MonitorOptions{
		LogCapacity: s.cfg.Logs.ContainerCapacity,
		LogTail:     s.cfg.Logs.Tail,
		Log:         s.log,
		ActionOptions: []action.Option{
			action.WithLogger(s.log),
			action.WithContext(ctx),
		},
	}
	if tel != nil {
		mopts.ActionOptions = append(mopts.ActionOptions, action.WithObserver(tel.ObserveAction))
		mopts.OnLogLines = tel.LogLines("container")
	}
	mon, err := docker.NewMonitor(api, mopts)
	if err != nil {
		s.log.Warn("containers view disabled: %v", err)
		_ = closer.Close()
		return nil, nil
	}
	return mon, closer
}

// openSwarmMonitor returns nil when the docker CLI isn't installed; a
// standalone engine still gets the tab so it can say so.
func openSwarmMonitor(ctx context.Context, s *session, tel *telemetry.Metrics) *swarm.Monitor {
	cli := swarm.NewCLI(newRunner(), s.cfg.Swarm.CLI, s.log)

	checkCtx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()
	if !cli.Available(checkCtx) {
		s.log.Info("swarm view disabled: %s CLI not available", s.cfg.Swarm.CLI)
		return nil
	}

	mopts := swarm.MonitorOptions{
		LogCapacity:  s.cfg.Logs.ServiceCapacity,
		LogTail:      s.cfg.Logs.Tail,
		RecheckTicks: s.cfg.Swarm.RecheckTicks,
		Log:          s.log,
		ActionOptions: []action.Option{
			action.WithLogger(s.log),
			action.WithContext(ctx),
		},
	}
	if tel != nil {
		mopts.ActionOptions = append(mopts.ActionOptions, action.WithObserver(tel.ObserveAction))
		mopts.OnLogLines = tel.LogLines("service")
	}
	mon, err := swarm.NewMonitor(cli, mopts)
	if err != nil {
		s.log.Warn("swarm view disabled: %v", err)
		return nil
	}
	return mon
}

// watchConfig forwards reloaded configuration to the dashboard. Only the
// newest config matters, so a pending one is replaced.
func watchConfig(s *session) <-chan *config.Config {
	if s.cfgPath == "" {
		return nil
	}
	updates := make(chan *config.Config, 1)
	err := config.Watch(s.cfgPath, func(cfg *config.Config, err error) {
		if err == nil {
			err = config.Validate(cfg)
		}
		if err != nil {
			s.log.Warn("ignoring config change: %s", errors.OneLine(err))
			return
		}
		select {
		case <-updates:
		default:
		}
		updates <- cfg
	})
	if err != nil {
		s.log.Warn("config reload disabled: %s", errors.OneLine(err))
		return nil
	}
	return updates
}
