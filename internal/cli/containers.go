package cli

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/rileyhilliard/sitrep/internal/action"
	"github.com/rileyhilliard/sitrep/internal/docker"
	"github.com/rileyhilliard/sitrep/internal/errors"
	"github.com/rileyhilliard/sitrep/internal/logstream"
	"github.com/rileyhilliard/sitrep/internal/ui"
	"github.com/rileyhilliard/sitrep/internal/util"
)

var (
	containersOutput OutputFlags
	containersYes    bool
	containersTail   int
	containersFilter LogFilter
)

var containersCmd = &cobra.Command{
	Use:     "containers",
	Aliases: []string{"c", "docker"},
	Short:   "List and manage Docker containers",
	Long: `List running containers with CPU usage, start/stop/restart them, or
follow their logs.

Containers can be referred to by name, full id, or an id prefix of at
least 4 characters.

Examples:
  sitrep containers list
  sitrep containers restart web
  sitrep containers logs web --errors`,
}

var containersListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List running containers",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return containersListCommand(cmd.Context(), cmd.OutOrStdout())
	},
}

var containersStartCmd = &cobra.Command{
	Use:   "start <container>",
	Short: "Start a container",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return containerActionCommand(cmd.Context(), cmd.OutOrStdout(), "start", args[0])
	},
}

var containersStopCmd = &cobra.Command{
	Use:   "stop <container>",
	Short: "Stop a container",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return containerActionCommand(cmd.Context(), cmd.OutOrStdout(), "stop", args[0])
	},
}

var containersRestartCmd = &cobra.Command{
	Use:   "restart <container>",
	Short: "Restart a container",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return containerActionCommand(cmd.Context(), cmd.OutOrStdout(), "restart", args[0])
	},
}

var containersLogsCmd = &cobra.Command{
	Use:   "logs <container>",
	Short: "Follow a container's logs",
	Long: `Follow a container's stdout and stderr, starting with the last --tail lines.
Press Ctrl+C to stop.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return containersLogsCommand(cmd.Context(), cmd.OutOrStdout(), args[0])
	},
}

func init() {
	AddOutputFlags(containersListCmd, &containersOutput)
	for _, c := range []*cobra.Command{containersStopCmd, containersRestartCmd} {
		c.Flags().BoolVarP(&containersYes, "yes", "y", false, "skip the confirmation prompt")
	}
	containersLogsCmd.Flags().IntVar(&containersTail, "tail", 0, "lines of history to show first (default from config)")
	containersLogsCmd.Flags().BoolVar(&containersFilter.ErrorsOnly, "errors", false, "only show error lines")
	containersLogsCmd.Flags().StringVar(&containersFilter.Grep, "grep", "", "only show lines containing this text")

	containersCmd.AddCommand(containersListCmd, containersStartCmd, containersStopCmd,
		containersRestartCmd, containersLogsCmd)
	rootCmd.AddCommand(containersCmd)
}

// withContainers opens a session and a container monitor for one command.
func withContainers(fn func(s *session, api docker.API, mon *docker.Monitor) error) error {
	s, err := openSession(false)
	if err != nil {
		return err
	}
	defer s.Close()

	api, closer, err := newDockerAPI(s.cfg)
	if err != nil {
		return err
	}
	defer closer.Close()

	mon, err := docker.NewMonitor(api, docker.MonitorOptions{
		LogTail:       s.cfg.Logs.Tail,
		Log:           s.log,
		ActionOptions: []action.Option{action.WithLogger(s.log)},
	})
	if err != nil {
		return err
	}
	defer mon.Close()
	return fn(s, api, mon)
}

func containersListCommand(ctx context.Context, out io.Writer) error {
	format, err := ParseOutputFormat(containersOutput.Format)
	if err != nil {
		return err
	}

	var containers []docker.Container
	err = withContainers(func(_ *session, _ docker.API, mon *docker.Monitor) error {
		var fetchErr error
		containers, fetchErr = mon.Fetch(ctx)
		return fetchErr
	})
	if err != nil {
		return renderFailure(out, format, err)
	}
	if containers == nil {
		containers = []docker.Container{}
	}

	return render(out, format, containers, func(w io.Writer) error {
		if len(containers) == 0 {
			_, err := fmt.Fprintln(w, ui.Pending("No running containers"))
			return err
		}
		rows := make([][]string, 0, len(containers))
		for _, c := range containers {
			rows = append(rows, []string{
				c.ID,
				util.Truncate(c.Name, 30),
				util.Truncate(c.Image, 30),
				stateCell(c.State),
				c.Uptime,
				fmt.Sprintf("%.1f", c.CPUPercent),
				c.IPAddress,
				c.Ports,
			})
		}
		_, err := fmt.Fprint(w, ui.RenderTable([]ui.TableColumn{
			{Title: "ID"}, {Title: "NAME"}, {Title: "IMAGE"}, {Title: "STATE"},
			{Title: "UP"}, {Title: "CPU%"}, {Title: "IP"}, {Title: "PORTS"},
		}, rows))
		return err
	})
}

func stateCell(state string) string {
	switch strings.ToLower(state) {
	case "running":
		return ui.SuccessStyle.Render(state)
	case "restarting", "paused":
		return ui.WarningStyle.Render(state)
	case "exited", "dead":
		return ui.ErrorStyle.Render(state)
	}
	return state
}

// resolveContainer finds ref among running containers. Stopped containers
// aren't listed, so an unknown ref is passed through for the daemon to judge.
func resolveContainer(ctx context.Context, mon *docker.Monitor, ref string) (id, name string) {
	containers, err := mon.Fetch(ctx)
	if err == nil {
		if c, ok := docker.Find(containers, ref); ok {
			return c.ID, c.Name
		}
	}
	return ref, ref
}

func containerActionCommand(ctx context.Context, out io.Writer, kind, ref string) error {
	return withContainers(func(s *session, _ docker.API, mon *docker.Monitor) error {
		id, name := resolveContainer(ctx, mon, ref)
		what := kind + " " + name

		var submit func() error
		switch kind {
		case "start":
			submit = func() error { return mon.StartContainer(id) }
		case "stop":
			submit = func() error { return mon.StopContainer(id) }
		case "restart":
			submit = func() error { return mon.RestartContainer(id) }
		default:
			return errors.New(errors.ErrAction, "Unknown container action "+kind, "")
		}

		if kind != "start" {
			ok, err := confirmAction(containersYes, what, "Container "+id)
			if err != nil {
				return err
			}
			if !ok {
				_, err := fmt.Fprintln(out, ui.Pending("Cancelled."))
				return err
			}
		}
		s.log.Debug("%s %s (%s)", kind, name, id)
		return runAction(ctx, out, what, submit, mon.PollAction)
	})
}

func containersLogsCommand(ctx context.Context, out io.Writer, ref string) error {
	return withContainers(func(s *session, api docker.API, mon *docker.Monitor) error {
		id, _ := resolveContainer(ctx, mon, ref)
		tail := containersTail
		if tail <= 0 {
			tail = s.cfg.Logs.Tail
		}
		src := logstream.SourceFunc(func(ctx context.Context, emit logstream.Emit) error {
			rc, err := api.Logs(ctx, id, tail)
			if err != nil {
				return err
			}
			defer rc.Close()
			return logstream.ScanLines(rc, emit)
		})
		return streamLogs(ctx, out, src, containersFilter)
	})
}
