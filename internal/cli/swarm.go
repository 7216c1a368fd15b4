package cli

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/rileyhilliard/sitrep/internal/action"
	"github.com/rileyhilliard/sitrep/internal/errors"
	"github.com/rileyhilliard/sitrep/internal/logstream"
	"github.com/rileyhilliard/sitrep/internal/swarm"
	"github.com/rileyhilliard/sitrep/internal/ui"
	"github.com/rileyhilliard/sitrep/internal/util"
)

var (
	swarmOutput OutputFlags
	swarmYes    bool
	swarmTail   int
	swarmFilter LogFilter
)

// newServiceLogSource is swapped out in tests so no docker process is spawned.
var newServiceLogSource = func(c *swarm.CLI, serviceID string, tail int) logstream.Source {
	return c.LogSource(serviceID, tail)
}

var swarmCmd = &cobra.Command{
	Use:     "swarm",
	Aliases: []string{"s"},
	Short:   "Inspect and manage Docker Swarm services",
	Long: `Show cluster health, nodes, services and tasks, or act on a service.

Services can be referred to by name, full id, or an id prefix.

Examples:
  sitrep swarm status
  sitrep swarm tasks shop_web
  sitrep swarm scale shop_web 4
  sitrep swarm restart shop_web --yes`,
}

var swarmStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show swarm membership and health warnings",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return swarmStatusCommand(cmd.Context(), cmd.OutOrStdout())
	},
}

var swarmNodesCmd = &cobra.Command{
	Use:   "nodes",
	Short: "List cluster nodes",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return swarmNodesCommand(cmd.Context(), cmd.OutOrStdout())
	},
}

var swarmServicesCmd = &cobra.Command{
	Use:     "services",
	Aliases: []string{"ls"},
	Short:   "List services grouped by stack",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return swarmServicesCommand(cmd.Context(), cmd.OutOrStdout())
	},
}

var swarmTasksCmd = &cobra.Command{
	Use:   "tasks <service>",
	Short: "List every task of a service, including failed ones",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return swarmTasksCommand(cmd.Context(), cmd.OutOrStdout(), args[0])
	},
}

var swarmRestartCmd = &cobra.Command{
	Use:   "restart <service>",
	Short: "Force a rolling restart of a service",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return swarmRestartCommand(cmd.Context(), cmd.OutOrStdout(), args[0])
	},
}

var swarmScaleCmd = &cobra.Command{
	Use:   "scale <service> <replicas>",
	Short: "Set a service's replica count",
	Long: `Set a service's replica count. Scaling down asks for confirmation
unless --yes is given.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return swarmScaleCommand(cmd.Context(), cmd.OutOrStdout(), args[0], args[1])
	},
}

var swarmLogsCmd = &cobra.Command{
	Use:   "logs <service>",
	Short: "Follow a service's logs across all replicas",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return swarmLogsCommand(cmd.Context(), cmd.OutOrStdout(), args[0])
	},
}

func init() {
	for _, c := range []*cobra.Command{swarmStatusCmd, swarmNodesCmd, swarmServicesCmd, swarmTasksCmd} {
		AddOutputFlags(c, &swarmOutput)
	}
	for _, c := range []*cobra.Command{swarmRestartCmd, swarmScaleCmd} {
		c.Flags().BoolVarP(&swarmYes, "yes", "y", false, "skip the confirmation prompt")
	}
	swarmLogsCmd.Flags().IntVar(&swarmTail, "tail", 0, "lines of history to show first (default from config)")
	swarmLogsCmd.Flags().BoolVar(&swarmFilter.ErrorsOnly, "errors", false, "only show error lines")
	swarmLogsCmd.Flags().StringVar(&swarmFilter.Grep, "grep", "", "only show lines containing this text")

	swarmCmd.AddCommand(swarmStatusCmd, swarmNodesCmd, swarmServicesCmd, swarmTasksCmd,
		swarmRestartCmd, swarmScaleCmd, swarmLogsCmd)
	rootCmd.AddCommand(swarmCmd)
}

// swarmRun is one command's view of the cluster.
type swarmRun struct {
	s     *session
	cli   *swarm.CLI
	mon   *swarm.Monitor
	state swarm.State
}

// withSwarm fetches cluster state and hands it to fn. Unless allowInactive
// is set, a missing CLI or a standalone node is an error.
func withSwarm(ctx context.Context, allowInactive bool, fn func(r *swarmRun) error) error {
	s, err := openSession(false)
	if err != nil {
		return err
	}
	defer s.Close()

	cli := swarm.NewCLI(newRunner(), s.cfg.Swarm.CLI, s.log)
	mon, err := swarm.NewMonitor(cli, swarm.MonitorOptions{
		LogTail:       s.cfg.Logs.Tail,
		Log:           s.log,
		ActionOptions: []action.Option{action.WithLogger(s.log)},
	})
	if err != nil {
		return err
	}
	defer mon.Close()

	st := mon.Fetch(ctx, swarm.FetchOptions{})
	if !allowInactive {
		if !st.CLIAvailable {
			return errors.New(errors.ErrSwarm,
				"The docker CLI isn't available",
				"Install Docker or point swarm.cli in .sitrep.yaml at the binary.")
		}
		if !st.IsSwarm() {
			return errors.New(errors.ErrSwarm,
				"This node isn't part of an active swarm",
				"Run 'docker swarm init' or join an existing swarm first.")
		}
	}
	return fn(&swarmRun{s: s, cli: cli, mon: mon, state: st})
}

// findService matches ref against service names, full ids, then id prefixes.
func findService(services []swarm.Service, ref string) (swarm.Service, error) {
	for _, svc := range services {
		if svc.Name == ref || svc.ID == ref {
			return svc, nil
		}
	}
	var matches []swarm.Service
	for _, svc := range services {
		if strings.HasPrefix(svc.ID, ref) {
			matches = append(matches, svc)
		}
	}
	switch len(matches) {
	case 1:
		return matches[0], nil
	case 0:
		return swarm.Service{}, errors.New(errors.ErrSwarm,
			fmt.Sprintf("No service matches %q", ref),
			"Run 'sitrep swarm services' to see what's deployed.")
	default:
		return swarm.Service{}, errors.New(errors.ErrSwarm,
			fmt.Sprintf("%q matches %d services", ref, len(matches)),
			"Use the full service name instead.")
	}
}

func swarmStatusCommand(ctx context.Context, out io.Writer) error {
	format, err := ParseOutputFormat(swarmOutput.Format)
	if err != nil {
		return err
	}

	var st swarm.State
	err = withSwarm(ctx, true, func(r *swarmRun) error {
		st = r.state
		return nil
	})
	if err != nil {
		return renderFailure(out, format, err)
	}

	return render(out, format, st, func(w io.Writer) error {
		var b strings.Builder
		switch {
		case !st.CLIAvailable:
			b.WriteString(ui.Fail("Swarm: docker CLI unavailable") + "\n")
		case !st.IsSwarm():
			b.WriteString(ui.Pending("Swarm: inactive (standalone Docker)") + "\n")
		default:
			c := st.Cluster
			role := "worker"
			if c.IsManager {
				role = "manager"
			}
			fmt.Fprintf(&b, "%s\n", ui.Success("Swarm: active"))
			fmt.Fprintf(&b, "  This node: %s (%s) at %s\n", c.NodeID, role, c.NodeAddr)
			fmt.Fprintf(&b, "  Cluster:   %d %s, %d %s\n",
				c.Managers, util.Pluralize(c.Managers, "manager", "managers"),
				c.Nodes, util.Pluralize(c.Nodes, "node", "nodes"))
			fmt.Fprintf(&b, "  Services:  %d in %d %s\n",
				len(st.Services), len(st.Stacks), util.Pluralize(len(st.Stacks), "stack", "stacks"))
		}
		if st.CLIAvailable && st.IsSwarm() {
			if len(st.Warnings) == 0 {
				b.WriteString("\n" + ui.Success("No health warnings") + "\n")
			} else {
				b.WriteString("\n")
			}
			for _, warning := range st.Warnings {
				b.WriteString(ui.Warning(warning) + "\n")
			}
		}
		for _, e := range st.Errors {
			b.WriteString(ui.Fail(e) + "\n")
		}
		_, err := io.WriteString(w, b.String())
		return err
	})
}

func swarmNodesCommand(ctx context.Context, out io.Writer) error {
	format, err := ParseOutputFormat(swarmOutput.Format)
	if err != nil {
		return err
	}

	var nodes []swarm.Node
	err = withSwarm(ctx, false, func(r *swarmRun) error {
		if len(r.state.Errors) > 0 && r.state.Nodes == nil {
			return errors.New(errors.ErrSwarm, r.state.Errors[0], "Node listing needs a manager node.")
		}
		nodes = r.state.Nodes
		return nil
	})
	if err != nil {
		return renderFailure(out, format, err)
	}
	if nodes == nil {
		nodes = []swarm.Node{}
	}

	return render(out, format, nodes, func(w io.Writer) error {
		rows := make([][]string, 0, len(nodes))
		for _, n := range nodes {
			name := n.Hostname
			if n.Self {
				name += " *"
			}
			rows = append(rows, []string{name, n.Status, n.Availability, n.ManagerStatus, n.IPAddress, n.EngineVersion})
		}
		_, err := fmt.Fprint(w, ui.RenderTable([]ui.TableColumn{
			{Title: "HOSTNAME"}, {Title: "STATUS"}, {Title: "AVAILABILITY"},
			{Title: "MANAGER"}, {Title: "IP"}, {Title: "ENGINE"},
		}, rows))
		return err
	})
}

func swarmServicesCommand(ctx context.Context, out io.Writer) error {
	format, err := ParseOutputFormat(swarmOutput.Format)
	if err != nil {
		return err
	}

	var services []swarm.Service
	var stacks []swarm.Stack
	err = withSwarm(ctx, false, func(r *swarmRun) error {
		if len(r.state.Errors) > 0 && r.state.Services == nil {
			return errors.New(errors.ErrSwarm, r.state.Errors[0], "Service listing needs a manager node.")
		}
		services, stacks = r.state.Services, r.state.Stacks
		return nil
	})
	if err != nil {
		return renderFailure(out, format, err)
	}
	if services == nil {
		services = []swarm.Service{}
	}

	return render(out, format, services, func(w io.Writer) error {
		if len(services) == 0 {
			_, err := fmt.Fprintln(w, ui.Pending("No services deployed"))
			return err
		}
		rows := make([][]string, 0, len(services))
		for _, stack := range stacks {
			for _, i := range stack.Services {
				svc := services[i]
				replicas := svc.Replicas
				if swarm.IsDegraded(replicas) {
					replicas = ui.WarningStyle.Render(replicas + " degraded")
				}
				rows = append(rows, []string{stack.Name, svc.Name, svc.Mode, replicas, util.Truncate(svc.Image, 40), svc.Ports})
			}
		}
		_, err := fmt.Fprint(w, ui.RenderTable([]ui.TableColumn{
			{Title: "STACK"}, {Title: "SERVICE"}, {Title: "MODE"},
			{Title: "REPLICAS"}, {Title: "IMAGE"}, {Title: "PORTS"},
		}, rows))
		return err
	})
}

func swarmTasksCommand(ctx context.Context, out io.Writer, ref string) error {
	format, err := ParseOutputFormat(swarmOutput.Format)
	if err != nil {
		return err
	}

	var tasks []swarm.Task
	err = withSwarm(ctx, false, func(r *swarmRun) error {
		svc, err := findService(r.state.Services, ref)
		if err != nil {
			return err
		}
		tasks, err = r.cli.ServiceTasks(ctx, svc.ID)
		return err
	})
	if err != nil {
		return renderFailure(out, format, err)
	}
	if tasks == nil {
		tasks = []swarm.Task{}
	}

	return render(out, format, tasks, func(w io.Writer) error {
		if len(tasks) == 0 {
			_, err := fmt.Fprintln(w, ui.Pending("No tasks"))
			return err
		}
		rows := make([][]string, 0, len(tasks))
		for _, t := range tasks {
			errCell := t.Error
			if errCell != "" {
				errCell = ui.ErrorStyle.Render(errCell)
			}
			rows = append(rows, []string{t.Name, t.Node, t.DesiredState, t.CurrentState, errCell})
		}
		_, err := fmt.Fprint(w, ui.RenderTable([]ui.TableColumn{
			{Title: "TASK"}, {Title: "NODE"}, {Title: "DESIRED"}, {Title: "CURRENT"}, {Title: "ERROR"},
		}, rows))
		return err
	})
}

func swarmRestartCommand(ctx context.Context, out io.Writer, ref string) error {
	return withSwarm(ctx, false, func(r *swarmRun) error {
		svc, err := findService(r.state.Services, ref)
		if err != nil {
			return err
		}
		what := "restart " + svc.Name
		ok, err := confirmAction(swarmYes, what,
			fmt.Sprintf("Rolling restart: every replica of %s (%s) is replaced in turn.", svc.Name, svc.Replicas))
		if err != nil {
			return err
		}
		if !ok {
			_, err := fmt.Fprintln(out, ui.Pending("Cancelled."))
			return err
		}
		return runAction(ctx, out, what,
			func() error { return r.mon.RollingRestart(svc.ID, svc.Name) },
			r.mon.PollAction)
	})
}

func swarmScaleCommand(ctx context.Context, out io.Writer, ref, replicasArg string) error {
	replicas, err := strconv.Atoi(replicasArg)
	if err != nil || replicas < 0 {
		return errors.New(errors.ErrConfig,
			fmt.Sprintf("'%s' isn't a valid replica count", replicasArg),
			"Pass a whole number, e.g. 'sitrep swarm scale web 3'.")
	}

	return withSwarm(ctx, false, func(r *swarmRun) error {
		svc, err := findService(r.state.Services, ref)
		if err != nil {
			return err
		}
		what := fmt.Sprintf("scale %s to %d", svc.Name, replicas)
		if _, desired, ok := swarm.ParseReplicas(svc.Replicas); ok && replicas < desired {
			ok, err := confirmAction(swarmYes, what,
				fmt.Sprintf("%s currently wants %d %s.", svc.Name, desired, util.Pluralize(desired, "replica", "replicas")))
			if err != nil {
				return err
			}
			if !ok {
				_, err := fmt.Fprintln(out, ui.Pending("Cancelled."))
				return err
			}
		}
		return runAction(ctx, out, what,
			func() error { return r.mon.Scale(svc.ID, svc.Name, replicas) },
			r.mon.PollAction)
	})
}

func swarmLogsCommand(ctx context.Context, out io.Writer, ref string) error {
	return withSwarm(ctx, false, func(r *swarmRun) error {
		svc, err := findService(r.state.Services, ref)
		if err != nil {
			return err
		}
		tail := swarmTail
		if tail <= 0 {
			tail = r.s.cfg.Logs.Tail
		}
		r.s.log.Debug("following logs of %s (%s)", svc.Name, svc.ID)
		return streamLogs(ctx, out, newServiceLogSource(r.cli, svc.ID, tail), swarmFilter)
	})
}
