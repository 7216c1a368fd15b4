package cli

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/rileyhilliard/sitrep/internal/errors"
	"github.com/rileyhilliard/sitrep/internal/metrics"
	"github.com/rileyhilliard/sitrep/internal/ui"
	"github.com/rileyhilliard/sitrep/internal/util"
)

// systemSampler is the part of the metrics engine snapshot needs.
type systemSampler interface {
	Tick(ctx context.Context) *metrics.Snapshot
}

// newSampler builds the engine for headless sampling. Tests replace it.
var newSampler = func(s *session, col metrics.SortColumn) systemSampler {
	return newSystemMonitor(s, col, nil)
}

var (
	snapshotOutput  OutputFlags
	snapshotSamples int
	snapshotWait    string
	snapshotSort    string
)

var snapshotCmd = &cobra.Command{
	Use:   "snapshot",
	Short: "Sample the system and print one snapshot",
	Long: `Take a few samples without the dashboard and print the last snapshot.

Rates and rankings need history, so the default takes 3 samples one
interval apart. Use --samples 1 for an instant (rate-less) reading.

Examples:
  sitrep snapshot
  sitrep snapshot --samples 5 --wait 1s
  sitrep snapshot -o json | jq '.data.top[0]'`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return snapshotCommand(cmd.Context(), cmd.OutOrStdout())
	},
}

func init() {
	AddOutputFlags(snapshotCmd, &snapshotOutput)
	snapshotCmd.Flags().IntVarP(&snapshotSamples, "samples", "n", 3, "number of samples to take")
	snapshotCmd.Flags().StringVar(&snapshotWait, "wait", "", "time between samples (default: config interval)")
	snapshotCmd.Flags().StringVar(&snapshotSort, "sort", "cpu", "process sort column: cpu, mem, read, write, down, up")
	rootCmd.AddCommand(snapshotCmd)
}

func snapshotCommand(ctx context.Context, out io.Writer) error {
	format, err := ParseOutputFormat(snapshotOutput.Format)
	if err != nil {
		return err
	}
	if ctx == nil {
		ctx = context.Background()
	}

	snap, err := takeSnapshot(ctx)
	if err != nil {
		return renderFailure(out, format, err)
	}
	return render(out, format, snap, func(w io.Writer) error {
		return writeSnapshotText(w, snap)
	})
}

func takeSnapshot(ctx context.Context) (*metrics.Snapshot, error) {
	if snapshotSamples < 1 {
		return nil, errors.New(errors.ErrConfig,
			"--samples must be at least 1, got "+strconv.Itoa(snapshotSamples),
			"Use --samples 1 for a single reading.")
	}
	col, err := metrics.ParseSortColumn(snapshotSort)
	if err != nil {
		return nil, err
	}

	s, err := openSession(false)
	if err != nil {
		return nil, err
	}
	defer s.Close()

	wait := s.cfg.Interval
	if d, err := ParseInterval(snapshotWait); err != nil {
		return nil, err
	} else if d > 0 {
		wait = d
	}

	sampler := newSampler(s, col)
	var snap *metrics.Snapshot
	for i := 0; i < snapshotSamples; i++ {
		if i > 0 {
			select {
			case <-ctx.Done():
				return nil, errors.WrapWithCode(ctx.Err(), errors.ErrCollect,
					"Sampling interrupted", "")
			case <-time.After(wait):
			}
		}
		snap = sampler.Tick(ctx)
		s.log.Debug("sample %d/%d: %d process groups", i+1, snapshotSamples, len(snap.Top))
	}
	return snap, nil
}

// writeSnapshotText prints a compact human summary.
func writeSnapshotText(w io.Writer, s *metrics.Snapshot) error {
	p := func(format string, args ...interface{}) {
		fmt.Fprintf(w, format, args...)
	}

	cores := max(s.CoreCount, 1)
	loadPct := s.LoadAvg.One / float64(cores) * 100
	p("%s %s  %s %.2f %.2f %.2f (%s of %d %s)\n",
		ui.BoldStyle.Render("Host"), s.Time.Format(time.RFC3339),
		ui.MutedStyle.Render("load"), s.LoadAvg.One, s.LoadAvg.Five, s.LoadAvg.Fifteen,
		util.Percent(loadPct), cores, util.Pluralize(cores, "core", "cores"))

	var memPct float64
	if s.Memory.Total > 0 {
		memPct = float64(s.Memory.Used) / float64(s.Memory.Total) * 100
	}
	p("%s %s / %s (%s)  %s %s / %s  %s %s\n",
		ui.BoldStyle.Render("Memory"), util.Bytes(s.Memory.Used), util.Bytes(s.Memory.Total), util.Percent(memPct),
		ui.MutedStyle.Render("swap"), util.Bytes(s.Memory.SwapUsed), util.Bytes(s.Memory.SwapTotal),
		ui.MutedStyle.Render("disk busy"), util.Percent(s.DiskBusyPercent))

	for _, d := range s.DiskWarnings {
		fmt.Fprintln(w, ui.Warning(fmt.Sprintf("LOW DISK %s: %.1f%% free (%s of %s)",
			d.MountPoint, d.PercentFree, util.Bytes(d.AvailableBytes), util.Bytes(d.TotalBytes))))
	}

	p("%s established %d, listen %d, time_wait %d, close_wait %d\n",
		ui.BoldStyle.Render("Sockets"), s.Sockets.Established, s.Sockets.Listen, s.Sockets.TimeWait, s.Sockets.CloseWait)
	for _, iface := range s.Network.Interfaces {
		p("  %-12s ↓ %-12s ↑ %s\n", iface.Name, util.Rate(float64(iface.RxRate)), util.Rate(float64(iface.TxRate)))
	}

	fds := util.Count(s.Fd.SystemUsed)
	if s.Fd.SystemMax > 0 {
		fds += " / " + util.Count(s.Fd.SystemMax)
	}
	p("%s %s  %s %s\n", ui.BoldStyle.Render("Descriptors"), fds,
		ui.MutedStyle.Render("context switches"), util.Count(s.ContextSwitches.Total))

	sortLabel := s.Sort
	if s.Frozen {
		sortLabel += ", frozen"
	}
	p("\n%s %s\n", ui.BoldStyle.Render("Top process groups"), ui.MutedStyle.Render("(sort: "+sortLabel+")"))
	if len(s.Top) == 0 {
		fmt.Fprintln(w, ui.Pending("No processes sampled"))
		return nil
	}

	rows := make([][]string, 0, len(s.Top))
	for _, g := range s.Top {
		rows = append(rows, []string{
			strconv.Itoa(int(g.Pid)),
			util.Truncate(g.Name, 28),
			fmt.Sprintf("%.1f", g.CPU),
			util.Bytes(g.Memory),
			util.Rate(g.ReadRate),
			util.Rate(g.WriteRate),
			util.Rate(g.NetRxRate),
			util.Rate(g.NetTxRate),
			strconv.Itoa(g.ChildCount),
		})
	}
	_, err := fmt.Fprint(w, ui.RenderTable([]ui.TableColumn{
		{Title: "PID"}, {Title: "NAME"}, {Title: "CPU%"}, {Title: "MEM"},
		{Title: "READ/s"}, {Title: "WRITE/s"}, {Title: "DOWN/s"}, {Title: "UP/s"}, {Title: "KIDS"},
	}, rows))
	return err
}
