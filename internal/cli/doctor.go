package cli

import (
	"context"
	"fmt"
	"io"
	"runtime"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/rileyhilliard/sitrep/internal/config"
	"github.com/rileyhilliard/sitrep/internal/doctor"
	"github.com/rileyhilliard/sitrep/internal/errors"
	"github.com/rileyhilliard/sitrep/internal/logger"
	"github.com/rileyhilliard/sitrep/internal/metrics"
	"github.com/rileyhilliard/sitrep/internal/swarm"
	"github.com/rileyhilliard/sitrep/internal/ui"
	"github.com/rileyhilliard/sitrep/internal/util"
)

const doctorTimeout = 15 * time.Second

var doctorOutput OutputFlags

// newHostSource builds the process sampler the doctor probes. Tests replace it.
var newHostSource = func(log logger.Logger) metrics.HostSource {
	return metrics.NewGopsutilHost(log)
}

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Check what sitrep can see on this machine",
	Long: `Run diagnostics for every data source the dashboard reads.

Checks the config, the kernel interfaces and tools the System view samples,
the Docker daemon behind the Containers view and the swarm membership behind
the Swarm view. Warnings mean a view will be hidden or partly empty; failures
mean sitrep can't run properly.

Examples:
  sitrep doctor
  sitrep doctor -o json`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return doctorCommand(cmd.Context(), cmd.OutOrStdout())
	},
}

func init() {
	AddOutputFlags(doctorCmd, &doctorOutput)
	rootCmd.AddCommand(doctorCmd)
}

// DoctorOutput is the structured doctor report.
type DoctorOutput struct {
	Categories []CategoryOutput `json:"categories" yaml:"categories"`
	Summary    SummaryOutput    `json:"summary" yaml:"summary"`
}

// CategoryOutput is one category of check results.
type CategoryOutput struct {
	Name    string               `json:"name" yaml:"name"`
	Results []doctor.CheckResult `json:"results" yaml:"results"`
}

// SummaryOutput counts results by status.
type SummaryOutput struct {
	Pass     int  `json:"pass" yaml:"pass"`
	Warn     int  `json:"warn" yaml:"warn"`
	Fail     int  `json:"fail" yaml:"fail"`
	AllClear bool `json:"all_clear" yaml:"all_clear"`
}

func doctorCommand(ctx context.Context, out io.Writer) error {
	format, err := ParseOutputFormat(doctorOutput.Format)
	if err != nil {
		return err
	}
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithTimeout(ctx, doctorTimeout)
	defer cancel()

	cfg, log, closeLog := doctorEnvironment()
	defer closeLog()

	checks, closeChecks := collectChecks(cfg, log)
	defer closeChecks()

	results := doctor.RunAllParallel(ctx, checks)
	report := buildDoctorOutput(checks, results)

	if err := render(out, format, report, func(w io.Writer) error {
		return writeDoctorText(w, checks, results)
	}); err != nil {
		return err
	}
	if doctor.HasFailures(results) {
		n := doctor.CountByStatus(results)[doctor.StatusFail]
		return errors.New(errors.ErrCollect,
			fmt.Sprintf("%d %s failed", n, util.Pluralize(n, "check", "checks")),
			"Fix the failures above and run 'sitrep doctor' again")
	}
	return nil
}

// doctorEnvironment loads config without failing on it, since a broken
// config is one of the things the doctor reports.
func doctorEnvironment() (*config.Config, logger.Logger, func()) {
	s, err := openSession(false)
	if err == nil {
		return s.cfg, s.log, s.Close
	}
	cfg := config.DefaultConfig()
	if loaded, _, loadErr := config.LoadOrDefault(Config()); loadErr == nil {
		cfg = loaded
	}
	return cfg, logger.NewEnvLogger("[sitrep]"), func() {}
}

// collectChecks gathers every check in category order. The returned func
// releases the docker client.
func collectChecks(cfg *config.Config, log logger.Logger) ([]doctor.Check, func()) {
	var checks []doctor.Check
	checks = append(checks, doctor.NewConfigChecks(Config())...)
	checks = append(checks, doctor.NewSystemChecks(runtime.GOOS, newHostSource(log))...)

	release := func() {}
	api, closer, err := newDockerAPI(cfg)
	if err == nil {
		release = func() { _ = closer.Close() }
	}
	cli := swarm.NewCLI(newRunner(), cfg.Swarm.CLI, log)
	checks = append(checks, doctor.NewDockerChecks(api, err, cli, cfg.Swarm.CLI)...)
	return checks, release
}

func buildDoctorOutput(checks []doctor.Check, results []doctor.CheckResult) DoctorOutput {
	grouped := doctor.GroupByCategory(checks)
	report := DoctorOutput{Categories: make([]CategoryOutput, 0, len(grouped))}
	for _, cat := range doctor.Categories {
		indices := grouped[cat]
		if len(indices) == 0 {
			continue
		}
		co := CategoryOutput{Name: cat}
		for _, idx := range indices {
			co.Results = append(co.Results, results[idx])
		}
		report.Categories = append(report.Categories, co)
	}

	counts := doctor.CountByStatus(results)
	report.Summary = SummaryOutput{
		Pass:     counts[doctor.StatusPass],
		Warn:     counts[doctor.StatusWarn],
		Fail:     counts[doctor.StatusFail],
		AllClear: !doctor.HasIssues(results),
	}
	return report
}

func writeDoctorText(w io.Writer, checks []doctor.Check, results []doctor.CheckResult) error {
	fmt.Fprintln(w, ui.BoldStyle.Render("sitrep diagnostic report"))
	fmt.Fprintln(w)

	grouped := doctor.GroupByCategory(checks)
	for _, cat := range doctor.Categories {
		indices := grouped[cat]
		if len(indices) == 0 {
			continue
		}
		fmt.Fprintln(w, ui.BoldStyle.Render(cat))
		for _, idx := range indices {
			writeCheckResult(w, results[idx])
		}
		fmt.Fprintln(w)
	}

	fmt.Fprintln(w, strings.Repeat("━", 60))
	summary := doctor.Summary(results)
	if doctor.HasIssues(results) {
		fmt.Fprintln(w, ui.Fail(summary))
	} else {
		fmt.Fprintln(w, ui.Success(summary))
	}
	return nil
}

func writeCheckResult(w io.Writer, r doctor.CheckResult) {
	switch r.Status {
	case doctor.StatusPass:
		fmt.Fprintf(w, "  %s\n", ui.Success(r.Message))
	case doctor.StatusWarn:
		fmt.Fprintf(w, "  %s\n", ui.Warning(r.Message))
	default:
		fmt.Fprintf(w, "  %s\n", ui.Fail(r.Message))
	}
	if r.Suggestion != "" && r.Status != doctor.StatusPass {
		for _, line := range strings.Split(r.Suggestion, "\n") {
			fmt.Fprintf(w, "    %s\n", ui.MutedStyle.Render(line))
		}
	}
}
