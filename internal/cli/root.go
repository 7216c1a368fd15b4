package cli

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/rileyhilliard/sitrep/internal/config"
	"github.com/rileyhilliard/sitrep/internal/docker"
	"github.com/rileyhilliard/sitrep/internal/errors"
	"github.com/rileyhilliard/sitrep/internal/exec"
	"github.com/rileyhilliard/sitrep/internal/logger"
	"github.com/rileyhilliard/sitrep/internal/ui"
)

// Global flags
var (
	cfgFile string
	verbose bool
	noColor bool
	logFile string
)

// rootCmd runs the dashboard when no subcommand is given.
var rootCmd = &cobra.Command{
	Use:   "sitrep",
	Short: "Live diagnostics for this host, its containers, and its swarm",
	Long: `sitrep answers "why is this machine slow?" in one screen.

It samples load, memory, disk, network, file descriptors, and the process
table every few seconds, ranks process groups over a rolling window, and
lets you act on Docker containers and swarm services without leaving the
terminal.

Run without arguments to open the dashboard, or use a subcommand for
one-shot output.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if noColor || os.Getenv("NO_COLOR") != "" {
			ui.DisableColors()
		}
		if verbose {
			_ = os.Setenv(logger.DebugEnv, "1")
		}
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		return dashboardCommand(dashboardOpts)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./.sitrep.yaml, then ~/.config/sitrep/config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable colored output")
	rootCmd.PersistentFlags().StringVar(&logFile, "log-file", "", "write logs to this file (the dashboard logs nowhere otherwise)")

	addDashboardFlags(rootCmd, &dashboardOpts)
}

// Execute runs the root command and exits non-zero on failure.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		if isUnknownCommandError(err) {
			name := extractUnknownCommand(err)
			err = errors.New(errors.ErrConfig,
				fmt.Sprintf("Unknown command %q", name),
				"Run 'sitrep --help' to see available commands.")
		}
		fmt.Fprint(os.Stderr, renderError(err))
		os.Exit(1)
	}
}

// renderError formats structured errors as-is and gives plain errors the
// same leading cross.
func renderError(err error) string {
	msg := err.Error()
	if !strings.HasPrefix(msg, ui.SymbolFail) {
		msg = ui.SymbolFail + " " + msg
	}
	if !strings.HasSuffix(msg, "\n") {
		msg += "\n"
	}
	return msg
}

// Config returns the --config flag value.
func Config() string {
	return cfgFile
}

func isUnknownCommandError(err error) bool {
	msg := err.Error()
	return strings.HasPrefix(msg, "unknown command") || strings.HasPrefix(msg, "unknown flag")
}

// extractUnknownCommand pulls the command name out of cobra's
// `unknown command "foo" for "sitrep"` message.
func extractUnknownCommand(err error) string {
	msg := err.Error()
	start := strings.Index(msg, `"`)
	if start == -1 {
		return ""
	}
	end := strings.Index(msg[start+1:], `"`)
	if end == -1 {
		return ""
	}
	return msg[start+1 : start+1+end]
}

// Collaborator constructors. Tests replace these with fakes.
var (
	newDockerAPI = func(cfg *config.Config) (docker.API, io.Closer, error) {
		engine, err := docker.NewEngine(cfg.Docker.Host, cfg.Docker.Timeout)
		if err != nil {
			return nil, nil, err
		}
		return engine, engine, nil
	}

	newRunner = func() exec.Runner {
		return exec.NewLocal()
	}
)

// session is the loaded configuration and logger shared by a command run.
type session struct {
	cfg     *config.Config
	cfgPath string
	log     logger.Logger
	closer  io.Closer
}

// openSession loads and validates config and sets up logging. Interactive
// commands pass quiet so nothing is written to the terminal the dashboard
// owns unless a log file is configured.
func openSession(quiet bool) (*session, error) {
	cfg, path, err := config.LoadOrDefault(Config())
	if err != nil {
		return nil, err
	}
	if err := config.Validate(cfg); err != nil {
		return nil, err
	}

	s := &session{cfg: cfg, cfgPath: path}

	dest := logFile
	if dest == "" {
		dest = config.ExpandTilde(cfg.LogFile)
	}
	switch {
	case dest != "":
		log, closer, err := logger.NewFileLogger(dest, "[sitrep]")
		if err != nil {
			return nil, errors.WrapWithCode(err, errors.ErrConfig,
				"Couldn't open log file "+dest,
				"Check the directory exists and is writable")
		}
		s.log, s.closer = log, closer
	case quiet:
		s.log = logger.Noop()
	default:
		s.log = logger.NewEnvLogger("[sitrep]")
	}
	return s, nil
}

func (s *session) Close() {
	if s.closer != nil {
		_ = s.closer.Close()
	}
}
