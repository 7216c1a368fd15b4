// Package cli implements the sitrep command-line interface.
//
// Running sitrep with no subcommand opens the dashboard. The subcommands
// give one-shot access to the same collaborators for scripts and quick
// checks:
//
//	sitrep                     - Live dashboard (also: sitrep dashboard)
//	sitrep snapshot            - Sample the host and print one report
//	sitrep containers [...]    - List, start/stop/restart, follow logs
//	sitrep swarm [...]         - Cluster status, services, tasks, scale, restart
//	sitrep doctor              - Check config, data sources, docker and swarm access
//	sitrep version             - Build information
//
// # Sessions
//
// Every command opens a session: config is loaded from --config, then
// ./.sitrep.yaml, then ~/.config/sitrep/config.yaml, and validated before
// anything is sampled. Logs go to --log-file (or log_file in config) when
// set. Otherwise one-shot commands log to stderr and the dashboard logs
// nowhere so it doesn't corrupt the screen.
//
// # Actions
//
// Mutations from the command line go through the same action executors the
// dashboard uses, so a one-shot "sitrep containers restart web" reports
// exactly what the dashboard's status bar would. Destructive actions ask
// for confirmation on a terminal and are refused without one unless --yes
// is given.
//
// # Output
//
// Commands that print data accept --output text|json|yaml. JSON output is
// wrapped in an envelope with success, data and error fields; failures are
// reported in the same envelope with a stable error code.
package cli
