// Package dashboard implements sitrep's interactive terminal view.
//
// # Architecture
//
// The package uses the Bubble Tea framework (Model-Update-View):
//
//   - Model: the current tab, the last Snapshot, container and swarm state,
//     selections, and any pending confirmation
//   - Update: processes keystrokes, ticks, refresh results, and config reloads
//   - View: renders the active tab to a string
//
// # Message Flow
//
// Two timers drive the loop:
//
//  1. tickMsg fires at the sampling interval. refreshCmd runs the metrics
//     tick (plus the container or swarm fetch for the active tab) on a
//     command goroutine and returns a refreshMsg.
//  2. pollMsg fires every 100ms. It collects finished background actions,
//     drains the active log stream into its buffer, and expires stale
//     confirmations. Nothing on this path blocks.
//
// Mutating actions never run on the update loop. They are submitted to the
// container or swarm executor and their outcome shows up on a later poll.
package dashboard
