// Package ui provides styled terminal output for sitrep's one-shot commands.
//
// The interactive dashboard has its own styles in internal/dashboard; this
// package covers plain command output such as container and swarm listings,
// action results, and snapshot summaries.
//
// # Color Scheme
//
// Colors are ANSI codes so output follows the terminal's theme:
//
//	ColorSuccess   (green)  - Healthy state, completed actions
//	ColorError     (red)    - Failures and down nodes
//	ColorWarning   (yellow) - Degraded services, low disk
//	ColorInfo      (cyan)   - Informational messages
//	ColorMuted     (gray)   - Secondary text, timing info
//
// Use DisableColors() to switch to monochrome output (for --no-color flag).
//
// # Symbols
//
//	SymbolSuccess  (checkmark)  - Action completed
//	SymbolFail     (X)          - Action failed
//	SymbolWarning  (triangle)   - Something needs attention
//	SymbolPending  (circle)     - Nothing happened (cancelled, dry run)
//
// # Tables
//
// RenderTable lays out rows under a bold header, padding by display width so
// wide characters and styled cells line up:
//
//	fmt.Print(ui.RenderTable([]ui.TableColumn{{Title: "NAME"}, {Title: "STATE"}}, rows))
package ui
