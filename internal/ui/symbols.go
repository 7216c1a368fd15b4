package ui

// Unicode symbols for status indicators.
const (
	SymbolSuccess = "✓" // Action completed
	SymbolFail    = "✗" // Action failed
	SymbolWarning = "⚠" // Needs attention
	SymbolPending = "○" // Nothing happened
)

// Success renders a green checkmark line.
func Success(msg string) string {
	return SuccessStyle.Render(SymbolSuccess) + " " + msg
}

// Fail renders a red cross line.
func Fail(msg string) string {
	return ErrorStyle.Render(SymbolFail) + " " + msg
}

// Warning renders a yellow warning line.
func Warning(msg string) string {
	return WarningStyle.Render(SymbolWarning + " " + msg)
}

// Pending renders a muted line for no-op outcomes.
func Pending(msg string) string {
	return MutedStyle.Render(SymbolPending + " " + msg)
}
