package dashboard

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// HelpBinding represents a single keyboard shortcut entry.
type HelpBinding struct {
	Key  string
	Desc string
}

var helpSections = []struct {
	title    string
	bindings []HelpBinding
}{
	{"Global", []HelpBinding{
		{"q / Ctrl+C", "Quit"},
		{"Tab / 1-3", "Switch view"},
		{"r", "Refresh now"},
		{"?", "Toggle this help"},
	}},
	{"System", []HelpBinding{
		{"up / down", "Select process group"},
		{"s", "Cycle sort column"},
		{"Enter", "Expand or collapse group (freezes ranking)"},
		{"c", "Collapse all"},
	}},
	{"Containers", []HelpBinding{
		{"s", "Start"},
		{"x x", "Stop (press twice)"},
		{"R R", "Restart (press twice)"},
		{"l / Enter", "Follow logs"},
	}},
	{"Swarm", []HelpBinding{
		{"Enter", "Expand stack or open service tasks"},
		{"R R", "Rolling restart (press twice)"},
		{"+ / - -", "Scale up / down"},
		{"l", "Follow service logs"},
	}},
	{"Logs", []HelpBinding{
		{"up / down", "Scroll"},
		{"G / End", "Follow newest"},
		{"e", "Errors only"},
		{"/", "Search"},
		{"Esc", "Back"},
	}},
}

var (
	helpBoxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(ColorAccent).
			Padding(1, 2)

	helpTitleStyle = lipgloss.NewStyle().
			Foreground(ColorAccent).
			Bold(true)

	helpKeyStyle = lipgloss.NewStyle().
			Foreground(ColorTextPrimary).
			Bold(true).
			Width(14)

	helpDescStyle = lipgloss.NewStyle().
			Foreground(ColorTextSecondary)
)

// renderHelpOverlay renders a centered box listing every shortcut.
func (m Model) renderHelpOverlay() string {
	var lines []string
	for i, section := range helpSections {
		if i > 0 {
			lines = append(lines, "")
		}
		lines = append(lines, helpTitleStyle.Render(section.title))
		for _, b := range section.bindings {
			lines = append(lines, helpKeyStyle.Render(b.Key)+helpDescStyle.Render(b.Desc))
		}
	}
	lines = append(lines, "", LabelStyle.Render("Press ? to close"))

	box := helpBoxStyle.Render(strings.Join(lines, "\n"))
	if m.width == 0 || m.height == 0 {
		return box
	}
	return lipgloss.Place(m.width, m.height, lipgloss.Center, lipgloss.Center, box)
}
