package ui

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// TableColumn defines a table column. A zero Width sizes the column to its
// widest cell.
type TableColumn struct {
	Title string
	Width int
}

var headerStyle = lipgloss.NewStyle().
	Bold(true).
	Foreground(ColorPrimary)

// RenderTable renders a non-interactive table for CLI output. Cells may
// carry styling; widths are measured on the visible text. Returns an empty
// string when there are no rows.
func RenderTable(columns []TableColumn, rows [][]string) string {
	if len(rows) == 0 {
		return ""
	}

	widths := make([]int, len(columns))
	for i, c := range columns {
		widths[i] = c.Width
		if widths[i] > 0 {
			continue
		}
		widths[i] = lipgloss.Width(c.Title)
		for _, row := range rows {
			if i < len(row) {
				widths[i] = max(widths[i], lipgloss.Width(row[i]))
			}
		}
	}

	var b strings.Builder
	titles := make([]string, len(columns))
	for i, c := range columns {
		titles[i] = c.Title
	}
	b.WriteString(headerStyle.Render(joinCells(titles, widths)))
	b.WriteString("\n")
	for _, row := range rows {
		b.WriteString(joinCells(row, widths))
		b.WriteString("\n")
	}
	return b.String()
}

func joinCells(cells []string, widths []int) string {
	parts := make([]string, len(widths))
	for i := range widths {
		var cell string
		if i < len(cells) {
			cell = cells[i]
		}
		if i == len(widths)-1 {
			parts[i] = cell
			continue
		}
		parts[i] = padRight(cell, widths[i])
	}
	return strings.TrimRight(strings.Join(parts, "  "), " ")
}

// padRight pads s to width, accounting for ANSI codes.
func padRight(s string, width int) string {
	visibleLen := lipgloss.Width(s)
	if visibleLen >= width {
		return s
	}
	return s + strings.Repeat(" ", width-visibleLen)
}
