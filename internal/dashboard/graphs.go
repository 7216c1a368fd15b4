package dashboard

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// sparklineBlocks are block characters for 8-level vertical resolution (lowest to highest).
var sparklineBlocks = []rune{'▁', '▂', '▃', '▄', '▅', '▆', '▇', '█'}

// RenderSparkline draws the most recent width values. Percentage data
// (everything within 0-100) uses a fixed 0-100 scale so the line doesn't
// jump around when load is flat; anything else scales to its own range. The
// color follows the latest value.
func RenderSparkline(data []float64, width int) string {
	if len(data) == 0 || width <= 0 {
		return ""
	}
	if len(data) > width {
		data = data[len(data)-width:]
	}

	lo, hi := data[0], data[0]
	for _, v := range data {
		lo = min(lo, v)
		hi = max(hi, v)
	}
	if lo >= 0 && hi <= 100 {
		lo, hi = 0, 100
	}

	levels := len(sparklineBlocks)
	var b strings.Builder
	for _, v := range data {
		level := levels / 2
		if hi > lo {
			level = int((v - lo) / (hi - lo) * float64(levels-1))
			level = max(0, min(level, levels-1))
		}
		b.WriteRune(sparklineBlocks[level])
	}

	return lipgloss.NewStyle().Foreground(MetricColor(data[len(data)-1])).Render(b.String())
}

// RenderBar draws a horizontal usage bar for a percentage.
func RenderBar(percent float64, width int) string {
	if width <= 0 {
		return ""
	}
	percent = max(0, min(percent, 100))
	filled := int(percent / 100 * float64(width))
	bar := strings.Repeat("█", filled) + strings.Repeat("░", width-filled)
	return lipgloss.NewStyle().Foreground(MetricColor(percent)).Render(bar)
}
