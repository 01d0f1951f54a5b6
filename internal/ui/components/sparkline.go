package components

import (
	"strings"

	"github.com/guptarohit/asciigraph"

	"github.com/j-veylop/quotabar/internal/models"
	"github.com/j-veylop/quotabar/internal/ui/styles"
)

// sparkChars are vertical block characters from lowest to highest.
var sparkChars = []rune{'▁', '▂', '▃', '▄', '▅', '▆', '▇', '█'}

// RenderLineChart creates a line chart of usage history.
func RenderLineChart(data []float64, width, height int, caption string) string {
	if len(data) < 2 {
		return styles.HelpStyle.Render("collecting history...")
	}
	if width < 20 {
		width = 20
	}
	if height < 3 {
		height = 3
	}

	graph := asciigraph.Plot(data,
		asciigraph.Height(height),
		asciigraph.Width(width),
		asciigraph.Caption(caption),
		asciigraph.LowerBound(0),
	)

	return graph
}

// RenderSparkline creates a compact inline sparkline chart. Values are
// used percentages, so the height scale is fixed at 0-100 rather than
// normalized to the series maximum.
func RenderSparkline(values []float64, width int) string {
	if len(values) == 0 {
		return ""
	}

	var result strings.Builder
	step := float64(len(values)) / float64(width)
	if step < 1 {
		step = 1
	}

	for i := 0; i < width && int(float64(i)*step) < len(values); i++ {
		idx := int(float64(i) * step)
		val := models.ClampPercent(values[idx])

		level := int(val / 100 * float64(len(sparkChars)-1))
		if level >= len(sparkChars) {
			level = len(sparkChars) - 1
		}
		if level < 0 {
			level = 0
		}
		result.WriteRune(sparkChars[level])
	}

	return result.String()
}

// RenderUsageSparkline creates a sparkline with each point colored by its
// usage severity.
func RenderUsageSparkline(values []float64, width int) string {
	if len(values) == 0 {
		return ""
	}

	var result strings.Builder
	step := float64(len(values)) / float64(width)
	if step < 1 {
		step = 1
	}

	for i := 0; i < width && int(float64(i)*step) < len(values); i++ {
		idx := int(float64(i) * step)
		val := models.ClampPercent(values[idx])

		level := int(val / 100 * float64(len(sparkChars)-1))
		if level >= len(sparkChars) {
			level = len(sparkChars) - 1
		}
		if level < 0 {
			level = 0
		}

		style := styles.GetUsageStyle(values[idx])
		result.WriteString(style.Render(string(sparkChars[level])))
	}

	return result.String()
}
