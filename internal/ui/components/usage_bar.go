// Package components provides reusable terminal UI widgets.
package components

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/j-veylop/quotabar/internal/logger"
	"github.com/j-veylop/quotabar/internal/models"
	"github.com/j-veylop/quotabar/internal/ui/styles"
)

// Gradient endpoints for the usage scale. Low usage renders green and the
// fill fades to red as a window approaches its limit.
const (
	gradientStartHex = "#51cf66"
	gradientEndHex   = "#ff6b6b"
)

// DefaultBarWidth is the bar width used when none is given.
const DefaultBarWidth = 30

// UsageBar renders a rate-window used percentage as a horizontal bar.
type UsageBar struct {
	progress progress.Model
	percent  float64
	label    string
	width    int
}

// NewUsageBar creates a usage bar with the default width.
func NewUsageBar() UsageBar {
	return NewUsageBarWithWidth(DefaultBarWidth)
}

// NewUsageBarWithWidth creates a usage bar with a custom width.
func NewUsageBarWithWidth(width int) UsageBar {
	p := progress.New(
		progress.WithScaledGradient(gradientStartHex, gradientEndHex),
		progress.WithWidth(width),
		progress.WithoutPercentage(),
	)

	return UsageBar{
		progress: p,
		width:    width,
	}
}

// Init implements tea.Model.
func (b UsageBar) Init() tea.Cmd {
	return nil
}

// Update handles progress animation frames.
func (b UsageBar) Update(msg tea.Msg) (UsageBar, tea.Cmd) {
	if frame, ok := msg.(progress.FrameMsg); ok {
		model, cmd := b.progress.Update(frame)
		b.progress = model.(progress.Model)
		return b, cmd
	}
	return b, nil
}

// SetPercent stores the used percentage, clamped for display.
func (b *UsageBar) SetPercent(percent float64) {
	b.percent = models.ClampPercent(percent)
}

// SetLabel updates the label rendered in front of the bar.
func (b *UsageBar) SetLabel(label string) {
	b.label = label
}

// SetWidth resizes the bar.
func (b *UsageBar) SetWidth(width int) {
	b.width = width
	b.progress.Width = width
}

// View renders a labeled bar with a severity-colored percentage readout.
func (b UsageBar) View(percent float64, label string, width int) string {
	display := models.ClampPercent(percent)

	barWidth := max(width-len(label)-8, 10)
	b.progress.Width = barWidth

	bar := b.progress.ViewAs(display / 100)
	pct := styles.GetUsageStyle(percent).Render(fmt.Sprintf("%3.0f%%", display))
	labelStr := lipgloss.NewStyle().Foreground(styles.TextSecondary).Render(label)

	return fmt.Sprintf("%s %s %s", labelStr, bar, pct)
}

// ViewCompact renders just the bar and percentage.
func (b UsageBar) ViewCompact(percent float64, width int) string {
	display := models.ClampPercent(percent)

	barWidth := max(width-6, 10)
	b.progress.Width = barWidth

	bar := b.progress.ViewAs(display / 100)
	pct := styles.GetUsageStyle(percent).Render(fmt.Sprintf("%.0f%%", display))

	return fmt.Sprintf("%s %s", bar, pct)
}

// RenderGradientBar renders a block bar whose fill fades from green to red
// as usage climbs. Unlike the bubbles progress gradient, the color of each
// cell is fixed on the absolute scale, so 50% usage always ends in yellow.
func RenderGradientBar(percent float64, width int) string {
	if width < 1 {
		width = 1
	}

	display := models.ClampPercent(percent)
	filled := min(int(display/100*float64(width)), width)

	var sb strings.Builder
	for i := 0; i < width; i++ {
		if i < filled {
			t := 0.0
			if width > 1 {
				t = float64(i) / float64(width-1)
			}
			color := interpolateColor(gradientStartHex, gradientEndHex, t)
			sb.WriteString(lipgloss.NewStyle().Foreground(lipgloss.Color(color)).Render("█"))
		} else {
			sb.WriteString(lipgloss.NewStyle().Foreground(styles.BgLight).Render("░"))
		}
	}

	return sb.String()
}

// interpolateColor blends two hex colors at position t in [0, 1].
func interpolateColor(startHex, endHex string, t float64) string {
	r1, g1, b1 := hexToRGB(startHex)
	r2, g2, b2 := hexToRGB(endHex)

	r := int(float64(r1) + (float64(r2)-float64(r1))*t)
	g := int(float64(g1) + (float64(g2)-float64(g1))*t)
	b := int(float64(b1) + (float64(b2)-float64(b1))*t)

	return fmt.Sprintf("#%02x%02x%02x", r, g, b)
}

// hexToRGB parses a #rrggbb color into its components.
func hexToRGB(hex string) (int, int, int) {
	hex = strings.TrimPrefix(hex, "#")

	var r, g, b int
	if _, err := fmt.Sscanf(hex, "%02x%02x%02x", &r, &g, &b); err != nil {
		logger.Error("failed to parse hex color", "hex", hex, "error", err)
		return 255, 255, 255
	}
	return r, g, b
}

// SimpleUsageBar renders a plain-text bar for non-TTY output.
func SimpleUsageBar(percent float64, label string, width int) string {
	display := models.ClampPercent(percent)

	barWidth := max(width-len(label)-12, 10)
	filled := min(int(display/100*float64(barWidth)), barWidth)

	bar := strings.Repeat("█", filled) + strings.Repeat("░", barWidth-filled)

	return fmt.Sprintf("%s [%s] %5.1f%%", label, bar, display)
}

// shimmerFrames animates loading bars while a fetch is in flight.
var shimmerFrames = []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"}

// SimpleUsageBarLoading renders a shimmering placeholder bar for a window
// whose first snapshot has not arrived yet.
func SimpleUsageBarLoading(label string, width, frame int) string {
	barWidth := max(width-len(label)-12, 10)

	pos := frame % barWidth
	dot := shimmerFrames[frame%len(shimmerFrames)]

	var sb strings.Builder
	for i := 0; i < barWidth; i++ {
		if i == pos {
			sb.WriteString(dot)
		} else {
			sb.WriteString("░")
		}
	}

	style := lipgloss.NewStyle().Foreground(styles.Subtle)
	return fmt.Sprintf("%s [%s]  --.-%%", label, style.Render(sb.String()))
}

// SlotLabel returns a short label for a rate window slot. Windows that
// report their span are labeled by duration ("5h", "7d"); the rest fall
// back to the slot name.
func SlotLabel(slot string, windowMinutes int64) string {
	if windowMinutes > 0 {
		switch {
		case windowMinutes%(24*60) == 0:
			return fmt.Sprintf("%dd", windowMinutes/(24*60))
		case windowMinutes%60 == 0:
			return fmt.Sprintf("%dh", windowMinutes/60)
		default:
			return fmt.Sprintf("%dm", windowMinutes)
		}
	}
	return slot
}

// FormatReset describes when a rate window resets. A concrete timestamp
// wins over the provider's own description.
func FormatReset(resetsAt *time.Time, description string, now time.Time) string {
	if resetsAt != nil {
		d := resetsAt.Sub(now)
		if d <= 0 {
			return "resetting"
		}
		return "resets in " + formatDuration(d)
	}
	if description != "" {
		return description
	}
	return ""
}

// formatDuration renders a duration in the largest two useful units.
func formatDuration(d time.Duration) string {
	if d < 0 {
		return "---"
	}

	totalMinutes := int(d.Minutes())
	days := totalMinutes / (24 * 60)
	hours := (totalMinutes % (24 * 60)) / 60
	minutes := totalMinutes % 60

	switch {
	case days > 0:
		return fmt.Sprintf("%dd %02dh", days, hours)
	case hours > 0:
		return fmt.Sprintf("%dh %02dm", hours, minutes)
	default:
		return fmt.Sprintf("%dm", minutes)
	}
}
