package display

import (
	"fmt"
	"io"
	"math"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

var (
	labelStyle = lipgloss.NewStyle().Bold(true).Width(8)
	valueStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#C0C0C0"))
	mutedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#7A7A7A"))
	warnStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF99CC"))
)

// Console prints the measurement labels of each redraw, one line per
// trace, in the trace colour
type Console struct {
	out io.Writer
}

// NewConsole creates a console sink writing to out
func NewConsole(out io.Writer) *Console {
	return &Console{out: out}
}

func formatVolts(v float64) string {
	if math.IsInf(v, 0) || math.IsNaN(v) {
		return "n/a"
	}
	return fmt.Sprintf("%.3fV", v)
}

// FormatFrequency renders a frequency with a unit prefix, or n/a when it
// is undefined
func FormatFrequency(hz float64) string {
	switch {
	case math.IsNaN(hz) || math.IsInf(hz, 0):
		return "n/a"
	case hz >= 1e6:
		return fmt.Sprintf("%.3fMHz", hz/1e6)
	case hz >= 1e3:
		return fmt.Sprintf("%.3fkHz", hz/1e3)
	default:
		return fmt.Sprintf("%.1fHz", hz)
	}
}

// Line renders the label line for one trace
func (c *Console) Line(t Trace) string {
	name := labelStyle.Foreground(lipgloss.Color(t.Color.Hex())).Render(t.Name)

	fields := []string{
		mutedStyle.Render("min ") + valueStyle.Render(formatVolts(t.Stats.Min)),
		mutedStyle.Render("max ") + valueStyle.Render(formatVolts(t.Stats.Max)),
		mutedStyle.Render("p2p ") + valueStyle.Render(formatVolts(t.Stats.P2P)),
		mutedStyle.Render("mean ") + valueStyle.Render(formatVolts(t.Stats.Mean)),
		mutedStyle.Render("sd ") + valueStyle.Render(formatVolts(t.Stats.StdDev)),
		mutedStyle.Render("freq ") + valueStyle.Render(FormatFrequency(t.Stats.Frequency)),
	}

	line := name + strings.Join(fields, "  ")
	if t.OffScreen {
		line += "  " + warnStyle.Render("off screen")
	}
	if t.Bandpass {
		line += "  " + mutedStyle.Render("bandpass")
	}
	return line
}

// Publish writes one line per trace
func (c *Console) Publish(f Frame) {
	for _, t := range f.Traces {
		fmt.Fprintln(c.out, c.Line(t))
	}
}
