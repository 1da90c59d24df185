// Package channel models the four oscilloscope traces and their measurements
package channel

import (
	"fmt"
	"math"
	"strings"
)

// Kind identifies one of the four channels
type Kind int

const (
	A Kind = iota
	B
	Math
	Filter
)

// Kinds lists every channel in display order
var Kinds = []Kind{A, B, Math, Filter}

func (k Kind) String() string {
	switch k {
	case A:
		return "A"
	case B:
		return "B"
	case Math:
		return "Math"
	case Filter:
		return "Filter"
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// Physical reports whether the channel is sampled by the instrument
func (k Kind) Physical() bool {
	return k == A || k == B
}

// ParseKind parses "A", "B", "Math" or "Filter"
func ParseKind(s string) (Kind, error) {
	for _, k := range Kinds {
		if strings.EqualFold(strings.TrimSpace(s), k.String()) {
			return k, nil
		}
	}
	return 0, fmt.Errorf("unknown channel %q", s)
}

// Color is the RGB colour a channel is drawn with
type Color struct {
	R, G, B uint8
}

// Hex returns the colour as #rrggbb
func (c Color) Hex() string {
	return fmt.Sprintf("#%02x%02x%02x", c.R, c.G, c.B)
}

var defaultColors = map[Kind]Color{
	A:      {255, 0, 0},
	B:      {0, 255, 0},
	Math:   {255, 255, 0},
	Filter: {173, 153, 226},
}

// Channel is a single trace: its samples, the subset currently on screen
// and the measurements derived from them. Channels are owned by the
// acquisition pipeline and only mutated from there.
type Channel struct {
	kind  Kind
	color Color

	samples    []float64
	visible    []float64
	bandpassed []float64
	stats      Stats

	availableForPlotting bool
	plotted              bool
	verticallyOffScreen  bool
}

// New creates a channel with its default colour. Physical channels start
// available for plotting, derived ones become available once configured.
func New(kind Kind) *Channel {
	inf := math.Inf(-1)
	return &Channel{
		kind:                 kind,
		color:                defaultColors[kind],
		availableForPlotting: kind.Physical(),
		stats:                Stats{Min: inf, Max: inf, P2P: inf, Mean: inf, StdDev: inf, Frequency: math.NaN()},
	}
}

func (c *Channel) Kind() Kind         { return c.kind }
func (c *Channel) Name() string       { return c.kind.String() }
func (c *Channel) Color() Color       { return c.color }
func (c *Channel) SetColor(col Color) { c.color = col }

// SetSamples replaces the samples and recomputes every measurement from
// the full set
func (c *Channel) SetSamples(samples []float64, rateHz float64) {
	c.samples = samples
	c.visible = samples
	stats := ComputeStatistics(samples)
	stats.Frequency = EstimateFrequency(samples, rateHz)
	c.stats = stats
}

// SetVisible replaces the on-screen subset and recomputes the descriptive
// statistics from it. The frequency measured on the full set is kept.
func (c *Channel) SetVisible(visible []float64) {
	c.visible = visible
	stats := ComputeStatistics(visible)
	stats.Frequency = c.stats.Frequency
	c.stats = stats
}

// Samples returns the last acquired samples. The slice must not be modified.
func (c *Channel) Samples() []float64 { return c.samples }

// Visible returns the samples currently within the display bounds
func (c *Channel) Visible() []float64 { return c.visible }

// Stats returns the current measurements. Frequency is NaN while the trace
// is vertically off screen.
func (c *Channel) Stats() Stats {
	s := c.stats
	if c.verticallyOffScreen {
		s.Frequency = math.NaN()
	}
	return s
}

// SetBandpassed stores the demodulated trace used in bandpass mode
func (c *Channel) SetBandpassed(samples []float64) { c.bandpassed = samples }

// Bandpassed returns the demodulated trace
func (c *Channel) Bandpassed() []float64 { return c.bandpassed }

func (c *Channel) AvailableForPlotting() bool      { return c.availableForPlotting }
func (c *Channel) SetAvailableForPlotting(ok bool) { c.availableForPlotting = ok }
func (c *Channel) Plotted() bool                   { return c.plotted }
func (c *Channel) SetPlotted(plotted bool)         { c.plotted = plotted }
func (c *Channel) VerticallyOffScreen() bool       { return c.verticallyOffScreen }
func (c *Channel) SetVerticallyOffScreen(off bool) { c.verticallyOffScreen = off }

// Snapshot is an immutable copy of a channel handed to observers on other
// goroutines
type Snapshot struct {
	Kind                 Kind
	Name                 string
	Color                string
	Samples              []float64
	Stats                Stats
	AvailableForPlotting bool
	Plotted              bool
	VerticallyOffScreen  bool
}

// Snapshot copies the current state of the channel
func (c *Channel) Snapshot() Snapshot {
	samples := make([]float64, len(c.samples))
	copy(samples, c.samples)
	return Snapshot{
		Kind:                 c.kind,
		Name:                 c.kind.String(),
		Color:                c.color.Hex(),
		Samples:              samples,
		Stats:                c.Stats(),
		AvailableForPlotting: c.availableForPlotting,
		Plotted:              c.plotted,
		VerticallyOffScreen:  c.verticallyOffScreen,
	}
}
