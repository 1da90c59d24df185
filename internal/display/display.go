// Package display connects the acquisition pipeline to its output surfaces.
// Display is what the pipeline drives; Screen implements it by projecting
// each trace onto the 1000x650 oscilloscope grid and handing the result to
// sinks such as the console label printer and the websocket publisher.
package display

import "digiscope-client/internal/channel"

// Display receives plot requests from the acquisition pipeline. All calls
// for one redraw happen between ClearGrid and Refresh.
type Display interface {
	// ClearGrid starts a new redraw
	ClearGrid()
	// SetTriggerIndex marks the sample at which the burst triggered
	SetTriggerIndex(i int)
	// PlotChannel draws a trace at verticalRes volts per division. In
	// bandpass mode channel A is drawn from its demodulated samples. The
	// display updates the channel's visible subset and off screen flag.
	PlotChannel(verticalRes float64, ch *channel.Channel, bandpass bool)
	// UpdateResolution sets the horizontal scaling factor, the ratio of
	// the acquired to the displayed time per division
	UpdateResolution(scale float64)
	// Refresh finishes the redraw
	Refresh()
}

// Nop is a display that draws nothing and leaves channels untouched
type Nop struct{}

func (Nop) ClearGrid()                                  {}
func (Nop) SetTriggerIndex(int)                         {}
func (Nop) PlotChannel(float64, *channel.Channel, bool) {}
func (Nop) UpdateResolution(float64)                    {}
func (Nop) Refresh()                                    {}
