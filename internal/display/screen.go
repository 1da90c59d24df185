package display

import (
	"sync"

	"digiscope-client/internal/channel"
)

// Trace is one channel as drawn in a redraw
type Trace struct {
	Kind      channel.Kind
	Name      string
	Color     channel.Color
	Bandpass  bool
	Points    []Point
	Stats     channel.Stats
	OffScreen bool
}

// Frame is a completed redraw
type Frame struct {
	TriggerIndex int
	Scale        float64
	VerticalRes  float64
	Traces       []Trace
}

// Sink receives completed redraws. Publish is called from the acquisition
// goroutine and must not block for long.
type Sink interface {
	Publish(f Frame)
}

// Screen is the Display that projects traces onto the grid and fans each
// redraw out to its sinks
type Screen struct {
	mu      sync.Mutex
	scale   float64
	trigger int
	vres    float64
	traces  []Trace
	sinks   []Sink
}

// NewScreen creates a screen at unit horizontal scale
func NewScreen(sinks ...Sink) *Screen {
	return &Screen{scale: 1, sinks: sinks}
}

// AddSink registers another output surface
func (s *Screen) AddSink(sink Sink) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sinks = append(s.sinks, sink)
}

func (s *Screen) ClearGrid() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.traces = nil
}

func (s *Screen) SetTriggerIndex(i int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.trigger = i
}

func (s *Screen) UpdateResolution(scale float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if scale > 0 {
		s.scale = scale
	}
}

func (s *Screen) PlotChannel(verticalRes float64, ch *channel.Channel, bandpass bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	samples := ch.Samples()
	if bandpass && ch.Kind() == channel.A {
		samples = ch.Bandpassed()
	}

	p := Project(samples, verticalRes, s.scale)
	ch.SetVerticallyOffScreen(p.OffScreen)
	ch.SetVisible(p.Visible)

	s.vres = verticalRes
	s.traces = append(s.traces, Trace{
		Kind:      ch.Kind(),
		Name:      ch.Name(),
		Color:     ch.Color(),
		Bandpass:  bandpass,
		Points:    p.Points,
		Stats:     ch.Stats(),
		OffScreen: p.OffScreen,
	})
}

func (s *Screen) Refresh() {
	s.mu.Lock()
	frame := Frame{
		TriggerIndex: s.trigger,
		Scale:        s.scale,
		VerticalRes:  s.vres,
		Traces:       s.traces,
	}
	sinks := append([]Sink(nil), s.sinks...)
	s.traces = nil
	s.mu.Unlock()

	for _, sink := range sinks {
		sink.Publish(frame)
	}
}
