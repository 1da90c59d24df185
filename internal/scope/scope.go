// Package scope is the client session: it owns the four channels and the
// Math/Filter dependency graph, turns settings into command frames, and
// runs the acquisition pipeline for every burst the connection delivers.
package scope

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"digiscope-client/internal/channel"
	"digiscope-client/internal/connection"
	"digiscope-client/internal/display"
	"digiscope-client/internal/dsp"
	"digiscope-client/internal/protocol"
	"digiscope-client/internal/transport"
)

// ErrNotConnected is returned by operations that need an open session
var ErrNotConnected = errors.New("not connected")

// Defaults applied before the instrument reports otherwise
const (
	DefaultSamplingRateHz = 100000
	DefaultNumSamples     = 1000
	eventBufferSize       = 32
)

// Scope is the application context shared by the CLI and the connection
// reader goroutine
type Scope struct {
	logger    *zap.Logger
	display   display.Display
	queueSize int

	// Written by callers, read by the reader goroutine
	numSamples atomic.Int64
	bandpass   atomic.Bool

	connMu sync.Mutex
	conn   *connection.Conn

	mu             sync.Mutex
	channels       map[channel.Kind]*channel.Channel
	derived        *Derived
	session        SessionState
	displayedTime  protocol.TimePerDivision
	displayedVolts protocol.VoltsPerDivision

	events chan Event
}

// New creates a session with default settings. disp may be nil.
func New(logger *zap.Logger, disp display.Display, queueSize int) *Scope {
	if logger == nil {
		logger = zap.NewNop()
	}
	if disp == nil {
		disp = display.Nop{}
	}

	s := &Scope{
		logger:    logger.Named("scope"),
		display:   disp,
		queueSize: queueSize,
		channels:  make(map[channel.Kind]*channel.Channel),
		derived:   NewDerived(),
		events:    make(chan Event, eventBufferSize),
		session: SessionState{
			SamplingRateHz:   DefaultSamplingRateHz,
			NumSamples:       DefaultNumSamples,
			VoltsPerDivision: 1000,
			TimePerDivision:  0x3141, // 1ms
		},
	}
	for _, k := range channel.Kinds {
		s.channels[k] = channel.New(k)
	}
	s.channels[channel.A].SetPlotted(true)
	s.channels[channel.B].SetPlotted(true)
	s.displayedTime = s.session.TimePerDivision
	s.displayedVolts = s.session.VoltsPerDivision
	s.numSamples.Store(DefaultNumSamples)

	return s
}

// Events delivers notifications. Events are dropped when nobody keeps up.
func (s *Scope) Events() <-chan Event {
	return s.events
}

func (s *Scope) emit(e Event) {
	e.Time = time.Now()
	select {
	case s.events <- e:
	default:
		s.logger.Warn("event buffer full, dropping event", zap.Stringer("type", e.Type))
	}
}

// Connect opens a session, closing any existing one first
func (s *Scope) Connect(ctx context.Context, open transport.Opener) error {
	s.connMu.Lock()
	defer s.connMu.Unlock()

	s.closeLocked()
	conn, err := connection.Dial(ctx, open, s, s.logger, s.queueSize)
	if err != nil {
		return err
	}
	s.start(conn)
	return nil
}

// Attach starts a session on an already open stream, closing any existing
// one first
func (s *Scope) Attach(stream io.ReadWriteCloser) {
	s.connMu.Lock()
	defer s.connMu.Unlock()

	s.closeLocked()
	s.start(connection.New(stream, s, s.logger, s.queueSize))
}

// closeLocked ends the current session. Caller holds s.connMu.
func (s *Scope) closeLocked() {
	if s.conn == nil {
		return
	}
	s.conn.Close()
	s.conn = nil

	s.mu.Lock()
	s.session.Connected = false
	s.mu.Unlock()
}

// start records a new session. Caller holds s.connMu.
func (s *Scope) start(conn *connection.Conn) {
	s.conn = conn

	s.mu.Lock()
	s.session.Connected = true
	s.mu.Unlock()

	go s.watch(conn)
}

// watch reports the end of a session
func (s *Scope) watch(conn *connection.Conn) {
	<-conn.Done()

	s.connMu.Lock()
	current := s.conn == conn
	if current {
		s.conn = nil
	}
	s.connMu.Unlock()

	if !current {
		return
	}

	s.mu.Lock()
	s.session.Connected = false
	session := s.session
	s.mu.Unlock()

	s.emit(Event{Type: Disconnected, Session: session, Err: conn.Err()})
}

// Disconnect closes the session if there is one. The scope reports not
// connected as soon as Disconnect returns.
func (s *Scope) Disconnect() error {
	s.connMu.Lock()
	conn := s.conn
	s.conn = nil
	s.connMu.Unlock()

	if conn == nil {
		return nil
	}
	err := conn.Close()

	s.mu.Lock()
	s.session.Connected = false
	session := s.session
	s.mu.Unlock()

	s.emit(Event{Type: Disconnected, Session: session, Err: conn.Err()})
	return err
}

// Connected reports whether a session is open
func (s *Scope) Connected() bool {
	s.connMu.Lock()
	defer s.connMu.Unlock()
	return s.conn != nil
}

// Done is closed when the current session ends. Returns nil when there is
// no session.
func (s *Scope) Done() <-chan struct{} {
	s.connMu.Lock()
	defer s.connMu.Unlock()
	if s.conn == nil {
		return nil
	}
	return s.conn.Done()
}

func (s *Scope) send(frames ...protocol.Frame) error {
	s.connMu.Lock()
	conn := s.conn
	s.connMu.Unlock()

	if conn == nil {
		return ErrNotConnected
	}
	if err := conn.SendBatch(frames...); err != nil {
		return fmt.Errorf("failed to queue %d frames starting with %s: %w", len(frames), frames[0].Command, err)
	}
	return nil
}

// ApplyAcquisition validates the settings and queues them in one batch.
// Nothing is sent when validation fails.
func (s *Scope) ApplyAcquisition(settings AcquisitionSettings) error {
	frames, err := settings.Frames()
	if err != nil {
		return err
	}
	if !s.Connected() {
		return ErrNotConnected
	}

	// The reader must expect the new sample count before the device can
	// send a burst of that size
	prevSamples := s.numSamples.Swap(int64(settings.NumSamples))
	prevBandpass := s.bandpass.Swap(settings.Bandpass)

	s.mu.Lock()
	prev := s.session
	prevTime, prevVolts := s.displayedTime, s.displayedVolts
	s.session.NumSamples = settings.NumSamples
	s.session.Bandpass = settings.Bandpass
	s.session.VoltsPerDivision = settings.VoltsPerDivision
	s.session.TimePerDivision = settings.TimePerDivision
	s.session.TriggerMode = settings.TriggerMode
	s.session.TriggerType = settings.TriggerType
	s.session.Coupling = settings.Coupling
	s.session.TriggerThreshold = settings.TriggerThreshold
	s.displayedTime = settings.TimePerDivision
	s.displayedVolts = settings.VoltsPerDivision
	s.mu.Unlock()

	s.logger.Info("applying acquisition settings",
		zap.Stringer("volts_per_div", settings.VoltsPerDivision),
		zap.Stringer("time_per_div", settings.TimePerDivision),
		zap.Int("samples", settings.NumSamples),
		zap.Stringer("sampling_mode", settings.SamplingMode),
		zap.Bool("bandpass", settings.Bandpass))

	if err := s.send(frames...); err != nil {
		// Nothing was queued, so the instrument keeps its old settings
		s.numSamples.Store(prevSamples)
		s.bandpass.Store(prevBandpass)

		s.mu.Lock()
		s.session.NumSamples = prev.NumSamples
		s.session.Bandpass = prev.Bandpass
		s.session.VoltsPerDivision = prev.VoltsPerDivision
		s.session.TimePerDivision = prev.TimePerDivision
		s.session.TriggerMode = prev.TriggerMode
		s.session.TriggerType = prev.TriggerType
		s.session.Coupling = prev.Coupling
		s.session.TriggerThreshold = prev.TriggerThreshold
		s.displayedTime, s.displayedVolts = prevTime, prevVolts
		s.mu.Unlock()
		return err
	}
	return nil
}

// ApplyFunctionGenerator validates and queues the function generator
// configuration
func (s *Scope) ApplyFunctionGenerator(g FunctionGenerator) error {
	frames, err := g.Frames()
	if err != nil {
		return err
	}
	if err := s.send(frames...); err != nil {
		return err
	}

	s.mu.Lock()
	s.session.FunctionGenerator = g
	s.mu.Unlock()
	return nil
}

// ForceTrigger asks the instrument to capture immediately
func (s *Scope) ForceTrigger() error {
	return s.send(protocol.NewFrame(protocol.ForceTriggerCommand, protocol.Padding))
}

// RearmTrigger re-arms the trigger after a single shot capture
func (s *Scope) RearmTrigger() error {
	return s.send(protocol.NewFrame(protocol.RearmTriggerCommand, protocol.Padding))
}

// SetMathEquation installs the Math equation. An empty equation disables
// the Math channel.
func (s *Scope) SetMathEquation(equation string) (Notice, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	notice, err := s.derived.SetEquation(equation)
	if err != nil {
		s.logger.Warn("equation rejected", zap.String("equation", equation), zap.Error(err))
		return notice, err
	}
	if notice.FilterInputReset {
		s.logger.Info("filter input reset to A, equation no longer reads A or B")
	}
	s.syncAvailability()
	return notice, nil
}

// SetFilterInput selects the trace feeding the Filter channel
func (s *Scope) SetFilterInput(input channel.Kind) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.derived.SetFilterInput(input); err != nil {
		s.logger.Warn("filter input rejected", zap.Stringer("input", input), zap.Error(err))
		return err
	}
	s.syncAvailability()
	return nil
}

// LoadFilter parses a coefficient table and installs it. A malformed table
// leaves the previous filter in place.
func (s *Scope) LoadFilter(r io.Reader) error {
	coeffs, err := dsp.LoadCoefficients(r)
	if err != nil {
		return err
	}
	s.InstallFilter(coeffs)
	return nil
}

// InstallFilter installs already parsed coefficients
func (s *Scope) InstallFilter(coeffs *dsp.Coefficients) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.derived.LoadFilter(coeffs)
	s.syncAvailability()
	s.logger.Info("filter loaded", zap.Stringer("type", coeffs.Type))
}

// SetPlotted selects whether a channel is drawn. Derived channels must be
// available first.
func (s *Scope) SetPlotted(kind channel.Kind, plotted bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ch, ok := s.channels[kind]
	if !ok {
		return fmt.Errorf("unknown channel %s", kind)
	}
	if plotted && !ch.AvailableForPlotting() {
		switch kind {
		case channel.Filter:
			return ErrFilterUnavailable
		default:
			return fmt.Errorf("%s channel is not available", kind)
		}
	}
	ch.SetPlotted(plotted)
	return nil
}

// syncAvailability mirrors the derived configuration onto the channels.
// Caller holds s.mu.
func (s *Scope) syncAvailability() {
	s.channels[channel.Math].SetAvailableForPlotting(s.derived.MathAvailable())
	s.channels[channel.Filter].SetAvailableForPlotting(s.derived.FilterAvailable())
	for _, k := range []channel.Kind{channel.Math, channel.Filter} {
		if !s.channels[k].AvailableForPlotting() {
			s.channels[k].SetPlotted(false)
		}
	}
}

// Derived returns a summary of the Math and Filter configuration
func (s *Scope) Derived() (equation string, filterInput channel.Kind, filterType dsp.FilterType) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.derived.Equation(), s.derived.FilterInput(), s.derived.FilterType()
}

// Session returns a copy of the session state
func (s *Scope) Session() SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.session
}

// Measurements returns the current statistics of every channel
func (s *Scope) Measurements() map[channel.Kind]channel.Stats {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make(map[channel.Kind]channel.Stats, len(s.channels))
	for k, ch := range s.channels {
		out[k] = ch.Stats()
	}
	return out
}

// Snapshot returns a copy of one channel
func (s *Scope) Snapshot(kind channel.Kind) channel.Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.channels[kind].Snapshot()
}

func (s *Scope) snapshots() []channel.Snapshot {
	out := make([]channel.Snapshot, 0, len(channel.Kinds))
	for _, k := range channel.Kinds {
		out = append(out, s.channels[k].Snapshot())
	}
	return out
}

// UpdateResolution redraws every plotted channel at a new displayed scale
// and recomputes the on-screen statistics
func (s *Scope) UpdateResolution(timePerDiv protocol.TimePerDivision, voltsPerDiv protocol.VoltsPerDivision) error {
	if !timePerDiv.Valid() || !voltsPerDiv.Valid() {
		return fmt.Errorf("%w: unsupported display resolution %s, %s", ErrInvalidSettings, timePerDiv, voltsPerDiv)
	}

	s.mu.Lock()
	s.displayedTime = timePerDiv
	s.displayedVolts = voltsPerDiv
	s.redraw()
	e := Event{Type: ResolutionChanged, Session: s.session, Channels: s.snapshots()}
	s.mu.Unlock()

	s.emit(e)
	return nil
}

// redraw plots every selected channel. Caller holds s.mu.
func (s *Scope) redraw() {
	scale := 1.0
	if d := s.displayedTime.Duration(); d > 0 {
		scale = float64(s.session.TimePerDivision.Duration()) / float64(d)
	}
	verticalRes := s.displayedVolts.Volts()
	bandpass := s.session.Bandpass

	s.display.UpdateResolution(scale)
	s.display.ClearGrid()
	s.display.SetTriggerIndex(s.session.TriggerIndex)
	for _, k := range []channel.Kind{channel.A, channel.B, channel.Filter, channel.Math} {
		ch := s.channels[k]
		if !ch.Plotted() || !ch.AvailableForPlotting() {
			continue
		}
		s.display.PlotChannel(verticalRes, ch, bandpass && k == channel.A)
	}
	s.display.Refresh()
}

// VoltageAt converts a row on the display to a voltage at the displayed
// vertical resolution
func (s *Scope) VoltageAt(y float64) float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return display.VoltageAt(y, s.displayedVolts.Volts())
}
