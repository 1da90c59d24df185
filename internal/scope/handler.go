package scope

import (
	"go.uber.org/zap"

	"digiscope-client/internal/channel"
	"digiscope-client/internal/connection"
	"digiscope-client/internal/dsp"
	"digiscope-client/internal/protocol"
)

// Scope implements connection.Handler. Every method below runs on the
// connection reader goroutine.
var _ connection.Handler = (*Scope)(nil)

// SamplesPerBurst returns the per-channel sample count last requested
func (s *Scope) SamplesPerBurst() int {
	return int(s.numSamples.Load())
}

// HandleFrame applies a status frame reported by the instrument
func (s *Scope) HandleFrame(f protocol.Frame) {
	s.mu.Lock()

	switch f.Command {
	case protocol.VoltsPerDivisionCommand:
		v := protocol.VoltsPerDivision(f.Value)
		if !v.Valid() {
			s.mu.Unlock()
			s.logger.Warn("ignoring unsupported volts/div echo", zap.Uint16("value", f.Value))
			return
		}
		// The display follows the scale the instrument confirms
		s.session.VoltsPerDivision = v
		s.displayedVolts = v
	case protocol.TimePerDivisionCommand:
		t := protocol.TimePerDivision(f.Value)
		if !t.Valid() {
			s.mu.Unlock()
			s.logger.Warn("ignoring unsupported time/div echo", zap.Uint16("value", f.Value))
			return
		}
		s.session.TimePerDivision = t
		s.displayedTime = t
	case protocol.SamplingRateCommand:
		// Reported in kHz
		s.session.SamplingRateHz = float64(f.Value) * 1000
	case protocol.DeviceStatusCommand:
		s.session.DeviceStatus = protocol.DeviceStatus(f.Value)
	case protocol.TriggerModeCommand:
		s.session.TriggerMode = protocol.TriggerMode(f.Value)
	case protocol.TriggerTypeCommand:
		s.session.TriggerType = protocol.TriggerType(f.Value)
	case protocol.ChannelCouplingCommand:
		s.session.Coupling = protocol.Coupling(f.Value)
	case protocol.TriggerThresholdCommand:
		s.session.TriggerThreshold = protocol.FromMilliVolts(f.Signed())
	case protocol.FuncGenOutputCommand:
		s.session.FunctionGenerator.OutputOn = protocol.Switch(f.Value).On()
	case protocol.FuncGenWaveTypeCommand:
		s.session.FunctionGenerator.WaveType = protocol.WaveType(f.Value)
	case protocol.FuncGenP2PCommand:
		s.session.FunctionGenerator.PeakToPeak = protocol.FromMilliVolts(f.Signed())
	case protocol.FuncGenOffsetCommand:
		s.session.FunctionGenerator.Offset = protocol.FromMilliVolts(f.Signed())
	case protocol.FuncGenFrequencyCommand:
		s.session.FunctionGenerator.Frequency = f.Value
	default:
		s.mu.Unlock()
		s.logger.Debug("ignoring frame", zap.Stringer("command", f.Command), zap.Uint16("value", f.Value))
		return
	}

	session := s.session
	s.mu.Unlock()

	s.logger.Debug("setting echoed", zap.Stringer("command", f.Command), zap.Uint16("value", f.Value))
	s.emit(Event{Type: SettingEchoed, Command: f.Command, Session: session})
}

// HandleBurst runs the acquisition pipeline for one burst
func (s *Scope) HandleBurst(b *connection.Burst) {
	s.mu.Lock()

	rate := s.session.SamplingRateHz
	s.session.TriggerIndex = int(b.TriggerIndex)
	s.session.Bursts++

	s.channels[channel.A].SetSamples(b.A, rate)
	s.channels[channel.B].SetSamples(b.B, rate)

	if s.bandpass.Load() {
		s.channels[channel.A].SetBandpassed(dsp.Demodulate(b.A, rate))
	} else {
		s.channels[channel.A].SetBandpassed(nil)
	}

	for _, k := range s.derived.Plan() {
		switch k {
		case channel.Math:
			s.computeMath(rate)
		case channel.Filter:
			s.computeFilter(rate)
		}
	}

	s.redraw()

	e := Event{Type: BurstAcquired, Session: s.session, Channels: s.snapshots()}
	s.mu.Unlock()

	s.logger.Debug("burst acquired",
		zap.Int("samples", len(b.A)),
		zap.Uint16("trigger_index", b.TriggerIndex))
	s.emit(e)
}

// HandleBurstError records a burst that failed the integrity check. The
// channels keep the samples of the previous burst.
func (s *Scope) HandleBurstError(err error) {
	s.mu.Lock()
	s.session.IntegrityFailures++
	session := s.session
	s.mu.Unlock()

	s.logger.Warn("burst rejected", zap.Error(err), zap.Int("failures", session.IntegrityFailures))
	s.emit(Event{Type: BurstRejected, Session: session, Err: err})
}

// computeMath evaluates the equation sample by sample. Caller holds s.mu.
func (s *Scope) computeMath(rate float64) {
	var f []float64
	if s.derived.filterFeedsMath() {
		f = s.channels[channel.Filter].Samples()
	}
	out := s.derived.program.Series(
		s.channels[channel.A].Samples(),
		s.channels[channel.B].Samples(),
		f)
	s.channels[channel.Math].SetSamples(out, rate)
}

// computeFilter runs the loaded filter over its input. Caller holds s.mu.
func (s *Scope) computeFilter(rate float64) {
	input := s.channels[s.derived.FilterInput()].Samples()
	out, err := s.derived.coeffs.Apply(input)
	if err != nil {
		s.logger.Error("filter failed", zap.Error(err))
		return
	}
	s.channels[channel.Filter].SetSamples(out, rate)
}
