package scope

import (
	"errors"
	"fmt"

	"digiscope-client/internal/config"
	"digiscope-client/internal/protocol"
)

// ErrInvalidSettings is returned when settings fail validation. Nothing is
// sent to the instrument in that case.
var ErrInvalidSettings = errors.New("invalid settings")

// AcquisitionSettings is the batch of oscilloscope settings sent together
type AcquisitionSettings struct {
	VoltsPerDivision protocol.VoltsPerDivision
	TimePerDivision  protocol.TimePerDivision
	NumSamples       int
	SamplingMode     protocol.SamplingMode
	TriggerThreshold float64 // volts
	ChannelOffset    float64 // volts
	TriggerType      protocol.TriggerType
	TriggerMode      protocol.TriggerMode
	Coupling         protocol.Coupling
	ChannelToTrigger protocol.TriggerChannel
	Bandpass         bool
}

// ParseAcquisitionSettings converts the textual settings of the
// configuration file
func ParseAcquisitionSettings(cfg config.AcquisitionConfig) (AcquisitionSettings, error) {
	s := AcquisitionSettings{
		NumSamples:       cfg.NumSamples,
		TriggerThreshold: cfg.TriggerThreshold,
		ChannelOffset:    cfg.ChannelOffset,
		Bandpass:         cfg.Bandpass,
	}

	var err error
	if s.VoltsPerDivision, err = protocol.ParseVoltsPerDivision(cfg.VoltsPerDivision); err != nil {
		return s, fmt.Errorf("%w: %v", ErrInvalidSettings, err)
	}
	if s.TimePerDivision, err = protocol.ParseTimePerDivision(cfg.TimePerDivision); err != nil {
		return s, fmt.Errorf("%w: %v", ErrInvalidSettings, err)
	}
	if s.SamplingMode, err = protocol.ParseSamplingMode(cfg.SamplingMode); err != nil {
		return s, fmt.Errorf("%w: %v", ErrInvalidSettings, err)
	}
	if s.TriggerType, err = protocol.ParseTriggerType(cfg.TriggerType); err != nil {
		return s, fmt.Errorf("%w: %v", ErrInvalidSettings, err)
	}
	if s.TriggerMode, err = protocol.ParseTriggerMode(cfg.TriggerMode); err != nil {
		return s, fmt.Errorf("%w: %v", ErrInvalidSettings, err)
	}
	if s.Coupling, err = protocol.ParseCoupling(cfg.Coupling); err != nil {
		return s, fmt.Errorf("%w: %v", ErrInvalidSettings, err)
	}
	if s.ChannelToTrigger, err = protocol.ParseTriggerChannel(cfg.ChannelToTrigger); err != nil {
		return s, fmt.Errorf("%w: %v", ErrInvalidSettings, err)
	}

	return s, s.Validate()
}

// Validate checks every setting, including the sample count limit of the
// selected sampling mode
func (s AcquisitionSettings) Validate() error {
	switch {
	case !s.VoltsPerDivision.Valid():
		return fmt.Errorf("%w: volts/div %d mV not supported", ErrInvalidSettings, uint16(s.VoltsPerDivision))
	case !s.TimePerDivision.Valid():
		return fmt.Errorf("%w: time/div code 0x%04X not supported", ErrInvalidSettings, uint16(s.TimePerDivision))
	case !s.SamplingMode.Valid():
		return fmt.Errorf("%w: unknown sampling mode %d", ErrInvalidSettings, uint16(s.SamplingMode))
	case !s.TriggerType.Valid():
		return fmt.Errorf("%w: unknown trigger type %d", ErrInvalidSettings, uint16(s.TriggerType))
	case !s.TriggerMode.Valid():
		return fmt.Errorf("%w: unknown trigger mode %d", ErrInvalidSettings, uint16(s.TriggerMode))
	case !s.Coupling.Valid():
		return fmt.Errorf("%w: unknown coupling %d", ErrInvalidSettings, uint16(s.Coupling))
	case !s.ChannelToTrigger.Valid():
		return fmt.Errorf("%w: unknown trigger channel %d", ErrInvalidSettings, uint16(s.ChannelToTrigger))
	}

	if s.NumSamples <= 0 {
		return fmt.Errorf("%w: number of samples must be positive, got %d", ErrInvalidSettings, s.NumSamples)
	}
	if limit := s.SamplingMode.MaxSamples(); s.NumSamples > limit {
		return fmt.Errorf("%w: %s sampling allows at most %d samples, got %d",
			ErrInvalidSettings, s.SamplingMode, limit, s.NumSamples)
	}

	if _, err := protocol.ToMilliVolts(s.TriggerThreshold); err != nil {
		return fmt.Errorf("%w: trigger threshold: %v", ErrInvalidSettings, err)
	}
	if _, err := protocol.ToMilliVolts(s.ChannelOffset); err != nil {
		return fmt.Errorf("%w: channel offset: %v", ErrInvalidSettings, err)
	}

	return nil
}

// Frames validates the settings and returns the frames that apply them,
// in the order the instrument expects
func (s AcquisitionSettings) Frames() ([]protocol.Frame, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}

	threshold, _ := protocol.ToMilliVolts(s.TriggerThreshold)
	offset, _ := protocol.ToMilliVolts(s.ChannelOffset)

	return []protocol.Frame{
		protocol.NewFrame(protocol.VoltsPerDivisionCommand, uint16(s.VoltsPerDivision)),
		protocol.NewFrame(protocol.TimePerDivisionCommand, uint16(s.TimePerDivision)),
		protocol.NewFrame(protocol.NumSamplesCommand, uint16(s.NumSamples)),
		protocol.NewFrame(protocol.SamplingModeCommand, uint16(s.SamplingMode)),
		protocol.NewSignedFrame(protocol.TriggerThresholdCommand, threshold),
		protocol.NewSignedFrame(protocol.ChannelOffsetCommand, offset),
		protocol.NewFrame(protocol.TriggerTypeCommand, uint16(s.TriggerType)),
		protocol.NewFrame(protocol.TriggerModeCommand, uint16(s.TriggerMode)),
		protocol.NewFrame(protocol.ChannelCouplingCommand, uint16(s.Coupling)),
		protocol.NewFrame(protocol.ChannelToTriggerCommand, uint16(s.ChannelToTrigger)),
		protocol.NewFrame(protocol.BandpassSamplingCommand, uint16(protocol.SwitchFor(s.Bandpass))),
	}, nil
}

// FunctionGenerator is the function generator output configuration
type FunctionGenerator struct {
	OutputOn   bool
	WaveType   protocol.WaveType
	PeakToPeak float64 // volts
	Offset     float64 // volts
	Frequency  uint16  // Hz
}

// ParseFunctionGenerator converts the textual settings of the
// configuration file
func ParseFunctionGenerator(cfg config.FunctionGeneratorConfig) (FunctionGenerator, error) {
	wave, err := protocol.ParseWaveType(cfg.WaveType)
	if err != nil {
		return FunctionGenerator{}, fmt.Errorf("%w: %v", ErrInvalidSettings, err)
	}
	g := FunctionGenerator{
		OutputOn:   cfg.OutputOn,
		WaveType:   wave,
		PeakToPeak: cfg.PeakToPeak,
		Offset:     cfg.Offset,
		Frequency:  cfg.Frequency,
	}
	return g, g.Validate()
}

// Validate checks that every field can be encoded
func (g FunctionGenerator) Validate() error {
	if !g.WaveType.Valid() {
		return fmt.Errorf("%w: unknown wave type %d", ErrInvalidSettings, uint16(g.WaveType))
	}
	if _, err := protocol.ToMilliVolts(g.PeakToPeak); err != nil {
		return fmt.Errorf("%w: peak to peak voltage: %v", ErrInvalidSettings, err)
	}
	if _, err := protocol.ToMilliVolts(g.Offset); err != nil {
		return fmt.Errorf("%w: offset: %v", ErrInvalidSettings, err)
	}
	return nil
}

// Frames validates the configuration and returns the frames that apply it
func (g FunctionGenerator) Frames() ([]protocol.Frame, error) {
	if err := g.Validate(); err != nil {
		return nil, err
	}

	p2p, _ := protocol.ToMilliVolts(g.PeakToPeak)
	offset, _ := protocol.ToMilliVolts(g.Offset)

	return []protocol.Frame{
		protocol.NewFrame(protocol.FuncGenOutputCommand, uint16(protocol.SwitchFor(g.OutputOn))),
		protocol.NewFrame(protocol.FuncGenWaveTypeCommand, uint16(g.WaveType)),
		protocol.NewSignedFrame(protocol.FuncGenP2PCommand, p2p),
		protocol.NewSignedFrame(protocol.FuncGenOffsetCommand, offset),
		protocol.NewFrame(protocol.FuncGenFrequencyCommand, g.Frequency),
	}, nil
}
