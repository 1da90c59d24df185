package protocol

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"time"
)

// ErrUnknownValue is returned when a setting string or wire value has no
// entry in the corresponding table
var ErrUnknownValue = errors.New("unknown setting value")

// ADC conversion constants
const (
	ReferenceVoltage = 3.3
	ADCFullScale     = 4095
)

// CodeToVolts converts a raw signed ADC reading to volts
func CodeToVolts(code int16) float64 {
	return ReferenceVoltage * float64(code) / ADCFullScale
}

// lookup is a bidirectional name/wire-value table for one setting
type lookup[T ~uint16] struct {
	kind  string
	names map[T]string
}

func (l lookup[T]) name(v T) string {
	if s, ok := l.names[v]; ok {
		return s
	}
	return fmt.Sprintf("%s(%d)", l.kind, uint16(v))
}

func (l lookup[T]) parse(s string) (T, error) {
	s = strings.TrimSpace(s)
	for v, name := range l.names {
		if strings.EqualFold(name, s) {
			return v, nil
		}
	}
	return 0, fmt.Errorf("%w: %s %q", ErrUnknownValue, l.kind, s)
}

func (l lookup[T]) valid(v T) bool {
	_, ok := l.names[v]
	return ok
}

// TriggerMode selects when the instrument captures a burst
type TriggerMode uint16

const (
	TriggerAuto   TriggerMode = 0x0000
	TriggerNormal TriggerMode = 0x0001
	TriggerSingle TriggerMode = 0x0002
)

var triggerModes = lookup[TriggerMode]{"trigger mode", map[TriggerMode]string{
	TriggerAuto:   "Auto",
	TriggerNormal: "Normal",
	TriggerSingle: "Single",
}}

func (m TriggerMode) String() string { return triggerModes.name(m) }

// Valid reports whether m is a known trigger mode
func (m TriggerMode) Valid() bool { return triggerModes.valid(m) }

// ParseTriggerMode parses "Auto", "Normal" or "Single"
func ParseTriggerMode(s string) (TriggerMode, error) { return triggerModes.parse(s) }

// TriggerType selects the edge or level condition for triggering
type TriggerType uint16

const (
	TriggerRising  TriggerType = 0x0000
	TriggerFalling TriggerType = 0x0001
	TriggerLevel   TriggerType = 0x0002
)

var triggerTypes = lookup[TriggerType]{"trigger type", map[TriggerType]string{
	TriggerRising:  "Rising",
	TriggerFalling: "Falling",
	TriggerLevel:   "Level",
}}

func (t TriggerType) String() string { return triggerTypes.name(t) }

// Valid reports whether t is a known trigger type
func (t TriggerType) Valid() bool { return triggerTypes.valid(t) }

// ParseTriggerType parses "Rising", "Falling" or "Level"
func ParseTriggerType(s string) (TriggerType, error) { return triggerTypes.parse(s) }

// SamplingMode is the ADC resolution
type SamplingMode uint16

const (
	Sampling8Bit  SamplingMode = 0x0000
	Sampling12Bit SamplingMode = 0x0001
)

var samplingModes = lookup[SamplingMode]{"sampling mode", map[SamplingMode]string{
	Sampling8Bit:  "8 bit",
	Sampling12Bit: "12 bit",
}}

func (m SamplingMode) String() string { return samplingModes.name(m) }

// Valid reports whether m is a known sampling mode
func (m SamplingMode) Valid() bool { return samplingModes.valid(m) }

// MaxSamples is the largest burst the instrument can store in this mode
func (m SamplingMode) MaxSamples() int {
	if m == Sampling12Bit {
		return 25000
	}
	return 50000
}

// ParseSamplingMode parses "8 bit" or "12 bit"
func ParseSamplingMode(s string) (SamplingMode, error) { return samplingModes.parse(s) }

// Coupling is the input channel coupling
type Coupling uint16

const (
	CouplingAC Coupling = 0x0000
	CouplingDC Coupling = 0x0001
)

var couplings = lookup[Coupling]{"coupling", map[Coupling]string{
	CouplingAC: "AC",
	CouplingDC: "DC",
}}

func (c Coupling) String() string { return couplings.name(c) }

// Valid reports whether c is a known coupling
func (c Coupling) Valid() bool { return couplings.valid(c) }

// ParseCoupling parses "AC" or "DC"
func ParseCoupling(s string) (Coupling, error) { return couplings.parse(s) }

// TriggerChannel is the physical channel the trigger watches
type TriggerChannel uint16

const (
	TriggerOnA TriggerChannel = 0x0000
	TriggerOnB TriggerChannel = 0x0001
)

var triggerChannels = lookup[TriggerChannel]{"trigger channel", map[TriggerChannel]string{
	TriggerOnA: "A",
	TriggerOnB: "B",
}}

func (c TriggerChannel) String() string { return triggerChannels.name(c) }

// Valid reports whether c is a known trigger channel
func (c TriggerChannel) Valid() bool { return triggerChannels.valid(c) }

// ParseTriggerChannel parses "A" or "B"
func ParseTriggerChannel(s string) (TriggerChannel, error) { return triggerChannels.parse(s) }

// Switch is an on/off setting. The instrument uses 0 for on.
type Switch uint16

const (
	SwitchOn  Switch = 0x0000
	SwitchOff Switch = 0x0001
)

var switches = lookup[Switch]{"switch", map[Switch]string{
	SwitchOn:  "On",
	SwitchOff: "Off",
}}

// SwitchFor converts a boolean to its wire encoding
func SwitchFor(on bool) Switch {
	if on {
		return SwitchOn
	}
	return SwitchOff
}

// On reports whether the switch is on
func (s Switch) On() bool { return s == SwitchOn }

func (s Switch) String() string { return switches.name(s) }

// ParseSwitch parses "On" or "Off"
func ParseSwitch(s string) (Switch, error) { return switches.parse(s) }

// WaveType is the function generator output shape
type WaveType uint16

const (
	WaveSine     WaveType = 0x0000
	WaveSquare   WaveType = 0x0001
	WaveTriangle WaveType = 0x0002
	WaveRamp     WaveType = 0x0003
	WaveNoise    WaveType = 0x0004
)

var waveTypes = lookup[WaveType]{"wave type", map[WaveType]string{
	WaveSine:     "Sine",
	WaveSquare:   "Square",
	WaveTriangle: "Triangle",
	WaveRamp:     "Ramp",
	WaveNoise:    "Noise",
}}

func (w WaveType) String() string { return waveTypes.name(w) }

// Valid reports whether w is a known wave type
func (w WaveType) Valid() bool { return waveTypes.valid(w) }

// ParseWaveType parses "Sine", "Square", "Triangle", "Ramp" or "Noise"
func ParseWaveType(s string) (WaveType, error) { return waveTypes.parse(s) }

// DeviceStatus is reported by the instrument after trigger state changes
type DeviceStatus uint16

const (
	StatusArmed     DeviceStatus = 0x0000
	StatusTriggered DeviceStatus = 0x0001
	StatusStopped   DeviceStatus = 0x0002
)

var deviceStatuses = lookup[DeviceStatus]{"device status", map[DeviceStatus]string{
	StatusArmed:     "Armed",
	StatusTriggered: "Triggered",
	StatusStopped:   "Stopped",
}}

func (d DeviceStatus) String() string { return deviceStatuses.name(d) }

// Valid reports whether d is a known device status
func (d DeviceStatus) Valid() bool { return deviceStatuses.valid(d) }

// VoltsPerDivision is a vertical scale, carried on the wire in millivolts
type VoltsPerDivision uint16

var voltsPerDivisions = lookup[VoltsPerDivision]{"volts/div", map[VoltsPerDivision]string{
	20:   "20mV",
	50:   "50mV",
	100:  "100mV",
	200:  "200mV",
	500:  "500mV",
	1000: "1V",
	2000: "2V",
}}

func (v VoltsPerDivision) String() string { return voltsPerDivisions.name(v) }

// Valid reports whether v is one of the supported vertical scales
func (v VoltsPerDivision) Valid() bool { return voltsPerDivisions.valid(v) }

// Volts returns the scale in volts per division
func (v VoltsPerDivision) Volts() float64 { return float64(v) / 1000.0 }

// ParseVoltsPerDivision parses strings such as "20mV" or "1V"
func ParseVoltsPerDivision(s string) (VoltsPerDivision, error) { return voltsPerDivisions.parse(s) }

// TimePerDivision is a horizontal scale, carried on the wire as a code
type TimePerDivision uint16

type timebase struct {
	label    string
	duration time.Duration
}

var timebases = map[TimePerDivision]timebase{
	0x3132: {"1µs", time.Microsecond},
	0x3133: {"2µs", 2 * time.Microsecond},
	0x3134: {"5µs", 5 * time.Microsecond},
	0x3135: {"10µs", 10 * time.Microsecond},
	0x3136: {"20µs", 20 * time.Microsecond},
	0x3137: {"50µs", 50 * time.Microsecond},
	0x3138: {"100µs", 100 * time.Microsecond},
	0x3139: {"200µs", 200 * time.Microsecond},
	0x3140: {"500µs", 500 * time.Microsecond},
	0x3141: {"1ms", time.Millisecond},
	0x3142: {"2ms", 2 * time.Millisecond},
	0x3143: {"5ms", 5 * time.Millisecond},
	0x3144: {"10ms", 10 * time.Millisecond},
	0x3145: {"20ms", 20 * time.Millisecond},
	0x3146: {"50ms", 50 * time.Millisecond},
	0x3147: {"100ms", 100 * time.Millisecond},
	0x3148: {"200ms", 200 * time.Millisecond},
	0x3149: {"500ms", 500 * time.Millisecond},
	0x3150: {"1s", time.Second},
}

func (t TimePerDivision) String() string {
	if tb, ok := timebases[t]; ok {
		return tb.label
	}
	return fmt.Sprintf("time/div(0x%04X)", uint16(t))
}

// Valid reports whether t is one of the supported horizontal scales
func (t TimePerDivision) Valid() bool {
	_, ok := timebases[t]
	return ok
}

// Duration returns the time covered by one division
func (t TimePerDivision) Duration() time.Duration {
	return timebases[t].duration
}

// ParseTimePerDivision parses strings such as "1µs", "1us", "20ms" or "1s"
func ParseTimePerDivision(s string) (TimePerDivision, error) {
	s = strings.ReplaceAll(strings.TrimSpace(s), "us", "µs")
	for code, tb := range timebases {
		if tb.label == s {
			return code, nil
		}
	}
	return 0, fmt.Errorf("%w: time/div %q", ErrUnknownValue, s)
}

// ToMilliVolts converts volts to the signed millivolt value used on the
// wire. Values outside the int16 range are rejected.
func ToMilliVolts(volts float64) (int16, error) {
	if math.IsNaN(volts) || math.IsInf(volts, 0) {
		return 0, fmt.Errorf("invalid voltage %v", volts)
	}
	mv := math.Round(volts * 1000)
	if mv < math.MinInt16 || mv > math.MaxInt16 {
		return 0, fmt.Errorf("voltage %.3fV out of range for millivolt encoding", volts)
	}
	return int16(mv), nil
}

// FromMilliVolts converts a wire millivolt value back to volts
func FromMilliVolts(mv int16) float64 {
	return float64(mv) / 1000.0
}
