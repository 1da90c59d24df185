// Package protocol implements the Digiscope wire format: 4-byte command
// frames, the command table, and the enumerated setting values.
package protocol

import (
	"encoding/binary"
	"fmt"
)

// FrameSize is the size in bytes of every command/telemetry frame
const FrameSize = 4

// Padding is the value sent with commands that carry no argument
const Padding uint16 = 0x0000

// Command identifies the meaning of a frame
type Command uint16

// Command identifiers understood by the instrument
const (
	TimePerDivisionCommand  Command = 0x3131
	VoltsPerDivisionCommand Command = 0x3232
	TriggerThresholdCommand Command = 0x3333
	TriggerModeCommand      Command = 0x3434
	TriggerTypeCommand      Command = 0x3535
	SamplingModeCommand     Command = 0x3636
	NumSamplesCommand       Command = 0x3737
	ChannelCouplingCommand  Command = 0x3838
	SampleStartCommand      Command = 0x3939
	SampleEndCommand        Command = 0x4040
	ForceTriggerCommand     Command = 0x4141
	RearmTriggerCommand     Command = 0x4242
	FuncGenOutputCommand    Command = 0x4343
	FuncGenWaveTypeCommand  Command = 0x4444
	FuncGenP2PCommand       Command = 0x4545
	FuncGenOffsetCommand    Command = 0x4646
	FuncGenFrequencyCommand Command = 0x4747
	SamplingRateCommand     Command = 0x4848
	ChannelToTriggerCommand Command = 0x4949
	ChannelOffsetCommand    Command = 0x5050
	DeviceStatusCommand     Command = 0x5151
	BandpassSamplingCommand Command = 0x5252
)

var commandNames = map[Command]string{
	TimePerDivisionCommand:  "TIME_PER_DIVISION",
	VoltsPerDivisionCommand: "VOLTS_PER_DIVISION",
	TriggerThresholdCommand: "TRIGGER_THRESHOLD",
	TriggerModeCommand:      "TRIGGER_MODE",
	TriggerTypeCommand:      "TRIGGER_TYPE",
	SamplingModeCommand:     "SAMPLING_MODE",
	NumSamplesCommand:       "NUM_SAMPLES",
	ChannelCouplingCommand:  "CHANNEL_COUPLING",
	SampleStartCommand:      "SEND_SAMPLE_START",
	SampleEndCommand:        "SEND_SAMPLE_END",
	ForceTriggerCommand:     "FORCE_TRIGGER",
	RearmTriggerCommand:     "REARM_TRIGGER",
	FuncGenOutputCommand:    "FUNC_GEN_OUTPUT",
	FuncGenWaveTypeCommand:  "FUNC_GEN_WAVE_TYPE",
	FuncGenP2PCommand:       "FUNC_GEN_P2P",
	FuncGenOffsetCommand:    "FUNC_GEN_OFFSET",
	FuncGenFrequencyCommand: "FUNC_GEN_FREQUENCY",
	SamplingRateCommand:     "SAMPLING_RATE",
	ChannelToTriggerCommand: "CHANNEL_TO_TRIGGER",
	ChannelOffsetCommand:    "CHANNEL_OFFSET",
	DeviceStatusCommand:     "DEVICE_STATUS",
	BandpassSamplingCommand: "BANDPASS_SAMPLING",
}

// String returns the protocol name of the command
func (c Command) String() string {
	if name, ok := commandNames[c]; ok {
		return name
	}
	return fmt.Sprintf("UNKNOWN(0x%04X)", uint16(c))
}

// Known reports whether c is part of the command table
func (c Command) Known() bool {
	_, ok := commandNames[c]
	return ok
}

// Frame is a single command or telemetry message
type Frame struct {
	Command Command
	Value   uint16
}

// NewFrame builds a frame carrying an unsigned value
func NewFrame(cmd Command, value uint16) Frame {
	return Frame{Command: cmd, Value: value}
}

// NewSignedFrame builds a frame carrying a signed value such as millivolts
func NewSignedFrame(cmd Command, value int16) Frame {
	return Frame{Command: cmd, Value: uint16(value)}
}

// Signed reinterprets the frame value as a two's complement 16-bit integer
func (f Frame) Signed() int16 {
	return int16(f.Value)
}

// Encode serializes the frame. Each 16-bit field goes out with its two
// bytes reversed relative to network order.
func (f Frame) Encode() [FrameSize]byte {
	var b [FrameSize]byte
	binary.LittleEndian.PutUint16(b[0:2], uint16(f.Command))
	binary.LittleEndian.PutUint16(b[2:4], f.Value)
	return b
}

// Decode parses a frame previously produced by Encode or received from
// the instrument
func Decode(b [FrameSize]byte) Frame {
	return Frame{
		Command: Command(binary.LittleEndian.Uint16(b[0:2])),
		Value:   binary.LittleEndian.Uint16(b[2:4]),
	}
}

func (f Frame) String() string {
	return fmt.Sprintf("%s(0x%04X)", f.Command, f.Value)
}
