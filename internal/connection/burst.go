package connection

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"digiscope-client/internal/protocol"
)

// ErrIncorrectSampleCount is returned when a burst is not terminated by a
// sample end frame, meaning the device sent a different number of samples
// than the client asked for
var ErrIncorrectSampleCount = errors.New("incorrect sample count")

// Burst holds one acquisition of both physical channels, in volts
type Burst struct {
	A            []float64
	B            []float64
	TriggerIndex uint16
}

// ReadBurst reads the payload that follows a sample start frame: n codes for
// channel A, n codes for channel B, then a 4-byte footer. Codes are signed
// 16-bit values with their bytes reversed, like frame fields.
func ReadBurst(r io.Reader, n int, triggerIndex uint16) (*Burst, error) {
	if n < 0 {
		return nil, fmt.Errorf("invalid sample count %d", n)
	}

	payload := make([]byte, 4*n)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, fmt.Errorf("failed to read %d samples per channel: %w", n, err)
	}

	var footer [protocol.FrameSize]byte
	if _, err := io.ReadFull(r, footer[:]); err != nil {
		return nil, fmt.Errorf("failed to read burst footer: %w", err)
	}

	end := protocol.Decode(footer)
	if end.Command != protocol.SampleEndCommand {
		return nil, fmt.Errorf("%w: expected %s after %d samples, got %s",
			ErrIncorrectSampleCount, protocol.SampleEndCommand, n, end.Command)
	}

	burst := &Burst{
		A:            make([]float64, n),
		B:            make([]float64, n),
		TriggerIndex: triggerIndex,
	}
	for i := 0; i < n; i++ {
		burst.A[i] = protocol.CodeToVolts(int16(binary.LittleEndian.Uint16(payload[2*i:])))
		burst.B[i] = protocol.CodeToVolts(int16(binary.LittleEndian.Uint16(payload[2*(n+i):])))
	}

	return burst, nil
}

// EncodeBurst produces the wire form of a burst, including the start frame
// and footer. Used by simulators and tests.
func EncodeBurst(a, b []int16, triggerIndex uint16) []byte {
	start := protocol.NewFrame(protocol.SampleStartCommand, triggerIndex).Encode()
	end := protocol.NewFrame(protocol.SampleEndCommand, protocol.Padding).Encode()

	out := make([]byte, 0, 2*protocol.FrameSize+2*len(a)+2*len(b))
	out = append(out, start[:]...)
	for _, code := range a {
		out = binary.LittleEndian.AppendUint16(out, uint16(code))
	}
	for _, code := range b {
		out = binary.LittleEndian.AppendUint16(out, uint16(code))
	}
	return append(out, end[:]...)
}
