package protocol

import (
	"errors"
	"math"
	"testing"
	"time"
)

func TestEncodeByteOrder(t *testing.T) {
	// 0x3737 with value 1000 (0x03E8) must go out low byte first
	got := NewFrame(NumSamplesCommand, 1000).Encode()
	want := [FrameSize]byte{0x37, 0x37, 0xE8, 0x03}
	if got != want {
		t.Fatalf("Encode = % X, want % X", got, want)
	}

	got = NewFrame(TimePerDivisionCommand, 0x3141).Encode()
	want = [FrameSize]byte{0x31, 0x31, 0x41, 0x31}
	if got != want {
		t.Fatalf("Encode = % X, want % X", got, want)
	}
}

func TestDecodeInvertsEncode(t *testing.T) {
	frames := []Frame{
		NewFrame(ForceTriggerCommand, Padding),
		NewFrame(SampleStartCommand, 512),
		NewSignedFrame(TriggerThresholdCommand, -1500),
		NewFrame(Command(0xBEEF), 0xFFFF),
	}
	for _, f := range frames {
		if got := Decode(f.Encode()); got != f {
			t.Errorf("Decode(Encode(%v)) = %v", f, got)
		}
	}
}

func TestSignedValue(t *testing.T) {
	f := Decode([FrameSize]byte{0x33, 0x33, 0x0C, 0xFE})
	if f.Command != TriggerThresholdCommand {
		t.Fatalf("command = %v, want %v", f.Command, TriggerThresholdCommand)
	}
	if f.Signed() != -500 {
		t.Fatalf("Signed() = %d, want -500", f.Signed())
	}
}

func TestCommandString(t *testing.T) {
	if s := DeviceStatusCommand.String(); s != "DEVICE_STATUS" {
		t.Errorf("String() = %q", s)
	}
	if Command(0x1234).Known() {
		t.Errorf("0x1234 should not be a known command")
	}
}

func TestParseSettings(t *testing.T) {
	tests := []struct {
		name  string
		parse func() (uint16, error)
		want  uint16
	}{
		{"trigger mode", func() (uint16, error) { v, err := ParseTriggerMode("Single"); return uint16(v), err }, 2},
		{"trigger type", func() (uint16, error) { v, err := ParseTriggerType("Falling"); return uint16(v), err }, 1},
		{"sampling mode", func() (uint16, error) { v, err := ParseSamplingMode("12 bit"); return uint16(v), err }, 1},
		{"coupling", func() (uint16, error) { v, err := ParseCoupling("DC"); return uint16(v), err }, 1},
		{"trigger channel", func() (uint16, error) { v, err := ParseTriggerChannel("B"); return uint16(v), err }, 1},
		{"switch on", func() (uint16, error) { v, err := ParseSwitch("On"); return uint16(v), err }, 0},
		{"switch off", func() (uint16, error) { v, err := ParseSwitch("Off"); return uint16(v), err }, 1},
		{"wave type", func() (uint16, error) { v, err := ParseWaveType("Noise"); return uint16(v), err }, 4},
		{"volts/div mV", func() (uint16, error) { v, err := ParseVoltsPerDivision("200mV"); return uint16(v), err }, 200},
		{"volts/div V", func() (uint16, error) { v, err := ParseVoltsPerDivision("2V"); return uint16(v), err }, 2000},
		{"time/div micro", func() (uint16, error) { v, err := ParseTimePerDivision("500µs"); return uint16(v), err }, 0x3140},
		{"time/div us", func() (uint16, error) { v, err := ParseTimePerDivision("1us"); return uint16(v), err }, 0x3132},
		{"time/div ms", func() (uint16, error) { v, err := ParseTimePerDivision("1ms"); return uint16(v), err }, 0x3141},
		{"time/div s", func() (uint16, error) { v, err := ParseTimePerDivision("1s"); return uint16(v), err }, 0x3150},
	}

	for _, tt := range tests {
		got, err := tt.parse()
		if err != nil {
			t.Errorf("%s: unexpected error: %v", tt.name, err)
			continue
		}
		if got != tt.want {
			t.Errorf("%s: got 0x%04X, want 0x%04X", tt.name, got, tt.want)
		}
	}
}

func TestParseUnknown(t *testing.T) {
	if _, err := ParseTriggerMode("Sometimes"); !errors.Is(err, ErrUnknownValue) {
		t.Fatalf("expected ErrUnknownValue, got %v", err)
	}
	if _, err := ParseTimePerDivision("3ms"); !errors.Is(err, ErrUnknownValue) {
		t.Fatalf("expected ErrUnknownValue, got %v", err)
	}
}

func TestTimePerDivisionDuration(t *testing.T) {
	tpd, err := ParseTimePerDivision("20ms")
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if tpd.Duration() != 20*time.Millisecond {
		t.Fatalf("Duration() = %v", tpd.Duration())
	}
	if tpd.String() != "20ms" {
		t.Fatalf("String() = %q", tpd.String())
	}
}

func TestMaxSamples(t *testing.T) {
	if Sampling12Bit.MaxSamples() != 25000 {
		t.Errorf("12 bit limit = %d", Sampling12Bit.MaxSamples())
	}
	if Sampling8Bit.MaxSamples() != 50000 {
		t.Errorf("8 bit limit = %d", Sampling8Bit.MaxSamples())
	}
}

func TestMilliVolts(t *testing.T) {
	mv, err := ToMilliVolts(-1.5)
	if err != nil || mv != -1500 {
		t.Fatalf("ToMilliVolts(-1.5) = %d, %v", mv, err)
	}
	mv, err = ToMilliVolts(0.57)
	if err != nil || mv != 570 {
		t.Fatalf("ToMilliVolts(0.57) = %d, %v", mv, err)
	}
	if _, err := ToMilliVolts(40); err == nil {
		t.Fatalf("expected out of range error for 40V")
	}
	if FromMilliVolts(-250) != -0.25 {
		t.Fatalf("FromMilliVolts(-250) = %v", FromMilliVolts(-250))
	}
}

func TestCodeToVolts(t *testing.T) {
	if v := CodeToVolts(4095); math.Abs(v-3.3) > 1e-12 {
		t.Errorf("CodeToVolts(4095) = %v", v)
	}
	if v := CodeToVolts(2048); math.Abs(v-1.6504) > 1e-4 {
		t.Errorf("CodeToVolts(2048) = %v", v)
	}
	if v := CodeToVolts(-4095); math.Abs(v+3.3) > 1e-12 {
		t.Errorf("CodeToVolts(-4095) = %v", v)
	}
}
