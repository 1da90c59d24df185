package display

import (
	"bytes"
	"math"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"digiscope-client/internal/channel"
)

type recordingSink struct {
	frames []Frame
}

func (r *recordingSink) Publish(f Frame) { r.frames = append(r.frames, f) }

func TestToYAndVoltageAtInvert(t *testing.T) {
	for _, v := range []float64{-2.5, 0, 1.6504, 3.3} {
		y := ToY(v, 1.0)
		if got := VoltageAt(y, 1.0); math.Abs(got-v) > 1e-12 {
			t.Errorf("VoltageAt(ToY(%v)) = %v", v, got)
		}
	}
	if y := ToY(0, 0.5); y != HorizontalZero {
		t.Errorf("zero volts should sit on the centre line, got %v", y)
	}
}

func TestProjectVisibleSubset(t *testing.T) {
	// At 1V/div the grid spans +-6V
	samples := []float64{0, 1, 7, -7, 2}
	p := Project(samples, 1.0, 1.0)

	if !p.OffScreen {
		t.Fatal("expected off screen flag for +-7V at 1V/div")
	}
	want := []float64{0, 1, 2}
	if len(p.Visible) != len(want) {
		t.Fatalf("visible = %v, want %v", p.Visible, want)
	}
	for i := range want {
		if p.Visible[i] != want[i] {
			t.Fatalf("visible = %v, want %v", p.Visible, want)
		}
	}
	if len(p.Points) != len(samples) {
		t.Fatalf("points = %d, want %d", len(p.Points), len(samples))
	}
}

func TestProjectHorizontalScaleClips(t *testing.T) {
	samples := make([]float64, 100)
	// Stretching by 4 leaves a quarter of the trace on screen
	p := Project(samples, 1.0, 4.0)
	if len(p.Visible) != 26 {
		t.Fatalf("visible = %d samples, want 26", len(p.Visible))
	}
	if p.OffScreen {
		t.Fatal("zero trace should not be flagged off screen")
	}
}

func TestScreenUpdatesChannel(t *testing.T) {
	sink := &recordingSink{}
	screen := NewScreen(sink)

	ch := channel.New(channel.B)
	ch.SetSamples([]float64{0.5, 0.5, 10}, 1000)

	screen.ClearGrid()
	screen.SetTriggerIndex(1)
	screen.PlotChannel(1.0, ch, false)
	screen.Refresh()

	if !ch.VerticallyOffScreen() {
		t.Fatal("channel should be flagged off screen")
	}
	if ch.Stats().FrequencyDefined() {
		t.Fatal("frequency should be undefined off screen")
	}
	if ch.Stats().Max != 0.5 {
		t.Fatalf("visible max = %v, want 0.5", ch.Stats().Max)
	}

	if len(sink.frames) != 1 || len(sink.frames[0].Traces) != 1 {
		t.Fatalf("unexpected frames: %+v", sink.frames)
	}
	if sink.frames[0].TriggerIndex != 1 || sink.frames[0].Traces[0].Name != "B" {
		t.Fatalf("unexpected frame: %+v", sink.frames[0])
	}
}

func TestScreenPlotsBandpassTrace(t *testing.T) {
	sink := &recordingSink{}
	screen := NewScreen(sink)

	ch := channel.New(channel.A)
	ch.SetSamples([]float64{1, 1}, 1000)
	ch.SetBandpassed([]float64{0.25, 0.25, 0.25})

	screen.ClearGrid()
	screen.PlotChannel(1.0, ch, true)
	screen.Refresh()

	if got := len(sink.frames[0].Traces[0].Points); got != 3 {
		t.Fatalf("bandpass trace has %d points, want 3", got)
	}
	if ch.Stats().Mean != 0.25 {
		t.Fatalf("mean = %v, want 0.25", ch.Stats().Mean)
	}
}

func TestConsoleLine(t *testing.T) {
	var buf bytes.Buffer
	console := NewConsole(&buf)

	console.Publish(Frame{Traces: []Trace{{
		Name:  "Math",
		Color: channel.Color{R: 255, G: 255},
		Stats: channel.Stats{Min: 1, Max: 2, P2P: 1, Mean: 1.5, StdDev: 0.5, Frequency: math.NaN()},
	}}})

	out := buf.String()
	for _, want := range []string{"Math", "1.000V", "2.000V", "1.500V", "freq", "n/a"} {
		if !strings.Contains(out, want) {
			t.Errorf("console output missing %q: %q", want, out)
		}
	}
}

func TestFormatFrequency(t *testing.T) {
	tests := map[float64]string{
		50:         "50.0Hz",
		1500:       "1.500kHz",
		2.5e6:      "2.500MHz",
		math.NaN(): "n/a",
	}
	for hz, want := range tests {
		if got := FormatFrequency(hz); got != want {
			t.Errorf("FormatFrequency(%v) = %q, want %q", hz, got, want)
		}
	}
}

func TestHubPublishesFrames(t *testing.T) {
	hub := NewHub(zap.NewNop())
	server := httptest.NewServer(hub)
	defer server.Close()
	defer hub.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(server.URL, "http"), nil)
	if err != nil {
		t.Fatalf("Failed to dial hub: %v", err)
	}
	defer conn.Close()

	deadline := time.Now().Add(2 * time.Second)
	for hub.ClientCount() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("client never registered")
		}
		time.Sleep(10 * time.Millisecond)
	}

	hub.Publish(Frame{TriggerIndex: 3, Scale: 1, Traces: []Trace{{
		Name:   "A",
		Color:  channel.Color{R: 255},
		Points: []Point{{X: 0, Y: 100}},
		Stats:  channel.Stats{Min: math.Inf(-1), Frequency: 1000},
	}}})

	var msg frameMessage
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("Failed to read frame: %v", err)
	}

	if msg.TriggerIndex != 3 || len(msg.Traces) != 1 {
		t.Fatalf("unexpected message: %+v", msg)
	}
	trace := msg.Traces[0]
	if trace.Color != "#ff0000" || len(trace.Points) != 1 {
		t.Fatalf("unexpected trace: %+v", trace)
	}
	if trace.Stats["min"] != nil {
		t.Fatalf("non-finite min should be null, got %v", *trace.Stats["min"])
	}
	if f := trace.Stats["frequency"]; f == nil || *f != 1000 {
		t.Fatalf("frequency = %v", f)
	}
}
