package dsp

import (
	"errors"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

func TestFIRIdentity(t *testing.T) {
	x := []float64{0.5, -1, 2, 3.25}
	y := FIR(x, []float64{1})
	if !floats.Equal(x, y) {
		t.Fatalf("FIR with h=[1] = %v, want %v", y, x)
	}
}

func TestFIRImpulseResponse(t *testing.T) {
	h := []float64{0.25, 0.5, 0.25}
	x := []float64{1, 0, 0, 0, 0}
	y := FIR(x, h)
	want := []float64{0.25, 0.5, 0.25, 0, 0}
	if !floats.EqualApprox(y, want, 1e-15) {
		t.Fatalf("impulse response = %v, want %v", y, want)
	}
}

func TestFIRIsCausal(t *testing.T) {
	h := []float64{0.1, -0.4, 0.7, 0.2, 0.05}
	x := []float64{1, -2, 0.5, 3, 4, -1, 2, 0.25}
	before := FIR(x, h)

	for i := 0; i < len(x)-1; i++ {
		changed := append([]float64(nil), x...)
		for j := i + 1; j < len(changed); j++ {
			changed[j] += 10 * float64(j)
		}
		after := FIR(changed, h)
		if !floats.Equal(before[:i+1], after[:i+1]) {
			t.Fatalf("changing samples after %d altered earlier output: %v vs %v", i, before[:i+1], after[:i+1])
		}
	}
}

func TestIIRIsCausal(t *testing.T) {
	a := []float64{1, -0.5}
	b := []float64{0.3, 0.2}
	x := []float64{1, 0, -1, 2, 0.5, 3}
	before, err := IIR(x, a, b)
	if err != nil {
		t.Fatalf("IIR failed: %v", err)
	}

	changed := append([]float64(nil), x...)
	changed[4], changed[5] = -7, 9
	after, err := IIR(changed, a, b)
	if err != nil {
		t.Fatalf("IIR failed: %v", err)
	}
	if !floats.Equal(before[:4], after[:4]) {
		t.Fatalf("changing x[4:] altered y[:4]: %v vs %v", before[:4], after[:4])
	}
}

func TestFIRLongerTapsThanInput(t *testing.T) {
	y := FIR([]float64{1, 2}, []float64{1, 1, 1, 1})
	want := []float64{1, 3}
	if !floats.Equal(y, want) {
		t.Fatalf("FIR = %v, want %v", y, want)
	}
}

func TestIIRMatchesFIRWithoutFeedback(t *testing.T) {
	x := []float64{1, 2, 3, 4, 5}
	b := []float64{0.5, 0.5}
	y, err := IIR(x, []float64{1}, b)
	if err != nil {
		t.Fatalf("IIR failed: %v", err)
	}
	if !floats.EqualApprox(y, FIR(x, b), 1e-15) {
		t.Fatalf("IIR with a=[1] = %v, want %v", y, FIR(x, b))
	}
}

func TestIIRFeedback(t *testing.T) {
	// y[i] = x[i] + 0.5*y[i-1], normalised by a[0] = 2
	y, err := IIR([]float64{2, 0, 0, 0}, []float64{2, -1}, []float64{2})
	if err != nil {
		t.Fatalf("IIR failed: %v", err)
	}
	want := []float64{2, 1, 0.5, 0.25}
	if !floats.EqualApprox(y, want, 1e-15) {
		t.Fatalf("IIR = %v, want %v", y, want)
	}
}

func TestIIRRejectsZeroA0(t *testing.T) {
	if _, err := IIR([]float64{1}, []float64{0, 1}, []float64{1}); !errors.Is(err, ErrInvalidFeedback) {
		t.Fatalf("expected ErrInvalidFeedback, got %v", err)
	}
}

func TestLoadCoefficientsFIR(t *testing.T) {
	c, err := LoadCoefficients(strings.NewReader("0.25\n0.5\n\n0.25\n"))
	if err != nil {
		t.Fatalf("LoadCoefficients failed: %v", err)
	}
	if c.Type != FIRFilter {
		t.Fatalf("type = %v, want FIR", c.Type)
	}
	if !floats.Equal(c.Taps, []float64{0.25, 0.5, 0.25}) {
		t.Fatalf("taps = %v", c.Taps)
	}
}

func TestLoadCoefficientsIIR(t *testing.T) {
	c, err := LoadCoefficients(strings.NewReader("1, 0.2\n-0.5, 0.3\n"))
	if err != nil {
		t.Fatalf("LoadCoefficients failed: %v", err)
	}
	if c.Type != IIRFilter {
		t.Fatalf("type = %v, want IIR", c.Type)
	}
	if !floats.Equal(c.A, []float64{1, -0.5}) || !floats.Equal(c.B, []float64{0.2, 0.3}) {
		t.Fatalf("a = %v, b = %v", c.A, c.B)
	}

	y, err := c.Apply([]float64{1, 0})
	if err != nil {
		t.Fatalf("Apply failed: %v", err)
	}
	// y0 = 0.2, y1 = 0.3 + 0.5*0.2
	if !floats.EqualApprox(y, []float64{0.2, 0.4}, 1e-15) {
		t.Fatalf("Apply = %v", y)
	}
}

func TestLoadCoefficientsRejectsMalformed(t *testing.T) {
	tables := map[string]string{
		"mixed widths": "1,2\n3\n",
		"non numeric":  "0.5\nabc\n",
		"empty":        "\n\n",
		"three wide":   "1,2,3\n",
		"zero a0":      "0,1\n1,1\n",
	}
	for name, table := range tables {
		if _, err := LoadCoefficients(strings.NewReader(table)); !errors.Is(err, ErrMalformedCoefficients) {
			t.Errorf("%s: expected ErrMalformedCoefficients, got %v", name, err)
		}
	}
}

func TestLoadCoefficientsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "lowpass.csv")
	if err := os.WriteFile(path, []byte("0.5\n0.5\n"), 0644); err != nil {
		t.Fatalf("Failed to write file: %v", err)
	}
	c, err := LoadCoefficientsFile(path)
	if err != nil {
		t.Fatalf("LoadCoefficientsFile failed: %v", err)
	}
	if len(c.Taps) != 2 {
		t.Fatalf("taps = %v", c.Taps)
	}

	if _, err := LoadCoefficientsFile(filepath.Join(t.TempDir(), "missing.csv")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestUpsampleLength(t *testing.T) {
	for _, n := range []int{1, 2, 7, 150} {
		x := make([]float64, n)
		if got := len(Upsample(x, UpsampleFactor)); got != UpsampleFactor*(n-1)+1 {
			t.Errorf("len(Upsample(N=%d)) = %d, want %d", n, got, UpsampleFactor*(n-1)+1)
		}
	}
	if Upsample(nil, UpsampleFactor) != nil {
		t.Error("Upsample(nil) should be empty")
	}
}

func TestUpsampleInterpolates(t *testing.T) {
	up := Upsample([]float64{0, 1, -1}, 4)
	want := []float64{0, 0.25, 0.5, 0.75, 1, 0.5, 0, -0.5, -1}
	if !floats.EqualApprox(up, want, 1e-15) {
		t.Fatalf("Upsample = %v, want %v", up, want)
	}
}

func TestLowpassUnityGain(t *testing.T) {
	h := WindowedSincLowpass(LowpassTaps, LowpassCutoff)
	if len(h) != LowpassTaps {
		t.Fatalf("len = %d", len(h))
	}
	if math.Abs(floats.Sum(h)-1) > 1e-12 {
		t.Fatalf("DC gain = %v", floats.Sum(h))
	}
	for i := range h {
		if math.Abs(h[i]-h[len(h)-1-i]) > 1e-15 {
			t.Fatalf("taps not symmetric at %d", i)
		}
	}
}

func TestDemodulateCarrier(t *testing.T) {
	// A 1 MHz carrier sampled at 4 MHz mixes down to a steady level
	const rate = 4e6
	x := make([]float64, 150)
	for i := range x {
		x[i] = math.Sin(2 * math.Pi * LocalOscillatorHz * float64(i) / rate)
	}

	y := Demodulate(x, rate)
	if len(y) != UpsampleFactor*(len(x)-1)+1 {
		t.Fatalf("len = %d", len(y))
	}

	// Skip the filter warm-up
	settled := y[200:]
	mean := stat.Mean(settled, nil)
	sd := stat.StdDev(settled, nil)
	t.Logf("demodulated level %.4f, ripple %.4f", mean, sd)
	if mean < 0.3 {
		t.Fatalf("baseband level %v too low", mean)
	}
	if sd > 0.02 {
		t.Fatalf("baseband ripple %v too high", sd)
	}
}
