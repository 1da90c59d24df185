package dsp

import (
	"math"

	"gonum.org/v1/gonum/dsp/window"
	"gonum.org/v1/gonum/floats"
)

// Bandpass demodulator parameters
const (
	UpsampleFactor    = 20
	LocalOscillatorHz = 1e6
	LowpassTaps       = 101
	LowpassCutoff     = 0.01 // fraction of the upsampled rate
)

var demodTaps = WindowedSincLowpass(LowpassTaps, LowpassCutoff)

// Upsample inserts factor-1 linearly interpolated points between each pair
// of samples. An input of length N gives factor*(N-1)+1 samples.
func Upsample(x []float64, factor int) []float64 {
	if len(x) == 0 {
		return nil
	}
	if factor < 1 {
		factor = 1
	}

	out := make([]float64, 0, factor*(len(x)-1)+1)
	for i := 0; i < len(x)-1; i++ {
		step := (x[i+1] - x[i]) / float64(factor)
		for j := 0; j < factor; j++ {
			out = append(out, x[i]+step*float64(j))
		}
	}
	return append(out, x[len(x)-1])
}

// Mix multiplies x in place by a sine local oscillator at loHz, with x
// sampled at rateHz
func Mix(x []float64, loHz, rateHz float64) {
	for k := range x {
		x[k] *= math.Sin(2 * math.Pi * loHz * float64(k) / rateHz)
	}
}

// WindowedSincLowpass designs a linear phase lowpass with a Hamming window.
// cutoff is a fraction of the sample rate. Taps are scaled to unit gain at DC.
func WindowedSincLowpass(numTaps int, cutoff float64) []float64 {
	h := make([]float64, numTaps)
	mid := float64(numTaps-1) / 2
	for i := range h {
		t := float64(i) - mid
		if t == 0 {
			h[i] = 2 * cutoff
		} else {
			h[i] = math.Sin(2*math.Pi*cutoff*t) / (math.Pi * t)
		}
	}
	window.Hamming(h)
	floats.Scale(1/floats.Sum(h), h)
	return h
}

// Demodulate recovers the baseband of an undersampled carrier: upsample
// the trace, mix it with the local oscillator at the upsampled rate, then
// lowpass it.
func Demodulate(x []float64, rateHz float64) []float64 {
	up := Upsample(x, UpsampleFactor)
	Mix(up, LocalOscillatorHz, UpsampleFactor*rateHz)
	return FIR(up, demodTaps)
}
