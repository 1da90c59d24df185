package channel

import (
	"math"
	"math/cmplx"

	"github.com/mjibson/go-dsp/fft"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Stats holds the measurements reported for a channel
type Stats struct {
	Min       float64
	Max       float64
	P2P       float64
	Mean      float64
	StdDev    float64
	Frequency float64 // Hz, NaN when undefined
}

// FrequencyDefined reports whether the frequency measurement is meaningful
func (s Stats) FrequencyDefined() bool {
	return !math.IsNaN(s.Frequency)
}

// ComputeStatistics returns the descriptive statistics of samples. The
// standard deviation is the sample (n-1) estimate. Every field is -Inf for
// an empty input. Frequency is left at zero.
func ComputeStatistics(samples []float64) Stats {
	if len(samples) == 0 {
		inf := math.Inf(-1)
		return Stats{Min: inf, Max: inf, P2P: inf, Mean: inf, StdDev: inf}
	}

	s := Stats{
		Min:  floats.Min(samples),
		Max:  floats.Max(samples),
		Mean: stat.Mean(samples, nil),
	}
	s.P2P = s.Max - s.Min
	if len(samples) > 1 {
		s.StdDev = stat.StdDev(samples, nil)
	}
	return s
}

// Magnitude floor below which no spectral peak is accepted. The relative
// part keeps round-off leakage from a large DC level from being picked.
const (
	absoluteMagnitudeFloor = 1e-10
	relativeMagnitudeFloor = 1e-9
)

// EstimateFrequency returns the dominant frequency of samples taken at
// rateHz by picking the largest FFT magnitude outside the DC bin. Bins in
// the upper half are folded back below Nyquist. Resolution is rateHz/N and
// the estimate is meaningless for multi-tone or non-periodic input. Returns
// zero when no bin rises above the floor.
func EstimateFrequency(samples []float64, rateHz float64) float64 {
	n := len(samples)
	if n < 2 {
		return 0
	}

	spectrum := fft.FFTReal(samples)

	floor := math.Max(absoluteMagnitudeFloor, relativeMagnitudeFloor*cmplx.Abs(spectrum[0]))
	maxMagnitude := floor
	maxIndex := 0
	for i := 1; i < n; i++ {
		if m := cmplx.Abs(spectrum[i]); m > maxMagnitude {
			maxMagnitude = m
			maxIndex = i
		}
	}

	if maxIndex > n/2 {
		maxIndex = n - maxIndex
	}

	return float64(maxIndex) * rateHz / float64(n)
}
