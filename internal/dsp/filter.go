// Package dsp implements the filters applied to acquired traces: causal
// FIR and IIR convolution, the coefficient table loader and the bandpass
// demodulator used for undersampled carriers.
package dsp

import (
	"errors"

	"gonum.org/v1/gonum/floats"
)

// ErrInvalidFeedback is returned for IIR filters whose leading feedback
// coefficient is missing or zero
var ErrInvalidFeedback = errors.New("iir filter needs a non-zero a[0]")

// FIR applies taps h to x: y[i] = sum h[j]*x[i-j], with samples before the
// start of x taken as zero. The output has the length of x.
func FIR(x, h []float64) []float64 {
	y := make([]float64, len(x))
	if len(h) == 0 {
		return y
	}

	reversed := make([]float64, len(h))
	copy(reversed, h)
	floats.Reverse(reversed)

	m := len(h)
	for i := range x {
		// Overlap of the reversed taps with x[0..i]
		k := i
		if k > m-1 {
			k = m - 1
		}
		y[i] = floats.Dot(reversed[m-1-k:], x[i-k:i+1])
	}
	return y
}

// IIR applies the recursive filter with feedback coefficients a and
// feed-forward coefficients b:
//
//	y[i] = (sum_j b[j]*x[i-j] - sum_{j>=1} a[j]*y[i-j]) / a[0]
//
// Terms reaching before the start of x or y are zero.
func IIR(x, a, b []float64) ([]float64, error) {
	if len(a) == 0 || a[0] == 0 {
		return nil, ErrInvalidFeedback
	}

	y := make([]float64, len(x))
	norm := 1 / a[0]
	for i := range x {
		var forward, feedback float64
		for j := 0; j < len(b) && j <= i; j++ {
			forward += b[j] * x[i-j]
		}
		for j := 1; j < len(a) && j <= i; j++ {
			feedback += a[j] * y[i-j]
		}
		y[i] = (forward - feedback) * norm
	}
	return y, nil
}
