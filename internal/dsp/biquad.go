// internal/dsp/biquad.go
package dsp

import "math"

// Bandpass is a second-order RBJ band-pass filter (0 dB peak gain).
// Retuning keeps the filter state so the output stays continuous while the
// centre frequency or Q drifts.
type Bandpass struct {
	sampleRate float64
	center     float64
	q          float64

	b0, b2 float64 // b1 is always zero
	a1, a2 float64

	x1, x2 float64
	y1, y2 float64
}

// NewBandpass creates a band-pass filter centred on center Hz.
func NewBandpass(sampleRate, center, q float64) *Bandpass {
	f := &Bandpass{sampleRate: sampleRate}
	f.Tune(center, q)
	return f
}

// Tune recomputes the coefficients for a new centre frequency and Q.
func (f *Bandpass) Tune(center, q float64) {
	if q <= 0 {
		q = 0.5
	}
	f.center = center
	f.q = q

	omega := 2 * math.Pi * center / f.sampleRate
	alpha := math.Sin(omega) / (2 * q)
	a0 := 1 + alpha

	f.b0 = alpha / a0
	f.b2 = -alpha / a0
	f.a1 = -2 * math.Cos(omega) / a0
	f.a2 = (1 - alpha) / a0
}

// Filter processes one sample.
func (f *Bandpass) Filter(x float64) float64 {
	y := f.b0*x + f.b2*f.x2 - f.a1*f.y1 - f.a2*f.y2
	f.x2, f.x1 = f.x1, x
	f.y2, f.y1 = f.y1, y
	return y
}

// RMS filters a block and returns the root-mean-square of the output.
func (f *Bandpass) RMS(block []float32) float64 {
	if len(block) == 0 {
		return 0
	}
	var sum float64
	for _, s := range block {
		y := f.Filter(float64(s))
		sum += y * y
	}
	return math.Sqrt(sum / float64(len(block)))
}

// Reset clears the filter history.
func (f *Bandpass) Reset() {
	f.x1, f.x2, f.y1, f.y2 = 0, 0, 0, 0
}

// Center returns the current centre frequency in Hz.
func (f *Bandpass) Center() float64 { return f.center }

// Q returns the current quality factor.
func (f *Bandpass) Q() float64 { return f.q }
