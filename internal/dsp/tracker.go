// internal/dsp/tracker.go
package dsp

import (
	"errors"
	"math"
	"math/cmplx"

	"gonum.org/v1/gonum/dsp/fourier"
)

var (
	// ErrInvalidFFTSize indicates the FFT size must be a power of two >= 64
	ErrInvalidFFTSize = errors.New("fft size must be a power of two and at least 64")
	// ErrInvalidToneBand indicates the tone band is empty or outside Nyquist
	ErrInvalidToneBand = errors.New("tone band must satisfy 0 < min < max < sample_rate/2")
)

// ToneTracker estimates the dominant tone frequency inside a band from a
// rolling window of raw samples.
type ToneTracker struct {
	sampleRate float64
	size       int
	minHz      float64
	maxHz      float64
	prominence float64

	window []float64 // Hann coefficients
	ring   []float64
	pos    int
	filled int

	fft     *fourier.FFT
	scratch []float64
	coeffs  []complex128
	mags    []float64
}

// NewToneTracker creates a tracker with an fftSize-sample window.
func NewToneTracker(sampleRate float64, fftSize int, minHz, maxHz, prominence float64) (*ToneTracker, error) {
	if fftSize < 64 || fftSize&(fftSize-1) != 0 {
		return nil, ErrInvalidFFTSize
	}
	if minHz <= 0 || maxHz <= minHz || maxHz >= sampleRate/2 {
		return nil, ErrInvalidToneBand
	}

	window := make([]float64, fftSize)
	for i := range window {
		window[i] = 0.5 - 0.5*math.Cos(2*math.Pi*float64(i)/float64(fftSize-1))
	}

	return &ToneTracker{
		sampleRate: sampleRate,
		size:       fftSize,
		minHz:      minHz,
		maxHz:      maxHz,
		prominence: prominence,
		window:     window,
		ring:       make([]float64, fftSize),
		fft:        fourier.NewFFT(fftSize),
		scratch:    make([]float64, fftSize),
		coeffs:     make([]complex128, fftSize/2+1),
		mags:       make([]float64, fftSize/2+1),
	}, nil
}

// Push appends raw samples to the analysis window.
func (t *ToneTracker) Push(block []float32) {
	for _, s := range block {
		t.ring[t.pos] = float64(s)
		t.pos = (t.pos + 1) % t.size
	}
	t.filled = min(t.filled+len(block), t.size)
}

// Ready reports whether the window holds a full FFT frame.
func (t *ToneTracker) Ready() bool {
	return t.filled >= t.size
}

// Reset discards buffered samples.
func (t *ToneTracker) Reset() {
	clear(t.ring)
	t.pos = 0
	t.filled = 0
}

// Estimate returns the interpolated peak frequency in the band. ok is false
// when the window is not full or no bin stands out from the band average.
func (t *ToneTracker) Estimate() (freq float64, ok bool) {
	if !t.Ready() {
		return 0, false
	}

	// Oldest sample first.
	for i := range t.scratch {
		t.scratch[i] = t.ring[(t.pos+i)%t.size] * t.window[i]
	}
	t.coeffs = t.fft.Coefficients(t.coeffs, t.scratch)

	binHz := t.sampleRate / float64(t.size)
	lo := int(math.Ceil(t.minHz / binHz))
	hi := int(math.Floor(t.maxHz / binHz))
	if lo < 1 {
		lo = 1
	}
	if hi > len(t.coeffs)-2 {
		hi = len(t.coeffs) - 2
	}
	if hi <= lo {
		return 0, false
	}

	var sum float64
	peak := lo
	for k := lo; k <= hi; k++ {
		m := cmplx.Abs(t.coeffs[k])
		t.mags[k] = m
		sum += m
		if m > t.mags[peak] {
			peak = k
		}
	}
	mean := sum / float64(hi-lo+1)
	if mean <= 0 || t.mags[peak] < t.prominence*mean {
		return 0, false
	}

	return (float64(peak) + t.interpolate(peak)) * binHz, true
}

// interpolate fits a parabola through the log magnitudes around bin k and
// returns the vertex offset in bins, within [-0.5, 0.5].
func (t *ToneTracker) interpolate(k int) float64 {
	a := math.Log(cmplx.Abs(t.coeffs[k-1]) + 1e-12)
	b := math.Log(cmplx.Abs(t.coeffs[k]) + 1e-12)
	c := math.Log(cmplx.Abs(t.coeffs[k+1]) + 1e-12)
	den := a - 2*b + c
	if den == 0 {
		return 0
	}
	delta := 0.5 * (a - c) / den
	return math.Max(-0.5, math.Min(0.5, delta))
}
