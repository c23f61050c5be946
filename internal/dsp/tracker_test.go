// internal/dsp/tracker_test.go
package dsp

import (
	"errors"
	"math"
	"testing"
)

func sine(freq, amplitude float64, n int) []float32 {
	out := make([]float32, n)
	for i := range out {
		out[i] = float32(amplitude * math.Sin(2*math.Pi*freq*float64(i)/detectorSampleRate))
	}
	return out
}

func TestNewToneTracker_Invalid(t *testing.T) {
	tests := []struct {
		name     string
		size     int
		min, max float64
		want     error
	}{
		{"not power of two", 1000, 300, 1200, ErrInvalidFFTSize},
		{"too small", 32, 300, 1200, ErrInvalidFFTSize},
		{"empty band", 4096, 800, 800, ErrInvalidToneBand},
		{"above nyquist", 4096, 300, 25000, ErrInvalidToneBand},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewToneTracker(detectorSampleRate, tt.size, tt.min, tt.max, 4)
			if !errors.Is(err, tt.want) {
				t.Errorf("NewToneTracker() error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestToneTracker_Estimate(t *testing.T) {
	for _, freq := range []float64{450, 700, 853, 1100} {
		tr, err := NewToneTracker(detectorSampleRate, 4096, 300, 1200, 4)
		if err != nil {
			t.Fatal(err)
		}
		tr.Push(sine(freq, 0.3, 6000))

		got, ok := tr.Estimate()
		if !ok {
			t.Errorf("%v Hz: no estimate", freq)
			continue
		}
		if math.Abs(got-freq) > 3 {
			t.Errorf("%v Hz: estimate %v, want within 3 Hz", freq, got)
		}
	}
}

func TestToneTracker_NotReady(t *testing.T) {
	tr, err := NewToneTracker(detectorSampleRate, 4096, 300, 1200, 4)
	if err != nil {
		t.Fatal(err)
	}
	tr.Push(sine(700, 0.3, 1000))
	if tr.Ready() {
		t.Error("Ready() = true with a partial window")
	}
	if _, ok := tr.Estimate(); ok {
		t.Error("Estimate() ok with a partial window")
	}
}

func TestToneTracker_NoPeakInSilence(t *testing.T) {
	tr, err := NewToneTracker(detectorSampleRate, 4096, 300, 1200, 4)
	if err != nil {
		t.Fatal(err)
	}
	tr.Push(make([]float32, 4096))
	if _, ok := tr.Estimate(); ok {
		t.Error("Estimate() ok on silence")
	}
}

func TestToneTracker_OutOfBandToneIgnored(t *testing.T) {
	tr, err := NewToneTracker(detectorSampleRate, 4096, 300, 1200, 4)
	if err != nil {
		t.Fatal(err)
	}
	// All energy sits near 3 kHz; the band only sees leakage.
	tr.Push(sine(3010, 0.5, 4096))
	if f, ok := tr.Estimate(); ok {
		t.Errorf("Estimate() = %v, want no in-band peak", f)
	}
}

func TestToneTracker_Reset(t *testing.T) {
	tr, err := NewToneTracker(detectorSampleRate, 4096, 300, 1200, 4)
	if err != nil {
		t.Fatal(err)
	}
	tr.Push(sine(700, 0.3, 5000))
	tr.Reset()
	if tr.Ready() {
		t.Error("Ready() = true after Reset")
	}
}

func TestBandpass_Selectivity(t *testing.T) {
	tests := []struct {
		name     string
		freq     float64
		min, max float64
	}{
		{"centre passes", 700, 0.65, 0.75},
		{"two octaves up rejected", 2800, 0, 0.25},
		{"two octaves down rejected", 175, 0, 0.25},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := NewBandpass(detectorSampleRate, 700, 1.5)
			f.RMS(sine(tt.freq, 1, 4800)) // settle
			got := f.RMS(sine(tt.freq, 1, 4800))
			if got < tt.min || got > tt.max {
				t.Errorf("RMS = %v, want in [%v, %v]", got, tt.min, tt.max)
			}
		})
	}
}

func TestBandpass_TuneKeepsState(t *testing.T) {
	f := NewBandpass(detectorSampleRate, 700, 1.5)
	f.RMS(sine(700, 1, 480))
	f.Tune(720, 6)
	if f.Center() != 720 || f.Q() != 6 {
		t.Errorf("Center/Q = %v/%v, want 720/6", f.Center(), f.Q())
	}
	if f.y1 == 0 && f.y2 == 0 {
		t.Error("Tune cleared the filter state")
	}
	f.Reset()
	if f.y1 != 0 || f.y2 != 0 || f.x1 != 0 || f.x2 != 0 {
		t.Error("Reset left filter state")
	}
}

func TestHistory_Quantiles(t *testing.T) {
	h := newHistory(5)
	if h.median() != 0 {
		t.Errorf("median of empty history = %v, want 0", h.median())
	}
	for _, v := range []float64{9, 1, 5, 3, 7} {
		h.push(v)
	}
	if got := h.median(); got != 5 {
		t.Errorf("median = %v, want 5", got)
	}

	// Evicts 9 and 1.
	h.push(2)
	h.push(4)
	if h.len() != 5 {
		t.Errorf("len = %d, want 5", h.len())
	}
	if got := h.quantile(1); got != 7 {
		t.Errorf("max = %v, want 7", got)
	}
	if got := h.quantile(0); got != 2 {
		t.Errorf("min = %v, want 2", got)
	}

	h.reset()
	if h.len() != 0 {
		t.Errorf("len after reset = %d", h.len())
	}
}
