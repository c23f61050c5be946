// internal/dsp/detector_test.go
package dsp

import (
	"errors"
	"math"
	"math/rand/v2"
	"testing"
	"time"
)

const (
	detectorSampleRate = 48000.0
	detectorBlockSize  = 256
	detectorTone       = 700.0
)

// segment is one keyed interval of a synthetic signal
type segment struct {
	on bool
	d  time.Duration
}

// keyedSignal renders segments as a sine keyed on and off. Phase is
// continuous across segments.
func keyedSignal(freq, amplitude float64, segments []segment) []float32 {
	var out []float32
	n := 0
	for _, s := range segments {
		count := int(s.d.Seconds() * detectorSampleRate)
		for i := 0; i < count; i++ {
			var v float64
			if s.on {
				v = amplitude * math.Sin(2*math.Pi*freq*float64(n)/detectorSampleRate)
			}
			out = append(out, float32(v))
			n++
		}
	}
	return out
}

// feed pushes samples through the detector in fixed-size blocks.
func feed(d *EnvelopeDetector, samples []float32) {
	for len(samples) > 0 {
		n := min(detectorBlockSize, len(samples))
		d.Process(samples[:n])
		samples = samples[n:]
	}
}

// recorder collects everything a detector emits.
type recorder struct {
	states  []StateEvent
	timings []TimingEvent
	recals  []RecalibrationEvent
}

func (r *recorder) OnStateChange(e StateEvent) { r.states = append(r.states, e) }

func (r *recorder) OnTiming(e TimingEvent) { r.timings = append(r.timings, e) }

func (r *recorder) OnRecalibrate(e RecalibrationEvent) { r.recals = append(r.recals, e) }

func newTestDetector(t *testing.T, mutate func(*DetectorConfig)) (*EnvelopeDetector, *recorder) {
	t.Helper()
	cfg := DefaultDetectorConfig(detectorSampleRate)
	if mutate != nil {
		mutate(&cfg)
	}
	d, err := NewEnvelopeDetector(cfg)
	if err != nil {
		t.Fatalf("NewEnvelopeDetector failed: %v", err)
	}
	rec := &recorder{}
	d.SetListener(rec)
	return d, rec
}

func ms(n int) time.Duration { return time.Duration(n) * time.Millisecond }

func TestDetectorConfig_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*DetectorConfig)
		want   error
	}{
		{"defaults", func(*DetectorConfig) {}, nil},
		{"zero sample rate", func(c *DetectorConfig) { c.SampleRate = 0 }, ErrInvalidSampleRate},
		{"band inverted", func(c *DetectorConfig) { c.ToneMinHz, c.ToneMaxHz = 1200, 300 }, ErrInvalidToneBand},
		{"band above nyquist", func(c *DetectorConfig) { c.ToneMaxHz = 30000 }, ErrInvalidToneBand},
		{"tone outside band", func(c *DetectorConfig) { c.ToneFrequency = 2000 }, ErrInvalidToneFrequency},
		{"threshold min above max", func(c *DetectorConfig) { c.MinThreshold = 0.9 }, ErrInvalidThreshold},
		{"threshold max above one", func(c *DetectorConfig) { c.MaxThreshold = 1.5 }, ErrInvalidThreshold},
		{"ratio zero", func(c *DetectorConfig) { c.ThresholdRatio = 0 }, ErrInvalidThresholdRatio},
		{"ratio one", func(c *DetectorConfig) { c.ThresholdRatio = 1 }, ErrInvalidThresholdRatio},
		{"hysteresis zero", func(c *DetectorConfig) { c.HysteresisRatio = 0 }, ErrInvalidHysteresis},
		{"snr below one", func(c *DetectorConfig) { c.MinSNR = 0.5 }, ErrInvalidMinSNR},
		{"single debounce frame", func(c *DetectorConfig) { c.DebounceFrames = 1 }, ErrInvalidDebounce},
		{"negative segment", func(c *DetectorConfig) { c.MinSegment = -time.Millisecond }, ErrInvalidTiming},
		{"tiny state history", func(c *DetectorConfig) { c.StateHistory = 3 }, ErrInvalidHistory},
		{"agc attack zero", func(c *DetectorConfig) { c.AGCAttack = 0 }, ErrInvalidAGC},
		{"agc gain below one", func(c *DetectorConfig) { c.AGCMaxGain = 0.5 }, ErrInvalidAGC},
		{"agc disabled ignores agc fields", func(c *DetectorConfig) { c.AGCEnabled = false; c.AGCAttack = 0 }, nil},
		{"zero q", func(c *DetectorConfig) { c.QLocked = 0 }, ErrInvalidQ},
		{"fft not power of two", func(c *DetectorConfig) { c.FFTSize = 1000 }, ErrInvalidFFTSize},
		{"tracking off ignores fft", func(c *DetectorConfig) { c.TrackInterval = 0; c.FFTSize = 0 }, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultDetectorConfig(detectorSampleRate)
			tt.mutate(&cfg)
			err := cfg.Validate()
			if !errors.Is(err, tt.want) {
				t.Errorf("Validate() = %v, want %v", err, tt.want)
			}
			if _, cerr := NewEnvelopeDetector(cfg); !errors.Is(cerr, tt.want) {
				t.Errorf("NewEnvelopeDetector() error = %v, want %v", cerr, tt.want)
			}
		})
	}
}

func TestAdaptiveThreshold(t *testing.T) {
	cfg := DefaultDetectorConfig(detectorSampleRate)

	tests := []struct {
		name          string
		noise, signal float64
		want          float64
	}{
		{"silence clamps to min", 0, 0, 0.02},
		{"clean signal", 0, 0.5, 0.3},
		{"signal floored at snr", 0.2, 0.1, 0.2 + 0.2*0.6},
		{"saturated clamps to max", 1, 1, 0.8},
		{"nan falls back to initial", math.NaN(), 0.5, 0.1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := cfg.AdaptiveThreshold(tt.noise, tt.signal)
			if math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("AdaptiveThreshold(%v, %v) = %v, want %v", tt.noise, tt.signal, got, tt.want)
			}
		})
	}
}

func TestEnvelopeDetector_ThresholdAlwaysClamped(t *testing.T) {
	rng := rand.New(rand.NewPCG(1, 2))

	streams := map[string]func(i int) float32{
		"all zero":  func(int) float32 { return 0 },
		"all max":   func(int) float32 { return 1 },
		"alternate": func(i int) float32 { return float32(1 - 2*(i%2)) },
		"noise":     func(int) float32 { return float32(rng.Float64()*2 - 1) },
		"bursts": func(i int) float32 {
			if (i/4800)%3 == 0 {
				return float32(math.Sin(2 * math.Pi * detectorTone * float64(i) / detectorSampleRate))
			}
			return 0
		},
	}

	for name, gen := range streams {
		t.Run(name, func(t *testing.T) {
			d, _ := newTestDetector(t, nil)
			cfg := d.Config()
			block := make([]float32, detectorBlockSize)
			n := 0
			for b := 0; b < 1000; b++ {
				for i := range block {
					block[i] = gen(n)
					n++
				}
				d.Process(block)
				if th := d.Threshold(); th < cfg.MinThreshold || th > cfg.MaxThreshold {
					t.Fatalf("block %d: threshold %v outside [%v, %v]", b, th, cfg.MinThreshold, cfg.MaxThreshold)
				}
				if lv := d.Level(); lv < 0 || lv > 1 {
					t.Fatalf("block %d: level %v outside [0, 1]", b, lv)
				}
			}
		})
	}
}

func TestEnvelopeDetector_AGCHoldsGainUntilCalibrated(t *testing.T) {
	d, rec := newTestDetector(t, nil)
	rng := rand.New(rand.NewPCG(3, 4))
	block := make([]float32, 512)
	noise := func() {
		for i := range block {
			block[i] = float32(rng.NormFloat64() * 0.03)
		}
		d.Process(block)
	}

	for b := 0; b < d.Config().LevelHistory/2-1; b++ {
		noise()
		if d.gain != 1 {
			t.Fatalf("block %d: gain = %v before calibration, want 1", b, d.gain)
		}
	}
	noise()
	if d.gain <= 1 {
		t.Errorf("gain = %v after calibration, want quiet input lifted", d.gain)
	}
	for d.Elapsed() < 3*time.Second {
		noise()
	}
	if len(rec.states) != 0 {
		t.Errorf("noise produced %d state changes, first %+v", len(rec.states), rec.states[0])
	}
}

func TestEnvelopeDetector_KeyedToneTimings(t *testing.T) {
	d, rec := newTestDetector(t, nil)

	// "PARIS" style keying at 20 WPM: 60ms dits, 180ms dahs and char gaps.
	segments := []segment{{false, ms(400)}}
	elements := []segment{
		{true, ms(60)}, {false, ms(60)}, {true, ms(180)}, {false, ms(60)},
		{true, ms(180)}, {false, ms(60)}, {true, ms(60)}, {false, ms(180)},
		{true, ms(60)}, {false, ms(60)}, {true, ms(180)}, {false, ms(180)},
		{true, ms(60)}, {false, ms(60)}, {true, ms(180)}, {false, ms(60)},
		{true, ms(60)}, {false, ms(180)},
		{true, ms(60)}, {false, ms(60)}, {true, ms(60)}, {false, ms(180)},
		{true, ms(60)}, {false, ms(60)}, {true, ms(60)}, {false, ms(60)}, {true, ms(60)},
	}
	segments = append(segments, elements...)
	segments = append(segments, segment{false, ms(500)})

	feed(d, keyedSignal(detectorTone, 0.5, segments))

	// The first event closes the leading silence.
	if len(rec.timings) != len(elements)+1 {
		t.Fatalf("got %d timing events, want %d", len(rec.timings), len(elements)+1)
	}
	const tolerance = 12 * time.Millisecond
	for i, want := range elements {
		got := rec.timings[i+1]
		if got.IsSignal != want.on {
			t.Errorf("event %d: IsSignal = %v, want %v", i, got.IsSignal, want.on)
		}
		if diff := got.Duration - want.d; diff > tolerance || diff < -tolerance {
			t.Errorf("event %d: duration %v, want %v ± %v", i, got.Duration, want.d, tolerance)
		}
	}

	// States alternate and end off.
	for i, s := range rec.states {
		if s.On != (i%2 == 0) {
			t.Fatalf("state %d: On = %v, breaks alternation", i, s.On)
		}
	}
	if d.IsOn() {
		t.Error("detector still on after trailing silence")
	}
}

func TestEnvelopeDetector_NoSegmentShorterThanMinimum(t *testing.T) {
	d, rec := newTestDetector(t, nil)

	// Choppy keying much faster than any real CW.
	var segments []segment
	for i := 0; i < 60; i++ {
		segments = append(segments, segment{true, ms(4 + i%7)}, segment{false, ms(3 + i%5)})
	}
	segments = append(segments, segment{false, ms(200)})
	feed(d, keyedSignal(detectorTone, 0.5, segments))

	minSegment := d.Config().MinSegment
	for i, e := range rec.timings {
		if e.Duration < minSegment {
			t.Errorf("event %d: duration %v shorter than %v", i, e.Duration, minSegment)
		}
	}
}

func TestEnvelopeDetector_DebounceIgnoresSingleBlock(t *testing.T) {
	d, rec := newTestDetector(t, func(c *DetectorConfig) {
		c.TrackInterval = 0
		c.DebounceFrames = 3
	})

	feed(d, keyedSignal(detectorTone, 0.5, []segment{{false, ms(300)}}))
	// One block of tone, plus its filter ring-down, never confirms.
	blip := keyedSignal(detectorTone, 0.5, []segment{{true, ms(6)}})
	d.Process(blip[:detectorBlockSize])
	feed(d, keyedSignal(detectorTone, 0.5, []segment{{false, ms(300)}}))

	if len(rec.states) != 0 {
		t.Errorf("single-block blip produced %d state changes", len(rec.states))
	}
}

func TestEnvelopeDetector_StuckOnRecovery(t *testing.T) {
	d, rec := newTestDetector(t, func(c *DetectorConfig) { c.TrackInterval = 0 })

	feed(d, keyedSignal(detectorTone, 0.5, []segment{{false, ms(200)}, {true, ms(4000)}}))

	if len(rec.recals) != 1 {
		t.Fatalf("got %d recalibrations, want 1 (cooldown)", len(rec.recals))
	}
	r := rec.recals[0]
	if r.Reason != ReasonStuck {
		t.Errorf("Reason = %q, want %q", r.Reason, ReasonStuck)
	}
	stuck := d.Config().StuckTimeout
	if len(rec.states) == 0 || !rec.states[0].On {
		t.Fatal("tone never switched the detector on")
	}
	if r.At-rec.states[0].At < stuck {
		t.Errorf("recalibrated at %v, before the stuck timeout elapsed", r.At)
	}

	forcedOff := false
	for _, s := range rec.states {
		if !s.On && s.At == r.At {
			forcedOff = true
		}
	}
	if !forcedOff {
		t.Error("no off state change at the recalibration time")
	}
	for _, e := range rec.timings {
		if e.IsSignal && e.Duration >= stuck {
			t.Errorf("stuck segment of %v was reported as a timing event", e.Duration)
		}
	}
}

func TestEnvelopeDetector_TracksOffCenterTone(t *testing.T) {
	d, _ := newTestDetector(t, nil)

	var segments []segment
	for i := 0; i < 10; i++ {
		segments = append(segments, segment{true, ms(200)}, segment{false, ms(100)})
	}
	feed(d, keyedSignal(760, 0.5, segments))

	if got := d.CenterFrequency(); math.Abs(got-760) > 10 {
		t.Errorf("CenterFrequency() = %v, want 760 ± 10", got)
	}
	if !d.Locked() {
		t.Error("Locked() = false after a steady tone")
	}
	if d.Q() <= d.Config().QWide {
		t.Errorf("Q() = %v, want narrower than %v once locked", d.Q(), d.Config().QWide)
	}
}

func TestEnvelopeDetector_FrequencyJumpRecalibrates(t *testing.T) {
	d, rec := newTestDetector(t, nil)

	feed(d, keyedSignal(1000, 0.5, []segment{{true, ms(250)}, {false, ms(100)}, {true, ms(250)}, {false, ms(100)}}))

	if len(rec.recals) == 0 {
		t.Fatal("no recalibration after a 300 Hz jump")
	}
	if rec.recals[0].Reason != ReasonFrequencyJump {
		t.Errorf("Reason = %q, want %q", rec.recals[0].Reason, ReasonFrequencyJump)
	}
	if got := d.CenterFrequency(); math.Abs(got-1000) > 10 {
		t.Errorf("CenterFrequency() = %v, want 1000 ± 10", got)
	}
}

func TestEnvelopeDetector_ManualRecalibrate(t *testing.T) {
	d, rec := newTestDetector(t, nil)
	feed(d, keyedSignal(detectorTone, 0.5, []segment{{false, ms(300)}, {true, ms(200)}}))

	if !d.IsOn() {
		t.Fatal("expected detector on")
	}
	d.Recalibrate()

	if d.IsOn() {
		t.Error("IsOn() = true after Recalibrate")
	}
	if d.Threshold() != d.Config().InitialThreshold {
		t.Errorf("Threshold() = %v, want initial %v", d.Threshold(), d.Config().InitialThreshold)
	}
	if len(rec.recals) != 1 || rec.recals[0].Reason != ReasonManual {
		t.Errorf("recalibrations = %+v, want one manual", rec.recals)
	}
}

func TestEnvelopeDetector_FlushEndsOpenSegment(t *testing.T) {
	d, rec := newTestDetector(t, nil)
	feed(d, keyedSignal(detectorTone, 0.5, []segment{{false, ms(300)}, {true, ms(120)}}))

	before := len(rec.timings)
	d.Flush()
	if len(rec.timings) != before+1 {
		t.Fatalf("Flush emitted %d events, want 1", len(rec.timings)-before)
	}
	last := rec.timings[len(rec.timings)-1]
	if !last.IsSignal {
		t.Error("flushed segment should be a signal")
	}
	if math.Abs(last.Ms()-120) > 12 {
		t.Errorf("flushed duration = %v, want about 120ms", last.Duration)
	}

	d.Flush()
	if len(rec.timings) != before+1 {
		t.Error("second Flush emitted an event")
	}
}

func TestEnvelopeDetector_ResetKeepsClock(t *testing.T) {
	d, _ := newTestDetector(t, nil)
	feed(d, keyedSignal(detectorTone, 0.5, []segment{{false, ms(100)}, {true, ms(100)}}))

	elapsed := d.Elapsed()
	d.Reset()
	if d.IsOn() {
		t.Error("IsOn() = true after Reset")
	}
	if d.Elapsed() != elapsed {
		t.Errorf("Elapsed() = %v after Reset, want %v", d.Elapsed(), elapsed)
	}
	if d.CenterFrequency() != d.Config().ToneFrequency {
		t.Errorf("CenterFrequency() = %v, want %v", d.CenterFrequency(), d.Config().ToneFrequency)
	}
}

func TestEnvelopeDetector_NilListener(t *testing.T) {
	d, _ := newTestDetector(t, nil)
	d.SetListener(nil)
	feed(d, keyedSignal(detectorTone, 0.5, []segment{{false, ms(300)}, {true, ms(100)}, {false, ms(100)}}))
	d.Recalibrate()
	d.Flush()
}

func TestEnvelopeDetector_IgnoresEmptyBlock(t *testing.T) {
	d, _ := newTestDetector(t, nil)
	d.Process(nil)
	if d.Elapsed() != 0 {
		t.Errorf("Elapsed() = %v after empty block", d.Elapsed())
	}
}
