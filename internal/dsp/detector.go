// internal/dsp/detector.go
package dsp

import (
	"errors"
	"math"
	"time"
)

var (
	// ErrInvalidSampleRate indicates sample rate must be positive
	ErrInvalidSampleRate = errors.New("sample rate must be positive")
	// ErrInvalidThreshold indicates the threshold range is not 0 <= min < max <= 1
	ErrInvalidThreshold = errors.New("threshold range must satisfy 0 <= min < max <= 1")
	// ErrInvalidThresholdRatio indicates the threshold ratio must be in (0, 1)
	ErrInvalidThresholdRatio = errors.New("threshold ratio must be between 0.0 and 1.0")
	// ErrInvalidHysteresis indicates the hysteresis ratio must be in (0, 1]
	ErrInvalidHysteresis = errors.New("hysteresis ratio must be greater than 0.0 and at most 1.0")
	// ErrInvalidMinSNR indicates the minimum signal-to-noise ratio must be >= 1
	ErrInvalidMinSNR = errors.New("minimum snr must be at least 1.0")
	// ErrInvalidDebounce indicates at least two confirming blocks are required
	ErrInvalidDebounce = errors.New("debounce frames must be at least 2")
	// ErrInvalidTiming indicates a negative time constant
	ErrInvalidTiming = errors.New("detector time constants must be non-negative")
	// ErrInvalidHistory indicates a level history is too small
	ErrInvalidHistory = errors.New("level history must hold at least 2 entries and state history at least 10")
	// ErrInvalidAGC indicates an AGC parameter is out of range
	ErrInvalidAGC = errors.New("agc target, attack and release must be in (0, 1] and max gain at least 1")
	// ErrInvalidQ indicates a band-pass Q must be positive
	ErrInvalidQ = errors.New("band-pass q values must be positive and smoothing in (0, 1]")
	// ErrInvalidToneFrequency indicates the initial tone lies outside the tone band
	ErrInvalidToneFrequency = errors.New("tone frequency must lie inside the tone band")
)

// minStateEntries is how many on and off levels are needed before the
// threshold is derived from per-state medians instead of percentiles.
const minStateEntries = 10

// fastConvergence is the smoothing factor used after a moderate frequency jump.
const fastConvergence = 0.7

// lockEstimates is how many consecutive agreeing estimates count as locked.
const lockEstimates = 3

// DetectorConfig holds configuration for the envelope detector.
// All values should come from the application config file.
type DetectorConfig struct {
	// SampleRate of the incoming blocks in Hz (from config: sample_rate)
	SampleRate float64
	// ToneFrequency is the initial band-pass centre in Hz (from config: tone_frequency)
	ToneFrequency float64
	// ToneMinHz and ToneMaxHz bound the tracked tone (from config: tone_min_hz, tone_max_hz)
	ToneMinHz float64
	ToneMaxHz float64

	// MinThreshold and MaxThreshold clamp the adaptive threshold (from config: threshold_min, threshold_max)
	MinThreshold float64
	MaxThreshold float64
	// InitialThreshold is used until enough levels are known (from config: threshold_initial)
	InitialThreshold float64
	// ThresholdRatio is k in noise + (signal-noise)*k (from config: threshold_ratio)
	ThresholdRatio float64
	// HysteresisRatio scales the threshold for on->off transitions (from config: hysteresis_ratio)
	HysteresisRatio float64
	// MinSNR floors the signal estimate at noise*MinSNR (from config: min_snr)
	MinSNR float64
	// DebounceFrames is consecutive blocks required to confirm a change (from config: debounce_frames)
	DebounceFrames int
	// MinTransition is the minimum time between confirmed transitions (from config: min_transition_ms)
	MinTransition time.Duration
	// MinSegment is the shortest segment that will ever be emitted (from config: min_segment_ms)
	MinSegment time.Duration
	// LevelHistory is the size of the combined cold-start history (from config: level_history)
	LevelHistory int
	// StateHistory is the size of each of the on/off histories (from config: state_history)
	StateHistory int

	// AGCEnabled enables automatic gain control (from config: agc_enabled)
	AGCEnabled bool
	// AGCTarget is the level the tracked peak is scaled to (from config: agc_target)
	AGCTarget float64
	// AGCAttack is how fast the peak follows louder blocks (from config: agc_attack)
	AGCAttack float64
	// AGCRelease is how fast the peak decays on quieter blocks (from config: agc_release)
	AGCRelease float64
	// AGCMaxGain caps the applied gain (from config: agc_max_gain)
	AGCMaxGain float64

	// TrackInterval is the tone tracking period; zero disables tracking (from config: track_interval_ms)
	TrackInterval time.Duration
	// FFTSize is the tracking window in samples (from config: fft_size)
	FFTSize int
	// PeakProminence is the peak/band-mean ratio a peak must reach (from config: peak_prominence)
	PeakProminence float64
	// FreqSmoothing is the exponential smoothing factor for small drifts (from config: freq_smoothing)
	FreqSmoothing float64
	// FreqJumpHz triggers fast convergence (from config: freq_jump_hz)
	FreqJumpHz float64
	// FreqRecalHz triggers a full recalibration (from config: freq_recal_hz)
	FreqRecalHz float64

	// QWide is the band-pass Q while searching (from config: q_wide)
	QWide float64
	// QLocked is the band-pass Q once locked on a tone (from config: q_locked)
	QLocked float64
	// QSmoothing is the per-block step toward the target Q (from config: q_smoothing)
	QSmoothing float64

	// StuckTimeout is the longest plausible on-segment; zero disables the check (from config: stuck_timeout_ms)
	StuckTimeout time.Duration
	// RecalCooldown is the minimum time between automatic recalibrations (from config: recal_cooldown_ms)
	RecalCooldown time.Duration
}

// DefaultDetectorConfig returns the documented defaults for a sample rate.
func DefaultDetectorConfig(sampleRate float64) DetectorConfig {
	return DetectorConfig{
		SampleRate:       sampleRate,
		ToneFrequency:    700,
		ToneMinHz:        300,
		ToneMaxHz:        1200,
		MinThreshold:     0.02,
		MaxThreshold:     0.8,
		InitialThreshold: 0.1,
		ThresholdRatio:   0.6,
		HysteresisRatio:  0.7,
		MinSNR:           2,
		DebounceFrames:   2,
		MinTransition:    15 * time.Millisecond,
		MinSegment:       15 * time.Millisecond,
		LevelHistory:     100,
		StateHistory:     50,
		AGCEnabled:       true,
		AGCTarget:        0.5,
		AGCAttack:        0.5,
		AGCRelease:       0.002,
		AGCMaxGain:       50,
		TrackInterval:    200 * time.Millisecond,
		FFTSize:          4096,
		PeakProminence:   4,
		FreqSmoothing:    0.2,
		FreqJumpHz:       40,
		FreqRecalHz:      200,
		QWide:            1.5,
		QLocked:          6,
		QSmoothing:       0.1,
		StuckTimeout:     2800 * time.Millisecond,
		RecalCooldown:    5 * time.Second,
	}
}

// Validate checks the configuration and returns the first problem found.
func (c DetectorConfig) Validate() error {
	switch {
	case c.SampleRate <= 0:
		return ErrInvalidSampleRate
	case c.ToneMinHz <= 0 || c.ToneMaxHz <= c.ToneMinHz || c.ToneMaxHz >= c.SampleRate/2:
		return ErrInvalidToneBand
	case c.ToneFrequency < c.ToneMinHz || c.ToneFrequency > c.ToneMaxHz:
		return ErrInvalidToneFrequency
	case c.MinThreshold < 0 || c.MaxThreshold > 1 || c.MinThreshold >= c.MaxThreshold:
		return ErrInvalidThreshold
	case c.ThresholdRatio <= 0 || c.ThresholdRatio >= 1:
		return ErrInvalidThresholdRatio
	case c.HysteresisRatio <= 0 || c.HysteresisRatio > 1:
		return ErrInvalidHysteresis
	case c.MinSNR < 1:
		return ErrInvalidMinSNR
	case c.DebounceFrames < 2:
		return ErrInvalidDebounce
	case c.MinTransition < 0 || c.MinSegment < 0 || c.TrackInterval < 0 ||
		c.StuckTimeout < 0 || c.RecalCooldown < 0:
		return ErrInvalidTiming
	case c.LevelHistory < 2 || c.StateHistory < minStateEntries:
		return ErrInvalidHistory
	case c.AGCEnabled && (c.AGCTarget <= 0 || c.AGCTarget > 1 || c.AGCAttack <= 0 || c.AGCAttack > 1 ||
		c.AGCRelease <= 0 || c.AGCRelease > 1 || c.AGCMaxGain < 1):
		return ErrInvalidAGC
	case c.QWide <= 0 || c.QLocked <= 0 || c.QSmoothing <= 0 || c.QSmoothing > 1:
		return ErrInvalidQ
	}
	if c.TrackInterval > 0 && (c.FFTSize < 64 || c.FFTSize&(c.FFTSize-1) != 0) {
		return ErrInvalidFFTSize
	}
	return nil
}

// AdaptiveThreshold derives an on-threshold from noise and signal level
// estimates, flooring the signal at noise*MinSNR and clamping the result.
func (c DetectorConfig) AdaptiveThreshold(noise, signal float64) float64 {
	if math.IsNaN(noise) || math.IsNaN(signal) {
		return c.clampThreshold(c.InitialThreshold)
	}
	signal = math.Max(signal, noise*c.MinSNR)
	return c.clampThreshold(noise + (signal-noise)*c.ThresholdRatio)
}

func (c DetectorConfig) clampThreshold(t float64) float64 {
	return math.Max(c.MinThreshold, math.Min(c.MaxThreshold, t))
}

// EnvelopeDetector turns a stream of audio blocks into debounced on/off
// keying with exact segment durations measured on the sample clock.
// It is not safe for concurrent use; feed it from one goroutine.
type EnvelopeDetector struct {
	config   DetectorConfig
	filter   *Bandpass
	tracker  *ToneTracker // nil when tracking is disabled
	listener Listener

	samples int64

	// Level and AGC
	level   float64
	agcPeak float64
	gain    float64

	// Threshold state
	threshold float64
	levels    *history
	onLevels  *history
	offLevels *history

	// Hysteresis and debounce
	on             bool
	candidates     int
	candidateStart time.Duration
	segmentStart   time.Duration
	lastTransition time.Duration

	// Tone tracking
	center      float64
	q           float64
	estimates   []float64
	sinceTrack  int64
	recalCount  int
	lastRecalAt time.Duration
}

// NewEnvelopeDetector creates a detector with the given configuration.
func NewEnvelopeDetector(cfg DetectorConfig) (*EnvelopeDetector, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	d := &EnvelopeDetector{
		config:    cfg,
		filter:    NewBandpass(cfg.SampleRate, cfg.ToneFrequency, cfg.QWide),
		levels:    newHistory(cfg.LevelHistory),
		onLevels:  newHistory(cfg.StateHistory),
		offLevels: newHistory(cfg.StateHistory),
		estimates: make([]float64, 0, lockEstimates),
	}
	if cfg.TrackInterval > 0 {
		tracker, err := NewToneTracker(cfg.SampleRate, cfg.FFTSize, cfg.ToneMinHz, cfg.ToneMaxHz, cfg.PeakProminence)
		if err != nil {
			return nil, err
		}
		d.tracker = tracker
	}
	d.resetState()
	return d, nil
}

// SetListener sets the event receiver. A nil listener discards events.
func (d *EnvelopeDetector) SetListener(l Listener) {
	d.listener = l
}

// Process consumes one block of samples normalised to [-1, 1].
func (d *EnvelopeDetector) Process(block []float32) {
	if len(block) == 0 {
		return
	}
	start := d.Elapsed()
	d.samples += int64(len(block))
	end := d.Elapsed()

	d.stepQ()
	raw := d.filter.RMS(block)
	if math.IsNaN(raw) || math.IsInf(raw, 0) {
		d.filter.Reset()
		raw = 0
	}
	d.trackPeak(raw)

	// Histories hold unscaled levels; the current gain is applied to both
	// the level and the learned noise and signal estimates.
	d.levels.push(raw)
	if d.on {
		d.onLevels.push(raw)
	} else {
		d.offLevels.push(raw)
	}
	d.gain = d.currentGain()
	d.level = math.Min(raw*d.gain, 1)
	d.updateThreshold()
	d.updateState(start, end)
	d.checkStuck(end)

	if d.tracker != nil {
		d.track(block, end)
	}
}

func (d *EnvelopeDetector) trackPeak(x float64) {
	if !d.config.AGCEnabled {
		return
	}
	if x > d.agcPeak {
		d.agcPeak += d.config.AGCAttack * (x - d.agcPeak)
	} else {
		d.agcPeak += d.config.AGCRelease * (x - d.agcPeak)
	}
}

// currentGain is 1 until the threshold has been learned. Before that the
// threshold is the absolute initial value and lifting background noise
// toward the AGC target would key it.
func (d *EnvelopeDetector) currentGain() float64 {
	if !d.config.AGCEnabled || !d.calibrated() {
		return 1
	}
	if d.agcPeak <= 0 {
		return d.config.AGCMaxGain
	}
	return math.Min(d.config.AGCTarget/d.agcPeak, d.config.AGCMaxGain)
}

func (d *EnvelopeDetector) calibrated() bool {
	return d.hasStateLevels() || d.levels.len() >= d.config.LevelHistory/2
}

func (d *EnvelopeDetector) hasStateLevels() bool {
	return d.onLevels.len() >= minStateEntries && d.offLevels.len() >= minStateEntries
}

func (d *EnvelopeDetector) updateThreshold() {
	var noise, signal float64
	switch {
	case d.hasStateLevels():
		noise = d.offLevels.median()
		signal = d.onLevels.median()
	case d.levels.len() >= d.config.LevelHistory/2:
		// Cold start: the quiet bulk of the history is noise, the loud tail signal.
		noise = d.levels.quantile(0.30)
		signal = d.levels.quantile(0.95)
	default:
		return
	}
	d.threshold = d.config.AdaptiveThreshold(noise*d.gain, signal*d.gain)
}

func (d *EnvelopeDetector) updateState(start, end time.Duration) {
	threshold := d.threshold
	if d.on {
		threshold *= d.config.HysteresisRatio
	}

	if (d.level > threshold) == d.on {
		d.candidates = 0
		return
	}

	if d.candidates == 0 {
		d.candidateStart = start
	}
	d.candidates++
	if d.candidates < d.config.DebounceFrames {
		return
	}
	if end-d.lastTransition < d.config.MinTransition {
		return
	}

	at := max(d.candidateStart, d.segmentStart+d.config.MinSegment)
	if at > end {
		return
	}
	d.transition(at)
}

// transition flips the state at time at and reports the segment that ended.
func (d *EnvelopeDetector) transition(at time.Duration) {
	ended := TimingEvent{Duration: at - d.segmentStart, IsSignal: d.on}

	d.on = !d.on
	d.segmentStart = at
	d.lastTransition = at
	d.candidates = 0

	d.emitState(at)
	d.emitTiming(ended)
}

func (d *EnvelopeDetector) checkStuck(now time.Duration) {
	if !d.on || d.config.StuckTimeout <= 0 {
		return
	}
	if now-d.segmentStart < d.config.StuckTimeout {
		return
	}
	if !d.cooledDown(now) {
		return
	}
	d.recalibrate(ReasonStuck, 0, now)
}

func (d *EnvelopeDetector) cooledDown(now time.Duration) bool {
	return d.recalCount == 0 || now-d.lastRecalAt >= d.config.RecalCooldown
}

func (d *EnvelopeDetector) track(block []float32, now time.Duration) {
	d.tracker.Push(block)
	d.sinceTrack += int64(len(block))
	if d.samplesToDuration(d.sinceTrack) < d.config.TrackInterval {
		return
	}
	d.sinceTrack = 0

	freq, ok := d.tracker.Estimate()
	if !ok {
		return
	}
	d.applyEstimate(freq, now)
}

func (d *EnvelopeDetector) applyEstimate(freq float64, now time.Duration) {
	if freq < d.config.ToneMinHz || freq > d.config.ToneMaxHz {
		return
	}

	diff := math.Abs(freq - d.center)
	switch {
	case diff > d.config.FreqRecalHz && d.cooledDown(now):
		d.recalibrate(ReasonFrequencyJump, freq, now)
	case diff > d.config.FreqJumpHz:
		d.center += fastConvergence * (freq - d.center)
	default:
		d.center += d.config.FreqSmoothing * (freq - d.center)
	}

	if len(d.estimates) == lockEstimates {
		copy(d.estimates, d.estimates[1:])
		d.estimates = d.estimates[:lockEstimates-1]
	}
	d.estimates = append(d.estimates, freq)
	d.filter.Tune(d.center, d.q)
}

// stepQ moves the band-pass Q one step toward wide or locked.
func (d *EnvelopeDetector) stepQ() {
	target := d.config.QWide
	if d.Locked() {
		target = d.config.QLocked
	}
	if math.Abs(target-d.q) < 1e-3 {
		return
	}
	d.q += d.config.QSmoothing * (target - d.q)
	d.filter.Tune(d.center, d.q)
}

// Recalibrate discards learned levels and thresholds immediately, ignoring
// the cooldown.
func (d *EnvelopeDetector) Recalibrate() {
	d.recalibrate(ReasonManual, 0, d.Elapsed())
}

func (d *EnvelopeDetector) recalibrate(reason RecalibrationReason, freq float64, at time.Duration) {
	if d.on {
		// The bogus on-segment is dropped; only the state change is reported.
		d.on = false
		d.segmentStart = at
		d.lastTransition = at
		d.emitState(at)
	}
	if freq > 0 {
		d.center = freq
	}
	d.resetLevels()
	d.filter.Tune(d.center, d.q)
	d.filter.Reset()

	d.recalCount++
	d.lastRecalAt = at
	if d.listener != nil {
		d.listener.OnRecalibrate(RecalibrationEvent{Reason: reason, Frequency: d.center, At: at})
	}
}

// Flush ends an open on-segment at the current sample time so a trailing
// element is not lost when the stream stops.
func (d *EnvelopeDetector) Flush() {
	if !d.on {
		return
	}
	d.transition(max(d.Elapsed(), d.segmentStart))
}

// Reset returns the detector to its initial state. The sample clock keeps
// running so timestamps stay monotonic.
func (d *EnvelopeDetector) Reset() {
	d.resetState()
}

func (d *EnvelopeDetector) resetState() {
	now := d.Elapsed()
	d.on = false
	d.segmentStart = now
	d.lastTransition = now
	d.center = d.config.ToneFrequency
	d.resetLevels()
	d.filter.Tune(d.center, d.q)
	d.filter.Reset()
	d.recalCount = 0
	d.lastRecalAt = 0
	d.sinceTrack = 0
	if d.tracker != nil {
		d.tracker.Reset()
	}
}

func (d *EnvelopeDetector) resetLevels() {
	d.level = 0
	d.agcPeak = 0
	d.gain = 1
	d.threshold = d.config.clampThreshold(d.config.InitialThreshold)
	d.levels.reset()
	d.onLevels.reset()
	d.offLevels.reset()
	d.candidates = 0
	d.q = d.config.QWide
	d.estimates = d.estimates[:0]
}

func (d *EnvelopeDetector) emitState(at time.Duration) {
	if d.listener == nil {
		return
	}
	d.listener.OnStateChange(StateEvent{On: d.on, Level: d.level, Threshold: d.threshold, Gain: d.gain, At: at})
}

func (d *EnvelopeDetector) emitTiming(e TimingEvent) {
	if d.listener == nil {
		return
	}
	d.listener.OnTiming(e)
}

func (d *EnvelopeDetector) samplesToDuration(n int64) time.Duration {
	return time.Duration(float64(n) * float64(time.Second) / d.config.SampleRate)
}

// IsOn returns the current confirmed keying state.
func (d *EnvelopeDetector) IsOn() bool { return d.on }

// Threshold returns the current on-threshold.
func (d *EnvelopeDetector) Threshold() float64 { return d.threshold }

// Level returns the gain-corrected level of the last block.
func (d *EnvelopeDetector) Level() float64 { return d.level }

// CenterFrequency returns the band-pass centre in Hz.
func (d *EnvelopeDetector) CenterFrequency() float64 { return d.center }

// Q returns the current band-pass quality factor.
func (d *EnvelopeDetector) Q() float64 { return d.q }

// Locked reports whether the recent tone estimates agree closely.
func (d *EnvelopeDetector) Locked() bool {
	if len(d.estimates) < lockEstimates {
		return false
	}
	lo, hi := d.estimates[0], d.estimates[0]
	for _, f := range d.estimates[1:] {
		lo = math.Min(lo, f)
		hi = math.Max(hi, f)
	}
	return hi-lo <= d.config.FreqJumpHz/2
}

// Elapsed returns the sample-clock time of everything processed so far.
func (d *EnvelopeDetector) Elapsed() time.Duration {
	return d.samplesToDuration(d.samples)
}

// Config returns the current configuration
func (d *EnvelopeDetector) Config() DetectorConfig {
	return d.config
}
