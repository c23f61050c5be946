// internal/cw/decoder.go
package cw

import (
	"errors"
	"math"
	"slices"
	"time"

	"github.com/ColonelBlimp/cwlisten/internal/dsp"
	"github.com/ColonelBlimp/cwlisten/internal/timer"
)

// Speed limits for adaptive timing.
const (
	MinWPM = 5
	MaxWPM = 60
)

// maxDitSamples bounds the dit history used for the median.
const maxDitSamples = 20

var (
	// ErrInvalidWPM indicates WPM must be within MinWPM..MaxWPM
	ErrInvalidWPM = errors.New("WPM must be between 5 and 60")
	// ErrInvalidAdaptiveSmoothing indicates smoothing factor must be between 0 and 1
	ErrInvalidAdaptiveSmoothing = errors.New("adaptive smoothing must be between 0.0 and 1.0")
	// ErrInvalidAdaptiveSamples indicates at least one dit sample is needed to adapt
	ErrInvalidAdaptiveSamples = errors.New("adaptive samples must be between 1 and 20")
	// ErrInvalidDitDahBoundary indicates boundary ratio must be positive
	ErrInvalidDitDahBoundary = errors.New("dit/dah boundary ratio must be positive")
	// ErrInvalidGapBoundary indicates gap boundaries must satisfy 0 < char < word
	ErrInvalidGapBoundary = errors.New("gap boundaries must satisfy 0 < char_gap_boundary < word_gap_boundary")
	// ErrInvalidCodeLength indicates the code cap is out of range
	ErrInvalidCodeLength = errors.New("max code length must be between 1 and 6")
	// ErrInvalidFloor indicates a noise floor is negative
	ErrInvalidFloor = errors.New("minimum signal and gap durations must be non-negative")
	// ErrInvalidWatchdog indicates the watchdog factor must be at least 1
	ErrInvalidWatchdog = errors.New("watchdog factor must be at least 1.0")
	// ErrSchedulerRequired indicates a scheduler is required
	ErrSchedulerRequired = errors.New("scheduler is required")
)

// DecoderConfig holds configuration for the CW decoder.
// All adjustable values come from the application config file.
type DecoderConfig struct {
	// InitialWPM sets the starting dit length (from config: wpm)
	InitialWPM int
	// AdaptiveTiming lets the dit length follow the sender (from config: adaptive_timing)
	// When false the decoder is locked to InitialWPM
	AdaptiveTiming bool
	// AdaptiveSmoothing is the weight given to a new dit median (from config: adaptive_smoothing)
	AdaptiveSmoothing float64
	// AdaptiveDeadband is how far the median must drift before adapting (from config: adaptive_deadband_ms)
	AdaptiveDeadband time.Duration
	// AdaptiveSamples is how many dits are needed before adapting (from config: adaptive_samples)
	AdaptiveSamples int
	// MinSignal rejects shorter tones as noise (from config: min_signal_ms)
	MinSignal time.Duration
	// MinGap rejects shorter gaps as noise (from config: min_gap_ms)
	MinGap time.Duration
	// MaxCodeLength caps the symbols held for one character (from config: max_code_length)
	MaxCodeLength int
	// DitDahBoundary in dits: longer tones are dahs (from config: dit_dah_boundary)
	DitDahBoundary float64
	// CharGapBoundary in dits: longer gaps end a character (from config: char_gap_boundary)
	CharGapBoundary float64
	// WordGapBoundary in dits: longer gaps end a word (from config: word_gap_boundary)
	WordGapBoundary float64
	// WatchdogFactor times the word gap forces completion after silence (from config: watchdog_factor)
	WatchdogFactor float64
}

// DefaultDecoderConfig returns the documented defaults.
func DefaultDecoderConfig() DecoderConfig {
	return DecoderConfig{
		InitialWPM:        20,
		AdaptiveTiming:    true,
		AdaptiveSmoothing: 0.1,
		AdaptiveDeadband:  15 * time.Millisecond,
		AdaptiveSamples:   5,
		MinSignal:         30 * time.Millisecond,
		MinGap:            20 * time.Millisecond,
		MaxCodeLength:     MaxCodeLength,
		DitDahBoundary:    2.0,
		CharGapBoundary:   2.2,
		WordGapBoundary:   4.5,
		WatchdogFactor:    2.0,
	}
}

// Validate checks the configuration and returns the first problem found.
func (c DecoderConfig) Validate() error {
	switch {
	case c.InitialWPM < MinWPM || c.InitialWPM > MaxWPM:
		return ErrInvalidWPM
	case c.AdaptiveSmoothing < 0 || c.AdaptiveSmoothing > 1:
		return ErrInvalidAdaptiveSmoothing
	case c.AdaptiveSamples < 1 || c.AdaptiveSamples > maxDitSamples:
		return ErrInvalidAdaptiveSamples
	case c.DitDahBoundary <= 0:
		return ErrInvalidDitDahBoundary
	case c.CharGapBoundary <= 0 || c.WordGapBoundary <= c.CharGapBoundary:
		return ErrInvalidGapBoundary
	case c.MaxCodeLength < 1 || c.MaxCodeLength > MaxCodeLength:
		return ErrInvalidCodeLength
	case c.MinSignal < 0 || c.MinGap < 0 || c.AdaptiveDeadband < 0:
		return ErrInvalidFloor
	case c.WatchdogFactor < 1:
		return ErrInvalidWatchdog
	}
	return nil
}

// State is the decoder's position within a character/word.
type State int

const (
	// StateIdle has no pending code or word
	StateIdle State = iota
	// StateAccumulating is inside a character
	StateAccumulating
	// StatePendingWordBoundary has closed a character and awaits the word decision
	StatePendingWordBoundary
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateAccumulating:
		return "accumulating"
	case StatePendingWordBoundary:
		return "pending-word-boundary"
	}
	return "unknown"
}

// DecodedCallback is called when a character or word boundary is decoded.
// Must be non-blocking and fast.
type DecodedCallback func(output DecodedOutput)

// DecodedOutput represents decoded CW output
type DecodedOutput struct {
	// Character is the decoded character (' ' for a word space, UnknownChar for an unmapped code)
	Character rune
	// Code is the dot/dash code of the character
	Code string
	// IsWordSpace is true if this represents a word boundary
	IsWordSpace bool
	// Word is the completed word (word spaces only)
	Word string
	// At is the sample-clock time of the decode
	At time.Duration
	// CurrentWPM is the estimated WPM at time of decode
	CurrentWPM int
}

// Decoder turns keying timing events into characters and words.
// It is driven from a single goroutine together with its scheduler.
type Decoder struct {
	config   DecoderConfig
	sched    timer.Scheduler
	callback DecodedCallback

	// Timing state, in milliseconds
	ditMs         float64
	ditDahMs      float64
	charGapMs     float64
	wordGapMs     float64
	recentDits    []float64
	sortedScratch []float64

	code []byte
	word []rune

	wordTimer   timer.Handle
	safetyTimer timer.Handle
	closed      bool
}

// NewDecoder creates a new CW decoder. Deferred completions run on sched.
func NewDecoder(cfg DecoderConfig, sched timer.Scheduler) (*Decoder, error) {
	if sched == nil {
		return nil, ErrSchedulerRequired
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	d := &Decoder{
		config:        cfg,
		sched:         sched,
		recentDits:    make([]float64, 0, maxDitSamples),
		sortedScratch: make([]float64, 0, maxDitSamples),
		code:          make([]byte, 0, cfg.MaxCodeLength),
	}
	d.setDit(WPMToDit(float64(cfg.InitialWPM)))
	return d, nil
}

// SetCallback sets the callback for decoded output.
func (d *Decoder) SetCallback(cb DecodedCallback) {
	d.callback = cb
}

// HandleTiming processes one segment from the envelope detector.
// Events below the noise floors leave the decoder untouched.
func (d *Decoder) HandleTiming(event dsp.TimingEvent) {
	if d.closed {
		return
	}
	ms := event.Ms()

	if event.IsSignal {
		if event.Duration < d.config.MinSignal {
			return
		}
		d.stopTimers()
		d.addElement(ms)
		d.armSafety()
		return
	}

	if event.Duration < d.config.MinGap {
		return
	}
	if len(d.code) == 0 {
		// A second gap after a closed character can still end the word.
		if len(d.word) > 0 && ms >= d.wordGapMs {
			d.stopTimers()
			d.completeWord()
		}
		return
	}

	d.stopTimers()
	switch {
	case ms >= d.wordGapMs:
		d.completeWord()
	case ms >= d.charGapMs:
		d.completeCharacter()
		d.wordTimer = d.sched.AfterFunc(msToDuration(d.wordGapMs), func() {
			d.wordTimer = nil
			d.completeWord()
		})
	}
	d.armSafety()
}

func (d *Decoder) addElement(ms float64) {
	isDit := ms < d.ditDahMs

	symbol := byte('-')
	if isDit {
		symbol = '.'
	}
	if len(d.code) >= d.config.MaxCodeLength {
		// Drop the oldest symbol so noise cannot grow the code.
		copy(d.code, d.code[1:])
		d.code = d.code[:len(d.code)-1]
	}
	d.code = append(d.code, symbol)

	if isDit {
		if len(d.recentDits) == maxDitSamples {
			copy(d.recentDits, d.recentDits[1:])
			d.recentDits = d.recentDits[:maxDitSamples-1]
		}
		d.recentDits = append(d.recentDits, ms)
		d.adapt()
	}
}

// adapt blends the median of recent dits into the dit estimate.
func (d *Decoder) adapt() {
	if !d.config.AdaptiveTiming || len(d.recentDits) < d.config.AdaptiveSamples {
		return
	}
	d.sortedScratch = append(d.sortedScratch[:0], d.recentDits...)
	slices.Sort(d.sortedScratch)
	median := d.sortedScratch[len(d.sortedScratch)/2]

	deadband := float64(d.config.AdaptiveDeadband) / float64(time.Millisecond)
	if math.Abs(median-d.ditMs) <= deadband {
		return
	}
	s := d.config.AdaptiveSmoothing
	d.setDit((1-s)*d.ditMs + s*median)
}

// setDit updates the dit length, clamped to the supported speed range, and
// recomputes the derived boundaries.
func (d *Decoder) setDit(ms float64) {
	ms = math.Max(WPMToDit(MaxWPM), math.Min(WPMToDit(MinWPM), ms))
	d.ditMs = ms
	d.ditDahMs = ms * d.config.DitDahBoundary
	d.charGapMs = ms * d.config.CharGapBoundary
	d.wordGapMs = ms * d.config.WordGapBoundary
}

func (d *Decoder) armSafety() {
	if len(d.code) == 0 && len(d.word) == 0 {
		return
	}
	d.safetyTimer = d.sched.AfterFunc(msToDuration(d.wordGapMs*d.config.WatchdogFactor), func() {
		d.safetyTimer = nil
		d.completeWord()
	})
}

func (d *Decoder) stopTimers() {
	if d.wordTimer != nil {
		d.wordTimer.Stop()
		d.wordTimer = nil
	}
	if d.safetyTimer != nil {
		d.safetyTimer.Stop()
		d.safetyTimer = nil
	}
}

func (d *Decoder) completeCharacter() {
	if len(d.code) == 0 {
		return
	}
	code := string(d.code)
	d.code = d.code[:0]

	char := Decode(code)
	d.word = append(d.word, char)
	d.emit(DecodedOutput{Character: char, Code: code})
}

func (d *Decoder) completeWord() {
	d.completeCharacter()
	if len(d.word) == 0 {
		return
	}
	word := string(d.word)
	d.word = d.word[:0]
	d.emit(DecodedOutput{Character: ' ', IsWordSpace: true, Word: word})
}

func (d *Decoder) emit(out DecodedOutput) {
	if d.callback == nil {
		return
	}
	out.At = d.sched.Now()
	out.CurrentWPM = d.CurrentWPM()
	d.callback(out)
}

// Flush completes any pending character and word immediately.
func (d *Decoder) Flush() {
	if d.closed {
		return
	}
	d.stopTimers()
	d.completeWord()
}

// Reset drops pending symbols and timers and returns to the initial speed.
func (d *Decoder) Reset() {
	d.stopTimers()
	d.code = d.code[:0]
	d.word = d.word[:0]
	d.recentDits = d.recentDits[:0]
	d.setDit(WPMToDit(float64(d.config.InitialWPM)))
}

// Close cancels pending timers; later events are ignored. Call Flush first
// to keep an in-flight word.
func (d *Decoder) Close() {
	d.stopTimers()
	d.closed = true
}

// State returns where the decoder is within a character or word.
func (d *Decoder) State() State {
	switch {
	case len(d.code) > 0:
		return StateAccumulating
	case len(d.word) > 0:
		return StatePendingWordBoundary
	}
	return StateIdle
}

// DitLength returns the current dit estimate.
func (d *Decoder) DitLength() time.Duration {
	return msToDuration(d.ditMs)
}

// CurrentWPM returns the current estimated WPM.
func (d *Decoder) CurrentWPM() int {
	return int(DitToWPM(d.ditMs) + 0.5)
}

// CurrentCode returns the symbols of the character being built.
func (d *Decoder) CurrentCode() string {
	return string(d.code)
}

// CurrentWord returns the characters of the word being built.
func (d *Decoder) CurrentWord() string {
	return string(d.word)
}

// Config returns the current configuration
func (d *Decoder) Config() DecoderConfig {
	return d.config
}

func msToDuration(ms float64) time.Duration {
	return time.Duration(ms * float64(time.Millisecond))
}
