// internal/pileup/decoder.go
package pileup

import (
	"errors"
	"fmt"
	"time"

	"github.com/ColonelBlimp/cwlisten/internal/cw"
	"github.com/ColonelBlimp/cwlisten/internal/dsp"
	"github.com/ColonelBlimp/cwlisten/internal/timer"
)

var (
	// ErrNoHypotheses indicates at least one speed is required
	ErrNoHypotheses = errors.New("at least one hypothesis WPM is required")
	// ErrInvalidHypothesis indicates a hypothesis speed is out of range or repeated
	ErrInvalidHypothesis = errors.New("hypothesis WPM must be unique and between 5 and 60")
	// ErrInvalidSticky indicates the stickiness settings are inconsistent
	ErrInvalidSticky = errors.New("sticky words must be at least 1 and sticky margin non-negative")
	// ErrInvalidScoreLimit indicates the score bound must be positive
	ErrInvalidScoreLimit = errors.New("score limit must be positive")
	// ErrInvalidEOTRatio indicates the end-of-transmission gap ratio must be positive
	ErrInvalidEOTRatio = errors.New("EOT ratio must be positive")
	// ErrInvalidSilence indicates the silence watchdog durations must be positive
	ErrInvalidSilence = errors.New("silence reset and check interval must be positive")
	// ErrInvalidTranscript indicates the per-hypothesis word history must be positive
	ErrInvalidTranscript = errors.New("transcript words must be positive")
)

// Config holds configuration for the multi-hypothesis decoder.
type Config struct {
	// WPMs are the fixed speeds tried in parallel (from config: pileup_wpm)
	WPMs []int
	// DefaultWPM picks the hypothesis that is active before any scoring (from config: pileup_default_wpm)
	DefaultWPM int
	// Decoder is the template for every hypothesis; speed and adaptive timing are overridden
	Decoder cw.DecoderConfig
	// StickyWords is the run of consecutive best words needed to lock (from config: sticky_words)
	StickyWords int
	// StickyScore is the score needed to lock (from config: sticky_score)
	StickyScore int
	// StickyCollapse is the score below which a locked hypothesis can be displaced (from config: sticky_collapse)
	StickyCollapse int
	// StickyMargin is the lead an alternative needs over a collapsed lock (from config: sticky_margin)
	StickyMargin int
	// SwitchMargin is the lead needed to switch while unlocked (from config: switch_margin)
	SwitchMargin int
	// MinValidScore is the least score a hypothesis needs to win on margin (from config: min_valid_score)
	MinValidScore int
	// EOTRatio in dits: a longer gap ends the transmission for that hypothesis (from config: eot_ratio)
	EOTRatio float64
	// SilenceReset clears all scores after this long without a signal (from config: silence_reset_ms)
	SilenceReset time.Duration
	// SilenceCheck is how often the silence watchdog runs (from config: silence_check_ms)
	SilenceCheck time.Duration
	// ScoreLimit bounds every running score to ±ScoreLimit (from config: score_limit)
	ScoreLimit int
	// Weights are the word scoring weights
	Weights ScoreWeights
	// Abbreviations earn the abbreviation bonus; nil uses DefaultAbbreviations (from config: abbreviations)
	Abbreviations []string
	// TranscriptWords bounds each hypothesis's word history
	TranscriptWords int
}

// DefaultConfig returns the documented defaults.
func DefaultConfig() Config {
	return Config{
		WPMs:            []int{5, 8, 12, 15, 18, 21, 24, 27, 30, 33},
		DefaultWPM:      20,
		Decoder:         cw.DefaultDecoderConfig(),
		StickyWords:     5,
		StickyScore:     150,
		StickyCollapse:  -100,
		StickyMargin:    150,
		SwitchMargin:    30,
		MinValidScore:   20,
		EOTRatio:        15,
		SilenceReset:    3 * time.Second,
		SilenceCheck:    time.Second,
		ScoreLimit:      200,
		Weights:         DefaultWeights(),
		TranscriptWords: 64,
	}
}

// Validate checks the configuration and returns the first problem found.
func (c Config) Validate() error {
	if len(c.WPMs) == 0 {
		return ErrNoHypotheses
	}
	seen := make(map[int]bool, len(c.WPMs))
	for _, wpm := range c.WPMs {
		if wpm < cw.MinWPM || wpm > cw.MaxWPM || seen[wpm] {
			return fmt.Errorf("%w: %d", ErrInvalidHypothesis, wpm)
		}
		seen[wpm] = true
	}
	switch {
	case c.StickyWords < 1 || c.StickyMargin < 0:
		return ErrInvalidSticky
	case c.ScoreLimit <= 0:
		return ErrInvalidScoreLimit
	case c.EOTRatio <= 0:
		return ErrInvalidEOTRatio
	case c.SilenceReset <= 0 || c.SilenceCheck <= 0:
		return ErrInvalidSilence
	case c.TranscriptWords <= 0:
		return ErrInvalidTranscript
	}
	return nil
}

// Output is a decoded character or word from the active hypothesis.
type Output struct {
	cw.DecodedOutput
	// Hypothesis is the index of the producing hypothesis
	Hypothesis int
	// WPM is the producing hypothesis's fixed speed
	WPM int
	// Score is that hypothesis's running score
	Score int
}

// OutputCallback receives the active hypothesis's output.
type OutputCallback func(Output)

// SwitchReason says why the active hypothesis changed.
type SwitchReason string

const (
	// SwitchMargin means the new hypothesis led by the switch margin
	SwitchMargin SwitchReason = "margin"
	// SwitchRecovery means the active hypothesis had gone negative
	SwitchRecovery SwitchReason = "recovery"
	// SwitchCollapse means a locked hypothesis collapsed
	SwitchCollapse SwitchReason = "collapse"
)

// Switch describes a change of active hypothesis.
type Switch struct {
	From, To       int
	FromWPM, ToWPM int
	Reason         SwitchReason
	At             time.Duration
}

// Lock reports a sticky lock being taken or released.
type Lock struct {
	Hypothesis int
	WPM        int
	Locked     bool
	At         time.Duration
}

type hypothesis struct {
	wpm   int
	dec   *cw.Decoder
	score int
	words []string
}

// Decoder feeds every timing event to one fixed-speed decoder per hypothesis
// and forwards the output of the best one. It shares the caller's goroutine
// and scheduler.
type Decoder struct {
	config Config
	sched  timer.Scheduler
	scorer *Scorer
	hyps   []*hypothesis

	active      int
	sticky      bool
	consecutive int
	lastSignal  time.Duration
	dirty       bool
	silenceTask timer.Handle
	closed      bool

	onOutput OutputCallback
	onSwitch func(Switch)
	onLock   func(Lock)
}

// NewDecoder creates the hypotheses and starts the silence watchdog on sched.
func NewDecoder(cfg Config, sched timer.Scheduler) (*Decoder, error) {
	if sched == nil {
		return nil, cw.ErrSchedulerRequired
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	d := &Decoder{
		config:     cfg,
		sched:      sched,
		scorer:     NewScorer(cfg.Weights, cfg.Abbreviations),
		hyps:       make([]*hypothesis, len(cfg.WPMs)),
		lastSignal: sched.Now(),
	}
	for i, wpm := range cfg.WPMs {
		dc := cfg.Decoder
		dc.InitialWPM = wpm
		dc.AdaptiveTiming = false
		dec, err := cw.NewDecoder(dc, sched)
		if err != nil {
			return nil, fmt.Errorf("hypothesis %d WPM: %w", wpm, err)
		}
		h := &hypothesis{wpm: wpm, dec: dec}
		dec.SetCallback(func(out cw.DecodedOutput) { d.handleOutput(i, out) })
		d.hyps[i] = h
	}
	d.active = nearest(cfg.WPMs, cfg.DefaultWPM)
	d.scheduleSilenceCheck()
	return d, nil
}

func nearest(wpms []int, target int) int {
	best := 0
	for i, wpm := range wpms {
		if abs(wpm-target) < abs(wpms[best]-target) {
			best = i
		}
	}
	return best
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}

// SetCallback sets the callback for the active hypothesis's output.
func (d *Decoder) SetCallback(cb OutputCallback) {
	d.onOutput = cb
}

// SetSwitchCallback sets the callback for active hypothesis changes.
func (d *Decoder) SetSwitchCallback(cb func(Switch)) {
	d.onSwitch = cb
}

// SetLockCallback sets the callback for sticky lock changes.
func (d *Decoder) SetLockCallback(cb func(Lock)) {
	d.onLock = cb
}

// HandleTiming delivers one segment to every hypothesis.
func (d *Decoder) HandleTiming(event dsp.TimingEvent) {
	if d.closed {
		return
	}
	if event.IsSignal {
		d.lastSignal = d.sched.Now()
	}
	for _, h := range d.hyps {
		h.dec.HandleTiming(event)
	}
	if event.IsSignal {
		return
	}
	// End of transmission, judged per hypothesis after it has seen the gap.
	ms := event.Ms()
	for _, h := range d.hyps {
		dit := float64(h.dec.DitLength()) / float64(time.Millisecond)
		if ms >= d.config.EOTRatio*dit {
			h.score = 0
		}
	}
}

func (d *Decoder) handleOutput(i int, out cw.DecodedOutput) {
	h := d.hyps[i]
	if out.IsWordSpace {
		h.score = d.clamp(h.score + d.scorer.Score(out.Word))
		h.words = append(h.words, out.Word)
		if over := len(h.words) - d.config.TranscriptWords; over > 0 {
			h.words = append(h.words[:0], h.words[over:]...)
		}
		d.dirty = true
	}
	if i == d.active && d.onOutput != nil {
		d.onOutput(Output{DecodedOutput: out, Hypothesis: i, WPM: h.wpm, Score: h.score})
	}
	if out.IsWordSpace {
		d.selectActive(i)
	}
}

func (d *Decoder) clamp(score int) int {
	return max(-d.config.ScoreLimit, min(d.config.ScoreLimit, score))
}

// best returns the highest scoring hypothesis; the active one wins ties.
func (d *Decoder) best() int {
	best := d.active
	for i, h := range d.hyps {
		if h.score > d.hyps[best].score {
			best = i
		}
	}
	return best
}

func (d *Decoder) selectActive(trigger int) {
	best := d.best()
	if trigger == d.active {
		if best == d.active {
			d.consecutive++
		} else {
			d.consecutive = 0
		}
	}

	active := d.hyps[d.active]
	lead := d.hyps[best].score - active.score

	if d.sticky {
		if best != d.active && active.score < d.config.StickyCollapse && lead > d.config.StickyMargin {
			d.setSticky(false)
			d.switchTo(best, SwitchCollapse)
		}
		return
	}

	if best != d.active {
		switch {
		case lead >= d.config.SwitchMargin && d.hyps[best].score >= d.config.MinValidScore:
			d.switchTo(best, SwitchMargin)
			return
		case active.score < 0 && lead > 0:
			d.switchTo(best, SwitchRecovery)
			return
		}
	}
	if trigger == d.active && d.consecutive >= d.config.StickyWords && active.score >= d.config.StickyScore {
		d.setSticky(true)
	}
}

func (d *Decoder) switchTo(to int, reason SwitchReason) {
	from := d.active
	d.active = to
	d.consecutive = 0
	if d.onSwitch != nil {
		d.onSwitch(Switch{
			From:    from,
			To:      to,
			FromWPM: d.hyps[from].wpm,
			ToWPM:   d.hyps[to].wpm,
			Reason:  reason,
			At:      d.sched.Now(),
		})
	}
}

func (d *Decoder) setSticky(locked bool) {
	if d.sticky == locked {
		return
	}
	d.sticky = locked
	if d.onLock != nil {
		d.onLock(Lock{Hypothesis: d.active, WPM: d.hyps[d.active].wpm, Locked: locked, At: d.sched.Now()})
	}
}

func (d *Decoder) scheduleSilenceCheck() {
	d.silenceTask = d.sched.AfterFunc(d.config.SilenceCheck, func() {
		if d.closed {
			return
		}
		d.checkSilence()
		d.scheduleSilenceCheck()
	})
}

// checkSilence clears scores and the lock once nothing has been keyed for
// SilenceReset, so a new transmission starts without old bias.
func (d *Decoder) checkSilence() {
	if d.sched.Now()-d.lastSignal < d.config.SilenceReset || !d.dirty {
		return
	}
	d.dirty = false
	for _, h := range d.hyps {
		h.score = 0
	}
	d.consecutive = 0
	d.setSticky(false)
}

// Flush completes pending characters and words on every hypothesis.
func (d *Decoder) Flush() {
	if d.closed {
		return
	}
	for _, h := range d.hyps {
		h.dec.Flush()
	}
}

// Close stops the watchdog and every hypothesis; later events are ignored.
// Call Flush first to keep in-flight words.
func (d *Decoder) Close() {
	if d.closed {
		return
	}
	d.closed = true
	if d.silenceTask != nil {
		d.silenceTask.Stop()
		d.silenceTask = nil
	}
	for _, h := range d.hyps {
		h.dec.Close()
	}
}

// Active returns the index of the hypothesis whose output is forwarded.
func (d *Decoder) Active() int {
	return d.active
}

// ActiveWPM returns the speed of the active hypothesis.
func (d *Decoder) ActiveWPM() int {
	return d.hyps[d.active].wpm
}

// Sticky reports whether the active hypothesis is locked.
func (d *Decoder) Sticky() bool {
	return d.sticky
}

// Scores returns every hypothesis's running score, in WPMs order.
func (d *Decoder) Scores() []int {
	out := make([]int, len(d.hyps))
	for i, h := range d.hyps {
		out[i] = h.score
	}
	return out
}

// TransmissionScore returns one hypothesis's running score.
func (d *Decoder) TransmissionScore(i int) int {
	if i < 0 || i >= len(d.hyps) {
		return 0
	}
	return d.hyps[i].score
}

// Transcript returns the most recent words decoded by one hypothesis.
func (d *Decoder) Transcript(i int) []string {
	if i < 0 || i >= len(d.hyps) {
		return nil
	}
	return append([]string(nil), d.hyps[i].words...)
}

// Config returns the current configuration
func (d *Decoder) Config() Config {
	return d.config
}
