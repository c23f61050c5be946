// internal/session/session.go
// Package session wires the envelope detector to a Morse decoder on a single
// sample clock. Audio blocks are the only input; everything downstream,
// including deferred word completion, runs inside Process.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"go.opentelemetry.io/otel/metric/noop"

	"github.com/ColonelBlimp/cwlisten/internal/cw"
	"github.com/ColonelBlimp/cwlisten/internal/dsp"
	"github.com/ColonelBlimp/cwlisten/internal/observe"
	"github.com/ColonelBlimp/cwlisten/internal/pileup"
	"github.com/ColonelBlimp/cwlisten/internal/timer"
)

// SingleHypothesis marks output from the adaptive single decoder.
const SingleHypothesis = -1

// ErrClosed indicates the session has been closed
var ErrClosed = errors.New("session closed")

// ErrInvalidTranscriptSize indicates the transcript bound must be positive
var ErrInvalidTranscriptSize = errors.New("transcript size must be positive")

// Config holds the component configurations for a session.
type Config struct {
	Detector dsp.DetectorConfig
	Decoder  cw.DecoderConfig
	Pileup   pileup.Config
	// UsePileup selects the multi-hypothesis decoder (from config: pileup)
	UsePileup bool
	// TranscriptSize bounds the kept transcript in runes (from config: transcript_size)
	TranscriptSize int
}

// DefaultConfig returns the documented defaults for a sample rate.
func DefaultConfig(sampleRate float64) Config {
	return Config{
		Detector:       dsp.DefaultDetectorConfig(sampleRate),
		Decoder:        cw.DefaultDecoderConfig(),
		Pileup:         pileup.DefaultConfig(),
		TranscriptSize: 4096,
	}
}

// Output is one decoded character or word boundary. Hypothesis is
// SingleHypothesis unless the pileup decoder produced it.
type Output = pileup.Output

// Stats are running counts for a session.
type Stats struct {
	Blocks         int64
	Characters     int
	Unknown        int
	Words          int
	Transitions    int
	Recalibrations int
	Switches       int
	Elapsed        time.Duration
}

// Option configures a Session.
type Option func(*Session)

// WithOutput sets the callback for decoded output.
func WithOutput(fn func(Output)) Option {
	return func(s *Session) { s.onOutput = fn }
}

// WithLogger sets the logger for rare events. Default: discard.
func WithLogger(l *slog.Logger) Option {
	return func(s *Session) {
		if l != nil {
			s.log = l
		}
	}
}

// WithMetrics sets the metric instruments. Default: no-op.
func WithMetrics(m *observe.Metrics) Option {
	return func(s *Session) {
		if m != nil {
			s.metrics = m
		}
	}
}

// WithStateListener receives every key state change.
func WithStateListener(fn func(dsp.StateEvent)) Option {
	return func(s *Session) { s.onState = fn }
}

// Session runs detector and decoder together. It is not safe for concurrent
// use; feed it from one goroutine.
type Session struct {
	config   Config
	queue    *timer.Queue
	detector *dsp.EnvelopeDetector
	single   *cw.Decoder
	multi    *pileup.Decoder

	ctx      context.Context
	log      *slog.Logger
	metrics  *observe.Metrics
	onOutput func(Output)
	onState  func(dsp.StateEvent)

	transcript []rune
	stats      Stats
	lastFreq   float64
	closed     bool
}

// New builds the detector and the configured decoder on a fresh sample clock.
func New(cfg Config, opts ...Option) (*Session, error) {
	if cfg.TranscriptSize <= 0 {
		return nil, ErrInvalidTranscriptSize
	}
	s := &Session{
		config: cfg,
		queue:  timer.NewQueue(),
		ctx:    context.Background(),
		log:    slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.metrics == nil {
		m, err := observe.NewMetrics(noop.NewMeterProvider())
		if err != nil {
			return nil, fmt.Errorf("metrics: %w", err)
		}
		s.metrics = m
	}

	det, err := dsp.NewEnvelopeDetector(cfg.Detector)
	if err != nil {
		return nil, fmt.Errorf("detector: %w", err)
	}
	s.detector = det

	if cfg.UsePileup {
		cfg.Pileup.Decoder = cfg.Decoder
		multi, err := pileup.NewDecoder(cfg.Pileup, s.queue)
		if err != nil {
			return nil, fmt.Errorf("pileup: %w", err)
		}
		multi.SetCallback(s.handleOutput)
		multi.SetSwitchCallback(s.handleSwitch)
		multi.SetLockCallback(s.handleLock)
		s.multi = multi
	} else {
		single, err := cw.NewDecoder(cfg.Decoder, s.queue)
		if err != nil {
			return nil, fmt.Errorf("decoder: %w", err)
		}
		single.SetCallback(func(out cw.DecodedOutput) {
			s.handleOutput(Output{DecodedOutput: out, Hypothesis: SingleHypothesis, WPM: out.CurrentWPM})
		})
		s.single = single
	}

	det.SetListener(dsp.ListenerFuncs{
		StateChange: s.handleState,
		Timing:      s.handleTiming,
		Recalibrate: s.handleRecalibration,
	})
	s.lastFreq = det.CenterFrequency()
	return s, nil
}

// Process runs one block of mono samples through the detector and then fires
// every deferred completion due by the end of the block.
func (s *Session) Process(block []float32) error {
	if s.closed {
		return ErrClosed
	}
	s.detector.Process(block)
	s.queue.AdvanceTo(s.detector.Elapsed())

	s.stats.Blocks++
	s.metrics.Blocks.Add(s.ctx, 1)
	if f := s.detector.CenterFrequency(); math.Abs(f-s.lastFreq) >= 1 {
		s.lastFreq = f
		s.metrics.ToneFrequency.Record(s.ctx, f)
	}
	return nil
}

// Close ends an open key-down, completes any pending word and cancels every
// timer. Later calls do nothing.
func (s *Session) Close() error {
	if s.closed {
		return nil
	}
	s.detector.Flush()
	if s.multi != nil {
		s.multi.Flush()
		s.multi.Close()
	} else {
		s.single.Flush()
		s.single.Close()
	}
	s.queue.StopAll()
	s.closed = true

	s.log.Debug("session closed",
		"elapsed", s.detector.Elapsed(),
		"characters", s.stats.Characters,
		"words", s.stats.Words,
	)
	return nil
}

func (s *Session) handleTiming(e dsp.TimingEvent) {
	s.metrics.RecordElement(s.ctx, e.Ms(), e.IsSignal)
	if s.multi != nil {
		s.multi.HandleTiming(e)
		return
	}
	s.single.HandleTiming(e)
}

func (s *Session) handleState(e dsp.StateEvent) {
	s.stats.Transitions++
	s.metrics.RecordTransition(s.ctx, e.On)
	if s.onState != nil {
		s.onState(e)
	}
}

func (s *Session) handleRecalibration(e dsp.RecalibrationEvent) {
	s.stats.Recalibrations++
	s.metrics.RecordRecalibration(s.ctx, string(e.Reason), e.Frequency)
	s.log.Info("detector recalibrated",
		"reason", e.Reason,
		"frequency_hz", math.Round(e.Frequency),
		"at", e.At,
	)
}

func (s *Session) handleSwitch(sw pileup.Switch) {
	s.stats.Switches++
	s.metrics.RecordSwitch(s.ctx, string(sw.Reason))
	s.log.Info("hypothesis switched",
		"from_wpm", sw.FromWPM,
		"to_wpm", sw.ToWPM,
		"reason", sw.Reason,
		"at", sw.At,
	)
}

func (s *Session) handleLock(l pileup.Lock) {
	if l.Locked {
		s.log.Debug("hypothesis locked", "wpm", l.WPM, "at", l.At)
		return
	}
	s.log.Debug("hypothesis unlocked", "wpm", l.WPM, "at", l.At)
}

func (s *Session) handleOutput(out Output) {
	if out.IsWordSpace {
		s.stats.Words++
		s.metrics.RecordWord(s.ctx)
	} else {
		unknown := out.Character == cw.UnknownChar
		s.stats.Characters++
		if unknown {
			s.stats.Unknown++
		}
		s.metrics.RecordCharacter(s.ctx, unknown)
	}

	s.transcript = append(s.transcript, out.Character)
	if over := len(s.transcript) - s.config.TranscriptSize; over > 0 {
		s.transcript = append(s.transcript[:0], s.transcript[over:]...)
	}

	if s.onOutput != nil {
		s.onOutput(out)
	}
}

// Transcript returns the most recent decoded text, words separated by spaces.
func (s *Session) Transcript() string {
	return string(s.transcript)
}

// Stats returns the running counts.
func (s *Session) Stats() Stats {
	st := s.stats
	st.Elapsed = s.detector.Elapsed()
	return st
}

// CurrentWPM returns the single decoder's estimate or the active hypothesis's speed.
func (s *Session) CurrentWPM() int {
	if s.multi != nil {
		return s.multi.ActiveWPM()
	}
	return s.single.CurrentWPM()
}

// Frequency returns the detector's current centre frequency.
func (s *Session) Frequency() float64 {
	return s.detector.CenterFrequency()
}

// Detector returns the envelope detector, for manual recalibration.
func (s *Session) Detector() *dsp.EnvelopeDetector {
	return s.detector
}

// Pileup returns the multi-hypothesis decoder, or nil in single mode.
func (s *Session) Pileup() *pileup.Decoder {
	return s.multi
}
