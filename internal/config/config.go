// internal/config/config.go
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/ColonelBlimp/cwlisten/internal/audio"
	"github.com/ColonelBlimp/cwlisten/internal/cw"
	"github.com/ColonelBlimp/cwlisten/internal/dsp"
	"github.com/ColonelBlimp/cwlisten/internal/pileup"
	"github.com/ColonelBlimp/cwlisten/internal/session"
)

const (
	AppName       = "cwlisten"
	ConfigType    = "yaml"
	DefaultConfig = `# CW Listener Configuration

# Audio device settings
device_index: -1        # -1 for default device
sample_rate: 48000      # Audio sample rate in Hz
channels: 1             # Capture channels; more than one is averaged to mono
buffer_size: 512        # Samples per processing block (128-2048)

# Tone detection
tone_frequency: 700     # Initial band-pass centre in Hz
tone_min_hz: 300        # Lowest tone the tracker will follow
tone_max_hz: 1200       # Highest tone the tracker will follow
track_interval_ms: 200  # Tone tracking period, 0 disables tracking
fft_size: 4096          # Tracking window in samples (power of 2)
peak_prominence: 4      # Peak must exceed this multiple of the band mean
freq_smoothing: 0.2     # Smoothing for small frequency drifts
freq_jump_hz: 40        # Larger moves converge fast
freq_recal_hz: 200      # Larger moves recalibrate on the new tone
q_wide: 1.5             # Band-pass Q while searching
q_locked: 6             # Band-pass Q once locked
q_smoothing: 0.1        # Per-block step toward the target Q

# Detection thresholds
threshold_min: 0.02     # Adaptive threshold is clamped to [threshold_min, threshold_max]
threshold_max: 0.8
threshold_initial: 0.1  # Used until enough levels are known
threshold_ratio: 0.6    # threshold = noise + (signal - noise) * ratio
hysteresis_ratio: 0.7   # Off threshold = threshold * ratio
min_snr: 2.0            # Signal estimate is floored at noise * min_snr
debounce_frames: 2      # Consecutive blocks required to confirm a state change
min_transition_ms: 15   # Minimum time between transitions
min_segment_ms: 15      # No shorter segment is ever reported
level_history: 100      # Levels kept for cold-start percentiles
state_history: 50       # Levels kept per key state
agc_enabled: true       # Enable automatic gain control
agc_target: 0.5         # Level the tracked peak is scaled to
agc_attack: 0.5         # How fast the peak follows louder blocks (0.0-1.0)
agc_release: 0.002      # How fast the peak decays on quieter blocks (0.0-1.0)
agc_max_gain: 50        # Gain ceiling
stuck_timeout_ms: 2800  # Longer key-down forces a recalibration, 0 disables
recal_cooldown_ms: 5000 # Minimum time between automatic recalibrations

# Timing
wpm: 20                 # Initial WPM estimate
adaptive_timing: true   # Adapt to sender's speed
adaptive_smoothing: 0.1 # Weight of a new dit median
adaptive_deadband_ms: 15
adaptive_samples: 5     # Dits needed before adapting
min_signal_ms: 30       # Shorter tones are noise
min_gap_ms: 20          # Shorter gaps are noise
max_code_length: 6      # Symbols kept for one character
dit_dah_boundary: 2.0   # In dits: longer tones are dahs
char_gap_boundary: 2.2  # In dits: longer gaps end a character
word_gap_boundary: 4.5  # In dits: longer gaps end a word
watchdog_factor: 2.0    # Word gaps of silence before a word is forced out

# Pileup (multi-speed) decoding
pileup: false
pileup_wpm: [5, 8, 12, 15, 18, 21, 24, 27, 30, 33]
pileup_default_wpm: 20
sticky_words: 5         # Consecutive best words needed to lock
sticky_score: 150       # Score needed to lock
sticky_collapse: -100   # A lock only breaks below this score
sticky_margin: 150      # ... and when another hypothesis leads by more
switch_margin: 30       # Lead needed to switch while unlocked
min_valid_score: 20
eot_ratio: 15           # Gap in dits that ends a transmission
silence_reset_ms: 3000
silence_check_ms: 1000
score_limit: 200
score_unknown: -20
score_repeat: -15
score_callsign: 20
score_qcode: 15
score_report: 15
score_abbrev: 10
score_fuzzy: 3
score_single: -3
score_clean: 2
score_long: -10
# abbreviations: [CQ, DE, K, R, 73, TU]  # replaces the built-in list

# Output
debug: false            # Enable debug output
log_level: info         # debug, info, warn or error
metrics_addr: ""        # e.g. ":9090" serves Prometheus metrics
transcript_size: 4096
`
)

// Settings holds all application configuration
type Settings struct {
	// Audio device settings
	DeviceIndex int     `mapstructure:"device_index"`
	SampleRate  float64 `mapstructure:"sample_rate"`
	Channels    int     `mapstructure:"channels"`
	BufferSize  int     `mapstructure:"buffer_size"`

	// Tone detection
	ToneFrequency   float64 `mapstructure:"tone_frequency"`
	ToneMinHz       float64 `mapstructure:"tone_min_hz"`
	ToneMaxHz       float64 `mapstructure:"tone_max_hz"`
	TrackIntervalMs int     `mapstructure:"track_interval_ms"`
	FFTSize         int     `mapstructure:"fft_size"`
	PeakProminence  float64 `mapstructure:"peak_prominence"`
	FreqSmoothing   float64 `mapstructure:"freq_smoothing"`
	FreqJumpHz      float64 `mapstructure:"freq_jump_hz"`
	FreqRecalHz     float64 `mapstructure:"freq_recal_hz"`
	QWide           float64 `mapstructure:"q_wide"`
	QLocked         float64 `mapstructure:"q_locked"`
	QSmoothing      float64 `mapstructure:"q_smoothing"`

	// Detection thresholds
	ThresholdMin     float64 `mapstructure:"threshold_min"`
	ThresholdMax     float64 `mapstructure:"threshold_max"`
	ThresholdInitial float64 `mapstructure:"threshold_initial"`
	ThresholdRatio   float64 `mapstructure:"threshold_ratio"`
	HysteresisRatio  float64 `mapstructure:"hysteresis_ratio"`
	MinSNR           float64 `mapstructure:"min_snr"`
	DebounceFrames   int     `mapstructure:"debounce_frames"`
	MinTransitionMs  int     `mapstructure:"min_transition_ms"`
	MinSegmentMs     int     `mapstructure:"min_segment_ms"`
	LevelHistory     int     `mapstructure:"level_history"`
	StateHistory     int     `mapstructure:"state_history"`
	AGCEnabled       bool    `mapstructure:"agc_enabled"`
	AGCTarget        float64 `mapstructure:"agc_target"`
	AGCAttack        float64 `mapstructure:"agc_attack"`
	AGCRelease       float64 `mapstructure:"agc_release"`
	AGCMaxGain       float64 `mapstructure:"agc_max_gain"`
	StuckTimeoutMs   int     `mapstructure:"stuck_timeout_ms"`
	RecalCooldownMs  int     `mapstructure:"recal_cooldown_ms"`

	// Timing
	WPM                int     `mapstructure:"wpm"`
	AdaptiveTiming     bool    `mapstructure:"adaptive_timing"`
	AdaptiveSmoothing  float64 `mapstructure:"adaptive_smoothing"`
	AdaptiveDeadbandMs int     `mapstructure:"adaptive_deadband_ms"`
	AdaptiveSamples    int     `mapstructure:"adaptive_samples"`
	MinSignalMs        int     `mapstructure:"min_signal_ms"`
	MinGapMs           int     `mapstructure:"min_gap_ms"`
	MaxCodeLength      int     `mapstructure:"max_code_length"`
	DitDahBoundary     float64 `mapstructure:"dit_dah_boundary"`
	CharGapBoundary    float64 `mapstructure:"char_gap_boundary"`
	WordGapBoundary    float64 `mapstructure:"word_gap_boundary"`
	WatchdogFactor     float64 `mapstructure:"watchdog_factor"`

	// Pileup
	Pileup           bool     `mapstructure:"pileup"`
	PileupWPM        []int    `mapstructure:"pileup_wpm"`
	PileupDefaultWPM int      `mapstructure:"pileup_default_wpm"`
	StickyWords      int      `mapstructure:"sticky_words"`
	StickyScore      int      `mapstructure:"sticky_score"`
	StickyCollapse   int      `mapstructure:"sticky_collapse"`
	StickyMargin     int      `mapstructure:"sticky_margin"`
	SwitchMargin     int      `mapstructure:"switch_margin"`
	MinValidScore    int      `mapstructure:"min_valid_score"`
	EOTRatio         float64  `mapstructure:"eot_ratio"`
	SilenceResetMs   int      `mapstructure:"silence_reset_ms"`
	SilenceCheckMs   int      `mapstructure:"silence_check_ms"`
	ScoreLimit       int      `mapstructure:"score_limit"`
	ScoreUnknown     int      `mapstructure:"score_unknown"`
	ScoreRepeat      int      `mapstructure:"score_repeat"`
	ScoreCallsign    int      `mapstructure:"score_callsign"`
	ScoreQCode       int      `mapstructure:"score_qcode"`
	ScoreReport      int      `mapstructure:"score_report"`
	ScoreAbbrev      int      `mapstructure:"score_abbrev"`
	ScoreFuzzy       int      `mapstructure:"score_fuzzy"`
	ScoreSingle      int      `mapstructure:"score_single"`
	ScoreClean       int      `mapstructure:"score_clean"`
	ScoreLong        int      `mapstructure:"score_long"`
	Abbreviations    []string `mapstructure:"abbreviations"`

	// Output
	Debug          bool   `mapstructure:"debug"`
	LogLevel       string `mapstructure:"log_level"`
	MetricsAddr    string `mapstructure:"metrics_addr"`
	TranscriptSize int    `mapstructure:"transcript_size"`
}

// setDefaults registers every key with viper so missing keys fall back silently.
func setDefaults() {
	det := dsp.DefaultDetectorConfig(48000)
	dec := cw.DefaultDecoderConfig()
	pc := pileup.DefaultConfig()
	w := pc.Weights

	viper.SetDefault("device_index", -1)
	viper.SetDefault("sample_rate", 48000)
	viper.SetDefault("channels", 1)
	viper.SetDefault("buffer_size", 512)

	viper.SetDefault("tone_frequency", det.ToneFrequency)
	viper.SetDefault("tone_min_hz", det.ToneMinHz)
	viper.SetDefault("tone_max_hz", det.ToneMaxHz)
	viper.SetDefault("track_interval_ms", det.TrackInterval.Milliseconds())
	viper.SetDefault("fft_size", det.FFTSize)
	viper.SetDefault("peak_prominence", det.PeakProminence)
	viper.SetDefault("freq_smoothing", det.FreqSmoothing)
	viper.SetDefault("freq_jump_hz", det.FreqJumpHz)
	viper.SetDefault("freq_recal_hz", det.FreqRecalHz)
	viper.SetDefault("q_wide", det.QWide)
	viper.SetDefault("q_locked", det.QLocked)
	viper.SetDefault("q_smoothing", det.QSmoothing)

	viper.SetDefault("threshold_min", det.MinThreshold)
	viper.SetDefault("threshold_max", det.MaxThreshold)
	viper.SetDefault("threshold_initial", det.InitialThreshold)
	viper.SetDefault("threshold_ratio", det.ThresholdRatio)
	viper.SetDefault("hysteresis_ratio", det.HysteresisRatio)
	viper.SetDefault("min_snr", det.MinSNR)
	viper.SetDefault("debounce_frames", det.DebounceFrames)
	viper.SetDefault("min_transition_ms", det.MinTransition.Milliseconds())
	viper.SetDefault("min_segment_ms", det.MinSegment.Milliseconds())
	viper.SetDefault("level_history", det.LevelHistory)
	viper.SetDefault("state_history", det.StateHistory)
	viper.SetDefault("agc_enabled", det.AGCEnabled)
	viper.SetDefault("agc_target", det.AGCTarget)
	viper.SetDefault("agc_attack", det.AGCAttack)
	viper.SetDefault("agc_release", det.AGCRelease)
	viper.SetDefault("agc_max_gain", det.AGCMaxGain)
	viper.SetDefault("stuck_timeout_ms", det.StuckTimeout.Milliseconds())
	viper.SetDefault("recal_cooldown_ms", det.RecalCooldown.Milliseconds())

	viper.SetDefault("wpm", dec.InitialWPM)
	viper.SetDefault("adaptive_timing", dec.AdaptiveTiming)
	viper.SetDefault("adaptive_smoothing", dec.AdaptiveSmoothing)
	viper.SetDefault("adaptive_deadband_ms", dec.AdaptiveDeadband.Milliseconds())
	viper.SetDefault("adaptive_samples", dec.AdaptiveSamples)
	viper.SetDefault("min_signal_ms", dec.MinSignal.Milliseconds())
	viper.SetDefault("min_gap_ms", dec.MinGap.Milliseconds())
	viper.SetDefault("max_code_length", dec.MaxCodeLength)
	viper.SetDefault("dit_dah_boundary", dec.DitDahBoundary)
	viper.SetDefault("char_gap_boundary", dec.CharGapBoundary)
	viper.SetDefault("word_gap_boundary", dec.WordGapBoundary)
	viper.SetDefault("watchdog_factor", dec.WatchdogFactor)

	viper.SetDefault("pileup", false)
	viper.SetDefault("pileup_wpm", pc.WPMs)
	viper.SetDefault("pileup_default_wpm", pc.DefaultWPM)
	viper.SetDefault("sticky_words", pc.StickyWords)
	viper.SetDefault("sticky_score", pc.StickyScore)
	viper.SetDefault("sticky_collapse", pc.StickyCollapse)
	viper.SetDefault("sticky_margin", pc.StickyMargin)
	viper.SetDefault("switch_margin", pc.SwitchMargin)
	viper.SetDefault("min_valid_score", pc.MinValidScore)
	viper.SetDefault("eot_ratio", pc.EOTRatio)
	viper.SetDefault("silence_reset_ms", pc.SilenceReset.Milliseconds())
	viper.SetDefault("silence_check_ms", pc.SilenceCheck.Milliseconds())
	viper.SetDefault("score_limit", pc.ScoreLimit)
	viper.SetDefault("score_unknown", w.Unknown)
	viper.SetDefault("score_repeat", w.Repeat)
	viper.SetDefault("score_callsign", w.Callsign)
	viper.SetDefault("score_qcode", w.QCode)
	viper.SetDefault("score_report", w.Report)
	viper.SetDefault("score_abbrev", w.Abbrev)
	viper.SetDefault("score_fuzzy", w.Fuzzy)
	viper.SetDefault("score_single", w.Single)
	viper.SetDefault("score_clean", w.Clean)
	viper.SetDefault("score_long", w.Long)
	viper.SetDefault("abbreviations", pileup.DefaultAbbreviations)

	viper.SetDefault("debug", false)
	viper.SetDefault("log_level", "info")
	viper.SetDefault("metrics_addr", "")
	viper.SetDefault("transcript_size", 4096)
}

// Init initializes Viper with defaults and config file.
// Config file search order: current directory, then ~/.config/cwlisten/
func Init() error {
	setDefaults()

	// Support both config.yaml and .config.yaml
	viper.SetConfigType(ConfigType)

	// Priority order: current directory first, then XDG config
	viper.AddConfigPath(".")

	configDir, err := os.UserConfigDir()
	if err != nil {
		configDir = filepath.Join(os.Getenv("HOME"), ".config")
	}
	viper.AddConfigPath(filepath.Join(configDir, AppName))

	// Try .config.yaml first (hidden file), then config.yaml
	viper.SetConfigName(".config")
	if err = viper.ReadInConfig(); err != nil {
		viper.SetConfigName("config")
		err = viper.ReadInConfig()
	}

	// Read config file - if not found, create default in XDG config dir
	if err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if !errors.As(err, &configFileNotFoundError) {
			return fmt.Errorf("read config: %w", err)
		}
		if err = ensureConfigExists(filepath.Join(configDir, AppName)); err != nil {
			return err
		}
		if err = viper.ReadInConfig(); err != nil {
			return fmt.Errorf("read config: %w", err)
		}
	}

	return nil
}

func ensureConfigExists(configPath string) error {
	configFile := filepath.Join(configPath, "config.yaml")

	if _, err := os.Stat(configFile); os.IsNotExist(err) {
		if err = os.MkdirAll(configPath, 0755); err != nil {
			return fmt.Errorf("create config dir: %w", err)
		}
		if err = os.WriteFile(configFile, []byte(DefaultConfig), 0644); err != nil {
			return fmt.Errorf("write default config: %w", err)
		}
	}
	return nil
}

// Get returns the current settings
func Get() (*Settings, error) {
	var s Settings
	if err := viper.Unmarshal(&s); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := s.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &s, nil
}

// Validate checks that all settings are within acceptable ranges
func (s *Settings) Validate() error {
	var errs []error

	// Audio device settings
	if s.SampleRate < 8000 || s.SampleRate > 192000 {
		errs = append(errs, fmt.Errorf("sample_rate must be between 8000 and 192000 Hz, got %v", s.SampleRate))
	}
	if s.Channels < 1 || s.Channels > 8 {
		errs = append(errs, fmt.Errorf("channels must be between 1 and 8, got %d", s.Channels))
	}
	if s.BufferSize < 128 || s.BufferSize > 2048 {
		errs = append(errs, fmt.Errorf("buffer_size must be between 128 and 2048, got %d", s.BufferSize))
	}

	// Tone detection
	if s.ToneFrequency < 100 || s.ToneFrequency > 3000 {
		errs = append(errs, fmt.Errorf("tone_frequency must be between 100 and 3000 Hz, got %v", s.ToneFrequency))
	}
	// Nyquist check: the tracked band must stay below half the sample rate
	if s.ToneMaxHz >= s.SampleRate/2 {
		errs = append(errs, fmt.Errorf("tone_max_hz (%v Hz) must be less than Nyquist frequency (%v Hz)", s.ToneMaxHz, s.SampleRate/2))
	}
	if s.DebounceFrames < 2 || s.DebounceFrames > 50 {
		errs = append(errs, fmt.Errorf("debounce_frames must be between 2 and 50, got %d", s.DebounceFrames))
	}

	// Timing
	if s.WPM < cw.MinWPM || s.WPM > cw.MaxWPM {
		errs = append(errs, fmt.Errorf("wpm must be between %d and %d, got %d", cw.MinWPM, cw.MaxWPM, s.WPM))
	}

	// Output
	if _, err := parseLevel(s.LogLevel); err != nil {
		errs = append(errs, err)
	}
	if s.TranscriptSize < 1 {
		errs = append(errs, fmt.Errorf("transcript_size must be positive, got %d", s.TranscriptSize))
	}

	// Component checks cover the remaining keys and their relationships
	if err := s.DetectorConfig().Validate(); err != nil {
		errs = append(errs, fmt.Errorf("detector: %w", err))
	}
	if err := s.DecoderConfig().Validate(); err != nil {
		errs = append(errs, fmt.Errorf("decoder: %w", err))
	}
	if s.Pileup {
		if err := s.PileupConfig().Validate(); err != nil {
			errs = append(errs, fmt.Errorf("pileup: %w", err))
		}
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

func ms(n int) time.Duration {
	return time.Duration(n) * time.Millisecond
}

// DetectorConfig returns the envelope detector configuration.
func (s *Settings) DetectorConfig() dsp.DetectorConfig {
	return dsp.DetectorConfig{
		SampleRate:       s.SampleRate,
		ToneFrequency:    s.ToneFrequency,
		ToneMinHz:        s.ToneMinHz,
		ToneMaxHz:        s.ToneMaxHz,
		MinThreshold:     s.ThresholdMin,
		MaxThreshold:     s.ThresholdMax,
		InitialThreshold: s.ThresholdInitial,
		ThresholdRatio:   s.ThresholdRatio,
		HysteresisRatio:  s.HysteresisRatio,
		MinSNR:           s.MinSNR,
		DebounceFrames:   s.DebounceFrames,
		MinTransition:    ms(s.MinTransitionMs),
		MinSegment:       ms(s.MinSegmentMs),
		LevelHistory:     s.LevelHistory,
		StateHistory:     s.StateHistory,
		AGCEnabled:       s.AGCEnabled,
		AGCTarget:        s.AGCTarget,
		AGCAttack:        s.AGCAttack,
		AGCRelease:       s.AGCRelease,
		AGCMaxGain:       s.AGCMaxGain,
		TrackInterval:    ms(s.TrackIntervalMs),
		FFTSize:          s.FFTSize,
		PeakProminence:   s.PeakProminence,
		FreqSmoothing:    s.FreqSmoothing,
		FreqJumpHz:       s.FreqJumpHz,
		FreqRecalHz:      s.FreqRecalHz,
		QWide:            s.QWide,
		QLocked:          s.QLocked,
		QSmoothing:       s.QSmoothing,
		StuckTimeout:     ms(s.StuckTimeoutMs),
		RecalCooldown:    ms(s.RecalCooldownMs),
	}
}

// DecoderConfig returns the single decoder configuration.
func (s *Settings) DecoderConfig() cw.DecoderConfig {
	return cw.DecoderConfig{
		InitialWPM:        s.WPM,
		AdaptiveTiming:    s.AdaptiveTiming,
		AdaptiveSmoothing: s.AdaptiveSmoothing,
		AdaptiveDeadband:  ms(s.AdaptiveDeadbandMs),
		AdaptiveSamples:   s.AdaptiveSamples,
		MinSignal:         ms(s.MinSignalMs),
		MinGap:            ms(s.MinGapMs),
		MaxCodeLength:     s.MaxCodeLength,
		DitDahBoundary:    s.DitDahBoundary,
		CharGapBoundary:   s.CharGapBoundary,
		WordGapBoundary:   s.WordGapBoundary,
		WatchdogFactor:    s.WatchdogFactor,
	}
}

// PileupConfig returns the multi-hypothesis decoder configuration.
func (s *Settings) PileupConfig() pileup.Config {
	return pileup.Config{
		WPMs:           s.PileupWPM,
		DefaultWPM:     s.PileupDefaultWPM,
		Decoder:        s.DecoderConfig(),
		StickyWords:    s.StickyWords,
		StickyScore:    s.StickyScore,
		StickyCollapse: s.StickyCollapse,
		StickyMargin:   s.StickyMargin,
		SwitchMargin:   s.SwitchMargin,
		MinValidScore:  s.MinValidScore,
		EOTRatio:       s.EOTRatio,
		SilenceReset:   ms(s.SilenceResetMs),
		SilenceCheck:   ms(s.SilenceCheckMs),
		ScoreLimit:     s.ScoreLimit,
		Weights: pileup.ScoreWeights{
			Unknown:  s.ScoreUnknown,
			Repeat:   s.ScoreRepeat,
			Callsign: s.ScoreCallsign,
			QCode:    s.ScoreQCode,
			Report:   s.ScoreReport,
			Abbrev:   s.ScoreAbbrev,
			Fuzzy:    s.ScoreFuzzy,
			Single:   s.ScoreSingle,
			Clean:    s.ScoreClean,
			Long:     s.ScoreLong,
		},
		Abbreviations:   s.Abbreviations,
		TranscriptWords: pileup.DefaultConfig().TranscriptWords,
	}
}

// SessionConfig returns the decoding session configuration.
func (s *Settings) SessionConfig() session.Config {
	return session.Config{
		Detector:       s.DetectorConfig(),
		Decoder:        s.DecoderConfig(),
		Pileup:         s.PileupConfig(),
		UsePileup:      s.Pileup,
		TranscriptSize: s.TranscriptSize,
	}
}

// AudioConfig returns the capture configuration.
func (s *Settings) AudioConfig() audio.Config {
	return audio.Config{
		DeviceIndex: s.DeviceIndex,
		SampleRate:  uint32(s.SampleRate),
		Channels:    uint32(s.Channels),
		BufferSize:  uint32(s.BufferSize),
	}
}

// Level returns the log level; debug forces slog.LevelDebug.
func (s *Settings) Level() slog.Level {
	if s.Debug {
		return slog.LevelDebug
	}
	level, err := parseLevel(s.LogLevel)
	if err != nil {
		return slog.LevelInfo
	}
	return level
}

func parseLevel(name string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return slog.LevelInfo, fmt.Errorf("log_level must be one of debug, info, warn, error, got %q", name)
}
