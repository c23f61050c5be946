// Package observe provides the decoder's OpenTelemetry metrics and the
// Prometheus exporter that serves them.
//
// Tests should use [NewMetrics] with their own [metric.MeterProvider];
// [DefaultMetrics] uses the global provider.
package observe

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all metrics.
const meterName = "github.com/ColonelBlimp/cwlisten"

// Metrics holds the metric instruments for a decoding session.
type Metrics struct {
	// Characters counts decoded characters, including unknown ones.
	Characters metric.Int64Counter

	// UnknownCharacters counts codes with no table entry.
	UnknownCharacters metric.Int64Counter

	// Words counts completed words.
	Words metric.Int64Counter

	// Transitions counts detector key state changes. Use with attribute:
	//   attribute.String("state", "on"|"off")
	Transitions metric.Int64Counter

	// Recalibrations counts detector recalibrations. Use with attribute:
	//   attribute.String("reason", ...)
	Recalibrations metric.Int64Counter

	// HypothesisSwitches counts changes of active pileup hypothesis. Use with attribute:
	//   attribute.String("reason", ...)
	HypothesisSwitches metric.Int64Counter

	// ElementDuration tracks keyed segment lengths. Use with attribute:
	//   attribute.String("kind", "signal"|"gap")
	ElementDuration metric.Float64Histogram

	// ToneFrequency is the detector's current centre frequency.
	ToneFrequency metric.Float64Gauge

	// Blocks counts audio blocks processed.
	Blocks metric.Int64Counter
}

// elementBuckets covers dits at 60 WPM up to word gaps at 5 WPM, in ms.
var elementBuckets = []float64{
	20, 40, 60, 80, 120, 160, 240, 360, 480, 720, 1000, 1700, 3000,
}

// NewMetrics creates every instrument on mp.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.Characters, err = m.Int64Counter("cwlisten.decoder.characters",
		metric.WithDescription("Decoded characters."),
	); err != nil {
		return nil, err
	}
	if met.UnknownCharacters, err = m.Int64Counter("cwlisten.decoder.unknown_characters",
		metric.WithDescription("Decoded codes with no character."),
	); err != nil {
		return nil, err
	}
	if met.Words, err = m.Int64Counter("cwlisten.decoder.words",
		metric.WithDescription("Completed words."),
	); err != nil {
		return nil, err
	}
	if met.Transitions, err = m.Int64Counter("cwlisten.detector.transitions",
		metric.WithDescription("Key state changes by new state."),
	); err != nil {
		return nil, err
	}
	if met.Recalibrations, err = m.Int64Counter("cwlisten.detector.recalibrations",
		metric.WithDescription("Detector recalibrations by reason."),
	); err != nil {
		return nil, err
	}
	if met.HypothesisSwitches, err = m.Int64Counter("cwlisten.pileup.switches",
		metric.WithDescription("Active hypothesis changes by reason."),
	); err != nil {
		return nil, err
	}
	if met.ElementDuration, err = m.Float64Histogram("cwlisten.detector.element.duration",
		metric.WithDescription("Length of keyed signals and gaps."),
		metric.WithUnit("ms"),
		metric.WithExplicitBucketBoundaries(elementBuckets...),
	); err != nil {
		return nil, err
	}
	if met.ToneFrequency, err = m.Float64Gauge("cwlisten.detector.tone_frequency",
		metric.WithDescription("Centre frequency of the detector band-pass."),
		metric.WithUnit("Hz"),
	); err != nil {
		return nil, err
	}
	if met.Blocks, err = m.Int64Counter("cwlisten.audio.blocks",
		metric.WithDescription("Audio blocks processed."),
	); err != nil {
		return nil, err
	}

	return met, nil
}

var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the package-level [Metrics] instance, created on
// first call from [otel.GetMeterProvider].
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		var err error
		defaultMetrics, err = NewMetrics(otel.GetMeterProvider())
		if err != nil {
			panic("observe: failed to create default metrics: " + err.Error())
		}
	})
	return defaultMetrics
}

// RecordCharacter counts a decoded character.
func (m *Metrics) RecordCharacter(ctx context.Context, unknown bool) {
	m.Characters.Add(ctx, 1)
	if unknown {
		m.UnknownCharacters.Add(ctx, 1)
	}
}

// RecordWord counts a completed word.
func (m *Metrics) RecordWord(ctx context.Context) {
	m.Words.Add(ctx, 1)
}

// RecordTransition counts a key state change.
func (m *Metrics) RecordTransition(ctx context.Context, on bool) {
	state := "off"
	if on {
		state = "on"
	}
	m.Transitions.Add(ctx, 1, metric.WithAttributes(attribute.String("state", state)))
}

// RecordElement records the length of a finished signal or gap.
func (m *Metrics) RecordElement(ctx context.Context, ms float64, signal bool) {
	kind := "gap"
	if signal {
		kind = "signal"
	}
	m.ElementDuration.Record(ctx, ms, metric.WithAttributes(attribute.String("kind", kind)))
}

// RecordRecalibration counts a recalibration and records the frequency it settled on.
func (m *Metrics) RecordRecalibration(ctx context.Context, reason string, frequency float64) {
	m.Recalibrations.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", reason)))
	m.ToneFrequency.Record(ctx, frequency)
}

// RecordSwitch counts a change of active hypothesis.
func (m *Metrics) RecordSwitch(ctx context.Context, reason string) {
	m.HypothesisSwitches.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", reason)))
}
