package observe

import (
	"context"
	"testing"

	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

// newTestMetrics returns a Metrics instance backed by a ManualReader for
// programmatic metric inspection.
func newTestMetrics(t *testing.T) (*Metrics, *sdkmetric.ManualReader) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })

	m, err := NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	return m, reader
}

func collect(t *testing.T, reader *sdkmetric.ManualReader) metricdata.ResourceMetrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	return rm
}

func findMetric(rm metricdata.ResourceMetrics, name string) *metricdata.Metrics {
	for _, sm := range rm.ScopeMetrics {
		for i := range sm.Metrics {
			if sm.Metrics[i].Name == name {
				return &sm.Metrics[i]
			}
		}
	}
	return nil
}

// sumFor returns the counter value for the data point carrying key=value,
// or the only data point when key is empty.
func sumFor(t *testing.T, rm metricdata.ResourceMetrics, name, key, value string) int64 {
	t.Helper()
	met := findMetric(rm, name)
	if met == nil {
		t.Fatalf("metric %q not found", name)
	}
	sum, ok := met.Data.(metricdata.Sum[int64])
	if !ok {
		t.Fatalf("metric %q is not a sum", name)
	}
	for _, dp := range sum.DataPoints {
		if key == "" {
			return dp.Value
		}
		if v, ok := dp.Attributes.Value(attribute.Key(key)); ok && v.AsString() == value {
			return dp.Value
		}
	}
	t.Fatalf("metric %q has no data point %s=%s", name, key, value)
	return 0
}

func TestRecordCharacterAndWord(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordCharacter(ctx, false)
	m.RecordCharacter(ctx, false)
	m.RecordCharacter(ctx, true)
	m.RecordWord(ctx)

	rm := collect(t, reader)
	if got := sumFor(t, rm, "cwlisten.decoder.characters", "", ""); got != 3 {
		t.Errorf("characters = %d, want 3", got)
	}
	if got := sumFor(t, rm, "cwlisten.decoder.unknown_characters", "", ""); got != 1 {
		t.Errorf("unknown characters = %d, want 1", got)
	}
	if got := sumFor(t, rm, "cwlisten.decoder.words", "", ""); got != 1 {
		t.Errorf("words = %d, want 1", got)
	}
}

func TestAttributedCounters(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordTransition(ctx, true)
	m.RecordTransition(ctx, false)
	m.RecordTransition(ctx, true)
	m.RecordRecalibration(ctx, "stuck", 700)
	m.RecordRecalibration(ctx, "frequency-jump", 1000)
	m.RecordSwitch(ctx, "margin")

	rm := collect(t, reader)
	tests := []struct {
		name, key, value string
		want             int64
	}{
		{"cwlisten.detector.transitions", "state", "on", 2},
		{"cwlisten.detector.transitions", "state", "off", 1},
		{"cwlisten.detector.recalibrations", "reason", "stuck", 1},
		{"cwlisten.detector.recalibrations", "reason", "frequency-jump", 1},
		{"cwlisten.pileup.switches", "reason", "margin", 1},
	}
	for _, tt := range tests {
		t.Run(tt.name+"/"+tt.value, func(t *testing.T) {
			if got := sumFor(t, rm, tt.name, tt.key, tt.value); got != tt.want {
				t.Errorf("value = %d, want %d", got, tt.want)
			}
		})
	}

	met := findMetric(rm, "cwlisten.detector.tone_frequency")
	if met == nil {
		t.Fatal("tone frequency gauge not found")
	}
	gauge, ok := met.Data.(metricdata.Gauge[float64])
	if !ok || len(gauge.DataPoints) != 1 {
		t.Fatalf("tone frequency data = %#v", met.Data)
	}
	if got := gauge.DataPoints[0].Value; got != 1000 {
		t.Errorf("tone frequency = %v, want last recorded 1000", got)
	}
}

func TestRecordElement(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordElement(ctx, 60, true)
	m.RecordElement(ctx, 180, true)
	m.RecordElement(ctx, 60, false)

	rm := collect(t, reader)
	met := findMetric(rm, "cwlisten.detector.element.duration")
	if met == nil {
		t.Fatal("metric not found")
	}
	hist, ok := met.Data.(metricdata.Histogram[float64])
	if !ok {
		t.Fatal("metric is not a histogram")
	}
	counts := map[string]uint64{}
	for _, dp := range hist.DataPoints {
		v, _ := dp.Attributes.Value("kind")
		counts[v.AsString()] = dp.Count
	}
	if counts["signal"] != 2 || counts["gap"] != 1 {
		t.Errorf("counts = %v, want signal 2 gap 1", counts)
	}
}

func TestDefaultMetrics_Singleton(t *testing.T) {
	if DefaultMetrics() != DefaultMetrics() {
		t.Error("DefaultMetrics returned different instances")
	}
}
