package observe

import (
	"context"
	"testing"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
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

// collect gathers all metric data from the reader.
func collect(t *testing.T, reader *sdkmetric.ManualReader) metricdata.ResourceMetrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	return rm
}

// findMetric searches for a metric by name across all scope metrics.
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

func TestNewMetrics_CreatesWithoutError(t *testing.T) {
	m, _ := newTestMetrics(t)
	if m == nil {
		t.Fatal("NewMetrics returned nil")
	}
}

func TestCounterAccumulates(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.FramesProcessed.Add(ctx, 3)
	m.FramesProcessed.Add(ctx, 2)
	m.QueueOverruns.Add(ctx, 1)

	rm := collect(t, reader)

	fp := findMetric(rm, "earshot.frames.processed")
	if fp == nil {
		t.Fatal("earshot.frames.processed not found")
	}
	sum, ok := fp.Data.(metricdata.Sum[int64])
	if !ok {
		t.Fatalf("unexpected data type %T", fp.Data)
	}
	if got := sum.DataPoints[0].Value; got != 5 {
		t.Errorf("frames.processed = %d, want 5", got)
	}

	qo := findMetric(rm, "earshot.queue.overruns")
	if qo == nil {
		t.Fatal("earshot.queue.overruns not found")
	}
}

func TestDetectionsCounterByKeyword(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.Detections.Add(ctx, 1, metric.WithAttributes(attribute.String("keyword", "jarvis")))
	m.Detections.Add(ctx, 1, metric.WithAttributes(attribute.String("keyword", "jarvis")))
	m.Detections.Add(ctx, 1, metric.WithAttributes(attribute.String("keyword", "computer")))

	rm := collect(t, reader)
	det := findMetric(rm, "earshot.wake.detections")
	if det == nil {
		t.Fatal("earshot.wake.detections not found")
	}
	sum, ok := det.Data.(metricdata.Sum[int64])
	if !ok {
		t.Fatalf("unexpected data type %T", det.Data)
	}
	if len(sum.DataPoints) != 2 {
		t.Fatalf("expected 2 keyword series, got %d", len(sum.DataPoints))
	}
	var total int64
	for _, dp := range sum.DataPoints {
		total += dp.Value
	}
	if total != 3 {
		t.Errorf("total detections = %d, want 3", total)
	}
}

func TestFrameProcessingHistogram(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.FrameProcessing.Record(ctx, 0.0002)
	m.FrameProcessing.Record(ctx, 0.0009)

	rm := collect(t, reader)
	fm := findMetric(rm, "earshot.frame.processing.duration")
	if fm == nil {
		t.Fatal("earshot.frame.processing.duration not found")
	}
	hist, ok := fm.Data.(metricdata.Histogram[float64])
	if !ok {
		t.Fatalf("unexpected data type %T", fm.Data)
	}
	if got := hist.DataPoints[0].Count; got != 2 {
		t.Errorf("histogram count = %d, want 2", got)
	}
}

func TestGaugeReportsLatestValue(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.NoiseFloorDB.Record(ctx, -62.5)
	m.NoiseFloorDB.Record(ctx, -58.0)

	rm := collect(t, reader)
	g := findMetric(rm, "earshot.vad.noise_floor")
	if g == nil {
		t.Fatal("earshot.vad.noise_floor not found")
	}
	gauge, ok := g.Data.(metricdata.Gauge[float64])
	if !ok {
		t.Fatalf("unexpected data type %T", g.Data)
	}
	if got := gauge.DataPoints[0].Value; got != -58.0 {
		t.Errorf("noise floor gauge = %v, want -58.0", got)
	}
}
