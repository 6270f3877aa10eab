// Package observe provides application-wide observability primitives for
// Earshot: OpenTelemetry metrics, tracing, structured logging helpers, and
// HTTP middleware that ties them together.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A Prometheus
// exporter bridge is available via [InitProvider] so that metrics can be
// scraped via the standard /metrics endpoint. A package-level default
// [Metrics] instance ([DefaultMetrics]) is provided for convenience; tests
// should use [NewMetrics] with a custom [metric.MeterProvider] to avoid
// cross-test pollution.
package observe

import (
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all Earshot metrics.
const meterName = "github.com/earshot/earshot"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use — the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// --- Counters ---

	// FramesProcessed counts frames consumed by the processing task.
	FramesProcessed metric.Int64Counter

	// QueueOverruns counts frames dropped because the frame queue was full.
	QueueOverruns metric.Int64Counter

	// HistoryDrops counts history-buffer writes skipped under contention.
	HistoryDrops metric.Int64Counter

	// Detections counts wake-word detections. Use with attribute:
	//   attribute.String("keyword", ...)
	Detections metric.Int64Counter

	// ScorerErrors counts feature windows skipped due to scorer failures.
	ScorerErrors metric.Int64Counter

	// Recordings counts recording sessions. Use with attribute:
	//   attribute.String("phase", "started"|"completed"|"drained")
	Recordings metric.Int64Counter

	// StateTransitions counts pipeline state changes. Use with attributes:
	//   attribute.String("from", ...), attribute.String("to", ...)
	StateTransitions metric.Int64Counter

	// --- Histograms ---

	// FrameProcessing tracks per-frame processing latency.
	FrameProcessing metric.Float64Histogram

	// HTTPRequestDuration tracks HTTP request processing time. Use with
	// attributes: attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram

	// --- Gauges ---

	// NoiseFloorDB reports the adaptive noise-floor estimate.
	NoiseFloorDB metric.Float64Gauge

	// CPULoad reports the estimated fraction of real time spent processing.
	CPULoad metric.Float64Gauge
}

// frameBuckets defines histogram bucket boundaries (in seconds) optimised for
// per-frame processing latencies — a 20 ms frame should land well below 1 ms.
var frameBuckets = []float64{
	0.00005, 0.0001, 0.00025, 0.0005, 0.001, 0.0025, 0.005, 0.01, 0.02, 0.05,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	// Counters.
	if met.FramesProcessed, err = m.Int64Counter("earshot.frames.processed",
		metric.WithDescription("Total audio frames consumed by the processing task."),
	); err != nil {
		return nil, err
	}
	if met.QueueOverruns, err = m.Int64Counter("earshot.queue.overruns",
		metric.WithDescription("Total frames dropped because the frame queue was full."),
	); err != nil {
		return nil, err
	}
	if met.HistoryDrops, err = m.Int64Counter("earshot.history.drops",
		metric.WithDescription("Total history-buffer writes skipped under lock contention."),
	); err != nil {
		return nil, err
	}
	if met.Detections, err = m.Int64Counter("earshot.wake.detections",
		metric.WithDescription("Total wake-word detections by keyword."),
	); err != nil {
		return nil, err
	}
	if met.ScorerErrors, err = m.Int64Counter("earshot.wake.scorer_errors",
		metric.WithDescription("Total feature windows skipped due to scorer failures."),
	); err != nil {
		return nil, err
	}
	if met.Recordings, err = m.Int64Counter("earshot.recordings",
		metric.WithDescription("Total recording sessions by phase."),
	); err != nil {
		return nil, err
	}
	if met.StateTransitions, err = m.Int64Counter("earshot.state.transitions",
		metric.WithDescription("Total pipeline state transitions by edge."),
	); err != nil {
		return nil, err
	}

	// Histograms.
	if met.FrameProcessing, err = m.Float64Histogram("earshot.frame.processing.duration",
		metric.WithDescription("Per-frame processing latency."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(frameBuckets...),
	); err != nil {
		return nil, err
	}
	if met.HTTPRequestDuration, err = m.Float64Histogram("earshot.http.request.duration",
		metric.WithDescription("HTTP request latency by method and path."),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}

	// Gauges.
	if met.NoiseFloorDB, err = m.Float64Gauge("earshot.vad.noise_floor",
		metric.WithDescription("Adaptive noise-floor estimate."),
		metric.WithUnit("dB"),
	); err != nil {
		return nil, err
	}
	if met.CPULoad, err = m.Float64Gauge("earshot.cpu.load",
		metric.WithDescription("Estimated fraction of real time spent processing frames."),
	); err != nil {
		return nil, err
	}

	return met, nil
}

// defaultMetrics is the lazily-initialised package-level Metrics instance.
var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the package-level [Metrics] instance, creating it on
// first call using [otel.GetMeterProvider]. Subsequent calls return the same
// pointer. Panics if instrument creation fails (should not happen with the
// global provider).
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
