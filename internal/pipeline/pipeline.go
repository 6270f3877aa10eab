package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/earshot/earshot/internal/dsp"
	"github.com/earshot/earshot/internal/observe"
	"github.com/earshot/earshot/pkg/audio"
	"github.com/earshot/earshot/pkg/wakeword"
)

// maxChannels is the hard upper bound on configured input channels.
const maxChannels = 16

// popTimeout bounds how long the processing task waits for the next frame
// before re-checking for cancellation.
const popTimeout = 100 * time.Millisecond

// DetectionFunc receives wake-word detections. Invoked synchronously from the
// processing task; implementations must not block and must not call back into
// the pipeline.
type DetectionFunc func(Detection)

// AudioFunc receives every processed frame. Same constraints as
// [DetectionFunc].
type AudioFunc func(audio.Frame)

// Config assembles a pipeline instance.
type Config struct {
	// SampleRate of incoming frames in Hz.
	SampleRate int

	// Channels is the interleaved channel count of incoming frames.
	Channels int

	// MicPositions gives each channel's microphone position. Must have
	// exactly Channels entries.
	MicPositions []MicPosition

	// QueueCapacity is the frame queue depth. Default 32.
	QueueCapacity int

	// HistoryDuration sizes the rolling raw-audio history. Default 10s.
	HistoryDuration time.Duration

	// WakeTimeout bounds how long the pipeline holds WAKE_DETECTED waiting
	// for an external recording start. Default 5s. Only reached with
	// ManualRecord set.
	WakeTimeout time.Duration

	// MaxRecording is the default recording duration limit. Default 10s.
	MaxRecording time.Duration

	// ManualRecord disables the automatic same-tick WAKE_DETECTED to
	// RECORDING transition; an external StartRecording must arrive before
	// WakeTimeout elapses.
	ManualRecord bool

	// Analyzer tunes voice-activity detection. Zero fields take defaults.
	Analyzer AnalyzerConfig

	// Gate tunes the wake-word sliding window. SampleRate is filled in from
	// the pipeline sample rate.
	Gate GateConfig

	// Features configures MFCC extraction for the wake-word gate.
	Features dsp.Config

	// Metrics receives pipeline telemetry. Defaults to the package-level
	// observe instance.
	Metrics *observe.Metrics

	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

func (c *Config) applyDefaults() {
	if c.QueueCapacity == 0 {
		c.QueueCapacity = 32
	}
	if c.HistoryDuration == 0 {
		c.HistoryDuration = 10 * time.Second
	}
	if c.WakeTimeout == 0 {
		c.WakeTimeout = 5 * time.Second
	}
	if c.MaxRecording == 0 {
		c.MaxRecording = 10 * time.Second
	}
	if c.Metrics == nil {
		c.Metrics = observe.DefaultMetrics()
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

func (c Config) validate() error {
	if c.SampleRate <= 0 {
		return fmt.Errorf("pipeline: sample rate %d: %w", c.SampleRate, ErrInvalidParam)
	}
	if c.Channels < 1 || c.Channels > maxChannels {
		return fmt.Errorf("pipeline: %d channels, supported range 1–%d: %w", c.Channels, maxChannels, ErrInvalidParam)
	}
	if len(c.MicPositions) != c.Channels {
		return fmt.Errorf("pipeline: %d mic positions for %d channels: %w", len(c.MicPositions), c.Channels, ErrInvalidParam)
	}
	if c.QueueCapacity < 1 {
		return fmt.Errorf("pipeline: queue capacity %d: %w", c.QueueCapacity, ErrInvalidParam)
	}
	return nil
}

// Pipeline is the voice-capture handle: it owns the frame queue, the
// per-frame processing task, the recording state machine, and all component
// state. Multiple independent instances may coexist.
//
// [Pipeline.Run] drives processing; every other method is a command safe to
// call from any goroutine.
type Pipeline struct {
	cfg     Config
	log     *slog.Logger
	metrics *observe.Metrics

	queue   *FrameQueue
	history *HistoryBuffer
	stats   *StatsRegistry

	// mu guards the state machine and every component owned by the
	// processing task. Commands hold it briefly; processFrame holds it for
	// one frame.
	mu           sync.Mutex
	state        State
	analyzer     *SignalAnalyzer
	beam         *Beamformer
	gate         *WakeWordGate
	rec          *RecordingSession
	wakeDeadline time.Duration
	lastTs       time.Duration
	onDetection  DetectionFunc
	onAudio      AudioFunc
}

// New assembles a pipeline from cfg. All buffers are allocated up front;
// a failed allocation or component construction surfaces here, never on the
// frame path.
func New(cfg Config) (*Pipeline, error) {
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	queue, err := NewFrameQueue(cfg.QueueCapacity)
	if err != nil {
		return nil, err
	}
	history, err := NewHistoryBuffer(cfg.SampleRate, cfg.Channels, cfg.HistoryDuration)
	if err != nil {
		return nil, err
	}
	analyzer, err := NewSignalAnalyzer(cfg.Analyzer)
	if err != nil {
		return nil, err
	}
	beam, err := NewBeamformer(cfg.SampleRate, cfg.MicPositions)
	if err != nil {
		return nil, err
	}

	extractor, err := dsp.NewExtractor(featureDefaults(cfg.Features, cfg.SampleRate))
	if err != nil {
		return nil, fmt.Errorf("pipeline: feature extractor: %w", err)
	}

	gateCfg := cfg.Gate
	gateCfg.SampleRate = cfg.SampleRate
	gate, err := NewWakeWordGate(gateCfg, extractor)
	if err != nil {
		return nil, err
	}

	return &Pipeline{
		cfg:      cfg,
		log:      cfg.Logger,
		metrics:  cfg.Metrics,
		queue:    queue,
		history:  history,
		stats:    NewStatsRegistry(),
		state:    StateIdle,
		analyzer: analyzer,
		beam:     beam,
		gate:     gate,
	}, nil
}

// featureDefaults fills zero MFCC fields with the conventional 25 ms frame,
// 10 ms stride, 26 mel bands and 13 coefficients at the pipeline rate.
func featureDefaults(c dsp.Config, sampleRate int) dsp.Config {
	if c.SampleRate == 0 {
		c.SampleRate = sampleRate
	}
	if c.FrameSize == 0 {
		c.FrameSize = c.SampleRate * 25 / 1000
	}
	if c.FrameStride == 0 {
		c.FrameStride = c.SampleRate * 10 / 1000
	}
	if c.FFTSize == 0 {
		c.FFTSize = 1
		for c.FFTSize < c.FrameSize {
			c.FFTSize *= 2
		}
	}
	if c.MelFilters == 0 {
		c.MelFilters = 26
	}
	if c.Coefficients == 0 {
		c.Coefficients = 13
	}
	return c
}

// Run consumes queued frames until ctx is cancelled. It is the single
// consumer; call it from exactly one goroutine.
func (p *Pipeline) Run(ctx context.Context) error {
	p.log.Info("pipeline started",
		"sample_rate", p.cfg.SampleRate,
		"channels", p.cfg.Channels,
		"queue_capacity", p.cfg.QueueCapacity,
	)
	for {
		if err := ctx.Err(); err != nil {
			p.log.Info("pipeline stopped")
			return err
		}
		f, ok := p.queue.Pop(popTimeout)
		if !ok {
			continue
		}
		p.processFrame(ctx, f)
	}
}

// processFrame runs one frame through the fixed stage order: signal analysis,
// beamforming, wake-word scoring, history, the recording state machine, then
// stats. Callbacks fire after the lock is released.
func (p *Pipeline) processFrame(ctx context.Context, f audio.Frame) {
	start := time.Now()

	p.mu.Lock()
	if p.state == StateError {
		p.mu.Unlock()
		return
	}

	p.lastTs = f.Timestamp
	active := p.analyzer.Update(&f)
	mono := p.beam.Mix(f)
	scorerErrsBefore := p.gate.ScorerErrors()
	detections := p.gate.Feed(mono, f.Timestamp, active)
	scorerErrs := p.gate.ScorerErrors() - scorerErrsBefore
	wrote := p.history.Write(f)
	p.advance(ctx, f.Timestamp, mono, active, detections)

	noiseFloor := p.analyzer.NoiseFloorDB()
	onDetection := p.onDetection
	onAudio := p.onAudio
	p.mu.Unlock()

	if onDetection != nil {
		for _, d := range detections {
			onDetection(d)
		}
	}
	if onAudio != nil {
		onAudio(f)
	}

	p.stats.IncrFrames()
	p.stats.SetSignal(noiseFloor, active)
	elapsed := time.Since(start)
	p.stats.RecordFrameTime(elapsed, f.Duration())

	p.metrics.FramesProcessed.Add(ctx, 1)
	p.metrics.FrameProcessing.Record(ctx, elapsed.Seconds())
	p.metrics.NoiseFloorDB.Record(ctx, noiseFloor)
	p.metrics.CPULoad.Record(ctx, p.stats.snapshot().CPULoad)
	if !wrote {
		p.metrics.HistoryDrops.Add(ctx, 1)
	}
	if scorerErrs > 0 {
		p.metrics.ScorerErrors.Add(ctx, scorerErrs)
	}
	for _, d := range detections {
		p.stats.IncrDetections()
		p.metrics.Detections.Add(ctx, 1,
			metric.WithAttributes(attribute.String("keyword", d.Keyword)))
		observe.DetectionSpan(ctx, d.ID, d.Keyword, d.Confidence)
		p.log.Info("wake word detected",
			"detection_id", d.ID,
			"keyword", d.Keyword,
			"confidence", d.Confidence,
			"ts", d.Timestamp,
		)
	}
}

// advance drives the state machine for one frame. Caller holds p.mu.
// Deadlines are checked against frame timestamps, so time only moves when
// audio does.
func (p *Pipeline) advance(ctx context.Context, ts time.Duration, mono []int16, vadActive bool, detections []Detection) {
	switch p.state {
	case StateIdle:
		p.transition(ctx, StateListening)
		if len(detections) > 0 {
			p.wakeDetected(ctx, ts)
		}

	case StateListening:
		if len(detections) > 0 {
			p.wakeDetected(ctx, ts)
		}

	case StateWakeDetected:
		if ts >= p.wakeDeadline {
			p.log.Info("wake timeout elapsed without recording start", "ts", ts)
			p.transition(ctx, StateIdle)
		}

	case StateRecording:
		if vadActive {
			if !p.rec.Append(mono) {
				p.log.Info("recording reached capacity",
					"session_id", p.rec.ID(), "bytes", p.rec.Len())
				p.finishRecording(ctx)
				return
			}
		}
		if ts-p.rec.Start() >= p.rec.MaxDuration() {
			p.finishRecording(ctx)
		}

	case StateProcessing:
		// Held until the recording is drained.
	}
}

// wakeDetected enters WAKE_DETECTED and, unless manual recording is
// configured, continues straight into RECORDING on the same tick. Caller
// holds p.mu.
func (p *Pipeline) wakeDetected(ctx context.Context, ts time.Duration) {
	p.transition(ctx, StateWakeDetected)
	p.wakeDeadline = ts + p.cfg.WakeTimeout
	if p.cfg.ManualRecord {
		return
	}
	if err := p.beginRecording(ctx, p.cfg.MaxRecording, ts); err != nil {
		p.log.Error("recording start failed", "err", err)
		p.transition(ctx, StateError)
	}
}

// beginRecording allocates a session and enters RECORDING. Caller holds p.mu
// and has verified the transition is legal.
func (p *Pipeline) beginRecording(ctx context.Context, maxDuration, start time.Duration) error {
	rec, err := NewRecordingSession(p.cfg.SampleRate, maxDuration, start)
	if err != nil {
		return err
	}
	p.rec = rec
	p.transition(ctx, StateRecording)
	p.stats.IncrRecordingsStarted()
	p.metrics.Recordings.Add(ctx, 1,
		metric.WithAttributes(attribute.String("phase", "started")))
	observe.RecordingSpan(ctx, "started", rec.ID(), 0)
	p.log.Info("recording started",
		"session_id", rec.ID(), "max_duration", maxDuration)
	return nil
}

// finishRecording enters PROCESSING with the session held for draining.
// Caller holds p.mu.
func (p *Pipeline) finishRecording(ctx context.Context) {
	p.transition(ctx, StateProcessing)
	p.stats.IncrRecordingsCompleted()
	p.metrics.Recordings.Add(ctx, 1,
		metric.WithAttributes(attribute.String("phase", "completed")))
	observe.RecordingSpan(ctx, "completed", p.rec.ID(), p.rec.Len())
	p.log.Info("recording complete, awaiting drain",
		"session_id", p.rec.ID(), "bytes", p.rec.Len())
}

// transition moves the state machine. Caller holds p.mu.
func (p *Pipeline) transition(ctx context.Context, to State) {
	from := p.state
	if from == to {
		return
	}
	p.state = to
	p.log.Debug("state transition", "from", from.String(), "to", to.String())
	p.metrics.StateTransitions.Add(ctx, 1, metric.WithAttributes(
		attribute.String("from", from.String()),
		attribute.String("to", to.String()),
	))
}

// ProcessFrame enqueues a frame from the source glue. Never blocks: a full
// queue drops the frame and returns ErrBufferOverflow.
func (p *Pipeline) ProcessFrame(f audio.Frame) error {
	if p.queue.Push(f) {
		return nil
	}
	p.metrics.QueueOverruns.Add(context.Background(), 1)
	return fmt.Errorf("pipeline: frame at %v dropped: %w", f.Timestamp, ErrBufferOverflow)
}

// ReportSourceError records a hardware fault from the frame source and
// forces the ERROR state. Only Reset leaves ERROR.
func (p *Pipeline) ReportSourceError(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.log.Error("frame source fault", "err", fmt.Errorf("%w: %v", ErrHardware, err))
	p.transition(context.Background(), StateError)
}

// StartRecording begins an utterance capture. Valid only from IDLE or
// WAKE_DETECTED; maxDuration <= 0 takes the configured default.
func (p *Pipeline) StartRecording(maxDuration time.Duration) error {
	if maxDuration <= 0 {
		maxDuration = p.cfg.MaxRecording
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	switch p.state {
	case StateIdle, StateListening, StateWakeDetected:
	default:
		return fmt.Errorf("pipeline: cannot start recording from %s: %w", p.state, ErrInvalidParam)
	}
	return p.beginRecording(context.Background(), maxDuration, p.lastTs)
}

// StopRecording ends the current capture and moves to PROCESSING. Idempotent:
// outside RECORDING (including after a timeout already stopped it) it is a
// no-op.
func (p *Pipeline) StopRecording() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state != StateRecording {
		return nil
	}
	p.finishRecording(context.Background())
	return nil
}

// GetRecording copies up to len(dst) bytes of the buffered recording into dst
// and returns the count; 0 when nothing is buffered. The session is always
// cleared and, unless the pipeline is in ERROR, the state machine returns to
// IDLE. A dst smaller than the recording truncates explicitly.
func (p *Pipeline) GetRecording(dst []byte) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.rec == nil {
		return 0
	}
	id := p.rec.ID()
	n := p.rec.Drain(dst)
	p.rec = nil
	if p.state != StateError {
		p.transition(context.Background(), StateIdle)
	}
	p.metrics.Recordings.Add(context.Background(), 1,
		metric.WithAttributes(attribute.String("phase", "drained")))
	observe.RecordingSpan(context.Background(), "drained", id, n)
	return n
}

// SetBeamDirection steers the beamformer. Degrees outside [0, 360] are
// rejected and the prior steering is kept.
func (p *Pipeline) SetBeamDirection(degrees float64) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.beam.SetSteering(degrees)
}

// RegisterWakeWord adds a keyword model to the gate.
func (p *Pipeline) RegisterWakeWord(m wakeword.Model) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.gate.Register(m); err != nil {
		return err
	}
	p.log.Info("wake word registered", "keyword", m.Keyword, "threshold", m.Threshold)
	return nil
}

// SetWakeThreshold updates the confidence threshold of an already registered
// keyword.
func (p *Pipeline) SetWakeThreshold(keyword string, threshold float64) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.gate.SetThreshold(keyword, threshold)
}

// OnDetection registers the detection callback. The callback runs on the
// processing goroutine and must not block.
func (p *Pipeline) OnDetection(fn DetectionFunc) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onDetection = fn
}

// OnAudio registers the per-frame audio callback. Same constraints as
// [OnDetection].
func (p *Pipeline) OnAudio(fn AudioFunc) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onAudio = fn
}

// State returns the current state machine value.
func (p *Pipeline) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Stats returns a consistent snapshot of all pipeline counters and gauges.
func (p *Pipeline) Stats() Stats {
	s := p.stats.snapshot()
	s.QueueOverruns = p.queue.Overruns()
	s.HistoryDrops = p.history.Drops()

	p.mu.Lock()
	s.State = p.state
	s.ScorerErrors = p.gate.ScorerErrors()
	if p.rec != nil {
		s.RecordingBytes = p.rec.Len()
	}
	p.mu.Unlock()
	return s
}

// History copies out the most recent duration of raw multi-channel audio.
func (p *Pipeline) History(duration time.Duration) []int16 {
	return p.history.ReadWindow(duration)
}

// Reset discards any pending recording, clears analyzer and gate state, and
// returns the machine to IDLE. This is the only exit from ERROR.
func (p *Pipeline) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.rec = nil
	p.wakeDeadline = 0
	p.analyzer.Reset()
	p.gate.Reset()
	from := p.state
	p.state = StateIdle
	p.log.Info("pipeline reset", "from", from.String())
}

// Close releases the queue and every registered scorer. The pipeline must
// not be used afterwards.
func (p *Pipeline) Close() error {
	p.queue.Close()
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.gate.Close()
}
