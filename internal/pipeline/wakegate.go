package pipeline

import (
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/earshot/earshot/internal/dsp"
	"github.com/earshot/earshot/pkg/wakeword"
)

// Detection is the immutable result of a wake-word firing.
type Detection struct {
	// ID is a correlation ID for tracing the detection downstream.
	ID string

	// Keyword is the matched keyword identifier.
	Keyword string

	// Confidence is the scorer's confidence (0.0–1.0).
	Confidence float64

	// Timestamp is the pipeline time at which the detection fired.
	Timestamp time.Duration

	// WindowStart and WindowEnd delimit the audio window (pipeline time)
	// that triggered the detection.
	WindowStart time.Duration
	WindowEnd   time.Duration
}

// GateConfig tunes the wake-word gate's sliding window.
type GateConfig struct {
	// SampleRate of the steered mono input in Hz.
	SampleRate int

	// WindowMs is the sliding analysis window duration. Default 1500.
	WindowMs int

	// StrideMs is the window advance per scoring pass. Default 100.
	StrideMs int

	// CooldownMs suppresses further detections for any keyword after one
	// fires. Default 500.
	CooldownMs int

	// MaxKeywords bounds the registry. Default 8.
	MaxKeywords int
}

func (c *GateConfig) applyDefaults() {
	if c.WindowMs == 0 {
		c.WindowMs = 1500
	}
	if c.StrideMs == 0 {
		c.StrideMs = 100
	}
	if c.CooldownMs == 0 {
		c.CooldownMs = 500
	}
	if c.MaxKeywords == 0 {
		c.MaxKeywords = 8
	}
}

func (c GateConfig) validate() error {
	if c.SampleRate <= 0 {
		return fmt.Errorf("pipeline: gate sample rate %d: %w", c.SampleRate, ErrInvalidParam)
	}
	if c.WindowMs <= 0 || c.StrideMs <= 0 || c.StrideMs > c.WindowMs {
		return fmt.Errorf("pipeline: gate window %d ms / stride %d ms: %w", c.WindowMs, c.StrideMs, ErrInvalidParam)
	}
	if c.CooldownMs < 0 || c.MaxKeywords < 1 {
		return fmt.Errorf("pipeline: gate cooldown %d ms / max keywords %d: %w", c.CooldownMs, c.MaxKeywords, ErrInvalidParam)
	}
	return nil
}

// WakeWordGate buffers the steered mono signal into a sliding window,
// extracts MFCC features once per stride, and asks every registered keyword
// scorer for a confidence. A keyword fires when its confidence reaches its
// threshold while voice activity is present; a cooldown then suppresses all
// keywords briefly to avoid duplicate triggers on a sustained utterance.
//
// Owned by the processing task; keyword registration goes through the
// pipeline command lock.
type WakeWordGate struct {
	cfg       GateConfig
	extractor *dsp.Extractor

	windowSamples int
	strideSamples int
	cooldown      time.Duration

	buf      []int16
	consumed int64 // total mono samples slid past, for window offsets

	models        []wakeword.Model
	cooldownUntil time.Duration

	scorerErrs atomic.Int64
}

// NewWakeWordGate creates a gate using extractor for feature extraction.
func NewWakeWordGate(cfg GateConfig, extractor *dsp.Extractor) (*WakeWordGate, error) {
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if extractor == nil {
		return nil, fmt.Errorf("pipeline: gate requires a feature extractor: %w", ErrInvalidParam)
	}
	return &WakeWordGate{
		cfg:           cfg,
		extractor:     extractor,
		windowSamples: cfg.SampleRate * cfg.WindowMs / 1000,
		strideSamples: cfg.SampleRate * cfg.StrideMs / 1000,
		cooldown:      time.Duration(cfg.CooldownMs) * time.Millisecond,
	}, nil
}

// Register adds a keyword model. Returns ErrCapacityExceeded once the
// configured maximum is reached and ErrInvalidParam for an incomplete model
// or duplicate keyword.
func (g *WakeWordGate) Register(m wakeword.Model) error {
	if m.Keyword == "" || m.Scorer == nil || m.Threshold < 0 || m.Threshold > 1 {
		return fmt.Errorf("pipeline: wake-word model %q: %w", m.Keyword, ErrInvalidParam)
	}
	for _, existing := range g.models {
		if existing.Keyword == m.Keyword {
			return fmt.Errorf("pipeline: wake word %q already registered: %w", m.Keyword, ErrInvalidParam)
		}
	}
	if len(g.models) >= g.cfg.MaxKeywords {
		return fmt.Errorf("pipeline: wake-word registry full (%d): %w", g.cfg.MaxKeywords, ErrCapacityExceeded)
	}
	g.models = append(g.models, m)
	return nil
}

// Keywords returns the registered keyword identifiers in registration order.
func (g *WakeWordGate) Keywords() []string {
	out := make([]string, len(g.models))
	for i, m := range g.models {
		out[i] = m.Keyword
	}
	return out
}

// SetThreshold updates a registered keyword's confidence threshold.
func (g *WakeWordGate) SetThreshold(keyword string, threshold float64) error {
	if threshold < 0 || threshold > 1 {
		return fmt.Errorf("pipeline: threshold %v for %q: %w", threshold, keyword, ErrInvalidParam)
	}
	for i := range g.models {
		if g.models[i].Keyword == keyword {
			g.models[i].Threshold = threshold
			return nil
		}
	}
	return fmt.Errorf("pipeline: keyword %q not registered: %w", keyword, ErrInvalidParam)
}

// ScorerErrors returns the number of windows skipped due to scorer failures.
func (g *WakeWordGate) ScorerErrors() int64 {
	return g.scorerErrs.Load()
}

// Feed appends mono samples at pipeline time ts and scores every complete
// window, advancing by the stride. Detections are returned in firing order;
// an unscorable window is logged and skipped without stalling the stride.
func (g *WakeWordGate) Feed(mono []int16, ts time.Duration, vadActive bool) []Detection {
	g.buf = append(g.buf, mono...)

	var detections []Detection
	for len(g.buf) >= g.windowSamples {
		if det, ok := g.scoreWindow(ts, vadActive); ok {
			detections = append(detections, det)
		}
		g.buf = g.buf[g.strideSamples:]
		g.consumed += int64(g.strideSamples)
	}

	// Reclaim the backing array periodically so the sliding slice does not
	// pin previously consumed audio forever.
	if cap(g.buf) > 4*g.windowSamples {
		fresh := make([]int16, len(g.buf), 2*g.windowSamples)
		copy(fresh, g.buf)
		g.buf = fresh
	}
	return detections
}

// scoreWindow extracts features for the current window and evaluates every
// registered keyword, honouring the VAD gate and cooldown.
func (g *WakeWordGate) scoreWindow(ts time.Duration, vadActive bool) (Detection, bool) {
	if len(g.models) == 0 {
		return Detection{}, false
	}
	if !vadActive || ts < g.cooldownUntil {
		return Detection{}, false
	}

	features, err := g.extractor.Extract(g.buf[:g.windowSamples])
	if err != nil {
		g.scorerErrs.Add(1)
		slog.Warn("wake gate: feature extraction failed, skipping window", "err", err)
		return Detection{}, false
	}

	var best wakeword.Model
	bestConf := -1.0
	for _, m := range g.models {
		conf, err := m.Scorer.Score(features)
		if err != nil {
			g.scorerErrs.Add(1)
			slog.Warn("wake gate: scorer failed, skipping window",
				"keyword", m.Keyword,
				"err", fmt.Errorf("%w: %v", ErrInference, err),
			)
			continue
		}
		if conf >= m.Threshold && conf > bestConf {
			best = m
			bestConf = conf
		}
	}
	if bestConf < 0 {
		return Detection{}, false
	}

	windowStart := time.Duration(g.consumed) * time.Second / time.Duration(g.cfg.SampleRate)
	g.cooldownUntil = ts + g.cooldown
	return Detection{
		ID:          uuid.NewString(),
		Keyword:     best.Keyword,
		Confidence:  bestConf,
		Timestamp:   ts,
		WindowStart: windowStart,
		WindowEnd:   windowStart + time.Duration(g.cfg.WindowMs)*time.Millisecond,
	}, true
}

// Reset clears the sliding buffer, cooldown and every scorer's state.
func (g *WakeWordGate) Reset() {
	g.buf = g.buf[:0]
	g.consumed = 0
	g.cooldownUntil = 0
	for _, m := range g.models {
		m.Scorer.Reset()
	}
}

// Close releases every registered scorer.
func (g *WakeWordGate) Close() error {
	var firstErr error
	for _, m := range g.models {
		if err := m.Scorer.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
