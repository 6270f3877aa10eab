package pipeline

import (
	"fmt"
	"math"

	"github.com/earshot/earshot/pkg/audio"
)

// energyFloorDB is returned for empty or digitally silent input.
const energyFloorDB = -100.0

// vadHistorySize bounds the recent-energy history kept for diagnostics.
const vadHistorySize = 16

// AnalyzerConfig tunes the per-frame energy analysis and voice-activity
// decision.
type AnalyzerConfig struct {
	// ActivationDB is how far above the noise floor the average frame energy
	// must rise for the frame to qualify as active. Default 10.
	ActivationDB float64

	// LocalActiveDB is how far above the noise floor a single channel must
	// rise to count towards the channel quorum. Default 6.
	LocalActiveDB float64

	// DebounceFrames is the number of consecutive qualifying frames before
	// the active flag flips true, and symmetrically the number of consecutive
	// non-qualifying frames before it flips back. Default 3.
	DebounceFrames int

	// NoiseFloorAlpha is the EMA smoothing factor for noise-floor adaptation.
	// Close to 1 adapts slowly. Default 0.95.
	NoiseFloorAlpha float64

	// InitialNoiseFloorDB seeds the noise-floor estimate. Default -60.
	InitialNoiseFloorDB float64
}

func (c *AnalyzerConfig) applyDefaults() {
	if c.ActivationDB == 0 {
		c.ActivationDB = 10
	}
	if c.LocalActiveDB == 0 {
		c.LocalActiveDB = 6
	}
	if c.DebounceFrames == 0 {
		c.DebounceFrames = 3
	}
	if c.NoiseFloorAlpha == 0 {
		c.NoiseFloorAlpha = 0.95
	}
	if c.InitialNoiseFloorDB == 0 {
		c.InitialNoiseFloorDB = -60
	}
}

func (c AnalyzerConfig) validate() error {
	if c.NoiseFloorAlpha < 0 || c.NoiseFloorAlpha >= 1 {
		return fmt.Errorf("pipeline: noise floor alpha %v must be in [0,1): %w", c.NoiseFloorAlpha, ErrInvalidParam)
	}
	if c.DebounceFrames < 1 {
		return fmt.Errorf("pipeline: debounce frames %d must be ≥ 1: %w", c.DebounceFrames, ErrInvalidParam)
	}
	if c.ActivationDB < 0 || c.LocalActiveDB < 0 {
		return fmt.Errorf("pipeline: activation thresholds must be non-negative: %w", ErrInvalidParam)
	}
	return nil
}

// VadState is a snapshot of the voice-activity detector.
type VadState struct {
	// NoiseFloorDB is the current adaptive noise-floor estimate.
	NoiseFloorDB float64

	// Active is the debounced voice-activity flag.
	Active bool

	// ActiveStreak counts consecutive qualifying frames.
	ActiveStreak int

	// SilenceStreak counts consecutive non-qualifying frames.
	SilenceStreak int

	// RecentEnergies holds the most recent average frame energies in dB,
	// oldest first. At most a small fixed number are retained.
	RecentEnergies []float64
}

// SignalAnalyzer computes per-channel frame energy and maintains the adaptive
// noise floor and debounced voice-activity flag.
//
// Owned by the processing task; not safe for concurrent use. External readers
// get a copy via [SignalAnalyzer.State] taken under the pipeline lock.
type SignalAnalyzer struct {
	cfg AnalyzerConfig

	noiseFloor    float64
	active        bool
	activeStreak  int
	silenceStreak int
	recent        []float64
}

// NewSignalAnalyzer creates an analyzer with cfg. Zero fields take defaults.
func NewSignalAnalyzer(cfg AnalyzerConfig) (*SignalAnalyzer, error) {
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &SignalAnalyzer{
		cfg:        cfg,
		noiseFloor: cfg.InitialNoiseFloorDB,
		recent:     make([]float64, 0, vadHistorySize),
	}, nil
}

// EnergyDB returns the RMS energy of the samples in dB relative to full
// scale. Empty or digitally silent input returns the -100 dB floor.
func EnergyDB(samples []int16) float64 {
	if len(samples) == 0 {
		return energyFloorDB
	}
	var sum float64
	for _, s := range samples {
		v := float64(s) / 32768.0
		sum += v * v
	}
	rms := math.Sqrt(sum / float64(len(samples)))
	if rms < 1e-6 {
		rms = 1e-6
	}
	db := 20 * math.Log10(rms)
	if db < energyFloorDB {
		return energyFloorDB
	}
	return db
}

// Update computes the per-channel energy of f (filling f.Energy), adapts the
// noise floor during silence, and returns the debounced active flag.
//
// A frame qualifies as active when the average channel energy exceeds the
// noise floor by ActivationDB and — for multi-channel frames — at least half
// the channels individually exceed the floor by LocalActiveDB. The debounced
// flag only flips after DebounceFrames consecutive frames agree.
func (a *SignalAnalyzer) Update(f *audio.Frame) bool {
	if f.Channels <= 0 || len(f.Samples) == 0 {
		a.observe(energyFloorDB, false)
		return a.active
	}

	if f.Energy == nil || len(f.Energy) != f.Channels {
		f.Energy = make([]float64, f.Channels)
	}

	var sum float64
	locallyActive := 0
	for ch := range f.Channels {
		e := EnergyDB(f.Channel(ch))
		f.Energy[ch] = e
		sum += e
		if e > a.noiseFloor+a.cfg.LocalActiveDB {
			locallyActive++
		}
	}
	avg := sum / float64(f.Channels)

	// Single-channel input skips the quorum rule.
	quorum := true
	if f.Channels > 1 {
		quorum = locallyActive*2 >= f.Channels
	}
	qualifies := avg > a.noiseFloor+a.cfg.ActivationDB && quorum

	a.observe(avg, qualifies)
	return a.active
}

// observe feeds one frame's average energy into the noise floor and debounce
// counters. Adaptation is gated on the detector being inactive so speech
// never drags the floor upwards.
func (a *SignalAnalyzer) observe(avg float64, qualifies bool) {
	if !a.active {
		alpha := a.cfg.NoiseFloorAlpha
		a.noiseFloor = alpha*a.noiseFloor + (1-alpha)*avg
	}

	if qualifies {
		a.activeStreak++
		a.silenceStreak = 0
		if !a.active && a.activeStreak >= a.cfg.DebounceFrames {
			a.active = true
		}
	} else {
		a.silenceStreak++
		a.activeStreak = 0
		if a.active && a.silenceStreak >= a.cfg.DebounceFrames {
			a.active = false
		}
	}

	if len(a.recent) == vadHistorySize {
		copy(a.recent, a.recent[1:])
		a.recent = a.recent[:vadHistorySize-1]
	}
	a.recent = append(a.recent, avg)
}

// Active returns the debounced voice-activity flag.
func (a *SignalAnalyzer) Active() bool {
	return a.active
}

// NoiseFloorDB returns the current noise-floor estimate.
func (a *SignalAnalyzer) NoiseFloorDB() float64 {
	return a.noiseFloor
}

// State returns a copy of the detector state for diagnostics.
func (a *SignalAnalyzer) State() VadState {
	recent := make([]float64, len(a.recent))
	copy(recent, a.recent)
	return VadState{
		NoiseFloorDB:   a.noiseFloor,
		Active:         a.active,
		ActiveStreak:   a.activeStreak,
		SilenceStreak:  a.silenceStreak,
		RecentEnergies: recent,
	}
}

// Reset restores the analyzer to its initial state.
func (a *SignalAnalyzer) Reset() {
	a.noiseFloor = a.cfg.InitialNoiseFloorDB
	a.active = false
	a.activeStreak = 0
	a.silenceStreak = 0
	a.recent = a.recent[:0]
}
