package pipeline

import (
	"sync"
	"time"
)

// cpuLoadAlpha smooths the per-frame CPU-load estimate.
const cpuLoadAlpha = 0.9

// Stats is a point-in-time snapshot of the pipeline counters and gauges.
type Stats struct {
	// State is the pipeline state at snapshot time.
	State State

	// FramesProcessed counts frames the processing task has consumed.
	FramesProcessed int64

	// QueueOverruns counts frames dropped because the queue was full.
	QueueOverruns int64

	// HistoryDrops counts skipped history writes.
	HistoryDrops int64

	// Detections counts wake-word detections fired.
	Detections int64

	// ScorerErrors counts windows skipped due to scorer failures.
	ScorerErrors int64

	// RecordingsStarted and RecordingsCompleted count recording sessions.
	RecordingsStarted   int64
	RecordingsCompleted int64

	// NoiseFloorDB is the current adaptive noise-floor estimate.
	NoiseFloorDB float64

	// VADActive is the debounced voice-activity flag.
	VADActive bool

	// CPULoad estimates the fraction of real time spent processing frames
	// (an EMA of processing time over frame duration).
	CPULoad float64

	// RecordingBytes is the size of the pending recording, if any.
	RecordingBytes int
}

// StatsRegistry collects the pipeline counters. The processing task is the
// only writer; external callers read a snapshot copy under lock.
type StatsRegistry struct {
	mu sync.Mutex

	frames              int64
	detections          int64
	recordingsStarted   int64
	recordingsCompleted int64

	noiseFloorDB float64
	vadActive    bool
	cpuLoad      float64
}

// NewStatsRegistry creates an empty registry.
func NewStatsRegistry() *StatsRegistry {
	return &StatsRegistry{}
}

// IncrFrames counts a processed frame.
func (r *StatsRegistry) IncrFrames() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.frames++
}

// IncrDetections counts a wake-word detection.
func (r *StatsRegistry) IncrDetections() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.detections++
}

// IncrRecordingsStarted counts a recording session start.
func (r *StatsRegistry) IncrRecordingsStarted() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.recordingsStarted++
}

// IncrRecordingsCompleted counts a recording session reaching PROCESSING.
func (r *StatsRegistry) IncrRecordingsCompleted() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.recordingsCompleted++
}

// SetSignal records the per-frame analyzer outputs.
func (r *StatsRegistry) SetSignal(noiseFloorDB float64, vadActive bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.noiseFloorDB = noiseFloorDB
	r.vadActive = vadActive
}

// RecordFrameTime feeds one frame's processing time into the CPU-load EMA.
// frameDur is the frame's real-time duration.
func (r *StatsRegistry) RecordFrameTime(processing, frameDur time.Duration) {
	if frameDur <= 0 {
		return
	}
	load := float64(processing) / float64(frameDur)
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cpuLoad = cpuLoadAlpha*r.cpuLoad + (1-cpuLoadAlpha)*load
}

// snapshot returns the registry-held values. The pipeline merges in the
// component-owned counters (queue overruns, history drops, scorer errors)
// when serving Stats.
func (r *StatsRegistry) snapshot() Stats {
	r.mu.Lock()
	defer r.mu.Unlock()
	return Stats{
		FramesProcessed:     r.frames,
		Detections:          r.detections,
		RecordingsStarted:   r.recordingsStarted,
		RecordingsCompleted: r.recordingsCompleted,
		NoiseFloorDB:        r.noiseFloorDB,
		VADActive:           r.vadActive,
		CPULoad:             r.cpuLoad,
	}
}
