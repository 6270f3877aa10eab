// Package wakeword defines the Scorer interface for wake-word detection
// backends.
//
// A scorer wraps a keyword-spotting model (an ONNX network, a DTW template
// matcher, or a deterministic stub) and surfaces it as a per-keyword scoring
// session. The pipeline's wake-word gate extracts MFCC feature windows from
// the steered mono signal and asks each registered scorer for a confidence;
// everything above the model's threshold fires a detection.
//
// Scoring is synchronous by design: Score returns immediately with a
// confidence, making it suitable for the low-latency per-frame pipeline
// stage. A Scorer is driven only by the processing task and need not be safe
// for concurrent use; an Engine must be, since independent scorers may be
// created from arbitrary goroutines.
package wakeword

// Scorer evaluates MFCC feature windows for a single keyword. The gate calls
// Score once per window stride, so implementations may keep internal state
// across calls (e.g., streaming model context).
type Scorer interface {
	// Score returns the confidence (0.0–1.0) that the keyword occurs in the
	// given feature window. features is a time-major matrix: one row of
	// cepstral coefficients per feature frame, oldest first.
	//
	// Score is called synchronously from the audio processing loop; it must
	// not block. An error marks the window unscorable — the gate logs it and
	// advances, it never stalls the stride.
	Score(features [][]float64) (float64, error)

	// Reset clears any accumulated scoring state without closing the scorer.
	// Called when the pipeline is reset after an error.
	Reset()

	// Close releases model resources. Calling Close more than once is safe
	// and returns nil.
	Close() error
}

// Engine is the factory for keyword scorers, implemented by each wake-word
// backend. Implementations must be safe for concurrent use.
type Engine interface {
	// NewScorer creates a scorer for the given keyword. Returns an error if
	// the configuration is invalid or model resources cannot be loaded.
	NewScorer(cfg Config, keyword string) (Scorer, error)
}
