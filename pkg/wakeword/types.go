package wakeword

// Config holds the feature-extraction parameters a scorer was built against.
// The gate guarantees that feature matrices passed to [Scorer.Score] were
// extracted with exactly these parameters.
type Config struct {
	// SampleRate is the mono audio sample rate in Hz.
	SampleRate int

	// WindowMs is the duration of the sliding analysis window in milliseconds.
	WindowMs int

	// MelFilters is the number of mel filterbank bands used per feature frame.
	MelFilters int

	// Coefficients is the number of cepstral coefficients kept per feature frame.
	Coefficients int
}

// Model describes one registered wake word: a keyword identifier, the scorer
// that evaluates feature windows for it, and the confidence threshold at or
// above which a detection fires.
type Model struct {
	// Keyword is the identifier reported in detections (e.g., "hey_earshot").
	Keyword string

	// Threshold is the minimum confidence (0.0–1.0) for a detection.
	Threshold float64

	// Scorer evaluates feature windows for this keyword.
	Scorer Scorer
}
