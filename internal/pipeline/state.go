package pipeline

// State is the top-level pipeline state machine value. There is exactly one
// authoritative copy per [Pipeline], mutated only by the processing task and
// by explicit recording commands under the pipeline lock.
type State int

const (
	// StateIdle: no recording buffer held; promoted to LISTENING on the next
	// processed frame.
	StateIdle State = iota

	// StateListening: frames are analysed and the wake-word gate is armed.
	StateListening

	// StateWakeDetected: a wake word fired; waiting (bounded by the wake
	// timeout) for a recording to start.
	StateWakeDetected

	// StateRecording: the steered mono signal is appended to the recording
	// session while voice activity is present.
	StateRecording

	// StateProcessing: a finished recording is waiting to be drained.
	StateProcessing

	// StateError: an unrecoverable source or allocation failure occurred.
	// Only an explicit Reset leaves this state.
	StateError
)

// String returns the human-readable name of the state.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StateListening:
		return "LISTENING"
	case StateWakeDetected:
		return "WAKE_DETECTED"
	case StateRecording:
		return "RECORDING"
	case StateProcessing:
		return "PROCESSING"
	case StateError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}
