package pipeline

import "errors"

// Sentinel errors classifying every failure the pipeline can surface.
// Callers match with [errors.Is]; sites wrap with context via fmt.Errorf
// and %w.
var (
	// ErrInvalidParam indicates bad input to a command. No state was changed.
	ErrInvalidParam = errors.New("invalid parameter")

	// ErrBufferOverflow indicates the frame queue was full and the frame was
	// dropped. Expected under load; counted, not escalated.
	ErrBufferOverflow = errors.New("buffer overflow")

	// ErrAllocation indicates a buffer could not be reserved at init time.
	ErrAllocation = errors.New("allocation failed")

	// ErrHardware indicates a capture-source fault. The pipeline enters the
	// ERROR state and requires an explicit Reset.
	ErrHardware = errors.New("hardware fault")

	// ErrCapacityExceeded indicates the wake-word registry is full.
	ErrCapacityExceeded = errors.New("capacity exceeded")

	// ErrInference indicates a scorer failed on a feature window. Logged and
	// skipped per window, never fatal.
	ErrInference = errors.New("inference failed")
)
