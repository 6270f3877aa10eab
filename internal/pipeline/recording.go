package pipeline

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/earshot/earshot/pkg/audio"
)

// RecordingSession owns the bounded utterance capture buffer for one
// recording. It is created on the transition into RECORDING and destroyed
// when the caller drains it or a new session starts.
//
// Mono 16-bit samples are appended while the recording is live; the total
// never exceeds the capacity derived from the configured maximum duration.
// Owned by the pipeline; all access goes through the pipeline lock.
type RecordingSession struct {
	id       string
	buf      []byte
	capacity int
	start    time.Duration
	maxDur   time.Duration
}

// NewRecordingSession allocates a session able to hold maxDuration of mono
// audio at sampleRate. start is the pipeline timestamp the recording began.
func NewRecordingSession(sampleRate int, maxDuration, start time.Duration) (*RecordingSession, error) {
	if sampleRate <= 0 {
		return nil, fmt.Errorf("pipeline: recording sample rate %d: %w", sampleRate, ErrInvalidParam)
	}
	if maxDuration <= 0 {
		return nil, fmt.Errorf("pipeline: recording max duration %v: %w", maxDuration, ErrInvalidParam)
	}

	capacity := int(int64(sampleRate) * int64(maxDuration) / int64(time.Second) * 2)
	if capacity <= 0 {
		return nil, fmt.Errorf("pipeline: recording capacity for %v at %d Hz: %w", maxDuration, sampleRate, ErrAllocation)
	}
	return &RecordingSession{
		id:       uuid.NewString(),
		buf:      make([]byte, 0, capacity),
		capacity: capacity,
		start:    start,
		maxDur:   maxDuration,
	}, nil
}

// ID returns the session's correlation ID.
func (s *RecordingSession) ID() string { return s.id }

// Start returns the pipeline timestamp the recording began.
func (s *RecordingSession) Start() time.Duration { return s.start }

// MaxDuration returns the configured recording duration limit.
func (s *RecordingSession) MaxDuration() time.Duration { return s.maxDur }

// Len returns the number of buffered bytes.
func (s *RecordingSession) Len() int { return len(s.buf) }

// Append adds mono samples to the buffer. Returns false without writing
// anything when the new total would exceed capacity; the caller treats that
// as "stop recording now".
func (s *RecordingSession) Append(mono []int16) bool {
	if len(s.buf)+len(mono)*2 > s.capacity {
		return false
	}
	s.buf = append(s.buf, audio.Int16sToBytes(mono)...)
	return true
}

// Drain copies up to len(dst) bytes of the recording into dst and returns
// the count. The session is always left empty afterwards — a dst smaller
// than the recording truncates explicitly, it is not an error.
func (s *RecordingSession) Drain(dst []byte) int {
	n := copy(dst, s.buf)
	s.buf = s.buf[:0]
	return n
}
