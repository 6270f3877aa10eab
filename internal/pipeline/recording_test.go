package pipeline

import (
	"errors"
	"testing"
	"time"

	"github.com/earshot/earshot/pkg/audio"
)

func TestNewRecordingSession_Validation(t *testing.T) {
	t.Parallel()
	if _, err := NewRecordingSession(0, time.Second, 0); !errors.Is(err, ErrInvalidParam) {
		t.Errorf("zero sample rate: got %v, want ErrInvalidParam", err)
	}
	if _, err := NewRecordingSession(16000, 0, 0); !errors.Is(err, ErrInvalidParam) {
		t.Errorf("zero duration: got %v, want ErrInvalidParam", err)
	}
}

func TestRecordingSession_CapacityFromDuration(t *testing.T) {
	t.Parallel()
	// 1 s of 16 kHz mono int16 = 32000 bytes.
	s, err := NewRecordingSession(16000, time.Second, 0)
	if err != nil {
		t.Fatalf("NewRecordingSession: %v", err)
	}
	if s.capacity != 32000 {
		t.Errorf("capacity: got %d, want 32000", s.capacity)
	}
	if s.ID() == "" {
		t.Error("session should carry a correlation ID")
	}
}

func TestRecordingSession_AppendBeyondCapacity(t *testing.T) {
	t.Parallel()
	// 10 ms capacity = 160 samples = 320 bytes.
	s, err := NewRecordingSession(16000, 10*time.Millisecond, 0)
	if err != nil {
		t.Fatalf("NewRecordingSession: %v", err)
	}

	if !s.Append(make([]int16, 150)) {
		t.Fatal("append within capacity should succeed")
	}
	before := s.Len()

	// 11 more samples would exceed the 160-sample capacity: no partial write.
	if s.Append(make([]int16, 11)) {
		t.Error("append beyond capacity should return false")
	}
	if s.Len() != before {
		t.Errorf("length changed on rejected append: %d -> %d", before, s.Len())
	}

	// Exactly filling the remaining 10 samples is fine.
	if !s.Append(make([]int16, 10)) {
		t.Error("append exactly to capacity should succeed")
	}
}

func TestRecordingSession_DrainTruncatesAndClears(t *testing.T) {
	t.Parallel()
	s, err := NewRecordingSession(16000, time.Second, 0)
	if err != nil {
		t.Fatalf("NewRecordingSession: %v", err)
	}
	samples := []int16{1, 2, 3, 4, 5}
	s.Append(samples)

	small := make([]byte, 4)
	if n := s.Drain(small); n != 4 {
		t.Errorf("truncated drain: got %d bytes, want 4", n)
	}
	if s.Len() != 0 {
		t.Errorf("session not cleared after drain: %d bytes left", s.Len())
	}
	if got := audio.BytesToInt16s(small); got[0] != 1 || got[1] != 2 {
		t.Errorf("drained wrong content: %v", got)
	}

	// Draining an empty session returns 0.
	if n := s.Drain(make([]byte, 16)); n != 0 {
		t.Errorf("drain of empty session: got %d, want 0", n)
	}
}

func TestRecordingSession_DrainFullRecording(t *testing.T) {
	t.Parallel()
	s, err := NewRecordingSession(16000, time.Second, 500*time.Millisecond)
	if err != nil {
		t.Fatalf("NewRecordingSession: %v", err)
	}
	if got := s.Start(); got != 500*time.Millisecond {
		t.Errorf("start: got %v, want 500ms", got)
	}

	s.Append([]int16{10, -10, 20})
	dst := make([]byte, 1024)
	if n := s.Drain(dst); n != 6 {
		t.Errorf("drain: got %d bytes, want 6", n)
	}
}
