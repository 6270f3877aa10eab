package pipeline

import (
	"errors"
	"testing"
	"time"

	"github.com/earshot/earshot/pkg/audio"
)

func historyFrame(channels int, fill int16) audio.Frame {
	samples := make([]int16, 160*channels)
	for i := range samples {
		samples[i] = fill
	}
	return audio.Frame{Samples: samples, SampleRate: 16000, Channels: channels}
}

func TestNewHistoryBuffer_Validation(t *testing.T) {
	t.Parallel()
	if _, err := NewHistoryBuffer(0, 2, time.Second); !errors.Is(err, ErrInvalidParam) {
		t.Errorf("zero rate: got %v, want ErrInvalidParam", err)
	}
	if _, err := NewHistoryBuffer(16000, 0, time.Second); !errors.Is(err, ErrInvalidParam) {
		t.Errorf("zero channels: got %v, want ErrInvalidParam", err)
	}
	if _, err := NewHistoryBuffer(16000, 2, 0); !errors.Is(err, ErrInvalidParam) {
		t.Errorf("zero duration: got %v, want ErrInvalidParam", err)
	}
}

func TestHistoryBuffer_ReadBeforeFull(t *testing.T) {
	t.Parallel()
	h, err := NewHistoryBuffer(16000, 1, time.Second)
	if err != nil {
		t.Fatalf("NewHistoryBuffer: %v", err)
	}

	// One 10 ms mono frame written; asking for a full second returns only it.
	if !h.Write(historyFrame(1, 7)) {
		t.Fatal("write failed")
	}
	win := h.ReadWindow(time.Second)
	if len(win) != 160 {
		t.Fatalf("window length: got %d, want 160", len(win))
	}
	for i, s := range win {
		if s != 7 {
			t.Fatalf("sample %d: got %d, want 7", i, s)
		}
	}
}

func TestHistoryBuffer_Wraparound(t *testing.T) {
	t.Parallel()
	// Ring holds 20 ms (320 mono samples); write 10 ms frames with
	// increasing fill values so the newest content is identifiable.
	h, err := NewHistoryBuffer(16000, 1, 20*time.Millisecond)
	if err != nil {
		t.Fatalf("NewHistoryBuffer: %v", err)
	}
	for fill := int16(1); fill <= 5; fill++ {
		if !h.Write(historyFrame(1, fill)) {
			t.Fatalf("write %d failed", fill)
		}
	}

	win := h.ReadWindow(20 * time.Millisecond)
	if len(win) != 320 {
		t.Fatalf("window length: got %d, want 320", len(win))
	}
	// Oldest half must be the 4-fill frame, newest half the 5-fill frame.
	for i := range 160 {
		if win[i] != 4 {
			t.Fatalf("old half sample %d: got %d, want 4", i, win[i])
		}
		if win[160+i] != 5 {
			t.Fatalf("new half sample %d: got %d, want 5", i, win[160+i])
		}
	}
}

func TestHistoryBuffer_PartialWindow(t *testing.T) {
	t.Parallel()
	h, err := NewHistoryBuffer(16000, 2, time.Second)
	if err != nil {
		t.Fatalf("NewHistoryBuffer: %v", err)
	}
	h.Write(historyFrame(2, 3))
	h.Write(historyFrame(2, 9))

	// 10 ms window = 160 frames × 2 channels; only the newest frame.
	win := h.ReadWindow(10 * time.Millisecond)
	if len(win) != 320 {
		t.Fatalf("window length: got %d, want 320", len(win))
	}
	for i, s := range win {
		if s != 9 {
			t.Fatalf("sample %d: got %d, want 9", i, s)
		}
	}
}

func TestHistoryBuffer_FormatMismatchDrops(t *testing.T) {
	t.Parallel()
	h, err := NewHistoryBuffer(16000, 2, time.Second)
	if err != nil {
		t.Fatalf("NewHistoryBuffer: %v", err)
	}
	if h.Write(historyFrame(1, 1)) {
		t.Error("mismatched channel count should be rejected")
	}
	if got := h.Drops(); got != 1 {
		t.Errorf("drops: got %d, want 1", got)
	}
}

func TestHistoryBuffer_WriteSkipsWhenContended(t *testing.T) {
	t.Parallel()
	h, err := NewHistoryBuffer(16000, 1, time.Second)
	if err != nil {
		t.Fatalf("NewHistoryBuffer: %v", err)
	}

	h.mu.Lock()
	done := make(chan bool, 1)
	go func() { done <- h.Write(historyFrame(1, 1)) }()
	select {
	case ok := <-done:
		if ok {
			t.Error("write under contention should be skipped")
		}
	case <-time.After(time.Second):
		t.Fatal("write blocked on contended lock")
	}
	h.mu.Unlock()

	if got := h.Drops(); got != 1 {
		t.Errorf("drops: got %d, want 1", got)
	}
}
