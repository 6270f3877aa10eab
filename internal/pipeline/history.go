package pipeline

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/earshot/earshot/pkg/audio"
)

// HistoryBuffer retains the last few seconds of raw multi-channel audio in a
// circular buffer, independent of VAD or recording state, for lookback and
// pre-roll.
//
// Writes come from the real-time processing path and must never stall: the
// writer takes the lock with TryLock and skips the frame (counting a drop)
// when a reader holds it. Readers lock unconditionally and copy out a
// consistent window.
type HistoryBuffer struct {
	mu sync.Mutex

	data     []int16 // interleaved ring storage
	writePos int     // next write offset into data
	written  int64   // total interleaved samples ever written

	sampleRate int
	channels   int
	drops      atomic.Int64
}

// NewHistoryBuffer allocates a ring holding duration of channels-channel
// audio at sampleRate.
func NewHistoryBuffer(sampleRate, channels int, duration time.Duration) (*HistoryBuffer, error) {
	if sampleRate <= 0 || channels <= 0 {
		return nil, fmt.Errorf("pipeline: history format %d Hz × %d ch: %w", sampleRate, channels, ErrInvalidParam)
	}
	if duration <= 0 {
		return nil, fmt.Errorf("pipeline: history duration %v: %w", duration, ErrInvalidParam)
	}

	frames := int(int64(sampleRate) * int64(duration) / int64(time.Second))
	if frames <= 0 {
		return nil, fmt.Errorf("pipeline: history capacity for %v: %w", duration, ErrAllocation)
	}
	return &HistoryBuffer{
		data:       make([]int16, frames*channels),
		sampleRate: sampleRate,
		channels:   channels,
	}, nil
}

// Write copies the frame's samples into the ring. Returns false — and counts
// a drop — when the lock is contended or the frame format does not match.
// Never blocks.
func (h *HistoryBuffer) Write(f audio.Frame) bool {
	if f.Channels != h.channels || len(f.Samples) == 0 {
		h.drops.Add(1)
		return false
	}
	if !h.mu.TryLock() {
		h.drops.Add(1)
		return false
	}
	defer h.mu.Unlock()

	src := f.Samples
	// A frame larger than the whole ring keeps only its tail.
	if len(src) > len(h.data) {
		src = src[len(src)-len(h.data):]
	}

	n := copy(h.data[h.writePos:], src)
	if n < len(src) {
		copy(h.data, src[n:])
	}
	h.writePos = (h.writePos + len(src)) % len(h.data)
	h.written += int64(len(src))
	return true
}

// ReadWindow copies out the most recent duration of audio, oldest samples
// first, handling wraparound. A request longer than the retained audio
// returns everything available.
func (h *HistoryBuffer) ReadWindow(duration time.Duration) []int16 {
	if duration <= 0 {
		return nil
	}
	want := int(int64(h.sampleRate)*int64(duration)/int64(time.Second)) * h.channels

	h.mu.Lock()
	defer h.mu.Unlock()

	avail := int(min(h.written, int64(len(h.data))))
	if want > avail {
		want = avail
	}
	if want == 0 {
		return nil
	}

	out := make([]int16, want)
	start := (h.writePos - want + len(h.data)) % len(h.data)
	n := copy(out, h.data[start:])
	if n < want {
		copy(out[n:], h.data)
	}
	return out
}

// Drops returns the number of skipped writes.
func (h *HistoryBuffer) Drops() int64 {
	return h.drops.Load()
}
