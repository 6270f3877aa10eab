package pipeline

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/earshot/earshot/pkg/audio"
)

// FrameQueue is the bounded single-producer/single-consumer queue between the
// capture source and the processing task.
//
// The producer side never blocks: when the queue is full the newest frame is
// dropped and the overrun counter increments. The consumer side blocks with a
// bounded timeout. Frames are delivered strictly in arrival order.
type FrameQueue struct {
	ch       chan audio.Frame
	overruns atomic.Int64

	closeOnce sync.Once
	done      chan struct{}
}

// NewFrameQueue creates a queue holding at most capacity frames.
func NewFrameQueue(capacity int) (*FrameQueue, error) {
	if capacity <= 0 {
		return nil, fmt.Errorf("pipeline: queue capacity %d: %w", capacity, ErrInvalidParam)
	}
	return &FrameQueue{
		ch:   make(chan audio.Frame, capacity),
		done: make(chan struct{}),
	}, nil
}

// Push enqueues a frame without blocking. Returns false — and increments the
// overrun counter — when the queue is full or closed. Safe to call from the
// capture callback context.
func (q *FrameQueue) Push(f audio.Frame) bool {
	select {
	case <-q.done:
		q.overruns.Add(1)
		return false
	default:
	}
	select {
	case q.ch <- f:
		return true
	default:
		q.overruns.Add(1)
		return false
	}
}

// Pop dequeues the oldest frame, waiting at most timeout. The second return
// value is false when the timeout expired or the queue was closed.
func (q *FrameQueue) Pop(timeout time.Duration) (audio.Frame, bool) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case f := <-q.ch:
		return f, true
	case <-q.done:
		// Drain any frame that raced in before close.
		select {
		case f := <-q.ch:
			return f, true
		default:
			return audio.Frame{}, false
		}
	case <-timer.C:
		return audio.Frame{}, false
	}
}

// Len returns the number of frames currently queued.
func (q *FrameQueue) Len() int {
	return len(q.ch)
}

// Overruns returns the number of frames dropped because the queue was full.
func (q *FrameQueue) Overruns() int64 {
	return q.overruns.Load()
}

// Close marks the queue closed. Pending frames are dropped silently; later
// Push calls fail fast. Safe to call more than once.
func (q *FrameQueue) Close() {
	q.closeOnce.Do(func() { close(q.done) })
}
