package discord

import (
	"sync"

	"github.com/earshot/earshot/pkg/audio"
)

// mixer accumulates decoded per-speaker PCM and drains it as a single summed
// stereo stream. Speakers align at packet granularity: whatever each speaker
// has pending overlaps the next drained chunk, which at Discord's 20 ms
// packet cadence keeps concurrent voices within one packet of each other.
type mixer struct {
	mu      sync.Mutex
	pending map[uint32][]int16
}

func newMixer() *mixer {
	return &mixer{pending: make(map[uint32][]int16)}
}

// push appends decoded interleaved samples for one speaker.
func (m *mixer) push(ssrc uint32, pcm []int16) {
	if len(pcm) == 0 {
		return
	}
	m.mu.Lock()
	m.pending[ssrc] = append(m.pending[ssrc], pcm...)
	m.mu.Unlock()
}

// drain mixes and removes up to n interleaved samples summed across all
// speakers with int16 clamping. A speaker with less pending audio than the
// drained chunk contributes silence for the shortfall. Returns nil when no
// speaker has anything pending.
func (m *mixer) drain(n int) []int16 {
	m.mu.Lock()
	defer m.mu.Unlock()

	longest := 0
	for _, buf := range m.pending {
		if len(buf) > longest {
			longest = len(buf)
		}
	}
	if longest == 0 {
		return nil
	}
	if longest > n {
		longest = n
	}

	sum := make([]int32, longest)
	for ssrc, buf := range m.pending {
		take := len(buf)
		if take > longest {
			take = longest
		}
		for i := 0; i < take; i++ {
			sum[i] += int32(buf[i])
		}
		if take == len(buf) {
			delete(m.pending, ssrc)
		} else {
			m.pending[ssrc] = buf[take:]
		}
	}

	out := make([]int16, longest)
	for i, v := range sum {
		out[i] = audio.ClampInt16(v)
	}
	return out
}
