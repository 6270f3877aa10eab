// Package audio defines the frame type and PCM sample helpers shared by the
// capture sources and the processing pipeline.
//
// A [Frame] is the atomic unit of audio transport: a fixed-duration block of
// interleaved multi-channel int16 samples stamped with its offset from
// pipeline start. Frames are created by a capture source, queued, processed
// once and discarded.
//
// This package lives under pkg/ because external code (third-party capture
// sources) is expected to produce [Frame] values.
package audio

import "time"

// Frame is a single fixed-duration block of multi-channel audio.
//
// Samples are interleaved little-endian-order int16 PCM: for a stereo frame
// the layout is L0 R0 L1 R1 …. A frame is immutable once handed to the
// pipeline, with one exception: the analyzer fills in Energy during the
// per-frame pass.
type Frame struct {
	// Samples holds the interleaved PCM samples for all channels.
	Samples []int16

	// SampleRate in Hz (e.g., 16000 for a mic array, 48000 for Opus capture).
	SampleRate int

	// Channels is the number of interleaved channels in Samples.
	Channels int

	// Timestamp marks when this frame was captured, relative to pipeline start.
	Timestamp time.Duration

	// Energy holds the per-channel energy in dBFS, filled in by the signal
	// analyzer. Nil until the frame has passed through the analyzer.
	Energy []float64
}

// SamplesPerChannel returns the number of samples each channel contributes
// to this frame. Returns 0 for a frame with no channels.
func (f Frame) SamplesPerChannel() int {
	if f.Channels <= 0 {
		return 0
	}
	return len(f.Samples) / f.Channels
}

// Duration returns the play time of the frame derived from its sample count
// and rate. Returns 0 when the sample rate is unset.
func (f Frame) Duration() time.Duration {
	if f.SampleRate <= 0 {
		return 0
	}
	return time.Duration(f.SamplesPerChannel()) * time.Second / time.Duration(f.SampleRate)
}

// Channel extracts the samples of a single channel from the interleaved data.
// Returns nil if ch is out of range.
func (f Frame) Channel(ch int) []int16 {
	if ch < 0 || ch >= f.Channels {
		return nil
	}
	n := f.SamplesPerChannel()
	out := make([]int16, n)
	for i := range n {
		out[i] = f.Samples[i*f.Channels+ch]
	}
	return out
}
