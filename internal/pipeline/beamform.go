package pipeline

import (
	"fmt"
	"math"

	"github.com/earshot/earshot/pkg/audio"
)

// speedOfSound in metres per second, used to convert inter-mic path
// differences into sample delays.
const speedOfSound = 343.0

// MicPosition is a microphone's position in metres relative to the array
// origin.
type MicPosition struct {
	X float64
	Y float64
}

// Beamformer combines the channels of a multi-channel frame into a single
// steered mono signal using delay-and-sum: each channel is delayed by its
// geometric path difference towards the steering direction, weighted, and
// summed.
//
// Delays use the nearest-sample approximation — fractional-delay
// interpolation is not applied. At 16 kHz a sample is ~21 mm of path, well
// inside the tolerance of the simple uniform-weight model.
//
// Owned by the processing task; steering changes arrive through the pipeline
// command lock.
type Beamformer struct {
	sampleRate int
	mics       []MicPosition

	angle   float64 // degrees
	delays  []int   // per-channel delay in samples
	weights []float64
}

// NewBeamformer creates a beamformer for the given array geometry, steered
// at 0° with uniform weights.
func NewBeamformer(sampleRate int, mics []MicPosition) (*Beamformer, error) {
	if sampleRate <= 0 {
		return nil, fmt.Errorf("pipeline: beamformer sample rate %d: %w", sampleRate, ErrInvalidParam)
	}
	if len(mics) == 0 {
		return nil, fmt.Errorf("pipeline: beamformer needs at least one microphone: %w", ErrInvalidParam)
	}
	b := &Beamformer{
		sampleRate: sampleRate,
		mics:       append([]MicPosition(nil), mics...),
		delays:     make([]int, len(mics)),
		weights:    make([]float64, len(mics)),
	}
	b.recompute()
	return b, nil
}

// SetSteering points the beam at the given angle in degrees. Valid range is
// [0, 360] inclusive; out-of-range angles are rejected and the previous
// steering is kept.
func (b *Beamformer) SetSteering(degrees float64) error {
	if degrees < 0 || degrees > 360 || math.IsNaN(degrees) {
		return fmt.Errorf("pipeline: steering angle %v outside [0, 360]: %w", degrees, ErrInvalidParam)
	}
	b.angle = degrees
	b.recompute()
	return nil
}

// Steering returns the current steering angle in degrees.
func (b *Beamformer) Steering() float64 {
	return b.angle
}

// Weights returns a copy of the per-channel weights.
func (b *Beamformer) Weights() []float64 {
	return append([]float64(nil), b.weights...)
}

// Delays returns a copy of the per-channel delays in samples.
func (b *Beamformer) Delays() []int {
	return append([]int(nil), b.delays...)
}

// recompute derives per-channel delays and weights for the current angle.
// delay = (dx·cosθ + dy·sinθ) · fs / c, rounded to the nearest sample;
// weights are uniform 1/N.
func (b *Beamformer) recompute() {
	theta := b.angle * math.Pi / 180
	for i, m := range b.mics {
		path := m.X*math.Cos(theta) + m.Y*math.Sin(theta)
		b.delays[i] = int(math.Round(path * float64(b.sampleRate) / speedOfSound))
		b.weights[i] = 1 / float64(len(b.mics))
	}
}

// Mix applies the per-channel delay and weight to f and sums the channels
// into mono. Samples shifted in from outside the frame are treated as zero;
// the sum is clamped to the int16 range to prevent wraparound.
//
// The frame's channel count must match the array geometry; a mismatched
// frame yields silence of the right length.
func (b *Beamformer) Mix(f audio.Frame) []int16 {
	n := f.SamplesPerChannel()
	out := make([]int16, n)
	if f.Channels != len(b.mics) {
		return out
	}

	for i := range n {
		var sum float64
		for ch := range f.Channels {
			idx := i - b.delays[ch]
			if idx < 0 || idx >= n {
				continue
			}
			sum += b.weights[ch] * float64(f.Samples[idx*f.Channels+ch])
		}
		out[i] = audio.ClampInt16(int32(math.Round(sum)))
	}
	return out
}
