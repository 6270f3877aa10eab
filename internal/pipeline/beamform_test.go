package pipeline

import (
	"errors"
	"math"
	"testing"

	"github.com/earshot/earshot/pkg/audio"
)

// twoMicArray is a simple broadside pair 10 cm apart on the x axis.
func twoMicArray() []MicPosition {
	return []MicPosition{{X: -0.05}, {X: 0.05}}
}

func TestNewBeamformer_Validation(t *testing.T) {
	t.Parallel()
	if _, err := NewBeamformer(0, twoMicArray()); !errors.Is(err, ErrInvalidParam) {
		t.Errorf("zero sample rate: got %v, want ErrInvalidParam", err)
	}
	if _, err := NewBeamformer(16000, nil); !errors.Is(err, ErrInvalidParam) {
		t.Errorf("no mics: got %v, want ErrInvalidParam", err)
	}
}

func TestSetSteering_RejectsOutOfRange(t *testing.T) {
	t.Parallel()
	b, err := NewBeamformer(16000, twoMicArray())
	if err != nil {
		t.Fatalf("NewBeamformer: %v", err)
	}
	if err := b.SetSteering(90); err != nil {
		t.Fatalf("SetSteering(90): %v", err)
	}

	for _, bad := range []float64{-1, 360.5, 400, math.NaN()} {
		if err := b.SetSteering(bad); !errors.Is(err, ErrInvalidParam) {
			t.Errorf("SetSteering(%v): got %v, want ErrInvalidParam", bad, err)
		}
		if b.Steering() != 90 {
			t.Errorf("steering changed to %v after rejected input %v", b.Steering(), bad)
		}
	}
}

func TestSetSteering_BoundaryAnglesAccepted(t *testing.T) {
	t.Parallel()
	b, err := NewBeamformer(16000, twoMicArray())
	if err != nil {
		t.Fatalf("NewBeamformer: %v", err)
	}
	for _, deg := range []float64{0, 360} {
		if err := b.SetSteering(deg); err != nil {
			t.Errorf("SetSteering(%v): %v", deg, err)
		}
	}
}

func TestRecompute_UniformWeightsSumToOne(t *testing.T) {
	t.Parallel()
	mics := []MicPosition{{X: -0.1}, {X: 0}, {X: 0.1}, {Y: 0.1}}
	b, err := NewBeamformer(16000, mics)
	if err != nil {
		t.Fatalf("NewBeamformer: %v", err)
	}
	var sum float64
	for _, w := range b.Weights() {
		sum += w
	}
	if math.Abs(sum-1) > 1e-12 {
		t.Errorf("weights sum to %v, want 1", sum)
	}
}

func TestRecompute_DelaysFollowGeometry(t *testing.T) {
	t.Parallel()
	// Mic 1 is 0.5 m along +x; steering 0° means the path term is dx·cos(0).
	// delay = 0.5 · 48000 / 343 ≈ 70 samples.
	b, err := NewBeamformer(48000, []MicPosition{{X: 0}, {X: 0.5}})
	if err != nil {
		t.Fatalf("NewBeamformer: %v", err)
	}
	d := b.Delays()
	if d[0] != 0 {
		t.Errorf("origin mic delay: got %d, want 0", d[0])
	}
	if want := int(math.Round(0.5 * 48000 / speedOfSound)); d[1] != want {
		t.Errorf("offset mic delay: got %d, want %d", d[1], want)
	}

	// At 90° the same mic has no path difference (cos term vanishes).
	if err := b.SetSteering(90); err != nil {
		t.Fatalf("SetSteering(90): %v", err)
	}
	if d := b.Delays(); d[1] != 0 {
		t.Errorf("broadside delay: got %d, want 0", d[1])
	}
}

func TestMix_DominantChannelEnergy(t *testing.T) {
	t.Parallel()
	// Co-located mics: zero delay for any steering, pure weighted sum.
	b, err := NewBeamformer(16000, []MicPosition{{}, {}})
	if err != nil {
		t.Fatalf("NewBeamformer: %v", err)
	}

	n := 320
	samples := make([]int16, n*2)
	for i := range n {
		samples[i*2] = int16(20000 * math.Sin(2*math.Pi*500*float64(i)/16000))
		// channel 1 stays silent
	}
	f := audio.Frame{Samples: samples, SampleRate: 16000, Channels: 2}

	mono := b.Mix(f)
	// Mono output should be the dominant channel scaled by its 0.5 weight:
	// energy drops by 20·log10(0.5) ≈ -6.02 dB.
	chDB := EnergyDB(f.Channel(0))
	monoDB := EnergyDB(mono)
	if math.Abs(monoDB-(chDB-6.02)) > 0.1 {
		t.Errorf("mono energy %v dB, want %v dB (channel %v dB - 6.02)", monoDB, chDB-6.02, chDB)
	}
}

func TestMix_ClampsToInt16(t *testing.T) {
	t.Parallel()
	b, err := NewBeamformer(16000, []MicPosition{{}})
	if err != nil {
		t.Fatalf("NewBeamformer: %v", err)
	}
	f := audio.Frame{Samples: []int16{32767, 32767, -32768}, SampleRate: 16000, Channels: 1}
	mono := b.Mix(f)
	for i, s := range mono {
		if s > 32767 || s < -32768 {
			t.Errorf("sample %d out of range: %d", i, s)
		}
	}
	// Single mic, weight 1: output mirrors input.
	if mono[0] != 32767 || mono[2] != -32768 {
		t.Errorf("unexpected mix output %v", mono)
	}
}

func TestMix_ChannelCountMismatchYieldsSilence(t *testing.T) {
	t.Parallel()
	b, err := NewBeamformer(16000, twoMicArray())
	if err != nil {
		t.Fatalf("NewBeamformer: %v", err)
	}
	f := audio.Frame{Samples: []int16{1000, 1000, 1000}, SampleRate: 16000, Channels: 3}
	mono := b.Mix(f)
	if len(mono) != 1 {
		t.Fatalf("expected 1 mono sample, got %d", len(mono))
	}
	if mono[0] != 0 {
		t.Errorf("expected silence for mismatched frame, got %d", mono[0])
	}
}
