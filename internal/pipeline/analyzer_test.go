package pipeline

import (
	"math"
	"testing"

	"github.com/earshot/earshot/pkg/audio"
)

// loudFrame returns a 2-channel frame whose channels both carry a loud tone.
func loudFrame(channels int) audio.Frame {
	n := 320
	samples := make([]int16, n*channels)
	for i := range n {
		v := int16(16000 * math.Sin(2*math.Pi*440*float64(i)/16000))
		for ch := range channels {
			samples[i*channels+ch] = v
		}
	}
	return audio.Frame{Samples: samples, SampleRate: 16000, Channels: channels}
}

func silentFrame(channels int) audio.Frame {
	return audio.Frame{Samples: make([]int16, 320*channels), SampleRate: 16000, Channels: channels}
}

func TestEnergyDB(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		in   []int16
		want float64
		tol  float64
	}{
		{"empty input hits floor", nil, -100, 0.001},
		{"digital silence hits floor", make([]int16, 320), -100, 0.001},
		{"full-scale square is 0 dB", fullScale(320), 0, 0.01},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := EnergyDB(tt.in)
			if math.Abs(got-tt.want) > tt.tol {
				t.Errorf("got %v dB, want %v dB", got, tt.want)
			}
		})
	}
}

func fullScale(n int) []int16 {
	s := make([]int16, n)
	for i := range s {
		if i%2 == 0 {
			s[i] = 32767
		} else {
			s[i] = -32767
		}
	}
	return s
}

func TestAnalyzer_SilenceStaysInactive(t *testing.T) {
	t.Parallel()
	a, err := NewSignalAnalyzer(AnalyzerConfig{})
	if err != nil {
		t.Fatalf("NewSignalAnalyzer: %v", err)
	}
	for range 500 {
		f := silentFrame(2)
		if a.Update(&f) {
			t.Fatal("VAD went active on uniform silence")
		}
	}
	if a.NoiseFloorDB() > -99 {
		t.Errorf("noise floor should converge to the -100 dB floor, got %v", a.NoiseFloorDB())
	}
}

func TestAnalyzer_DebounceExactlyN(t *testing.T) {
	t.Parallel()
	const n = 4
	a, err := NewSignalAnalyzer(AnalyzerConfig{DebounceFrames: n, InitialNoiseFloorDB: -60})
	if err != nil {
		t.Fatalf("NewSignalAnalyzer: %v", err)
	}

	// N-1 qualifying frames must not activate.
	for i := range n - 1 {
		f := loudFrame(2)
		if a.Update(&f) {
			t.Fatalf("active after %d qualifying frames, debounce is %d", i+1, n)
		}
	}
	// The Nth qualifying frame flips the flag.
	f := loudFrame(2)
	if !a.Update(&f) {
		t.Fatalf("not active after %d qualifying frames", n)
	}
}

func TestAnalyzer_NonQualifyingFrameResetsStreak(t *testing.T) {
	t.Parallel()
	const n = 3
	a, err := NewSignalAnalyzer(AnalyzerConfig{DebounceFrames: n, InitialNoiseFloorDB: -60})
	if err != nil {
		t.Fatalf("NewSignalAnalyzer: %v", err)
	}

	for range n - 1 {
		f := loudFrame(2)
		a.Update(&f)
	}
	f := silentFrame(2)
	a.Update(&f) // resets the streak
	for i := range n - 1 {
		lf := loudFrame(2)
		if a.Update(&lf) {
			t.Fatalf("active after %d frames following a reset", i+1)
		}
	}
}

func TestAnalyzer_SymmetricDeactivation(t *testing.T) {
	t.Parallel()
	const n = 3
	a, err := NewSignalAnalyzer(AnalyzerConfig{DebounceFrames: n, InitialNoiseFloorDB: -60})
	if err != nil {
		t.Fatalf("NewSignalAnalyzer: %v", err)
	}

	for range n {
		f := loudFrame(2)
		a.Update(&f)
	}
	if !a.Active() {
		t.Fatal("should be active")
	}
	for i := range n - 1 {
		f := silentFrame(2)
		if !a.Update(&f) {
			t.Fatalf("deactivated after only %d silent frames", i+1)
		}
	}
	f := silentFrame(2)
	if a.Update(&f) {
		t.Fatal("should be inactive after N consecutive silent frames")
	}
}

func TestAnalyzer_NoiseFloorAdaptationGatedOnInactive(t *testing.T) {
	t.Parallel()
	a, err := NewSignalAnalyzer(AnalyzerConfig{DebounceFrames: 1, InitialNoiseFloorDB: -60})
	if err != nil {
		t.Fatalf("NewSignalAnalyzer: %v", err)
	}

	// Activate with one loud frame (debounce 1). The activation frame itself
	// adapts (VAD was still inactive); later active frames must not.
	f := loudFrame(2)
	a.Update(&f)
	floorAfterActivation := a.NoiseFloorDB()

	for range 50 {
		lf := loudFrame(2)
		a.Update(&lf)
	}
	if a.NoiseFloorDB() != floorAfterActivation {
		t.Errorf("noise floor adapted during speech: %v -> %v", floorAfterActivation, a.NoiseFloorDB())
	}
}

func TestAnalyzer_SingleChannelSkipsQuorum(t *testing.T) {
	t.Parallel()
	a, err := NewSignalAnalyzer(AnalyzerConfig{DebounceFrames: 1, InitialNoiseFloorDB: -60})
	if err != nil {
		t.Fatalf("NewSignalAnalyzer: %v", err)
	}
	f := loudFrame(1)
	if !a.Update(&f) {
		t.Error("single loud mono frame with debounce 1 should activate")
	}
	if len(f.Energy) != 1 {
		t.Errorf("expected 1 energy entry, got %d", len(f.Energy))
	}
}

func TestAnalyzer_QuorumRule(t *testing.T) {
	t.Parallel()
	a, err := NewSignalAnalyzer(AnalyzerConfig{DebounceFrames: 1, InitialNoiseFloorDB: -30})
	if err != nil {
		t.Fatalf("NewSignalAnalyzer: %v", err)
	}

	// Four channels; only one loud. Average may clear the threshold but the
	// quorum (≥ 2 of 4) must fail.
	n := 320
	samples := make([]int16, n*4)
	for i := range n {
		samples[i*4] = int16(30000 * math.Sin(2*math.Pi*440*float64(i)/16000))
	}
	f := audio.Frame{Samples: samples, SampleRate: 16000, Channels: 4}
	if a.Update(&f) {
		t.Error("one loud channel of four should not satisfy the quorum")
	}
}

func TestAnalyzer_Reset(t *testing.T) {
	t.Parallel()
	a, err := NewSignalAnalyzer(AnalyzerConfig{DebounceFrames: 1, InitialNoiseFloorDB: -60})
	if err != nil {
		t.Fatalf("NewSignalAnalyzer: %v", err)
	}
	f := loudFrame(2)
	a.Update(&f)
	a.Reset()

	st := a.State()
	if st.Active || st.ActiveStreak != 0 || st.NoiseFloorDB != -60 || len(st.RecentEnergies) != 0 {
		t.Errorf("reset did not restore initial state: %+v", st)
	}
}
