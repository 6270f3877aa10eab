package audio

import (
	"testing"
	"time"
)

func TestInt16BytesRoundTrip(t *testing.T) {
	t.Parallel()
	in := []int16{0, 1, -1, 32767, -32768, 12345}
	got := BytesToInt16s(Int16sToBytes(in))
	if len(got) != len(in) {
		t.Fatalf("length mismatch: got %d, want %d", len(got), len(in))
	}
	for i := range in {
		if got[i] != in[i] {
			t.Errorf("sample %d: got %d, want %d", i, got[i], in[i])
		}
	}
}

func TestBytesToInt16s_IgnoresTrailingOddByte(t *testing.T) {
	t.Parallel()
	got := BytesToInt16s([]byte{0x01, 0x00, 0xff})
	if len(got) != 1 || got[0] != 1 {
		t.Errorf("got %v, want [1]", got)
	}
}

func TestStereoToMono(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		in   []int16
		want []int16
	}{
		{"averages pairs", []int16{100, 200, -100, 100}, []int16{150, 0}},
		{"identical channels", []int16{500, 500}, []int16{500}},
		{"extremes do not overflow", []int16{32767, 32767, -32768, -32768}, []int16{32767, -32768}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := StereoToMono(tt.in)
			if len(got) != len(tt.want) {
				t.Fatalf("length: got %d, want %d", len(got), len(tt.want))
			}
			for i := range tt.want {
				if got[i] != tt.want[i] {
					t.Errorf("sample %d: got %d, want %d", i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestResampleMono_Downsample(t *testing.T) {
	t.Parallel()
	in := make([]int16, 480) // 10 ms @ 48 kHz
	for i := range in {
		in[i] = int16(i)
	}
	out := ResampleMono(in, 48000, 16000)
	if len(out) != 160 {
		t.Fatalf("expected 160 samples, got %d", len(out))
	}
}

func TestResampleMono_SameRateIsIdentity(t *testing.T) {
	t.Parallel()
	in := []int16{1, 2, 3}
	out := ResampleMono(in, 16000, 16000)
	if &out[0] != &in[0] {
		t.Error("same-rate resample should return the input unchanged")
	}
}

func TestResampleInterleaved_PreservesChannelSeparation(t *testing.T) {
	t.Parallel()
	// Left channel constant 1000, right channel constant -1000.
	in := make([]int16, 960)
	for i := 0; i < len(in); i += 2 {
		in[i] = 1000
		in[i+1] = -1000
	}
	out := ResampleInterleaved(in, 2, 48000, 16000)
	if len(out) != 320 {
		t.Fatalf("expected 320 samples, got %d", len(out))
	}
	for i := 0; i < len(out); i += 2 {
		if out[i] != 1000 || out[i+1] != -1000 {
			t.Fatalf("channel bleed at frame %d: L=%d R=%d", i/2, out[i], out[i+1])
		}
	}
}

func TestFrame_SamplesPerChannelAndDuration(t *testing.T) {
	t.Parallel()
	f := Frame{
		Samples:    make([]int16, 640),
		SampleRate: 16000,
		Channels:   2,
	}
	if got := f.SamplesPerChannel(); got != 320 {
		t.Errorf("SamplesPerChannel: got %d, want 320", got)
	}
	if got := f.Duration(); got != 20*time.Millisecond {
		t.Errorf("Duration: got %v, want 20ms", got)
	}
}

func TestFrame_Channel(t *testing.T) {
	t.Parallel()
	f := Frame{Samples: []int16{1, 2, 3, 4, 5, 6}, Channels: 2}
	left := f.Channel(0)
	right := f.Channel(1)
	wantL, wantR := []int16{1, 3, 5}, []int16{2, 4, 6}
	for i := range wantL {
		if left[i] != wantL[i] || right[i] != wantR[i] {
			t.Fatalf("deinterleave mismatch: L=%v R=%v", left, right)
		}
	}
	if f.Channel(2) != nil {
		t.Error("out-of-range channel should return nil")
	}
}
