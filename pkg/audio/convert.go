package audio

// Int16sToBytes converts a slice of int16 PCM samples to little-endian bytes.
func Int16sToBytes(pcm []int16) []byte {
	b := make([]byte, len(pcm)*2)
	for i, s := range pcm {
		b[i*2] = byte(s)
		b[i*2+1] = byte(s >> 8)
	}
	return b
}

// BytesToInt16s converts little-endian bytes to a slice of int16 PCM samples.
// A trailing odd byte is ignored.
func BytesToInt16s(b []byte) []int16 {
	pcm := make([]int16, len(b)/2)
	for i := range pcm {
		pcm[i] = int16(b[i*2]) | int16(b[i*2+1])<<8
	}
	return pcm
}

// StereoToMono averages the L+R samples of each interleaved stereo pair.
// Uses int32 arithmetic to prevent overflow and clamps to int16 range.
func StereoToMono(pcm []int16) []int16 {
	frames := len(pcm) / 2
	out := make([]int16, frames)
	for i := range frames {
		avg := (int32(pcm[i*2]) + int32(pcm[i*2+1])) / 2
		out[i] = ClampInt16(avg)
	}
	return out
}

// ClampInt16 clamps v to the valid int16 sample range.
func ClampInt16(v int32) int16 {
	if v > 32767 {
		return 32767
	}
	if v < -32768 {
		return -32768
	}
	return int16(v)
}

// ResampleMono resamples mono int16 PCM from srcRate to dstRate using linear
// interpolation. If srcRate == dstRate the input is returned unchanged.
func ResampleMono(pcm []int16, srcRate, dstRate int) []int16 {
	if srcRate <= 0 || dstRate <= 0 || srcRate == dstRate || len(pcm) == 0 {
		return pcm
	}
	dstSamples := int(int64(len(pcm)) * int64(dstRate) / int64(srcRate))
	if dstSamples == 0 {
		return nil
	}

	out := make([]int16, dstSamples)
	ratio := float64(srcRate) / float64(dstRate)

	for i := range dstSamples {
		srcPos := float64(i) * ratio
		srcIdx := int(srcPos)
		frac := srcPos - float64(srcIdx)

		s0 := pcm[srcIdx]
		s1 := s0
		if srcIdx+1 < len(pcm) {
			s1 = pcm[srcIdx+1]
		}
		out[i] = int16(float64(s0)*(1-frac) + float64(s1)*frac)
	}
	return out
}

// ResampleInterleaved resamples interleaved multi-channel int16 PCM from
// srcRate to dstRate using per-channel linear interpolation. If srcRate ==
// dstRate the input is returned unchanged.
func ResampleInterleaved(pcm []int16, channels, srcRate, dstRate int) []int16 {
	if channels <= 1 {
		return ResampleMono(pcm, srcRate, dstRate)
	}
	if srcRate <= 0 || dstRate <= 0 || srcRate == dstRate || len(pcm) < channels {
		return pcm
	}
	srcFrames := len(pcm) / channels
	dstFrames := int(int64(srcFrames) * int64(dstRate) / int64(srcRate))
	if dstFrames == 0 {
		return nil
	}

	out := make([]int16, dstFrames*channels)
	ratio := float64(srcRate) / float64(dstRate)

	for i := range dstFrames {
		srcPos := float64(i) * ratio
		srcIdx := int(srcPos)
		frac := srcPos - float64(srcIdx)

		for ch := range channels {
			s0 := pcm[srcIdx*channels+ch]
			s1 := s0
			if srcIdx+1 < srcFrames {
				s1 = pcm[(srcIdx+1)*channels+ch]
			}
			out[i*channels+ch] = int16(float64(s0)*(1-frac) + float64(s1)*frac)
		}
	}
	return out
}
