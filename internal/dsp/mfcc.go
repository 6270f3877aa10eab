// Package dsp implements the feature-extraction stage of the wake-word gate:
// framing, Hamming windowing, FFT power spectra, mel filterbank projection
// and DCT-II cepstra (MFCCs).
//
// All filterbank and DCT coefficients are precomputed when an [Extractor] is
// created, so Extract performs no allocation-heavy setup on the per-frame
// audio path.
package dsp

import (
	"fmt"
	"math"
)

// melEnergyFloor prevents log(0) for digitally silent filter bands.
const melEnergyFloor = 1e-10

// Config holds the MFCC extraction parameters. All sizes are in samples at
// SampleRate unless stated otherwise.
type Config struct {
	// SampleRate of the mono input in Hz.
	SampleRate int

	// FrameSize is the analysis frame length (e.g., 400 = 25 ms at 16 kHz).
	FrameSize int

	// FrameStride is the hop between successive analysis frames
	// (e.g., 160 = 10 ms at 16 kHz).
	FrameStride int

	// FFTSize is the transform length. Must be a power of two ≥ FrameSize.
	FFTSize int

	// MelFilters is the number of triangular mel filterbank bands.
	MelFilters int

	// Coefficients is the number of cepstral coefficients kept per frame.
	// Must be ≤ MelFilters.
	Coefficients int
}

func (c Config) validate() error {
	switch {
	case c.SampleRate <= 0:
		return fmt.Errorf("dsp: sample rate must be positive, got %d", c.SampleRate)
	case c.FrameSize <= 0:
		return fmt.Errorf("dsp: frame size must be positive, got %d", c.FrameSize)
	case c.FrameStride <= 0:
		return fmt.Errorf("dsp: frame stride must be positive, got %d", c.FrameStride)
	case !isPowerOfTwo(c.FFTSize):
		return fmt.Errorf("dsp: fft size must be a power of two, got %d", c.FFTSize)
	case c.FFTSize < c.FrameSize:
		return fmt.Errorf("dsp: fft size %d is smaller than frame size %d", c.FFTSize, c.FrameSize)
	case c.MelFilters <= 0:
		return fmt.Errorf("dsp: mel filter count must be positive, got %d", c.MelFilters)
	case c.Coefficients <= 0 || c.Coefficients > c.MelFilters:
		return fmt.Errorf("dsp: coefficient count %d must be in 1..%d", c.Coefficients, c.MelFilters)
	}
	return nil
}

// Extractor converts mono int16 PCM into MFCC feature frames.
// Not safe for concurrent use; the pipeline drives one extractor from its
// single processing task.
type Extractor struct {
	cfg Config

	window     []float64   // Hamming coefficients, len FrameSize
	filterbank [][]float64 // MelFilters × (FFTSize/2+1) triangular weights
	dct        [][]float64 // Coefficients × MelFilters orthonormal DCT-II rows

	// scratch buffers reused across Extract calls.
	spectrum []complex128
	power    []float64
}

// NewExtractor precomputes the window, filterbank and DCT tables for cfg.
func NewExtractor(cfg Config) (*Extractor, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	e := &Extractor{
		cfg:      cfg,
		window:   hammingWindow(cfg.FrameSize),
		spectrum: make([]complex128, cfg.FFTSize),
		power:    make([]float64, cfg.FFTSize/2+1),
	}
	e.filterbank = melFilterbank(cfg.MelFilters, cfg.FFTSize, cfg.SampleRate)
	e.dct = dctMatrix(cfg.Coefficients, cfg.MelFilters)
	return e, nil
}

// NumFrames returns how many feature frames Extract produces for n input
// samples. Returns 0 when n is shorter than one analysis frame.
func (e *Extractor) NumFrames(n int) int {
	if n < e.cfg.FrameSize {
		return 0
	}
	return (n-e.cfg.FrameSize)/e.cfg.FrameStride + 1
}

// Extract computes MFCCs for the given mono samples and returns a time-major
// matrix: one row of cfg.Coefficients values per analysis frame, oldest
// first. Returns an error if the input is shorter than one analysis frame.
func (e *Extractor) Extract(samples []int16) ([][]float64, error) {
	frames := e.NumFrames(len(samples))
	if frames == 0 {
		return nil, fmt.Errorf("dsp: input of %d samples is shorter than one frame (%d)", len(samples), e.cfg.FrameSize)
	}

	out := make([][]float64, frames)
	for f := range frames {
		start := f * e.cfg.FrameStride
		out[f] = e.frameCepstra(samples[start : start+e.cfg.FrameSize])
	}
	return out, nil
}

// frameCepstra computes the cepstral coefficients for one analysis frame.
func (e *Extractor) frameCepstra(frame []int16) []float64 {
	// Normalize to [-1, 1], apply the window, zero-pad to FFTSize.
	for i := range e.spectrum {
		if i < len(frame) {
			e.spectrum[i] = complex(float64(frame[i])/32768.0*e.window[i], 0)
		} else {
			e.spectrum[i] = 0
		}
	}
	fft(e.spectrum)

	// One-sided power spectrum.
	for i := range e.power {
		re := real(e.spectrum[i])
		im := imag(e.spectrum[i])
		e.power[i] = (re*re + im*im) / float64(e.cfg.FFTSize)
	}

	// Log mel filterbank energies.
	logMel := make([]float64, e.cfg.MelFilters)
	for m, filter := range e.filterbank {
		var energy float64
		for i, w := range filter {
			if w != 0 {
				energy += w * e.power[i]
			}
		}
		if energy < melEnergyFloor {
			energy = melEnergyFloor
		}
		logMel[m] = math.Log(energy)
	}

	// DCT-II to cepstra.
	cep := make([]float64, e.cfg.Coefficients)
	for k, row := range e.dct {
		var sum float64
		for m, w := range row {
			sum += w * logMel[m]
		}
		cep[k] = sum
	}
	return cep
}

// hammingWindow returns the n-point Hamming window.
func hammingWindow(n int) []float64 {
	w := make([]float64, n)
	if n == 1 {
		w[0] = 1
		return w
	}
	for i := range w {
		w[i] = 0.54 - 0.46*math.Cos(2*math.Pi*float64(i)/float64(n-1))
	}
	return w
}

// hzToMel converts a frequency in Hz to the mel scale.
func hzToMel(hz float64) float64 {
	return 2595 * math.Log10(1+hz/700)
}

// melToHz converts a mel-scale value back to Hz.
func melToHz(mel float64) float64 {
	return 700 * (math.Pow(10, mel/2595) - 1)
}

// melFilterbank builds numFilters triangular filters spanning 0 Hz to the
// Nyquist frequency, spaced evenly on the mel scale. Each filter is a dense
// row of fftSize/2+1 weights (zero outside the triangle).
func melFilterbank(numFilters, fftSize, sampleRate int) [][]float64 {
	bins := fftSize/2 + 1
	melLow := hzToMel(0)
	melHigh := hzToMel(float64(sampleRate) / 2)

	// numFilters+2 edge points on the mel scale, converted to FFT bin indices.
	edges := make([]float64, numFilters+2)
	for i := range edges {
		mel := melLow + (melHigh-melLow)*float64(i)/float64(numFilters+1)
		edges[i] = melToHz(mel) * float64(fftSize) / float64(sampleRate)
	}

	fb := make([][]float64, numFilters)
	for m := range numFilters {
		row := make([]float64, bins)
		left, center, right := edges[m], edges[m+1], edges[m+2]
		for i := range bins {
			f := float64(i)
			switch {
			case f > left && f < center:
				row[i] = (f - left) / (center - left)
			case f >= center && f < right:
				row[i] = (right - f) / (right - center)
			}
		}
		fb[m] = row
	}
	return fb
}

// dctMatrix builds the first numCoeff rows of the orthonormal DCT-II matrix
// over numFilters inputs.
func dctMatrix(numCoeff, numFilters int) [][]float64 {
	d := make([][]float64, numCoeff)
	scale0 := math.Sqrt(1 / float64(numFilters))
	scale := math.Sqrt(2 / float64(numFilters))
	for k := range numCoeff {
		row := make([]float64, numFilters)
		for m := range numFilters {
			row[m] = math.Cos(math.Pi * float64(k) * (float64(m) + 0.5) / float64(numFilters))
			if k == 0 {
				row[m] *= scale0
			} else {
				row[m] *= scale
			}
		}
		d[k] = row
	}
	return d
}
