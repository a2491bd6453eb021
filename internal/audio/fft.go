package audio

import (
	"fmt"
	"math"

	"github.com/argusdusty/gofft"
	"gonum.org/v1/gonum/dsp/window"

	"github.com/linuxmatters/jivecanvas/internal/config"
)

// Spectrum turns windows of time-domain samples into byte frequency data
// the way a Web Audio AnalyserNode does: Blackman window, FFT, magnitude
// normalised by size, exponential smoothing across calls, then a linear
// mapping of the decibel range onto 0..255.
type Spectrum struct {
	size      int
	coeffs    []float64
	buf       []complex128
	smoothed  []float64
	smoothing float64
	minDB     float64
	maxDB     float64
}

// NewSpectrum creates a spectrum processor for windows of size samples.
// size must be a power of two between 32 and 32768.
func NewSpectrum(size int) (*Spectrum, error) {
	if size < 32 || size > 32768 || size&(size-1) != 0 {
		return nil, fmt.Errorf("fft size %d must be a power of two between 32 and 32768", size)
	}
	if err := gofft.Prepare(size); err != nil {
		return nil, fmt.Errorf("failed to prepare FFT: %w", err)
	}

	coeffs := make([]float64, size)
	for i := range coeffs {
		coeffs[i] = 1
	}
	window.Blackman(coeffs)

	return &Spectrum{
		size:      size,
		coeffs:    coeffs,
		buf:       make([]complex128, size),
		smoothed:  make([]float64, size/2),
		smoothing: config.SmoothingTimeConstant,
		minDB:     config.MinDecibels,
		maxDB:     config.MaxDecibels,
	}, nil
}

// Size returns the window length.
func (s *Spectrum) Size() int {
	return s.size
}

// BinCount returns the number of frequency bins, half the window length.
func (s *Spectrum) BinCount() int {
	return s.size / 2
}

// Process analyses samples, which must hold Size() values, and writes
// BinCount() bytes into out.
func (s *Spectrum) Process(samples []float64, out []uint8) {
	for i := range s.buf {
		var v float64
		if i < len(samples) {
			v = samples[i] * s.coeffs[i]
		}
		s.buf[i] = complex(v, 0)
	}

	// Size is validated in NewSpectrum, so FFT cannot fail here
	_ = gofft.FFT(s.buf)

	scale := 255.0 / (s.maxDB - s.minDB)
	n := float64(s.size)
	for k := range s.smoothed {
		re, im := real(s.buf[k]), imag(s.buf[k])
		mag := math.Sqrt(re*re+im*im) / n
		s.smoothed[k] = s.smoothing*s.smoothed[k] + (1-s.smoothing)*mag

		db := 20 * math.Log10(s.smoothed[k])
		v := math.Floor(scale * (db - s.minDB))
		switch {
		case v < 0 || math.IsNaN(v):
			out[k] = 0
		case v > 255:
			out[k] = 255
		default:
			out[k] = uint8(v)
		}
	}
}

// Reset clears the smoothing history.
func (s *Spectrum) Reset() {
	for i := range s.smoothed {
		s.smoothed[i] = 0
	}
}
