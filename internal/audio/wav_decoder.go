package audio

import (
	"bytes"
	"fmt"
	"io"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// WAVDecoder implements Decoder for in-memory WAV data
type WAVDecoder struct {
	decoder    *wav.Decoder
	sampleRate int
	bitDepth   int
	numChans   int
	buf        *audio.IntBuffer
}

// NewWAVDecoder parses the WAV header in data and positions at the PCM chunk
func NewWAVDecoder(data []byte) (*WAVDecoder, error) {
	decoder := wav.NewDecoder(bytes.NewReader(data))
	if !decoder.IsValidFile() {
		return nil, fmt.Errorf("invalid WAV data")
	}

	if err := decoder.FwdToPCM(); err != nil {
		return nil, fmt.Errorf("failed to seek to PCM data: %w", err)
	}

	switch decoder.BitDepth {
	case 8, 16, 24, 32:
	default:
		return nil, fmt.Errorf("unsupported WAV bit depth %d", decoder.BitDepth)
	}
	if decoder.NumChans == 0 {
		return nil, fmt.Errorf("WAV data declares no channels")
	}

	return &WAVDecoder{
		decoder:    decoder,
		sampleRate: int(decoder.SampleRate),
		bitDepth:   int(decoder.BitDepth),
		numChans:   int(decoder.NumChans),
	}, nil
}

// ReadChunk reads up to numSamples mono samples, averaging channels
func (d *WAVDecoder) ReadChunk(numSamples int) ([]float64, error) {
	bufSize := numSamples * d.numChans
	if d.buf == nil || cap(d.buf.Data) < bufSize {
		d.buf = &audio.IntBuffer{
			Data: make([]int, bufSize),
			Format: &audio.Format{
				NumChannels: d.numChans,
				SampleRate:  d.sampleRate,
			},
		}
	}
	d.buf.Data = d.buf.Data[:bufSize]

	n, err := d.decoder.PCMBuffer(d.buf)
	if err != nil && err != io.EOF {
		return nil, fmt.Errorf("failed to read PCM buffer: %w", err)
	}
	if n == 0 {
		return nil, io.EOF
	}

	maxVal := float64(audio.IntMaxSignedValue(d.bitDepth))
	frames := n / d.numChans
	samples := make([]float64, frames)

	for i := 0; i < frames; i++ {
		var sum float64
		for ch := 0; ch < d.numChans; ch++ {
			sum += float64(d.buf.Data[i*d.numChans+ch]) / maxVal
		}
		samples[i] = sum / float64(d.numChans)
	}

	return samples, nil
}

// SampleRate returns the sample rate
func (d *WAVDecoder) SampleRate() int {
	return d.sampleRate
}

// NumChannels returns the number of audio channels
func (d *WAVDecoder) NumChannels() int {
	return d.numChans
}

// Close is a no-op; the decoder reads from memory.
func (d *WAVDecoder) Close() error {
	return nil
}
