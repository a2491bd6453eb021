package audio

import (
	"bytes"
	"fmt"
	"io"

	"github.com/hajimehoshi/go-mp3"
)

// MP3Decoder implements Decoder for in-memory MP3 data
type MP3Decoder struct {
	decoder    *mp3.Decoder
	sampleRate int
	buf        []byte
}

// NewMP3Decoder creates a new MP3 decoder over data
func NewMP3Decoder(data []byte) (*MP3Decoder, error) {
	decoder, err := mp3.NewDecoder(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to create MP3 decoder: %w", err)
	}

	return &MP3Decoder{
		decoder:    decoder,
		sampleRate: decoder.SampleRate(),
	}, nil
}

// ReadChunk reads up to numSamples mono samples
func (d *MP3Decoder) ReadChunk(numSamples int) ([]float64, error) {
	// go-mp3 always outputs interleaved 16-bit little-endian stereo, 4 bytes per frame
	size := numSamples * 4
	if cap(d.buf) < size {
		d.buf = make([]byte, size)
	}
	buf := d.buf[:size]

	n, err := io.ReadFull(d.decoder, buf)
	if err != nil && err != io.EOF && err != io.ErrUnexpectedEOF {
		return nil, fmt.Errorf("failed to read MP3 data: %w", err)
	}
	if n < 4 {
		return nil, io.EOF
	}

	frames := n / 4
	samples := make([]float64, frames)

	for i := 0; i < frames; i++ {
		left := float64(int16(uint16(buf[i*4])|uint16(buf[i*4+1])<<8)) / 32768.0
		right := float64(int16(uint16(buf[i*4+2])|uint16(buf[i*4+3])<<8)) / 32768.0
		samples[i] = (left + right) / 2.0
	}

	return samples, nil
}

// SampleRate returns the sample rate
func (d *MP3Decoder) SampleRate() int {
	return d.sampleRate
}

// NumChannels returns 2; go-mp3 always decodes to stereo
func (d *MP3Decoder) NumChannels() int {
	return 2
}

// Close is a no-op; the decoder reads from memory.
func (d *MP3Decoder) Close() error {
	return nil
}
