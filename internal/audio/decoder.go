package audio

import (
	"errors"
	"fmt"
	"io"
	"time"
)

// decodeChunkSize is how many mono samples DecodeAll pulls per read.
const decodeChunkSize = 4096

// Decoder defines the interface for all audio format decoders
type Decoder interface {
	// ReadChunk reads the next chunk of samples as mono float64
	// Returns io.EOF when the stream is exhausted
	ReadChunk(numSamples int) ([]float64, error)

	// SampleRate returns the audio sample rate in Hz
	SampleRate() int

	// NumChannels returns the number of channels in the source (before downmix)
	NumChannels() int

	// Close releases resources
	Close() error
}

// PCM is a fully decoded mono signal.
type PCM struct {
	Samples    []float64
	SampleRate int
}

// NewDecoder selects a decoder for the asset's declared type.
func NewDecoder(asset *Asset) (Decoder, error) {
	if err := asset.Validate(); err != nil {
		return nil, err
	}

	var (
		dec Decoder
		err error
	)
	switch asset.Type {
	case TypeWAV:
		dec, err = NewWAVDecoder(asset.Data)
	case TypeMPEG:
		dec, err = NewMP3Decoder(asset.Data)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrDecode, asset.Name, err)
	}
	return dec, nil
}

// DecodeAll reads dec to the end and returns the mono signal.
func DecodeAll(dec Decoder) (*PCM, error) {
	pcm := &PCM{SampleRate: dec.SampleRate()}
	if pcm.SampleRate <= 0 {
		return nil, fmt.Errorf("%w: invalid sample rate %d", ErrDecode, pcm.SampleRate)
	}

	for {
		chunk, err := dec.ReadChunk(decodeChunkSize)
		pcm.Samples = append(pcm.Samples, chunk...)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrDecode, err)
		}
	}

	if len(pcm.Samples) == 0 {
		return nil, fmt.Errorf("%w: no audio samples", ErrDecode)
	}
	return pcm, nil
}

// Duration returns the playback length of the signal.
func (p *PCM) Duration() time.Duration {
	return time.Duration(float64(len(p.Samples)) / float64(p.SampleRate) * float64(time.Second))
}
