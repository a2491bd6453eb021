package audio

import (
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// sineWAV encodes a 16-bit sine wave and returns the file bytes.
func sineWAV(t testing.TB, sampleRate, channels int, freq, amplitude float64, seconds float64) []byte {
	t.Helper()

	path := filepath.Join(t.TempDir(), "sine.wav")
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("failed to create wav: %v", err)
	}

	enc := wav.NewEncoder(f, sampleRate, 16, channels, 1)
	frames := int(float64(sampleRate) * seconds)
	buf := &goaudio.IntBuffer{
		Format:         &goaudio.Format{NumChannels: channels, SampleRate: sampleRate},
		SourceBitDepth: 16,
		Data:           make([]int, frames*channels),
	}
	for i := 0; i < frames; i++ {
		v := int(amplitude * 32767 * math.Sin(2*math.Pi*freq*float64(i)/float64(sampleRate)))
		for ch := 0; ch < channels; ch++ {
			buf.Data[i*channels+ch] = v
		}
	}

	if err := enc.Write(buf); err != nil {
		t.Fatalf("failed to write wav: %v", err)
	}
	if err := enc.Close(); err != nil {
		t.Fatalf("failed to finalise wav: %v", err)
	}
	if err := f.Close(); err != nil {
		t.Fatalf("failed to close wav: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read wav: %v", err)
	}
	return data
}

// fakeClock is a manually advanced playback clock.
type fakeClock struct {
	t0  time.Time
	off time.Duration
}

func (c *fakeClock) Now() time.Time { return c.t0.Add(c.off) }
