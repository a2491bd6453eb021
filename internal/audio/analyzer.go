package audio

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// ErrClosed is returned by Load after the analyzer has been closed.
var ErrClosed = errors.New("analyzer closed")

// Snapshot is the byte magnitude of each frequency bin at one instant.
type Snapshot []uint8

// Average returns the mean bin value.
func (s Snapshot) Average() float64 {
	if len(s) == 0 {
		return 0
	}
	var sum int
	for _, v := range s {
		sum += int(v)
	}
	return float64(sum) / float64(len(s))
}

// AnalyzerOption configures an Analyzer.
type AnalyzerOption func(*Analyzer)

// WithClock replaces time.Now as the playback clock.
func WithClock(now func() time.Time) AnalyzerOption {
	return func(a *Analyzer) { a.now = now }
}

// Analyzer decodes one audio asset, plays it against a wall clock and
// reports the live spectrum at the playhead.
type Analyzer struct {
	now func() time.Time

	mu       sync.Mutex
	spectrum *Spectrum
	frame    []float64
	pcm      *PCM
	started  time.Time
	closed   bool
}

// NewAnalyzer creates an analyzer with a window of fftSize samples.
// The bin count is fftSize/2 for the analyzer's lifetime.
func NewAnalyzer(fftSize int, opts ...AnalyzerOption) (*Analyzer, error) {
	spectrum, err := NewSpectrum(fftSize)
	if err != nil {
		return nil, err
	}

	a := &Analyzer{
		now:      time.Now,
		spectrum: spectrum,
		frame:    make([]float64, fftSize),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a, nil
}

// Load decodes asset and starts playback from the beginning. Decode errors
// wrap ErrDecode and leave the analyzer silent.
func (a *Analyzer) Load(ctx context.Context, asset *Asset) error {
	a.mu.Lock()
	closed := a.closed
	a.mu.Unlock()
	if closed {
		return ErrClosed
	}

	dec, err := NewDecoder(asset)
	if err != nil {
		return err
	}
	defer dec.Close()

	pcm, err := DecodeAll(dec)
	if err != nil {
		return fmt.Errorf("%s: %w", asset.Name, err)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return ErrClosed
	}
	a.pcm = pcm
	a.started = a.now()
	a.spectrum.Reset()
	return nil
}

// Ready reports whether decoded audio is playing.
func (a *Analyzer) Ready() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.pcm != nil && !a.closed
}

// BinCount returns the snapshot length.
func (a *Analyzer) BinCount() int {
	return a.spectrum.BinCount()
}

// Duration returns the decoded length, or zero before decode completes.
func (a *Analyzer) Duration() time.Duration {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.pcm == nil {
		return 0
	}
	return a.pcm.Duration()
}

// Position returns the playhead, clamped to the decoded length.
func (a *Analyzer) Position() time.Duration {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.pcm == nil {
		return 0
	}
	return min(a.now().Sub(a.started), a.pcm.Duration())
}

// Snapshot returns the spectrum at the current playhead. Before audio is
// ready, or after Close, it returns a zero-filled snapshot.
func (a *Analyzer) Snapshot() Snapshot {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.pcm == nil {
		return make(Snapshot, a.spectrum.BinCount())
	}
	return a.snapshotLocked(a.now().Sub(a.started))
}

// SnapshotAt returns the spectrum of the window ending at t. Smoothing
// state carries over between calls, so callers should advance t in order.
func (a *Analyzer) SnapshotAt(t time.Duration) Snapshot {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.pcm == nil {
		return make(Snapshot, a.spectrum.BinCount())
	}
	return a.snapshotLocked(t)
}

func (a *Analyzer) snapshotLocked(t time.Duration) Snapshot {
	end := int(t.Seconds() * float64(a.pcm.SampleRate))
	start := end - len(a.frame)
	for i := range a.frame {
		idx := start + i
		if idx < 0 || idx >= len(a.pcm.Samples) {
			a.frame[i] = 0
		} else {
			a.frame[i] = a.pcm.Samples[idx]
		}
	}

	out := make(Snapshot, a.spectrum.BinCount())
	a.spectrum.Process(a.frame, out)
	return out
}

// Peaks summarises the decoded signal as n absolute peak values in 0..1,
// the envelope a waveform view draws. It returns nil before decode.
func (a *Analyzer) Peaks(n int) []float64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.pcm == nil || n <= 0 {
		return nil
	}

	peaks := make([]float64, n)
	per := max(len(a.pcm.Samples)/n, 1)
	for i := range peaks {
		start := i * per
		if start >= len(a.pcm.Samples) {
			break
		}
		end := min(start+per, len(a.pcm.Samples))
		for _, s := range a.pcm.Samples[start:end] {
			if s < 0 {
				s = -s
			}
			if s > peaks[i] {
				peaks[i] = min(s, 1)
			}
		}
	}
	return peaks
}

// Close stops playback and drops decoded audio. It is safe to call more than once.
func (a *Analyzer) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.closed = true
	a.pcm = nil
	a.spectrum.Reset()
	return nil
}
