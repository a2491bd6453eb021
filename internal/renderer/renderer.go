package renderer

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"io"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/image/draw"
	"golang.org/x/image/font"

	"github.com/linuxmatters/jivecanvas/internal/audio"
	"github.com/linuxmatters/jivecanvas/internal/config"
)

// Source supplies frequency snapshots to the animation loop.
type Source interface {
	Ready() bool
	Snapshot() audio.Snapshot
}

// Params are the composition parameters read at every tick.
type Params struct {
	Style   Style
	Overlay Overlay
}

// ParamsFunc returns the current parameters. It is called from the loop
// goroutine and must be safe for concurrent use.
type ParamsFunc func() Params

// TickEvent is published to subscribers after every rendered tick.
type TickEvent struct {
	Seq   uint64
	Style Style
	Data  audio.Snapshot
}

// Option configures a Renderer.
type Option func(*Renderer)

// WithFPS sets the animation tick rate.
func WithFPS(fps int) Option {
	return func(r *Renderer) { r.fps = fps }
}

// WithSize sets the canvas size.
func WithSize(width, height int) Option {
	return func(r *Renderer) { r.width, r.height = width, height }
}

// WithLogger sets the logger.
func WithLogger(l *log.Logger) Option {
	return func(r *Renderer) { r.logger = l }
}

// WithSeed makes random glyph choices reproducible.
func WithSeed(seed uint64) Option {
	return func(r *Renderer) { r.rand = rand.New(rand.NewPCG(seed, seed)) }
}

// Renderer owns the visualisation layer and the loop that redraws it.
type Renderer struct {
	width, height int
	fps           int
	source        Source
	params        ParamsFunc
	logger        *log.Logger
	rand          *rand.Rand

	mu         sync.Mutex
	layer      *Surface
	background *image.RGBA
	glyphFace  font.Face
	faces      faceCache
	overlay    Overlay
	seq        uint64

	subsMu sync.Mutex
	subs   map[chan TickEvent]struct{}

	loopMu sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// New creates a renderer reading snapshots from source. source may be nil,
// in which case every tick is skipped.
func New(source Source, params ParamsFunc, opts ...Option) (*Renderer, error) {
	r := &Renderer{
		width:  config.Width,
		height: config.Height,
		fps:    config.PreviewFPS,
		source: source,
		params: params,
		logger: log.New(io.Discard),
		rand:   rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), 0)),
		faces:  make(faceCache),
		subs:   make(map[chan TickEvent]struct{}),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.fps <= 0 {
		return nil, fmt.Errorf("invalid frame rate %d", r.fps)
	}
	if r.params == nil {
		r.params = func() Params { return Params{Style: StyleBars, Overlay: DefaultOverlay()} }
	}

	face, err := MonoFace(config.MatrixFontSize)
	if err != nil {
		return nil, err
	}
	r.glyphFace = face
	r.layer = NewSurface(r.width, r.height)
	r.overlay = r.params().Overlay
	return r, nil
}

// Bounds returns the canvas rectangle.
func (r *Renderer) Bounds() image.Rectangle {
	return image.Rect(0, 0, r.width, r.height)
}

// SetBackground sets the image composited beneath the visualisation.
// nil composites over black.
func (r *Renderer) SetBackground(bg *image.RGBA) {
	r.mu.Lock()
	r.background = bg
	r.mu.Unlock()
}

// Reset clears the visualisation layer.
func (r *Renderer) Reset() {
	r.mu.Lock()
	r.layer.Clear()
	r.mu.Unlock()
}

// Start begins ticking. Calling Start on a running renderer does nothing.
func (r *Renderer) Start() {
	r.loopMu.Lock()
	defer r.loopMu.Unlock()
	if r.done != nil {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	r.cancel = cancel
	r.done = make(chan struct{})
	go r.loop(ctx, r.done)
	r.logger.Debug("render loop started", "fps", r.fps)
}

// Stop cancels the loop and returns once no further tick can run.
func (r *Renderer) Stop() {
	r.loopMu.Lock()
	cancel, done := r.cancel, r.done
	r.cancel, r.done = nil, nil
	r.loopMu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
	r.logger.Debug("render loop stopped", "frames", r.Frames())
}

// Running reports whether the loop is active.
func (r *Renderer) Running() bool {
	r.loopMu.Lock()
	defer r.loopMu.Unlock()
	return r.done != nil
}

func (r *Renderer) loop(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(time.Second / time.Duration(r.fps))
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			// A tick that raced with cancellation must not draw
			if ctx.Err() != nil {
				return
			}
			r.Step(now)
		}
	}
}

// Step runs one tick at time now. It does nothing and returns false when
// the source is absent or not ready.
func (r *Renderer) Step(now time.Time) bool {
	if r.source == nil || !r.source.Ready() {
		return false
	}
	r.Draw(r.source.Snapshot(), now)
	return true
}

// Draw renders data onto the layer with the current parameters.
func (r *Renderer) Draw(data audio.Snapshot, now time.Time) {
	p := r.params()

	r.mu.Lock()
	DrawerFor(p.Style)(r.layer, Tick{Data: data, Now: now, Rand: r.rand, GlyphFace: r.glyphFace})
	r.overlay = p.Overlay
	r.seq++
	ev := TickEvent{Seq: r.seq, Style: ParseStyle(string(p.Style)), Data: data}
	r.mu.Unlock()

	r.publish(ev)
}

// Frames returns how many ticks have drawn.
func (r *Renderer) Frames() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.seq
}

// Compose writes background, visualisation layer and text overlay into dst,
// which must match Bounds.
func (r *Renderer) Compose(dst *image.RGBA) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	switch {
	case r.background != nil && r.background.Rect == dst.Rect:
		copy(dst.Pix, r.background.Pix)
	case r.background != nil:
		draw.Draw(dst, dst.Bounds(), r.background, r.background.Rect.Min, draw.Src)
	default:
		draw.Draw(dst, dst.Bounds(), image.NewUniform(color.Black), image.Point{}, draw.Src)
	}
	draw.Draw(dst, dst.Bounds(), r.layer.Image(), image.Point{}, draw.Over)

	if r.overlay.Text == "" {
		return nil
	}
	face, err := r.faces.face(r.overlay.Size)
	if err != nil {
		return err
	}
	drawOverlay(dst, face, r.overlay)
	return nil
}

// Frame returns a newly allocated composed frame.
func (r *Renderer) Frame() (*image.RGBA, error) {
	dst := image.NewRGBA(r.Bounds())
	if err := r.Compose(dst); err != nil {
		return nil, err
	}
	return dst, nil
}

// Subscribe returns a channel receiving an event per tick. Slow receivers
// miss events rather than stalling the loop. Call the returned function to
// unsubscribe.
func (r *Renderer) Subscribe(buffer int) (<-chan TickEvent, func()) {
	ch := make(chan TickEvent, buffer)

	r.subsMu.Lock()
	r.subs[ch] = struct{}{}
	r.subsMu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			r.subsMu.Lock()
			delete(r.subs, ch)
			r.subsMu.Unlock()
			close(ch)
		})
	}
}

func (r *Renderer) publish(ev TickEvent) {
	r.subsMu.Lock()
	defer r.subsMu.Unlock()
	for ch := range r.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}
