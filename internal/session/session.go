// Package session holds the state of one composition: the selected audio and
// image, the visual parameters, the live preview and the export job.
package session

import (
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/linuxmatters/jivecanvas/internal/audio"
	"github.com/linuxmatters/jivecanvas/internal/blob"
	"github.com/linuxmatters/jivecanvas/internal/config"
	"github.com/linuxmatters/jivecanvas/internal/export"
	"github.com/linuxmatters/jivecanvas/internal/renderer"
)

const (
	// ExportHint is shown while export is unavailable.
	ExportHint = "Please upload both audio and image to export"
	// FailureMessage is the only export error a user sees.
	FailureMessage = "Failed to create video. Please try again."
)

var (
	ErrMissingAssets    = errors.New("audio and image are both required")
	ErrExportInProgress = errors.New("an export is already in progress")
	ErrInvalidImage     = errors.New("invalid image")
	ErrClosed           = errors.New("session closed")
)

// Image is the selected background.
type Image struct {
	Name     string
	MIMEType string
	// Ref is a blob: reference for local uploads or an http(s) URL
	Ref   string
	Local bool
}

// Option configures a Session.
type Option func(*Session)

// WithLogger sets the session logger.
func WithLogger(l *log.Logger) Option {
	return func(s *Session) { s.logger = l }
}

// WithRendererOptions passes options to the preview renderer.
func WithRendererOptions(opts ...renderer.Option) Option {
	return func(s *Session) { s.rendererOpts = append(s.rendererOpts, opts...) }
}

// WithAnalyzerOptions passes options to every analyzer the session creates.
func WithAnalyzerOptions(opts ...audio.AnalyzerOption) Option {
	return func(s *Session) { s.analyzerOpts = append(s.analyzerOpts, opts...) }
}

// WithPreviewLoop controls whether the render loop runs once audio is
// decoded. It is on by default.
func WithPreviewLoop(on bool) Option {
	return func(s *Session) { s.loop = on }
}

// WithHTTPClient sets the client used to fetch remote preview backgrounds.
func WithHTTPClient(c *http.Client) Option {
	return func(s *Session) { s.client = c }
}

// Session is safe for concurrent use.
type Session struct {
	pipeline     *export.Pipeline
	registry     *blob.Registry
	logger       *log.Logger
	client       *http.Client
	rendererOpts []renderer.Option
	analyzerOpts []audio.AnalyzerOption
	loop         bool

	renderer *renderer.Renderer

	// audioMu serialises audio replacement so exactly one analyzer is live
	audioMu sync.Mutex

	mu       sync.Mutex
	closed   bool
	params   renderer.Params
	asset    *audio.Asset
	analyzer *audio.Analyzer
	audioErr error
	decoded  chan struct{}
	audioGen uint64
	image    *Image
	imageGen uint64
	job      *ExportJob
}

// New creates an empty session exporting through pipeline. Local images are
// registered in registry.
func New(pipeline *export.Pipeline, registry *blob.Registry, opts ...Option) (*Session, error) {
	s := &Session{
		pipeline: pipeline,
		registry: registry,
		logger:   log.New(io.Discard),
		client:   &http.Client{Timeout: 30 * time.Second},
		loop:     true,
		params: renderer.Params{
			Style:   renderer.ParseStyle(config.DefaultStyle),
			Overlay: renderer.DefaultOverlay(),
		},
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.registry == nil {
		s.registry = blob.NewRegistry()
	}

	rOpts := append([]renderer.Option{renderer.WithLogger(s.logger)}, s.rendererOpts...)
	r, err := renderer.New(source{s}, s.Params, rOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create renderer: %w", err)
	}
	s.renderer = r
	return s, nil
}

// source adapts the session's current analyzer to renderer.Source.
type source struct{ s *Session }

func (src source) current() *audio.Analyzer {
	src.s.mu.Lock()
	defer src.s.mu.Unlock()
	return src.s.analyzer
}

func (src source) Ready() bool {
	a := src.current()
	return a != nil && a.Ready()
}

func (src source) Snapshot() audio.Snapshot {
	if a := src.current(); a != nil {
		return a.Snapshot()
	}
	return make(audio.Snapshot, config.FFTSize/2)
}

// Renderer returns the preview renderer.
func (s *Session) Renderer() *renderer.Renderer {
	return s.renderer
}

// Registry returns the blob registry holding local images and artifacts.
func (s *Session) Registry() *blob.Registry {
	return s.registry
}

// SetAudio replaces the audio. The previous preview stops before this
// returns; decoding the new asset happens in the background.
func (s *Session) SetAudio(asset *audio.Asset) error {
	if asset == nil {
		return fmt.Errorf("%w: no audio", audio.ErrValidation)
	}
	if err := asset.Validate(); err != nil {
		return err
	}

	s.audioMu.Lock()
	defer s.audioMu.Unlock()

	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return ErrClosed
	}

	s.teardownAudio()

	a, err := audio.NewAnalyzer(config.FFTSize, s.analyzerOpts...)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		a.Close()
		return ErrClosed
	}

	own := *asset
	own.Duration = 0
	s.audioGen++
	s.asset = &own
	s.analyzer = a
	s.audioErr = nil
	s.decoded = make(chan struct{})

	go s.decode(s.audioGen, a, &own, s.decoded)
	s.logger.Info("audio selected", "name", own.Name, "type", own.Type, "bytes", len(own.Data))
	return nil
}

func (s *Session) decode(gen uint64, a *audio.Analyzer, asset *audio.Asset, done chan struct{}) {
	defer close(done)

	err := a.Load(context.Background(), asset)

	s.mu.Lock()
	defer s.mu.Unlock()
	if gen != s.audioGen {
		return
	}
	if err != nil {
		s.audioErr = err
		s.logger.Error("audio decode failed", "name", asset.Name, "err", err)
		return
	}

	asset.Duration = a.Duration()
	s.logger.Debug("audio decoded", "name", asset.Name, "duration", asset.Duration)
	if s.loop {
		s.renderer.Start()
	}
}

// teardownAudio stops the loop and closes the current analyzer. Bumping the
// generation first keeps a pending decode from restarting the loop. Callers
// hold audioMu.
func (s *Session) teardownAudio() {
	s.mu.Lock()
	a := s.analyzer
	s.audioGen++
	s.analyzer = nil
	s.asset = nil
	s.audioErr = nil
	s.mu.Unlock()

	s.renderer.Stop()
	if a != nil {
		a.Close()
	}
	s.renderer.Reset()
}

// ClearAudio removes the audio and stops the preview.
func (s *Session) ClearAudio() {
	s.audioMu.Lock()
	defer s.audioMu.Unlock()
	s.teardownAudio()
}

// WaitAudio blocks until the current audio has been decoded and returns the
// decode error, if any.
func (s *Session) WaitAudio(ctx context.Context) error {
	s.mu.Lock()
	done := s.decoded
	hasAudio := s.asset != nil
	s.mu.Unlock()

	if !hasAudio || done == nil {
		return fmt.Errorf("%w: no audio selected", ErrMissingAssets)
	}

	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}
	return s.AudioError()
}

// Audio returns a copy of the selected audio, or nil.
func (s *Session) Audio() *audio.Asset {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.asset == nil {
		return nil
	}
	a := *s.asset
	return &a
}

// AudioError returns the decode failure of the current audio.
func (s *Session) AudioError() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.audioErr
}

// Position returns the playhead and the decoded duration.
func (s *Session) Position() (pos, duration time.Duration) {
	s.mu.Lock()
	a := s.analyzer
	s.mu.Unlock()
	if a == nil {
		return 0, 0
	}
	return a.Position(), a.Duration()
}

// Peaks returns the waveform envelope of the current audio.
func (s *Session) Peaks(n int) []float64 {
	s.mu.Lock()
	a := s.analyzer
	s.mu.Unlock()
	if a == nil {
		return nil
	}
	return a.Peaks(n)
}

// SetLocalImage selects an uploaded image. The bytes are held behind a new
// blob reference and the previous local image is released.
func (s *Session) SetLocalImage(name, mimeType string, data []byte) error {
	switch strings.ToLower(mimeType) {
	case "image/jpeg", "image/png":
	default:
		return fmt.Errorf("%w: unsupported type %q", ErrInvalidImage, mimeType)
	}
	if len(data) == 0 {
		return fmt.Errorf("%w: empty file", ErrInvalidImage)
	}

	bounds := s.renderer.Bounds()
	bg, err := renderer.LoadBackground(data, bounds.Dx(), bounds.Dy())
	if err != nil {
		s.logger.Warn("image preview unavailable", "name", name, "err", err)
	}

	ref := s.registry.Create(data, mimeType)
	img := &Image{Name: name, MIMEType: mimeType, Ref: ref, Local: true}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		s.registry.Revoke(ref)
		return ErrClosed
	}
	prev := s.image
	s.image = img
	s.imageGen++
	s.mu.Unlock()

	s.release(prev)
	s.renderer.SetBackground(bg)
	s.logger.Info("image selected", "name", name, "ref", ref)
	return nil
}

// SetRemoteImage selects an image by http(s) URL, typically a search hit.
// The preview background is fetched in the background.
func (s *Session) SetRemoteImage(rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("%w: %q is not an http(s) URL", ErrInvalidImage, rawURL)
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	prev := s.image
	s.image = &Image{Name: u.Path, Ref: rawURL}
	s.imageGen++
	gen := s.imageGen
	s.mu.Unlock()

	s.release(prev)
	s.renderer.SetBackground(nil)
	go s.fetchBackground(gen, rawURL)
	s.logger.Info("image selected", "url", rawURL)
	return nil
}

func (s *Session) fetchBackground(gen uint64, rawURL string) {
	req, err := http.NewRequest(http.MethodGet, rawURL, nil)
	if err != nil {
		return
	}
	resp, err := s.client.Do(req)
	if err != nil {
		s.logger.Warn("image preview unavailable", "url", rawURL, "err", err)
		return
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		s.logger.Warn("image preview unavailable", "url", rawURL, "status", resp.StatusCode)
		return
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, 32<<20))
	if err != nil {
		return
	}
	bounds := s.renderer.Bounds()
	bg, err := renderer.LoadBackground(data, bounds.Dx(), bounds.Dy())
	if err != nil {
		s.logger.Warn("image preview unavailable", "url", rawURL, "err", err)
		return
	}

	s.mu.Lock()
	current := gen == s.imageGen && !s.closed
	s.mu.Unlock()
	if current {
		s.renderer.SetBackground(bg)
	}
}

// ClearImage removes the image and releases its reference.
func (s *Session) ClearImage() {
	s.mu.Lock()
	prev := s.image
	s.image = nil
	s.imageGen++
	s.mu.Unlock()

	s.release(prev)
	s.renderer.SetBackground(nil)
}

// Image returns a copy of the selected image, or nil.
func (s *Session) Image() *Image {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.image == nil {
		return nil
	}
	img := *s.image
	return &img
}

// Background decodes the current image at the canvas size for offline use.
func (s *Session) Background() (*image.RGBA, error) {
	img := s.Image()
	if img == nil {
		return nil, ErrMissingAssets
	}
	if !img.Local {
		return nil, fmt.Errorf("%w: remote image", ErrInvalidImage)
	}
	obj, err := s.registry.Resolve(img.Ref)
	if err != nil {
		return nil, err
	}
	b := s.renderer.Bounds()
	return renderer.LoadBackground(obj.Data, b.Dx(), b.Dy())
}

func (s *Session) release(img *Image) {
	if img != nil && img.Local {
		s.registry.Revoke(img.Ref)
	}
}

// Params returns the current visual parameters.
func (s *Session) Params() renderer.Params {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.params
}

// SetParams replaces all visual parameters at once.
func (s *Session) SetParams(p renderer.Params) error {
	if err := p.Overlay.Validate(); err != nil {
		return err
	}
	p.Style = renderer.ParseStyle(string(p.Style))

	s.mu.Lock()
	s.params = p
	s.mu.Unlock()
	return nil
}

func (s *Session) update(fn func(p *renderer.Params)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := s.params
	fn(&p)
	if err := p.Overlay.Validate(); err != nil {
		return err
	}
	s.params = p
	return nil
}

func (s *Session) SetText(text string) {
	_ = s.update(func(p *renderer.Params) { p.Overlay.Text = text })
}

func (s *Session) SetTextPosition(position string) error {
	return s.update(func(p *renderer.Params) { p.Overlay.Position = position })
}

func (s *Session) SetTextColor(hex string) error {
	return s.update(func(p *renderer.Params) { p.Overlay.Color = hex })
}

func (s *Session) SetTextSize(size string) error {
	return s.update(func(p *renderer.Params) { p.Overlay.Size = size })
}

// SetStyle selects the visualisation. Unknown tags select bars.
func (s *Session) SetStyle(tag string) {
	style := renderer.ParseStyle(tag)
	if !renderer.Style(strings.ToLower(strings.TrimSpace(tag))).Known() {
		s.logger.Warn("unknown style, using bars", "style", tag)
	}
	_ = s.update(func(p *renderer.Params) { p.Style = style })
}

// CanExport reports whether both assets are present.
func (s *Session) CanExport() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.asset != nil && s.image != nil
}

// Job returns the most recent export job, or nil.
func (s *Session) Job() *ExportJob {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.job
}

// RequestExport starts an export job on its own goroutine. onProgress, if
// set, receives every percentage the job records.
func (s *Session) RequestExport(ctx context.Context, onProgress func(int)) (*ExportJob, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, ErrClosed
	}
	if s.asset == nil || s.image == nil {
		s.mu.Unlock()
		return nil, ErrMissingAssets
	}
	if s.job != nil && !s.job.State().Terminal() {
		s.mu.Unlock()
		return nil, ErrExportInProgress
	}

	asset := *s.asset
	ref := s.image.Ref
	prev := s.job
	job := newExportJob()
	s.job = job
	s.mu.Unlock()

	s.revokeArtifact(prev)

	s.logger.Info("export requested", "job", job.ID, "audio", asset.Name)
	go s.runExport(ctx, job, &asset, ref, onProgress)
	return job, nil
}

func (s *Session) runExport(ctx context.Context, job *ExportJob, asset *audio.Asset, ref string, onProgress func(int)) {
	job.start()

	art, err := s.pipeline.CreateVideo(ctx, asset, ref, asset.Duration, func(pct int) {
		job.setProgress(pct)
		if onProgress != nil {
			onProgress(pct)
		}
	})
	if err != nil {
		var se *export.StageError
		if errors.As(err, &se) {
			s.logger.Error("export failed", "job", job.ID, "stage", se.Stage, "err", err)
		} else {
			s.logger.Error("export failed", "job", job.ID, "err", err)
		}
		job.finish(nil, err)
		return
	}

	s.logger.Info("export finished", "job", job.ID, "file", art.Name, "bytes", art.Size())
	job.finish(art, nil)

	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		s.revokeArtifact(job)
	}
}

// Close stops the preview, closes the analyzer and releases the image
// reference. A running export is left to finish.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	s.audioMu.Lock()
	s.teardownAudio()
	s.audioMu.Unlock()

	s.mu.Lock()
	prev := s.image
	s.image = nil
	s.imageGen++
	job := s.job
	s.mu.Unlock()
	s.release(prev)
	s.revokeArtifact(job)
	return nil
}

// revokeArtifact drops a finished job's video from the registry. A download
// already in flight holds its own copy of the bytes.
func (s *Session) revokeArtifact(job *ExportJob) {
	if job == nil || !job.State().Terminal() {
		return
	}
	if art, _ := job.Result(); art != nil && art.URL != "" {
		s.registry.Revoke(art.URL)
	}
}
