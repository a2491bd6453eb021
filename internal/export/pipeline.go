package export

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"math"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/linuxmatters/jivecanvas/internal/audio"
	"github.com/linuxmatters/jivecanvas/internal/blob"
)

// Names inside the engine namespace
const (
	AudioFile  = "audio.mp3"
	ImageFile  = "image.jpg"
	OutputFile = "output.mp4"
)

// maxImageBytes bounds remote image downloads.
const maxImageBytes = 32 << 20

// Recipe returns the fixed encode arguments: loop the still image at 30 fps
// under the audio, H.264 tuned for still images, AAC at 192k, stopping
// with the shorter input and with the index moved to the front.
func Recipe() []string {
	return []string{
		"-loop", "1",
		"-framerate", "30",
		"-i", ImageFile,
		"-i", AudioFile,
		"-c:v", "libx264",
		"-preset", "medium",
		"-tune", "stillimage",
		"-crf", "23",
		"-c:a", "aac",
		"-b:a", "192k",
		"-pix_fmt", "yuv420p",
		"-shortest",
		"-movflags", "+faststart",
		"-y",
		OutputFile,
	}
}

// PipelineOption configures a Pipeline.
type PipelineOption func(*Pipeline)

// WithLogger sets the pipeline logger.
func WithLogger(l *log.Logger) PipelineOption {
	return func(p *Pipeline) { p.logger = l }
}

// WithHTTPClient sets the client used to fetch remote images.
func WithHTTPClient(c *http.Client) PipelineOption {
	return func(p *Pipeline) { p.client = c }
}

// Pipeline runs exports against a single shared engine, one at a time.
type Pipeline struct {
	engine   Engine
	registry *blob.Registry
	client   *http.Client
	logger   *log.Logger

	run sync.Mutex

	mu     sync.Mutex
	loaded bool
	state  State
}

// NewPipeline creates a pipeline. Image references of the form blob:... are
// resolved in registry, which also receives the finished artifacts.
func NewPipeline(engine Engine, registry *blob.Registry, opts ...PipelineOption) *Pipeline {
	p := &Pipeline{
		engine:   engine,
		registry: registry,
		client:   &http.Client{Timeout: 60 * time.Second},
		logger:   log.New(io.Discard),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// State returns the current stage.
func (p *Pipeline) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

func (p *Pipeline) setState(s State) {
	p.mu.Lock()
	p.state = s
	p.mu.Unlock()
	p.logger.Debug("export stage", "state", s)
}

// CreateVideo encodes asset under the image behind imageRef. onProgress
// receives whole percentages that never decrease. duration, when known,
// is the expected output length used to scale progress.
func (p *Pipeline) CreateVideo(ctx context.Context, asset *audio.Asset, imageRef string, duration time.Duration, onProgress func(int)) (*Artifact, error) {
	if !p.run.TryLock() {
		return nil, ErrBusy
	}
	defer p.run.Unlock()
	defer p.setState(StateIdle)

	p.setState(StateLoadingEngine)
	if err := p.ensureLoaded(ctx); err != nil {
		return nil, stageError(StateLoadingEngine, ErrEngineLoad, err)
	}

	// Cleanup runs whatever happens from here on
	defer p.cleanup()

	p.setState(StateStagingInputs)
	if err := p.stage(ctx, asset, imageRef); err != nil {
		return nil, stageError(StateStagingInputs, ErrInputStaging, err)
	}

	p.setState(StateEncoding)
	reporter := newProgressReporter(duration, onProgress)
	if err := p.engine.Exec(ctx, Recipe(), reporter.report); err != nil {
		return nil, stageError(StateEncoding, ErrEncode, err)
	}

	p.setState(StateExtracting)
	data, err := p.engine.ReadFile(OutputFile)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return nil, stageError(StateExtracting, ErrEmptyOutput, err)
	case err != nil:
		return nil, stageError(StateExtracting, ErrEncode, err)
	case len(data) == 0:
		return nil, stageError(StateExtracting, ErrEmptyOutput, nil)
	}

	art := &Artifact{
		Name:     DefaultFilename(asset.Name),
		MIMEType: MIMEType,
		Data:     data,
	}
	if art.Size() == 0 {
		return nil, stageError(StateExtracting, ErrEmptyOutput, nil)
	}
	if p.registry != nil {
		art.URL = p.registry.Create(art.Data, art.MIMEType)
	}

	p.logger.Info("video created", "name", art.Name, "bytes", art.Size())
	return art, nil
}

// ensureLoaded loads the engine once. A failed load is retried next time.
func (p *Pipeline) ensureLoaded(ctx context.Context) error {
	p.mu.Lock()
	loaded := p.loaded
	p.mu.Unlock()
	if loaded {
		return nil
	}

	p.logger.Info("loading transcoding engine")
	if err := p.engine.Load(ctx); err != nil {
		return err
	}

	p.mu.Lock()
	p.loaded = true
	p.mu.Unlock()
	return nil
}

func (p *Pipeline) stage(ctx context.Context, asset *audio.Asset, imageRef string) error {
	if asset == nil || len(asset.Data) == 0 {
		return errors.New("audio is empty")
	}
	if err := p.engine.WriteFile(AudioFile, asset.Data); err != nil {
		return fmt.Errorf("write %s: %w", AudioFile, err)
	}

	img, err := p.resolveImage(ctx, imageRef)
	if err != nil {
		return err
	}
	if err := p.engine.WriteFile(ImageFile, img); err != nil {
		return fmt.Errorf("write %s: %w", ImageFile, err)
	}
	return nil
}

// resolveImage fetches the bytes behind a blob: reference or an http(s) URL.
func (p *Pipeline) resolveImage(ctx context.Context, ref string) ([]byte, error) {
	var data []byte

	switch {
	case blob.IsRef(ref):
		if p.registry == nil {
			return nil, errors.New("no registry for local images")
		}
		obj, err := p.registry.Resolve(ref)
		if err != nil {
			return nil, fmt.Errorf("image %s: %w", ref, err)
		}
		data = obj.Data

	case strings.HasPrefix(ref, "http://"), strings.HasPrefix(ref, "https://"):
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, ref, nil)
		if err != nil {
			return nil, fmt.Errorf("invalid image URL: %w", err)
		}
		resp, err := p.client.Do(req)
		if err != nil {
			return nil, fmt.Errorf("fetch image: %w", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			return nil, fmt.Errorf("fetch image: HTTP %d", resp.StatusCode)
		}
		data, err = io.ReadAll(io.LimitReader(resp.Body, maxImageBytes))
		if err != nil {
			return nil, fmt.Errorf("read image: %w", err)
		}

	default:
		return nil, fmt.Errorf("invalid image URL %q", ref)
	}

	if len(data) == 0 {
		return nil, errors.New("image is empty")
	}
	return data, nil
}

// cleanup removes all staged and produced files. Failures are logged only.
func (p *Pipeline) cleanup() {
	for _, name := range []string{AudioFile, ImageFile, OutputFile} {
		err := p.engine.DeleteFile(name)
		switch {
		case err == nil:
		case errors.Is(err, fs.ErrNotExist):
			p.logger.Debug("cleanup: file was never created", "file", name)
		default:
			p.logger.Warn("cleanup failed", "file", name, "err", err)
		}
	}
}

// Close releases the engine if it holds resources.
func (p *Pipeline) Close() error {
	p.run.Lock()
	defer p.run.Unlock()

	p.mu.Lock()
	p.loaded = false
	p.mu.Unlock()

	if c, ok := p.engine.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

// progressReporter converts engine progress into monotonic percentages.
type progressReporter struct {
	expected time.Duration
	fn       func(int)

	mu      sync.Mutex
	last    int
	started bool
}

func newProgressReporter(expected time.Duration, fn func(int)) *progressReporter {
	return &progressReporter{expected: expected, fn: fn}
}

func (r *progressReporter) report(p Progress) {
	ratio := p.Ratio
	if r.expected > 0 && !p.Done {
		ratio = float64(p.Time) / float64(r.expected)
	}
	r.ratio(ratio)
}

func (r *progressReporter) ratio(x float64) {
	if math.IsNaN(x) {
		return
	}
	pct := int(math.Round(x * 100))
	pct = min(max(pct, 0), 100)

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.started && pct <= r.last {
		return
	}
	r.last, r.started = pct, true
	if r.fn != nil {
		r.fn(pct)
	}
}
