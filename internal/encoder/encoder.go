// Package encoder muxes rendered RGBA frames and an audio file into an MP4
// by streaming raw video into an ffmpeg process.
package encoder

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"os/exec"
	"strconv"
	"strings"
	"sync"

	"github.com/charmbracelet/log"
)

// Config holds the encoder configuration
type Config struct {
	OutputPath string      // Path to output MP4 file
	AudioPath  string      // Audio track muxed under the video; empty for silent video
	Width      int         // Video width in pixels
	Height     int         // Video height in pixels
	Framerate  int         // Frames per second
	FFmpegPath string      // ffmpeg binary; empty resolves from PATH
	HWAccel    HWAccelType // Hardware encoder preference
	Logger     *log.Logger // Optional
}

// ErrClosed is returned when writing to a finished encoder.
var ErrClosed = errors.New("encoder closed")

// Encoder wraps an ffmpeg process reading rawvideo on stdin
type Encoder struct {
	config Config
	logger *log.Logger

	hw     *HWEncoder
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	cancel context.CancelFunc

	stderrMu   sync.Mutex
	stderrTail []string
	stderrDone chan struct{}

	frames int
	closed bool
}

// New creates a new encoder instance
func New(config Config) (*Encoder, error) {
	// Validate configuration
	if config.Width <= 0 || config.Height <= 0 {
		return nil, fmt.Errorf("invalid dimensions: %dx%d", config.Width, config.Height)
	}
	if config.Framerate <= 0 {
		return nil, fmt.Errorf("invalid framerate: %d", config.Framerate)
	}
	if config.OutputPath == "" {
		return nil, fmt.Errorf("output path cannot be empty")
	}
	if config.FFmpegPath == "" {
		config.FFmpegPath = "ffmpeg"
	}

	logger := config.Logger
	if logger == nil {
		logger = log.New(io.Discard)
	}

	return &Encoder{config: config, logger: logger}, nil
}

// Args returns the ffmpeg arguments for the given hardware encoder (nil
// for software).
func (e *Encoder) Args(hw *HWEncoder) []string {
	c := e.config
	args := []string{"-hide_banner", "-nostdin", "-loglevel", "error"}
	args = append(args, inputArgs(hw)...)

	if c.AudioPath != "" {
		args = append(args, "-i", c.AudioPath)
	}

	// stdin carries raw RGBA frames
	args = append(args,
		"-thread_queue_size", "32",
		"-f", "rawvideo",
		"-pix_fmt", "rgba",
		"-s", fmt.Sprintf("%dx%d", c.Width, c.Height),
		"-r", strconv.Itoa(c.Framerate),
		"-i", "-",
	)

	if c.AudioPath != "" {
		args = append(args, "-map", "1:v:0", "-map", "0:a:0")
	}
	args = append(args, videoCodecArgs(hw)...)
	if c.AudioPath != "" {
		args = append(args, "-c:a", "aac", "-b:a", "192k", "-shortest")
	}
	args = append(args, "-movflags", "+faststart", "-y", c.OutputPath)
	return args
}

// Initialize selects the video encoder and starts ffmpeg.
func (e *Encoder) Initialize(ctx context.Context) error {
	bin, err := exec.LookPath(e.config.FFmpegPath)
	if err != nil {
		return fmt.Errorf("ffmpeg not found: %w", err)
	}

	e.hw = SelectBestEncoder(ctx, bin, e.config.HWAccel)
	if e.hw != nil {
		e.logger.Info("using hardware encoder", "encoder", e.hw.Name)
	} else if e.config.HWAccel != HWAccelNone && e.config.HWAccel != "" {
		e.logger.Warn("no hardware encoder available, using libx264", "requested", e.config.HWAccel)
	}

	ctx, cancel := context.WithCancel(ctx)
	cmd := exec.CommandContext(ctx, bin, e.Args(e.hw)...)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		cancel()
		return err
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		cancel()
		return err
	}

	e.logger.Debug("starting ffmpeg", "args", strings.Join(cmd.Args[1:], " "))
	if err := cmd.Start(); err != nil {
		cancel()
		return fmt.Errorf("failed to start ffmpeg: %w", err)
	}

	e.cmd, e.stdin, e.cancel = cmd, stdin, cancel
	e.stderrDone = make(chan struct{})
	go e.drainStderr(stderr)
	return nil
}

func (e *Encoder) drainStderr(r io.Reader) {
	defer close(e.stderrDone)
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		e.stderrMu.Lock()
		e.stderrTail = append(e.stderrTail, scanner.Text())
		if len(e.stderrTail) > 8 {
			e.stderrTail = e.stderrTail[1:]
		}
		e.stderrMu.Unlock()
	}
}

// Encoder returns the name of the video encoder in use.
func (e *Encoder) Encoder() string {
	if e.hw != nil {
		return e.hw.Name
	}
	return "libx264"
}

// WriteFrame sends one frame. img must match the configured size.
func (e *Encoder) WriteFrame(img *image.RGBA) error {
	if e.closed {
		return ErrClosed
	}
	if e.stdin == nil {
		return fmt.Errorf("encoder not initialized")
	}
	b := img.Bounds()
	if b.Dx() != e.config.Width || b.Dy() != e.config.Height {
		return fmt.Errorf("frame is %dx%d, encoder expects %dx%d", b.Dx(), b.Dy(), e.config.Width, e.config.Height)
	}

	// Sub-images have a wider stride than their rows
	rowBytes := b.Dx() * 4
	if img.Stride == rowBytes {
		if _, err := e.stdin.Write(img.Pix[:rowBytes*b.Dy()]); err != nil {
			return e.writeError(err)
		}
	} else {
		for y := 0; y < b.Dy(); y++ {
			off := y * img.Stride
			if _, err := e.stdin.Write(img.Pix[off : off+rowBytes]); err != nil {
				return e.writeError(err)
			}
		}
	}
	e.frames++
	return nil
}

func (e *Encoder) writeError(err error) error {
	// ffmpeg usually exited; its diagnostics say why
	<-e.stderrDone
	return fmt.Errorf("error writing frame %d: %w%s", e.frames, err, e.tail())
}

func (e *Encoder) tail() string {
	e.stderrMu.Lock()
	defer e.stderrMu.Unlock()
	if len(e.stderrTail) == 0 {
		return ""
	}
	return "\n" + strings.Join(e.stderrTail, "\n")
}

// Frames returns how many frames have been written.
func (e *Encoder) Frames() int {
	return e.frames
}

// Close finishes the stream and waits for ffmpeg to write the file.
// It is safe to call more than once.
func (e *Encoder) Close() error {
	if e.closed || e.cmd == nil {
		e.closed = true
		return nil
	}
	e.closed = true
	defer e.cancel()

	e.stdin.Close()
	<-e.stderrDone
	if err := e.cmd.Wait(); err != nil {
		return fmt.Errorf("ffmpeg failed: %w%s", err, e.tail())
	}
	e.logger.Debug("encoder finished", "frames", e.frames, "output", e.config.OutputPath)
	return nil
}

// Abort kills ffmpeg without finishing the file.
func (e *Encoder) Abort() {
	if e.closed || e.cmd == nil {
		e.closed = true
		return
	}
	e.closed = true
	e.cancel()
	e.stdin.Close()
	<-e.stderrDone
	e.cmd.Wait()
}
