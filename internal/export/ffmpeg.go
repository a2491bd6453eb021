package export

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
)

// stderrTail is how many lines of ffmpeg diagnostics are kept for errors.
const stderrTail = 8

var durationRe = regexp.MustCompile(`Duration: (\d+):(\d{2}):(\d{2}(?:\.\d+)?)`)

// FFmpegEngine runs the ffmpeg command-line tool against a private
// temporary directory.
type FFmpegEngine struct {
	path   string
	logger *log.Logger

	mu  sync.Mutex
	bin string
	dir string
}

// NewFFmpegEngine creates an engine. An empty path resolves "ffmpeg" from PATH.
func NewFFmpegEngine(path string, logger *log.Logger) *FFmpegEngine {
	if logger == nil {
		logger = log.New(io.Discard)
	}
	return &FFmpegEngine{path: path, logger: logger}
}

// Load locates the binary, checks it runs and creates the working directory.
func (e *FFmpegEngine) Load(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.bin != "" {
		return nil
	}

	name := e.path
	if name == "" {
		name = "ffmpeg"
	}
	bin, err := exec.LookPath(name)
	if err != nil {
		return fmt.Errorf("ffmpeg not found: %w", err)
	}
	if out, err := exec.CommandContext(ctx, bin, "-hide_banner", "-version").CombinedOutput(); err != nil {
		return fmt.Errorf("ffmpeg did not run: %w: %s", err, firstLine(string(out)))
	}

	dir, err := os.MkdirTemp("", "jivecanvas-*")
	if err != nil {
		return fmt.Errorf("failed to create working directory: %w", err)
	}

	e.bin, e.dir = bin, dir
	e.logger.Debug("ffmpeg loaded", "bin", bin, "dir", dir)
	return nil
}

// Dir returns the working directory, empty before Load.
func (e *FFmpegEngine) Dir() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.dir
}

func (e *FFmpegEngine) resolve(name string) (string, error) {
	e.mu.Lock()
	dir := e.dir
	e.mu.Unlock()

	if dir == "" {
		return "", fmt.Errorf("engine not loaded")
	}
	if name == "" || filepath.Base(name) != name || name == "." || name == ".." {
		return "", fmt.Errorf("invalid engine file name %q", name)
	}
	return filepath.Join(dir, name), nil
}

func (e *FFmpegEngine) WriteFile(name string, data []byte) error {
	path, err := e.resolve(name)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}

func (e *FFmpegEngine) ReadFile(name string) ([]byte, error) {
	path, err := e.resolve(name)
	if err != nil {
		return nil, err
	}
	return os.ReadFile(path)
}

func (e *FFmpegEngine) DeleteFile(name string) error {
	path, err := e.resolve(name)
	if err != nil {
		return err
	}
	return os.Remove(path)
}

// Exec runs ffmpeg in the working directory. Progress comes from the
// machine-readable -progress stream on stdout; the expected total is the
// longest input duration ffmpeg reports on stderr.
func (e *FFmpegEngine) Exec(ctx context.Context, args []string, onProgress func(Progress)) error {
	e.mu.Lock()
	bin, dir := e.bin, e.dir
	e.mu.Unlock()
	if bin == "" {
		return fmt.Errorf("engine not loaded")
	}

	full := append([]string{"-hide_banner", "-nostdin", "-progress", "pipe:1", "-nostats"}, args...)
	cmd := exec.CommandContext(ctx, bin, full...)
	cmd.Dir = dir

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return err
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return err
	}

	e.logger.Debug("ffmpeg exec", "args", strings.Join(args, " "))
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to start ffmpeg: %w", err)
	}

	var (
		totalMu sync.Mutex
		total   time.Duration
		tail    []string
		wg      sync.WaitGroup
	)

	wg.Add(1)
	go func() {
		defer wg.Done()
		scanner := bufio.NewScanner(stderr)
		for scanner.Scan() {
			line := scanner.Text()
			totalMu.Lock()
			if d, ok := parseDuration(line); ok && d > total {
				total = d
			}
			tail = append(tail, line)
			if len(tail) > stderrTail {
				tail = tail[1:]
			}
			totalMu.Unlock()
		}
	}()

	var outTime time.Duration
	scanner := bufio.NewScanner(stdout)
	for scanner.Scan() {
		key, value, ok := strings.Cut(scanner.Text(), "=")
		if !ok {
			continue
		}
		switch key {
		case "out_time_us":
			if us, err := strconv.ParseInt(value, 10, 64); err == nil && us >= 0 {
				outTime = time.Duration(us) * time.Microsecond
			}
		case "progress":
			totalMu.Lock()
			t := total
			totalMu.Unlock()

			p := Progress{Time: outTime, Done: value == "end"}
			if t > 0 {
				p.Ratio = min(float64(outTime)/float64(t), 1)
			}
			if p.Done {
				p.Ratio = 1
			}
			if onProgress != nil {
				onProgress(p)
			}
		}
	}

	wg.Wait()
	if err := cmd.Wait(); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		totalMu.Lock()
		detail := strings.Join(tail, "\n")
		totalMu.Unlock()
		return fmt.Errorf("ffmpeg exited: %w\n%s", err, detail)
	}
	return nil
}

// Close removes the working directory.
func (e *FFmpegEngine) Close() error {
	e.mu.Lock()
	dir := e.dir
	e.bin, e.dir = "", ""
	e.mu.Unlock()

	if dir == "" {
		return nil
	}
	return os.RemoveAll(dir)
}

// parseDuration extracts an input duration from an ffmpeg banner line.
func parseDuration(line string) (time.Duration, bool) {
	m := durationRe.FindStringSubmatch(line)
	if m == nil {
		return 0, false
	}
	h, _ := strconv.Atoi(m[1])
	mins, _ := strconv.Atoi(m[2])
	secs, err := strconv.ParseFloat(m[3], 64)
	if err != nil {
		return 0, false
	}
	d := time.Duration(h)*time.Hour + time.Duration(mins)*time.Minute + time.Duration(secs*float64(time.Second))
	return d, true
}

func firstLine(s string) string {
	line, _, _ := strings.Cut(strings.TrimSpace(s), "\n")
	return line
}
