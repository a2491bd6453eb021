package encoder

import (
	"context"
	"image"
	"image/color"
	"os"
	"os/exec"
	"path/filepath"
	"slices"
	"strings"
	"testing"
	"time"
)

func TestNewValidatesConfig(t *testing.T) {
	tests := []struct {
		name   string
		config Config
	}{
		{"zero width", Config{OutputPath: "out.mp4", Width: 0, Height: 600, Framerate: 30}},
		{"negative height", Config{OutputPath: "out.mp4", Width: 800, Height: -1, Framerate: 30}},
		{"zero framerate", Config{OutputPath: "out.mp4", Width: 800, Height: 600}},
		{"no output", Config{Width: 800, Height: 600, Framerate: 30}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := New(tt.config); err == nil {
				t.Error("expected an error")
			}
		})
	}
}

// TestArgs checks raw frames come from stdin and audio is mapped from the file.
func TestArgs(t *testing.T) {
	enc, err := New(Config{OutputPath: "out.mp4", AudioPath: "song.wav", Width: 800, Height: 600, Framerate: 30})
	if err != nil {
		t.Fatal(err)
	}

	got := strings.Join(enc.Args(nil), " ")
	for _, want := range []string{
		"-i song.wav",
		"-f rawvideo -pix_fmt rgba -s 800x600 -r 30 -i -",
		"-map 1:v:0 -map 0:a:0",
		"-c:v libx264",
		"-c:a aac -b:a 192k -shortest",
		"-y out.mp4",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("args %q missing %q", got, want)
		}
	}
	if !strings.HasSuffix(got, "out.mp4") {
		t.Errorf("output must be last: %q", got)
	}
}

func TestArgsSilent(t *testing.T) {
	enc, err := New(Config{OutputPath: "out.mp4", Width: 64, Height: 64, Framerate: 25})
	if err != nil {
		t.Fatal(err)
	}
	args := enc.Args(nil)
	if slices.Contains(args, "-map") || slices.Contains(args, "-c:a") {
		t.Errorf("silent video should not map audio: %v", args)
	}
}

func TestArgsHardware(t *testing.T) {
	enc, err := New(Config{OutputPath: "out.mp4", Width: 64, Height: 64, Framerate: 30})
	if err != nil {
		t.Fatal(err)
	}

	vaapi := &HWEncoder{Name: "h264_vaapi", Type: HWAccelVAAPI}
	args := strings.Join(enc.Args(vaapi), " ")
	if !strings.Contains(args, "-vaapi_device "+vaapiDevice) || !strings.Contains(args, "hwupload") {
		t.Errorf("VA-API args missing device or upload: %q", args)
	}

	nvenc := &HWEncoder{Name: "h264_nvenc", Type: HWAccelNVENC}
	if args := strings.Join(enc.Args(nvenc), " "); !strings.Contains(args, "-c:v h264_nvenc") {
		t.Errorf("NVENC args = %q", args)
	}
}

func TestWriteFrameBeforeInitialize(t *testing.T) {
	enc, err := New(Config{OutputPath: "out.mp4", Width: 4, Height: 4, Framerate: 30})
	if err != nil {
		t.Fatal(err)
	}
	if err := enc.WriteFrame(image.NewRGBA(image.Rect(0, 0, 4, 4))); err == nil {
		t.Error("WriteFrame before Initialize succeeded")
	}
	if err := enc.Close(); err != nil {
		t.Errorf("Close without Initialize: %v", err)
	}
	if err := enc.WriteFrame(image.NewRGBA(image.Rect(0, 0, 4, 4))); err != ErrClosed {
		t.Errorf("WriteFrame after Close = %v, want ErrClosed", err)
	}
}

// TestEncodeFrames encodes one second of frames with the software encoder.
func TestEncodeFrames(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping ffmpeg run in short mode")
	}
	if _, err := exec.LookPath("ffmpeg"); err != nil {
		t.Skip("ffmpeg not installed")
	}

	out := filepath.Join(t.TempDir(), "frames.mp4")
	enc, err := New(Config{OutputPath: out, Width: 160, Height: 120, Framerate: 30})
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	if err := enc.Initialize(ctx); err != nil {
		t.Fatalf("Initialize: %v", err)
	}

	frame := image.NewRGBA(image.Rect(0, 0, 160, 120))
	for i := 0; i < 30; i++ {
		c := color.RGBA{uint8(i * 8), 58, 237, 255}
		for p := 0; p < len(frame.Pix); p += 4 {
			frame.Pix[p], frame.Pix[p+1], frame.Pix[p+2], frame.Pix[p+3] = c.R, c.G, c.B, c.A
		}
		if err := enc.WriteFrame(frame); err != nil {
			t.Fatalf("WriteFrame %d: %v", i, err)
		}
	}

	if err := enc.Close(); err != nil {
		if strings.Contains(err.Error(), "libx264") {
			t.Skipf("ffmpeg lacks libx264: %v", err)
		}
		t.Fatalf("Close: %v", err)
	}
	if enc.Frames() != 30 {
		t.Errorf("Frames = %d", enc.Frames())
	}

	info, err := os.Stat(out)
	if err != nil || info.Size() == 0 {
		t.Fatalf("output missing or empty: %v", err)
	}
}
