package export

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"math"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"

	"github.com/linuxmatters/jivecanvas/internal/audio"
	"github.com/linuxmatters/jivecanvas/internal/blob"
)

func TestParseDuration(t *testing.T) {
	tests := []struct {
		line string
		want time.Duration
		ok   bool
	}{
		{"  Duration: 00:00:03.00, start: 0.000000, bitrate: 705 kb/s", 3 * time.Second, true},
		{"  Duration: 01:02:03.50, start: 0.000000", time.Hour + 2*time.Minute + 3500*time.Millisecond, true},
		{"  Duration: N/A, start: 0.000000, bitrate: N/A", 0, false},
		{"Stream #0:0: Audio: pcm_s16le", 0, false},
	}

	for _, tt := range tests {
		got, ok := parseDuration(tt.line)
		if ok != tt.ok || got != tt.want {
			t.Errorf("parseDuration(%q) = %v, %v; want %v, %v", tt.line, got, ok, tt.want, tt.ok)
		}
	}
}

func TestFFmpegEngineRejectsPaths(t *testing.T) {
	e := &FFmpegEngine{dir: t.TempDir()}
	for _, name := range []string{"", ".", "..", "../x", "a/b", "/etc/passwd"} {
		if err := e.WriteFile(name, []byte("x")); err == nil {
			t.Errorf("WriteFile(%q) succeeded", name)
		}
	}
}

func TestFFmpegEngineNotLoaded(t *testing.T) {
	e := NewFFmpegEngine("", nil)
	if _, err := e.ReadFile(OutputFile); err == nil {
		t.Error("ReadFile before Load succeeded")
	}
	if err := e.Exec(context.Background(), []string{"-version"}, nil); err == nil {
		t.Error("Exec before Load succeeded")
	}
}

func TestFFmpegEngineMissingBinary(t *testing.T) {
	e := NewFFmpegEngine(filepath.Join(t.TempDir(), "no-such-ffmpeg"), nil)
	p := NewPipeline(e, blob.NewRegistry())

	_, err := p.CreateVideo(context.Background(), testAsset(), "blob:x", 0, nil)
	if !errors.Is(err, ErrEngineLoad) {
		t.Errorf("err = %v, want ErrEngineLoad", err)
	}
}

// testWAV encodes a short 16-bit mono tone.
func testWAV(t *testing.T, seconds float64) []byte {
	t.Helper()

	const rate = 44100
	path := filepath.Join(t.TempDir(), "tone.wav")
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}

	n := int(seconds * rate)
	data := make([]int, n)
	for i := range data {
		data[i] = int(8000 * math.Sin(2*math.Pi*440*float64(i)/rate))
	}

	enc := wav.NewEncoder(f, rate, 16, 1, 1)
	buf := &goaudio.IntBuffer{Format: &goaudio.Format{NumChannels: 1, SampleRate: rate}, Data: data, SourceBitDepth: 16}
	if err := enc.Write(buf); err != nil {
		t.Fatal(err)
	}
	if err := enc.Close(); err != nil {
		t.Fatal(err)
	}
	f.Close()

	out, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	return out
}

func testJPEG(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 320, 240))
	for y := 0; y < 240; y++ {
		for x := 0; x < 320; x++ {
			img.Set(x, y, color.RGBA{uint8(x), uint8(y), 180, 255})
		}
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, nil); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

// TestFFmpegEngineEndToEnd runs the real recipe when ffmpeg is installed.
func TestFFmpegEngineEndToEnd(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping ffmpeg run in short mode")
	}
	if _, err := exec.LookPath("ffmpeg"); err != nil {
		t.Skip("ffmpeg not installed")
	}

	eng := NewFFmpegEngine("", nil)
	defer eng.Close()

	reg := blob.NewRegistry()
	img := reg.Create(testJPEG(t), "image/jpeg")
	asset := &audio.Asset{Name: "tone.wav", Type: audio.TypeWAV, Data: testWAV(t, 3)}

	var last int
	p := NewPipeline(eng, reg)
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	art, err := p.CreateVideo(ctx, asset, img, 3*time.Second, func(pct int) { last = pct })
	if err != nil {
		var se *StageError
		if errors.As(err, &se) && se.Stage == StateEncoding {
			t.Skipf("ffmpeg lacks the required encoders: %v", err)
		}
		t.Fatalf("CreateVideo: %v", err)
	}

	if art.Size() == 0 {
		t.Fatal("empty artifact")
	}
	// MP4 files carry an ftyp box at offset 4
	if len(art.Data) < 8 || string(art.Data[4:8]) != "ftyp" {
		t.Errorf("output does not look like MP4")
	}
	if last != 100 {
		t.Errorf("final progress = %d, want 100", last)
	}

	entries, err := os.ReadDir(eng.Dir())
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 0 {
		t.Errorf("%d files left in working directory", len(entries))
	}

	checkStreams(t, art.Data, 3*time.Second)
}

// checkStreams inspects an MP4 with ffprobe: the length of the shorter
// input, one H.264 yuv420p video stream and one AAC audio stream.
func checkStreams(t *testing.T, data []byte, want time.Duration) {
	t.Helper()
	ffprobe, err := exec.LookPath("ffprobe")
	if err != nil {
		t.Skip("ffprobe not installed")
	}

	path := filepath.Join(t.TempDir(), "out.mp4")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}
	out, err := exec.Command(ffprobe, "-v", "error",
		"-show_entries", "format=duration:stream=codec_type,codec_name,pix_fmt",
		"-of", "json", path).Output()
	if err != nil {
		t.Fatalf("ffprobe: %v", err)
	}

	var info struct {
		Format struct {
			Duration string `json:"duration"`
		} `json:"format"`
		Streams []struct {
			CodecType string `json:"codec_type"`
			CodecName string `json:"codec_name"`
			PixFmt    string `json:"pix_fmt"`
		} `json:"streams"`
	}
	if err := json.Unmarshal(out, &info); err != nil {
		t.Fatalf("ffprobe output: %v", err)
	}

	secs, err := strconv.ParseFloat(info.Format.Duration, 64)
	if err != nil {
		t.Fatalf("duration %q: %v", info.Format.Duration, err)
	}
	if got := time.Duration(secs * float64(time.Second)); got < want-200*time.Millisecond || got > want+200*time.Millisecond {
		t.Errorf("duration = %v, want about %v", got, want)
	}

	var videos, tracks int
	for _, st := range info.Streams {
		switch st.CodecType {
		case "video":
			videos++
			if st.CodecName != "h264" || st.PixFmt != "yuv420p" {
				t.Errorf("video stream = %s %s, want h264 yuv420p", st.CodecName, st.PixFmt)
			}
		case "audio":
			tracks++
			if st.CodecName != "aac" {
				t.Errorf("audio stream = %s, want aac", st.CodecName)
			}
		}
	}
	if videos != 1 || tracks != 1 {
		t.Errorf("streams: %d video, %d audio; want one of each", videos, tracks)
	}
}
