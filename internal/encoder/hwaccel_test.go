package encoder

import (
	"context"
	"os/exec"
	"testing"
)

func TestParseEncoderList(t *testing.T) {
	out := `Encoders:
 V..... = Video
 A..... = Audio
 ------
 V....D libx264              libx264 H.264 / AVC / MPEG-4 AVC (codec h264)
 V....D h264_nvenc           NVIDIA NVENC H.264 encoder (codec h264)
 V..... h264_vaapi           H.264/AVC (VAAPI) (codec h264)
 A....D aac                  AAC (Advanced Audio Coding)
`
	names := parseEncoderList(out)
	for _, want := range []string{"libx264", "h264_nvenc", "h264_vaapi", "aac"} {
		if !names[want] {
			t.Errorf("%s not parsed", want)
		}
	}
	if names["h264_qsv"] {
		t.Error("h264_qsv reported but not listed")
	}
}

func TestSelectFrom(t *testing.T) {
	encoders := []HWEncoder{
		{Name: "h264_nvenc", Type: HWAccelNVENC},
		{Name: "h264_qsv", Type: HWAccelQSV, Available: true},
		{Name: "h264_vaapi", Type: HWAccelVAAPI, Available: true},
	}

	tests := []struct {
		requested HWAccelType
		want      string
	}{
		{HWAccelAuto, "h264_qsv"},
		{HWAccelVAAPI, "h264_vaapi"},
		{HWAccelNVENC, ""},
		{HWAccelVideoToolbox, ""},
	}

	for _, tt := range tests {
		got := selectFrom(encoders, tt.requested)
		name := ""
		if got != nil {
			name = got.Name
		}
		if name != tt.want {
			t.Errorf("selectFrom(%s) = %q, want %q", tt.requested, name, tt.want)
		}
	}
}

func TestParseHWAccel(t *testing.T) {
	for in, want := range map[string]HWAccelType{
		"":      HWAccelNone,
		"AUTO":  HWAccelAuto,
		"nvenc": HWAccelNVENC,
		" qsv ": HWAccelQSV,
	} {
		got, err := ParseHWAccel(in)
		if err != nil || got != want {
			t.Errorf("ParseHWAccel(%q) = %q, %v; want %q", in, got, err, want)
		}
	}
	if _, err := ParseHWAccel("cuda"); err == nil {
		t.Error("unknown acceleration accepted")
	}
}

func TestSelectBestEncoderSoftware(t *testing.T) {
	if enc := SelectBestEncoder(context.Background(), "ffmpeg", HWAccelNone); enc != nil {
		t.Errorf("Expected nil for HWAccelNone, got %s", enc.Name)
	}
}

func TestGetEncoderStatus(t *testing.T) {
	bin, err := exec.LookPath("ffmpeg")
	if err != nil {
		t.Skip("ffmpeg not installed")
	}
	status := GetEncoderStatus(context.Background(), bin)
	t.Logf("\n%s", status)
}
