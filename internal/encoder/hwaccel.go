package encoder

import (
	"context"
	"fmt"
	"os/exec"
	"runtime"
	"strings"
	"time"
)

// HWAccelType represents a hardware acceleration type
type HWAccelType string

const (
	HWAccelNone         HWAccelType = "none"         // Software encoding (libx264)
	HWAccelAuto         HWAccelType = "auto"         // Auto-detect best available
	HWAccelNVENC        HWAccelType = "nvenc"        // NVIDIA NVENC
	HWAccelQSV          HWAccelType = "qsv"          // Intel Quick Sync Video
	HWAccelVAAPI        HWAccelType = "vaapi"        // VA-API (AMD, Intel, older hardware)
	HWAccelVideoToolbox HWAccelType = "videotoolbox" // Apple VideoToolbox (macOS)
)

// ParseHWAccel validates a --hwaccel value.
func ParseHWAccel(s string) (HWAccelType, error) {
	switch t := HWAccelType(strings.ToLower(strings.TrimSpace(s))); t {
	case "":
		return HWAccelNone, nil
	case HWAccelNone, HWAccelAuto, HWAccelNVENC, HWAccelQSV, HWAccelVAAPI, HWAccelVideoToolbox:
		return t, nil
	default:
		return "", fmt.Errorf("unknown hardware acceleration %q", s)
	}
}

// HWEncoder represents a detected hardware encoder
type HWEncoder struct {
	Name        string      // Encoder name (e.g., "h264_nvenc")
	Type        HWAccelType // Hardware acceleration type
	Available   bool        // Whether a probe encode succeeded
	Description string      // Human-readable description
}

// encoderSpec defines a hardware encoder configuration for priority lists
type encoderSpec struct {
	name      string
	accelType HWAccelType
	desc      string
}

// linuxEncoderPriority defines the encoder preference order for Linux
// Priority: nvenc > qsv > vaapi > software
var linuxEncoderPriority = []encoderSpec{
	{"h264_nvenc", HWAccelNVENC, "NVIDIA NVENC"},
	{"h264_qsv", HWAccelQSV, "Intel Quick Sync Video"},
	{"h264_vaapi", HWAccelVAAPI, "VA-API"},
}

// macOSEncoderPriority defines the encoder preference order for macOS
var macOSEncoderPriority = []encoderSpec{
	{"h264_videotoolbox", HWAccelVideoToolbox, "Apple VideoToolbox"},
}

// vaapiDevice is the render node used for VA-API encodes.
const vaapiDevice = "/dev/dri/renderD128"

// probeTimeout bounds a single capability probe.
const probeTimeout = 10 * time.Second

// videoCodecArgs returns the output arguments for encoding with enc, or
// libx264 when enc is nil. Quality targets roughly match across encoders.
func videoCodecArgs(enc *HWEncoder) []string {
	if enc == nil {
		return []string{"-c:v", "libx264", "-preset", "medium", "-crf", "23", "-pix_fmt", "yuv420p"}
	}
	switch enc.Type {
	case HWAccelNVENC:
		return []string{"-c:v", enc.Name, "-preset", "p4", "-cq", "23", "-pix_fmt", "yuv420p"}
	case HWAccelQSV:
		return []string{"-c:v", enc.Name, "-global_quality", "23", "-pix_fmt", "nv12"}
	case HWAccelVAAPI:
		return []string{"-vf", "format=nv12,hwupload", "-c:v", enc.Name, "-qp", "23"}
	case HWAccelVideoToolbox:
		return []string{"-c:v", enc.Name, "-q:v", "65", "-pix_fmt", "yuv420p"}
	default:
		return []string{"-c:v", enc.Name}
	}
}

// inputArgs returns global arguments an encoder needs before its inputs.
func inputArgs(enc *HWEncoder) []string {
	if enc != nil && enc.Type == HWAccelVAAPI {
		return []string{"-vaapi_device", vaapiDevice}
	}
	return nil
}

// testEncoderAvailable encodes a few synthetic frames with the encoder. This
// catches encoders that are compiled in but have no usable hardware.
func testEncoderAvailable(ctx context.Context, ffmpegPath string, enc *HWEncoder) bool {
	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	args := []string{"-hide_banner", "-nostdin", "-loglevel", "error"}
	args = append(args, inputArgs(enc)...)
	args = append(args, "-f", "lavfi", "-i", "color=c=black:s=256x256:r=30:d=0.2")
	args = append(args, videoCodecArgs(enc)...)
	args = append(args, "-f", "null", "-")

	return exec.CommandContext(ctx, ffmpegPath, args...).Run() == nil
}

// DetectHWEncoders probes for available hardware encoders
// Returns a list of detected encoders in priority order
func DetectHWEncoders(ctx context.Context, ffmpegPath string) []HWEncoder {
	var priority []encoderSpec

	switch runtime.GOOS {
	case "darwin":
		priority = macOSEncoderPriority
	default: // Linux and others
		priority = linuxEncoderPriority
	}

	listed := listEncoders(ctx, ffmpegPath)

	encoders := make([]HWEncoder, 0, len(priority))
	for _, spec := range priority {
		enc := HWEncoder{
			Name:        spec.name,
			Type:        spec.accelType,
			Description: spec.desc,
		}
		// Only probe encoders this ffmpeg build knows about
		if listed[spec.name] {
			enc.Available = testEncoderAvailable(ctx, ffmpegPath, &enc)
		}
		encoders = append(encoders, enc)
	}
	return encoders
}

// listEncoders returns the encoder names printed by ffmpeg -encoders.
func listEncoders(ctx context.Context, ffmpegPath string) map[string]bool {
	out, err := exec.CommandContext(ctx, ffmpegPath, "-hide_banner", "-encoders").Output()
	if err != nil {
		return nil
	}
	return parseEncoderList(string(out))
}

// parseEncoderList reads lines like " V....D h264_nvenc   NVIDIA NVENC H.264 encoder".
func parseEncoderList(out string) map[string]bool {
	names := make(map[string]bool)
	for _, line := range strings.Split(out, "\n") {
		fields := strings.Fields(line)
		if len(fields) < 2 || len(fields[0]) != 6 || strings.Trim(fields[0], "VASFXBD.") != "" {
			continue
		}
		names[fields[1]] = true
	}
	return names
}

// SelectBestEncoder returns the best available encoder based on priority
// If requestedType is HWAccelAuto, it selects the first available hardware encoder
// If requestedType is HWAccelNone, it returns nil (use software)
// Otherwise, it attempts to use the requested type if available
func SelectBestEncoder(ctx context.Context, ffmpegPath string, requestedType HWAccelType) *HWEncoder {
	if requestedType == HWAccelNone || requestedType == "" {
		return nil
	}
	return selectFrom(DetectHWEncoders(ctx, ffmpegPath), requestedType)
}

func selectFrom(encoders []HWEncoder, requestedType HWAccelType) *HWEncoder {
	for i := range encoders {
		if !encoders[i].Available {
			continue
		}
		if requestedType == HWAccelAuto || encoders[i].Type == requestedType {
			return &encoders[i]
		}
	}
	return nil
}

// GetEncoderStatus returns a human-readable status of all hardware encoders
func GetEncoderStatus(ctx context.Context, ffmpegPath string) string {
	encoders := DetectHWEncoders(ctx, ffmpegPath)

	var sb strings.Builder
	sb.WriteString("Hardware Encoder Status:\n")

	for _, enc := range encoders {
		status := "not available"
		if enc.Available {
			status = "available"
		}
		fmt.Fprintf(&sb, "  %s (%s): %s\n", enc.Description, enc.Name, status)
	}

	return sb.String()
}
