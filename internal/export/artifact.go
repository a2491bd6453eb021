package export

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/linuxmatters/jivecanvas/internal/blob"
	"github.com/linuxmatters/jivecanvas/internal/config"
)

// MIMEType of every artifact.
const MIMEType = "video/mp4"

// FallbackFilename is used when no audio name is available.
const FallbackFilename = "music-visualizer.mp4"

// Artifact is a finished video.
type Artifact struct {
	Name     string
	MIMEType string
	Data     []byte
	URL      string // blob: reference, empty when no registry is attached
}

// Size returns the payload length in bytes.
func (a *Artifact) Size() int {
	return len(a.Data)
}

// DefaultFilename derives the download name from the audio file name: the
// part before the first dot, suffixed with -visualizer.mp4.
func DefaultFilename(audioName string) string {
	base, _, _ := strings.Cut(filepath.Base(audioName), ".")
	if base == "" || base == string(filepath.Separator) {
		return FallbackFilename
	}
	return base + "-visualizer.mp4"
}

// Download writes the artifact to w and schedules release of its reference
// after config.ReleaseDelay, whether or not the write succeeded.
func Download(reg *blob.Registry, a *Artifact, w io.Writer) error {
	if reg != nil && a.URL != "" {
		defer reg.RevokeAfter(a.URL, config.ReleaseDelay)
	}

	if _, err := w.Write(a.Data); err != nil {
		return fmt.Errorf("%w: %v", ErrDownload, err)
	}
	return nil
}

// DownloadFile writes the artifact into dir under its own name, or to
// path directly when path is not a directory. It returns the written path.
func DownloadFile(reg *blob.Registry, a *Artifact, path string) (string, error) {
	if info, err := os.Stat(path); err == nil && info.IsDir() {
		path = filepath.Join(path, a.Name)
	}

	f, err := os.Create(path)
	if err != nil {
		if reg != nil && a.URL != "" {
			reg.RevokeAfter(a.URL, config.ReleaseDelay)
		}
		return "", fmt.Errorf("%w: %v", ErrDownload, err)
	}

	if err := Download(reg, a, f); err != nil {
		f.Close()
		return "", err
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("%w: %v", ErrDownload, err)
	}
	return path, nil
}
