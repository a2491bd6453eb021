package renderer

import (
	"fmt"
	"image"
	"image/png"
	"io"
	"os"
	"sync"

	"github.com/linuxmatters/jivecanvas/internal/config"
)

var framePool = sync.Pool{
	New: func() interface{} {
		return image.NewRGBA(image.Rect(0, 0, config.Width, config.Height))
	},
}

// AcquireFrame returns a canvas-sized frame buffer from the pool. Its
// contents are undefined until Compose overwrites them.
func AcquireFrame() *image.RGBA {
	return framePool.Get().(*image.RGBA)
}

// ReleaseFrame returns a frame buffer to the pool.
func ReleaseFrame(img *image.RGBA) {
	if img != nil && img.Rect.Dx() == config.Width && img.Rect.Dy() == config.Height {
		framePool.Put(img)
	}
}

// EncodePNG writes img as PNG.
func EncodePNG(w io.Writer, img image.Image) error {
	if err := png.Encode(w, img); err != nil {
		return fmt.Errorf("failed to encode PNG: %w", err)
	}
	return nil
}

// SavePNG writes img to a PNG file at path.
func SavePNG(img image.Image, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := EncodePNG(f, img); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
