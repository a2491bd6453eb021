package renderer

import (
	"bytes"
	"fmt"
	"image"
	_ "image/jpeg" // register JPEG for image.Decode
	_ "image/png"  // register PNG for image.Decode

	"github.com/golang/freetype/truetype"
	"golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/gobold"
	"golang.org/x/image/font/gofont/gomono"
)

// LoadBackground decodes a JPEG or PNG and scales it to cover a width x
// height frame, cropping the overflow evenly from both sides.
func LoadBackground(data []byte, width, height int) (*image.RGBA, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to decode background image: %w", err)
	}

	dst := image.NewRGBA(image.Rect(0, 0, width, height))
	src := coverRect(img.Bounds(), width, height)

	if src.Dx() == width && src.Dy() == height {
		draw.Draw(dst, dst.Bounds(), img, src.Min, draw.Src)
	} else {
		draw.ApproxBiLinear.Scale(dst, dst.Bounds(), img, src, draw.Src, nil)
	}
	return dst, nil
}

// coverRect returns the centred region of b with the aspect ratio of width x height.
func coverRect(b image.Rectangle, width, height int) image.Rectangle {
	srcW, srcH := b.Dx(), b.Dy()
	if srcW == 0 || srcH == 0 {
		return b
	}

	// Compare srcW/srcH against width/height without floating point
	switch {
	case srcW*height > width*srcH:
		cropW := srcH * width / height
		x := b.Min.X + (srcW-cropW)/2
		return image.Rect(x, b.Min.Y, x+cropW, b.Max.Y)
	case srcW*height < width*srcH:
		cropH := srcW * height / width
		y := b.Min.Y + (srcH-cropH)/2
		return image.Rect(b.Min.X, y, b.Max.X, y+cropH)
	default:
		return b
	}
}

// LoadFace parses a TrueType font and returns a face at size pixels.
func LoadFace(ttf []byte, size float64) (font.Face, error) {
	f, err := truetype.Parse(ttf)
	if err != nil {
		return nil, fmt.Errorf("failed to parse font: %w", err)
	}

	return truetype.NewFace(f, &truetype.Options{
		Size:    size,
		DPI:     72,
		Hinting: font.HintingFull,
	}), nil
}

// MonoFace returns the bundled Go Mono face used for matrix glyphs.
func MonoFace(size float64) (font.Face, error) {
	return LoadFace(gomono.TTF, size)
}

// BoldFace returns the bundled Go Bold face used for overlay text.
func BoldFace(size float64) (font.Face, error) {
	return LoadFace(gobold.TTF, size)
}
