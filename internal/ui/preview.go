package ui

import (
	"fmt"
	"image"
	"image/color"
	"strings"
)

// PreviewConfig holds configuration for the terminal frame preview
type PreviewConfig struct {
	Width  int // Width in terminal cells
	Height int // Height in terminal cells, each cell shows two pixel rows
}

// DefaultPreviewConfig returns a 64x24 cell preview. With half-block cells
// that is 64x48 pixels, the 4:3 shape of the canvas.
func DefaultPreviewConfig() PreviewConfig {
	return PreviewConfig{
		Width:  64,
		Height: 24,
	}
}

// DownsampleFrame averages frame into a grid of config.Width by
// 2*config.Height pixels. Each output pixel covers a rectangular region of
// the source.
func DownsampleFrame(frame *image.RGBA, config PreviewConfig) [][]color.RGBA {
	bounds := frame.Bounds()
	srcWidth := bounds.Dx()
	srcHeight := bounds.Dy()
	cols, rows := config.Width, config.Height*2
	if cols <= 0 || rows <= 0 || srcWidth == 0 || srcHeight == 0 {
		return nil
	}

	grid := make([][]color.RGBA, rows)
	for row := 0; row < rows; row++ {
		grid[row] = make([]color.RGBA, cols)
		y0 := row * srcHeight / rows
		y1 := max((row+1)*srcHeight/rows, y0+1)

		for col := 0; col < cols; col++ {
			x0 := col * srcWidth / cols
			x1 := max((col+1)*srcWidth/cols, x0+1)

			var sumR, sumG, sumB, n uint32
			for y := y0; y < y1 && y < srcHeight; y++ {
				off := frame.PixOffset(bounds.Min.X+x0, bounds.Min.Y+y)
				for x := x0; x < x1 && x < srcWidth; x++ {
					sumR += uint32(frame.Pix[off])
					sumG += uint32(frame.Pix[off+1])
					sumB += uint32(frame.Pix[off+2])
					off += 4
					n++
				}
			}
			if n > 0 {
				grid[row][col] = color.RGBA{R: uint8(sumR / n), G: uint8(sumG / n), B: uint8(sumB / n), A: 255}
			}
		}
	}

	return grid
}

// RenderPreview draws a downsampled grid with upper half-block characters,
// the foreground colouring the top pixel and the background the bottom one.
func RenderPreview(grid [][]color.RGBA) string {
	if len(grid) == 0 {
		return ""
	}
	width := len(grid[0])

	var b strings.Builder
	b.WriteString("┌" + strings.Repeat("─", width) + "┐\n")
	for row := 0; row+1 < len(grid); row += 2 {
		b.WriteString("│")
		for col := 0; col < width; col++ {
			top, bottom := grid[row][col], grid[row+1][col]
			fmt.Fprintf(&b, "\x1b[38;2;%d;%d;%dm\x1b[48;2;%d;%d;%dm▀",
				top.R, top.G, top.B, bottom.R, bottom.G, bottom.B)
		}
		b.WriteString("\x1b[0m│\n")
	}
	b.WriteString("└" + strings.Repeat("─", width) + "┘")

	return b.String()
}
