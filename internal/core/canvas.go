package core

import (
	"errors"
	"fmt"
	"image"
	"image/png"
	"io"
)

// ErrCanvasSize is returned when raw canvas data does not match the dimensions.
var ErrCanvasSize = errors.New("canvas data does not match dimensions")

// Canvas holds the full pixel grid as returned by the get_pixels endpoint:
// row-major RGB triples, three bytes per pixel.
type Canvas struct {
	Dimensions
	Raw []byte
}

// NewCanvas validates raw RGB data against the canvas dimensions.
func NewCanvas(size Dimensions, data []byte) (*Canvas, error) {
	if size.Width <= 0 || size.Height <= 0 {
		return nil, fmt.Errorf("%w: %dx%d", ErrCanvasSize, size.Width, size.Height)
	}
	if want := size.Width * size.Height * 3; len(data) != want {
		return nil, fmt.Errorf("%w: got %d bytes, want %d", ErrCanvasSize, len(data), want)
	}
	return &Canvas{Dimensions: size, Raw: data}, nil
}

// At returns the colour at (x, y). Coordinates outside the canvas panic,
// like an out-of-range slice index.
func (c *Canvas) At(x, y int) Color {
	if !c.Contains(x, y) {
		panic(fmt.Sprintf("canvas: (%d, %d) outside %dx%d", x, y, c.Width, c.Height))
	}
	offset := (y*c.Width + x) * 3
	return Color{R: c.Raw[offset], G: c.Raw[offset+1], B: c.Raw[offset+2]}
}

// Set overwrites the colour at (x, y) in the local copy.
func (c *Canvas) Set(x, y int, value Color) {
	if !c.Contains(x, y) {
		return
	}
	offset := (y*c.Width + x) * 3
	c.Raw[offset], c.Raw[offset+1], c.Raw[offset+2] = value.R, value.G, value.B
}

// Image converts the canvas into an RGBA image.
func (c *Canvas) Image() *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, c.Width, c.Height))
	for i := 0; i < c.Width*c.Height; i++ {
		img.Pix[i*4] = c.Raw[i*3]
		img.Pix[i*4+1] = c.Raw[i*3+1]
		img.Pix[i*4+2] = c.Raw[i*3+2]
		img.Pix[i*4+3] = 0xff
	}
	return img
}

// EncodePNG writes the canvas as a PNG image.
func (c *Canvas) EncodePNG(w io.Writer) error {
	return png.Encode(w, c.Image())
}
