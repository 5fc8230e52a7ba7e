package core

import (
	"bytes"
	"image/png"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewCanvasValidatesLength(t *testing.T) {
	_, err := NewCanvas(Dimensions{Width: 2, Height: 2}, make([]byte, 11))
	require.ErrorIs(t, err, ErrCanvasSize)

	_, err = NewCanvas(Dimensions{}, nil)
	require.ErrorIs(t, err, ErrCanvasSize)
}

func TestCanvasAt(t *testing.T) {
	data := []byte{
		1, 2, 3, 4, 5, 6,
		7, 8, 9, 10, 11, 12,
	}
	canvas, err := NewCanvas(Dimensions{Width: 2, Height: 2}, data)
	require.NoError(t, err)

	require.Equal(t, RGB(1, 2, 3), canvas.At(0, 0))
	require.Equal(t, RGB(4, 5, 6), canvas.At(1, 0))
	require.Equal(t, RGB(7, 8, 9), canvas.At(0, 1))
	require.Equal(t, RGB(10, 11, 12), canvas.At(1, 1))
	require.Panics(t, func() { canvas.At(2, 0) })

	canvas.Set(1, 1, RGB(0, 0, 0))
	require.Equal(t, RGB(0, 0, 0), canvas.At(1, 1))
}

func TestCanvasEncodePNG(t *testing.T) {
	canvas, err := NewCanvas(Dimensions{Width: 1, Height: 2}, []byte{255, 0, 0, 0, 0, 255})
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, canvas.EncodePNG(&buf))

	img, err := png.Decode(&buf)
	require.NoError(t, err)
	require.Equal(t, 1, img.Bounds().Dx())
	require.Equal(t, 2, img.Bounds().Dy())

	r, g, b, _ := img.At(0, 1).RGBA()
	require.Equal(t, uint32(0), r)
	require.Equal(t, uint32(0), g)
	require.Equal(t, uint32(0xffff), b)
}
