package autodraw

import (
	"errors"
	"fmt"
	"image"

	"github.com/pixelctl/pixelctl/internal/core"
)

// ErrEmptyPlan is returned for plans without pixels.
var ErrEmptyPlan = errors.New("plan has no pixels")

// Plan is a rectangle of colours anchored at (X, Y) on the canvas.
type Plan struct {
	X    int
	Y    int
	Grid [][]core.Color
}

// PlanPixel is one plan cell in canvas coordinates.
type PlanPixel struct {
	X     int
	Y     int
	Color core.Color
}

// NewPlan validates that grid is a non-empty rectangle.
func NewPlan(x, y int, grid [][]core.Color) (*Plan, error) {
	if len(grid) == 0 || len(grid[0]) == 0 {
		return nil, ErrEmptyPlan
	}
	width := len(grid[0])
	for row, line := range grid {
		if len(line) != width {
			return nil, fmt.Errorf("plan row %d has %d pixels, want %d", row, len(line), width)
		}
	}
	return &Plan{X: x, Y: y, Grid: grid}, nil
}

func (p *Plan) Width() int {
	if len(p.Grid) == 0 {
		return 0
	}
	return len(p.Grid[0])
}

func (p *Plan) Height() int {
	return len(p.Grid)
}

// At returns the colour at plan offset (dx, dy).
func (p *Plan) At(dx, dy int) core.Color {
	return p.Grid[dy][dx]
}

// Bounds is the canvas rectangle the plan covers.
func (p *Plan) Bounds() image.Rectangle {
	return image.Rect(p.X, p.Y, p.X+p.Width(), p.Y+p.Height())
}

// Fits reports whether the plan lies entirely on a canvas of size.
func (p *Plan) Fits(size core.Dimensions) bool {
	return p.Bounds().In(image.Rect(0, 0, size.Width, size.Height))
}

// Pixels lists every plan cell column by column, top to bottom.
func (p *Plan) Pixels() []PlanPixel {
	out := make([]PlanPixel, 0, p.Width()*p.Height())
	for dx := 0; dx < p.Width(); dx++ {
		for dy := 0; dy < p.Height(); dy++ {
			out = append(out, PlanPixel{X: p.X + dx, Y: p.Y + dy, Color: p.Grid[dy][dx]})
		}
	}
	return out
}

// Diff lists the plan cells whose canvas colour differs, in Pixels order.
// Cells outside the canvas are ignored.
func (p *Plan) Diff(canvas *core.Canvas) []PlanPixel {
	var out []PlanPixel
	for _, pixel := range p.Pixels() {
		if !canvas.Contains(pixel.X, pixel.Y) {
			continue
		}
		if canvas.At(pixel.X, pixel.Y) != pixel.Color {
			out = append(out, pixel)
		}
	}
	return out
}

// Image renders the plan as an opaque image.
func (p *Plan) Image() *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, p.Width(), p.Height()))
	for dy, row := range p.Grid {
		for dx, c := range row {
			img.Set(dx, dy, c)
		}
	}
	return img
}
