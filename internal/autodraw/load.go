package autodraw

import (
	"bufio"
	"fmt"
	"image"
	stddraw "image/draw"
	_ "image/jpeg" // register decoder
	_ "image/png"  // register decoder
	"io"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	xdraw "golang.org/x/image/draw"
	"gopkg.in/yaml.v3"

	"github.com/pixelctl/pixelctl/internal/core"
)

// PlanFromImage converts img into a plan at (x, y). Transparent areas are
// composited over black and the image is resized by scale first.
func PlanFromImage(img image.Image, x, y int, scale float64) (*Plan, error) {
	if img == nil {
		return nil, ErrEmptyPlan
	}
	if scale <= 0 || math.IsNaN(scale) || math.IsInf(scale, 0) {
		return nil, fmt.Errorf("scale must be positive, got %v", scale)
	}

	bounds := img.Bounds()
	flat := image.NewRGBA(image.Rect(0, 0, bounds.Dx(), bounds.Dy()))
	stddraw.Draw(flat, flat.Bounds(), image.Black, image.Point{}, stddraw.Src)
	stddraw.Draw(flat, flat.Bounds(), img, bounds.Min, stddraw.Over)

	width := int(math.Round(float64(bounds.Dx()) * scale))
	height := int(math.Round(float64(bounds.Dy()) * scale))
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("scaled image is empty (%dx%d)", width, height)
	}

	resized := flat
	if width != bounds.Dx() || height != bounds.Dy() {
		resized = image.NewRGBA(image.Rect(0, 0, width, height))
		xdraw.ApproxBiLinear.Scale(resized, resized.Bounds(), flat, flat.Bounds(), xdraw.Src, nil)
	}

	grid := make([][]core.Color, height)
	for dy := 0; dy < height; dy++ {
		grid[dy] = make([]core.Color, width)
		for dx := 0; dx < width; dx++ {
			c := resized.RGBAAt(dx, dy)
			grid[dy][dx] = core.RGB(c.R, c.G, c.B)
		}
	}
	return NewPlan(x, y, grid)
}

// LoadTextPlan reads the line format: x, y, width and height, followed by
// width*height hex colours in row order.
func LoadTextPlan(r io.Reader) (*Plan, error) {
	var lines []string
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		lines = append(lines, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read plan: %w", err)
	}
	if len(lines) < 4 {
		return nil, fmt.Errorf("plan header needs 4 lines, got %d", len(lines))
	}

	header := make([]int, 4)
	names := []string{"x", "y", "width", "height"}
	for i := range header {
		value, err := strconv.Atoi(lines[i])
		if err != nil {
			return nil, fmt.Errorf("plan %s %q: %w", names[i], lines[i], err)
		}
		header[i] = value
	}

	return gridFromHex(header[0], header[1], header[2], header[3], lines[4:])
}

type yamlPlan struct {
	X      int      `yaml:"x"`
	Y      int      `yaml:"y"`
	Width  int      `yaml:"width"`
	Height int      `yaml:"height"`
	Pixels []string `yaml:"pixels"`
}

// LoadYAMLPlan reads a plan document with x, y, width, height and a flat
// list of hex colours.
func LoadYAMLPlan(r io.Reader) (*Plan, error) {
	var doc yamlPlan
	if err := yaml.NewDecoder(r).Decode(&doc); err != nil {
		return nil, fmt.Errorf("decode plan: %w", err)
	}
	return gridFromHex(doc.X, doc.Y, doc.Width, doc.Height, doc.Pixels)
}

// LoadOptions controls LoadPlanFile.
type LoadOptions struct {
	// Origin places the plan; nil keeps the file's own coordinates, or
	// (0, 0) for images.
	Origin *image.Point
	// Scale resizes the plan; zero means 1.
	Scale float64
}

// LoadPlanFile picks a loader by extension: .png, .jpg and .jpeg are images,
// .yaml and .yml are plan documents and anything else is the line format.
func LoadPlanFile(path string, opts LoadOptions) (*Plan, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close() // nolint:errcheck // read-only file

	scale := opts.Scale
	if scale == 0 {
		scale = 1
	}

	var plan *Plan
	switch strings.ToLower(filepath.Ext(path)) {
	case ".png", ".jpg", ".jpeg":
		img, _, err := image.Decode(file)
		if err != nil {
			return nil, fmt.Errorf("decode image %s: %w", path, err)
		}
		origin := image.Point{}
		if opts.Origin != nil {
			origin = *opts.Origin
		}
		return PlanFromImage(img, origin.X, origin.Y, scale)
	case ".yaml", ".yml":
		plan, err = LoadYAMLPlan(file)
	default:
		plan, err = LoadTextPlan(file)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	if opts.Origin != nil {
		plan.X, plan.Y = opts.Origin.X, opts.Origin.Y
	}
	if scale != 1 {
		return PlanFromImage(plan.Image(), plan.X, plan.Y, scale)
	}
	return plan, nil
}

func gridFromHex(x, y, width, height int, pixels []string) (*Plan, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("plan size must be positive, got %dx%d", width, height)
	}
	if len(pixels) < width*height {
		return nil, fmt.Errorf("plan needs %d pixels, got %d", width*height, len(pixels))
	}

	grid := make([][]core.Color, height)
	for dy := 0; dy < height; dy++ {
		grid[dy] = make([]core.Color, width)
		for dx := 0; dx < width; dx++ {
			raw := pixels[dy*width+dx]
			c, err := core.ParseHex(raw)
			if err != nil {
				return nil, fmt.Errorf("pixel (%d, %d): %w", dx, dy, err)
			}
			grid[dy][dx] = c
		}
	}
	return NewPlan(x, y, grid)
}
