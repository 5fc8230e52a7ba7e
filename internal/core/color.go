package core

import (
	"errors"
	"fmt"
	"image/color"
	"strconv"
	"strings"

	"golang.org/x/image/colornames"
)

// ErrInvalidColor is returned when a value cannot be interpreted as a colour.
var ErrInvalidColor = errors.New("invalid color")

// Color is a 24-bit RGB colour as used by the canvas API.
type Color struct {
	R uint8
	G uint8
	B uint8
}

// RGB builds a colour from its components.
func RGB(r, g, b uint8) Color {
	return Color{R: r, G: g, B: b}
}

// ColorFromInt unpacks a 0xRRGGBB integer.
func ColorFromInt(value int) (Color, error) {
	if value < 0 || value > 0xFFFFFF {
		return Color{}, fmt.Errorf("%w: %d out of range", ErrInvalidColor, value)
	}
	return Color{R: uint8(value >> 16), G: uint8(value >> 8), B: uint8(value)}, nil
}

// ParseHex parses "#rrggbb" or "rrggbb".
func ParseHex(value string) (Color, error) {
	hex := strings.TrimPrefix(strings.TrimSpace(value), "#")
	if len(hex) != 6 {
		return Color{}, fmt.Errorf("%w: %q", ErrInvalidColor, value)
	}
	n, err := strconv.ParseUint(hex, 16, 32)
	if err != nil {
		return Color{}, fmt.Errorf("%w: %q", ErrInvalidColor, value)
	}
	return Color{R: uint8(n >> 16), G: uint8(n >> 8), B: uint8(n)}, nil
}

// ParseColor accepts hex strings, CSS colour names, 0xRRGGBB ints, RGB
// triples and image/color values.
func ParseColor(value any) (Color, error) {
	switch v := value.(type) {
	case Color:
		return v, nil
	case string:
		if c, err := ParseHex(v); err == nil {
			return c, nil
		}
		if named, ok := colornames.Map[strings.ToLower(strings.TrimSpace(v))]; ok {
			return Color{R: named.R, G: named.G, B: named.B}, nil
		}
		return Color{}, fmt.Errorf("%w: %q", ErrInvalidColor, v)
	case int:
		return ColorFromInt(v)
	case [3]int:
		return colorFromTriple(v[0], v[1], v[2])
	case []int:
		if len(v) != 3 {
			return Color{}, fmt.Errorf("%w: triple needs 3 components, got %d", ErrInvalidColor, len(v))
		}
		return colorFromTriple(v[0], v[1], v[2])
	case color.Color:
		r, g, b, _ := v.RGBA()
		return Color{R: uint8(r >> 8), G: uint8(g >> 8), B: uint8(b >> 8)}, nil
	default:
		return Color{}, fmt.Errorf("%w: unsupported type %T", ErrInvalidColor, value)
	}
}

func colorFromTriple(r, g, b int) (Color, error) {
	for _, component := range []int{r, g, b} {
		if component < 0 || component > 255 {
			return Color{}, fmt.Errorf("%w: component %d out of range", ErrInvalidColor, component)
		}
	}
	return Color{R: uint8(r), G: uint8(g), B: uint8(b)}, nil
}

// Hex returns the colour as "#rrggbb".
func (c Color) Hex() string {
	return fmt.Sprintf("#%02x%02x%02x", c.R, c.G, c.B)
}

// APIString returns the colour in the "rrggbb" form the set_pixel endpoint expects.
func (c Color) APIString() string {
	return strings.TrimPrefix(c.Hex(), "#")
}

// Int returns the colour packed as 0xRRGGBB.
func (c Color) Int() int {
	return int(c.R)<<16 | int(c.G)<<8 | int(c.B)
}

// Triple returns the colour components.
func (c Color) Triple() [3]int {
	return [3]int{int(c.R), int(c.G), int(c.B)}
}

// RGBA implements image/color.Color.
func (c Color) RGBA() (r, g, b, a uint32) {
	return color.RGBA{R: c.R, G: c.G, B: c.B, A: 0xff}.RGBA()
}

func (c Color) String() string {
	return c.Hex()
}

// MarshalText encodes the colour as "#rrggbb".
func (c Color) MarshalText() ([]byte, error) {
	return []byte(c.Hex()), nil
}

// UnmarshalText decodes a hex string or colour name.
func (c *Color) UnmarshalText(text []byte) error {
	parsed, err := ParseColor(string(text))
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}
