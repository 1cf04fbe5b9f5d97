// Package colour provides colour parsing, perceptual colour-space processing and
// gradient generation for background strategies.
package colour

import (
	"fmt"
	"image/color"
	"strings"

	"github.com/lucasb-eyer/go-colorful"
)

// RGB represents a colour in 8-bit sRGB.
type RGB struct {
	R uint8 `json:"r" yaml:"r"`
	G uint8 `json:"g" yaml:"g"`
	B uint8 `json:"b" yaml:"b"`
}

// String returns the RGB colour as a string in the format "rgb(r, g, b)".
func (rgb RGB) String() string {
	return fmt.Sprintf("rgb(%d, %d, %d)", rgb.R, rgb.G, rgb.B)
}

// Hex returns the RGB colour as a hex string (e.g., "#1a2b3c").
func (rgb RGB) Hex() string {
	return fmt.Sprintf("#%02x%02x%02x", rgb.R, rgb.G, rgb.B)
}

// Triplet returns the colour as a bare "r,g,b" string, the format consumed by
// rgba(var(--x), a) style CSS declarations.
func (rgb RGB) Triplet() string {
	return fmt.Sprintf("%d,%d,%d", rgb.R, rgb.G, rgb.B)
}

// Colorful converts the colour to a go-colorful value.
func (rgb RGB) Colorful() colorful.Color {
	return colorful.Color{
		R: float64(rgb.R) / 255.0,
		G: float64(rgb.G) / 255.0,
		B: float64(rgb.B) / 255.0,
	}
}

// RGBA converts the colour to an opaque color.RGBA.
func (rgb RGB) RGBA() color.RGBA {
	return color.RGBA{R: rgb.R, G: rgb.G, B: rgb.B, A: 255}
}

// FromColorful converts a go-colorful value to RGB, clamping out-of-gamut channels.
func FromColorful(c colorful.Color) RGB {
	r, g, b := c.Clamped().RGB255()
	return RGB{R: r, G: g, B: b}
}

// ToRGB converts a color.Color to RGB.
func ToRGB(c color.Color) RGB {
	r, g, b, _ := c.RGBA()
	// RGBA returns values in the range [0, 65535], convert to [0, 255]
	return RGB{
		R: uint8(r >> 8),
		G: uint8(g >> 8),
		B: uint8(b >> 8),
	}
}

// ParseHex parses "#rgb" or "#rrggbb". The leading hash is required so that
// arbitrary words are never read as colours.
func ParseHex(s string) (RGB, error) {
	t := strings.TrimSpace(s)
	if !strings.HasPrefix(t, "#") {
		return RGB{}, fmt.Errorf("invalid hex colour %q: missing leading '#'", s)
	}
	h := t[1:]
	switch len(h) {
	case 3:
		h = string([]byte{h[0], h[0], h[1], h[1], h[2], h[2]})
	case 6:
	default:
		return RGB{}, fmt.Errorf("invalid hex colour %q: expected 3 or 6 hex digits", s)
	}

	c, err := colorful.Hex("#" + strings.ToLower(h))
	if err != nil {
		return RGB{}, fmt.Errorf("invalid hex colour %q: %w", s, err)
	}
	return FromColorful(c), nil
}

// MustParseHex is ParseHex for compile-time constants; it panics on malformed input.
func MustParseHex(s string) RGB {
	rgb, err := ParseHex(s)
	if err != nil {
		panic(err)
	}
	return rgb
}

// Mix blends two colours in sRGB space. t=0 returns a, t=1 returns b.
func Mix(a, b RGB, t float64) RGB {
	t = clamp(t, 0, 1)
	return RGB{
		R: uint8(float64(a.R) + (float64(b.R)-float64(a.R))*t + 0.5),
		G: uint8(float64(a.G) + (float64(b.G)-float64(a.G))*t + 0.5),
		B: uint8(float64(a.B) + (float64(b.B)-float64(a.B))*t + 0.5),
	}
}
