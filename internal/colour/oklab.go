package colour

import (
	"math"

	"github.com/lucasb-eyer/go-colorful"
)

// OKLab is a colour in Björn Ottosson's perceptually uniform OKLab space.
type OKLab struct {
	L float64 `json:"l" yaml:"l"`
	A float64 `json:"a" yaml:"a"`
	B float64 `json:"b" yaml:"b"`
}

// OKLCH is the cylindrical form of OKLab. H is in degrees [0, 360).
type OKLCH struct {
	L float64 `json:"l" yaml:"l"`
	C float64 `json:"c" yaml:"c"`
	H float64 `json:"h" yaml:"h"`
}

// Gamut bounds applied to enhanced colours.
const (
	MinLightness = 0.05
	MaxLightness = 0.95
	MaxChroma    = 0.37
)

// gamutTolerance absorbs conversion error on in-gamut colours. Half an 8-bit
// step still rounds to the same channel value.
const gamutTolerance = 0.5 / 255

// RGBToOKLab converts an sRGB colour to OKLab.
func RGBToOKLab(rgb RGB) OKLab {
	l, a, b := rgb.Colorful().OkLab()
	return OKLab{L: l, A: a, B: b}
}

// HexToOKLab parses a hex colour and converts it to OKLab.
func HexToOKLab(hex string) (OKLab, error) {
	rgb, err := ParseHex(hex)
	if err != nil {
		return OKLab{}, err
	}
	return RGBToOKLab(rgb), nil
}

// RGB converts the colour back to sRGB. Out-of-gamut colours are brought into gamut
// by reducing chroma at constant lightness and hue before a final channel clamp.
func (c OKLab) RGB() RGB {
	col := colorful.OkLab(c.L, c.A, c.B)
	if inGamut(col) {
		return FromColorful(col)
	}
	return FromColorful(c.LCH().gamutMap())
}

// inGamut reports whether every channel is within gamutTolerance of [0, 1].
func inGamut(col colorful.Color) bool {
	for _, v := range [3]float64{col.R, col.G, col.B} {
		if v < -gamutTolerance || v > 1+gamutTolerance {
			return false
		}
	}
	return true
}

// Hex converts the colour to a "#rrggbb" string.
func (c OKLab) Hex() string {
	return c.RGB().Hex()
}

// LCH converts OKLab to OKLCH.
func (c OKLab) LCH() OKLCH {
	h := math.Atan2(c.B, c.A) * 180 / math.Pi
	return OKLCH{
		L: c.L,
		C: math.Hypot(c.A, c.B),
		H: normaliseHue(h),
	}
}

// Lab converts OKLCH to OKLab.
func (c OKLCH) Lab() OKLab {
	rad := c.H * math.Pi / 180
	return OKLab{
		L: c.L,
		A: c.C * math.Cos(rad),
		B: c.C * math.Sin(rad),
	}
}

// RGB converts the colour to sRGB with gamut mapping.
func (c OKLCH) RGB() RGB {
	return c.Lab().RGB()
}

// gamutMap binary-searches the largest chroma that stays inside sRGB.
func (c OKLCH) gamutMap() colorful.Color {
	lo, hi := 0.0, c.C
	best := colorful.OkLch(c.L, 0, c.H)
	for range 20 {
		mid := (lo + hi) / 2
		candidate := colorful.OkLch(c.L, mid, c.H)
		if inGamut(candidate) {
			best = candidate
			lo = mid
		} else {
			hi = mid
		}
	}
	return best
}

// Lerp interpolates linearly between two OKLab colours.
func (c OKLab) Lerp(to OKLab, t float64) OKLab {
	return OKLab{
		L: lerp(c.L, to.L, t),
		A: lerp(c.A, to.A, t),
		B: lerp(c.B, to.B, t),
	}
}
