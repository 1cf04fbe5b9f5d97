package colour

import (
	"image/color"
	"math"

	"github.com/lucasb-eyer/go-colorful"
)

var (
	// White and Black are the candidate text colours for ReadableOn.
	White = RGB{R: 255, G: 255, B: 255}
	Black = RGB{}
)

// Luminance is the WCAG relative luminance of c, in [0, 1].
func Luminance(c color.Color) float64 {
	cf, ok := colorful.MakeColor(c)
	if !ok {
		return 0
	}
	r, g, b := cf.LinearRgb()
	return 0.2126*r + 0.7152*g + 0.0722*b
}

// ContrastRatio is the WCAG contrast between two colours, from 1 to 21.
func ContrastRatio(c1, c2 color.Color) float64 {
	l1, l2 := Luminance(c1), Luminance(c2)
	if l1 < l2 {
		l1, l2 = l2, l1
	}
	return (l1 + 0.05) / (l2 + 0.05)
}

// ReadableOn picks white or black, whichever contrasts more with bg, and
// returns it with the ratio achieved.
func ReadableOn(bg RGB) (RGB, float64) {
	w := ContrastRatio(bg.RGBA(), White.RGBA())
	b := ContrastRatio(bg.RGBA(), Black.RGBA())
	if w >= b {
		return White, w
	}
	return Black, b
}

// HueDistance is the shorter angle between two hues, in [0, 180].
func HueDistance(h1, h2 float64) float64 {
	diff := math.Abs(normaliseHue(h1) - normaliseHue(h2))
	if diff > 180 {
		diff = 360 - diff
	}
	return diff
}

// normaliseHue wraps h into [0, 360).
func normaliseHue(h float64) float64 {
	h = math.Mod(h, 360)
	if h < 0 {
		h += 360
	}
	return h
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

func lerp(a, b, t float64) float64 {
	return a + (b-a)*t
}
