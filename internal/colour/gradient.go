package colour

import (
	"fmt"
	"strings"
)

// GradientStop is a normalised RGBA colour at a position along a gradient.
type GradientStop struct {
	R        float64 `json:"r" yaml:"r"`
	G        float64 `json:"g" yaml:"g"`
	B        float64 `json:"b" yaml:"b"`
	A        float64 `json:"a" yaml:"a"`
	Position float64 `json:"position" yaml:"position"`
}

// StopFromRGB builds an opaque stop.
func StopFromRGB(rgb RGB, position float64) GradientStop {
	return GradientStop{
		R:        float64(rgb.R) / 255.0,
		G:        float64(rgb.G) / 255.0,
		B:        float64(rgb.B) / 255.0,
		A:        1,
		Position: clamp(position, 0, 1),
	}
}

// RGB returns the stop colour in 8-bit sRGB.
func (s GradientStop) RGB() RGB {
	return RGB{
		R: uint8(clamp(s.R, 0, 1)*255 + 0.5),
		G: uint8(clamp(s.G, 0, 1)*255 + 0.5),
		B: uint8(clamp(s.B, 0, 1)*255 + 0.5),
	}
}

// Hex returns the stop colour as "#rrggbb".
func (s GradientStop) Hex() string {
	return s.RGB().Hex()
}

// SampleGradient returns the sRGB-interpolated colour at t along an ordered gradient.
// Positions outside the stop range clamp to the first or last stop.
func SampleGradient(stops []GradientStop, t float64) RGB {
	if len(stops) == 0 {
		return RGB{}
	}
	if t <= stops[0].Position {
		return stops[0].RGB()
	}
	for i := 1; i < len(stops); i++ {
		prev, next := stops[i-1], stops[i]
		if t > next.Position {
			continue
		}
		span := next.Position - prev.Position
		if span <= 0 {
			return next.RGB()
		}
		return Mix(prev.RGB(), next.RGB(), (t-prev.Position)/span)
	}
	return stops[len(stops)-1].RGB()
}

// ValidStops reports whether stops are ordered with non-decreasing positions inside [0, 1].
func ValidStops(stops []GradientStop) bool {
	for i, s := range stops {
		if s.Position < 0 || s.Position > 1 {
			return false
		}
		if i > 0 && s.Position < stops[i-1].Position {
			return false
		}
	}
	return true
}

// CSSGradient renders stops as a linear-gradient() value.
func CSSGradient(angleDeg float64, stops []GradientStop) string {
	if len(stops) == 0 {
		return "none"
	}
	parts := make([]string, len(stops))
	for i, s := range stops {
		parts[i] = fmt.Sprintf("%s %.1f%%", s.Hex(), s.Position*100)
	}
	return fmt.Sprintf("linear-gradient(%gdeg, %s)", angleDeg, strings.Join(parts, ", "))
}
