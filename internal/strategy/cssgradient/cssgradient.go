// Package cssgradient implements the flat CSS gradient strategy: a static
// linear-gradient built from up to three colour roles.
package cssgradient

import (
	"context"
	"strings"
	"time"

	"github.com/jmylchreest/backdrop/internal/colour"
	"github.com/jmylchreest/backdrop/internal/strategy"
)

// Name is the strategy identifier.
const Name = "css-gradient"

// Angle is the gradient direction in degrees.
const Angle = 135

// Strategy is the cheapest strategy and the accent layer of a composition.
type Strategy struct {
	deps strategy.Deps
}

var (
	_ strategy.Strategy  = (*Strategy)(nil)
	_ strategy.Describer = (*Strategy)(nil)
)

// New creates the strategy.
func New(deps strategy.Deps) *Strategy {
	deps = deps.WithDefaults()
	deps.Logger = deps.Logger.Named(Name)
	return &Strategy{deps: deps}
}

func (s *Strategy) Name() string { return Name }

// Describe implements strategy.Describer.
func (s *Strategy) Describe() strategy.Descriptor {
	return strategy.Descriptor{
		Category:     strategy.CategoryAccent,
		Priority:     3,
		MemoryImpact: strategy.ImpactLow,
	}
}

// CanProcess always succeeds: a flat gradient works on every device.
func (s *Strategy) CanProcess(strategy.ColorContext) bool { return true }

// EstimatedProcessingTime implements strategy.Strategy.
func (s *Strategy) EstimatedProcessingTime(strategy.ColorContext) time.Duration {
	return 2 * time.Millisecond
}

// Stops returns sRGB gradient stops for up to three colours of cc. A single colour
// is paired with its OKLab shadow variant.
func Stops(cc strategy.ColorContext) []colour.GradientStop {
	hexes := strategy.OrderedColors(cc)
	if len(hexes) == 0 {
		hexes = []string{strategy.FallbackAccent}
	}
	if len(hexes) == 1 {
		res := colour.ProcessColor(hexes[0], colour.PresetSubtle)
		hexes = append(hexes, res.ShadowHex)
	}
	if len(hexes) > 3 {
		hexes = hexes[:3]
	}

	stops := make([]colour.GradientStop, len(hexes))
	for i, h := range hexes {
		stops[i] = colour.StopFromRGB(colour.MustParseHex(h), float64(i)/float64(len(hexes)-1))
	}
	return stops
}

// ProcessColors writes the gradient and accent variables.
func (s *Strategy) ProcessColors(_ context.Context, cc strategy.ColorContext) strategy.ColorResult {
	return strategy.Timed(func() strategy.ColorResult {
		accent := strategy.AccentOrFallback(cc)
		stops := Stops(cc)
		gradient := colour.CSSGradient(Angle, stops)

		processed := strategy.ValidColors(cc)
		if len(processed) == 0 {
			processed = map[string]string{strategy.RolePrimary: accent}
		}

		result := strategy.ColorResult{
			ProcessedColors: processed,
			AccentHex:       accent,
			AccentRGB:       strategy.RGBTriplet(accent),
			Gradient:        stops,
			Metadata: strategy.Metadata{
				Strategy:   Name,
				RenderTier: strategy.RenderCSS,
			},
		}
		result.Metadata.Set("css", gradient)

		if err := s.deps.Writer.SetVariables(Variables(result, gradient), strategy.PriorityHigh); err != nil {
			s.deps.Logger.Warn("writing gradient variables failed", "error", err)
			result.Metadata.Error = strategy.Errorf("write variables: %v", err).Error()
		}
		return result
	})
}

// Variables returns the custom properties describing result.
func Variables(result strategy.ColorResult, gradient string) map[string]string {
	vars := map[string]string{
		strategy.CSSVar("gradient"):   gradient,
		strategy.CSSVar("accent"):     result.AccentHex,
		strategy.CSSVar("accent-rgb"): result.AccentRGB,
	}
	for role, hex := range result.ProcessedColors {
		name := strings.ToLower(strings.ReplaceAll(role, "_", "-"))
		vars[strategy.CSSVar("color", name)] = hex
		vars[strategy.CSSVar("color", name, "rgb")] = strategy.RGBTriplet(hex)
	}
	return vars
}
