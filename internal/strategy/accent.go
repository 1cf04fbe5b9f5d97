package strategy

import (
	"fmt"
	"maps"
	"time"

	"github.com/jmylchreest/backdrop/internal/colour"
)

// FallbackPalette is used when nothing else can produce colours.
var FallbackPalette = map[string]string{
	RolePrimary:   "#cba6f7",
	RoleVibrant:   "#f5c2e7",
	RoleProminent: "#89b4fa",
	"BACKGROUND":  "#1e1e2e",
}

// FallbackAccent is the accent used when no context colour parses.
const FallbackAccent = "#cba6f7"

// ChooseAccent picks the most suitable accent colour from a context, following
// role preference. ok is false when no role holds a parseable colour.
func ChooseAccent(cc ColorContext) (hex string, ok bool) {
	for _, role := range cc.OrderedRoles() {
		v, _ := cc.Color(role)
		if c, err := colour.ParseHex(v); err == nil {
			return c.Hex(), true
		}
	}
	return "", false
}

// AccentOrFallback returns ChooseAccent's pick or the static fallback accent.
func AccentOrFallback(cc ColorContext) string {
	if hex, ok := ChooseAccent(cc); ok {
		return hex
	}
	return FallbackAccent
}

// RGBTriplet returns "r,g,b" for a hex colour, or "" when it does not parse.
func RGBTriplet(hex string) string {
	c, err := colour.ParseHex(hex)
	if err != nil {
		return ""
	}
	return c.Triplet()
}

// ValidColors returns the parseable colours of a context, normalised, keyed by role.
func ValidColors(cc ColorContext) map[string]string {
	out := make(map[string]string, cc.Len())
	for _, role := range cc.OrderedRoles() {
		v, _ := cc.Color(role)
		if c, err := colour.ParseHex(v); err == nil {
			out[role] = c.Hex()
		}
	}
	return out
}

// SolidResult builds a flat single-colour result. It is the last rung of every
// fallback chain and never fails.
func SolidResult(name string, cc ColorContext, accent string) ColorResult {
	if _, err := colour.ParseHex(accent); err != nil {
		accent = AccentOrFallback(cc)
	}
	processed := ValidColors(cc)
	if len(processed) == 0 {
		processed = map[string]string{RolePrimary: accent}
	}
	c := colour.MustParseHex(accent)
	return ColorResult{
		ProcessedColors: processed,
		AccentHex:       accent,
		AccentRGB:       c.Triplet(),
		Gradient: []colour.GradientStop{
			colour.StopFromRGB(c, 0),
			colour.StopFromRGB(c, 1),
		},
		Metadata: Metadata{
			Strategy:     name,
			FallbackMode: FallbackSolidColor,
			RenderTier:   RenderSolidColor,
		},
	}
}

// DegradedResult converts a processing failure into a usable flat result carrying
// the error description.
func DegradedResult(name string, cc ColorContext, err error) ColorResult {
	r := SolidResult(name, cc, AccentOrFallback(cc))
	if err != nil {
		r.Metadata.Error = err.Error()
	}
	return r
}

// StaticFallback returns the deterministic fallback palette result used when no
// strategy is available or all of them failed.
func StaticFallback(reason string) ColorResult {
	c := colour.MustParseHex(FallbackAccent)
	bg := colour.MustParseHex(FallbackPalette["BACKGROUND"])
	processed := maps.Clone(FallbackPalette)
	return ColorResult{
		ProcessedColors: processed,
		AccentHex:       FallbackAccent,
		AccentRGB:       c.Triplet(),
		Gradient: []colour.GradientStop{
			colour.StopFromRGB(c, 0),
			colour.StopFromRGB(colour.MustParseHex(FallbackPalette[RoleProminent]), 0.5),
			colour.StopFromRGB(bg, 1),
		},
		Metadata: Metadata{
			Strategy:     "static-fallback",
			Error:        reason,
			FallbackMode: FallbackStatic,
			RenderTier:   RenderSolidColor,
		},
	}
}

// Timed runs fn and stamps its duration into the result metadata.
func Timed(fn func() ColorResult) ColorResult {
	start := time.Now()
	r := fn()
	r.Metadata.SetProcessingTime(time.Since(start))
	return r
}

// Errorf wraps a processing failure with ErrProcessing.
func Errorf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrProcessing, fmt.Sprintf(format, args...))
}

// OrderedColors returns the parseable colours of a context in accent preference
// order, normalised to "#rrggbb".
func OrderedColors(cc ColorContext) []string {
	out := make([]string, 0, cc.Len())
	for _, role := range cc.OrderedRoles() {
		v, _ := cc.Color(role)
		if c, err := colour.ParseHex(v); err == nil {
			out = append(out, c.Hex())
		}
	}
	return out
}

// FrameInterval returns the render-loop target interval for a performance tier.
func FrameInterval(t Tier) time.Duration {
	switch t {
	case TierLow:
		return 22 * time.Millisecond
	case TierHigh:
		return 8 * time.Millisecond
	default:
		return 15 * time.Millisecond
	}
}
