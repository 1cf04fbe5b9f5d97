package colour

import (
	"maps"
	"slices"
)

// OKLabResult is the outcome of enhancing a single colour.
type OKLabResult struct {
	OriginalHex string `json:"original_hex" yaml:"original_hex"`
	OriginalRGB RGB    `json:"original_rgb" yaml:"original_rgb"`
	EnhancedHex string `json:"enhanced_hex" yaml:"enhanced_hex"`
	EnhancedRGB RGB    `json:"enhanced_rgb" yaml:"enhanced_rgb"`
	ShadowHex   string `json:"shadow_hex" yaml:"shadow_hex"`
	ShadowRGB   RGB    `json:"shadow_rgb" yaml:"shadow_rgb"`
	OKLCH       OKLCH  `json:"oklch" yaml:"oklch"`

	// Valid is false when the input could not be parsed. The hex fields then carry
	// the input unchanged.
	Valid bool `json:"valid" yaml:"valid"`
}

// ProcessColor enhances a hex colour with the given preset and derives its shadow
// variant. Malformed input is returned unchanged in every hex field rather than
// failing, since the result feeds a renderer that must always have something to draw.
func ProcessColor(hex string, preset Preset) OKLabResult {
	rgb, err := ParseHex(hex)
	if err != nil {
		return OKLabResult{
			OriginalHex: hex,
			EnhancedHex: hex,
			ShadowHex:   hex,
		}
	}

	lch := RGBToOKLab(rgb).LCH()
	enhanced := preset.Enhance(lch)
	enhancedRGB := enhanced.RGB()
	shadowRGB := preset.Shadow(enhanced).RGB()

	return OKLabResult{
		OriginalHex: rgb.Hex(),
		OriginalRGB: rgb,
		EnhancedHex: enhancedRGB.Hex(),
		EnhancedRGB: enhancedRGB,
		ShadowHex:   shadowRGB.Hex(),
		ShadowRGB:   shadowRGB,
		OKLCH:       enhanced,
		Valid:       true,
	}
}

// ProcessPalette applies ProcessColor to every entry of a role -> hex mapping.
func ProcessPalette(colours map[string]string, preset Preset) map[string]OKLabResult {
	out := make(map[string]OKLabResult, len(colours))
	for _, role := range slices.Sorted(maps.Keys(colours)) {
		out[role] = ProcessColor(colours[role], preset)
	}
	return out
}

// GenerateGradient interpolates L, a and b between two colours across stops stops,
// enhancing each stop with the preset. The first stop derives from a and the last
// from b; positions run evenly from 0 to 1. A malformed endpoint is replaced by the
// other endpoint, and when both are malformed the gradient is neutral grey.
func GenerateGradient(a, b string, stops int, preset Preset) []GradientStop {
	if stops < 2 {
		stops = 2
	}

	labA, errA := HexToOKLab(a)
	labB, errB := HexToOKLab(b)
	switch {
	case errA != nil && errB != nil:
		grey := RGBToOKLab(RGB{R: 128, G: 128, B: 128})
		labA, labB = grey, grey
	case errA != nil:
		labA = labB
	case errB != nil:
		labB = labA
	}

	out := make([]GradientStop, stops)
	for i := range stops {
		t := float64(i) / float64(stops-1)
		lch := preset.Enhance(labA.Lerp(labB, t).LCH())
		out[i] = StopFromRGB(lch.RGB(), t)
	}
	return out
}

// GenerateMultiGradient builds a gradient through every colour in order, with
// stopsPerSegment stops per adjacent pair (shared endpoints are emitted once).
func GenerateMultiGradient(hexes []string, stopsPerSegment int, preset Preset) []GradientStop {
	switch len(hexes) {
	case 0:
		return GenerateGradient("", "", stopsPerSegment, preset)
	case 1:
		return GenerateGradient(hexes[0], hexes[0], stopsPerSegment, preset)
	}
	if stopsPerSegment < 2 {
		stopsPerSegment = 2
	}

	segments := len(hexes) - 1
	var out []GradientStop
	for s := range segments {
		seg := GenerateGradient(hexes[s], hexes[s+1], stopsPerSegment, preset)
		if s > 0 {
			seg = seg[1:]
		}
		for _, stop := range seg {
			stop.Position = (float64(s) + stop.Position) / float64(segments)
			out = append(out, stop)
		}
	}
	// Guard against float drift on the final stop.
	out[len(out)-1].Position = 1
	return out
}
