package colour

import (
	"fmt"
	"slices"
	"strings"
)

// Preset is a named OKLCH enhancement profile.
type Preset struct {
	Name string `json:"name"`

	// LightnessBoost multiplies L before clamping.
	LightnessBoost float64 `json:"lightness_boost"`

	// ChromaBoost multiplies C before clamping.
	ChromaBoost float64 `json:"chroma_boost"`

	// HueShift rotates H, in degrees.
	HueShift float64 `json:"hue_shift"`

	// ShadowReduction multiplies L of the enhanced colour to derive the shadow variant.
	ShadowReduction float64 `json:"shadow_reduction"`
}

// Built-in presets.
var (
	PresetSubtle = Preset{
		Name:            "subtle",
		LightnessBoost:  1.0,
		ChromaBoost:     1.1,
		ShadowReduction: 0.7,
	}
	PresetStandard = Preset{
		Name:            "standard",
		LightnessBoost:  1.05,
		ChromaBoost:     1.2,
		ShadowReduction: 0.6,
	}
	PresetVibrant = Preset{
		Name:            "vibrant",
		LightnessBoost:  1.1,
		ChromaBoost:     1.4,
		ShadowReduction: 0.5,
	}
	PresetCosmic = Preset{
		Name:            "cosmic",
		LightnessBoost:  1.15,
		ChromaBoost:     1.6,
		HueShift:        5,
		ShadowReduction: 0.4,
	}
)

var presets = map[string]Preset{
	PresetSubtle.Name:   PresetSubtle,
	PresetStandard.Name: PresetStandard,
	PresetVibrant.Name:  PresetVibrant,
	PresetCosmic.Name:   PresetCosmic,
}

// PresetByName looks up a preset case-insensitively.
func PresetByName(name string) (Preset, error) {
	p, ok := presets[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return Preset{}, fmt.Errorf("unknown OKLab preset %q (valid presets: %s)", name, strings.Join(PresetNames(), ", "))
	}
	return p, nil
}

// PresetOrDefault returns the named preset, or PresetStandard when the name is unknown.
func PresetOrDefault(name string) Preset {
	p, err := PresetByName(name)
	if err != nil {
		return PresetStandard
	}
	return p
}

// PresetNames returns the sorted names of the built-in presets.
func PresetNames() []string {
	names := make([]string, 0, len(presets))
	for name := range presets {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Enhance applies the preset to an OKLCH colour, clamping to the supported bounds.
func (p Preset) Enhance(c OKLCH) OKLCH {
	return OKLCH{
		L: clamp(c.L*p.LightnessBoost, MinLightness, MaxLightness),
		C: clamp(c.C*p.ChromaBoost, 0, MaxChroma),
		H: normaliseHue(c.H + p.HueShift),
	}
}

// Shadow derives the darker shadow variant of an enhanced colour: same hue and chroma,
// reduced lightness.
func (p Preset) Shadow(c OKLCH) OKLCH {
	reduction := p.ShadowReduction
	if reduction <= 0 || reduction > 1 {
		reduction = 0.6
	}
	return OKLCH{
		L: clamp(c.L*reduction, 0, MaxLightness),
		C: c.C,
		H: c.H,
	}
}
