// duotone - two-tone backdrop strategy (example go-plugin strategy)
//
// Splits the artwork palette into its darkest and lightest colours and blends
// between them in OKLab, the classic duotone poster look. It demonstrates:
// - Plugin metadata via --plugin-info
// - Serving StrategyPlugin over go-plugin with plugin.Serve
// - Honouring the forwarded intensity setting
// - Emitting custom properties next to the colour result
//
// Build:
//
//	go build -o duotone .
//
// Install by listing the binary under plugins.strategies in the backdrop
// config, or by dropping it into $XDG_DATA_HOME/backdrop/plugins.
package main

import (
	"context"
	"errors"
	"sort"
	"strings"

	"github.com/lucasb-eyer/go-colorful"

	"github.com/jmylchreest/backdrop/pkg/plugin"
)

const stops = 5

// Duotone implements plugin.StrategyPlugin.
type Duotone struct{}

// Process builds the dark-to-light ramp.
func (d *Duotone) Process(_ context.Context, in plugin.StrategyInput) (plugin.StrategyOutput, error) {
	colours := parse(in.RawColors)
	if len(colours) < 2 {
		return plugin.StrategyOutput{}, errors.New("duotone needs at least two colours")
	}
	sort.Slice(colours, func(i, j int) bool {
		li, _, _ := colours[i].OkLab()
		lj, _, _ := colours[j].OkLab()
		return li < lj
	})
	dark, light := colours[0], colours[len(colours)-1]

	// Higher intensity pushes the endpoints apart.
	spread := 0.1 + 0.2*intensity(in.Settings)
	dark = shiftLightness(dark, -spread)
	light = shiftLightness(light, spread)

	out := plugin.StrategyOutput{
		ProcessedColors: map[string]string{
			"PRIMARY":       light.Hex(),
			"DARK_VIBRANT":  dark.Hex(),
			"LIGHT_VIBRANT": light.Hex(),
		},
		AccentHex: light.Hex(),
		CSSVariables: map[string]string{
			"--backdrop-duotone-dark":  dark.Hex(),
			"--backdrop-duotone-light": light.Hex(),
		},
		Extra: map[string]any{"spread": spread},
	}
	for i := range stops {
		t := float64(i) / float64(stops-1)
		c := blend(dark, light, t)
		out.Gradient = append(out.Gradient, plugin.GradientStop{R: c.R, G: c.G, B: c.B, A: 1, Position: t})
	}
	return out, nil
}

// CanProcess requires two distinct colours.
func (d *Duotone) CanProcess(in plugin.StrategyInput) bool {
	seen := make(map[string]bool)
	for _, c := range parse(in.RawColors) {
		seen[c.Hex()] = true
	}
	return len(seen) >= 2
}

// Health always reports healthy; the plugin holds no resources.
func (d *Duotone) Health(context.Context) plugin.HealthStatus {
	return plugin.HealthStatus{Healthy: true}
}

// GetMetadata returns plugin metadata.
func (d *Duotone) GetMetadata() plugin.PluginInfo {
	return plugin.PluginInfo{
		Name:            "duotone",
		Version:         "0.1.0",
		ProtocolVersion: plugin.ProtocolVersion,
		Description:     "Two-tone OKLab ramp between the darkest and lightest artwork colours",
		PluginProtocol:  string(plugin.PluginTypeGoPlugin),
		Category:        "accent",
		Priority:        3,
		MemoryImpact:    "low",
	}
}

func parse(raw map[string]string) []colorful.Color {
	out := make([]colorful.Color, 0, len(raw))
	for _, v := range raw {
		v = strings.TrimSpace(v)
		if !strings.HasPrefix(v, "#") {
			v = "#" + v
		}
		if c, err := colorful.Hex(v); err == nil {
			out = append(out, c)
		}
	}
	return out
}

func intensity(settings map[string]any) float64 {
	switch settings["intensity"] {
	case "minimal":
		return 0.25
	case "intense":
		return 0.75
	case "transcendent":
		return 1
	default:
		return 0.5
	}
}

func shiftLightness(c colorful.Color, delta float64) colorful.Color {
	l, a, b := c.OkLab()
	l = min(max(l+delta, 0.05), 0.97)
	return colorful.OkLab(l, a, b).Clamped()
}

func blend(c1, c2 colorful.Color, t float64) colorful.Color {
	l1, a1, b1 := c1.OkLab()
	l2, a2, b2 := c2.OkLab()
	return colorful.OkLab(l1+(l2-l1)*t, a1+(a2-a1)*t, b1+(b2-b1)*t).Clamped()
}

func main() {
	plugin.Serve(&Duotone{})
}
