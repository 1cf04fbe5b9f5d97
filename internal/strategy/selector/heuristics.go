package selector

import (
	"fmt"

	"github.com/jmylchreest/backdrop/internal/strategy"
)

// Type is a strategy family the selector knows how to score.
type Type string

const (
	TypeAccent Type = "accent"
	TypeLiving Type = "living"
	TypeShader Type = "shader"
	TypeDepth  Type = "depth"
)

// Heuristic scores a type in [0, 1] and explains the score.
type Heuristic func(bc BackgroundCriteria) (score float64, reason string)

// DefaultHeuristics returns the built-in per-type heuristics.
func DefaultHeuristics() map[Type]Heuristic {
	return map[Type]Heuristic{
		TypeAccent: scoreAccent,
		TypeLiving: scoreLiving,
		TypeShader: scoreShader,
		TypeDepth:  scoreDepth,
	}
}

func clamp01(v float64) float64 { return min(max(v, 0), 1) }

func scoreAccent(bc BackgroundCriteria) (float64, string) {
	score := 0.6 + bc.Music.Energy*0.2
	if bc.Settings.VisualMode == strategy.VisualDynamic || bc.Settings.VisualMode == strategy.VisualMusic {
		score += 0.1
	}
	return clamp01(score), fmt.Sprintf("energy %.2f, mode %s", bc.Music.Energy, bc.Settings.VisualMode)
}

func scoreLiving(bc BackgroundCriteria) (float64, string) {
	score := 0.8 + bc.Settings.Intensity*0.1
	if bc.Settings.AnimationsEnabled {
		score += 0.1
	}
	return clamp01(score), "foundation layer"
}

func scoreShader(bc BackgroundCriteria) (float64, string) {
	if !bc.Device.WebGL {
		return 0, "webgl unsupported"
	}
	if !bc.Settings.ShaderEnabled {
		return 0, "shader disabled"
	}

	score := 0.5
	reason := "tier " + string(bc.Performance)
	switch bc.Performance {
	case strategy.TierHigh:
		score += 0.3
	case strategy.TierMedium:
		score += 0.15
	default:
		if !bc.Settings.ForceLowEnd {
			return 0, "low tier"
		}
		score += 0.05
		reason = "low tier forced"
	}

	switch {
	case bc.Device.MemoryGB >= 8:
		score += 0.1
	case bc.Device.MemoryGB > 0 && bc.Device.MemoryGB < 4:
		score -= 0.1
	}
	if bc.Device.Mobile {
		score -= 0.2
		reason += ", mobile"
	}
	return clamp01(score), reason
}

// MinDepthIntensity is the intensity level the depth layers need.
const MinDepthIntensity = 0.5

func scoreDepth(bc BackgroundCriteria) (float64, string) {
	if !bc.Settings.DepthEnabled {
		return 0, "depth disabled"
	}
	if bc.Settings.Intensity < MinDepthIntensity {
		return 0, fmt.Sprintf("intensity %.2f below %.2f", bc.Settings.Intensity, MinDepthIntensity)
	}

	// A desktop at medium tier clears the threshold on its own; mobile does not.
	score := 0.4
	switch bc.Performance {
	case strategy.TierHigh:
		score += 0.2
	case strategy.TierMedium:
		score += 0.15
	default:
		return 0, "low tier"
	}
	if bc.Music.BPM > 0 && bc.Music.BPM < 100 {
		score += 0.1
	}
	if bc.Device.MemoryGB >= 8 {
		score += 0.1
	}
	if bc.Device.Mobile {
		score -= 0.15
	}
	return clamp01(score), fmt.Sprintf("tier %s, bpm %.0f", bc.Performance, bc.Music.BPM)
}
