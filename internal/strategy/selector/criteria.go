package selector

import (
	"github.com/jmylchreest/backdrop/internal/strategy"
)

// SettingsSnapshot is the subset of settings the heuristics read.
type SettingsSnapshot struct {
	ShaderEnabled     bool    `json:"shaderEnabled"`
	ForceLowEnd       bool    `json:"forceLowEnd"`
	DepthEnabled      bool    `json:"depthEnabled"`
	AnimationsEnabled bool    `json:"animationsEnabled"`
	VisualMode        string  `json:"visualMode"`
	Intensity         float64 `json:"intensity"`
}

// MusicSnapshot is the music context at selection time.
type MusicSnapshot struct {
	Energy  float64 `json:"energy"`
	Valence float64 `json:"valence"`
	BPM     float64 `json:"bpm,omitempty"`
}

// BackgroundCriteria extends strategy.Criteria with settings and music snapshots.
type BackgroundCriteria struct {
	strategy.Criteria
	Settings SettingsSnapshot `json:"settings"`
	Music    MusicSnapshot    `json:"music"`
}

// SnapshotSettings reads the selection-relevant keys.
func SnapshotSettings(s strategy.Settings) SettingsSnapshot {
	return SettingsSnapshot{
		ShaderEnabled:     strategy.Bool(s, strategy.KeyShaderEnabled, true),
		ForceLowEnd:       strategy.Bool(s, strategy.KeyShaderForceLowEnd, false),
		DepthEnabled:      strategy.Bool(s, strategy.KeyDepthEnabled, true),
		AnimationsEnabled: strategy.Bool(s, strategy.KeyAnimationsEnabled, true),
		VisualMode:        strategy.String(s, strategy.KeyVisualMode, strategy.VisualDynamic),
		Intensity:         strategy.IntensityLevel(strategy.String(s, strategy.KeyIntensity, "balanced")),
	}
}

// SnapshotMusic extracts the music context, defaulting to a neutral signal.
func SnapshotMusic(m *strategy.MusicData) MusicSnapshot {
	out := MusicSnapshot{Energy: m.EnergyOr(0.5), Valence: m.ValenceOr(0.5)}
	if bpm, ok := m.BPM(); ok {
		out.BPM = bpm
	}
	return out
}

// BuildCriteria returns in extended with snapshots, or criteria derived from the
// device and settings collaborators when in is nil.
func BuildCriteria(in *strategy.Criteria, device strategy.DeviceCapabilities, settings strategy.Settings, cc strategy.ColorContext) BackgroundCriteria {
	var c strategy.Criteria
	if in != nil {
		c = *in
	} else {
		snap := strategy.SnapshotDevice(device)
		c = strategy.Criteria{
			Performance: tierSetting(settings, strategy.KeyPerformance, snap.Tier),
			Quality:     tierSetting(settings, strategy.KeyQuality, snap.Tier),
			Device:      snap,
			Preferences: strategy.Preferences{
				Intensity: strategy.IntensityLevel(strategy.String(settings, strategy.KeyIntensity, "balanced")),
				BlendMode: strategy.String(settings, strategy.KeyBlendMode, "normal"),
			},
		}
	}
	return BackgroundCriteria{
		Criteria: c,
		Settings: SnapshotSettings(settings),
		Music:    SnapshotMusic(cc.Music()),
	}
}

func tierSetting(s strategy.Settings, key string, def strategy.Tier) strategy.Tier {
	return strategy.ParseTier(strategy.String(s, key, string(def)), def)
}
