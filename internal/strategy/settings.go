package strategy

import (
	"strconv"
	"strings"
	"time"
)

// Settings keys understood by the strategies, selector and orchestrator.
const (
	KeyShaderEnabled       = "shader.enabled"
	KeyShaderForceLowEnd   = "shader.force-low-end"
	KeyShaderOKLab         = "shader.oklab"
	KeyDepthEnabled        = "depth.enabled"
	KeyAnimationsEnabled   = "animations.enabled"
	KeyIntensity           = "intensity"
	KeyVisualMode          = "visual-mode"
	KeyBlendMode           = "blend-mode"
	KeyOKLabPreset         = "oklab.preset"
	KeyPerformance         = "performance"
	KeyQuality             = "quality"
	KeyStrategyTimeout     = "orchestrator.strategy-timeout"
	KeyMaxStrategies       = "orchestrator.max-strategies"
	KeyHealthInterval      = "registry.health-interval"
	KeyReprobeAfter        = "registry.reprobe-after"
	KeyDeviceWebGL         = "device.webgl"
	KeyDeviceMobile        = "device.mobile"
	KeyDeviceMemoryGB      = "device.memory-gb"
	KeyDeviceReducedMotion = "device.reduced-motion"
	KeyJournalPath         = "journal.path"
	KeyPluginStrategies    = "plugins.strategies"
	KeyPluginDir           = "plugins.dir"
	KeyWatchPlayers        = "watch.players"
)

// Visual modes.
const (
	VisualStatic  = "static"
	VisualDynamic = "dynamic"
	VisualMusic   = "music"
)

// intensityLevels maps intensity names onto [0, 1].
var intensityLevels = map[string]float64{
	"minimal":      0.25,
	"balanced":     0.5,
	"intense":      0.75,
	"transcendent": 1.0,
}

// IntensityLevel converts an intensity name (or a numeric string) to [0, 1].
// Unknown values map to the balanced level.
func IntensityLevel(name string) float64 {
	if v, ok := intensityLevels[name]; ok {
		return v
	}
	if f, err := strconv.ParseFloat(name, 64); err == nil {
		return min(max(f, 0), 1)
	}
	return intensityLevels["balanced"]
}

// Bool reads a boolean setting, accepting bool and string values.
func Bool(s Settings, key string, def bool) bool {
	if s == nil {
		return def
	}
	switch v := s.Get(key).(type) {
	case bool:
		return v
	case string:
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}

// String reads a string setting.
func String(s Settings, key, def string) string {
	if s == nil {
		return def
	}
	if v, ok := s.Get(key).(string); ok && v != "" {
		return v
	}
	return def
}

// Number reads a numeric setting.
func Number(s Settings, key string, def float64) float64 {
	if s == nil {
		return def
	}
	switch v := s.Get(key).(type) {
	case float64:
		return v
	case float32:
		return float64(v)
	case int:
		return float64(v)
	case int64:
		return float64(v)
	case string:
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

// Duration reads a duration setting from a time.Duration or a parseable string.
func Duration(s Settings, key string, def time.Duration) time.Duration {
	if s == nil {
		return def
	}
	switch v := s.Get(key).(type) {
	case time.Duration:
		return v
	case string:
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

// Strings reads a list setting from a slice or a comma separated string.
// Blank items are dropped.
func Strings(s Settings, key string) []string {
	if s == nil {
		return nil
	}
	var raw []string
	switch v := s.Get(key).(type) {
	case []string:
		raw = v
	case []any:
		for _, item := range v {
			if str, ok := item.(string); ok {
				raw = append(raw, str)
			}
		}
	case string:
		raw = strings.Split(v, ",")
	}
	out := make([]string, 0, len(raw))
	for _, item := range raw {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

// MapSettings is a fixed Settings implementation backed by a map.
type MapSettings map[string]any

// Get implements Settings.
func (m MapSettings) Get(key string) any {
	return m[key]
}
