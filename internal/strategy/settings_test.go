package strategy

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSettingReaders(t *testing.T) {
	s := MapSettings{
		KeyShaderEnabled:    "false",
		KeyStrategyTimeout:  "750ms",
		KeyDeviceMemoryGB:   6,
		KeyPluginStrategies: []any{"duotone", " ", "mono"},
		KeyWatchPlayers:     "spotify, mpv,",
	}

	assert.False(t, Bool(s, KeyShaderEnabled, true))
	assert.True(t, Bool(s, KeyDepthEnabled, true))
	assert.Equal(t, 750*time.Millisecond, Duration(s, KeyStrategyTimeout, time.Second))
	assert.Equal(t, time.Second, Duration(s, KeyHealthInterval, time.Second))
	assert.InDelta(t, 6.0, Number(s, KeyDeviceMemoryGB, 0), 1e-9)
	assert.Equal(t, []string{"duotone", "mono"}, Strings(s, KeyPluginStrategies))
	assert.Equal(t, []string{"spotify", "mpv"}, Strings(s, KeyWatchPlayers))
	assert.Empty(t, Strings(s, KeyPluginDir))
	assert.Empty(t, Strings(nil, KeyPluginDir))
}

func TestIntensityLevel(t *testing.T) {
	assert.InDelta(t, 0.25, IntensityLevel("minimal"), 1e-9)
	assert.InDelta(t, 1.0, IntensityLevel("transcendent"), 1e-9)
	assert.InDelta(t, 0.3, IntensityLevel("0.3"), 1e-9)
	assert.InDelta(t, 1.0, IntensityLevel("7"), 1e-9)
	assert.InDelta(t, 0.5, IntensityLevel("loud"), 1e-9)
}
