package device

import (
	"errors"
	"testing"

	"github.com/mitchellh/go-ps"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmylchreest/backdrop/internal/strategy"
)

type proc struct{ exe string }

func (p proc) Pid() int           { return 1 }
func (p proc) PPid() int          { return 0 }
func (p proc) Executable() string { return p.exe }

func probe(mem float64, cores int, settings strategy.MapSettings) *Probe {
	return &Probe{settings: settings, memoryGB: mem, cores: cores, procs: ps.Processes}
}

func TestRecommendPerformanceQuality(t *testing.T) {
	tests := []struct {
		name     string
		mem      float64
		cores    int
		settings strategy.MapSettings
		want     strategy.Tier
	}{
		{"workstation", 32, 16, nil, strategy.TierHigh},
		{"laptop", 8, 4, nil, strategy.TierMedium},
		{"small", 2, 2, nil, strategy.TierLow},
		{"mobile override", 32, 16, strategy.MapSettings{strategy.KeyDeviceMobile: true}, strategy.TierLow},
		{"memory override", 32, 16, strategy.MapSettings{strategy.KeyDeviceMemoryGB: 2.0}, strategy.TierLow},
		{"explicit tier", 2, 2, strategy.MapSettings{strategy.KeyPerformance: "high"}, strategy.TierHigh},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, probe(tt.mem, tt.cores, tt.settings).RecommendPerformanceQuality())
		})
	}
}

func TestOverrides(t *testing.T) {
	p := probe(16, 8, strategy.MapSettings{
		strategy.KeyDeviceWebGL:         false,
		strategy.KeyDeviceReducedMotion: "true",
	})
	assert.False(t, p.HasWebGLSupport())
	assert.True(t, p.PrefersReducedMotion())
	assert.Equal(t, 16.0, p.MemoryGB())
	assert.Contains(t, p.String(), "cores=8")
}

func TestPlayerRunning(t *testing.T) {
	p := probe(16, 8, nil)
	p.procs = func() ([]ps.Process, error) {
		return []ps.Process{proc{"bash"}, proc{"spotify"}}, nil
	}

	ok, err := p.PlayerRunning("Spotify", "mpv")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = p.PlayerRunning("mpv")
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = p.PlayerRunning()
	require.NoError(t, err)
	assert.True(t, ok)

	p.procs = func() ([]ps.Process, error) { return nil, errors.New("denied") }
	_, err = p.PlayerRunning("spotify")
	assert.Error(t, err)
}

func TestParseMemInfo(t *testing.T) {
	data := []byte("MemTotal:       16384000 kB\nMemFree:         1024 kB\n")
	assert.InDelta(t, 15.625, parseMemInfo(data, 4), 0.001)
	assert.Equal(t, 4.0, parseMemInfo([]byte("garbage"), 4))
}
