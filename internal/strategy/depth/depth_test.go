package depth

import (
	"context"
	"testing"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmylchreest/backdrop/internal/colour"
	"github.com/jmylchreest/backdrop/internal/render"
	"github.com/jmylchreest/backdrop/internal/strategy"
	"github.com/jmylchreest/backdrop/internal/strategy/strategytest"
)

func TestArenaStableIDs(t *testing.T) {
	var a Arena
	first := a.Create(Layer{Depth: 0.1})
	second := a.Create(Layer{Depth: 0.2})

	require.True(t, a.Destroy(first))
	assert.False(t, a.Destroy(first), "double destroy")
	_, ok := a.Get(first)
	assert.False(t, ok, "stale id must not resolve")

	third := a.Create(Layer{Depth: 0.3})
	assert.NotEqual(t, first, third, "reused slot gets a new generation")
	_, ok = a.Get(first)
	assert.False(t, ok)

	l, ok := a.Get(second)
	require.True(t, ok)
	assert.Equal(t, 0.2, l.Depth)
	assert.Equal(t, 2, a.Len())

	a.Clear()
	assert.Zero(t, a.Len())
	assert.Empty(t, a.IDs())
}

func TestCanProcess(t *testing.T) {
	cc := strategy.NewColorContext("", nil, nil)
	tests := []struct {
		name     string
		device   *strategytest.Device
		settings strategy.MapSettings
		want     bool
	}{
		{"capable", strategytest.HighEndDevice(), nil, true},
		{"disabled", strategytest.HighEndDevice(), strategy.MapSettings{strategy.KeyDepthEnabled: false}, false},
		{"low intensity", strategytest.HighEndDevice(), strategy.MapSettings{strategy.KeyIntensity: "minimal"}, false},
		{"low tier", strategytest.LowEndDevice(), nil, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := New(strategy.Deps{Device: tt.device, Settings: tt.settings}, nil)
			assert.Equal(t, tt.want, s.CanProcess(cc))
		})
	}
}

func TestProcessColorsTintsLayersWithShadows(t *testing.T) {
	w := strategytest.NewWriter()
	s := New(strategy.Deps{Writer: w, Device: strategytest.HighEndDevice()}, nil)

	cc := strategy.NewColorContext("", map[string]string{
		strategy.RolePrimary: "#cba6f7",
		strategy.RoleVibrant: "#f38ba8",
	}, nil)
	r := s.ProcessColors(context.Background(), cc)

	require.Empty(t, r.Metadata.Error)
	assert.Equal(t, DefaultLayers, r.Metadata.Extra["layers"])
	require.Len(t, r.Gradient, DefaultLayers)
	assert.True(t, colour.ValidStops(r.Gradient))

	layers := s.Layers()
	require.Len(t, layers, DefaultLayers)
	wantFirst := colour.ProcessColor("#f38ba8", colour.PresetStandard).ShadowHex
	assert.Equal(t, wantFirst, layers[0].Colour)

	v, ok := w.Var("--backdrop-depth-0-color")
	require.True(t, ok)
	assert.Equal(t, wantFirst, v)
}

func TestMobileUsesFewerLayers(t *testing.T) {
	dev := strategytest.HighEndDevice()
	dev.Mobile = true
	s := New(strategy.Deps{Device: dev}, nil)

	s.ProcessColors(context.Background(), strategy.NewColorContext("", map[string]string{strategy.RolePrimary: "#cba6f7"}, nil))
	assert.Len(t, s.Layers(), ReducedLayers)
}

func TestLayersConvergeWithoutSnapping(t *testing.T) {
	w := strategytest.NewWriter()
	sched := render.NewScheduler(hclog.NewNullLogger())
	s := New(strategy.Deps{Writer: w, Device: strategytest.HighEndDevice()}, sched)
	defer s.Destroy()

	cc := strategy.NewColorContext("", map[string]string{strategy.RolePrimary: "#cba6f7"}, &strategy.MusicData{Energy: strategy.Float(1)})
	s.ProcessColors(context.Background(), cc)

	start := s.Layers()[0]
	epoch := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	sched.Tick(epoch)
	sched.Tick(epoch.Add(20 * time.Millisecond))

	after := s.Layers()[0]
	assert.Greater(t, after.Opacity.Current, start.Opacity.Current)
	assert.Less(t, after.Opacity.Current, after.Opacity.Target)

	_, ok := w.Var("--backdrop-depth-0-opacity")
	assert.True(t, ok)
}

func TestDestroyFreesLayers(t *testing.T) {
	sched := render.NewScheduler(hclog.NewNullLogger())
	s := New(strategy.Deps{Device: strategytest.HighEndDevice()}, sched)
	s.ProcessColors(context.Background(), strategy.NewColorContext("", map[string]string{strategy.RolePrimary: "#cba6f7"}, nil))
	require.Equal(t, 1, sched.Len())

	s.Destroy()

	assert.Empty(t, s.Layers())
	assert.Zero(t, sched.Len())
	assert.False(t, s.CanProcess(strategy.NewColorContext("", nil, nil)))
}
