package living

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

var epoch = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

func newStrategy(t *testing.T, settings strategy.MapSettings) (*Strategy, *strategytest.Writer, *render.Scheduler) {
	t.Helper()
	w := strategytest.NewWriter()
	sched := render.NewScheduler(hclog.NewNullLogger())
	s := New(strategy.Deps{
		Writer:   w,
		Device:   strategytest.HighEndDevice(),
		Settings: settings,
	}, sched)
	t.Cleanup(s.Destroy)
	return s, w, sched
}

func TestProcessColorsBuildsEnhancedGradient(t *testing.T) {
	s, w, _ := newStrategy(t, strategy.MapSettings{strategy.KeyOKLabPreset: "vibrant"})

	cc := strategy.NewColorContext("track", map[string]string{
		strategy.RolePrimary: "#cba6f7",
		strategy.RoleVibrant: "#f38ba8",
	}, nil)
	r := s.ProcessColors(context.Background(), cc)

	assert.Empty(t, r.Metadata.Error)
	require.Len(t, r.Gradient, StopCount)
	assert.True(t, colour.ValidStops(r.Gradient))
	assert.Equal(t, "vibrant", r.Metadata.Extra["preset"])

	want := colour.ProcessColor("#f38ba8", colour.PresetVibrant).EnhancedHex
	assert.Equal(t, want, r.AccentHex)
	assert.Equal(t, want, r.ProcessedColors[strategy.RoleVibrant])

	v, ok := w.Var("--backdrop-living-stop-0")
	require.True(t, ok)
	assert.Equal(t, r.Gradient[0].Hex(), v)
}

func TestBreathingFollowsTempoAndEnergy(t *testing.T) {
	s, _, _ := newStrategy(t, nil)

	cc := strategy.NewColorContext("", map[string]string{strategy.RolePrimary: "#cba6f7"}, &strategy.MusicData{
		Energy: strategy.Float(1),
		Tempo:  strategy.Float(120),
	})
	r := s.ProcessColors(context.Background(), cc)

	assert.InDelta(t, 2.0, r.Metadata.Extra["breathingPeriod"], 1e-9)
	assert.InDelta(t, 0.08, r.Metadata.Extra["breathingAmplitude"], 1e-9)
	assert.Equal(t, true, r.Metadata.Extra["animated"])
}

func TestAnimationWritesFrames(t *testing.T) {
	s, w, sched := newStrategy(t, nil)
	s.ProcessColors(context.Background(), strategy.NewColorContext("", map[string]string{strategy.RolePrimary: "#cba6f7"}, nil))
	require.Equal(t, 1, sched.Len())

	for ms := 0; ms < 500; ms += 5 {
		sched.Tick(epoch.Add(time.Duration(ms) * time.Millisecond))
	}

	_, ok := w.Var("--backdrop-living-scale")
	assert.True(t, ok)

	s.Destroy()
	assert.Equal(t, 0, sched.Len())
	assert.False(t, s.CanProcess(strategy.NewColorContext("", nil, nil)))
}

func TestAnimationsDisabled(t *testing.T) {
	s, _, sched := newStrategy(t, strategy.MapSettings{strategy.KeyAnimationsEnabled: false})
	r := s.ProcessColors(context.Background(), strategy.NewColorContext("", map[string]string{strategy.RolePrimary: "#cba6f7"}, nil))

	assert.Equal(t, false, r.Metadata.Extra["animated"])
	assert.Equal(t, 0, sched.Len())
}

func TestHealthCheckReportsWriteFailures(t *testing.T) {
	s, w, _ := newStrategy(t, nil)
	w.SetErr(strategytest.ErrWriteRejected)

	cc := strategy.NewColorContext("", map[string]string{strategy.RolePrimary: "#cba6f7"}, nil)
	for range maxWriteFailures {
		r := s.ProcessColors(context.Background(), cc)
		assert.NotEmpty(t, r.Metadata.Error)
		assert.NotEmpty(t, r.AccentHex)
	}

	report, err := s.HealthCheck(context.Background())
	require.NoError(t, err)
	assert.False(t, report.Healthy)
	assert.NotEmpty(t, report.Issues)
}
