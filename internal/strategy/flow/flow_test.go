package flow

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmylchreest/backdrop/internal/colour"
	"github.com/jmylchreest/backdrop/internal/events"
	"github.com/jmylchreest/backdrop/internal/render"
	"github.com/jmylchreest/backdrop/internal/strategy"
	"github.com/jmylchreest/backdrop/internal/strategy/strategytest"
)

var epoch = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

func primary() strategy.ColorContext {
	return strategy.NewColorContext("spotify:track:1", map[string]string{strategy.RolePrimary: "#cba6f7"}, nil)
}

type fixture struct {
	s      *Strategy
	gpu    *render.SoftwareDevice
	writer *strategytest.Writer
	sched  *render.Scheduler
	bus    *events.Bus
	ch     chan events.Event
}

func newFixture(t *testing.T, opts render.SoftwareOptions, settings strategy.MapSettings) *fixture {
	t.Helper()
	f := &fixture{
		gpu:    render.NewSoftwareDevice(hclog.NewNullLogger(), opts),
		writer: strategytest.NewWriter(),
		sched:  render.NewScheduler(hclog.NewNullLogger()),
		bus:    events.NewBus(),
		ch:     make(chan events.Event, 8),
	}
	require.NoError(t, f.bus.Subscribe("test", f.ch, events.KindFallbackActivated))
	f.s = New(strategy.Deps{
		Writer:   f.writer,
		Device:   strategytest.HighEndDevice(),
		Settings: settings,
	}, f.sched, f.gpu, Options{Width: 64, Height: 36, Events: f.bus})
	t.Cleanup(f.s.Destroy)
	return f
}

func TestCanProcess(t *testing.T) {
	gpu := render.NewSoftwareDevice(hclog.NewNullLogger(), render.SoftwareOptions{})
	noGL := strategytest.HighEndDevice()
	noGL.WebGL = false
	lowGL := strategytest.LowEndDevice()
	lowGL.WebGL = true

	tests := []struct {
		name     string
		device   strategy.DeviceCapabilities
		settings strategy.MapSettings
		want     bool
	}{
		{"capable", strategytest.HighEndDevice(), nil, true},
		{"no webgl", noGL, nil, false},
		{"disabled", strategytest.HighEndDevice(), strategy.MapSettings{strategy.KeyShaderEnabled: false}, false},
		{"low tier", lowGL, nil, false},
		{"low tier forced", lowGL, strategy.MapSettings{strategy.KeyShaderForceLowEnd: true}, true},
		{"no device", nil, nil, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := New(strategy.Deps{Device: tt.device, Settings: tt.settings}, nil, gpu, Options{})
			assert.Equal(t, tt.want, s.CanProcess(primary()))
		})
	}
}

func TestShaderPath(t *testing.T) {
	f := newFixture(t, render.SoftwareOptions{Scale: 4}, nil)
	cc := primary()
	require.True(t, f.s.CanProcess(cc))

	r := f.s.ProcessColors(context.Background(), cc)

	require.Empty(t, r.Metadata.Error)
	assert.Equal(t, StateReady, f.s.State())
	assert.Equal(t, strategy.RenderShader, r.Metadata.RenderTier)
	assert.Empty(t, r.Metadata.FallbackMode)
	assert.NotEmpty(t, r.Gradient)

	enhanced := colour.ProcessColor("#cba6f7", colour.PresetStandard).EnhancedHex
	assert.Contains(t, []string{"#cba6f7", enhanced}, r.AccentHex)

	ready, _ := f.writer.Var(strategy.FlowReadyVar)
	assert.Equal(t, "1", ready)
	assert.True(t, f.gpu.Attached())

	f.sched.Tick(epoch)
	f.sched.Tick(epoch.Add(20 * time.Millisecond))
	assert.Equal(t, 2, f.gpu.Draws())
	assert.NotNil(t, f.gpu.Frame())
}

func TestForcedInitFailureFallsBackToCSS(t *testing.T) {
	for _, step := range []render.Step{render.StepContext, render.StepCompile, render.StepLink, render.StepQuad, render.StepTexture, render.StepAttach} {
		t.Run(string(step), func(t *testing.T) {
			f := newFixture(t, render.SoftwareOptions{Fail: map[render.Step]error{step: errors.New("boom")}}, nil)

			r := f.s.ProcessColors(context.Background(), primary())

			assert.Equal(t, strategy.FallbackCSSGradient, r.Metadata.FallbackMode)
			assert.Equal(t, strategy.RenderCSSGradient, r.Metadata.RenderTier)
			assert.Empty(t, r.Metadata.Error)
			assert.Equal(t, StateDegradedCSS, f.s.State())
			assert.Zero(t, f.gpu.Resources(), "gpu resources released")

			gradient, ok := f.writer.Var(strategy.CSSVar("flow", "gradient"))
			require.True(t, ok)
			assert.Contains(t, gradient, "linear-gradient")
			ready, _ := f.writer.Var(strategy.FlowReadyVar)
			assert.Equal(t, "0", ready)

			select {
			case ev := <-f.ch:
				fa, ok := ev.Payload.(events.FallbackActivated)
				require.True(t, ok)
				assert.Equal(t, strategy.FallbackCSSGradient, fa.Mode)
			default:
				t.Fatal("no fallback event")
			}
		})
	}
}

func TestCSSFallbackAnimates(t *testing.T) {
	f := newFixture(t, render.SoftwareOptions{Unavailable: true}, nil)
	f.s.ProcessColors(context.Background(), primary())
	require.Equal(t, StateDegradedCSS, f.s.State())

	f.sched.Tick(epoch)
	f.sched.Tick(epoch.Add(40 * time.Millisecond))

	_, ok := f.writer.Var(strategy.CSSVar("flow", "offset-x"))
	assert.True(t, ok)
}

func TestShaderAndCSSFailureFallsBackToSolid(t *testing.T) {
	f := newFixture(t, render.SoftwareOptions{Unavailable: true}, nil)
	f.writer.SetErr(strategytest.ErrWriteRejected)

	r := f.s.ProcessColors(context.Background(), primary())

	assert.Equal(t, strategy.FallbackSolidColor, r.Metadata.FallbackMode)
	assert.NotEmpty(t, r.AccentHex)
	assert.NotEmpty(t, r.Metadata.Error)
	assert.Equal(t, StateDegradedSolid, f.s.State())

	report, err := f.s.HealthCheck(context.Background())
	require.NoError(t, err)
	assert.False(t, report.Healthy)
}

func TestDrawFailureDegradesFromRenderLoop(t *testing.T) {
	f := newFixture(t, render.SoftwareOptions{}, nil)
	f.s.ProcessColors(context.Background(), primary())
	require.Equal(t, StateReady, f.s.State())

	f.gpu.LoseContext()
	f.sched.Tick(epoch)

	assert.Equal(t, StateDegradedCSS, f.s.State())
	r := f.s.ProcessColors(context.Background(), primary())
	assert.Equal(t, strategy.FallbackCSSGradient, r.Metadata.FallbackMode)
}

func TestSmoothingNeverSnaps(t *testing.T) {
	f := newFixture(t, render.SoftwareOptions{}, nil)
	before := f.s.Uniforms().FlowStrength

	loud := strategy.NewColorContext("", map[string]string{strategy.RolePrimary: "#cba6f7"}, &strategy.MusicData{Energy: strategy.Float(1)})
	f.s.ProcessColors(context.Background(), loud)
	assert.Equal(t, before, f.s.Uniforms().FlowStrength, "targets move, current values do not")

	f.sched.Tick(epoch)
	f.sched.Tick(epoch.Add(20 * time.Millisecond))
	after := f.s.Uniforms().FlowStrength
	assert.Greater(t, after, before)
	assert.Less(t, after, FlowStrength(0.6+0.5*0.8, 1))
}

func TestFlowStrength(t *testing.T) {
	assert.InDelta(t, 1.0, FlowStrength(1, 0), 1e-9)
	assert.InDelta(t, 1.8, FlowStrength(1, 1), 1e-9)
	assert.InDelta(t, 1.8, FlowStrength(1, 3), 1e-9, "energy is clamped")
}

func TestDestroy(t *testing.T) {
	f := newFixture(t, render.SoftwareOptions{}, nil)
	f.s.ProcessColors(context.Background(), primary())
	require.Equal(t, 1, f.sched.Len())

	f.s.Destroy()

	assert.Equal(t, StateDestroyed, f.s.State())
	assert.Zero(t, f.sched.Len())
	assert.Zero(t, f.gpu.Resources())
	assert.False(t, f.s.CanProcess(primary()))

	r := f.s.ProcessColors(context.Background(), primary())
	assert.NotEmpty(t, r.AccentHex)
	assert.NotEmpty(t, r.Metadata.Error)
}
