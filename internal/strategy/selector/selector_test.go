package selector

import (
	"context"
	"testing"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmylchreest/backdrop/internal/events"
	"github.com/jmylchreest/backdrop/internal/strategy"
	"github.com/jmylchreest/backdrop/internal/strategy/registry"
	"github.com/jmylchreest/backdrop/internal/strategy/strategytest"
)

type fake struct {
	name      string
	refuse    bool
	destroyed bool
}

func (f *fake) Name() string                                                { return f.name }
func (f *fake) CanProcess(strategy.ColorContext) bool                       { return !f.refuse }
func (f *fake) EstimatedProcessingTime(strategy.ColorContext) time.Duration { return time.Millisecond }
func (f *fake) ProcessColors(_ context.Context, cc strategy.ColorContext) strategy.ColorResult {
	return strategy.SolidResult(f.name, cc, strategy.AccentOrFallback(cc))
}
func (f *fake) Destroy() { f.destroyed = true }

func newSelector(t *testing.T, device strategy.DeviceCapabilities, settings strategy.MapSettings, opts Options) (*Selector, map[Type]*fake, *int) {
	t.Helper()
	fakes := map[Type]*fake{
		TypeAccent: {name: "css-gradient"},
		TypeLiving: {name: "living-gradient"},
		TypeShader: {name: "flow-gradient"},
		TypeDepth:  {name: "depth-layers"},
	}
	created := 0
	s := New(hclog.NewNullLogger(), device, settings, opts)
	for _, t := range []Type{TypeAccent, TypeLiving, TypeShader, TypeDepth} {
		f := fakes[t]
		s.Register(t, func() strategy.Strategy {
			created++
			return f
		})
	}
	return s, fakes, &created
}

var cc = strategy.NewColorContext("", map[string]string{strategy.RolePrimary: "#cba6f7"}, nil)

func TestSelectHighEnd(t *testing.T) {
	s, _, _ := newSelector(t, strategytest.HighEndDevice(), nil, Options{})

	sel := s.Select(context.Background(), cc, nil)

	assert.ElementsMatch(t, []string{"css-gradient", "living-gradient", "flow-gradient", "depth-layers"}, sel.Names())
	assert.False(t, sel.Forced)
	assert.Len(t, sel.Decisions, 4)
}

func TestSelectLowEnd(t *testing.T) {
	s, _, _ := newSelector(t, strategytest.LowEndDevice(), nil, Options{})

	sel := s.Select(context.Background(), cc, nil)

	assert.NotContains(t, sel.Names(), "flow-gradient")
	assert.NotContains(t, sel.Names(), "depth-layers")
	assert.Contains(t, sel.Names(), "living-gradient")
}

func TestShaderHeuristic(t *testing.T) {
	base := BackgroundCriteria{
		Criteria: strategy.Criteria{Performance: strategy.TierHigh, Device: strategy.DeviceSnapshot{WebGL: true, MemoryGB: 16}},
		Settings: SettingsSnapshot{ShaderEnabled: true},
	}
	score, _ := scoreShader(base)
	assert.Greater(t, score, InclusionThreshold)

	noGL := base
	noGL.Device.WebGL = false
	score, reason := scoreShader(noGL)
	assert.Zero(t, score)
	assert.Equal(t, "webgl unsupported", reason)

	disabled := base
	disabled.Settings.ShaderEnabled = false
	score, _ = scoreShader(disabled)
	assert.Zero(t, score)

	low := base
	low.Performance = strategy.TierLow
	score, _ = scoreShader(low)
	assert.Zero(t, score)

	low.Settings.ForceLowEnd = true
	forced, _ := scoreShader(low)
	assert.Greater(t, forced, 0.0)
	high, _ := scoreShader(base)
	assert.Less(t, forced, high, "forced low tier is only lightly boosted")

	mobile := base
	mobile.Device.Mobile = true
	penalised, _ := scoreShader(mobile)
	assert.Less(t, penalised, high)
}

func TestDepthHeuristic(t *testing.T) {
	bc := BackgroundCriteria{
		Criteria: strategy.Criteria{Performance: strategy.TierHigh, Device: strategy.DeviceSnapshot{MemoryGB: 16}},
		Settings: SettingsSnapshot{DepthEnabled: true, Intensity: 0.75},
	}
	fast, _ := scoreDepth(bc)
	bc.Music.BPM = 80
	slow, _ := scoreDepth(bc)
	assert.Greater(t, slow, fast)

	bc.Settings.Intensity = 0.25
	score, _ := scoreDepth(bc)
	assert.Zero(t, score)

	medium := BackgroundCriteria{
		Criteria: strategy.Criteria{Performance: strategy.TierMedium},
		Settings: SettingsSnapshot{DepthEnabled: true, Intensity: 0.5},
	}
	score, _ = scoreDepth(medium)
	assert.Greater(t, score, InclusionThreshold, "medium tier alone includes depth")

	medium.Device.Mobile = true
	score, _ = scoreDepth(medium)
	assert.LessOrEqual(t, score, InclusionThreshold, "mobile medium tier excludes depth")

	medium.Performance = strategy.TierLow
	score, _ = scoreDepth(medium)
	assert.Zero(t, score)
}

func TestForceIncludesLiving(t *testing.T) {
	s, fakes, _ := newSelector(t, strategytest.LowEndDevice(), nil, Options{})
	fakes[TypeAccent].refuse = true
	fakes[TypeLiving].refuse = true

	sel := s.Select(context.Background(), cc, nil)

	require.Len(t, sel.Strategies, 1)
	assert.Equal(t, "living-gradient", sel.Strategies[0].Name())
	assert.True(t, sel.Forced)
}

func TestInstancesAreCached(t *testing.T) {
	s, _, created := newSelector(t, strategytest.HighEndDevice(), nil, Options{})

	s.Select(context.Background(), cc, nil)
	s.Select(context.Background(), cc, nil)

	assert.Equal(t, 4, *created)
}

func TestAllowedFilter(t *testing.T) {
	s, _, _ := newSelector(t, strategytest.HighEndDevice(), nil, Options{})
	in := &strategy.Criteria{
		Performance: strategy.TierHigh,
		Device:      strategy.SnapshotDevice(strategytest.HighEndDevice()),
		Allowed:     []string{"flow-gradient"},
	}

	sel := s.Select(context.Background(), cc, in)

	assert.Equal(t, []string{"flow-gradient"}, sel.Names())
}

func TestRegistryIntegration(t *testing.T) {
	reg := registry.New(hclog.NewNullLogger(), registry.Options{})
	defer reg.Destroy()
	s, _, _ := newSelector(t, strategytest.HighEndDevice(), nil, Options{Registry: reg})

	s.Select(context.Background(), cc, nil)
	require.Equal(t, 4, reg.Len())

	for range registry.MinUsesForHealth {
		reg.RecordUsage("flow-gradient")
		reg.RecordError("flow-gradient", strategy.ErrProcessing)
	}
	sel := s.Select(context.Background(), cc, nil)
	assert.NotContains(t, sel.Names(), "flow-gradient")
	for _, d := range sel.Decisions {
		if d.Strategy == string(TypeShader) {
			assert.Equal(t, "unhealthy", d.Reason)
		}
	}
}

func TestSelectPublishesDecisions(t *testing.T) {
	bus := events.NewBus()
	ch := make(chan events.Event, 1)
	require.NoError(t, bus.Subscribe("test", ch, events.KindStrategiesSelected))
	s, _, _ := newSelector(t, strategytest.HighEndDevice(), nil, Options{Events: bus})

	s.Select(context.Background(), cc, nil)

	ev := <-ch
	p, ok := ev.Payload.(events.StrategiesSelected)
	require.True(t, ok)
	assert.Len(t, p.Decisions, 4)
	assert.NotEmpty(t, p.Selected)
}

func TestResetDestroysUnownedInstances(t *testing.T) {
	s, fakes, created := newSelector(t, strategytest.HighEndDevice(), nil, Options{})
	s.Select(context.Background(), cc, nil)

	s.Reset()

	assert.True(t, fakes[TypeLiving].destroyed)
	s.Select(context.Background(), cc, nil)
	assert.Equal(t, 8, *created)
}

func TestBuildCriteriaFromSettings(t *testing.T) {
	settings := strategy.MapSettings{
		strategy.KeyPerformance: "low",
		strategy.KeyIntensity:   "intense",
	}
	music := &strategy.MusicData{Energy: strategy.Float(0.9), Tempo: strategy.Float(120)}
	bc := BuildCriteria(nil, strategytest.HighEndDevice(), settings, strategy.NewColorContext("", nil, music))

	assert.Equal(t, strategy.TierLow, bc.Performance)
	assert.Equal(t, strategy.TierHigh, bc.Quality)
	assert.Equal(t, 0.75, bc.Settings.Intensity)
	assert.Equal(t, 0.9, bc.Music.Energy)
	assert.Equal(t, 120.0, bc.Music.BPM)
	assert.True(t, bc.Device.WebGL)
}

func TestRegisterScored(t *testing.T) {
	s, _, _ := newSelector(t, strategytest.HighEndDevice(), nil, Options{})
	ext := &fake{name: "plugin:duotone"}
	s.RegisterScored("plugin:duotone", func() strategy.Strategy { return ext }, func(BackgroundCriteria) (float64, string) {
		return 0.7, "external"
	})

	sel := s.Select(context.Background(), cc, nil)

	assert.Contains(t, sel.Names(), "plugin:duotone")
	assert.Equal(t, Type("plugin:duotone"), s.Types()[len(s.Types())-1])
	_, shared := DefaultHeuristics()["plugin:duotone"]
	assert.False(t, shared, "heuristics map must not leak between selectors")
}
