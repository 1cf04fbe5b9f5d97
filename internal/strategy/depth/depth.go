// Package depth implements the depth-parallax strategy: a few translucent planes
// tinted with OKLab shadow variants, drifting at different parallax rates.
package depth

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"sync"
	"time"

	"github.com/jmylchreest/backdrop/internal/colour"
	"github.com/jmylchreest/backdrop/internal/render"
	"github.com/jmylchreest/backdrop/internal/strategy"
)

// Name is the strategy identifier.
const Name = "depth-layers"

const (
	// DefaultLayers is the plane count on capable devices.
	DefaultLayers = 3
	// ReducedLayers is used on mobile devices.
	ReducedLayers = 2

	// MinIntensity is the intensity level below which the strategy declines.
	MinIntensity = 0.5

	layerHalfLife = 800 * time.Millisecond
	offsetRange   = 24.0
)

// Strategy renders the depth layers through CSS variables.
type Strategy struct {
	deps  strategy.Deps
	sched *render.Scheduler

	mu        sync.Mutex
	arena     Arena
	ids       []LayerID
	sub       *render.Subscription
	destroyed bool
}

var (
	_ strategy.Strategy      = (*Strategy)(nil)
	_ strategy.Describer     = (*Strategy)(nil)
	_ strategy.HealthChecker = (*Strategy)(nil)
	_ strategy.Destroyer     = (*Strategy)(nil)
	_ strategy.MusicListener = (*Strategy)(nil)
)

// New creates the strategy. A nil scheduler leaves the layers static.
func New(deps strategy.Deps, sched *render.Scheduler) *Strategy {
	deps = deps.WithDefaults()
	deps.Logger = deps.Logger.Named(Name)
	return &Strategy{deps: deps, sched: sched}
}

func (s *Strategy) Name() string { return Name }

// Describe implements strategy.Describer.
func (s *Strategy) Describe() strategy.Descriptor {
	return strategy.Descriptor{
		Category:     strategy.CategoryEnhancement,
		Priority:     3,
		MemoryImpact: strategy.ImpactMedium,
		Requirements: []string{strategy.RequiresAnimation},
	}
}

// CanProcess requires the feature flag, a minimum intensity and a non-low tier.
func (s *Strategy) CanProcess(strategy.ColorContext) bool {
	s.mu.Lock()
	destroyed := s.destroyed
	s.mu.Unlock()

	return !destroyed &&
		strategy.Bool(s.deps.Settings, strategy.KeyDepthEnabled, true) &&
		strategy.IntensityLevel(strategy.String(s.deps.Settings, strategy.KeyIntensity, "balanced")) >= MinIntensity &&
		s.deps.Tier() != strategy.TierLow
}

// EstimatedProcessingTime implements strategy.Strategy.
func (s *Strategy) EstimatedProcessingTime(strategy.ColorContext) time.Duration {
	return 4*time.Millisecond + time.Duration(s.layerCount())*time.Millisecond
}

func (s *Strategy) layerCount() int {
	if s.deps.Device != nil && s.deps.Device.IsMobile() {
		return ReducedLayers
	}
	return DefaultLayers
}

// ProcessColors tints the layers and retargets their animation.
func (s *Strategy) ProcessColors(_ context.Context, cc strategy.ColorContext) strategy.ColorResult {
	return strategy.Timed(func() strategy.ColorResult {
		s.mu.Lock()
		defer s.mu.Unlock()

		if s.destroyed {
			return strategy.DegradedResult(Name, cc, strategy.Errorf("strategy destroyed"))
		}

		preset := colour.PresetOrDefault(strategy.String(s.deps.Settings, strategy.KeyOKLabPreset, colour.PresetStandard.Name))
		s.resize(s.layerCount())

		hexes := strategy.OrderedColors(cc)
		if len(hexes) == 0 {
			hexes = []string{strategy.FallbackAccent}
		}
		music := cc.Music()
		energy := music.EnergyOr(0.5)
		valence := music.ValenceOr(0.5)

		processed := make(map[string]string, len(s.ids))
		stops := make([]colour.GradientStop, 0, len(s.ids))
		vars := make(map[string]string, len(s.ids)*3)
		for i, id := range s.ids {
			l, _ := s.arena.Get(id)
			res := colour.ProcessColor(hexes[i%len(hexes)], preset)
			l.Colour = res.ShadowHex
			s.retargetLayer(l, energy, valence)

			processed["DEPTH_"+id.String()] = res.ShadowHex
			stops = append(stops, colour.StopFromRGB(res.ShadowRGB, l.Depth))
			vars[strategy.CSSVar("depth", id.String(), "color")] = res.ShadowHex
			vars[strategy.CSSVar("depth", id.String(), "color-rgb")] = res.ShadowRGB.Triplet()
			vars[strategy.CSSVar("depth", id.String(), "parallax")] = fmt.Sprintf("%.2f", l.Parallax)
		}
		vars[strategy.CSSVar("depth", "count")] = strconv.Itoa(len(s.ids))
		if len(stops) > 0 {
			stops[0].Position = 0
			stops[len(stops)-1].Position = 1
		}

		accent := colour.ProcessColor(strategy.AccentOrFallback(cc), preset)
		result := strategy.ColorResult{
			ProcessedColors: processed,
			AccentHex:       accent.EnhancedHex,
			AccentRGB:       accent.EnhancedRGB.Triplet(),
			Gradient:        stops,
			Metadata: strategy.Metadata{
				Strategy:   Name,
				RenderTier: strategy.RenderCSS,
			},
		}
		result.Metadata.Set("layers", len(s.ids))
		result.Metadata.Set("animated", s.ensureAnimation())

		if err := s.deps.Writer.SetVariables(vars, strategy.PriorityHigh); err != nil {
			result.Metadata.Error = strategy.Errorf("write variables: %v", err).Error()
		}
		return result
	})
}

// resize creates or destroys layers until there are n.
func (s *Strategy) resize(n int) {
	for len(s.ids) > n {
		last := s.ids[len(s.ids)-1]
		s.arena.Destroy(last)
		s.ids = s.ids[:len(s.ids)-1]
	}
	for i := len(s.ids); i < n; i++ {
		s.ids = append(s.ids, s.arena.Create(newLayer(i, n)))
	}
}

func newLayer(i, n int) Layer {
	depth := float64(i+1) / float64(n)
	fade := 1 / (1 + float64(i)*0.3)
	dir := 1.0
	if i%2 == 1 {
		dir = -1
	}
	l := Layer{
		Depth:         depth,
		Parallax:      0.2 + 0.3*float64(i),
		OpacityMin:    0.15 * fade,
		OpacityMax:    0.35 * fade,
		ScaleMin:      1.05 + 0.05*float64(i),
		ScaleMax:      1.15 + 0.05*float64(i),
		RotationSpeed: dir * 0.05 * float64(i+1),
		Blur:          4 + 6*float64(i),
		Phase:         float64(i) * 2 * math.Pi / float64(n),
	}
	l.OffsetY = render.NewSmoothed(0, layerHalfLife)
	l.Opacity = render.NewSmoothed(l.OpacityMin, layerHalfLife)
	l.BlurPx = render.NewSmoothed(l.Blur, layerHalfLife)
	l.Hue = render.NewSmoothed(0, 2*layerHalfLife)
	l.Scale = render.NewSmoothed(l.ScaleMin, layerHalfLife)
	return l
}

func (s *Strategy) retargetLayer(l *Layer, energy, valence float64) {
	energy = math.Min(math.Max(energy, 0), 1)
	l.Opacity.Set(l.OpacityMin + (l.OpacityMax-l.OpacityMin)*energy)
	l.Scale.Set(l.ScaleMin + (l.ScaleMax-l.ScaleMin)*energy)
	l.BlurPx.Set(l.Blur * (1 - energy*0.3))
	l.Hue.Set((valence - 0.5) * 30)
}

// OnMusic implements strategy.MusicListener.
func (s *Strategy) OnMusic(signal strategy.MusicSignal) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range s.ids {
		if l, ok := s.arena.Get(id); ok {
			s.retargetLayer(l, signal.Strength(), signal.Valence)
		}
	}
}

func (s *Strategy) ensureAnimation() bool {
	enabled := s.sched != nil &&
		strategy.Bool(s.deps.Settings, strategy.KeyAnimationsEnabled, true) &&
		(s.deps.Device == nil || !s.deps.Device.PrefersReducedMotion())
	if enabled && s.sub == nil {
		s.sub = s.sched.Subscribe(Name, 2*strategy.FrameInterval(s.deps.Tier()), s.tick)
	}
	return enabled
}

func (s *Strategy) tick(f render.Frame) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.destroyed {
		s.sub = nil
		return false
	}

	vars := make(map[string]string, len(s.ids)*5)
	for _, id := range s.ids {
		l, ok := s.arena.Get(id)
		if !ok {
			continue
		}
		l.Phase = math.Mod(l.Phase+f.Delta.Seconds()*l.RotationSpeed, 2*math.Pi)
		l.OffsetY.Set(math.Sin(l.Phase) * offsetRange * l.Parallax)

		key := id.String()
		vars[strategy.CSSVar("depth", key, "offset-y")] = fmt.Sprintf("%.2fpx", l.OffsetY.Step(f.Delta))
		vars[strategy.CSSVar("depth", key, "opacity")] = fmt.Sprintf("%.3f", l.Opacity.Step(f.Delta))
		vars[strategy.CSSVar("depth", key, "blur")] = fmt.Sprintf("%.1fpx", l.BlurPx.Step(f.Delta))
		vars[strategy.CSSVar("depth", key, "hue")] = fmt.Sprintf("%.1fdeg", l.Hue.Step(f.Delta))
		vars[strategy.CSSVar("depth", key, "scale")] = fmt.Sprintf("%.4f", l.Scale.Step(f.Delta))
	}
	if err := s.deps.Writer.SetVariables(vars, strategy.PriorityNormal); err != nil {
		s.deps.Logger.Trace("depth frame dropped", "error", err)
	}
	return true
}

// Layers returns copies of the live layers in depth order.
func (s *Strategy) Layers() []Layer {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Layer, 0, len(s.ids))
	for _, id := range s.ids {
		if l, ok := s.arena.Get(id); ok {
			out = append(out, *l)
		}
	}
	return out
}

// HealthCheck implements strategy.HealthChecker.
func (s *Strategy) HealthCheck(context.Context) (strategy.HealthReport, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.arena.Len() != len(s.ids) {
		return strategy.HealthReport{Issues: []string{"layer arena out of sync"}}, nil
	}
	return strategy.HealthReport{Healthy: !s.destroyed}, nil
}

// Destroy stops the animation and frees every layer.
func (s *Strategy) Destroy() {
	s.mu.Lock()
	s.destroyed = true
	sub := s.sub
	s.sub = nil
	s.arena.Clear()
	s.ids = nil
	s.mu.Unlock()

	if sub != nil {
		sub.Cancel()
	}
}
