// Package living implements the living gradient strategy: OKLab-enhanced stops
// from the two strongest colour roles, gently breathing in time with the music.
package living

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
const Name = "living-gradient"

const (
	// StopCount is the number of gradient stops generated.
	StopCount = 5

	defaultPeriod     = 8.0
	minPeriod         = 2.0
	maxPeriod         = 12.0
	smoothingHalfLife = 1500 * time.Millisecond
	maxWriteFailures  = 3
)

// Strategy is the foundation layer; the selector falls back to it when nothing
// else qualifies.
type Strategy struct {
	deps  strategy.Deps
	sched *render.Scheduler

	mu            sync.Mutex
	sub           *render.Subscription
	animating     bool
	destroyed     bool
	amplitude     render.Smoothed
	period        render.Smoothed
	phase         float64
	writeFailures int
}

var (
	_ strategy.Strategy      = (*Strategy)(nil)
	_ strategy.Describer     = (*Strategy)(nil)
	_ strategy.HealthChecker = (*Strategy)(nil)
	_ strategy.Destroyer     = (*Strategy)(nil)
	_ strategy.MusicListener = (*Strategy)(nil)
)

// New creates the strategy. A nil scheduler disables the breathing animation.
func New(deps strategy.Deps, sched *render.Scheduler) *Strategy {
	deps = deps.WithDefaults()
	deps.Logger = deps.Logger.Named(Name)
	return &Strategy{
		deps:      deps,
		sched:     sched,
		amplitude: render.NewSmoothed(0.04, smoothingHalfLife),
		period:    render.NewSmoothed(defaultPeriod, smoothingHalfLife),
	}
}

func (s *Strategy) Name() string { return Name }

// Describe implements strategy.Describer.
func (s *Strategy) Describe() strategy.Descriptor {
	return strategy.Descriptor{
		Category:     strategy.CategoryFoundation,
		Priority:     5,
		MemoryImpact: strategy.ImpactLow,
		Requirements: []string{strategy.RequiresAnimation},
	}
}

// CanProcess reports false only once destroyed.
func (s *Strategy) CanProcess(strategy.ColorContext) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.destroyed
}

// EstimatedProcessingTime implements strategy.Strategy.
func (s *Strategy) EstimatedProcessingTime(cc strategy.ColorContext) time.Duration {
	return 3*time.Millisecond + time.Duration(cc.Len())*500*time.Microsecond
}

// ProcessColors builds the enhanced gradient, writes it out and retargets the
// breathing animation.
func (s *Strategy) ProcessColors(_ context.Context, cc strategy.ColorContext) strategy.ColorResult {
	return strategy.Timed(func() strategy.ColorResult {
		s.mu.Lock()
		defer s.mu.Unlock()

		if s.destroyed {
			return strategy.DegradedResult(Name, cc, strategy.Errorf("strategy destroyed"))
		}

		preset := colour.PresetOrDefault(strategy.String(s.deps.Settings, strategy.KeyOKLabPreset, colour.PresetStandard.Name))
		from, to := endpoints(cc, preset)
		stops := colour.GenerateGradient(from, to, StopCount, preset)
		accent := colour.ProcessColor(strategy.AccentOrFallback(cc), preset)

		processed := make(map[string]string, cc.Len())
		for role, res := range colour.ProcessPalette(cc.RawColors(), preset) {
			if res.Valid {
				processed[role] = res.EnhancedHex
			}
		}
		if len(processed) == 0 {
			processed[strategy.RolePrimary] = accent.EnhancedHex
		}

		s.retarget(cc.Music())
		animated := s.ensureAnimation()

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
		result.Metadata.Set("preset", preset.Name)
		result.Metadata.Set("animated", animated)
		result.Metadata.Set("breathingPeriod", s.period.Target)
		result.Metadata.Set("breathingAmplitude", s.amplitude.Target)

		vars := map[string]string{
			strategy.CSSVar("living", "gradient"):   colour.CSSGradient(160, stops),
			strategy.CSSVar("living", "accent"):     accent.EnhancedHex,
			strategy.CSSVar("living", "accent-rgb"): accent.EnhancedRGB.Triplet(),
			strategy.CSSVar("living", "shadow"):     accent.ShadowHex,
		}
		for i, stop := range stops {
			vars[strategy.CSSVar("living", "stop", strconv.Itoa(i))] = stop.Hex()
		}
		if err := s.write(vars, strategy.PriorityHigh); err != nil {
			result.Metadata.Error = strategy.Errorf("write variables: %v", err).Error()
		}
		return result
	})
}

// endpoints returns the two strongest colours, pairing a lone colour with its
// shadow variant.
func endpoints(cc strategy.ColorContext, preset colour.Preset) (string, string) {
	hexes := strategy.OrderedColors(cc)
	switch len(hexes) {
	case 0:
		return strategy.FallbackAccent, colour.ProcessColor(strategy.FallbackAccent, preset).ShadowHex
	case 1:
		return hexes[0], colour.ProcessColor(hexes[0], preset).ShadowHex
	default:
		return hexes[0], hexes[1]
	}
}

// retarget sets the breathing targets: energy drives the amplitude, tempo the
// period (one breath every four beats).
func (s *Strategy) retarget(m *strategy.MusicData) {
	energy := m.EnergyOr(0.5)
	s.amplitude.Set(0.02 + energy*0.06)

	period := defaultPeriod
	if bpm, ok := m.BPM(); ok && bpm > 0 {
		period = math.Min(math.Max(240/bpm, minPeriod), maxPeriod)
	}
	s.period.Set(period)
}

// OnMusic implements strategy.MusicListener.
func (s *Strategy) OnMusic(signal strategy.MusicSignal) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.amplitude.Set(0.02 + signal.Strength()*0.06)
	if signal.BPM > 0 {
		s.period.Set(math.Min(math.Max(240/signal.BPM, minPeriod), maxPeriod))
	}
}

func (s *Strategy) ensureAnimation() bool {
	enabled := s.sched != nil &&
		strategy.Bool(s.deps.Settings, strategy.KeyAnimationsEnabled, true) &&
		(s.deps.Device == nil || !s.deps.Device.PrefersReducedMotion())

	s.animating = enabled
	if enabled && s.sub == nil {
		interval := 2 * strategy.FrameInterval(s.deps.Tier())
		s.sub = s.sched.Subscribe(Name, interval, s.tick)
	}
	return enabled
}

func (s *Strategy) tick(f render.Frame) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.destroyed || !s.animating {
		s.sub = nil
		return false
	}

	amp := s.amplitude.Step(f.Delta)
	period := s.period.Step(f.Delta)
	s.phase = math.Mod(s.phase+f.Delta.Seconds()/period*2*math.Pi, 2*math.Pi)

	wave := math.Sin(s.phase)
	vars := map[string]string{
		strategy.CSSVar("living", "scale"):   fmt.Sprintf("%.4f", 1+amp*wave),
		strategy.CSSVar("living", "opacity"): fmt.Sprintf("%.3f", 0.9+amp*math.Cos(s.phase)),
		strategy.CSSVar("living", "angle"):   fmt.Sprintf("%.2fdeg", 160+amp*120*math.Sin(s.phase/2)),
	}
	if err := s.write(vars, strategy.PriorityNormal); err != nil {
		s.deps.Logger.Trace("breathing frame dropped", "error", err)
	}
	return true
}

// write must be called with s.mu held.
func (s *Strategy) write(vars map[string]string, p strategy.Priority) error {
	if err := s.deps.Writer.SetVariables(vars, p); err != nil {
		s.writeFailures++
		return err
	}
	s.writeFailures = 0
	return nil
}

// HealthCheck implements strategy.HealthChecker.
func (s *Strategy) HealthCheck(context.Context) (strategy.HealthReport, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.writeFailures >= maxWriteFailures {
		return strategy.HealthReport{
			Healthy: false,
			Issues:  []string{fmt.Sprintf("%d consecutive variable writes failed", s.writeFailures)},
		}, nil
	}
	return strategy.HealthReport{Healthy: !s.destroyed}, nil
}

// Destroy stops the breathing animation.
func (s *Strategy) Destroy() {
	s.mu.Lock()
	s.destroyed = true
	sub := s.sub
	s.sub = nil
	s.mu.Unlock()

	if sub != nil {
		sub.Cancel()
	}
}
