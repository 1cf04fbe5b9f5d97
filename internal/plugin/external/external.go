// Package external adapts strategy plugin binaries to strategy.Strategy so the
// selector, registry and orchestrator treat them like built-in strategies.
package external

import (
	"context"
	"fmt"
	"maps"
	"strings"
	"sync"
	"time"

	"github.com/jmylchreest/backdrop/internal/colour"
	"github.com/jmylchreest/backdrop/internal/plugin/protocol"
	"github.com/jmylchreest/backdrop/internal/strategy"
	"github.com/jmylchreest/backdrop/internal/strategy/selector"
	"github.com/jmylchreest/backdrop/pkg/plugin"
)

// NamePrefix namespaces plugin strategies away from the built-in names.
const NamePrefix = "plugin:"

// settingKeys are forwarded to plugins with every input.
var settingKeys = []string{
	strategy.KeyIntensity,
	strategy.KeyVisualMode,
	strategy.KeyBlendMode,
	strategy.KeyOKLabPreset,
	strategy.KeyAnimationsEnabled,
	strategy.KeyPerformance,
	strategy.KeyQuality,
}

// Runner is the plugin transport. *executor.Executor implements it.
type Runner interface {
	Info() protocol.PluginInfo
	Process(ctx context.Context, in plugin.StrategyInput) (plugin.StrategyOutput, error)
	CanProcess(ctx context.Context, in plugin.StrategyInput) bool
	Health(ctx context.Context) plugin.HealthStatus
	Close()
}

// Strategy runs one plugin.
type Strategy struct {
	runner Runner
	deps   strategy.Deps
	name   string
	desc   strategy.Descriptor

	mu        sync.Mutex
	destroyed bool
}

var (
	_ strategy.Strategy      = (*Strategy)(nil)
	_ strategy.Describer     = (*Strategy)(nil)
	_ strategy.HealthChecker = (*Strategy)(nil)
	_ strategy.Destroyer     = (*Strategy)(nil)
)

// New wraps runner. The strategy takes ownership and closes it on Destroy.
func New(deps strategy.Deps, runner Runner) *Strategy {
	info := runner.Info()
	name := NamePrefix + info.Name
	deps = deps.WithDefaults()
	deps.Logger = deps.Logger.Named(name)
	return &Strategy{
		runner: runner,
		deps:   deps,
		name:   name,
		desc:   descriptor(info),
	}
}

func descriptor(info protocol.PluginInfo) strategy.Descriptor {
	d := strategy.Descriptor{
		Category:     strategy.CategoryAccent,
		Priority:     info.Priority,
		MemoryImpact: strategy.ImpactMedium,
		Requirements: info.Requirements,
	}
	switch c := strategy.Category(info.Category); c {
	case strategy.CategoryFoundation, strategy.CategoryEnhancement, strategy.CategoryAccent, strategy.CategoryEffects:
		d.Category = c
	}
	switch m := strategy.Impact(info.MemoryImpact); m {
	case strategy.ImpactLow, strategy.ImpactMedium, strategy.ImpactHigh:
		d.MemoryImpact = m
	}
	return d
}

func (s *Strategy) Name() string { return s.name }

// Type returns the selector type the strategy registers under.
func (s *Strategy) Type() selector.Type { return selector.Type(s.name) }

// Describe implements strategy.Describer.
func (s *Strategy) Describe() strategy.Descriptor { return s.desc }

// CanProcess asks the plugin. Destroyed strategies and contexts without colours
// are refused without a round trip.
func (s *Strategy) CanProcess(cc strategy.ColorContext) bool {
	s.mu.Lock()
	destroyed := s.destroyed
	s.mu.Unlock()
	if destroyed || cc.Len() == 0 {
		return false
	}
	return s.runner.CanProcess(context.Background(), s.input(cc))
}

// EstimatedProcessingTime implements strategy.Strategy. Process start-up
// dominates.
func (s *Strategy) EstimatedProcessingTime(strategy.ColorContext) time.Duration {
	return 25 * time.Millisecond
}

// ProcessColors sends the context to the plugin and validates its reply. A
// failed call degrades to a solid result.
func (s *Strategy) ProcessColors(ctx context.Context, cc strategy.ColorContext) strategy.ColorResult {
	return strategy.Timed(func() strategy.ColorResult {
		s.mu.Lock()
		destroyed := s.destroyed
		s.mu.Unlock()
		if destroyed {
			return strategy.DegradedResult(s.name, cc, strategy.Errorf("strategy destroyed"))
		}

		out, err := s.runner.Process(ctx, s.input(cc))
		if err != nil {
			s.deps.Logger.Warn("plugin call failed", "error", err)
			return strategy.DegradedResult(s.name, cc, strategy.Errorf("plugin: %v", err))
		}
		result := s.convert(cc, out)

		if vars := s.cssVariables(out.CSSVariables); len(vars) > 0 {
			if err := s.deps.Writer.SetVariables(vars, strategy.PriorityNormal); err != nil && result.Metadata.Error == "" {
				result.Metadata.Error = strategy.Errorf("write variables: %v", err).Error()
			}
		}
		return result
	})
}

func (s *Strategy) input(cc strategy.ColorContext) plugin.StrategyInput {
	in := plugin.StrategyInput{
		TrackURI:  cc.TrackURI(),
		RawColors: cc.RawColors(),
	}
	if m := cc.Music(); m != nil {
		in.Music = &plugin.MusicData{Energy: m.Energy, Valence: m.Valence, Tempo: m.Tempo}
	}
	for _, key := range settingKeys {
		if v := s.deps.Settings.Get(key); v != nil {
			if in.Settings == nil {
				in.Settings = make(map[string]any, len(settingKeys))
			}
			in.Settings[key] = v
		}
	}
	return in
}

// convert validates a plugin reply. Unparseable colours are dropped and a
// missing accent or gradient is derived from the context.
func (s *Strategy) convert(cc strategy.ColorContext, out plugin.StrategyOutput) strategy.ColorResult {
	processed := make(map[string]string, len(out.ProcessedColors))
	for role, hex := range out.ProcessedColors {
		if c, err := colour.ParseHex(hex); err == nil {
			processed[strings.ToUpper(role)] = c.Hex()
		}
	}
	if len(processed) == 0 {
		processed = strategy.ValidColors(cc)
	}

	accent, err := colour.ParseHex(out.AccentHex)
	if err != nil {
		accent = colour.MustParseHex(strategy.AccentOrFallback(cc))
	}

	stops := make([]colour.GradientStop, 0, len(out.Gradient))
	for _, g := range out.Gradient {
		stops = append(stops, colour.GradientStop{R: g.R, G: g.G, B: g.B, A: g.A, Position: g.Position})
	}
	if len(stops) < 2 || !colour.ValidStops(stops) {
		stops = []colour.GradientStop{colour.StopFromRGB(accent, 0), colour.StopFromRGB(accent, 1)}
	}

	info := s.runner.Info()
	result := strategy.ColorResult{
		ProcessedColors: processed,
		AccentHex:       accent.Hex(),
		AccentRGB:       accent.Triplet(),
		Gradient:        stops,
		Metadata: strategy.Metadata{
			Strategy:   s.name,
			Error:      out.Error,
			RenderTier: strategy.RenderCSS,
			Extra:      maps.Clone(out.Extra),
		},
	}
	result.Metadata.Set("pluginVersion", info.Version)
	return result
}

// cssVariables keeps only custom-property names.
func (s *Strategy) cssVariables(in map[string]string) map[string]string {
	out := make(map[string]string, len(in))
	for k, v := range in {
		if !strings.HasPrefix(k, "--") {
			s.deps.Logger.Debug("ignoring non custom property", "name", k)
			continue
		}
		out[k] = v
	}
	return out
}

// HealthCheck implements strategy.HealthChecker.
func (s *Strategy) HealthCheck(ctx context.Context) (strategy.HealthReport, error) {
	s.mu.Lock()
	destroyed := s.destroyed
	s.mu.Unlock()
	if destroyed {
		return strategy.HealthReport{Issues: []string{"destroyed"}}, nil
	}
	status := s.runner.Health(ctx)
	return strategy.HealthReport{Healthy: status.Healthy, Issues: status.Issues}, nil
}

// Destroy closes the plugin transport.
func (s *Strategy) Destroy() {
	s.mu.Lock()
	if s.destroyed {
		s.mu.Unlock()
		return
	}
	s.destroyed = true
	s.mu.Unlock()
	s.runner.Close()
}

// Heuristic scores a plugin for the selector from its declared priority and
// requirements.
func Heuristic(desc strategy.Descriptor) selector.Heuristic {
	return func(bc selector.BackgroundCriteria) (float64, string) {
		if desc.Requires(strategy.RequiresWebGL) && !bc.Device.WebGL {
			return 0, "webgl unsupported"
		}
		if desc.Requires(strategy.RequiresAnimation) && !bc.Settings.AnimationsEnabled {
			return 0, "animations disabled"
		}
		if desc.MemoryImpact == strategy.ImpactHigh && bc.Performance == strategy.TierLow {
			return 0, "low tier"
		}
		score := min(0.55+float64(max(desc.Priority, 0))*0.03, 0.9)
		return score, fmt.Sprintf("plugin priority %d", desc.Priority)
	}
}
