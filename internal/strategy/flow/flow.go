// Package flow implements the shader flow-gradient strategy. A fragment program
// animates the gradient on a render.Device; when the device or the program
// fails, the strategy degrades to an animated CSS gradient and, failing that,
// to a flat accent colour.
package flow

import (
	"context"
	"fmt"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jmylchreest/backdrop/internal/colour"
	"github.com/jmylchreest/backdrop/internal/events"
	"github.com/jmylchreest/backdrop/internal/render"
	"github.com/jmylchreest/backdrop/internal/strategy"
)

// Name is the strategy identifier.
const Name = "flow-gradient"

const (
	// StopsPerSegment is the number of OKLab stops between adjacent colours.
	StopsPerSegment = 4
	// MaxColours caps the colours fed into the gradient texture.
	MaxColours = 4

	cssWriteFailureLimit = 3
)

// State is the lifecycle position of the shader pipeline.
type State int

const (
	StateUninitialized State = iota
	StateInitializing
	StateReady
	StateDegradedCSS
	StateDegradedSolid
	StateDestroyed
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateInitializing:
		return "initializing"
	case StateReady:
		return "ready"
	case StateDegradedCSS:
		return "degraded-css"
	case StateDegradedSolid:
		return "degraded-solid"
	case StateDestroyed:
		return "destroyed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Options configures the render surface.
type Options struct {
	Width  int
	Height int
	Events events.Publisher
}

// Strategy drives the flow program.
type Strategy struct {
	deps   strategy.Deps
	sched  *render.Scheduler
	device render.Device
	opts   Options

	// state is read without mu so selection never waits on a pending setup.
	state atomic.Int32

	mu        sync.Mutex
	cause     error
	program   render.Handle
	quad      render.Handle
	texture   render.Handle
	renderSub *render.Subscription
	cssSub    *render.Subscription
	uniforms  smoothedUniforms
	stops     []colour.GradientStop
	accent    string
	cssPhase  float64
	cssFails  int
	drawFails int
}

var (
	_ strategy.Strategy      = (*Strategy)(nil)
	_ strategy.Describer     = (*Strategy)(nil)
	_ strategy.HealthChecker = (*Strategy)(nil)
	_ strategy.Destroyer     = (*Strategy)(nil)
	_ strategy.MusicListener = (*Strategy)(nil)
)

// New creates the strategy. The device is initialised lazily on the first
// ProcessColors call.
func New(deps strategy.Deps, sched *render.Scheduler, device render.Device, opts Options) *Strategy {
	deps = deps.WithDefaults()
	deps.Logger = deps.Logger.Named("flow")
	if opts.Width <= 0 {
		opts.Width = 1280
	}
	if opts.Height <= 0 {
		opts.Height = 720
	}
	if opts.Events == nil {
		opts.Events = events.Discard
	}
	return &Strategy{
		deps:     deps,
		sched:    sched,
		device:   device,
		opts:     opts,
		uniforms: newSmoothedUniforms(),
	}
}

func (s *Strategy) Name() string { return Name }

// Describe implements strategy.Describer.
func (s *Strategy) Describe() strategy.Descriptor {
	return strategy.Descriptor{
		Category:     strategy.CategoryEffects,
		Priority:     4,
		MemoryImpact: strategy.ImpactHigh,
		Requirements: []string{strategy.RequiresWebGL, strategy.RequiresAnimation},
	}
}

// State returns the current lifecycle state.
func (s *Strategy) State() State {
	return State(s.state.Load())
}

func (s *Strategy) setState(st State) {
	s.state.Store(int32(st))
}

// CanProcess requires a GPU-capable device, the shader feature flag and a
// non-low tier unless the low-end override is set.
func (s *Strategy) CanProcess(strategy.ColorContext) bool {
	if s.State() == StateDestroyed || s.device == nil || s.deps.Device == nil {
		return false
	}
	if !s.deps.Device.HasWebGLSupport() || !strategy.Bool(s.deps.Settings, strategy.KeyShaderEnabled, true) {
		return false
	}
	return s.deps.Tier() != strategy.TierLow ||
		strategy.Bool(s.deps.Settings, strategy.KeyShaderForceLowEnd, false)
}

// EstimatedProcessingTime is dominated by pipeline setup on the first call.
func (s *Strategy) EstimatedProcessingTime(strategy.ColorContext) time.Duration {
	if s.State() == StateUninitialized {
		return 40 * time.Millisecond
	}
	return 3 * time.Millisecond
}

// ProcessColors uploads the gradient and retargets the uniforms, initialising
// the pipeline on first use. It always returns a usable result; the metadata
// names the tier that actually served it. Pipeline setup runs without the lock,
// so calls that arrive while it is pending are served by the CSS gradient.
func (s *Strategy) ProcessColors(ctx context.Context, cc strategy.ColorContext) strategy.ColorResult {
	return strategy.Timed(func() strategy.ColorResult {
		s.mu.Lock()
		if s.State() == StateDestroyed {
			s.mu.Unlock()
			return strategy.DegradedResult(Name, cc, strategy.Errorf("strategy destroyed"))
		}

		preset := colour.PresetOrDefault(strategy.String(s.deps.Settings, strategy.KeyOKLabPreset, colour.PresetStandard.Name))
		oklab := strategy.Bool(s.deps.Settings, strategy.KeyShaderOKLab, true)

		s.stops = s.gradient(cc, preset, oklab)
		accent := colour.ProcessColor(strategy.AccentOrFallback(cc), preset)
		s.accent = accent.OriginalHex
		if oklab {
			s.accent = accent.EnhancedHex
		}
		s.uniforms.retargetMusic(s.intensity(), cc.Music())

		if !s.state.CompareAndSwap(int32(StateUninitialized), int32(StateInitializing)) {
			s.serve()
			r := s.result(cc, preset, oklab)
			s.mu.Unlock()
			return r
		}
		stops := append([]colour.GradientStop(nil), s.stops...)
		s.mu.Unlock()

		p, err := s.initPipeline(ctx, stops)

		s.mu.Lock()
		defer s.mu.Unlock()
		switch {
		case s.State() == StateDestroyed:
			if s.device != nil {
				s.device.Release()
			}
			return strategy.DegradedResult(Name, cc, strategy.Errorf("strategy destroyed during setup"))
		case err != nil:
			s.fallBack(fmt.Errorf("initialise pipeline: %w", err))
		default:
			s.program, s.quad, s.texture = p.program, p.quad, p.texture
			s.setState(StateReady)
			s.startRender()
			s.writeReady("1")
			s.deps.Logger.Info("shader pipeline ready", "width", s.opts.Width, "height", s.opts.Height)
		}
		return s.result(cc, preset, oklab)
	})
}

// serve applies the current gradient on whichever tier is active. It must be
// called with s.mu held.
func (s *Strategy) serve() {
	switch s.State() {
	case StateInitializing:
		if err := s.applyCSS(); err != nil {
			s.deps.Logger.Debug("interim css write failed", "error", err)
		}
	case StateReady:
		if err := s.device.UpdateGradientTexture(s.texture, s.stops); err != nil {
			s.fallBack(fmt.Errorf("update gradient texture: %w", err))
		}
	case StateDegradedCSS:
		if err := s.applyCSS(); err != nil {
			s.fallBackSolid(err)
		}
	case StateDegradedSolid:
		s.applySolid()
	}
}

func (s *Strategy) gradient(cc strategy.ColorContext, preset colour.Preset, oklab bool) []colour.GradientStop {
	hexes := strategy.OrderedColors(cc)
	if len(hexes) == 0 {
		hexes = []string{strategy.FallbackAccent}
	}
	if len(hexes) > MaxColours {
		hexes = hexes[:MaxColours]
	}
	if oklab {
		return colour.GenerateMultiGradient(hexes, StopsPerSegment, preset)
	}
	if len(hexes) == 1 {
		hexes = append(hexes, hexes[0])
	}
	stops := make([]colour.GradientStop, len(hexes))
	for i, h := range hexes {
		stops[i] = colour.StopFromRGB(colour.MustParseHex(h), float64(i)/float64(len(hexes)-1))
	}
	return stops
}

func (s *Strategy) intensity() float64 {
	return strategy.IntensityLevel(strategy.String(s.deps.Settings, strategy.KeyIntensity, "balanced"))
}

type pipeline struct {
	program render.Handle
	quad    render.Handle
	texture render.Handle
}

// initPipeline runs every setup step in order. It is called without s.mu and
// gives up between steps once ctx is done.
func (s *Strategy) initPipeline(ctx context.Context, stops []colour.GradientStop) (pipeline, error) {
	var p pipeline
	d := s.device
	if d == nil {
		return p, render.ErrDeviceUnavailable
	}
	if err := ctx.Err(); err != nil {
		return p, err
	}
	if err := d.CreateContext(s.opts.Width, s.opts.Height); err != nil {
		return p, fmt.Errorf("create context: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return p, err
	}
	vs, err := d.CompileShader(render.VertexShader, render.VertexSource)
	if err != nil {
		return p, fmt.Errorf("compile vertex shader: %w", err)
	}
	fs, err := d.CompileShader(render.FragmentShader, render.FragmentSource)
	if err != nil {
		return p, fmt.Errorf("compile fragment shader: %w", err)
	}
	if p.program, err = d.LinkProgram(vs, fs); err != nil {
		return p, fmt.Errorf("link program: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return p, err
	}
	if p.quad, err = d.CreateQuad(); err != nil {
		return p, fmt.Errorf("create quad: %w", err)
	}
	if p.texture, err = d.CreateGradientTexture(stops, render.TextureWidth); err != nil {
		return p, fmt.Errorf("create gradient texture: %w", err)
	}
	if err := d.Attach(); err != nil {
		return p, fmt.Errorf("attach surface: %w", err)
	}
	return p, nil
}

func (s *Strategy) startRender() {
	if s.sched == nil || s.renderSub != nil {
		return
	}
	s.renderSub = s.sched.Subscribe(Name, strategy.FrameInterval(s.deps.Tier()), s.renderFrame)
}

func (s *Strategy) renderFrame(f render.Frame) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.State() != StateReady {
		s.renderSub = nil
		return false
	}

	u := s.uniforms.step(f.Delta, f.Elapsed)
	if err := s.device.Draw(s.program, s.quad, s.texture, u); err != nil {
		s.renderSub = nil
		s.drawFails++
		s.fallBack(fmt.Errorf("draw: %w", err))
		return false
	}
	return true
}

// fallBack releases the GPU and hands the gradient to CSS. It must be called
// with s.mu held.
func (s *Strategy) fallBack(cause error) {
	if s.device != nil {
		s.device.Release()
	}
	s.renderSub = nil
	s.cause = cause
	s.setState(StateDegradedCSS)
	s.deps.Logger.Warn("shader unavailable, using css gradient", "error", cause)
	s.publishFallback(strategy.FallbackCSSGradient, cause)

	if err := s.applyCSS(); err != nil {
		s.fallBackSolid(err)
		return
	}
	s.startCSSAnimation()
}

func (s *Strategy) fallBackSolid(cause error) {
	s.cause = cause
	s.setState(StateDegradedSolid)
	s.deps.Logger.Warn("css gradient unavailable, using solid colour", "error", cause)
	s.publishFallback(strategy.FallbackSolidColor, cause)
	s.applySolid()
}

func (s *Strategy) publishFallback(mode string, cause error) {
	if err := s.opts.Events.Publish(events.FallbackActivated{Strategy: Name, Mode: mode, Reason: cause.Error()}); err != nil {
		s.deps.Logger.Debug("fallback event dropped", "error", err)
	}
}

func (s *Strategy) applyCSS() error {
	vars := map[string]string{
		strategy.CSSVar("flow", "gradient"):   colour.CSSGradient(135, s.stops),
		strategy.CSSVar("flow", "accent"):     s.accent,
		strategy.CSSVar("flow", "accent-rgb"): strategy.RGBTriplet(s.accent),
		strategy.FlowReadyVar:                 "0",
	}
	return s.deps.Writer.SetVariables(vars, strategy.PriorityCritical)
}

// applySolid is the last rung; its write is best effort.
func (s *Strategy) applySolid() {
	vars := map[string]string{
		strategy.CSSVar("flow", "solid"): s.accent,
		strategy.FlowReadyVar:            "0",
	}
	if err := s.deps.Writer.SetVariables(vars, strategy.PriorityCritical); err != nil {
		s.deps.Logger.Debug("solid colour write failed", "error", err)
	}
}

func (s *Strategy) writeReady(v string) {
	if err := s.deps.Writer.SetVariables(map[string]string{strategy.FlowReadyVar: v}, strategy.PriorityCritical); err != nil {
		s.deps.Logger.Debug("ready flag write failed", "error", err)
	}
}

func (s *Strategy) startCSSAnimation() {
	if s.sched == nil || s.cssSub != nil ||
		!strategy.Bool(s.deps.Settings, strategy.KeyAnimationsEnabled, true) ||
		(s.deps.Device != nil && s.deps.Device.PrefersReducedMotion()) {
		return
	}
	s.cssSub = s.sched.Subscribe(Name+"-css", 2*strategy.FrameInterval(s.deps.Tier()), s.cssFrame)
}

func (s *Strategy) cssFrame(f render.Frame) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.State() != StateDegradedCSS {
		s.cssSub = nil
		return false
	}

	u := s.uniforms.step(f.Delta, f.Elapsed)
	s.cssPhase = math.Mod(s.cssPhase+f.Delta.Seconds()*0.15*u.FlowStrength, 2*math.Pi)
	vars := map[string]string{
		strategy.CSSVar("flow", "offset-x"): fmt.Sprintf("%.2f%%", 50+math.Sin(s.cssPhase)*50),
		strategy.CSSVar("flow", "offset-y"): fmt.Sprintf("%.2f%%", 50+math.Cos(s.cssPhase*0.7)*50),
		strategy.CSSVar("flow", "strength"): fmt.Sprintf("%.3f", u.FlowStrength),
	}
	if err := s.deps.Writer.SetVariables(vars, strategy.PriorityNormal); err != nil {
		s.cssFails++
		if s.cssFails >= cssWriteFailureLimit {
			s.cssSub = nil
			s.fallBackSolid(fmt.Errorf("css animation: %w", err))
			return false
		}
		return true
	}
	s.cssFails = 0
	return true
}

// result must be called with s.mu held.
func (s *Strategy) result(cc strategy.ColorContext, preset colour.Preset, oklab bool) strategy.ColorResult {
	state := s.State()
	if state == StateDegradedSolid {
		r := strategy.SolidResult(Name, cc, s.accent)
		if s.cause != nil {
			r.Metadata.Error = s.cause.Error()
		}
		r.Metadata.Set("state", state.String())
		return r
	}

	processed := make(map[string]string)
	for role, res := range colour.ProcessPalette(strategy.ValidColors(cc), preset) {
		if oklab {
			processed[role] = res.EnhancedHex
		} else {
			processed[role] = res.OriginalHex
		}
	}
	if len(processed) == 0 {
		processed[strategy.RolePrimary] = s.accent
	}

	r := strategy.ColorResult{
		ProcessedColors: processed,
		AccentHex:       s.accent,
		AccentRGB:       strategy.RGBTriplet(s.accent),
		Gradient:        append([]colour.GradientStop(nil), s.stops...),
		Metadata: strategy.Metadata{
			Strategy:   Name,
			RenderTier: strategy.RenderShader,
		},
	}
	switch state {
	case StateDegradedCSS:
		r.Metadata.FallbackMode = strategy.FallbackCSSGradient
		r.Metadata.RenderTier = strategy.RenderCSSGradient
		r.Metadata.Set("fallbackReason", s.cause.Error())
	case StateInitializing:
		r.Metadata.FallbackMode = strategy.FallbackCSSGradient
		r.Metadata.RenderTier = strategy.RenderCSSGradient
		r.Metadata.Set("fallbackReason", "shader pipeline initialising")
	}
	r.Metadata.Set("state", state.String())
	r.Metadata.Set("oklab", oklab)
	r.Metadata.Set("preset", preset.Name)
	return r
}

// OnMusic boosts the flow with the live signal.
func (s *Strategy) OnMusic(signal strategy.MusicSignal) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.uniforms.retarget(s.intensity(), signal.Strength(), signal.Valence)
}

// Uniforms returns the current (smoothed) uniform values.
func (s *Strategy) Uniforms() render.Uniforms {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.uniforms.current()
}

// HealthCheck implements strategy.HealthChecker. Degradation is reported as an
// issue but only the solid-colour rung counts as unhealthy.
func (s *Strategy) HealthCheck(context.Context) (strategy.HealthReport, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch s.State() {
	case StateDestroyed:
		return strategy.HealthReport{Issues: []string{"destroyed"}}, nil
	case StateDegradedSolid:
		return strategy.HealthReport{Issues: []string{"solid colour fallback: " + s.cause.Error()}}, nil
	case StateDegradedCSS:
		return strategy.HealthReport{Healthy: true, Issues: []string{"css fallback: " + s.cause.Error()}}, nil
	}
	return strategy.HealthReport{Healthy: true}, nil
}

// Destroy stops both loops and releases the device.
func (s *Strategy) Destroy() {
	s.mu.Lock()
	if s.State() == StateDestroyed {
		s.mu.Unlock()
		return
	}
	s.setState(StateDestroyed)
	subs := []*render.Subscription{s.renderSub, s.cssSub}
	s.renderSub, s.cssSub = nil, nil
	if s.device != nil {
		s.device.Release()
	}
	s.mu.Unlock()

	for _, sub := range subs {
		if sub != nil {
			sub.Cancel()
		}
	}
	s.writeReady("0")
}
