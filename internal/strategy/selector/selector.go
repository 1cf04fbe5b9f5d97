// Package selector decides which strategy types should serve a colour context.
// Each known type is scored by its own heuristic; types above the inclusion
// threshold whose instance accepts the context are selected.
package selector

import (
	"context"
	"maps"
	"slices"
	"sync"

	"github.com/hashicorp/go-hclog"

	"github.com/jmylchreest/backdrop/internal/events"
	"github.com/jmylchreest/backdrop/internal/strategy"
	"github.com/jmylchreest/backdrop/internal/strategy/registry"
)

// InclusionThreshold is the score a type must exceed to be selected.
const InclusionThreshold = 0.5

// Factory creates a strategy instance. It is called at most once per type.
type Factory func() strategy.Strategy

// Options configures a Selector.
type Options struct {
	Events events.Publisher
	// Registry receives every instance the selector creates. Unhealthy
	// registrations are excluded from selection.
	Registry   *registry.Registry
	Threshold  float64
	Heuristics map[Type]Heuristic
}

// Selection is the outcome of one Select call.
type Selection struct {
	Strategies []strategy.Strategy
	Decisions  []events.Decision
	Forced     bool
	Criteria   BackgroundCriteria
}

// Names returns the selected strategy names in order.
func (s Selection) Names() []string {
	names := make([]string, len(s.Strategies))
	for i, st := range s.Strategies {
		names[i] = st.Name()
	}
	return names
}

// Selector scores strategy types and caches one instance per type.
type Selector struct {
	logger   hclog.Logger
	device   strategy.DeviceCapabilities
	settings strategy.Settings
	opts     Options

	mu        sync.Mutex
	order     []Type
	factories map[Type]Factory
	instances map[Type]strategy.Strategy
}

// New creates a selector reading capabilities and settings from the given
// collaborators.
func New(logger hclog.Logger, device strategy.DeviceCapabilities, settings strategy.Settings, opts Options) *Selector {
	if opts.Events == nil {
		opts.Events = events.Discard
	}
	if opts.Threshold <= 0 {
		opts.Threshold = InclusionThreshold
	}
	if opts.Heuristics == nil {
		opts.Heuristics = DefaultHeuristics()
	} else {
		opts.Heuristics = maps.Clone(opts.Heuristics)
	}
	if settings == nil {
		settings = strategy.MapSettings{}
	}
	return &Selector{
		logger:    logger.Named("selector"),
		device:    device,
		settings:  settings,
		opts:      opts,
		factories: make(map[Type]Factory),
		instances: make(map[Type]strategy.Strategy),
	}
}

// Register adds a strategy type. Registering a type again replaces its factory
// and drops any cached instance.
func (s *Selector) Register(t Type, f Factory) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.factories[t]; !ok {
		s.order = append(s.order, t)
	}
	s.factories[t] = f
	if old, ok := s.instances[t]; ok {
		delete(s.instances, t)
		s.release(old)
	}
	if _, ok := s.opts.Heuristics[t]; !ok {
		s.logger.Warn("strategy type has no heuristic and will never be selected", "type", t)
	}
}

// RegisterScored registers a type together with its heuristic. External
// strategies use it since they have no built-in heuristic.
func (s *Selector) RegisterScored(t Type, f Factory, h Heuristic) {
	s.mu.Lock()
	s.opts.Heuristics[t] = h
	s.mu.Unlock()
	s.Register(t, f)
}

// Types returns the registered types in registration order.
func (s *Selector) Types() []Type {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.order)
}

// Instance returns the cached instance for t, creating it on first use.
func (s *Selector) Instance(t Type) (strategy.Strategy, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.instance(t)
}

// instance must be called with s.mu held.
func (s *Selector) instance(t Type) (strategy.Strategy, bool) {
	if inst, ok := s.instances[t]; ok {
		return inst, true
	}
	f, ok := s.factories[t]
	if !ok {
		return nil, false
	}
	inst := f()
	if inst == nil {
		return nil, false
	}
	s.instances[t] = inst
	if s.opts.Registry != nil {
		s.opts.Registry.Register(inst)
	}
	s.logger.Debug("strategy instantiated", "type", t, "name", inst.Name())
	return inst, true
}

// Select builds criteria (from in, or from the collaborators when nil), decides
// every type and returns the selected instances. When nothing qualifies the
// living type is included unconditionally.
func (s *Selector) Select(ctx context.Context, cc strategy.ColorContext, in *strategy.Criteria) Selection {
	bc := BuildCriteria(in, s.device, s.settings, cc)
	sel := Selection{Criteria: bc}
	if ctx.Err() != nil {
		return sel
	}

	for _, c := range s.candidates(bc) {
		d, inst := s.admit(c, bc, cc)
		sel.Decisions = append(sel.Decisions, d)
		if d.Include {
			sel.Strategies = append(sel.Strategies, inst)
		}
	}
	if len(sel.Strategies) == 0 {
		if inst, ok := s.Instance(TypeLiving); ok {
			sel.Strategies = append(sel.Strategies, inst)
			sel.Forced = true
		}
	}

	names := sel.Names()
	s.logger.Debug("strategies selected", "selected", names, "forced", sel.Forced, "tier", bc.Performance)
	for _, d := range sel.Decisions {
		s.logger.Trace("decision", "type", d.Strategy, "include", d.Include, "score", d.Score, "reason", d.Reason)
	}
	if err := s.opts.Events.Publish(events.StrategiesSelected{Selected: names, Decisions: sel.Decisions, Forced: sel.Forced}); err != nil {
		s.logger.Debug("selection event dropped", "error", err)
	}
	return sel
}

// Decide returns one decision per registered type without selecting.
func (s *Selector) Decide(bc BackgroundCriteria, cc strategy.ColorContext) []events.Decision {
	cs := s.candidates(bc)
	out := make([]events.Decision, 0, len(cs))
	for _, c := range cs {
		d, _ := s.admit(c, bc, cc)
		out = append(out, d)
	}
	return out
}

// candidate is a scored type, with its instance when the score qualifies.
type candidate struct {
	decision events.Decision
	inst     strategy.Strategy
}

// candidates scores every type under s.mu. Instance checks that call into
// strategies happen later in admit, without the lock.
func (s *Selector) candidates(bc BackgroundCriteria) []candidate {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]candidate, 0, len(s.order))
	for _, t := range s.order {
		c := candidate{decision: events.Decision{Strategy: string(t)}}
		h, ok := s.opts.Heuristics[t]
		if !ok {
			c.decision.Reason = "no heuristic"
			out = append(out, c)
			continue
		}
		c.decision.Score, c.decision.Reason = h(bc)
		if c.decision.Score > s.opts.Threshold {
			if inst, ok := s.instance(t); ok {
				c.inst = inst
			} else {
				c.decision.Reason = "no factory"
			}
		}
		out = append(out, c)
	}
	return out
}

func (s *Selector) admit(c candidate, bc BackgroundCriteria, cc strategy.ColorContext) (events.Decision, strategy.Strategy) {
	d, inst := c.decision, c.inst
	if inst == nil {
		return d, nil
	}
	if !bc.Permits(inst.Name()) {
		d.Reason = "not allowed"
		return d, nil
	}
	if s.opts.Registry != nil {
		if reg, ok := s.opts.Registry.Registration(inst.Name()); ok && !reg.Healthy {
			d.Reason = "unhealthy"
			return d, nil
		}
	}
	if !inst.CanProcess(cc) {
		d.Reason = "cannot process"
		return d, nil
	}
	d.Include = true
	return d, inst
}

// Reset drops every cached instance. Instances not owned by a registry are
// destroyed.
func (s *Selector) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for t, inst := range s.instances {
		delete(s.instances, t)
		s.release(inst)
	}
}

func (s *Selector) release(inst strategy.Strategy) {
	if s.opts.Registry != nil {
		s.opts.Registry.Unregister(inst.Name())
		return
	}
	if d, ok := inst.(strategy.Destroyer); ok {
		d.Destroy()
	}
}
