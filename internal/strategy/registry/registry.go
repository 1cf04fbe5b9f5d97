// Package registry holds the registered strategies with their usage and health
// statistics, and ranks healthy strategies against selection criteria.
package registry

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/hashicorp/go-hclog"

	"github.com/jmylchreest/backdrop/internal/events"
	"github.com/jmylchreest/backdrop/internal/strategy"
)

var (
	// ErrNoHealthyStrategy is returned when selection finds no eligible strategy.
	ErrNoHealthyStrategy = errors.New("no healthy strategy available")

	// ErrDuplicateStrategy marks a replaced registration. It is logged, never returned.
	ErrDuplicateStrategy = errors.New("strategy already registered")
)

const (
	// MinUsesForHealth is the number of uses before the error rate can mark a
	// strategy unhealthy.
	MinUsesForHealth = 5

	// UnhealthyErrorRate is the error rate that must be exceeded.
	UnhealthyErrorRate = 0.5

	DefaultHealthInterval = 30 * time.Second
	DefaultReprobeAfter   = 5 * time.Minute
	DefaultCheckTimeout   = 5 * time.Second
)

// healthSource records what last marked a registration unhealthy.
type healthSource int

const (
	sourceNone healthSource = iota
	sourceErrorRate
	sourceHealthCheck
)

// Registration is a snapshot of one registered strategy and its statistics.
type Registration struct {
	Strategy          strategy.Strategy   `json:"-"`
	Name              string              `json:"name"`
	Descriptor        strategy.Descriptor `json:"descriptor"`
	RegisteredAt      time.Time           `json:"registered_at"`
	LastUsed          time.Time           `json:"last_used,omitzero"`
	UsageCount        int                 `json:"usage_count"`
	ErrorCount        int                 `json:"error_count"`
	AvgProcessingTime time.Duration       `json:"avg_processing_time"`
	TimedSamples      int                 `json:"timed_samples"`
	Healthy           bool                `json:"healthy"`
	UnhealthySince    time.Time           `json:"unhealthy_since,omitzero"`
	Issues            []string            `json:"issues,omitempty"`
	Probations        int                 `json:"probations"`
}

// ErrorRate returns errors per use, or 0 before the first use.
func (r Registration) ErrorRate() float64 {
	if r.UsageCount == 0 {
		return 0
	}
	return float64(r.ErrorCount) / float64(r.UsageCount)
}

type entry struct {
	Registration
	source healthSource
}

// Options configures a Registry.
type Options struct {
	HealthInterval time.Duration
	ReprobeAfter   time.Duration
	CheckTimeout   time.Duration
	Events         events.Publisher
	Now            func() time.Time
}

// Registry is safe for concurrent use: selection takes a read lock, recording and
// registration take the write lock.
type Registry struct {
	logger hclog.Logger
	opts   Options

	mu      sync.RWMutex
	entries map[string]*entry

	loopMu sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// New creates an empty registry.
func New(logger hclog.Logger, opts Options) *Registry {
	if opts.HealthInterval <= 0 {
		opts.HealthInterval = DefaultHealthInterval
	}
	if opts.ReprobeAfter <= 0 {
		opts.ReprobeAfter = DefaultReprobeAfter
	}
	if opts.CheckTimeout <= 0 {
		opts.CheckTimeout = DefaultCheckTimeout
	}
	if opts.Events == nil {
		opts.Events = events.Discard
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Registry{
		logger:  logger.Named("registry"),
		opts:    opts,
		entries: make(map[string]*entry),
	}
}

// Register stores s. A registration with the same name is replaced, not merged.
func (r *Registry) Register(s strategy.Strategy) {
	name := s.Name()
	desc := Describe(s)

	r.mu.Lock()
	old, exists := r.entries[name]
	r.entries[name] = &entry{Registration: Registration{
		Strategy:     s,
		Name:         name,
		Descriptor:   desc,
		RegisteredAt: r.opts.Now(),
		Healthy:      true,
	}}
	r.mu.Unlock()

	if exists {
		r.logger.Warn("replacing registration", "strategy", name, "error", ErrDuplicateStrategy)
		if d, ok := old.Strategy.(strategy.Destroyer); ok && old.Strategy != s {
			d.Destroy()
		}
		return
	}
	r.logger.Debug("registered", "strategy", name, "category", desc.Category, "priority", desc.Priority)
}

// Unregister removes and destroys the named strategy. It reports whether a
// registration existed.
func (r *Registry) Unregister(name string) bool {
	r.mu.Lock()
	e, ok := r.entries[name]
	delete(r.entries, name)
	r.mu.Unlock()

	if !ok {
		return false
	}
	if d, ok := e.Strategy.(strategy.Destroyer); ok {
		d.Destroy()
	}
	r.logger.Debug("unregistered", "strategy", name)
	return true
}

// Get returns the named strategy.
func (r *Registry) Get(name string) (strategy.Strategy, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[name]
	if !ok {
		return nil, false
	}
	return e.Strategy, true
}

// Registration returns a snapshot of the named registration.
func (r *Registry) Registration(name string) (Registration, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[name]
	if !ok {
		return Registration{}, false
	}
	return e.snapshot(), true
}

// Registrations returns snapshots of every registration, sorted by name.
func (r *Registry) Registrations() []Registration {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Registration, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, e.snapshot())
	}
	slices.SortFunc(out, func(a, b Registration) int {
		return cmp.Compare(a.Name, b.Name)
	})
	return out
}

// Len returns the number of registrations.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

func (e *entry) snapshot() Registration {
	reg := e.Registration
	reg.Issues = slices.Clone(e.Issues)
	reg.Descriptor.Requirements = slices.Clone(e.Descriptor.Requirements)
	return reg
}

// RecordUsage counts one use of the named strategy.
func (r *Registry) RecordUsage(name string) {
	r.record(name, func(e *entry) {
		e.UsageCount++
		e.LastUsed = r.opts.Now()
	})
}

// RecordError counts one failed use of the named strategy.
func (r *Registry) RecordError(name string, err error) {
	r.record(name, func(e *entry) {
		e.ErrorCount++
		if err != nil {
			r.logger.Debug("strategy error recorded", "strategy", name, "errors", e.ErrorCount, "error", err)
		}
	})
}

// RecordProcessingTime folds d into the running mean processing time.
func (r *Registry) RecordProcessingTime(name string, d time.Duration) {
	r.record(name, func(e *entry) {
		e.TimedSamples++
		e.AvgProcessingTime += (d - e.AvgProcessingTime) / time.Duration(e.TimedSamples)
	})
}

func (r *Registry) record(name string, fn func(e *entry)) {
	var changed *events.HealthChanged

	r.mu.Lock()
	e, ok := r.entries[name]
	if ok {
		fn(e)
		changed = r.evaluateErrorRate(e)
	}
	r.mu.Unlock()

	if changed != nil {
		r.publish(*changed)
	}
}

// evaluateErrorRate flips a registration to unhealthy once it has at least
// MinUsesForHealth uses and an error rate above UnhealthyErrorRate.
func (r *Registry) evaluateErrorRate(e *entry) *events.HealthChanged {
	if !e.Healthy || e.UsageCount < MinUsesForHealth || e.ErrorRate() <= UnhealthyErrorRate {
		return nil
	}
	reason := fmt.Sprintf("error rate %.0f%% over %d uses", e.ErrorRate()*100, e.UsageCount)
	r.markUnhealthy(e, sourceErrorRate, reason)
	return &events.HealthChanged{Strategy: e.Name, Healthy: false, Reason: reason}
}

func (r *Registry) markUnhealthy(e *entry, source healthSource, reason string) {
	e.Healthy = false
	e.UnhealthySince = r.opts.Now()
	e.Issues = append(e.Issues, reason)
	e.source = source
	r.logger.Warn("strategy marked unhealthy", "strategy", e.Name, "reason", reason)
}

func (r *Registry) publish(p events.Payload) {
	if err := r.opts.Events.Publish(p); err != nil {
		r.logger.Trace("event not published", "kind", p.Kind(), "error", err)
	}
}

// Stats summarises the registry.
type Stats struct {
	Total       int            `json:"total"`
	Healthy     int            `json:"healthy"`
	Unhealthy   int            `json:"unhealthy"`
	TotalUsage  int            `json:"total_usage"`
	TotalErrors int            `json:"total_errors"`
	Strategies  []Registration `json:"strategies"`
}

// Stats returns counters across all registrations.
func (r *Registry) Stats() Stats {
	regs := r.Registrations()
	st := Stats{Total: len(regs), Strategies: regs}
	for _, reg := range regs {
		if reg.Healthy {
			st.Healthy++
		} else {
			st.Unhealthy++
		}
		st.TotalUsage += reg.UsageCount
		st.TotalErrors += reg.ErrorCount
	}
	return st
}

// Destroy stops the health loop, destroys every strategy that supports it and
// clears the registry.
func (r *Registry) Destroy() {
	r.Stop()

	r.mu.Lock()
	entries := r.entries
	r.entries = make(map[string]*entry)
	r.mu.Unlock()

	for name, e := range entries {
		if d, ok := e.Strategy.(strategy.Destroyer); ok {
			d.Destroy()
			r.logger.Debug("destroyed", "strategy", name)
		}
	}
}
