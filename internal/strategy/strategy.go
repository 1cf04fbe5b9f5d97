// Package strategy defines the contract shared by every background colour-processing
// strategy, the data that flows through it, and the collaborator capabilities a
// strategy may depend on.
package strategy

import (
	"context"
	"errors"
	"time"
)

// ErrProcessing classifies failures raised inside a strategy's processing step.
var ErrProcessing = errors.New("strategy processing failed")

// Strategy is an interchangeable colour-processing algorithm.
type Strategy interface {
	// Name returns a stable identifier, unique within a registry.
	Name() string

	// CanProcess is a side-effect free capability probe.
	CanProcess(cc ColorContext) bool

	// EstimatedProcessingTime is a cheap heuristic used for scheduling and telemetry.
	EstimatedProcessingTime(cc ColorContext) time.Duration

	// ProcessColors performs the work. It always returns a usable result; internal
	// failures are reported through Metadata.Error.
	ProcessColors(ctx context.Context, cc ColorContext) ColorResult
}

// HealthReport is a strategy's own view of its health.
type HealthReport struct {
	Healthy bool     `json:"healthy"`
	Issues  []string `json:"issues,omitempty"`
}

// HealthChecker is implemented by strategies that hold resources worth probing.
type HealthChecker interface {
	HealthCheck(ctx context.Context) (HealthReport, error)
}

// Destroyer is implemented by strategies owning timers, GPU handles or DOM nodes.
// Destroy must synchronously stop any frame callbacks the strategy registered.
type Destroyer interface {
	Destroy()
}

// MusicListener is implemented by strategies that retarget animation on beat or
// energy notifications.
type MusicListener interface {
	OnMusic(signal MusicSignal)
}

// Describer lets a strategy state its registry metadata instead of having it inferred.
type Describer interface {
	Describe() Descriptor
}

// Category groups strategies by the role they play in the composed background.
type Category string

const (
	CategoryFoundation  Category = "foundation"
	CategoryEnhancement Category = "enhancement"
	CategoryAccent      Category = "accent"
	CategoryEffects     Category = "effects"
)

// Impact is a coarse memory-footprint class.
type Impact string

const (
	ImpactLow    Impact = "low"
	ImpactMedium Impact = "medium"
	ImpactHigh   Impact = "high"
)

// Device requirement tags.
const (
	RequiresWebGL      = "webgl"
	RequiresHighMemory = "high-memory"
	RequiresAnimation  = "animation"
)

// Descriptor carries the metadata the registry scores on.
type Descriptor struct {
	Category     Category `json:"category"`
	Priority     int      `json:"priority"`
	MemoryImpact Impact   `json:"memory_impact"`
	Requirements []string `json:"requirements,omitempty"`
}

// Requires reports whether the descriptor lists the given requirement tag.
func (d Descriptor) Requires(tag string) bool {
	for _, r := range d.Requirements {
		if r == tag {
			return true
		}
	}
	return false
}
