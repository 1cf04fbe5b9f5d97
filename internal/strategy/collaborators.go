package strategy

import "fmt"

// Tier is a coarse performance or quality level.
type Tier string

const (
	TierLow    Tier = "low"
	TierMedium Tier = "medium"
	TierHigh   Tier = "high"
)

// ParseTier parses a tier name, returning def for unknown values.
func ParseTier(s string, def Tier) Tier {
	switch Tier(s) {
	case TierLow, TierMedium, TierHigh:
		return Tier(s)
	default:
		return def
	}
}

// Priority orders CSS variable writes. Higher values are applied first.
type Priority int

const (
	PriorityNormal Priority = iota
	PriorityHigh
	PriorityCritical
)

// String returns the priority name.
func (p Priority) String() string {
	switch p {
	case PriorityNormal:
		return "normal"
	case PriorityHigh:
		return "high"
	case PriorityCritical:
		return "critical"
	default:
		return fmt.Sprintf("priority(%d)", int(p))
	}
}

// CSSVariableWriter is the batching collaborator every strategy writes custom
// properties through.
type CSSVariableWriter interface {
	SetVariables(vars map[string]string, priority Priority) error
}

// DeviceCapabilities is queried, never owned, by strategies and the selector.
type DeviceCapabilities interface {
	RecommendPerformanceQuality() Tier
	HasWebGLSupport() bool
	MemoryGB() float64
	CPUCores() int
	IsMobile() bool
	PrefersReducedMotion() bool
}

// Settings exposes feature toggles by key. Missing keys return nil.
type Settings interface {
	Get(key string) any
}

// CSSVar returns a namespaced custom-property name, e.g. CSSVar("flow", "ready")
// is "--backdrop-flow-ready".
func CSSVar(parts ...string) string {
	name := "--backdrop"
	for _, p := range parts {
		name += "-" + p
	}
	return name
}

// FlowReadyVar is the readiness flag written by the shader backend so other
// layers can cross-fade.
var FlowReadyVar = CSSVar("flow", "ready")
