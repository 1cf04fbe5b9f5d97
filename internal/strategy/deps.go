package strategy

import "github.com/hashicorp/go-hclog"

// Deps bundles the collaborators injected into every strategy.
type Deps struct {
	Logger   hclog.Logger
	Writer   CSSVariableWriter
	Device   DeviceCapabilities
	Settings Settings
}

// WithDefaults fills absent collaborators with inert implementations.
func (d Deps) WithDefaults() Deps {
	if d.Logger == nil {
		d.Logger = hclog.NewNullLogger()
	}
	if d.Writer == nil {
		d.Writer = DiscardWriter{}
	}
	if d.Settings == nil {
		d.Settings = MapSettings{}
	}
	return d
}

// Tier returns the device's recommended tier, or medium without a device.
func (d Deps) Tier() Tier {
	if d.Device == nil {
		return TierMedium
	}
	return d.Device.RecommendPerformanceQuality()
}

// DiscardWriter accepts and drops every write.
type DiscardWriter struct{}

// SetVariables implements CSSVariableWriter.
func (DiscardWriter) SetVariables(map[string]string, Priority) error { return nil }
