package plugin

import (
	"context"
)

// StrategyPlugin is the interface external strategies implement for go-plugin RPC.
type StrategyPlugin interface {
	// Process turns the input colours into a result. Returning an error makes
	// the host fall back; plugins may instead set StrategyOutput.Error to report
	// a degraded but usable result.
	Process(ctx context.Context, in StrategyInput) (StrategyOutput, error)

	// CanProcess reports whether the plugin accepts the input.
	CanProcess(in StrategyInput) bool

	// Health reports the plugin's own view of its health.
	Health(ctx context.Context) HealthStatus

	// GetMetadata returns plugin metadata.
	GetMetadata() PluginInfo
}
