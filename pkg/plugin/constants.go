// Package plugin provides the public API for external backdrop strategies.
// External plugins should import this package instead of internal packages.
package plugin

import (
	"github.com/hashicorp/go-plugin"
)

const (
	// ProtocolVersion defines the current plugin API version.
	// Format: MAJOR.MINOR.PATCH.
	// - Increment MAJOR for breaking changes (incompatible API changes).
	// - Increment MINOR for backward-compatible additions.
	// - Increment PATCH for backward-compatible bug fixes.
	ProtocolVersion = "1.0.0"

	// MinCompatibleVersion is the oldest protocol version this host can work with.
	MinCompatibleVersion = "1.0.0"

	// PluginName is the name the strategy is dispensed under.
	PluginName = "strategy"
)

// Handshake is the handshake configuration for go-plugin protocol.
// This ensures that plugins using go-plugin can only connect to compatible hosts.
var Handshake = plugin.HandshakeConfig{
	ProtocolVersion:  1, // Major version from ProtocolVersion
	MagicCookieKey:   "BACKDROP_PLUGIN",
	MagicCookieValue: "backdrop_strategy",
}

// PluginType defines the type of plugin communication protocol.
type PluginType string

const (
	// PluginTypeGoPlugin indicates the plugin uses HashiCorp go-plugin RPC protocol.
	PluginTypeGoPlugin PluginType = "go-plugin"

	// PluginTypeJSON indicates the plugin uses simple JSON over stdin/stdout.
	PluginTypeJSON PluginType = "json-stdio"
)

// PluginMap returns the go-plugin plugin set serving impl.
func PluginMap(impl StrategyPlugin) map[string]plugin.Plugin {
	return map[string]plugin.Plugin{
		PluginName: &StrategyPluginRPC{Impl: impl},
	}
}
