package protocol

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/jmylchreest/backdrop/pkg/plugin"
)

// PluginInfo is an alias of the public plugin metadata type.
type PluginInfo = plugin.PluginInfo

// DetectorResult describes a plugin from its --plugin-info reply.
type DetectorResult struct {
	Type       plugin.PluginType
	PluginInfo PluginInfo
}

// ParseInfo decodes a --plugin-info reply and checks protocol compatibility.
// An empty plugin_protocol means json-stdio; an empty protocol_version is
// taken as the current one.
func ParseInfo(data []byte) (*DetectorResult, error) {
	var info PluginInfo
	if err := json.Unmarshal(bytes.TrimSpace(data), &info); err != nil {
		return nil, fmt.Errorf("failed to parse plugin info: %w", err)
	}
	if info.Name == "" {
		return nil, fmt.Errorf("plugin info is missing a name")
	}

	result := &DetectorResult{PluginInfo: info}
	switch plugin.PluginType(info.PluginProtocol) {
	case plugin.PluginTypeGoPlugin:
		result.Type = plugin.PluginTypeGoPlugin
	case plugin.PluginTypeJSON, "":
		result.Type = plugin.PluginTypeJSON
	default:
		return nil, fmt.Errorf("unknown plugin_protocol: %s", info.PluginProtocol)
	}

	if info.ProtocolVersion == "" {
		result.PluginInfo.ProtocolVersion = plugin.ProtocolVersion
	}
	if _, err := IsCompatible(result.PluginInfo.ProtocolVersion); err != nil {
		return nil, fmt.Errorf("plugin %s: %w", info.Name, err)
	}
	return result, nil
}
