package plugin

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/hashicorp/go-plugin"
)

// Serve runs impl as a go-plugin strategy. Invoked with --plugin-info it prints
// the plugin metadata as JSON and returns instead.
func Serve(impl StrategyPlugin) {
	if len(os.Args) > 1 && os.Args[1] == "--plugin-info" {
		info := impl.GetMetadata()
		if info.ProtocolVersion == "" {
			info.ProtocolVersion = ProtocolVersion
		}
		info.PluginProtocol = string(PluginTypeGoPlugin)
		data, err := json.Marshal(info)
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to encode plugin info: %v\n", err)
			os.Exit(1)
		}
		fmt.Println(string(data))
		return
	}

	plugin.Serve(&plugin.ServeConfig{
		HandshakeConfig: Handshake,
		Plugins:         PluginMap(impl),
	})
}
