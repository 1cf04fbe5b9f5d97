package plugin

import (
	"context"
	"net/rpc"

	"github.com/hashicorp/go-plugin"
)

// StrategyPluginRPC implements the go-plugin Plugin interface for strategy plugins.
type StrategyPluginRPC struct {
	plugin.Plugin
	Impl StrategyPlugin
}

// Server returns an RPC server for this plugin.
func (p *StrategyPluginRPC) Server(*plugin.MuxBroker) (any, error) {
	return &StrategyPluginRPCServer{Impl: p.Impl}, nil
}

// Client returns an RPC client for this plugin.
func (p *StrategyPluginRPC) Client(_ *plugin.MuxBroker, c *rpc.Client) (any, error) {
	return &StrategyPluginRPCClient{client: c}, nil
}

// StrategyPluginRPCServer is the RPC server implementation for strategy plugins.
type StrategyPluginRPCServer struct {
	Impl StrategyPlugin
}

// Process implements the RPC method for colour processing.
func (s *StrategyPluginRPCServer) Process(in StrategyInput, resp *StrategyOutput) error {
	out, err := s.Impl.Process(context.Background(), in)
	if err != nil {
		return err
	}
	*resp = out
	return nil
}

// CanProcess implements the RPC method for capability checks.
func (s *StrategyPluginRPCServer) CanProcess(in StrategyInput, resp *bool) error {
	*resp = s.Impl.CanProcess(in)
	return nil
}

// Health implements the RPC method for health checks.
func (s *StrategyPluginRPCServer) Health(_ any, resp *HealthStatus) error {
	*resp = s.Impl.Health(context.Background())
	return nil
}

// GetMetadata implements the RPC method for fetching plugin metadata.
func (s *StrategyPluginRPCServer) GetMetadata(_ any, resp *PluginInfo) error {
	*resp = s.Impl.GetMetadata()
	return nil
}

// StrategyPluginRPCClient is the RPC client implementation for strategy plugins.
type StrategyPluginRPCClient struct {
	client *rpc.Client
}

// Process calls the remote Process method.
func (c *StrategyPluginRPCClient) Process(_ context.Context, in StrategyInput) (StrategyOutput, error) {
	var out StrategyOutput
	if err := c.client.Call("Plugin.Process", in, &out); err != nil {
		return StrategyOutput{}, &RPCError{Message: err.Error()}
	}
	return out, nil
}

// CanProcess calls the remote CanProcess method. Transport errors count as a
// refusal.
func (c *StrategyPluginRPCClient) CanProcess(in StrategyInput) bool {
	var ok bool
	if err := c.client.Call("Plugin.CanProcess", in, &ok); err != nil {
		return false
	}
	return ok
}

// Health calls the remote Health method. Transport errors are reported as
// unhealthy.
func (c *StrategyPluginRPCClient) Health(_ context.Context) HealthStatus {
	var status HealthStatus
	if err := c.client.Call("Plugin.Health", new(any), &status); err != nil {
		return HealthStatus{Issues: []string{err.Error()}}
	}
	return status
}

// GetMetadata calls the remote GetMetadata method.
func (c *StrategyPluginRPCClient) GetMetadata() (PluginInfo, error) {
	var info PluginInfo
	err := c.client.Call("Plugin.GetMetadata", new(any), &info)
	return info, err
}

// RPCError represents an error returned from an RPC call.
type RPCError struct {
	Message string
}

// Error implements the error interface.
func (e *RPCError) Error() string {
	return e.Message
}
