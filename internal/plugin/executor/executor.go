// Package executor runs external strategy plugins regardless of their
// underlying protocol (go-plugin RPC or JSON-stdio).
package executor

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/go-hclog"
	goplugin "github.com/hashicorp/go-plugin"

	"github.com/jmylchreest/backdrop/internal/plugin/protocol"
	"github.com/jmylchreest/backdrop/pkg/plugin"
)

const (
	// DefaultInfoTimeout bounds the --plugin-info query.
	DefaultInfoTimeout = 5 * time.Second

	// DefaultHealthTimeout bounds --health and --can-process queries.
	DefaultHealthTimeout = 2 * time.Second
)

// ErrClosed is returned after Close.
var ErrClosed = errors.New("plugin executor closed")

// Options configures an Executor.
type Options struct {
	Logger hclog.Logger

	// Runner executes JSON-stdio plugins. Defaults to the os/exec runner.
	Runner ProcessRunner

	InfoTimeout   time.Duration
	HealthTimeout time.Duration
}

// Executor provides a unified interface for executing strategy plugins.
type Executor struct {
	path          string
	info          protocol.PluginInfo
	protocolType  plugin.PluginType
	runner        ProcessRunner
	logger        hclog.Logger
	healthTimeout time.Duration

	mu     sync.Mutex
	closed bool
	client *goplugin.Client
	rpc    *plugin.StrategyPluginRPCClient
}

// New queries the plugin at path for its metadata and returns an executor for it.
func New(ctx context.Context, path string, opts Options) (*Executor, error) {
	if opts.Logger == nil {
		opts.Logger = hclog.NewNullLogger()
	}
	if opts.Runner == nil {
		opts.Runner = NewExecRunner()
	}
	if opts.InfoTimeout <= 0 {
		opts.InfoTimeout = DefaultInfoTimeout
	}
	if opts.HealthTimeout <= 0 {
		opts.HealthTimeout = DefaultHealthTimeout
	}

	infoCtx, cancel := context.WithTimeout(ctx, opts.InfoTimeout)
	defer cancel()

	stdout, stderr, err := opts.Runner.Run(infoCtx, path, []string{"--plugin-info"}, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to query plugin %s: %w", path, withStderr(err, stderr))
	}
	result, err := protocol.ParseInfo(stdout)
	if err != nil {
		return nil, fmt.Errorf("failed to detect plugin protocol: %w", err)
	}

	return &Executor{
		path:          path,
		info:          result.PluginInfo,
		protocolType:  result.Type,
		runner:        opts.Runner,
		logger:        opts.Logger.Named(result.PluginInfo.Name),
		healthTimeout: opts.HealthTimeout,
	}, nil
}

// Path returns the plugin binary path.
func (e *Executor) Path() string { return e.path }

// Info returns the metadata reported by --plugin-info.
func (e *Executor) Info() protocol.PluginInfo { return e.info }

// Protocol returns the detected protocol.
func (e *Executor) Protocol() plugin.PluginType { return e.protocolType }

// Process runs the plugin on one input.
func (e *Executor) Process(ctx context.Context, in plugin.StrategyInput) (plugin.StrategyOutput, error) {
	switch e.protocolType {
	case plugin.PluginTypeGoPlugin:
		client, err := e.rpcClient()
		if err != nil {
			return plugin.StrategyOutput{}, err
		}
		return callRPC(ctx, func() (plugin.StrategyOutput, error) { return client.Process(ctx, in) })
	case plugin.PluginTypeJSON:
		var out plugin.StrategyOutput
		if err := e.runJSON(ctx, nil, in, &out); err != nil {
			return plugin.StrategyOutput{}, err
		}
		return out, nil
	default:
		return plugin.StrategyOutput{}, fmt.Errorf("unsupported protocol type: %s", e.protocolType)
	}
}

// CanProcess asks the plugin whether it accepts the input. Any failure counts
// as a refusal.
func (e *Executor) CanProcess(ctx context.Context, in plugin.StrategyInput) bool {
	ctx, cancel := context.WithTimeout(ctx, e.healthTimeout)
	defer cancel()

	switch e.protocolType {
	case plugin.PluginTypeGoPlugin:
		client, err := e.rpcClient()
		if err != nil {
			e.logger.Debug("capability probe failed", "error", err)
			return false
		}
		ok, err := callRPC(ctx, func() (bool, error) { return client.CanProcess(in), nil })
		return err == nil && ok
	case plugin.PluginTypeJSON:
		var ok bool
		if err := e.runJSON(ctx, []string{"--can-process"}, in, &ok); err != nil {
			e.logger.Debug("capability probe failed", "error", err)
			return false
		}
		return ok
	default:
		return false
	}
}

// Health queries the plugin's health. Transport failures are reported as
// unhealthy with the failure as the issue.
func (e *Executor) Health(ctx context.Context) plugin.HealthStatus {
	ctx, cancel := context.WithTimeout(ctx, e.healthTimeout)
	defer cancel()

	var status plugin.HealthStatus
	var err error
	switch e.protocolType {
	case plugin.PluginTypeGoPlugin:
		var client *plugin.StrategyPluginRPCClient
		if client, err = e.rpcClient(); err == nil {
			status, err = callRPC(ctx, func() (plugin.HealthStatus, error) { return client.Health(ctx), nil })
		}
	case plugin.PluginTypeJSON:
		err = e.runJSON(ctx, []string{"--health"}, nil, &status)
	default:
		err = fmt.Errorf("unsupported protocol type: %s", e.protocolType)
	}
	if err != nil {
		return plugin.HealthStatus{Issues: []string{err.Error()}}
	}
	return status
}

// Close kills a running go-plugin process. It is safe to call more than once.
func (e *Executor) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.closed = true
	if e.client != nil {
		e.client.Kill()
		e.client = nil
		e.rpc = nil
	}
}

// --- Go-Plugin RPC ---

// rpcClient lazily starts the plugin process and dispenses the strategy.
func (e *Executor) rpcClient() (*plugin.StrategyPluginRPCClient, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return nil, ErrClosed
	}
	if e.rpc != nil {
		if e.client != nil && !e.client.Exited() {
			return e.rpc, nil
		}
		e.logger.Warn("plugin process exited, restarting")
		e.rpc = nil
	}

	e.client = goplugin.NewClient(&goplugin.ClientConfig{
		HandshakeConfig:  plugin.Handshake,
		Plugins:          plugin.PluginMap(nil),
		Cmd:              exec.Command(e.path),
		AllowedProtocols: []goplugin.Protocol{goplugin.ProtocolNetRPC},
		Logger:           e.logger,
	})

	rpcClient, err := e.client.Client()
	if err != nil {
		e.client.Kill()
		e.client = nil
		return nil, fmt.Errorf("failed to get RPC client: %w", err)
	}

	raw, err := rpcClient.Dispense(plugin.PluginName)
	if err != nil {
		e.client.Kill()
		e.client = nil
		return nil, fmt.Errorf("failed to dispense plugin: %w", err)
	}

	client, ok := raw.(*plugin.StrategyPluginRPCClient)
	if !ok {
		e.client.Kill()
		e.client = nil
		return nil, fmt.Errorf("unexpected plugin client type %T", raw)
	}
	e.rpc = client
	return client, nil
}

// callRPC runs fn but returns early when ctx ends. net/rpc calls cannot be
// cancelled, so a late reply is discarded.
func callRPC[T any](ctx context.Context, fn func() (T, error)) (T, error) {
	type reply struct {
		v   T
		err error
	}
	done := make(chan reply, 1)
	go func() {
		v, err := fn()
		done <- reply{v, err}
	}()

	select {
	case r := <-done:
		return r.v, r.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// --- JSON-stdio ---

// runJSON writes in as JSON to the plugin's stdin (when non-nil) and decodes
// stdout into out.
func (e *Executor) runJSON(ctx context.Context, args []string, in any, out any) error {
	var stdin *bytes.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to marshal input: %w", err)
		}
		stdin = bytes.NewReader(data)
	}

	var stdout, stderr []byte
	var err error
	if stdin != nil {
		stdout, stderr, err = e.runner.Run(ctx, e.path, args, stdin)
	} else {
		stdout, stderr, err = e.runner.Run(ctx, e.path, args, nil)
	}
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return fmt.Errorf("plugin execution failed: %w", ctxErr)
		}
		return fmt.Errorf("plugin execution failed: %w", withStderr(err, stderr))
	}

	if err := json.Unmarshal(bytes.TrimSpace(stdout), out); err != nil {
		return fmt.Errorf("failed to parse plugin output: %w\nOutput: %s", err, strings.TrimSpace(string(stdout)))
	}
	return nil
}

func withStderr(err error, stderr []byte) error {
	msg := strings.TrimSpace(string(stderr))
	if msg == "" {
		return err
	}
	return fmt.Errorf("%w: %s", err, msg)
}
