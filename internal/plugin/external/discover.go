package external

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"

	"github.com/jmylchreest/backdrop/internal/plugin/executor"
	"github.com/jmylchreest/backdrop/internal/plugin/protocol"
	"github.com/jmylchreest/backdrop/internal/security"
	"github.com/jmylchreest/backdrop/internal/strategy"
	"github.com/jmylchreest/backdrop/internal/strategy/selector"
)

// Discover returns the plugin executables directly inside dir, sorted.
// Entries failing security.ValidatePluginExecutable are skipped. A missing
// directory yields no plugins.
func Discover(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read plugin directory: %w", err)
	}

	var paths []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		if err := security.ValidatePluginExecutable(path, dir); err != nil {
			continue
		}
		paths = append(paths, path)
	}
	slices.Sort(paths)
	return paths, nil
}

// Register queries every plugin and registers it with the selector under its
// own type and heuristic. Plugins that fail to load are skipped and reported
// in the joined error.
func Register(ctx context.Context, sel *selector.Selector, deps strategy.Deps, paths []string, opts executor.Options) ([]protocol.PluginInfo, error) {
	deps = deps.WithDefaults()
	if opts.Logger == nil {
		opts.Logger = deps.Logger
	}

	var loaded []protocol.PluginInfo
	var errs []error
	for _, path := range paths {
		exec, err := executor.New(ctx, path, opts)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		first := New(deps, exec)
		sel.RegisterScored(first.Type(), factory(first, path, deps, opts), Heuristic(first.Describe()))
		loaded = append(loaded, exec.Info())
		deps.Logger.Debug("strategy plugin registered", "name", first.Name(), "path", path, "protocol", exec.Protocol())
	}
	return loaded, errors.Join(errs...)
}

// factory hands out the probed instance first and reloads the plugin for any
// later instantiation, since the selector destroys instances it drops.
func factory(first *Strategy, path string, deps strategy.Deps, opts executor.Options) selector.Factory {
	return func() strategy.Strategy {
		if first != nil {
			s := first
			first = nil
			return s
		}
		exec, err := executor.New(context.Background(), path, opts)
		if err != nil {
			deps.Logger.Warn("failed to reload strategy plugin", "path", path, "error", err)
			return nil
		}
		return New(deps, exec)
	}
}
