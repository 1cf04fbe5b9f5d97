package cli

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/hashicorp/go-hclog"

	"github.com/jmylchreest/backdrop/internal/cssvars"
	"github.com/jmylchreest/backdrop/internal/device"
	"github.com/jmylchreest/backdrop/internal/events"
	"github.com/jmylchreest/backdrop/internal/journal"
	"github.com/jmylchreest/backdrop/internal/orchestrator"
	"github.com/jmylchreest/backdrop/internal/plugin/executor"
	"github.com/jmylchreest/backdrop/internal/plugin/external"
	"github.com/jmylchreest/backdrop/internal/plugin/protocol"
	"github.com/jmylchreest/backdrop/internal/render"
	"github.com/jmylchreest/backdrop/internal/settings"
	"github.com/jmylchreest/backdrop/internal/strategy"
	"github.com/jmylchreest/backdrop/internal/strategy/cssgradient"
	"github.com/jmylchreest/backdrop/internal/strategy/depth"
	"github.com/jmylchreest/backdrop/internal/strategy/flow"
	"github.com/jmylchreest/backdrop/internal/strategy/living"
	"github.com/jmylchreest/backdrop/internal/strategy/registry"
	"github.com/jmylchreest/backdrop/internal/strategy/selector"
)

// appOptions selects the optional parts of the engine a command needs.
type appOptions struct {
	// Stylesheet receives the CSS variables. Empty keeps them in memory.
	Stylesheet string
	// Journal records every result in the sqlite journal.
	Journal bool
	// Plugins loads external strategies.
	Plugins bool
	Width   int
	Height  int
}

// app is the wired engine shared by the commands.
type app struct {
	logger   hclog.Logger
	bus      *events.Bus
	settings *settings.Store
	probe    *device.Probe
	memory   *cssvars.MemorySink
	vars     *cssvars.Batcher
	sched    *render.Scheduler
	gpu      *render.SoftwareDevice
	registry *registry.Registry
	selector *selector.Selector
	orch     *orchestrator.Orchestrator
	journal  *journal.Journal
	plugins  []protocol.PluginInfo
}

// newApp loads the configuration and wires every collaborator.
func newApp(ctx context.Context, logger hclog.Logger, opts appOptions) (*app, error) {
	a := &app{logger: logger, bus: events.NewBus()}

	store, err := settings.New(logger, settings.Options{Path: configPath, Events: a.bus})
	if err != nil {
		return nil, err
	}
	a.settings = store
	a.probe = device.NewProbe(store)

	var sink cssvars.Sink
	if opts.Stylesheet != "" {
		sink = cssvars.NewStylesheetSink(opts.Stylesheet)
	} else {
		a.memory = cssvars.NewMemorySink()
		sink = a.memory
	}
	a.vars = cssvars.NewBatcher(sink, logger)
	a.sched = render.NewScheduler(logger)
	a.gpu = render.NewSoftwareDevice(logger, render.SoftwareOptions{
		Unavailable: !a.probe.HasWebGLSupport(),
	})

	a.registry = registry.New(logger, registry.Options{
		HealthInterval: strategy.Duration(store, strategy.KeyHealthInterval, registry.DefaultHealthInterval),
		ReprobeAfter:   strategy.Duration(store, strategy.KeyReprobeAfter, registry.DefaultReprobeAfter),
		Events:         a.bus,
	})
	a.selector = selector.New(logger, a.probe, store, selector.Options{
		Events:   a.bus,
		Registry: a.registry,
	})

	deps := strategy.Deps{
		Logger:   logger,
		Writer:   a.vars,
		Device:   a.probe,
		Settings: store,
	}
	a.registerBuiltins(deps, opts)

	if opts.Plugins {
		if err := a.loadPlugins(ctx, deps); err != nil {
			logger.Warn("some strategy plugins failed to load", "error", err)
		}
	}

	orchOpts := orchestrator.Options{
		Events:          a.bus,
		StrategyTimeout: strategy.Duration(store, strategy.KeyStrategyTimeout, orchestrator.DefaultStrategyTimeout),
		MaxStrategies:   int(strategy.Number(store, strategy.KeyMaxStrategies, orchestrator.DefaultMaxStrategies)),
	}
	if opts.Journal {
		j, err := journal.Open(strategy.String(store, strategy.KeyJournalPath, journal.DefaultPath()))
		if err != nil {
			a.Close()
			return nil, err
		}
		a.journal = j
		orchOpts.Recorder = j
	}
	a.orch = orchestrator.New(logger, a.selector, a.registry, orchOpts)
	return a, nil
}

// registerBuiltins registers the four built-in strategy types.
func (a *app) registerBuiltins(deps strategy.Deps, opts appOptions) {
	a.selector.Register(selector.TypeAccent, func() strategy.Strategy {
		return cssgradient.New(deps)
	})
	a.selector.Register(selector.TypeLiving, func() strategy.Strategy {
		return living.New(deps, a.sched)
	})
	a.selector.Register(selector.TypeShader, func() strategy.Strategy {
		return flow.New(deps, a.sched, a.gpu, flow.Options{
			Width:  opts.Width,
			Height: opts.Height,
			Events: a.bus,
		})
	})
	a.selector.Register(selector.TypeDepth, func() strategy.Strategy {
		return depth.New(deps, a.sched)
	})
}

// loadPlugins registers the executables found in the plugin directory plus
// the explicitly configured plugin paths.
func (a *app) loadPlugins(ctx context.Context, deps strategy.Deps) error {
	paths, err := external.Discover(strategy.String(a.settings, strategy.KeyPluginDir, ""))
	if err != nil {
		return err
	}
	for _, p := range strategy.Strings(a.settings, strategy.KeyPluginStrategies) {
		if !slices.Contains(paths, p) {
			paths = append(paths, p)
		}
	}
	if len(paths) == 0 {
		return nil
	}
	a.plugins, err = external.Register(ctx, a.selector, deps, paths, executor.Options{Logger: a.logger})
	a.logger.Debug("strategy plugins loaded", "count", len(a.plugins))
	return err
}

// run starts the frame clock, the variable flusher and the health loop until
// ctx is done.
func (a *app) run(ctx context.Context) {
	a.registry.Start(ctx)
	go func() {
		_ = a.sched.Run(ctx, 0)
	}()
	go func() {
		_ = a.vars.Run(ctx, 50*time.Millisecond)
	}()
}

// process runs one context through the orchestrator and flushes its variables.
func (a *app) process(ctx context.Context, cc strategy.ColorContext) (strategy.ColorResult, error) {
	result, err := a.orch.Process(ctx, cc, nil)
	if err != nil {
		return strategy.ColorResult{}, fmt.Errorf("processing colours: %w", err)
	}
	if err := a.vars.Flush(); err != nil {
		return result, fmt.Errorf("writing variables: %w", err)
	}
	return result, nil
}

// variables returns the variables written so far when they are kept in memory.
func (a *app) variables() map[string]string {
	if a.memory == nil {
		return nil
	}
	return a.memory.Vars()
}

// Close tears the engine down in dependency order.
func (a *app) Close() error {
	var errs []error
	if a.orch != nil {
		errs = append(errs, a.orch.Close())
	}
	if a.registry != nil {
		a.registry.Destroy()
	}
	if a.vars != nil {
		errs = append(errs, a.vars.Close())
	}
	if a.journal != nil {
		errs = append(errs, a.journal.Close())
	}
	if a.bus != nil {
		if err := a.bus.Close(); err != nil && !errors.Is(err, events.ErrBusClosed) {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
