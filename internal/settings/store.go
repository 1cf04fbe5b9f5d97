// Package settings provides the configuration store read by strategies. Values
// come from built-in defaults, an optional YAML/TOML config file and BACKDROP_*
// environment variables, in increasing precedence.
package settings

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"reflect"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/hashicorp/go-hclog"
	"github.com/spf13/viper"

	"github.com/jmylchreest/backdrop/internal/events"
	"github.com/jmylchreest/backdrop/internal/strategy"
)

// EnvPrefix is prepended to every environment override, e.g.
// BACKDROP_SHADER_ENABLED for shader.enabled.
const EnvPrefix = "BACKDROP"

// Defaults returns the built-in value of every known key.
func Defaults() map[string]any {
	return map[string]any{
		strategy.KeyShaderEnabled:     true,
		strategy.KeyShaderForceLowEnd: false,
		strategy.KeyShaderOKLab:       true,
		strategy.KeyDepthEnabled:      true,
		strategy.KeyAnimationsEnabled: true,
		strategy.KeyIntensity:         "balanced",
		strategy.KeyVisualMode:        strategy.VisualDynamic,
		strategy.KeyBlendMode:         "normal",
		strategy.KeyOKLabPreset:       "standard",
		strategy.KeyStrategyTimeout:   "2s",
		strategy.KeyMaxStrategies:     3,
		strategy.KeyHealthInterval:    "30s",
		strategy.KeyReprobeAfter:      "5m",
		strategy.KeyPluginStrategies:  []string{},
		strategy.KeyPluginDir:         filepath.Join(ConfigDir(), "plugins"),
		strategy.KeyWatchPlayers:      []string{},
	}
}

// Options configures a Store.
type Options struct {
	// Path is an explicit config file. When empty, config.{yaml,toml} is looked
	// up in ConfigDir and its absence is not an error.
	Path   string
	Events events.Publisher
	// WatchDebounce coalesces the bursts of events an editor save produces.
	// Defaults to DefaultWatchDebounce.
	WatchDebounce time.Duration
}

// DefaultWatchDebounce is the quiet period Watch waits for before reloading.
const DefaultWatchDebounce = 150 * time.Millisecond

// Store is a concurrency-safe viper wrapper implementing strategy.Settings.
type Store struct {
	logger   hclog.Logger
	events   events.Publisher
	debounce time.Duration

	mu        sync.RWMutex
	v         *viper.Viper
	snapshot  map[string]any
	listeners []func(keys []string)
}

var _ strategy.Settings = (*Store)(nil)

// New loads the configuration.
func New(logger hclog.Logger, opts Options) (*Store, error) {
	if opts.Events == nil {
		opts.Events = events.Discard
	}
	if opts.WatchDebounce <= 0 {
		opts.WatchDebounce = DefaultWatchDebounce
	}
	v := viper.New()
	for k, val := range Defaults() {
		v.SetDefault(k, val)
	}
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if opts.Path != "" {
		v.SetConfigFile(opts.Path)
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(ConfigDir())
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if opts.Path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	s := &Store{
		logger:   logger.Named("settings"),
		events:   opts.Events,
		debounce: opts.WatchDebounce,
		v:        v,
	}
	s.snapshot = s.collect()
	if f := v.ConfigFileUsed(); f != "" {
		s.logger.Debug("config loaded", "file", f)
	}
	return s, nil
}

// ConfigDir returns $XDG_CONFIG_HOME/backdrop, or ~/.config/backdrop.
func ConfigDir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "backdrop")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", ".config", "backdrop")
	}
	return filepath.Join(home, ".config", "backdrop")
}

// Get implements strategy.Settings. Unknown keys return nil.
func (s *Store) Get(key string) any {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.v.Get(key)
}

// Set overrides a key at runtime and notifies listeners when the value changed.
func (s *Store) Set(key string, value any) {
	s.mu.Lock()
	s.v.Set(key, value)
	changed := s.refresh()
	s.mu.Unlock()
	s.notify(changed)
}

// ConfigFile returns the file in use, or "".
func (s *Store) ConfigFile() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.v.ConfigFileUsed()
}

// All returns every key with its current value.
func (s *Store) All() map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return maps.Clone(s.snapshot)
}

// OnChange registers fn to be called with the changed keys after a reload or Set.
func (s *Store) OnChange(fn func(keys []string)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, fn)
}

// Reload re-reads the config file.
func (s *Store) Reload() error {
	s.mu.Lock()
	if s.v.ConfigFileUsed() == "" {
		s.mu.Unlock()
		return nil
	}
	if err := s.v.ReadInConfig(); err != nil {
		s.mu.Unlock()
		return fmt.Errorf("reloading config: %w", err)
	}
	changed := s.refresh()
	s.mu.Unlock()
	s.notify(changed)
	return nil
}

// Watch reloads the configuration whenever the file changes, until ctx is done.
// The parent directory is watched so editors that replace the file are seen.
// Events are debounced and an empty file is skipped, so the truncate step of a
// save never reverts settings to their defaults. It returns immediately without
// a config file.
func (s *Store) Watch(ctx context.Context) error {
	file := s.ConfigFile()
	if file == "" {
		return nil
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating watcher: %w", err)
	}
	defer w.Close()
	if err := w.Add(filepath.Dir(file)); err != nil {
		return fmt.Errorf("watching %s: %w", filepath.Dir(file), err)
	}

	debounce := time.NewTimer(s.debounce)
	debounce.Stop()
	defer debounce.Stop()

	s.logger.Debug("watching config", "file", file)
	for {
		select {
		case <-ctx.Done():
			return nil
		case e, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(e.Name) != filepath.Clean(file) || !(e.Has(fsnotify.Write) || e.Has(fsnotify.Create)) {
				continue
			}
			s.logger.Trace("config event", "op", e.Op.String())
			debounce.Reset(s.debounce)
		case <-debounce.C:
			if info, err := os.Stat(file); err == nil && info.Size() == 0 {
				s.logger.Debug("config file empty, waiting for content", "file", file)
				continue
			}
			s.logger.Debug("config changed", "file", file)
			if err := s.Reload(); err != nil {
				s.logger.Warn("config reload failed", "error", err)
			}
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			s.logger.Warn("config watcher error", "error", err)
		}
	}
}

// collect must be called with s.mu held.
func (s *Store) collect() map[string]any {
	out := make(map[string]any)
	for _, k := range s.v.AllKeys() {
		out[k] = s.v.Get(k)
	}
	return out
}

// refresh must be called with s.mu held. It returns the keys whose value changed.
func (s *Store) refresh() []string {
	next := s.collect()
	var changed []string
	for k, v := range next {
		if old, ok := s.snapshot[k]; !ok || !reflect.DeepEqual(old, v) {
			changed = append(changed, k)
		}
	}
	for k := range s.snapshot {
		if _, ok := next[k]; !ok {
			changed = append(changed, k)
		}
	}
	s.snapshot = next
	slices.Sort(changed)
	return changed
}

func (s *Store) notify(keys []string) {
	if len(keys) == 0 {
		return
	}
	s.mu.RLock()
	listeners := slices.Clone(s.listeners)
	s.mu.RUnlock()

	s.logger.Info("settings changed", "keys", keys)
	for _, fn := range listeners {
		fn(keys)
	}
	if err := s.events.Publish(events.SettingsChanged{Keys: keys}); err != nil {
		s.logger.Debug("settings event dropped", "error", err)
	}
}
