package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/hashicorp/go-hclog"
	"github.com/spf13/cobra"

	"github.com/jmylchreest/backdrop/internal/events"
	"github.com/jmylchreest/backdrop/internal/strategy"
)

const (
	watchDebounce     = 150 * time.Millisecond
	watchPlayerPoll   = 5 * time.Second
	watchEventBacklog = 32
)

var (
	// Watch command flags
	watchCSS     string
	watchPlayers []string
	watchRecord  bool
)

// watchCmd represents the watch command
var watchCmd = &cobra.Command{
	Use:   "watch <now-playing.json>",
	Short: "Process every change of a now-playing file",
	Long: `Watch a now-playing JSON file and run every change through the strategy
engine, keeping the stylesheet and animations current. The file holds the
colour context and an optional artwork source:

  {
    "trackUri": "spotify:track:4uLU6hMCjMI75M1A2tKUQC",
    "rawColors": {"PRIMARY": "#cba6f7", "VIBRANT": "#f38ba8"},
    "musicData": {"energy": 0.7, "valence": 0.4, "tempo": 118},
    "image": "https://i.scdn.co/image/ab67616d0000b273..."
  }

Processing pauses while none of the configured player processes is running.

Examples:
  # Keep backdrop.css in sync with the player
  backdrop watch --css ~/.cache/backdrop.css --player spotify ~/.cache/now-playing.json`,
	Args: cobra.ExactArgs(1),
	RunE: runWatch,
}

func init() {
	watchCmd.Flags().StringVar(&watchCSS, "css", "", "stylesheet to keep updated (required)")
	watchCmd.Flags().StringSliceVar(&watchPlayers, "player", nil, "player process names; processing pauses while none runs")
	watchCmd.Flags().BoolVar(&watchRecord, "record", true, "record results in the journal")
	_ = watchCmd.MarkFlagRequired("css")
}

func runWatch(cmd *cobra.Command, args []string) error {
	path, err := filepath.Abs(args[0])
	if err != nil {
		return fmt.Errorf("invalid path: %w", err)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	logger := newLogger(cmd.ErrOrStderr())

	a, err := newApp(ctx, logger, appOptions{
		Stylesheet: watchCSS,
		Journal:    watchRecord,
		Plugins:    true,
	})
	if err != nil {
		return err
	}
	defer a.Close()

	a.run(ctx)
	go func() {
		if err := a.settings.Watch(ctx); err != nil {
			logger.Warn("config watch stopped", "error", err)
		}
	}()
	if err := a.logEvents(ctx); err != nil {
		return err
	}

	players := watchPlayers
	if len(players) == 0 {
		players = strategy.Strings(a.settings, strategy.KeyWatchPlayers)
	}
	w := &watcher{
		app:    a,
		logger: logger.Named("watch"),
		path:   path,
		running: func() (bool, error) {
			return a.probe.PlayerRunning(players...)
		},
		poll: watchPlayerPoll,
	}
	err = w.run(ctx)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// logEvents logs degradations and health changes published on the bus.
func (a *app) logEvents(ctx context.Context) error {
	ch := make(chan events.Event, watchEventBacklog)
	if err := a.bus.Subscribe("cli", ch, events.KindFallbackActivated, events.KindHealthChanged); err != nil {
		return err
	}
	go func() {
		defer func() { _ = a.bus.Unsubscribe("cli") }()
		for {
			select {
			case <-ctx.Done():
				return
			case e := <-ch:
				switch p := e.Payload.(type) {
				case events.FallbackActivated:
					a.logger.Warn("fallback activated", "strategy", p.Strategy, "mode", p.Mode, "reason", p.Reason)
				case events.HealthChanged:
					a.logger.Info("strategy health changed", "strategy", p.Strategy, "healthy", p.Healthy, "reason", p.Reason)
				}
			}
		}
	}()
	return nil
}

// watcher processes a now-playing file on every change while a player runs.
type watcher struct {
	app     *app
	logger  hclog.Logger
	path    string
	running func() (bool, error)
	poll    time.Duration

	paused  bool
	stale   bool
	lastURI string
}

// run processes the file once, then on every change until ctx is done.
func (w *watcher) run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating watcher: %w", err)
	}
	defer fw.Close()
	if err := fw.Add(filepath.Dir(w.path)); err != nil {
		return fmt.Errorf("watching %s: %w", filepath.Dir(w.path), err)
	}

	w.checkPlayer()
	w.update(ctx)

	poll := time.NewTicker(w.poll)
	defer poll.Stop()
	debounce := time.NewTimer(watchDebounce)
	debounce.Stop()

	w.logger.Info("watching now-playing file", "path", w.path)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case e, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(e.Name) != w.path || !(e.Has(fsnotify.Write) || e.Has(fsnotify.Create)) {
				continue
			}
			debounce.Reset(watchDebounce)
		case <-debounce.C:
			w.update(ctx)
		case <-poll.C:
			if w.checkPlayer() && w.stale {
				w.update(ctx)
			}
		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("file watcher error", "error", err)
		}
	}
}

// checkPlayer refreshes the paused flag and reports whether processing may run.
func (w *watcher) checkPlayer() bool {
	running, err := w.running()
	if err != nil {
		w.logger.Debug("player detection failed", "error", err)
		running = true
	}
	if running == w.paused {
		if running {
			w.logger.Info("player running, resuming")
		} else {
			w.logger.Info("no player running, pausing")
		}
	}
	w.paused = !running
	return running
}

// update processes the current file content unless paused.
func (w *watcher) update(ctx context.Context) {
	if w.paused {
		w.stale = true
		return
	}
	w.stale = false

	cc, err := readNowPlaying(ctx, w.logger, w.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			w.logger.Debug("now-playing file not present yet")
			return
		}
		w.logger.Warn("skipping update", "error", err)
		return
	}
	if cc.Len() == 0 {
		w.logger.Debug("now-playing file has no colours")
		return
	}

	result, err := w.app.process(ctx, cc)
	if err != nil {
		w.logger.Error("processing failed", "error", err)
		return
	}
	if cc.TrackURI() != w.lastURI {
		w.logger.Info("track processed", "track", cc.TrackURI(), "accent", result.AccentHex,
			"strategies", result.Metadata.Contributors, "render", result.Metadata.RenderTier)
		w.lastURI = cc.TrackURI()
	} else {
		w.logger.Debug("track updated", "track", cc.TrackURI(), "accent", result.AccentHex)
	}
}
