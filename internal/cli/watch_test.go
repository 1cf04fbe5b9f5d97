package cli

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestWatcher(t *testing.T, running *atomic.Bool) *watcher {
	t.Helper()
	isolate(t)
	a, err := newApp(context.Background(), hclog.NewNullLogger(), appOptions{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })

	return &watcher{
		app:    a,
		logger: hclog.NewNullLogger(),
		path:   filepath.Join(t.TempDir(), "now-playing.json"),
		running: func() (bool, error) {
			return running.Load(), nil
		},
		poll: time.Hour,
	}
}

func writeNowPlaying(t *testing.T, path, uri, primary string) {
	t.Helper()
	data, err := json.Marshal(map[string]any{
		"trackUri":  uri,
		"rawColors": map[string]string{"PRIMARY": primary},
	})
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, data, 0o644))
}

func backdropVars(vars map[string]string) int {
	n := 0
	for k := range vars {
		if strings.HasPrefix(k, "--backdrop-") {
			n++
		}
	}
	return n
}

func TestWatcherPausesWithoutPlayer(t *testing.T) {
	var running atomic.Bool
	w := newTestWatcher(t, &running)
	writeNowPlaying(t, w.path, "spotify:track:1", "#a6e3a1")

	assert.False(t, w.checkPlayer())
	w.update(context.Background())
	assert.True(t, w.stale)
	assert.Zero(t, w.app.orch.Processed())

	running.Store(true)
	assert.True(t, w.checkPlayer())
	w.update(context.Background())
	assert.False(t, w.stale)
	assert.Equal(t, uint64(1), w.app.orch.Processed())
	assert.Equal(t, "spotify:track:1", w.lastURI)
	assert.Positive(t, backdropVars(w.app.variables()))
}

func TestWatcherSkipsMissingAndEmptyFiles(t *testing.T) {
	var running atomic.Bool
	running.Store(true)
	w := newTestWatcher(t, &running)
	w.checkPlayer()

	w.update(context.Background())
	assert.Zero(t, w.app.orch.Processed())

	require.NoError(t, os.WriteFile(w.path, []byte(`{"trackUri":"x","rawColors":{}}`), 0o644))
	w.update(context.Background())
	assert.Zero(t, w.app.orch.Processed())
}

func TestWatcherPlayerDetectionErrorDoesNotPause(t *testing.T) {
	var running atomic.Bool
	w := newTestWatcher(t, &running)
	w.running = func() (bool, error) { return false, errors.New("no /proc") }
	assert.True(t, w.checkPlayer())
	assert.False(t, w.paused)
}

func TestWatcherProcessesFileChanges(t *testing.T) {
	var running atomic.Bool
	running.Store(true)
	w := newTestWatcher(t, &running)
	writeNowPlaying(t, w.path, "spotify:track:1", "#89dceb")

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.run(ctx) }()

	require.Eventually(t, func() bool { return w.app.orch.Processed() == 1 }, 5*time.Second, 10*time.Millisecond)

	writeNowPlaying(t, w.path, "spotify:track:2", "#f9e2af")
	require.Eventually(t, func() bool { return w.app.orch.Processed() >= 2 }, 5*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("watcher did not stop")
	}
}
