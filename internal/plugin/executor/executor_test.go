package executor

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/jmylchreest/backdrop/pkg/plugin"
)

const monoInfo = `{"name":"mono","version":"0.1.0","protocol_version":"1.0.0","plugin_protocol":"json-stdio"}`

func testInput() plugin.StrategyInput {
	return plugin.StrategyInput{
		TrackURI:  "spotify:track:abc",
		RawColors: map[string]string{"PRIMARY": "#ff0000", "VIBRANT": "#00ff00"},
	}
}

// scriptedRunner answers --plugin-info with info and dispatches everything
// else to fn.
func scriptedRunner(info string, fn func(args []string, stdin io.Reader) ([]byte, []byte, error)) *MockProcessRunner {
	return &MockProcessRunner{
		RunFunc: func(_ context.Context, _ string, args []string, stdin io.Reader) ([]byte, []byte, error) {
			if len(args) > 0 && args[0] == "--plugin-info" {
				return []byte(info), nil, nil
			}
			return fn(args, stdin)
		},
	}
}

// TestNew tests protocol detection through the runner.
func TestNew(t *testing.T) {
	runner := NewSuccessMockProcessRunner([]byte(monoInfo))

	executor, err := New(context.Background(), "/plugins/mono", Options{Runner: runner})
	if err != nil {
		t.Fatalf("Failed to create executor: %v", err)
	}
	defer executor.Close()

	if executor.Path() != "/plugins/mono" {
		t.Errorf("Expected path '/plugins/mono', got '%s'", executor.Path())
	}
	if executor.Protocol() != plugin.PluginTypeJSON {
		t.Errorf("Expected protocol type JSON, got %s", executor.Protocol())
	}
	if executor.Info().Name != "mono" {
		t.Errorf("Expected name 'mono', got '%s'", executor.Info().Name)
	}
	if runner.LastPath != "/plugins/mono" || len(runner.LastArgs) != 1 || runner.LastArgs[0] != "--plugin-info" {
		t.Errorf("Unexpected query: %s %v", runner.LastPath, runner.LastArgs)
	}
}

// TestNewErrors tests detection failures.
func TestNewErrors(t *testing.T) {
	tests := []struct {
		name   string
		runner *MockProcessRunner
		want   string
	}{
		{"process fails", NewErrorMockProcessRunner("exec format error"), "failed to query plugin"},
		{"bad info", NewSuccessMockProcessRunner([]byte("hello")), "failed to detect plugin protocol"},
		{"incompatible", NewSuccessMockProcessRunner([]byte(`{"name":"old","protocol_version":"0.1.0"}`)), "incompatible major version"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(context.Background(), "/plugins/x", Options{Runner: tt.runner})
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("New() error = %v, want containing %q", err, tt.want)
			}
		})
	}
}

// TestProcessJSON tests the JSON-stdio processing round trip.
func TestProcessJSON(t *testing.T) {
	var received plugin.StrategyInput
	runner := scriptedRunner(monoInfo, func(args []string, stdin io.Reader) ([]byte, []byte, error) {
		if len(args) != 0 {
			t.Errorf("Process should run without arguments, got %v", args)
		}
		if err := json.NewDecoder(stdin).Decode(&received); err != nil {
			t.Errorf("Failed to decode stdin: %v", err)
		}
		return []byte(`{"processed_colors":{"PRIMARY":"#112233"},"accent_hex":"#112233"}`), nil, nil
	})

	executor, err := New(context.Background(), "mono", Options{Runner: runner})
	if err != nil {
		t.Fatalf("Failed to create executor: %v", err)
	}

	out, err := executor.Process(context.Background(), testInput())
	if err != nil {
		t.Fatalf("Process failed: %v", err)
	}
	if out.AccentHex != "#112233" {
		t.Errorf("Expected accent #112233, got %s", out.AccentHex)
	}
	if received.TrackURI != "spotify:track:abc" || received.RawColors["VIBRANT"] != "#00ff00" {
		t.Errorf("Input not preserved: %+v", received)
	}
}

// TestProcessJSONErrors tests failure reporting.
func TestProcessJSONErrors(t *testing.T) {
	t.Run("exit status", func(t *testing.T) {
		runner := scriptedRunner(monoInfo, func([]string, io.Reader) ([]byte, []byte, error) {
			return nil, []byte("palette rejected\n"), errors.New("exit status 2")
		})
		executor, err := New(context.Background(), "mono", Options{Runner: runner})
		if err != nil {
			t.Fatalf("Failed to create executor: %v", err)
		}
		_, err = executor.Process(context.Background(), testInput())
		if err == nil || !strings.Contains(err.Error(), "palette rejected") {
			t.Errorf("Expected stderr in error, got %v", err)
		}
	})

	t.Run("invalid output", func(t *testing.T) {
		runner := scriptedRunner(monoInfo, func([]string, io.Reader) ([]byte, []byte, error) {
			return []byte("not json"), nil, nil
		})
		executor, err := New(context.Background(), "mono", Options{Runner: runner})
		if err != nil {
			t.Fatalf("Failed to create executor: %v", err)
		}
		_, err = executor.Process(context.Background(), testInput())
		if err == nil || !strings.Contains(err.Error(), "failed to parse plugin output") {
			t.Errorf("Expected parse error, got %v", err)
		}
	})
}

// TestProcessJSONTimeout tests timeout handling using a mock process runner.
func TestProcessJSONTimeout(t *testing.T) {
	runner := scriptedRunner(monoInfo, nil)
	executor, err := New(context.Background(), "mono", Options{Runner: runner})
	if err != nil {
		t.Fatalf("Failed to create executor: %v", err)
	}
	runner.ShouldTimeout = true

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err = executor.Process(ctx, testInput())
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Expected context.DeadlineExceeded error, got: %v", err)
	}
}

// TestCanProcessJSON tests the --can-process query.
func TestCanProcessJSON(t *testing.T) {
	tests := []struct {
		name   string
		stdout string
		err    error
		want   bool
	}{
		{"accepts", "true\n", nil, true},
		{"refuses", "false", nil, false},
		{"garbage", "maybe", nil, false},
		{"fails", "", errors.New("exit status 1"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			runner := scriptedRunner(monoInfo, func(args []string, _ io.Reader) ([]byte, []byte, error) {
				if len(args) != 1 || args[0] != "--can-process" {
					t.Errorf("Unexpected args %v", args)
				}
				return []byte(tt.stdout), nil, tt.err
			})
			executor, err := New(context.Background(), "mono", Options{Runner: runner})
			if err != nil {
				t.Fatalf("Failed to create executor: %v", err)
			}
			if got := executor.CanProcess(context.Background(), testInput()); got != tt.want {
				t.Errorf("CanProcess() = %v, want %v", got, tt.want)
			}
		})
	}
}

// TestHealthJSON tests the --health query.
func TestHealthJSON(t *testing.T) {
	runner := scriptedRunner(monoInfo, func(args []string, _ io.Reader) ([]byte, []byte, error) {
		return []byte(`{"healthy":false,"issues":["cache cold"]}`), nil, nil
	})
	executor, err := New(context.Background(), "mono", Options{Runner: runner})
	if err != nil {
		t.Fatalf("Failed to create executor: %v", err)
	}

	status := executor.Health(context.Background())
	if status.Healthy || len(status.Issues) != 1 || status.Issues[0] != "cache cold" {
		t.Errorf("Unexpected health %+v", status)
	}

	runner.ShouldTimeout = true
	executor.healthTimeout = 20 * time.Millisecond
	status = executor.Health(context.Background())
	if status.Healthy || len(status.Issues) == 0 {
		t.Errorf("Timed out health should be unhealthy, got %+v", status)
	}
}

// TestClose tests that Close is idempotent and blocks go-plugin restarts.
func TestClose(t *testing.T) {
	runner := NewSuccessMockProcessRunner([]byte(`{"name":"rpc","plugin_protocol":"go-plugin"}`))
	executor, err := New(context.Background(), "rpc", Options{Runner: runner})
	if err != nil {
		t.Fatalf("Failed to create executor: %v", err)
	}
	executor.Close()
	executor.Close()

	if _, err := executor.Process(context.Background(), testInput()); !errors.Is(err, ErrClosed) {
		t.Errorf("Expected ErrClosed, got %v", err)
	}
	if executor.CanProcess(context.Background(), testInput()) {
		t.Error("Closed executor should refuse input")
	}
}

// TestScriptPlugins runs the testdata scripts through the real process runner.
func TestScriptPlugins(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping process tests in short mode")
	}

	t.Run("mono", func(t *testing.T) {
		executor, err := New(context.Background(), copyTestScript(t, "mono.sh"), Options{})
		if err != nil {
			t.Fatalf("Failed to create executor: %v", err)
		}
		defer executor.Close()

		if executor.Info().Category != "accent" || executor.Info().Priority != 2 {
			t.Errorf("Unexpected info %+v", executor.Info())
		}
		if !executor.CanProcess(context.Background(), testInput()) {
			t.Error("Expected plugin to accept input")
		}
		out, err := executor.Process(context.Background(), testInput())
		if err != nil {
			t.Fatalf("Process failed: %v", err)
		}
		if out.AccentHex != "#336699" || len(out.Gradient) != 2 {
			t.Errorf("Unexpected output %+v", out)
		}
		if !executor.Health(context.Background()).Healthy {
			t.Error("Expected healthy plugin")
		}
	})

	t.Run("broken", func(t *testing.T) {
		executor, err := New(context.Background(), copyTestScript(t, "broken.sh"), Options{})
		if err != nil {
			t.Fatalf("Failed to create executor: %v", err)
		}
		defer executor.Close()

		if _, err := executor.Process(context.Background(), testInput()); err == nil || !strings.Contains(err.Error(), "palette rejected") {
			t.Errorf("Expected stderr in error, got %v", err)
		}
		status := executor.Health(context.Background())
		if status.Healthy || len(status.Issues) == 0 || !strings.Contains(status.Issues[0], "gpu unavailable") {
			t.Errorf("Unexpected health %+v", status)
		}
	})
}

// copyTestScript copies a test script from testdata to a temporary directory.
// Returns the path to the copied script with execute permissions set.
func copyTestScript(t *testing.T, scriptName string) string {
	t.Helper()

	scriptContent, err := os.ReadFile(filepath.Join("testdata", "scripts", scriptName))
	if err != nil {
		t.Fatalf("Failed to read testdata script %s: %v", scriptName, err)
	}

	pluginPath := filepath.Join(t.TempDir(), scriptName)
	if err := os.WriteFile(pluginPath, scriptContent, 0o755); err != nil {
		t.Fatalf("Failed to write test script: %v", err)
	}
	return pluginPath
}
