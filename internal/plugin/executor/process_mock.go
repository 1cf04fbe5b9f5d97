package executor

import (
	"bytes"
	"context"
	"errors"
	"io"
	"slices"
	"sync"
	"time"
)

// MockCall records one invocation of a MockProcessRunner.
type MockCall struct {
	Path  string
	Args  []string
	Stdin []byte
}

// MockProcessRunner stands in for a plugin binary in tests. Calls are
// recorded; RunFunc decides the reply, otherwise "{}" is returned.
type MockProcessRunner struct {
	RunFunc func(ctx context.Context, path string, args []string, stdin io.Reader) (stdout, stderr []byte, err error)

	// Delay is waited before replying.
	Delay time.Duration
	// ShouldTimeout blocks every call until ctx is done.
	ShouldTimeout bool

	mu        sync.Mutex
	Calls     []MockCall
	CallCount int
	LastPath  string
	LastArgs  []string
}

// Run records the call and replies.
func (m *MockProcessRunner) Run(ctx context.Context, path string, args []string, stdin io.Reader) ([]byte, []byte, error) {
	var input []byte
	if stdin != nil {
		input, _ = io.ReadAll(stdin)
	}

	m.mu.Lock()
	m.CallCount++
	m.LastPath = path
	m.LastArgs = slices.Clone(args)
	m.Calls = append(m.Calls, MockCall{Path: path, Args: m.LastArgs, Stdin: input})
	block, delay, fn := m.ShouldTimeout, m.Delay, m.RunFunc
	m.mu.Unlock()

	if block {
		<-ctx.Done()
		return nil, nil, ctx.Err()
	}
	if delay > 0 {
		t := time.NewTimer(delay)
		defer t.Stop()
		select {
		case <-t.C:
		case <-ctx.Done():
			return nil, nil, ctx.Err()
		}
	}
	if fn != nil {
		var r io.Reader
		if stdin != nil {
			r = bytes.NewReader(input)
		}
		return fn(ctx, path, args, r)
	}
	return []byte("{}"), nil, nil
}

// CallsWith returns the recorded calls whose first argument is flag. An
// empty flag matches process calls, which carry no arguments.
func (m *MockProcessRunner) CallsWith(flag string) []MockCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []MockCall
	for _, c := range m.Calls {
		first := ""
		if len(c.Args) > 0 {
			first = c.Args[0]
		}
		if first == flag {
			out = append(out, c)
		}
	}
	return out
}

// NewMockProcessRunner returns a runner that answers "{}" to everything.
func NewMockProcessRunner() *MockProcessRunner {
	return &MockProcessRunner{}
}

// NewTimeoutMockProcessRunner returns a runner whose calls never finish.
func NewTimeoutMockProcessRunner() *MockProcessRunner {
	return &MockProcessRunner{ShouldTimeout: true}
}

// NewDelayMockProcessRunner returns a runner that answers after delay.
func NewDelayMockProcessRunner(delay time.Duration) *MockProcessRunner {
	return &MockProcessRunner{Delay: delay}
}

// NewErrorMockProcessRunner returns a runner that fails like a crashing
// plugin, echoing msg on stderr.
func NewErrorMockProcessRunner(msg string) *MockProcessRunner {
	return &MockProcessRunner{
		RunFunc: func(context.Context, string, []string, io.Reader) ([]byte, []byte, error) {
			return nil, []byte(msg), errors.New(msg)
		},
	}
}

// NewSuccessMockProcessRunner returns a runner that prints stdout for every
// query.
func NewSuccessMockProcessRunner(stdout []byte) *MockProcessRunner {
	return &MockProcessRunner{
		RunFunc: func(context.Context, string, []string, io.Reader) ([]byte, []byte, error) {
			return stdout, nil, nil
		},
	}
}

// NewScriptedMockProcessRunner answers by the first argument: "--plugin-info",
// "--can-process", "--health" or "" for a process call. Unknown queries fail.
func NewScriptedMockProcessRunner(replies map[string]string) *MockProcessRunner {
	return &MockProcessRunner{
		RunFunc: func(_ context.Context, _ string, args []string, _ io.Reader) ([]byte, []byte, error) {
			key := ""
			if len(args) > 0 {
				key = args[0]
			}
			reply, ok := replies[key]
			if !ok {
				return nil, []byte("unknown flag " + key), errors.New("exit status 2")
			}
			return []byte(reply), nil, nil
		},
	}
}
