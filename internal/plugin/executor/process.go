package executor

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"time"

	"github.com/jmylchreest/backdrop/internal/security"
	"github.com/jmylchreest/backdrop/pkg/plugin"
)

const (
	// DefaultMaxOutput caps what a JSON-stdio plugin may write to stdout.
	DefaultMaxOutput = 1 << 20

	maxStderr        = 16 << 10
	defaultWaitDelay = 500 * time.Millisecond
)

// ProcessRunner runs one JSON-stdio plugin invocation.
type ProcessRunner interface {
	Run(ctx context.Context, path string, args []string, stdin io.Reader) (stdout, stderr []byte, err error)
}

// ExecRunner runs plugins as child processes. The child sees
// BACKDROP_PLUGIN_PROTOCOL in its environment.
type ExecRunner struct {
	// Env is appended to the inherited environment.
	Env []string
	// MaxOutput bounds stdout; zero means DefaultMaxOutput.
	MaxOutput int64
	// WaitDelay bounds how long stdio is drained after ctx is cancelled.
	WaitDelay time.Duration
}

// NewExecRunner returns an ExecRunner with default limits.
func NewExecRunner() *ExecRunner {
	return &ExecRunner{}
}

// Run executes path with args. Stderr is returned for every failure mode,
// truncated to a few kilobytes.
func (r *ExecRunner) Run(ctx context.Context, path string, args []string, stdin io.Reader) ([]byte, []byte, error) {
	limit := r.MaxOutput
	if limit <= 0 {
		limit = DefaultMaxOutput
	}
	wait := r.WaitDelay
	if wait <= 0 {
		wait = defaultWaitDelay
	}

	cmd := exec.CommandContext(ctx, path, args...)
	cmd.Env = append(os.Environ(), "BACKDROP_PLUGIN_PROTOCOL="+plugin.ProtocolVersion)
	cmd.Env = append(cmd.Env, r.Env...)
	cmd.WaitDelay = wait
	if stdin != nil {
		cmd.Stdin = stdin
	}

	stdout := &cappedBuffer{limit: limit}
	stderr := &cappedBuffer{limit: maxStderr}
	cmd.Stdout = stdout
	cmd.Stderr = stderr

	err := cmd.Run()
	if stdout.overflow {
		return nil, stderr.Bytes(), fmt.Errorf("output exceeds %d bytes: %w", limit, security.ErrSizeLimit)
	}
	return stdout.Bytes(), stderr.Bytes(), err
}

// cappedBuffer keeps the first limit bytes and discards the rest without
// failing the write, so a chatty child is not killed by a broken pipe. The
// buffer is a named field: embedding it would promote ReadFrom, which io.Copy
// prefers over Write.
type cappedBuffer struct {
	buf      bytes.Buffer
	limit    int64
	overflow bool
}

var _ io.Writer = (*cappedBuffer)(nil)

func (b *cappedBuffer) Write(p []byte) (int, error) {
	room := b.limit - int64(b.buf.Len())
	if int64(len(p)) > room {
		b.overflow = true
		if room > 0 {
			b.buf.Write(p[:room])
		}
		return len(p), nil
	}
	return b.buf.Write(p)
}

func (b *cappedBuffer) Bytes() []byte  { return b.buf.Bytes() }
func (b *cappedBuffer) String() string { return b.buf.String() }
