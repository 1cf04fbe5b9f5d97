package cssvars

import (
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
)

// MemorySink keeps the applied variables in memory.
type MemorySink struct {
	mu      sync.Mutex
	vars    map[string]string
	batches []map[string]string
	closed  bool
}

// NewMemorySink returns an empty sink.
func NewMemorySink() *MemorySink {
	return &MemorySink{vars: make(map[string]string)}
}

// Apply implements Sink.
func (s *MemorySink) Apply(vars map[string]string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrSinkClosed
	}
	maps.Copy(s.vars, vars)
	s.batches = append(s.batches, maps.Clone(vars))
	return nil
}

// Close implements Sink.
func (s *MemorySink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// Vars returns the current variable values.
func (s *MemorySink) Vars() map[string]string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return maps.Clone(s.vars)
}

// Batches returns every applied batch in order.
func (s *MemorySink) Batches() []map[string]string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]map[string]string, len(s.batches))
	for i, b := range s.batches {
		out[i] = maps.Clone(b)
	}
	return out
}

// StylesheetSink renders the merged variables as a :root rule and rewrites the
// file atomically on every batch.
type StylesheetSink struct {
	path     string
	selector string

	mu     sync.Mutex
	vars   map[string]string
	closed bool
}

// NewStylesheetSink writes to path using the :root selector.
func NewStylesheetSink(path string) *StylesheetSink {
	return &StylesheetSink{path: path, selector: ":root", vars: make(map[string]string)}
}

// Apply implements Sink.
func (s *StylesheetSink) Apply(vars map[string]string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrSinkClosed
	}
	maps.Copy(s.vars, vars)
	return s.write()
}

// Close implements Sink.
func (s *StylesheetSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// Render returns the stylesheet text for the given variables.
func Render(selector string, vars map[string]string) string {
	var sb strings.Builder
	sb.WriteString(selector)
	sb.WriteString(" {\n")
	for _, name := range slices.Sorted(maps.Keys(vars)) {
		fmt.Fprintf(&sb, "  %s: %s;\n", name, vars[name])
	}
	sb.WriteString("}\n")
	return sb.String()
}

func (s *StylesheetSink) write() error {
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create stylesheet directory: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".backdrop-*.css")
	if err != nil {
		return fmt.Errorf("create temp stylesheet: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.WriteString(Render(s.selector, s.vars)); err != nil {
		tmp.Close()
		return fmt.Errorf("write stylesheet: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close stylesheet: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("replace stylesheet: %w", err)
	}
	return nil
}
