// Package cssvars serialises CSS custom-property writes from every strategy
// through one priority-ordered batch.
package cssvars

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"sync"
	"time"

	"github.com/hashicorp/go-hclog"

	"github.com/jmylchreest/backdrop/internal/strategy"
)

// ErrSinkClosed is returned for writes after Close.
var ErrSinkClosed = errors.New("css variable sink closed")

// Sink applies a batch of variables to the output surface.
type Sink interface {
	Apply(vars map[string]string) error
	Close() error
}

// Stats counts batcher activity.
type Stats struct {
	Writes    uint64 `json:"writes"`
	Flushes   uint64 `json:"flushes"`
	Coalesced uint64 `json:"coalesced"`
	Failures  uint64 `json:"failures"`
}

// Batcher implements strategy.CSSVariableWriter. Writes are queued per priority
// and applied critical first, then high, then normal. A later write of the same
// variable replaces the pending one regardless of priority. Critical writes flush
// immediately.
type Batcher struct {
	logger hclog.Logger
	sink   Sink

	mu      sync.Mutex
	pending [strategy.PriorityCritical + 1]map[string]string
	closed  bool
	stats   Stats
}

var _ strategy.CSSVariableWriter = (*Batcher)(nil)

// NewBatcher creates a batcher writing to sink.
func NewBatcher(sink Sink, logger hclog.Logger) *Batcher {
	b := &Batcher{
		logger: logger.Named("cssvars"),
		sink:   sink,
	}
	for i := range b.pending {
		b.pending[i] = make(map[string]string)
	}
	return b
}

// SetVariables queues vars at priority.
func (b *Batcher) SetVariables(vars map[string]string, priority strategy.Priority) error {
	if priority < strategy.PriorityNormal || priority > strategy.PriorityCritical {
		return fmt.Errorf("unknown priority %d", priority)
	}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return ErrSinkClosed
	}
	for name, value := range vars {
		for p := range b.pending {
			if _, ok := b.pending[p][name]; ok {
				delete(b.pending[p], name)
				b.stats.Coalesced++
			}
		}
		b.pending[priority][name] = value
	}
	b.stats.Writes++
	b.mu.Unlock()

	if priority == strategy.PriorityCritical {
		return b.Flush()
	}
	return nil
}

// Pending returns the number of queued variables.
func (b *Batcher) Pending() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := 0
	for _, m := range b.pending {
		n += len(m)
	}
	return n
}

// Flush applies queued writes in priority order, one sink call per priority level.
func (b *Batcher) Flush() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.flushLocked()
}

func (b *Batcher) flushLocked() error {
	var errs []error
	for p := strategy.PriorityCritical; p >= strategy.PriorityNormal; p-- {
		batch := b.pending[p]
		if len(batch) == 0 {
			continue
		}
		b.pending[p] = make(map[string]string)
		if err := b.sink.Apply(maps.Clone(batch)); err != nil {
			b.stats.Failures++
			errs = append(errs, fmt.Errorf("apply %s batch: %w", p, err))
			continue
		}
		b.logger.Trace("flushed", "priority", p.String(), "count", len(batch))
	}
	b.stats.Flushes++
	return errors.Join(errs...)
}

// Run flushes every interval until ctx is done, then flushes once more.
func (b *Batcher) Run(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			if err := b.Flush(); err != nil {
				b.logger.Warn("final flush failed", "error", err)
			}
			return ctx.Err()
		case <-ticker.C:
			if err := b.Flush(); err != nil {
				b.logger.Warn("flush failed", "error", err)
			}
		}
	}
}

// Stats returns a snapshot of the counters.
func (b *Batcher) Stats() Stats {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.stats
}

// Close flushes pending writes and closes the sink. Later writes fail with
// ErrSinkClosed.
func (b *Batcher) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	flushErr := b.flushLocked()
	return errors.Join(flushErr, b.sink.Close())
}
