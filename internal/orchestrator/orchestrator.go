// Package orchestrator turns incoming colour contexts into results. Contexts
// are processed one at a time in arrival order: the selector picks eligible
// strategy types, the registry ranks the healthy instances, and the chosen
// strategies run under a per-invocation deadline.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-hclog"

	"github.com/jmylchreest/backdrop/internal/events"
	"github.com/jmylchreest/backdrop/internal/strategy"
	"github.com/jmylchreest/backdrop/internal/strategy/registry"
	"github.com/jmylchreest/backdrop/internal/strategy/selector"
)

var (
	// ErrClosed is returned for work submitted after Close.
	ErrClosed = errors.New("orchestrator closed")
	// ErrStrategyTimeout is recorded when a strategy misses its deadline.
	ErrStrategyTimeout = errors.New("strategy timed out")
	// ErrStrategyPanic is recorded when a strategy panics.
	ErrStrategyPanic = errors.New("strategy panicked")
)

const (
	DefaultStrategyTimeout = 2 * time.Second
	DefaultMaxStrategies   = 3
)

// Recorder persists results. The journal implements it.
type Recorder interface {
	Record(ctx context.Context, job uuid.UUID, trackURI string, r strategy.ColorResult) error
}

// Options configures an Orchestrator.
type Options struct {
	Events          events.Publisher
	Recorder        Recorder
	StrategyTimeout time.Duration
	MaxStrategies   int
}

// Outcome is the result of one job.
type Outcome struct {
	JobID  uuid.UUID
	Result strategy.ColorResult
}

type job struct {
	id       uuid.UUID
	cc       strategy.ColorContext
	criteria *strategy.Criteria
	queued   time.Time
	done     chan Outcome
}

// Orchestrator owns the processing queue.
type Orchestrator struct {
	logger   hclog.Logger
	selector *selector.Selector
	registry *registry.Registry
	opts     Options

	mu         sync.Mutex
	queue      []*job
	processing bool
	closed     bool
	drained    *sync.Cond
	processed  uint64
}

// New creates an orchestrator over the given selector and registry.
func New(logger hclog.Logger, sel *selector.Selector, reg *registry.Registry, opts Options) *Orchestrator {
	if opts.Events == nil {
		opts.Events = events.Discard
	}
	if opts.StrategyTimeout <= 0 {
		opts.StrategyTimeout = DefaultStrategyTimeout
	}
	if opts.MaxStrategies <= 0 {
		opts.MaxStrategies = DefaultMaxStrategies
	}
	o := &Orchestrator{
		logger:   logger.Named("orchestrator"),
		selector: sel,
		registry: reg,
		opts:     opts,
	}
	o.drained = sync.NewCond(&o.mu)
	return o
}

// Submit queues cc for processing and returns immediately. The result is
// delivered as a ColorsHarmonized event.
func (o *Orchestrator) Submit(cc strategy.ColorContext, criteria *strategy.Criteria) (uuid.UUID, error) {
	j, err := o.enqueue(cc, criteria, nil)
	if err != nil {
		return uuid.Nil, err
	}
	return j.id, nil
}

// Process queues cc and waits for its result. Cancelling ctx stops the wait but
// not the job.
func (o *Orchestrator) Process(ctx context.Context, cc strategy.ColorContext, criteria *strategy.Criteria) (strategy.ColorResult, error) {
	j, err := o.enqueue(cc, criteria, make(chan Outcome, 1))
	if err != nil {
		return strategy.ColorResult{}, err
	}
	select {
	case out, ok := <-j.done:
		if !ok {
			return strategy.ColorResult{}, ErrClosed
		}
		return out.Result, nil
	case <-ctx.Done():
		return strategy.ColorResult{}, ctx.Err()
	}
}

func (o *Orchestrator) enqueue(cc strategy.ColorContext, criteria *strategy.Criteria, done chan Outcome) (*job, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return nil, ErrClosed
	}
	j := &job{id: uuid.New(), cc: cc, criteria: criteria, queued: time.Now(), done: done}
	o.queue = append(o.queue, j)
	o.logger.Debug("context queued", "job", j.id, "track", cc.TrackURI(), "depth", len(o.queue))
	if !o.processing {
		o.processing = true
		go o.drain()
	}
	return j, nil
}

// drain processes the queue until it is empty. Only one drain runs at a time.
func (o *Orchestrator) drain() {
	for {
		o.mu.Lock()
		if len(o.queue) == 0 || o.closed {
			o.processing = false
			o.drained.Broadcast()
			o.mu.Unlock()
			return
		}
		j := o.queue[0]
		o.queue[0] = nil
		o.queue = o.queue[1:]
		o.mu.Unlock()

		r := o.run(j)

		o.mu.Lock()
		o.processed++
		o.mu.Unlock()
		if j.done != nil {
			j.done <- Outcome{JobID: j.id, Result: r}
			close(j.done)
		}
	}
}

// run processes one job and always returns a usable result.
func (o *Orchestrator) run(j *job) strategy.ColorResult {
	ctx := context.Background()
	start := time.Now()

	sel := o.selector.Select(ctx, j.cc, j.criteria)
	c := sel.Criteria.Criteria
	c.Allowed = sel.Names()

	var result strategy.ColorResult
	switch chosen := o.choose(c); {
	case len(c.Allowed) == 0:
		result = strategy.StaticFallback("no strategy selected")
	case len(chosen) == 0:
		result = strategy.StaticFallback(registry.ErrNoHealthyStrategy.Error())
	default:
		result = o.runStrategies(ctx, chosen, j.cc)
	}
	if result.Metadata.ProcessingTimeMs == 0 {
		result.Metadata.SetProcessingTime(time.Since(start))
	}

	o.logger.Info("colours processed",
		"job", j.id,
		"track", j.cc.TrackURI(),
		"strategy", result.Metadata.Strategy,
		"contributors", result.Metadata.Contributors,
		"fallback", result.Metadata.FallbackMode,
		"duration", result.Metadata.ProcessingTime(),
		"waited", start.Sub(j.queued))

	if err := o.opts.Events.Publish(events.ColorsHarmonized{
		TrackURI:     j.cc.TrackURI(),
		Result:       result,
		Contributors: result.Metadata.Contributors,
	}); err != nil {
		o.logger.Debug("result event dropped", "error", err)
	}
	if o.opts.Recorder != nil {
		if err := o.opts.Recorder.Record(ctx, j.id, j.cc.TrackURI(), result); err != nil {
			o.logger.Warn("failed to record result", "job", j.id, "error", err)
		}
	}
	return result
}

func (o *Orchestrator) choose(c strategy.Criteria) []strategy.Strategy {
	if len(c.Allowed) == 0 {
		return nil
	}
	return o.registry.SelectMultipleStrategies(c, o.opts.MaxStrategies)
}

// runStrategies invokes each chosen strategy in rank order and merges the
// results. A strategy that panics or times out is excluded from the merge.
func (o *Orchestrator) runStrategies(ctx context.Context, chosen []strategy.Strategy, cc strategy.ColorContext) strategy.ColorResult {
	results := make([]strategy.ColorResult, 0, len(chosen))
	var failures []error
	for _, s := range chosen {
		name := s.Name()
		o.registry.RecordUsage(name)

		begin := time.Now()
		r, err := o.invoke(ctx, s, cc)
		o.registry.RecordProcessingTime(name, time.Since(begin))

		switch {
		case err != nil:
			o.registry.RecordError(name, err)
			failures = append(failures, fmt.Errorf("%s: %w", name, err))
			o.logger.Warn("strategy failed", "strategy", name, "error", err)
			continue
		case r.Failed():
			o.registry.RecordError(name, errors.New(r.Metadata.Error))
			o.logger.Debug("strategy degraded", "strategy", name, "error", r.Metadata.Error, "fallback", r.Metadata.FallbackMode)
		}
		if r.Metadata.Strategy == "" {
			r.Metadata.Strategy = name
		}
		results = append(results, r)
	}

	if len(results) == 0 {
		return strategy.StaticFallback(errors.Join(failures...).Error())
	}
	return Merge(results)
}

// invoke runs one strategy with a deadline and converts panics into errors.
// A strategy that ignores its context keeps running in the background after
// the deadline; its result is discarded.
func (o *Orchestrator) invoke(ctx context.Context, s strategy.Strategy, cc strategy.ColorContext) (strategy.ColorResult, error) {
	ctx, cancel := context.WithTimeout(ctx, o.opts.StrategyTimeout)
	defer cancel()

	type outcome struct {
		r   strategy.ColorResult
		err error
	}
	ch := make(chan outcome, 1)
	go func() {
		defer func() {
			if p := recover(); p != nil {
				ch <- outcome{err: fmt.Errorf("%w: %v", ErrStrategyPanic, p)}
			}
		}()
		ch <- outcome{r: s.ProcessColors(ctx, cc)}
	}()

	select {
	case out := <-ch:
		return out.r, out.err
	case <-ctx.Done():
		return strategy.ColorResult{}, fmt.Errorf("%w after %s", ErrStrategyTimeout, o.opts.StrategyTimeout)
	}
}

// OnMusic forwards a music signal to every registered listener.
func (o *Orchestrator) OnMusic(signal strategy.MusicSignal) {
	if signal.At.IsZero() {
		signal.At = time.Now()
	}
	n := 0
	for _, reg := range o.registry.Registrations() {
		if l, ok := reg.Strategy.(strategy.MusicListener); ok && reg.Healthy {
			l.OnMusic(signal)
			n++
		}
	}
	o.logger.Trace("music signal forwarded", "listeners", n, "energy", signal.Energy)
	if err := o.opts.Events.Publish(events.MusicBeat{Signal: signal}); err != nil {
		o.logger.Debug("music event dropped", "error", err)
	}
}

// Pending returns the number of queued jobs, excluding the one in progress.
func (o *Orchestrator) Pending() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.queue)
}

// Processed returns the number of completed jobs.
func (o *Orchestrator) Processed() uint64 {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.processed
}

// Wait blocks until the queue is empty and no job is in progress.
func (o *Orchestrator) Wait() {
	o.mu.Lock()
	defer o.mu.Unlock()
	for o.processing {
		o.drained.Wait()
	}
}

// Close rejects new work, abandons queued jobs and waits for the job in
// progress to finish.
func (o *Orchestrator) Close() error {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return nil
	}
	o.closed = true
	pending := o.queue
	o.queue = nil
	for o.processing {
		o.drained.Wait()
	}
	o.mu.Unlock()

	for _, j := range pending {
		if j.done != nil {
			close(j.done)
		}
	}
	if len(pending) > 0 {
		o.logger.Debug("abandoned queued contexts", "count", len(pending))
	}
	return nil
}
