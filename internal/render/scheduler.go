package render

import (
	"context"
	"sync"
	"time"

	"github.com/hashicorp/go-hclog"
	"golang.org/x/time/rate"
)

// Frame is delivered to every subscriber on each of its throttled ticks.
type Frame struct {
	Now     time.Time
	Delta   time.Duration // since this subscriber's previous frame; 0 on the first
	Elapsed time.Duration // since the subscription was created
	Seq     uint64
}

// FrameFunc reacts to a frame. Returning false cancels the subscription.
type FrameFunc func(f Frame) bool

// Scheduler is the single frame clock shared by every animated strategy. Each
// subscriber is throttled to its own target interval.
type Scheduler struct {
	logger hclog.Logger

	mu     sync.Mutex
	subs   map[uint64]*Subscription
	nextID uint64
	now    func() time.Time
}

// Subscription is a registered frame callback.
type Subscription struct {
	id       uint64
	name     string
	interval time.Duration
	fn       FrameFunc
	limiter  *rate.Limiter
	sched    *Scheduler

	// mu is held while the callback runs so Cancel can wait for it.
	mu        sync.Mutex
	cancelled bool
	created   time.Time
	last      time.Time
	seq       uint64
}

// NewScheduler creates an idle scheduler.
func NewScheduler(logger hclog.Logger) *Scheduler {
	return &Scheduler{
		logger: logger.Named("scheduler"),
		subs:   make(map[uint64]*Subscription),
		now:    time.Now,
	}
}

// Subscribe registers fn to run at most once per interval. The first frame is
// delivered on the next tick.
func (s *Scheduler) Subscribe(name string, interval time.Duration, fn FrameFunc) *Subscription {
	if interval <= 0 {
		interval = time.Millisecond
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextID++
	sub := &Subscription{
		id:       s.nextID,
		name:     name,
		interval: interval,
		fn:       fn,
		limiter:  rate.NewLimiter(rate.Every(interval), 1),
		sched:    s,
	}
	s.subs[sub.id] = sub
	s.logger.Debug("subscribed", "name", name, "interval", interval)
	return sub
}

// Name returns the subscriber name.
func (sub *Subscription) Name() string { return sub.name }

// Interval returns the target frame interval.
func (sub *Subscription) Interval() time.Duration { return sub.interval }

// Cancel removes the subscription. When called outside the callback it waits for
// an in-flight callback to finish, so no frame is delivered after it returns.
// Inside a callback, return false instead.
func (sub *Subscription) Cancel() {
	sub.sched.remove(sub.id)
	sub.mu.Lock()
	sub.cancelled = true
	sub.mu.Unlock()
}

// Active reports whether the subscription still receives frames.
func (sub *Subscription) Active() bool {
	sub.mu.Lock()
	defer sub.mu.Unlock()
	return !sub.cancelled
}

func (s *Scheduler) remove(id uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sub, ok := s.subs[id]; ok {
		delete(s.subs, id)
		s.logger.Debug("unsubscribed", "name", sub.name)
	}
}

// Len returns the number of active subscriptions.
func (s *Scheduler) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.subs)
}

// Tick delivers a frame at now to every subscriber whose interval has elapsed and
// returns how many callbacks ran.
func (s *Scheduler) Tick(now time.Time) int {
	s.mu.Lock()
	subs := make([]*Subscription, 0, len(s.subs))
	for _, sub := range s.subs {
		subs = append(subs, sub)
	}
	s.mu.Unlock()

	ran := 0
	for _, sub := range subs {
		if sub.deliver(now) {
			ran++
		}
	}
	return ran
}

func (sub *Subscription) deliver(now time.Time) bool {
	sub.mu.Lock()
	defer sub.mu.Unlock()

	if sub.cancelled {
		return false
	}
	if sub.created.IsZero() {
		sub.created = now
	}
	if !sub.limiter.AllowN(now, 1) {
		return false
	}

	f := Frame{Now: now, Elapsed: now.Sub(sub.created), Seq: sub.seq}
	if !sub.last.IsZero() {
		f.Delta = now.Sub(sub.last)
	}
	sub.last = now
	sub.seq++

	if !sub.fn(f) {
		sub.cancelled = true
		sub.sched.remove(sub.id)
	}
	return true
}

// Run ticks the scheduler every resolution until ctx is done.
func (s *Scheduler) Run(ctx context.Context, resolution time.Duration) error {
	if resolution <= 0 {
		resolution = 4 * time.Millisecond
	}
	ticker := time.NewTicker(resolution)
	defer ticker.Stop()

	s.logger.Debug("frame clock started", "resolution", resolution)
	for {
		select {
		case <-ctx.Done():
			s.logger.Debug("frame clock stopped")
			return ctx.Err()
		case <-ticker.C:
			s.Tick(s.now())
		}
	}
}
