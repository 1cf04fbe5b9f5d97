package events

import (
	"errors"
	"slices"
	"sync"
	"sync/atomic"
)

var (
	// ErrBusClosed is returned for operations on a closed bus.
	ErrBusClosed = errors.New("event bus closed")

	// ErrSubscriberExists is returned when Subscribe reuses an id.
	ErrSubscriberExists = errors.New("subscriber id already exists")

	// ErrSubscriberNotFound is returned when Unsubscribe is given an unknown id.
	ErrSubscriberNotFound = errors.New("subscriber id not found")
)

// Publisher is the narrow interface components emit through.
type Publisher interface {
	Publish(p Payload) error
}

// Discard is a Publisher that drops everything.
var Discard Publisher = discard{}

type discard struct{}

func (discard) Publish(Payload) error { return nil }

// Stats holds bus counters.
type Stats struct {
	Published   uint64                     `json:"published"`
	Sent        uint64                     `json:"sent"`
	Dropped     uint64                     `json:"dropped"`
	Subscribers map[string]SubscriberStats `json:"subscribers"`
}

// SubscriberStats holds per-subscriber counters.
type SubscriberStats struct {
	Sent    uint64 `json:"sent"`
	Dropped uint64 `json:"dropped"`
}

type subscriber struct {
	ch      chan<- Event
	kinds   []Kind
	sent    atomic.Uint64
	dropped atomic.Uint64
}

func (s *subscriber) wants(k Kind) bool {
	return len(s.kinds) == 0 || slices.Contains(s.kinds, k)
}

// Bus fans events out to subscriber channels. Publish never blocks: an event is
// dropped for any subscriber whose channel is full.
type Bus struct {
	mu        sync.RWMutex
	subs      map[string]*subscriber
	closed    bool
	published atomic.Uint64
}

var _ Publisher = (*Bus)(nil)

// NewBus creates an empty bus.
func NewBus() *Bus {
	return &Bus{subs: make(map[string]*subscriber)}
}

// Subscribe registers ch for the given kinds, or for every kind when none are given.
func (b *Bus) Subscribe(id string, ch chan<- Event, kinds ...Kind) error {
	if ch == nil {
		return errors.New("subscriber channel cannot be nil")
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return ErrBusClosed
	}
	if _, ok := b.subs[id]; ok {
		return ErrSubscriberExists
	}
	b.subs[id] = &subscriber{ch: ch, kinds: kinds}
	return nil
}

// Unsubscribe removes a subscriber.
func (b *Bus) Unsubscribe(id string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return ErrBusClosed
	}
	if _, ok := b.subs[id]; !ok {
		return ErrSubscriberNotFound
	}
	delete(b.subs, id)
	return nil
}

// Publish stamps p and offers it to every interested subscriber.
func (b *Bus) Publish(p Payload) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return ErrBusClosed
	}

	b.published.Add(1)
	ev := New(p)
	for _, s := range b.subs {
		if !s.wants(p.Kind()) {
			continue
		}
		select {
		case s.ch <- ev:
			s.sent.Add(1)
		default:
			s.dropped.Add(1)
		}
	}
	return nil
}

// Stats returns a snapshot of the counters.
func (b *Bus) Stats() Stats {
	b.mu.RLock()
	defer b.mu.RUnlock()

	st := Stats{
		Published:   b.published.Load(),
		Subscribers: make(map[string]SubscriberStats, len(b.subs)),
	}
	for id, s := range b.subs {
		ss := SubscriberStats{Sent: s.sent.Load(), Dropped: s.dropped.Load()}
		st.Subscribers[id] = ss
		st.Sent += ss.Sent
		st.Dropped += ss.Dropped
	}
	return st
}

// Close stops the bus. Subscriber channels are not closed; they belong to the caller.
func (b *Bus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return ErrBusClosed
	}
	b.closed = true
	b.subs = nil
	return nil
}
