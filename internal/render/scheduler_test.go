package render

import (
	"testing"
	"time"

	"github.com/hashicorp/go-hclog"
)

var epoch = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

func TestSchedulerThrottlesPerSubscriber(t *testing.T) {
	s := NewScheduler(hclog.NewNullLogger())

	var fast, slow int
	s.Subscribe("fast", 10*time.Millisecond, func(Frame) bool { fast++; return true })
	s.Subscribe("slow", 50*time.Millisecond, func(Frame) bool { slow++; return true })

	for ms := range 200 {
		s.Tick(epoch.Add(time.Duration(ms) * time.Millisecond))
	}

	if fast < 18 || fast > 20 {
		t.Errorf("fast subscriber ran %d times in 200ms at 10ms, want ~20", fast)
	}
	if slow < 3 || slow > 4 {
		t.Errorf("slow subscriber ran %d times in 200ms at 50ms, want ~4", slow)
	}
}

func TestSchedulerDelta(t *testing.T) {
	s := NewScheduler(hclog.NewNullLogger())

	var frames []Frame
	s.Subscribe("probe", 10*time.Millisecond, func(f Frame) bool {
		frames = append(frames, f)
		return true
	})

	s.Tick(epoch)
	s.Tick(epoch.Add(20 * time.Millisecond))
	s.Tick(epoch.Add(45 * time.Millisecond))

	if len(frames) != 3 {
		t.Fatalf("got %d frames, want 3", len(frames))
	}
	if frames[0].Delta != 0 {
		t.Errorf("first delta = %v, want 0", frames[0].Delta)
	}
	if frames[1].Delta != 20*time.Millisecond {
		t.Errorf("second delta = %v, want 20ms", frames[1].Delta)
	}
	if frames[2].Elapsed != 45*time.Millisecond {
		t.Errorf("elapsed = %v, want 45ms", frames[2].Elapsed)
	}
	if frames[2].Seq != 2 {
		t.Errorf("seq = %d, want 2", frames[2].Seq)
	}
}

func TestSchedulerCancel(t *testing.T) {
	s := NewScheduler(hclog.NewNullLogger())

	calls := 0
	sub := s.Subscribe("cancelled", time.Millisecond, func(Frame) bool { calls++; return true })
	s.Tick(epoch)
	sub.Cancel()
	s.Tick(epoch.Add(time.Second))

	if calls != 1 {
		t.Errorf("callback ran %d times, want 1", calls)
	}
	if sub.Active() {
		t.Error("subscription still active after Cancel")
	}
	if s.Len() != 0 {
		t.Errorf("scheduler has %d subscriptions, want 0", s.Len())
	}
}

func TestSchedulerCallbackCanUnsubscribe(t *testing.T) {
	s := NewScheduler(hclog.NewNullLogger())

	calls := 0
	s.Subscribe("once", time.Millisecond, func(Frame) bool { calls++; return false })
	for ms := range 10 {
		s.Tick(epoch.Add(time.Duration(ms) * 10 * time.Millisecond))
	}

	if calls != 1 {
		t.Errorf("callback ran %d times, want 1", calls)
	}
	if s.Len() != 0 {
		t.Errorf("scheduler has %d subscriptions, want 0", s.Len())
	}
}
