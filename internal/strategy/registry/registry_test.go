package registry

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmylchreest/backdrop/internal/events"
	"github.com/jmylchreest/backdrop/internal/strategy"
)

type fakeStrategy struct {
	name      string
	desc      *strategy.Descriptor
	health    strategy.HealthReport
	healthErr error
	panics    bool
	destroyed atomic.Int32
}

func (f *fakeStrategy) Name() string                         { return f.name }
func (f *fakeStrategy) CanProcess(strategy.ColorContext) bool { return true }
func (f *fakeStrategy) EstimatedProcessingTime(strategy.ColorContext) time.Duration {
	return time.Millisecond
}

func (f *fakeStrategy) ProcessColors(_ context.Context, cc strategy.ColorContext) strategy.ColorResult {
	return strategy.SolidResult(f.name, cc, strategy.AccentOrFallback(cc))
}

func (f *fakeStrategy) Describe() strategy.Descriptor {
	if f.desc != nil {
		return *f.desc
	}
	return Infer(f.name)
}

func (f *fakeStrategy) HealthCheck(context.Context) (strategy.HealthReport, error) {
	if f.panics {
		panic("probe exploded")
	}
	return f.health, f.healthErr
}

func (f *fakeStrategy) Destroy() { f.destroyed.Add(1) }

func withPriority(name string, priority int) *fakeStrategy {
	return &fakeStrategy{
		name:   name,
		health: strategy.HealthReport{Healthy: true},
		desc: &strategy.Descriptor{
			Category:     strategy.CategoryFoundation,
			Priority:     priority,
			MemoryImpact: strategy.ImpactLow,
		},
	}
}

type clock struct{ now time.Time }

func (c *clock) Now() time.Time          { return c.now }
func (c *clock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func newTestRegistry(t *testing.T) (*Registry, *clock) {
	t.Helper()
	c := &clock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
	r := New(hclog.NewNullLogger(), Options{Now: c.Now, ReprobeAfter: 5 * time.Minute})
	t.Cleanup(r.Destroy)
	return r, c
}

func highCriteria() strategy.Criteria {
	return strategy.Criteria{
		Performance: strategy.TierHigh,
		Quality:     strategy.TierHigh,
		Device:      strategy.DeviceSnapshot{WebGL: true, MemoryGB: 16, Tier: strategy.TierHigh},
	}
}

func TestRegisterReplacesDuplicate(t *testing.T) {
	r, _ := newTestRegistry(t)

	first := withPriority("living-gradient", 1)
	second := withPriority("living-gradient", 9)
	r.Register(first)
	r.Register(second)

	assert.Equal(t, 1, r.Len())
	got, ok := r.Get("living-gradient")
	require.True(t, ok)
	assert.Same(t, second, got)
	assert.Equal(t, int32(1), first.destroyed.Load(), "replaced strategy should be destroyed")

	reg, _ := r.Registration("living-gradient")
	assert.Equal(t, 9, reg.Descriptor.Priority)
}

func TestSelectStrategyNeverReturnsUnhealthy(t *testing.T) {
	r, _ := newTestRegistry(t)

	best := withPriority("best", 9)
	other := withPriority("other", 1)
	r.Register(best)
	r.Register(other)

	for range MinUsesForHealth {
		r.RecordUsage("best")
		r.RecordError("best", errors.New("boom"))
	}

	for range 20 {
		s, err := r.SelectStrategy(highCriteria())
		require.NoError(t, err)
		assert.Equal(t, "other", s.Name())
	}

	r.RecordUsage("other")
	for range MinUsesForHealth {
		r.RecordUsage("other")
		r.RecordError("other", nil)
	}
	_, err := r.SelectStrategy(highCriteria())
	assert.ErrorIs(t, err, ErrNoHealthyStrategy)
}

func TestHealthThreshold(t *testing.T) {
	tests := []struct {
		name    string
		uses    int
		errs    int
		healthy bool
	}{
		{"too few uses all failing", MinUsesForHealth - 1, MinUsesForHealth - 1, true},
		{"exactly half failing", 6, 3, true},
		{"minimum uses majority failing", 5, 3, false},
		{"many uses majority failing", 20, 11, false},
		{"no errors", 50, 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, _ := newTestRegistry(t)
			r.Register(withPriority("s", 1))

			for i := range tt.uses {
				r.RecordUsage("s")
				if i >= tt.uses-tt.errs {
					r.RecordError("s", nil)
				}
			}
			reg, _ := r.Registration("s")
			assert.Equal(t, tt.healthy, reg.Healthy)
		})
	}
}

func TestHealthNeverFlipsBeforeMinimumUses(t *testing.T) {
	r, _ := newTestRegistry(t)
	r.Register(withPriority("s", 1))

	for range 100 {
		r.RecordError("s", nil)
	}
	for range MinUsesForHealth - 1 {
		r.RecordUsage("s")
	}
	reg, _ := r.Registration("s")
	assert.True(t, reg.Healthy)

	r.RecordUsage("s")
	reg, _ = r.Registration("s")
	assert.False(t, reg.Healthy)
}

func TestScoreMonotonicInPriority(t *testing.T) {
	criteria := []strategy.Criteria{
		highCriteria(),
		{Performance: strategy.TierLow, Quality: strategy.TierLow, Device: strategy.DeviceSnapshot{Mobile: true, MemoryGB: 2}},
		{Performance: strategy.TierMedium, Quality: strategy.TierMedium},
	}
	now := time.Now()

	for _, c := range criteria {
		prev := -1.0
		for p := range 10 {
			reg := Registration{
				Name:       "s",
				Descriptor: strategy.Descriptor{Category: strategy.CategoryAccent, Priority: p, MemoryImpact: strategy.ImpactHigh},
				UsageCount: 4,
				ErrorCount: 1,
			}
			s := Score(reg, c, now)
			assert.GreaterOrEqual(t, s, prev, "priority %d under %+v", p, c)
			prev = s
		}
	}
}

func TestScoreComponents(t *testing.T) {
	now := time.Now()
	base := Registration{Descriptor: strategy.Descriptor{
		Category:     strategy.CategoryEffects,
		Priority:     4,
		MemoryImpact: strategy.ImpactHigh,
		Requirements: []string{strategy.RequiresWebGL},
	}}

	// 40 priority - 10 high memory + 20 effects + 15 webgl
	assert.InDelta(t, 65, Score(base, highCriteria(), now), 1e-9)

	noGL := highCriteria()
	noGL.Device.WebGL = false
	// 40 - 10 + 20 - 50
	assert.InDelta(t, 0, Score(base, noGL, now), 1e-9, "score is floored at zero")

	recent := base
	recent.LastUsed = now.Add(-time.Minute)
	assert.InDelta(t, 70, Score(recent, highCriteria(), now), 1e-9)

	unreliable := base
	unreliable.UsageCount = 10
	unreliable.ErrorCount = 5
	assert.InDelta(t, 50, Score(unreliable, highCriteria(), now), 1e-9)

	lowMem := highCriteria()
	lowMem.Device.MemoryGB = 2
	assert.InDelta(t, 45, Score(base, lowMem, now), 1e-9)
}

func TestSelectMultipleStrategies(t *testing.T) {
	r, _ := newTestRegistry(t)
	for i, name := range []string{"a", "b", "c", "d"} {
		r.Register(withPriority(name, i))
	}

	got := r.SelectMultipleStrategies(highCriteria(), 3)
	require.Len(t, got, 3)
	assert.Equal(t, "d", got[0].Name())
	assert.Equal(t, "c", got[1].Name())
	assert.Equal(t, "b", got[2].Name())

	c := highCriteria()
	c.Allowed = []string{"a"}
	got = r.SelectMultipleStrategies(c, 3)
	require.Len(t, got, 1)
	assert.Equal(t, "a", got[0].Name())
}

func TestRecordProcessingTimeRunningMean(t *testing.T) {
	r, _ := newTestRegistry(t)
	r.Register(withPriority("s", 1))

	for _, d := range []time.Duration{10, 20, 30, 40} {
		r.RecordProcessingTime("s", d*time.Millisecond)
	}
	reg, _ := r.Registration("s")
	assert.Equal(t, 25*time.Millisecond, reg.AvgProcessingTime)
	assert.Equal(t, 4, reg.TimedSamples)
}

func TestCheckHealthAdoptsVerdict(t *testing.T) {
	bus := events.NewBus()
	defer bus.Close()
	ch := make(chan events.Event, 8)
	require.NoError(t, bus.Subscribe("test", ch, events.KindHealthChanged))

	c := &clock{now: time.Now()}
	r := New(hclog.NewNullLogger(), Options{Now: c.Now, Events: bus})
	defer r.Destroy()

	sick := withPriority("sick", 1)
	sick.health = strategy.HealthReport{Healthy: false, Issues: []string{"gpu handles leaked"}}
	failing := withPriority("failing", 1)
	failing.healthErr = errors.New("probe failed")
	panicky := withPriority("panicky", 1)
	panicky.panics = true
	fine := withPriority("fine", 1)
	for _, s := range []*fakeStrategy{sick, failing, panicky, fine} {
		r.Register(s)
	}

	r.CheckHealth(context.Background())

	for name, want := range map[string]bool{"sick": false, "failing": false, "panicky": false, "fine": true} {
		reg, _ := r.Registration(name)
		assert.Equal(t, want, reg.Healthy, name)
	}
	assert.Len(t, ch, 3)

	sick.health = strategy.HealthReport{Healthy: true}
	r.CheckHealth(context.Background())
	reg, _ := r.Registration("sick")
	assert.True(t, reg.Healthy, "a passing check clears a check-induced failure")
}

func TestErrorRateFailureIsNotClearedByHealthCheck(t *testing.T) {
	r, c := newTestRegistry(t)
	r.Register(withPriority("s", 1))
	for range MinUsesForHealth {
		r.RecordUsage("s")
		r.RecordError("s", nil)
	}

	c.Advance(time.Minute)
	r.CheckHealth(context.Background())
	reg, _ := r.Registration("s")
	assert.False(t, reg.Healthy)
}

func TestReprobeRestoresEligibility(t *testing.T) {
	r, c := newTestRegistry(t)
	r.Register(withPriority("s", 1))
	for range MinUsesForHealth {
		r.RecordUsage("s")
		r.RecordError("s", nil)
	}
	_, err := r.SelectStrategy(highCriteria())
	require.ErrorIs(t, err, ErrNoHealthyStrategy)

	c.Advance(5 * time.Minute)
	r.CheckHealth(context.Background())

	reg, _ := r.Registration("s")
	assert.True(t, reg.Healthy)
	assert.Zero(t, reg.UsageCount)
	assert.Zero(t, reg.ErrorCount)
	assert.Equal(t, 1, reg.Probations)

	s, err := r.SelectStrategy(highCriteria())
	require.NoError(t, err)
	assert.Equal(t, "s", s.Name())
}

func TestDestroyClearsAndDestroys(t *testing.T) {
	r := New(hclog.NewNullLogger(), Options{HealthInterval: time.Millisecond})
	a := withPriority("a", 1)
	b := withPriority("b", 1)
	r.Register(a)
	r.Register(b)
	r.Start(context.Background())

	r.Destroy()

	assert.Zero(t, r.Len())
	assert.Equal(t, int32(1), a.destroyed.Load())
	assert.Equal(t, int32(1), b.destroyed.Load())
}

func TestUnregister(t *testing.T) {
	r, _ := newTestRegistry(t)
	s := withPriority("s", 1)
	r.Register(s)

	assert.True(t, r.Unregister("s"))
	assert.False(t, r.Unregister("s"))
	assert.Equal(t, int32(1), s.destroyed.Load())
	_, ok := r.Get("s")
	assert.False(t, ok)
}
