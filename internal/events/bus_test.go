package events

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmylchreest/backdrop/internal/strategy"
)

func TestPublishFansOut(t *testing.T) {
	bus := NewBus()
	defer bus.Close()

	a := make(chan Event, 4)
	b := make(chan Event, 4)
	require.NoError(t, bus.Subscribe("a", a))
	require.NoError(t, bus.Subscribe("b", b))

	require.NoError(t, bus.Publish(HealthChanged{Strategy: "flow-gradient", Healthy: false}))

	evA := <-a
	evB := <-b
	assert.Equal(t, KindHealthChanged, evA.Kind())
	assert.Equal(t, evA.ID, evB.ID)

	hc, ok := evA.Payload.(HealthChanged)
	require.True(t, ok)
	assert.Equal(t, "flow-gradient", hc.Strategy)
}

func TestPublishDropsForFullSubscribers(t *testing.T) {
	bus := NewBus()
	defer bus.Close()

	slow := make(chan Event, 1)
	require.NoError(t, bus.Subscribe("slow", slow))

	for range 3 {
		require.NoError(t, bus.Publish(MusicBeat{Signal: strategy.MusicSignal{Energy: 0.9}}))
	}

	st := bus.Stats()
	assert.Equal(t, uint64(3), st.Published)
	assert.Equal(t, uint64(1), st.Subscribers["slow"].Sent)
	assert.Equal(t, uint64(2), st.Subscribers["slow"].Dropped)
}

func TestSubscribeFiltersKinds(t *testing.T) {
	bus := NewBus()
	defer bus.Close()

	ch := make(chan Event, 4)
	require.NoError(t, bus.Subscribe("fallbacks", ch, KindFallbackActivated))

	require.NoError(t, bus.Publish(SettingsChanged{Keys: []string{"intensity"}}))
	require.NoError(t, bus.Publish(FallbackActivated{Strategy: "flow-gradient", Mode: strategy.FallbackCSSGradient}))

	require.Len(t, ch, 1)
	assert.Equal(t, KindFallbackActivated, (<-ch).Kind())
}

func TestSubscriberErrors(t *testing.T) {
	bus := NewBus()
	ch := make(chan Event)

	require.NoError(t, bus.Subscribe("x", ch))
	assert.True(t, errors.Is(bus.Subscribe("x", ch), ErrSubscriberExists))
	assert.True(t, errors.Is(bus.Unsubscribe("y"), ErrSubscriberNotFound))

	require.NoError(t, bus.Close())
	assert.True(t, errors.Is(bus.Publish(SettingsChanged{}), ErrBusClosed))
	assert.True(t, errors.Is(bus.Subscribe("z", ch), ErrBusClosed))
}
