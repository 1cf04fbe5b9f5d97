// Package events defines the closed set of notifications exchanged with the
// outside world and a non-blocking bus that fans them out.
package events

import (
	"time"

	"github.com/google/uuid"

	"github.com/jmylchreest/backdrop/internal/strategy"
)

// Kind tags a payload variant.
type Kind string

const (
	KindColorsHarmonized   Kind = "colors-harmonized"
	KindMusicBeat          Kind = "music-beat"
	KindStrategiesSelected Kind = "strategies-selected"
	KindHealthChanged      Kind = "health-changed"
	KindFallbackActivated  Kind = "fallback-activated"
	KindSettingsChanged    Kind = "settings-changed"
)

// Payload is implemented only by the types in this package.
type Payload interface {
	Kind() Kind
	sealed()
}

// Event wraps a payload with an id and timestamp.
type Event struct {
	ID      uuid.UUID `json:"id"`
	At      time.Time `json:"at"`
	Payload Payload   `json:"payload"`
}

// New stamps a payload.
func New(p Payload) Event {
	return Event{ID: uuid.New(), At: time.Now(), Payload: p}
}

// Kind returns the payload kind.
func (e Event) Kind() Kind { return e.Payload.Kind() }

// ColorsHarmonized is emitted once per processed context.
type ColorsHarmonized struct {
	TrackURI     string               `json:"trackUri"`
	Result       strategy.ColorResult `json:"result"`
	Contributors []string             `json:"contributors"`
}

// MusicBeat carries a beat or energy update from the host player.
type MusicBeat struct {
	Signal strategy.MusicSignal `json:"signal"`
}

// Decision records why a strategy type was or was not selected.
type Decision struct {
	Strategy string  `json:"strategy"`
	Include  bool    `json:"include"`
	Score    float64 `json:"score"`
	Reason   string  `json:"reason"`
}

// StrategiesSelected reports the selector's decisions and final set.
type StrategiesSelected struct {
	Selected  []string   `json:"selected"`
	Decisions []Decision `json:"decisions"`
	Forced    bool       `json:"forced"`
}

// HealthChanged is emitted when a registration's health flag flips.
type HealthChanged struct {
	Strategy string `json:"strategy"`
	Healthy  bool   `json:"healthy"`
	Reason   string `json:"reason"`
}

// FallbackActivated is emitted when a strategy or the orchestrator degrades.
type FallbackActivated struct {
	Strategy string `json:"strategy"`
	Mode     string `json:"mode"`
	Reason   string `json:"reason"`
}

// SettingsChanged is emitted after a configuration reload.
type SettingsChanged struct {
	Keys []string `json:"keys"`
}

func (ColorsHarmonized) Kind() Kind   { return KindColorsHarmonized }
func (MusicBeat) Kind() Kind          { return KindMusicBeat }
func (StrategiesSelected) Kind() Kind { return KindStrategiesSelected }
func (HealthChanged) Kind() Kind      { return KindHealthChanged }
func (FallbackActivated) Kind() Kind  { return KindFallbackActivated }
func (SettingsChanged) Kind() Kind    { return KindSettingsChanged }

func (ColorsHarmonized) sealed()   {}
func (MusicBeat) sealed()          {}
func (StrategiesSelected) sealed() {}
func (HealthChanged) sealed()      {}
func (FallbackActivated) sealed()  {}
func (SettingsChanged) sealed()    {}
