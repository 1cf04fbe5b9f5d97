package strategy

import (
	"encoding/json"
	"maps"
	"slices"
	"time"
)

// Colour roles produced by the artwork extractor.
const (
	RolePrimary      = "PRIMARY"
	RoleSecondary    = "SECONDARY"
	RoleVibrant      = "VIBRANT"
	RoleProminent    = "PROMINENT"
	RoleDarkVibrant  = "DARK_VIBRANT"
	RoleLightVibrant = "LIGHT_VIBRANT"
	RoleMuted        = "MUTED"
)

// rolePreference orders roles from most to least suitable as an accent.
var rolePreference = []string{
	RoleVibrant,
	RolePrimary,
	RoleProminent,
	RoleLightVibrant,
	RoleSecondary,
	RoleDarkVibrant,
	RoleMuted,
}

// MusicData is the optional audio analysis attached to a colour context.
// Values are in [0, 1]; Tempo may instead carry beats per minute (> 1).
type MusicData struct {
	Energy  *float64 `json:"energy,omitempty"`
	Valence *float64 `json:"valence,omitempty"`
	Tempo   *float64 `json:"tempo,omitempty"`
}

// EnergyOr returns the energy or def when absent.
func (m *MusicData) EnergyOr(def float64) float64 {
	if m == nil || m.Energy == nil {
		return def
	}
	return *m.Energy
}

// ValenceOr returns the valence or def when absent.
func (m *MusicData) ValenceOr(def float64) float64 {
	if m == nil || m.Valence == nil {
		return def
	}
	return *m.Valence
}

// BPM returns the tempo in beats per minute. Normalised tempos map linearly onto
// 60-200 BPM. ok is false when no tempo is present.
func (m *MusicData) BPM() (bpm float64, ok bool) {
	if m == nil || m.Tempo == nil {
		return 0, false
	}
	t := *m.Tempo
	if t <= 1 {
		return 60 + t*140, true
	}
	return t, true
}

// Float returns a pointer to v, for building MusicData literals.
func Float(v float64) *float64 {
	return &v
}

// Clone returns a deep copy; the result shares no pointers with m.
func (m *MusicData) Clone() *MusicData {
	if m == nil {
		return nil
	}
	return &MusicData{
		Energy:  cloneFloat(m.Energy),
		Valence: cloneFloat(m.Valence),
		Tempo:   cloneFloat(m.Tempo),
	}
}

func cloneFloat(p *float64) *float64 {
	if p == nil {
		return nil
	}
	return Float(*p)
}

// ColorContext is one extracted-colour event. It is immutable once created: the
// constructor and accessors copy the colour map.
type ColorContext struct {
	trackURI  string
	rawColors map[string]string
	music     *MusicData
	createdAt time.Time
}

// NewColorContext builds a context, copying the colour map and music data.
func NewColorContext(trackURI string, rawColors map[string]string, music *MusicData) ColorContext {
	cc := ColorContext{
		trackURI:  trackURI,
		rawColors: maps.Clone(rawColors),
		createdAt: time.Now(),
	}
	if cc.rawColors == nil {
		cc.rawColors = map[string]string{}
	}
	cc.music = music.Clone()
	return cc
}

// TrackURI returns the track identifier.
func (c ColorContext) TrackURI() string { return c.trackURI }

// CreatedAt returns when the context was built.
func (c ColorContext) CreatedAt() time.Time { return c.createdAt }

// RawColors returns a copy of the role -> hex mapping.
func (c ColorContext) RawColors() map[string]string { return maps.Clone(c.rawColors) }

// Color returns the hex value for a role.
func (c ColorContext) Color(role string) (string, bool) {
	hex, ok := c.rawColors[role]
	return hex, ok
}

// Len returns the number of colour roles.
func (c ColorContext) Len() int { return len(c.rawColors) }

// Music returns the attached music data, or nil.
func (c ColorContext) Music() *MusicData {
	return c.music.Clone()
}

// OrderedRoles returns the context's roles ordered by accent preference, with
// unknown roles sorted alphabetically after the known ones.
func (c ColorContext) OrderedRoles() []string {
	out := make([]string, 0, len(c.rawColors))
	for _, role := range rolePreference {
		if _, ok := c.rawColors[role]; ok {
			out = append(out, role)
		}
	}
	for _, role := range slices.Sorted(maps.Keys(c.rawColors)) {
		if !slices.Contains(rolePreference, role) {
			out = append(out, role)
		}
	}
	return out
}

type colorContextJSON struct {
	TrackURI  string            `json:"trackUri"`
	RawColors map[string]string `json:"rawColors"`
	MusicData *MusicData        `json:"musicData,omitempty"`
}

// MarshalJSON encodes the context in the external input-contract shape.
func (c ColorContext) MarshalJSON() ([]byte, error) {
	return json.Marshal(colorContextJSON{
		TrackURI:  c.trackURI,
		RawColors: c.rawColors,
		MusicData: c.music,
	})
}

// UnmarshalJSON decodes the external input-contract shape.
func (c *ColorContext) UnmarshalJSON(data []byte) error {
	var in colorContextJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	*c = NewColorContext(in.TrackURI, in.RawColors, in.MusicData)
	return nil
}

// MusicSignal is a beat / energy notification used to retarget animation.
type MusicSignal struct {
	Energy    float64   `json:"energy"`
	Intensity float64   `json:"intensity"`
	Valence   float64   `json:"valence"`
	BPM       float64   `json:"bpm,omitempty"`
	At        time.Time `json:"at"`
}

// Strength returns the stronger of intensity and energy.
func (s MusicSignal) Strength() float64 {
	return max(s.Energy, s.Intensity)
}
