package depth

import (
	"strconv"

	"github.com/jmylchreest/backdrop/internal/render"
)

// LayerID is a stable handle into an Arena. Ids are never reused: the slot index
// is paired with a generation that changes whenever the slot is freed.
type LayerID struct {
	index      uint32
	generation uint32
}

// String renders the id for use in variable names.
func (id LayerID) String() string {
	return strconv.FormatUint(uint64(id.index), 10)
}

// Layer is one parallax plane.
type Layer struct {
	Depth         float64 // 0 nearest, 1 farthest
	Parallax      float64
	OpacityMin    float64
	OpacityMax    float64
	ScaleMin      float64
	ScaleMax      float64
	RotationSpeed float64 // radians per second
	Blur          float64 // pixels
	Phase         float64
	Colour        string

	OffsetY render.Smoothed
	Opacity render.Smoothed
	BlurPx  render.Smoothed
	Hue     render.Smoothed
	Scale   render.Smoothed
}

type slot struct {
	layer      Layer
	generation uint32
	live       bool
}

// Arena owns layers with explicit create/destroy. Lookups with a stale id fail.
type Arena struct {
	slots []slot
	free  []uint32
	live  int
}

// Create stores l and returns its id.
func (a *Arena) Create(l Layer) LayerID {
	var idx uint32
	if n := len(a.free); n > 0 {
		idx = a.free[n-1]
		a.free = a.free[:n-1]
	} else {
		idx = uint32(len(a.slots))
		a.slots = append(a.slots, slot{})
	}
	s := &a.slots[idx]
	s.layer = l
	s.live = true
	a.live++
	return LayerID{index: idx, generation: s.generation}
}

// Get returns the live layer for id.
func (a *Arena) Get(id LayerID) (*Layer, bool) {
	if int(id.index) >= len(a.slots) {
		return nil, false
	}
	s := &a.slots[id.index]
	if !s.live || s.generation != id.generation {
		return nil, false
	}
	return &s.layer, true
}

// Destroy frees the layer. It reports false for unknown or stale ids.
func (a *Arena) Destroy(id LayerID) bool {
	if _, ok := a.Get(id); !ok {
		return false
	}
	s := &a.slots[id.index]
	s.live = false
	s.layer = Layer{}
	s.generation++
	a.free = append(a.free, id.index)
	a.live--
	return true
}

// Len returns the number of live layers.
func (a *Arena) Len() int { return a.live }

// IDs returns the ids of live layers in slot order.
func (a *Arena) IDs() []LayerID {
	ids := make([]LayerID, 0, a.live)
	for i := range a.slots {
		if a.slots[i].live {
			ids = append(ids, LayerID{index: uint32(i), generation: a.slots[i].generation})
		}
	}
	return ids
}

// Clear destroys every layer.
func (a *Arena) Clear() {
	for _, id := range a.IDs() {
		a.Destroy(id)
	}
}
