// Package render contains the frame clock, parameter smoothing and the GPU device
// contract used by animated background strategies, plus a software device that
// executes the flow fragment program on the CPU.
package render

import (
	"math"
	"time"
)

// SmoothingFactor returns the fraction of the remaining distance closed after dt
// with the given half-life: 1 - 2^(-dt/h). A non-positive half-life snaps.
func SmoothingFactor(dt, halfLife time.Duration) float64 {
	if halfLife <= 0 {
		return 1
	}
	if dt <= 0 {
		return 0
	}
	return 1 - math.Exp2(-dt.Seconds()/halfLife.Seconds())
}

// Smoothed is an animatable value that converges exponentially on its target.
// The zero value snaps to every target.
type Smoothed struct {
	Current  float64
	Target   float64
	HalfLife time.Duration
}

// NewSmoothed returns a settled value with the given half-life.
func NewSmoothed(value float64, halfLife time.Duration) Smoothed {
	return Smoothed{Current: value, Target: value, HalfLife: halfLife}
}

// Set changes the target; Current keeps moving from where it is.
func (s *Smoothed) Set(target float64) {
	s.Target = target
}

// Snap jumps Current and Target to v.
func (s *Smoothed) Snap(v float64) {
	s.Current = v
	s.Target = v
}

// Step advances Current towards Target by dt and returns the new value.
func (s *Smoothed) Step(dt time.Duration) float64 {
	s.Current += (s.Target - s.Current) * SmoothingFactor(dt, s.HalfLife)
	return s.Current
}

// Settled reports whether Current is within eps of Target.
func (s Smoothed) Settled(eps float64) bool {
	return math.Abs(s.Target-s.Current) <= eps
}
