package flow

import (
	"math"
	"time"

	"github.com/jmylchreest/backdrop/internal/render"
	"github.com/jmylchreest/backdrop/internal/strategy"
)

// EnergyBoost scales flow strength linearly with music energy.
const EnergyBoost = 0.8

// smoothedUniforms pairs every animatable uniform with its own half-life.
type smoothedUniforms struct {
	flow       render.Smoothed
	noise      render.Smoothed
	blurExp    render.Smoothed
	blurMax    render.Smoothed
	vignette   render.Smoothed
	waveCenter [2]render.Smoothed
	waveHeight [2]render.Smoothed
	waveOffset [2]render.Smoothed
}

func newSmoothedUniforms() smoothedUniforms {
	d := render.DefaultUniforms()
	u := smoothedUniforms{
		flow:     render.NewSmoothed(d.FlowStrength, 600*time.Millisecond),
		noise:    render.NewSmoothed(d.NoiseScale, 2*time.Second),
		blurExp:  render.NewSmoothed(d.BlurExponent, 1200*time.Millisecond),
		blurMax:  render.NewSmoothed(d.BlurMax, 1200*time.Millisecond),
		vignette: render.NewSmoothed(d.Vignette, 2*time.Second),
	}
	for i := range 2 {
		u.waveCenter[i] = render.NewSmoothed(d.WaveCenter[i], 1500*time.Millisecond)
		u.waveHeight[i] = render.NewSmoothed(d.WaveHeight[i], 1500*time.Millisecond)
		u.waveOffset[i] = render.NewSmoothed(d.WaveOffset[i], 3*time.Second)
	}
	return u
}

// FlowStrength returns the boosted flow strength for a base strength and energy.
func FlowStrength(base, energy float64) float64 {
	energy = math.Min(math.Max(energy, 0), 1)
	return base * (1 + energy*EnergyBoost)
}

// retarget moves every target; current values follow on subsequent frames.
func (u *smoothedUniforms) retarget(intensity, energy, valence float64) {
	d := render.DefaultUniforms()
	base := 0.6 + intensity*0.8
	u.flow.Set(FlowStrength(base, energy))
	u.noise.Set(1.2 + valence*0.6)
	u.blurExp.Set(d.BlurExponent + (1-energy)*0.4)
	u.blurMax.Set(0.08 + (1-energy)*0.08)
	u.vignette.Set(d.Vignette + (0.5-valence)*0.1)
	for i := range 2 {
		u.waveCenter[i].Set(d.WaveCenter[i] + (valence-0.5)*0.1)
		u.waveHeight[i].Set(d.WaveHeight[i] * (1 + energy*0.5))
		u.waveOffset[i].Set(d.WaveOffset[i] + valence*0.25)
	}
}

func (u *smoothedUniforms) retargetMusic(intensity float64, m *strategy.MusicData) {
	u.retarget(intensity, m.EnergyOr(0.5), m.ValenceOr(0.5))
}

// step advances every uniform by dt and returns the values for this frame.
func (u *smoothedUniforms) step(dt, elapsed time.Duration) render.Uniforms {
	out := render.Uniforms{
		Time:         elapsed.Seconds(),
		FlowStrength: u.flow.Step(dt),
		NoiseScale:   u.noise.Step(dt),
		BlurExponent: u.blurExp.Step(dt),
		BlurMax:      u.blurMax.Step(dt),
		Vignette:     u.vignette.Step(dt),
	}
	for i := range 2 {
		out.WaveCenter[i] = u.waveCenter[i].Step(dt)
		out.WaveHeight[i] = u.waveHeight[i].Step(dt)
		out.WaveOffset[i] = u.waveOffset[i].Step(dt)
	}
	return out
}

// current returns the values without advancing them.
func (u *smoothedUniforms) current() render.Uniforms {
	return u.step(0, 0)
}
