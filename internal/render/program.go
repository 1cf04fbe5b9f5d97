package render

import (
	"image"
	"image/color"
	"math"

	"github.com/jmylchreest/backdrop/internal/colour"
)

// TextureWidth is the number of texels in a gradient texture.
const TextureWidth = 256

// texel is a linear float colour sample.
type texel struct{ r, g, b float64 }

// bakeTexture samples the gradient into a 1-D texture.
func bakeTexture(stops []colour.GradientStop, width int) []texel {
	if width < 2 {
		width = 2
	}
	tex := make([]texel, width)
	for i := range tex {
		c := colour.SampleGradient(stops, float64(i)/float64(width-1))
		tex[i] = texel{float64(c.R) / 255, float64(c.G) / 255, float64(c.B) / 255}
	}
	return tex
}

func sampleTexture(tex []texel, t float64) texel {
	t = math.Min(math.Max(t, 0), 1) * float64(len(tex)-1)
	i := int(t)
	if i >= len(tex)-1 {
		return tex[len(tex)-1]
	}
	f := t - float64(i)
	a, b := tex[i], tex[i+1]
	return texel{a.r + (b.r-a.r)*f, a.g + (b.g-a.g)*f, a.b + (b.b-a.b)*f}
}

func fract(x float64) float64 { return x - math.Floor(x) }

func hash2(x, y float64) float64 {
	x = fract(x * 123.34)
	y = fract(y * 456.21)
	d := x*(x+45.32) + y*(y+45.32)
	x += d
	y += d
	return fract(x * y)
}

func smooth(f float64) float64 { return f * f * (3 - 2*f) }

func valueNoise(x, y float64) float64 {
	ix, iy := math.Floor(x), math.Floor(y)
	fx, fy := x-ix, y-iy
	ux, uy := smooth(fx), smooth(fy)

	a := hash2(ix, iy)
	b := hash2(ix+1, iy)
	c := hash2(ix, iy+1)
	d := hash2(ix+1, iy+1)
	return (a+(b-a)*ux)*(1-uy) + (c+(d-c)*ux)*uy
}

func fbm(x, y float64) float64 {
	v, amp := 0.0, 0.5
	for range 4 {
		v += amp * valueNoise(x, y)
		x *= 2
		y *= 2
		amp *= 0.5
	}
	return v
}

func waveBand(x, y, centre, height, offset, t float64) float64 {
	c := centre + math.Sin(x*2*math.Pi+t*0.3+offset)*0.06
	d := (y - c) / math.Max(height, 0.001)
	return math.Exp(-d * d)
}

// flowColour evaluates the flow fragment program at normalised coordinates.
func flowColour(x, y float64, u Uniforms, tex []texel) color.RGBA {
	px := x*u.NoiseScale + u.Time*0.04*u.FlowStrength
	py := y*u.NoiseScale + u.Time*0.02*u.FlowStrength
	n := fbm(px, py)

	w := waveBand(x, y, u.WaveCenter[0], u.WaveHeight[0], u.WaveOffset[0], u.Time) -
		waveBand(x, y, u.WaveCenter[1], u.WaveHeight[1], u.WaveOffset[1], u.Time)

	t := x*0.6 + (n-0.5)*u.FlowStrength*0.6 + w*0.2 + 0.2
	t = math.Min(math.Max(t, 0), 1)

	blur := math.Pow(y, u.BlurExponent) * u.BlurMax
	a, b, c := sampleTexture(tex, t-blur), sampleTexture(tex, t), sampleTexture(tex, t+blur)
	r := (a.r + b.r + c.r) / 3
	g := (a.g + b.g + c.g) / 3
	bl := (a.b + b.b + c.b) / 3

	dx, dy := x-0.5, y-0.5
	v := math.Max(0, 1-u.Vignette*(dx*dx+dy*dy)*2)

	return color.RGBA{R: to8(r * v), G: to8(g * v), B: to8(bl * v), A: 255}
}

func to8(v float64) uint8 {
	return uint8(math.Min(math.Max(v, 0), 1)*255 + 0.5)
}

// renderFlow draws the flow program into dst.
func renderFlow(dst *image.RGBA, u Uniforms, tex []texel) {
	b := dst.Bounds()
	w, h := float64(b.Dx()), float64(b.Dy())
	for y := b.Min.Y; y < b.Max.Y; y++ {
		ny := (float64(y-b.Min.Y) + 0.5) / h
		for x := b.Min.X; x < b.Max.X; x++ {
			nx := (float64(x-b.Min.X) + 0.5) / w
			dst.SetRGBA(x, y, flowColour(nx, ny, u, tex))
		}
	}
}
