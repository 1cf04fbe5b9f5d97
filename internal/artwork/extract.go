package artwork

import (
	"cmp"
	"errors"
	"image"
	"math"
	"math/rand/v2"
	"slices"

	"golang.org/x/image/draw"

	"github.com/jmylchreest/backdrop/internal/colour"
	"github.com/jmylchreest/backdrop/internal/strategy"
)

const (
	// DefaultClusters is the number of k-means clusters.
	DefaultClusters = 8

	// DefaultMaxDimension is the longest side images are downscaled to before
	// clustering.
	DefaultMaxDimension = 128

	maxIterations = 20
	convergence   = 0.001

	// Chroma separating vibrant swatches from muted ones.
	vibrantChroma = 0.08
	darkMaxL      = 0.45
	lightMinL     = 0.8
)

// ErrNoPixels is returned for images without opaque pixels.
var ErrNoPixels = errors.New("image has no opaque pixels")

// ExtractOptions configures Extract.
type ExtractOptions struct {
	Clusters     int
	MaxDimension int
	// Seed makes k-means++ initialisation reproducible.
	Seed uint64
}

// Swatch is one cluster centre.
type Swatch struct {
	Hex    string       `json:"hex" yaml:"hex"`
	Weight float64      `json:"weight" yaml:"weight"`
	LCH    colour.OKLCH `json:"oklch" yaml:"oklch"`
}

// Palette is the extraction result.
type Palette struct {
	// Roles maps colour roles (PRIMARY, VIBRANT, ...) to hex colours.
	Roles map[string]string `json:"roles" yaml:"roles"`
	// Swatches are ordered by weight, heaviest first.
	Swatches []Swatch `json:"swatches" yaml:"swatches"`
}

// Extract clusters the image's pixels in OKLab and assigns colour roles.
func Extract(img image.Image, opts ExtractOptions) (Palette, error) {
	if img == nil {
		return Palette{}, errors.New("image cannot be nil")
	}
	if opts.Clusters <= 0 {
		opts.Clusters = DefaultClusters
	}
	if opts.MaxDimension <= 0 {
		opts.MaxDimension = DefaultMaxDimension
	}

	points := samplePixels(downscale(img, opts.MaxDimension))
	if len(points) == 0 {
		return Palette{}, ErrNoPixels
	}

	swatches := cluster(points, opts.Clusters, opts.Seed)
	return Palette{Roles: assignRoles(swatches), Swatches: swatches}, nil
}

// downscale fits img inside max×max. Smaller images are returned unchanged.
func downscale(img image.Image, maxDim int) image.Image {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if w <= maxDim && h <= maxDim {
		return img
	}
	scale := float64(maxDim) / float64(max(w, h))
	dst := image.NewRGBA(image.Rect(0, 0, max(int(float64(w)*scale), 1), max(int(float64(h)*scale), 1)))
	draw.ApproxBiLinear.Scale(dst, dst.Bounds(), img, b, draw.Src, nil)
	return dst
}

// samplePixels converts every mostly-opaque pixel to OKLab.
func samplePixels(img image.Image) []colour.OKLab {
	b := img.Bounds()
	points := make([]colour.OKLab, 0, b.Dx()*b.Dy())
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			c := img.At(x, y)
			if _, _, _, a := c.RGBA(); a < 0x8000 {
				continue
			}
			points = append(points, colour.RGBToOKLab(colour.ToRGB(c)))
		}
	}
	return points
}

func distance2(a, b colour.OKLab) float64 {
	dl, da, db := a.L-b.L, a.A-b.A, a.B-b.B
	return dl*dl + da*da + db*db
}

// cluster runs k-means with k-means++ seeding and returns weighted swatches.
// When the image has no more than k distinct colours each becomes a swatch.
func cluster(points []colour.OKLab, k int, seed uint64) []Swatch {
	counts := make(map[colour.OKLab]int)
	for _, p := range points {
		counts[p]++
	}

	var centroids []colour.OKLab
	var weights []float64
	if len(counts) <= k {
		for p, n := range counts {
			centroids = append(centroids, p)
			weights = append(weights, float64(n))
		}
	} else {
		centroids, weights = kmeans(points, k, rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)))
	}

	total := float64(len(points))
	swatches := make([]Swatch, 0, len(centroids))
	for i, c := range centroids {
		if weights[i] == 0 {
			continue
		}
		swatches = append(swatches, Swatch{
			Hex:    c.Hex(),
			Weight: weights[i] / total,
			LCH:    c.LCH(),
		})
	}
	slices.SortFunc(swatches, func(a, b Swatch) int {
		if c := cmp.Compare(b.Weight, a.Weight); c != 0 {
			return c
		}
		return cmp.Compare(a.Hex, b.Hex)
	})
	return swatches
}

func kmeans(points []colour.OKLab, k int, rng *rand.Rand) ([]colour.OKLab, []float64) {
	centroids := seedCentroids(points, k, rng)
	assignments := make([]int, len(points))

	for range maxIterations {
		for i, p := range points {
			assignments[i] = nearest(p, centroids)
		}

		sums := make([]colour.OKLab, k)
		n := make([]int, k)
		for i, p := range points {
			c := assignments[i]
			sums[c].L += p.L
			sums[c].A += p.A
			sums[c].B += p.B
			n[c]++
		}

		moved := 0.0
		for i := range centroids {
			if n[i] == 0 {
				continue
			}
			next := colour.OKLab{L: sums[i].L / float64(n[i]), A: sums[i].A / float64(n[i]), B: sums[i].B / float64(n[i])}
			moved += math.Sqrt(distance2(centroids[i], next))
			centroids[i] = next
		}
		if moved/float64(k) < convergence {
			break
		}
	}

	weights := make([]float64, k)
	for i, p := range points {
		assignments[i] = nearest(p, centroids)
		weights[assignments[i]]++
	}
	return centroids, weights
}

// seedCentroids implements k-means++ initialisation.
func seedCentroids(points []colour.OKLab, k int, rng *rand.Rand) []colour.OKLab {
	centroids := make([]colour.OKLab, 0, k)
	centroids = append(centroids, points[rng.IntN(len(points))])

	dist := make([]float64, len(points))
	for len(centroids) < k {
		total := 0.0
		for i, p := range points {
			d := math.MaxFloat64
			for _, c := range centroids {
				d = min(d, distance2(p, c))
			}
			dist[i] = d
			total += d
		}
		if total == 0 {
			break
		}

		target := rng.Float64() * total
		for i, d := range dist {
			target -= d
			if target <= 0 {
				centroids = append(centroids, points[i])
				break
			}
		}
	}
	return centroids
}

func nearest(p colour.OKLab, centroids []colour.OKLab) int {
	best, bestD := 0, math.MaxFloat64
	for i, c := range centroids {
		if d := distance2(p, c); d < bestD {
			best, bestD = i, d
		}
	}
	return best
}

// assignRoles picks a swatch per role. swatches must be sorted by weight.
// PROMINENT and PRIMARY are always present; other roles only when a swatch
// qualifies.
func assignRoles(swatches []Swatch) map[string]string {
	roles := make(map[string]string)
	if len(swatches) == 0 {
		return roles
	}
	roles[strategy.RoleProminent] = swatches[0].Hex

	vibrant := func(s Swatch) float64 { return s.LCH.C * (0.5 + s.Weight) }
	pick := func(role string, ok func(Swatch) bool, score func(Swatch) float64) {
		best, bestScore := -1, 0.0
		for i, s := range swatches {
			if ok(s) && (best < 0 || score(s) > bestScore) {
				best, bestScore = i, score(s)
			}
		}
		if best >= 0 {
			roles[role] = swatches[best].Hex
		}
	}

	pick(strategy.RoleVibrant, func(s Swatch) bool {
		return s.LCH.C >= vibrantChroma && s.LCH.L >= darkMaxL && s.LCH.L <= lightMinL
	}, vibrant)
	pick(strategy.RoleDarkVibrant, func(s Swatch) bool {
		return s.LCH.C >= vibrantChroma && s.LCH.L < darkMaxL
	}, vibrant)
	pick(strategy.RoleLightVibrant, func(s Swatch) bool {
		return s.LCH.C >= vibrantChroma && s.LCH.L > lightMinL
	}, vibrant)
	pick(strategy.RoleMuted, func(s Swatch) bool {
		return s.LCH.C < vibrantChroma && s.LCH.L >= 0.3 && s.LCH.L <= lightMinL
	}, func(s Swatch) float64 { return s.Weight })

	primary := swatches[0].Hex
	for _, role := range []string{strategy.RoleVibrant, strategy.RoleDarkVibrant, strategy.RoleLightVibrant} {
		if hex, ok := roles[role]; ok {
			primary = hex
			break
		}
	}
	roles[strategy.RolePrimary] = primary

	for _, s := range swatches {
		if s.Hex != primary {
			roles[strategy.RoleSecondary] = s.Hex
			break
		}
	}
	return roles
}
