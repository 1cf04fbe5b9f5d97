package artwork

import (
	"image"
	"image/color"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmylchreest/backdrop/internal/colour"
	"github.com/jmylchreest/backdrop/internal/strategy"
)

// bands draws vertical bands whose widths set each colour's weight.
func bands(height int, widths []int, colours []string) *image.RGBA {
	total := 0
	for _, w := range widths {
		total += w
	}
	img := image.NewRGBA(image.Rect(0, 0, total, height))
	x := 0
	for i, w := range widths {
		c := colour.MustParseHex(colours[i]).RGBA()
		for ; w > 0; w-- {
			for y := range height {
				img.Set(x, y, c)
			}
			x++
		}
	}
	return img
}

func TestExtractAssignsRoles(t *testing.T) {
	img := bands(10, []int{60, 30, 10}, []string{"#1e3a8a", "#e11d48", "#b0b0b0"})

	p, err := Extract(img, ExtractOptions{})
	require.NoError(t, err)

	require.Len(t, p.Swatches, 3)
	assert.Equal(t, "#1e3a8a", p.Swatches[0].Hex)
	assert.InDelta(t, 0.6, p.Swatches[0].Weight, 1e-9)

	assert.Equal(t, "#1e3a8a", p.Roles[strategy.RoleProminent])
	assert.Equal(t, "#1e3a8a", p.Roles[strategy.RoleDarkVibrant])
	assert.Equal(t, "#e11d48", p.Roles[strategy.RoleVibrant])
	assert.Equal(t, "#e11d48", p.Roles[strategy.RolePrimary])
	assert.Equal(t, "#b0b0b0", p.Roles[strategy.RoleMuted])
	assert.Equal(t, "#1e3a8a", p.Roles[strategy.RoleSecondary])
	assert.NotContains(t, p.Roles, strategy.RoleLightVibrant)
}

func TestExtractGreyscaleFallsBackToProminent(t *testing.T) {
	img := bands(4, []int{8, 2}, []string{"#202020", "#e0e0e0"})

	p, err := Extract(img, ExtractOptions{})
	require.NoError(t, err)

	assert.Equal(t, "#202020", p.Roles[strategy.RolePrimary])
	assert.Equal(t, "#e0e0e0", p.Roles[strategy.RoleSecondary])
	assert.NotContains(t, p.Roles, strategy.RoleVibrant)
}

func TestExtractClustersLargeImagesDeterministically(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 300, 200))
	for y := range 200 {
		for x := range 300 {
			img.Set(x, y, color.RGBA{R: uint8(x * 255 / 299), G: uint8(y * 255 / 199), B: 128, A: 255})
		}
	}

	a, err := Extract(img, ExtractOptions{Clusters: 5, Seed: 7})
	require.NoError(t, err)
	b, err := Extract(img, ExtractOptions{Clusters: 5, Seed: 7})
	require.NoError(t, err)

	assert.Equal(t, a, b)
	assert.LessOrEqual(t, len(a.Swatches), 5)
	sum := 0.0
	for i, s := range a.Swatches {
		sum += s.Weight
		if i > 0 {
			assert.GreaterOrEqual(t, a.Swatches[i-1].Weight, s.Weight)
		}
	}
	assert.InDelta(t, 1.0, sum, 1e-9)
	assert.Contains(t, a.Roles, strategy.RolePrimary)
}

func TestExtractIgnoresTransparentPixels(t *testing.T) {
	img := image.NewNRGBA(image.Rect(0, 0, 4, 4))
	_, err := Extract(img, ExtractOptions{})
	assert.ErrorIs(t, err, ErrNoPixels)

	img.Set(1, 1, color.NRGBA{R: 255, A: 255})
	p, err := Extract(img, ExtractOptions{})
	require.NoError(t, err)
	assert.Equal(t, "#ff0000", p.Roles[strategy.RolePrimary])
}

func TestDownscale(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 400, 100))
	got := downscale(img, 128)
	assert.Equal(t, image.Pt(128, 32), got.Bounds().Size())

	small := image.NewRGBA(image.Rect(0, 0, 64, 64))
	assert.Same(t, small, downscale(small, 128))
}
