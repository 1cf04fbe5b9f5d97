package colour

import (
	"math"
	"strings"
	"testing"
)

func TestContrastRatio(t *testing.T) {
	white := RGB{R: 255, G: 255, B: 255}.RGBA()
	black := RGB{}.RGBA()

	if got := ContrastRatio(white, black); math.Abs(got-21) > 0.01 {
		t.Errorf("ContrastRatio(white, black) = %.2f, want 21", got)
	}
	if got := ContrastRatio(black, white); math.Abs(got-21) > 0.01 {
		t.Errorf("ContrastRatio is not symmetric: %.2f", got)
	}
	if got := ContrastRatio(white, white); math.Abs(got-1) > 1e-9 {
		t.Errorf("ContrastRatio(white, white) = %.2f, want 1", got)
	}
}

func TestReadableOn(t *testing.T) {
	if text, ratio := ReadableOn(RGB{R: 0x1e, G: 0x3a, B: 0x8a}); text != White || ratio < 4.5 {
		t.Errorf("ReadableOn(navy) = %v %.2f, want white above 4.5", text, ratio)
	}
	if text, _ := ReadableOn(RGB{R: 0xf9, G: 0xe2, B: 0xaf}); text != Black {
		t.Errorf("ReadableOn(cream) = %v, want black", text)
	}
}

func TestSwatch(t *testing.T) {
	s := Swatch(RGB{R: 1, G: 2, B: 3}, 3)
	if !strings.HasPrefix(s, "\033[48;2;1;2;3m") || !strings.HasSuffix(s, "   "+ansiReset) {
		t.Errorf("Swatch() = %q", s)
	}

	// Light backgrounds get dark text.
	if s := SwatchWithText(RGB{R: 250, G: 250, B: 250}, "ab", 4); !strings.Contains(s, "\033[38;2;0;0;0m ab ") {
		t.Errorf("SwatchWithText() light = %q", s)
	}
	if s := SwatchWithText(RGB{R: 10, G: 10, B: 40}, "abcdef", 4); !strings.Contains(s, "\033[38;2;255;255;255mabcd") {
		t.Errorf("SwatchWithText() dark = %q", s)
	}
}

func TestGradientBar(t *testing.T) {
	stops := []GradientStop{
		StopFromRGB(RGB{R: 255}, 0),
		StopFromRGB(RGB{B: 255}, 1),
	}
	bar := GradientBar(stops, 4)
	if n := strings.Count(bar, ansiReset); n != 4 {
		t.Fatalf("GradientBar() has %d cells, want 4", n)
	}
	if !strings.HasPrefix(bar, "\033[48;2;255;0;0m") {
		t.Errorf("GradientBar() should start red: %q", bar)
	}
	if !strings.Contains(bar, "\033[48;2;0;0;255m") {
		t.Errorf("GradientBar() should end blue: %q", bar)
	}
}
