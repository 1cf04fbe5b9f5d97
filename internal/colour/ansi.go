package colour

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

const (
	ansiReset    = "\033[0m"
	defaultWidth = 8
)

// sgr returns the 24-bit SGR sequence for c; layer is 38 for foreground and
// 48 for background.
func sgr(layer int, c RGB) string {
	return fmt.Sprintf("\033[%d;2;%d;%d;%dm", layer, c.R, c.G, c.B)
}

// Swatch returns width cells painted in c.
func Swatch(c RGB, width int) string {
	if width <= 0 {
		width = defaultWidth
	}
	return sgr(48, c) + strings.Repeat(" ", width) + ansiReset
}

// SwatchWithText paints c behind text, centred or cut to width, in whichever
// of black or white reads better.
func SwatchWithText(c RGB, text string, width int) string {
	if width <= 0 {
		width = defaultWidth
	}
	fg, _ := ReadableOn(c)

	n := utf8.RuneCountInString(text)
	switch {
	case n > width:
		text = string([]rune(text)[:width])
	case n < width:
		left := (width - n) / 2
		text = strings.Repeat(" ", left) + text + strings.Repeat(" ", width-n-left)
	}
	return sgr(48, c) + sgr(38, fg) + text + ansiReset
}

// GradientBar samples stops into width single-cell swatches.
func GradientBar(stops []GradientStop, width int) string {
	if width <= 0 {
		width = 32
	}
	var b strings.Builder
	for i := range width {
		t := 0.0
		if width > 1 {
			t = float64(i) / float64(width-1)
		}
		b.WriteString(Swatch(SampleGradient(stops, t), 1))
	}
	return b.String()
}
