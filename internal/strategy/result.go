package strategy

import (
	"maps"
	"time"

	"github.com/jmylchreest/backdrop/internal/colour"
)

// Fallback tiers reported in Metadata.FallbackMode.
const (
	FallbackNone        = ""
	FallbackCSSGradient = "css-gradient"
	FallbackSolidColor  = "solid-color"
	FallbackStatic      = "static-palette"
)

// Render tiers reported in Metadata.RenderTier.
const (
	RenderShader      = "shader"
	RenderCSSGradient = "css-gradient"
	RenderSolidColor  = "solid-color"
	RenderCSS         = "css"
)

// Metadata describes how a result was produced.
type Metadata struct {
	Strategy         string         `json:"strategy" yaml:"strategy"`
	ProcessingTimeMs float64        `json:"processingTimeMs" yaml:"processingTimeMs"`
	Error            string         `json:"error,omitempty" yaml:"error,omitempty"`
	FallbackMode     string         `json:"fallbackMode,omitempty" yaml:"fallbackMode,omitempty"`
	RenderTier       string         `json:"renderTier,omitempty" yaml:"renderTier,omitempty"`
	Contributors     []string       `json:"contributors,omitempty" yaml:"contributors,omitempty"`
	Extra            map[string]any `json:"extra,omitempty" yaml:"extra,omitempty"`
}

// ProcessingTime returns the processing duration.
func (m Metadata) ProcessingTime() time.Duration {
	return time.Duration(m.ProcessingTimeMs * float64(time.Millisecond))
}

// SetProcessingTime records the processing duration in milliseconds.
func (m *Metadata) SetProcessingTime(d time.Duration) {
	m.ProcessingTimeMs = float64(d) / float64(time.Millisecond)
}

// Set stores a strategy-specific diagnostic value.
func (m *Metadata) Set(key string, value any) {
	if m.Extra == nil {
		m.Extra = make(map[string]any)
	}
	m.Extra[key] = value
}

// ColorResult is the output of processing one ColorContext.
type ColorResult struct {
	ProcessedColors map[string]string     `json:"processedColors" yaml:"processedColors"`
	AccentHex       string                `json:"accentHex" yaml:"accentHex"`
	AccentRGB       string                `json:"accentRgb" yaml:"accentRgb"`
	Gradient        []colour.GradientStop `json:"gradient,omitempty" yaml:"gradient,omitempty"`
	Metadata        Metadata              `json:"metadata" yaml:"metadata"`
}

// Failed reports whether the producing strategy recorded an error.
func (r ColorResult) Failed() bool {
	return r.Metadata.Error != ""
}

// Clone returns a deep copy of the result.
func (r ColorResult) Clone() ColorResult {
	out := r
	out.ProcessedColors = maps.Clone(r.ProcessedColors)
	out.Gradient = append([]colour.GradientStop(nil), r.Gradient...)
	out.Metadata.Contributors = append([]string(nil), r.Metadata.Contributors...)
	out.Metadata.Extra = maps.Clone(r.Metadata.Extra)
	return out
}
