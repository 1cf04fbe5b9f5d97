package orchestrator

import (
	"maps"

	"github.com/jmylchreest/backdrop/internal/strategy"
)

// Merge composes results from several strategies. The first result is the
// primary: its accent, gradient and fallback mode win, and its colours take
// precedence over those of later results.
func Merge(results []strategy.ColorResult) strategy.ColorResult {
	if len(results) == 0 {
		return strategy.StaticFallback("nothing to merge")
	}
	out := results[0].Clone()
	if len(results) == 1 {
		out.Metadata.Contributors = []string{out.Metadata.Strategy}
		return out
	}

	processed := make(map[string]string)
	tiers := make(map[string]any, len(results))
	var total float64
	contributors := make([]string, 0, len(results))
	for i := len(results) - 1; i >= 0; i-- {
		maps.Copy(processed, results[i].ProcessedColors)
	}
	for _, r := range results {
		contributors = append(contributors, r.Metadata.Strategy)
		tiers[r.Metadata.Strategy] = r.Metadata.RenderTier
		total += r.Metadata.ProcessingTimeMs
		if len(out.Gradient) == 0 && len(r.Gradient) > 0 {
			out.Gradient = append(out.Gradient, r.Gradient...)
		}
	}

	out.ProcessedColors = processed
	out.Metadata.Contributors = contributors
	out.Metadata.ProcessingTimeMs = total
	out.Metadata.Set("renderTiers", tiers)
	return out
}
