package registry

import (
	"strings"

	"github.com/jmylchreest/backdrop/internal/strategy"
)

// Describe returns a strategy's registry metadata, inferring it from the name
// when the strategy does not implement strategy.Describer.
func Describe(s strategy.Strategy) strategy.Descriptor {
	if d, ok := s.(strategy.Describer); ok {
		return d.Describe()
	}
	return Infer(s.Name())
}

// Infer derives metadata from well-known name fragments.
func Infer(name string) strategy.Descriptor {
	n := strings.ToLower(name)
	switch {
	case strings.Contains(n, "flow"), strings.Contains(n, "shader"), strings.Contains(n, "webgl"):
		return strategy.Descriptor{
			Category:     strategy.CategoryEffects,
			Priority:     4,
			MemoryImpact: strategy.ImpactHigh,
			Requirements: []string{strategy.RequiresWebGL, strategy.RequiresAnimation},
		}
	case strings.Contains(n, "depth"), strings.Contains(n, "parallax"):
		return strategy.Descriptor{
			Category:     strategy.CategoryEnhancement,
			Priority:     3,
			MemoryImpact: strategy.ImpactMedium,
			Requirements: []string{strategy.RequiresAnimation},
		}
	case strings.Contains(n, "living"), strings.Contains(n, "breath"):
		return strategy.Descriptor{
			Category:     strategy.CategoryFoundation,
			Priority:     5,
			MemoryImpact: strategy.ImpactLow,
			Requirements: []string{strategy.RequiresAnimation},
		}
	case strings.Contains(n, "css"), strings.Contains(n, "accent"):
		return strategy.Descriptor{
			Category:     strategy.CategoryAccent,
			Priority:     3,
			MemoryImpact: strategy.ImpactLow,
		}
	default:
		return strategy.Descriptor{
			Category:     strategy.CategoryEnhancement,
			Priority:     1,
			MemoryImpact: strategy.ImpactMedium,
		}
	}
}
