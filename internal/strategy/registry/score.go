package registry

import (
	"cmp"
	"slices"
	"time"

	"github.com/jmylchreest/backdrop/internal/strategy"
)

// RecencyWindow is how recently a strategy must have been used to earn the
// recency bonus.
const RecencyWindow = 5 * time.Minute

// Scored pairs a registration with its score for some criteria.
type Scored struct {
	Registration Registration `json:"registration"`
	Score        float64      `json:"score"`
}

// Score computes the additive selection score of reg, floored at 0.
func Score(reg Registration, c strategy.Criteria, now time.Time) float64 {
	d := reg.Descriptor
	score := float64(d.Priority) * 10

	switch c.Performance {
	case strategy.TierHigh:
		switch d.MemoryImpact {
		case strategy.ImpactLow:
			score += 20
		case strategy.ImpactMedium:
			score += 10
		case strategy.ImpactHigh:
			score -= 10
		}
		if reg.TimedSamples > 0 {
			switch {
			case reg.AvgProcessingTime < 10*time.Millisecond:
				score += 10
			case reg.AvgProcessingTime > 50*time.Millisecond:
				score -= 15
			}
		}
	case strategy.TierMedium:
		switch d.MemoryImpact {
		case strategy.ImpactLow:
			score += 10
		case strategy.ImpactMedium:
			score += 5
		}
		if reg.TimedSamples > 0 && reg.AvgProcessingTime < 25*time.Millisecond {
			score += 5
		}
	}

	switch c.Quality {
	case strategy.TierHigh:
		score += map[strategy.Category]float64{
			strategy.CategoryEffects:     20,
			strategy.CategoryEnhancement: 15,
			strategy.CategoryFoundation:  10,
			strategy.CategoryAccent:      5,
		}[d.Category]
	case strategy.TierMedium:
		score += map[strategy.Category]float64{
			strategy.CategoryFoundation:  15,
			strategy.CategoryAccent:      10,
			strategy.CategoryEnhancement: 5,
		}[d.Category]
	case strategy.TierLow:
		score += map[strategy.Category]float64{
			strategy.CategoryFoundation: 10,
			strategy.CategoryAccent:     15,
		}[d.Category]
	}

	if d.Requires(strategy.RequiresWebGL) {
		if c.Device.WebGL {
			score += 15
		} else {
			score -= 50
		}
	}
	if c.Device.Mobile {
		switch d.MemoryImpact {
		case strategy.ImpactLow:
			score += 10
		case strategy.ImpactHigh:
			score -= 15
		}
	}
	if c.Device.MemoryGB > 0 && c.Device.MemoryGB < 4 && d.MemoryImpact == strategy.ImpactHigh {
		score -= 20
	}

	score -= reg.ErrorRate() * 30

	if !reg.LastUsed.IsZero() && now.Sub(reg.LastUsed) < RecencyWindow {
		score += 5
	}

	return max(score, 0)
}

// Rank scores every healthy registration permitted by c, best first. Ties are
// broken by name so the order is deterministic.
func (r *Registry) Rank(c strategy.Criteria) []Scored {
	now := r.opts.Now()

	r.mu.RLock()
	ranked := make([]Scored, 0, len(r.entries))
	for _, e := range r.entries {
		if !e.Healthy || !c.Permits(e.Name) {
			continue
		}
		ranked = append(ranked, Scored{Registration: e.snapshot(), Score: Score(e.Registration, c, now)})
	}
	r.mu.RUnlock()

	slices.SortFunc(ranked, func(a, b Scored) int {
		if a.Score != b.Score {
			return cmp.Compare(b.Score, a.Score)
		}
		return cmp.Compare(a.Registration.Name, b.Registration.Name)
	})
	return ranked
}

// SelectStrategy returns the highest scoring healthy strategy.
func (r *Registry) SelectStrategy(c strategy.Criteria) (strategy.Strategy, error) {
	ranked := r.Rank(c)
	if len(ranked) == 0 {
		return nil, ErrNoHealthyStrategy
	}
	best := ranked[0]
	r.logger.Debug("strategy selected", "strategy", best.Registration.Name, "score", best.Score, "candidates", len(ranked))
	return best.Registration.Strategy, nil
}

// SelectMultipleStrategies returns up to limit healthy strategies, best first.
func (r *Registry) SelectMultipleStrategies(c strategy.Criteria, limit int) []strategy.Strategy {
	ranked := r.Rank(c)
	if limit > 0 && len(ranked) > limit {
		ranked = ranked[:limit]
	}
	out := make([]strategy.Strategy, len(ranked))
	for i, s := range ranked {
		out[i] = s.Registration.Strategy
	}
	return out
}
