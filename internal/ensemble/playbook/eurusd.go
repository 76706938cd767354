package playbook

import (
	"math"

	"github.com/newthinker/confluence/internal/core"
)

// EURUSD favours mean-reversion efficiency and penalises spread.
var EURUSD = AdjusterFunc(func(c core.SignalCandidate, features map[string]float64) float64 {
	spread := feature(features, "spread", 0.0001)
	rangeScore := feature(features, "range_score", 0.5)

	adjustment := 0.1 * (rangeScore - 0.5)
	adjustment -= math.Min(spread*1000, 0.1)
	return core.Clamp01(c.Confidence + adjustment)
})
