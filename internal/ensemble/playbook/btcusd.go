package playbook

import (
	"math"

	"github.com/newthinker/confluence/internal/core"
)

// RegimeCodeRange is the numeric regime code the BTCUSD playbook treats as ranging.
const RegimeCodeRange = 0

// BTCUSD tilts by sentiment and penalises ranging regimes and wide spreads.
var BTCUSD = AdjusterFunc(func(c core.SignalCandidate, features map[string]float64) float64 {
	sentiment := feature(features, "sentiment", 0)
	spread := feature(features, "spread", 0.0005)
	regime := feature(features, "regime", RegimeCodeRange)

	adjustment := sentiment * 0.1
	if regime == RegimeCodeRange {
		adjustment -= 0.05
	}
	adjustment -= math.Min(spread*10, 0.15)
	return core.Clamp01(c.Confidence + adjustment)
})
