package playbook

import (
	"math"

	"github.com/newthinker/confluence/internal/core"
)

// US100 emphasises opening range breaks and tape aggression, penalising slippage.
var US100 = AdjusterFunc(func(c core.SignalCandidate, features map[string]float64) float64 {
	orbBreak := feature(features, "orb_break", 0)
	tapeAggression := feature(features, "tape_aggression", 0.5)
	slippage := feature(features, "slippage", 0)

	adjustment := -0.05
	if orbBreak > 0 {
		adjustment = 0.05
	}
	if tapeAggression > 0.6 {
		adjustment += 0.1
	}
	adjustment -= math.Min(slippage/2, 0.1)
	return core.Clamp01(c.Confidence + adjustment)
})
