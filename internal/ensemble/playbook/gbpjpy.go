package playbook

import "github.com/newthinker/confluence/internal/core"

// GBPJPY penalises high volatility; a news halt forces confidence to zero.
var GBPJPY = AdjusterFunc(func(c core.SignalCandidate, features map[string]float64) float64 {
	volatility := feature(features, "volatility", 1.0)
	newsHalt := feature(features, "news_halt", 0)

	adjustment := 0.05
	if volatility > 2.0 {
		adjustment = -0.1
	}
	if newsHalt != 0 {
		return 0
	}
	return core.Clamp01(c.Confidence + adjustment)
})
