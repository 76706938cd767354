package playbook

import "github.com/newthinker/confluence/internal/core"

// XAUUSD rewards high relative volume during session overlap and
// dampens confidence under news risk.
var XAUUSD = AdjusterFunc(func(c core.SignalCandidate, features map[string]float64) float64 {
	relVolume := feature(features, "relative_volume", 0.5)
	session := feature(features, "session_overlap", 0)
	newsRisk := feature(features, "news_risk", 0)

	adjustment := -0.1
	if relVolume > 0.7 && session > 0 {
		adjustment = 0.1
	}
	if newsRisk > 0 {
		adjustment -= 0.2
	}
	return core.Clamp01(c.Confidence + adjustment)
})
