// Package regime labels market conditions from a handful of volatility,
// trend-strength and participation features.
package regime

import (
	"github.com/newthinker/confluence/internal/core"
	"github.com/newthinker/confluence/internal/indicator"
)

// Feature keys read by Classify
const (
	FeatureATRPercentile  = "atr_percentile"
	FeatureADX            = "adx"
	FeatureRelativeVolume = "relative_volume"
)

// Snapshot is one regime assessment
type Snapshot struct {
	Regime     core.Regime `json:"regime"`
	Confidence float64     `json:"confidence"`
}

// Classifier is a threshold heuristic and holds no state between calls.
type Classifier struct {
	VolatilityThreshold float64 `mapstructure:"volatility_threshold" default:"1.0" validate:"gte=0"`
}

// NewClassifier returns a classifier with the given ATR percentile threshold
func NewClassifier(volatilityThreshold float64) Classifier {
	return Classifier{VolatilityThreshold: volatilityThreshold}
}

// Classify picks the regime. Missing features read as neutral values.
func (c Classifier) Classify(features map[string]float64) Snapshot {
	atrPct := value(features, FeatureATRPercentile, 0.5)
	adx := value(features, FeatureADX, 15)
	relVolume := value(features, FeatureRelativeVolume, 0.5)

	var r core.Regime
	switch {
	case atrPct > c.VolatilityThreshold && adx > 25:
		r = core.RegimeVolatileTrend
	case adx > 20:
		r = core.RegimeTrend
	case atrPct < 0.7 && relVolume < 0.4:
		r = core.RegimeQuiet
	default:
		r = core.RegimeRange
	}

	return Snapshot{
		Regime:     r,
		Confidence: core.Clamp01((atrPct + adx/50 + relVolume) / 3),
	}
}

// FeaturesFromSeries derives Classify's inputs from raw history. atr ends
// with the current ATR and needs at least one earlier value; volumes end
// with the current bar. A feature is omitted when its series is too short.
func FeaturesFromSeries(atr, volumes []float64) map[string]float64 {
	out := make(map[string]float64, 2)
	if n := len(atr); n >= 2 {
		out[FeatureATRPercentile] = indicator.ATRPercentile(atr[:n-1], atr[n-1])
	}
	if len(volumes) > 0 {
		out[FeatureRelativeVolume] = indicator.RelativeVolume(volumes, indicator.DefaultVolumeLookback)
	}
	return out
}

func value(m map[string]float64, key string, def float64) float64 {
	if v, ok := m[key]; ok {
		return v
	}
	return def
}
