// Package confluence aggregates independent signal families into a single
// weighted score.
package confluence

import (
	"fmt"

	"github.com/newthinker/confluence/internal/core"
)

// Feature names the evaluator reads from its input windows.
const (
	FeatureTrendBias     = "trend_bias"
	FeatureMomentumBias  = "momentum_bias"
	FeatureVolumeBias    = "volume_bias"
	FeatureOrderflowBias = "orderflow_bias"
)

// neutral is substituted for any bias feature that is absent.
const neutral = 0.5

// Weights holds the per-family multipliers. They are used as given.
type Weights struct {
	Trend     float64 `mapstructure:"trend" default:"0.35" validate:"gte=0"`
	Momentum  float64 `mapstructure:"momentum" default:"0.25" validate:"gte=0"`
	Volume    float64 `mapstructure:"volume" default:"0.2" validate:"gte=0"`
	Orderflow float64 `mapstructure:"orderflow" default:"0.2" validate:"gte=0"`
}

// DefaultWeights returns the 0.35/0.25/0.2/0.2 split
func DefaultWeights() Weights {
	return Weights{Trend: 0.35, Momentum: 0.25, Volume: 0.2, Orderflow: 0.2}
}

// Validate rejects negative weights
func (w Weights) Validate() error {
	for name, v := range map[string]float64{
		"trend": w.Trend, "momentum": w.Momentum, "volume": w.Volume, "orderflow": w.Orderflow,
	} {
		if v < 0 {
			return core.WrapError(core.ErrConfigInvalid, fmt.Errorf("confluence weight %s is negative: %f", name, v))
		}
	}
	return nil
}

// Score is the four sub-scores plus their clipped weighted total
type Score struct {
	Trend     float64
	Momentum  float64
	Volume    float64
	Orderflow float64
	Total     float64
}

// Components returns the sub-scores keyed by family name
func (s Score) Components() map[string]float64 {
	return map[string]float64{
		"trend":     s.Trend,
		"momentum":  s.Momentum,
		"volume":    s.Volume,
		"orderflow": s.Orderflow,
		"total":     s.Total,
	}
}

// Evaluator turns feature windows into a Score. It is immutable and safe
// for concurrent use.
type Evaluator struct {
	weights Weights
}

// NewEvaluator creates an evaluator with explicit weights
func NewEvaluator(w Weights) *Evaluator {
	return &Evaluator{weights: w}
}

// Weights returns the configured weights
func (e *Evaluator) Weights() Weights {
	return e.weights
}

// Evaluate looks up the four bias features by name. When a name appears
// more than once the last window wins.
func (e *Evaluator) Evaluate(features []core.FeatureWindow) Score {
	values := make(map[string]float64, len(features))
	for _, f := range features {
		values[f.Name] = f.Value
	}
	lookup := func(name string) float64 {
		if v, ok := values[name]; ok {
			return v
		}
		return neutral
	}

	s := Score{
		Trend:     lookup(FeatureTrendBias),
		Momentum:  lookup(FeatureMomentumBias),
		Volume:    lookup(FeatureVolumeBias),
		Orderflow: lookup(FeatureOrderflowBias),
	}
	s.Total = core.Clamp01(s.Trend*e.weights.Trend +
		s.Momentum*e.weights.Momentum +
		s.Volume*e.weights.Volume +
		s.Orderflow*e.weights.Orderflow)
	return s
}
