// Package ensemble blends the gate's technical confidence with order-flow,
// model-probability and sentiment scores, then applies per-instrument
// playbook corrections.
package ensemble

import (
	"fmt"
	"strings"

	"github.com/newthinker/confluence/internal/core"
	"github.com/newthinker/confluence/internal/ensemble/playbook"
)

// Weights for the four blended components
type Weights struct {
	TA        float64 `mapstructure:"ta" default:"0.3" validate:"gte=0"`
	Orderflow float64 `mapstructure:"orderflow" default:"0.3" validate:"gte=0"`
	ML        float64 `mapstructure:"ml" default:"0.2" validate:"gte=0"`
	Sentiment float64 `mapstructure:"sentiment" default:"0.2" validate:"gte=0"`
}

// DefaultWeights returns the 0.3/0.3/0.2/0.2 split
func DefaultWeights() Weights {
	return Weights{TA: 0.3, Orderflow: 0.3, ML: 0.2, Sentiment: 0.2}
}

// Sum returns the total weight
func (w Weights) Sum() float64 {
	return w.TA + w.Orderflow + w.ML + w.Sentiment
}

// Validate rejects negative components and a non-positive total
func (w Weights) Validate() error {
	if w.TA < 0 || w.Orderflow < 0 || w.ML < 0 || w.Sentiment < 0 {
		return core.WrapError(core.ErrEnsembleWeights, fmt.Errorf("weights must be non-negative: %+v", w))
	}
	if w.Sum() <= 0 {
		return core.WrapError(core.ErrEnsembleWeights, fmt.Errorf("weights must sum to a positive value"))
	}
	return nil
}

func (w Weights) normalized() Weights {
	total := w.Sum()
	return Weights{
		TA:        w.TA / total,
		Orderflow: w.Orderflow / total,
		ML:        w.ML / total,
		Sentiment: w.Sentiment / total,
	}
}

// Inputs feeding one Combine call
type Inputs struct {
	Candidate        core.SignalCandidate
	OrderflowScore   float64
	MLProbability    *float64 // nil falls back to the candidate confidence
	SentimentBias    float64  // [-1,1]
	FeatureOverrides map[string]float64
}

// Breakdown explains how a final confidence was reached
type Breakdown struct {
	Blended   float64
	Adjusted  float64
	Playbook  string // symbol of the adjuster applied, empty when none
	Candidate core.SignalCandidate
}

// Ensemble is immutable after New and safe for concurrent use.
type Ensemble struct {
	weights   Weights
	playbooks *playbook.Registry
}

// New normalizes w to sum to 1. Invalid weights fail here, never per call.
// A nil registry disables playbook adjustment.
func New(w Weights, playbooks *playbook.Registry) (*Ensemble, error) {
	if err := w.Validate(); err != nil {
		return nil, err
	}
	return &Ensemble{
		weights:   w.normalized(),
		playbooks: playbooks,
	}, nil
}

// Weights returns the normalized weights
func (e *Ensemble) Weights() Weights {
	return e.weights
}

// Combine returns a new candidate carrying the blended, adjusted confidence
func (e *Ensemble) Combine(in Inputs) core.SignalCandidate {
	return e.Explain(in).Candidate
}

// Explain is Combine with the intermediate values exposed.
func (e *Ensemble) Explain(in Inputs) Breakdown {
	base := in.Candidate.Confidence
	// Only a nil probability falls back to the candidate confidence; an
	// explicit 0 is blended as 0.
	ml := base
	if in.MLProbability != nil {
		ml = core.Clamp01(*in.MLProbability)
	}
	sentiment := (core.Clamp(in.SentimentBias, -1, 1) + 1) / 2

	blended := e.weights.TA*base +
		e.weights.Orderflow*in.OrderflowScore +
		e.weights.ML*ml +
		e.weights.Sentiment*sentiment

	b := Breakdown{Blended: blended, Adjusted: blended}
	if adj, ok := e.playbooks.Lookup(in.Candidate.Symbol); ok {
		b.Adjusted = adj.Adjust(in.Candidate.WithConfidence(blended), in.FeatureOverrides)
		b.Playbook = normalizedSymbol(in.Candidate.Symbol)
	}
	b.Candidate = in.Candidate.WithConfidence(b.Adjusted)
	return b
}

func normalizedSymbol(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}
