// Package pipeline runs feature snapshots through regime classification,
// the multi-timeframe gate, the ensemble and the router.
package pipeline

import (
	"context"
	"fmt"
	"maps"
	"math"
	"sync"
	"time"

	"github.com/newthinker/confluence/internal/core"
	"github.com/newthinker/confluence/internal/dsl"
	"github.com/newthinker/confluence/internal/ensemble"
	"github.com/newthinker/confluence/internal/gate"
	"github.com/newthinker/confluence/internal/indicator"
	"github.com/newthinker/confluence/internal/metrics"
	"github.com/newthinker/confluence/internal/regime"
	"github.com/newthinker/confluence/internal/router"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Reason recorded when a snapshot arrives out of order
const ReasonOutOfOrder = "out_of_order"

// EMA periods applied to Series.Closes
const (
	EMAFastPeriod = 20
	EMASlowPeriod = 50
)

// Snapshot is everything known about one symbol at one instant
type Snapshot struct {
	Gate             gate.Inputs
	OrderflowScore   float64
	SentimentBias    float64
	FeatureOverrides map[string]float64
	RegimeFeatures   map[string]float64
	Series           Series
}

// Series is raw history ending at the snapshot instant, oldest first.
// Features derived from it never replace features given explicitly.
type Series struct {
	Closes  []float64 // HTF closes: ema_fast, ema_slow, realized volatility
	ATR     []float64 // last element is the current ATR
	Volumes []float64
}

// Decision records what happened to one snapshot
type Decision struct {
	Symbol   string                `json:"symbol"`
	At       time.Time             `json:"at"`
	Regime   regime.Snapshot       `json:"regime"`
	Eligible []string              `json:"eligible_strategies"`
	Emitted  bool                  `json:"emitted"`
	Reason   string                `json:"reason,omitempty"`
	Detail   string                `json:"detail,omitempty"`
	Gate     *core.SignalCandidate `json:"gate,omitempty"`
	Final    *core.SignalCandidate `json:"final,omitempty"`
	Playbook string                `json:"playbook,omitempty"`
	Routed   bool                  `json:"routed"`

	RealizedVolatility float64 `json:"realized_volatility,omitempty"`
}

// Components are the stages a pipeline runs. Gate and Ensemble are
// required; a nil Catalog reports no eligible strategies and a nil Router
// skips delivery.
type Components struct {
	Classifier regime.Classifier
	Catalog    *dsl.Catalog
	Gate       *gate.Gate
	Ensemble   *ensemble.Ensemble
	Router     *router.Router
}

// Pipeline is safe for concurrent use. Snapshots for one symbol must be
// presented in non-decreasing time order.
type Pipeline struct {
	stages  Components
	workers int
	logger  *zap.Logger
	metrics *metrics.Registry
	now     func() time.Time

	mu   sync.Mutex
	last map[string]time.Time
}

// Option customizes a Pipeline at construction
type Option func(*Pipeline)

// WithMetrics attaches a metrics registry
func WithMetrics(m *metrics.Registry) Option {
	return func(p *Pipeline) { p.metrics = m }
}

// WithClock overrides the clock used for snapshots without a timestamp
func WithClock(now func() time.Time) Option {
	return func(p *Pipeline) { p.now = now }
}

// New creates a pipeline evaluating up to workers symbols in parallel
func New(stages Components, workers int, logger *zap.Logger, opts ...Option) (*Pipeline, error) {
	if stages.Gate == nil || stages.Ensemble == nil {
		return nil, core.Errorf(core.ErrConfigMissing, "pipeline requires a gate and an ensemble")
	}
	if workers < 1 {
		workers = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	p := &Pipeline{
		stages:  stages,
		workers: workers,
		logger:  logger,
		now:     time.Now,
		last:    make(map[string]time.Time),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.metrics.SetStrategiesLoaded(stages.Catalog.Len())
	return p, nil
}

// Process evaluates one snapshot
func (p *Pipeline) Process(ctx context.Context, snap Snapshot) (Decision, error) {
	if err := ctx.Err(); err != nil {
		return Decision{}, err
	}
	start := time.Now()
	defer func() { p.metrics.RecordEvaluation(time.Since(start).Seconds()) }()

	in := withSeries(snap.Gate, snap.Series)
	if in.CreatedAt.IsZero() {
		in.CreatedAt = p.now()
	}
	if err := p.accept(in.Symbol, in.CreatedAt); err != nil {
		p.metrics.RecordSuppressed(ReasonOutOfOrder)
		return Decision{}, err
	}

	d := Decision{Symbol: in.Symbol, At: in.CreatedAt}
	if len(snap.Series.Closes) >= 2 {
		if rv := indicator.RealizedVolatility(indicator.Returns(snap.Series.Closes)); !math.IsNaN(rv) && !math.IsInf(rv, 0) {
			d.RealizedVolatility = rv
		}
	}
	d.Regime = p.stages.Classifier.Classify(regimeFeatures(in, snap))
	d.Eligible = eligible(p.stages.Catalog, d.Regime.Regime)

	res := p.stages.Gate.Explain(in)
	if !res.Emitted {
		d.Reason = string(res.Reason)
		d.Detail = res.Detail
		p.metrics.RecordSuppressed(d.Reason)
		p.logger.Debug("snapshot suppressed",
			zap.String("symbol", in.Symbol),
			zap.String("reason", d.Reason),
			zap.String("detail", d.Detail),
		)
		return d, nil
	}

	gated := res.Candidate
	d.Emitted = true
	d.Gate = &gated
	p.metrics.RecordEmitted(gated.Symbol, string(gated.Direction))
	p.metrics.ObserveConfidence(metrics.StageGate, gated.Confidence)

	b := p.stages.Ensemble.Explain(ensemble.Inputs{
		Candidate:        gated,
		OrderflowScore:   snap.OrderflowScore,
		MLProbability:    in.MLProbability,
		SentimentBias:    snap.SentimentBias,
		FeatureOverrides: snap.FeatureOverrides,
	})
	final := b.Candidate
	d.Final = &final
	d.Playbook = b.Playbook
	p.metrics.ObserveConfidence(metrics.StageEnsemble, final.Confidence)

	p.logger.Info("candidate emitted",
		zap.String("symbol", final.Symbol),
		zap.String("direction", string(final.Direction)),
		zap.String("regime", string(d.Regime.Regime)),
		zap.Float64("gate_confidence", gated.Confidence),
		zap.Float64("confidence", final.Confidence),
		zap.String("playbook", b.Playbook),
	)

	if p.stages.Router == nil {
		return d, nil
	}
	routed, err := p.stages.Router.Route(ctx, final, in.CreatedAt)
	d.Routed = routed && err == nil
	if err != nil {
		return d, fmt.Errorf("routing %s: %w", final.Symbol, err)
	}
	return d, nil
}

// ProcessBatch evaluates snapshots grouped by symbol. Groups run in
// parallel; snapshots within a group run in input order. Decisions are
// returned in input order. The first error cancels the remaining work.
func (p *Pipeline) ProcessBatch(ctx context.Context, snaps []Snapshot) ([]Decision, error) {
	out := make([]Decision, len(snaps))

	var order []string
	groups := make(map[string][]int)
	for i, s := range snaps {
		sym := s.Gate.Symbol
		if _, seen := groups[sym]; !seen {
			order = append(order, sym)
		}
		groups[sym] = append(groups[sym], i)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.workers)
	for _, sym := range order {
		idx := groups[sym]
		g.Go(func() error {
			for _, i := range idx {
				d, err := p.Process(gctx, snaps[i])
				if err != nil {
					return fmt.Errorf("snapshot %d (%s): %w", i, sym, err)
				}
				out[i] = d
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// Reset forgets the per-symbol ordering state and the router cooldowns
func (p *Pipeline) Reset() {
	p.mu.Lock()
	p.last = make(map[string]time.Time)
	p.mu.Unlock()
	if p.stages.Router != nil {
		p.stages.Router.ClearAllCooldowns()
	}
}

func (p *Pipeline) accept(symbol string, at time.Time) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if last, ok := p.last[symbol]; ok && at.Before(last) {
		return core.Errorf(core.ErrSnapshotOutOfOrder, "%s at %s precedes %s",
			symbol, at.Format(time.RFC3339Nano), last.Format(time.RFC3339Nano))
	}
	p.last[symbol] = at
	return nil
}

// regimeFeatures falls back to the gate inputs for adx and relative volume,
// then to the snapshot series. Explicit regime features win.
func regimeFeatures(in gate.Inputs, snap Snapshot) map[string]float64 {
	out := regime.FeaturesFromSeries(snap.Series.ATR, snap.Series.Volumes)
	if v, ok := in.TimeframeFeatures[gate.ScopeHTF]["adx"]; ok {
		out[regime.FeatureADX] = v
	}
	for _, k := range []string{"rel_volume", "relative_volume"} {
		if v, ok := in.VolumeFeatures[k]; ok {
			out[regime.FeatureRelativeVolume] = v
			break
		}
	}
	for k, v := range snap.RegimeFeatures {
		out[k] = v
	}
	return out
}

// withSeries fills ema_fast, ema_slow and rel_volume from s where the
// inputs lack them. The caller's maps are not modified.
func withSeries(in gate.Inputs, s Series) gate.Inputs {
	if len(s.Closes) >= EMASlowPeriod {
		htf := in.TimeframeFeatures[gate.ScopeHTF]
		_, hasFast := htf["ema_fast"]
		_, hasSlow := htf["ema_slow"]
		if !hasFast || !hasSlow {
			filled := make(map[string]float64, len(htf)+2)
			maps.Copy(filled, htf)
			if !hasFast {
				filled["ema_fast"] = indicator.Last(indicator.EMA(s.Closes, EMAFastPeriod), in.Price)
			}
			if !hasSlow {
				filled["ema_slow"] = indicator.Last(indicator.EMA(s.Closes, EMASlowPeriod), in.Price)
			}
			tf := make(map[string]map[string]float64, len(in.TimeframeFeatures)+1)
			maps.Copy(tf, in.TimeframeFeatures)
			tf[gate.ScopeHTF] = filled
			in.TimeframeFeatures = tf
		}
	}

	if len(s.Volumes) > 0 {
		_, hasRel := in.VolumeFeatures["rel_volume"]
		_, hasRelAlias := in.VolumeFeatures["relative_volume"]
		if !hasRel && !hasRelAlias {
			vol := make(map[string]float64, len(in.VolumeFeatures)+1)
			maps.Copy(vol, in.VolumeFeatures)
			vol["rel_volume"] = indicator.RelativeVolume(s.Volumes, indicator.DefaultVolumeLookback)
			in.VolumeFeatures = vol
		}
	}
	return in
}

func eligible(c *dsl.Catalog, r core.Regime) []string {
	defs := c.AllowedIn(r)
	names := make([]string, 0, len(defs))
	for _, d := range defs {
		names = append(names, d.Name)
	}
	return names
}
