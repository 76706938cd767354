// Package gate implements the multi-timeframe confluence gate: a hard
// filter cascade over higher/lower/middle timeframe indicators, volume and
// order flow, followed by a weighted confluence score and optional model
// probability blend.
package gate

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/newthinker/confluence/internal/confluence"
	"github.com/newthinker/confluence/internal/core"
)

// StrategyName tags every candidate the gate emits.
const StrategyName = "mtf_gate"

// Timeframe scopes
const (
	ScopeHTF     = "HTF"
	ScopeLTF     = "LTF"
	ScopeMTF     = "MTF"
	ScopeDerived = "derived"
)

// Config holds the gate thresholds
type Config struct {
	MinADX             float64 `mapstructure:"min_adx" default:"18" validate:"gte=0"`
	MinRelativeVolume  float64 `mapstructure:"min_relative_volume" default:"0.6" validate:"gte=0"`
	MinConfidence      float64 `mapstructure:"min_confidence" default:"0.55" validate:"gte=0,lte=1"`
	TTLSeconds         int     `mapstructure:"ttl_seconds" default:"180" validate:"gt=0"`
	RSILongFloor       float64 `mapstructure:"rsi_long_floor" default:"40" validate:"gte=0,lte=100"`
	RSIShortCeiling    float64 `mapstructure:"rsi_short_ceiling" default:"60" validate:"gte=0,lte=100"`
	OrderflowTolerance float64 `mapstructure:"orderflow_tolerance" default:"0.1" validate:"gte=0"`
	MLWeight           float64 `mapstructure:"ml_weight" default:"0.4" validate:"gte=0,lte=1"`
}

// DefaultConfig returns default gate configuration
func DefaultConfig() Config {
	return Config{
		MinADX:             18,
		MinRelativeVolume:  0.6,
		MinConfidence:      0.55,
		TTLSeconds:         180,
		RSILongFloor:       40,
		RSIShortCeiling:    60,
		OrderflowTolerance: 0.1,
		MLWeight:           0.4,
	}
}

// TTL returns the candidate lifetime
func (c Config) TTL() time.Duration {
	return time.Duration(c.TTLSeconds) * time.Second
}

// Inputs is one feature snapshot for a symbol
type Inputs struct {
	Symbol            string
	Price             float64
	TimeframeFeatures map[string]map[string]float64
	VolumeFeatures    map[string]float64
	OrderflowFeatures map[string]float64
	MLProbability     *float64
	CreatedAt         time.Time // zero means evaluation time
}

// RejectReason names the filter that suppressed a candidate
type RejectReason string

const (
	ReasonNone           RejectReason = ""
	ReasonADX            RejectReason = "adx"
	ReasonRelativeVolume RejectReason = "relative_volume"
	ReasonDirection      RejectReason = "direction"
	ReasonRSI            RejectReason = "rsi"
	ReasonOrderflow      RejectReason = "orderflow"
	ReasonConfidence     RejectReason = "confidence"
	ReasonInvalidation   RejectReason = "invalidation"
)

// Result is the full outcome of one evaluation
type Result struct {
	Emitted    bool
	Reason     RejectReason
	Detail     string
	Direction  core.Direction
	Score      confluence.Score
	Confidence float64
	Candidate  core.SignalCandidate
}

// Gate is stateless between calls and safe for concurrent use.
type Gate struct {
	cfg        Config
	confluence *confluence.Evaluator
	now        func() time.Time
}

// Option customizes a Gate at construction
type Option func(*Gate)

// WithClock overrides the clock used when Inputs.CreatedAt is zero
func WithClock(now func() time.Time) Option {
	return func(g *Gate) { g.now = now }
}

// WithEvaluator overrides the confluence evaluator
func WithEvaluator(e *confluence.Evaluator) Option {
	return func(g *Gate) { g.confluence = e }
}

// New creates a gate. A non-positive TTL falls back to the default.
func New(cfg Config, opts ...Option) *Gate {
	if cfg.TTLSeconds <= 0 {
		cfg.TTLSeconds = DefaultConfig().TTLSeconds
	}
	g := &Gate{
		cfg:        cfg,
		confluence: confluence.NewEvaluator(confluence.DefaultWeights()),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Config returns the gate configuration
func (g *Gate) Config() Config {
	return g.cfg
}

// Evaluate returns a candidate when every filter passes
func (g *Gate) Evaluate(in Inputs) (core.SignalCandidate, bool) {
	res := g.Explain(in)
	return res.Candidate, res.Emitted
}

// Explain runs the cascade and reports why a candidate was or was not emitted.
func (g *Gate) Explain(in Inputs) Result {
	createdAt := in.CreatedAt
	if createdAt.IsZero() {
		createdAt = g.now()
	}

	htf := scope(in.TimeframeFeatures, ScopeHTF)
	ltf := scope(in.TimeframeFeatures, ScopeLTF)
	mtf := scope(in.TimeframeFeatures, ScopeMTF)

	emaFast := lookup(htf, in.Price, "ema_fast")
	emaSlow := lookup(htf, in.Price, "ema_slow")
	adx := lookup(htf, 15, "adx")
	macdHist := lookup(ltf, 0, "macd_hist")
	rsi := lookup(ltf, 50, "rsi")
	relVolume := lookup(in.VolumeFeatures, 0.5, "rel_volume", "relative_volume")
	orderflow := lookup(in.OrderflowFeatures, 0, "imbalance", "orderflow_bias")

	direction := core.DirectionShort
	if emaFast >= emaSlow {
		direction = core.DirectionLong
	}
	long := direction == core.DirectionLong

	res := Result{Direction: direction}
	reject := func(reason RejectReason, format string, args ...any) Result {
		res.Reason = reason
		res.Detail = fmt.Sprintf(format, args...)
		return res
	}

	// Non-finite values fail the filter they feed.
	switch {
	case !finite(adx) || adx < g.cfg.MinADX:
		return reject(ReasonADX, "adx %.2f below %.2f", adx, g.cfg.MinADX)
	case !finite(relVolume) || relVolume < g.cfg.MinRelativeVolume:
		return reject(ReasonRelativeVolume, "relative volume %.2f below %.2f", relVolume, g.cfg.MinRelativeVolume)
	case !finite(emaFast) || !finite(emaSlow):
		return reject(ReasonDirection, "ema_fast %.4f / ema_slow %.4f not finite", emaFast, emaSlow)
	case !finite(macdHist), long && macdHist <= 0, !long && macdHist >= 0:
		return reject(ReasonDirection, "macd_hist %.4f disagrees with %s", macdHist, direction)
	case !finite(rsi):
		return reject(ReasonRSI, "rsi %.2f not finite", rsi)
	case long && rsi < g.cfg.RSILongFloor:
		return reject(ReasonRSI, "rsi %.2f below long floor %.2f", rsi, g.cfg.RSILongFloor)
	case !long && rsi > g.cfg.RSIShortCeiling:
		return reject(ReasonRSI, "rsi %.2f above short ceiling %.2f", rsi, g.cfg.RSIShortCeiling)
	case !finite(orderflow), long && orderflow < -g.cfg.OrderflowTolerance, !long && orderflow > g.cfg.OrderflowTolerance:
		return reject(ReasonOrderflow, "orderflow bias %.2f opposes %s", orderflow, direction)
	}

	trendBias := 0.0
	if long {
		trendBias = 1.0
	}
	momentumBias := core.Clamp01(0.5 + 0.3*math.Tanh(macdHist) + 0.2*((rsi-50)/50))
	volumeBias := core.Clamp01(relVolume)
	orderflowBias := core.Clamp01(0.5 + 0.5*orderflow)

	windows := rawWindows(in.TimeframeFeatures, createdAt)
	windows = append(windows,
		derived(confluence.FeatureTrendBias, trendBias, createdAt),
		derived(confluence.FeatureMomentumBias, momentumBias, createdAt),
		derived(confluence.FeatureVolumeBias, volumeBias, createdAt),
		derived(confluence.FeatureOrderflowBias, orderflowBias, createdAt),
	)
	res.Score = g.confluence.Evaluate(windows)

	confidence := res.Score.Total
	var mlUsed any
	if in.MLProbability != nil && !math.IsNaN(*in.MLProbability) {
		ml := core.Clamp01(*in.MLProbability)
		confidence = (1-g.cfg.MLWeight)*confidence + g.cfg.MLWeight*ml
		mlUsed = ml
	}
	confidence = core.Clamp01(confidence)
	res.Confidence = confidence

	if confidence < g.cfg.MinConfidence {
		return reject(ReasonConfidence, "confidence %.4f below %.4f", confidence, g.cfg.MinConfidence)
	}

	invalidationKey := "swing_high"
	if long {
		invalidationKey = "swing_low"
	}
	invalidation := lookup(mtf, in.Price, invalidationKey)
	if !finite(invalidation) {
		invalidation = in.Price
	}
	if !finite(invalidation) {
		return reject(ReasonInvalidation, "no finite %s or price", invalidationKey)
	}

	res.Emitted = true
	res.Candidate = core.SignalCandidate{
		Symbol:       in.Symbol,
		Direction:    direction,
		Confidence:   confidence,
		TTL:          g.cfg.TTL(),
		Invalidation: invalidation,
		Strategy:     StrategyName,
		CreatedAt:    createdAt,
		Metadata: core.Metadata{
			"adx":              adx,
			"rel_volume":       relVolume,
			"orderflow_bias":   orderflow,
			"score_components": res.Score.Components(),
			"ml_probability":   mlUsed,
		},
	}
	return res
}

func scope(features map[string]map[string]float64, name string) map[string]float64 {
	if m, ok := features[name]; ok && m != nil {
		return m
	}
	return map[string]float64{}
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// lookup returns the first key present in m, or def.
func lookup(m map[string]float64, def float64, keys ...string) float64 {
	for _, k := range keys {
		if v, ok := m[k]; ok {
			return v
		}
	}
	return def
}

func rawWindows(features map[string]map[string]float64, ts time.Time) []core.FeatureWindow {
	scopes := make([]string, 0, len(features))
	for s := range features {
		scopes = append(scopes, s)
	}
	sort.Strings(scopes)

	var out []core.FeatureWindow
	for _, s := range scopes {
		names := make([]string, 0, len(features[s]))
		for n := range features[s] {
			names = append(names, n)
		}
		sort.Strings(names)
		for _, n := range names {
			out = append(out, core.FeatureWindow{
				Name:      strings.ToLower(s) + "_" + n,
				Timeframe: s,
				Timestamp: ts,
				Value:     features[s][n],
			})
		}
	}
	return out
}

func derived(name string, v float64, ts time.Time) core.FeatureWindow {
	return core.FeatureWindow{Name: name, Timeframe: ScopeDerived, Timestamp: ts, Value: v}
}
