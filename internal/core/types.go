package core

import (
	"encoding/json"
	"fmt"
	"maps"
	"strings"
	"time"
)

// Direction is the side of a signal candidate
type Direction string

const (
	DirectionLong  Direction = "long"
	DirectionShort Direction = "short"
)

// Regime represents a market-condition classification
type Regime string

const (
	RegimeTrend         Regime = "trend"
	RegimeRange         Regime = "range"
	RegimeVolatileTrend Regime = "volatile_trend"
	RegimeQuiet         Regime = "quiet"
)

// Regimes lists every member of the closed Regime set in declaration order.
func Regimes() []Regime {
	return []Regime{RegimeTrend, RegimeRange, RegimeVolatileTrend, RegimeQuiet}
}

// ParseRegime maps a string onto the closed Regime set
func ParseRegime(s string) (Regime, error) {
	switch Regime(strings.ToLower(strings.TrimSpace(s))) {
	case RegimeTrend:
		return RegimeTrend, nil
	case RegimeRange:
		return RegimeRange, nil
	case RegimeVolatileTrend:
		return RegimeVolatileTrend, nil
	case RegimeQuiet:
		return RegimeQuiet, nil
	default:
		return "", fmt.Errorf("unknown regime %q", s)
	}
}

// FeatureWindow is a single named, timestamped feature value
type FeatureWindow struct {
	Name      string
	Timeframe string // "HTF", "LTF", "MTF", "derived"
	Timestamp time.Time
	Value     float64
}

// Metadata is the free-form diagnostic payload attached to a candidate
type Metadata map[string]any

// SignalCandidate is a time-bounded directional trade idea. Values are
// never mutated after construction; use WithConfidence to derive a new one.
type SignalCandidate struct {
	Symbol       string        `json:"symbol"`
	Direction    Direction     `json:"direction"`
	Confidence   float64       `json:"confidence"`
	TTL          time.Duration `json:"-"`
	Invalidation float64       `json:"invalidation"`
	Strategy     string        `json:"strategy"`
	Metadata     Metadata      `json:"metadata,omitempty"`
	CreatedAt    time.Time     `json:"created_at"`
}

// MarshalJSON encodes TTL as seconds alongside the expiry instant.
func (c SignalCandidate) MarshalJSON() ([]byte, error) {
	type plain SignalCandidate
	return json.Marshal(struct {
		plain
		TTLSeconds float64   `json:"ttl_seconds"`
		ExpiresAt  time.Time `json:"expires_at"`
	}{plain(c), c.TTL.Seconds(), c.ExpiresAt()})
}

// ExpiresAt returns the last instant at which the candidate is still valid
func (c SignalCandidate) ExpiresAt() time.Time {
	return c.CreatedAt.Add(c.TTL)
}

// IsValid reports whether t falls inside [CreatedAt, CreatedAt+TTL].
func (c SignalCandidate) IsValid(t time.Time) bool {
	return !t.Before(c.CreatedAt) && !t.After(c.ExpiresAt())
}

// WithConfidence returns a copy with the given confidence clamped to [0,1].
// The metadata map is copied so the two values share nothing mutable.
func (c SignalCandidate) WithConfidence(confidence float64) SignalCandidate {
	out := c
	out.Confidence = Clamp01(confidence)
	out.Metadata = maps.Clone(c.Metadata)
	return out
}

// Clamp01 clips v into [0,1]
func Clamp01(v float64) float64 {
	return Clamp(v, 0, 1)
}

// Clamp clips v into [lo,hi]. NaN collapses to lo.
func Clamp(v, lo, hi float64) float64 {
	if v != v || v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
