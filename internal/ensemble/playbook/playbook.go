// Package playbook holds instrument-specific confidence adjustments layered
// on top of the generic ensemble blend.
package playbook

import (
	"sort"
	"strings"

	"github.com/newthinker/confluence/internal/core"
)

// Adjuster corrects a blended confidence for one instrument. Implementations
// must not panic and must return a value in [0,1].
type Adjuster interface {
	Adjust(candidate core.SignalCandidate, features map[string]float64) float64
}

// AdjusterFunc adapts a plain function to Adjuster
type AdjusterFunc func(candidate core.SignalCandidate, features map[string]float64) float64

// Adjust calls f
func (f AdjusterFunc) Adjust(candidate core.SignalCandidate, features map[string]float64) float64 {
	return f(candidate, features)
}

// Registry maps uppercase symbols to adjusters. It is fixed at
// construction and safe for concurrent lookups.
type Registry struct {
	adjusters map[string]Adjuster
}

// NewRegistry copies adjusters into a registry, uppercasing the keys
func NewRegistry(adjusters map[string]Adjuster) *Registry {
	r := &Registry{adjusters: make(map[string]Adjuster, len(adjusters))}
	for symbol, a := range adjusters {
		if a == nil {
			continue
		}
		r.adjusters[normalize(symbol)] = a
	}
	return r
}

// Default returns the built-in playbooks
func Default() *Registry {
	return NewRegistry(map[string]Adjuster{
		"XAUUSD": XAUUSD,
		"US100":  US100,
		"BTCUSD": BTCUSD,
		"GBPJPY": GBPJPY,
		"EURUSD": EURUSD,
	})
}

// Lookup finds the adjuster for symbol. A nil registry has no entries.
func (r *Registry) Lookup(symbol string) (Adjuster, bool) {
	if r == nil {
		return nil, false
	}
	a, ok := r.adjusters[normalize(symbol)]
	return a, ok
}

// Symbols returns the registered symbols sorted
func (r *Registry) Symbols() []string {
	if r == nil {
		return nil
	}
	out := make([]string, 0, len(r.adjusters))
	for s := range r.adjusters {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

func normalize(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(symbol))
}

func feature(features map[string]float64, key string, def float64) float64 {
	if v, ok := features[key]; ok {
		return v
	}
	return def
}
