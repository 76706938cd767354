package dsl

import (
	"fmt"
	"slices"
	"sort"

	"github.com/newthinker/confluence/internal/core"
)

// Expressions maps a logical group ("all", "any", ...) to its trimmed,
// non-empty expression strings.
type Expressions map[string][]string

// Groups returns the group names in sorted order
func (e Expressions) Groups() []string {
	groups := make([]string, 0, len(e))
	for g := range e {
		groups = append(groups, g)
	}
	sort.Strings(groups)
	return groups
}

func (e Expressions) clone() Expressions {
	out := make(Expressions, len(e))
	for g, exprs := range e {
		out[g] = slices.Clone(exprs)
	}
	return out
}

// StrategyDefinition is a validated strategy entry from a rule document.
// All mappings are deep copies of the document; treat the value as read-only.
type StrategyDefinition struct {
	Name     string
	Regimes  []core.Regime
	Features []map[string]any
	Trigger  Expressions
	Filters  Expressions
	Entry    map[string]any
	Exit     map[string]any
	Risk     map[string]any
	Routing  map[string]any
}

// AllowsRegime reports whether the strategy may fire in regime r
func (d StrategyDefinition) AllowsRegime(r core.Regime) bool {
	return slices.Contains(d.Regimes, r)
}

// Raw returns the validated mapping (features, trigger, filters, entry,
// exit, risk, routing) in document form. Each call returns a fresh copy.
func (d StrategyDefinition) Raw() map[string]any {
	features := make([]any, len(d.Features))
	for i, f := range d.Features {
		features[i] = deepCopy(f)
	}
	return map[string]any{
		"features": features,
		"trigger":  expressionsToRaw(d.Trigger),
		"filters":  expressionsToRaw(d.Filters),
		"entry":    deepCopy(d.Entry),
		"exit":     deepCopy(d.Exit),
		"risk":     deepCopy(d.Risk),
		"routing":  deepCopy(d.Routing),
	}
}

func expressionsToRaw(e Expressions) map[string]any {
	out := make(map[string]any, len(e))
	for g, exprs := range e {
		list := make([]any, len(exprs))
		for i, x := range exprs {
			list[i] = x
		}
		out[g] = list
	}
	return out
}

// deepCopy clones nested mappings and lists decoded from a document.
func deepCopy[T any](v T) T {
	return any(copyValue(v)).(T)
}

func copyValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[k] = copyValue(val)
		}
		return out
	case map[any]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[fmt.Sprint(k)] = copyValue(val)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = copyValue(val)
		}
		return out
	default:
		return v
	}
}
