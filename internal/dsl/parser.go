// Package dsl validates declarative strategy rule documents.
//
// A document is YAML or JSON (JSON is accepted as a YAML subset):
//
//	schema_version: 1
//	strategies:
//	  - name: htf_trend_pullback
//	    regime_allow: [trend]
//	    features: [{ema: H1_200}]
//	    trigger: {all: ["close(H1) > ema(H1,200)"]}
//	    filters: {all: ["relvol(M1) > q70"]}
//	    entry: {type: market}
//	    exit: {stop: "k1 * atr(M1)"}
//	    risk: {method: kelly_capped}
//	    routing: {prefer: market_on_signal}
//
// Validation is structural only. Expressions are never executed here.
package dsl

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/newthinker/confluence/internal/core"
	"gopkg.in/yaml.v3"
)

// SchemaVersion is the only rule document version this package accepts.
const SchemaVersion = 1

// requiredFields is kept sorted so missing-field errors are deterministic.
var requiredFields = []string{
	"entry", "exit", "features", "filters", "name",
	"regime_allow", "risk", "routing", "trigger",
}

// ParseFile reads and validates the rule document at path
func ParseFile(path string) ([]StrategyDefinition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, core.WrapError(core.ErrDSLReadFailed, err)
	}
	return Parse(data)
}

// Parse validates a rule document. Any violation fails the whole document;
// no partial result is returned.
func Parse(data []byte) ([]StrategyDefinition, error) {
	var doc any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, core.Errorf(core.ErrDSLInvalid, "decoding document: %v", err)
	}

	root, ok := asMapping(doc)
	if !ok {
		return nil, core.Errorf(core.ErrDSLInvalid, "document root must be a mapping")
	}

	if v, present := root["schema_version"]; present {
		if !isVersion(v, SchemaVersion) {
			// matches both ErrDSLUnsupportedVersion and ErrDSLInvalid
			return nil, core.WrapError(core.ErrDSLUnsupportedVersion, core.Errorf(core.ErrDSLInvalid,
				"schema_version %v (supported: %d)", v, SchemaVersion))
		}
	}

	rawList, present := root["strategies"]
	if !present || rawList == nil {
		return []StrategyDefinition{}, nil
	}
	entries, ok := rawList.([]any)
	if !ok {
		return nil, core.Errorf(core.ErrDSLInvalid, "strategies must be a list")
	}

	defs := make([]StrategyDefinition, 0, len(entries))
	seen := make(map[string]int, len(entries))
	for i, entry := range entries {
		def, err := validate(i, entry)
		if err != nil {
			return nil, err
		}
		if prev, dup := seen[def.Name]; dup {
			return nil, core.Errorf(core.ErrDSLInvalid,
				"strategy %q (#%d): duplicate name, first defined at #%d", def.Name, i, prev)
		}
		seen[def.Name] = i
		defs = append(defs, def)
	}
	return defs, nil
}

func validate(index int, entry any) (StrategyDefinition, error) {
	m, ok := asMapping(entry)
	if !ok {
		return StrategyDefinition{}, core.Errorf(core.ErrDSLInvalid, "strategies[%d] must be a mapping", index)
	}

	label := labelFor(index, m)
	fail := func(format string, args ...any) (StrategyDefinition, error) {
		return StrategyDefinition{}, core.Errorf(core.ErrDSLInvalid, "strategy %s: %s", label, fmt.Sprintf(format, args...))
	}

	var missing []string
	for _, f := range requiredFields {
		if _, present := m[f]; !present {
			missing = append(missing, f)
		}
	}
	if len(missing) > 0 {
		return fail("missing fields [%s]", strings.Join(missing, ", "))
	}

	name, ok := m["name"].(string)
	name = strings.TrimSpace(name)
	if !ok || name == "" {
		return fail("name must be a non-empty string")
	}

	regimes, err := parseRegimes(m["regime_allow"])
	if err != nil {
		return fail("%v", err)
	}

	features, err := parseFeatures(m["features"])
	if err != nil {
		return fail("%v", err)
	}

	trigger, err := parseExpressions("trigger", m["trigger"])
	if err != nil {
		return fail("%v", err)
	}
	filters, err := parseExpressions("filters", m["filters"])
	if err != nil {
		return fail("%v", err)
	}

	opaque := make(map[string]map[string]any, 4)
	for _, field := range []string{"entry", "exit", "risk", "routing"} {
		v, ok := asMapping(m[field])
		if !ok {
			return fail("%s must be a mapping", field)
		}
		opaque[field] = deepCopy(v)
	}

	return StrategyDefinition{
		Name:     name,
		Regimes:  regimes,
		Features: features,
		Trigger:  trigger,
		Filters:  filters,
		Entry:    opaque["entry"],
		Exit:     opaque["exit"],
		Risk:     opaque["risk"],
		Routing:  opaque["routing"],
	}, nil
}

func labelFor(index int, m map[string]any) string {
	if name, ok := m["name"].(string); ok && strings.TrimSpace(name) != "" {
		return fmt.Sprintf("%q", strings.TrimSpace(name))
	}
	return fmt.Sprintf("#%d", index)
}

func parseRegimes(v any) ([]core.Regime, error) {
	list, ok := v.([]any)
	if !ok || len(list) == 0 {
		return nil, fmt.Errorf("regime_allow must be a non-empty list")
	}
	regimes := make([]core.Regime, 0, len(list))
	for i, item := range list {
		s, ok := item.(string)
		if !ok {
			return nil, fmt.Errorf("regime_allow[%d] must be a string, got %T", i, item)
		}
		r, err := core.ParseRegime(s)
		if err != nil {
			return nil, fmt.Errorf("regime_allow: %w", err)
		}
		regimes = append(regimes, r)
	}
	return regimes, nil
}

func parseFeatures(v any) ([]map[string]any, error) {
	list, ok := v.([]any)
	if !ok {
		return nil, fmt.Errorf("features must be a list of mappings")
	}
	features := make([]map[string]any, 0, len(list))
	for i, item := range list {
		m, ok := asMapping(item)
		if !ok {
			return nil, fmt.Errorf("features[%d] must be a mapping", i)
		}
		features = append(features, deepCopy(m))
	}
	return features, nil
}

func parseExpressions(field string, v any) (Expressions, error) {
	m, ok := asMapping(v)
	if !ok {
		return nil, fmt.Errorf("%s must be a mapping of group to expression list", field)
	}
	out := make(Expressions, len(m))
	groups := make([]string, 0, len(m))
	for g := range m {
		groups = append(groups, g)
	}
	sort.Strings(groups)

	for _, group := range groups {
		list, ok := m[group].([]any)
		if !ok {
			return nil, fmt.Errorf("%s.%s must be a list of expressions", field, group)
		}
		exprs := make([]string, 0, len(list))
		for i, item := range list {
			s, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("%s.%s[%d] must be a string, got %T", field, group, i, item)
			}
			if s = strings.TrimSpace(s); s != "" {
				exprs = append(exprs, s)
			}
		}
		out[group] = exprs
	}
	return out, nil
}

// asMapping normalizes decoded YAML mappings to map[string]any.
func asMapping(v any) (map[string]any, bool) {
	switch t := v.(type) {
	case map[string]any:
		return t, true
	case map[any]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[fmt.Sprint(k)] = val
		}
		return out, true
	default:
		return nil, false
	}
}

func isVersion(v any, want int) bool {
	switch n := v.(type) {
	case int:
		return n == want
	case int64:
		return n == int64(want)
	case uint64:
		return n == uint64(want)
	case float64:
		return n == float64(want)
	default:
		return false
	}
}
