package dsl

import "github.com/newthinker/confluence/internal/core"

// Catalog is a read-only, order-preserving view over validated strategies
type Catalog struct {
	defs   []StrategyDefinition
	byName map[string]int
}

// NewCatalog indexes defs by name. Later duplicates shadow earlier ones,
// which Parse never produces.
func NewCatalog(defs []StrategyDefinition) *Catalog {
	c := &Catalog{
		defs:   make([]StrategyDefinition, len(defs)),
		byName: make(map[string]int, len(defs)),
	}
	copy(c.defs, defs)
	for i, d := range c.defs {
		c.byName[d.Name] = i
	}
	return c
}

// LoadCatalog parses the rule document at path into a Catalog
func LoadCatalog(path string) (*Catalog, error) {
	defs, err := ParseFile(path)
	if err != nil {
		return nil, err
	}
	return NewCatalog(defs), nil
}

// Len returns the number of strategies
func (c *Catalog) Len() int {
	if c == nil {
		return 0
	}
	return len(c.defs)
}

// Get retrieves a strategy by name
func (c *Catalog) Get(name string) (StrategyDefinition, bool) {
	if c == nil {
		return StrategyDefinition{}, false
	}
	i, ok := c.byName[name]
	if !ok {
		return StrategyDefinition{}, false
	}
	return c.defs[i], true
}

// Names returns strategy names in document order
func (c *Catalog) Names() []string {
	if c == nil {
		return nil
	}
	names := make([]string, len(c.defs))
	for i, d := range c.defs {
		names[i] = d.Name
	}
	return names
}

// AllowedIn returns the strategies whose regime_allow contains r, in document order
func (c *Catalog) AllowedIn(r core.Regime) []StrategyDefinition {
	if c == nil {
		return nil
	}
	var out []StrategyDefinition
	for _, d := range c.defs {
		if d.AllowsRegime(r) {
			out = append(out, d)
		}
	}
	return out
}
