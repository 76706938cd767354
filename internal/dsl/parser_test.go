package dsl

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/newthinker/confluence/internal/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const validJSON = `
{"schema_version": 1, "strategies": [{"name": "test", "regime_allow": ["trend"], "features": [{}], "trigger": {"all": ["expr"]}, "filters": {"all": ["expr"]}, "entry": {"type": "market"}, "exit": {"stop": "test"}, "risk": {"method": "test"}, "routing": {"prefer": "market"}}]}
`

func TestParse_ValidJSON(t *testing.T) {
	defs, err := Parse([]byte(validJSON))
	require.NoError(t, err)
	require.Len(t, defs, 1)

	d := defs[0]
	assert.Equal(t, "test", d.Name)
	assert.Equal(t, []core.Regime{core.RegimeTrend}, d.Regimes)
	assert.Equal(t, []string{"expr"}, d.Trigger["all"])
	assert.Equal(t, []string{"expr"}, d.Filters["all"])
	assert.Equal(t, "market", d.Entry["type"])
	assert.Len(t, d.Features, 1)
}

func TestParse_ValidYAML(t *testing.T) {
	doc := `
strategies:
  - name: "  pullback  "
    regime_allow: [trend, VOLATILE_TREND]
    features:
      - {ema: H1_200}
    trigger:
      all: ["  close > ema  ", "", "   "]
      any: []
    filters:
      all: ["relvol > q70"]
    entry: {type: limit, ttl_bars: 3}
    exit: {stop: "k1 * atr"}
    risk: {method: kelly_capped, max_frac: 0.01}
    routing: {prefer: market_on_signal}
`
	defs, err := Parse([]byte(doc))
	require.NoError(t, err)
	require.Len(t, defs, 1)

	d := defs[0]
	assert.Equal(t, "pullback", d.Name)
	assert.Equal(t, []core.Regime{core.RegimeTrend, core.RegimeVolatileTrend}, d.Regimes)
	assert.Equal(t, []string{"close > ema"}, d.Trigger["all"])
	assert.Empty(t, d.Trigger["any"])
	assert.Equal(t, []string{"all", "any"}, d.Trigger.Groups())
	assert.Equal(t, 3, d.Entry["ttl_bars"])
	assert.True(t, d.AllowsRegime(core.RegimeVolatileTrend))
	assert.False(t, d.AllowsRegime(core.RegimeQuiet))
}

func TestParse_Errors(t *testing.T) {
	base := func(mutate string) string {
		return `{"strategies": [{` + mutate + `}]}`
	}
	full := `"name": "s1", "regime_allow": ["trend"], "features": [], "trigger": {"all": []}, "filters": {"all": []}, "entry": {}, "exit": {}, "risk": {}, "routing": {}`

	tests := []struct {
		name    string
		doc     string
		code    *core.Error
		wantMsg []string
	}{
		{
			name:    "root not mapping",
			doc:     `[1, 2, 3]`,
			code:    core.ErrDSLInvalid,
			wantMsg: []string{"root must be a mapping"},
		},
		{
			name:    "empty document",
			doc:     ``,
			code:    core.ErrDSLInvalid,
			wantMsg: []string{"root must be a mapping"},
		},
		{
			name:    "unsupported schema version",
			doc:     `{"schema_version": 2, "strategies": []}`,
			code:    core.ErrDSLUnsupportedVersion,
			wantMsg: []string{"schema_version 2"},
		},
		{
			name:    "string schema version",
			doc:     `{"schema_version": "1", "strategies": []}`,
			code:    core.ErrDSLUnsupportedVersion,
			wantMsg: []string{"schema_version"},
		},
		{
			name:    "strategies not a list",
			doc:     `{"strategies": {"name": "x"}}`,
			code:    core.ErrDSLInvalid,
			wantMsg: []string{"strategies must be a list"},
		},
		{
			name:    "entry not a mapping",
			doc:     `{"strategies": ["nope"]}`,
			code:    core.ErrDSLInvalid,
			wantMsg: []string{"strategies[0] must be a mapping"},
		},
		{
			name:    "missing fields named and sorted",
			doc:     base(`"name": "alpha", "regime_allow": ["trend"], "features": []`),
			code:    core.ErrDSLInvalid,
			wantMsg: []string{`strategy "alpha"`, "missing fields [entry, exit, filters, risk, routing, trigger]"},
		},
		{
			name:    "missing fields unnamed uses index",
			doc:     base(`"regime_allow": ["trend"]`),
			code:    core.ErrDSLInvalid,
			wantMsg: []string{"strategy #0", "name"},
		},
		{
			name:    "blank name",
			doc:     base(strings.Replace(full, `"name": "s1"`, `"name": "   "`, 1)),
			code:    core.ErrDSLInvalid,
			wantMsg: []string{"name must be a non-empty string"},
		},
		{
			name:    "non-string name",
			doc:     base(strings.Replace(full, `"name": "s1"`, `"name": 7`, 1)),
			code:    core.ErrDSLInvalid,
			wantMsg: []string{"name must be a non-empty string"},
		},
		{
			name:    "unknown regime",
			doc:     base(strings.Replace(full, `["trend"]`, `["invalid"]`, 1)),
			code:    core.ErrDSLInvalid,
			wantMsg: []string{`strategy "s1"`, `"invalid"`},
		},
		{
			name:    "empty regime list",
			doc:     base(strings.Replace(full, `["trend"]`, `[]`, 1)),
			code:    core.ErrDSLInvalid,
			wantMsg: []string{"regime_allow must be a non-empty list"},
		},
		{
			name:    "features not a list",
			doc:     base(strings.Replace(full, `"features": []`, `"features": {"ema": 1}`, 1)),
			code:    core.ErrDSLInvalid,
			wantMsg: []string{"features must be a list"},
		},
		{
			name:    "feature item not a mapping",
			doc:     base(strings.Replace(full, `"features": []`, `"features": ["ema"]`, 1)),
			code:    core.ErrDSLInvalid,
			wantMsg: []string{"features[0] must be a mapping"},
		},
		{
			name:    "trigger not a mapping",
			doc:     base(strings.Replace(full, `"trigger": {"all": []}`, `"trigger": ["x"]`, 1)),
			code:    core.ErrDSLInvalid,
			wantMsg: []string{"trigger must be a mapping"},
		},
		{
			name:    "filter group not a list",
			doc:     base(strings.Replace(full, `"filters": {"all": []}`, `"filters": {"all": "x > 1"}`, 1)),
			code:    core.ErrDSLInvalid,
			wantMsg: []string{"filters.all must be a list"},
		},
		{
			name:    "non-string expression",
			doc:     base(strings.Replace(full, `"trigger": {"all": []}`, `"trigger": {"all": ["ok", 3]}`, 1)),
			code:    core.ErrDSLInvalid,
			wantMsg: []string{"trigger.all[1] must be a string"},
		},
		{
			name:    "routing not a mapping",
			doc:     base(strings.Replace(full, `"routing": {}`, `"routing": "market"`, 1)),
			code:    core.ErrDSLInvalid,
			wantMsg: []string{"routing must be a mapping"},
		},
		{
			name:    "duplicate names",
			doc:     `{"strategies": [{` + full + `}, {` + full + `}]}`,
			code:    core.ErrDSLInvalid,
			wantMsg: []string{"duplicate name"},
		},
		{
			name:    "malformed text",
			doc:     `{"strategies": [`,
			code:    core.ErrDSLInvalid,
			wantMsg: []string{"decoding document"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			defs, err := Parse([]byte(tt.doc))
			require.Error(t, err)
			assert.Nil(t, defs, "no partial result on failure")
			assert.True(t, errors.Is(err, tt.code), "expected code %s, got %v", tt.code.Code, err)
			assert.True(t, errors.Is(err, core.ErrDSLInvalid), "every validation failure is DSL_INVALID")
			for _, msg := range tt.wantMsg {
				assert.Contains(t, err.Error(), msg)
			}
		})
	}
}

func TestParse_UnsupportedVersionCodes(t *testing.T) {
	_, err := Parse([]byte(`{"schema_version": 2, "strategies": []}`))
	require.Error(t, err)
	assert.True(t, errors.Is(err, core.ErrDSLUnsupportedVersion))
	assert.True(t, errors.Is(err, core.ErrDSLInvalid))
	assert.False(t, errors.Is(err, core.ErrDSLReadFailed))
}

func TestParse_FailureRejectsWholeDocument(t *testing.T) {
	doc := `{"strategies": [
{"name": "good", "regime_allow": ["trend"], "features": [], "trigger": {}, "filters": {}, "entry": {}, "exit": {}, "risk": {}, "routing": {}},
{"name": "bad", "regime_allow": ["sideways"], "features": [], "trigger": {}, "filters": {}, "entry": {}, "exit": {}, "risk": {}, "routing": {}}
]}`
	defs, err := Parse([]byte(doc))
	require.Error(t, err)
	assert.Nil(t, defs)
	assert.Contains(t, err.Error(), `strategy "bad"`)
}

func TestParse_MissingStrategiesIsEmpty(t *testing.T) {
	defs, err := Parse([]byte(`{"schema_version": 1}`))
	require.NoError(t, err)
	assert.Empty(t, defs)
}

func TestParse_CopiesMappings(t *testing.T) {
	defs, err := Parse([]byte(validJSON))
	require.NoError(t, err)

	raw := defs[0].Raw()
	raw["entry"].(map[string]any)["type"] = "limit"
	assert.Equal(t, "market", defs[0].Entry["type"], "Raw must return a copy")

	for _, key := range []string{"features", "trigger", "filters", "entry", "exit", "risk", "routing"} {
		assert.Contains(t, raw, key)
	}
}

func TestParseFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "strategies.yaml")
	require.NoError(t, os.WriteFile(path, []byte(validJSON), 0644))

	defs, err := ParseFile(path)
	require.NoError(t, err)
	assert.Equal(t, "test", defs[0].Name)

	_, err = ParseFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.True(t, errors.Is(err, core.ErrDSLReadFailed))
}

func TestParseFile_StrategyPack(t *testing.T) {
	defs, err := ParseFile(filepath.Join("..", "..", "configs", "strategies.yaml"))
	require.NoError(t, err)
	require.Len(t, defs, 10)

	assert.Equal(t, "htf_trend_pullback", defs[0].Name)
	assert.Equal(t, []string{"close(H1) > ema(H1,200)", "macd_hist(M1) crosses_up 0", "rsi(M1) > 40"}, defs[0].Trigger["all"])

	for _, d := range defs {
		assert.NotEmpty(t, d.Regimes, d.Name)
	}
}
