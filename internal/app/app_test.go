package app

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/newthinker/confluence/internal/config"
	"github.com/newthinker/confluence/internal/core"
	"github.com/newthinker/confluence/internal/gate"
	"github.com/newthinker/confluence/internal/pipeline"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Defaults()
	cfg.DSL.Path = filepath.Join("..", "..", "configs", "strategies.yaml")
	cfg.Sinks.Log = false
	cfg.Sinks.JSON = true
	return cfg
}

func ptr(v float64) *float64 { return &v }

func goldSnapshot() pipeline.Snapshot {
	return pipeline.Snapshot{
		Gate: gate.Inputs{
			Symbol: "XAUUSD",
			Price:  2000.0,
			TimeframeFeatures: map[string]map[string]float64{
				"HTF": {"ema_fast": 2010.0, "ema_slow": 1990.0, "adx": 25.0},
				"LTF": {"macd_hist": 0.8, "rsi": 62.0},
				"MTF": {"swing_low": 1985.0},
			},
			VolumeFeatures:    map[string]float64{"rel_volume": 0.85},
			OrderflowFeatures: map[string]float64{"imbalance": 0.35},
			MLProbability:     ptr(0.72),
			CreatedAt:         time.Date(2024, 5, 1, 9, 30, 0, 0, time.UTC),
		},
		OrderflowScore:   0.6,
		FeatureOverrides: map[string]float64{"relative_volume": 0.9, "session_overlap": 1},
	}
}

func TestNew_BuildsPipeline(t *testing.T) {
	var out bytes.Buffer
	a, err := New(testConfig(t), nil, &out)
	require.NoError(t, err)

	assert.Equal(t, 10, a.Catalog().Len())
	assert.Equal(t, []string{"json"}, a.Sinks().Names())
	assert.NotNil(t, a.Metrics())

	d, err := a.Pipeline().Process(context.Background(), goldSnapshot())
	require.NoError(t, err)
	assert.True(t, d.Routed)
	assert.Contains(t, d.Eligible, "htf_trend_pullback")
	assert.Contains(t, out.String(), `"symbol":"XAUUSD"`)
}

func TestNew_InvalidConfig(t *testing.T) {
	cfg := testConfig(t)
	cfg.Pipeline.Workers = 0

	_, err := New(cfg, nil, nil)
	assert.True(t, errors.Is(err, core.ErrConfigInvalid))
}

func TestNew_MissingRules(t *testing.T) {
	cfg := testConfig(t)
	cfg.DSL.Path = filepath.Join(t.TempDir(), "none.yaml")

	_, err := New(cfg, nil, nil)
	assert.True(t, errors.Is(err, core.ErrDSLReadFailed))
}

func TestClose_WritesMetrics(t *testing.T) {
	cfg := testConfig(t)
	cfg.Metrics.Textfile = filepath.Join(t.TempDir(), "confluence.prom")

	a, err := New(cfg, nil, nil)
	require.NoError(t, err)
	require.NoError(t, a.Close())

	data, err := os.ReadFile(cfg.Metrics.Textfile)
	require.NoError(t, err)
	assert.Contains(t, string(data), "confluence_strategies_loaded 10")
}

func TestClose_MetricsDisabled(t *testing.T) {
	cfg := testConfig(t)
	cfg.Metrics.Enabled = false
	cfg.Metrics.Textfile = filepath.Join(t.TempDir(), "confluence.prom")

	a, err := New(cfg, nil, nil)
	require.NoError(t, err)
	assert.Nil(t, a.Metrics())
	require.NoError(t, a.Close())

	_, err = os.Stat(cfg.Metrics.Textfile)
	assert.True(t, os.IsNotExist(err))
}

func TestStart_RouterMaintenance(t *testing.T) {
	cfg := testConfig(t)
	cfg.Router.CleanupInterval = time.Millisecond

	a, err := New(cfg, nil, nil)
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	a.Start(ctx)

	d, err := a.Pipeline().Process(ctx, goldSnapshot())
	require.NoError(t, err)
	require.True(t, d.Routed)

	// the fresh cooldown is measured against its own symbol's latest instant
	// and survives the cleanup ticks
	time.Sleep(10 * time.Millisecond)
	stats := a.RouterStats()
	assert.Equal(t, 1, stats["cooldowns_active"])
	assert.Equal(t, 1, stats["symbols_seen"])
	assert.Equal(t, 300.0, stats["cooldown_seconds"])
}

func TestStart_CleanupDisabled(t *testing.T) {
	cfg := testConfig(t)
	cfg.Router.CleanupInterval = 0

	a, err := New(cfg, nil, nil)
	require.NoError(t, err)
	a.Start(context.Background())
	assert.Equal(t, 0, a.RouterStats()["cooldowns_active"])
}
