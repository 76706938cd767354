// Package app wires configuration into a ready-to-run evaluation pipeline.
package app

import (
	"context"
	"fmt"
	"io"

	"github.com/newthinker/confluence/internal/config"
	"github.com/newthinker/confluence/internal/confluence"
	"github.com/newthinker/confluence/internal/dsl"
	"github.com/newthinker/confluence/internal/ensemble"
	"github.com/newthinker/confluence/internal/ensemble/playbook"
	"github.com/newthinker/confluence/internal/gate"
	"github.com/newthinker/confluence/internal/metrics"
	"github.com/newthinker/confluence/internal/pipeline"
	"github.com/newthinker/confluence/internal/router"
	"github.com/newthinker/confluence/internal/sink"
	"go.uber.org/zap"
)

// App owns the components built from one configuration
type App struct {
	cfg      *config.Config
	logger   *zap.Logger
	catalog  *dsl.Catalog
	sinks    *sink.Registry
	router   *router.Router
	metrics  *metrics.Registry
	pipeline *pipeline.Pipeline
}

// New validates cfg and builds the pipeline. The JSON sink, when enabled,
// writes to out.
func New(cfg *config.Config, logger *zap.Logger, out io.Writer) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	catalog, err := dsl.LoadCatalog(cfg.DSL.Path)
	if err != nil {
		return nil, fmt.Errorf("loading strategies: %w", err)
	}

	var playbooks *playbook.Registry
	if cfg.Ensemble.Playbooks {
		playbooks = playbook.Default()
	}
	ens, err := ensemble.New(cfg.Ensemble.Weights, playbooks)
	if err != nil {
		return nil, err
	}

	g := gate.New(cfg.Gate, gate.WithEvaluator(confluence.NewEvaluator(cfg.Confluence.Weights)))

	sinks := sink.NewRegistry()
	if cfg.Sinks.Log {
		if err := sinks.Register(sink.NewLogSink(logger)); err != nil {
			return nil, err
		}
	}
	if cfg.Sinks.JSON && out != nil {
		if err := sinks.Register(sink.NewJSONSink(out)); err != nil {
			return nil, err
		}
	}

	var reg *metrics.Registry
	if cfg.Metrics.Enabled {
		reg = metrics.NewRegistry()
	}

	r := router.New(cfg.Router, sinks, logger)
	r.SetMetrics(reg)

	p, err := pipeline.New(pipeline.Components{
		Classifier: cfg.Regime,
		Catalog:    catalog,
		Gate:       g,
		Ensemble:   ens,
		Router:     r,
	}, cfg.Pipeline.Workers, logger, pipeline.WithMetrics(reg))
	if err != nil {
		return nil, err
	}

	logger.Info("pipeline ready",
		zap.Int("strategies", catalog.Len()),
		zap.Strings("sinks", sinks.Names()),
		zap.Strings("playbooks", playbooks.Symbols()),
		zap.Int("workers", cfg.Pipeline.Workers),
	)

	return &App{
		cfg:      cfg,
		logger:   logger,
		catalog:  catalog,
		sinks:    sinks,
		router:   r,
		metrics:  reg,
		pipeline: p,
	}, nil
}

// Start runs background maintenance until ctx is done. Router cooldowns
// are pruned every router.cleanup_interval; zero disables pruning.
func (a *App) Start(ctx context.Context) {
	if interval := a.cfg.Router.CleanupInterval; interval > 0 {
		a.router.StartCleanupRoutine(ctx, interval)
	}
}

// RouterStats reports the router's cooldown state
func (a *App) RouterStats() map[string]any { return a.router.GetStats() }

// Pipeline returns the evaluation pipeline
func (a *App) Pipeline() *pipeline.Pipeline { return a.pipeline }

// Catalog returns the loaded strategy catalog
func (a *App) Catalog() *dsl.Catalog { return a.catalog }

// Sinks returns the sink registry, for registering extra sinks
func (a *App) Sinks() *sink.Registry { return a.sinks }

// Metrics returns the metrics registry, nil when disabled
func (a *App) Metrics() *metrics.Registry { return a.metrics }

// Close writes the metrics textfile when one is configured
func (a *App) Close() error {
	if a.metrics == nil || a.cfg.Metrics.Textfile == "" {
		return nil
	}
	if err := a.metrics.WriteTextfile(a.cfg.Metrics.Textfile); err != nil {
		return fmt.Errorf("writing metrics: %w", err)
	}
	a.logger.Debug("metrics written", zap.String("path", a.cfg.Metrics.Textfile))
	return nil
}
