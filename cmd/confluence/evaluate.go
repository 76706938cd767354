package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/newthinker/confluence/internal/app"
	"github.com/newthinker/confluence/internal/config"
	"github.com/newthinker/confluence/internal/logger"
	"github.com/newthinker/confluence/internal/pipeline"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	evaluateRules   string
	evaluateMetrics string
)

var evaluateCmd = &cobra.Command{
	Use:   "evaluate [snapshots.yaml]",
	Short: "Evaluate feature snapshots",
	Long:  "Run a YAML or JSON list of feature snapshots through the pipeline and print one JSON decision per line",
	Args:  cobra.ExactArgs(1),
	RunE:  runEvaluate,
}

func init() {
	evaluateCmd.Flags().StringVar(&evaluateRules, "rules", "", "strategy rule document (overrides dsl.path)")
	evaluateCmd.Flags().StringVar(&evaluateMetrics, "metrics-file", "", "write Prometheus metrics to this file on exit")
	rootCmd.AddCommand(evaluateCmd)
}

func loadConfig() (*config.Config, error) {
	if cfgFile == "" {
		return config.Defaults(), nil
	}
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	return cfg, nil
}

func runEvaluate(cmd *cobra.Command, args []string) (err error) {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if debug {
		cfg.Log.Development = true
		cfg.Log.Level = "debug"
	}
	if evaluateRules != "" {
		cfg.DSL.Path = evaluateRules
	}
	if evaluateMetrics != "" {
		cfg.Metrics.Enabled = true
		cfg.Metrics.Textfile = evaluateMetrics
	}

	log, err := logger.New(cfg.Log.Development, cfg.Log.Level)
	if err != nil {
		return err
	}
	defer log.Sync()

	if cfgFile == "" {
		log.Warn("no config file specified, using defaults")
	}

	a, err := app.New(cfg, log, cmd.OutOrStdout())
	if err != nil {
		return err
	}
	// metrics are written on failure too
	defer func() {
		err = errors.Join(err, a.Close())
	}()
	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()
	a.Start(ctx)

	snaps, err := pipeline.LoadSnapshots(args[0])
	if err != nil {
		return err
	}

	decisions, err := a.Pipeline().ProcessBatch(ctx, snaps)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	emitted, routed := 0, 0
	for _, d := range decisions {
		if err := enc.Encode(d); err != nil {
			return fmt.Errorf("writing decision: %w", err)
		}
		if d.Emitted {
			emitted++
		}
		if d.Routed {
			routed++
		}
	}

	log.Info("evaluation complete",
		zap.Int("snapshots", len(snaps)),
		zap.Int("emitted", emitted),
		zap.Int("routed", routed),
		zap.Any("router", a.RouterStats()),
	)
	return nil
}
