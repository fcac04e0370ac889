package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/seleniumforest/cosmos-indexer/internal/config"
	"github.com/seleniumforest/cosmos-indexer/internal/indexer"
	"github.com/seleniumforest/cosmos-indexer/internal/model"
	"github.com/seleniumforest/cosmos-indexer/internal/storage"
)

func runLogs(cmd *cobra.Command, _ []string) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.LoadLogs(cfgFile, cmd.Flags())
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	filters, err := indexer.ParseEventFilters(cfg.Query)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.MetricsAddr != "" {
		go serveMetrics(ctx, cfg.MetricsAddr, logger)
	}

	deps, err := newDeps(cfg.Config, logger)
	if err != nil {
		return err
	}
	if cfg.Resume {
		deps.State = indexer.NewCheckpointStore(filepath.Join(cfg.OutDir, "checkpoints"), true)
	}

	sinks := make(map[string]storage.Sink, len(cfg.Networks))
	networks := make([]indexer.LogsNetwork, 0, len(cfg.Networks))
	for _, n := range cfg.Networks {
		sinks[n.Name] = storage.NewJsonlStorage(filepath.Join(cfg.OutDir, n.Name+".txs.jsonl"))
		networks = append(networks, indexer.LogsNetwork{
			Name:      n.Name,
			RPCURLs:   n.RPCURLs,
			FromBlock: n.FromBlock,
			Filters:   filters,
			RangeSize: cfg.RangeSize,
		})
	}

	handler := func(ctx context.Context, lctx indexer.LogsContext, txs []model.IndexedTx) error {
		logger.Info("range delivered",
			zap.String("network", lctx.Network),
			zap.Int64("from", lctx.From),
			zap.Int64("to", lctx.To),
			zap.Int("txs", len(txs)),
		)
		if err := sinks[lctx.Network].PutTxs(txs); err != nil {
			return fmt.Errorf("write txs: %w", err)
		}
		return nil
	}

	watcher := indexer.NewLogsWatcher(networks, indexer.LogsOptions{
		Options:      watcherOptions(cfg.Config),
		PollInterval: cfg.PollInterval,
	}, deps, handler, logger)

	logger.Info("logs watcher start",
		zap.Int("networks", len(networks)),
		zap.Strings("query", cfg.Query),
		zap.Int64("range_size", cfg.RangeSize),
		zap.Duration("poll_interval", cfg.PollInterval),
		zap.String("out_dir", cfg.OutDir),
	)

	if err := watcher.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	logger.Info("logs watcher stopped")
	return nil
}
