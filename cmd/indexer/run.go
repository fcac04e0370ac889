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
	"github.com/seleniumforest/cosmos-indexer/internal/pool"
	"github.com/seleniumforest/cosmos-indexer/internal/registry"
	"github.com/seleniumforest/cosmos-indexer/internal/storage"
)

func runBlocks(cmd *cobra.Command, _ []string) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(cfgFile, cmd.Flags())
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.MetricsAddr != "" {
		go serveMetrics(ctx, cfg.MetricsAddr, logger)
	}

	deps, err := newDeps(cfg, logger)
	if err != nil {
		return err
	}
	backend, err := openCacheBackend(ctx, cfg.Cache, logger)
	if err != nil {
		return fmt.Errorf("open cache: %w", err)
	}
	defer backend.close()
	deps.OpenCache = backend.open
	deps.State = backend.stateStore(cfg.Resume, cfg.OutDir)

	sinks := make(map[string]storage.Sink, len(cfg.Networks))
	networks := make([]indexer.Network, 0, len(cfg.Networks))
	for _, n := range cfg.Networks {
		sinks[n.Name] = storage.NewJsonlStorage(filepath.Join(cfg.OutDir, n.Name+".blocks.jsonl"))
		networks = append(networks, indexer.Network{
			Name:        n.Name,
			RPCURLs:     n.RPCURLs,
			FromBlock:   n.FromBlock,
			DataToFetch: n.Mode,
			Lag:         n.Lag,
			BatchSize:   n.BatchSize,
		})
		logger.Info("network configured",
			zap.String("network", n.Name),
			zap.Strings("rpcs", n.RPCURLs),
			zap.Int64("from", n.FromBlock),
			zap.String("mode", n.Mode.String()),
			zap.Int64("lag", n.Lag),
			zap.Int64("batch_size", n.BatchSize),
		)
	}

	handler := func(ctx context.Context, wctx indexer.Context, block model.ComposedBlock) error {
		logger.Debug("block delivered",
			zap.String("network", wctx.Network),
			zap.Int64("height", block.Height()),
			zap.String("kind", block.Kind.String()),
		)
		return sinks[wctx.Network].PutBlock(block)
	}

	watcher := indexer.NewWatcher(networks, watcherOptions(cfg), deps, handler, logger)

	logger.Info("watcher start",
		zap.Int("networks", len(networks)),
		zap.Bool("use_registry", cfg.UseRegistry),
		zap.Bool("trim", cfg.Trim),
		zap.String("cache", cfg.Cache.Driver),
		zap.String("out_dir", cfg.OutDir),
		zap.Bool("resume", cfg.Resume),
	)

	if err := watcher.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	logger.Info("watcher stopped")
	return nil
}

func watcherOptions(cfg config.Config) indexer.Options {
	return indexer.Options{
		Trim: cfg.Trim,
		Pool: pool.Config{
			UseRegistry: cfg.UseRegistry,
			SyncWindow:  cfg.SyncWindow,
		},
	}
}

// newDeps wires the chain registry when it is enabled. Without it chain ids come from block headers.
func newDeps(cfg config.Config, logger *zap.Logger) (indexer.Deps, error) {
	if !cfg.UseRegistry {
		return indexer.Deps{}, nil
	}
	reg, err := registry.New(registry.Config{
		URLs:    cfg.RegistryURLs,
		Offline: cfg.RegistryOffline,
	}, logger)
	if err != nil {
		return indexer.Deps{}, err
	}
	return indexer.Deps{Chains: reg}, nil
}
