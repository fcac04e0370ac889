package indexer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/seleniumforest/cosmos-indexer/internal/chain"
	"github.com/seleniumforest/cosmos-indexer/internal/fetch"
	"github.com/seleniumforest/cosmos-indexer/internal/metrics"
	"github.com/seleniumforest/cosmos-indexer/internal/model"
	"github.com/seleniumforest/cosmos-indexer/internal/pool"
	"github.com/seleniumforest/cosmos-indexer/internal/registry"
	"github.com/seleniumforest/cosmos-indexer/internal/retry"
	"github.com/seleniumforest/cosmos-indexer/internal/storage"
)

const DefaultRestartCooldown = time.Minute

// Network is one chain the indexer follows.
type Network struct {
	Name        string
	RPCURLs     []string
	FromBlock   int64
	DataToFetch model.DataToFetch
	// Lag keeps the cursor this many blocks behind the head.
	Lag       int64
	BatchSize int64
}

// ChainResolver answers chain metadata and RPC discovery. *registry.Registry implements it.
type ChainResolver interface {
	Lookup(ctx context.Context, name string) (registry.Chain, error)
	RPCURLs(ctx context.Context, name string) ([]string, error)
}

// CacheOpener opens the cache for one network. The watcher closes it when the worker stops.
type CacheOpener func(ctx context.Context, network string) (storage.Cache, error)

// Deps are the collaborators shared by every network worker.
type Deps struct {
	Chains    ChainResolver
	Dial      chain.Dialer
	OpenCache CacheOpener
	// State, when set, persists the last delivered height and resumes from it.
	State StateStore
	Sleep func(ctx context.Context, d time.Duration) error
}

func (d Deps) sleep(ctx context.Context, dur time.Duration) error {
	if d.Sleep != nil {
		return d.Sleep(ctx, dur)
	}
	return retry.SleepContext(ctx, dur)
}

// networkEnv is everything a worker builds for one network on start.
type networkEnv struct {
	chain   registry.Chain
	pool    *pool.Pool
	cache   storage.Cache
	fetcher *fetch.Fetcher
}

func (e *networkEnv) close() {
	e.pool.Close()
	_ = e.cache.Close()
}

func openNetwork(ctx context.Context, n Network, opts Options, deps Deps, withCache bool, logger *zap.Logger) (*networkEnv, error) {
	chainInfo := registry.Chain{ChainName: n.Name}
	if deps.Chains != nil {
		info, err := deps.Chains.Lookup(ctx, n.Name)
		if err != nil {
			return nil, fmt.Errorf("lookup %s: %w", n.Name, err)
		}
		chainInfo = info
	}

	var cache storage.Cache = storage.Nop{}
	if withCache && deps.OpenCache != nil {
		c, err := deps.OpenCache(ctx, n.Name)
		if err != nil {
			return nil, fmt.Errorf("open cache: %w", err)
		}
		if c != nil {
			cache = c
		}
	}

	poolCfg := opts.Pool
	poolCfg.Network = n.Name
	poolCfg.RPCURLs = n.RPCURLs
	poolCfg.DataToFetch = n.DataToFetch
	poolCfg.FromBlock = n.FromBlock
	poolCfg.AllowEmpty = !storage.IsNop(cache)

	var discoverer pool.Discoverer
	if deps.Chains != nil {
		discoverer = deps.Chains
	}
	p, err := pool.Build(ctx, poolCfg, discoverer, deps.Dial, logger)
	if err != nil {
		_ = cache.Close()
		return nil, err
	}
	if p.Len() == 0 {
		logger.Warn("no live endpoints, serving from cache only", zap.String("network", n.Name))
	}
	p.Start(ctx)

	fetchCfg := opts.Fetch
	fetchCfg.Network = n.Name
	fetchCfg.ChainID = chainInfo.ChainID
	fetchCfg.Trim = opts.Trim

	return &networkEnv{
		chain:   chainInfo,
		pool:    p,
		cache:   cache,
		fetcher: fetch.New(fetchCfg, p, cache, logger),
	}, nil
}

// supervise runs work until ctx ends, restarting it after a cooldown when it fails.
// An unknown network is not retried.
func supervise(ctx context.Context, network string, cooldown time.Duration, sleep func(context.Context, time.Duration) error, logger *zap.Logger, work func(context.Context) error) {
	for {
		err := work(ctx)
		if ctx.Err() != nil {
			return
		}
		if errors.Is(err, model.ErrUnknownNetwork) {
			logger.Error("network stopped", zap.String("network", network), zap.Error(err))
			return
		}
		logger.Error("network worker failed, restarting",
			zap.String("network", network),
			zap.Duration("cooldown", cooldown),
			zap.Error(err),
		)
		metrics.WorkerRestarts.WithLabelValues(network).Inc()
		if sleep(ctx, cooldown) != nil {
			return
		}
	}
}
