package main

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"

	"go.uber.org/zap"

	"github.com/seleniumforest/cosmos-indexer/internal/config"
	"github.com/seleniumforest/cosmos-indexer/internal/indexer"
	"github.com/seleniumforest/cosmos-indexer/internal/storage"
	badgercache "github.com/seleniumforest/cosmos-indexer/internal/storage/badger"
	boltcache "github.com/seleniumforest/cosmos-indexer/internal/storage/bolt"
	"github.com/seleniumforest/cosmos-indexer/internal/storage/postgres"
	rediscache "github.com/seleniumforest/cosmos-indexer/internal/storage/redis"
)

// cacheBackend is one shared cache connection handing out per-network scopes.
type cacheBackend struct {
	open  indexer.CacheOpener
	state indexer.StateStore
	close func()
}

func openCacheBackend(ctx context.Context, cfg config.Cache, logger *zap.Logger) (*cacheBackend, error) {
	switch cfg.Driver {
	case storage.DriverNone:
		return &cacheBackend{close: func() {}}, nil

	case storage.DriverMemory:
		var mu sync.Mutex
		caches := make(map[string]*storage.Memory)
		return &cacheBackend{
			open: func(_ context.Context, network string) (storage.Cache, error) {
				mu.Lock()
				defer mu.Unlock()
				c, ok := caches[network]
				if !ok {
					c = storage.NewMemory()
					caches[network] = c
				}
				return c, nil
			},
			close: func() {},
		}, nil

	case storage.DriverBolt:
		db, err := boltcache.Open(cfg.Path, "")
		if err != nil {
			return nil, err
		}
		logger.Info("bolt cache opened", zap.String("path", cfg.Path))
		return &cacheBackend{
			open: func(_ context.Context, network string) (storage.Cache, error) {
				return db.ForNetwork(network), nil
			},
			close: func() { _ = db.Close() },
		}, nil

	case storage.DriverBadger:
		db, err := badgercache.Open(badgercache.Config{Path: cfg.Path}, "")
		if err != nil {
			return nil, err
		}
		logger.Info("badger cache opened", zap.String("path", cfg.Path))
		return &cacheBackend{
			open: func(_ context.Context, network string) (storage.Cache, error) {
				return db.ForNetwork(network), nil
			},
			close: func() { _ = db.Close() },
		}, nil

	case storage.DriverPostgres:
		store, err := postgres.NewStore(ctx, cfg.DSN)
		if err != nil {
			return nil, err
		}
		if err := store.Migrate(ctx); err != nil {
			store.Close()
			return nil, err
		}
		logger.Info("postgres cache opened", zap.String("dsn", redactDSN(cfg.DSN)))
		return &cacheBackend{
			open: func(_ context.Context, network string) (storage.Cache, error) {
				return store.Cache(network), nil
			},
			state: store,
			close: store.Close,
		}, nil

	case storage.DriverRedis:
		client, err := rediscache.Open(ctx, rediscache.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		}, "")
		if err != nil {
			return nil, err
		}
		logger.Info("redis cache opened", zap.String("addr", cfg.RedisAddr), zap.Int("db", cfg.RedisDB))
		return &cacheBackend{
			open: func(_ context.Context, network string) (storage.Cache, error) {
				return client.ForNetwork(network), nil
			},
			close: func() { _ = client.Close() },
		}, nil

	default:
		return nil, fmt.Errorf("unknown cache driver %q", cfg.Driver)
	}
}

// stateStore picks where checkpoints live: the postgres store when it is the cache,
// otherwise JSON files under outDir.
func (b *cacheBackend) stateStore(resume bool, outDir string) indexer.StateStore {
	if !resume {
		return nil
	}
	if b.state != nil {
		return b.state
	}
	return indexer.NewCheckpointStore(filepath.Join(outDir, "checkpoints"), true)
}

func redactDSN(dsn string) string {
	if dsn == "" {
		return dsn
	}
	return "***"
}
