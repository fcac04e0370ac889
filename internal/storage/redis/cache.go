// Package redis is a Cache backed by Redis. Heights of cached blocks are tracked in a
// sorted set so the latest height is a single ZREVRANGE.
package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"

	"github.com/seleniumforest/cosmos-indexer/internal/storage"
)

const keyPrefix = "cosmos-indexer:"

// Options configures the Redis connection.
type Options struct {
	Addr     string
	Password string
	DB       int
}

// Cache stores entries under cosmos-indexer:<network>:<kind>:<height>.
type Cache struct {
	client  redis.UniversalClient
	network string
	owned   bool
}

// Open connects and pings Redis.
func Open(ctx context.Context, opts Options, network string) (*Cache, error) {
	if opts.Addr == "" {
		return nil, fmt.Errorf("redis addr is required")
	}
	rdb := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return &Cache{client: rdb, network: network, owned: true}, nil
}

// New wraps an existing client. Close leaves the client open.
func New(client redis.UniversalClient, network string) *Cache {
	return &Cache{client: client, network: network}
}

// ForNetwork shares the client with another network scope.
func (c *Cache) ForNetwork(network string) *Cache {
	return New(c.client, network)
}

func (c *Cache) entryKey(kind storage.Kind, height int64) string {
	return fmt.Sprintf("%s%s:%s:%d", keyPrefix, c.network, kind, height)
}

func (c *Cache) heightsKey() string {
	return keyPrefix + c.network + ":heights"
}

func (c *Cache) Get(ctx context.Context, kind storage.Kind, height int64, out interface{}) (bool, error) {
	data, err := c.client.Get(ctx, c.entryKey(kind, height)).Bytes()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if _, err := storage.DecodeRecord(data, out); err != nil {
		return false, err
	}
	return true, nil
}

func (c *Cache) Save(ctx context.Context, kind storage.Kind, height int64, chainID string, v interface{}) error {
	data, err := storage.EncodeRecord(chainID, v)
	if err != nil {
		return err
	}
	pipe := c.client.TxPipeline()
	pipe.Set(ctx, c.entryKey(kind, height), data, 0)
	if kind == storage.KindBlock {
		pipe.ZAdd(ctx, c.heightsKey(), redis.Z{Score: float64(height), Member: strconv.FormatInt(height, 10)})
	}
	_, err = pipe.Exec(ctx)
	return err
}

func (c *Cache) LatestHeight(ctx context.Context) (int64, bool, error) {
	res, err := c.client.ZRevRangeWithScores(ctx, c.heightsKey(), 0, 0).Result()
	if err != nil {
		return 0, false, err
	}
	if len(res) == 0 {
		return 0, false, nil
	}
	return int64(res[0].Score), true, nil
}

func (c *Cache) Close() error {
	if !c.owned {
		return nil
	}
	return c.client.Close()
}
