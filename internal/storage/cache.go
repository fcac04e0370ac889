package storage

import (
	"context"
	"fmt"
	"strings"
)

// Kind separates the cached payload types of one height.
type Kind string

const (
	KindBlock      Kind = "block"
	KindResults    Kind = "results"
	KindIndexedTxs Kind = "indexed_txs"
)

// Cache stores composed payloads per height for one network. Entries are authoritative:
// once saved, a height is served from the cache and never refetched.
type Cache interface {
	// Get decodes the entry into out and reports whether it existed.
	Get(ctx context.Context, kind Kind, height int64, out interface{}) (bool, error)
	// Save upserts the entry; the last write wins.
	Save(ctx context.Context, kind Kind, height int64, chainID string, v interface{}) error
	// LatestHeight returns the highest cached block height.
	LatestHeight(ctx context.Context) (int64, bool, error)
	Close() error
}

// Driver names accepted by the cache config.
const (
	DriverNone     = "none"
	DriverMemory   = "memory"
	DriverBolt     = "bolt"
	DriverBadger   = "badger"
	DriverPostgres = "postgres"
	DriverRedis    = "redis"
)

// ParseDriver normalizes a driver name. Empty input means none.
func ParseDriver(name string) (string, error) {
	switch d := strings.ToLower(strings.TrimSpace(name)); d {
	case "", DriverNone:
		return DriverNone, nil
	case DriverMemory, DriverBolt, DriverBadger, DriverPostgres, DriverRedis:
		return d, nil
	default:
		return "", fmt.Errorf("unknown cache driver %q", name)
	}
}

// Nop is the cache used when caching is disabled. It never hits.
type Nop struct{}

func (Nop) Get(context.Context, Kind, int64, interface{}) (bool, error) { return false, nil }

func (Nop) Save(context.Context, Kind, int64, string, interface{}) error { return nil }

func (Nop) LatestHeight(context.Context) (int64, bool, error) { return 0, false, nil }

func (Nop) Close() error { return nil }

// IsNop reports whether c is the disabled cache.
func IsNop(c Cache) bool {
	if c == nil {
		return true
	}
	_, ok := c.(Nop)
	return ok
}
