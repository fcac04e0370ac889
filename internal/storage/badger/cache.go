// Package badger is a Cache backed by a badger key-value store.
package badger

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v4"

	"github.com/seleniumforest/cosmos-indexer/internal/storage"
)

// Config holds badger cache options.
type Config struct {
	// Path is the database directory. Ignored when InMemory is set.
	Path     string
	InMemory bool
}

// Cache keys entries as <network>/<kind>/<big-endian height>.
type Cache struct {
	db      *badger.DB
	network string
	owned   bool
}

// Open opens the database and scopes the cache to network.
func Open(cfg Config, network string) (*Cache, error) {
	if cfg.Path == "" && !cfg.InMemory {
		return nil, fmt.Errorf("badger path is required")
	}
	opts := badger.DefaultOptions(cfg.Path)
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	}
	opts = opts.WithLogger(nil)

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger: %w", err)
	}
	return &Cache{db: db, network: network, owned: true}, nil
}

// ForNetwork shares the database with another network scope.
func (c *Cache) ForNetwork(network string) *Cache {
	return &Cache{db: c.db, network: network}
}

func (c *Cache) prefix(kind storage.Kind) []byte {
	return []byte(c.network + "/" + string(kind) + "/")
}

func (c *Cache) key(kind storage.Kind, height int64) []byte {
	key := c.prefix(kind)
	return binary.BigEndian.AppendUint64(key, uint64(height))
}

func (c *Cache) Get(_ context.Context, kind storage.Kind, height int64, out interface{}) (bool, error) {
	var data []byte
	err := c.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(c.key(kind, height))
		if err != nil {
			return err
		}
		data, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
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

func (c *Cache) Save(_ context.Context, kind storage.Kind, height int64, chainID string, v interface{}) error {
	data, err := storage.EncodeRecord(chainID, v)
	if err != nil {
		return err
	}
	return c.db.Update(func(txn *badger.Txn) error {
		return txn.Set(c.key(kind, height), data)
	})
}

func (c *Cache) LatestHeight(_ context.Context) (int64, bool, error) {
	prefix := c.prefix(storage.KindBlock)
	var (
		latest int64
		found  bool
	)
	err := c.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Reverse = true
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		// seek past the largest possible key of the prefix
		seek := append(append([]byte(nil), prefix...), 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff)
		it.Seek(seek)
		if !it.ValidForPrefix(prefix) {
			return nil
		}
		key := it.Item().Key()
		latest = int64(binary.BigEndian.Uint64(key[len(prefix):]))
		found = true
		return nil
	})
	return latest, found, err
}

func (c *Cache) Close() error {
	if c.db == nil || !c.owned {
		return nil
	}
	err := c.db.Close()
	c.db = nil
	return err
}
