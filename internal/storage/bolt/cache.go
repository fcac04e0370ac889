// Package bolt is a Cache backed by a bbolt file, one bucket per network and kind.
package bolt

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/seleniumforest/cosmos-indexer/internal/storage"
)

var errClosed = errors.New("bolt cache closed")

// Cache stores entries under <network>/<kind> buckets keyed by big-endian height,
// so the last key of the block bucket is the latest cached height.
type Cache struct {
	db      *bolt.DB
	network []byte
	owned   bool
}

// Open opens (or creates) the database file and scopes the cache to network.
func Open(path, network string) (*Cache, error) {
	if path == "" {
		return nil, fmt.Errorf("bolt path is required")
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create cache dir: %w", err)
		}
	}
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("open bolt: %w", err)
	}
	return &Cache{db: db, network: []byte(network), owned: true}, nil
}

// ForNetwork shares the database with another network scope. Closing it leaves the db open.
func (c *Cache) ForNetwork(network string) *Cache {
	return &Cache{db: c.db, network: []byte(network)}
}

func heightKey(height int64) []byte {
	key := make([]byte, 8)
	binary.BigEndian.PutUint64(key, uint64(height))
	return key
}

func (c *Cache) bucket(tx *bolt.Tx, kind storage.Kind) *bolt.Bucket {
	root := tx.Bucket(c.network)
	if root == nil {
		return nil
	}
	return root.Bucket([]byte(kind))
}

func (c *Cache) Get(_ context.Context, kind storage.Kind, height int64, out interface{}) (bool, error) {
	if c.db == nil {
		return false, errClosed
	}
	var data []byte
	err := c.db.View(func(tx *bolt.Tx) error {
		b := c.bucket(tx, kind)
		if b == nil {
			return nil
		}
		if v := b.Get(heightKey(height)); v != nil {
			data = append([]byte(nil), v...)
		}
		return nil
	})
	if err != nil {
		return false, err
	}
	if data == nil {
		return false, nil
	}
	if _, err := storage.DecodeRecord(data, out); err != nil {
		return false, err
	}
	return true, nil
}

func (c *Cache) Save(_ context.Context, kind storage.Kind, height int64, chainID string, v interface{}) error {
	if c.db == nil {
		return errClosed
	}
	data, err := storage.EncodeRecord(chainID, v)
	if err != nil {
		return err
	}
	return c.db.Update(func(tx *bolt.Tx) error {
		root, err := tx.CreateBucketIfNotExists(c.network)
		if err != nil {
			return fmt.Errorf("create network bucket: %w", err)
		}
		b, err := root.CreateBucketIfNotExists([]byte(kind))
		if err != nil {
			return fmt.Errorf("create kind bucket: %w", err)
		}
		return b.Put(heightKey(height), data)
	})
}

func (c *Cache) LatestHeight(_ context.Context) (int64, bool, error) {
	if c.db == nil {
		return 0, false, errClosed
	}
	var (
		latest int64
		found  bool
	)
	err := c.db.View(func(tx *bolt.Tx) error {
		b := c.bucket(tx, storage.KindBlock)
		if b == nil {
			return nil
		}
		k, _ := b.Cursor().Last()
		if k == nil {
			return nil
		}
		latest = int64(binary.BigEndian.Uint64(k))
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
