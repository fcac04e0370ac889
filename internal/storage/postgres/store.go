package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/seleniumforest/cosmos-indexer/internal/storage"
)

const schema = `
CREATE TABLE IF NOT EXISTS cached_blocks (
	network    TEXT        NOT NULL,
	kind       TEXT        NOT NULL,
	height     BIGINT      NOT NULL,
	chain_id   TEXT        NOT NULL,
	data       BYTEA       NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (network, kind, height)
);
CREATE TABLE IF NOT EXISTS indexer_state (
	name        TEXT        PRIMARY KEY,
	last_height BIGINT      NOT NULL,
	updated_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);
`

// Store provides Postgres persistence for the block cache and watcher checkpoints.
type Store struct {
	pool *pgxpool.Pool
}

func NewStore(ctx context.Context, dsn string) (*Store, error) {
	if dsn == "" {
		return nil, fmt.Errorf("pg dsn is required")
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, err
	}
	return &Store{pool: pool}, nil
}

// Migrate creates the tables when missing.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// Cache returns a storage.Cache scoped to network. Closing it leaves the pool open.
func (s *Store) Cache(network string) *Cache {
	return &Cache{store: s, network: network}
}

// LoadState returns the last delivered height for a name.
func (s *Store) LoadState(ctx context.Context, name string) (int64, bool, error) {
	if name == "" {
		return 0, false, fmt.Errorf("state name required")
	}
	var height int64
	row := s.pool.QueryRow(ctx, `SELECT last_height FROM indexer_state WHERE name=$1`, name)
	if err := row.Scan(&height); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, false, nil
		}
		return 0, false, err
	}
	return height, true, nil
}

// SaveState upserts the last delivered height for a name.
func (s *Store) SaveState(ctx context.Context, name string, height int64) error {
	if name == "" {
		return fmt.Errorf("state name required")
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO indexer_state (name, last_height, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (name) DO UPDATE
		SET last_height = EXCLUDED.last_height, updated_at = now()
	`, name, height)
	return err
}

// Cache is the per-network view of cached_blocks.
type Cache struct {
	store   *Store
	network string
}

func (c *Cache) Get(ctx context.Context, kind storage.Kind, height int64, out interface{}) (bool, error) {
	var data []byte
	row := c.store.pool.QueryRow(ctx,
		`SELECT data FROM cached_blocks WHERE network=$1 AND kind=$2 AND height=$3`,
		c.network, string(kind), height)
	if err := row.Scan(&data); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil
		}
		return false, err
	}
	if err := storage.Decode(data, out); err != nil {
		return false, err
	}
	return true, nil
}

func (c *Cache) Save(ctx context.Context, kind storage.Kind, height int64, chainID string, v interface{}) error {
	data, err := storage.Encode(v)
	if err != nil {
		return err
	}
	_, err = c.store.pool.Exec(ctx, `
		INSERT INTO cached_blocks (network, kind, height, chain_id, data, updated_at)
		VALUES ($1, $2, $3, $4, $5, now())
		ON CONFLICT (network, kind, height)
		DO UPDATE SET
			chain_id = EXCLUDED.chain_id,
			data = EXCLUDED.data,
			updated_at = now()
	`, c.network, string(kind), height, chainID, data)
	return err
}

// SaveBatch upserts several heights of one kind in a single round trip.
func (c *Cache) SaveBatch(ctx context.Context, kind storage.Kind, chainID string, entries map[int64]interface{}) error {
	if len(entries) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for height, v := range entries {
		data, err := storage.Encode(v)
		if err != nil {
			return err
		}
		batch.Queue(`
			INSERT INTO cached_blocks (network, kind, height, chain_id, data, updated_at)
			VALUES ($1, $2, $3, $4, $5, now())
			ON CONFLICT (network, kind, height)
			DO UPDATE SET chain_id = EXCLUDED.chain_id, data = EXCLUDED.data, updated_at = now()
		`, c.network, string(kind), height, chainID, data)
	}

	br := c.store.pool.SendBatch(ctx, batch)
	defer br.Close()

	for range entries {
		if _, err := br.Exec(); err != nil {
			return err
		}
	}
	return nil
}

func (c *Cache) LatestHeight(ctx context.Context) (int64, bool, error) {
	var latest *int64
	row := c.store.pool.QueryRow(ctx,
		`SELECT MAX(height) FROM cached_blocks WHERE network=$1 AND kind=$2`,
		c.network, string(storage.KindBlock))
	if err := row.Scan(&latest); err != nil {
		return 0, false, err
	}
	if latest == nil {
		return 0, false, nil
	}
	return *latest, true, nil
}

func (c *Cache) Close() error { return nil }
