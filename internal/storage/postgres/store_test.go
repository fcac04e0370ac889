package postgres

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/seleniumforest/cosmos-indexer/internal/model"
	"github.com/seleniumforest/cosmos-indexer/internal/storage"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	dsn := os.Getenv("INDEXER_TEST_PG_DSN")
	if dsn == "" {
		t.Skip("INDEXER_TEST_PG_DSN not set")
	}
	ctx := context.Background()
	store, err := NewStore(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(store.Close)
	require.NoError(t, store.Migrate(ctx))
	return store
}

func TestNewStoreRequiresDSN(t *testing.T) {
	_, err := NewStore(context.Background(), "")
	assert.Error(t, err)
}

func TestCacheRoundTrip(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	network := "test-" + t.Name()
	c := store.Cache(network)

	_, err := store.pool.Exec(ctx, `DELETE FROM cached_blocks WHERE network=$1`, network)
	require.NoError(t, err)

	_, ok, err := c.LatestHeight(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, c.Save(ctx, storage.KindBlock, 5, "test-1", model.DecodedBlock{Header: model.BlockHeader{Height: 5}}))
	require.NoError(t, c.SaveBatch(ctx, storage.KindBlock, "test-1", map[int64]interface{}{
		6: model.DecodedBlock{Header: model.BlockHeader{Height: 6}},
		7: model.DecodedBlock{Header: model.BlockHeader{Height: 7}},
	}))

	latest, ok, err := c.LatestHeight(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, int64(7), latest)

	var got model.DecodedBlock
	hit, err := c.Get(ctx, storage.KindBlock, 6, &got)
	require.NoError(t, err)
	require.True(t, hit)
	assert.Equal(t, int64(6), got.Header.Height)
}

func TestState(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	name := "state-" + t.Name()

	require.NoError(t, store.SaveState(ctx, name, 100))
	require.NoError(t, store.SaveState(ctx, name, 120))

	height, ok, err := store.LoadState(ctx, name)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, int64(120), height)
}
