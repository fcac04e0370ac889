package bolt

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/seleniumforest/cosmos-indexer/internal/model"
	"github.com/seleniumforest/cosmos-indexer/internal/storage"
)

func TestBoltCache(t *testing.T) {
	ctx := context.Background()
	c, err := Open(filepath.Join(t.TempDir(), "cache.db"), "osmosis")
	require.NoError(t, err)
	defer c.Close()

	_, ok, err := c.LatestHeight(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	for _, h := range []int64{255, 256, 3} {
		require.NoError(t, c.Save(ctx, storage.KindBlock, h, "osmosis-1",
			model.DecodedBlock{Header: model.BlockHeader{Height: h, ChainID: "osmosis-1"}}))
	}

	latest, ok, err := c.LatestHeight(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, int64(256), latest)

	var got model.DecodedBlock
	hit, err := c.Get(ctx, storage.KindBlock, 255, &got)
	require.NoError(t, err)
	require.True(t, hit)
	assert.Equal(t, int64(255), got.Header.Height)

	hit, err = c.Get(ctx, storage.KindResults, 255, &model.BlockResults{})
	require.NoError(t, err)
	assert.False(t, hit)

	other := c.ForNetwork("juno")
	_, ok, err = other.LatestHeight(ctx)
	require.NoError(t, err)
	assert.False(t, ok, "networks are isolated")
	require.NoError(t, other.Close())

	_, ok, err = c.LatestHeight(ctx)
	require.NoError(t, err)
	assert.True(t, ok, "closing a shared scope keeps the db open")
}
