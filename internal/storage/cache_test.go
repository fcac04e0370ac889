package storage

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/seleniumforest/cosmos-indexer/internal/model"
)

func TestCodecRoundTrip(t *testing.T) {
	block := model.DecodedBlock{
		Header: model.BlockHeader{Height: 7, ChainID: "juno-1"},
		Txs:    []model.DecodedTx{{Hash: "AA", Memo: "memo"}},
	}

	data, err := EncodeRecord("juno-1", block)
	require.NoError(t, err)

	var got model.DecodedBlock
	rec, err := DecodeRecord(data, &got)
	require.NoError(t, err)
	assert.Equal(t, "juno-1", rec.ChainID)
	assert.Equal(t, block, got)
}

func TestMemoryCache(t *testing.T) {
	ctx := context.Background()
	c := NewMemory()

	_, ok, err := c.LatestHeight(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, c.Save(ctx, KindBlock, 10, "x", model.DecodedBlock{Header: model.BlockHeader{Height: 10}}))
	require.NoError(t, c.Save(ctx, KindBlock, 42, "x", model.DecodedBlock{Header: model.BlockHeader{Height: 42}}))
	require.NoError(t, c.Save(ctx, KindResults, 99, "x", model.BlockResults{Height: 99}))

	latest, ok, err := c.LatestHeight(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, int64(42), latest, "only blocks move the latest height")

	var block model.DecodedBlock
	hit, err := c.Get(ctx, KindBlock, 42, &block)
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Equal(t, int64(42), block.Header.Height)

	hit, err = c.Get(ctx, KindResults, 42, &model.BlockResults{})
	require.NoError(t, err)
	assert.False(t, hit)
}

func TestNop(t *testing.T) {
	var c Cache = Nop{}
	assert.True(t, IsNop(c))
	assert.False(t, IsNop(NewMemory()))

	hit, err := c.Get(context.Background(), KindBlock, 1, &model.DecodedBlock{})
	require.NoError(t, err)
	assert.False(t, hit)
}

func TestParseDriver(t *testing.T) {
	d, err := ParseDriver("")
	require.NoError(t, err)
	assert.Equal(t, DriverNone, d)

	d, err = ParseDriver("Bolt")
	require.NoError(t, err)
	assert.Equal(t, DriverBolt, d)

	_, err = ParseDriver("sqlite")
	assert.Error(t, err)
}
