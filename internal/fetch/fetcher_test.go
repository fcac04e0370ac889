package fetch

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/encoding/protowire"

	"github.com/seleniumforest/cosmos-indexer/internal/chain"
	"github.com/seleniumforest/cosmos-indexer/internal/chain/chaintest"
	"github.com/seleniumforest/cosmos-indexer/internal/model"
	"github.com/seleniumforest/cosmos-indexer/internal/pool"
	"github.com/seleniumforest/cosmos-indexer/internal/storage"
)

func encodeTx(typeURL string, value []byte) []byte {
	var anyMsg []byte
	anyMsg = protowire.AppendTag(anyMsg, 1, protowire.BytesType)
	anyMsg = protowire.AppendString(anyMsg, typeURL)
	anyMsg = protowire.AppendTag(anyMsg, 2, protowire.BytesType)
	anyMsg = protowire.AppendBytes(anyMsg, value)

	var body []byte
	body = protowire.AppendTag(body, 1, protowire.BytesType)
	body = protowire.AppendBytes(body, anyMsg)

	var raw []byte
	raw = protowire.AppendTag(raw, 1, protowire.BytesType)
	raw = protowire.AppendBytes(raw, body)
	return raw
}

var _ Endpoints = (*pool.Pool)(nil)

func newPool(nodes ...*chaintest.Node) *pool.Pool {
	eps := make([]*pool.Endpoint, len(nodes))
	for i, node := range nodes {
		eps[i] = pool.NewEndpoint("http://node-"+string(rune('a'+i)), false, node)
	}
	return pool.New(pool.Config{Network: "testnet"}, eps, nil)
}

func testConfig() Config {
	return Config{
		Network:            "testnet",
		ChainID:            "testnet-1",
		HeightTimeout:      200 * time.Millisecond,
		BlockTimeout:       200 * time.Millisecond,
		ResultsTimeout:     200 * time.Millisecond,
		StatusPollInterval: 10 * time.Millisecond,
	}
}

func TestBlockServedFromCache(t *testing.T) {
	ctx := context.Background()
	cache := storage.NewMemory()
	require.NoError(t, cache.Save(ctx, storage.KindBlock, 42, "testnet-1",
		model.DecodedBlock{Header: model.BlockHeader{Height: 42}}))

	node := chaintest.NewNode(100)
	f := New(testConfig(), newPool(node), cache, nil)

	block, err := f.Block(ctx, 42)
	require.NoError(t, err)
	assert.Equal(t, int64(42), block.Header.Height)
	assert.Zero(t, node.Calls(), "cache hit must not touch endpoints")
}

func TestBlockFailover(t *testing.T) {
	bad := chaintest.NewNode(100)
	bad.Fail(model.ErrEndpointUnreachable)
	good := chaintest.NewNode(100)
	good.AddBlock(7, encodeTx("/cosmos.bank.v1beta1.MsgSend", []byte("x")))

	p := newPool(bad, good)
	f := New(testConfig(), p, nil, nil)

	block, err := f.Block(context.Background(), 7)
	require.NoError(t, err)
	require.Len(t, block.Txs, 1)
	assert.Equal(t, "/cosmos.bank.v1beta1.MsgSend", block.Txs[0].Messages[0].TypeURL)

	stats := p.Status()
	assert.Equal(t, int64(1), stats[0].Fail)
	assert.Equal(t, int64(1), stats[1].OK)
}

func TestBlockExhausted(t *testing.T) {
	a := chaintest.NewNode(100)
	a.Fail(errors.New("rate limited"))
	b := chaintest.NewNode(100)
	b.Fail(errors.New("rate limited"))

	f := New(testConfig(), newPool(a, b), nil, nil)

	_, err := f.Block(context.Background(), 7)
	require.Error(t, err)
	assert.True(t, errors.Is(err, model.ErrPoolExhausted))
	assert.Equal(t, int64(DefaultRetries), a.Calls())
	assert.Equal(t, int64(DefaultRetries), b.Calls())
}

func TestBlockTimeoutMovesOn(t *testing.T) {
	slow := chaintest.NewNode(100)
	slow.AddBlock(3)
	slow.Delay(time.Second)
	fast := chaintest.NewNode(100)
	fast.AddBlock(3)

	cfg := testConfig()
	cfg.BlockTimeout = 30 * time.Millisecond
	f := New(cfg, newPool(slow, fast), nil, nil)

	start := time.Now()
	_, err := f.Block(context.Background(), 3)
	require.NoError(t, err)
	assert.Less(t, time.Since(start), 500*time.Millisecond)
}

func TestBlockTrimmedBeforeCaching(t *testing.T) {
	ctx := context.Background()
	node := chaintest.NewNode(100)
	node.AddBlock(9, encodeTx("/ibc.core.client.v1.MsgUpdateClient", []byte("huge header")))
	cache := storage.NewMemory()

	cfg := testConfig()
	cfg.Trim = true
	f := New(cfg, newPool(node), cache, nil)

	block, err := f.Block(ctx, 9)
	require.NoError(t, err)
	assert.True(t, block.Txs[0].Trimmed)
	assert.Empty(t, block.Txs[0].Messages[0].Value)

	var cached model.DecodedBlock
	hit, err := cache.Get(ctx, storage.KindBlock, 9, &cached)
	require.NoError(t, err)
	require.True(t, hit)
	assert.True(t, cached.Txs[0].Trimmed)
	assert.Empty(t, cached.Txs[0].Messages[0].Value)
}

func TestBlockResultsTrimsBeginBlockOnlyWhenTrimming(t *testing.T) {
	ctx := context.Background()
	results := model.BlockResults{
		TxResults:        []model.TxResult{{Log: "log", Events: []model.Event{{Type: "message"}}}},
		BeginBlockEvents: []model.Event{{Type: "mint"}},
	}

	node := chaintest.NewNode(100)
	node.AddResults(4, results)

	plain, err := New(testConfig(), newPool(node), nil, nil).BlockResults(ctx, 4)
	require.NoError(t, err)
	assert.Len(t, plain.BeginBlockEvents, 1)
	assert.Equal(t, "log", plain.TxResults[0].Log)

	cfg := testConfig()
	cfg.Trim = true
	trimmed, err := New(cfg, newPool(node), nil, nil).BlockResults(ctx, 4)
	require.NoError(t, err)
	assert.Empty(t, trimmed.BeginBlockEvents)
	assert.Empty(t, trimmed.TxResults[0].Log)
}

func TestIndexedTxsPaging(t *testing.T) {
	ctx := context.Background()
	node := chaintest.NewNode(100)
	for i := 0; i < 5; i++ {
		node.AddTxRecords(12, chain.TxRecord{
			Height: 12,
			Index:  i,
			Tx:     encodeTx("/cosmos.bank.v1beta1.MsgSend", []byte{byte(i)}),
			Result: model.TxResult{Index: i},
		})
	}
	node.AddTxRecords(13, chain.TxRecord{Height: 13})
	cache := storage.NewMemory()

	cfg := testConfig()
	cfg.PerPage = 2
	f := New(cfg, newPool(node), cache, nil)

	txs, err := f.IndexedTxs(ctx, 12)
	require.NoError(t, err)
	require.Len(t, txs, 5)
	assert.Equal(t, 4, txs[4].Index)
	assert.NotEmpty(t, txs[0].Hash)
	assert.Equal(t, 3, node.CallsTo("tx_search"))

	_, err = f.IndexedTxs(ctx, 12)
	require.NoError(t, err)
	assert.Equal(t, 3, node.CallsTo("tx_search"), "second call is served from cache")
}

func TestSearchTxsNotCached(t *testing.T) {
	node := chaintest.NewNode(100)
	node.AddTxRecords(20, chain.TxRecord{Height: 20, Tx: encodeTx("/a", nil)})
	cache := storage.NewMemory()
	f := New(testConfig(), newPool(node), cache, nil)

	txs, err := f.SearchTxs(context.Background(), "tx.height >= 10 AND tx.height <= 30 AND message.action='send'")
	require.NoError(t, err)
	assert.Len(t, txs, 1)
	assert.Zero(t, cache.Len())
}

func TestLatestHeight(t *testing.T) {
	ctx := context.Background()
	down := chaintest.NewNode(0)
	down.Fail(model.ErrEndpointUnreachable)
	f := New(testConfig(), newPool(chaintest.NewNode(100), chaintest.NewNode(105), down), nil, nil)

	h, err := f.LatestHeight(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(105), h)

	h, err = f.LatestHeight(ctx, 200)
	require.NoError(t, err)
	assert.Equal(t, int64(200), h, "never below the last known height")
}

func TestLatestHeightAllFail(t *testing.T) {
	a := chaintest.NewNode(0)
	a.Fail(model.ErrEndpointUnreachable)
	p := newPool(a)
	f := New(testConfig(), p, nil, nil)

	_, err := f.LatestHeight(context.Background(), 0)
	require.Error(t, err)
	assert.True(t, errors.Is(err, model.ErrPoolExhausted))
	assert.Equal(t, int64(1), p.Status()[0].Fail)
}

func TestLatestHeightDegradesToCache(t *testing.T) {
	ctx := context.Background()
	cache := storage.NewMemory()
	require.NoError(t, cache.Save(ctx, storage.KindBlock, 42, "testnet-1", model.DecodedBlock{}))

	f := New(testConfig(), newPool(), cache, nil)
	h, err := f.LatestHeight(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(42), h)

	_, err = New(testConfig(), newPool(), storage.NewMemory(), nil).LatestHeight(ctx, 0)
	assert.True(t, errors.Is(err, model.ErrPoolExhausted))
}

func TestWatchLatestHeight(t *testing.T) {
	node := chaintest.NewNode(0)
	node.StatusFunc(func(call int64) (model.Status, error) {
		// 10, 10, 11, 11, 12, ...
		return model.Status{LatestHeight: 10 + (call-1)/2}, nil
	})
	f := New(testConfig(), newPool(node), nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var (
		mu   sync.Mutex
		seen []int64
	)
	err := f.WatchLatestHeight(ctx, func(_ context.Context, h model.HeightOnly) error {
		mu.Lock()
		defer mu.Unlock()
		seen = append(seen, h.Height)
		if len(seen) == 3 {
			cancel()
		}
		return nil
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, []int64{10, 11, 12}, seen)
}

func TestWatchLatestHeightCallbackError(t *testing.T) {
	f := New(testConfig(), newPool(chaintest.NewNode(5), chaintest.NewNode(6)), nil, nil)
	boom := errors.New("consumer down")

	err := f.WatchLatestHeight(context.Background(), func(context.Context, model.HeightOnly) error {
		return boom
	})
	assert.ErrorIs(t, err, boom)
}
