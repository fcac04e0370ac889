package indexer

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/seleniumforest/cosmos-indexer/internal/chain"
	"github.com/seleniumforest/cosmos-indexer/internal/chain/chaintest"
	"github.com/seleniumforest/cosmos-indexer/internal/model"
	"github.com/seleniumforest/cosmos-indexer/internal/registry"
	"github.com/seleniumforest/cosmos-indexer/internal/storage"
)

type fakeHeights struct {
	mu        sync.Mutex
	values    []int64
	lastKnown []int64
}

func (f *fakeHeights) LatestHeight(ctx context.Context, lastKnown int64) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	i := len(f.lastKnown)
	f.lastKnown = append(f.lastKnown, lastKnown)
	if i >= len(f.values) {
		i = len(f.values) - 1
	}
	return f.values[i], nil
}

type composeCall struct {
	from, batch, latest int64
}

type fakeComposer struct {
	calls []composeCall
	fn    func(call int, from, batch, latest int64) ([]model.ComposedBlock, error)
}

func (f *fakeComposer) Compose(ctx context.Context, from, batch, latest int64) ([]model.ComposedBlock, error) {
	f.calls = append(f.calls, composeCall{from, batch, latest})
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return f.fn(len(f.calls), from, batch, latest)
}

func rawBlock(h int64) model.ComposedBlock {
	return model.NewRawComposed(model.DecodedBlock{Header: model.BlockHeader{Height: h}})
}

// window returns every height of the batch, like a healthy composer.
func window(call int, from, batch, latest int64) ([]model.ComposedBlock, error) {
	var out []model.ComposedBlock
	for h := from; h < from+batch && h <= latest; h++ {
		out = append(out, rawBlock(h))
	}
	return out, nil
}

type recorder struct {
	mu      sync.Mutex
	heights []int64
}

func (r *recorder) add(h int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.heights = append(r.heights, h)
}

func (r *recorder) list() []int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]int64(nil), r.heights...)
}

func newTestWatcher(handler BlockHandler, sleeps *[]time.Duration, state StateStore) *Watcher {
	return NewWatcher(nil, Options{}, Deps{Sleep: noSleep(sleeps), State: state}, handler, zap.NewNop())
}

func TestTailStopsAtGap(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	rec := &recorder{}
	w := newTestWatcher(func(ctx context.Context, wctx Context, b model.ComposedBlock) error {
		rec.add(b.Height())
		return nil
	}, nil, nil)

	comp := &fakeComposer{fn: func(call int, from, batch, latest int64) ([]model.ComposedBlock, error) {
		if call == 1 {
			return []model.ComposedBlock{rawBlock(100), rawBlock(101), rawBlock(103)}, nil
		}
		cancel()
		return nil, context.Canceled
	}}

	err := w.tail(ctx, Network{Name: "test", BatchSize: 5}, 100, &fakeHeights{values: []int64{110}}, comp, Context{Network: "test"}, zap.NewNop())
	require.ErrorIs(t, err, context.Canceled)

	assert.Equal(t, []int64{100, 101}, rec.list())
	require.Len(t, comp.calls, 2)
	assert.Equal(t, int64(102), comp.calls[1].from)
}

func TestTailDeliversInOrderWhileCatchingUp(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	rec := &recorder{}
	w := newTestWatcher(func(ctx context.Context, wctx Context, b model.ComposedBlock) error {
		rec.add(b.Height())
		if b.Height() == 30 {
			cancel()
		}
		return nil
	}, nil, nil)

	heights := &fakeHeights{values: []int64{100}}
	comp := &fakeComposer{fn: window}

	err := w.tail(ctx, Network{Name: "test", BatchSize: 10}, 1, heights, comp, Context{Network: "test"}, zap.NewNop())
	require.ErrorIs(t, err, context.Canceled)

	got := rec.list()
	require.Len(t, got, 30)
	for i, h := range got {
		assert.Equal(t, int64(i+1), h)
	}
	assert.Len(t, heights.lastKnown, 1, "latest height is not refreshed while catching up")
}

func TestTailLagIsFlooredAtOne(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	rec := &recorder{}
	w := newTestWatcher(func(ctx context.Context, wctx Context, b model.ComposedBlock) error {
		rec.add(b.Height())
		cancel()
		return nil
	}, nil, nil)

	comp := &fakeComposer{fn: window}
	err := w.tail(ctx, Network{Name: "test", Lag: 10}, 0, &fakeHeights{values: []int64{5}}, comp, Context{Network: "test"}, zap.NewNop())
	require.ErrorIs(t, err, context.Canceled)

	require.Len(t, comp.calls, 1)
	assert.Equal(t, composeCall{from: 1, batch: DefaultBatchSize, latest: 1}, comp.calls[0])
	assert.Equal(t, []int64{1}, rec.list())
}

func TestTailIdlesAtHead(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var sleeps []time.Duration
	rec := &recorder{}
	w := newTestWatcher(func(ctx context.Context, wctx Context, b model.ComposedBlock) error {
		rec.add(b.Height())
		if b.Height() == 52 {
			cancel()
		}
		return nil
	}, &sleeps, nil)

	heights := &fakeHeights{values: []int64{50, 52}}
	comp := &fakeComposer{fn: window}
	err := w.tail(ctx, Network{Name: "test"}, 50, heights, comp, Context{Network: "test"}, zap.NewNop())
	require.ErrorIs(t, err, context.Canceled)

	require.NotEmpty(t, sleeps)
	assert.Equal(t, DefaultIdleInterval, sleeps[0])
	assert.Equal(t, []int64{50, 50}, heights.lastKnown)
	assert.Equal(t, []int64{50, 51, 52}, rec.list())
	require.Len(t, sleeps, 2)
	assert.Equal(t, DefaultTailInterval, sleeps[1])
}

func TestTailStartsAtHead(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	rec := &recorder{}
	w := newTestWatcher(func(ctx context.Context, wctx Context, b model.ComposedBlock) error {
		rec.add(b.Height())
		cancel()
		return nil
	}, nil, nil)

	comp := &fakeComposer{fn: window}
	err := w.tail(ctx, Network{Name: "test"}, 0, &fakeHeights{values: []int64{777}}, comp, Context{Network: "test"}, zap.NewNop())
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, []int64{777}, rec.list())
}

func TestTailConsumerError(t *testing.T) {
	boom := errors.New("consumer down")
	w := newTestWatcher(func(ctx context.Context, wctx Context, b model.ComposedBlock) error {
		if b.Height() == 3 {
			return boom
		}
		return nil
	}, nil, nil)

	comp := &fakeComposer{fn: window}
	err := w.tail(context.Background(), Network{Name: "test"}, 1, &fakeHeights{values: []int64{20}}, comp, Context{Network: "test"}, zap.NewNop())
	require.ErrorIs(t, err, model.ErrConsumerCallback)
	require.ErrorIs(t, err, boom)
}

type memoryState struct {
	mu     sync.Mutex
	values map[string]int64
}

func (m *memoryState) LoadState(_ context.Context, name string) (int64, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.values[name]
	return v, ok, nil
}

func (m *memoryState) SaveState(_ context.Context, name string, height int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[name] = height
	return nil
}

func TestTailSavesCheckpoint(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	state := &memoryState{values: map[string]int64{}}
	w := newTestWatcher(func(ctx context.Context, wctx Context, b model.ComposedBlock) error {
		if b.Height() == 14 {
			cancel()
		}
		return nil
	}, nil, state)

	err := w.tail(ctx, Network{Name: "test", BatchSize: 5}, 10, &fakeHeights{values: []int64{100}}, &fakeComposer{fn: window}, Context{Network: "test"}, zap.NewNop())
	require.ErrorIs(t, err, context.Canceled)

	saved, ok, _ := state.LoadState(ctx, "blocks:test")
	require.True(t, ok)
	assert.Equal(t, int64(14), saved)
}

func TestResumeCursor(t *testing.T) {
	ctx := context.Background()
	state := &memoryState{values: map[string]int64{"blocks:a": 41, "blocks:b": 3}}

	got, err := resumeCursor(ctx, state, "blocks:a", 10)
	require.NoError(t, err)
	assert.Equal(t, int64(42), got)

	got, err = resumeCursor(ctx, state, "blocks:b", 10)
	require.NoError(t, err)
	assert.Equal(t, int64(10), got)

	got, err = resumeCursor(ctx, state, "blocks:c", 0)
	require.NoError(t, err)
	assert.Equal(t, int64(0), got)

	got, err = resumeCursor(ctx, nil, "blocks:a", 7)
	require.NoError(t, err)
	assert.Equal(t, int64(7), got)
}

type fakeChains struct {
	chainID string
	unknown bool
}

func (f fakeChains) Lookup(ctx context.Context, name string) (registry.Chain, error) {
	if f.unknown {
		return registry.Chain{}, model.ErrUnknownNetwork
	}
	return registry.Chain{ChainName: name, ChainID: f.chainID}, nil
}

func (f fakeChains) RPCURLs(ctx context.Context, name string) ([]string, error) {
	return nil, nil
}

func TestWatcherRun(t *testing.T) {
	node := chaintest.NewNode(10)
	for h := int64(1); h <= 12; h++ {
		node.AddBlock(h)
	}
	cache := storage.NewMemory()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	rec := &recorder{}
	var seen Context
	handler := func(ctx context.Context, wctx Context, b model.ComposedBlock) error {
		seen = wctx
		rec.add(b.Height())
		if b.Height() == 10 {
			cancel()
		}
		return nil
	}

	w := NewWatcher(
		[]Network{{Name: "testnet", RPCURLs: []string{"http://node-a"}, FromBlock: 5, DataToFetch: model.RawTxs, BatchSize: 3}},
		Options{IdleInterval: time.Millisecond, TailInterval: time.Millisecond},
		Deps{
			Chains: fakeChains{chainID: "testnet-1"},
			Dial: func(ctx context.Context, url string) (chain.Node, error) {
				return node, nil
			},
			OpenCache: func(ctx context.Context, network string) (storage.Cache, error) {
				return cache, nil
			},
		},
		handler,
		zap.NewNop(),
	)

	require.ErrorIs(t, w.Run(ctx), context.Canceled)
	assert.Equal(t, []int64{5, 6, 7, 8, 9, 10}, rec.list())
	assert.Equal(t, "testnet-1", seen.Chain.ChainID)
	assert.Equal(t, "testnet", seen.Network)
	assert.Equal(t, 6, cache.Len())
	assert.True(t, node.Closed())
}

func TestWatcherUnknownNetworkStops(t *testing.T) {
	w := NewWatcher(
		[]Network{{Name: "nope", DataToFetch: model.RawTxs}},
		Options{},
		Deps{Chains: fakeChains{unknown: true}},
		func(ctx context.Context, wctx Context, b model.ComposedBlock) error { return nil },
		zap.NewNop(),
	)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, w.Run(ctx))
}

func TestWatcherRestartsFailedNetwork(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	dials := 0
	var sleeps []time.Duration
	w := NewWatcher(
		[]Network{{Name: "flaky", RPCURLs: []string{"http://down"}, DataToFetch: model.RawTxs}},
		Options{},
		Deps{
			Dial: func(ctx context.Context, url string) (chain.Node, error) {
				dials++
				if dials == 3 {
					cancel()
				}
				return nil, errors.New("connection refused")
			},
			Sleep: noSleep(&sleeps),
		},
		func(ctx context.Context, wctx Context, b model.ComposedBlock) error { return nil },
		zap.NewNop(),
	)

	require.ErrorIs(t, w.Run(ctx), context.Canceled)
	assert.Equal(t, 3, dials)
	require.Len(t, sleeps, 2)
	for _, d := range sleeps {
		assert.Equal(t, DefaultRestartCooldown, d)
	}
}
