package indexer

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/seleniumforest/cosmos-indexer/internal/metrics"
	"github.com/seleniumforest/cosmos-indexer/internal/model"
	"github.com/seleniumforest/cosmos-indexer/internal/retry"
)

const (
	DefaultBatchSize      = 10
	DefaultComposeBackoff = 2 * time.Minute
	DefaultEscalateEvery  = 10
)

// BlockSource is what the composer needs from a fetcher.
type BlockSource interface {
	Block(ctx context.Context, height int64) (model.DecodedBlock, error)
	IndexedBlock(ctx context.Context, height int64) (model.IndexedBlock, error)
	RefreshPool(ctx context.Context) error
}

// ComposerConfig configures batch composition for one network.
type ComposerConfig struct {
	Network     string
	DataToFetch model.DataToFetch
	// Backoff is the wait between failed whole-batch attempts.
	Backoff time.Duration
	// EscalateEvery refreshes the endpoint pool instead of waiting on every n-th failure.
	EscalateEvery int
	Sleep         func(ctx context.Context, d time.Duration) error
}

// Composer turns a height window into an ordered batch of composed blocks.
type Composer struct {
	cfg    ComposerConfig
	source BlockSource
	logger *zap.Logger
}

func NewComposer(cfg ComposerConfig, source BlockSource, logger *zap.Logger) *Composer {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Backoff <= 0 {
		cfg.Backoff = DefaultComposeBackoff
	}
	if cfg.EscalateEvery <= 0 {
		cfg.EscalateEvery = DefaultEscalateEvery
	}
	if cfg.Sleep == nil {
		cfg.Sleep = retry.SleepContext
	}
	return &Composer{cfg: cfg, source: source, logger: logger}
}

// Compose fetches [from, min(from+batchSize-1, latest)] and returns the blocks sorted by height.
// Failed attempts are retried as a whole until they succeed or ctx ends; heights that already
// succeeded within this call are not fetched again.
func (c *Composer) Compose(ctx context.Context, from, batchSize, latest int64) ([]model.ComposedBlock, error) {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	to := from + batchSize - 1
	if to > latest {
		to = latest
	}
	if from > to {
		return nil, nil
	}

	memo := &batchMemo{blocks: make(map[int64]model.ComposedBlock, to-from+1)}
	policy := retry.Policy{
		Backoff:       retry.Constant(c.cfg.Backoff),
		EscalateEvery: c.cfg.EscalateEvery,
		Escalate:      c.refreshPool,
		Sleep:         c.cfg.Sleep,
	}

	err := policy.Do(ctx, func(ctx context.Context) error {
		return c.composeMissing(ctx, from, to, memo)
	}, func(attempt int, err error) {
		metrics.ComposeFailures.WithLabelValues(c.cfg.Network).Inc()
		c.logger.Warn("batch composition failed",
			zap.String("network", c.cfg.Network),
			zap.Int64("from", from),
			zap.Int64("to", to),
			zap.Int("attempt", attempt),
			zap.Error(err),
		)
	})
	if err != nil {
		return nil, err
	}

	return memo.sorted(), nil
}

func (c *Composer) refreshPool(ctx context.Context) error {
	c.logger.Info("refreshing endpoints after repeated batch failures", zap.String("network", c.cfg.Network))
	if err := c.source.RefreshPool(ctx); err != nil {
		c.logger.Warn("endpoint refresh failed", zap.String("network", c.cfg.Network), zap.Error(err))
		return err
	}
	return nil
}

func (c *Composer) composeMissing(ctx context.Context, from, to int64, memo *batchMemo) error {
	var g errgroup.Group
	for height := from; height <= to; height++ {
		if memo.has(height) {
			continue
		}
		height := height
		g.Go(func() error {
			block, err := c.composeHeight(ctx, height)
			if err != nil {
				return fmt.Errorf("height %d: %w", height, err)
			}
			memo.put(height, block)
			return nil
		})
	}
	return g.Wait()
}

func (c *Composer) composeHeight(ctx context.Context, height int64) (model.ComposedBlock, error) {
	if c.cfg.DataToFetch == model.IndexedTxs {
		indexed, err := c.source.IndexedBlock(ctx, height)
		if err != nil {
			return model.ComposedBlock{}, err
		}
		return model.NewIndexedComposed(indexed), nil
	}

	block, err := c.source.Block(ctx, height)
	if err != nil {
		return model.ComposedBlock{}, err
	}

	switch c.cfg.DataToFetch {
	case model.RawTxs:
		return model.NewRawComposed(block), nil
	case model.OnlyHeights:
		return model.NewHeightComposed(model.HeightOnly{Height: block.Header.Height, Time: block.Header.Time}), nil
	default:
		return model.ComposedBlock{}, fmt.Errorf("unsupported data to fetch: %s", c.cfg.DataToFetch)
	}
}

// batchMemo lives for one Compose call.
type batchMemo struct {
	mu     sync.Mutex
	blocks map[int64]model.ComposedBlock
}

func (m *batchMemo) has(height int64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.blocks[height]
	return ok
}

func (m *batchMemo) put(height int64, block model.ComposedBlock) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.blocks[height] = block
}

func (m *batchMemo) sorted() []model.ComposedBlock {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]model.ComposedBlock, 0, len(m.blocks))
	for _, b := range m.blocks {
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Height() < out[j].Height() })
	return out
}
