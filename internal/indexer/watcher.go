package indexer

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/seleniumforest/cosmos-indexer/internal/fetch"
	"github.com/seleniumforest/cosmos-indexer/internal/metrics"
	"github.com/seleniumforest/cosmos-indexer/internal/model"
	"github.com/seleniumforest/cosmos-indexer/internal/pool"
	"github.com/seleniumforest/cosmos-indexer/internal/registry"
)

const (
	DefaultIdleInterval = 15 * time.Second
	DefaultTailInterval = 10 * time.Second
)

// Context tells a handler where a block came from.
type Context struct {
	Network string
	Chain   registry.Chain
}

// BlockHandler consumes delivered blocks. Returning an error restarts the network worker.
type BlockHandler func(ctx context.Context, wctx Context, block model.ComposedBlock) error

// Options are shared by every network of a Watcher.
type Options struct {
	Trim bool
	// Pool and Fetch are templates; per-network fields are filled in by the watcher.
	Pool  pool.Config
	Fetch fetch.Config
	// IdleInterval is the wait when the cursor sits at the head.
	IdleInterval time.Duration
	// TailInterval is the wait after a batch that reached the head.
	TailInterval    time.Duration
	RestartCooldown time.Duration
	ComposeBackoff  time.Duration
	EscalateEvery   int
}

func (o Options) withDefaults() Options {
	if o.IdleInterval <= 0 {
		o.IdleInterval = DefaultIdleInterval
	}
	if o.TailInterval <= 0 {
		o.TailInterval = DefaultTailInterval
	}
	if o.RestartCooldown <= 0 {
		o.RestartCooldown = DefaultRestartCooldown
	}
	if o.ComposeBackoff <= 0 {
		o.ComposeBackoff = DefaultComposeBackoff
	}
	if o.EscalateEvery <= 0 {
		o.EscalateEvery = DefaultEscalateEvery
	}
	return o
}

// Watcher follows a set of networks and delivers their blocks in height order.
type Watcher struct {
	networks []Network
	opts     Options
	deps     Deps
	handler  BlockHandler
	logger   *zap.Logger
}

func NewWatcher(networks []Network, opts Options, deps Deps, handler BlockHandler, logger *zap.Logger) *Watcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Watcher{
		networks: networks,
		opts:     opts.withDefaults(),
		deps:     deps,
		handler:  handler,
		logger:   logger,
	}
}

// Run starts one worker per network and blocks until ctx ends. A failing network
// does not affect the others.
func (w *Watcher) Run(ctx context.Context) error {
	if len(w.networks) == 0 {
		return fmt.Errorf("no networks configured")
	}
	if w.handler == nil {
		return fmt.Errorf("no block handler")
	}

	var wg sync.WaitGroup
	for _, n := range w.networks {
		n := n
		wg.Add(1)
		go func() {
			defer wg.Done()
			logger := w.logger.With(zap.String("network", n.Name))
			supervise(ctx, n.Name, w.opts.RestartCooldown, w.deps.sleep, logger, func(ctx context.Context) error {
				return w.runNetwork(ctx, n, logger)
			})
		}()
	}
	wg.Wait()
	return ctx.Err()
}

func (w *Watcher) runNetwork(ctx context.Context, n Network, logger *zap.Logger) error {
	env, err := openNetwork(ctx, n, w.opts, w.deps, true, logger)
	if err != nil {
		return err
	}
	defer env.close()

	wctx := Context{Network: n.Name, Chain: env.chain}
	if n.DataToFetch == model.OnlyHeights {
		return w.tailHeights(ctx, env.fetcher, wctx)
	}

	composer := NewComposer(ComposerConfig{
		Network:       n.Name,
		DataToFetch:   n.DataToFetch,
		Backoff:       w.opts.ComposeBackoff,
		EscalateEvery: w.opts.EscalateEvery,
		Sleep:         w.deps.sleep,
	}, env.fetcher, logger)

	cursor, err := resumeCursor(ctx, w.deps.State, "blocks:"+n.Name, n.FromBlock)
	if err != nil {
		return err
	}
	return w.tail(ctx, n, cursor, env.fetcher, composer, wctx, logger)
}

// resumeCursor returns fromBlock, or the height after a saved checkpoint when that is further.
func resumeCursor(ctx context.Context, state StateStore, name string, fromBlock int64) (int64, error) {
	if state == nil {
		return fromBlock, nil
	}
	saved, ok, err := state.LoadState(ctx, name)
	if err != nil {
		return 0, fmt.Errorf("load checkpoint: %w", err)
	}
	if ok && saved+1 > fromBlock {
		return saved + 1, nil
	}
	return fromBlock, nil
}

type latestHeighter interface {
	LatestHeight(ctx context.Context, lastKnown int64) (int64, error)
}

type batchComposer interface {
	Compose(ctx context.Context, from, batchSize, latest int64) ([]model.ComposedBlock, error)
}

// tail is the cursor loop. A cursor of zero starts at the head.
func (w *Watcher) tail(ctx context.Context, n Network, cursor int64, heights latestHeighter, composer batchComposer, wctx Context, logger *zap.Logger) error {
	batchSize := n.BatchSize
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}

	var (
		latest     int64
		catchingUp bool
	)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		if !catchingUp {
			h, err := heights.LatestHeight(ctx, cursor)
			if err != nil {
				return fmt.Errorf("latest height: %w", err)
			}
			if n.Lag > 0 {
				h = max(h-n.Lag, 1)
			}
			latest = h
			metrics.LatestHeight.WithLabelValues(n.Name).Set(float64(latest))
		}

		if cursor == latest {
			if err := w.deps.sleep(ctx, w.opts.IdleInterval); err != nil {
				return err
			}
			continue
		}
		if cursor == 0 {
			cursor = latest
		}

		blocks, err := composer.Compose(ctx, cursor, batchSize, latest)
		if err != nil {
			return fmt.Errorf("compose from %d: %w", cursor, err)
		}

		delivered := cursor
		for _, block := range blocks {
			if block.Height() != cursor {
				logger.Debug("gap in batch, stopping delivery", zap.Int64("expected", cursor), zap.Int64("got", block.Height()))
				break
			}
			if err := w.handler(ctx, wctx, block); err != nil {
				return fmt.Errorf("height %d: %w: %w", cursor, model.ErrConsumerCallback, err)
			}
			metrics.BlocksDelivered.WithLabelValues(n.Name).Inc()
			metrics.DeliveredHeight.WithLabelValues(n.Name).Set(float64(cursor))
			cursor++
		}
		if cursor > delivered && w.deps.State != nil {
			if err := w.deps.State.SaveState(ctx, "blocks:"+n.Name, cursor-1); err != nil {
				logger.Warn("save checkpoint failed", zap.Int64("height", cursor-1), zap.Error(err))
			}
		}

		catchingUp = cursor < latest
		if !catchingUp {
			if err := w.deps.sleep(ctx, w.opts.TailInterval); err != nil {
				return err
			}
		}
	}
}
