package indexer

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/seleniumforest/cosmos-indexer/internal/model"
	"github.com/seleniumforest/cosmos-indexer/internal/registry"
)

const (
	DefaultLogsPollInterval = time.Minute
	DefaultLogsRangeSize    = 100
)

// LogsContext describes the height range a LogsHandler call covers.
type LogsContext struct {
	Network string
	Chain   registry.Chain
	From    int64
	To      int64
}

// LogsHandler receives the txs matching a query within one range, possibly none.
type LogsHandler func(ctx context.Context, lctx LogsContext, txs []model.IndexedTx) error

// LogsNetwork is a network followed by tx_search instead of per-block fetches.
type LogsNetwork struct {
	Name      string
	RPCURLs   []string
	FromBlock int64
	Filters   []EventFilter
	// RangeSize bounds the heights covered by a single query.
	RangeSize int64
}

// LogsOptions configures a LogsWatcher.
type LogsOptions struct {
	Options
	PollInterval time.Duration
}

// LogsWatcher polls tx_search for txs matching event filters.
type LogsWatcher struct {
	networks []LogsNetwork
	opts     LogsOptions
	deps     Deps
	handler  LogsHandler
	logger   *zap.Logger
}

func NewLogsWatcher(networks []LogsNetwork, opts LogsOptions, deps Deps, handler LogsHandler, logger *zap.Logger) *LogsWatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	opts.Options = opts.Options.withDefaults()
	if opts.PollInterval <= 0 {
		opts.PollInterval = DefaultLogsPollInterval
	}
	return &LogsWatcher{
		networks: networks,
		opts:     opts,
		deps:     deps,
		handler:  handler,
		logger:   logger,
	}
}

// Run follows every network until ctx ends.
func (w *LogsWatcher) Run(ctx context.Context) error {
	if len(w.networks) == 0 {
		return fmt.Errorf("no networks configured")
	}
	if w.handler == nil {
		return fmt.Errorf("no logs handler")
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

func (w *LogsWatcher) runNetwork(ctx context.Context, n LogsNetwork, logger *zap.Logger) error {
	env, err := openNetwork(ctx, Network{
		Name:        n.Name,
		RPCURLs:     n.RPCURLs,
		FromBlock:   n.FromBlock,
		DataToFetch: model.IndexedTxs,
	}, w.opts.Options, w.deps, false, logger)
	if err != nil {
		return err
	}
	defer env.close()

	cursor, err := resumeCursor(ctx, w.deps.State, "logs:"+n.Name, n.FromBlock)
	if err != nil {
		return err
	}
	return w.poll(ctx, n, cursor, env.fetcher, LogsContext{Network: n.Name, Chain: env.chain}, logger)
}

type txSearcher interface {
	latestHeighter
	SearchTxs(ctx context.Context, query string) ([]model.IndexedTx, error)
}

func (w *LogsWatcher) poll(ctx context.Context, n LogsNetwork, cursor int64, source txSearcher, base LogsContext, logger *zap.Logger) error {
	rangeSize := n.RangeSize
	if rangeSize <= 0 {
		rangeSize = DefaultLogsRangeSize
	}

	for {
		latest, err := source.LatestHeight(ctx, max(cursor-1, 0))
		if err != nil {
			return fmt.Errorf("latest height: %w", err)
		}
		if cursor == 0 {
			cursor = latest
		}

		if cursor <= latest {
			ranges, err := SplitRange(cursor, latest, rangeSize)
			if err != nil {
				return err
			}
			for _, r := range ranges {
				query := BuildTxQuery(r.From, r.To, n.Filters)
				txs, err := source.SearchTxs(ctx, query)
				if err != nil {
					return fmt.Errorf("search %q: %w", query, err)
				}

				lctx := base
				lctx.From, lctx.To = r.From, r.To
				if err := w.handler(ctx, lctx, txs); err != nil {
					return fmt.Errorf("range %d-%d: %w: %w", r.From, r.To, model.ErrConsumerCallback, err)
				}
				logger.Debug("range delivered", zap.Int64("from", r.From), zap.Int64("to", r.To), zap.Int("txs", len(txs)))

				cursor = r.To + 1
				if w.deps.State != nil {
					if err := w.deps.State.SaveState(ctx, "logs:"+n.Name, r.To); err != nil {
						logger.Warn("save checkpoint failed", zap.Int64("height", r.To), zap.Error(err))
					}
				}
			}
		}

		if err := w.deps.sleep(ctx, w.opts.PollInterval); err != nil {
			return err
		}
	}
}
