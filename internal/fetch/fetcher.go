// Package fetch retrieves heights from the endpoint pool with per-call timeouts,
// sequential failover and a bounded number of passes, reading and writing the cache.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/seleniumforest/cosmos-indexer/internal/chain"
	"github.com/seleniumforest/cosmos-indexer/internal/decoder"
	"github.com/seleniumforest/cosmos-indexer/internal/metrics"
	"github.com/seleniumforest/cosmos-indexer/internal/model"
	"github.com/seleniumforest/cosmos-indexer/internal/pool"
	"github.com/seleniumforest/cosmos-indexer/internal/storage"
)

const (
	DefaultRetries            = 3
	DefaultHeightTimeout      = 5 * time.Second
	DefaultBlockTimeout       = 10 * time.Second
	DefaultResultsTimeout     = 30 * time.Second
	DefaultPerPage            = 100
	DefaultStatusPollInterval = time.Second
)

// Endpoints is the part of the pool the fetcher uses.
type Endpoints interface {
	Clients() []*pool.Endpoint
	Refresh(ctx context.Context) error
}

// Config holds fetcher settings for one network.
type Config struct {
	Network string
	ChainID string
	// Trim applies the decoder blacklist before anything is cached or returned.
	Trim               bool
	Retries            int
	HeightTimeout      time.Duration
	BlockTimeout       time.Duration
	ResultsTimeout     time.Duration
	PerPage            int
	StatusPollInterval time.Duration
}

func (c Config) withDefaults() Config {
	if c.Retries <= 0 {
		c.Retries = DefaultRetries
	}
	if c.HeightTimeout <= 0 {
		c.HeightTimeout = DefaultHeightTimeout
	}
	if c.BlockTimeout <= 0 {
		c.BlockTimeout = DefaultBlockTimeout
	}
	if c.ResultsTimeout <= 0 {
		c.ResultsTimeout = DefaultResultsTimeout
	}
	if c.PerPage <= 0 {
		c.PerPage = DefaultPerPage
	}
	if c.StatusPollInterval <= 0 {
		c.StatusPollInterval = DefaultStatusPollInterval
	}
	return c
}

// Fetcher is safe for concurrent use.
type Fetcher struct {
	cfg    Config
	pool   Endpoints
	cache  storage.Cache
	logger *zap.Logger
}

// New builds a Fetcher. A nil cache disables caching.
func New(cfg Config, endpoints Endpoints, cache storage.Cache, logger *zap.Logger) *Fetcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cache == nil {
		cache = storage.Nop{}
	}
	return &Fetcher{
		cfg:    cfg.withDefaults(),
		pool:   endpoints,
		cache:  cache,
		logger: logger,
	}
}

// RefreshPool asks the pool to rediscover endpoints.
func (f *Fetcher) RefreshPool(ctx context.Context) error {
	return f.pool.Refresh(ctx)
}

// Block returns the decoded block at height, from cache when present.
func (f *Fetcher) Block(ctx context.Context, height int64) (model.DecodedBlock, error) {
	var cached model.DecodedBlock
	if f.cacheGet(ctx, storage.KindBlock, height, &cached) {
		return cached, nil
	}

	block, err := f.fetchBlock(ctx, height)
	if err != nil {
		return model.DecodedBlock{}, err
	}
	f.saveBlock(ctx, block)
	return block, nil
}

func (f *Fetcher) fetchBlock(ctx context.Context, height int64) (model.DecodedBlock, error) {
	raw, err := retrieve(ctx, f, "block", f.cfg.BlockTimeout, func(ctx context.Context, node chain.Node) (model.RawBlock, error) {
		return node.Block(ctx, height)
	})
	if err != nil {
		return model.DecodedBlock{}, fmt.Errorf("block %d: %w", height, err)
	}

	block := decoder.DecodeBlock(raw)
	if f.cfg.Trim {
		block = decoder.TrimBlock(block)
	}
	return block, nil
}

func (f *Fetcher) saveBlock(ctx context.Context, block model.DecodedBlock) {
	f.cacheSave(ctx, storage.KindBlock, block.Header.Height, f.chainID(block.Header.ChainID), block)
}

// BlockResults returns the execution results at height, from cache when present.
// It is for callers that want results on their own; INDEXED_TXS composition goes
// through IndexedBlock, which only caches results that line up with their block.
func (f *Fetcher) BlockResults(ctx context.Context, height int64) (model.BlockResults, error) {
	var cached model.BlockResults
	if f.cacheGet(ctx, storage.KindResults, height, &cached) {
		return cached, nil
	}

	results, err := f.fetchResults(ctx, height)
	if err != nil {
		return model.BlockResults{}, err
	}
	f.cacheSave(ctx, storage.KindResults, height, f.cfg.ChainID, results)
	return results, nil
}

func (f *Fetcher) fetchResults(ctx context.Context, height int64) (model.BlockResults, error) {
	results, err := retrieve(ctx, f, "block_results", f.cfg.ResultsTimeout, func(ctx context.Context, node chain.Node) (model.BlockResults, error) {
		return node.BlockResults(ctx, height)
	})
	if err != nil {
		return model.BlockResults{}, fmt.Errorf("block results %d: %w", height, err)
	}

	if f.cfg.Trim {
		results = decoder.TrimResults(results)
	}
	return results, nil
}

// IndexedTxs returns every tx included at height via tx_search, from cache when present.
// IndexedBlock uses the same lookup when a node has pruned block_results.
func (f *Fetcher) IndexedTxs(ctx context.Context, height int64) ([]model.IndexedTx, error) {
	var cached []model.IndexedTx
	if f.cacheGet(ctx, storage.KindIndexedTxs, height, &cached) {
		return cached, nil
	}

	txs, err := f.searchHeight(ctx, height)
	if err != nil {
		return nil, err
	}
	f.cacheSave(ctx, storage.KindIndexedTxs, height, f.cfg.ChainID, txs)
	return txs, nil
}

func (f *Fetcher) searchHeight(ctx context.Context, height int64) ([]model.IndexedTx, error) {
	txs, err := f.search(ctx, fmt.Sprintf("tx.height=%d", height))
	if err != nil {
		return nil, fmt.Errorf("indexed txs %d: %w", height, err)
	}
	return txs, nil
}

// SearchTxs pages through tx_search for query. Results are not cached.
func (f *Fetcher) SearchTxs(ctx context.Context, query string) ([]model.IndexedTx, error) {
	txs, err := f.search(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("search %q: %w", query, err)
	}
	return txs, nil
}

func (f *Fetcher) search(ctx context.Context, query string) ([]model.IndexedTx, error) {
	type page struct {
		records []chain.TxRecord
		total   int
	}

	out := make([]model.IndexedTx, 0)
	for n := 1; ; n++ {
		p, err := retrieve(ctx, f, "tx_search", f.cfg.ResultsTimeout, func(ctx context.Context, node chain.Node) (page, error) {
			records, total, err := node.TxSearch(ctx, query, n, f.cfg.PerPage)
			return page{records: records, total: total}, err
		})
		if err != nil {
			return nil, err
		}
		for _, rec := range p.records {
			out = append(out, f.indexedTx(rec))
		}
		if len(p.records) == 0 || len(out) >= p.total {
			return out, nil
		}
	}
}

func (f *Fetcher) indexedTx(rec chain.TxRecord) model.IndexedTx {
	tx := decoder.DecodeOrKeep(rec.Tx)
	result := rec.Result
	if f.cfg.Trim {
		tx = decoder.TrimTx(tx)
		result = decoder.TrimTxResult(result)
	}
	hash := rec.Hash
	if hash == "" {
		hash = tx.Hash
	}
	return model.IndexedTx{
		Height: rec.Height,
		Index:  rec.Index,
		Hash:   hash,
		Tx:     tx,
		Result: result,
	}
}

// retrieve runs call against the pool's clients in order, up to Retries passes.
// The first success wins; every attempt is bounded by timeout and reported to its endpoint.
func retrieve[T any](ctx context.Context, f *Fetcher, method string, timeout time.Duration, call func(context.Context, chain.Node) (T, error)) (T, error) {
	var (
		zero    T
		lastErr error
		tried   int
	)
	for pass := 1; pass <= f.cfg.Retries; pass++ {
		for _, ep := range f.pool.Clients() {
			if err := ctx.Err(); err != nil {
				return zero, err
			}
			tried++

			callCtx, cancel := context.WithTimeout(ctx, timeout)
			start := time.Now()
			v, err := call(callCtx, ep.Node())
			cancel()
			f.observe(ep, method, start, err)
			if err == nil {
				return v, nil
			}
			if ctx.Err() != nil {
				return zero, ctx.Err()
			}
			lastErr = err
			f.logger.Warn("rpc call failed",
				zap.String("endpoint", ep.URL),
				zap.String("method", method),
				zap.Int("pass", pass),
				zap.String("class", classify(err)),
				zap.Error(err),
			)
		}
	}
	if lastErr == nil {
		lastErr = model.ErrNoEndpoints
	}
	return zero, fmt.Errorf("%s after %d attempts: %w: %w", method, tried, model.ErrPoolExhausted, lastErr)
}

func (f *Fetcher) observe(ep *pool.Endpoint, method string, start time.Time, err error) {
	ep.Report(err)
	metrics.RPCLatency.WithLabelValues(f.cfg.Network, method).Observe(time.Since(start).Seconds())
	metrics.RPCCalls.WithLabelValues(f.cfg.Network, ep.URL, method, classify(err)).Inc()
}

func classify(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, model.ErrHeightUnavailable):
		return "height_unavailable"
	case errors.Is(err, model.ErrEndpointStale):
		return "stale"
	case errors.Is(err, model.ErrEndpointUnreachable), errors.Is(err, context.DeadlineExceeded):
		return "unreachable"
	default:
		return "error"
	}
}

func (f *Fetcher) cacheGet(ctx context.Context, kind storage.Kind, height int64, out interface{}) bool {
	if storage.IsNop(f.cache) {
		return false
	}
	hit, err := f.cache.Get(ctx, kind, height, out)
	switch {
	case err != nil:
		metrics.CacheLookups.WithLabelValues(f.cfg.Network, string(kind), "error").Inc()
		f.logger.Warn("cache read failed", zap.String("kind", string(kind)), zap.Int64("height", height), zap.Error(err))
		return false
	case hit:
		metrics.CacheLookups.WithLabelValues(f.cfg.Network, string(kind), "hit").Inc()
		return true
	default:
		metrics.CacheLookups.WithLabelValues(f.cfg.Network, string(kind), "miss").Inc()
		return false
	}
}

func (f *Fetcher) cacheSave(ctx context.Context, kind storage.Kind, height int64, chainID string, v interface{}) {
	if storage.IsNop(f.cache) {
		return
	}
	if err := f.cache.Save(ctx, kind, height, chainID, v); err != nil {
		f.logger.Warn("cache write failed", zap.String("kind", string(kind)), zap.Int64("height", height), zap.Error(err))
	}
}

func (f *Fetcher) chainID(fromHeader string) string {
	if fromHeader != "" {
		return fromHeader
	}
	return f.cfg.ChainID
}
