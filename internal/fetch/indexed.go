package fetch

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/seleniumforest/cosmos-indexer/internal/decoder"
	"github.com/seleniumforest/cosmos-indexer/internal/model"
	"github.com/seleniumforest/cosmos-indexer/internal/storage"
)

// IndexedBlock returns the block at height zipped with its tx results.
//
// Nothing fetched here reaches the cache until block and results line up. A cached half
// that disagrees with the other one is dropped and both are fetched again from the network.
// When block_results is unavailable the txs are rebuilt from tx_search.
func (f *Fetcher) IndexedBlock(ctx context.Context, height int64) (model.IndexedBlock, error) {
	var block model.DecodedBlock
	blockCached := f.cacheGet(ctx, storage.KindBlock, height, &block)
	if !blockCached {
		fresh, err := f.fetchBlock(ctx, height)
		if err != nil {
			return model.IndexedBlock{}, err
		}
		block = fresh
	}

	if len(block.Txs) == 0 {
		if !blockCached {
			f.saveBlock(ctx, block)
		}
		return model.IndexedBlock{Header: block.Header, Txs: []model.IndexedTx{}}, nil
	}

	merged, resultsCached, err := f.mergeResults(ctx, block, true)
	if errors.Is(err, model.ErrCompositionMismatch) && (blockCached || resultsCached) {
		f.logger.Warn("cached block and results disagree, refetching",
			zap.Int64("height", height),
			zap.Bool("block_cached", blockCached),
			zap.Bool("results_cached", resultsCached),
			zap.Error(err),
		)
		fresh, ferr := f.fetchBlock(ctx, height)
		if ferr != nil {
			return model.IndexedBlock{}, ferr
		}
		block, blockCached = fresh, false
		merged, _, err = f.mergeResults(ctx, block, false)
	}
	if err != nil {
		return model.IndexedBlock{}, err
	}

	if !blockCached {
		f.saveBlock(ctx, block)
	}
	return merged, nil
}

// mergeResults zips block with cached or fetched results. Fetched results are cached only
// after they merge. The bool reports whether the results came from the cache.
func (f *Fetcher) mergeResults(ctx context.Context, block model.DecodedBlock, useCache bool) (model.IndexedBlock, bool, error) {
	height := block.Header.Height
	if useCache {
		var results model.BlockResults
		if f.cacheGet(ctx, storage.KindResults, height, &results) {
			merged, err := decoder.Merge(block, results)
			return merged, true, err
		}
		var txs []model.IndexedTx
		if f.cacheGet(ctx, storage.KindIndexedTxs, height, &txs) {
			merged, err := decoder.MergeTxs(block, txs)
			return merged, true, err
		}
	}

	results, err := f.fetchResults(ctx, height)
	if err == nil {
		merged, err := decoder.Merge(block, results)
		if err != nil {
			return model.IndexedBlock{}, false, err
		}
		f.cacheSave(ctx, storage.KindResults, height, f.chainID(block.Header.ChainID), results)
		return merged, false, nil
	}
	if !errors.Is(err, model.ErrHeightUnavailable) {
		return model.IndexedBlock{}, false, err
	}

	f.logger.Info("block results unavailable, using tx_search", zap.Int64("height", height), zap.Error(err))
	txs, err := f.searchHeight(ctx, height)
	if err != nil {
		return model.IndexedBlock{}, false, err
	}
	merged, err := decoder.MergeTxs(block, txs)
	if err != nil {
		return model.IndexedBlock{}, false, err
	}
	f.cacheSave(ctx, storage.KindIndexedTxs, height, f.chainID(block.Header.ChainID), txs)
	return merged, false, nil
}
