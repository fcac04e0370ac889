package fetch

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/seleniumforest/cosmos-indexer/internal/model"
	"github.com/seleniumforest/cosmos-indexer/internal/pool"
)

// LatestHeight asks every client for its height at once and returns the highest answer,
// never lower than lastKnown. With an empty pool it falls back to the cache.
func (f *Fetcher) LatestHeight(ctx context.Context, lastKnown int64) (int64, error) {
	clients := f.pool.Clients()
	if len(clients) == 0 {
		return f.cachedLatest(ctx, lastKnown)
	}

	var (
		mu      sync.Mutex
		best    = lastKnown
		lastErr error
	)
	var g errgroup.Group
	for _, ep := range clients {
		ep := ep
		g.Go(func() error {
			height, err := f.height(ctx, ep)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				lastErr = err
				return nil
			}
			if height > best {
				best = height
			}
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if best == 0 {
		return 0, fmt.Errorf("latest height from %d clients: %w: %v", len(clients), model.ErrPoolExhausted, lastErr)
	}
	return best, nil
}

func (f *Fetcher) height(ctx context.Context, ep *pool.Endpoint) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, f.cfg.HeightTimeout)
	defer cancel()

	start := time.Now()
	height, err := ep.Node().Height(ctx)
	f.observe(ep, "status", start, err)
	if err != nil {
		f.logger.Warn("latest height failed", zap.String("endpoint", ep.URL), zap.Error(err))
	}
	return height, err
}

func (f *Fetcher) cachedLatest(ctx context.Context, lastKnown int64) (int64, error) {
	height, ok, err := f.cache.LatestHeight(ctx)
	if err != nil {
		return 0, fmt.Errorf("cached latest height: %w", err)
	}
	if ok && height > lastKnown {
		lastKnown = height
	}
	if lastKnown == 0 {
		return 0, fmt.Errorf("latest height: no endpoints and nothing cached: %w", model.ErrPoolExhausted)
	}
	return lastKnown, nil
}

// WatchLatestHeight polls every client's status and calls onHeight whenever that client's
// height grows past what it reported before. Calls from different clients are concurrent
// and may repeat or go backwards. It returns when ctx ends or onHeight fails.
func (f *Fetcher) WatchLatestHeight(ctx context.Context, onHeight func(context.Context, model.HeightOnly) error) error {
	clients := f.pool.Clients()
	if len(clients) == 0 {
		return fmt.Errorf("watch latest height: %w", model.ErrNoEndpoints)
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, ep := range clients {
		ep := ep
		g.Go(func() error {
			return f.pollStatus(gctx, ep, onHeight)
		})
	}
	return g.Wait()
}

func (f *Fetcher) pollStatus(ctx context.Context, ep *pool.Endpoint, onHeight func(context.Context, model.HeightOnly) error) error {
	ticker := time.NewTicker(f.cfg.StatusPollInterval)
	defer ticker.Stop()

	var last int64
	for {
		callCtx, cancel := context.WithTimeout(ctx, f.cfg.HeightTimeout)
		start := time.Now()
		status, err := ep.Node().Status(callCtx)
		cancel()
		if ctx.Err() != nil {
			return ctx.Err()
		}
		f.observe(ep, "status", start, err)

		if err != nil {
			f.logger.Debug("status poll failed", zap.String("endpoint", ep.URL), zap.Error(err))
		} else if status.LatestHeight > last {
			last = status.LatestHeight
			if err := onHeight(ctx, model.HeightOnly{Height: status.LatestHeight, Time: status.LatestTime}); err != nil {
				return err
			}
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
