package indexer

import (
	"context"
	"fmt"
	"sync"

	"github.com/seleniumforest/cosmos-indexer/internal/metrics"
	"github.com/seleniumforest/cosmos-indexer/internal/model"
)

type heightWatcher interface {
	WatchLatestHeight(ctx context.Context, onHeight func(context.Context, model.HeightOnly) error) error
}

// heightDedup forwards a height only when it is above everything forwarded before.
// Concurrent callers are serialized so the consumer sees strictly increasing heights.
type heightDedup struct {
	mu   sync.Mutex
	last int64
}

func (d *heightDedup) forward(h model.HeightOnly, deliver func(model.HeightOnly) error) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if h.Height <= d.last {
		return false, nil
	}
	d.last = h.Height
	return true, deliver(h)
}

func (w *Watcher) tailHeights(ctx context.Context, source heightWatcher, wctx Context) error {
	dedup := &heightDedup{}
	return source.WatchLatestHeight(ctx, func(ctx context.Context, h model.HeightOnly) error {
		_, err := dedup.forward(h, func(h model.HeightOnly) error {
			if err := w.handler(ctx, wctx, model.NewHeightComposed(h)); err != nil {
				return fmt.Errorf("height %d: %w: %w", h.Height, model.ErrConsumerCallback, err)
			}
			metrics.LatestHeight.WithLabelValues(wctx.Network).Set(float64(h.Height))
			metrics.DeliveredHeight.WithLabelValues(wctx.Network).Set(float64(h.Height))
			metrics.BlocksDelivered.WithLabelValues(wctx.Network).Inc()
			return nil
		})
		return err
	})
}
