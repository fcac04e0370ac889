// Package chaintest provides an in-memory chain.Node for tests.
package chaintest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/seleniumforest/cosmos-indexer/internal/chain"
	"github.com/seleniumforest/cosmos-indexer/internal/model"
)

var _ chain.Node = (*Node)(nil)

// Node serves canned blocks and results. Fail makes every call return an error.
type Node struct {
	mu       sync.Mutex
	status   model.Status
	blocks   map[int64]model.RawBlock
	results  map[int64]model.BlockResults
	records  map[int64][]chain.TxRecord
	fail     error
	delay    time.Duration
	calls    atomic.Int64
	closed   atomic.Bool
	perCall  map[string]int
	statusFn func(call int64) (model.Status, error)
}

// NewNode returns a healthy node whose latest height is latest.
func NewNode(latest int64) *Node {
	return &Node{
		status: model.Status{
			Network:        "testnet-1",
			TxIndex:        "on",
			LatestHeight:   latest,
			LatestTime:     time.Now(),
			EarliestHeight: 1,
		},
		blocks:  make(map[int64]model.RawBlock),
		results: make(map[int64]model.BlockResults),
		records: make(map[int64][]chain.TxRecord),
		perCall: make(map[string]int),
	}
}

// SetStatus replaces the status returned by Status.
func (n *Node) SetStatus(s model.Status) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.status = s
}

// SetLatest moves the latest height.
func (n *Node) SetLatest(h int64) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.status.LatestHeight = h
}

// StatusFunc overrides Status with fn, called with the 1-based status call count.
func (n *Node) StatusFunc(fn func(call int64) (model.Status, error)) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.statusFn = fn
}

// AddBlock registers a block with its raw txs.
func (n *Node) AddBlock(height int64, txs ...[]byte) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if txs == nil {
		txs = [][]byte{}
	}
	n.blocks[height] = model.RawBlock{
		Header: model.BlockHeader{Height: height, ChainID: n.status.Network, Time: time.Unix(1700000000+height, 0).UTC()},
		Txs:    txs,
	}
}

// AddResults registers block results.
func (n *Node) AddResults(height int64, results model.BlockResults) {
	n.mu.Lock()
	defer n.mu.Unlock()
	results.Height = height
	n.results[height] = results
}

// AddTxRecords registers tx_search hits for a height.
func (n *Node) AddTxRecords(height int64, records ...chain.TxRecord) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.records[height] = append(n.records[height], records...)
}

// Fail makes every subsequent call return err; nil restores the node.
func (n *Node) Fail(err error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.fail = err
}

// Delay makes every call wait d or until ctx ends.
func (n *Node) Delay(d time.Duration) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.delay = d
}

// Calls returns the total number of calls served, failed ones included.
func (n *Node) Calls() int64 {
	return n.calls.Load()
}

// CallsTo returns the number of calls to one method.
func (n *Node) CallsTo(method string) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.perCall[method]
}

// Closed reports whether Close was called.
func (n *Node) Closed() bool {
	return n.closed.Load()
}

func (n *Node) enter(ctx context.Context, method string) error {
	n.calls.Add(1)
	n.mu.Lock()
	n.perCall[method]++
	fail, delay := n.fail, n.delay
	n.mu.Unlock()

	if delay > 0 {
		timer := time.NewTimer(delay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return fmt.Errorf("%s: %w: %w", method, model.ErrEndpointUnreachable, ctx.Err())
		case <-timer.C:
		}
	}
	if fail != nil {
		return fmt.Errorf("%s: %w", method, fail)
	}
	return nil
}

func (n *Node) Status(ctx context.Context) (model.Status, error) {
	if err := n.enter(ctx, "status"); err != nil {
		return model.Status{}, err
	}
	n.mu.Lock()
	fn, status := n.statusFn, n.status
	calls := int64(n.perCall["status"])
	n.mu.Unlock()
	if fn != nil {
		return fn(calls)
	}
	return status, nil
}

func (n *Node) Height(ctx context.Context) (int64, error) {
	status, err := n.Status(ctx)
	if err != nil {
		return 0, err
	}
	return status.LatestHeight, nil
}

func (n *Node) Block(ctx context.Context, height int64) (model.RawBlock, error) {
	if err := n.enter(ctx, "block"); err != nil {
		return model.RawBlock{}, err
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	block, ok := n.blocks[height]
	if !ok {
		return model.RawBlock{}, fmt.Errorf("block %d: %w", height, model.ErrHeightUnavailable)
	}
	return block, nil
}

func (n *Node) BlockResults(ctx context.Context, height int64) (model.BlockResults, error) {
	if err := n.enter(ctx, "block_results"); err != nil {
		return model.BlockResults{}, err
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	results, ok := n.results[height]
	if !ok {
		return model.BlockResults{}, fmt.Errorf("results %d: %w", height, model.ErrHeightUnavailable)
	}
	return results, nil
}

// TxSearch serves registered records whose height matches the tx.height bounds of the
// query. Other query terms are ignored.
func (n *Node) TxSearch(ctx context.Context, query string, page, perPage int) ([]chain.TxRecord, int, error) {
	if err := n.enter(ctx, "tx_search"); err != nil {
		return nil, 0, err
	}
	if page < 1 || perPage < 1 {
		return nil, 0, errors.New("invalid paging")
	}
	n.mu.Lock()
	defer n.mu.Unlock()

	lo, hi, ok := parseHeightRange(query)
	var all []chain.TxRecord
	for h := int64(0); h <= n.maxRecordHeight(); h++ {
		if ok && (h < lo || h > hi) {
			continue
		}
		all = append(all, n.records[h]...)
	}
	start := (page - 1) * perPage
	if start >= len(all) {
		return []chain.TxRecord{}, len(all), nil
	}
	end := start + perPage
	if end > len(all) {
		end = len(all)
	}
	return all[start:end], len(all), nil
}

func (n *Node) maxRecordHeight() int64 {
	var max int64
	for h := range n.records {
		if h > max {
			max = h
		}
	}
	return max
}

func (n *Node) Close() {
	n.closed.Store(true)
}
