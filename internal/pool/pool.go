// Package pool keeps the set of healthy RPC endpoints for one network and decides the
// order in which they are tried.
package pool

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/seleniumforest/cosmos-indexer/internal/chain"
	"github.com/seleniumforest/cosmos-indexer/internal/metrics"
	"github.com/seleniumforest/cosmos-indexer/internal/model"
)

const (
	DefaultMinRequests     = 20
	DefaultCheckTimeout    = 30 * time.Second
	DefaultSyncWindow      = 30 * time.Second
	DefaultRefreshInterval = 24 * time.Hour
	DefaultStatusInterval  = time.Hour
)

// Discoverer returns candidate RPC URLs for a network.
type Discoverer interface {
	RPCURLs(ctx context.Context, network string) ([]string, error)
}

// Config describes which endpoints are acceptable for a network.
type Config struct {
	Network     string
	RPCURLs     []string
	UseRegistry bool
	DataToFetch model.DataToFetch
	// FromBlock, when positive, requires endpoints to still hold that height.
	FromBlock int64
	// SyncWindow is the maximum age of an endpoint's latest block. Zero disables the check.
	SyncWindow      time.Duration
	CheckTimeout    time.Duration
	MinRequests     int
	RefreshInterval time.Duration
	StatusInterval  time.Duration
	// AllowEmpty lets Build return an empty pool instead of ErrNoEndpoints.
	AllowEmpty bool
}

func (c Config) withDefaults() Config {
	if c.CheckTimeout <= 0 {
		c.CheckTimeout = DefaultCheckTimeout
	}
	if c.MinRequests <= 0 {
		c.MinRequests = DefaultMinRequests
	}
	if c.RefreshInterval <= 0 {
		c.RefreshInterval = DefaultRefreshInterval
	}
	if c.StatusInterval <= 0 {
		c.StatusInterval = DefaultStatusInterval
	}
	return c
}

type candidate struct {
	url      string
	priority bool
}

// Pool holds the live endpoint set. The set only grows; refreshes merge new URLs in.
type Pool struct {
	cfg        Config
	discoverer Discoverer
	dial       chain.Dialer
	logger     *zap.Logger
	nowFn      func() time.Time

	mu        sync.RWMutex
	endpoints []*Endpoint

	startOnce sync.Once
	started   atomic.Bool
	stopOnce  sync.Once
	stop      chan struct{}
	done      chan struct{}
}

// Build discovers candidates, health checks them in parallel and returns the pool of
// survivors. Rejected candidates are logged, never fatal.
func Build(ctx context.Context, cfg Config, discoverer Discoverer, dial chain.Dialer, logger *zap.Logger) (*Pool, error) {
	if dial == nil {
		dial = chain.Dial
	}
	p := newPool(cfg, discoverer, dial, logger)

	candidates, err := p.discover(ctx)
	if err != nil {
		return nil, err
	}
	p.endpoints = p.filter(ctx, candidates)
	metrics.PoolEndpoints.WithLabelValues(p.cfg.Network).Set(float64(len(p.endpoints)))

	if len(p.endpoints) == 0 && !p.cfg.AllowEmpty {
		return nil, fmt.Errorf("network %s: %w", p.cfg.Network, model.ErrNoEndpoints)
	}
	p.logger.Info("endpoint pool ready", zap.Int("endpoints", len(p.endpoints)), zap.Int("candidates", len(candidates)))
	return p, nil
}

// New builds a pool from already connected endpoints without health checks.
func New(cfg Config, endpoints []*Endpoint, logger *zap.Logger) *Pool {
	p := newPool(cfg, nil, chain.Dial, logger)
	p.endpoints = append([]*Endpoint(nil), endpoints...)
	return p
}

func newPool(cfg Config, discoverer Discoverer, dial chain.Dialer, logger *zap.Logger) *Pool {
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg = cfg.withDefaults()
	return &Pool{
		cfg:        cfg,
		discoverer: discoverer,
		dial:       dial,
		logger:     logger.With(zap.String("network", cfg.Network)),
		nowFn:      time.Now,
		stop:       make(chan struct{}),
		done:       make(chan struct{}),
	}
}

// Network returns the network name the pool serves.
func (p *Pool) Network() string {
	return p.cfg.Network
}

// Len returns the number of live endpoints.
func (p *Pool) Len() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.endpoints)
}

func (p *Pool) current() []*Endpoint {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.endpoints
}

// Clients returns endpoints in the default order: priority-first unranked when any
// explicit endpoint exists, ranked otherwise.
func (p *Pool) Clients() []*Endpoint {
	eps := p.current()
	for _, ep := range eps {
		if ep.Priority {
			return priorityFirst(eps)
		}
	}
	return rank(eps, int64(p.cfg.MinRequests))
}

// RankedClients orders endpoints by their observed reliability.
func (p *Pool) RankedClients() []*Endpoint {
	return rank(p.current(), int64(p.cfg.MinRequests))
}

// UnrankedClients returns priority endpoints first, insertion order otherwise.
func (p *Pool) UnrankedClients() []*Endpoint {
	return priorityFirst(p.current())
}

// Status returns a snapshot of every endpoint's counters.
func (p *Pool) Status() []EndpointInfo {
	eps := p.current()
	out := make([]EndpointInfo, 0, len(eps))
	for _, ep := range eps {
		out = append(out, ep.info())
	}
	return out
}

// Refresh rediscovers candidates and adds the healthy ones not yet in the pool.
func (p *Pool) Refresh(ctx context.Context) error {
	metrics.PoolRefreshes.WithLabelValues(p.cfg.Network).Inc()

	candidates, err := p.discover(ctx)
	if err != nil {
		return err
	}

	known := make(map[string]struct{})
	for _, ep := range p.current() {
		known[normalizeURL(ep.URL)] = struct{}{}
	}
	fresh := make([]candidate, 0, len(candidates))
	for _, c := range candidates {
		if _, ok := known[normalizeURL(c.url)]; !ok {
			fresh = append(fresh, c)
		}
	}
	added := p.filter(ctx, fresh)

	p.mu.Lock()
	merged := make([]*Endpoint, len(p.endpoints), len(p.endpoints)+len(added))
	copy(merged, p.endpoints)
	for _, ep := range added {
		if containsURL(merged, ep.URL) {
			ep.Node().Close()
			continue
		}
		merged = append(merged, ep)
		p.logger.Info("new endpoint", zap.String("endpoint", ep.URL))
	}
	p.endpoints = merged
	total := len(merged)
	p.mu.Unlock()

	metrics.PoolEndpoints.WithLabelValues(p.cfg.Network).Set(float64(total))
	p.logger.Info("endpoint set refreshed", zap.Int("endpoints", total), zap.Int("added", len(added)))
	return nil
}

// Start runs the periodic refresh and status log until Stop or ctx ends.
func (p *Pool) Start(ctx context.Context) {
	p.startOnce.Do(func() {
		p.started.Store(true)
		go p.loop(ctx)
	})
}

func (p *Pool) loop(ctx context.Context) {
	defer close(p.done)

	refresh := time.NewTicker(p.cfg.RefreshInterval)
	defer refresh.Stop()
	status := time.NewTicker(p.cfg.StatusInterval)
	defer status.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-p.stop:
			return
		case <-refresh.C:
			if err := p.Refresh(ctx); err != nil {
				p.logger.Warn("endpoint refresh failed", zap.Error(err))
			}
		case <-status.C:
			p.logStatus()
		}
	}
}

// Stop ends the background loop started by Start.
func (p *Pool) Stop() {
	p.stopOnce.Do(func() {
		close(p.stop)
	})
	if p.started.Load() {
		<-p.done
	}
}

// Close stops the background loop and closes every endpoint.
func (p *Pool) Close() {
	p.Stop()
	for _, ep := range p.current() {
		if ep.node != nil {
			ep.node.Close()
		}
	}
}

func (p *Pool) logStatus() {
	for _, info := range p.Status() {
		p.logger.Info("endpoint status",
			zap.String("endpoint", info.URL),
			zap.Bool("priority", info.Priority),
			zap.Int64("ok", info.OK),
			zap.Int64("fail", info.Fail),
		)
	}
}

func (p *Pool) discover(ctx context.Context) ([]candidate, error) {
	seen := make(map[string]struct{})
	out := make([]candidate, 0, len(p.cfg.RPCURLs))
	for _, url := range p.cfg.RPCURLs {
		key := normalizeURL(url)
		if key == "" {
			continue
		}
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, candidate{url: strings.TrimSpace(url), priority: true})
	}

	if p.cfg.UseRegistry && p.discoverer != nil {
		urls, err := p.discoverer.RPCURLs(ctx, p.cfg.Network)
		if err != nil {
			return nil, fmt.Errorf("discover rpcs: %w", err)
		}
		for _, url := range urls {
			key := normalizeURL(url)
			if key == "" {
				continue
			}
			if _, ok := seen[key]; ok {
				continue
			}
			seen[key] = struct{}{}
			out = append(out, candidate{url: strings.TrimSpace(url)})
		}
	}
	return out, nil
}

func (p *Pool) filter(ctx context.Context, candidates []candidate) []*Endpoint {
	results := make([]*Endpoint, len(candidates))

	var g errgroup.Group
	for i, c := range candidates {
		i, c := i, c
		g.Go(func() error {
			ep, err := p.check(ctx, c)
			if err != nil {
				metrics.PoolRejected.WithLabelValues(p.cfg.Network).Inc()
				p.logger.Warn("endpoint rejected", zap.String("endpoint", c.url), zap.Error(err))
				return nil
			}
			p.logger.Debug("endpoint alive", zap.String("endpoint", c.url), zap.Bool("priority", c.priority))
			results[i] = ep
			return nil
		})
	}
	_ = g.Wait()

	out := make([]*Endpoint, 0, len(results))
	for _, ep := range results {
		if ep != nil {
			out = append(out, ep)
		}
	}
	return out
}

func (p *Pool) check(ctx context.Context, c candidate) (*Endpoint, error) {
	ctx, cancel := context.WithTimeout(ctx, p.cfg.CheckTimeout)
	defer cancel()

	node, err := p.dial(ctx, c.url)
	if err != nil {
		return nil, fmt.Errorf("dial: %w: %w", model.ErrEndpointUnreachable, err)
	}
	status, err := node.Status(ctx)
	if err != nil {
		node.Close()
		return nil, fmt.Errorf("status: %w", err)
	}
	if err := p.acceptable(status); err != nil {
		node.Close()
		return nil, err
	}
	return NewEndpoint(c.url, c.priority, node), nil
}

func (p *Pool) acceptable(status model.Status) error {
	if status.EarliestHeight == 0 {
		return fmt.Errorf("returned incorrect earliest block height")
	}
	if p.cfg.DataToFetch == model.IndexedTxs && !status.TxIndexEnabled() {
		return fmt.Errorf("tx indexing disabled")
	}
	if p.cfg.FromBlock > 0 && p.cfg.FromBlock < status.EarliestHeight {
		return fmt.Errorf("earliest height %d above from-block %d: %w",
			status.EarliestHeight, p.cfg.FromBlock, model.ErrHeightUnavailable)
	}
	if p.cfg.SyncWindow > 0 {
		if lag := p.nowFn().Sub(status.LatestTime); lag > p.cfg.SyncWindow {
			return fmt.Errorf("latest block is %s old: %w", lag.Round(time.Second), model.ErrEndpointStale)
		}
	}
	return nil
}

func normalizeURL(url string) string {
	return strings.TrimSuffix(strings.ToLower(strings.TrimSpace(url)), "/")
}

func containsURL(eps []*Endpoint, url string) bool {
	key := normalizeURL(url)
	for _, ep := range eps {
		if normalizeURL(ep.URL) == key {
			return true
		}
	}
	return false
}
