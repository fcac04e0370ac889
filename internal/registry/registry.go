// Package registry resolves Cosmos chain metadata and public RPC endpoints from the
// chain registry, with a bundled snapshot as fallback.
package registry

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/seleniumforest/cosmos-indexer/internal/model"
)

const (
	DefaultTTL            = time.Hour
	DefaultRequestTimeout = 10 * time.Second
)

// DefaultURLs are tried in order; each serves <url>/<chain>/chain.json.
var DefaultURLs = []string{
	"https://proxy.atomscan.com/directory",
	"https://registry.ping.pub",
	"https://raw.githubusercontent.com/cosmos/chain-registry/master",
}

//go:embed chains.json
var bundledChains []byte

// Endpoint is one advertised API address.
type Endpoint struct {
	Address  string `json:"address"`
	Provider string `json:"provider,omitempty"`
}

// Chain is the subset of chain.json the indexer uses.
type Chain struct {
	ChainName    string `json:"chain_name"`
	ChainID      string `json:"chain_id"`
	PrettyName   string `json:"pretty_name,omitempty"`
	Bech32Prefix string `json:"bech32_prefix,omitempty"`
	Apis         struct {
		RPC []Endpoint `json:"rpc"`
	} `json:"apis"`
}

// RPCURLs returns the advertised RPC addresses.
func (c Chain) RPCURLs() []string {
	out := make([]string, 0, len(c.Apis.RPC))
	for _, ep := range c.Apis.RPC {
		if addr := strings.TrimSpace(ep.Address); addr != "" {
			out = append(out, addr)
		}
	}
	return out
}

// Config configures a Registry.
type Config struct {
	URLs           []string
	TTL            time.Duration
	RequestTimeout time.Duration
	// Offline skips the network and answers from the bundled snapshot only.
	Offline bool
}

type cacheEntry struct {
	chain     Chain
	fetchedAt time.Time
}

// Registry looks up chains and keeps results for TTL.
type Registry struct {
	cfg     Config
	client  *http.Client
	logger  *zap.Logger
	bundled map[string]Chain

	mu      sync.Mutex
	entries map[string]cacheEntry
	nowFn   func() time.Time
}

func New(cfg Config, logger *zap.Logger) (*Registry, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if len(cfg.URLs) == 0 {
		cfg.URLs = DefaultURLs
	}
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultTTL
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = DefaultRequestTimeout
	}

	var chains []Chain
	if err := json.Unmarshal(bundledChains, &chains); err != nil {
		return nil, fmt.Errorf("parse bundled chains: %w", err)
	}
	bundled := make(map[string]Chain, len(chains))
	for _, c := range chains {
		bundled[c.ChainName] = c
	}

	return &Registry{
		cfg:     cfg,
		client:  &http.Client{},
		logger:  logger,
		bundled: bundled,
		entries: make(map[string]cacheEntry),
		nowFn:   time.Now,
	}, nil
}

// Lookup returns chain metadata for a registry name such as "osmosis".
func (r *Registry) Lookup(ctx context.Context, name string) (Chain, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		return Chain{}, fmt.Errorf("empty chain name: %w", model.ErrUnknownNetwork)
	}

	r.mu.Lock()
	entry, ok := r.entries[name]
	r.mu.Unlock()
	if ok && r.nowFn().Sub(entry.fetchedAt) < r.cfg.TTL {
		return entry.chain, nil
	}

	if !r.cfg.Offline {
		for _, base := range r.cfg.URLs {
			chain, err := r.fetch(ctx, base, name)
			if err != nil {
				r.logger.Debug("registry lookup failed", zap.String("registry", base), zap.String("chain", name), zap.Error(err))
				if ctx.Err() != nil {
					return Chain{}, ctx.Err()
				}
				continue
			}
			r.store(name, chain)
			return chain, nil
		}
	}

	if chain, ok := r.bundled[name]; ok {
		r.logger.Info("using bundled chain info", zap.String("chain", name))
		r.store(name, chain)
		return chain, nil
	}

	return Chain{}, fmt.Errorf("chain %q: %w", name, model.ErrUnknownNetwork)
}

// RPCURLs returns the RPC addresses the registry advertises for name.
func (r *Registry) RPCURLs(ctx context.Context, name string) ([]string, error) {
	chain, err := r.Lookup(ctx, name)
	if err != nil {
		return nil, err
	}
	return chain.RPCURLs(), nil
}

func (r *Registry) store(name string, chain Chain) {
	r.mu.Lock()
	r.entries[name] = cacheEntry{chain: chain, fetchedAt: r.nowFn()}
	r.mu.Unlock()
}

func (r *Registry) fetch(ctx context.Context, base, name string) (Chain, error) {
	ctx, cancel := context.WithTimeout(ctx, r.cfg.RequestTimeout)
	defer cancel()

	url := strings.TrimSuffix(base, "/") + "/" + name + "/chain.json"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return Chain{}, err
	}
	resp, err := r.client.Do(req)
	if err != nil {
		return Chain{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, resp.Body)
		return Chain{}, fmt.Errorf("status %d", resp.StatusCode)
	}

	var chain Chain
	if err := json.NewDecoder(resp.Body).Decode(&chain); err != nil {
		return Chain{}, fmt.Errorf("decode chain.json: %w", err)
	}
	if chain.ChainID == "" {
		return Chain{}, errors.New("chain.json without chain_id")
	}
	if chain.ChainName == "" {
		chain.ChainName = name
	}
	return chain, nil
}
