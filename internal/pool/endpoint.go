package pool

import (
	"sync/atomic"

	"github.com/seleniumforest/cosmos-indexer/internal/chain"
)

// Endpoint is one RPC node in the pool together with its call outcomes.
type Endpoint struct {
	URL string
	// Priority is set for explicitly configured URLs.
	Priority bool

	node chain.Node
	ok   atomic.Int64
	fail atomic.Int64
}

// NewEndpoint wraps a connected node.
func NewEndpoint(url string, priority bool, node chain.Node) *Endpoint {
	return &Endpoint{URL: url, Priority: priority, node: node}
}

// Node returns the client used to talk to the endpoint.
func (e *Endpoint) Node() chain.Node {
	return e.node
}

// Report records the outcome of one call.
func (e *Endpoint) Report(err error) {
	if err != nil {
		e.fail.Add(1)
		return
	}
	e.ok.Add(1)
}

// Stats returns the ok and fail counters.
func (e *Endpoint) Stats() (ok, fail int64) {
	return e.ok.Load(), e.fail.Load()
}

// EndpointInfo is a point-in-time view of an endpoint.
type EndpointInfo struct {
	URL      string `json:"url"`
	Priority bool   `json:"priority"`
	OK       int64  `json:"ok"`
	Fail     int64  `json:"fail"`
}

func (e *Endpoint) info() EndpointInfo {
	ok, fail := e.Stats()
	return EndpointInfo{URL: e.URL, Priority: e.Priority, OK: ok, Fail: fail}
}

func (i EndpointInfo) total() int64 {
	return i.OK + i.Fail
}

// broken: at least as many failures as successes.
func (i EndpointInfo) broken() bool {
	return i.Fail > 0 && i.OK <= i.Fail
}

func (i EndpointInfo) ratio() float64 {
	fail := i.Fail
	if fail == 0 {
		fail = 1
	}
	return float64(i.OK) / float64(fail)
}
