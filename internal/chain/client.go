// Package chain talks CometBFT JSON-RPC to a single node.
package chain

import (
	"context"
	"strconv"

	"github.com/ethereum/go-ethereum/rpc"

	"github.com/seleniumforest/cosmos-indexer/internal/model"
)

// Node is the set of RPC calls the indexer needs from one endpoint.
type Node interface {
	Status(ctx context.Context) (model.Status, error)
	Height(ctx context.Context) (int64, error)
	Block(ctx context.Context, height int64) (model.RawBlock, error)
	BlockResults(ctx context.Context, height int64) (model.BlockResults, error)
	TxSearch(ctx context.Context, query string, page, perPage int) ([]TxRecord, int, error)
	Close()
}

// Dialer opens a Node for a URL.
type Dialer func(ctx context.Context, url string) (Node, error)

// Client wraps a go-ethereum JSON-RPC client speaking the CometBFT method set.
type Client struct {
	url       string
	rpcClient *rpc.Client
}

// NewClient dials the RPC URL. No request is made until the first call.
func NewClient(ctx context.Context, url string) (*Client, error) {
	rpcClient, err := rpc.DialContext(ctx, url)
	if err != nil {
		return nil, err
	}
	return &Client{url: url, rpcClient: rpcClient}, nil
}

// Dial is a Dialer backed by NewClient.
func Dial(ctx context.Context, url string) (Node, error) {
	return NewClient(ctx, url)
}

// URL returns the endpoint address.
func (c *Client) URL() string {
	return c.url
}

// Close closes the underlying RPC client.
func (c *Client) Close() {
	if c.rpcClient != nil {
		c.rpcClient.Close()
	}
}

func (c *Client) Status(ctx context.Context) (model.Status, error) {
	var resp statusResponse
	if err := c.call(ctx, &resp, "status"); err != nil {
		return model.Status{}, err
	}
	return resp.toModel(), nil
}

func (c *Client) Height(ctx context.Context) (int64, error) {
	status, err := c.Status(ctx)
	if err != nil {
		return 0, err
	}
	return status.LatestHeight, nil
}

func (c *Client) Block(ctx context.Context, height int64) (model.RawBlock, error) {
	var resp blockResponse
	if err := c.call(ctx, &resp, "block", formatHeight(height)); err != nil {
		return model.RawBlock{}, err
	}
	return resp.toModel(), nil
}

func (c *Client) BlockResults(ctx context.Context, height int64) (model.BlockResults, error) {
	var resp blockResultsResponse
	if err := c.call(ctx, &resp, "block_results", formatHeight(height)); err != nil {
		return model.BlockResults{}, err
	}
	return resp.toModel(), nil
}

// TxSearch runs one page of tx_search ordered by height. It returns the total hit count.
func (c *Client) TxSearch(ctx context.Context, query string, page, perPage int) ([]TxRecord, int, error) {
	var resp txSearchResponse
	err := c.call(ctx, &resp, "tx_search", query, false, strconv.Itoa(page), strconv.Itoa(perPage), "asc")
	if err != nil {
		return nil, 0, err
	}
	return resp.toRecords(), int(resp.TotalCount), nil
}

func (c *Client) call(ctx context.Context, result interface{}, method string, args ...interface{}) error {
	if err := c.rpcClient.CallContext(ctx, result, method, args...); err != nil {
		return classify(method, err)
	}
	return nil
}

func formatHeight(height int64) string {
	return strconv.FormatInt(height, 10)
}
