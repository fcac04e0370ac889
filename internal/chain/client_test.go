package chain

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/seleniumforest/cosmos-indexer/internal/model"
)

type rpcRequest struct {
	ID     json.RawMessage   `json:"id"`
	Method string            `json:"method"`
	Params []json.RawMessage `json:"params"`
}

func newNodeServer(t *testing.T, handle func(req rpcRequest) (interface{}, map[string]interface{})) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req rpcRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		result, rpcErr := handle(req)
		resp := map[string]interface{}{"jsonrpc": "2.0", "id": req.ID}
		if rpcErr != nil {
			resp["error"] = rpcErr
		} else {
			resp["result"] = result
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func dialTest(t *testing.T, srv *httptest.Server) *Client {
	t.Helper()
	client, err := NewClient(context.Background(), srv.URL)
	require.NoError(t, err)
	t.Cleanup(client.Close)
	return client
}

func TestClientStatus(t *testing.T) {
	srv := newNodeServer(t, func(req rpcRequest) (interface{}, map[string]interface{}) {
		assert.Equal(t, "status", req.Method)
		return json.RawMessage(`{
			"node_info": {"id": "abc", "network": "cosmoshub-4", "other": {"tx_index": "on"}},
			"sync_info": {
				"latest_block_height": "1200",
				"latest_block_time": "2024-05-01T10:00:00Z",
				"earliest_block_height": "1000",
				"catching_up": false
			}
		}`), nil
	})

	status, err := dialTest(t, srv).Status(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "cosmoshub-4", status.Network)
	assert.Equal(t, int64(1200), status.LatestHeight)
	assert.Equal(t, int64(1000), status.EarliestHeight)
	assert.True(t, status.TxIndexEnabled())
	assert.Equal(t, time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC), status.LatestTime.UTC())
}

func TestClientBlock(t *testing.T) {
	srv := newNodeServer(t, func(req rpcRequest) (interface{}, map[string]interface{}) {
		assert.Equal(t, "block", req.Method)
		if !assert.Len(t, req.Params, 1) {
			return nil, map[string]interface{}{"code": -32602, "message": "bad params"}
		}
		assert.JSONEq(t, `"42"`, string(req.Params[0]))
		return json.RawMessage(`{
			"block_id": {"hash": "DEADBEEF"},
			"block": {
				"header": {"chain_id": "osmosis-1", "height": "42", "time": "2024-05-01T10:00:00Z"},
				"data": {"txs": ["aGVsbG8="]}
			}
		}`), nil
	})

	block, err := dialTest(t, srv).Block(context.Background(), 42)
	require.NoError(t, err)
	assert.Equal(t, int64(42), block.Header.Height)
	assert.Equal(t, "osmosis-1", block.Header.ChainID)
	assert.Equal(t, "DEADBEEF", block.Header.Hash)
	require.Len(t, block.Txs, 1)
	assert.Equal(t, []byte("hello"), block.Txs[0])
}

func TestClientBlockResults(t *testing.T) {
	srv := newNodeServer(t, func(req rpcRequest) (interface{}, map[string]interface{}) {
		return json.RawMessage(`{
			"height": "42",
			"txs_results": [
				{"code": 0, "log": "ok", "gas_wanted": "200", "gas_used": 150,
				 "events": [{"type": "transfer", "attributes": [{"key": "amount", "value": "5uatom", "index": true}]}]}
			],
			"begin_block_events": null
		}`), nil
	})

	results, err := dialTest(t, srv).BlockResults(context.Background(), 42)
	require.NoError(t, err)
	assert.Equal(t, int64(42), results.Height)
	require.Len(t, results.TxResults, 1)
	assert.Equal(t, int64(200), results.TxResults[0].GasWanted)
	assert.Equal(t, int64(150), results.TxResults[0].GasUsed)
	assert.Equal(t, "5uatom", results.TxResults[0].Events[0].Attributes[0].Value)
	assert.Nil(t, results.BeginBlockEvents)
}

func TestClientTxSearch(t *testing.T) {
	srv := newNodeServer(t, func(req rpcRequest) (interface{}, map[string]interface{}) {
		assert.Equal(t, "tx_search", req.Method)
		if !assert.Len(t, req.Params, 5) {
			return nil, map[string]interface{}{"code": -32602, "message": "bad params"}
		}
		assert.JSONEq(t, `"tx.height=7"`, string(req.Params[0]))
		assert.JSONEq(t, `"2"`, string(req.Params[2]))
		return json.RawMessage(`{
			"txs": [{"hash": "AB", "height": "7", "index": 1, "tx": "eA==", "tx_result": {"code": 3}}],
			"total_count": "31"
		}`), nil
	})

	records, total, err := dialTest(t, srv).TxSearch(context.Background(), "tx.height=7", 2, 30)
	require.NoError(t, err)
	assert.Equal(t, 31, total)
	require.Len(t, records, 1)
	assert.Equal(t, int64(7), records[0].Height)
	assert.Equal(t, 1, records[0].Index)
	assert.Equal(t, uint32(3), records[0].Result.Code)
	assert.Equal(t, []byte("x"), records[0].Tx)
}

func TestClientHeightUnavailable(t *testing.T) {
	srv := newNodeServer(t, func(req rpcRequest) (interface{}, map[string]interface{}) {
		return nil, map[string]interface{}{
			"code":    -32603,
			"message": "Internal error",
			"data":    "height 5 is not available, lowest height is 100",
		}
	})

	_, err := dialTest(t, srv).Block(context.Background(), 5)
	require.Error(t, err)
	assert.True(t, errors.Is(err, model.ErrHeightUnavailable))
}

func TestClientUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	client, err := NewClient(context.Background(), url)
	require.NoError(t, err)
	defer client.Close()

	_, err = client.Status(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, model.ErrEndpointUnreachable))
}
