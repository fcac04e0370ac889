package registry

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/seleniumforest/cosmos-indexer/internal/model"
)

func TestLookupFromRegistry(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		if r.URL.Path != "/testchain/chain.json" {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte(`{"chain_name":"testchain","chain_id":"test-1","apis":{"rpc":[{"address":"http://a"},{"address":" "},{"address":"http://b"}]}}`))
	}))
	defer srv.Close()

	reg, err := New(Config{URLs: []string{srv.URL + "/"}, TTL: time.Hour}, nil)
	require.NoError(t, err)
	now := time.Now()
	reg.nowFn = func() time.Time { return now }

	chain, err := reg.Lookup(context.Background(), "testchain")
	require.NoError(t, err)
	assert.Equal(t, "test-1", chain.ChainID)
	assert.Equal(t, []string{"http://a", "http://b"}, chain.RPCURLs())

	_, err = reg.Lookup(context.Background(), "TestChain")
	require.NoError(t, err)
	assert.Equal(t, int32(1), hits.Load(), "second lookup is served from cache")

	now = now.Add(2 * time.Hour)
	_, err = reg.Lookup(context.Background(), "testchain")
	require.NoError(t, err)
	assert.Equal(t, int32(2), hits.Load(), "expired entry is refetched")
}

func TestLookupFallsBackToBundled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	reg, err := New(Config{URLs: []string{srv.URL}}, nil)
	require.NoError(t, err)

	urls, err := reg.RPCURLs(context.Background(), "osmosis")
	require.NoError(t, err)
	assert.Contains(t, urls, "https://rpc.cosmos.directory/osmosis")
}

func TestLookupUnknown(t *testing.T) {
	reg, err := New(Config{Offline: true}, nil)
	require.NoError(t, err)

	_, err = reg.Lookup(context.Background(), "not-a-chain")
	require.Error(t, err)
	assert.True(t, errors.Is(err, model.ErrUnknownNetwork))

	chain, err := reg.Lookup(context.Background(), "cosmoshub")
	require.NoError(t, err)
	assert.Equal(t, "cosmoshub-4", chain.ChainID)
}
