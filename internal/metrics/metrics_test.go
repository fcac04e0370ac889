package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestCountersIncrement(t *testing.T) {
	RPCCalls.WithLabelValues("testnet", "http://a", "block", "ok").Inc()
	RPCCalls.WithLabelValues("testnet", "http://a", "block", "ok").Inc()
	assert.Equal(t, float64(2), testutil.ToFloat64(RPCCalls.WithLabelValues("testnet", "http://a", "block", "ok")))

	DeliveredHeight.WithLabelValues("testnet").Set(42)
	assert.Equal(t, float64(42), testutil.ToFloat64(DeliveredHeight.WithLabelValues("testnet")))
}
