package chain

import (
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/rpc"

	"github.com/seleniumforest/cosmos-indexer/internal/model"
)

// messages CometBFT returns for heights outside what the node stores.
var unavailableHints = []string{
	"lowest height is",
	"must be less than or equal to the current blockchain height",
	"could not find results for height",
}

func classify(method string, err error) error {
	text := err.Error()
	var dataErr rpc.DataError
	if errors.As(err, &dataErr) {
		if data, ok := dataErr.ErrorData().(string); ok {
			text += ": " + data
		}
	}

	lower := strings.ToLower(text)
	for _, hint := range unavailableHints {
		if strings.Contains(lower, hint) {
			return fmt.Errorf("%s: %s: %w", method, text, model.ErrHeightUnavailable)
		}
	}

	// the node answered, so it is reachable
	var rpcErr rpc.Error
	if errors.As(err, &rpcErr) {
		return fmt.Errorf("%s: %s", method, text)
	}
	return fmt.Errorf("%s: %w: %w", method, model.ErrEndpointUnreachable, err)
}
