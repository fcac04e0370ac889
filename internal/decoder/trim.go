package decoder

import (
	"fmt"
	"sort"
	"strings"

	"github.com/seleniumforest/cosmos-indexer/internal/model"
)

// BlacklistedMessages are message types whose value is dropped when trimming.
var BlacklistedMessages = []string{
	"MsgUpdateClient",
	"MsgSubmitQueryResponse",
}

// header attribute key, plain and base64 (0.34 nodes encode keys).
var headerKeys = map[string]struct{}{
	"header":   {},
	"aGVhZGVy": {},
}

// IsBlacklisted matches a type URL case-insensitively against BlacklistedMessages.
func IsBlacklisted(typeURL string) bool {
	lower := strings.ToLower(typeURL)
	for _, name := range BlacklistedMessages {
		if strings.Contains(lower, strings.ToLower(name)) {
			return true
		}
	}
	return false
}

// TrimTx empties the value of blacklisted messages. The input is not modified.
func TrimTx(tx model.DecodedTx) model.DecodedTx {
	out := tx
	out.Trimmed = true
	if len(tx.Messages) == 0 {
		return out
	}
	out.Messages = make([]model.Message, len(tx.Messages))
	for i, msg := range tx.Messages {
		if IsBlacklisted(msg.TypeURL) {
			msg.Value = []byte{}
		}
		out.Messages[i] = msg
	}
	return out
}

// TrimBlock applies TrimTx to every tx of the block.
func TrimBlock(block model.DecodedBlock) model.DecodedBlock {
	out := model.DecodedBlock{Header: block.Header, Txs: make([]model.DecodedTx, len(block.Txs))}
	for i, tx := range block.Txs {
		out.Txs[i] = TrimTx(tx)
	}
	return out
}

// TrimTxResult redacts update_client headers and drops the log when events carry the same data.
func TrimTxResult(r model.TxResult) model.TxResult {
	out := r
	out.Events = trimEvents(r.Events)
	if len(out.Events) > 0 {
		out.Log = ""
	}
	return out
}

// TrimResults applies TrimTxResult to every tx and drops begin block events.
func TrimResults(results model.BlockResults) model.BlockResults {
	out := results
	out.TxResults = make([]model.TxResult, len(results.TxResults))
	for i, r := range results.TxResults {
		out.TxResults[i] = TrimTxResult(r)
	}
	out.BeginBlockEvents = nil
	out.EndBlockEvents = trimEvents(results.EndBlockEvents)
	out.FinalizeBlockEvents = trimEvents(results.FinalizeBlockEvents)
	return out
}

// Merge zips block txs with their results by position.
func Merge(block model.DecodedBlock, results model.BlockResults) (model.IndexedBlock, error) {
	if len(block.Txs) != len(results.TxResults) {
		return model.IndexedBlock{}, fmt.Errorf("height %d: %d txs, %d results: %w",
			block.Header.Height, len(block.Txs), len(results.TxResults), model.ErrCompositionMismatch)
	}

	out := model.IndexedBlock{
		Header:              block.Header,
		Txs:                 make([]model.IndexedTx, len(block.Txs)),
		BeginBlockEvents:    results.BeginBlockEvents,
		EndBlockEvents:      results.EndBlockEvents,
		FinalizeBlockEvents: results.FinalizeBlockEvents,
	}
	for i, tx := range block.Txs {
		res := results.TxResults[i]
		res.Index = i
		out.Txs[i] = model.IndexedTx{
			Height: block.Header.Height,
			Index:  i,
			Hash:   tx.Hash,
			Tx:     tx,
			Result: res,
		}
	}
	return out, nil
}

// MergeTxs builds an IndexedBlock from tx_search hits. The hits must cover every tx of the
// block exactly once; block level events are not available this way.
func MergeTxs(block model.DecodedBlock, txs []model.IndexedTx) (model.IndexedBlock, error) {
	height := block.Header.Height
	if len(block.Txs) != len(txs) {
		return model.IndexedBlock{}, fmt.Errorf("height %d: %d txs, %d search hits: %w",
			height, len(block.Txs), len(txs), model.ErrCompositionMismatch)
	}

	sorted := append([]model.IndexedTx(nil), txs...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Index < sorted[j].Index })
	for i := range sorted {
		if sorted[i].Index != i || (sorted[i].Height != 0 && sorted[i].Height != height) {
			return model.IndexedBlock{}, fmt.Errorf("height %d: unexpected search hit %d at height %d: %w",
				height, sorted[i].Index, sorted[i].Height, model.ErrCompositionMismatch)
		}
		sorted[i].Height = height
	}
	return model.IndexedBlock{Header: block.Header, Txs: sorted}, nil
}

func trimEvents(events []model.Event) []model.Event {
	if events == nil {
		return nil
	}
	out := make([]model.Event, len(events))
	for i, ev := range events {
		out[i] = ev
		if ev.Type != "update_client" {
			continue
		}
		attrs := make([]model.Attribute, len(ev.Attributes))
		for j, attr := range ev.Attributes {
			if _, ok := headerKeys[attr.Key]; ok {
				attr.Value = ""
			}
			attrs[j] = attr
		}
		out[i].Attributes = attrs
	}
	return out
}
