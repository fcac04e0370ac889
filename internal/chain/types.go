package chain

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/seleniumforest/cosmos-indexer/internal/model"
)

// jsonInt accepts both quoted and bare integers. CometBFT quotes int64 fields.
type jsonInt int64

func (i *jsonInt) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(data), `"`)
	if s == "" || s == "null" {
		*i = 0
		return nil
	}
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return fmt.Errorf("parse int %s: %w", data, err)
	}
	*i = jsonInt(v)
	return nil
}

type statusResponse struct {
	NodeInfo struct {
		ID      string `json:"id"`
		Network string `json:"network"`
		Other   struct {
			TxIndex string `json:"tx_index"`
		} `json:"other"`
	} `json:"node_info"`
	SyncInfo struct {
		LatestBlockHeight   jsonInt   `json:"latest_block_height"`
		LatestBlockTime     time.Time `json:"latest_block_time"`
		EarliestBlockHeight jsonInt   `json:"earliest_block_height"`
		CatchingUp          bool      `json:"catching_up"`
	} `json:"sync_info"`
}

func (r statusResponse) toModel() model.Status {
	return model.Status{
		NodeID:         r.NodeInfo.ID,
		Network:        r.NodeInfo.Network,
		TxIndex:        r.NodeInfo.Other.TxIndex,
		LatestHeight:   int64(r.SyncInfo.LatestBlockHeight),
		LatestTime:     r.SyncInfo.LatestBlockTime,
		EarliestHeight: int64(r.SyncInfo.EarliestBlockHeight),
		CatchingUp:     r.SyncInfo.CatchingUp,
	}
}

type blockResponse struct {
	BlockID struct {
		Hash string `json:"hash"`
	} `json:"block_id"`
	Block struct {
		Header struct {
			ChainID string    `json:"chain_id"`
			Height  jsonInt   `json:"height"`
			Time    time.Time `json:"time"`
		} `json:"header"`
		Data struct {
			Txs [][]byte `json:"txs"`
		} `json:"data"`
	} `json:"block"`
}

func (r blockResponse) toModel() model.RawBlock {
	txs := r.Block.Data.Txs
	if txs == nil {
		txs = [][]byte{}
	}
	return model.RawBlock{
		Header: model.BlockHeader{
			Height:  int64(r.Block.Header.Height),
			ChainID: r.Block.Header.ChainID,
			Time:    r.Block.Header.Time,
			Hash:    r.BlockID.Hash,
		},
		Txs: txs,
	}
}

type eventJSON struct {
	Type       string `json:"type"`
	Attributes []struct {
		Key   string `json:"key"`
		Value string `json:"value"`
		Index bool   `json:"index"`
	} `json:"attributes"`
}

func eventsToModel(in []eventJSON) []model.Event {
	if len(in) == 0 {
		return nil
	}
	out := make([]model.Event, 0, len(in))
	for _, ev := range in {
		attrs := make([]model.Attribute, 0, len(ev.Attributes))
		for _, a := range ev.Attributes {
			attrs = append(attrs, model.Attribute{Key: a.Key, Value: a.Value, Index: a.Index})
		}
		out = append(out, model.Event{Type: ev.Type, Attributes: attrs})
	}
	return out
}

type txResultJSON struct {
	Code      uint32      `json:"code"`
	Codespace string      `json:"codespace"`
	Log       string      `json:"log"`
	Data      string      `json:"data"`
	GasWanted jsonInt     `json:"gas_wanted"`
	GasUsed   jsonInt     `json:"gas_used"`
	Events    []eventJSON `json:"events"`
}

func (r txResultJSON) toModel(index int) model.TxResult {
	return model.TxResult{
		Index:     index,
		Code:      r.Code,
		Codespace: r.Codespace,
		Log:       r.Log,
		Data:      r.Data,
		GasWanted: int64(r.GasWanted),
		GasUsed:   int64(r.GasUsed),
		Events:    eventsToModel(r.Events),
	}
}

type blockResultsResponse struct {
	Height              jsonInt        `json:"height"`
	TxsResults          []txResultJSON `json:"txs_results"`
	BeginBlockEvents    []eventJSON    `json:"begin_block_events"`
	EndBlockEvents      []eventJSON    `json:"end_block_events"`
	FinalizeBlockEvents []eventJSON    `json:"finalize_block_events"`
}

func (r blockResultsResponse) toModel() model.BlockResults {
	out := model.BlockResults{
		Height:              int64(r.Height),
		TxResults:           make([]model.TxResult, 0, len(r.TxsResults)),
		BeginBlockEvents:    eventsToModel(r.BeginBlockEvents),
		EndBlockEvents:      eventsToModel(r.EndBlockEvents),
		FinalizeBlockEvents: eventsToModel(r.FinalizeBlockEvents),
	}
	for i, res := range r.TxsResults {
		out.TxResults = append(out.TxResults, res.toModel(i))
	}
	return out
}

// TxRecord is one tx_search hit, tx still encoded.
type TxRecord struct {
	Hash   string
	Height int64
	Index  int
	Tx     []byte
	Result model.TxResult
}

type txSearchResponse struct {
	Txs []struct {
		Hash     string       `json:"hash"`
		Height   jsonInt      `json:"height"`
		Index    jsonInt      `json:"index"`
		TxResult txResultJSON `json:"tx_result"`
		Tx       []byte       `json:"tx"`
	} `json:"txs"`
	TotalCount jsonInt `json:"total_count"`
}

func (r txSearchResponse) toRecords() []TxRecord {
	out := make([]TxRecord, 0, len(r.Txs))
	for _, tx := range r.Txs {
		out = append(out, TxRecord{
			Hash:   tx.Hash,
			Height: int64(tx.Height),
			Index:  int(tx.Index),
			Tx:     tx.Tx,
			Result: tx.TxResult.toModel(int(tx.Index)),
		})
	}
	return out
}
