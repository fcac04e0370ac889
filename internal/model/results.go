package model

// Attribute is a key/value pair of an ABCI event.
type Attribute struct {
	Key   string `json:"key"`
	Value string `json:"value"`
	Index bool   `json:"index,omitempty"`
}

// Event is an ABCI event.
type Event struct {
	Type       string      `json:"type"`
	Attributes []Attribute `json:"attributes"`
}

// TxResult is the execution outcome of one tx.
type TxResult struct {
	Index     int     `json:"index"`
	Code      uint32  `json:"code"`
	Codespace string  `json:"codespace,omitempty"`
	Log       string  `json:"log,omitempty"`
	Data      string  `json:"data,omitempty"`
	GasWanted int64   `json:"gas_wanted"`
	GasUsed   int64   `json:"gas_used"`
	Events    []Event `json:"events"`
}

// BlockResults holds per-tx results in block order plus block level events.
type BlockResults struct {
	Height              int64      `json:"height"`
	TxResults           []TxResult `json:"txs_results"`
	BeginBlockEvents    []Event    `json:"begin_block_events,omitempty"`
	EndBlockEvents      []Event    `json:"end_block_events,omitempty"`
	FinalizeBlockEvents []Event    `json:"finalize_block_events,omitempty"`
}

// IndexedTx pairs a decoded tx with its execution result.
type IndexedTx struct {
	Height int64     `json:"height"`
	Index  int       `json:"index"`
	Hash   string    `json:"hash"`
	Tx     DecodedTx `json:"tx"`
	Result TxResult  `json:"result"`
}

// IndexedBlock is the INDEXED_TXS payload.
type IndexedBlock struct {
	Header              BlockHeader `json:"header"`
	Txs                 []IndexedTx `json:"txs"`
	BeginBlockEvents    []Event     `json:"begin_block_events,omitempty"`
	EndBlockEvents      []Event     `json:"end_block_events,omitempty"`
	FinalizeBlockEvents []Event     `json:"finalize_block_events,omitempty"`
}
