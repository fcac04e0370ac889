package model

import "time"

// BlockHeader is the subset of a CometBFT header the indexer keeps.
type BlockHeader struct {
	Height  int64     `json:"height"`
	ChainID string    `json:"chain_id"`
	Time    time.Time `json:"time"`
	Hash    string    `json:"hash"`
}

// RawBlock is a block as returned by the node, txs still encoded.
type RawBlock struct {
	Header BlockHeader `json:"header"`
	Txs    [][]byte    `json:"txs"`
}

// Message is a protobuf Any carried in a tx body.
type Message struct {
	TypeURL string `json:"type_url"`
	Value   []byte `json:"value"`
}

// DecodedTx is a tx parsed from its TxRaw envelope.
type DecodedTx struct {
	Hash          string    `json:"hash"`
	Messages      []Message `json:"messages"`
	Memo          string    `json:"memo,omitempty"`
	TimeoutHeight uint64    `json:"timeout_height,omitempty"`
	AuthInfo      []byte    `json:"auth_info,omitempty"`
	Signatures    [][]byte  `json:"signatures,omitempty"`
	Trimmed       bool      `json:"trimmed,omitempty"`

	// Raw and DecodeError are set only when the bytes could not be parsed.
	Raw         []byte `json:"raw,omitempty"`
	DecodeError string `json:"decode_error,omitempty"`
}

// DecodedBlock is the RAW_TXS payload.
type DecodedBlock struct {
	Header BlockHeader `json:"header"`
	Txs    []DecodedTx `json:"txs"`
}

// HeightOnly is the ONLY_HEIGHTS payload.
type HeightOnly struct {
	Height int64     `json:"height"`
	Time   time.Time `json:"time,omitempty"`
}
