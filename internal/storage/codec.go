package storage

import (
	"encoding/json"
	"fmt"

	"github.com/klauspost/compress/zstd"
)

var (
	encoder, _ = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	decoder, _ = zstd.NewReader(nil)
)

// Record is what key-value backends persist for one height.
type Record struct {
	ChainID string          `json:"chain_id"`
	Data    json.RawMessage `json:"data"`
}

// Encode marshals v to JSON and compresses it.
func Encode(v interface{}) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshal cache entry: %w", err)
	}
	return encoder.EncodeAll(raw, nil), nil
}

// Decode reverses Encode.
func Decode(data []byte, out interface{}) error {
	raw, err := decoder.DecodeAll(data, nil)
	if err != nil {
		return fmt.Errorf("decompress cache entry: %w", err)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("unmarshal cache entry: %w", err)
	}
	return nil
}

// EncodeRecord wraps v with its chain id and encodes the pair.
func EncodeRecord(chainID string, v interface{}) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshal cache entry: %w", err)
	}
	return Encode(Record{ChainID: chainID, Data: data})
}

// DecodeRecord decodes the payload of an encoded Record into out.
func DecodeRecord(data []byte, out interface{}) (Record, error) {
	var rec Record
	if err := Decode(data, &rec); err != nil {
		return Record{}, err
	}
	if err := json.Unmarshal(rec.Data, out); err != nil {
		return Record{}, fmt.Errorf("unmarshal cache payload: %w", err)
	}
	return rec, nil
}
