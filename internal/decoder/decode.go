// Package decoder parses Cosmos tx envelopes and trims payloads before they are cached.
package decoder

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	"google.golang.org/protobuf/encoding/protowire"

	"github.com/seleniumforest/cosmos-indexer/internal/model"
)

// TxHash returns the CometBFT tx hash: upper-case hex SHA-256 of the raw bytes.
func TxHash(raw []byte) string {
	sum := sha256.Sum256(raw)
	return strings.ToUpper(hex.EncodeToString(sum[:]))
}

// DecodeTx parses a TxRaw envelope and its TxBody.
func DecodeTx(raw []byte) (model.DecodedTx, error) {
	tx := model.DecodedTx{Hash: TxHash(raw)}

	var body []byte
	err := walk(raw, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		if typ != protowire.BytesType {
			return skip(num, typ, b)
		}
		v, n := protowire.ConsumeBytes(b)
		if n < 0 {
			return 0, protowire.ParseError(n)
		}
		switch num {
		case 1:
			body = v
		case 2:
			tx.AuthInfo = v
		case 3:
			tx.Signatures = append(tx.Signatures, v)
		}
		return n, nil
	})
	if err != nil {
		return model.DecodedTx{}, fmt.Errorf("tx raw: %w", err)
	}

	err = walk(body, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch {
		case num == 1 && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return 0, protowire.ParseError(n)
			}
			msg, err := decodeAny(v)
			if err != nil {
				return 0, err
			}
			tx.Messages = append(tx.Messages, msg)
			return n, nil
		case num == 2 && typ == protowire.BytesType:
			v, n := protowire.ConsumeString(b)
			if n < 0 {
				return 0, protowire.ParseError(n)
			}
			tx.Memo = v
			return n, nil
		case num == 3 && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return 0, protowire.ParseError(n)
			}
			tx.TimeoutHeight = v
			return n, nil
		default:
			return skip(num, typ, b)
		}
	})
	if err != nil {
		return model.DecodedTx{}, fmt.Errorf("tx body: %w", err)
	}

	return tx, nil
}

// DecodeBlock decodes every tx of a block. Txs that fail to parse keep their raw bytes
// and carry the decode error instead of messages.
func DecodeBlock(block model.RawBlock) model.DecodedBlock {
	out := model.DecodedBlock{
		Header: block.Header,
		Txs:    make([]model.DecodedTx, 0, len(block.Txs)),
	}
	for _, raw := range block.Txs {
		out.Txs = append(out.Txs, DecodeOrKeep(raw))
	}
	return out
}

// DecodeOrKeep is DecodeTx that never fails.
func DecodeOrKeep(raw []byte) model.DecodedTx {
	tx, err := DecodeTx(raw)
	if err != nil {
		return model.DecodedTx{
			Hash:        TxHash(raw),
			Raw:         raw,
			DecodeError: err.Error(),
		}
	}
	return tx
}

func decodeAny(b []byte) (model.Message, error) {
	var msg model.Message
	err := walk(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		if typ != protowire.BytesType {
			return skip(num, typ, b)
		}
		v, n := protowire.ConsumeBytes(b)
		if n < 0 {
			return 0, protowire.ParseError(n)
		}
		switch num {
		case 1:
			msg.TypeURL = string(v)
		case 2:
			msg.Value = v
		}
		return n, nil
	})
	if err != nil {
		return model.Message{}, fmt.Errorf("any: %w", err)
	}
	return msg, nil
}

func walk(b []byte, field func(protowire.Number, protowire.Type, []byte) (int, error)) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return protowire.ParseError(n)
		}
		b = b[n:]
		m, err := field(num, typ, b)
		if err != nil {
			return err
		}
		b = b[m:]
	}
	return nil
}

func skip(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
	n := protowire.ConsumeFieldValue(num, typ, b)
	if n < 0 {
		return 0, protowire.ParseError(n)
	}
	return n, nil
}
