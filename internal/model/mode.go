package model

import (
	"fmt"
	"strings"
)

// DataToFetch selects what the watcher composes for each height.
type DataToFetch string

const (
	RawTxs      DataToFetch = "RAW_TXS"
	IndexedTxs  DataToFetch = "INDEXED_TXS"
	OnlyHeights DataToFetch = "ONLY_HEIGHTS"
)

// ParseDataToFetch accepts the canonical names case-insensitively. Empty input means RAW_TXS.
func ParseDataToFetch(input string) (DataToFetch, error) {
	switch strings.ToUpper(strings.TrimSpace(input)) {
	case "", string(RawTxs):
		return RawTxs, nil
	case string(IndexedTxs):
		return IndexedTxs, nil
	case string(OnlyHeights):
		return OnlyHeights, nil
	default:
		return "", fmt.Errorf("unknown data-to-fetch %q", input)
	}
}

func (d DataToFetch) String() string {
	return string(d)
}
