package model

import "time"

// Status is the node status relevant for health checks.
type Status struct {
	NodeID         string    `json:"node_id"`
	Network        string    `json:"network"`
	TxIndex        string    `json:"tx_index"`
	LatestHeight   int64     `json:"latest_height"`
	LatestTime     time.Time `json:"latest_time"`
	EarliestHeight int64     `json:"earliest_height"`
	CatchingUp     bool      `json:"catching_up"`
}

// TxIndexEnabled reports whether the node serves tx_search.
func (s Status) TxIndexEnabled() bool {
	return s.TxIndex != "off"
}
