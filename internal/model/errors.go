package model

import "errors"

var (
	ErrEndpointUnreachable = errors.New("endpoint unreachable")
	ErrEndpointStale       = errors.New("endpoint stale")
	ErrHeightUnavailable   = errors.New("height unavailable on endpoint")
	ErrCompositionMismatch = errors.New("block and results tx counts differ")
	ErrConsumerCallback    = errors.New("consumer callback failed")
	ErrPoolExhausted       = errors.New("all endpoints failed")
	ErrUnknownNetwork      = errors.New("unknown network")
	ErrNoEndpoints         = errors.New("no usable endpoints")
)
