package model

import "errors"

var (
	ErrInvalidMarket         = errors.New("invalid market")
	ErrInvalidEdge           = errors.New("invalid conversion edge")
	ErrInvalidPath           = errors.New("invalid trading path")
	ErrOrderBookUnavailable  = errors.New("order book unavailable")
	ErrMinOrderUnavailable   = errors.New("minimum order size unavailable")
	ErrReferenceValueMissing = errors.New("reference value missing")
	ErrInsufficientBalance   = errors.New("insufficient balance")
)
