package order

import (
	"errors"

	"github.com/solquant/harness/backtester/common"
	"github.com/solquant/harness/backtester/eventtypes/event"
)

// Type is the order type
type Type string

// Order types
const (
	Market Type = "market"
	Limit  Type = "limit"
)

var (
	errInvalidSide     = errors.New("order side must be buy or sell")
	errInvalidQuantity = errors.New("order quantity must be positive and finite")
	errInvalidType     = errors.New("unknown order type")
	errMissingLimit    = errors.New("limit order requires a positive limit price")
	errMissingID       = errors.New("order id unset")
)

// Order is a sized instruction ready for execution
type Order struct {
	event.Base
	ID           string      `json:"id"`
	Side         common.Side `json:"side"`
	Quantity     float64     `json:"quantity"`
	Type         Type        `json:"type"`
	LimitPrice   float64     `json:"limit_price,omitempty"`
	RationaleTag string      `json:"rationale_tag"`
	// StopPrice is carried through to the position opened by this order
	StopPrice float64 `json:"stop_price,omitempty"`
	// LadderStep is the take profit step this order consumes
	LadderStep int `json:"ladder_step,omitempty"`
	// ReduceOnly orders never open a position
	ReduceOnly bool `json:"reduce_only,omitempty"`
}

// IDGenerator hands out deterministic order IDs for one run
type IDGenerator struct {
	seq uint64
}
