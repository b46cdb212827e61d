package size

import (
	"errors"

	"github.com/shopspring/decimal"
	"github.com/solquant/harness/backtester/common"
)

var (
	errInvalidPrice    = errors.New("sizing price must be positive")
	errInvalidFraction = errors.New("size fractions must be finite")
)

// Size turns signal fractions into order quantities
type Size struct {
	// CostBps is the expected slippage plus fee in basis points. Buys are
	// clamped so that notional plus cost fits the available cash
	CostBps float64
	// NotionalCap limits the opening portion of an order in quote terms.
	// Zero means unlimited
	NotionalCap float64
}

// Request is everything the sizer needs to know about one signal
type Request struct {
	Side          common.Side
	ReduceOnly    bool
	SizeFrac      float64
	CloseFraction float64
	// Held is the signed quantity of the existing position
	Held decimal.Decimal
	// PeakQuantity is the largest absolute quantity the position has held
	PeakQuantity decimal.Decimal
	Equity       decimal.Decimal
	Cash         decimal.Decimal
	Price        decimal.Decimal
}

// Result is a sized order. A zero Quantity means nothing should be sent
type Result struct {
	Side       common.Side
	Quantity   decimal.Decimal
	ReduceOnly bool
}
