package fill

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/solquant/harness/backtester/common"
	"github.com/solquant/harness/backtester/eventtypes/event"
)

// Fill is an executed order
type Fill struct {
	event.Base
	OrderID      string      `json:"order_id"`
	Side         common.Side `json:"side"`
	Quantity     float64     `json:"quantity"`
	Price        float64     `json:"price"`
	FeeQuote     float64     `json:"fee_quote"`
	RationaleTag string      `json:"rationale_tag"`
	StopPrice    float64     `json:"stop_price,omitempty"`
	LadderStep   int         `json:"ladder_step,omitempty"`
}

// Record is the persisted form of a fill, one JSON object per line
type Record struct {
	Timestamp time.Time       `json:"timestamp"`
	Symbol    string          `json:"symbol"`
	Side      common.Side     `json:"side"`
	Qty       decimal.Decimal `json:"qty"`
	Price     decimal.Decimal `json:"price"`
	Fee       decimal.Decimal `json:"fee"`
}
