package holdings

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
	"github.com/solquant/harness/backtester/common"
)

var (
	// dustTolerance is the share of a position's peak quantity below which a
	// remaining quantity is treated as zero
	dustTolerance = decimal.New(1, -12)

	errInvalidFill = errors.New("fill quantity and price must be positive and finite")
	errNegativeFee = errors.New("fill fee is negative")
)

// Position is the open holding of one symbol as seen by strategies and risk
// rules. Quantity is signed: positive for long, negative for short
type Position struct {
	Symbol        string    `json:"symbol"`
	Quantity      float64   `json:"quantity"`
	AvgEntryPrice float64   `json:"avg_entry_price"`
	OpenedAt      time.Time `json:"opened_at"`
	// RealizedPnL accumulates partial closes of this position
	RealizedPnL         float64 `json:"realized_pnl"`
	PeakEquityWhileOpen float64 `json:"peak_equity_while_open"`
	// PeakQuantity is the largest absolute quantity held since opening
	PeakQuantity       float64 `json:"peak_quantity"`
	TakeProfitStepsHit int     `json:"take_profit_steps_hit"`
	StopPrice          float64 `json:"stop_price,omitempty"`
	FeesPaid           float64 `json:"fees_paid"`
}

// ClosedTrade is a position that went back to zero
type ClosedTrade struct {
	Symbol       string      `json:"symbol"`
	Side         common.Side `json:"side"`
	PeakQuantity float64     `json:"peak_quantity"`
	EntryPrice   float64     `json:"entry_price"`
	ExitPrice    float64     `json:"exit_price"`
	OpenedAt     time.Time   `json:"opened_at"`
	ClosedAt     time.Time   `json:"closed_at"`
	RealizedPnL  float64     `json:"realized_pnl"`
	Fees         float64     `json:"fees"`
	ExitTag      string      `json:"exit_tag"`
}

// lot is the book's exact record of a position
type lot struct {
	symbol     string
	quantity   decimal.Decimal
	avgEntry   decimal.Decimal
	openedAt   time.Time
	realized   decimal.Decimal
	peakEquity decimal.Decimal
	peakQty    decimal.Decimal
	stepsHit   int
	stopPrice  float64
	feesPaid   decimal.Decimal
}

// Book holds at most one position per symbol and the trades closed so far
type Book struct {
	positions map[string]*lot
	closed    []ClosedTrade
	// realizedClosed is the realized PnL of every closed trade
	realizedClosed decimal.Decimal
}
