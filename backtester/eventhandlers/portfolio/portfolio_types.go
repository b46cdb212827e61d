package portfolio

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
	"github.com/solquant/harness/backtester/eventhandlers/portfolio/holdings"
	"github.com/solquant/harness/backtester/eventtypes/fill"
	"github.com/solquant/harness/backtester/eventtypes/order"
)

var (
	errInvalidStartingCash = errors.New("starting cash must be positive and finite")
	errInvalidMark         = errors.New("mark price must be positive and finite")
)

// View is the read-only face of the portfolio handed to strategies, risk
// rules and the sidecar
type View interface {
	Cash() float64
	Equity() float64
	EquityHighWaterMark() float64
	RealizedPnL() float64
	Position(symbol string) (holdings.Position, bool)
	Positions() []holdings.Position
	OpenPositionCount() int
	Mark(symbol string) (float64, bool)
	TradeStats() TradeStats
}

// TradeStats summarises closed trades. AvgLoss is a positive magnitude.
// Breakeven trades count towards Trades only
type TradeStats struct {
	Trades  int     `json:"trades"`
	Wins    int     `json:"wins"`
	Losses  int     `json:"losses"`
	WinRate float64 `json:"win_rate"`
	AvgWin  float64 `json:"avg_win"`
	AvgLoss float64 `json:"avg_loss"`
}

// PositionSnapshot is a point in time view of one open position
type PositionSnapshot struct {
	Symbol             string    `json:"symbol"`
	Quantity           float64   `json:"quantity"`
	AvgEntryPrice      float64   `json:"avg_entry_price"`
	Mark               float64   `json:"mark"`
	UnrealizedPnL      float64   `json:"unrealized_pnl"`
	RealizedPnL        float64   `json:"realized_pnl"`
	StopPrice          float64   `json:"stop_price,omitempty"`
	TakeProfitStepsHit int       `json:"take_profit_steps_hit"`
	OpenedAt           time.Time `json:"opened_at"`
}

// Portfolio owns cash, positions and the fills ledger for one run
type Portfolio struct {
	startingCash decimal.Decimal
	cash         decimal.Decimal
	hwm          decimal.Decimal
	totalFees    decimal.Decimal
	book         *holdings.Book
	marks        map[string]decimal.Decimal
	fills        []fill.Fill
	ids          order.IDGenerator
}
