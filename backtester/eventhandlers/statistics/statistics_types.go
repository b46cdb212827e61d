package statistics

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
	"github.com/solquant/harness/backtester/eventhandlers/portfolio"
	"github.com/solquant/harness/backtester/eventtypes/kline"
)

var (
	errReceivedNoData = errors.New("received no data")
	errNonFinite      = errors.New("equity is not finite")
)

// ValueAtTime is an equity observation
type ValueAtTime struct {
	Time  time.Time `json:"time"`
	Value float64   `json:"value"`
}

// Statistic accumulates everything needed for the run report
type Statistic struct {
	symbol           string
	strategyName     string
	interval         kline.Interval
	startingBalance  decimal.Decimal
	equity           []ValueAtTime
	totalFills       int
	buyFills         int
	sellFills        int
	totalFees        decimal.Decimal
	dataErrors       int
	riskRejections   map[string]int
	preemptedSignals int
	cancelledOrders  int
}

// Report is the result of a run
type Report struct {
	Symbol           string               `json:"symbol"`
	Strategy         string               `json:"strategy"`
	Interval         string               `json:"interval"`
	StartTime        time.Time            `json:"start_time"`
	EndTime          time.Time            `json:"end_time"`
	Bars             int                  `json:"bars"`
	TotalTrades      int                  `json:"total_trades"`
	BuyFills         int                  `json:"buy_fills"`
	SellFills        int                  `json:"sell_fills"`
	StartingBalance  decimal.Decimal      `json:"starting_balance"`
	RealizedPnL      decimal.Decimal      `json:"realized_pnl"`
	TotalFees        decimal.Decimal      `json:"total_fees"`
	EndingBalance    decimal.Decimal      `json:"ending_balance"`
	Sharpe           float64              `json:"sharpe"`
	Sortino          float64              `json:"sortino"`
	MaxDrawdown      float64              `json:"max_drawdown"`
	ClosedTrades     portfolio.TradeStats `json:"closed_trades"`
	DataErrors       int                  `json:"data_errors"`
	RiskRejections   map[string]int       `json:"risk_rejections"`
	PreemptedSignals int                  `json:"preempted_signals"`
	CancelledOrders  int                  `json:"cancelled_orders"`
}
