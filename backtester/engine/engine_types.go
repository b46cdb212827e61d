package engine

import (
	"context"
	"errors"
	"time"

	"github.com/solquant/harness/backtester/eventhandlers/exchange"
	"github.com/solquant/harness/backtester/eventhandlers/portfolio"
	"github.com/solquant/harness/backtester/eventhandlers/portfolio/risk"
	"github.com/solquant/harness/backtester/eventhandlers/portfolio/size"
	"github.com/solquant/harness/backtester/eventhandlers/statistics"
	"github.com/solquant/harness/backtester/eventhandlers/strategies"
	"github.com/solquant/harness/backtester/eventtypes/kline"
	"github.com/solquant/harness/backtester/ledger"
	"github.com/solquant/harness/backtester/sidecar"
)

// Defaults for a historical run
const (
	DefaultStartingBalance = 10000.0
	DefaultSlippageBps     = 5.0
	DefaultFeeBps          = 10.0
	DefaultMaxDataErrors   = 100
	DefaultStatusInterval  = 10 * time.Second
)

var (
	// ErrLiveDataTimeout returns when no bar has arrived within the timeout
	ErrLiveDataTimeout = errors.New("no data processed within timeframe")

	errNoStrategies      = errors.New("no strategies loaded")
	errNonMonotonic      = errors.New("timestamp is not after the previous bar")
	errTooManyDataErrors = errors.New("data error threshold exceeded")
	errNoExecutor        = errors.New("no execution handler")
	errNotLive           = errors.New("engine is not configured for live trading")
	errBelowMinBalance   = errors.New("balance below minimum")
)

// Settings configure a run
type Settings struct {
	Symbol          string
	StrategyName    string
	Interval        kline.Interval
	StartingBalance float64
	SlippageBps     float64
	FeeBps          float64
	Mode            exchange.Mode
	// MaxDataErrors is the number of skipped bars tolerated. Zero takes the
	// default and a negative value disables the limit
	MaxDataErrors int
	// NotionalCap limits every opening order's notional. Zero disables it
	NotionalCap float64
	// StatusInterval is the live snapshot cadence. Zero disables the tick
	StatusInterval time.Duration
	// LiveDataTimeout stops a live run when no bar arrives in time. Zero
	// disables it
	LiveDataTimeout time.Duration
}

// Balancer reports the quote balance held on chain
type Balancer interface {
	Balance(ctx context.Context) (float64, error)
}

// SnapshotSink receives status snapshots
type SnapshotSink interface {
	Publish(Snapshot)
}

// LogSink writes snapshots to the status sub-logger
type LogSink struct{}

// BackTest drives bars through strategies, the risk pipeline, the sizer and
// an execution handler. It runs historical data through the simulator or
// live bars through a chain executor
type BackTest struct {
	settings   Settings
	strategies []strategies.Handler
	pipeline   *risk.Pipeline
	portfolio  *portfolio.Portfolio
	sizer      *size.Size
	simulator  *exchange.Simulator
	executor   exchange.ExecutionHandler
	statistic  *statistics.Statistic
	ledger     ledger.Writer
	overlay    *sidecar.Overlay
	sinks      []SnapshotSink
	lastSeen   map[string]time.Time
	lastBars   map[string]kline.Bar
	live       bool
}

// Snapshot is the state published on every status tick
type Snapshot struct {
	Time           time.Time                    `json:"time"`
	Live           bool                         `json:"live"`
	Strategy       string                       `json:"strategy"`
	Bars           int                          `json:"bars"`
	Cash           float64                      `json:"cash"`
	Equity         float64                      `json:"equity"`
	HighWaterMark  float64                      `json:"high_water_mark"`
	Drawdown       float64                      `json:"drawdown"`
	RealizedPnL    float64                      `json:"realized_pnl"`
	TotalFees      float64                      `json:"total_fees"`
	Fills          int                          `json:"fills"`
	DataErrors     int                          `json:"data_errors"`
	RiskRejections map[string]int               `json:"risk_rejections"`
	ClosedTrades   portfolio.TradeStats         `json:"closed_trades"`
	Positions      []portfolio.PositionSnapshot `json:"positions"`
}
