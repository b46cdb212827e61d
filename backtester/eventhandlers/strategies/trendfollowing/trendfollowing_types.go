package trendfollowing

import (
	"github.com/solquant/harness/backtester/common"
	"github.com/solquant/harness/backtester/eventhandlers/strategies/base"
	"github.com/solquant/harness/backtester/indicators"
)

const (
	// Name is the strategy name
	Name = "trend_following"
	// Alias is the short name accepted by the registry
	Alias       = "trend"
	description = `Trend following enters when three exponential moving averages are stacked in order, the MACD histogram agrees and is strengthening, and the relative strength index is not stretched. Entries carry an ATR based stop and are sized so that stop distance risks a fixed share of equity`

	tagEntryLong  = "trend_long"
	tagEntryShort = "trend_short"
	tagExit       = "trend_exit"
)

// Config holds the periods and risk parameters of the strategy
type Config struct {
	FastEMA         int     `mapstructure:"fast-ema"`
	MidEMA          int     `mapstructure:"mid-ema"`
	SlowEMA         int     `mapstructure:"slow-ema"`
	MACDFast        int     `mapstructure:"macd-fast"`
	MACDSlow        int     `mapstructure:"macd-slow"`
	MACDSignal      int     `mapstructure:"macd-signal"`
	RSIPeriod       int     `mapstructure:"rsi-period"`
	ATRPeriod       int     `mapstructure:"atr-period"`
	ATRStopMult     float64 `mapstructure:"atr-stop-multiplier"`
	RiskPerTradePct float64 `mapstructure:"risk-per-trade-pct"`
	MaxPositionPct  float64 `mapstructure:"max-position-pct"`
}

// Strategy is an implementation of the Handler interface
type Strategy struct {
	base.Strategy
	cfg Config

	initialised bool
	fast        indicators.EMA
	mid         indicators.EMA
	slow        indicators.EMA
	macd        indicators.MACD
	rsi         indicators.RSI
	atr         indicators.ATR
	engaged     common.Side
}
