package indicators

import "errors"

var (
	errInvalidPeriod  = errors.New("indicator period must be positive")
	errInvalidPeriods = errors.New("fast period must be less than slow period")
	errNonFiniteInput = errors.New("indicator received a non-finite value")
	errInvalidK       = errors.New("band width multiplier must be positive")
)

// SMA is a simple moving average over a fixed window
type SMA struct {
	period int
	window []float64
	next   int
	count  int
	value  float64
}

// EMA is an exponential moving average seeded by the SMA of its first period
// inputs
type EMA struct {
	period int
	alpha  float64
	count  int
	sum    float64
	value  float64
}

// RSI is Wilder's relative strength index
type RSI struct {
	period   int
	count    int
	prev     float64
	avgGain  float64
	avgLoss  float64
	value    float64
	hasValue bool
}

// ATR is Wilder's average true range
type ATR struct {
	period    int
	count     int
	prevClose float64
	sum       float64
	value     float64
}

// MACD tracks the moving average convergence divergence line, its signal
// line and the histogram between them
type MACD struct {
	fast      EMA
	slow      EMA
	signal    EMA
	line      float64
	histogram float64
	prevHist  float64
	histCount int
}

// Bollinger holds Bollinger bands over a simple moving average using the
// population standard deviation
type Bollinger struct {
	sma    SMA
	k      float64
	stdDev float64
}
