package base

import (
	"errors"
	"time"

	"github.com/solquant/harness/backtester/eventtypes/kline"
)

var (
	// ErrStrategyNotFound used when the requested strategy name does not exist
	ErrStrategyNotFound = errors.New("strategy not found")
	// ErrInvalidCustomSettings used when bad custom settings are supplied
	ErrInvalidCustomSettings = errors.New("invalid custom settings")
	// ErrSymbolMismatch used when a strategy receives a bar for another symbol
	ErrSymbolMismatch = errors.New("bar symbol does not match strategy symbol")

	errOutOfOrder = errors.New("bar is not newer than the previous bar")
)

// Strategy is the shared plumbing embedded by every strategy
type Strategy struct {
	symbol   string
	interval kline.Interval
	lastBar  time.Time
}
