package kline

import (
	"errors"
	"time"
)

// Interval is the spacing between bars
type Interval time.Duration

// Supported intervals
const (
	OneMin     = Interval(time.Minute)
	FiveMin    = OneMin * 5
	FifteenMin = OneMin * 15
	OneHour    = Interval(time.Hour)
)

// UnknownSymbol is used when a symbol cannot be derived from a data path
const UnknownSymbol = "UNK/UNK"

var (
	errUnsupportedInterval = errors.New("unsupported interval")
	errEmptySymbol         = errors.New("bar symbol is empty")
	errNonFinite           = errors.New("bar contains a non-finite value")
	errNegativeVolume      = errors.New("bar volume is negative")
	errOHLCInconsistent    = errors.New("bar open/close outside its low/high range")
	errZeroTimestamp       = errors.New("bar timestamp unset")
)

// Bar is one OHLCV candle for a symbol
type Bar struct {
	Symbol    string    `json:"symbol"`
	Timestamp time.Time `json:"timestamp"`
	Open      float64   `json:"open"`
	High      float64   `json:"high"`
	Low       float64   `json:"low"`
	Close     float64   `json:"close"`
	Volume    float64   `json:"volume"`
}
