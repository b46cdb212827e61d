package kline

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/solquant/harness/backtester/common"
	gctmath "github.com/solquant/harness/common/math"
)

// String returns the short form of the interval, eg 15m
func (i Interval) String() string {
	switch i {
	case OneMin:
		return "1m"
	case FiveMin:
		return "5m"
	case FifteenMin:
		return "15m"
	case OneHour:
		return "1h"
	}
	return time.Duration(i).String()
}

// Duration returns the interval as a time.Duration
func (i Interval) Duration() time.Duration {
	return time.Duration(i)
}

// BarsPerYear returns how many bars of this interval fit into a 365 day year
func (i Interval) BarsPerYear() float64 {
	if i <= 0 {
		return 0
	}
	return float64(365*24*time.Hour) / float64(i)
}

// ParseIntervalStrict converts 1m, 5m, 15m or 1h into an Interval
func ParseIntervalStrict(s string) (Interval, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "1m":
		return OneMin, nil
	case "5m":
		return FiveMin, nil
	case "15m":
		return FifteenMin, nil
	case "1h":
		return OneHour, nil
	}
	return 0, fmt.Errorf("%w %w %q", common.ErrConfiguration, errUnsupportedInterval, s)
}

// ParseInterval converts s into an Interval, falling back to OneHour for
// anything unrecognised
func ParseInterval(s string) Interval {
	i, err := ParseIntervalStrict(s)
	if err != nil {
		return OneHour
	}
	return i
}

// Validate checks the bar is internally consistent. Failures wrap
// common.ErrData
func (b *Bar) Validate() error {
	if b.Symbol == "" {
		return fmt.Errorf("%w %w", common.ErrData, errEmptySymbol)
	}
	if b.Timestamp.IsZero() {
		return fmt.Errorf("%w %w %s", common.ErrData, errZeroTimestamp, b.Symbol)
	}
	if !gctmath.IsFinite(b.Open, b.High, b.Low, b.Close, b.Volume) {
		return fmt.Errorf("%w %w %s %v", common.ErrData, errNonFinite, b.Symbol, b.Timestamp)
	}
	if b.Volume < 0 {
		return fmt.Errorf("%w %w %s %v", common.ErrData, errNegativeVolume, b.Symbol, b.Timestamp)
	}
	if b.Low > min(b.Open, b.Close) || max(b.Open, b.Close) > b.High {
		return fmt.Errorf("%w %w %s %v o:%v h:%v l:%v c:%v",
			common.ErrData, errOHLCInconsistent, b.Symbol, b.Timestamp, b.Open, b.High, b.Low, b.Close)
	}
	return nil
}

// SymbolFromPath derives a symbol from a data file name. The first two
// underscore separated tokens of the stem are joined with a slash, so
// sol_usdc_1h.csv becomes sol/usdc
func SymbolFromPath(path string) string {
	base := filepath.Base(path)
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	if stem == "" || stem == "." || stem == string(filepath.Separator) {
		return UnknownSymbol
	}
	parts := strings.Split(stem, "_")
	if len(parts) > 2 {
		parts = parts[:2]
	}
	return strings.Join(parts, "/")
}
