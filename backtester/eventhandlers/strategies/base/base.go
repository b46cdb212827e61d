package base

import (
	"fmt"
	"strconv"
	"time"

	"github.com/solquant/harness/backtester/common"
	"github.com/solquant/harness/backtester/eventtypes/event"
	"github.com/solquant/harness/backtester/eventtypes/kline"
	"github.com/solquant/harness/backtester/eventtypes/signal"
)

// Symbol returns the symbol the strategy trades
func (s *Strategy) Symbol() string {
	return s.symbol
}

// SetSymbol sets the symbol the strategy trades
func (s *Strategy) SetSymbol(symbol string) {
	s.symbol = symbol
}

// Interval returns the bar interval the strategy was configured for
func (s *Strategy) Interval() kline.Interval {
	return s.interval
}

// SetInterval sets the bar interval
func (s *Strategy) SetInterval(i kline.Interval) {
	s.interval = i
}

// CheckBar ensures a bar belongs to this strategy and arrives in order. A
// strategy without a symbol adopts the first bar's symbol
func (s *Strategy) CheckBar(b *kline.Bar) error {
	if b == nil {
		return common.ErrNilArguments
	}
	if s.symbol == "" {
		s.symbol = b.Symbol
	}
	if b.Symbol != s.symbol {
		return fmt.Errorf("%w %w %q != %q", common.ErrStrategy, ErrSymbolMismatch, b.Symbol, s.symbol)
	}
	if !s.lastBar.IsZero() && !b.Timestamp.After(s.lastBar) {
		return fmt.Errorf("%w %w %v <= %v", common.ErrStrategy, errOutOfOrder, b.Timestamp, s.lastBar)
	}
	s.lastBar = b.Timestamp
	return nil
}

// ResetBase forgets the last bar seen
func (s *Strategy) ResetBase() {
	s.lastBar = time.Time{}
}

// NewSignal returns a signal for the bar with the common fields populated
func (s *Strategy) NewSignal(b *kline.Bar, side common.Side, tag string) *signal.Signal {
	return &signal.Signal{
		Base: event.Base{
			Symbol: b.Symbol,
			Time:   b.Timestamp,
		},
		Side:         side,
		RationaleTag: tag,
	}
}

// ToFloat converts a custom setting value into a float64. Config decoders
// hand back integers and strings as well as floats
func ToFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case string:
		f, err := strconv.ParseFloat(n, 64)
		return f, err == nil
	}
	return 0, false
}

// ToPeriod converts a custom setting value into a positive whole period
func ToPeriod(v any) (int, bool) {
	f, ok := ToFloat(v)
	if !ok || f < 1 || f != float64(int(f)) {
		return 0, false
	}
	return int(f), true
}

// InvalidSetting returns a consistently wrapped custom settings error
func InvalidSetting(key string, v any) error {
	return fmt.Errorf("%w %w %s value could not be parsed: %v", common.ErrConfiguration, ErrInvalidCustomSettings, key, v)
}
