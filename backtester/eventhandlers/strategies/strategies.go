package strategies

import (
	"fmt"
	"strings"

	"github.com/solquant/harness/backtester/eventhandlers/strategies/base"
	"github.com/solquant/harness/backtester/eventhandlers/strategies/meanreversion"
	"github.com/solquant/harness/backtester/eventhandlers/strategies/momentum"
	"github.com/solquant/harness/backtester/eventhandlers/strategies/rsi"
	"github.com/solquant/harness/backtester/eventhandlers/strategies/trendfollowing"
	"github.com/solquant/harness/backtester/eventtypes/kline"
)

// LoadStrategyByName returns the strategy by its name, configured with its
// default settings for the symbol and interval
func LoadStrategyByName(name, symbol string, interval kline.Interval) (Handler, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case momentum.Name:
		return momentum.New(symbol, interval), nil
	case meanreversion.Name:
		return meanreversion.New(symbol, interval, 50, 1.4, 1.5, 1)
	case trendfollowing.Name, trendfollowing.Alias:
		return trendfollowing.New(symbol, interval, trendfollowing.DefaultConfig())
	case rsi.Name:
		return rsi.New(symbol, interval), nil
	}
	return nil, fmt.Errorf("strategy '%v' %w", name, base.ErrStrategyNotFound)
}

// GetSupportedStrategies returns a fresh default instance of every strategy
func GetSupportedStrategies() []Handler {
	handlers := make([]Handler, 0, 4)
	for _, name := range SupportedNames() {
		h, err := LoadStrategyByName(name, "", kline.OneHour)
		if err != nil {
			continue
		}
		handlers = append(handlers, h)
	}
	return handlers
}

// SupportedNames lists the canonical names accepted by LoadStrategyByName
func SupportedNames() []string {
	return []string{momentum.Name, meanreversion.Name, trendfollowing.Name, rsi.Name}
}
