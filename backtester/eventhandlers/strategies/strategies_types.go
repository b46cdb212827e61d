package strategies

import (
	"github.com/solquant/harness/backtester/eventtypes/kline"
	"github.com/solquant/harness/backtester/eventtypes/signal"
)

// Handler defines all functions required to run strategies against data events
type Handler interface {
	Name() string
	Description() string
	Symbol() string
	// OnBar consumes one bar and returns a signal or nil for no action
	OnBar(kline.Bar) (*signal.Signal, error)
	SetCustomSettings(map[string]any) error
	SetDefaults()
	// Reset clears indicator state while keeping settings
	Reset()
}
