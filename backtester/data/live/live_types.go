package live

import (
	"context"
	"errors"
	"time"

	"github.com/solquant/harness/backtester/data"
	"github.com/solquant/harness/backtester/eventtypes/kline"
)

const (
	defaultHandshakeTimeout = 10 * time.Second
	defaultReadTimeout      = 90 * time.Second
	defaultMinBackoff       = time.Second
	defaultMaxBackoff       = 30 * time.Second
	barBuffer               = 64
)

var (
	errEmptyURL       = errors.New("market data url is empty")
	errNotBarMessage  = errors.New("message is not a bar")
	errMissingField   = errors.New("bar message is missing field")
	errNilProvider    = errors.New("provider is nil")
	errAlreadyStarted = errors.New("source already streaming")
)

// Source delivers bars until its context is done or the feed ends, at which
// point the channel is closed
type Source interface {
	Stream(ctx context.Context) (<-chan kline.Bar, error)
}

// Websocket subscribes to a market data feed publishing one json object per
// closed bar
type Websocket struct {
	URL        string
	Symbol     string
	Interval   kline.Interval
	MinBackoff time.Duration
	MaxBackoff time.Duration
	started    bool
}

// Channel adapts an existing bar channel
type Channel struct {
	C <-chan kline.Bar
}

// Replay streams a provider's bars, optionally paced, skipping bad rows
type Replay struct {
	Provider data.Provider
	Pace     time.Duration
}

type subscription struct {
	Type     string `json:"type"`
	Symbol   string `json:"symbol"`
	Interval string `json:"interval"`
}
