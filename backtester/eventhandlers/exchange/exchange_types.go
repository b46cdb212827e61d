package exchange

import (
	"context"
	"errors"
	"time"

	"github.com/solquant/harness/backtester/chain"
	"github.com/solquant/harness/backtester/eventtypes/fill"
	"github.com/solquant/harness/backtester/eventtypes/kline"
	"github.com/solquant/harness/backtester/eventtypes/order"
	"golang.org/x/time/rate"
)

// Mode selects the price a simulated order fills at
type Mode uint8

// Simulation modes
const (
	// Bar fills at the close of the bar the order was placed in
	Bar Mode = iota
	// NextBarOpen fills at the open of the symbol's next bar
	NextBarOpen
)

// Retry defaults for chain submissions
const (
	DefaultRetryBase     = 200 * time.Millisecond
	DefaultRetryFactor   = 2.0
	DefaultRetryAttempts = 5
	DefaultRetryJitter   = 0.2
)

var (
	errInvalidMode     = errors.New("unknown simulation mode")
	errNegativeBps     = errors.New("basis points must be non-negative and finite")
	errInvalidAttempts = errors.New("retry attempts must be positive")
	errNilClient       = errors.New("chain client is nil")
)

// ExecutionHandler turns an order into a fill. A nil fill with a nil error
// means the order was queued
type ExecutionHandler interface {
	ExecuteOrder(ctx context.Context, o *order.Order, b *kline.Bar) (*fill.Fill, error)
}

// Simulator fills orders against historical bars
type Simulator struct {
	Mode        Mode
	SlippageBps float64
	FeeBps      float64
	queue       []*order.Order
}

// Retrier retries retryable execution errors with exponential backoff and
// jitter
type Retrier struct {
	Base     time.Duration
	Factor   float64
	Attempts int
	Jitter   float64
	// random returns a value in [0,1)
	random func() float64
	sleep  func(context.Context, time.Duration) error
}

// ChainExecutor submits orders to a chain client through a rate limiter and
// a retrier
type ChainExecutor struct {
	client  chain.Client
	retrier *Retrier
	limiter *rate.Limiter
}
