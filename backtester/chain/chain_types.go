package chain

import (
	"context"
	"errors"
	"sync"

	"github.com/shopspring/decimal"
	"github.com/solquant/harness/backtester/eventtypes/fill"
	"github.com/solquant/harness/backtester/eventtypes/order"
	"github.com/solquant/harness/common/request"
)

const (
	ordersPath  = "/v1/orders"
	balancePath = "/v1/balance"
)

var (
	errInvalidRefPrice   = errors.New("reference price must be positive and finite")
	errInsufficientFunds = errors.New("insufficient funds")
	errMalformedResponse = errors.New("malformed gateway response")
	errGatewayURLUnset   = errors.New("gateway url unset")
)

// Client submits orders to the chain and reports the quote balance
type Client interface {
	Submit(ctx context.Context, o *order.Order, refPrice float64) (*fill.Fill, error)
	Balance(ctx context.Context) (float64, error)
}

// DryRun fills every order locally at the reference price plus slippage
type DryRun struct {
	mu          sync.Mutex
	cash        decimal.Decimal
	slippageBps float64
	feeBps      float64
}

// Gateway submits orders to an HTTP execution gateway which owns signing
// and settlement
type Gateway struct {
	requester *request.Requester
	baseURL   string
	wallet    string
}

type submitRequest struct {
	ID         string  `json:"id"`
	Symbol     string  `json:"symbol"`
	Side       string  `json:"side"`
	Quantity   float64 `json:"quantity"`
	Type       string  `json:"type"`
	LimitPrice float64 `json:"limit_price,omitempty"`
	RefPrice   float64 `json:"ref_price"`
	Wallet     string  `json:"wallet,omitempty"`
}
