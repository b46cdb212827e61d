package chain

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/buger/jsonparser"
	"github.com/solquant/harness/backtester/common"
	"github.com/solquant/harness/backtester/eventtypes/fill"
	"github.com/solquant/harness/backtester/eventtypes/order"
	gctmath "github.com/solquant/harness/common/math"
	"github.com/solquant/harness/common/request"
	"github.com/solquant/harness/log"
)

// NewGateway returns a client for the execution gateway at baseURL acting
// for wallet
func NewGateway(baseURL, wallet string, client *http.Client, opts ...request.RequesterOption) (*Gateway, error) {
	if baseURL == "" {
		return nil, fmt.Errorf("%w %w", common.ErrConfiguration, errGatewayURLUnset)
	}
	if _, err := url.ParseRequestURI(baseURL); err != nil {
		return nil, fmt.Errorf("%w %w", common.ErrConfiguration, err)
	}
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	opts = append([]request.RequesterOption{request.WithSubLogger(log.Execution)}, opts...)
	r, err := request.New("gateway", client, opts...)
	if err != nil {
		return nil, fmt.Errorf("%w %w", common.ErrConfiguration, err)
	}
	return &Gateway{requester: r, baseURL: strings.TrimRight(baseURL, "/"), wallet: wallet}, nil
}

// Submit posts o to the gateway and parses the resulting fill. Transport
// failures, 429 and 5xx responses are retryable execution errors, anything
// else is fatal
func (g *Gateway) Submit(ctx context.Context, o *order.Order, refPrice float64) (*fill.Fill, error) {
	if err := o.Validate(); err != nil {
		return nil, err
	}
	if refPrice <= 0 || !gctmath.IsFinite(refPrice) {
		return nil, fmt.Errorf("%w %w: %v", common.ErrExecutionFatal, errInvalidRefPrice, refPrice)
	}
	body, err := json.Marshal(&submitRequest{
		ID:         o.ID,
		Symbol:     o.Symbol,
		Side:       string(o.Side),
		Quantity:   o.Quantity,
		Type:       string(o.Type),
		LimitPrice: o.LimitPrice,
		RefPrice:   refPrice,
		Wallet:     g.wallet,
	})
	if err != nil {
		return nil, fmt.Errorf("%w %w", common.ErrExecutionFatal, err)
	}
	resp, err := g.requester.SendPayload(ctx, &request.Item{
		Method: http.MethodPost,
		Path:   g.baseURL + ordersPath,
		Body:   body,
	})
	if err != nil {
		return nil, classify(err)
	}
	return parseFill(resp, o)
}

// Balance fetches the wallet's quote balance
func (g *Gateway) Balance(ctx context.Context) (float64, error) {
	path := g.baseURL + balancePath
	if g.wallet != "" {
		path += "?wallet=" + url.QueryEscape(g.wallet)
	}
	resp, err := g.requester.SendPayload(ctx, &request.Item{Method: http.MethodGet, Path: path})
	if err != nil {
		return 0, classify(err)
	}
	bal, err := jsonparser.GetFloat(resp, "balance")
	if err != nil {
		return 0, fmt.Errorf("%w %w: balance %w", common.ErrExecutionFatal, errMalformedResponse, err)
	}
	return bal, nil
}

func classify(err error) error {
	if request.IsRetryable(err) {
		return fmt.Errorf("%w %w", common.ErrExecution, err)
	}
	return fmt.Errorf("%w %w", common.ErrExecutionFatal, err)
}

// parseFill reads {"fill":{"price":..,"quantity":..,"fee":..,"timestamp":..}}.
// Quantity and timestamp default to the order's when absent
func parseFill(data []byte, o *order.Order) (*fill.Fill, error) {
	f := &fill.Fill{
		OrderID:      o.ID,
		Side:         o.Side,
		Quantity:     o.Quantity,
		RationaleTag: o.RationaleTag,
		StopPrice:    o.StopPrice,
		LadderStep:   o.LadderStep,
	}
	f.Symbol = o.Symbol
	f.Time = o.Time

	var err error
	if f.Price, err = jsonparser.GetFloat(data, "fill", "price"); err != nil {
		return nil, fmt.Errorf("%w %w: price %w", common.ErrExecutionFatal, errMalformedResponse, err)
	}
	if f.FeeQuote, err = jsonparser.GetFloat(data, "fill", "fee"); err != nil && !errors.Is(err, jsonparser.KeyPathNotFoundError) {
		return nil, fmt.Errorf("%w %w: fee %w", common.ErrExecutionFatal, errMalformedResponse, err)
	}
	if qty, err := jsonparser.GetFloat(data, "fill", "quantity"); err == nil {
		f.Quantity = qty
	}
	if ts, err := jsonparser.GetString(data, "fill", "timestamp"); err == nil {
		if t, err := time.Parse(time.RFC3339Nano, ts); err == nil {
			f.Time = t.UTC()
		}
	}
	if f.Price <= 0 || f.Quantity <= 0 || f.FeeQuote < 0 || !gctmath.IsFinite(f.Price, f.Quantity, f.FeeQuote) {
		return nil, fmt.Errorf("%w %w: %s", common.ErrExecutionFatal, errMalformedResponse, data)
	}
	return f, nil
}
