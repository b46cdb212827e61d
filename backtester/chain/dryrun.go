package chain

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/solquant/harness/backtester/common"
	"github.com/solquant/harness/backtester/eventtypes/fill"
	"github.com/solquant/harness/backtester/eventtypes/order"
	gctmath "github.com/solquant/harness/common/math"
	"github.com/solquant/harness/log"
)

// NewDryRun returns a client that never touches the chain
func NewDryRun(startingCash, slippageBps, feeBps float64) *DryRun {
	return &DryRun{cash: decimal.NewFromFloat(startingCash), slippageBps: slippageBps, feeBps: feeBps}
}

// Submit fills o in full at refPrice adjusted for slippage
func (d *DryRun) Submit(ctx context.Context, o *order.Order, refPrice float64) (*fill.Fill, error) {
	if err := o.Validate(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w %w", common.ErrExecution, err)
	}
	if refPrice <= 0 || !gctmath.IsFinite(refPrice) {
		return nil, fmt.Errorf("%w %w: %v", common.ErrExecutionFatal, errInvalidRefPrice, refPrice)
	}
	f := fill.Execute(o, refPrice, d.slippageBps, d.feeBps, o.Time)

	d.mu.Lock()
	defer d.mu.Unlock()
	cash := d.cash.Add(f.CashDelta())
	if cash.IsNegative() && o.Side == common.Buy {
		return nil, fmt.Errorf("%w %w: need %s have %s", common.ErrExecutionFatal, errInsufficientFunds, f.CashDelta().Neg(), d.cash)
	}
	d.cash = cash
	log.Infof(log.Execution, "dry run %s %s %.6f @ %.6f fee %.6f", o.Symbol, o.Side, f.Quantity, f.Price, f.FeeQuote)
	return f, nil
}

// Balance returns the simulated quote balance
func (d *DryRun) Balance(context.Context) (float64, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.cash.InexactFloat64(), nil
}
