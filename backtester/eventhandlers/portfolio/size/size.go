package size

import (
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/solquant/harness/backtester/common"
	gctmath "github.com/solquant/harness/common/math"
)

// SizeOrder is responsible for turning a signal into a quantity that the
// portfolio can afford
func (s *Size) SizeOrder(r *Request) (Result, error) {
	if r == nil {
		return Result{}, common.ErrNilArguments
	}
	if !r.Price.IsPositive() {
		return Result{}, fmt.Errorf("%w %w: %v", common.ErrExecution, errInvalidPrice, r.Price)
	}
	if !gctmath.IsFinite(r.SizeFrac, r.CloseFraction) {
		return Result{}, fmt.Errorf("%w %w: size %v close %v", common.ErrStrategy, errInvalidFraction, r.SizeFrac, r.CloseFraction)
	}
	if r.Side == common.Flat || r.ReduceOnly {
		return calculateCloseSize(r), nil
	}
	if !r.Side.IsValid() {
		return Result{}, fmt.Errorf("%w cannot size side %q", common.ErrExecution, r.Side)
	}
	return s.calculateOpenSize(r), nil
}

// calculateCloseSize closes CloseFraction of the peak quantity, or the whole
// position when it is unset. Reduce only signals on the same side as the
// position, or with no position, size to zero
func calculateCloseSize(r *Request) Result {
	if r.Held.IsZero() {
		return Result{}
	}
	closeSide := common.SideFromQuantity(r.Held.InexactFloat64()).Opposite()
	if r.Side != common.Flat && r.Side != closeSide {
		return Result{}
	}
	held := r.Held.Abs()
	amount := held
	if r.CloseFraction > 0 && r.CloseFraction < 1 {
		amount = decimal.Min(held, r.PeakQuantity.Mul(decimal.NewFromFloat(r.CloseFraction)))
	}
	if !amount.IsPositive() {
		return Result{}
	}
	return Result{Side: closeSide, Quantity: amount, ReduceOnly: true}
}

// calculateOpenSize buys or sells SizeFrac of equity. Orders against an
// existing position also close it, so the new exposure matches the signal
func (s *Size) calculateOpenSize(r *Request) Result {
	frac := decimal.NewFromFloat(gctmath.Clamp(r.SizeFrac, 0, 1))
	amount := frac.Mul(decimal.Max(r.Equity, decimal.Zero)).Div(r.Price)
	if s.NotionalCap > 0 {
		amount = decimal.Min(amount, decimal.NewFromFloat(s.NotionalCap).Div(r.Price))
	}
	if !r.Held.IsZero() && common.SideFromQuantity(r.Held.InexactFloat64()) != r.Side {
		amount = amount.Add(r.Held.Abs())
	}
	if r.Side == common.Buy {
		amount = decimal.Min(amount, s.calculateBuySize(r.Price, r.Cash))
	}
	if !amount.IsPositive() {
		return Result{}
	}
	return Result{Side: r.Side, Quantity: amount}
}

// calculateBuySize is the largest quantity whose notional plus expected
// costs fits into the available funds
func (s *Size) calculateBuySize(price, availableFunds decimal.Decimal) decimal.Decimal {
	if !availableFunds.IsPositive() {
		return decimal.Zero
	}
	cost := decimal.NewFromFloat(s.CostBps).Div(decimal.NewFromInt(gctmath.BasisPoints))
	// truncated so the order never costs more than the funds
	q, _ := availableFunds.QuoRem(price.Mul(decimal.NewFromInt(1).Add(cost)), int32(decimal.DivisionPrecision))
	return q
}
