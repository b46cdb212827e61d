package fill

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/solquant/harness/backtester/common"
	"github.com/solquant/harness/backtester/eventtypes/order"
	gctmath "github.com/solquant/harness/common/math"
)

var basisPoints = decimal.NewFromInt(gctmath.BasisPoints)

// Execute fills o in full at ref moved against the order by slippageBps and
// charges feeBps of the notional
func Execute(o *order.Order, ref, slippageBps, feeBps float64, t time.Time) *Fill {
	price := SlippedPrice(ref, slippageBps, o.Side)
	fee := decimal.NewFromFloat(o.Quantity).Mul(price).Mul(decimal.NewFromFloat(feeBps)).Div(basisPoints)
	f := &Fill{
		OrderID:      o.ID,
		Side:         o.Side,
		Quantity:     o.Quantity,
		Price:        price.InexactFloat64(),
		FeeQuote:     fee.InexactFloat64(),
		RationaleTag: o.RationaleTag,
		StopPrice:    o.StopPrice,
		LadderStep:   o.LadderStep,
	}
	f.Symbol = o.Symbol
	f.Time = t
	f.Reasons = o.GetReasons()
	return f
}

// SlippedPrice moves ref against a trader on side by slippageBps
func SlippedPrice(ref, slippageBps float64, side common.Side) decimal.Decimal {
	px := decimal.NewFromFloat(ref)
	move := px.Mul(decimal.NewFromFloat(slippageBps)).Div(basisPoints)
	return px.Add(move.Mul(decimal.NewFromInt(int64(side.Direction()))))
}

// Notional returns quantity multiplied by price
func (f *Fill) Notional() decimal.Decimal {
	return decimal.NewFromFloat(f.Quantity).Mul(decimal.NewFromFloat(f.Price))
}

// CashDelta returns the change in quote cash caused by the fill. Buys pay
// notional plus fee, sells receive notional less fee
func (f *Fill) CashDelta() decimal.Decimal {
	fee := decimal.NewFromFloat(f.FeeQuote)
	if f.Side == common.Buy {
		return f.Notional().Add(fee).Neg()
	}
	return f.Notional().Sub(fee)
}

// ToRecord converts the fill into its ledger form
func (f *Fill) ToRecord() Record {
	return Record{
		Timestamp: f.Time.UTC(),
		Symbol:    f.Symbol,
		Side:      f.Side,
		Qty:       decimal.NewFromFloat(f.Quantity),
		Price:     decimal.NewFromFloat(f.Price),
		Fee:       decimal.NewFromFloat(f.FeeQuote),
	}
}
