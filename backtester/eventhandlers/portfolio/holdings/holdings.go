package holdings

import (
	"fmt"
	"sort"

	"github.com/shopspring/decimal"
	"github.com/solquant/harness/backtester/common"
	"github.com/solquant/harness/backtester/eventtypes/fill"
	gctmath "github.com/solquant/harness/common/math"
)

// NewBook returns an empty position book
func NewBook() *Book {
	return &Book{positions: make(map[string]*lot)}
}

// Apply books a fill against the symbol's position and returns the PnL it
// realized. Same side fills average into the entry price, opposite fills
// realize against it and any residual opens a new position at the fill price
func (b *Book) Apply(f *fill.Fill) (decimal.Decimal, error) {
	if f == nil {
		return decimal.Zero, common.ErrNilArguments
	}
	if !gctmath.IsFinite(f.Quantity, f.Price, f.FeeQuote) || f.Quantity <= 0 || f.Price <= 0 {
		return decimal.Zero, fmt.Errorf("%w %w: %s qty %v price %v", common.ErrExecution, errInvalidFill, f.Symbol, f.Quantity, f.Price)
	}
	if f.FeeQuote < 0 {
		return decimal.Zero, fmt.Errorf("%w %w: %v", common.ErrExecution, errNegativeFee, f.FeeQuote)
	}
	dir := decimal.NewFromInt(int64(f.Side.Direction()))
	if dir.IsZero() {
		return decimal.Zero, fmt.Errorf("%w cannot book a %q fill", common.ErrExecution, f.Side)
	}
	if b.positions == nil {
		b.positions = make(map[string]*lot)
	}
	amount := decimal.NewFromFloat(f.Quantity)
	price := decimal.NewFromFloat(f.Price)
	fee := decimal.NewFromFloat(f.FeeQuote)

	p, ok := b.positions[f.Symbol]
	if !ok {
		b.open(f, amount, price, fee)
		return decimal.Zero, nil
	}
	held := p.quantity.Abs()
	if p.quantity.Sign() == dir.Sign() {
		p.avgEntry = p.avgEntry.Mul(held).Add(price.Mul(amount)).Div(held.Add(amount))
		p.quantity = p.quantity.Add(dir.Mul(amount))
		p.feesPaid = p.feesPaid.Add(fee)
		p.peakQty = decimal.Max(p.peakQty, p.quantity.Abs())
		if f.StopPrice > 0 {
			p.stopPrice = f.StopPrice
		}
		return decimal.Zero, nil
	}
	closeQty := decimal.Min(held, amount)
	realized := price.Sub(p.avgEntry).Mul(closeQty).Mul(dir.Neg())
	closeFee := fee.Mul(closeQty).Div(amount)
	p.realized = p.realized.Add(realized)
	p.feesPaid = p.feesPaid.Add(closeFee)
	p.quantity = p.quantity.Add(dir.Mul(closeQty))
	if f.LadderStep > p.stepsHit {
		p.stepsHit = f.LadderStep
	}
	if p.quantity.Abs().LessThanOrEqual(dustTolerance.Mul(p.peakQty)) {
		b.close(p, f)
	}
	if remaining := amount.Sub(closeQty); remaining.GreaterThan(dustTolerance.Mul(amount)) {
		b.open(f, remaining, price, fee.Sub(closeFee))
	}
	return realized, nil
}

func (b *Book) open(f *fill.Fill, amount, price, fee decimal.Decimal) {
	b.positions[f.Symbol] = &lot{
		symbol:    f.Symbol,
		quantity:  amount.Mul(decimal.NewFromInt(int64(f.Side.Direction()))),
		avgEntry:  price,
		openedAt:  f.Time,
		peakQty:   amount,
		stopPrice: f.StopPrice,
		feesPaid:  fee,
	}
}

func (b *Book) close(p *lot, f *fill.Fill) {
	b.closed = append(b.closed, ClosedTrade{
		Symbol:       p.symbol,
		Side:         f.Side.Opposite(),
		PeakQuantity: p.peakQty.InexactFloat64(),
		EntryPrice:   p.avgEntry.InexactFloat64(),
		ExitPrice:    f.Price,
		OpenedAt:     p.openedAt,
		ClosedAt:     f.Time,
		RealizedPnL:  p.realized.InexactFloat64(),
		Fees:         p.feesPaid.InexactFloat64(),
		ExitTag:      f.RationaleTag,
	})
	b.realizedClosed = b.realizedClosed.Add(p.realized)
	delete(b.positions, p.symbol)
}

func (p *lot) position() Position {
	return Position{
		Symbol:              p.symbol,
		Quantity:            p.quantity.InexactFloat64(),
		AvgEntryPrice:       p.avgEntry.InexactFloat64(),
		OpenedAt:            p.openedAt,
		RealizedPnL:         p.realized.InexactFloat64(),
		PeakEquityWhileOpen: p.peakEquity.InexactFloat64(),
		PeakQuantity:        p.peakQty.InexactFloat64(),
		TakeProfitStepsHit:  p.stepsHit,
		StopPrice:           p.stopPrice,
		FeesPaid:            p.feesPaid.InexactFloat64(),
	}
}

// Position returns a copy of the open position for symbol
func (b *Book) Position(symbol string) (Position, bool) {
	p, ok := b.positions[symbol]
	if !ok {
		return Position{}, false
	}
	return p.position(), true
}

// Held returns the exact signed and peak quantities of symbol's position
func (b *Book) Held(symbol string) (quantity, peak decimal.Decimal, ok bool) {
	p, ok := b.positions[symbol]
	if !ok {
		return decimal.Zero, decimal.Zero, false
	}
	return p.quantity, p.peakQty, true
}

// Positions returns copies of every open position ordered by symbol
func (b *Book) Positions() []Position {
	resp := make([]Position, 0, len(b.positions))
	for _, p := range b.positions {
		resp = append(resp, p.position())
	}
	sort.Slice(resp, func(i, j int) bool {
		return resp[i].Symbol < resp[j].Symbol
	})
	return resp
}

// Value is the signed value of every open position at mark. Symbols mark
// does not know are valued at their entry price
func (b *Book) Value(mark func(symbol string) (decimal.Decimal, bool)) decimal.Decimal {
	total := decimal.Zero
	for _, p := range b.positions {
		px, ok := mark(p.symbol)
		if !ok {
			px = p.avgEntry
		}
		total = total.Add(p.quantity.Mul(px))
	}
	return total
}

// OpenCount returns the number of open positions
func (b *Book) OpenCount() int {
	return len(b.positions)
}

// ClosedTrades returns a copy of the closed trade list in closing order
func (b *Book) ClosedTrades() []ClosedTrade {
	resp := make([]ClosedTrade, len(b.closed))
	copy(resp, b.closed)
	return resp
}

// RealizedTotal is the realized PnL of closed trades plus partial closes of
// open positions
func (b *Book) RealizedTotal() decimal.Decimal {
	total := b.realizedClosed
	for _, p := range b.positions {
		total = total.Add(p.realized)
	}
	return total
}

// UpdatePeakEquity raises the equity peak of every open position
func (b *Book) UpdatePeakEquity(equity decimal.Decimal) {
	for _, p := range b.positions {
		if equity.GreaterThan(p.peakEquity) {
			p.peakEquity = equity
		}
	}
}

// Reset empties the book
func (b *Book) Reset() {
	b.positions = make(map[string]*lot)
	b.closed = nil
	b.realizedClosed = decimal.Zero
}
