package portfolio

import (
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/solquant/harness/backtester/common"
	"github.com/solquant/harness/backtester/eventhandlers/portfolio/holdings"
	"github.com/solquant/harness/backtester/eventhandlers/portfolio/size"
	"github.com/solquant/harness/backtester/eventtypes/fill"
	"github.com/solquant/harness/backtester/eventtypes/kline"
	"github.com/solquant/harness/backtester/eventtypes/order"
	"github.com/solquant/harness/backtester/eventtypes/signal"
	gctmath "github.com/solquant/harness/common/math"
	"github.com/solquant/harness/log"
)

// New returns a portfolio holding only startingCash
func New(startingCash float64) (*Portfolio, error) {
	if startingCash <= 0 || !gctmath.IsFinite(startingCash) {
		return nil, fmt.Errorf("%w %w: %v", common.ErrConfiguration, errInvalidStartingCash, startingCash)
	}
	cash := decimal.NewFromFloat(startingCash)
	return &Portfolio{
		startingCash: cash,
		cash:         cash,
		hwm:          cash,
		book:         holdings.NewBook(),
		marks:        make(map[string]decimal.Decimal),
	}, nil
}

// Cash returns the quote balance
func (p *Portfolio) Cash() float64 {
	return p.cash.InexactFloat64()
}

// StartingCash returns the balance the run started with
func (p *Portfolio) StartingCash() float64 {
	return p.startingCash.InexactFloat64()
}

// Equity is cash plus every open position valued at its mark. Positions
// without a mark are valued at their entry price
func (p *Portfolio) Equity() float64 {
	return p.equity().InexactFloat64()
}

func (p *Portfolio) equity() decimal.Decimal {
	return p.cash.Add(p.book.Value(p.mark))
}

func (p *Portfolio) mark(symbol string) (decimal.Decimal, bool) {
	m, ok := p.marks[symbol]
	return m, ok
}

// EquityHighWaterMark returns the highest equity seen so far
func (p *Portfolio) EquityHighWaterMark() float64 {
	return p.hwm.InexactFloat64()
}

// RealizedPnL returns realized PnL gross of fees
func (p *Portfolio) RealizedPnL() float64 {
	return p.book.RealizedTotal().InexactFloat64()
}

// TotalFees returns the fees paid across all fills
func (p *Portfolio) TotalFees() float64 {
	return p.totalFees.InexactFloat64()
}

// Position returns the open position for symbol
func (p *Portfolio) Position(symbol string) (holdings.Position, bool) {
	return p.book.Position(symbol)
}

// Positions returns every open position ordered by symbol
func (p *Portfolio) Positions() []holdings.Position {
	return p.book.Positions()
}

// OpenPositionCount returns the number of open positions
func (p *Portfolio) OpenPositionCount() int {
	return p.book.OpenCount()
}

// ClosedTrades returns the trades closed so far
func (p *Portfolio) ClosedTrades() []holdings.ClosedTrade {
	return p.book.ClosedTrades()
}

// Mark returns the last close seen for symbol
func (p *Portfolio) Mark(symbol string) (float64, bool) {
	m, ok := p.marks[symbol]
	return m.InexactFloat64(), ok
}

// Fills returns a copy of the fills ledger
func (p *Portfolio) Fills() []fill.Fill {
	resp := make([]fill.Fill, len(p.fills))
	copy(resp, p.fills)
	return resp
}

// TradeStats summarises the closed trades
func (p *Portfolio) TradeStats() TradeStats {
	var ts TradeStats
	var winSum, lossSum float64
	for _, t := range p.book.ClosedTrades() {
		ts.Trades++
		switch {
		case t.RealizedPnL > 0:
			ts.Wins++
			winSum += t.RealizedPnL
		case t.RealizedPnL < 0:
			ts.Losses++
			lossSum -= t.RealizedPnL
		}
	}
	if ts.Trades > 0 {
		ts.WinRate = float64(ts.Wins) / float64(ts.Trades)
	}
	if ts.Wins > 0 {
		ts.AvgWin = winSum / float64(ts.Wins)
	}
	if ts.Losses > 0 {
		ts.AvgLoss = lossSum / float64(ts.Losses)
	}
	return ts
}

// MarkToMarket records the bar close as the symbol's mark and raises the
// high water marks
func (p *Portfolio) MarkToMarket(b *kline.Bar) error {
	if b == nil {
		return common.ErrNilArguments
	}
	if b.Close <= 0 || !gctmath.IsFinite(b.Close) {
		return fmt.Errorf("%w %w: %s %v", common.ErrData, errInvalidMark, b.Symbol, b.Close)
	}
	p.marks[b.Symbol] = decimal.NewFromFloat(b.Close)
	p.updateHighWaterMark()
	return nil
}

func (p *Portfolio) updateHighWaterMark() {
	equity := p.equity()
	if equity.GreaterThan(p.hwm) {
		p.hwm = equity
	}
	p.book.UpdatePeakEquity(equity)
}

// SizeOrder converts a signal into a market order at the bar close using
// sizer. It returns nil when the signal sizes to nothing
func (p *Portfolio) SizeOrder(sig *signal.Signal, b *kline.Bar, sizer *size.Size) (*order.Order, error) {
	if sig == nil || b == nil || sizer == nil {
		return nil, common.ErrNilArguments
	}
	if b.Close <= 0 || !gctmath.IsFinite(b.Close) {
		return nil, fmt.Errorf("%w %w: %s %v", common.ErrExecution, errInvalidMark, b.Symbol, b.Close)
	}
	req := &size.Request{
		Side:          sig.Side,
		ReduceOnly:    sig.ReduceOnly,
		SizeFrac:      sig.SuggestedSizeFrac,
		CloseFraction: sig.CloseFraction,
		Equity:        p.equity(),
		Cash:          p.cash,
		Price:         decimal.NewFromFloat(b.Close),
	}
	req.Held, req.PeakQuantity, _ = p.book.Held(sig.Symbol)
	res, err := sizer.SizeOrder(req)
	if err != nil {
		return nil, err
	}
	if !res.Quantity.IsPositive() {
		log.Debugf(log.Execution, "%s %s signal %s sized to nothing", sig.Symbol, sig.Side, sig.RationaleTag)
		return nil, nil
	}
	o := &order.Order{
		ID:           p.ids.Next(sig.Symbol, b.Timestamp),
		Side:         res.Side,
		Quantity:     res.Quantity.InexactFloat64(),
		Type:         order.Market,
		RationaleTag: sig.RationaleTag,
		StopPrice:    sig.StopPrice,
		LadderStep:   sig.LadderStep,
		ReduceOnly:   res.ReduceOnly,
	}
	o.Symbol = sig.Symbol
	o.Time = b.Timestamp
	o.Reasons = sig.GetReasons()
	return o, nil
}

// ApplyFill settles a fill against cash and the position book and returns
// the PnL it realized
func (p *Portfolio) ApplyFill(f *fill.Fill) (float64, error) {
	if f == nil {
		return 0, common.ErrNilArguments
	}
	realized, err := p.book.Apply(f)
	if err != nil {
		return 0, err
	}
	p.cash = p.cash.Add(f.CashDelta())
	p.totalFees = p.totalFees.Add(decimal.NewFromFloat(f.FeeQuote))
	p.fills = append(p.fills, *f)
	if _, ok := p.marks[f.Symbol]; !ok {
		p.marks[f.Symbol] = decimal.NewFromFloat(f.Price)
	}
	p.updateHighWaterMark()
	return realized.InexactFloat64(), nil
}

// Snapshots values every open position at its mark
func (p *Portfolio) Snapshots() []PositionSnapshot {
	positions := p.book.Positions()
	resp := make([]PositionSnapshot, 0, len(positions))
	for i := range positions {
		pos := &positions[i]
		mark := pos.AvgEntryPrice
		if m, ok := p.marks[pos.Symbol]; ok {
			mark = m.InexactFloat64()
		}
		resp = append(resp, PositionSnapshot{
			Symbol:             pos.Symbol,
			Quantity:           pos.Quantity,
			AvgEntryPrice:      pos.AvgEntryPrice,
			Mark:               mark,
			UnrealizedPnL:      (mark - pos.AvgEntryPrice) * pos.Quantity,
			RealizedPnL:        pos.RealizedPnL,
			StopPrice:          pos.StopPrice,
			TakeProfitStepsHit: pos.TakeProfitStepsHit,
			OpenedAt:           pos.OpenedAt,
		})
	}
	return resp
}

// SetCash replaces the quote balance, used when a live run syncs with the
// chain balance before trading
func (p *Portfolio) SetCash(cash float64) error {
	if !gctmath.IsFinite(cash) {
		return fmt.Errorf("%w %w: %v", common.ErrExecution, errInvalidStartingCash, cash)
	}
	p.cash = decimal.NewFromFloat(cash)
	if p.book.OpenCount() == 0 {
		p.startingCash = p.cash
		p.hwm = p.cash
	}
	return nil
}

// Reset returns the portfolio to its starting cash
func (p *Portfolio) Reset() {
	p.cash = p.startingCash
	p.hwm = p.startingCash
	p.totalFees = decimal.Zero
	p.book.Reset()
	p.marks = make(map[string]decimal.Decimal)
	p.fills = nil
	p.ids.Reset()
}
