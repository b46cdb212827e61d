package risk

import (
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/solquant/harness/backtester/common"
	"github.com/solquant/harness/backtester/eventhandlers/portfolio"
	"github.com/solquant/harness/backtester/eventhandlers/portfolio/holdings"
	"github.com/solquant/harness/backtester/eventtypes/kline"
	"github.com/solquant/harness/backtester/eventtypes/signal"
	gctmath "github.com/solquant/harness/common/math"
)

func validPct(pct float64) bool {
	return gctmath.IsFinite(pct) && pct > 0 && pct <= 1
}

// NewStopLossRule returns a stop loss at pct of entry
func NewStopLossRule(pct float64) (*StopLossRule, error) {
	if !validPct(pct) {
		return nil, fmt.Errorf("%w %s %w: %v", common.ErrConfiguration, StopLossName, errInvalidPercentage, pct)
	}
	return &StopLossRule{Pct: pct}, nil
}

// Name returns the rule name
func (r *StopLossRule) Name() string {
	return StopLossName
}

// Evaluate measures a long's loss at the bar low and a short's at the bar
// high. A hit replaces any signal with a full close
func (r *StopLossRule) Evaluate(sig *signal.Signal, view portfolio.View, b *kline.Bar) Verdict {
	if view == nil || b == nil {
		return Pass(sig)
	}
	pos, ok := view.Position(b.Symbol)
	if !ok || pos.AvgEntryPrice <= 0 {
		return Pass(sig)
	}
	var loss float64
	var throughStop bool
	if pos.Quantity > 0 {
		loss = (pos.AvgEntryPrice - b.Low) / pos.AvgEntryPrice
		throughStop = pos.StopPrice > 0 && b.Low <= pos.StopPrice
	} else {
		loss = (b.High - pos.AvgEntryPrice) / pos.AvgEntryPrice
		throughStop = pos.StopPrice > 0 && b.High >= pos.StopPrice
	}
	if !throughStop && (r.Pct <= 0 || loss < r.Pct) {
		return Pass(sig)
	}
	c := signal.NewClose(b.Symbol, b.Timestamp, common.TagStopLoss)
	if throughStop {
		c.AppendReasonf("bar traded through stop %.6f", pos.StopPrice)
	} else {
		c.AppendReasonf("loss %.2f%% reached stop %.2f%%", loss*100, r.Pct*100)
	}
	if sig != nil && sig.RationaleTag != common.TagStopLoss {
		c.AppendReasonf("preempted %s %s", sig.Side, sig.RationaleTag)
	}
	return Mutate(c)
}

// NewTakeProfitRule returns a single target closing the whole position
func NewTakeProfitRule(pct float64) (*TakeProfitRule, error) {
	return NewLadderedTakeProfitRule([]Target{{TriggerPct: pct, CloseFraction: 1}})
}

// NewLadderedTakeProfitRule returns a take profit ladder. Triggers must be
// strictly ascending
func NewLadderedTakeProfitRule(targets []Target) (*TakeProfitRule, error) {
	if len(targets) == 0 {
		return nil, fmt.Errorf("%w %s %w", common.ErrConfiguration, TakeProfitName, errInvalidTargets)
	}
	for i := range targets {
		t := targets[i]
		if !gctmath.IsFinite(t.TriggerPct) || t.TriggerPct <= 0 || !validPct(t.CloseFraction) ||
			(i > 0 && t.TriggerPct <= targets[i-1].TriggerPct) {
			return nil, fmt.Errorf("%w %s %w: %+v", common.ErrConfiguration, TakeProfitName, errInvalidTargets, targets)
		}
	}
	resp := make([]Target, len(targets))
	copy(resp, targets)
	return &TakeProfitRule{Targets: resp}, nil
}

// Name returns the rule name
func (r *TakeProfitRule) Name() string {
	return TakeProfitName
}

// Evaluate fires every unfired step whose trigger the close-based gain has
// reached. Steps fired so far live on the position. The last step closes
// whatever is left. A stop loss close is never overridden and a strategy
// close at least as large as the ladder's keeps its own tag
func (r *TakeProfitRule) Evaluate(sig *signal.Signal, view portfolio.View, b *kline.Bar) Verdict {
	if view == nil || b == nil || len(r.Targets) == 0 {
		return Pass(sig)
	}
	if sig != nil && sig.RationaleTag == common.TagStopLoss {
		return Pass(sig)
	}
	pos, ok := view.Position(b.Symbol)
	if !ok || pos.AvgEntryPrice <= 0 {
		return Pass(sig)
	}
	gain := (b.Close - pos.AvgEntryPrice) / pos.AvgEntryPrice
	if pos.Quantity < 0 {
		gain = -gain
	}
	step := pos.TakeProfitStepsHit
	var fraction float64
	for step < len(r.Targets) && gain >= r.Targets[step].TriggerPct {
		fraction += r.Targets[step].CloseFraction
		step++
	}
	if step == pos.TakeProfitStepsHit {
		return Pass(sig)
	}
	share := 1.0
	if step < len(r.Targets) && fraction < 1 {
		share = fraction
	}
	if closeShare(sig, &pos) >= share {
		c := sig.Clone()
		c.LadderStep = step
		c.AppendReasonf("covers take profit step %d of %d at gain %.2f%%", step, len(r.Targets), gain*100)
		return Mutate(c)
	}
	c := signal.NewClose(b.Symbol, b.Timestamp, common.TagTakeProfit)
	c.LadderStep = step
	if share < 1 {
		c.CloseFraction = share
	}
	c.AppendReasonf("gain %.2f%% reached take profit step %d of %d", gain*100, step, len(r.Targets))
	return Mutate(c)
}

// closeShare is the share of pos's peak quantity a closing signal takes.
// Openings, holds and reduce only signals on the position's side take none
func closeShare(sig *signal.Signal, pos *holdings.Position) float64 {
	if !sig.IsClosing() {
		return 0
	}
	if sig.Side != common.Flat && sig.Side != common.SideFromQuantity(pos.Quantity).Opposite() {
		return 0
	}
	if sig.CloseFraction > 0 && sig.CloseFraction < 1 {
		return sig.CloseFraction
	}
	return 1
}

// NewPositionCapRule caps a symbol's notional at maxPct of equity
func NewPositionCapRule(maxPct float64) (*PositionCapRule, error) {
	if !validPct(maxPct) {
		return nil, fmt.Errorf("%w %s %w: %v", common.ErrConfiguration, PositionCapName, errInvalidPercentage, maxPct)
	}
	return &PositionCapRule{MaxPct: maxPct}, nil
}

// Name returns the rule name
func (r *PositionCapRule) Name() string {
	return PositionCapName
}

// Evaluate shrinks the suggested size so that existing plus new notional
// stays within the cap
func (r *PositionCapRule) Evaluate(sig *signal.Signal, view portfolio.View, b *kline.Bar) Verdict {
	if !sig.IsOpening() || view == nil {
		return Pass(sig)
	}
	equity := view.Equity()
	if !gctmath.IsFinite(equity) || equity <= 0 {
		return Reject("no equity")
	}
	existing := decimal.Zero
	if pos, ok := view.Position(sig.Symbol); ok && common.SideFromQuantity(pos.Quantity) == sig.Side {
		mark, ok := view.Mark(sig.Symbol)
		if !ok {
			mark = pos.AvgEntryPrice
		}
		if gctmath.IsFinite(pos.Quantity, mark) {
			existing = decimal.NewFromFloat(pos.Quantity).Abs().Mul(decimal.NewFromFloat(mark))
		}
	}
	room := decimal.NewFromFloat(r.MaxPct).Sub(existing.Div(decimal.NewFromFloat(equity)))
	if !room.IsPositive() {
		return Reject(fmt.Sprintf("%s notional %s already at %.2f%% cap", sig.Symbol, existing.StringFixed(2), r.MaxPct*100))
	}
	if gctmath.IsFinite(sig.SuggestedSizeFrac) && decimal.NewFromFloat(sig.SuggestedSizeFrac).LessThanOrEqual(room) {
		return Pass(sig)
	}
	c := sig.Clone()
	c.SuggestedSizeFrac = room.InexactFloat64()
	c.AppendReasonf("size capped to %s of equity", room.Round(4))
	return Mutate(c)
}

// NewMaxConcurrentPositionsRule allows at most n open positions
func NewMaxConcurrentPositionsRule(n int) (*MaxConcurrentPositionsRule, error) {
	if n <= 0 {
		return nil, fmt.Errorf("%w %s %w: %v", common.ErrConfiguration, MaxConcurrentName, errInvalidCount, n)
	}
	return &MaxConcurrentPositionsRule{Max: n}, nil
}

// Name returns the rule name
func (r *MaxConcurrentPositionsRule) Name() string {
	return MaxConcurrentName
}

// Evaluate rejects openings in a symbol without a position once the limit
// is reached. Adding to an existing position is allowed
func (r *MaxConcurrentPositionsRule) Evaluate(sig *signal.Signal, view portfolio.View, _ *kline.Bar) Verdict {
	if !sig.IsOpening() || view == nil {
		return Pass(sig)
	}
	if _, ok := view.Position(sig.Symbol); ok {
		return Pass(sig)
	}
	if open := view.OpenPositionCount(); open >= r.Max {
		return Reject(fmt.Sprintf("%d positions open, limit %d", open, r.Max))
	}
	return Pass(sig)
}

// NewConfidenceGateRule rejects openings below minConfidence
func NewConfidenceGateRule(minConfidence float64) (*ConfidenceGateRule, error) {
	if !gctmath.IsFinite(minConfidence) || minConfidence < 0 || minConfidence > 1 {
		return nil, fmt.Errorf("%w %s %w: %v", common.ErrConfiguration, ConfidenceGateName, errInvalidConfidence, minConfidence)
	}
	return &ConfidenceGateRule{Min: minConfidence}, nil
}

// Name returns the rule name
func (r *ConfidenceGateRule) Name() string {
	return ConfidenceGateName
}

// Evaluate rejects low confidence openings. Closes always pass
func (r *ConfidenceGateRule) Evaluate(sig *signal.Signal, _ portfolio.View, _ *kline.Bar) Verdict {
	if !sig.IsOpening() {
		return Pass(sig)
	}
	if sig.Confidence < r.Min {
		return Reject(fmt.Sprintf("confidence %.4f below %.4f", sig.Confidence, r.Min))
	}
	return Pass(sig)
}

// NewKellySizingRule returns fractional Kelly sizing capped at maxPct that
// waits for minTrades closed trades
func NewKellySizingRule(multiplier, maxPct float64, minTrades int) (*KellySizingRule, error) {
	if !gctmath.IsFinite(multiplier) || multiplier <= 0 {
		return nil, fmt.Errorf("%w %s %w: %v", common.ErrConfiguration, KellySizingName, errInvalidMultiplier, multiplier)
	}
	if !validPct(maxPct) {
		return nil, fmt.Errorf("%w %s %w: %v", common.ErrConfiguration, KellySizingName, errInvalidPercentage, maxPct)
	}
	if minTrades < 0 {
		return nil, fmt.Errorf("%w %s %w: %v", common.ErrConfiguration, KellySizingName, errInvalidCount, minTrades)
	}
	return &KellySizingRule{Multiplier: multiplier, MaxPct: maxPct, MinTrades: minTrades}, nil
}

// Name returns the rule name
func (r *KellySizingRule) Name() string {
	return KellySizingName
}

// Fraction returns the clamped Kelly fraction for the given statistics
func (r *KellySizingRule) Fraction(ts portfolio.TradeStats) float64 {
	if ts.Wins == 0 {
		return 0
	}
	var f float64
	if ts.AvgLoss == 0 {
		// no losing trades: the ratio is unbounded and f* tends to p
		f = r.Multiplier * ts.WinRate
	} else {
		b := ts.AvgWin / ts.AvgLoss
		f = r.Multiplier * (ts.WinRate*(b+1) - 1) / b
	}
	return gctmath.Clamp(f, 0, r.MaxPct)
}

// Evaluate replaces the suggested size once enough trades have closed
func (r *KellySizingRule) Evaluate(sig *signal.Signal, view portfolio.View, _ *kline.Bar) Verdict {
	if !sig.IsOpening() || view == nil {
		return Pass(sig)
	}
	ts := view.TradeStats()
	if ts.Trades < r.MinTrades {
		return Pass(sig)
	}
	f := r.Fraction(ts)
	if f <= 0 {
		return Reject(fmt.Sprintf("kelly fraction is zero after %d trades, win rate %.2f", ts.Trades, ts.WinRate))
	}
	c := sig.Clone()
	c.SuggestedSizeFrac = f
	c.AppendReasonf("kelly sized to %.4f of equity", f)
	return Mutate(c)
}
