package statistics

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/shopspring/decimal"
	"github.com/solquant/harness/backtester/common"
	"github.com/solquant/harness/backtester/eventhandlers/portfolio"
	"github.com/solquant/harness/backtester/eventtypes/fill"
	"github.com/solquant/harness/backtester/eventtypes/kline"
	gctmath "github.com/solquant/harness/common/math"
	"github.com/solquant/harness/log"
)

// New returns a Statistic for one symbol and strategy
func New(symbol, strategyName string, interval kline.Interval, startingBalance float64) *Statistic {
	return &Statistic{
		symbol:          symbol,
		strategyName:    strategyName,
		interval:        interval,
		startingBalance: decimal.NewFromFloat(startingBalance),
		riskRejections:  make(map[string]int),
	}
}

// Update records the portfolio equity at the bar's time
func (s *Statistic) Update(view portfolio.View, b *kline.Bar) error {
	if view == nil || b == nil {
		return common.ErrNilArguments
	}
	equity := view.Equity()
	if !gctmath.IsFinite(equity) {
		return fmt.Errorf("%w %w at %v", common.ErrStrategy, errNonFinite, b.Timestamp)
	}
	if s.symbol == "" {
		s.symbol = b.Symbol
	}
	if n := len(s.equity); n > 0 && s.equity[n-1].Time.Equal(b.Timestamp) {
		s.equity[n-1].Value = equity
		return nil
	}
	s.equity = append(s.equity, ValueAtTime{Time: b.Timestamp, Value: equity})
	return nil
}

// AddFill counts a fill
func (s *Statistic) AddFill(f *fill.Fill) {
	if f == nil {
		return
	}
	s.totalFills++
	if f.Side == common.Buy {
		s.buyFills++
	} else {
		s.sellFills++
	}
	s.totalFees = s.totalFees.Add(decimal.NewFromFloat(f.FeeQuote))
}

// AddDataError counts a skipped bar
func (s *Statistic) AddDataError() {
	s.dataErrors++
}

// DataErrors returns the number of skipped bars
func (s *Statistic) DataErrors() int {
	return s.dataErrors
}

// TotalTrades returns the number of fills
func (s *Statistic) TotalTrades() int {
	return s.totalFills
}

// Bars returns the number of equity observations
func (s *Statistic) Bars() int {
	return len(s.equity)
}

// RiskRejections returns a copy of the rejection counts by rule
func (s *Statistic) RiskRejections() map[string]int {
	resp := make(map[string]int, len(s.riskRejections))
	for k, v := range s.riskRejections {
		resp[k] = v
	}
	return resp
}

// AddRejection counts a signal dropped by rule
func (s *Statistic) AddRejection(rule string) {
	s.riskRejections[rule]++
}

// AddPreempted counts strategy signals dropped after a protective close
func (s *Statistic) AddPreempted(n int) {
	s.preemptedSignals += n
}

// AddCancelled counts queued orders cancelled at stream end
func (s *Statistic) AddCancelled(n int) {
	s.cancelledOrders += n
}

// SetStartingBalance replaces the balance the equity curve starts from
func (s *Statistic) SetStartingBalance(v float64) {
	s.startingBalance = decimal.NewFromFloat(v)
}

// series is the equity curve led by the starting balance
func (s *Statistic) series() []float64 {
	resp := make([]float64, 0, len(s.equity)+1)
	resp = append(resp, s.startingBalance.InexactFloat64())
	for i := range s.equity {
		resp = append(resp, s.equity[i].Value)
	}
	return resp
}

// Returns is the per bar fractional change of equity, the first measured
// against the starting balance
func (s *Statistic) Returns() []float64 {
	if len(s.equity) == 0 {
		return nil
	}
	values := s.series()
	resp := make([]float64, 0, len(values)-1)
	for i := 1; i < len(values); i++ {
		resp = append(resp, gctmath.CalculatePercentageGainOrLoss(values[i], values[i-1]))
	}
	return resp
}

// CalculateAllResults builds the report. The final equity replaces the last
// observation so liquidation costs are reflected
func (s *Statistic) CalculateAllResults(view portfolio.View) (*Report, error) {
	if view == nil {
		return nil, common.ErrNilArguments
	}
	final := view.Equity()
	if n := len(s.equity); n > 0 {
		s.equity[n-1].Value = final
	}
	returns := s.Returns()
	r := &Report{
		Symbol:           s.symbol,
		Strategy:         s.strategyName,
		Interval:         s.interval.String(),
		Bars:             len(s.equity),
		TotalTrades:      s.totalFills,
		BuyFills:         s.buyFills,
		SellFills:        s.sellFills,
		StartingBalance:  s.startingBalance,
		RealizedPnL:      decimal.NewFromFloat(view.RealizedPnL()),
		TotalFees:        s.totalFees,
		EndingBalance:    decimal.NewFromFloat(final),
		Sharpe:           gctmath.CalculateSharpeRatio(returns, 0, s.interval.BarsPerYear()),
		Sortino:          gctmath.CalculateSortinoRatio(returns, 0, s.interval.BarsPerYear()),
		MaxDrawdown:      gctmath.MaxDrawdown(s.series()),
		ClosedTrades:     view.TradeStats(),
		DataErrors:       s.dataErrors,
		RiskRejections:   s.RiskRejections(),
		PreemptedSignals: s.preemptedSignals,
		CancelledOrders:  s.cancelledOrders,
	}
	if len(s.equity) > 0 {
		r.StartTime = s.equity[0].Time
		r.EndTime = s.equity[len(s.equity)-1].Time
	} else {
		log.Warnf(log.BackTester, "%s %v", s.symbol, errReceivedNoData)
	}
	return r, nil
}

// Reset clears all accumulated data, keeping the run's identity
func (s *Statistic) Reset() {
	s.equity = nil
	s.totalFills, s.buyFills, s.sellFills = 0, 0, 0
	s.totalFees = decimal.Zero
	s.dataErrors = 0
	s.riskRejections = make(map[string]int)
	s.preemptedSignals = 0
	s.cancelledOrders = 0
}

// ResultLine renders the one line summary printed by the historical command
func (r *Report) ResultLine() string {
	return fmt.Sprintf("RESULT symbol=%s strategy=%s trades=%d PnL=%s Sharpe=%s MaxDD=%s%% EndBalance=%s",
		r.Symbol,
		r.Strategy,
		r.TotalTrades,
		r.RealizedPnL.StringFixed(2),
		decimal.NewFromFloat(r.Sharpe).StringFixed(2),
		decimal.NewFromFloat(r.MaxDrawdown*100).StringFixed(2),
		r.EndingBalance.StringFixed(2))
}

// Serialise outputs the report in json
func (r *Report) Serialise() (string, error) {
	resp, err := json.MarshalIndent(r, "", " ")
	if err != nil {
		return "", err
	}
	return string(resp), nil
}

// PrintTotalResults logs the report
func (r *Report) PrintTotalResults() {
	log.Infof(log.BackTester, "------------------Total Results------------------------------")
	log.Infof(log.BackTester, "Symbol: %s Strategy: %s Interval: %s", r.Symbol, r.Strategy, r.Interval)
	log.Infof(log.BackTester, "Period: %v to %v (%d bars)", r.StartTime, r.EndTime, r.Bars)
	log.Infof(log.BackTester, "Fills: %d (buy %d, sell %d)", r.TotalTrades, r.BuyFills, r.SellFills)
	log.Infof(log.BackTester, "Closed trades: %d won %d lost %d", r.ClosedTrades.Trades, r.ClosedTrades.Wins, r.ClosedTrades.Losses)
	log.Infof(log.BackTester, "Realized PnL: %s Fees: %s", r.RealizedPnL.StringFixed(4), r.TotalFees.StringFixed(4))
	log.Infof(log.BackTester, "Starting balance: %s Ending balance: %s", r.StartingBalance.StringFixed(2), r.EndingBalance.StringFixed(2))
	log.Infof(log.BackTester, "Sharpe: %.4f Sortino: %.4f Max drawdown: %.4f%%", r.Sharpe, r.Sortino, r.MaxDrawdown*100)
	if r.DataErrors > 0 {
		log.Warnf(log.BackTester, "Skipped bars: %d", r.DataErrors)
	}
	rules := make([]string, 0, len(r.RiskRejections))
	for k := range r.RiskRejections {
		rules = append(rules, k)
	}
	sort.Strings(rules)
	for _, k := range rules {
		log.Infof(log.BackTester, "Rejected by %s: %d", k, r.RiskRejections[k])
	}
	if r.PreemptedSignals > 0 || r.CancelledOrders > 0 {
		log.Infof(log.BackTester, "Preempted signals: %d Cancelled orders: %d", r.PreemptedSignals, r.CancelledOrders)
	}
}
