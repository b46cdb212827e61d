package statistics

import (
	"math"
	"strings"
	"testing"
	"time"

	"github.com/solquant/harness/backtester/common"
	"github.com/solquant/harness/backtester/eventhandlers/portfolio"
	"github.com/solquant/harness/backtester/eventtypes/event"
	"github.com/solquant/harness/backtester/eventtypes/fill"
	"github.com/solquant/harness/backtester/eventtypes/kline"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSymbol = "SOL/USDC"

var start = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func bar(i int, c float64) *kline.Bar {
	return &kline.Bar{Symbol: testSymbol, Timestamp: start.Add(time.Duration(i) * time.Hour), Open: c, High: c, Low: c, Close: c}
}

func TestFlatRun(t *testing.T) {
	t.Parallel()
	pf, err := portfolio.New(10000)
	require.NoError(t, err)
	s := New(testSymbol, "momentum", kline.OneHour, 10000)
	for i := 0; i < 100; i++ {
		b := bar(i, 100)
		require.NoError(t, pf.MarkToMarket(b))
		require.NoError(t, s.Update(pf, b))
	}
	r, err := s.CalculateAllResults(pf)
	require.NoError(t, err)
	assert.Zero(t, r.TotalTrades)
	assert.Zero(t, r.Sharpe)
	assert.Zero(t, r.MaxDrawdown)
	assert.Equal(t, 100, r.Bars)
	assert.Equal(t, start, r.StartTime)
	assert.Equal(t, "RESULT symbol=SOL/USDC strategy=momentum trades=0 PnL=0.00 Sharpe=0.00 MaxDD=0.00% EndBalance=10000.00", r.ResultLine())
}

func TestRoundTripReport(t *testing.T) {
	t.Parallel()
	pf, err := portfolio.New(1000)
	require.NoError(t, err)
	s := New(testSymbol, "trend", kline.OneHour, 1000)

	b := bar(0, 100)
	require.NoError(t, pf.MarkToMarket(b))
	buy := &fill.Fill{Base: event.Base{Symbol: testSymbol, Time: b.Timestamp}, Side: common.Buy, Quantity: 2, Price: 100, FeeQuote: 1}
	_, err = pf.ApplyFill(buy)
	require.NoError(t, err)
	s.AddFill(buy)
	require.NoError(t, s.Update(pf, b))

	b = bar(1, 110)
	require.NoError(t, pf.MarkToMarket(b))
	require.NoError(t, s.Update(pf, b))

	b = bar(2, 90)
	require.NoError(t, pf.MarkToMarket(b))
	require.NoError(t, s.Update(pf, b))
	sell := &fill.Fill{Base: event.Base{Symbol: testSymbol, Time: b.Timestamp}, Side: common.Sell, Quantity: 2, Price: 90, FeeQuote: 1}
	_, err = pf.ApplyFill(sell)
	require.NoError(t, err)
	s.AddFill(sell)
	s.AddRejection("confidence_gate")
	s.AddRejection("confidence_gate")
	s.AddDataError()
	s.AddPreempted(1)

	r, err := s.CalculateAllResults(pf)
	require.NoError(t, err)
	assert.Equal(t, 2, r.TotalTrades)
	assert.Equal(t, 1, r.BuyFills)
	assert.Equal(t, 1, r.SellFills)
	assert.Equal(t, "-20", r.RealizedPnL.String(), "realized pnl is gross of fees")
	assert.Equal(t, "2", r.TotalFees.String())
	assert.Equal(t, "978", r.EndingBalance.String())
	assert.Equal(t, 2, r.RiskRejections["confidence_gate"])
	assert.Equal(t, 1, r.DataErrors)
	assert.Equal(t, 1, r.PreemptedSignals)
	assert.Equal(t, 1, r.ClosedTrades.Losses)
	// equity 999 -> 1019 -> 978
	assert.InDelta(t, (1019.0-978.0)/1019.0, r.MaxDrawdown, 1e-12)
	assert.False(t, math.IsNaN(r.Sharpe))
	assert.Less(t, r.Sharpe, 0.0)
	assert.True(t, strings.HasPrefix(r.ResultLine(), "RESULT symbol=SOL/USDC strategy=trend trades=2 PnL=-20.00"))
	assert.True(t, strings.HasSuffix(r.ResultLine(), "MaxDD=4.02% EndBalance=978.00"))

	out, err := r.Serialise()
	require.NoError(t, err)
	assert.Contains(t, out, `"total_trades": 2`)
	r.PrintTotalResults()
}

func TestUpdate(t *testing.T) {
	t.Parallel()
	s := New("", "x", kline.OneMin, 100)
	assert.ErrorIs(t, s.Update(nil, bar(0, 1)), common.ErrNilArguments)
	pf, err := portfolio.New(100)
	require.NoError(t, err)
	require.NoError(t, s.Update(pf, bar(0, 1)))
	require.NoError(t, s.Update(pf, bar(0, 1)))
	assert.Len(t, s.equity, 1, "same timestamp replaces the observation")
	assert.Equal(t, testSymbol, s.symbol)
	assert.Equal(t, []float64{0}, s.Returns(), "the first return is against the starting balance")

	s.AddCancelled(2)
	s.Reset()
	assert.Empty(t, s.equity)
	assert.Zero(t, s.cancelledOrders)
	assert.Zero(t, s.DataErrors())

	_, err = s.CalculateAllResults(nil)
	assert.ErrorIs(t, err, common.ErrNilArguments)
	assert.Nil(t, s.Returns())
	r, err := s.CalculateAllResults(pf)
	require.NoError(t, err)
	assert.Zero(t, r.Bars)
}

func TestFirstBarLossCountsTowardsDrawdown(t *testing.T) {
	t.Parallel()
	pf, err := portfolio.New(1000)
	require.NoError(t, err)
	s := New(testSymbol, "x", kline.OneHour, 1000)
	buy := &fill.Fill{Base: event.Base{Symbol: testSymbol, Time: start}, Side: common.Buy, Quantity: 5, Price: 100}
	_, err = pf.ApplyFill(buy)
	require.NoError(t, err)
	for i, c := range []float64{90, 95} {
		b := bar(i, c)
		require.NoError(t, pf.MarkToMarket(b))
		require.NoError(t, s.Update(pf, b))
	}
	r, err := s.CalculateAllResults(pf)
	require.NoError(t, err)
	// equity 1000 -> 950 -> 975
	assert.InDelta(t, 0.05, r.MaxDrawdown, 1e-12)
	require.Len(t, s.Returns(), 2)
	assert.InDelta(t, -0.05, s.Returns()[0], 1e-12)
	assert.Equal(t, 2, r.Bars)

	s.SetStartingBalance(900)
	r, err = s.CalculateAllResults(pf)
	require.NoError(t, err)
	assert.Zero(t, r.MaxDrawdown, "equity never fell below a starting balance of 900")
	assert.Equal(t, "900", r.StartingBalance.String())
}
