package engine

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/solquant/harness/backtester/chain"
	"github.com/solquant/harness/backtester/common"
	"github.com/solquant/harness/backtester/data"
	"github.com/solquant/harness/backtester/data/live"
	"github.com/solquant/harness/backtester/eventhandlers/exchange"
	"github.com/solquant/harness/backtester/eventhandlers/portfolio/risk"
	"github.com/solquant/harness/backtester/eventhandlers/strategies/momentum"
	"github.com/solquant/harness/backtester/eventtypes/event"
	"github.com/solquant/harness/backtester/eventtypes/kline"
	"github.com/solquant/harness/backtester/eventtypes/signal"
	"github.com/solquant/harness/backtester/ledger"
	"github.com/solquant/harness/backtester/sidecar"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSymbol = "SOL/USDC"

var start = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

var errScripted = errors.New("scripted failure")

// scripted emits a fixed plan of actions keyed by bar index
type scripted struct {
	plan map[int]action
	n    int
}

type action struct {
	side  common.Side
	frac  float64
	conf  float64
	close bool
	fail  bool
}

func buy(frac float64) action { return action{side: common.Buy, frac: frac} }

var exit = action{close: true}

func (s *scripted) Name() string                           { return "scripted" }
func (s *scripted) Description() string                    { return "replays a fixed plan" }
func (s *scripted) Symbol() string                         { return testSymbol }
func (s *scripted) SetCustomSettings(map[string]any) error { return nil }
func (s *scripted) SetDefaults()                           {}
func (s *scripted) Reset()                                 { s.n = 0 }

func (s *scripted) OnBar(b kline.Bar) (*signal.Signal, error) {
	i := s.n
	s.n++
	a, ok := s.plan[i]
	switch {
	case !ok:
		return nil, nil
	case a.fail:
		return nil, errScripted
	case a.close:
		return signal.NewClose(b.Symbol, b.Timestamp, "scripted_exit"), nil
	}
	conf := a.conf
	if conf == 0 {
		conf = 1
	}
	return &signal.Signal{
		Base:              event.Base{Symbol: b.Symbol, Time: b.Timestamp},
		Side:              a.side,
		Confidence:        conf,
		SuggestedSizeFrac: a.frac,
		RationaleTag:      "scripted_entry",
	}, nil
}

// makeBars opens each bar at the previous close
func makeBars(closes []float64) []kline.Bar {
	bars := make([]kline.Bar, len(closes))
	prev := closes[0]
	for i, c := range closes {
		bars[i] = kline.Bar{
			Symbol:    testSymbol,
			Timestamp: start.Add(time.Duration(i) * time.Hour),
			Open:      prev,
			High:      math.Max(prev, c),
			Low:       math.Min(prev, c),
			Close:     c,
			Volume:    1000,
		}
		prev = c
	}
	return bars
}

func linear(from, to float64, n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = from + (to-from)*float64(i)/float64(n-1)
	}
	return out
}

// vShape warms up on a rising zigzag, falls to 50 and recovers to 100
func vShape() []float64 {
	closes := []float64{100}
	for i := 1; i < 24; i++ {
		step := -1.0
		if i%2 == 1 {
			step = 2
		}
		closes = append(closes, closes[i-1]+step)
	}
	top := closes[len(closes)-1]
	for i := 1; i <= 50; i++ {
		closes = append(closes, top-(top-50)*float64(i)/50)
	}
	for i := 1; i <= 50; i++ {
		closes = append(closes, 50+50*float64(i)/50)
	}
	return closes
}

func defaultSettings() *Settings {
	return &Settings{
		Symbol:      testSymbol,
		Interval:    kline.OneHour,
		SlippageBps: DefaultSlippageBps,
		FeeBps:      DefaultFeeBps,
	}
}

func frictionless() *Settings {
	return &Settings{Symbol: testSymbol, Interval: kline.OneHour}
}

func runHistorical(t *testing.T, s *Settings, pipeline *risk.Pipeline, closes []float64, h ...*scripted) (*BackTest, error) {
	t.Helper()
	var bt *BackTest
	var err error
	if len(h) == 0 {
		bt, err = New(s, pipeline, momentum.New(testSymbol, kline.OneHour))
	} else {
		bt, err = New(s, pipeline, h[0])
	}
	require.NoError(t, err)
	_, err = bt.Run(context.Background(), data.NewMemory(makeBars(closes)...))
	return bt, err
}

func TestNew(t *testing.T) {
	t.Parallel()
	_, err := New(nil, nil)
	assert.ErrorIs(t, err, common.ErrNilArguments)
	_, err = New(frictionless(), nil)
	assert.ErrorIs(t, err, errNoStrategies)
	_, err = New(frictionless(), nil, nil)
	assert.ErrorIs(t, err, common.ErrConfiguration)
	_, err = New(&Settings{SlippageBps: -1}, nil, &scripted{})
	assert.Error(t, err)

	bt, err := New(&Settings{}, nil, &scripted{})
	require.NoError(t, err)
	assert.Equal(t, DefaultStartingBalance, bt.settings.StartingBalance)
	assert.Equal(t, DefaultMaxDataErrors, bt.settings.MaxDataErrors)
	assert.Equal(t, "scripted", bt.settings.StrategyName)
	assert.Equal(t, testSymbol, bt.settings.Symbol)

	_, err = NewLive(frictionless(), nil, nil, 0, &scripted{})
	assert.ErrorIs(t, err, errNoExecutor)
}

func TestFlatMarket(t *testing.T) {
	t.Parallel()
	closes := make([]float64, 100)
	for i := range closes {
		closes[i] = 100
	}
	bt, err := New(defaultSettings(), risk.DefaultBacktestPipeline(), momentum.New(testSymbol, kline.OneHour))
	require.NoError(t, err)
	r, err := bt.Run(context.Background(), data.NewMemory(makeBars(closes)...))
	require.NoError(t, err)
	assert.Equal(t, "RESULT symbol=SOL/USDC strategy=momentum trades=0 PnL=0.00 Sharpe=0.00 MaxDD=0.00% EndBalance=10000.00", r.ResultLine())
	assert.Equal(t, 100, r.Bars)
}

func TestUptrendSingleRoundTrip(t *testing.T) {
	t.Parallel()
	bt, err := New(defaultSettings(), nil, momentum.New(testSymbol, kline.OneHour))
	require.NoError(t, err)
	r, err := bt.Run(context.Background(), data.NewMemory(makeBars(linear(100, 150, 100))...))
	require.NoError(t, err)

	fills := bt.Fills()
	require.Len(t, fills, 2)
	assert.Equal(t, common.Buy, fills[0].Side)
	assert.Equal(t, start.Add(20*time.Hour), fills[0].Time, "first crossover once every indicator is ready")
	assert.Equal(t, common.Sell, fills[1].Side)
	assert.Equal(t, common.TagEndOfStream, fills[1].RationaleTag)
	assert.Equal(t, fills[0].Quantity, fills[1].Quantity)
	assert.Equal(t, 2, r.TotalTrades)
	assert.True(t, r.RealizedPnL.IsPositive())
	assert.Less(t, r.MaxDrawdown, 0.01)
	assert.Empty(t, bt.Portfolio().Positions())
}

func TestVShapeStopLossAndReentry(t *testing.T) {
	t.Parallel()
	stop, err := risk.NewStopLossRule(0.05)
	require.NoError(t, err)
	bt, err := New(defaultSettings(), risk.NewPipeline(stop), momentum.New(testSymbol, kline.OneHour))
	require.NoError(t, err)
	closes := vShape()
	r, err := bt.Run(context.Background(), data.NewMemory(makeBars(closes)...))
	require.NoError(t, err)

	trough := start.Add(73 * time.Hour)
	var stopped, reentered bool
	for _, f := range bt.Fills() {
		if f.RationaleTag == common.TagStopLoss {
			assert.True(t, f.Time.Before(trough), "stop fires on the down leg")
			assert.Equal(t, start.Add(30*time.Hour), f.Time)
			stopped = true
		}
		if f.Side == common.Buy && f.Time.After(trough) {
			reentered = true
		}
	}
	assert.True(t, stopped)
	assert.True(t, reentered)
	assert.Zero(t, r.RiskRejections[risk.StopLossName], "stop loss mutates, it never rejects")
}

func TestLadderedTakeProfit(t *testing.T) {
	t.Parallel()
	tp, err := risk.NewLadderedTakeProfitRule([]risk.Target{{TriggerPct: 0.05, CloseFraction: 0.5}, {TriggerPct: 0.10, CloseFraction: 0.5}})
	require.NoError(t, err)
	bt, err := runHistorical(t, frictionless(), risk.NewPipeline(tp), linear(100, 115, 16), &scripted{plan: map[int]action{0: buy(1)}})
	require.NoError(t, err)

	fills := bt.Fills()
	require.Len(t, fills, 3)
	assert.InDelta(t, 100, fills[0].Quantity, 1e-9)
	assert.Equal(t, common.TagTakeProfit, fills[1].RationaleTag)
	assert.Equal(t, 1, fills[1].LadderStep)
	assert.InDelta(t, 50, fills[1].Quantity, 1e-9)
	assert.InDelta(t, 105, fills[1].Price, 1e-9)
	assert.Equal(t, 2, fills[2].LadderStep)
	assert.InDelta(t, 50, fills[2].Quantity, 1e-9)
	assert.InDelta(t, 110, fills[2].Price, 1e-9)

	_, open := bt.Portfolio().Position(testSymbol)
	assert.False(t, open)
	partials := (fills[1].Price-fills[0].Price)*fills[1].Quantity + (fills[2].Price-fills[0].Price)*fills[2].Quantity
	assert.InDelta(t, partials, bt.Portfolio().RealizedPnL(), 1e-9)
	assert.InDelta(t, 750, bt.Portfolio().RealizedPnL(), 1e-9)
}

func TestKellyFallbackAndSizing(t *testing.T) {
	t.Parallel()
	kelly, err := risk.NewKellySizingRule(0.5, 0.25, 4)
	require.NoError(t, err)
	plan := map[int]action{
		0: buy(0.3), 1: exit,
		2: buy(0.3), 3: exit,
		4: buy(0.3), 5: exit,
		6: buy(0.3), 7: exit,
		8: buy(0.3),
	}
	closes := []float64{100, 120, 100, 120, 100, 120, 100, 90, 100}
	bt, err := runHistorical(t, frictionless(), risk.NewPipeline(kelly), closes, &scripted{plan: plan})
	require.NoError(t, err)

	fills := bt.Fills()
	require.Len(t, fills, 10)
	assert.InDelta(t, 30, fills[0].Quantity, 1e-9, "suggested fraction of equity below the trade threshold")
	assert.InDelta(t, 31.8, fills[2].Quantity, 1e-9)

	stats := bt.Portfolio().TradeStats()
	assert.Equal(t, 5, stats.Trades, "four round trips and the end of stream close")
	// the final trade closes flat so equity before the Kelly entry is unchanged
	equity := bt.Portfolio().Equity()
	assert.InDelta(t, 0.25*equity/100, fills[8].Quantity, 1e-9, "Kelly clamped to the maximum fraction")
}

func TestNonMonotonicTimestampSkipped(t *testing.T) {
	t.Parallel()
	bars := makeBars(linear(100, 110, 10))
	bad := bars[3]
	bad.Timestamp = bars[1].Timestamp
	withBad := append(append(append([]kline.Bar{}, bars[:4]...), bad), bars[4:]...)

	bt, err := New(defaultSettings(), nil, momentum.New(testSymbol, kline.OneHour))
	require.NoError(t, err)
	r, err := bt.Run(context.Background(), data.NewMemory(withBad...))
	require.NoError(t, err)
	assert.Equal(t, 1, r.DataErrors)
	assert.Equal(t, 10, r.Bars)
}

func TestMaxDataErrors(t *testing.T) {
	t.Parallel()
	bars := makeBars(linear(100, 110, 5))
	broken := bars[2]
	broken.High = broken.Low - 1
	s := defaultSettings()
	s.MaxDataErrors = 1
	bt, err := New(s, nil, &scripted{})
	require.NoError(t, err)
	_, err = bt.Run(context.Background(), data.NewMemory(bars[0], bars[1], broken, bars[1], bars[2]))
	assert.ErrorIs(t, err, common.ErrData)
	assert.ErrorIs(t, err, errTooManyDataErrors)

	s.MaxDataErrors = -1
	bt, err = New(s, nil, &scripted{})
	require.NoError(t, err)
	r, err := bt.Run(context.Background(), data.NewMemory(bars[0], bars[1], broken, bars[1], bars[1], bars[2]))
	require.NoError(t, err)
	assert.Equal(t, 3, r.DataErrors)
}

func TestStrategyErrorIsFatal(t *testing.T) {
	t.Parallel()
	_, err := runHistorical(t, frictionless(), nil, linear(100, 110, 5), &scripted{plan: map[int]action{2: {fail: true}}})
	assert.ErrorIs(t, err, common.ErrStrategy)
	assert.ErrorIs(t, err, errScripted)
}

func TestRunInterrupted(t *testing.T) {
	t.Parallel()
	bt, err := New(frictionless(), nil, &scripted{})
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = bt.Run(ctx, data.NewMemory(makeBars(linear(100, 110, 5))...))
	assert.ErrorIs(t, err, common.ErrInterrupted)
	assert.Equal(t, 130, common.ExitCode(err))

	_, err = bt.Run(context.Background(), nil)
	assert.ErrorIs(t, err, common.ErrNilArguments)
}

func TestNextBarOpen(t *testing.T) {
	t.Parallel()
	s := frictionless()
	s.Mode = exchange.NextBarOpen
	bt, err := New(s, nil, &scripted{plan: map[int]action{0: buy(0.5), 2: buy(0.5)}})
	require.NoError(t, err)
	r, err := bt.Run(context.Background(), data.NewMemory(makeBars([]float64{100, 110, 120})...))
	require.NoError(t, err)

	fills := bt.Fills()
	require.Len(t, fills, 2)
	assert.Equal(t, start.Add(time.Hour), fills[0].Time, "filled on the following bar")
	assert.InDelta(t, 100, fills[0].Price, 1e-9, "at its open")
	assert.InDelta(t, 50, fills[0].Quantity, 1e-9)
	assert.Equal(t, common.TagEndOfStream, fills[1].RationaleTag)
	assert.InDelta(t, 120, fills[1].Price, 1e-9)
	assert.Equal(t, 1, r.CancelledOrders, "the order queued on the last bar never fills")
}

func TestDeterministicReplay(t *testing.T) {
	t.Parallel()
	run := func() (*BackTest, string) {
		stop, err := risk.NewStopLossRule(0.05)
		require.NoError(t, err)
		bt, err := New(defaultSettings(), risk.NewPipeline(stop), momentum.New(testSymbol, kline.OneHour))
		require.NoError(t, err)
		r, err := bt.Run(context.Background(), data.NewMemory(makeBars(vShape())...))
		require.NoError(t, err)
		out, err := r.Serialise()
		require.NoError(t, err)
		return bt, string(out)
	}
	a, ra := run()
	b, rb := run()
	assert.Equal(t, ra, rb)
	assert.Equal(t, a.Fills(), b.Fills())
}

func TestReset(t *testing.T) {
	t.Parallel()
	bt, err := New(defaultSettings(), risk.DefaultBacktestPipeline(), momentum.New(testSymbol, kline.OneHour))
	require.NoError(t, err)
	first, err := bt.Run(context.Background(), data.NewMemory(makeBars(vShape())...))
	require.NoError(t, err)
	bt.Reset()
	assert.Empty(t, bt.Fills())
	second, err := bt.Run(context.Background(), data.NewMemory(makeBars(vShape())...))
	require.NoError(t, err)
	assert.Equal(t, first.ResultLine(), second.ResultLine())
}

func TestCostMonotonicity(t *testing.T) {
	t.Parallel()
	ending := func(slip, fee float64) float64 {
		s := frictionless()
		s.SlippageBps, s.FeeBps = slip, fee
		bt, err := New(s, nil, momentum.New(testSymbol, kline.OneHour))
		require.NoError(t, err)
		r, err := bt.Run(context.Background(), data.NewMemory(makeBars(linear(100, 150, 100))...))
		require.NoError(t, err)
		return r.EndingBalance.InexactFloat64()
	}
	base := ending(5, 10)
	assert.Greater(t, base, ending(5, 30), "higher fees never help")
	assert.Greater(t, base, ending(25, 10), "higher slippage never helps")
	assert.Greater(t, ending(0, 0), base)
}

func TestStopLossPreemptsStrategy(t *testing.T) {
	t.Parallel()
	stop, err := risk.NewStopLossRule(0.05)
	require.NoError(t, err)
	plan := map[int]action{0: buy(0.5), 1: buy(0.5)}
	bt, err := runHistorical(t, frictionless(), risk.NewPipeline(stop), []float64{100, 90, 91}, &scripted{plan: plan})
	require.NoError(t, err)

	fills := bt.Fills()
	require.Len(t, fills, 2)
	assert.Equal(t, common.TagStopLoss, fills[1].RationaleTag)
	assert.Equal(t, start.Add(time.Hour), fills[1].Time)
	assert.Equal(t, common.Sell, fills[1].Side)

	r, err := bt.Report()
	require.NoError(t, err)
	assert.Equal(t, 1, r.PreemptedSignals)
}

func TestEquityIdentity(t *testing.T) {
	t.Parallel()
	bt, err := New(defaultSettings(), risk.DefaultBacktestPipeline(), momentum.New(testSymbol, kline.OneHour))
	require.NoError(t, err)
	for _, b := range makeBars(vShape()) {
		require.NoError(t, bt.ProcessBar(context.Background(), b))
		view := bt.Portfolio()
		want := view.Cash()
		for _, pos := range view.Positions() {
			assert.NotZero(t, pos.Quantity)
			mark, ok := view.Mark(pos.Symbol)
			require.True(t, ok)
			want += pos.Quantity * mark
		}
		assert.InEpsilon(t, want, view.Equity(), 1e-9)
		snap := bt.Snapshot()
		assert.GreaterOrEqual(t, snap.Drawdown, 0.0)
		assert.LessOrEqual(t, snap.Drawdown, 1.0)
	}
	r, err := bt.Run(context.Background(), data.NewMemory())
	require.NoError(t, err)
	assert.InDelta(t, bt.Portfolio().Cash(), r.EndingBalance.InexactFloat64(), 1e-6, "flat after liquidation")
	assert.False(t, math.IsNaN(r.Sharpe))
}

func TestLedgerAndOverlay(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	bt, err := New(frictionless(), nil, &scripted{plan: map[int]action{0: buy(0.5), 2: exit}})
	require.NoError(t, err)
	bt.SetLedger(ledger.NewNDJSON(&buf))
	overlay, err := sidecar.NewOverlay(advisorFunc(func(*signal.Signal) (sidecar.Advice, error) {
		return sidecar.Advice{SizeMultiplier: 0.5, GuidanceScore: 1}, nil
	}), sidecar.Settings{})
	require.NoError(t, err)
	bt.SetOverlay(overlay)
	_, err = bt.Run(context.Background(), data.NewMemory(makeBars([]float64{100, 101, 102})...))
	require.NoError(t, err)

	fills := bt.Fills()
	require.Len(t, fills, 2)
	assert.InDelta(t, 25, fills[0].Quantity, 1e-9, "advisor halves the size")

	sc := bufio.NewScanner(&buf)
	var lines int
	for sc.Scan() {
		lines++
	}
	assert.Equal(t, 2, lines)
}

func TestLowBalanceCap(t *testing.T) {
	t.Parallel()
	bt, err := New(frictionless(), nil, &scripted{plan: map[int]action{0: buy(1)}})
	require.NoError(t, err)
	overlay, err := sidecar.NewOverlay(nil, sidecar.Settings{
		LowBalanceCapLamports:  500_000_000,
		LowBalanceThresholdSOL: 1e6,
		ReferenceSOLPriceUSD:   100,
	})
	require.NoError(t, err)
	bt.SetOverlay(overlay)
	_, err = bt.Run(context.Background(), data.NewMemory(makeBars([]float64{100, 100})...))
	require.NoError(t, err)
	fills := bt.Fills()
	require.NotEmpty(t, fills)
	assert.InDelta(t, 0.5, fills[0].Quantity, 1e-9, "half a SOL at 100 caps the notional at 50")
}

func TestOverlayRunsBeforeRiskRules(t *testing.T) {
	t.Parallel()
	gate := func(min float64) risk.Rule {
		r, err := risk.NewConfidenceGateRule(min)
		require.NoError(t, err)
		return r
	}
	capAt := func(pct float64) risk.Rule {
		r, err := risk.NewPositionCapRule(pct)
		require.NoError(t, err)
		return r
	}
	kelly, err := risk.NewKellySizingRule(0.5, 0.25, 4)
	require.NoError(t, err)
	double := func(*signal.Signal) (sidecar.Advice, error) {
		return sidecar.Advice{SizeMultiplier: 2, ConfidenceDelta: -0.2, GuidanceScore: 1}, nil
	}

	for _, tc := range []struct {
		name     string
		rules    []risk.Rule
		entry    action
		settings sidecar.Settings
		qty      float64
		rejected string
	}{
		{
			name:     "lowered confidence fails the gate",
			rules:    []risk.Rule{gate(0.9), capAt(0.1)},
			entry:    buy(0.5),
			rejected: risk.ConfidenceGateName,
		},
		{
			name:  "doubled size is capped",
			rules: []risk.Rule{gate(0.7), capAt(0.1)},
			entry: buy(0.5),
			qty:   10,
		},
		{
			name:  "kelly fallback keeps the advised size under the cap",
			rules: []risk.Rule{kelly, capAt(0.3)},
			entry: buy(0.2),
			qty:   30,
		},
		{
			name:  "advised size within the cap",
			rules: []risk.Rule{gate(0.5), capAt(0.5)},
			entry: action{side: common.Buy, frac: 0.2, conf: 0.9},
			qty:   40,
		},
		{
			name:  "low balance cap clamps what the rules pass",
			rules: []risk.Rule{capAt(0.1)},
			entry: buy(0.5),
			settings: sidecar.Settings{
				LowBalanceCapLamports:  500_000_000,
				LowBalanceThresholdSOL: 1e6,
				ReferenceSOLPriceUSD:   100,
			},
			qty: 0.5,
		},
	} {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			bt, err := New(frictionless(), risk.NewPipeline(tc.rules...), &scripted{plan: map[int]action{0: tc.entry}})
			require.NoError(t, err)
			overlay, err := sidecar.NewOverlay(advisorFunc(double), tc.settings)
			require.NoError(t, err)
			bt.SetOverlay(overlay)
			r, err := bt.Run(context.Background(), data.NewMemory(makeBars([]float64{100, 100})...))
			require.NoError(t, err)

			fills := bt.Fills()
			if tc.rejected != "" {
				assert.Empty(t, fills)
				assert.Equal(t, 1, r.RiskRejections[tc.rejected])
				return
			}
			require.NotEmpty(t, fills)
			assert.Equal(t, "scripted_entry", fills[0].RationaleTag)
			assert.InDelta(t, tc.qty, fills[0].Quantity, 1e-9)
			assert.InDelta(t, 100, fills[0].Price, 1e-9)
		})
	}
}

func TestStrategyExitCoversTakeProfitStep(t *testing.T) {
	t.Parallel()
	tp, err := risk.NewLadderedTakeProfitRule([]risk.Target{{TriggerPct: 0.05, CloseFraction: 0.5}, {TriggerPct: 0.5, CloseFraction: 0.5}})
	require.NoError(t, err)
	plan := map[int]action{0: buy(1), 3: exit}
	bt, err := runHistorical(t, frictionless(), risk.NewPipeline(tp), []float64{100, 102, 104, 106}, &scripted{plan: plan})
	require.NoError(t, err)

	fills := bt.Fills()
	require.Len(t, fills, 2)
	assert.InDelta(t, 100, fills[0].Quantity, 1e-9)
	assert.Equal(t, common.Sell, fills[1].Side)
	assert.InDelta(t, 100, fills[1].Quantity, 1e-9, "the whole position closes")
	assert.InDelta(t, 106, fills[1].Price, 1e-9)
	assert.Equal(t, "scripted_exit", fills[1].RationaleTag)
	assert.Equal(t, 1, fills[1].LadderStep)

	_, open := bt.Portfolio().Position(testSymbol)
	assert.False(t, open)
	assert.InDelta(t, 600, bt.Portfolio().RealizedPnL(), 1e-9)
	r, err := bt.Report()
	require.NoError(t, err)
	assert.Zero(t, r.PreemptedSignals)
}

type advisorFunc func(*signal.Signal) (sidecar.Advice, error)

func (f advisorFunc) Evaluate(_ context.Context, sig *signal.Signal, _ sidecar.Summary) (sidecar.Advice, error) {
	return f(sig)
}

type recordingSink struct {
	mu    sync.Mutex
	snaps []Snapshot
}

func (r *recordingSink) Publish(s Snapshot) {
	r.mu.Lock()
	r.snaps = append(r.snaps, s)
	r.mu.Unlock()
}

func (r *recordingSink) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.snaps)
}

func (r *recordingSink) last() Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.snaps[len(r.snaps)-1]
}

func newLive(t *testing.T, dry *chain.DryRun, s *Settings, h *scripted) (*BackTest, *exchange.ChainExecutor) {
	t.Helper()
	exec, err := exchange.NewChainExecutor(dry, nil, nil)
	require.NoError(t, err)
	bt, err := NewLive(s, nil, exec, 0, h)
	require.NoError(t, err)
	return bt, exec
}

func TestRunLive(t *testing.T) {
	t.Parallel()
	dry := chain.NewDryRun(5000, 0, 0)
	bt, exec := newLive(t, dry, frictionless(), &scripted{plan: map[int]action{0: buy(0.5), 2: exit}})
	sink := &recordingSink{}
	bt.AddSink(sink)
	bt.AddSink(nil)
	require.NoError(t, bt.SyncBalance(context.Background(), exec, 100))
	assert.Equal(t, 5000.0, bt.Portfolio().Cash())

	ch := make(chan kline.Bar, 3)
	for _, b := range makeBars([]float64{100, 105, 110}) {
		ch <- b
	}
	close(ch)
	require.NoError(t, bt.RunLive(context.Background(), live.NewChannel(ch)))

	fills := bt.Fills()
	require.Len(t, fills, 2)
	assert.InDelta(t, 25, fills[0].Quantity, 1e-9)
	assert.Equal(t, common.Sell, fills[1].Side)
	bal, err := dry.Balance(context.Background())
	require.NoError(t, err)
	assert.InDelta(t, bal, bt.Portfolio().Cash(), 1e-9)
	assert.InDelta(t, 5250, bal, 1e-9)

	require.Equal(t, 1, sink.count(), "published on exit")
	snap := sink.last()
	assert.True(t, snap.Live)
	assert.Equal(t, 3, snap.Bars)
	assert.Equal(t, 2, snap.Fills)
	assert.Empty(t, snap.Positions)
}

func TestRunLiveStatusTicks(t *testing.T) {
	t.Parallel()
	s := frictionless()
	s.StatusInterval = 5 * time.Millisecond
	bt, _ := newLive(t, chain.NewDryRun(10000, 0, 0), s, &scripted{})
	sink := &recordingSink{}
	bt.AddSink(sink)
	ch := make(chan kline.Bar)
	done := make(chan error, 1)
	go func() { done <- bt.RunLive(context.Background(), live.NewChannel(ch)) }()
	ch <- makeBars([]float64{100})[0]
	assert.Eventually(t, func() bool { return sink.count() >= 2 }, 5*time.Second, 5*time.Millisecond)
	close(ch)
	require.NoError(t, <-done)
}

func TestRunLiveStops(t *testing.T) {
	t.Parallel()
	t.Run("not live", func(t *testing.T) {
		t.Parallel()
		bt, err := New(frictionless(), nil, &scripted{})
		require.NoError(t, err)
		assert.ErrorIs(t, bt.RunLive(context.Background(), live.NewChannel(make(chan kline.Bar))), errNotLive)
	})
	t.Run("fatal execution", func(t *testing.T) {
		t.Parallel()
		bt, _ := newLive(t, chain.NewDryRun(10, 0, 0), frictionless(), &scripted{plan: map[int]action{0: buy(1)}})
		ch := make(chan kline.Bar, 1)
		ch <- makeBars([]float64{100})[0]
		err := bt.RunLive(context.Background(), live.NewChannel(ch))
		assert.ErrorIs(t, err, common.ErrExecutionFatal)
		assert.Equal(t, 2, common.ExitCode(err))
	})
	t.Run("interrupted", func(t *testing.T) {
		t.Parallel()
		bt, _ := newLive(t, chain.NewDryRun(10000, 0, 0), frictionless(), &scripted{})
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		err := bt.RunLive(ctx, live.NewChannel(make(chan kline.Bar)))
		assert.ErrorIs(t, err, common.ErrInterrupted)
	})
	t.Run("data timeout", func(t *testing.T) {
		t.Parallel()
		s := frictionless()
		s.LiveDataTimeout = 10 * time.Millisecond
		bt, _ := newLive(t, chain.NewDryRun(10000, 0, 0), s, &scripted{})
		err := bt.RunLive(context.Background(), live.NewChannel(make(chan kline.Bar)))
		assert.ErrorIs(t, err, ErrLiveDataTimeout)
	})
	t.Run("nil source", func(t *testing.T) {
		t.Parallel()
		bt, _ := newLive(t, chain.NewDryRun(10000, 0, 0), frictionless(), &scripted{})
		assert.ErrorIs(t, bt.RunLive(context.Background(), nil), common.ErrNilArguments)
	})
}

func TestSyncBalance(t *testing.T) {
	t.Parallel()
	bt, exec := newLive(t, chain.NewDryRun(50, 0, 0), frictionless(), &scripted{})
	err := bt.SyncBalance(context.Background(), exec, 100)
	assert.ErrorIs(t, err, common.ErrConfiguration)
	assert.ErrorIs(t, err, errBelowMinBalance)
	assert.Equal(t, DefaultStartingBalance, bt.Portfolio().Cash())
	assert.ErrorIs(t, bt.SyncBalance(context.Background(), nil, 0), common.ErrNilArguments)
	require.NoError(t, bt.SyncBalance(context.Background(), exec, 0))
	assert.Equal(t, 50.0, bt.Portfolio().Cash())
}
