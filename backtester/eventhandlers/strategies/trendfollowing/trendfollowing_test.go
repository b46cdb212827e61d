package trendfollowing

import (
	"math"
	"testing"
	"time"

	"github.com/solquant/harness/backtester/common"
	"github.com/solquant/harness/backtester/eventhandlers/strategies/base"
	"github.com/solquant/harness/backtester/eventtypes/kline"
	"github.com/solquant/harness/backtester/eventtypes/signal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSymbol = "SOL/USDC"

type indexed struct {
	i   int
	sig *signal.Signal
}

func run(t *testing.T, s *Strategy, closes []float64) []indexed {
	t.Helper()
	var out []indexed
	prev := closes[0]
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, c := range closes {
		b := kline.Bar{
			Symbol:    testSymbol,
			Timestamp: start.Add(time.Duration(i) * 15 * time.Minute),
			Open:      prev,
			High:      math.Max(prev, c) + 0.5,
			Low:       math.Min(prev, c) - 0.5,
			Close:     c,
		}
		prev = c
		sig, err := s.OnBar(b)
		require.NoError(t, err)
		if sig != nil {
			require.NoError(t, sig.Validate())
			out = append(out, indexed{i, sig})
		}
	}
	return out
}

func TestConfigValidate(t *testing.T) {
	t.Parallel()
	c := DefaultConfig()
	require.NoError(t, c.Validate())
	for name, mutate := range map[string]func(*Config){
		"ema order":  func(c *Config) { c.MidEMA = 60 },
		"macd order": func(c *Config) { c.MACDFast = 30 },
		"rsi":        func(c *Config) { c.RSIPeriod = 0 },
		"atr":        func(c *Config) { c.ATRPeriod = 0 },
		"stop":       func(c *Config) { c.ATRStopMult = 0 },
		"risk":       func(c *Config) { c.RiskPerTradePct = 101 },
		"max":        func(c *Config) { c.MaxPositionPct = -1 },
	} {
		bad := DefaultConfig()
		mutate(&bad)
		assert.ErrorIs(t, bad.Validate(), base.ErrInvalidCustomSettings, name)
		_, err := New(testSymbol, kline.OneHour, bad)
		assert.ErrorIs(t, err, common.ErrConfiguration, name)
	}
}

func TestSetCustomSettings(t *testing.T) {
	t.Parallel()
	s, err := New(testSymbol, kline.OneHour, DefaultConfig())
	require.NoError(t, err)
	assert.Equal(t, Name, s.Name())
	assert.NotEmpty(t, s.Description())

	require.NoError(t, s.SetCustomSettings(map[string]any{"fast-ema": 5, "atr-stop-multiplier": 3.0}))
	assert.Equal(t, 5, s.cfg.FastEMA)
	assert.Equal(t, 3.0, s.cfg.ATRStopMult)

	assert.ErrorIs(t, s.SetCustomSettings(map[string]any{"fast-ema": 40}), base.ErrInvalidCustomSettings)
	assert.Equal(t, 5, s.cfg.FastEMA, "rejected settings leave the config untouched")
	assert.ErrorIs(t, s.SetCustomSettings(map[string]any{"nope": 1}), base.ErrInvalidCustomSettings)

	require.NoError(t, s.SetCustomSettings(map[string]any{"fast-ema": "7", "max-position-pct": "20"}))
	assert.Equal(t, 7, s.cfg.FastEMA, "viper may hand over strings")
	assert.Equal(t, 20.0, s.cfg.MaxPositionPct)
	err = s.SetCustomSettings(map[string]any{"slow-ema": 60.5})
	assert.ErrorIs(t, err, base.ErrInvalidCustomSettings)
	assert.ErrorIs(t, err, common.ErrConfiguration)
	assert.ErrorIs(t, s.SetCustomSettings(map[string]any{"rsi-period": "fourteen"}), base.ErrInvalidCustomSettings)
	assert.Equal(t, 55, s.cfg.SlowEMA)
	assert.Equal(t, 14, s.cfg.RSIPeriod)

	s.SetDefaults()
	assert.Equal(t, DefaultConfig(), s.cfg)
}

func TestLongEntryAndExit(t *testing.T) {
	t.Parallel()
	closes := make([]float64, 0, 110)
	for i := 0; i < 80; i++ {
		closes = append(closes, 100+0.01*float64(i)*float64(i))
	}
	top := closes[len(closes)-1]
	for j := 1; j < 30; j++ {
		closes = append(closes, top-1.5*float64(j))
	}
	s, err := New(testSymbol, kline.FifteenMin, DefaultConfig())
	require.NoError(t, err)
	got := run(t, s, closes)
	require.Len(t, got, 2)

	entry := got[0]
	assert.Equal(t, 54, entry.i)
	assert.Equal(t, common.Buy, entry.sig.Side)
	assert.Equal(t, tagEntryLong, entry.sig.RationaleTag)
	assert.Positive(t, entry.sig.StopPrice)
	assert.Less(t, entry.sig.StopPrice, closes[54])
	assert.Positive(t, entry.sig.SuggestedSizeFrac)
	assert.LessOrEqual(t, entry.sig.SuggestedSizeFrac, 0.1)
	assert.Positive(t, entry.sig.Confidence)
	assert.LessOrEqual(t, entry.sig.Confidence, 1.0)

	exit := got[1]
	assert.Equal(t, 91, exit.i)
	assert.Equal(t, common.Flat, exit.sig.Side)
	assert.Equal(t, tagExit, exit.sig.RationaleTag)
}

func TestShortEntryAndExit(t *testing.T) {
	t.Parallel()
	closes := make([]float64, 0, 110)
	for i := 0; i < 80; i++ {
		c := 200 - 0.005*float64(i)*float64(i)
		if i%2 == 1 {
			c += 2
		}
		closes = append(closes, c)
	}
	bottom := closes[len(closes)-1]
	for j := 1; j < 30; j++ {
		closes = append(closes, bottom+1.5*float64(j))
	}
	s, err := New(testSymbol, kline.FifteenMin, DefaultConfig())
	require.NoError(t, err)
	got := run(t, s, closes)
	require.Len(t, got, 2)
	assert.Equal(t, 54, got[0].i)
	assert.Equal(t, common.Sell, got[0].sig.Side)
	assert.False(t, got[0].sig.ReduceOnly)
	assert.Greater(t, got[0].sig.StopPrice, closes[54])
	assert.Equal(t, 87, got[1].i)
	assert.Equal(t, common.Flat, got[1].sig.Side)
}

func TestPositionSize(t *testing.T) {
	t.Parallel()
	s, err := New(testSymbol, kline.OneHour, DefaultConfig())
	require.NoError(t, err)
	// stop distance 2.5*1/100 = 2.5%, risk 5% -> 2.0, capped at 10%
	assert.Equal(t, 0.1, s.positionSize(100, 1))
	// stop distance 2.5*10/100 = 25%, risk 5% -> 0.2 capped at 0.1
	assert.Equal(t, 0.1, s.positionSize(100, 10))
	// stop distance 2.5*80/100 = 200%, risk 5% -> 0.025
	assert.InDelta(t, 0.025, s.positionSize(100, 80), 1e-12)
	assert.Equal(t, 0.1, s.positionSize(100, 0))
}
