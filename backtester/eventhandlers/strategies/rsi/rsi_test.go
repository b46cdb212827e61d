package rsi

import (
	"testing"
	"time"

	"github.com/solquant/harness/backtester/common"
	"github.com/solquant/harness/backtester/eventhandlers/strategies/base"
	"github.com/solquant/harness/backtester/eventtypes/kline"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestName(t *testing.T) {
	t.Parallel()
	d := Strategy{}
	if n := d.Name(); n != Name {
		t.Errorf("expected %v", Name)
	}
	assert.NotEmpty(t, d.Description())
}

func TestSetCustomSettings(t *testing.T) {
	t.Parallel()
	s := New("SOL/USDC", kline.OneHour)
	err := s.SetCustomSettings(nil)
	assert.NoError(t, err)

	float14 := float64(14)
	mappalopalous := make(map[string]any)
	mappalopalous[rsiPeriodKey] = float14
	mappalopalous[rsiLowKey] = float14
	mappalopalous[rsiHighKey] = float64(80)

	err = s.SetCustomSettings(mappalopalous)
	assert.NoError(t, err)

	mappalopalous[rsiPeriodKey] = "fourteen"
	err = s.SetCustomSettings(mappalopalous)
	assert.ErrorIs(t, err, base.ErrInvalidCustomSettings)

	mappalopalous[rsiPeriodKey] = float14
	mappalopalous[rsiLowKey] = "14x"
	err = s.SetCustomSettings(mappalopalous)
	assert.ErrorIs(t, err, base.ErrInvalidCustomSettings)

	mappalopalous[rsiLowKey] = float14
	mappalopalous[rsiHighKey] = float64(10)
	err = s.SetCustomSettings(mappalopalous)
	assert.ErrorIs(t, err, base.ErrInvalidCustomSettings)

	mappalopalous[rsiHighKey] = float64(80)
	mappalopalous["lol"] = float14
	err = s.SetCustomSettings(mappalopalous)
	assert.ErrorIs(t, err, base.ErrInvalidCustomSettings)
}

func TestOnBar(t *testing.T) {
	t.Parallel()
	s := New("SOL/USDC", kline.OneHour)
	require.NoError(t, s.SetCustomSettings(map[string]any{rsiPeriodKey: 3}))
	start := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	closes := []float64{100, 101, 100, 99, 97, 95, 94, 96, 99, 103, 108}
	var sides []common.Side
	for i, c := range closes {
		sig, err := s.OnBar(kline.Bar{
			Symbol:    "SOL/USDC",
			Timestamp: start.Add(time.Duration(i) * time.Hour),
			Open:      c,
			High:      c,
			Low:       c,
			Close:     c,
		})
		require.NoError(t, err)
		if sig == nil {
			continue
		}
		require.NoError(t, sig.Validate())
		sides = append(sides, sig.Side)
		if sig.Side == common.Sell {
			assert.True(t, sig.ReduceOnly)
		}
	}
	assert.Equal(t, []common.Side{common.Buy, common.Sell}, sides)
}

func TestSetDefaults(t *testing.T) {
	t.Parallel()
	s := Strategy{}
	s.SetDefaults()
	assert.Equal(t, 70.0, s.rsiHigh)
	assert.Equal(t, 30.0, s.rsiLow)
	assert.Equal(t, 14, s.rsiPeriod)
	s.Reset()
	assert.False(t, s.initialised)
}
