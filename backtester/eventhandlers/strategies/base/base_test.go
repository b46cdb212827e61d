package base

import (
	"testing"
	"time"

	"github.com/solquant/harness/backtester/common"
	"github.com/solquant/harness/backtester/eventtypes/kline"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckBar(t *testing.T) {
	t.Parallel()
	var s Strategy
	assert.ErrorIs(t, s.CheckBar(nil), common.ErrNilArguments)

	b := &kline.Bar{Symbol: "SOL/USDC", Timestamp: time.Unix(60, 0)}
	require.NoError(t, s.CheckBar(b))
	assert.Equal(t, "SOL/USDC", s.Symbol())

	err := s.CheckBar(b)
	assert.ErrorIs(t, err, errOutOfOrder)
	assert.ErrorIs(t, err, common.ErrStrategy)

	other := &kline.Bar{Symbol: "BONK/SOL", Timestamp: time.Unix(120, 0)}
	assert.ErrorIs(t, s.CheckBar(other), ErrSymbolMismatch)

	s.ResetBase()
	require.NoError(t, s.CheckBar(b))
}

func TestNewSignal(t *testing.T) {
	t.Parallel()
	var s Strategy
	s.SetInterval(kline.FiveMin)
	assert.Equal(t, kline.FiveMin, s.Interval())
	b := &kline.Bar{Symbol: "SOL/USDC", Timestamp: time.Unix(60, 0)}
	sig := s.NewSignal(b, common.Buy, "cross")
	assert.Equal(t, "SOL/USDC", sig.Symbol)
	assert.Equal(t, b.Timestamp, sig.Time)
	assert.Equal(t, common.Buy, sig.Side)
	assert.Equal(t, "cross", sig.RationaleTag)
}

func TestToFloat(t *testing.T) {
	t.Parallel()
	for _, v := range []any{float64(14), float32(14), 14, int64(14), "14"} {
		f, ok := ToFloat(v)
		assert.True(t, ok, "%T", v)
		assert.Equal(t, 14.0, f)
	}
	_, ok := ToFloat("fourteen")
	assert.False(t, ok)
	_, ok = ToFloat(true)
	assert.False(t, ok)
}

func TestToPeriod(t *testing.T) {
	t.Parallel()
	p, ok := ToPeriod(int64(9))
	assert.True(t, ok)
	assert.Equal(t, 9, p)
	_, ok = ToPeriod(9.5)
	assert.False(t, ok)
	_, ok = ToPeriod(0)
	assert.False(t, ok)
	err := InvalidSetting("period", 0)
	assert.ErrorIs(t, err, ErrInvalidCustomSettings)
	assert.ErrorIs(t, err, common.ErrConfiguration)
}
