package trendfollowing

import (
	"fmt"
	"math"
	"reflect"

	"github.com/mitchellh/mapstructure"
	"github.com/solquant/harness/backtester/common"
	"github.com/solquant/harness/backtester/eventhandlers/strategies/base"
	"github.com/solquant/harness/backtester/eventtypes/kline"
	"github.com/solquant/harness/backtester/eventtypes/signal"
	"github.com/solquant/harness/backtester/indicators"
	gctmath "github.com/solquant/harness/common/math"
)

// DefaultConfig returns 9/21/55 EMAs, 12/26/9 MACD, RSI 14, ATR 14, a 2.5 ATR
// stop, 5% risk per trade and a 10% position ceiling
func DefaultConfig() Config {
	return Config{
		FastEMA:         9,
		MidEMA:          21,
		SlowEMA:         55,
		MACDFast:        12,
		MACDSlow:        26,
		MACDSignal:      9,
		RSIPeriod:       14,
		ATRPeriod:       14,
		ATRStopMult:     2.5,
		RiskPerTradePct: 5,
		MaxPositionPct:  10,
	}
}

// Validate checks the configuration is usable
func (c *Config) Validate() error {
	switch {
	case c.FastEMA <= 0 || c.FastEMA >= c.MidEMA || c.MidEMA >= c.SlowEMA:
		return base.InvalidSetting("ema periods", []int{c.FastEMA, c.MidEMA, c.SlowEMA})
	case c.MACDFast <= 0 || c.MACDFast >= c.MACDSlow || c.MACDSignal <= 0:
		return base.InvalidSetting("macd periods", []int{c.MACDFast, c.MACDSlow, c.MACDSignal})
	case c.RSIPeriod <= 0:
		return base.InvalidSetting("rsi-period", c.RSIPeriod)
	case c.ATRPeriod <= 0:
		return base.InvalidSetting("atr-period", c.ATRPeriod)
	case c.ATRStopMult <= 0:
		return base.InvalidSetting("atr-stop-multiplier", c.ATRStopMult)
	case c.RiskPerTradePct <= 0 || c.RiskPerTradePct > 100:
		return base.InvalidSetting("risk-per-trade-pct", c.RiskPerTradePct)
	case c.MaxPositionPct <= 0 || c.MaxPositionPct > 100:
		return base.InvalidSetting("max-position-pct", c.MaxPositionPct)
	}
	return nil
}

// New returns a trend following strategy using cfg
func New(symbol string, interval kline.Interval, cfg Config) (*Strategy, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	s := &Strategy{cfg: cfg}
	s.SetSymbol(symbol)
	s.SetInterval(interval)
	return s, nil
}

// Name returns the name of the strategy
func (s *Strategy) Name() string {
	return Name
}

// Description provides a nice overview of the strategy
func (s *Strategy) Description() string {
	return description
}

// OnBar updates every indicator and returns an entry when trend, momentum
// and strength agree, or an exit when the fast EMA crosses the mid EMA
// against the engaged direction
func (s *Strategy) OnBar(b kline.Bar) (*signal.Signal, error) {
	if err := s.CheckBar(&b); err != nil {
		return nil, err
	}
	if !s.initialised {
		if err := s.init(); err != nil {
			return nil, err
		}
	}
	for _, e := range []*indicators.EMA{&s.fast, &s.mid, &s.slow} {
		if _, err := e.Update(b.Close); err != nil {
			return nil, err
		}
	}
	if _, err := s.macd.Update(b.Close); err != nil {
		return nil, err
	}
	r, err := s.rsi.Update(b.Close)
	if err != nil {
		return nil, err
	}
	atr, err := s.atr.Update(b.High, b.Low, b.Close)
	if err != nil {
		return nil, err
	}
	if !s.fast.Ready() || !s.mid.Ready() || !s.slow.Ready() || !s.macd.Ready() || !s.rsi.Ready() || !s.atr.Ready() {
		return nil, nil
	}
	fast, mid, slow := s.fast.Value(), s.mid.Value(), s.slow.Value()
	hist := s.macd.Histogram()

	switch s.engaged {
	case common.Buy:
		if fast < mid {
			return s.exit(&b, fast, mid), nil
		}
		return nil, nil
	case common.Sell:
		if fast > mid {
			return s.exit(&b, fast, mid), nil
		}
		return nil, nil
	}

	var sig *signal.Signal
	var rsiScore float64
	switch {
	case fast > mid && mid > slow && hist > 0 && s.macd.Rising() && r > 40 && r < 70:
		sig = s.NewSignal(&b, common.Buy, tagEntryLong)
		sig.StopPrice = b.Close - s.cfg.ATRStopMult*atr
		rsiScore = 1 - math.Abs(r-55)/15
	case fast < mid && mid < slow && hist < 0 && s.macd.Falling() && r > 30 && r < 60:
		sig = s.NewSignal(&b, common.Sell, tagEntryShort)
		sig.StopPrice = b.Close + s.cfg.ATRStopMult*atr
		rsiScore = 1 - math.Abs(r-45)/15
	default:
		return nil, nil
	}
	s.engaged = sig.Side

	var trendScore, momentumScore float64
	if atr > 0 {
		trendScore = gctmath.Clamp(math.Abs(fast-slow)/atr, 0, 1)
	}
	if line := math.Abs(s.macd.Line()); line > 0 {
		momentumScore = gctmath.Clamp(math.Abs(hist)/line, 0, 1)
	}
	sig.Confidence = gctmath.Clamp((trendScore+momentumScore+gctmath.Clamp(rsiScore, 0, 1))/3, 0, 1)
	sig.SuggestedSizeFrac = s.positionSize(b.Close, atr)
	if sig.StopPrice < 0 {
		sig.StopPrice = 0
	}
	sig.AppendReasonf("EMA %.4f/%.4f/%.4f, MACD histogram %.5f, RSI %.2f, ATR %.4f", fast, mid, slow, hist, r, atr)
	return sig, nil
}

// positionSize risks RiskPerTradePct of equity over the stop distance,
// capped at MaxPositionPct
func (s *Strategy) positionSize(closePrice, atr float64) float64 {
	maxFrac := s.cfg.MaxPositionPct / 100
	if closePrice <= 0 || atr <= 0 {
		return maxFrac
	}
	stopDistance := s.cfg.ATRStopMult * atr / closePrice
	return gctmath.Clamp(math.Min((s.cfg.RiskPerTradePct/100)/stopDistance, maxFrac), 0, 1)
}

func (s *Strategy) exit(b *kline.Bar, fast, mid float64) *signal.Signal {
	sig := s.NewSignal(b, common.Flat, tagExit)
	sig.Confidence = 1
	sig.AppendReasonf("EMA%d %.4f crossed EMA%d %.4f against the position", s.cfg.FastEMA, fast, s.cfg.MidEMA, mid)
	s.engaged = common.Flat
	return sig
}

// SetCustomSettings decodes keys matching the Config mapstructure tags over
// the current config. Unknown keys and fractional periods are rejected
func (s *Strategy) SetCustomSettings(customSettings map[string]any) error {
	cfg := s.cfg
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook:       wholePeriods,
		ErrorUnused:      true,
		WeaklyTypedInput: true,
		Result:           &cfg,
	})
	if err != nil {
		return err
	}
	if err := dec.Decode(customSettings); err != nil {
		return fmt.Errorf("%w %w: %v", common.ErrConfiguration, base.ErrInvalidCustomSettings, err)
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	s.cfg = cfg
	s.initialised = false
	return nil
}

func wholePeriods(from, to reflect.Kind, data any) (any, error) {
	if to != reflect.Int {
		return data, nil
	}
	if f, ok := base.ToFloat(data); ok && (from == reflect.Float64 || from == reflect.Float32 || from == reflect.String) {
		if p, ok := base.ToPeriod(f); ok {
			return p, nil
		}
		return nil, fmt.Errorf("%v is not a whole period", data)
	}
	return data, nil
}

// SetDefaults sets the custom settings to their default values
func (s *Strategy) SetDefaults() {
	s.cfg = DefaultConfig()
	s.initialised = false
}

// Reset clears indicator state and the engaged direction, keeping settings
func (s *Strategy) Reset() {
	s.ResetBase()
	s.initialised = false
}

func (s *Strategy) init() error {
	var err error
	if s.fast, err = indicators.NewEMA(s.cfg.FastEMA); err != nil {
		return err
	}
	if s.mid, err = indicators.NewEMA(s.cfg.MidEMA); err != nil {
		return err
	}
	if s.slow, err = indicators.NewEMA(s.cfg.SlowEMA); err != nil {
		return err
	}
	if s.macd, err = indicators.NewMACD(s.cfg.MACDFast, s.cfg.MACDSlow, s.cfg.MACDSignal); err != nil {
		return err
	}
	if s.rsi, err = indicators.NewRSI(s.cfg.RSIPeriod); err != nil {
		return err
	}
	if s.atr, err = indicators.NewATR(s.cfg.ATRPeriod); err != nil {
		return err
	}
	s.engaged = common.Flat
	s.initialised = true
	return nil
}
