package momentum

import (
	"math"

	"github.com/solquant/harness/backtester/common"
	"github.com/solquant/harness/backtester/eventhandlers/strategies/base"
	"github.com/solquant/harness/backtester/eventtypes/kline"
	"github.com/solquant/harness/backtester/eventtypes/signal"
	"github.com/solquant/harness/backtester/indicators"
	gctmath "github.com/solquant/harness/common/math"
)

const (
	// Name is the strategy name
	Name           = "momentum"
	shortPeriodKey = "short-period"
	longPeriodKey  = "long-period"
	rsiPeriodKey   = "rsi-period"
	overboughtKey  = "overbought"
	atrPeriodKey   = "atr-period"
	sizeFracKey    = "size-fraction"
	description    = `Momentum follows the crossover of a short and long exponential moving average. It buys on a bullish cross while the relative strength index is below the overbought level and closes on a bearish cross or when the market turns overbought`

	tagCrossUp    = "momentum_cross_up"
	tagCrossDown  = "momentum_cross_down"
	tagOverbought = "momentum_overbought"
)

// Strategy is an implementation of the Handler interface
type Strategy struct {
	base.Strategy
	shortPeriod int
	longPeriod  int
	rsiPeriod   int
	atrPeriod   int
	overbought  float64
	sizeFrac    float64

	initialised   bool
	short         indicators.EMA
	long          indicators.EMA
	rsi           indicators.RSI
	atr           indicators.ATR
	above         bool
	wasOverbought bool
}

// New returns a momentum strategy with default settings
func New(symbol string, interval kline.Interval) *Strategy {
	s := &Strategy{}
	s.SetSymbol(symbol)
	s.SetInterval(interval)
	s.SetDefaults()
	return s
}

// Name returns the name of the strategy
func (s *Strategy) Name() string {
	return Name
}

// Description provides a nice overview of the strategy
func (s *Strategy) Description() string {
	return description
}

// OnBar updates the indicators and returns a signal on a crossover. Nothing
// is signalled until every indicator is ready
func (s *Strategy) OnBar(b kline.Bar) (*signal.Signal, error) {
	if err := s.CheckBar(&b); err != nil {
		return nil, err
	}
	if !s.initialised {
		if err := s.init(); err != nil {
			return nil, err
		}
	}
	es, err := s.short.Update(b.Close)
	if err != nil {
		return nil, err
	}
	el, err := s.long.Update(b.Close)
	if err != nil {
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
	if !s.short.Ready() || !s.long.Ready() || !s.rsi.Ready() || !s.atr.Ready() {
		return nil, nil
	}

	above := es > el
	crossUp := above && !s.above
	crossDown := !above && s.above
	s.above = above
	overbought := r >= s.overbought
	enterOverbought := overbought && !s.wasOverbought
	s.wasOverbought = overbought

	switch {
	case crossUp && r < s.overbought:
		sig := s.NewSignal(&b, common.Buy, tagCrossUp)
		if atr > 0 {
			sig.Confidence = gctmath.Clamp(math.Abs(es-el)/atr, 0, 1)
		}
		sig.SuggestedSizeFrac = s.sizeFrac
		sig.AppendReasonf("EMA%d %.4f crossed above EMA%d %.4f, RSI %.2f", s.shortPeriod, es, s.longPeriod, el, r)
		return sig, nil
	case crossDown || enterOverbought:
		tag := tagCrossDown
		if !crossDown {
			tag = tagOverbought
		}
		sig := s.NewSignal(&b, common.Sell, tag)
		sig.Confidence = 1
		sig.ReduceOnly = true
		sig.AppendReasonf("EMA%d %.4f EMA%d %.4f, RSI %.2f", s.shortPeriod, es, s.longPeriod, el, r)
		return sig, nil
	}
	return nil, nil
}

// SetCustomSettings allows a user to modify the momentum parameters
func (s *Strategy) SetCustomSettings(customSettings map[string]any) error {
	for k, v := range customSettings {
		switch k {
		case shortPeriodKey, longPeriodKey, rsiPeriodKey, atrPeriodKey:
			p, ok := base.ToPeriod(v)
			if !ok {
				return base.InvalidSetting(k, v)
			}
			switch k {
			case shortPeriodKey:
				s.shortPeriod = p
			case longPeriodKey:
				s.longPeriod = p
			case rsiPeriodKey:
				s.rsiPeriod = p
			default:
				s.atrPeriod = p
			}
		case overboughtKey:
			f, ok := base.ToFloat(v)
			if !ok || f <= 0 || f > 100 {
				return base.InvalidSetting(k, v)
			}
			s.overbought = f
		case sizeFracKey:
			f, ok := base.ToFloat(v)
			if !ok || f <= 0 || f > 1 {
				return base.InvalidSetting(k, v)
			}
			s.sizeFrac = f
		default:
			return base.InvalidSetting(k, v)
		}
	}
	if s.shortPeriod >= s.longPeriod {
		return base.InvalidSetting(shortPeriodKey, s.shortPeriod)
	}
	s.initialised = false
	return nil
}

// SetDefaults sets the custom settings to their default values
func (s *Strategy) SetDefaults() {
	s.shortPeriod = 9
	s.longPeriod = 21
	s.rsiPeriod = 14
	s.overbought = 70
	s.atrPeriod = 14
	s.sizeFrac = 1
	s.initialised = false
}

// Reset clears indicator state, keeping settings
func (s *Strategy) Reset() {
	s.ResetBase()
	s.initialised = false
}

func (s *Strategy) init() error {
	var err error
	if s.short, err = indicators.NewEMA(s.shortPeriod); err != nil {
		return err
	}
	if s.long, err = indicators.NewEMA(s.longPeriod); err != nil {
		return err
	}
	if s.rsi, err = indicators.NewRSI(s.rsiPeriod); err != nil {
		return err
	}
	if s.atr, err = indicators.NewATR(s.atrPeriod); err != nil {
		return err
	}
	s.above, s.wasOverbought = false, false
	s.initialised = true
	return nil
}
