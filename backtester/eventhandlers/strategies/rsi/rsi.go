package rsi

import (
	"github.com/solquant/harness/backtester/common"
	"github.com/solquant/harness/backtester/eventhandlers/strategies/base"
	"github.com/solquant/harness/backtester/eventtypes/kline"
	"github.com/solquant/harness/backtester/eventtypes/signal"
	"github.com/solquant/harness/backtester/indicators"
)

const (
	// Name is the strategy name
	Name         = "rsi"
	rsiPeriodKey = "rsi-period"
	rsiLowKey    = "rsi-low"
	rsiHighKey   = "rsi-high"
	sizeFracKey  = "size-fraction"
	description  = `The relative strength index is a technical indicator used in the analysis of financial markets. It is intended to chart the current and historical strength or weakness of a stock or market based on the closing prices of a recent trading period`
)

// Strategy is an implementation of the Handler interface
type Strategy struct {
	base.Strategy
	rsiPeriod int
	rsiLow    float64
	rsiHigh   float64
	sizeFrac  float64

	initialised bool
	rsi         indicators.RSI
	zone        int
}

// New returns an rsi strategy with default settings
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
// be it definition of terms or to highlight its purpose
func (s *Strategy) Description() string {
	return description
}

// OnBar handles a bar and returns what action the strategy believes should occur
// For rsi, this means returning a buy signal when rsi falls to or below a certain level, and a
// reduce-only sell signal when it rises to or above a certain level. Each zone signals once
// on entry
func (s *Strategy) OnBar(b kline.Bar) (*signal.Signal, error) {
	if err := s.CheckBar(&b); err != nil {
		return nil, err
	}
	if !s.initialised {
		var err error
		if s.rsi, err = indicators.NewRSI(s.rsiPeriod); err != nil {
			return nil, err
		}
		s.zone = 0
		s.initialised = true
	}
	latestRSIValue, err := s.rsi.Update(b.Close)
	if err != nil {
		return nil, err
	}
	if !s.rsi.Ready() {
		return nil, nil
	}

	zone := 0
	switch {
	case latestRSIValue >= s.rsiHigh:
		zone = 1
	case latestRSIValue <= s.rsiLow:
		zone = -1
	}
	entered := zone != s.zone
	s.zone = zone
	if !entered || zone == 0 {
		return nil, nil
	}

	var es *signal.Signal
	if zone < 0 {
		es = s.NewSignal(&b, common.Buy, "rsi_oversold")
		es.SuggestedSizeFrac = s.sizeFrac
		es.Confidence = (s.rsiLow - latestRSIValue) / s.rsiLow
	} else {
		es = s.NewSignal(&b, common.Sell, "rsi_overbought")
		es.ReduceOnly = true
		es.Confidence = 1
	}
	if es.Confidence < 0 {
		es.Confidence = 0
	}
	es.AppendReasonf("RSI at %.2f", latestRSIValue)
	return es, nil
}

// SetCustomSettings allows a user to modify the RSI limits in their config
func (s *Strategy) SetCustomSettings(customSettings map[string]any) error {
	for k, v := range customSettings {
		switch k {
		case rsiHighKey:
			rsiHigh, ok := base.ToFloat(v)
			if !ok || rsiHigh <= 0 || rsiHigh > 100 {
				return base.InvalidSetting(k, v)
			}
			s.rsiHigh = rsiHigh
		case rsiLowKey:
			rsiLow, ok := base.ToFloat(v)
			if !ok || rsiLow <= 0 || rsiLow > 100 {
				return base.InvalidSetting(k, v)
			}
			s.rsiLow = rsiLow
		case rsiPeriodKey:
			rsiPeriod, ok := base.ToPeriod(v)
			if !ok {
				return base.InvalidSetting(k, v)
			}
			s.rsiPeriod = rsiPeriod
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
	if s.rsiLow >= s.rsiHigh {
		return base.InvalidSetting(rsiLowKey, s.rsiLow)
	}
	s.initialised = false
	return nil
}

// SetDefaults sets the custom settings to their default values
func (s *Strategy) SetDefaults() {
	s.rsiHigh = 70
	s.rsiLow = 30
	s.rsiPeriod = 14
	s.sizeFrac = 1
	s.initialised = false
}

// Reset clears indicator state, keeping settings
func (s *Strategy) Reset() {
	s.ResetBase()
	s.initialised = false
}
