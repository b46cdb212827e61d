package meanreversion

import (
	"math"

	"github.com/solquant/harness/backtester/common"
	"github.com/solquant/harness/backtester/eventhandlers/strategies/base"
	"github.com/solquant/harness/backtester/eventtypes/kline"
	"github.com/solquant/harness/backtester/eventtypes/signal"
	"github.com/solquant/harness/backtester/indicators"
)

const (
	// Name is the strategy name
	Name        = "mean_reversion"
	windowKey   = "window"
	entryKKey   = "entry-k"
	exitKKey    = "exit-k"
	sizeFracKey = "size-fraction"
	description = `Mean reversion buys when the close falls entry-k standard deviations below its moving average and exits once price returns to the average. The short side mirrors it`

	tagEntryLong  = "mean_reversion_long"
	tagEntryShort = "mean_reversion_short"
	tagExit       = "mean_reversion_exit"
)

// Strategy is an implementation of the Handler interface
type Strategy struct {
	base.Strategy
	window   int
	entryK   float64
	exitK    float64
	sizeFrac float64

	initialised bool
	bands       indicators.Bollinger
	engaged     common.Side
}

// New returns a mean reversion strategy
func New(symbol string, interval kline.Interval, window int, entryK, exitK, sizeFrac float64) (*Strategy, error) {
	s := &Strategy{}
	s.SetSymbol(symbol)
	s.SetInterval(interval)
	s.SetDefaults()
	err := s.SetCustomSettings(map[string]any{
		windowKey:   window,
		entryKKey:   entryK,
		exitKKey:    exitK,
		sizeFracKey: sizeFrac,
	})
	if err != nil {
		return nil, err
	}
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

// OnBar updates the bands and returns an entry when the z-score breaches
// entry-k, or an exit once the close crosses back over the middle band
func (s *Strategy) OnBar(b kline.Bar) (*signal.Signal, error) {
	if err := s.CheckBar(&b); err != nil {
		return nil, err
	}
	if !s.initialised {
		if err := s.init(); err != nil {
			return nil, err
		}
	}
	mid, err := s.bands.Update(b.Close)
	if err != nil {
		return nil, err
	}
	if !s.bands.Ready() {
		return nil, nil
	}
	z := s.bands.ZScore(b.Close)

	switch s.engaged {
	case common.Buy:
		if b.Close >= mid {
			return s.exit(&b, mid, z), nil
		}
		return nil, nil
	case common.Sell:
		if b.Close <= mid {
			return s.exit(&b, mid, z), nil
		}
		return nil, nil
	}

	var sig *signal.Signal
	switch {
	case z <= -s.entryK:
		sig = s.NewSignal(&b, common.Buy, tagEntryLong)
	case z >= s.entryK:
		sig = s.NewSignal(&b, common.Sell, tagEntryShort)
	default:
		return nil, nil
	}
	s.engaged = sig.Side
	sig.Confidence = math.Min(1, math.Abs(z)/s.exitK)
	sig.SuggestedSizeFrac = s.sizeFrac
	sig.AppendReasonf("z-score %.3f against middle %.4f lower %.4f upper %.4f", z, mid, s.bands.Lower(), s.bands.Upper())
	return sig, nil
}

func (s *Strategy) exit(b *kline.Bar, mid, z float64) *signal.Signal {
	sig := s.NewSignal(b, common.Flat, tagExit)
	sig.Confidence = 1
	sig.AppendReasonf("close %.4f reverted to middle %.4f, z-score %.3f", b.Close, mid, z)
	s.engaged = common.Flat
	return sig
}

// SetCustomSettings allows a user to modify the band parameters
func (s *Strategy) SetCustomSettings(customSettings map[string]any) error {
	for k, v := range customSettings {
		switch k {
		case windowKey:
			p, ok := base.ToPeriod(v)
			if !ok || p < 2 {
				return base.InvalidSetting(k, v)
			}
			s.window = p
		case entryKKey, exitKKey:
			f, ok := base.ToFloat(v)
			if !ok || f <= 0 {
				return base.InvalidSetting(k, v)
			}
			if k == entryKKey {
				s.entryK = f
			} else {
				s.exitK = f
			}
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
	s.initialised = false
	return nil
}

// SetDefaults sets the custom settings to their default values
func (s *Strategy) SetDefaults() {
	s.window = 50
	s.entryK = 1.4
	s.exitK = 1.5
	s.sizeFrac = 1
	s.initialised = false
}

// Reset clears band state and the engaged direction, keeping settings
func (s *Strategy) Reset() {
	s.ResetBase()
	s.initialised = false
}

func (s *Strategy) init() error {
	var err error
	s.bands, err = indicators.NewBollinger(s.window, s.entryK)
	if err != nil {
		return err
	}
	s.engaged = common.Flat
	s.initialised = true
	return nil
}
