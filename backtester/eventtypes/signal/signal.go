package signal

import (
	"fmt"
	"time"

	"github.com/solquant/harness/backtester/common"
	"github.com/solquant/harness/backtester/eventtypes/event"
)

// NewClose returns a full-confidence signal closing the symbol's position
func NewClose(symbol string, t time.Time, tag string) *Signal {
	return &Signal{
		Base:         event.Base{Symbol: symbol, Time: t},
		Side:         common.Flat,
		Confidence:   1,
		RationaleTag: tag,
	}
}

// IsOpening reports whether the signal may open or grow a position
func (s *Signal) IsOpening() bool {
	return s != nil && s.Side != common.Flat && !s.ReduceOnly
}

// IsClosing reports whether the signal can only reduce a position
func (s *Signal) IsClosing() bool {
	return s != nil && (s.Side == common.Flat || s.ReduceOnly)
}

// Validate ensures the signal's bounded fields are in range
func (s *Signal) Validate() error {
	if s == nil {
		return common.ErrNilArguments
	}
	if !s.Side.IsValid() {
		return fmt.Errorf("%w %w %q", common.ErrStrategy, errInvalidSide, s.Side)
	}
	if !(s.Confidence >= 0 && s.Confidence <= 1) {
		return fmt.Errorf("%w %w %v", common.ErrStrategy, errConfidenceRange, s.Confidence)
	}
	if !(s.SuggestedSizeFrac >= 0 && s.SuggestedSizeFrac <= 1) {
		return fmt.Errorf("%w %w %v", common.ErrStrategy, errSizeFractionRange, s.SuggestedSizeFrac)
	}
	if !(s.CloseFraction >= 0 && s.CloseFraction <= 1) {
		return fmt.Errorf("%w %w %v", common.ErrStrategy, errCloseFraction, s.CloseFraction)
	}
	return nil
}

// Clone returns a deep copy so rules can rewrite a signal without touching
// the original
func (s *Signal) Clone() *Signal {
	if s == nil {
		return nil
	}
	c := *s
	c.Reasons = s.GetReasons()
	return &c
}
