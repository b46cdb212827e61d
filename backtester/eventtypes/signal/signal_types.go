package signal

import (
	"errors"

	"github.com/solquant/harness/backtester/common"
	"github.com/solquant/harness/backtester/eventtypes/event"
)

var (
	errInvalidSide       = errors.New("invalid signal side")
	errConfidenceRange   = errors.New("confidence outside [0,1]")
	errSizeFractionRange = errors.New("suggested size fraction outside [0,1]")
	errCloseFraction     = errors.New("close fraction outside [0,1]")
)

// Signal is a strategy's intent for a symbol on one bar
type Signal struct {
	event.Base
	Side              common.Side `json:"side"`
	Confidence        float64     `json:"confidence"`
	SuggestedSizeFrac float64     `json:"suggested_size_frac"`
	RationaleTag      string      `json:"rationale_tag"`
	// StopPrice is a protective stop suggestion for the position this signal
	// opens. Zero when unset
	StopPrice float64 `json:"stop_price,omitempty"`
	// ReduceOnly signals may shrink or close a position but never open one
	ReduceOnly bool `json:"reduce_only,omitempty"`
	// CloseFraction is the share of the position's peak quantity to close.
	// Zero closes everything
	CloseFraction float64 `json:"close_fraction,omitempty"`
	// LadderStep is the highest take profit step this close consumes
	LadderStep int `json:"ladder_step,omitempty"`
}
