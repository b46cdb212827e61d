package risk

import (
	"errors"

	"github.com/solquant/harness/backtester/eventhandlers/portfolio"
	"github.com/solquant/harness/backtester/eventtypes/kline"
	"github.com/solquant/harness/backtester/eventtypes/signal"
)

// DefaultKellyMinTrades is the number of closed trades Kelly sizing waits for
// before overriding the suggested size
const DefaultKellyMinTrades = 10

// Rule names
const (
	StopLossName       = "stop_loss"
	TakeProfitName     = "take_profit"
	PositionCapName    = "position_cap"
	MaxConcurrentName  = "max_concurrent_positions"
	ConfidenceGateName = "confidence_gate"
	KellySizingName    = "kelly_sizing"
)

var (
	errInvalidPercentage = errors.New("percentage must be within (0,1]")
	errInvalidTargets    = errors.New("take profit targets must be ascending with close fractions in (0,1]")
	errInvalidCount      = errors.New("count must be positive")
	errInvalidMultiplier = errors.New("multiplier must be positive and finite")
	errInvalidConfidence = errors.New("confidence must be within [0,1]")
)

// Action is what a rule decided to do with a signal
type Action uint8

// Actions a rule may take
const (
	ActionPass Action = iota
	ActionMutate
	ActionReject
)

// Verdict is the outcome of one rule evaluation. Signal is set for pass and
// mutate, Reason for reject
type Verdict struct {
	Action Action
	Signal *signal.Signal
	Reason string
}

// Rejection explains why the pipeline dropped a signal. It is informational,
// not an error
type Rejection struct {
	Rule   string `json:"rule"`
	Reason string `json:"reason"`
}

// Rule inspects a signal, which may be nil when the strategy was silent,
// against the portfolio and the current bar. Rules are stateless
type Rule interface {
	Name() string
	Evaluate(sig *signal.Signal, view portfolio.View, b *kline.Bar) Verdict
}

// Pipeline applies rules in registration order
type Pipeline struct {
	rules []Rule
}

// Target is one take profit ladder step. TriggerPct is the gain over entry
// and CloseFraction the share of the position's peak quantity to close
type Target struct {
	TriggerPct    float64 `json:"trigger_pct" mapstructure:"trigger_pct"`
	CloseFraction float64 `json:"close_fraction" mapstructure:"close_fraction"`
}

// Settings selects and parameterises the standard rules. Zero values leave
// a rule out
type Settings struct {
	StopLossPct     float64
	ProfitTargets   []Target
	MaxPositions    int
	MinConfidence   float64
	KellyMultiplier float64
	KellyMinTrades  int
	MaxPositionPct  float64
}

// StopLossRule closes a position once its loss at the bar extreme reaches
// Pct of entry, or the bar trades through the position's stop price
type StopLossRule struct {
	Pct float64
}

// TakeProfitRule walks an ascending ladder of targets measured at the close
type TakeProfitRule struct {
	Targets []Target
}

// PositionCapRule keeps the notional of a symbol within MaxPct of equity
type PositionCapRule struct {
	MaxPct float64
}

// MaxConcurrentPositionsRule rejects openings in new symbols once Max
// positions are open
type MaxConcurrentPositionsRule struct {
	Max int
}

// ConfidenceGateRule rejects openings below Min confidence
type ConfidenceGateRule struct {
	Min float64
}

// KellySizingRule sizes openings with a fractional Kelly criterion from the
// portfolio's closed trade statistics
type KellySizingRule struct {
	Multiplier float64
	MaxPct     float64
	MinTrades  int
}
