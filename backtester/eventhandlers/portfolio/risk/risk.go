package risk

import (
	"github.com/solquant/harness/backtester/eventhandlers/portfolio"
	"github.com/solquant/harness/backtester/eventtypes/kline"
	"github.com/solquant/harness/backtester/eventtypes/signal"
	"github.com/solquant/harness/log"
)

// Pass keeps the signal as it is
func Pass(sig *signal.Signal) Verdict {
	return Verdict{Action: ActionPass, Signal: sig}
}

// Mutate replaces the signal
func Mutate(sig *signal.Signal) Verdict {
	return Verdict{Action: ActionMutate, Signal: sig}
}

// Reject drops the signal
func Reject(reason string) Verdict {
	return Verdict{Action: ActionReject, Reason: reason}
}

func (a Action) String() string {
	switch a {
	case ActionPass:
		return "pass"
	case ActionMutate:
		return "mutate"
	case ActionReject:
		return "reject"
	}
	return "unknown"
}

// NewPipeline returns a pipeline evaluating rules in the given order
func NewPipeline(rules ...Rule) *Pipeline {
	p := &Pipeline{}
	for _, r := range rules {
		p.Add(r)
	}
	return p
}

// Add appends a rule. Nil rules are ignored
func (p *Pipeline) Add(r Rule) {
	if r == nil {
		return
	}
	p.rules = append(p.rules, r)
}

// Rules returns the names of the registered rules in order
func (p *Pipeline) Rules() []string {
	resp := make([]string, len(p.rules))
	for i := range p.rules {
		resp[i] = p.rules[i].Name()
	}
	return resp
}

// Evaluate runs sig, which may be nil, through every rule. It returns the
// surviving signal, which is nil when nothing should happen, or the
// rejection that stopped it
func (p *Pipeline) Evaluate(sig *signal.Signal, view portfolio.View, b *kline.Bar) (*signal.Signal, *Rejection) {
	if p == nil || b == nil {
		return sig, nil
	}
	for _, r := range p.rules {
		v := r.Evaluate(sig, view, b)
		switch v.Action {
		case ActionReject:
			log.Debugf(log.Risk, "%s rejected %s signal at %v: %s", r.Name(), b.Symbol, b.Timestamp, v.Reason)
			return nil, &Rejection{Rule: r.Name(), Reason: v.Reason}
		case ActionMutate:
			if v.Signal != nil {
				log.Debugf(log.Risk, "%s rewrote %s signal to %s %s", r.Name(), b.Symbol, v.Signal.Side, v.Signal.RationaleTag)
			}
			sig = v.Signal
		default:
			sig = v.Signal
		}
	}
	return sig, nil
}

// NewPipelineFromSettings builds the live chain: stop loss, take profit,
// max concurrent positions, confidence gate, Kelly sizing and position cap.
// Rules whose parameters are zero are left out
func NewPipelineFromSettings(s *Settings) (*Pipeline, error) {
	p := NewPipeline()
	if s == nil {
		return p, nil
	}
	if s.StopLossPct > 0 {
		r, err := NewStopLossRule(s.StopLossPct)
		if err != nil {
			return nil, err
		}
		p.Add(r)
	}
	if len(s.ProfitTargets) > 0 {
		r, err := NewLadderedTakeProfitRule(s.ProfitTargets)
		if err != nil {
			return nil, err
		}
		p.Add(r)
	}
	if s.MaxPositions > 0 {
		r, err := NewMaxConcurrentPositionsRule(s.MaxPositions)
		if err != nil {
			return nil, err
		}
		p.Add(r)
	}
	if s.MinConfidence > 0 {
		r, err := NewConfidenceGateRule(s.MinConfidence)
		if err != nil {
			return nil, err
		}
		p.Add(r)
	}
	if s.KellyMultiplier > 0 {
		maxPct := s.MaxPositionPct
		if maxPct <= 0 {
			maxPct = 1
		}
		minTrades := s.KellyMinTrades
		if minTrades <= 0 {
			minTrades = DefaultKellyMinTrades
		}
		r, err := NewKellySizingRule(s.KellyMultiplier, maxPct, minTrades)
		if err != nil {
			return nil, err
		}
		p.Add(r)
	}
	if s.MaxPositionPct > 0 {
		r, err := NewPositionCapRule(s.MaxPositionPct)
		if err != nil {
			return nil, err
		}
		p.Add(r)
	}
	return p, nil
}

// DefaultBacktestPipeline is a 5% stop loss followed by a 10% take profit
func DefaultBacktestPipeline() *Pipeline {
	return NewPipeline(&StopLossRule{Pct: 0.05}, &TakeProfitRule{Targets: []Target{{TriggerPct: 0.10, CloseFraction: 1}}})
}
